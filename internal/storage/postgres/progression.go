package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/classquest/internal/game/progression"
)

// ProgressionStore implements progression.Store on the student_profiles table.
type ProgressionStore struct {
	db *pgxpool.Pool
}

var _ progression.Store = (*ProgressionStore)(nil)

// NewProgressionStore creates a ProgressionStore backed by the given pool.
func NewProgressionStore(db *pgxpool.Pool) *ProgressionStore {
	return &ProgressionStore{db: db}
}

const profileColumns = `student_id, class, level, xp, gold, updated_at`

// Get implements progression.Store.
func (s *ProgressionStore) Get(ctx context.Context, studentID string) (*progression.Profile, error) {
	return getProfile(ctx, s.db, studentID, "")
}

// Put implements progression.Store.
//
// Postcondition: The row for p.StudentID holds p's values and a fresh updated_at.
func (s *ProgressionStore) Put(ctx context.Context, p *progression.Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO student_profiles (student_id, class, level, xp, gold)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			class = EXCLUDED.class, level = EXCLUDED.level, xp = EXCLUDED.xp,
			gold = EXCLUDED.gold, updated_at = NOW()`,
		p.StudentID, p.Class, p.Level, p.XP, p.Gold,
	)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// Update implements progression.Store. The row is locked for the duration of
// fn, so concurrent grants serialize.
//
// Postcondition: Returns the stored profile, or progression.ErrStudentNotFound.
func (s *ProgressionStore) Update(ctx context.Context, studentID string, fn func(*progression.Profile) error) (*progression.Profile, error) {
	var out *progression.Profile
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		p, err := getProfile(ctx, tx, studentID, " FOR UPDATE")
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			UPDATE student_profiles
			SET class = $2, level = $3, xp = $4, gold = $5, updated_at = NOW()
			WHERE student_id = $1
			RETURNING updated_at`,
			studentID, p.Class, p.Level, p.XP, p.Gold,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getProfile(ctx context.Context, q querier, studentID, suffix string) (*progression.Profile, error) {
	var p progression.Profile
	err := q.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM student_profiles WHERE student_id = $1`+suffix,
		studentID,
	).Scan(&p.StudentID, &p.Class, &p.Level, &p.XP, &p.Gold, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, progression.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return &p, nil
}
