package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/grid"
)

// EncounterRepository implements arena.Repository on PostgreSQL. Map,
// snapshots, events and rewards are stored as JSONB; every Save is guarded by
// the version column.
type EncounterRepository struct {
	db *pgxpool.Pool
}

var _ arena.Repository = (*EncounterRepository)(nil)

// NewEncounterRepository creates an EncounterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewEncounterRepository(db *pgxpool.Pool) *EncounterRepository {
	return &EncounterRepository{db: db}
}

const encounterColumns = `id, teacher_id, classroom_id, exercise_id, status, round, phase,
	difficulty, map, question_id, expected_headcount, average_level, seed, version,
	last_events, rewards, created_at, ended_at`

const participantColumns = `id, encounter_id, student_id, snapshot, hp, max_hp, mana, max_mana,
	pos_x, pos_y, alive, flags_round, answered, answer_correct, has_moved,
	action_submitted, action, joined_at`

const monsterColumns = `id, type, name, level, hp, max_hp, attack, defense, magic_defense,
	skills, pos_x, pos_y, alive`

// Create implements arena.Repository.
//
// Postcondition: enc.Version is 1; returns arena.ErrActiveEncounterExists if
// the classroom already has a non-completed encounter.
func (r *EncounterRepository) Create(ctx context.Context, enc *arena.Encounter) error {
	mapJSON, err := json.Marshal(enc.Map)
	if err != nil {
		return fmt.Errorf("encoding map: %w", err)
	}
	events, rewards, err := encodeOutcome(enc)
	if err != nil {
		return err
	}
	enc.Version = 1

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO encounters (`+encounterColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			enc.ID, enc.TeacherID, enc.ClassroomID, enc.ExerciseID, string(enc.Status), enc.Round,
			string(enc.Phase), string(enc.Difficulty), mapJSON, enc.QuestionID, enc.ExpectedHeadcount,
			enc.AverageLevel, enc.Seed, enc.Version, events, rewards, enc.CreatedAt, enc.EndedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err, activeIndex) {
				return arena.ErrActiveEncounterExists
			}
			return fmt.Errorf("inserting encounter: %w", err)
		}
		return writeChildren(ctx, tx, enc, false)
	})
	if err != nil {
		enc.Version = 0
		return err
	}
	return nil
}

// Get implements arena.Repository. Participants and monsters load concurrently.
//
// Postcondition: Returns the full encounter or arena.ErrEncounterNotFound.
func (r *EncounterRepository) Get(ctx context.Context, id string) (*arena.Encounter, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, arena.ErrEncounterNotFound
	}
	enc, err := scanEncounter(r.db.QueryRow(ctx, `SELECT `+encounterColumns+` FROM encounters WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, arena.ErrEncounterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading encounter: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ps, err := r.participants(gctx, id)
		enc.Participants = ps
		return err
	})
	g.Go(func() error {
		ms, err := r.monsters(gctx, id)
		enc.Monsters = ms
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return enc, nil
}

// Save implements arena.Repository.
//
// Precondition: enc.Version is the version it was loaded at.
// Postcondition: On success enc.Version is incremented; a stale version yields
// arena.ErrVersionConflict and writes nothing.
func (r *EncounterRepository) Save(ctx context.Context, enc *arena.Encounter) error {
	mapJSON, err := json.Marshal(enc.Map)
	if err != nil {
		return fmt.Errorf("encoding map: %w", err)
	}
	events, rewards, err := encodeOutcome(enc)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE encounters
			SET status = $3, round = $4, phase = $5, map = $6, question_id = $7,
			    expected_headcount = $8, average_level = $9, last_events = $10,
			    rewards = $11, ended_at = $12, version = version + 1
			WHERE id = $1 AND version = $2`,
			enc.ID, enc.Version, string(enc.Status), enc.Round, string(enc.Phase), mapJSON,
			enc.QuestionID, enc.ExpectedHeadcount, enc.AverageLevel, events, rewards, enc.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("updating encounter: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM encounters WHERE id = $1)`, enc.ID).Scan(&exists); err != nil {
				return fmt.Errorf("checking encounter: %w", err)
			}
			if !exists {
				return arena.ErrEncounterNotFound
			}
			return arena.ErrVersionConflict
		}
		return writeChildren(ctx, tx, enc, true)
	})
	if err != nil {
		return err
	}
	enc.Version++
	return nil
}

// ActiveForClassroom implements arena.Repository.
func (r *EncounterRepository) ActiveForClassroom(ctx context.Context, classroomID string) (*arena.Encounter, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT id FROM encounters
		WHERE classroom_id = $1 AND status <> 'completed'`,
		classroomID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, arena.ErrEncounterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding active encounter: %w", err)
	}
	return r.Get(ctx, id)
}

func encodeOutcome(enc *arena.Encounter) (events, rewards []byte, err error) {
	if enc.LastEvents != nil {
		if events, err = json.Marshal(enc.LastEvents); err != nil {
			return nil, nil, fmt.Errorf("encoding events: %w", err)
		}
	}
	if enc.Rewards != nil {
		if rewards, err = json.Marshal(enc.Rewards); err != nil {
			return nil, nil, fmt.Errorf("encoding rewards: %w", err)
		}
	}
	return events, rewards, nil
}

// writeChildren upserts participants and rewrites the monster roster, which
// is replaced wholesale when the battlefield is resized.
func writeChildren(ctx context.Context, tx pgx.Tx, enc *arena.Encounter, replace bool) error {
	batch := &pgx.Batch{}
	for _, p := range enc.Participants {
		snap, err := json.Marshal(p.Snapshot)
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		var action []byte
		if p.Action != nil {
			if action, err = json.Marshal(p.Action); err != nil {
				return fmt.Errorf("encoding action: %w", err)
			}
		}
		batch.Queue(`
			INSERT INTO encounter_participants (`+participantColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (id) DO UPDATE SET
				hp = EXCLUDED.hp, mana = EXCLUDED.mana, pos_x = EXCLUDED.pos_x,
				pos_y = EXCLUDED.pos_y, alive = EXCLUDED.alive,
				flags_round = EXCLUDED.flags_round, answered = EXCLUDED.answered,
				answer_correct = EXCLUDED.answer_correct, has_moved = EXCLUDED.has_moved,
				action_submitted = EXCLUDED.action_submitted, action = EXCLUDED.action`,
			p.ID, enc.ID, p.StudentID, snap, p.HP, p.MaxHP, p.Mana, p.MaxMana,
			p.Position.X, p.Position.Y, p.Alive, p.FlagsRound, p.Answered, p.AnswerCorrect,
			p.HasMoved, p.ActionSubmitted, action, p.JoinedAt,
		)
	}
	if replace {
		batch.Queue(`DELETE FROM encounter_monsters WHERE encounter_id = $1`, enc.ID)
	}
	for i, m := range enc.Monsters {
		skills, err := jsonColumn(m.Skills)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO encounter_monsters (encounter_id, ordinal, `+monsterColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			enc.ID, i, m.ID, m.Type, m.Name, m.Level, m.HP, m.MaxHP, m.Attack, m.Defense,
			m.MagicDefense, skills, m.Position.X, m.Position.Y, m.Alive,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing participants and monsters: %w", err)
	}
	return nil
}

func scanEncounter(row pgx.Row) (*arena.Encounter, error) {
	var (
		enc                     arena.Encounter
		status, phase, diff     string
		mapJSON, events, reward []byte
		endedAt                 *time.Time
	)
	err := row.Scan(
		&enc.ID, &enc.TeacherID, &enc.ClassroomID, &enc.ExerciseID, &status, &enc.Round, &phase,
		&diff, &mapJSON, &enc.QuestionID, &enc.ExpectedHeadcount, &enc.AverageLevel, &enc.Seed,
		&enc.Version, &events, &reward, &enc.CreatedAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}
	enc.Status = arena.Status(status)
	enc.Phase = arena.Phase(phase)
	enc.Difficulty = bestiary.Difficulty(diff)
	enc.EndedAt = endedAt
	var m grid.Map
	if err := decodeJSON(mapJSON, &m); err != nil {
		return nil, err
	}
	enc.Map = &m
	if err := decodeJSON(events, &enc.LastEvents); err != nil {
		return nil, err
	}
	if err := decodeJSON(reward, &enc.Rewards); err != nil {
		return nil, err
	}
	return &enc, nil
}

func (r *EncounterRepository) participants(ctx context.Context, encounterID string) ([]*arena.Participant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+participantColumns+`
		FROM encounter_participants WHERE encounter_id = $1
		ORDER BY joined_at, id`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	out := make([]*arena.Participant, 0)
	for rows.Next() {
		var (
			p            arena.Participant
			snap, action []byte
		)
		if err := rows.Scan(
			&p.ID, &p.EncounterID, &p.StudentID, &snap, &p.HP, &p.MaxHP, &p.Mana, &p.MaxMana,
			&p.Position.X, &p.Position.Y, &p.Alive, &p.FlagsRound, &p.Answered, &p.AnswerCorrect,
			&p.HasMoved, &p.ActionSubmitted, &action, &p.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		if err := decodeJSON(snap, &p.Snapshot); err != nil {
			return nil, err
		}
		if len(action) > 0 {
			p.Action = &arena.Action{}
			if err := decodeJSON(action, p.Action); err != nil {
				return nil, err
			}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *EncounterRepository) monsters(ctx context.Context, encounterID string) ([]*arena.Monster, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+monsterColumns+`
		FROM encounter_monsters WHERE encounter_id = $1
		ORDER BY ordinal`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing monsters: %w", err)
	}
	defer rows.Close()

	out := make([]*arena.Monster, 0)
	for rows.Next() {
		var (
			m      arena.Monster
			skills []byte
		)
		if err := rows.Scan(
			&m.ID, &m.Type, &m.Name, &m.Level, &m.HP, &m.MaxHP, &m.Attack, &m.Defense,
			&m.MagicDefense, &skills, &m.Position.X, &m.Position.Y, &m.Alive,
		); err != nil {
			return nil, fmt.Errorf("scanning monster row: %w", err)
		}
		if err := decodeJSON(skills, &m.Skills); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
