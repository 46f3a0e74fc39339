package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/classquest/internal/game/quiz"
)

// QuestionRepository implements quiz.Bank on PostgreSQL.
type QuestionRepository struct {
	db *pgxpool.Pool
}

var _ quiz.Bank = (*QuestionRepository)(nil)

// NewQuestionRepository creates a QuestionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewQuestionRepository(db *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, exercise_id, prompt, kind, choices, answer, alternatives, strict, tolerance, script`

// Eligible implements quiz.Bank. Questions come back ordered by id so a seeded
// pick is reproducible.
func (r *QuestionRepository) Eligible(ctx context.Context, exerciseID string) ([]*quiz.Question, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions WHERE exercise_id = $1
		ORDER BY id`,
		exerciseID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	var out []*quiz.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Question implements quiz.Bank.
//
// Postcondition: Returns quiz.ErrQuestionNotFound for unknown ids.
func (r *QuestionRepository) Question(ctx context.Context, id string) (*quiz.Question, error) {
	q, err := scanQuestion(r.db.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, quiz.ErrQuestionNotFound
	}
	return q, err
}

// Upsert inserts or replaces questions in a single transaction.
//
// Precondition: Every question passes Validate.
// Postcondition: All questions are stored, or none are.
func (r *QuestionRepository) Upsert(ctx context.Context, qs []*quiz.Question) error {
	batch := &pgx.Batch{}
	for _, q := range qs {
		choices, err := jsonColumn(q.Choices)
		if err != nil {
			return err
		}
		alts, err := jsonColumn(q.Alternatives)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO questions (`+questionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO UPDATE SET
				exercise_id = EXCLUDED.exercise_id, prompt = EXCLUDED.prompt,
				kind = EXCLUDED.kind, choices = EXCLUDED.choices, answer = EXCLUDED.answer,
				alternatives = EXCLUDED.alternatives, strict = EXCLUDED.strict,
				tolerance = EXCLUDED.tolerance, script = EXCLUDED.script,
				updated_at = NOW()`,
			q.ID, q.ExerciseID, q.Prompt, string(q.Kind), choices, q.Answer, alts,
			q.Strict, q.Tolerance, q.Script,
		)
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting questions: %w", err)
		}
		return nil
	})
}

func scanQuestion(row pgx.Row) (*quiz.Question, error) {
	var (
		q             quiz.Question
		kind          string
		choices, alts []byte
	)
	if err := row.Scan(&q.ID, &q.ExerciseID, &q.Prompt, &kind, &choices, &q.Answer, &alts,
		&q.Strict, &q.Tolerance, &q.Script); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning question row: %w", err)
	}
	q.Kind = quiz.Kind(kind)
	if err := decodeJSON(choices, &q.Choices); err != nil {
		return nil, err
	}
	if err := decodeJSON(alts, &q.Alternatives); err != nil {
		return nil, err
	}
	if len(q.Choices) == 0 {
		q.Choices = nil
	}
	if len(q.Alternatives) == 0 {
		q.Alternatives = nil
	}
	return &q, nil
}
