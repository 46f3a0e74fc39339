package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"
	activeIndex     = "encounters_one_active_per_classroom"
)

// isDuplicateKeyError reports a unique constraint violation, optionally on a
// specific constraint.
func isDuplicateKeyError(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// jsonColumn encodes v for a JSONB column. Nil slices encode as [] so NOT NULL
// columns never receive SQL NULL.
func jsonColumn[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding json column: %w", err)
	}
	return b, nil
}

// decodeJSON unmarshals a JSONB column, leaving dst untouched for NULL.
func decodeJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decoding json column: %w", err)
	}
	return nil
}
