package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by CommandStore.SavePending. The Postgres
// implementation maps unique-violation (SQLSTATE 23505) on the relevant
// constraint to one of these; callers branch on errors.Is.
var (
	ErrDuplicateIdempotency = errors.New("DUPLICATE_IDEMPOTENCY")
	ErrDuplicateBusiness    = errors.New("DUPLICATE_BUSINESS")
)

// classifyUniqueViolation turns a Postgres unique-constraint violation into
// one of the sentinel errors above, by constraint name. Any other error
// (including nil) passes through unchanged.
func classifyUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "idempotency_key"):
		return ErrDuplicateIdempotency
	case strings.Contains(pgErr.ConstraintName, "name_business_key"):
		return ErrDuplicateBusiness
	default:
		return err
	}
}
