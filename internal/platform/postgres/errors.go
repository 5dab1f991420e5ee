package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"dataregistry/pkg/platform/sentinel"
)

// SQLSTATE classes the stores care about.
const (
	codeUniqueViolation     = "23505"
	codeExclusionViolation  = "23P01"
	codeForeignKeyViolation = "23503"
)

// MapError translates driver errors into platform sentinels so services
// can branch without importing pgconn. Unique violations become
// ErrAlreadyUsed, exclusion violations (the one-primary-per-parent
// constraints) become ErrConflict.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
		case codeExclusionViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
