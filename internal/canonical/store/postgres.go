// Package store backs the canonical ID allocator with the registry
// database. Uniqueness is registry-wide, so the probe spans both the
// users and organizations tables.
package store

import (
	"context"
	"database/sql"

	"dataregistry/internal/platform/postgres"
	"dataregistry/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Exists reports whether the canonical ID is claimed by any registrant.
// The result is advisory: the final arbiter is the unique constraint hit
// on insert.
func (s *PostgresStore) Exists(ctx context.Context, id domain.CanonicalID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE canonical_id = $1
			UNION ALL
			SELECT 1 FROM organizations WHERE canonical_id = $1
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id.String()).Scan(&exists); err != nil {
		return false, postgres.MapError(err, "probe canonical id")
	}
	return exists, nil
}
