// Package apikey provides persistence for lookup API credentials.
package apikey

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"dataregistry/internal/apikey/models"
	"dataregistry/internal/platform/postgres"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
	txcontext "dataregistry/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbConn {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, k *models.APIKey) error {
	query := `
		INSERT INTO api_keys (key_id, api_key, client_name, client_email, is_active, rate_limit, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(k.ID),
		k.KeyHash,
		k.ClientName,
		k.ClientEmail,
		k.IsActive,
		k.RateLimit,
		k.CreatedAt,
		nullTime(k.ExpiresAt),
	)
	return postgres.MapError(err, "create api key")
}

const selectKey = `
	SELECT key_id, api_key, client_name, client_email, is_active, rate_limit, created_at, last_used, expires_at
	FROM api_keys
`

func (s *PostgresStore) FindByID(ctx context.Context, keyID domain.APIKeyID) (*models.APIKey, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectKey+` WHERE key_id = $1`, uuid.UUID(keyID))
	return scanKey(row)
}

func (s *PostgresStore) FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectKey+` WHERE api_key = $1`, keyHash)
	return scanKey(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, selectKey+` ORDER BY created_at`)
	if err != nil {
		return nil, postgres.MapError(err, "list api keys")
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, postgres.MapError(rows.Err(), "list api keys")
}

// TouchLastUsed stamps last_used; called on every validated lookup.
func (s *PostgresStore) TouchLastUsed(ctx context.Context, keyID domain.APIKeyID, at time.Time) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE api_keys SET last_used = $2 WHERE key_id = $1`,
		uuid.UUID(keyID), at,
	)
	return postgres.MapError(err, "touch api key")
}

func (s *PostgresStore) Revoke(ctx context.Context, keyID domain.APIKeyID) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE key_id = $1`,
		uuid.UUID(keyID),
	)
	if err != nil {
		return postgres.MapError(err, "revoke api key")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "revoke api key")
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*models.APIKey, error) {
	var (
		k         models.APIKey
		keyID     uuid.UUID
		lastUsed  sql.NullTime
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&keyID,
		&k.KeyHash,
		&k.ClientName,
		&k.ClientEmail,
		&k.IsActive,
		&k.RateLimit,
		&k.CreatedAt,
		&lastUsed,
		&expiresAt,
	)
	if err != nil {
		return nil, postgres.MapError(err, "scan api key")
	}
	k.ID = domain.APIKeyID(keyID)
	if lastUsed.Valid {
		k.LastUsed = &lastUsed.Time
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return &k, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
