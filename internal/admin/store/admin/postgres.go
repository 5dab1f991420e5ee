// Package admin provides persistence for reviewer accounts.
package admin

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"dataregistry/internal/admin/models"
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

func (s *PostgresStore) Create(ctx context.Context, a *models.Admin) error {
	query := `
		INSERT INTO admins (admin_id, username, password_hash, admin_type, email, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.Username,
		a.PasswordHash,
		string(a.Type),
		a.Email,
		a.IsActive,
		a.CreatedAt,
	)
	return postgres.MapError(err, "create admin")
}

const selectAdmin = `
	SELECT admin_id, username, password_hash, admin_type, email, is_active, created_at, last_login
	FROM admins
`

func (s *PostgresStore) FindByID(ctx context.Context, adminID domain.AdminID) (*models.Admin, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectAdmin+` WHERE admin_id = $1`, uuid.UUID(adminID))
	return scanAdmin(row)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.Admin, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectAdmin+` WHERE username = $1`, username)
	return scanAdmin(row)
}

// RecordLogin stamps last_login after a successful authentication.
func (s *PostgresStore) RecordLogin(ctx context.Context, adminID domain.AdminID, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE admins SET last_login = $2 WHERE admin_id = $1`,
		uuid.UUID(adminID), at,
	)
	if err != nil {
		return postgres.MapError(err, "record admin login")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "record admin login")
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanAdmin(row *sql.Row) (*models.Admin, error) {
	var (
		a         models.Admin
		adminID   uuid.UUID
		adminType string
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&adminID,
		&a.Username,
		&a.PasswordHash,
		&adminType,
		&a.Email,
		&a.IsActive,
		&a.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, postgres.MapError(err, "scan admin")
	}
	a.ID = domain.AdminID(adminID)
	a.Type = models.AdminType(adminType)
	if lastLogin.Valid {
		a.LastLogin = &lastLogin.Time
	}
	return &a, nil
}
