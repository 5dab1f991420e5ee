// Package user provides persistence for individual registrants.
package user

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"dataregistry/internal/platform/postgres"
	"dataregistry/internal/user/models"
	"dataregistry/pkg/domain"
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

// Create claims the user's canonical ID by inserting the row. A unique
// violation on canonical_id surfaces as sentinel.ErrAlreadyUsed so the
// service can re-derive and retry.
func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (
			user_id, canonical_id, first_name, last_name, status,
			request_date, verification_token, is_verified, metadata,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(u.ID),
		u.CanonicalID.String(),
		u.FirstName,
		u.LastName,
		string(u.Status),
		u.RequestDate,
		nullString(u.VerificationToken),
		u.IsVerified,
		nullBytes(u.Metadata),
		u.CreatedAt,
		u.UpdatedAt,
	)
	return postgres.MapError(err, "create user")
}

const selectUser = `
	SELECT user_id, canonical_id, first_name, last_name, status,
		   request_date, approved_at, approved_by, rejection_reason,
		   verification_token, is_verified, metadata, created_at, updated_at
	FROM users
`

func (s *PostgresStore) FindByID(ctx context.Context, userID domain.UserID) (*models.User, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectUser+` WHERE user_id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) FindByCanonicalID(ctx context.Context, canonicalID domain.CanonicalID) (*models.User, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectUser+` WHERE canonical_id = $1`, canonicalID.String())
	return scanUser(row)
}

func (s *PostgresStore) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectUser+` WHERE verification_token = $1`, token)
	return scanUser(row)
}

// Update persists mutable review and verification state. The canonical
// ID and name columns are immutable after Create.
func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET status = $2, approved_at = $3, approved_by = $4,
			rejection_reason = $5, verification_token = $6,
			is_verified = $7, metadata = $8, updated_at = $9
		WHERE user_id = $1
	`
	var approvedBy any
	if u.ApprovedBy != nil {
		approvedBy = uuid.UUID(*u.ApprovedBy)
	}
	result, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(u.ID),
		string(u.Status),
		u.ApprovedAt,
		approvedBy,
		nullString(u.RejectionReason),
		nullString(u.VerificationToken),
		u.IsVerified,
		nullBytes(u.Metadata),
		u.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "update user")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "update user")
	}
	if affected == 0 {
		return postgres.MapError(sql.ErrNoRows, "update user")
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, limit, offset int) ([]*models.User, error) {
	query := selectUser + `
		WHERE status = $1
		ORDER BY request_date
		LIMIT $2 OFFSET $3
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, postgres.MapError(err, "list users by status")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list users by status")
	}
	return users, nil
}

// Search matches approved users by name, canonical ID or any email
// address.
func (s *PostgresStore) Search(ctx context.Context, q string, limit int) ([]*models.User, error) {
	query := selectUser + `
		WHERE status = 'approved'
		  AND (first_name || ' ' || last_name ILIKE $1
			   OR canonical_id ILIKE $1
			   OR EXISTS (
					SELECT 1 FROM user_emails e
					WHERE e.user_id = users.user_id AND e.email ILIKE $1
			   ))
		ORDER BY canonical_id
		LIMIT $2
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, "%"+q+"%", limit)
	if err != nil {
		return nil, postgres.MapError(err, "search users")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "search users")
	}
	return users, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status models.Status) (int, error) {
	var count int
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE status = $1`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, postgres.MapError(err, "count users by status")
	}
	return count, nil
}

func (s *PostgresStore) AddEmail(ctx context.Context, e *models.Email) error {
	query := `
		INSERT INTO user_emails (email_id, user_id, email, domain, is_primary, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		e.ID, uuid.UUID(e.UserID), e.Address, e.Domain, e.IsPrimary, e.IsVerified, e.CreatedAt,
	)
	return postgres.MapError(err, "add user email")
}

func (s *PostgresStore) AddPhone(ctx context.Context, p *models.Phone) error {
	query := `
		INSERT INTO user_phones (phone_id, user_id, phone, is_primary, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		p.ID, uuid.UUID(p.UserID), p.Number, p.IsPrimary, p.IsVerified, p.CreatedAt,
	)
	return postgres.MapError(err, "add user phone")
}

func (s *PostgresStore) AddAddress(ctx context.Context, a *models.Address) error {
	query := `
		INSERT INTO user_addresses (address_id, user_id, line1, line2, city, region, postal_code, country, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		a.ID, uuid.UUID(a.UserID), a.Line1, nullString(a.Line2), a.City,
		nullString(a.Region), nullString(a.PostalCode), a.Country, a.IsPrimary, a.CreatedAt,
	)
	return postgres.MapError(err, "add user address")
}

func (s *PostgresStore) ListEmails(ctx context.Context, userID domain.UserID) ([]models.Email, error) {
	query := `
		SELECT email_id, user_id, email, domain, is_primary, is_verified, created_at
		FROM user_emails
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, postgres.MapError(err, "list user emails")
	}
	defer rows.Close()

	var emails []models.Email
	for rows.Next() {
		var (
			e   models.Email
			uid uuid.UUID
		)
		if err := rows.Scan(&e.ID, &uid, &e.Address, &e.Domain, &e.IsPrimary, &e.IsVerified, &e.CreatedAt); err != nil {
			return nil, postgres.MapError(err, "scan user email")
		}
		e.UserID = domain.UserID(uid)
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list user emails")
	}
	return emails, nil
}

func (s *PostgresStore) ListPhones(ctx context.Context, userID domain.UserID) ([]models.Phone, error) {
	query := `
		SELECT phone_id, user_id, phone, is_primary, is_verified, created_at
		FROM user_phones
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, postgres.MapError(err, "list user phones")
	}
	defer rows.Close()

	var phones []models.Phone
	for rows.Next() {
		var (
			p   models.Phone
			uid uuid.UUID
		)
		if err := rows.Scan(&p.ID, &uid, &p.Number, &p.IsPrimary, &p.IsVerified, &p.CreatedAt); err != nil {
			return nil, postgres.MapError(err, "scan user phone")
		}
		p.UserID = domain.UserID(uid)
		phones = append(phones, p)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list user phones")
	}
	return phones, nil
}

func (s *PostgresStore) ListAddresses(ctx context.Context, userID domain.UserID) ([]models.Address, error) {
	query := `
		SELECT address_id, user_id, line1, line2, city, region, postal_code, country, is_primary, created_at
		FROM user_addresses
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, postgres.MapError(err, "list user addresses")
	}
	defer rows.Close()

	var addresses []models.Address
	for rows.Next() {
		var (
			a          models.Address
			uid        uuid.UUID
			line2      sql.NullString
			region     sql.NullString
			postalCode sql.NullString
		)
		if err := rows.Scan(&a.ID, &uid, &a.Line1, &line2, &a.City, &region, &postalCode, &a.Country, &a.IsPrimary, &a.CreatedAt); err != nil {
			return nil, postgres.MapError(err, "scan user address")
		}
		a.UserID = domain.UserID(uid)
		a.Line2 = line2.String
		a.Region = region.String
		a.PostalCode = postalCode.String
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list user addresses")
	}
	return addresses, nil
}

// SetPrimaryEmail demotes the current primary and promotes the given
// email. Run inside a transaction: the two statements must commit
// together or the exclusion constraint rejects the promote.
func (s *PostgresStore) SetPrimaryEmail(ctx context.Context, userID domain.UserID, emailID uuid.UUID) error {
	conn := s.conn(ctx)
	_, err := conn.ExecContext(ctx,
		`UPDATE user_emails SET is_primary = FALSE WHERE user_id = $1 AND is_primary`,
		uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "demote primary email")
	}
	result, err := conn.ExecContext(ctx,
		`UPDATE user_emails SET is_primary = TRUE WHERE email_id = $1 AND user_id = $2`,
		emailID, uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "promote primary email")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "promote primary email")
	}
	if affected == 0 {
		return postgres.MapError(sql.ErrNoRows, "promote primary email")
	}
	return nil
}

func (s *PostgresStore) SetPrimaryPhone(ctx context.Context, userID domain.UserID, phoneID uuid.UUID) error {
	conn := s.conn(ctx)
	_, err := conn.ExecContext(ctx,
		`UPDATE user_phones SET is_primary = FALSE WHERE user_id = $1 AND is_primary`,
		uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "demote primary phone")
	}
	result, err := conn.ExecContext(ctx,
		`UPDATE user_phones SET is_primary = TRUE WHERE phone_id = $1 AND user_id = $2`,
		phoneID, uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "promote primary phone")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "promote primary phone")
	}
	if affected == 0 {
		return postgres.MapError(sql.ErrNoRows, "promote primary phone")
	}
	return nil
}

func (s *PostgresStore) SetPrimaryAddress(ctx context.Context, userID domain.UserID, addressID uuid.UUID) error {
	conn := s.conn(ctx)
	_, err := conn.ExecContext(ctx,
		`UPDATE user_addresses SET is_primary = FALSE WHERE user_id = $1 AND is_primary`,
		uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "demote primary address")
	}
	result, err := conn.ExecContext(ctx,
		`UPDATE user_addresses SET is_primary = TRUE WHERE address_id = $1 AND user_id = $2`,
		addressID, uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "promote primary address")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "promote primary address")
	}
	if affected == 0 {
		return postgres.MapError(sql.ErrNoRows, "promote primary address")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u               models.User
		userID          uuid.UUID
		canonicalID     string
		status          string
		approvedBy      *uuid.UUID
		rejectionReason sql.NullString
		token           sql.NullString
		metadata        []byte
	)
	err := row.Scan(
		&userID,
		&canonicalID,
		&u.FirstName,
		&u.LastName,
		&status,
		&u.RequestDate,
		&u.ApprovedAt,
		&approvedBy,
		&rejectionReason,
		&token,
		&u.IsVerified,
		&metadata,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, postgres.MapError(err, "scan user")
	}
	u.ID = domain.UserID(userID)
	u.CanonicalID = domain.CanonicalID(canonicalID)
	u.Status = models.Status(status)
	if approvedBy != nil {
		adminID := domain.AdminID(*approvedBy)
		u.ApprovedBy = &adminID
	}
	u.RejectionReason = rejectionReason.String
	u.VerificationToken = token.String
	u.Metadata = metadata
	return &u, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
