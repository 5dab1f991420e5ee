// Package org provides persistence for organization registrants and
// their membership rows.
package org

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"dataregistry/internal/org/models"
	"dataregistry/internal/platform/postgres"
	usermodels "dataregistry/internal/user/models"
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

// Create claims the organization's canonical ID by inserting the row.
func (s *PostgresStore) Create(ctx context.Context, o *models.Organization) error {
	query := `
		INSERT INTO organizations (
			organization_id, canonical_id, organization_name, organization_type,
			address, website, status, request_date, verification_token,
			is_verified, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(o.ID),
		o.CanonicalID.String(),
		o.Name,
		o.Type,
		nullString(o.Address),
		nullString(o.Website),
		string(o.Status),
		o.RequestDate,
		nullString(o.VerificationToken),
		o.IsVerified,
		nullBytes(o.Metadata),
		o.CreatedAt,
		o.UpdatedAt,
	)
	return postgres.MapError(err, "create organization")
}

const selectOrg = `
	SELECT organization_id, canonical_id, organization_name, organization_type,
		   address, website, status, request_date, approved_at, approved_by,
		   rejection_reason, verification_token, is_verified, metadata,
		   created_at, updated_at
	FROM organizations
`

func (s *PostgresStore) FindByID(ctx context.Context, orgID domain.OrgID) (*models.Organization, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectOrg+` WHERE organization_id = $1`, uuid.UUID(orgID))
	return scanOrg(row)
}

func (s *PostgresStore) FindByCanonicalID(ctx context.Context, canonicalID domain.CanonicalID) (*models.Organization, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectOrg+` WHERE canonical_id = $1`, canonicalID.String())
	return scanOrg(row)
}

func (s *PostgresStore) FindByVerificationToken(ctx context.Context, token string) (*models.Organization, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectOrg+` WHERE verification_token = $1`, token)
	return scanOrg(row)
}

func (s *PostgresStore) Update(ctx context.Context, o *models.Organization) error {
	query := `
		UPDATE organizations
		SET status = $2, approved_at = $3, approved_by = $4,
			rejection_reason = $5, verification_token = $6,
			is_verified = $7, metadata = $8, updated_at = $9
		WHERE organization_id = $1
	`
	var approvedBy any
	if o.ApprovedBy != nil {
		approvedBy = uuid.UUID(*o.ApprovedBy)
	}
	result, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(o.ID),
		string(o.Status),
		o.ApprovedAt,
		approvedBy,
		nullString(o.RejectionReason),
		nullString(o.VerificationToken),
		o.IsVerified,
		nullBytes(o.Metadata),
		o.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "update organization")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "update organization")
	}
	if affected == 0 {
		return postgres.MapError(sql.ErrNoRows, "update organization")
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status usermodels.Status, limit, offset int) ([]*models.Organization, error) {
	query := selectOrg + `
		WHERE status = $1
		ORDER BY request_date
		LIMIT $2 OFFSET $3
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, postgres.MapError(err, "list organizations by status")
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list organizations by status")
	}
	return orgs, nil
}

// Search matches approved organizations by name, canonical ID or any
// email address.
func (s *PostgresStore) Search(ctx context.Context, q string, limit int) ([]*models.Organization, error) {
	query := selectOrg + `
		WHERE status = 'approved'
		  AND (organization_name ILIKE $1
			   OR canonical_id ILIKE $1
			   OR EXISTS (
					SELECT 1 FROM organization_emails e
					WHERE e.organization_id = organizations.organization_id AND e.email ILIKE $1
			   ))
		ORDER BY canonical_id
		LIMIT $2
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, "%"+q+"%", limit)
	if err != nil {
		return nil, postgres.MapError(err, "search organizations")
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "search organizations")
	}
	return orgs, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status usermodels.Status) (int, error) {
	var count int
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organizations WHERE status = $1`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, postgres.MapError(err, "count organizations by status")
	}
	return count, nil
}

func (s *PostgresStore) AddEmail(ctx context.Context, e *models.Email) error {
	query := `
		INSERT INTO organization_emails (email_id, organization_id, email, domain, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		e.ID, uuid.UUID(e.OrgID), e.Address, e.Domain, e.IsPrimary, e.CreatedAt,
	)
	return postgres.MapError(err, "add organization email")
}

func (s *PostgresStore) AddPhone(ctx context.Context, p *models.Phone) error {
	query := `
		INSERT INTO organization_phones (phone_id, organization_id, phone, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		p.ID, uuid.UUID(p.OrgID), p.Number, p.IsPrimary, p.CreatedAt,
	)
	return postgres.MapError(err, "add organization phone")
}

func (s *PostgresStore) ListEmails(ctx context.Context, orgID domain.OrgID) ([]models.Email, error) {
	query := `
		SELECT email_id, organization_id, email, domain, is_primary, created_at
		FROM organization_emails
		WHERE organization_id = $1
		ORDER BY created_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, postgres.MapError(err, "list organization emails")
	}
	defer rows.Close()

	var emails []models.Email
	for rows.Next() {
		var (
			e   models.Email
			oid uuid.UUID
		)
		if err := rows.Scan(&e.ID, &oid, &e.Address, &e.Domain, &e.IsPrimary, &e.CreatedAt); err != nil {
			return nil, postgres.MapError(err, "scan organization email")
		}
		e.OrgID = domain.OrgID(oid)
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list organization emails")
	}
	return emails, nil
}

func (s *PostgresStore) ListPhones(ctx context.Context, orgID domain.OrgID) ([]models.Phone, error) {
	query := `
		SELECT phone_id, organization_id, phone, is_primary, created_at
		FROM organization_phones
		WHERE organization_id = $1
		ORDER BY created_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, postgres.MapError(err, "list organization phones")
	}
	defer rows.Close()

	var phones []models.Phone
	for rows.Next() {
		var (
			p   models.Phone
			oid uuid.UUID
		)
		if err := rows.Scan(&p.ID, &oid, &p.Number, &p.IsPrimary, &p.CreatedAt); err != nil {
			return nil, postgres.MapError(err, "scan organization phone")
		}
		p.OrgID = domain.OrgID(oid)
		phones = append(phones, p)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list organization phones")
	}
	return phones, nil
}

// AddMember links a user to the organization. The exclusion constraint
// rejects a second primary contact.
func (s *PostgresStore) AddMember(ctx context.Context, m *models.Member) error {
	query := `
		INSERT INTO organization_members (organization_id, user_id, role, is_primary, added_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(m.OrgID), uuid.UUID(m.UserID), m.Role, m.IsPrimary, m.AddedAt,
	)
	return postgres.MapError(err, "add organization member")
}

func (s *PostgresStore) ListMembers(ctx context.Context, orgID domain.OrgID) ([]models.Member, error) {
	query := `
		SELECT organization_id, user_id, role, is_primary, added_at
		FROM organization_members
		WHERE organization_id = $1
		ORDER BY added_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, postgres.MapError(err, "list organization members")
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var (
			m   models.Member
			oid uuid.UUID
			uid uuid.UUID
		)
		if err := rows.Scan(&oid, &uid, &m.Role, &m.IsPrimary, &m.AddedAt); err != nil {
			return nil, postgres.MapError(err, "scan organization member")
		}
		m.OrgID = domain.OrgID(oid)
		m.UserID = domain.UserID(uid)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list organization members")
	}
	return members, nil
}

// SetPrimaryContact demotes the current primary member and promotes the
// given one. Run inside a transaction.
func (s *PostgresStore) SetPrimaryContact(ctx context.Context, orgID domain.OrgID, userID domain.UserID) error {
	conn := s.conn(ctx)
	_, err := conn.ExecContext(ctx,
		`UPDATE organization_members SET is_primary = FALSE WHERE organization_id = $1 AND is_primary`,
		uuid.UUID(orgID),
	)
	if err != nil {
		return postgres.MapError(err, "demote primary contact")
	}
	result, err := conn.ExecContext(ctx,
		`UPDATE organization_members SET is_primary = TRUE WHERE organization_id = $1 AND user_id = $2`,
		uuid.UUID(orgID), uuid.UUID(userID),
	)
	if err != nil {
		return postgres.MapError(err, "promote primary contact")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "promote primary contact")
	}
	if affected == 0 {
		return postgres.MapError(sql.ErrNoRows, "promote primary contact")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner) (*models.Organization, error) {
	var (
		o               models.Organization
		orgID           uuid.UUID
		canonicalID     string
		address         sql.NullString
		website         sql.NullString
		status          string
		approvedBy      *uuid.UUID
		rejectionReason sql.NullString
		token           sql.NullString
		metadata        []byte
	)
	err := row.Scan(
		&orgID,
		&canonicalID,
		&o.Name,
		&o.Type,
		&address,
		&website,
		&status,
		&o.RequestDate,
		&o.ApprovedAt,
		&approvedBy,
		&rejectionReason,
		&token,
		&o.IsVerified,
		&metadata,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, postgres.MapError(err, "scan organization")
	}
	o.ID = domain.OrgID(orgID)
	o.CanonicalID = domain.CanonicalID(canonicalID)
	o.Address = address.String
	o.Website = website.String
	o.Status = usermodels.Status(status)
	if approvedBy != nil {
		adminID := domain.AdminID(*approvedBy)
		o.ApprovedBy = &adminID
	}
	o.RejectionReason = rejectionReason.String
	o.VerificationToken = token.String
	o.Metadata = metadata
	return &o, nil
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
