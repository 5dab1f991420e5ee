//go:build integration

package user_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dataregistry/internal/user/models"
	userstore "dataregistry/internal/user/store/user"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
	"dataregistry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *userstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = userstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx,
		"user_emails", "user_phones", "user_addresses", "users",
	)
	s.Require().NoError(err)
}

func newTestUser(canonicalID string) *models.User {
	now := time.Now()
	return &models.User{
		ID:          domain.NewUserID(),
		CanonicalID: domain.CanonicalID(canonicalID),
		FirstName:   "John",
		LastName:    "Doe",
		Status:      models.StatusPending,
		RequestDate: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TestConcurrentCanonicalIDClaim verifies that concurrent inserts with
// the same canonical ID result in exactly one success.
func (s *PostgresStoreSuite) TestConcurrentCanonicalIDClaim() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := newTestUser("RACE0001TST")
			err := s.store.Create(ctx, u)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one claim should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")
}

// TestConcurrentPrimaryEmailClaim verifies that the exclusion constraint
// allows exactly one primary email per user under concurrency.
func (s *PostgresStoreSuite) TestConcurrentPrimaryEmailClaim() {
	ctx := context.Background()
	u := newTestUser("JDOE5309EXA")
	s.Require().NoError(s.store.Create(ctx, u))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			e := &models.Email{
				ID:        uuid.New(),
				UserID:    u.ID,
				Address:   uuid.NewString() + "@example.com",
				Domain:    "example.com",
				IsPrimary: true,
				CreatedAt: time.Now(),
			}
			err := s.store.AddEmail(ctx, e)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one primary claim should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load())

	emails, err := s.store.ListEmails(ctx, u.ID)
	s.Require().NoError(err)
	primaries := 0
	for _, e := range emails {
		if e.IsPrimary {
			primaries++
		}
	}
	s.Equal(1, primaries)
}

func (s *PostgresStoreSuite) TestFindByVerificationToken() {
	ctx := context.Background()
	u := newTestUser("JDOE5309EXA")
	u.VerificationToken = uuid.NewString()
	s.Require().NoError(s.store.Create(ctx, u))

	found, err := s.store.FindByVerificationToken(ctx, u.VerificationToken)
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)

	_, err = s.store.FindByVerificationToken(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestApprovalRoundTrip() {
	ctx := context.Background()
	u := newTestUser("JDOE5309EXA")
	s.Require().NoError(s.store.Create(ctx, u))

	adminRow := `INSERT INTO admins (admin_id, username, password_hash, admin_type, email)
		VALUES ($1, $2, 'x', 'individual', 'admin@example.com')`
	adminID := domain.NewAdminID()
	_, err := s.postgres.DB.ExecContext(ctx, adminRow, uuid.UUID(adminID), "reviewer-"+uuid.NewString())
	s.Require().NoError(err)

	u.ApplyApproval(adminID, time.Now())
	s.Require().NoError(s.store.Update(ctx, u))

	found, err := s.store.FindByCanonicalID(ctx, u.CanonicalID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)
	s.Require().NotNil(found.ApprovedBy)
	s.Equal(adminID, *found.ApprovedBy)
	s.NotNil(found.ApprovedAt)
}

func (s *PostgresStoreSuite) TestSetPrimaryPhoneSwap() {
	ctx := context.Background()
	u := newTestUser("JDOE5309EXA")
	s.Require().NoError(s.store.Create(ctx, u))

	first := &models.Phone{ID: uuid.New(), UserID: u.ID, Number: "+15550001111", IsPrimary: true, CreatedAt: time.Now()}
	second := &models.Phone{ID: uuid.New(), UserID: u.ID, Number: "+15550002222", CreatedAt: time.Now()}
	s.Require().NoError(s.store.AddPhone(ctx, first))
	s.Require().NoError(s.store.AddPhone(ctx, second))

	s.Require().NoError(s.store.SetPrimaryPhone(ctx, u.ID, second.ID))

	phones, err := s.store.ListPhones(ctx, u.ID)
	s.Require().NoError(err)
	for _, p := range phones {
		s.Equal(p.ID == second.ID, p.IsPrimary)
	}
}

func (s *PostgresStoreSuite) TestListByStatusPagination() {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		u := newTestUser("PAGE000" + string(rune('0'+i)) + "TST")
		u.RequestDate = time.Now().Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Create(ctx, u))
	}

	page1, err := s.store.ListByStatus(ctx, models.StatusPending, 2, 0)
	s.Require().NoError(err)
	s.Len(page1, 2)

	page3, err := s.store.ListByStatus(ctx, models.StatusPending, 2, 4)
	s.Require().NoError(err)
	s.Len(page3, 1)

	count, err := s.store.CountByStatus(ctx, models.StatusPending)
	s.Require().NoError(err)
	s.Equal(5, count)
}

func (s *PostgresStoreSuite) TestUpdateNotFound() {
	ctx := context.Background()
	u := newTestUser("GHOST001TST")
	err := s.store.Update(ctx, u)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
