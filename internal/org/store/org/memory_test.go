package org

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dataregistry/internal/org/models"
	usermodels "dataregistry/internal/user/models"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func newTestOrg(canonicalID string) *models.Organization {
	now := time.Now()
	return &models.Organization{
		ID:          domain.NewOrgID(),
		CanonicalID: domain.CanonicalID(canonicalID),
		Name:        "Acme Widgets",
		Type:        "corporation",
		Status:      usermodels.StatusPending,
		RequestDate: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *MemoryStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	o := newTestOrg("ORG-ACMEWI5432ACM")

	s.Require().NoError(s.store.Create(ctx, o))

	byID, err := s.store.FindByID(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.CanonicalID, byID.CanonicalID)

	byCanonical, err := s.store.FindByCanonicalID(ctx, o.CanonicalID)
	s.Require().NoError(err)
	s.Equal(o.ID, byCanonical.ID)
}

func (s *MemoryStoreSuite) TestCreateDuplicateCanonicalID() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestOrg("ORG-ACMEWI5432ACM")))

	err := s.store.Create(ctx, newTestOrg("ORG-ACMEWI5432ACM"))
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *MemoryStoreSuite) TestFindUnknown() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, domain.NewOrgID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByCanonicalID(ctx, "ORG-NOPE")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestVerificationTokenRoundTrip() {
	ctx := context.Background()
	o := newTestOrg("ORG-ACMEWI5432ACM")
	o.VerificationToken = "tok-123"
	s.Require().NoError(s.store.Create(ctx, o))

	found, err := s.store.FindByVerificationToken(ctx, "tok-123")
	s.Require().NoError(err)
	s.Equal(o.ID, found.ID)

	found.IsVerified = true
	found.VerificationToken = ""
	s.Require().NoError(s.store.Update(ctx, found))

	_, err = s.store.FindByVerificationToken(ctx, "tok-123")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpdateUnknown() {
	err := s.store.Update(context.Background(), newTestOrg("ORG-GHOST"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestListByStatusOrdering() {
	ctx := context.Background()
	first := newTestOrg("ORG-AAAAAA0001AAA")
	first.RequestDate = time.Now().Add(-time.Hour)
	second := newTestOrg("ORG-BBBBBB0002BBB")
	second.RequestDate = time.Now()

	s.Require().NoError(s.store.Create(ctx, second))
	s.Require().NoError(s.store.Create(ctx, first))

	pending, err := s.store.ListByStatus(ctx, usermodels.StatusPending, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)

	count, err := s.store.CountByStatus(ctx, usermodels.StatusPending)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *MemoryStoreSuite) TestSecondPrimaryEmailConflicts() {
	ctx := context.Background()
	o := newTestOrg("ORG-ACMEWI5432ACM")
	s.Require().NoError(s.store.Create(ctx, o))

	s.Require().NoError(s.store.AddEmail(ctx, &models.Email{
		ID: uuid.New(), OrgID: o.ID, Address: "ops@acme.com", IsPrimary: true,
	}))

	err := s.store.AddEmail(ctx, &models.Email{
		ID: uuid.New(), OrgID: o.ID, Address: "billing@acme.com", IsPrimary: true,
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestDuplicateMember() {
	ctx := context.Background()
	o := newTestOrg("ORG-ACMEWI5432ACM")
	s.Require().NoError(s.store.Create(ctx, o))

	userID := domain.NewUserID()
	s.Require().NoError(s.store.AddMember(ctx, &models.Member{
		OrgID: o.ID, UserID: userID, Role: "director", AddedAt: time.Now(),
	}))

	err := s.store.AddMember(ctx, &models.Member{
		OrgID: o.ID, UserID: userID, Role: "treasurer", AddedAt: time.Now(),
	})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *MemoryStoreSuite) TestSetPrimaryContactSwap() {
	ctx := context.Background()
	o := newTestOrg("ORG-ACMEWI5432ACM")
	s.Require().NoError(s.store.Create(ctx, o))

	alice := domain.NewUserID()
	bob := domain.NewUserID()
	s.Require().NoError(s.store.AddMember(ctx, &models.Member{
		OrgID: o.ID, UserID: alice, Role: "director", AddedAt: time.Now(),
	}))
	s.Require().NoError(s.store.AddMember(ctx, &models.Member{
		OrgID: o.ID, UserID: bob, Role: "secretary", AddedAt: time.Now(),
	}))

	s.Require().NoError(s.store.SetPrimaryContact(ctx, o.ID, alice))
	s.Require().NoError(s.store.SetPrimaryContact(ctx, o.ID, bob))

	members, err := s.store.ListMembers(ctx, o.ID)
	s.Require().NoError(err)

	var primaries []domain.UserID
	for _, m := range members {
		if m.IsPrimary {
			primaries = append(primaries, m.UserID)
		}
	}
	s.Require().Len(primaries, 1)
	s.Equal(bob, primaries[0])
}

func (s *MemoryStoreSuite) TestSetPrimaryContactUnknownMember() {
	ctx := context.Background()
	o := newTestOrg("ORG-ACMEWI5432ACM")
	s.Require().NoError(s.store.Create(ctx, o))

	err := s.store.SetPrimaryContact(ctx, o.ID, domain.NewUserID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
