package org

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dataregistry/internal/org/models"
	usermodels "dataregistry/internal/user/models"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
)

// MemoryStore is an in-memory implementation for unit tests, mirroring
// the Postgres store's sentinel errors.
type MemoryStore struct {
	mu        sync.RWMutex
	orgs      map[domain.OrgID]*models.Organization
	canonical map[domain.CanonicalID]domain.OrgID
	emails    map[domain.OrgID][]models.Email
	phones    map[domain.OrgID][]models.Phone
	members   map[domain.OrgID][]models.Member
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		orgs:      make(map[domain.OrgID]*models.Organization),
		canonical: make(map[domain.CanonicalID]domain.OrgID),
		emails:    make(map[domain.OrgID][]models.Email),
		phones:    make(map[domain.OrgID][]models.Phone),
		members:   make(map[domain.OrgID][]models.Member),
	}
}

func (s *MemoryStore) Create(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canonical[o.CanonicalID]; ok {
		return fmt.Errorf("create organization: %w", sentinel.ErrAlreadyUsed)
	}
	clone := *o
	s.orgs[o.ID] = &clone
	s.canonical[o.CanonicalID] = o.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, orgID domain.OrgID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("find organization: %w", sentinel.ErrNotFound)
	}
	clone := *o
	return &clone, nil
}

func (s *MemoryStore) FindByCanonicalID(_ context.Context, canonicalID domain.CanonicalID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgID, ok := s.canonical[canonicalID]
	if !ok {
		return nil, fmt.Errorf("find organization: %w", sentinel.ErrNotFound)
	}
	clone := *s.orgs[orgID]
	return &clone, nil
}

func (s *MemoryStore) FindByVerificationToken(_ context.Context, token string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token == "" {
		return nil, fmt.Errorf("find organization: %w", sentinel.ErrNotFound)
	}
	for _, o := range s.orgs {
		if o.VerificationToken == token {
			clone := *o
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("find organization: %w", sentinel.ErrNotFound)
}

func (s *MemoryStore) Update(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[o.ID]; !ok {
		return fmt.Errorf("update organization: %w", sentinel.ErrNotFound)
	}
	clone := *o
	s.orgs[o.ID] = &clone
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status usermodels.Status, limit, offset int) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Organization
	for _, o := range s.orgs {
		if o.Status == status {
			clone := *o
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RequestDate.Before(matched[j].RequestDate)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Search(_ context.Context, q string, limit int) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(q)
	var matched []*models.Organization
	for _, o := range s.orgs {
		if o.Status != usermodels.StatusApproved {
			continue
		}
		hit := strings.Contains(strings.ToLower(o.Name), needle) ||
			strings.Contains(strings.ToLower(string(o.CanonicalID)), needle)
		if !hit {
			for _, e := range s.emails[o.ID] {
				if strings.Contains(strings.ToLower(e.Address), needle) {
					hit = true
					break
				}
			}
		}
		if hit {
			clone := *o
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CanonicalID < matched[j].CanonicalID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, status usermodels.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, o := range s.orgs {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) AddEmail(_ context.Context, e *models.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.emails[e.OrgID] {
		if existing.Address == e.Address {
			return fmt.Errorf("add organization email: %w", sentinel.ErrAlreadyUsed)
		}
		if e.IsPrimary && existing.IsPrimary {
			return fmt.Errorf("add organization email: %w", sentinel.ErrConflict)
		}
	}
	s.emails[e.OrgID] = append(s.emails[e.OrgID], *e)
	return nil
}

func (s *MemoryStore) AddPhone(_ context.Context, p *models.Phone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.phones[p.OrgID] {
		if existing.Number == p.Number {
			return fmt.Errorf("add organization phone: %w", sentinel.ErrAlreadyUsed)
		}
		if p.IsPrimary && existing.IsPrimary {
			return fmt.Errorf("add organization phone: %w", sentinel.ErrConflict)
		}
	}
	s.phones[p.OrgID] = append(s.phones[p.OrgID], *p)
	return nil
}

func (s *MemoryStore) ListEmails(_ context.Context, orgID domain.OrgID) ([]models.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Email{}, s.emails[orgID]...), nil
}

func (s *MemoryStore) ListPhones(_ context.Context, orgID domain.OrgID) ([]models.Phone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Phone{}, s.phones[orgID]...), nil
}

func (s *MemoryStore) AddMember(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members[m.OrgID] {
		if existing.UserID == m.UserID {
			return fmt.Errorf("add organization member: %w", sentinel.ErrAlreadyUsed)
		}
		if m.IsPrimary && existing.IsPrimary {
			return fmt.Errorf("add organization member: %w", sentinel.ErrConflict)
		}
	}
	s.members[m.OrgID] = append(s.members[m.OrgID], *m)
	return nil
}

func (s *MemoryStore) ListMembers(_ context.Context, orgID domain.OrgID) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Member{}, s.members[orgID]...), nil
}

func (s *MemoryStore) SetPrimaryContact(_ context.Context, orgID domain.OrgID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.members[orgID]
	found := false
	for i := range members {
		if members[i].UserID == userID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("promote primary contact: %w", sentinel.ErrNotFound)
	}
	for i := range members {
		members[i].IsPrimary = members[i].UserID == userID
	}
	return nil
}
