package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"dataregistry/internal/user/models"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
)

// MemoryStore is an in-memory implementation for unit tests. It mirrors
// the Postgres store's sentinel errors, including the exclusion
// constraint behavior on primary flags.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[domain.UserID]*models.User
	canonical map[domain.CanonicalID]domain.UserID
	emails    map[domain.UserID][]models.Email
	phones    map[domain.UserID][]models.Phone
	addresses map[domain.UserID][]models.Address
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:     make(map[domain.UserID]*models.User),
		canonical: make(map[domain.CanonicalID]domain.UserID),
		emails:    make(map[domain.UserID][]models.Email),
		phones:    make(map[domain.UserID][]models.Phone),
		addresses: make(map[domain.UserID][]models.Address),
	}
}

func (s *MemoryStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canonical[u.CanonicalID]; ok {
		return fmt.Errorf("create user: %w", sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("create user: %w", sentinel.ErrAlreadyUsed)
	}
	clone := *u
	s.users[u.ID] = &clone
	s.canonical[u.CanonicalID] = u.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, userID domain.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("find user: %w", sentinel.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryStore) FindByCanonicalID(_ context.Context, canonicalID domain.CanonicalID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.canonical[canonicalID]
	if !ok {
		return nil, fmt.Errorf("find user: %w", sentinel.ErrNotFound)
	}
	clone := *s.users[userID]
	return &clone, nil
}

func (s *MemoryStore) FindByVerificationToken(_ context.Context, token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token == "" {
		return nil, fmt.Errorf("find user: %w", sentinel.ErrNotFound)
	}
	for _, u := range s.users {
		if u.VerificationToken == token {
			clone := *u
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("find user: %w", sentinel.ErrNotFound)
}

func (s *MemoryStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("update user: %w", sentinel.ErrNotFound)
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.Status, limit, offset int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.User
	for _, u := range s.users {
		if u.Status == status {
			clone := *u
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

func (s *MemoryStore) Search(_ context.Context, q string, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(q)
	var matched []*models.User
	for _, u := range s.users {
		if u.Status != models.StatusApproved {
			continue
		}
		name := strings.ToLower(u.FirstName + " " + u.LastName)
		hit := strings.Contains(name, needle) ||
			strings.Contains(strings.ToLower(u.CanonicalID.String()), needle)
		if !hit {
			for _, e := range s.emails[u.ID] {
				if strings.Contains(strings.ToLower(e.Address), needle) {
					hit = true
					break
				}
			}
		}
		if hit {
			clone := *u
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

func (s *MemoryStore) CountByStatus(_ context.Context, status models.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, u := range s.users {
		if u.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) AddEmail(_ context.Context, e *models.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.emails[e.UserID] {
		if existing.Address == e.Address {
			return fmt.Errorf("add user email: %w", sentinel.ErrAlreadyUsed)
		}
		if e.IsPrimary && existing.IsPrimary {
			return fmt.Errorf("add user email: %w", sentinel.ErrConflict)
		}
	}
	s.emails[e.UserID] = append(s.emails[e.UserID], *e)
	return nil
}

func (s *MemoryStore) AddPhone(_ context.Context, p *models.Phone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.phones[p.UserID] {
		if existing.Number == p.Number {
			return fmt.Errorf("add user phone: %w", sentinel.ErrAlreadyUsed)
		}
		if p.IsPrimary && existing.IsPrimary {
			return fmt.Errorf("add user phone: %w", sentinel.ErrConflict)
		}
	}
	s.phones[p.UserID] = append(s.phones[p.UserID], *p)
	return nil
}

func (s *MemoryStore) AddAddress(_ context.Context, a *models.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.addresses[a.UserID] {
		if a.IsPrimary && existing.IsPrimary {
			return fmt.Errorf("add user address: %w", sentinel.ErrConflict)
		}
	}
	s.addresses[a.UserID] = append(s.addresses[a.UserID], *a)
	return nil
}

func (s *MemoryStore) ListEmails(_ context.Context, userID domain.UserID) ([]models.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Email{}, s.emails[userID]...), nil
}

func (s *MemoryStore) ListPhones(_ context.Context, userID domain.UserID) ([]models.Phone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Phone{}, s.phones[userID]...), nil
}

func (s *MemoryStore) ListAddresses(_ context.Context, userID domain.UserID) ([]models.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Address{}, s.addresses[userID]...), nil
}

func (s *MemoryStore) SetPrimaryEmail(_ context.Context, userID domain.UserID, emailID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emails := s.emails[userID]
	found := false
	for i := range emails {
		if emails[i].ID == emailID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("promote primary email: %w", sentinel.ErrNotFound)
	}
	for i := range emails {
		emails[i].IsPrimary = emails[i].ID == emailID
	}
	return nil
}

func (s *MemoryStore) SetPrimaryPhone(_ context.Context, userID domain.UserID, phoneID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	phones := s.phones[userID]
	found := false
	for i := range phones {
		if phones[i].ID == phoneID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("promote primary phone: %w", sentinel.ErrNotFound)
	}
	for i := range phones {
		phones[i].IsPrimary = phones[i].ID == phoneID
	}
	return nil
}

func (s *MemoryStore) SetPrimaryAddress(_ context.Context, userID domain.UserID, addressID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addresses := s.addresses[userID]
	found := false
	for i := range addresses {
		if addresses[i].ID == addressID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("promote primary address: %w", sentinel.ErrNotFound)
	}
	for i := range addresses {
		addresses[i].IsPrimary = addresses[i].ID == addressID
	}
	return nil
}
