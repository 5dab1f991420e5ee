package admin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dataregistry/internal/admin/models"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
)

// MemoryStore is an in-memory implementation for unit tests, mirroring
// the Postgres store's sentinel errors.
type MemoryStore struct {
	mu       sync.RWMutex
	admins   map[domain.AdminID]*models.Admin
	username map[string]domain.AdminID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		admins:   make(map[domain.AdminID]*models.Admin),
		username: make(map[string]domain.AdminID),
	}
}

func (s *MemoryStore) Create(_ context.Context, a *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.username[a.Username]; ok {
		return fmt.Errorf("create admin: %w", sentinel.ErrAlreadyUsed)
	}
	clone := *a
	s.admins[a.ID] = &clone
	s.username[a.Username] = a.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, adminID domain.AdminID) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[adminID]
	if !ok {
		return nil, fmt.Errorf("find admin: %w", sentinel.ErrNotFound)
	}
	clone := *a
	return &clone, nil
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adminID, ok := s.username[username]
	if !ok {
		return nil, fmt.Errorf("find admin: %w", sentinel.ErrNotFound)
	}
	clone := *s.admins[adminID]
	return &clone, nil
}

func (s *MemoryStore) RecordLogin(_ context.Context, adminID domain.AdminID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[adminID]
	if !ok {
		return fmt.Errorf("record admin login: %w", sentinel.ErrNotFound)
	}
	stamp := at
	a.LastLogin = &stamp
	return nil
}
