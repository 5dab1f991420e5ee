package apikey

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dataregistry/internal/apikey/models"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/sentinel"
)

// MemoryStore is an in-memory implementation for unit tests, mirroring
// the Postgres store's sentinel errors.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   map[domain.APIKeyID]*models.APIKey
	byHash map[string]domain.APIKeyID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[domain.APIKeyID]*models.APIKey),
		byHash: make(map[string]domain.APIKeyID),
	}
}

func (s *MemoryStore) Create(_ context.Context, k *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[k.KeyHash]; ok {
		return fmt.Errorf("create api key: %w", sentinel.ErrAlreadyUsed)
	}
	clone := *k
	s.keys[k.ID] = &clone
	s.byHash[k.KeyHash] = k.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, keyID domain.APIKeyID) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("find api key: %w", sentinel.ErrNotFound)
	}
	clone := *k
	return &clone, nil
}

func (s *MemoryStore) FindByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keyID, ok := s.byHash[keyHash]
	if !ok {
		return nil, fmt.Errorf("find api key: %w", sentinel.ErrNotFound)
	}
	clone := *s.keys[keyID]
	return &clone, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*models.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		clone := *k
		keys = append(keys, &clone)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) TouchLastUsed(_ context.Context, keyID domain.APIKeyID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return fmt.Errorf("touch api key: %w", sentinel.ErrNotFound)
	}
	stamp := at
	k.LastUsed = &stamp
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, keyID domain.APIKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return fmt.Errorf("revoke api key: %w", sentinel.ErrNotFound)
	}
	k.IsActive = false
	return nil
}
