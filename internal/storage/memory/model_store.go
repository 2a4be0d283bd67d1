package memory

import (
	"context"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// ModelStore is an in-memory implementation of storage.ModelStore.
type ModelStore struct {
	mu    sync.RWMutex
	state *domain.ModelState
}

// NewModelStore creates a new in-memory model store.
func NewModelStore() *ModelStore {
	return &ModelStore{}
}

// SaveModel stores the model state, overwriting any previous state.
func (s *ModelStore) SaveModel(_ context.Context, state *domain.ModelState) error {
	if state == nil || state.Weights == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state.Clone()
	return nil
}

// LoadModel retrieves the last saved state. Returns ErrNotFound if no
// state has ever been saved.
func (s *ModelStore) LoadModel(_ context.Context) (*domain.ModelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	return s.state.Clone(), nil
}

var _ storage.ModelStore = (*ModelStore)(nil)
