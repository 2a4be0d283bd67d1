package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// OutcomeStore is an in-memory implementation of storage.OutcomeStore.
type OutcomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeOutcome // keyed by outcome_id
}

// NewOutcomeStore creates a new in-memory outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		data: make(map[string]*domain.TradeOutcome),
	}
}

// AppendOutcome adds an outcome. Returns ErrDuplicateKey if the outcome
// id already exists.
func (s *OutcomeStore) AppendOutcome(_ context.Context, o *domain.TradeOutcome) error {
	if o == nil || o.OutcomeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OutcomeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *o
	s.data[o.OutcomeID] = &copy
	return nil
}

// LoadOutcomes retrieves up to limit outcomes ordered by close time,
// most recent last. limit <= 0 means no limit.
func (s *OutcomeStore) LoadOutcomes(_ context.Context, limit int) ([]*domain.TradeOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TradeOutcome, 0, len(s.data))
	for _, o := range s.data {
		copy := *o
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ClosedAtMs < result[j].ClosedAtMs
	})

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}

	return result, nil
}

var _ storage.OutcomeStore = (*OutcomeStore)(nil)
