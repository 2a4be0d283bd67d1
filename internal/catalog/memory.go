package catalog

import (
	"fmt"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// MemoryCatalog is an in-memory TokenCatalog safe for concurrent use.
type MemoryCatalog struct {
	mu     sync.RWMutex
	tokens map[string]*domain.TokenSnapshot
}

var _ TokenCatalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		tokens: make(map[string]*domain.TokenSnapshot),
	}
}

// Upsert stores the snapshot, replacing any previous one for the address.
func (c *MemoryCatalog) Upsert(snapshot *domain.TokenSnapshot) error {
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *snapshot
	c.tokens[snapshot.Address] = &stored
	return nil
}

// Get returns a copy of the latest snapshot for the address.
func (c *MemoryCatalog) Get(address string) (*domain.TokenSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, exists := c.tokens[address]
	if !exists {
		return nil, fmt.Errorf("%w: token %s", storage.ErrNotFound, address)
	}
	result := *s
	return &result, nil
}

// List returns copies of all known snapshots.
func (c *MemoryCatalog) List() []*domain.TokenSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*domain.TokenSnapshot, 0, len(c.tokens))
	for _, s := range c.tokens {
		snapshot := *s
		result = append(result, &snapshot)
	}
	return result
}
