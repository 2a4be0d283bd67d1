// Package catalog tracks the token snapshots known to the engine.
package catalog

import (
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage"
)

// TokenCatalog stores the latest snapshot per token address.
type TokenCatalog interface {
	// Upsert stores the snapshot, replacing any previous snapshot for
	// the same address. Fails ErrInvalidInput for malformed addresses.
	Upsert(snapshot *domain.TokenSnapshot) error

	// Get returns the latest snapshot for the address, or ErrNotFound.
	Get(address string) (*domain.TokenSnapshot, error)

	// List returns all known snapshots in unspecified order.
	List() []*domain.TokenSnapshot
}

// validateSnapshot rejects snapshots the scorer cannot price.
func validateSnapshot(s *domain.TokenSnapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", storage.ErrInvalidInput)
	}
	if err := solana.ValidateAddress(s.Address); err != nil {
		return fmt.Errorf("%w: address %q: %v", storage.ErrInvalidInput, s.Address, err)
	}
	if s.PriceUsd < 0 || s.LiquidityUsd < 0 || s.Volume24hUsd < 0 {
		return fmt.Errorf("%w: negative market fields", storage.ErrInvalidInput)
	}
	return nil
}
