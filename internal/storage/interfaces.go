package storage

import (
	"context"

	"solana-trade-engine/internal/domain"
)

// ModelStore persists learning model state.
type ModelStore interface {
	// SaveModel stores the model state. Idempotent overwrite: the latest
	// save wins.
	SaveModel(ctx context.Context, state *domain.ModelState) error

	// LoadModel retrieves the last saved state. Returns ErrNotFound if
	// no state has ever been saved.
	LoadModel(ctx context.Context) (*domain.ModelState, error)
}

// OutcomeStore persists trade outcomes append-only.
type OutcomeStore interface {
	// AppendOutcome adds an outcome. Returns ErrDuplicateKey if the
	// outcome id already exists. Outcomes are never updated.
	AppendOutcome(ctx context.Context, o *domain.TradeOutcome) error

	// LoadOutcomes retrieves up to limit outcomes ordered by close time,
	// most recent last. limit <= 0 means no limit.
	LoadOutcomes(ctx context.Context, limit int) ([]*domain.TradeOutcome, error)
}
