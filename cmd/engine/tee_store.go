package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// teeModelStore fans writes out to every backend and reads from the
// first that has data. The first store is the source of truth; mirror
// failures are logged, not propagated.
type teeModelStore struct {
	stores []storage.ModelStore
	log    zerolog.Logger
}

func newTeeModelStore(stores []storage.ModelStore, log zerolog.Logger) *teeModelStore {
	return &teeModelStore{stores: stores, log: log}
}

var _ storage.ModelStore = (*teeModelStore)(nil)

func (t *teeModelStore) SaveModel(ctx context.Context, state *domain.ModelState) error {
	if err := t.stores[0].SaveModel(ctx, state); err != nil {
		return err
	}
	for _, s := range t.stores[1:] {
		if err := s.SaveModel(ctx, state); err != nil {
			t.log.Warn().Err(err).Msg("mirror model save failed")
		}
	}
	return nil
}

func (t *teeModelStore) LoadModel(ctx context.Context) (*domain.ModelState, error) {
	var lastErr error
	for _, s := range t.stores {
		state, err := s.LoadModel(ctx)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// teeOutcomeStore appends to every backend and reads from the first.
// A duplicate in a mirror is expected after a partial retry.
type teeOutcomeStore struct {
	stores []storage.OutcomeStore
	log    zerolog.Logger
}

func newTeeOutcomeStore(stores []storage.OutcomeStore, log zerolog.Logger) *teeOutcomeStore {
	return &teeOutcomeStore{stores: stores, log: log}
}

var _ storage.OutcomeStore = (*teeOutcomeStore)(nil)

func (t *teeOutcomeStore) AppendOutcome(ctx context.Context, outcome *domain.TradeOutcome) error {
	if err := t.stores[0].AppendOutcome(ctx, outcome); err != nil {
		return err
	}
	for _, s := range t.stores[1:] {
		err := s.AppendOutcome(ctx, outcome)
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			t.log.Warn().Err(err).Str("outcome_id", outcome.OutcomeID).Msg("mirror outcome append failed")
		}
	}
	return nil
}

func (t *teeOutcomeStore) LoadOutcomes(ctx context.Context, limit int) ([]*domain.TradeOutcome, error) {
	outcomes, err := t.stores[0].LoadOutcomes(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	return outcomes, nil
}
