package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// defaultModelID keys the single model row. The schema allows several
// models side by side; the engine runs one.
const defaultModelID = "default"

// ModelStore implements storage.ModelStore using PostgreSQL.
type ModelStore struct {
	pool    *Pool
	modelID string
}

// NewModelStore creates a new ModelStore.
func NewModelStore(pool *Pool) *ModelStore {
	return &ModelStore{pool: pool, modelID: defaultModelID}
}

// Compile-time interface check.
var _ storage.ModelStore = (*ModelStore)(nil)

// SaveModel upserts the model state. The latest save wins.
func (s *ModelStore) SaveModel(ctx context.Context, state *domain.ModelState) error {
	if state == nil {
		return fmt.Errorf("%w: nil model state", storage.ErrInvalidInput)
	}

	weights, err := json.Marshal(state.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}

	query := `
		INSERT INTO model_state (
			model_id, weights,
			min_liquidity_usd, min_holders, min_volume_24h_usd,
			total_trades, winning_trades, losing_trades,
			average_win_pct, average_loss_pct, win_rate,
			updated_at_ms
		) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12
		)
		ON CONFLICT (model_id) DO UPDATE SET
			weights            = EXCLUDED.weights,
			min_liquidity_usd  = EXCLUDED.min_liquidity_usd,
			min_holders        = EXCLUDED.min_holders,
			min_volume_24h_usd = EXCLUDED.min_volume_24h_usd,
			total_trades       = EXCLUDED.total_trades,
			winning_trades     = EXCLUDED.winning_trades,
			losing_trades      = EXCLUDED.losing_trades,
			average_win_pct    = EXCLUDED.average_win_pct,
			average_loss_pct   = EXCLUDED.average_loss_pct,
			win_rate           = EXCLUDED.win_rate,
			updated_at_ms      = EXCLUDED.updated_at_ms
	`

	_, err = s.pool.Exec(ctx, query,
		s.modelID, weights,
		state.Thresholds.MinLiquidityUsd, state.Thresholds.MinHolders, state.Thresholds.MinVolume24hUsd,
		state.Counters.TotalTrades, state.Counters.WinningTrades, state.Counters.LosingTrades,
		state.Counters.AverageWinPct, state.Counters.AverageLossPct, state.Counters.WinRate,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert model state: %w", err)
	}
	return nil
}

// LoadModel retrieves the last saved state, ErrNotFound when none.
func (s *ModelStore) LoadModel(ctx context.Context) (*domain.ModelState, error) {
	query := `
		SELECT
			weights,
			min_liquidity_usd, min_holders, min_volume_24h_usd,
			total_trades, winning_trades, losing_trades,
			average_win_pct, average_loss_pct, win_rate,
			updated_at_ms
		FROM model_state
		WHERE model_id = $1
	`

	var (
		weights []byte
		state   domain.ModelState
	)
	err := s.pool.QueryRow(ctx, query, s.modelID).Scan(
		&weights,
		&state.Thresholds.MinLiquidityUsd, &state.Thresholds.MinHolders, &state.Thresholds.MinVolume24hUsd,
		&state.Counters.TotalTrades, &state.Counters.WinningTrades, &state.Counters.LosingTrades,
		&state.Counters.AverageWinPct, &state.Counters.AverageLossPct, &state.Counters.WinRate,
		&state.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load model state: %w", err)
	}

	if err := json.Unmarshal(weights, &state.Weights); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	return &state, nil
}
