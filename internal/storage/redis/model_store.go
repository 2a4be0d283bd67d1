// Package redis implements a low-latency model store on Redis,
// used as a warm-start snapshot between engine restarts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

const defaultModelKey = "trade-engine:model-state"

// Config holds Redis connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// ModelStore implements storage.ModelStore on a single Redis key.
type ModelStore struct {
	client *redis.Client
	key    string
}

// NewModelStore connects to Redis and verifies the connection.
func NewModelStore(ctx context.Context, cfg Config) (*ModelStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &ModelStore{client: client, key: defaultModelKey}, nil
}

// NewModelStoreWithClient wraps an existing client. Used by tests and
// callers that share one connection pool.
func NewModelStoreWithClient(client *redis.Client) *ModelStore {
	return &ModelStore{client: client, key: defaultModelKey}
}

// Compile-time interface check.
var _ storage.ModelStore = (*ModelStore)(nil)

// SaveModel stores the state as JSON. The latest save wins.
func (s *ModelStore) SaveModel(ctx context.Context, state *domain.ModelState) error {
	if state == nil {
		return fmt.Errorf("%w: nil model state", storage.ErrInvalidInput)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal model state: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set model state: %w", err)
	}
	return nil
}

// LoadModel retrieves the last saved state, ErrNotFound when none.
func (s *ModelStore) LoadModel(ctx context.Context) (*domain.ModelState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get model state: %w", err)
	}

	var state domain.ModelState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal model state: %w", err)
	}
	return &state, nil
}

// Close closes the underlying client.
func (s *ModelStore) Close() error {
	return s.client.Close()
}
