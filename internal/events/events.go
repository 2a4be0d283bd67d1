// Package events publishes position lifecycle and model update events
// to Kafka for downstream consumers.
package events

import (
	"solana-trade-engine/internal/domain"
)

// Type identifies an event on the wire.
type Type string

// Event types.
const (
	TypePositionOpened Type = "POSITION_OPENED"
	TypePositionTick   Type = "POSITION_TICK"
	TypeExitTriggered  Type = "EXIT_TRIGGERED"
	TypePositionClosed Type = "POSITION_CLOSED"
	TypeModelUpdated   Type = "MODEL_UPDATED"
)

// Event is the JSON payload published per message. Messages are keyed
// by token address so per-token ordering survives partitioning; model
// updates use a fixed key.
type Event struct {
	Type         Type                 `json:"type"`
	TokenAddress string               `json:"token_address,omitempty"`
	Position     *domain.Position     `json:"position,omitempty"`
	Outcome      *domain.TradeOutcome `json:"outcome,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	Model        *domain.ModelState   `json:"model,omitempty"`
	EmittedAtMs  int64                `json:"emitted_at_ms"`
}
