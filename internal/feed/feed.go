// Package feed delivers price ticks for subscribed tokens.
package feed

// Tick is one observed price for a token.
type Tick struct {
	TokenAddress string  `json:"token_address"`
	Price        float64 `json:"price"`
	TimestampMs  int64   `json:"timestamp_ms"`
}

// Handler receives ticks for one subscription. Handlers for the same
// token are invoked sequentially in tick order.
type Handler func(Tick)

// PriceFeed is a source of price ticks.
type PriceFeed interface {
	// Subscribe registers a handler for the token's ticks. The returned
	// function cancels the subscription.
	Subscribe(tokenAddress string, h Handler) (unsubscribe func(), err error)

	// Close stops the feed and releases resources.
	Close() error
}
