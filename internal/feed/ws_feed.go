package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSConfig configures WebSocket feed behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket feed configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

type wsSubscription struct {
	token   string
	handler Handler
}

// WSFeed streams price ticks over a JSON-RPC WebSocket endpoint. It
// reconnects with exponential backoff and restores active
// subscriptions after reconnect. Ticks older than the last delivered
// tick for a token are dropped, so handlers always see per-token
// timestamps in non-decreasing order even across reconnects.
type WSFeed struct {
	endpoint string
	config   WSConfig
	log      zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription ID to the handler registration
	subs   map[int64]wsSubscription
	subsMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// lastTickMs tracks the newest delivered timestamp per token
	lastTickMs   map[string]int64
	lastTickMsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

var _ PriceFeed = (*WSFeed)(nil)

// NewWSFeed connects to the endpoint and starts the read and ping loops.
func NewWSFeed(ctx context.Context, endpoint string, config *WSConfig, log zerolog.Logger) (*WSFeed, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	f := &WSFeed{
		endpoint:    endpoint,
		config:      cfg,
		log:         log,
		subs:        make(map[int64]wsSubscription),
		pendingSubs: make(map[uint64]chan int64),
		lastTickMs:  make(map[string]int64),
		done:        make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// Subscribe registers a handler for the token's price ticks.
func (f *WSFeed) Subscribe(tokenAddress string, h Handler) (func(), error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("feed closed")
	}

	subID, err := f.subscribeToken(context.Background(), tokenAddress)
	if err != nil {
		return nil, err
	}

	f.subsMu.Lock()
	f.subs[subID] = wsSubscription{token: tokenAddress, handler: h}
	f.subsMu.Unlock()

	unsubscribe := func() {
		f.subsMu.Lock()
		// The ID may have been remapped by a reconnect; drop by token.
		for id, sub := range f.subs {
			if sub.token == tokenAddress {
				delete(f.subs, id)
			}
		}
		f.subsMu.Unlock()

		f.lastTickMsMu.Lock()
		delete(f.lastTickMs, tokenAddress)
		f.lastTickMsMu.Unlock()
	}
	return unsubscribe, nil
}

// subscribeToken sends a priceSubscribe request and waits for the
// server-assigned subscription ID.
func (f *WSFeed) subscribeToken(ctx context.Context, tokenAddress string) (int64, error) {
	reqID := f.requestID.Add(1)

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "priceSubscribe",
		Params:  []interface{}{tokenAddress},
	}

	confirmCh := make(chan int64, 1)
	f.pendingSubsMu.Lock()
	f.pendingSubs[reqID] = confirmCh
	f.pendingSubsMu.Unlock()

	removePending := func() {
		f.pendingSubsMu.Lock()
		delete(f.pendingSubs, reqID)
		f.pendingSubsMu.Unlock()
	}

	f.connMu.Lock()
	if f.conn == nil {
		f.connMu.Unlock()
		removePending()
		return 0, fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	err := f.conn.WriteJSON(req)
	f.connMu.Unlock()

	if err != nil {
		removePending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(f.config.SubscribeTimeout):
		removePending()
		return 0, fmt.Errorf("subscription timeout after %s", f.config.SubscribeTimeout)
	case <-f.done:
		return 0, fmt.Errorf("feed closed")
	case <-ctx.Done():
		removePending()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and stops all loops.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.pendingSubsMu.Lock()
	for id, ch := range f.pendingSubs {
		close(ch)
		delete(f.pendingSubs, id)
	}
	f.pendingSubsMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches ticks to handlers.
func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect dials again after a delay and restores subscriptions.
func (f *WSFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		f.log.Warn().Err(err).Msg("feed reconnect failed, retrying on next read error")
		return
	}

	f.resubscribeAll()
}

// resubscribeAll re-registers every active token after reconnect.
// Server subscription IDs change; handler registrations are remapped.
func (f *WSFeed) resubscribeAll() {
	f.subsMu.RLock()
	active := make(map[int64]wsSubscription, len(f.subs))
	for id, sub := range f.subs {
		active[id] = sub
	}
	f.subsMu.RUnlock()

	for oldID, sub := range active {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := f.subscribeToken(ctx, sub.token)
		cancel()

		if err != nil {
			f.log.Warn().Err(err).Str("token", sub.token).Msg("resubscribe failed")
			continue
		}

		f.subsMu.Lock()
		delete(f.subs, oldID)
		f.subs[newID] = sub
		f.subsMu.Unlock()
	}
}

// handleMessage processes one incoming WebSocket message.
func (f *WSFeed) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		f.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "priceNotification" {
		f.handlePriceNotification(&notif)
		return
	}

	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		f.log.Warn().
			Int("code", errResp.Error.Code).
			Str("message", errResp.Error.Message).
			Msg("feed error response")
	}
}

func (f *WSFeed) handleSubscribeResponse(resp *wsSubscribeResponse) {
	f.pendingSubsMu.Lock()
	ch, ok := f.pendingSubs[resp.ID]
	if ok {
		delete(f.pendingSubs, resp.ID)
	}
	f.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handlePriceNotification delivers a tick to its handler unless it is
// older than a tick already delivered for the token.
func (f *WSFeed) handlePriceNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	subID := notif.Params.Subscription
	value := notif.Params.Result.Value

	f.subsMu.RLock()
	sub, ok := f.subs[subID]
	f.subsMu.RUnlock()
	if !ok {
		return
	}

	tick := Tick{
		TokenAddress: sub.token,
		Price:        value.Price,
		TimestampMs:  value.TimestampMs,
	}

	f.lastTickMsMu.Lock()
	if last, seen := f.lastTickMs[sub.token]; seen && tick.TimestampMs < last {
		f.lastTickMsMu.Unlock()
		return // stale tick, e.g. replayed after reconnect
	}
	f.lastTickMs[sub.token] = tick.TimestampMs
	f.lastTickMsMu.Unlock()

	sub.handler(tick)
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			f.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Value wsPriceValue `json:"value"`
}

type wsPriceValue struct {
	Address     string  `json:"address"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp_ms"`
}
