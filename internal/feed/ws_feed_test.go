package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer keeps the connection open and discards client messages.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSFeed_Connect(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	f, err := NewWSFeed(context.Background(), wsURL(server), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}
	defer f.Close()

	if f.closed.Load() {
		t.Error("feed should not be closed")
	}
}

func TestWSFeed_SubscribeDeliversTicks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "priceSubscribe" {
			t.Errorf("expected priceSubscribe, got %s", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0] != "tokA" {
			t.Errorf("expected params [tokA], got %v", req.Params)
		}

		resp := wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 777}
		if err := c.WriteJSON(resp); err != nil {
			t.Errorf("write response: %v", err)
			return
		}

		time.Sleep(50 * time.Millisecond)
		sendTick := func(price float64, ts int64) {
			notif := wsNotification{
				JSONRPC: "2.0",
				Method:  "priceNotification",
				Params: &wsNotificationParams{
					Subscription: 777,
					Result: wsNotificationResult{
						Value: wsPriceValue{Address: "tokA", Price: price, TimestampMs: ts},
					},
				},
			}
			if err := c.WriteJSON(notif); err != nil {
				t.Errorf("write notification: %v", err)
			}
		}
		sendTick(1.25, 2000)
		sendTick(1.10, 1000) // stale, must be dropped
		sendTick(1.30, 3000)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	f, err := NewWSFeed(context.Background(), wsURL(server), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}
	defer f.Close()

	ticks := make(chan Tick, 10)
	if _, err := f.Subscribe("tokA", func(tk Tick) { ticks <- tk }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	expect := func(price float64, ts int64) {
		t.Helper()
		select {
		case tk := <-ticks:
			if tk.Price != price || tk.TimestampMs != ts {
				t.Errorf("expected tick %v@%d, got %v@%d", price, ts, tk.Price, tk.TimestampMs)
			}
			if tk.TokenAddress != "tokA" {
				t.Errorf("expected token tokA, got %s", tk.TokenAddress)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for tick")
		}
	}
	expect(1.25, 2000)
	expect(1.30, 3000) // the 1.10@1000 tick was stale

	select {
	case tk := <-ticks:
		t.Fatalf("unexpected extra tick: %+v", tk)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWSFeed_Close(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	f, err := NewWSFeed(context.Background(), wsURL(server), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !f.closed.Load() {
		t.Error("feed should be closed")
	}
	if err := f.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSFeed_SubscribeAfterClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	f, err := NewWSFeed(context.Background(), wsURL(server), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}
	f.Close()

	if _, err := f.Subscribe("tokA", func(Tick) {}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSFeed_CustomConfig(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	config := &WSConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		SubscribeTimeout:  2 * time.Second,
	}

	f, err := NewWSFeed(context.Background(), wsURL(server), config, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSFeed: %v", err)
	}
	defer f.Close()

	if f.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", f.config.PingInterval)
	}
}
