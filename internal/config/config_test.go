package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	if c.Environment != "development" {
		t.Errorf("expected development environment, got %s", c.Environment)
	}
	if c.Trading.GreenThreshold != 75 {
		t.Errorf("expected green threshold 75, got %v", c.Trading.GreenThreshold)
	}
	if c.Trading.YellowThreshold != 50 {
		t.Errorf("expected yellow threshold 50, got %v", c.Trading.YellowThreshold)
	}
	if c.Trading.MaxPositions != 5 {
		t.Errorf("expected max positions 5, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.LearningRate != 0.1 {
		t.Errorf("expected learning rate 0.1, got %v", c.Trading.LearningRate)
	}
	if c.Trading.InitialBalanceUsd != 10000 {
		t.Errorf("expected initial balance 10000, got %v", c.Trading.InitialBalanceUsd)
	}
	if !c.Trading.TrailingStopEnabled {
		t.Error("expected trailing stop enabled by default")
	}
	if c.Feed.Mode != "sim" {
		t.Errorf("expected sim feed by default, got %s", c.Feed.Mode)
	}
	if c.Jobs.ModelSnapshot == "" || c.Jobs.DailySummary == "" {
		t.Error("expected default cron expressions")
	}
}

func TestParse_OverridesKeepDefaults(t *testing.T) {
	raw := `
trading:
  green_threshold: 80
  max_positions: 3
feed:
  mode: ws
  endpoint: wss://example.com/prices
`
	c, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.Trading.GreenThreshold != 80 {
		t.Errorf("expected overridden green threshold 80, got %v", c.Trading.GreenThreshold)
	}
	if c.Trading.MaxPositions != 3 {
		t.Errorf("expected overridden max positions 3, got %d", c.Trading.MaxPositions)
	}
	// Untouched fields keep their defaults.
	if c.Trading.StopLossPct != 20 {
		t.Errorf("expected default stop loss 20, got %v", c.Trading.StopLossPct)
	}
	if c.Feed.Endpoint != "wss://example.com/prices" {
		t.Errorf("unexpected endpoint %s", c.Feed.Endpoint)
	}
}

func TestParse_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"ws mode without endpoint", "feed:\n  mode: ws\n"},
		{"green threshold above 100", "trading:\n  green_threshold: 150\n"},
		{"zero max positions", "trading:\n  max_positions: -1\n"},
		{"learning rate of one", "trading:\n  learning_rate: 1\n"},
		{"unknown environment", "environment: prod\n"},
		{"yellow above green", "trading:\n  green_threshold: 60\n  yellow_threshold: 70\n"},
		{"postgres enabled without dsn", "postgres:\n  enabled: true\n"},
		{"kafka enabled without brokers", "kafka:\n  enabled: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err == nil {
				t.Errorf("expected validation error for %q", tc.raw)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("trading: [not a map")); err == nil {
		t.Error("expected parse error for malformed yaml")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "environment: production\ntrading:\n  max_daily_trades: 10\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Environment != "production" {
		t.Errorf("expected production, got %s", c.Environment)
	}
	if c.Trading.MaxDailyTrades != 10 {
		t.Errorf("expected max daily trades 10, got %d", c.Trading.MaxDailyTrades)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}
