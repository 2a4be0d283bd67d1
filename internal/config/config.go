// Package config loads the engine configuration from YAML with
// defaults and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"solana-trade-engine/internal/domain"
)

var validate = validator.New()

// Config is the full engine configuration.
type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`

	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Pretty bool   `yaml:"pretty" default:"false"`
	} `yaml:"logging"`

	Trading domain.TradingConfig `yaml:"trading"`

	Feed struct {
		// Mode selects the tick source: a live WebSocket endpoint or the
		// seeded simulated walk.
		Mode     string `yaml:"mode" default:"sim" validate:"oneof=ws sim"`
		Endpoint string `yaml:"endpoint" validate:"required_if=Mode ws"`

		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"1s"`
		MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"30s"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"30s"`
		ReadTimeout       time.Duration `yaml:"read_timeout" default:"60s"`
		WriteTimeout      time.Duration `yaml:"write_timeout" default:"10s"`

		Sim struct {
			Seed          int64         `yaml:"seed" default:"1"`
			TickInterval  time.Duration `yaml:"tick_interval" default:"1s"`
			InitialPrice  float64       `yaml:"initial_price" default:"1.0"`
			VolatilityPct float64       `yaml:"volatility_pct" default:"5"`
			DriftPct      float64       `yaml:"drift_pct" default:"0"`
		} `yaml:"sim"`
	} `yaml:"feed"`

	Postgres struct {
		Enabled bool   `yaml:"enabled" default:"false"`
		DSN     string `yaml:"dsn" validate:"required_if=Enabled true"`
	} `yaml:"postgres"`

	ClickHouse struct {
		Enabled bool   `yaml:"enabled" default:"false"`
		DSN     string `yaml:"dsn" validate:"required_if=Enabled true"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled" default:"false"`
		Addr     string `yaml:"addr" validate:"required_if=Enabled true"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" default:"0"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled        bool          `yaml:"enabled" default:"false"`
		Brokers        []string      `yaml:"brokers" validate:"required_if=Enabled true"`
		Topic          string        `yaml:"topic" default:"trade-events"`
		PublishTicks   bool          `yaml:"publish_ticks" default:"false"`
		PublishTimeout time.Duration `yaml:"publish_timeout" default:"10s"`
	} `yaml:"kafka"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Addr    string `yaml:"addr" default:":9100"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Jobs struct {
		// Cron expressions, standard five-field format.
		ModelSnapshot string `yaml:"model_snapshot" default:"*/15 * * * *"`
		DailySummary  string `yaml:"daily_summary" default:"0 0 * * *"`
	} `yaml:"jobs"`
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse defaults and validates raw YAML configuration bytes.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if c.Trading.YellowThreshold > c.Trading.GreenThreshold {
		return nil, fmt.Errorf("validate config: yellow_threshold %v exceeds green_threshold %v",
			c.Trading.YellowThreshold, c.Trading.GreenThreshold)
	}

	return &c, nil
}

// Default returns the configuration with every field at its default.
func Default() (*Config, error) {
	return Parse([]byte("{}"))
}
