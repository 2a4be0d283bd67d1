package domain

// TradingConfig parameterizes the signal, ledger, and auto-trade loop.
// Validated at orchestrator construction; an invalid config is fatal.
type TradingConfig struct {
	// Signal thresholds
	GreenThreshold  float64 `yaml:"green_threshold" default:"75" validate:"gt=0,lte=100"`
	YellowThreshold float64 `yaml:"yellow_threshold" default:"50" validate:"gt=0,lte=100"`

	// Position exits (percentages of entry/peak price)
	StopLossPct         float64 `yaml:"stop_loss_pct" default:"20" validate:"gt=0,lte=100"`
	TakeProfitPct       float64 `yaml:"take_profit_pct" default:"50" validate:"gt=0,lte=100"`
	TrailingStopEnabled bool    `yaml:"trailing_stop_enabled" default:"true"`
	TrailingStopPct     float64 `yaml:"trailing_stop_pct" default:"15" validate:"gt=0,lte=100"`

	// Position limits
	MaxPositions        int     `yaml:"max_positions" default:"5" validate:"gte=1"`
	MaxPositionSizeUsd  float64 `yaml:"max_position_size_usd" default:"500" validate:"gt=0"`
	MaxPositionFraction float64 `yaml:"max_position_fraction" default:"0.1" validate:"gt=0,lte=1"`
	MaxDailyTrades      int     `yaml:"max_daily_trades" default:"20" validate:"gte=1"`
	MaxHoldTimeHours    float64 `yaml:"max_hold_time_hours" default:"24" validate:"gt=0"`

	// Learning
	LearningRate float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0,lt=1"`

	// Adaptive threshold seeds
	SeedMinLiquidityUsd float64 `yaml:"seed_min_liquidity_usd" default:"10000" validate:"gt=0"`
	SeedMinHolders      int64   `yaml:"seed_min_holders" default:"100" validate:"gte=1"`
	SeedMinVolume24hUsd float64 `yaml:"seed_min_volume_24h_usd" default:"10000" validate:"gt=0"`

	// Simulated account
	InitialBalanceUsd float64 `yaml:"initial_balance_usd" default:"10000" validate:"gt=0"`
}
