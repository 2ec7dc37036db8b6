package config

// Config is the top-level configuration for the trading core.
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Decision DecisionConfig `toml:"decision"`
	Executor ExecutorConfig `toml:"executor"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Risk     RiskConfig     `toml:"risk"`
	Ledger   LedgerConfig   `toml:"ledger"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// ExchangeConfig describes the futures gateway connection. Symbols use the
// exchange-native form (e.g. BTCUSDT). Leverage is a single fixed constant
// for the whole system.
type ExchangeConfig struct {
	APIKey         string   `toml:"api_key"`
	APISecret      string   `toml:"api_secret"`
	RESTBaseURL    string   `toml:"rest_base_url"`
	ProxyURL       string   `toml:"proxy_url"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Symbols        []string `toml:"symbols"`
	Leverage       int      `toml:"leverage"`
}

// DecisionConfig points at the decisions file written by the external
// advisory process.
type DecisionConfig struct {
	Path string `toml:"path"`
}

type ExecutorConfig struct {
	IntervalMinutes int     `toml:"interval_minutes"`
	MinFreeMargin   float64 `toml:"min_free_margin"`
	RunImmediately  bool    `toml:"run_immediately"`
}

type MonitorConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// RiskConfig holds the risk limits. Not mutated at runtime.
type RiskConfig struct {
	// OpenConfidence gates BUY/SELL; MaintenanceConfidence gates HOLD/CLOSE.
	// Opening new exposure carries the stricter bar.
	OpenConfidence        float64 `toml:"open_confidence"`
	MaintenanceConfidence float64 `toml:"maintenance_confidence"`
	MaxMarginUtilization  float64 `toml:"max_margin_utilization"`
	MaxPositions          int     `toml:"max_positions"`
	MaxRiskPerTrade       float64 `toml:"max_risk_per_trade"`
}

type LedgerConfig struct {
	Path string `toml:"path"`
}
