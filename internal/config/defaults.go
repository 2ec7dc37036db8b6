package config

import "strings"

// Defaults mirror the reference deployment: 10x leverage, a 0.75 opening
// confidence gate with a looser 0.60 maintenance gate, 80% margin
// utilization cap, 100 USDT minimum free margin.
const (
	DefaultLeverage              = 10
	DefaultOpenConfidence        = 0.75
	DefaultMaintenanceConfidence = 0.60
	DefaultMaxMarginUtilization  = 0.80
	DefaultMaxPositions          = 6
	DefaultMaxRiskPerTrade       = 0.05
	DefaultMinFreeMargin         = 100.0
	DefaultExecutorIntervalMin   = 3
	DefaultMonitorIntervalSec    = 30
)

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = "live"
	}
	if c.Exchange.Leverage <= 0 {
		c.Exchange.Leverage = DefaultLeverage
	}
	if c.Exchange.TimeoutSeconds <= 0 {
		c.Exchange.TimeoutSeconds = 15
	}
	if c.Executor.IntervalMinutes <= 0 {
		c.Executor.IntervalMinutes = DefaultExecutorIntervalMin
	}
	if c.Executor.MinFreeMargin <= 0 {
		c.Executor.MinFreeMargin = DefaultMinFreeMargin
	}
	if c.Monitor.IntervalSeconds <= 0 {
		c.Monitor.IntervalSeconds = DefaultMonitorIntervalSec
	}
	if c.Risk.OpenConfidence <= 0 {
		c.Risk.OpenConfidence = DefaultOpenConfidence
	}
	if c.Risk.MaintenanceConfidence <= 0 {
		c.Risk.MaintenanceConfidence = DefaultMaintenanceConfidence
	}
	if c.Risk.MaxMarginUtilization <= 0 {
		c.Risk.MaxMarginUtilization = DefaultMaxMarginUtilization
	}
	if c.Risk.MaxPositions <= 0 {
		c.Risk.MaxPositions = DefaultMaxPositions
	}
	if c.Risk.MaxRiskPerTrade <= 0 {
		c.Risk.MaxRiskPerTrade = DefaultMaxRiskPerTrade
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = "data/ledger.db"
	}
	if strings.TrimSpace(c.Decision.Path) == "" {
		c.Decision.Path = "data/decisions.json"
	}
}
