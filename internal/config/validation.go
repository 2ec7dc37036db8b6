package config

import (
	"fmt"
	"strings"
)

func validate(cfg *Config) error {
	if len(cfg.Exchange.Symbols) == 0 {
		return fmt.Errorf("exchange.symbols cannot be empty")
	}
	seen := make(map[string]bool, len(cfg.Exchange.Symbols))
	normalized := make([]string, 0, len(cfg.Exchange.Symbols))
	for _, sym := range cfg.Exchange.Symbols {
		s := strings.ToUpper(strings.TrimSpace(sym))
		if s == "" {
			continue
		}
		if seen[s] {
			return fmt.Errorf("exchange.symbols contains duplicate %q", s)
		}
		seen[s] = true
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		return fmt.Errorf("exchange.symbols cannot be empty")
	}
	cfg.Exchange.Symbols = normalized

	if cfg.Risk.OpenConfidence > 1 || cfg.Risk.MaintenanceConfidence > 1 {
		return fmt.Errorf("risk confidence thresholds must be within (0, 1]")
	}
	if cfg.Risk.MaintenanceConfidence > cfg.Risk.OpenConfidence {
		return fmt.Errorf("risk.maintenance_confidence (%.2f) must not exceed risk.open_confidence (%.2f)",
			cfg.Risk.MaintenanceConfidence, cfg.Risk.OpenConfidence)
	}
	if cfg.Risk.MaxMarginUtilization > 1 {
		return fmt.Errorf("risk.max_margin_utilization must be within (0, 1]")
	}
	if cfg.Risk.MaxRiskPerTrade > 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be within (0, 1]")
	}
	return nil
}
