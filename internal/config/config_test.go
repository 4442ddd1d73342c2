package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Risk.LossThreshold != 0.015 {
		t.Fatalf("default loss threshold %v, want 0.015", cfg.Risk.LossThreshold)
	}
	if cfg.Engine.TickInterval() != 10*time.Second {
		t.Fatalf("default tick %v, want 10s", cfg.Engine.TickInterval())
	}
	if cfg.Engine.RefreshInterval() != 5*time.Minute {
		t.Fatalf("default refresh %v, want 5m", cfg.Engine.RefreshInterval())
	}
	// The journal-backed dedupe and the resubmit pacing must work out of the
	// box, not only when a path is configured.
	if cfg.Gateway.OutboxPath == "" {
		t.Fatalf("default outbox path must not be empty")
	}
	if cfg.Engine.ResubmitCooldown() != time.Minute {
		t.Fatalf("default resubmit cooldown %v, want 1m", cfg.Engine.ResubmitCooldown())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_OverridesMergeOntoDefaults(t *testing.T) {
	path := writeConfig(t, strings.TrimSpace(`
capital: 250000
universe: [AAPL, NVDA, MSFT]
risk:
  risk_per_trade_fraction: 0.02
  max_total_risk_fraction: 0.08
  max_notional_fraction: 0.25
  max_positions: 8
  stop_atr_multiple: 2.0
  trail_atr_multiple: 1.2
  loss_threshold: 0.02
  cooldown_minutes: 45
engine:
  tick_seconds: 5
  refresh_minutes: 2
  max_submissions_per_tick: 2
`))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Capital != 250_000 {
		t.Fatalf("capital %v", cfg.Capital)
	}
	if len(cfg.Universe) != 3 {
		t.Fatalf("universe %v", cfg.Universe)
	}
	if cfg.Risk.Cooldown() != 45*time.Minute {
		t.Fatalf("cooldown %v", cfg.Risk.Cooldown())
	}
	// Untouched sections keep their defaults.
	if cfg.Scoring.MinScore != 60 {
		t.Fatalf("min score default lost: %v", cfg.Scoring.MinScore)
	}
}

func TestValidate_RejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Root)
	}{
		{"zero capital", func(c *Root) { c.Capital = 0 }},
		{"blend not 1", func(c *Root) { c.Scoring.CatalystWeight = 0.9 }},
		{"per-trade above ceiling", func(c *Root) { c.Risk.RiskPerTradeFraction = 0.10 }},
		{"loss threshold 1", func(c *Root) { c.Risk.LossThreshold = 1 }},
		{"zero positions", func(c *Root) { c.Risk.MaxPositions = 0 }},
		{"zero tick", func(c *Root) { c.Engine.TickSeconds = 0 }},
		{"zero submissions", func(c *Root) { c.Engine.MaxSubmissionsPerTick = 0 }},
		{"negative resubmit cooldown", func(c *Root) { c.Engine.ResubmitCooldownSeconds = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "capital: [not a number")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
