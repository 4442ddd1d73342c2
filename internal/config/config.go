// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Root struct {
	Capital   float64  `yaml:"capital"`
	Universe  []string `yaml:"universe"`  // tradable symbols; empty means any well-formed symbol
	Watchlist []string `yaml:"watchlist"` // instruments scored even without fresh catalysts

	Scoring Scoring `yaml:"scoring"`
	Risk    Risk    `yaml:"risk"`
	Engine  Engine  `yaml:"engine"`
	Gateway Gateway `yaml:"gateway"`
	Sources []Source `yaml:"sources"`

	StatePath   string  `yaml:"state_path"`
	MetricsAddr string  `yaml:"metrics_addr"`
	Logging     Logging `yaml:"logging"`
}

type Scoring struct {
	CatalystWeight  float64            `yaml:"catalyst_weight"`
	TechnicalWeight float64            `yaml:"technical_weight"`
	MinScore        float64            `yaml:"min_score"`
	MinConfidence   float64            `yaml:"min_confidence"`
	HorizonHours    int                `yaml:"horizon_hours"`
	CategoryWeights map[string]float64 `yaml:"category_weights"` // empty uses built-in table
}

type Risk struct {
	RiskPerTradeFraction float64 `yaml:"risk_per_trade_fraction"`
	MaxTotalRiskFraction float64 `yaml:"max_total_risk_fraction"`
	MaxNotionalFraction  float64 `yaml:"max_notional_fraction"`
	MaxPositions         int     `yaml:"max_positions"`
	StopATRMultiple      float64 `yaml:"stop_atr_multiple"`
	TrailATRMultiple     float64 `yaml:"trail_atr_multiple"`
	LossThreshold        float64 `yaml:"loss_threshold"` // daily kill switch fraction
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
}

type Engine struct {
	TickSeconds             int `yaml:"tick_seconds"`
	RefreshMinutes          int `yaml:"refresh_minutes"`
	MaxSubmissionsPerTick   int `yaml:"max_submissions_per_tick"`
	ThrottleWindowSeconds   int `yaml:"throttle_window_seconds"`
	ResubmitCooldownSeconds int `yaml:"resubmit_cooldown_seconds"` // per-instrument gap between submission attempts
	CallTimeoutSeconds      int `yaml:"call_timeout_seconds"`
	BarLookback             int `yaml:"bar_lookback"`
}

type Gateway struct {
	SlippageBps   float64 `yaml:"slippage_bps"`
	OutboxPath    string  `yaml:"outbox_path"`
	DedupeMinutes int     `yaml:"dedupe_minutes"`
}

type Source struct {
	Name              string  `yaml:"name"`
	URL               string  `yaml:"url"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Root {
	return Root{
		Capital: 100_000,
		Scoring: Scoring{
			CatalystWeight:  0.6,
			TechnicalWeight: 0.4,
			MinScore:        60,
			MinConfidence:   0.5,
			HorizonHours:    24,
		},
		Risk: Risk{
			RiskPerTradeFraction: 0.01,
			MaxTotalRiskFraction: 0.06,
			MaxNotionalFraction:  0.25,
			MaxPositions:         5,
			StopATRMultiple:      2.0,
			TrailATRMultiple:     1.2,
			LossThreshold:        0.015,
			CooldownMinutes:      30,
		},
		Engine: Engine{
			TickSeconds:             10,
			RefreshMinutes:          5,
			MaxSubmissionsPerTick:   3,
			ThrottleWindowSeconds:   60,
			ResubmitCooldownSeconds: 60,
			CallTimeoutSeconds:      10,
			BarLookback:             30,
		},
		Gateway: Gateway{
			OutboxPath:    "data/outbox.jsonl",
			DedupeMinutes: 24 * 60,
		},
		StatePath: "data/portfolio.json",
		Logging:   Logging{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Root, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Root) Validate() error {
	if c.Capital <= 0 {
		return fmt.Errorf("capital must be positive, got %v", c.Capital)
	}
	if sum := c.Scoring.CatalystWeight + c.Scoring.TechnicalWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring blend weights must sum to 1, got %v", sum)
	}
	if c.Risk.RiskPerTradeFraction <= 0 || c.Risk.RiskPerTradeFraction > c.Risk.MaxTotalRiskFraction {
		return fmt.Errorf("risk_per_trade_fraction %v must be positive and within max_total_risk_fraction %v",
			c.Risk.RiskPerTradeFraction, c.Risk.MaxTotalRiskFraction)
	}
	if c.Risk.LossThreshold <= 0 || c.Risk.LossThreshold >= 1 {
		return fmt.Errorf("loss_threshold %v must be in (0,1)", c.Risk.LossThreshold)
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive")
	}
	if c.Risk.StopATRMultiple <= 0 || c.Risk.TrailATRMultiple <= 0 {
		return fmt.Errorf("stop and trail multiples must be positive")
	}
	if c.Engine.TickSeconds <= 0 || c.Engine.RefreshMinutes <= 0 {
		return fmt.Errorf("engine cadences must be positive")
	}
	if c.Engine.MaxSubmissionsPerTick <= 0 {
		return fmt.Errorf("max_submissions_per_tick must be positive")
	}
	if c.Engine.ResubmitCooldownSeconds <= 0 {
		return fmt.Errorf("resubmit_cooldown_seconds must be positive")
	}
	return nil
}

func (e Engine) TickInterval() time.Duration    { return time.Duration(e.TickSeconds) * time.Second }
func (e Engine) RefreshInterval() time.Duration { return time.Duration(e.RefreshMinutes) * time.Minute }
func (e Engine) CallTimeout() time.Duration     { return time.Duration(e.CallTimeoutSeconds) * time.Second }
func (e Engine) ThrottleWindow() time.Duration {
	return time.Duration(e.ThrottleWindowSeconds) * time.Second
}

func (e Engine) ResubmitCooldown() time.Duration {
	return time.Duration(e.ResubmitCooldownSeconds) * time.Second
}

func (r Risk) Cooldown() time.Duration  { return time.Duration(r.CooldownMinutes) * time.Minute }
func (g Gateway) DedupeWindow() time.Duration { return time.Duration(g.DedupeMinutes) * time.Minute }
func (s Scoring) Horizon() time.Duration { return time.Duration(s.HorizonHours) * time.Hour }
