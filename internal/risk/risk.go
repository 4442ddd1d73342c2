// Package risk decides which ranked candidates become orders. It owns the
// safety gate (kill switch, cooldowns, position caps), pre-trade validation,
// the submission throttle and the capital allocator.
package risk

import (
	"errors"

	"github.com/tradelabs/decision-engine/internal/scoring"
)

var (
	// ErrKillSwitch means the daily loss limit tripped; no new entries today.
	ErrKillSwitch = errors.New("daily kill switch engaged")
	// ErrSizing covers any candidate that cannot be sized to a positive
	// quantity within budget.
	ErrSizing = errors.New("cannot size position")
	// ErrValidation covers malformed candidate inputs (price, volatility).
	ErrValidation = errors.New("candidate failed pre-trade validation")
	// ErrUniverse is returned for instruments outside the tradable universe.
	ErrUniverse = errors.New("instrument not in tradable universe")
	// ErrCooldown blocks re-entry into a recently exited instrument.
	ErrCooldown = errors.New("instrument in cooldown")
	// ErrMaxPositions is returned when the concurrency cap is full.
	ErrMaxPositions = errors.New("max concurrent positions reached")
	// ErrThrottled is returned when the submission throttle is exhausted.
	ErrThrottled = errors.New("submission throttle exhausted")
)

// Candidate pairs a scored instrument with the market data sizing needs.
type Candidate struct {
	scoring.Candidate

	EntryPrice float64 // reference price for the entry limit
	Volatility float64 // ATR-style per-share volatility estimate
}

// Accepted is an admitted candidate with its computed order parameters.
type Accepted struct {
	Candidate

	Size          int
	StopPrice     float64
	TrailDistance float64
	RiskAmount    float64 // per-share risk * size, reserved before submission
}

// Rejection records why a candidate was turned away, for the decision log.
type Rejection struct {
	Instrument string
	Reason     string
	Err        error
}

// Params is the risk policy snapshot for one admission pass.
type Params struct {
	RiskPerTradeFraction float64 // fraction of capital risked per trade
	MaxTotalRiskFraction float64 // ceiling on summed committed risk
	MaxNotionalFraction  float64 // cap on size*entry as a fraction of capital
	MaxPositions         int
	MinScore             float64
	MinConfidence        float64
	StopATRMultiple      float64 // stop distance in volatility units
	TrailATRMultiple     float64 // trail distance in volatility units
}

func DefaultParams() Params {
	return Params{
		RiskPerTradeFraction: 0.01,
		MaxTotalRiskFraction: 0.06,
		MaxNotionalFraction:  0.25,
		MaxPositions:         5,
		MinScore:             60,
		MinConfidence:        0.50,
		StopATRMultiple:      2.0,
		TrailATRMultiple:     1.2,
	}
}
