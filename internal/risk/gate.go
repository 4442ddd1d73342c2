package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/tradelabs/decision-engine/internal/observ"
	"github.com/tradelabs/decision-engine/internal/portfolio"
)

// SafetyGate is the last line before any order leaves the process. A tripped
// kill switch fails closed for the rest of the trading day; the portfolio's
// day rollover is what re-arms it.
type SafetyGate struct {
	mu            sync.Mutex
	lossThreshold float64 // fraction of starting equity, e.g. 0.015
	cooldown      time.Duration
	exits         map[string]time.Time // instrument -> last exit
}

func NewSafetyGate(lossThreshold float64, cooldown time.Duration) *SafetyGate {
	return &SafetyGate{
		lossThreshold: lossThreshold,
		cooldown:      cooldown,
		exits:         map[string]time.Time{},
	}
}

// Evaluate answers whether any new entries are allowed at all this tick.
func (g *SafetyGate) Evaluate(st portfolio.State) (ok bool, reason string) {
	if st.DailyStartingEquity > 0 {
		ratio := st.DailyRealizedPnL / st.DailyStartingEquity
		if ratio <= -g.lossThreshold {
			observ.KillSwitchActive.Set(1)
			return false, fmt.Sprintf("daily loss %.2f%% breaches %.2f%% limit",
				-ratio*100, g.lossThreshold*100)
		}
	}
	observ.KillSwitchActive.Set(0)
	return true, ""
}

// CheckCandidate applies per-instrument gates on top of Evaluate.
func (g *SafetyGate) CheckCandidate(c Candidate, now time.Time) error {
	if c.EntryPrice <= 0 {
		return fmt.Errorf("%w: non-positive entry price %.4f", ErrValidation, c.EntryPrice)
	}
	if c.Volatility <= 0 {
		return fmt.Errorf("%w: non-positive volatility %.4f", ErrValidation, c.Volatility)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.exits[c.Instrument]; ok {
		if now.Sub(until) < g.cooldown {
			return fmt.Errorf("%w: %s until %s", ErrCooldown,
				c.Instrument, until.Add(g.cooldown).Format(time.RFC3339))
		}
		delete(g.exits, c.Instrument)
	}
	return nil
}

// RecordExit starts the re-entry cooldown for an instrument that just closed.
func (g *SafetyGate) RecordExit(instrument string, at time.Time) {
	if g.cooldown <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exits[instrument] = at
}
