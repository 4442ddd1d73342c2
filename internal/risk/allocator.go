package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradelabs/decision-engine/internal/observ"
	"github.com/tradelabs/decision-engine/internal/portfolio"
)

// Allocator walks candidates in rank order and decides size, stop and trail
// for each admission. Admit is a pure function of its inputs: it simulates
// its own reservations against the snapshot and never mutates the portfolio,
// so rerunning it with unchanged inputs yields the identical admission set.
// The caller does the real ReserveRisk before each submission.
type Allocator struct {
	params    Params
	gate      *SafetyGate
	validator *InstrumentValidator
	log       zerolog.Logger
}

func NewAllocator(p Params, gate *SafetyGate, v *InstrumentValidator, log zerolog.Logger) *Allocator {
	return &Allocator{
		params:    p,
		gate:      gate,
		validator: v,
		log:       log.With().Str("component", "allocator").Logger(),
	}
}

// Admit runs one admission pass over ranked candidates against the portfolio
// snapshot. Candidates are considered strictly in rank order; budget consumed
// by an earlier acceptance is unavailable to later ones.
func (a *Allocator) Admit(ranked []Candidate, st portfolio.State, now time.Time) ([]Accepted, []Rejection) {
	if ok, reason := a.gate.Evaluate(st); !ok {
		a.log.Warn().Str("reason", reason).Msg("safety gate closed, no admissions")
		rejections := make([]Rejection, 0, len(ranked))
		for _, c := range ranked {
			rejections = append(rejections, Rejection{
				Instrument: c.Instrument,
				Reason:     reason,
				Err:        ErrKillSwitch,
			})
		}
		observ.Rejections.WithLabelValues("kill_switch").Add(float64(len(ranked)))
		return nil, rejections
	}

	capital := st.TotalCapital
	riskCeiling := a.params.MaxTotalRiskFraction * capital
	perTradeBudget := a.params.RiskPerTradeFraction * capital
	notionalCap := a.params.MaxNotionalFraction * capital

	pendingRisk := 0.0
	pendingCount := 0
	taken := map[string]bool{}
	openCount := 0
	for sym, p := range st.Positions {
		if p.Status != portfolio.StatusClosed {
			taken[sym] = true
			openCount++
		}
	}

	var accepted []Accepted
	var rejections []Rejection
	reject := func(c Candidate, label string, err error) {
		rejections = append(rejections, Rejection{Instrument: c.Instrument, Reason: err.Error(), Err: err})
		observ.Rejections.WithLabelValues(label).Inc()
		a.log.Debug().Str("instrument", c.Instrument).Err(err).Msg("candidate rejected")
	}

	for _, c := range ranked {
		if taken[c.Instrument] {
			reject(c, "duplicate", fmt.Errorf("%w: %s", portfolio.ErrPositionExists, c.Instrument))
			continue
		}
		if err := a.validator.Validate(c.Instrument); err != nil {
			reject(c, "universe", err)
			continue
		}
		if c.Combined < a.params.MinScore {
			reject(c, "min_score", fmt.Errorf("score %.1f below floor %.1f", c.Combined, a.params.MinScore))
			continue
		}
		if c.Confidence < a.params.MinConfidence {
			reject(c, "min_confidence", fmt.Errorf("confidence %.2f below floor %.2f", c.Confidence, a.params.MinConfidence))
			continue
		}
		if err := a.gate.CheckCandidate(c, now); err != nil {
			reject(c, "gate", err)
			continue
		}
		if openCount+pendingCount >= a.params.MaxPositions {
			reject(c, "max_positions", fmt.Errorf("%w: %d", ErrMaxPositions, a.params.MaxPositions))
			continue
		}

		perShareRisk := a.params.StopATRMultiple * c.Volatility
		size := int(math.Floor(perTradeBudget / perShareRisk))
		if maxByNotional := int(math.Floor(notionalCap / c.EntryPrice)); size > maxByNotional {
			size = maxByNotional
		}
		if size <= 0 {
			reject(c, "sizing", fmt.Errorf("%w: budget %.2f, per-share risk %.2f",
				ErrSizing, perTradeBudget, perShareRisk))
			continue
		}

		riskAmount := perShareRisk * float64(size)
		if st.TotalRiskCommitted+pendingRisk+riskAmount > riskCeiling {
			reject(c, "risk_ceiling", fmt.Errorf("%w: would commit %.2f past %.2f",
				portfolio.ErrRiskCeiling, st.TotalRiskCommitted+pendingRisk+riskAmount, riskCeiling))
			continue
		}

		acc := Accepted{
			Candidate:     c,
			Size:          size,
			StopPrice:     c.EntryPrice - perShareRisk,
			TrailDistance: a.params.TrailATRMultiple * c.Volatility,
			RiskAmount:    riskAmount,
		}
		accepted = append(accepted, acc)
		pendingRisk += riskAmount
		pendingCount++
		taken[c.Instrument] = true
		observ.Admissions.WithLabelValues(c.Instrument).Inc()
		a.log.Info().Str("instrument", c.Instrument).Int("size", size).
			Float64("stop", acc.StopPrice).Float64("risk", riskAmount).
			Float64("score", c.Combined).Msg("candidate admitted")
	}
	return accepted, rejections
}
