// Package scoring turns catalyst bundles and price bars into ranked trade
// candidates. Every function here is pure: no cross-tick memoization, no
// hidden state, so identical inputs always produce identical scores.
package scoring

import (
	"math"
	"time"

	"github.com/tradelabs/decision-engine/internal/signal"
	"github.com/tradelabs/decision-engine/internal/technical"
)

// Config is the scoring snapshot for one cycle.
type Config struct {
	CatalystWeight  float64                     // blend weight, defaults 0.6
	TechnicalWeight float64                     // blend weight, defaults 0.4
	CategoryWeights map[signal.Category]float64 // per-category multipliers
	TechWeights     technical.Weights
	Horizon         time.Duration // recency decay horizon
}

// DefaultCategoryWeights mirrors the catalyst-type effectiveness table.
func DefaultCategoryWeights() map[signal.Category]float64 {
	return map[signal.Category]float64{
		signal.CategoryEarnings:       2.5,
		signal.CategoryAcquisition:    2.5,
		signal.CategoryUpgrade:        2.0,
		signal.CategoryInsiderBuy:     1.9,
		signal.CategoryProduct:        1.8,
		signal.CategoryOptionsUnusual: 1.6,
		signal.CategoryVolumeSpike:    1.2,
		signal.CategoryNews:           1.0,
		signal.CategorySocialBuzz:     0.8,
	}
}

func DefaultConfig() Config {
	return Config{
		CatalystWeight:  0.6,
		TechnicalWeight: 0.4,
		CategoryWeights: DefaultCategoryWeights(),
		TechWeights:     technical.DefaultWeights(),
		Horizon:         24 * time.Hour,
	}
}

func (c Config) categoryWeight(cat signal.Category) float64 {
	if w, ok := c.CategoryWeights[cat]; ok {
		return w
	}
	return 1.0
}

// Candidate is one instrument's scores for the current tick. Recomputed fresh
// every tick and never carried over as authoritative state.
type Candidate struct {
	Instrument     string  `json:"instrument"`
	CatalystScore  float64 `json:"catalyst_score"`
	TechnicalScore float64 `json:"technical_score"`
	Combined       float64 `json:"combined_score"`
	Confidence     float64 `json:"confidence"`
	Urgency        float64 `json:"urgency"`
	SignalCount    int     `json:"signal_count"`
}

// CatalystScore is the single canonical catalyst scoring function, used by
// every pass: weight each signal by category multiplier, source credibility,
// confidence and recency; sum signed contributions; affine-normalize the
// weighted mean into [0,100] with the cross-source agreement boost applied
// before the clamp.
//
//	w_i    = categoryWeight * credibility * confidence * decay
//	raw    = Σ(w_i * sign_i * magnitude_i) / Σw_i
//	score  = clamp(0, 100, 50 + 25*raw*agreement)
func CatalystScore(b *signal.Bundle, now time.Time, cfg Config) float64 {
	if b == nil || len(b.Signals) == 0 {
		return 50
	}
	var totalWeight, totalContrib float64
	for _, s := range b.Signals {
		decay := signal.DecayWeight(s.Age(now), cfg.Horizon)
		if decay == 0 {
			continue
		}
		w := cfg.categoryWeight(s.Category) * s.Credibility * s.Confidence * decay
		totalWeight += w
		totalContrib += w * s.Direction.Sign() * s.Magnitude
	}
	if totalWeight == 0 {
		return 50
	}
	raw := totalContrib / totalWeight
	return clamp(0, 100, 50+25*raw*b.AgreementMultiplier())
}

// Confidence scales the mean signal confidence by cross-source agreement,
// capped at 0.98 so no candidate ever looks like a certainty.
func Confidence(b *signal.Bundle) float64 {
	if b == nil || len(b.Signals) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.Signals {
		sum += s.Confidence
	}
	avg := sum / float64(len(b.Signals))
	if b.SourceCount > 1 {
		avg *= 1 + 0.1*float64(b.SourceCount-1)
	}
	return math.Min(0.98, avg)
}

// Urgency decays with the age of the newest signal: 1 for a just-observed
// catalyst, 0 once it reaches the horizon. Stale news should not be chased.
func Urgency(b *signal.Bundle, now time.Time, horizon time.Duration) float64 {
	if b == nil || len(b.Signals) == 0 {
		return 0
	}
	newest := b.Newest()
	if newest.IsZero() {
		return 0
	}
	age := now.Sub(newest)
	if age < 0 {
		age = 0
	}
	return signal.DecayWeight(age, horizon)
}

// Score computes the full candidate for one instrument. A nil bundle scores
// the instrument on technicals alone (the all-sources-down degradation path).
func Score(instrument string, b *signal.Bundle, bars []technical.Bar, now time.Time, cfg Config) Candidate {
	cat := CatalystScore(b, now, cfg)
	tech := technical.Score(bars, cfg.TechWeights)
	count := 0
	if b != nil {
		count = len(b.Signals)
	}
	return Candidate{
		Instrument:     instrument,
		CatalystScore:  cat,
		TechnicalScore: tech,
		Combined:       cat*cfg.CatalystWeight + tech*cfg.TechnicalWeight,
		Confidence:     Confidence(b),
		Urgency:        Urgency(b, now, cfg.Horizon),
		SignalCount:    count,
	}
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
