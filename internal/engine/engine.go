// Package engine is the control loop: a fast tick that reconciles, scores,
// gates and submits, and a slow cadence that refreshes catalyst signals.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradelabs/decision-engine/internal/adapters"
	"github.com/tradelabs/decision-engine/internal/bracket"
	"github.com/tradelabs/decision-engine/internal/config"
	"github.com/tradelabs/decision-engine/internal/observ"
	"github.com/tradelabs/decision-engine/internal/portfolio"
	"github.com/tradelabs/decision-engine/internal/risk"
	"github.com/tradelabs/decision-engine/internal/scoring"
	"github.com/tradelabs/decision-engine/internal/signal"
	"github.com/tradelabs/decision-engine/internal/technical"
)

// Engine wires the pipeline together. It is single-threaded by construction:
// Tick is the only mutator and Run calls it from one goroutine.
type Engine struct {
	cfg        config.Root
	scoringCfg scoring.Config

	book       *portfolio.Manager
	alloc      *risk.Allocator
	throttle   *risk.Throttle
	orch       *bracket.Orchestrator
	signals    *adapters.MultiSource
	bars       adapters.BarSource
	marks      Marker
	normalizer *signal.Normalizer

	// bundles is the retained catalyst snapshot. A failed refresh keeps the
	// previous snapshot; decay weights still age the signals inside it.
	bundles     map[string]*signal.Bundle
	lastRefresh time.Time

	now func() time.Time
	log zerolog.Logger
}

// Marker receives the latest mark per instrument; the paper gateway drives
// its fill logic from these. A live gateway does not need one.
type Marker interface {
	MarkPrice(instrument string, px float64)
}

type Deps struct {
	Book    *portfolio.Manager
	Alloc   *risk.Allocator
	Orch    *bracket.Orchestrator
	Signals *adapters.MultiSource
	Bars    adapters.BarSource
	Marks   Marker // optional
	Now     func() time.Time
}

func New(cfg config.Root, deps Deps, log zerolog.Logger) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	scoringCfg := scoring.DefaultConfig()
	scoringCfg.CatalystWeight = cfg.Scoring.CatalystWeight
	scoringCfg.TechnicalWeight = cfg.Scoring.TechnicalWeight
	scoringCfg.Horizon = cfg.Scoring.Horizon()
	if len(cfg.Scoring.CategoryWeights) > 0 {
		weights := map[signal.Category]float64{}
		for cat, w := range cfg.Scoring.CategoryWeights {
			weights[signal.Category(cat)] = w
		}
		scoringCfg.CategoryWeights = weights
	}
	return &Engine{
		cfg:        cfg,
		scoringCfg: scoringCfg,
		book:       deps.Book,
		alloc:      deps.Alloc,
		throttle:   risk.NewThrottle(cfg.Engine.MaxSubmissionsPerTick, cfg.Engine.ThrottleWindow()),
		orch:       deps.Orch,
		signals:    deps.Signals,
		bars:       deps.Bars,
		marks:      deps.Marks,
		normalizer: signal.NewNormalizer(nil, nil, log),
		now:        now,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Run ticks until the context is cancelled. Tick errors are logged, never
// fatal: a decision engine that crashes on a flaky feed is worse than one
// that degrades.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Engine.TickInterval())
	defer ticker.Stop()

	e.log.Info().Str("tick", e.cfg.Engine.TickInterval().String()).
		Str("refresh", e.cfg.Engine.RefreshInterval().String()).Msg("engine started")
	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopping")
			return e.book.Save()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one fast-cadence pass end to end.
func (e *Engine) Tick(ctx context.Context) {
	started := time.Now()
	defer func() { observ.TickDuration.Observe(time.Since(started).Seconds()) }()

	e.book.RollDay()
	e.orch.Reconcile(ctx)
	e.refreshIfDue(ctx)

	ranked := e.scoreUniverse(ctx)
	accepted, _ := e.alloc.Admit(ranked, e.book.Snapshot(), e.now())
	e.submit(ctx, accepted)

	if err := e.book.Save(); err != nil {
		e.log.Error().Err(err).Msg("portfolio persist failed")
	}
}

// refreshIfDue re-pulls catalyst signals on the slow cadence. Failures keep
// the retained snapshot; with no snapshot at all the engine runs on
// technicals alone until a source recovers.
func (e *Engine) refreshIfDue(ctx context.Context) {
	if e.signals == nil {
		return
	}
	now := e.now()
	if !e.lastRefresh.IsZero() && now.Sub(e.lastRefresh) < e.cfg.Engine.RefreshInterval() {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Engine.CallTimeout())
	raws, err := e.signals.Fetch(cctx)
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Int("retained", len(e.bundles)).Msg("signal refresh failed, keeping snapshot")
		return
	}
	e.lastRefresh = now

	sigs, dropped := e.normalizer.NormalizeAll(raws)
	if dropped > 0 {
		observ.SignalsDropped.Add(float64(dropped))
	}
	e.bundles = signal.Aggregate(sigs, now, e.scoringCfg.Horizon)
	e.log.Info().Int("instruments", len(e.bundles)).Int("signals", len(sigs)).Msg("catalysts refreshed")
}

// scoreUniverse scores every instrument with a live bundle plus the static
// watchlist plus anything the book still holds, then ranks the result. The
// fresh last-close marks are pushed to the book (unrealized P&L) and, when a
// marker is wired, to the gateway so resting legs see current prices.
func (e *Engine) scoreUniverse(ctx context.Context) []risk.Candidate {
	instruments := map[string]bool{}
	for instr := range e.bundles {
		instruments[instr] = true
	}
	for _, instr := range e.cfg.Watchlist {
		instruments[instr] = true
	}
	for instr := range e.book.Snapshot().Positions {
		instruments[instr] = true
	}

	now := e.now()
	type market struct {
		entry float64
		vol   float64
	}
	markets := map[string]market{}
	var scored []scoring.Candidate

	ordered := make([]string, 0, len(instruments))
	for instr := range instruments {
		ordered = append(ordered, instr)
	}
	sort.Strings(ordered)

	for _, instr := range ordered {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.Engine.CallTimeout())
		bars, err := e.bars.GetBars(cctx, instr, e.cfg.Engine.BarLookback)
		cancel()
		if err != nil {
			observ.SourceFailures.WithLabelValues("bars").Inc()
			e.log.Warn().Err(err).Str("instrument", instr).Msg("bar fetch failed, instrument skipped")
			continue
		}
		scored = append(scored, scoring.Score(instr, e.bundles[instr], bars, now, e.scoringCfg))
		markets[instr] = market{entry: technical.LastClose(bars), vol: technical.VolatilityEstimate(bars)}
	}

	latest := make(map[string]float64, len(markets))
	for instr, m := range markets {
		if m.entry > 0 {
			latest[instr] = m.entry
			if e.marks != nil {
				e.marks.MarkPrice(instr, m.entry)
			}
		}
	}
	e.book.MarkToMarket(latest)

	ranked := scoring.Rank(scored)
	out := make([]risk.Candidate, 0, len(ranked))
	for _, c := range ranked {
		m := markets[c.Instrument]
		out = append(out, risk.Candidate{Candidate: c, EntryPrice: m.entry, Volatility: m.vol})
	}
	return out
}

// submit places brackets for admitted candidates, bounded per tick by the
// submission throttle. Risk is reserved synchronously before each submission;
// a Submit failure has already released it.
func (e *Engine) submit(ctx context.Context, accepted []risk.Accepted) {
	submitted := 0
	for _, acc := range accepted {
		if submitted >= e.cfg.Engine.MaxSubmissionsPerTick {
			e.log.Debug().Int("deferred", len(accepted)-submitted).Msg("per-tick submission cap reached")
			return
		}
		if !e.throttle.Allow() {
			observ.ThrottleBlocks.WithLabelValues("submission_window").Inc()
			e.log.Warn().Str("instrument", acc.Instrument).Msg("submission throttle exhausted")
			return
		}
		if e.orch.NonTerminal(acc.Instrument) {
			e.log.Debug().Str("instrument", acc.Instrument).Msg("bracket already in flight")
			continue
		}
		if err := e.book.ReserveRisk(acc.RiskAmount, e.cfg.Risk.MaxTotalRiskFraction); err != nil {
			e.log.Warn().Err(err).Str("instrument", acc.Instrument).Msg("reservation refused")
			continue
		}
		if _, err := e.orch.Submit(ctx, acc); err != nil {
			e.log.Warn().Err(err).Str("instrument", acc.Instrument).Msg("bracket submit failed")
			continue
		}
		e.throttle.Record()
		submitted++
	}
}

// Scan runs the scoring pipeline once and returns the ranked candidates
// without gating or submitting anything. Used by the one-shot CLI mode.
func (e *Engine) Scan(ctx context.Context) []risk.Candidate {
	e.refreshIfDue(ctx)
	return e.scoreUniverse(ctx)
}
