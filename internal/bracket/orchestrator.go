package bracket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradelabs/decision-engine/internal/gateway"
	"github.com/tradelabs/decision-engine/internal/observ"
	"github.com/tradelabs/decision-engine/internal/portfolio"
	"github.com/tradelabs/decision-engine/internal/risk"
)

// Orchestrator turns admitted candidates into live bracket groups and keeps
// group state reconciled against the gateway. The caller must reserve risk
// before Submit; every failure path here releases it through the book.
type Orchestrator struct {
	mu          sync.Mutex
	gw          gateway.OrderGateway
	book        *portfolio.Manager
	outbox      *gateway.Outbox
	gate        *risk.SafetyGate
	groups      map[string]*Group
	byInstr     map[string]string    // instrument -> non-terminal group ID
	lastSubmit  map[string]time.Time // instrument -> last submission attempt
	resubmit    time.Duration
	callTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

type Options struct {
	Outbox      *gateway.Outbox
	CallTimeout time.Duration
	// ResubmitCooldown is the minimum gap between submission attempts for one
	// instrument, counted from the attempt rather than the outcome, so a
	// venue rejection does not get retried every tick. Zero picks a default.
	ResubmitCooldown time.Duration
	Now              func() time.Time
}

const defaultResubmitCooldown = time.Minute

func NewOrchestrator(gw gateway.OrderGateway, book *portfolio.Manager, gate *risk.SafetyGate, opts Options, log zerolog.Logger) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	resubmit := opts.ResubmitCooldown
	if resubmit == 0 {
		resubmit = defaultResubmitCooldown
	}
	return &Orchestrator{
		gw:          gw,
		book:        book,
		outbox:      opts.Outbox,
		gate:        gate,
		groups:      map[string]*Group{},
		byInstr:     map[string]string{},
		lastSubmit:  map[string]time.Time{},
		resubmit:    resubmit,
		callTimeout: opts.CallTimeout,
		now:         now,
		log:         log.With().Str("component", "bracket").Logger(),
	}
}

func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.callTimeout > 0 {
		return context.WithTimeout(ctx, o.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Submit places the entry plus both linked protective exits for an admitted
// candidate. The stop leg is always a conditional stop order, never a resting
// limit, so a gap through the level still exits at market. Leg IDs are
// assigned here, not by the gateway, so a timed-out submit can still be
// resolved by polling the venue for that identity. A submission failure
// part-way cancels what was placed and releases the reservation; the group
// lands in CANCELLED, never in an ambiguous state. The per-instrument
// cooldown and the per-day idempotency key make a retried tick a detectable
// duplicate rather than a second bracket. On any error return the caller's
// reservation has already been released.
func (o *Orchestrator) Submit(ctx context.Context, acc risk.Accepted) (*Group, error) {
	now := o.now().UTC()
	o.mu.Lock()
	last, attempted := o.lastSubmit[acc.Instrument]
	o.mu.Unlock()
	if attempted && now.Sub(last) < o.resubmit {
		o.book.ReleaseRisk(acc.RiskAmount)
		observ.ThrottleBlocks.WithLabelValues("instrument_cooldown").Inc()
		return nil, fmt.Errorf("%w: %s attempted %s ago", ErrDuplicateSubmission,
			acc.Instrument, now.Sub(last).Round(time.Second))
	}

	key := fmt.Sprintf("%s-%s", acc.Instrument, now.Format("2006-01-02"))
	if o.outbox != nil {
		seen, err := o.outbox.HasRecent(key)
		if err != nil {
			o.book.ReleaseRisk(acc.RiskAmount)
			return nil, fmt.Errorf("journal check: %w", err)
		}
		if seen {
			o.book.ReleaseRisk(acc.RiskAmount)
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSubmission, key)
		}
	}

	o.mu.Lock()
	o.lastSubmit[acc.Instrument] = now
	o.mu.Unlock()

	g := &Group{
		ID:             uuid.NewString(),
		Instrument:     acc.Instrument,
		Size:           acc.Size,
		EntryPrice:     acc.EntryPrice,
		StopPrice:      acc.StopPrice,
		TrailDistance:  acc.TrailDistance,
		RiskAmount:     acc.RiskAmount,
		State:          StateCreated,
		IdempotencyKey: key,
		CreatedAt:      o.now().UTC(),
	}
	_ = g.transition(StateSubmitting)

	if err := o.book.OpenPending(portfolio.Position{
		Instrument:    acc.Instrument,
		Quantity:      acc.Size,
		EntryPrice:    acc.EntryPrice,
		StopPrice:     acc.StopPrice,
		TrailDistance: acc.TrailDistance,
		RiskAmount:    acc.RiskAmount,
	}); err != nil {
		o.book.ReleaseRisk(acc.RiskAmount)
		_ = g.transition(StateCancelled)
		return nil, fmt.Errorf("register pending position: %w", err)
	}

	entryID, err := o.submitLeg(ctx, gateway.Leg{
		GroupID:        g.ID,
		Instrument:     acc.Instrument,
		Side:           gateway.Buy,
		Type:           gateway.Limit,
		Quantity:       acc.Size,
		LimitPrice:     acc.EntryPrice,
		IdempotencyKey: key,
	})
	if err != nil {
		o.unwind(ctx, g, "entry submit failed", err)
		return nil, err
	}
	g.EntryLegID = entryID

	stopID, err := o.submitLeg(ctx, gateway.Leg{
		GroupID:    g.ID,
		Instrument: acc.Instrument,
		Side:       gateway.Sell,
		Type:       gateway.Stop,
		Quantity:   acc.Size,
		StopPrice:  acc.StopPrice,
		OCAGroup:   g.ID,
	})
	if err != nil {
		o.unwind(ctx, g, "stop submit failed", err)
		return nil, err
	}
	g.StopLegID = stopID

	trailID, err := o.submitLeg(ctx, gateway.Leg{
		GroupID:       g.ID,
		Instrument:    acc.Instrument,
		Side:          gateway.Sell,
		Type:          gateway.Trail,
		Quantity:      acc.Size,
		TrailDistance: acc.TrailDistance,
		OCAGroup:      g.ID,
	})
	if err != nil {
		o.unwind(ctx, g, "trail submit failed", err)
		return nil, err
	}
	g.TrailLegID = trailID

	if err := g.transition(StateSubmitted); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.groups[g.ID] = g
	o.byInstr[g.Instrument] = g.ID
	o.mu.Unlock()

	o.log.Info().Str("group", g.ID).Str("instrument", g.Instrument).
		Int("size", g.Size).Float64("entry", g.EntryPrice).
		Float64("stop", g.StopPrice).Float64("trail", g.TrailDistance).
		Msg("bracket submitted")
	return g, nil
}

func (o *Orchestrator) submitLeg(ctx context.Context, leg gateway.Leg) (string, error) {
	leg.ID = uuid.NewString()
	cctx, cancel := o.callCtx(ctx)
	id, err := o.gw.Submit(cctx, leg)
	cancel()
	if err == nil {
		return id, nil
	}
	if errors.Is(err, gateway.ErrTimeout) {
		return o.resolveTimedOut(ctx, leg, err)
	}
	return "", err
}

// resolveTimedOut settles a lost submit ack. The outcome of a timed-out
// submit is unknown, not failed: the venue may hold a live order. Poll by the
// client-assigned leg ID; a known order proceeds as if the ack had arrived,
// an unknown one was never placed. If even the poll fails, cancel by that
// identity so nothing can stay live untracked, then surface the timeout.
func (o *Orchestrator) resolveTimedOut(ctx context.Context, leg gateway.Leg, cause error) (string, error) {
	cctx, cancel := o.callCtx(ctx)
	_, serr := o.gw.Status(cctx, leg.ID)
	cancel()
	switch {
	case serr == nil:
		o.log.Warn().Str("leg", leg.ID).Str("instrument", leg.Instrument).
			Msg("submit ack lost, venue holds the order")
		return leg.ID, nil
	case errors.Is(serr, gateway.ErrUnknownOrder):
		return "", cause
	}

	cctx, cancel = o.callCtx(ctx)
	if cerr := o.gw.Cancel(cctx, leg.ID); cerr != nil && !errors.Is(cerr, gateway.ErrUnknownOrder) {
		o.log.Error().Err(cerr).Str("leg", leg.ID).Str("instrument", leg.Instrument).
			Msg("cancel of unresolved order failed, manual check required")
	}
	cancel()
	return "", cause
}

// unwind cancels any placed legs, drops the pending position and releases its
// risk reservation.
func (o *Orchestrator) unwind(ctx context.Context, g *Group, msg string, cause error) {
	o.log.Warn().Err(cause).Str("group", g.ID).Str("instrument", g.Instrument).Msg(msg)
	for _, legID := range []string{g.EntryLegID, g.StopLegID, g.TrailLegID} {
		if legID == "" {
			continue
		}
		cctx, cancel := o.callCtx(ctx)
		if err := o.gw.Cancel(cctx, legID); err != nil {
			o.log.Warn().Err(err).Str("leg", legID).Msg("unwind cancel failed")
		}
		cancel()
	}
	if err := o.book.Abandon(g.Instrument); err != nil {
		o.log.Warn().Err(err).Str("instrument", g.Instrument).Msg("abandon failed")
	}
	_ = g.transition(StateCancelled)
}

// Reconcile polls gateway state for every non-terminal group and advances the
// state machine. Individual poll failures are logged and skipped; the next
// tick retries them.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	o.mu.Lock()
	pending := make([]*Group, 0, len(o.groups))
	for _, g := range o.groups {
		if !g.State.Terminal() {
			pending = append(pending, g)
		}
	}
	o.mu.Unlock()

	for _, g := range pending {
		var err error
		switch g.State {
		case StateSubmitted:
			err = o.reconcileEntry(ctx, g)
		case StateActive:
			err = o.reconcileExits(ctx, g)
		}
		if err != nil {
			o.log.Warn().Err(err).Str("group", g.ID).Msg("reconcile deferred")
			continue
		}
		if g.State.Terminal() {
			o.mu.Lock()
			if o.byInstr[g.Instrument] == g.ID {
				delete(o.byInstr, g.Instrument)
			}
			o.mu.Unlock()
		}
	}
}

func (o *Orchestrator) reconcileEntry(ctx context.Context, g *Group) error {
	cctx, cancel := o.callCtx(ctx)
	st, err := o.gw.Status(cctx, g.EntryLegID)
	cancel()
	if err != nil {
		return fmt.Errorf("entry status: %w", err)
	}
	switch st.Status {
	case gateway.StatusFilled:
		if err := o.book.MarkOpen(g.Instrument, st.FillPrice, st.FilledAt); err != nil {
			return err
		}
		if err := g.transition(StateEntryFilled); err != nil {
			return err
		}
		o.log.Info().Str("group", g.ID).Float64("fill", st.FillPrice).Msg("entry filled")
		return g.transition(StateActive)
	case gateway.StatusRejected:
		o.unwindExits(ctx, g)
		if err := o.book.Abandon(g.Instrument); err != nil {
			o.log.Warn().Err(err).Msg("abandon after rejection")
		}
		return g.transition(StateRejected)
	case gateway.StatusCancelled:
		o.unwindExits(ctx, g)
		if err := o.book.Abandon(g.Instrument); err != nil {
			o.log.Warn().Err(err).Msg("abandon after cancel")
		}
		return g.transition(StateCancelled)
	}
	return nil
}

func (o *Orchestrator) unwindExits(ctx context.Context, g *Group) {
	for _, legID := range []string{g.StopLegID, g.TrailLegID} {
		if legID == "" {
			continue
		}
		cctx, cancel := o.callCtx(ctx)
		if err := o.gw.Cancel(cctx, legID); err != nil {
			o.log.Warn().Err(err).Str("leg", legID).Msg("exit cancel failed")
		}
		cancel()
	}
}

func (o *Orchestrator) reconcileExits(ctx context.Context, g *Group) error {
	cctx, cancel := o.callCtx(ctx)
	stopSt, err := o.gw.Status(cctx, g.StopLegID)
	cancel()
	if err != nil {
		return fmt.Errorf("stop status: %w", err)
	}
	if stopSt.Status == gateway.StatusFilled {
		return o.closeOn(ctx, g, StateExitStopFilled, stopSt, g.TrailLegID)
	}

	cctx, cancel = o.callCtx(ctx)
	trailSt, err := o.gw.Status(cctx, g.TrailLegID)
	cancel()
	if err != nil {
		return fmt.Errorf("trail status: %w", err)
	}
	if trailSt.Status == gateway.StatusFilled {
		return o.closeOn(ctx, g, StateExitTrailFilled, trailSt, g.StopLegID)
	}
	return nil
}

// closeOn settles the group after one exit leg filled: the sibling is
// cancelled even though the venue links them, the position realizes P&L and
// the instrument enters its re-entry cooldown.
func (o *Orchestrator) closeOn(ctx context.Context, g *Group, to State, fill gateway.LegState, siblingID string) error {
	cctx, cancel := o.callCtx(ctx)
	if err := o.gw.Cancel(cctx, siblingID); err != nil {
		o.log.Warn().Err(err).Str("leg", siblingID).Msg("sibling cancel failed")
	}
	cancel()

	realized, err := o.book.Close(g.Instrument, fill.FillPrice)
	if err != nil {
		return err
	}
	if o.gate != nil {
		at := fill.FilledAt
		if at.IsZero() {
			at = o.now().UTC()
		}
		o.gate.RecordExit(g.Instrument, at)
	}
	if err := g.transition(to); err != nil {
		return err
	}
	o.log.Info().Str("group", g.ID).Str("instrument", g.Instrument).
		Float64("exit", fill.FillPrice).Float64("realized", realized).
		Str("via", string(to)).Msg("bracket exited")
	return g.transition(StateClosed)
}

// ManualClose flattens an active bracket at the supplied price: cancel both
// exits, realize P&L, close the group.
func (o *Orchestrator) ManualClose(ctx context.Context, instrument string, exitPrice float64) error {
	o.mu.Lock()
	id, ok := o.byInstr[instrument]
	g := o.groups[id]
	o.mu.Unlock()
	if !ok || g == nil {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, instrument)
	}

	switch g.State {
	case StateSubmitted:
		o.unwind(ctx, g, "manual close before entry fill", nil)
	case StateActive:
		o.unwindExits(ctx, g)
		realized, err := o.book.Close(instrument, exitPrice)
		if err != nil {
			return err
		}
		if o.gate != nil {
			o.gate.RecordExit(instrument, o.now().UTC())
		}
		if err := g.transition(StateManuallyClosed); err != nil {
			return err
		}
		if err := g.transition(StateClosed); err != nil {
			return err
		}
		o.log.Info().Str("instrument", instrument).Float64("realized", realized).Msg("manual close")
	default:
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, g.State, StateManuallyClosed)
	}

	o.mu.Lock()
	if o.byInstr[instrument] == g.ID {
		delete(o.byInstr, instrument)
	}
	o.mu.Unlock()
	return nil
}

// NonTerminal reports whether the instrument has a bracket still in flight.
func (o *Orchestrator) NonTerminal(instrument string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.byInstr[instrument]
	return ok
}

// Groups returns a snapshot of every tracked group, newest first not
// guaranteed; callers sort if they care.
func (o *Orchestrator) Groups() []Group {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Group, 0, len(o.groups))
	for _, g := range o.groups {
		out = append(out, *g)
	}
	return out
}
