package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// PaperGateway simulates an execution venue with native OCA support and true
// conditional stops. Fills are driven by MarkPrice: a stop triggers when the
// mark crosses its threshold and then fills at the mark (market semantics),
// so a gap through the stop fills at the gapped price, never at the stop
// itself. Every order, fill and cancel is journaled to the outbox.
type PaperGateway struct {
	mu          sync.Mutex
	orders      map[string]*paperOrder
	oca         map[string][]string // oca group -> order ids
	marks       map[string]float64
	outbox      *Outbox
	limiter     *rate.Limiter
	slippageBps float64
	now         func() time.Time
	log         zerolog.Logger
}

type paperOrder struct {
	leg   Leg
	state LegState
	// trailing state
	waterMark float64
	armed     bool
}

type PaperConfig struct {
	Outbox      *Outbox
	SlippageBps float64
	// SubmitsPerSecond bounds the simulated venue's pacing; zero disables.
	SubmitsPerSecond float64
	Now              func() time.Time
}

func NewPaperGateway(cfg PaperConfig, log zerolog.Logger) *PaperGateway {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	var limiter *rate.Limiter
	if cfg.SubmitsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitsPerSecond), 1)
	}
	return &PaperGateway{
		orders:      map[string]*paperOrder{},
		oca:         map[string][]string{},
		marks:       map[string]float64{},
		outbox:      cfg.Outbox,
		limiter:     limiter,
		slippageBps: cfg.SlippageBps,
		now:         now,
		log:         log.With().Str("component", "paper_gateway").Logger(),
	}
}

func (g *PaperGateway) Submit(ctx context.Context, leg Leg) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	if err := validateLeg(leg); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if leg.ID == "" {
		leg.ID = uuid.NewString()
	}
	o := &paperOrder{leg: leg, state: LegState{Status: StatusWorking}}
	if leg.Type == Trail {
		if mark, ok := g.marks[leg.Instrument]; ok {
			o.waterMark = mark
		}
	}
	g.orders[leg.ID] = o
	if leg.OCAGroup != "" {
		g.oca[leg.OCAGroup] = append(g.oca[leg.OCAGroup], leg.ID)
	}
	if g.outbox != nil {
		if err := g.outbox.WriteOrder(leg); err != nil {
			g.log.Warn().Err(err).Msg("outbox write failed")
		}
	}
	g.log.Debug().Str("order_id", leg.ID).Str("instrument", leg.Instrument).
		Str("type", string(leg.Type)).Msg("order accepted")
	return leg.ID, nil
}

func validateLeg(leg Leg) error {
	if leg.Instrument == "" || leg.Quantity <= 0 {
		return fmt.Errorf("%w: bad instrument/quantity", ErrRejected)
	}
	switch leg.Type {
	case Limit:
		if leg.LimitPrice <= 0 {
			return fmt.Errorf("%w: non-positive limit price", ErrRejected)
		}
	case Stop:
		if leg.StopPrice <= 0 {
			return fmt.Errorf("%w: non-positive stop price", ErrRejected)
		}
	case Trail:
		if leg.TrailDistance <= 0 {
			return fmt.Errorf("%w: non-positive trail distance", ErrRejected)
		}
	default:
		return fmt.Errorf("%w: unsupported order type %q", ErrRejected, leg.Type)
	}
	return nil
}

func (g *PaperGateway) Cancel(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if o.state.Status.Terminal() {
		return nil // cancel of a terminal order is a no-op
	}
	g.cancelLocked(o)
	return nil
}

func (g *PaperGateway) cancelLocked(o *paperOrder) {
	o.state = LegState{Status: StatusCancelled}
	if g.outbox != nil {
		_ = g.outbox.WriteCancel(o.leg.ID)
	}
}

func (g *PaperGateway) Status(_ context.Context, orderID string) (LegState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return LegState{}, ErrUnknownOrder
	}
	return o.state, nil
}

// MarkPrice feeds a new mark for an instrument and runs the fill logic for
// every working order on it. OCA siblings of a filled leg are cancelled
// gateway-side, mirroring a venue with native linked-order support.
func (g *PaperGateway) MarkPrice(instrument string, px float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marks[instrument] = px

	for _, o := range g.orders {
		if o.leg.Instrument != instrument || o.state.Status != StatusWorking {
			continue
		}
		if g.shouldFill(o, px) {
			g.fillLocked(o, g.fillPrice(o.leg.Side, px))
		}
	}
}

func (g *PaperGateway) shouldFill(o *paperOrder, px float64) bool {
	leg := o.leg
	switch leg.Type {
	case Limit:
		if leg.Side == Buy {
			return px <= leg.LimitPrice
		}
		return px >= leg.LimitPrice
	case Stop:
		// Conditional: triggers on crossing, then fills at the mark.
		if leg.Side == Sell {
			return px <= leg.StopPrice
		}
		return px >= leg.StopPrice
	case Trail:
		if leg.Side == Sell {
			if px > o.waterMark {
				o.waterMark = px
			}
			return o.armedTrailSell(px)
		}
		if o.waterMark == 0 || px < o.waterMark {
			o.waterMark = px
		}
		return px >= o.waterMark+leg.TrailDistance
	}
	return false
}

func (o *paperOrder) armedTrailSell(px float64) bool {
	return o.waterMark > 0 && px <= o.waterMark-o.leg.TrailDistance
}

func (g *PaperGateway) fillPrice(side Side, mark float64) float64 {
	slip := g.slippageBps / 10_000
	if side == Buy {
		return mark * (1 + slip)
	}
	return mark * (1 - slip)
}

func (g *PaperGateway) fillLocked(o *paperOrder, px float64) {
	o.state = LegState{Status: StatusFilled, FillPrice: px, FilledAt: g.now().UTC()}
	if g.outbox != nil {
		_ = g.outbox.WriteFill(FillNote{
			OrderID:    o.leg.ID,
			Instrument: o.leg.Instrument,
			Quantity:   o.leg.Quantity,
			Price:      px,
			Side:       o.leg.Side,
		})
	}
	// One cancels other: a fill on any linked leg cancels its siblings.
	if o.leg.OCAGroup != "" {
		for _, siblingID := range g.oca[o.leg.OCAGroup] {
			if siblingID == o.leg.ID {
				continue
			}
			if sib, ok := g.orders[siblingID]; ok && !sib.state.Status.Terminal() {
				g.cancelLocked(sib)
			}
		}
	}
	g.log.Debug().Str("order_id", o.leg.ID).Float64("price", px).Msg("fill")
}
