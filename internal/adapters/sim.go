package adapters

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/tradelabs/decision-engine/internal/signal"
	"github.com/tradelabs/decision-engine/internal/technical"
)

// SimSignalSource replays a fixed script of raw signals. Error injection via
// Fail lets tests and dry runs exercise degradation paths.
type SimSignalSource struct {
	mu      sync.Mutex
	name    string
	signals []signal.RawSignal
	fail    bool
}

func NewSimSignalSource(name string, signals []signal.RawSignal) *SimSignalSource {
	return &SimSignalSource{name: name, signals: signals}
}

func (s *SimSignalSource) Name() string { return s.name }

// Fail toggles whether the next Fetch errors.
func (s *SimSignalSource) Fail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// SetSignals replaces the script.
func (s *SimSignalSource) SetSignals(signals []signal.RawSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = signals
}

func (s *SimSignalSource) Fetch(ctx context.Context) ([]signal.RawSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("%w: %s (injected)", ErrSourceUnavailable, s.name)
	}
	out := make([]signal.RawSignal, len(s.signals))
	copy(out, s.signals)
	return out, nil
}

// SimBarSource synthesizes deterministic daily bars per instrument: a gentle
// drift plus a symbol-seeded phase so different instruments do not move in
// lockstep. The same instrument and lookback always produce the same bars.
type SimBarSource struct {
	mu    sync.Mutex
	base  time.Time
	fail  bool
	fixed map[string][]technical.Bar // explicit fixtures override synthesis
}

func NewSimBarSource(base time.Time) *SimBarSource {
	return &SimBarSource{base: base, fixed: map[string][]technical.Bar{}}
}

func (s *SimBarSource) Fail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// SetBars pins an explicit bar series for an instrument.
func (s *SimBarSource) SetBars(instrument string, bars []technical.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed[instrument] = bars
}

func (s *SimBarSource) GetBars(ctx context.Context, instrument string, lookback int) ([]technical.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("%w: bar source (injected)", ErrSourceUnavailable)
	}
	if bars, ok := s.fixed[instrument]; ok {
		if len(bars) > lookback {
			bars = bars[len(bars)-lookback:]
		}
		out := make([]technical.Bar, len(bars))
		copy(out, bars)
		return out, nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(instrument))
	seed := float64(h.Sum32()%1000) / 1000.0

	bars := make([]technical.Bar, 0, lookback)
	price := 50 + seed*400
	for i := 0; i < lookback; i++ {
		drift := 1 + 0.002*math.Sin(float64(i)/4+seed*math.Pi*2)
		open := price
		price *= drift
		hi := math.Max(open, price) * 1.01
		lo := math.Min(open, price) * 0.99
		bars = append(bars, technical.Bar{
			Time:   s.base.AddDate(0, 0, i-lookback),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  price,
			Volume: 1_000_000 * (1 + seed),
		})
	}
	return bars, nil
}
