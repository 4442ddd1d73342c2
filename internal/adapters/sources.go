// Package adapters holds the data-source collaborators: catalyst signal feeds
// and price bar providers, plus deterministic sims for tests and dry runs.
package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradelabs/decision-engine/internal/observ"
	"github.com/tradelabs/decision-engine/internal/signal"
	"github.com/tradelabs/decision-engine/internal/technical"
)

// ErrSourceUnavailable marks a transient source failure. The engine degrades
// (retained bundles, technical-only scoring) instead of halting.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrAllSourcesFailed means every configured signal source failed in one
// refresh; the caller keeps the previous catalyst snapshot.
var ErrAllSourcesFailed = errors.New("all signal sources failed")

// SignalSource is one catalyst feed.
type SignalSource interface {
	Name() string
	Fetch(ctx context.Context) ([]signal.RawSignal, error)
}

// BarSource provides recent daily bars for an instrument, oldest first.
type BarSource interface {
	GetBars(ctx context.Context, instrument string, lookback int) ([]technical.Bar, error)
}

// MultiSource fans a refresh across every configured feed. Per-source failures
// are downgraded to log lines and metrics; only a total blackout is an error.
type MultiSource struct {
	sources []SignalSource
	log     zerolog.Logger
}

func NewMultiSource(log zerolog.Logger, sources ...SignalSource) *MultiSource {
	return &MultiSource{
		sources: sources,
		log:     log.With().Str("component", "signal_sources").Logger(),
	}
}

func (m *MultiSource) Fetch(ctx context.Context) ([]signal.RawSignal, error) {
	if len(m.sources) == 0 {
		return nil, nil
	}
	var out []signal.RawSignal
	failed := 0
	for _, src := range m.sources {
		raws, err := src.Fetch(ctx)
		if err != nil {
			failed++
			observ.SourceFailures.WithLabelValues(src.Name()).Inc()
			m.log.Warn().Err(err).Str("source", src.Name()).Msg("signal fetch failed")
			continue
		}
		out = append(out, raws...)
	}
	if failed == len(m.sources) {
		return nil, fmt.Errorf("%w: %d sources", ErrAllSourcesFailed, failed)
	}
	return out, nil
}
