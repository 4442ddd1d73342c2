package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelabs/decision-engine/internal/signal"
	"github.com/tradelabs/decision-engine/internal/technical"
)

func rawNews(instrument string, sentiment float64) signal.RawSignal {
	return signal.RawSignal{
		Kind: signal.KindNews,
		News: &signal.NewsPayload{
			Instrument:  instrument,
			Provider:    "finnhub",
			Category:    signal.CategoryNews,
			Sentiment:   sentiment,
			PublishedAt: time.Now(),
		},
	}
}

func TestMultiSource_PartialFailureKeepsHealthyFeeds(t *testing.T) {
	healthy := NewSimSignalSource("finnhub", []signal.RawSignal{rawNews("AAPL", 0.8)})
	broken := NewSimSignalSource("reddit", []signal.RawSignal{rawNews("NVDA", 0.5)})
	broken.Fail(true)

	ms := NewMultiSource(zerolog.Nop(), healthy, broken)
	raws, err := ms.Fetch(context.Background())
	require.NoError(t, err, "one healthy source is enough")
	require.Len(t, raws, 1)
	assert.Equal(t, "AAPL", raws[0].News.Instrument)
}

func TestMultiSource_TotalBlackoutErrors(t *testing.T) {
	a := NewSimSignalSource("a", nil)
	b := NewSimSignalSource("b", nil)
	a.Fail(true)
	b.Fail(true)

	ms := NewMultiSource(zerolog.Nop(), a, b)
	_, err := ms.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestSimBarSource_Deterministic(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	src := NewSimBarSource(base)

	first, err := src.GetBars(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	second, err := src.GetBars(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same inputs must produce identical bars")
	require.Len(t, first, 30)

	other, err := src.GetBars(context.Background(), "NVDA", 30)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Close, other[0].Close, "instruments should not move in lockstep")

	for _, b := range first {
		assert.GreaterOrEqual(t, b.High, b.Low)
		assert.Positive(t, b.Close)
	}
}

func TestSimBarSource_FixturesAndFailure(t *testing.T) {
	src := NewSimBarSource(time.Now())
	pinned := []technical.Bar{{Close: 182.79, High: 184, Low: 181, Open: 183}}
	src.SetBars("AAPL", pinned)

	bars, err := src.GetBars(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.Equal(t, pinned, bars)

	src.Fail(true)
	_, err = src.GetBars(context.Background(), "AAPL", 30)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestHTTPSignalSource_FetchAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signals":[{"kind":"news","news":{"instrument":"AAPL","provider":"finnhub","category":"earnings","sentiment":0.9,"published_at":"2026-03-02T14:00:00Z"}}]}`))
	}))
	defer srv.Close()

	src := NewHTTPSignalSource(HTTPSourceConfig{
		Name: "finnhub", URL: srv.URL, APIKey: "secret", RequestsPerSecond: 100,
	}, zerolog.Nop())

	raws, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, signal.KindNews, raws[0].Kind)
	assert.Equal(t, "AAPL", raws[0].News.Instrument)
}

func TestHTTPSignalSource_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPSignalSource(HTTPSourceConfig{
		Name: "flappy", URL: srv.URL, RequestsPerSecond: 1000,
	}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	}
	require.Equal(t, 3, hits)

	// Breaker is open now: the next call fails fast without hitting the wire.
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 3, hits)
}
