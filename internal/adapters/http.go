package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tradelabs/decision-engine/internal/signal"
)

// HTTPSignalSource polls a JSON feed endpoint for raw signals. Calls are rate
// limited and wrapped in a circuit breaker so a flapping provider trips open
// instead of burning the refresh budget on timeouts.
type HTTPSignalSource struct {
	name    string
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

type HTTPSourceConfig struct {
	Name              string
	URL               string
	APIKey            string
	Timeout           time.Duration // per-request; zero means 10s
	RequestsPerSecond float64       // zero means 1 rps
}

func NewHTTPSignalSource(cfg HTTPSourceConfig, log zerolog.Logger) *HTTPSignalSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &HTTPSignalSource{
		name:    cfg.Name,
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: breaker,
		log:     log.With().Str("component", "http_source").Str("source", cfg.Name).Logger(),
	}
}

func (h *HTTPSignalSource) Name() string { return h.name }

func (h *HTTPSignalSource) Fetch(ctx context.Context) ([]signal.RawSignal, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrSourceUnavailable, err)
	}
	res, err := h.breaker.Execute(func() (interface{}, error) {
		return h.fetchOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, h.name, err)
	}
	return res.([]signal.RawSignal), nil
}

func (h *HTTPSignalSource) fetchOnce(ctx context.Context) ([]signal.RawSignal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	if h.apiKey != "" {
		req.Header.Set("X-Api-Key", h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var payload struct {
		Signals []signal.RawSignal `json:"signals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	h.log.Debug().Int("count", len(payload.Signals)).Msg("signals fetched")
	return payload.Signals, nil
}
