package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Kind tags which arm of a RawSignal is populated.
type Kind string

const (
	KindNews     Kind = "news"
	KindEarnings Kind = "earnings"
	KindSocial   Kind = "social"
	KindInsider  Kind = "insider"
	KindFlow     Kind = "flow"
)

// RawSignal is the provider-shaped payload: a tagged variant with exactly one
// arm set. Sources emit these; the normalizer turns them into CatalystSignals.
type RawSignal struct {
	Kind     Kind             `json:"kind"`
	News     *NewsPayload     `json:"news,omitempty"`
	Earnings *EarningsPayload `json:"earnings,omitempty"`
	Social   *SocialPayload   `json:"social,omitempty"`
	Insider  *InsiderPayload  `json:"insider,omitempty"`
	Flow     *FlowPayload     `json:"flow,omitempty"`
}

// NewsPayload carries a classified headline. Sentiment comes from the upstream
// classifier and is treated as a black box here.
type NewsPayload struct {
	Instrument  string    `json:"instrument"`
	Provider    string    `json:"provider"`
	Category    Category  `json:"category"`  // earnings|upgrade|acquisition|product|news
	Sentiment   float64   `json:"sentiment"` // [-1,1]
	PublishedAt time.Time `json:"published_at"`
}

type EarningsPayload struct {
	Instrument  string    `json:"instrument"`
	Provider    string    `json:"provider"`
	SurprisePct float64   `json:"surprise_pct"` // actual vs. estimate, percent
	ReportedAt  time.Time `json:"reported_at"`
}

type SocialPayload struct {
	Instrument string    `json:"instrument"`
	Provider   string    `json:"provider"` // e.g. "reddit_wallstreetbets"
	Mentions   int       `json:"mentions"`
	Sentiment  float64   `json:"sentiment"` // [-1,1]
	ObservedAt time.Time `json:"observed_at"`
}

type InsiderPayload struct {
	Instrument string    `json:"instrument"`
	Provider   string    `json:"provider"`
	NetBuyUSD  float64   `json:"net_buy_usd"` // negative means net selling
	FiledAt    time.Time `json:"filed_at"`
}

type FlowPayload struct {
	Instrument   string    `json:"instrument"`
	Provider     string    `json:"provider"`
	CallPutRatio float64   `json:"call_put_ratio"`
	PremiumUSD   float64   `json:"premium_usd"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Normalizer maps raw payloads onto canonical records, applying the source
// credibility and per-category confidence tables.
type Normalizer struct {
	credibility map[string]float64 // source -> [0,1]
	confidence  map[Category]float64
	log         zerolog.Logger
}

// DefaultCredibility mirrors the source trust table the scoring was tuned on.
func DefaultCredibility() map[string]float64 {
	return map[string]float64{
		"finnhub":               0.95,
		"finnhub_earnings":      0.98,
		"insider_trading":       0.92,
		"options_market":        0.85,
		"reddit_wallstreetbets": 0.60,
		"reddit_stocks":         0.70,
		"reddit_investing":      0.68,
		"yahoo_trending":        0.65,
	}
}

// DefaultConfidence is the per-category prior confidence.
func DefaultConfidence() map[Category]float64 {
	return map[Category]float64{
		CategoryEarnings:       0.90,
		CategoryAcquisition:    0.88,
		CategoryUpgrade:        0.85,
		CategoryProduct:        0.75,
		CategoryInsiderBuy:     0.82,
		CategoryOptionsUnusual: 0.70,
		CategoryVolumeSpike:    0.65,
		CategorySocialBuzz:     0.55,
		CategoryNews:           0.60,
	}
}

func NewNormalizer(credibility map[string]float64, confidence map[Category]float64, log zerolog.Logger) *Normalizer {
	if credibility == nil {
		credibility = DefaultCredibility()
	}
	if confidence == nil {
		confidence = DefaultConfidence()
	}
	return &Normalizer{
		credibility: credibility,
		confidence:  confidence,
		log:         log.With().Str("component", "normalizer").Logger(),
	}
}

const unknownSourceCredibility = 0.7

func (n *Normalizer) credibilityFor(source string) float64 {
	if c, ok := n.credibility[source]; ok {
		return c
	}
	return unknownSourceCredibility
}

func (n *Normalizer) confidenceFor(c Category) float64 {
	if v, ok := n.confidence[c]; ok {
		return v
	}
	return 0.6
}

// Normalize converts one raw payload. Unrecognized kinds and malformed fields
// return ErrInvalidSignal so callers drop the single signal.
func (n *Normalizer) Normalize(raw RawSignal) (CatalystSignal, error) {
	var s CatalystSignal
	var err error
	switch raw.Kind {
	case KindNews:
		s, err = n.fromNews(raw.News)
	case KindEarnings:
		s, err = n.fromEarnings(raw.Earnings)
	case KindSocial:
		s, err = n.fromSocial(raw.Social)
	case KindInsider:
		s, err = n.fromInsider(raw.Insider)
	case KindFlow:
		s, err = n.fromFlow(raw.Flow)
	default:
		return CatalystSignal{}, fmt.Errorf("%w: unrecognized kind %q", ErrInvalidSignal, raw.Kind)
	}
	if err != nil {
		return CatalystSignal{}, err
	}
	if err := s.Validate(); err != nil {
		return CatalystSignal{}, err
	}
	return s, nil
}

// NormalizeAll normalizes a batch, dropping malformed payloads individually.
// It never fails the batch; the drop count is returned for degradation logging.
func (n *Normalizer) NormalizeAll(raws []RawSignal) ([]CatalystSignal, int) {
	out := make([]CatalystSignal, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		s, err := n.Normalize(raw)
		if err != nil {
			dropped++
			n.log.Debug().Err(err).Str("kind", string(raw.Kind)).Msg("signal dropped")
			continue
		}
		out = append(out, s)
	}
	if dropped > 0 {
		n.log.Warn().Int("dropped", dropped).Int("kept", len(out)).Msg("malformed signals dropped")
	}
	return out, dropped
}

func directionFromSentiment(sentiment float64) Direction {
	switch {
	case sentiment > 0.05:
		return Bullish
	case sentiment < -0.05:
		return Bearish
	default:
		return Neutral
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (n *Normalizer) fromNews(p *NewsPayload) (CatalystSignal, error) {
	if p == nil {
		return CatalystSignal{}, fmt.Errorf("%w: nil news payload", ErrInvalidSignal)
	}
	cat := p.Category
	if cat == "" {
		cat = CategoryNews
	}
	return CatalystSignal{
		Instrument:  NormalizeInstrument(p.Instrument),
		Source:      p.Provider,
		Category:    cat,
		Direction:   directionFromSentiment(p.Sentiment),
		Magnitude:   clamp01(math.Abs(p.Sentiment)),
		Confidence:  n.confidenceFor(cat),
		Credibility: n.credibilityFor(p.Provider),
		ObservedAt:  p.PublishedAt,
	}, nil
}

func (n *Normalizer) fromEarnings(p *EarningsPayload) (CatalystSignal, error) {
	if p == nil {
		return CatalystSignal{}, fmt.Errorf("%w: nil earnings payload", ErrInvalidSignal)
	}
	dir := Bullish
	if p.SurprisePct < 0 {
		dir = Bearish
	}
	// A 10% surprise is treated as a full-magnitude event.
	return CatalystSignal{
		Instrument:  NormalizeInstrument(p.Instrument),
		Source:      p.Provider,
		Category:    CategoryEarnings,
		Direction:   dir,
		Magnitude:   clamp01(math.Abs(p.SurprisePct) / 10.0),
		Confidence:  n.confidenceFor(CategoryEarnings),
		Credibility: n.credibilityFor(p.Provider),
		ObservedAt:  p.ReportedAt,
	}, nil
}

func (n *Normalizer) fromSocial(p *SocialPayload) (CatalystSignal, error) {
	if p == nil {
		return CatalystSignal{}, fmt.Errorf("%w: nil social payload", ErrInvalidSignal)
	}
	if p.Mentions < 0 {
		return CatalystSignal{}, fmt.Errorf("%w: negative mention count", ErrInvalidSignal)
	}
	// 100 mentions in a window saturates the buzz magnitude.
	return CatalystSignal{
		Instrument:  NormalizeInstrument(p.Instrument),
		Source:      p.Provider,
		Category:    CategorySocialBuzz,
		Direction:   directionFromSentiment(p.Sentiment),
		Magnitude:   clamp01(float64(p.Mentions) / 100.0),
		Confidence:  n.confidenceFor(CategorySocialBuzz),
		Credibility: n.credibilityFor(p.Provider),
		ObservedAt:  p.ObservedAt,
	}, nil
}

func (n *Normalizer) fromInsider(p *InsiderPayload) (CatalystSignal, error) {
	if p == nil {
		return CatalystSignal{}, fmt.Errorf("%w: nil insider payload", ErrInvalidSignal)
	}
	dir := Bullish
	if p.NetBuyUSD < 0 {
		dir = Bearish
	}
	// $1M of net insider buying saturates magnitude.
	return CatalystSignal{
		Instrument:  NormalizeInstrument(p.Instrument),
		Source:      p.Provider,
		Category:    CategoryInsiderBuy,
		Direction:   dir,
		Magnitude:   clamp01(math.Abs(p.NetBuyUSD) / 1_000_000),
		Confidence:  n.confidenceFor(CategoryInsiderBuy),
		Credibility: n.credibilityFor(p.Provider),
		ObservedAt:  p.FiledAt,
	}, nil
}

func (n *Normalizer) fromFlow(p *FlowPayload) (CatalystSignal, error) {
	if p == nil {
		return CatalystSignal{}, fmt.Errorf("%w: nil flow payload", ErrInvalidSignal)
	}
	if p.CallPutRatio < 0 || p.PremiumUSD < 0 {
		return CatalystSignal{}, fmt.Errorf("%w: negative flow metrics", ErrInvalidSignal)
	}
	dir := Neutral
	switch {
	case p.CallPutRatio >= 1.5:
		dir = Bullish
	case p.CallPutRatio > 0 && p.CallPutRatio <= 0.67:
		dir = Bearish
	}
	// $5M of premium saturates magnitude.
	return CatalystSignal{
		Instrument:  NormalizeInstrument(p.Instrument),
		Source:      p.Provider,
		Category:    CategoryOptionsUnusual,
		Direction:   dir,
		Magnitude:   clamp01(p.PremiumUSD / 5_000_000),
		Confidence:  n.confidenceFor(CategoryOptionsUnusual),
		Credibility: n.credibilityFor(p.Provider),
		ObservedAt:  p.ObservedAt,
	}, nil
}
