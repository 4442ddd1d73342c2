package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(nil, nil, zerolog.Nop())
}

func TestNormalize_News(t *testing.T) {
	n := testNormalizer()
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	s, err := n.Normalize(RawSignal{Kind: KindNews, News: &NewsPayload{
		Instrument: "nvda", Provider: "finnhub", Category: CategoryUpgrade,
		Sentiment: 0.8, PublishedAt: at,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Instrument != "NVDA" {
		t.Fatalf("instrument not normalized: %q", s.Instrument)
	}
	if s.Direction != Bullish {
		t.Fatalf("want bullish, got %s", s.Direction)
	}
	if s.Magnitude != 0.8 {
		t.Fatalf("want magnitude 0.8, got %v", s.Magnitude)
	}
	if s.Credibility != 0.95 {
		t.Fatalf("want finnhub credibility 0.95, got %v", s.Credibility)
	}
}

func TestNormalize_EarningsDirectionAndSaturation(t *testing.T) {
	n := testNormalizer()
	at := time.Now().UTC()

	miss, err := n.Normalize(RawSignal{Kind: KindEarnings, Earnings: &EarningsPayload{
		Instrument: "AAPL", Provider: "finnhub_earnings", SurprisePct: -4.2, ReportedAt: at,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if miss.Direction != Bearish {
		t.Fatalf("negative surprise should be bearish, got %s", miss.Direction)
	}

	big, err := n.Normalize(RawSignal{Kind: KindEarnings, Earnings: &EarningsPayload{
		Instrument: "AAPL", Provider: "finnhub_earnings", SurprisePct: 35.0, ReportedAt: at,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if big.Magnitude != 1.0 {
		t.Fatalf("magnitude should saturate at 1.0, got %v", big.Magnitude)
	}
}

func TestNormalizeAll_DropsMalformedIndividually(t *testing.T) {
	n := testNormalizer()
	at := time.Now().UTC()
	raws := []RawSignal{
		{Kind: KindNews, News: &NewsPayload{Instrument: "TSLA", Provider: "finnhub", Sentiment: 0.5, PublishedAt: at}},
		{Kind: KindNews, News: nil}, // malformed: nil arm
		{Kind: Kind("garbage")},     // unrecognized kind
		{Kind: KindSocial, Social: &SocialPayload{Instrument: "not a ticker!", Provider: "reddit_stocks", Mentions: 10, Sentiment: 0.3, ObservedAt: at}},
		{Kind: KindInsider, Insider: &InsiderPayload{Instrument: "MSFT", Provider: "insider_trading", NetBuyUSD: 250000, FiledAt: at}},
	}
	kept, dropped := n.NormalizeAll(raws)
	if len(kept) != 2 {
		t.Fatalf("want 2 kept, got %d", len(kept))
	}
	if dropped != 3 {
		t.Fatalf("want 3 dropped, got %d", dropped)
	}
}

func TestNormalize_InvalidSignalSentinel(t *testing.T) {
	n := testNormalizer()
	_, err := n.Normalize(RawSignal{Kind: KindFlow, Flow: &FlowPayload{
		Instrument: "SPY", Provider: "options_market", CallPutRatio: -1, ObservedAt: time.Now(),
	}})
	if !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("want ErrInvalidSignal, got %v", err)
	}
}

func TestDecayWeight(t *testing.T) {
	h := 24 * time.Hour
	if w := DecayWeight(0, h); w != 1.0 {
		t.Fatalf("fresh signal weight want 1.0, got %v", w)
	}
	if w := DecayWeight(12*time.Hour, h); w != 0.5 {
		t.Fatalf("half-horizon weight want 0.5, got %v", w)
	}
	if w := DecayWeight(24*time.Hour, h); w != 0 {
		t.Fatalf("at-horizon weight want 0, got %v", w)
	}
	if w := DecayWeight(48*time.Hour, h); w != 0 {
		t.Fatalf("past-horizon weight want 0, got %v", w)
	}
}

func TestValidInstrument(t *testing.T) {
	good := []string{"A", "NVDA", "BRK.B", "GOOGL"}
	bad := []string{"", "nvda", "TOOLONGG", "BRK.BB", "123", "NV DA"}
	for _, id := range good {
		if !ValidInstrument(id) {
			t.Fatalf("%q should be valid", id)
		}
	}
	for _, id := range bad {
		if ValidInstrument(id) {
			t.Fatalf("%q should be invalid", id)
		}
	}
}
