package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/tradelabs/decision-engine/internal/portfolio"
)

func TestSafetyGate_KillSwitchBoundary(t *testing.T) {
	g := NewSafetyGate(0.015, 0)

	cases := []struct {
		name string
		pnl  float64
		want bool
	}{
		{"small loss stays open", -1499, true},
		{"exact threshold trips", -1500, false},
		{"beyond threshold trips", -1600, false},
		{"profit stays open", 2000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := portfolio.State{DailyStartingEquity: 100_000, DailyRealizedPnL: tc.pnl}
			ok, reason := g.Evaluate(st)
			if ok != tc.want {
				t.Fatalf("Evaluate(pnl=%v) = %v (%s), want %v", tc.pnl, ok, reason, tc.want)
			}
			if !ok && reason == "" {
				t.Fatalf("closed gate must explain itself")
			}
		})
	}
}

func TestSafetyGate_ZeroEquityNeverDividesByZero(t *testing.T) {
	g := NewSafetyGate(0.015, 0)
	ok, _ := g.Evaluate(portfolio.State{DailyStartingEquity: 0, DailyRealizedPnL: -50})
	if !ok {
		t.Fatalf("zero starting equity should not trip the switch")
	}
}

func TestSafetyGate_PreTradeValidation(t *testing.T) {
	g := NewSafetyGate(0.015, 0)
	now := time.Now()

	err := g.CheckCandidate(candidate("AAPL", 80, 0.9, 0, 5), now)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("zero entry price: want ErrValidation, got %v", err)
	}
	err = g.CheckCandidate(candidate("AAPL", 80, 0.9, 100, 0), now)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("zero volatility: want ErrValidation, got %v", err)
	}
	if err := g.CheckCandidate(candidate("AAPL", 80, 0.9, 100, 5), now); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}
}

func TestSafetyGate_CooldownBlocksThenExpires(t *testing.T) {
	g := NewSafetyGate(0.015, 30*time.Minute)
	exitAt := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	g.RecordExit("NVDA", exitAt)

	c := candidate("NVDA", 80, 0.9, 500, 10)
	err := g.CheckCandidate(c, exitAt.Add(10*time.Minute))
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("inside window: want ErrCooldown, got %v", err)
	}
	if err := g.CheckCandidate(c, exitAt.Add(31*time.Minute)); err != nil {
		t.Fatalf("after window: %v", err)
	}
	// Other instruments are unaffected by NVDA's cooldown.
	if err := g.CheckCandidate(candidate("AAPL", 80, 0.9, 100, 5), exitAt.Add(time.Minute)); err != nil {
		t.Fatalf("unrelated instrument blocked: %v", err)
	}
}

func TestThrottle_SlidingWindowCap(t *testing.T) {
	th := NewThrottle(2, time.Hour)
	if !th.Allow() {
		t.Fatalf("empty throttle must allow")
	}
	th.Record()
	if !th.Allow() {
		t.Fatalf("one of two used, must allow")
	}
	th.Record()
	if th.Allow() {
		t.Fatalf("window full, must refuse")
	}
}

func TestValidator_ShapeAndUniverse(t *testing.T) {
	open := NewInstrumentValidator(nil)
	for _, sym := range []string{"A", "NVDA", "BRK.A", "GOOGL"} {
		if err := open.Validate(sym); err != nil {
			t.Fatalf("%s should be valid: %v", sym, err)
		}
	}
	for _, sym := range []string{"", "nvda", "TOOLONGG", "BRK.AA", "123"} {
		if err := open.Validate(sym); err == nil {
			t.Fatalf("%q should be rejected", sym)
		}
	}

	scoped := NewInstrumentValidator([]string{"aapl", "NVDA"})
	if err := scoped.Validate("AAPL"); err != nil {
		t.Fatalf("universe entries are normalized: %v", err)
	}
	if err := scoped.Validate("MSFT"); !errors.Is(err, ErrUniverse) {
		t.Fatalf("want ErrUniverse, got %v", err)
	}
}
