package portfolio

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestReserveRisk_CeilingEnforced(t *testing.T) {
	m := NewManager(100_000, "", nil)
	// ceiling = 6% of 100k = 6000
	if err := m.ReserveRisk(4000, 0.06); err != nil {
		t.Fatalf("first reservation should fit: %v", err)
	}
	if err := m.ReserveRisk(1999, 0.06); err != nil {
		t.Fatalf("second reservation should fit: %v", err)
	}
	err := m.ReserveRisk(2, 0.06)
	if !errors.Is(err, ErrRiskCeiling) {
		t.Fatalf("want ErrRiskCeiling, got %v", err)
	}
	if got := m.Snapshot().TotalRiskCommitted; got != 5999 {
		t.Fatalf("failed reservation must not mutate committed risk, got %v", got)
	}
}

func TestPositionLifecycle_PnLAndRiskRelease(t *testing.T) {
	m := NewManager(100_000, "", nil)
	if err := m.ReserveRisk(994.71, 0.06); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	pos := Position{
		Instrument: "AAPL", Quantity: 71, EntryPrice: 182.79,
		StopPrice: 168.78, RiskAmount: 994.71,
	}
	if err := m.OpenPending(pos); err != nil {
		t.Fatalf("open pending: %v", err)
	}
	if !m.HasActive("AAPL") {
		t.Fatalf("pending position should count as active")
	}
	if err := m.MarkOpen("AAPL", 182.79, time.Now()); err != nil {
		t.Fatalf("mark open: %v", err)
	}
	realized, err := m.Close("AAPL", 190.00)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	want := (190.00 - 182.79) * 71
	if diff := realized - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("realized %v, want %v", realized, want)
	}
	st := m.Snapshot()
	if st.TotalRiskCommitted != 0 {
		t.Fatalf("risk should be released on close, got %v", st.TotalRiskCommitted)
	}
	if m.HasActive("AAPL") {
		t.Fatalf("closed position should not be active")
	}
	if st.DailyRealizedPnL != realized {
		t.Fatalf("daily realized pnl %v, want %v", st.DailyRealizedPnL, realized)
	}
}

func TestOpenPending_DuplicateRejected(t *testing.T) {
	m := NewManager(100_000, "", nil)
	if err := m.OpenPending(Position{Instrument: "NVDA", Quantity: 10, RiskAmount: 100}); err != nil {
		t.Fatalf("first: %v", err)
	}
	err := m.OpenPending(Position{Instrument: "NVDA", Quantity: 5, RiskAmount: 50})
	if !errors.Is(err, ErrPositionExists) {
		t.Fatalf("want ErrPositionExists, got %v", err)
	}
}

func TestAbandon_ReleasesRiskWithoutPnL(t *testing.T) {
	m := NewManager(100_000, "", nil)
	_ = m.ReserveRisk(500, 0.06)
	_ = m.OpenPending(Position{Instrument: "TSLA", Quantity: 5, RiskAmount: 500})
	if err := m.Abandon("TSLA"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	st := m.Snapshot()
	if st.TotalRiskCommitted != 0 {
		t.Fatalf("risk not released: %v", st.TotalRiskCommitted)
	}
	if st.DailyRealizedPnL != 0 {
		t.Fatalf("abandon must not realize pnl: %v", st.DailyRealizedPnL)
	}
}

func TestRollDay_ResetsDailyCounters(t *testing.T) {
	day1 := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	clock := day1
	m := NewManager(100_000, "", func() time.Time { return clock })

	_ = m.ReserveRisk(1000, 0.06)
	_ = m.OpenPending(Position{Instrument: "AAPL", Quantity: 71, EntryPrice: 182.79, RiskAmount: 1000})
	_ = m.MarkOpen("AAPL", 182.79, clock)
	if _, err := m.Close("AAPL", 160.00); err != nil {
		t.Fatalf("close: %v", err)
	}
	before := m.Snapshot()
	if before.DailyRealizedPnL >= 0 {
		t.Fatalf("expected a loss, got %v", before.DailyRealizedPnL)
	}

	// Same day: rollover must be a no-op.
	m.RollDay()
	if m.Snapshot().DailyRealizedPnL != before.DailyRealizedPnL {
		t.Fatalf("same-day roll must not reset counters")
	}

	clock = day1.Add(24 * time.Hour)
	m.RollDay()
	after := m.Snapshot()
	if after.DailyRealizedPnL != 0 {
		t.Fatalf("daily pnl should reset on new day, got %v", after.DailyRealizedPnL)
	}
	wantCapital := before.TotalCapital + before.DailyRealizedPnL
	if after.TotalCapital != wantCapital {
		t.Fatalf("capital should fold in realized pnl: got %v, want %v", after.TotalCapital, wantCapital)
	}
	if after.DailyStartingEquity != after.TotalCapital {
		t.Fatalf("starting equity should re-anchor to capital")
	}
}

func TestMarkToMarket_UnrealizedIsReportingOnly(t *testing.T) {
	m := NewManager(100_000, "", nil)
	_ = m.ReserveRisk(994.71, 0.06)
	_ = m.OpenPending(Position{Instrument: "AAPL", Quantity: 71, EntryPrice: 182.79, RiskAmount: 994.71})
	_ = m.MarkOpen("AAPL", 182.79, time.Now())

	m.MarkToMarket(map[string]float64{"AAPL": 190.00, "NVDA": 500.00})
	st := m.Snapshot()
	want := (190.00 - 182.79) * 71
	if diff := st.UnrealizedPnL() - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unrealized %v, want %v", st.UnrealizedPnL(), want)
	}
	if st.DailyRealizedPnL != 0 {
		t.Fatalf("marks must not realize pnl: %v", st.DailyRealizedPnL)
	}
	if st.Positions["AAPL"].LastMark != 190.00 {
		t.Fatalf("last mark not recorded: %v", st.Positions["AAPL"].LastMark)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	now := fixedClock(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC))

	m := NewManager(100_000, path, now)
	_ = m.ReserveRisk(750, 0.06)
	_ = m.OpenPending(Position{Instrument: "MSFT", Quantity: 20, EntryPrice: 410, RiskAmount: 750})
	if err := m.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewManager(0, path, now)
	if err := restored.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	st := restored.Snapshot()
	if st.TotalCapital != 100_000 {
		t.Fatalf("capital not restored: %v", st.TotalCapital)
	}
	if st.TotalRiskCommitted != 750 {
		t.Fatalf("committed risk not restored: %v", st.TotalRiskCommitted)
	}
	if !restored.HasActive("MSFT") {
		t.Fatalf("position not restored")
	}
}
