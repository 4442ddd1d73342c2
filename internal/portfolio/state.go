// Package portfolio owns the single mutable portfolio state: positions, the
// committed risk budget and the daily P&L counters. The control loop is the
// only writer; the mutex exists for concurrent readers (status surfaces),
// not for competing writers.
package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tradelabs/decision-engine/internal/observ"
)

// ErrRiskCeiling is returned when a reservation would push committed risk
// past the configured fraction of capital.
var ErrRiskCeiling = errors.New("risk ceiling exceeded")

// ErrPositionExists guards the one-open-position-per-instrument invariant.
var ErrPositionExists = errors.New("position already exists")

// ErrNoPosition is returned for operations on an unknown instrument.
var ErrNoPosition = errors.New("no position for instrument")

// PositionStatus tracks a position through its life.
type PositionStatus string

const (
	StatusPending PositionStatus = "PENDING" // entry submitted, not yet filled
	StatusOpen    PositionStatus = "OPEN"
	StatusClosed  PositionStatus = "CLOSED"
)

// Position is exclusively owned by the portfolio state.
type Position struct {
	Instrument    string         `json:"instrument"`
	Quantity      int            `json:"quantity"`
	EntryPrice    float64        `json:"entry_price"`
	StopPrice     float64        `json:"stop_price"`
	TrailDistance float64        `json:"trail_distance"`
	RiskAmount    float64        `json:"risk_amount"`
	LastMark      float64        `json:"last_mark,omitempty"`
	OpenedAt      time.Time      `json:"opened_at"`
	Status        PositionStatus `json:"status"`
}

// State is the persisted snapshot shape.
type State struct {
	Version             int64               `json:"version"`
	UpdatedAt           time.Time           `json:"updated_at"`
	Date                string              `json:"date"` // UTC trading day YYYY-MM-DD
	TotalCapital        float64             `json:"total_capital"`
	Positions           map[string]Position `json:"positions"`
	TotalRiskCommitted  float64             `json:"total_risk_committed"`
	DailyRealizedPnL    float64             `json:"daily_realized_pnl"`
	DailyStartingEquity float64             `json:"daily_starting_equity"`
}

// Manager serializes access to the state and persists it atomically.
type Manager struct {
	mu    sync.RWMutex
	state State
	path  string // empty disables persistence (tests)
	now   func() time.Time
}

func NewManager(totalCapital float64, path string, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		state: State{
			TotalCapital:        totalCapital,
			Positions:           map[string]Position{},
			DailyStartingEquity: totalCapital,
			Date:                now().UTC().Format("2006-01-02"),
		},
		path: path,
		now:  now,
	}
	return m
}

// Load restores a persisted snapshot; a missing file keeps the fresh state.
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m.saveLocked()
		}
		return fmt.Errorf("read portfolio state: %w", err)
	}
	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("unmarshal portfolio state: %w", err)
	}
	if loaded.Positions == nil {
		loaded.Positions = map[string]Position{}
	}
	m.state = loaded
	m.rollDayLocked()
	return nil
}

// Save persists atomically via temp file + rename.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if m.path == "" {
		return nil
	}
	m.state.Version++
	m.state.UpdatedAt = m.now().UTC()

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal portfolio state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("mkdir for portfolio state: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write portfolio state: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename portfolio state: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy for readers; mutating it affects nothing.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.state
	cp.Positions = make(map[string]Position, len(m.state.Positions))
	for k, v := range m.state.Positions {
		cp.Positions[k] = v
	}
	return cp
}

// RollDay folds realized P&L into capital and resets the daily counters when
// the UTC trading day changes. The kill switch re-arms through this reset.
func (m *Manager) RollDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
}

func (m *Manager) rollDayLocked() {
	today := m.now().UTC().Format("2006-01-02")
	if m.state.Date == today {
		return
	}
	m.state.TotalCapital += m.state.DailyRealizedPnL
	m.state.DailyRealizedPnL = 0
	m.state.DailyStartingEquity = m.state.TotalCapital
	m.state.Date = today
	observ.DailyRealizedPnL.Set(0)
}

// ReserveRisk pessimistically commits risk budget for an accepted candidate.
// It is the authoritative ceiling check: the reservation fails rather than
// ever letting committed risk exceed maxFraction of capital.
func (m *Manager) ReserveRisk(amount, maxFraction float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount <= 0 {
		return fmt.Errorf("non-positive risk reservation %.2f", amount)
	}
	ceiling := maxFraction * m.state.TotalCapital
	if m.state.TotalRiskCommitted+amount > ceiling {
		return fmt.Errorf("%w: committed %.2f + %.2f > %.2f",
			ErrRiskCeiling, m.state.TotalRiskCommitted, amount, ceiling)
	}
	m.state.TotalRiskCommitted += amount
	observ.RiskCommitted.Set(m.state.TotalRiskCommitted)
	return nil
}

// ReleaseRisk returns reserved budget after a rejection, cancellation or close.
func (m *Manager) ReleaseRisk(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TotalRiskCommitted -= amount
	if m.state.TotalRiskCommitted < 0 {
		m.state.TotalRiskCommitted = 0
	}
	observ.RiskCommitted.Set(m.state.TotalRiskCommitted)
}

// OpenPending records a position awaiting its entry fill. Risk must already
// be reserved.
func (m *Manager) OpenPending(p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.state.Positions[p.Instrument]; ok && existing.Status != StatusClosed {
		return fmt.Errorf("%w: %s", ErrPositionExists, p.Instrument)
	}
	p.Status = StatusPending
	m.state.Positions[p.Instrument] = p
	return nil
}

// MarkOpen flips a pending position to OPEN at the actual entry fill price.
func (m *Manager) MarkOpen(instrument string, fillPrice float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.Positions[instrument]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPosition, instrument)
	}
	p.Status = StatusOpen
	p.EntryPrice = fillPrice
	p.OpenedAt = at
	m.state.Positions[instrument] = p
	observ.OpenPositions.Set(float64(m.openCountLocked()))
	return nil
}

// Close reconciles a position to CLOSED, realizes P&L from recorded entry vs.
// exit price, releases its risk reservation and removes it from the book.
func (m *Manager) Close(instrument string, exitPrice float64) (realized float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.Positions[instrument]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPosition, instrument)
	}
	realized = (exitPrice - p.EntryPrice) * float64(p.Quantity)
	m.state.DailyRealizedPnL += realized
	m.state.TotalRiskCommitted -= p.RiskAmount
	if m.state.TotalRiskCommitted < 0 {
		m.state.TotalRiskCommitted = 0
	}
	delete(m.state.Positions, instrument)

	observ.RiskCommitted.Set(m.state.TotalRiskCommitted)
	observ.DailyRealizedPnL.Set(m.state.DailyRealizedPnL)
	observ.OpenPositions.Set(float64(m.openCountLocked()))
	return realized, nil
}

// Abandon drops a PENDING position whose entry never filled and releases its
// risk. No P&L is realized.
func (m *Manager) Abandon(instrument string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.Positions[instrument]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPosition, instrument)
	}
	m.state.TotalRiskCommitted -= p.RiskAmount
	if m.state.TotalRiskCommitted < 0 {
		m.state.TotalRiskCommitted = 0
	}
	delete(m.state.Positions, instrument)
	observ.RiskCommitted.Set(m.state.TotalRiskCommitted)
	return nil
}

// MarkToMarket records the latest marks on open positions. Unrealized P&L is
// reporting-only; it never feeds the kill switch.
func (m *Manager) MarkToMarket(marks map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unrealized := 0.0
	for instr, p := range m.state.Positions {
		if px, ok := marks[instr]; ok && px > 0 {
			p.LastMark = px
			m.state.Positions[instr] = p
		}
		if p.Status == StatusOpen && p.LastMark > 0 {
			unrealized += (p.LastMark - p.EntryPrice) * float64(p.Quantity)
		}
	}
	observ.UnrealizedPnL.Set(unrealized)
}

// UnrealizedPnL sums mark-to-market P&L over OPEN positions with a known mark.
func (s State) UnrealizedPnL() float64 {
	total := 0.0
	for _, p := range s.Positions {
		if p.Status == StatusOpen && p.LastMark > 0 {
			total += (p.LastMark - p.EntryPrice) * float64(p.Quantity)
		}
	}
	return total
}

// HasActive reports whether the instrument has a PENDING or OPEN position.
func (m *Manager) HasActive(instrument string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.state.Positions[instrument]
	return ok && p.Status != StatusClosed
}

// OpenCount counts PENDING and OPEN positions; both hold a concurrency slot.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openCountLocked()
}

func (m *Manager) openCountLocked() int {
	n := 0
	for _, p := range m.state.Positions {
		if p.Status != StatusClosed {
			n++
		}
	}
	return n
}
