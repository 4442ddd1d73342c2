// Package bracket manages three-legged entry/stop/trail order groups through
// an explicit state machine. Exits are linked gateway-side ("one cancels
// other"), and the orchestrator re-checks the sibling on every reconcile in
// case the venue linkage lags.
package bracket

import (
	"errors"
	"fmt"
	"time"

	"github.com/tradelabs/decision-engine/internal/observ"
)

var (
	// ErrBadTransition guards the state machine against illegal moves.
	ErrBadTransition = errors.New("illegal bracket state transition")
	// ErrDuplicateSubmission means an identical bracket was journaled inside
	// the dedupe window; the caller holds a retried tick, not a new intent.
	ErrDuplicateSubmission = errors.New("duplicate bracket submission")
	// ErrUnknownGroup is returned for lookups of a group ID never submitted.
	ErrUnknownGroup = errors.New("unknown bracket group")
)

type State string

const (
	StateCreated         State = "CREATED"
	StateSubmitting      State = "SUBMITTING"
	StateSubmitted       State = "SUBMITTED"
	StateEntryFilled     State = "ENTRY_FILLED"
	StateActive          State = "ACTIVE"
	StateExitStopFilled  State = "EXIT_STOP_FILLED"
	StateExitTrailFilled State = "EXIT_TRAIL_FILLED"
	StateManuallyClosed  State = "MANUALLY_CLOSED"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
	StateClosed          State = "CLOSED"
)

// Terminal reports whether the group needs no further reconciliation.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateRejected || s == StateCancelled
}

var transitions = map[State][]State{
	StateCreated:         {StateSubmitting},
	StateSubmitting:      {StateSubmitted, StateRejected, StateCancelled},
	StateSubmitted:       {StateEntryFilled, StateRejected, StateCancelled},
	StateEntryFilled:     {StateActive},
	StateActive:          {StateExitStopFilled, StateExitTrailFilled, StateManuallyClosed},
	StateExitStopFilled:  {StateClosed},
	StateExitTrailFilled: {StateClosed},
	StateManuallyClosed:  {StateClosed},
}

// Group is one bracket through its life. Leg IDs are gateway-assigned.
type Group struct {
	ID             string    `json:"id"`
	Instrument     string    `json:"instrument"`
	Size           int       `json:"size"`
	EntryPrice     float64   `json:"entry_price"`
	StopPrice      float64   `json:"stop_price"`
	TrailDistance  float64   `json:"trail_distance"`
	RiskAmount     float64   `json:"risk_amount"`
	State          State     `json:"state"`
	EntryLegID     string    `json:"entry_leg_id,omitempty"`
	StopLegID      string    `json:"stop_leg_id,omitempty"`
	TrailLegID     string    `json:"trail_leg_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

func (g *Group) transition(to State) error {
	for _, allowed := range transitions[g.State] {
		if allowed == to {
			g.State = to
			observ.BracketTransitions.WithLabelValues(string(to)).Inc()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (group %s)", ErrBadTransition, g.State, to, g.ID)
}
