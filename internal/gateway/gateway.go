// Package gateway defines the order gateway collaborator and a paper
// implementation. The gateway is assumed to support linked ("one cancels
// other") order groups and a genuine conditional stop order type as
// first-class primitives.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRejected wraps a gateway rejection reason.
	ErrRejected = errors.New("gateway rejected order")
	// ErrTimeout means the gateway did not acknowledge in time. The outcome
	// is unknown: callers must poll Status before assuming non-submission.
	ErrTimeout = errors.New("gateway timeout")
	// ErrUnknownOrder is returned by Status/Cancel for an unknown order ID.
	ErrUnknownOrder = errors.New("unknown order id")
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// LegType is the order type of one bracket leg. Stop is a true conditional
// order: it arms at the stop price and executes as a market order once price
// crosses it. It is never a resting limit at the protective price.
type LegType string

const (
	Limit LegType = "LIMIT"
	Stop  LegType = "STOP"
	Trail LegType = "TRAIL"
)

// Leg is one order of a bracket group.
type Leg struct {
	ID             string  `json:"id,omitempty"` // client-assigned when set, else gateway-assigned
	GroupID        string  `json:"group_id"`
	Instrument     string  `json:"instrument"`
	Side           Side    `json:"side"`
	Type           LegType `json:"type"`
	Quantity       int     `json:"quantity"`
	LimitPrice     float64 `json:"limit_price,omitempty"`
	StopPrice      float64 `json:"stop_price,omitempty"`
	TrailDistance  float64 `json:"trail_distance,omitempty"`
	OCAGroup       string  `json:"oca_group,omitempty"` // linked exit legs share this
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

type LegStatus string

const (
	StatusWorking   LegStatus = "WORKING"
	StatusFilled    LegStatus = "FILLED"
	StatusCancelled LegStatus = "CANCELLED"
	StatusRejected  LegStatus = "REJECTED"
)

// Terminal reports whether no further transitions are possible for the leg.
func (s LegStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// LegState is the gateway-observed state of one order.
type LegState struct {
	Status    LegStatus `json:"status"`
	FillPrice float64   `json:"fill_price,omitempty"`
	FilledAt  time.Time `json:"filled_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// OrderGateway is the execution collaborator. All calls are blocking I/O
// bounded by the caller's context deadline.
type OrderGateway interface {
	Submit(ctx context.Context, leg Leg) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) error
	Status(ctx context.Context, orderID string) (LegState, error)
}
