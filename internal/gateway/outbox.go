package gateway

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outbox is an append-only JSONL journal of every order, fill and cancel the
// gateway sees. It doubles as a dedupe check: HasRecent answers whether an
// idempotency key was already submitted inside the window, guarding retried
// ticks against duplicate submissions.
type Outbox struct {
	mu           sync.Mutex
	path         string
	dedupeWindow time.Duration
	now          func() time.Time
}

type outboxEntry struct {
	Type string    `json:"type"` // "order" | "fill" | "cancel"
	Leg  *Leg      `json:"leg,omitempty"`
	Fill *FillNote `json:"fill,omitempty"`
	ID   string    `json:"id,omitempty"`
	At   time.Time `json:"at"`
}

// FillNote is the journaled record of an execution.
type FillNote struct {
	OrderID    string  `json:"order_id"`
	Instrument string  `json:"instrument"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	Side       Side    `json:"side"`
}

func NewOutbox(path string, dedupeWindow time.Duration, now func() time.Time) (*Outbox, error) {
	if now == nil {
		now = time.Now
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	return &Outbox{path: path, dedupeWindow: dedupeWindow, now: now}, nil
}

func (o *Outbox) WriteOrder(leg Leg) error {
	return o.append(outboxEntry{Type: "order", Leg: &leg, At: o.now().UTC()})
}

func (o *Outbox) WriteFill(f FillNote) error {
	return o.append(outboxEntry{Type: "fill", Fill: &f, At: o.now().UTC()})
}

func (o *Outbox) WriteCancel(orderID string) error {
	return o.append(outboxEntry{Type: "cancel", ID: orderID, At: o.now().UTC()})
}

func (o *Outbox) append(e outboxEntry) error {
	if o.path == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// HasRecent reports whether an order with the given idempotency key was
// journaled within the dedupe window.
func (o *Outbox) HasRecent(idempotencyKey string) (bool, error) {
	if o.path == "" || idempotencyKey == "" {
		return false, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.Open(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	cutoff := o.now().UTC().Add(-o.dedupeWindow)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e outboxEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue // tolerate a torn tail line
		}
		if e.Type != "order" || e.Leg == nil || e.At.Before(cutoff) {
			continue
		}
		if e.Leg.IdempotencyKey == idempotencyKey {
			return true, nil
		}
	}
	return false, sc.Err()
}
