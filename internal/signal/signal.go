package signal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidSignal marks a single malformed or unrecognized payload. The
// offending signal is dropped; the rest of the batch is unaffected.
var ErrInvalidSignal = errors.New("invalid signal")

// Direction is the trade direction implied by a catalyst.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Sign maps a direction onto the scoring axis.
func (d Direction) Sign() float64 {
	switch d {
	case Bullish:
		return 1.0
	case Bearish:
		return -1.0
	default:
		return 0.0
	}
}

// Category classifies what kind of catalyst a signal describes.
type Category string

const (
	CategoryEarnings       Category = "earnings"
	CategoryUpgrade        Category = "upgrade"
	CategoryAcquisition    Category = "acquisition"
	CategoryProduct        Category = "product"
	CategoryInsiderBuy     Category = "insider_buy"
	CategoryOptionsUnusual Category = "options_unusual"
	CategoryVolumeSpike    Category = "volume_spike"
	CategorySocialBuzz     Category = "social_buzz"
	CategoryNews           Category = "news"
)

var knownCategories = map[Category]bool{
	CategoryEarnings:       true,
	CategoryUpgrade:        true,
	CategoryAcquisition:    true,
	CategoryProduct:        true,
	CategoryInsiderBuy:     true,
	CategoryOptionsUnusual: true,
	CategoryVolumeSpike:    true,
	CategorySocialBuzz:     true,
	CategoryNews:           true,
}

// KnownCategory reports whether c is one of the recognized catalyst categories.
func KnownCategory(c Category) bool { return knownCategories[c] }

var instrumentRe = regexp.MustCompile(`^[A-Z]{1,6}(\.[A-Z])?$`)

// ValidInstrument checks the identifier shape (1-6 upper-case letters with an
// optional single-letter class suffix). Venue-universe membership is checked
// separately at the allocation boundary.
func ValidInstrument(id string) bool { return instrumentRe.MatchString(id) }

// NormalizeInstrument upper-cases and trims an identifier so downstream maps
// key consistently.
func NormalizeInstrument(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

// CatalystSignal is the canonical, immutable record every source payload is
// normalized into.
type CatalystSignal struct {
	Instrument  string    `json:"instrument"`
	Source      string    `json:"source"`
	Category    Category  `json:"category"`
	Direction   Direction `json:"direction"`
	Magnitude   float64   `json:"magnitude"`   // [0,1]
	Confidence  float64   `json:"confidence"`  // [0,1]
	Credibility float64   `json:"credibility"` // [0,1]
	ObservedAt  time.Time `json:"observed_at"`
}

// Validate is fail-closed: any field outside its contract rejects the signal.
func (s CatalystSignal) Validate() error {
	if !ValidInstrument(s.Instrument) {
		return fmt.Errorf("%w: bad instrument %q", ErrInvalidSignal, s.Instrument)
	}
	if s.Source == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidSignal)
	}
	if !KnownCategory(s.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidSignal, s.Category)
	}
	switch s.Direction {
	case Bullish, Bearish, Neutral:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, s.Direction)
	}
	if s.Magnitude < 0 || s.Magnitude > 1 {
		return fmt.Errorf("%w: magnitude %.4f out of range", ErrInvalidSignal, s.Magnitude)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f out of range", ErrInvalidSignal, s.Confidence)
	}
	if s.Credibility < 0 || s.Credibility > 1 {
		return fmt.Errorf("%w: credibility %.4f out of range", ErrInvalidSignal, s.Credibility)
	}
	if s.ObservedAt.IsZero() {
		return fmt.Errorf("%w: zero observed_at", ErrInvalidSignal)
	}
	return nil
}

// Age returns how old the signal is at now. Clock skew between sources can
// produce future timestamps; those clamp to zero age rather than boosting.
func (s CatalystSignal) Age(now time.Time) time.Duration {
	age := now.Sub(s.ObservedAt)
	if age < 0 {
		return 0
	}
	return age
}

// DecayWeight is the recency weight of a signal: 1.0 when fresh, linearly
// down to 0.0 at the horizon. Signals at or past the horizon contribute zero.
func DecayWeight(age, horizon time.Duration) float64 {
	if horizon <= 0 || age >= horizon {
		return 0
	}
	if age <= 0 {
		return 1
	}
	return 1 - float64(age)/float64(horizon)
}
