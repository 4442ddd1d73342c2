package signal

import (
	"sort"
	"time"
)

// AgreementBoost is the bounded multiplier applied when at least two distinct
// sources report the same direction inside the current window. The combined
// score is still clamped at the ceiling after it applies.
const AgreementBoost = 1.15

// Bundle is the per-instrument set of current signals plus derived fields.
// Bundles are replaced wholesale on every slow-cadence refresh; nothing
// mutates them in between.
type Bundle struct {
	Instrument  string
	Signals     []CatalystSignal
	SourceCount int
	Categories  []Category
	RefreshedAt time.Time
}

// AgreementMultiplier returns AgreementBoost when two or more distinct sources
// agree on a non-neutral direction, else 1.0.
func (b *Bundle) AgreementMultiplier() float64 {
	bySide := map[Direction]map[string]bool{}
	for _, s := range b.Signals {
		if s.Direction == Neutral {
			continue
		}
		if bySide[s.Direction] == nil {
			bySide[s.Direction] = map[string]bool{}
		}
		bySide[s.Direction][s.Source] = true
	}
	for _, sources := range bySide {
		if len(sources) >= 2 {
			return AgreementBoost
		}
	}
	return 1.0
}

// Newest returns the most recent signal timestamp in the bundle.
func (b *Bundle) Newest() time.Time {
	var newest time.Time
	for _, s := range b.Signals {
		if s.ObservedAt.After(newest) {
			newest = s.ObservedAt
		}
	}
	return newest
}

type dedupeKey struct {
	source     string
	category   Category
	instrument string
}

// Aggregate groups signals by instrument, deduplicates on
// (source, category, instrument) keeping the newest, and drops signals past
// the decay horizon. The result replaces any previous bundle set.
func Aggregate(signals []CatalystSignal, now time.Time, horizon time.Duration) map[string]*Bundle {
	newest := map[dedupeKey]CatalystSignal{}
	for _, s := range signals {
		if DecayWeight(s.Age(now), horizon) == 0 {
			continue
		}
		k := dedupeKey{s.Source, s.Category, s.Instrument}
		if prev, ok := newest[k]; !ok || s.ObservedAt.After(prev.ObservedAt) {
			newest[k] = s
		}
	}

	bundles := map[string]*Bundle{}
	for _, s := range newest {
		b := bundles[s.Instrument]
		if b == nil {
			b = &Bundle{Instrument: s.Instrument, RefreshedAt: now}
			bundles[s.Instrument] = b
		}
		b.Signals = append(b.Signals, s)
	}

	for _, b := range bundles {
		// Deterministic signal order keeps downstream scoring reproducible.
		sort.Slice(b.Signals, func(i, j int) bool {
			si, sj := b.Signals[i], b.Signals[j]
			if !si.ObservedAt.Equal(sj.ObservedAt) {
				return si.ObservedAt.Before(sj.ObservedAt)
			}
			if si.Source != sj.Source {
				return si.Source < sj.Source
			}
			return si.Category < sj.Category
		})
		sources := map[string]bool{}
		cats := map[Category]bool{}
		for _, s := range b.Signals {
			sources[s.Source] = true
			cats[s.Category] = true
		}
		b.SourceCount = len(sources)
		b.Categories = make([]Category, 0, len(cats))
		for c := range cats {
			b.Categories = append(b.Categories, c)
		}
		sort.Slice(b.Categories, func(i, j int) bool { return b.Categories[i] < b.Categories[j] })
	}
	return bundles
}
