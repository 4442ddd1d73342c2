// Package technical derives deterministic indicator scores and the volatility
// estimate from historical OHLCV bars. Everything here is a pure function of
// its inputs: identical bars always produce identical outputs.
package technical

import "time"

// Bar is one OHLCV period, oldest-first in every series this package accepts.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Closes extracts the close series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// LastClose returns the final close, or 0 for an empty series.
func LastClose(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// ATR computes the Wilder-style average true range over the last n periods.
// Returns 0 when the series is too short, which downstream sizing treats as
// an unsizable candidate.
func ATR(bars []Bar, n int) float64 {
	if n <= 0 || len(bars) < n+1 {
		return 0
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		h, l, pc := bars[i].High, bars[i].Low, bars[i-1].Close
		tr := h - l
		if d := abs(h - pc); d > tr {
			tr = d
		}
		if d := abs(l - pc); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}
	if len(trs) < n {
		return 0
	}
	sum := 0.0
	for _, tr := range trs[len(trs)-n:] {
		sum += tr
	}
	return sum / float64(n)
}

// VolatilityEstimate is the estimate stop and trail distances are derived
// from: a 14-period ATR over daily bars.
func VolatilityEstimate(bars []Bar) float64 {
	return ATR(bars, 14)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
