package technical

import "math"

// Weights blends the four sub-scores into the technical score. Must sum to 1.
type Weights struct {
	Momentum      float64 `yaml:"momentum"`
	MeanReversion float64 `yaml:"mean_reversion"`
	Volatility    float64 `yaml:"volatility"`
	Volume        float64 `yaml:"volume"`
}

// DefaultWeights mirrors the blend the quant scorer was tuned with.
func DefaultWeights() Weights {
	return Weights{Momentum: 0.30, MeanReversion: 0.25, Volatility: 0.25, Volume: 0.20}
}

func (w Weights) Sum() float64 {
	return w.Momentum + w.MeanReversion + w.Volatility + w.Volume
}

// Score blends the sub-scores into a single technical score in [0,100].
// Returns the neutral midpoint for series too short to score.
func Score(bars []Bar, w Weights) float64 {
	if len(bars) < 15 {
		return 50
	}
	s := MomentumScore(bars)*w.Momentum +
		MeanReversionScore(bars)*w.MeanReversion +
		VolatilityScore(bars)*w.Volatility +
		VolumeScore(bars)*w.Volume
	return clampScore(s)
}

// RSI computes the n-period relative strength index over closes (simple
// average variant). Neutral 50 when the series is too short.
func RSI(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return 50
	}
	var gains, losses float64
	for i := len(closes) - n; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if gains+losses == 0 {
		return 50
	}
	rs := gains / math.Max(losses, 1e-12)
	return 100 - 100/(1+rs)
}

// ReturnPct is the percent return over the last n periods.
func ReturnPct(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return 0
	}
	prev := closes[len(closes)-1-n]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev * 100
}

// BollingerPosition locates the last close inside its 20-period band:
// 0 at the lower band, 1 at the upper, 0.5 mid-band.
func BollingerPosition(closes []float64, n int) float64 {
	if n <= 1 || len(closes) < n {
		return 0.5
	}
	window := closes[len(closes)-n:]
	mean := 0.0
	for _, c := range window {
		mean += c
	}
	mean /= float64(n)
	variance := 0.0
	for _, c := range window {
		variance += (c - mean) * (c - mean)
	}
	sd := math.Sqrt(variance / float64(n))
	if sd == 0 {
		return 0.5
	}
	last := closes[len(closes)-1]
	pos := (last - (mean - 2*sd)) / (4 * sd)
	return math.Max(0, math.Min(1, pos))
}

// RelativeVolume compares the last bar's volume to the average of the prior
// n bars. 1.0 means in-line volume.
func RelativeVolume(bars []Bar, n int) float64 {
	if n <= 0 || len(bars) < n+1 {
		return 1
	}
	sum := 0.0
	for _, b := range bars[len(bars)-1-n : len(bars)-1] {
		sum += b.Volume
	}
	avg := sum / float64(n)
	if avg == 0 {
		return 1
	}
	return bars[len(bars)-1].Volume / avg
}

// MomentumScore rewards trend strength: RSI in the bullish zone plus recent
// multi-window returns.
func MomentumScore(bars []Bar) float64 {
	closes := Closes(bars)
	score := 50.0

	rsi := RSI(closes, 14)
	switch {
	case rsi > 50 && rsi < 70:
		score += 15 * (rsi - 50) / 20
	case rsi >= 70:
		score += 10 // overbought: still momentum, but fading credit
	case rsi < 50:
		score -= 15 * (50 - rsi) / 20
	}

	r5 := ReturnPct(closes, 5)
	score += math.Max(-20, math.Min(20, r5*2))

	r10 := ReturnPct(closes, 10)
	score += math.Max(-15, math.Min(15, r10))

	return clampScore(score)
}

// MeanReversionScore rewards stretched conditions likely to snap back.
func MeanReversionScore(bars []Bar) float64 {
	closes := Closes(bars)
	score := 50.0

	rsi := RSI(closes, 14)
	if rsi < 30 {
		score += (30 - rsi) * 1.5
	} else if rsi > 70 {
		score -= (rsi - 70) * 1.0
	}

	pos := BollingerPosition(closes, 20)
	if pos < 0.2 {
		score += (0.2 - pos) * 150
	} else if pos > 0.8 {
		score -= (pos - 0.8) * 100
	}

	return clampScore(score)
}

// VolatilityScore favors a tradable ATR band: enough range to pay for the
// trade, not so much that stops are untenable. Peaks around 2-4% daily ATR.
func VolatilityScore(bars []Bar) float64 {
	atr := ATR(bars, 14)
	last := LastClose(bars)
	if atr == 0 || last == 0 {
		return 0
	}
	atrPct := atr / last * 100
	switch {
	case atrPct < 0.5:
		return 20
	case atrPct < 2:
		return 40 + (atrPct-0.5)/1.5*40
	case atrPct <= 4:
		return 80
	case atrPct <= 8:
		return 80 - (atrPct-4)/4*50
	default:
		return 20
	}
}

// VolumeScore rewards above-average participation in the latest bar.
func VolumeScore(bars []Bar) float64 {
	rv := RelativeVolume(bars, 20)
	switch {
	case rv >= 3:
		return 100
	case rv >= 1:
		return 50 + (rv-1)/2*50
	default:
		return 50 * rv
	}
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}
