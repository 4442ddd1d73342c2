package technical

import (
	"testing"
	"time"
)

// trendBars builds a deterministic drifting series with constant range.
func trendBars(n int, start, drift float64) []Bar {
	bars := make([]Bar, n)
	t0 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	px := start
	for i := range bars {
		bars[i] = Bar{
			Time:   t0.AddDate(0, 0, i),
			Open:   px,
			High:   px + 1.5,
			Low:    px - 1.5,
			Close:  px + drift,
			Volume: 1_000_000,
		}
		px += drift
	}
	return bars
}

func TestATR(t *testing.T) {
	bars := trendBars(30, 100, 0)
	atr := ATR(bars, 14)
	// Constant 3-point high-low range, no gaps: ATR must be exactly 3.
	if atr < 2.999 || atr > 3.001 {
		t.Fatalf("want ATR 3.0, got %v", atr)
	}
}

func TestATR_TooShortIsZero(t *testing.T) {
	if atr := ATR(trendBars(10, 100, 0), 14); atr != 0 {
		t.Fatalf("short series should yield zero ATR, got %v", atr)
	}
}

func TestScore_Deterministic(t *testing.T) {
	bars := trendBars(40, 100, 0.8)
	w := DefaultWeights()
	a := Score(bars, w)
	b := Score(bars, w)
	if a != b {
		t.Fatalf("score not deterministic: %v vs %v", a, b)
	}
	if a < 0 || a > 100 {
		t.Fatalf("score out of range: %v", a)
	}
}

func TestScore_UptrendBeatsDowntrend(t *testing.T) {
	w := DefaultWeights()
	up := Score(trendBars(40, 100, 0.8), w)
	down := Score(trendBars(40, 100, -0.8), w)
	if up <= down {
		t.Fatalf("uptrend score %v should exceed downtrend %v", up, down)
	}
}

func TestSubScores_InRange(t *testing.T) {
	bars := trendBars(40, 50, 0.3)
	for name, s := range map[string]float64{
		"momentum":       MomentumScore(bars),
		"mean_reversion": MeanReversionScore(bars),
		"volatility":     VolatilityScore(bars),
		"volume":         VolumeScore(bars),
	} {
		if s < 0 || s > 100 {
			t.Fatalf("%s score out of [0,100]: %v", name, s)
		}
	}
}

func TestRSI_Extremes(t *testing.T) {
	allUp := make([]float64, 20)
	for i := range allUp {
		allUp[i] = 100 + float64(i)
	}
	if rsi := RSI(allUp, 14); rsi < 99 {
		t.Fatalf("monotonic gains should push RSI to 100, got %v", rsi)
	}
	allDown := make([]float64, 20)
	for i := range allDown {
		allDown[i] = 100 - float64(i)
	}
	if rsi := RSI(allDown, 14); rsi > 1 {
		t.Fatalf("monotonic losses should push RSI to 0, got %v", rsi)
	}
}

func TestVolatilityEstimate_ZeroOnShortSeries(t *testing.T) {
	if v := VolatilityEstimate(nil); v != 0 {
		t.Fatalf("nil bars should estimate zero volatility, got %v", v)
	}
}
