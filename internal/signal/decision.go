package signal

import "math"

// Trend is the single-candle market direction.
type Trend int

const (
	Bearish Trend = -1
	Neutral Trend = 0
	Bullish Trend = 1
)

// trendThreshold is the wick size, relative to the open, that marks a trend.
const trendThreshold = 0.02

// Candle is the OHLC input of the decision model.
type Candle struct {
	Open, High, Low, Close float64
}

// ClassifyTrend labels a candle from its body direction and wick length.
func ClassifyTrend(c Candle) Trend {
	threshold := trendThreshold * c.Open
	switch {
	case c.Close > c.Open && c.High-c.Close > threshold:
		return Bullish
	case c.Close < c.Open && c.Close-c.Low > threshold:
		return Bearish
	default:
		return Neutral
	}
}

type term int

const (
	low term = iota
	mid
	high
)

type rule struct {
	trend Trend
	rsi   term
	out   term
}

// rules mirror the trading rule base; trend and rsi terms are ANDed (min).
var rules = []rule{
	{Bullish, high, low},
	{Bullish, low, mid},
	{Bearish, mid, mid},
	{Neutral, high, low},
	{Neutral, low, high},
	{Neutral, mid, mid},
	{Bullish, high, mid},
	{Bullish, low, high},
	{Bullish, mid, high},
}

// trapezoid evaluates a trapezoidal membership function; b == c gives a triangle.
func trapezoid(x, a, b, c, d float64) float64 {
	switch {
	case x < a || x > d:
		return 0
	case x >= b && x <= c:
		return 1
	case x < b:
		return (x - a) / (b - a)
	default:
		return (d - x) / (d - c)
	}
}

// membership serves both the RSI input (oversold, neutral, overbought) and the
// decision output (sell, hold, buy); both live on a 0-100 universe.
func membership(t term, x float64) float64 {
	switch t {
	case low:
		return trapezoid(x, 0, 0, 30, 50)
	case mid:
		return trapezoid(x, 30, 50, 50, 70)
	default:
		return trapezoid(x, 50, 70, 100, 100)
	}
}

func trendMembership(t Trend, x float64) float64 {
	switch t {
	case Bearish:
		return trapezoid(x, -1, -1, -0.5, 0)
	case Neutral:
		return trapezoid(x, -0.5, 0, 0, 0.5)
	default:
		return trapezoid(x, 0, 0.5, 1, 1)
	}
}

// Score runs the fuzzy inference for one trend/RSI pair and returns the
// centroid of the aggregated output on [0, 100]. It returns 50 when no rule fires.
func Score(trend Trend, rsi float64) float64 {
	if math.IsNaN(rsi) {
		rsi = NeutralRSI
	}
	x := float64(trend)

	var strength [3]float64
	for _, r := range rules {
		w := math.Min(trendMembership(r.trend, x), membership(r.rsi, rsi))
		strength[r.out] = math.Max(strength[r.out], w)
	}

	var num, den float64
	for y := 0.0; y <= 100; y++ {
		mu := 0.0
		for t, w := range strength {
			mu = math.Max(mu, math.Min(w, membership(term(t), y)))
		}
		num += y * mu
		den += mu
	}
	if den == 0 {
		return NeutralRSI
	}
	return num / den
}

// Scores annotates every candle with a decision score using an RSI of the
// given period over the candle closes.
func Scores(candles []Candle, period int) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	rsi := RSI(closes, period)

	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = Score(ClassifyTrend(c), rsi[i])
	}
	return out
}
