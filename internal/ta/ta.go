package ta

import "math"

// SMA returns the mean of the last n values, or NaN when fewer are available.
func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}

// TrueRange returns the true range series. The first element has no previous
// close and is simply high-low.
func TrueRange(highs, lows, closes []float64) []float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return nil
	}
	tr := make([]float64, len(closes))
	for i := range closes {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// RMA is Wilder's moving average. The first defined value, at index n-1, is the
// simple mean of the first n inputs; later values follow
// rma[i] = (rma[i-1]*(n-1) + v[i]) / n. Undefined positions are NaN.
func RMA(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(vals) < n {
		return out
	}
	out[n-1] = SMA(vals[:n], n)
	for i := n; i < len(vals); i++ {
		out[i] = (out[i-1]*float64(n-1) + vals[i]) / float64(n)
	}
	return out
}

// ATR returns the Wilder-smoothed average true range series.
func ATR(highs, lows, closes []float64, period int) []float64 {
	tr := TrueRange(highs, lows, closes)
	if tr == nil {
		return nil
	}
	return RMA(tr, period)
}
