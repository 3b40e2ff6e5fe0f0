package ta

import "math"

// SupertrendPoint is the indicator state of a single bar.
// Dir is +1 for an uptrend, -1 for a downtrend and 0 while the ATR is undefined.
type SupertrendPoint struct {
	Value float64
	Upper float64
	Lower float64
	Dir   int
}

func (p SupertrendPoint) Ready() bool { return p.Dir != 0 }

// Supertrend computes the indicator over the whole series.
//
// Basic bands are hl2 ± mult*ATR. The trend flips up when the close breaks the
// previous final upper band and down when it breaks the previous final lower
// band. While the trend holds, the active band may only tighten: the lower band
// never falls in an uptrend and the upper band never rises in a downtrend.
// Value is the lower band in an uptrend and the upper band in a downtrend.
func Supertrend(highs, lows, closes []float64, length int, mult float64) []SupertrendPoint {
	atr := ATR(highs, lows, closes, length)
	if atr == nil {
		return nil
	}
	out := make([]SupertrendPoint, len(closes))

	start := -1
	for i := range closes {
		if math.IsNaN(atr[i]) {
			continue
		}
		hl2 := (highs[i] + lows[i]) / 2
		upper := hl2 + mult*atr[i]
		lower := hl2 - mult*atr[i]

		if start < 0 {
			start = i
			out[i] = SupertrendPoint{Value: lower, Upper: upper, Lower: lower, Dir: 1}
			continue
		}

		prev := out[i-1]
		dir := prev.Dir
		switch {
		case closes[i] > prev.Upper:
			dir = 1
		case closes[i] < prev.Lower:
			dir = -1
		default:
			if dir > 0 && lower < prev.Lower {
				lower = prev.Lower
			}
			if dir < 0 && upper > prev.Upper {
				upper = prev.Upper
			}
		}

		p := SupertrendPoint{Upper: upper, Lower: lower, Dir: dir}
		if dir > 0 {
			p.Value = lower
		} else {
			p.Value = upper
		}
		out[i] = p
	}
	return out
}
