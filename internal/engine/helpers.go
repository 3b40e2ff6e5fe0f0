package engine

import (
	"github.com/shopspring/decimal"
)

// roundToTick rounds price to the nearest multiple of tick.
func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	v, _ := decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).Float64()
	return v
}

// realizedPnL is (exit-entry)*qty for longs and (entry-exit)*qty for shorts.
func realizedPnL(long bool, entry, exit float64, qty int) float64 {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if !long {
		diff = diff.Neg()
	}
	v, _ := diff.Mul(decimal.NewFromInt(int64(qty))).Float64()
	return v
}
