package engine

import (
	"context"

	"supertrend-bot/internal/logger"
)

// riskManager blocks entries whose notional exceeds the configured cap.
type riskManager struct {
	maxNotional float64 // 0 disables the check
}

func newRiskManager(maxNotional float64) *riskManager {
	return &riskManager{maxNotional: maxNotional}
}

// allowEntry reports whether opening qty at price stays within the cap.
func (rm *riskManager) allowEntry(ctx context.Context, symbol string, price float64, qty int) bool {
	if rm.maxNotional <= 0 {
		return true
	}
	exposure := price * float64(qty)
	if exposure <= rm.maxNotional {
		return true
	}
	logger.Risk(ctx, symbol, "TRADE_BLOCKED_RISK_CAP",
		"qty", qty,
		"price", price,
		"exposure", exposure,
		"max_notional", rm.maxNotional,
	)
	return false
}
