package eod

import (
	"path/filepath"
	"time"

	"supertrend-bot/internal/market"
	"supertrend-bot/internal/tradelog"
)

func istNow() time.Time {
	return time.Now().In(market.IST)
}

func eodCSVPath(t time.Time) string {
	dateStr := t.In(market.IST).Format("2006-01-02")
	return filepath.Join(tradelog.LogDir(), "eod", dateStr+".csv")
}

// summaryReadyAt is ten minutes after the session close, once every
// session has flattened and logged its last order.
func summaryReadyAt(h market.Hours, t time.Time) time.Time {
	return h.CloseAt(t).Add(10 * time.Minute)
}
