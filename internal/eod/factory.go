package eod

import (
	"time"

	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/market"
)

var defaultSummarizer interfaces.DailyReport = NewSummarizer(market.DefaultHours())

func SetDefaultSummarizer(summarizer interfaces.DailyReport) {
	defaultSummarizer = summarizer
}

// NewSummarizer returns a summarizer that reads the daily trade log and is
// due once the session described by hours has closed.
func NewSummarizer(hours market.Hours) interfaces.DailyReport {
	return &eodSummarizer{hours: hours, now: istNow}
}

func SummarizeDay(t time.Time) (string, error) {
	return defaultSummarizer.SummarizeDay(t)
}

func SummarizeToday() (string, error) {
	return defaultSummarizer.SummarizeToday()
}

func ShouldRunNow() (bool, string) {
	return defaultSummarizer.ShouldRunNow()
}
