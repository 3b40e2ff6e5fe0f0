package interfaces

import "time"

// DailyReport turns a day's trade log into a per-symbol CSV summary.
// ShouldRunNow reports whether today's report is due and not yet written.
type DailyReport interface {
	SummarizeDay(t time.Time) (csvPath string, err error)
	SummarizeToday() (csvPath string, err error)
	ShouldRunNow() (due bool, csvPath string)
}
