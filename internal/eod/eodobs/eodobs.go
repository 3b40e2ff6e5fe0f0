// Package eodobs adds tracing and logging around a daily report.
package eodobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/trace"
)

type tracedReport struct {
	summarizer interfaces.DailyReport
}

var _ interfaces.DailyReport = (*tracedReport)(nil)

func Wrap(summarizer interfaces.DailyReport) interfaces.DailyReport {
	return &tracedReport{summarizer: summarizer}
}

func (o *tracedReport) SummarizeDay(t time.Time) (string, error) {
	return o.summarize(context.Background(), "eod.SummarizeDay", t.Format("2006-01-02"), func() (string, error) {
		return o.summarizer.SummarizeDay(t)
	})
}

func (o *tracedReport) SummarizeToday() (string, error) {
	return o.summarize(context.Background(), "eod.SummarizeToday", "today", o.summarizer.SummarizeToday)
}

func (o *tracedReport) summarize(ctx context.Context, span, date string, fn func() (string, error)) (string, error) {
	ctx, sp := trace.StartSpan(ctx, span)
	defer sp.End()
	sp.SetAttributes(attribute.String("eod.date", date))

	start := time.Now()
	csvPath, err := fn()
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "date", date)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 2, "No trades to summarize", "date", date)
		return "", nil
	}

	sp.SetAttributes(attribute.String("eod.csv_path", csvPath))
	logger.InfoSkip(ctx, 2, "EOD summary written",
		"date", date,
		"csv_path", csvPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return csvPath, nil
}

func (o *tracedReport) ShouldRunNow() (bool, string) {
	ctx, sp := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer sp.End()

	shouldRun, csvPath := o.summarizer.ShouldRunNow()
	logger.DebugSkip(ctx, 1, "EOD check completed",
		"should_run", shouldRun,
		"csv_path", csvPath,
	)
	return shouldRun, csvPath
}
