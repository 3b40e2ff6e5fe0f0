// Package engineobs traces and logs every strategy step.
package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/trace"
	"supertrend-bot/internal/types"
)

type tracedStepper struct {
	next interfaces.Stepper
}

var _ interfaces.Stepper = (*tracedStepper)(nil)

func Wrap(next interfaces.Stepper) interfaces.Stepper {
	return &tracedStepper{next: next}
}

func (t *tracedStepper) Instrument() types.Instrument {
	return t.next.Instrument()
}

func (t *tracedStepper) Step(ctx context.Context) (*types.StepResult, error) {
	inst := t.next.Instrument()
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", inst.TradingSymbol),
		attribute.String("symbol_token", inst.SymbolToken),
	)

	began := time.Now()
	res, err := t.next.Step(ctx)
	elapsed := time.Since(began).Milliseconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorWithErrSkip(ctx, 1, "Strategy step failed", err,
			"symbol", inst.TradingSymbol,
			"duration_ms", elapsed)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("signal", string(res.Signal)),
		attribute.Bool("changed", res.Changed),
		attribute.Int("orders", len(res.Orders)),
	)
	// Quiet bars go to debug; anything that moved the position is logged at info.
	args := []any{
		"symbol", inst.TradingSymbol,
		"close", res.Bar.Close,
		"trend", res.Trend,
		"signal", res.Signal,
		"position", res.Position.Side,
		"orders", len(res.Orders),
		"reason", res.Reason,
		"duration_ms", elapsed,
	}
	if res.Changed || len(res.Orders) > 0 {
		logger.InfoSkip(ctx, 1, "Strategy step", args...)
	} else {
		logger.DebugSkip(ctx, 1, "Strategy step", args...)
	}
	return res, nil
}
