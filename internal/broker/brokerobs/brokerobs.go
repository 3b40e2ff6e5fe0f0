package brokerobs

import (
	"context"
	"fmt"
	"time"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/trace"
	"supertrend-bot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) Login(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Login")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Logging in to broker")

	if err := ob.broker.Login(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker login failed", err)
		return fmt.Errorf("broker login failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Broker login successful")
	return nil
}

// FetchHistory fetches candles with observability
func (ob *observableBroker) FetchHistory(ctx context.Context, inst types.Instrument, interval candles.Interval, from, to time.Time) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchHistory")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching historical candles",
		"symbol", inst.TradingSymbol,
		"interval", interval,
		"from", from,
		"to", to,
	)

	bars, err := ob.broker.FetchHistory(ctx, inst, interval, from, to)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, "symbol", inst.TradingSymbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candles fetched successfully", "symbol", inst.TradingSymbol, "count", len(bars))
	return bars, nil
}

// FetchQuote returns the latest quote with observability
func (ob *observableBroker) FetchQuote(ctx context.Context, inst types.Instrument) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchQuote")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching quote", "symbol", inst.TradingSymbol)

	q, err := ob.broker.FetchQuote(ctx, inst)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "symbol", inst.TradingSymbol)
		return types.Quote{}, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched successfully", "symbol", inst.TradingSymbol, "ltp", q.LTP, "volume", q.Volume)
	return q, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.TradingSymbol,
		"side", req.Side,
		"qty", req.Qty,
		"tag", req.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.TradingSymbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.TradingSymbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}
