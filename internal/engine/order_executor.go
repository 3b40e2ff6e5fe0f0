package engine

import (
	"context"
	"time"

	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/tradelog"
	"supertrend-bot/internal/types"
)

// orderExecutor turns proposals into market orders and records acknowledged ones.
type orderExecutor struct {
	broker  interfaces.Broker
	inst    types.Instrument
	timeout time.Duration
}

func newOrderExecutor(broker interfaces.Broker, inst types.Instrument, timeout time.Duration) *orderExecutor {
	return &orderExecutor{
		broker:  broker,
		inst:    inst,
		timeout: timeout,
	}
}

// submit places the order for a proposal and waits for the broker's answer.
// An error means the proposal must not be committed.
func (oe *orderExecutor) submit(ctx context.Context, p proposal, qty int) (types.OrderResp, error) {
	if oe.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, oe.timeout)
		defer cancel()
	}

	req := types.OrderReq{
		Instrument: oe.inst,
		Side:       p.orderSide(),
		Qty:        qty,
		Tag:        p.reason,
	}
	resp, err := oe.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Order not acknowledged, position unchanged", err,
			"symbol", oe.inst.TradingSymbol,
			"side", req.Side,
			"qty", qty,
			"price", p.price,
			"reason", p.reason,
		)
		return types.OrderResp{}, err
	}

	logger.Trade(ctx, oe.inst.TradingSymbol, req.Side, qty, p.price, resp.OrderID, "reason", p.reason, "status", resp.Status)
	return resp, nil
}

// record appends an acknowledged order to the daily trade log. closed is set
// when the order finished a trade.
func (oe *orderExecutor) record(p proposal, qty int, resp types.OrderResp, closed *types.ClosedTrade) {
	e := tradelog.Entry{
		Symbol:  oe.inst.TradingSymbol,
		Token:   oe.inst.SymbolToken,
		Side:    p.orderSide(),
		Action:  p.kind.String(),
		Qty:     qty,
		Price:   p.price,
		OrderID: resp.OrderID,
		Reason:  p.reason,
	}
	if closed != nil {
		e.PnL = closed.PnL
	}
	_ = tradelog.Append(e)
}

func (a action) String() string {
	if a == actionClose {
		return "CLOSE"
	}
	return "OPEN"
}
