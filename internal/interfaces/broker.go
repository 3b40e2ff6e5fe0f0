package interfaces

import (
	"context"
	"time"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/types"
)

type Broker interface {
	Login(ctx context.Context) error
	FetchHistory(ctx context.Context, inst types.Instrument, interval candles.Interval, from, to time.Time) ([]types.Bar, error)
	FetchQuote(ctx context.Context, inst types.Instrument) (types.Quote, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}
