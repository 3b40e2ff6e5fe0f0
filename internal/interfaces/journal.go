package interfaces

import (
	"context"

	"supertrend-bot/internal/types"
)

// TradeJournal persists closed trades. Open positions are never persisted.
type TradeJournal interface {
	RecordTrade(ctx context.Context, t types.ClosedTrade) error
	ListTrades(ctx context.Context, symbolToken string, limit int) ([]types.ClosedTrade, error)
}
