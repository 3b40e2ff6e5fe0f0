package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"supertrend-bot/internal/types"
)

// Ledger accumulates closed-trade statistics for one session. Amounts are kept
// as decimals so long sessions do not drift.
type Ledger struct {
	mu          sync.Mutex
	trades      int
	wins        int
	losses      int
	grossProfit decimal.Decimal
	grossLoss   decimal.Decimal
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends one closed trade. A zero P&L counts as neither win nor loss.
func (l *Ledger) Record(t types.ClosedTrade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pnl := decimal.NewFromFloat(t.PnL)
	l.trades++
	switch pnl.Sign() {
	case 1:
		l.wins++
		l.grossProfit = l.grossProfit.Add(pnl)
	case -1:
		l.losses++
		l.grossLoss = l.grossLoss.Add(pnl.Abs())
	}
}

// WinRate returns wins as a percentage of trades, or 0 before the first trade.
func (l *Ledger) WinRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.winRate()
}

func (l *Ledger) winRate() float64 {
	if l.trades == 0 {
		return 0
	}
	v, _ := decimal.NewFromInt(int64(l.wins)).
		Div(decimal.NewFromInt(int64(l.trades))).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return v
}

func (l *Ledger) Snapshot() types.Performance {
	l.mu.Lock()
	defer l.mu.Unlock()

	gp, _ := l.grossProfit.Float64()
	gl, _ := l.grossLoss.Float64()
	net, _ := l.grossProfit.Sub(l.grossLoss).Float64()
	return types.Performance{
		Trades:      l.trades,
		Wins:        l.wins,
		Losses:      l.losses,
		GrossProfit: gp,
		GrossLoss:   gl,
		NetPnL:      net,
		WinRate:     l.winRate(),
	}
}
