package types

import "time"

// Bar is one fixed-width OHLCV candle.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Instrument identifies a tradable contract on an Angel One exchange segment.
type Instrument struct {
	TradingSymbol string `json:"trading_symbol"`
	SymbolToken   string `json:"symbol_token"`
	Exchange      string `json:"exchange"`
}

type Direction int

const (
	DirectionNone Direction = 0
	DirectionUp   Direction = 1
	DirectionDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "NONE"
	}
}

// IndicatorBar is a bar annotated with its Supertrend value.
// Ready is false for bars before the indicator has enough history.
type IndicatorBar struct {
	Bar
	Trend     float64   `json:"trend"`
	Direction Direction `json:"direction"`
	Ready     bool      `json:"ready"`
}

type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// SignalBar carries the trend signal of a bar and whether it differs from the previous bar.
type SignalBar struct {
	IndicatorBar
	Signal  Signal `json:"signal"`
	Changed bool   `json:"changed"`
}

type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is the single open position of a session. Side FLAT means no position.
type Position struct {
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Qty        int       `json:"qty,omitempty"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
}

func (p Position) IsFlat() bool { return p.Side == "" || p.Side == SideFlat }

// ClosedTrade is one ledger record.
type ClosedTrade struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Symbol      string    `json:"symbol"`
	SymbolToken string    `json:"symbol_token"`
	Side        Side      `json:"side"`
	Qty         int       `json:"qty"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	PnL         float64   `json:"pnl"`
	Reason      string    `json:"reason"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// Performance is a snapshot of a session's ledger.
type Performance struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`
	NetPnL      float64 `json:"net_pnl"`
	WinRate     float64 `json:"win_rate"`
}

type StepResult struct {
	SessionID string      `json:"session_id"`
	Symbol    string      `json:"symbol"`
	Bar       Bar         `json:"bar"`
	Trend     float64     `json:"trend"`
	Signal    Signal      `json:"signal"`
	Changed   bool        `json:"changed"`
	Position  Position    `json:"position"`
	Orders    []OrderResp `json:"orders"`
	Reason    string      `json:"reason"`
}

// SessionStatus is the read-only view of a running session exposed over HTTP.
type SessionStatus struct {
	ID         string      `json:"id"`
	Instrument Instrument  `json:"instrument"`
	Qty        int         `json:"qty"`
	State      string      `json:"state"`
	StartedAt  time.Time   `json:"started_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Bars       int         `json:"bars"`
	LastBar    *Bar        `json:"last_bar,omitempty"`
	Trend      float64     `json:"trend"`
	Signal     Signal      `json:"signal"`
	Position   Position    `json:"position"`
	Ledger     Performance `json:"ledger"`
	LastError  string      `json:"last_error,omitempty"`
}

type OrderReq struct {
	Instrument
	Side string `json:"side"`
	Qty  int    `json:"qty"`
	Tag  string `json:"tag"`

	Variety     string `json:"variety,omitempty"`
	OrderType   string `json:"order_type,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Quote is a live market snapshot. Open, High, Low and Volume are day-level
// figures as reported by the exchange; LTP is the last traded price.
type Quote struct {
	Time   time.Time `json:"time"`
	LTP    float64   `json:"ltp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
