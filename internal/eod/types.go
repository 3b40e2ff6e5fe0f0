package eod

// tradeLine is one line of the daily trade log written by tradelog.Append.
type tradeLine struct {
	Time    string
	Symbol  string
	Token   string
	Side    string // BUY or SELL
	Action  string // OPEN or CLOSE
	OrderID string
	Reason  string
	Qty     int
	Price   float64
	PnL     float64
}

// aggRow is the day's activity for one symbol.
type aggRow struct {
	Symbol      string
	BuyQty      int
	BuyValue    float64
	SellQty     int
	SellValue   float64
	Closed      int
	Wins        int
	Losses      int
	RealizedPnL float64 // sum of PnL reported by CLOSE orders, so shorts count correctly
}
