package angelone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/market"
	"supertrend-bot/internal/types"
)

const smartAPIDateLayout = "2006-01-02 15:04"

type candleRequest struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// FetchHistory returns bars for [from, to], sorted, keeping only bars inside
// the trading session.
func (c *Client) FetchHistory(ctx context.Context, inst types.Instrument, interval candles.Interval, from, to time.Time) ([]types.Bar, error) {
	env, err := c.post(ctx, pathCandles, candleRequest{
		Exchange:    inst.Exchange,
		SymbolToken: inst.SymbolToken,
		Interval:    string(interval),
		FromDate:    from.In(market.IST).Format(smartAPIDateLayout),
		ToDate:      to.In(market.IST).Format(smartAPIDateLayout),
	}, true)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: candles [%s] %s", types.ErrNetwork, env.ErrorCode, env.Message)
	}

	var rows [][]json.RawMessage
	if err := jsonUnmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("%w: candles: %v", types.ErrNetwork, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no historical data for %s", types.ErrNetwork, inst.TradingSymbol)
	}

	bars := make([]types.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("%w: candles: %v", types.ErrNetwork, err)
		}
		if interval != candles.OneDay && !c.hours.IsOpen(b.Time) {
			continue
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// parseCandle decodes [timestamp, open, high, low, close, volume].
func parseCandle(row []json.RawMessage) (types.Bar, error) {
	if len(row) < 6 {
		return types.Bar{}, fmt.Errorf("candle has %d fields, want 6", len(row))
	}
	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return types.Bar{}, fmt.Errorf("candle time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return types.Bar{}, fmt.Errorf("candle time %q: %w", ts, err)
	}
	var vals [5]float64
	for i := range vals {
		if vals[i], err = number(row[i+1]); err != nil {
			return types.Bar{}, err
		}
	}
	return types.Bar{
		Time:   t.In(market.IST),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

type quoteRequest struct {
	Mode           string              `json:"mode"`
	ExchangeTokens map[string][]string `json:"exchangeTokens"`
}

type quoteData struct {
	Fetched []struct {
		SymbolToken       string          `json:"symbolToken"`
		LTP               json.RawMessage `json:"ltp"`
		Open              json.RawMessage `json:"open"`
		High              json.RawMessage `json:"high"`
		Low               json.RawMessage `json:"low"`
		Close             json.RawMessage `json:"close"`
		TradeVolume       json.RawMessage `json:"tradeVolume"`
		TotalTradedVolume json.RawMessage `json:"totalTradedVolume"`
	} `json:"fetched"`
}

// FetchQuote returns the FULL-mode quote stamped with the current IST time.
// Open, high and low fall back to LTP when SmartAPI leaves them empty.
func (c *Client) FetchQuote(ctx context.Context, inst types.Instrument) (types.Quote, error) {
	env, err := c.post(ctx, pathQuote, quoteRequest{
		Mode:           "FULL",
		ExchangeTokens: map[string][]string{inst.Exchange: {inst.SymbolToken}},
	}, true)
	if err != nil {
		return types.Quote{}, err
	}
	if !env.Status {
		return types.Quote{}, fmt.Errorf("%w: quote [%s] %s", types.ErrNetwork, env.ErrorCode, env.Message)
	}

	var data quoteData
	if err := jsonUnmarshal(env.Data, &data); err != nil {
		return types.Quote{}, fmt.Errorf("%w: quote: %v", types.ErrNetwork, err)
	}
	if len(data.Fetched) == 0 {
		return types.Quote{}, fmt.Errorf("%w: no quote for %s", types.ErrNetwork, inst.TradingSymbol)
	}
	f := data.Fetched[0]

	ltp, err := number(f.LTP)
	if err != nil || ltp <= 0 {
		return types.Quote{}, fmt.Errorf("%w: quote for %s has no LTP", types.ErrNetwork, inst.TradingSymbol)
	}
	q := types.Quote{
		Time:   c.now().In(market.IST),
		LTP:    ltp,
		Open:   numberOr(f.Open, ltp),
		High:   numberOr(f.High, ltp),
		Low:    numberOr(f.Low, ltp),
		Close:  numberOr(f.Close, ltp),
		Volume: numberOr(f.TradeVolume, numberOr(f.TotalTradedVolume, 0)),
	}
	return q, nil
}

// number decodes a JSON number or numeric string.
func number(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing number")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid number %s", raw)
	}
	return strconv.ParseFloat(s, 64)
}

func numberOr(raw json.RawMessage, def float64) float64 {
	if v, err := number(raw); err == nil && v > 0 {
		return v
	}
	return def
}

func jsonUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("empty data")
	}
	return json.Unmarshal(raw, v)
}
