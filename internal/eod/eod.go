// Package eod writes a per-symbol CSV summary of a day's trade log.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"supertrend-bot/internal/market"
	"supertrend-bot/internal/tradelog"
)

type eodSummarizer struct {
	hours market.Hours
	now   func() time.Time
}

// SummarizeDay aggregates the trade log for t's date into logs/eod/<date>.csv.
// It returns an empty path and no error when there were no trades.
func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	aggs, err := readTradeLog(tradelog.DailyFilepath(t))
	if err != nil || len(aggs) == 0 {
		return "", err
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "closed_trades", "wins", "losses", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var total aggRow
	for _, k := range keys {
		r := aggs[k]
		if err := w.Write(r.record()); err != nil {
			return "", err
		}
		total.BuyQty += r.BuyQty
		total.BuyValue += r.BuyValue
		total.SellQty += r.SellQty
		total.SellValue += r.SellValue
		total.Closed += r.Closed
		total.Wins += r.Wins
		total.Losses += r.Losses
		total.RealizedPnL += r.RealizedPnL
	}
	total.Symbol = "TOTAL"
	rec := total.record()
	rec[2], rec[4] = "", ""
	if err := w.Write(rec); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday() (string, error) { return s.SummarizeDay(s.now()) }

// ShouldRunNow reports whether today's summary is due and not yet written.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := eodCSVPath(now)
	if !s.hours.IsTradingDay(now) || now.Before(summaryReadyAt(s.hours, now)) {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}

func readTradeLog(path string) (map[string]*aggRow, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tl tradeLine
		if err := json.Unmarshal(sc.Bytes(), &tl); err != nil || tl.Symbol == "" {
			continue
		}
		row := aggs[tl.Symbol]
		if row == nil {
			row = &aggRow{Symbol: tl.Symbol}
			aggs[tl.Symbol] = row
		}
		row.add(tl)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return aggs, nil
}

func (r *aggRow) add(tl tradeLine) {
	value := float64(tl.Qty) * tl.Price
	switch tl.Side {
	case "BUY":
		r.BuyQty += tl.Qty
		r.BuyValue += value
	case "SELL":
		r.SellQty += tl.Qty
		r.SellValue += value
	}
	if tl.Action != "CLOSE" {
		return
	}
	r.Closed++
	r.RealizedPnL += tl.PnL
	switch {
	case tl.PnL > 0:
		r.Wins++
	case tl.PnL < 0:
		r.Losses++
	}
}

func (r *aggRow) record() []string {
	var buyAvg, sellAvg float64
	if r.BuyQty > 0 {
		buyAvg = r.BuyValue / float64(r.BuyQty)
	}
	if r.SellQty > 0 {
		sellAvg = r.SellValue / float64(r.SellQty)
	}
	return []string{
		r.Symbol,
		strconv.Itoa(r.BuyQty),
		fmt.Sprintf("%.4f", buyAvg),
		strconv.Itoa(r.SellQty),
		fmt.Sprintf("%.4f", sellAvg),
		strconv.Itoa(r.Closed),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		fmt.Sprintf("%.2f", r.RealizedPnL),
		fmt.Sprintf("%.2f", r.BuyValue),
		fmt.Sprintf("%.2f", r.SellValue),
	}
}
