package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/events"
	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/market"
	"supertrend-bot/internal/store"
	"supertrend-bot/internal/tradelog"
	"supertrend-bot/internal/types"
)

// Job is the request to trade one instrument.
type Job struct {
	Instrument types.Instrument
	Qty        int
	Length     int     // Supertrend ATR length, 0 uses the configured default
	Multiplier float64 // Supertrend band multiplier, 0 uses the configured default
}

// Session trades one instrument. Its window, position and ledger are owned by
// the goroutine running it; other goroutines read Status only.
type Session struct {
	id      string
	job     Job
	cfg     *store.Config
	brk     interfaces.Broker
	journal interfaces.TradeJournal
	bus     *events.Bus
	hours   market.Hours
	now     func() time.Time
	poll    time.Duration
	timeout time.Duration
	stepper interfaces.Stepper

	window    *candles.Window
	positions *positionManager
	exec      *orderExecutor
	risk      *riskManager
	ledger    *Ledger

	lastDayVolume float64
	haveVolume    bool
	lastSignal    types.SignalBar
	// Bar time of the last signal change whose orders were all acknowledged.
	// Later polls of the same bar do not act on that change again.
	actedChange time.Time
	tradeLog    bool

	startedAt time.Time
	state     string
	lastErr   string
	status    atomic.Pointer[types.SessionStatus]
}

type Option func(*Session)

// WithJournal persists closed trades.
func WithJournal(j interfaces.TradeJournal) Option {
	return func(s *Session) { s.journal = j }
}

// WithBus publishes step results, trades and lifecycle events.
func WithBus(b *events.Bus) Option {
	return func(s *Session) { s.bus = b }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithPollInterval overrides poll_seconds.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.poll = d }
}

// WithoutTradeLog keeps orders and signals out of the daily trade log.
func WithoutTradeLog() Option {
	return func(s *Session) { s.tradeLog = false }
}

// WithStepWrapper decorates the per-cycle step, e.g. with engineobs.Wrap.
func WithStepWrapper(wrap func(interfaces.Stepper) interfaces.Stepper) Option {
	return func(s *Session) { s.stepper = wrap(s.stepper) }
}

// NewSession builds a session from configuration and a job.
func NewSession(cfg *store.Config, brk interfaces.Broker, job Job, opts ...Option) (*Session, error) {
	if job.Instrument.SymbolToken == "" || job.Instrument.TradingSymbol == "" || job.Instrument.Exchange == "" {
		return nil, errors.New("trading symbol, symbol token and exchange are required")
	}
	if job.Qty <= 0 {
		job.Qty = cfg.QtyFor(job.Instrument.TradingSymbol)
	}
	if job.Length <= 0 {
		job.Length = cfg.Supertrend.Length
	}
	if job.Multiplier <= 0 {
		job.Multiplier = cfg.Supertrend.Multiplier
	}
	if job.Length < 2 {
		return nil, fmt.Errorf("supertrend length must be at least 2, got %d", job.Length)
	}

	interval, err := candles.ParseInterval(cfg.Interval)
	if err != nil {
		return nil, err
	}
	hours, err := market.NewHours(cfg.Market.Open, cfg.Market.Close)
	if err != nil {
		return nil, err
	}
	capacity := cfg.WindowSize
	if capacity < job.Length {
		capacity = job.Length
	}

	timeout := time.Duration(cfg.Broker.TimeoutSeconds) * time.Second
	stops := newStopManager(cfg.Stop.LookbackBars, cfg.Stop.FallbackPct, cfg.Stop.RewardRisk, cfg.Stop.MinTick)
	s := &Session{
		id:        uuid.NewString(),
		job:       job,
		cfg:       cfg,
		brk:       brk,
		hours:     hours,
		now:       time.Now,
		poll:      time.Duration(cfg.PollSeconds) * time.Second,
		timeout:   timeout,
		window:    candles.NewWindow(interval, capacity),
		positions: newPositionManager(job.Qty, cfg.Strategy.FlipPolicy == store.FlipReverse, cfg.Strategy.LongOnly, stops),
		exec:      newOrderExecutor(brk, job.Instrument, timeout),
		risk:      newRiskManager(cfg.Risk.MaxNotional),
		ledger:    NewLedger(),
		state:     StateCreated,
		tradeLog:  true,
	}
	s.stepper = s
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	s.publishStatus()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Job() Job { return s.job }

func (s *Session) Instrument() types.Instrument { return s.job.Instrument }

// Status returns the latest published snapshot.
func (s *Session) Status() types.SessionStatus {
	if st := s.status.Load(); st != nil {
		return *st
	}
	return types.SessionStatus{ID: s.id, Instrument: s.job.Instrument}
}

// Step runs one cycle: fetch a quote, fold it into the window and act on the
// latest bar.
func (s *Session) Step(ctx context.Context) (*types.StepResult, error) {
	fetchCtx, cancel := s.withTimeout(ctx)
	q, err := s.brk.FetchQuote(fetchCtx, s.job.Instrument)
	cancel()
	if err != nil {
		return nil, err
	}

	sample := s.sampleFromQuote(q)
	if err := s.window.Update(sample); err != nil {
		return nil, fmt.Errorf("%w: quote rejected: %v", types.ErrNetwork, err)
	}
	return s.evaluate(ctx)
}

// sampleFromQuote turns a quote into a tick sample. The quote's open/high/low
// are day figures, so the sample uses LTP for all prices; cumulative day volume
// becomes the traded volume since the previous quote.
func (s *Session) sampleFromQuote(q types.Quote) types.Bar {
	at := q.Time
	if at.IsZero() {
		at = s.now()
	}
	var vol float64
	if s.haveVolume && q.Volume >= s.lastDayVolume {
		vol = q.Volume - s.lastDayVolume
	}
	s.lastDayVolume, s.haveVolume = q.Volume, true
	return types.Bar{Time: at, Open: q.LTP, High: q.LTP, Low: q.LTP, Close: q.LTP, Volume: vol}
}

// evaluate computes the indicator over the current window and drives the
// position manager with the latest bar.
func (s *Session) evaluate(ctx context.Context) (*types.StepResult, error) {
	symbol := s.job.Instrument.TradingSymbol
	bars := s.window.Bars()
	res := &types.StepResult{SessionID: s.id, Symbol: symbol, Orders: []types.OrderResp{}}
	if len(bars) > 0 {
		res.Bar = bars[len(bars)-1]
	}

	ind, err := computeIndicator(bars, s.job.Length, s.job.Multiplier)
	if errors.Is(err, types.ErrInsufficientData) {
		logger.Debug(ctx, "Waiting for more bars", "symbol", symbol, "bars", len(bars), "required", s.job.Length)
		res.Position = s.positions.current()
		res.Reason = "INSUFFICIENT_DATA"
		s.afterStep(res)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	signals := deriveSignals(ind)
	latest := signals[len(signals)-1]
	s.lastSignal = latest
	res.Trend, res.Signal, res.Changed = latest.Trend, latest.Signal, latest.Changed

	fresh := latest.Changed && !latest.Time.Equal(s.actedChange)
	if fresh {
		logger.Signal(ctx, symbol, string(latest.Signal), latest.Close, latest.Trend,
			"direction", latest.Direction.String())
		if s.tradeLog {
			_ = tradelog.AppendSignal(tradelog.SignalEntry{
				Symbol:    symbol,
				Signal:    string(latest.Signal),
				Direction: latest.Direction.String(),
				Price:     latest.Close,
				Trend:     latest.Trend,
			})
		}
	}

	current := latest
	current.Changed = fresh
	acted := true
	for _, p := range s.positions.decide(ctx, symbol, current, bars) {
		if p.kind == actionOpen && !s.risk.allowEntry(ctx, symbol, p.price, s.job.Qty) {
			res.Reason = "BLOCKED_RISK_CAP"
			acted = false
			break
		}
		resp, err := s.apply(ctx, p)
		if err != nil {
			res.Reason = "ORDER_REJECTED"
			s.lastErr = err.Error()
			acted = false
			break
		}
		res.Orders = append(res.Orders, resp)
		res.Reason = p.reason
	}
	if fresh && acted {
		s.actedChange = latest.Time
	}

	res.Position = s.positions.current()
	s.afterStep(res)
	return res, nil
}

// apply submits one proposal and commits it once the broker acknowledges.
func (s *Session) apply(ctx context.Context, p proposal) (types.OrderResp, error) {
	qty := s.job.Qty
	if p.kind == actionClose {
		qty = s.positions.current().Qty
	}
	resp, err := s.exec.submit(ctx, p, qty)
	if err != nil {
		return types.OrderResp{}, err
	}

	closed := s.positions.commit(p)
	if s.tradeLog {
		s.exec.record(p, qty, resp, closed)
	}
	if closed != nil {
		s.onClosed(ctx, closed)
	} else {
		pos := s.positions.current()
		logger.Info(ctx, "Position opened",
			"symbol", s.job.Instrument.TradingSymbol,
			"side", pos.Side,
			"entry_price", pos.EntryPrice,
			"stop_loss", pos.StopLoss,
			"take_profit", pos.TakeProfit,
			"qty", pos.Qty,
		)
	}
	return resp, nil
}

func (s *Session) onClosed(ctx context.Context, t *types.ClosedTrade) {
	t.ID = uuid.NewString()
	t.SessionID = s.id
	t.Symbol = s.job.Instrument.TradingSymbol
	t.SymbolToken = s.job.Instrument.SymbolToken

	s.ledger.Record(*t)
	perf := s.ledger.Snapshot()
	logger.Info(ctx, "Position closed",
		"symbol", t.Symbol,
		"side", t.Side,
		"entry_price", t.EntryPrice,
		"exit_price", t.ExitPrice,
		"pnl", t.PnL,
		"reason", t.Reason,
		"trades", perf.Trades,
		"wins", perf.Wins,
		"losses", perf.Losses,
		"gross_profit", perf.GrossProfit,
		"gross_loss", perf.GrossLoss,
		"net_pnl", perf.NetPnL,
		"win_rate", perf.WinRate,
	)

	if s.journal != nil {
		if err := s.journal.RecordTrade(ctx, *t); err != nil {
			logger.ErrorWithErr(ctx, "Failed to journal trade", err, "symbol", t.Symbol, "trade_id", t.ID)
		}
	}
	s.bus.Publish(events.EventTrade, *t)
}

// closeOpenPosition exits any open position at the last known close.
func (s *Session) closeOpenPosition(ctx context.Context, reason string) error {
	last, ok := s.window.Last()
	if !ok {
		return nil
	}
	for _, p := range s.positions.exitAll(last.Close, reason, s.now()) {
		if _, err := s.apply(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) afterStep(res *types.StepResult) {
	if res.Reason != "ORDER_REJECTED" {
		s.lastErr = ""
	}
	s.publishStatus()
	s.bus.Publish(events.EventStep, *res)
}

func (s *Session) setState(state string, err error) {
	s.state = state
	if err != nil {
		s.lastErr = err.Error()
	}
	s.publishStatus()
	s.bus.Publish(events.EventSession, s.Status())
}

func (s *Session) publishStatus() {
	st := &types.SessionStatus{
		ID:         s.id,
		Instrument: s.job.Instrument,
		Qty:        s.job.Qty,
		State:      s.state,
		StartedAt:  s.startedAt,
		UpdatedAt:  s.now(),
		Bars:       s.window.Len(),
		Trend:      s.lastSignal.Trend,
		Signal:     s.lastSignal.Signal,
		Position:   s.positions.current(),
		Ledger:     s.ledger.Snapshot(),
		LastError:  s.lastErr,
	}
	if last, ok := s.window.Last(); ok {
		st.LastBar = &last
	}
	s.status.Store(st)
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
