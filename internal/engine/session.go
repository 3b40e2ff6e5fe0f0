package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/types"
)

const (
	StateCreated       = "CREATED"
	StateRunning       = "RUNNING"
	StateWaitingMarket = "WAITING_MARKET"
	StateStopping      = "STOPPING"
	StateStopped       = "STOPPED"
	StateFailed        = "FAILED"
)

// Run logs in, seeds history and polls until ctx is cancelled. An open
// position is closed before Run returns. Only a login failure is returned as
// an error; per-cycle failures are logged and the cycle is skipped.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Prepare(ctx); err != nil {
		return err
	}
	return s.Loop(ctx)
}

// Prepare authenticates with the broker and seeds the window from history.
// A history failure leaves the window empty; the live feed fills it.
func (s *Session) Prepare(ctx context.Context) error {
	symbol := s.job.Instrument.TradingSymbol

	loginCtx, cancel := s.withTimeout(ctx)
	err := s.brk.Login(loginCtx)
	cancel()
	if err != nil {
		s.setState(StateFailed, err)
		if errors.Is(err, types.ErrAuthFailure) {
			return err
		}
		return fmt.Errorf("%w: %v", types.ErrAuthFailure, err)
	}

	from, to := s.hours.LastSession(s.now())
	histCtx, cancel := s.withTimeout(ctx)
	history, err := s.brk.FetchHistory(histCtx, s.job.Instrument, s.window.Interval(), from, to)
	cancel()
	if err != nil {
		logger.Warn(ctx, "Historical data unavailable, starting with an empty window",
			"symbol", symbol, "from", from, "to", to, "error", err)
		return nil
	}
	if err := s.window.Seed(history); err != nil {
		logger.Warn(ctx, "Historical data rejected, starting with an empty window", "symbol", symbol, "error", err)
		return nil
	}
	logger.Info(ctx, "Window seeded from history",
		"symbol", symbol,
		"bars", s.window.Len(),
		"from", from.Format("2006-01-02 15:04"),
		"to", to.Format("2006-01-02 15:04"),
	)
	s.publishStatus()
	return nil
}

// Loop polls on a fixed interval until ctx is cancelled. Cycles never overlap:
// ticks that arrive while a cycle is running are dropped by the ticker.
func (s *Session) Loop(ctx context.Context) error {
	symbol := s.job.Instrument.TradingSymbol
	logger.Info(ctx, "Session started",
		"session_id", s.id,
		"symbol", symbol,
		"token", s.job.Instrument.SymbolToken,
		"qty", s.job.Qty,
		"length", s.job.Length,
		"multiplier", s.job.Multiplier,
		"poll", s.poll.String(),
	)
	s.setState(StateRunning, nil)

	defer s.shutdown(ctx)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.cycle(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Session) cycle(ctx context.Context) {
	now := s.now()
	if !s.hours.IsOpen(now) {
		if s.state != StateWaitingMarket {
			logger.Info(ctx, "Market closed, waiting",
				"symbol", s.job.Instrument.TradingSymbol,
				"next_open", s.hours.NextOpen(now).Format(time.RFC3339))
			s.setState(StateWaitingMarket, nil)
		}
		return
	}
	if s.state != StateRunning {
		s.setState(StateRunning, nil)
	}

	if _, err := s.stepper.Step(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.lastErr = err.Error()
		s.publishStatus()
		logger.Warn(ctx, "Cycle skipped", "symbol", s.job.Instrument.TradingSymbol, "error", err)
	}
}

// shutdown closes any open position with a fresh context, since the session
// context is already cancelled at this point.
func (s *Session) shutdown(parent context.Context) {
	s.setState(StateStopping, nil)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.shutdownTimeout())
	defer cancel()

	if err := s.closeOpenPosition(ctx, ReasonSessionStop); err != nil {
		logger.ErrorWithErr(ctx, "Failed to close position on stop", err,
			"symbol", s.job.Instrument.TradingSymbol,
			"position", s.positions.current().Side,
		)
	}

	perf := s.ledger.Snapshot()
	logger.Info(ctx, "Session stopped",
		"session_id", s.id,
		"symbol", s.job.Instrument.TradingSymbol,
		"trades", perf.Trades,
		"net_pnl", perf.NetPnL,
		"win_rate", perf.WinRate,
	)
	s.setState(StateStopped, nil)
}

func (s *Session) shutdownTimeout() time.Duration {
	if s.timeout > 0 {
		return 2 * s.timeout
	}
	return 30 * time.Second
}
