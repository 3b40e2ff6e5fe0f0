package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/types"
)

var (
	ErrSessionExists   = errors.New("session already running for symbol token")
	ErrSessionNotFound = errors.New("no session running for symbol token")
	ErrSessionStopped  = errors.New("session stopped while starting")
)

// SessionFactory builds a session for a job.
type SessionFactory func(job Job) (*Session, error)

type handle struct {
	job     Job
	session *Session // nil until the factory returns
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager runs at most one session per symbol token.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*handle
	factory  SessionFactory
	wg       sync.WaitGroup
}

func NewManager(factory SessionFactory) *Manager {
	return &Manager{
		sessions: make(map[string]*handle),
		factory:  factory,
	}
}

// Start prepares a session synchronously, so login failures reach the caller,
// then runs its loop in the background. A Stop during preparation aborts it
// and Start returns ErrSessionStopped.
func (m *Manager) Start(ctx context.Context, job Job) (types.SessionStatus, error) {
	token := job.Instrument.SymbolToken

	m.mu.Lock()
	if _, ok := m.sessions[token]; ok {
		m.mu.Unlock()
		return types.SessionStatus{}, ErrSessionExists
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	// Reserve the token while preparing.
	h := &handle{job: job, cancel: cancel, done: make(chan struct{})}
	m.sessions[token] = h
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		if m.sessions[token] == h {
			delete(m.sessions, token)
		}
		m.mu.Unlock()
	}
	abort := func() {
		cancel()
		release()
		close(h.done)
	}

	s, err := m.factory(job)
	if err != nil {
		abort()
		return types.SessionStatus{}, err
	}
	m.mu.Lock()
	h.session = s
	m.mu.Unlock()

	prepCtx, stopPrep := context.WithCancel(ctx)
	unhook := context.AfterFunc(runCtx, stopPrep)
	err = s.Prepare(prepCtx)
	unhook()
	stopPrep()
	if runCtx.Err() != nil {
		s.setState(StateStopped, nil)
		abort()
		return s.Status(), ErrSessionStopped
	}
	if err != nil {
		abort()
		return s.Status(), err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer release()
		if err := s.Loop(runCtx); err != nil {
			logger.ErrorWithErr(runCtx, "Session ended with error", err, "session_id", s.ID())
		}
	}()
	return s.Status(), nil
}

// Stop cancels the session for token and waits for it to close its position
// and exit, or for ctx to expire. A session still starting is aborted.
func (m *Manager) Stop(ctx context.Context, token string) (types.SessionStatus, error) {
	m.mu.Lock()
	h, ok := m.sessions[token]
	m.mu.Unlock()
	if !ok {
		return types.SessionStatus{}, ErrSessionNotFound
	}

	h.cancel()
	select {
	case <-h.done:
		return m.statusOf(h), nil
	case <-ctx.Done():
		return m.statusOf(h), ctx.Err()
	}
}

func (m *Manager) statusOf(h *handle) types.SessionStatus {
	m.mu.Lock()
	s := h.session
	m.mu.Unlock()
	if s == nil {
		return types.SessionStatus{Instrument: h.job.Instrument, Qty: h.job.Qty, State: StateCreated}
	}
	return s.Status()
}

// StopAll cancels every session and waits for all of them.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	for _, h := range m.sessions {
		h.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn(ctx, "Timed out waiting for sessions to stop")
	}
}

func (m *Manager) Status(token string) (types.SessionStatus, bool) {
	m.mu.Lock()
	var s *Session
	if h, ok := m.sessions[token]; ok {
		s = h.session
	}
	m.mu.Unlock()
	if s == nil {
		return types.SessionStatus{}, false
	}
	return s.Status(), true
}

func (m *Manager) List() []types.SessionStatus {
	m.mu.Lock()
	out := make([]types.SessionStatus, 0, len(m.sessions))
	for _, h := range m.sessions {
		if h.session != nil {
			out = append(out, h.session.Status())
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
