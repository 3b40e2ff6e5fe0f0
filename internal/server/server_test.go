package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"supertrend-bot/internal/candles"
	"supertrend-bot/internal/engine"
	"supertrend-bot/internal/events"
	"supertrend-bot/internal/journal"
	"supertrend-bot/internal/types"
)

type fakeSessions struct {
	mu       sync.Mutex
	started  []engine.Job
	startErr error
	running  map[string]types.SessionStatus
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{running: map[string]types.SessionStatus{}}
}

func (f *fakeSessions) Start(_ context.Context, job engine.Job) (types.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return types.SessionStatus{}, f.startErr
	}
	if _, ok := f.running[job.Instrument.SymbolToken]; ok {
		return types.SessionStatus{}, engine.ErrSessionExists
	}
	f.started = append(f.started, job)
	st := types.SessionStatus{ID: fmt.Sprintf("sess-%d", len(f.started)), Instrument: job.Instrument, Qty: job.Qty, State: engine.StateRunning}
	f.running[job.Instrument.SymbolToken] = st
	return st, nil
}

func (f *fakeSessions) Stop(_ context.Context, token string) (types.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.running[token]
	if !ok {
		return types.SessionStatus{}, engine.ErrSessionNotFound
	}
	delete(f.running, token)
	st.State = engine.StateStopped
	return st, nil
}

func (f *fakeSessions) Status(token string) (types.SessionStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.running[token]
	return st, ok
}

func (f *fakeSessions) List() []types.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.SessionStatus, 0, len(f.running))
	for _, st := range f.running {
		out = append(out, st)
	}
	return out
}

type fakeBroker struct {
	mu     sync.Mutex
	orders []types.OrderReq
	err    error
}

func (b *fakeBroker) Login(context.Context) error { return nil }

func (b *fakeBroker) FetchHistory(context.Context, types.Instrument, candles.Interval, time.Time, time.Time) ([]types.Bar, error) {
	return nil, nil
}

func (b *fakeBroker) FetchQuote(context.Context, types.Instrument) (types.Quote, error) {
	return types.Quote{}, nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, req types.OrderReq) (types.OrderResp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return types.OrderResp{}, b.err
	}
	b.orders = append(b.orders, req)
	return types.OrderResp{OrderID: "SIM-1", Status: "SIMULATED"}, nil
}

type testEnv struct {
	server   *Server
	sessions *fakeSessions
	broker   *fakeBroker
	journal  *journal.Journal
	bus      *events.Bus
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	env := &testEnv{
		sessions: newFakeSessions(),
		broker:   &fakeBroker{},
		journal:  j,
		bus:      events.NewBus(),
	}
	env.server = New(env.sessions, env.broker, env.journal, env.bus, opts)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{DryRun: true})
	code, body := env.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "ok" || body["dry_run"] != true {
		t.Errorf("Unexpected body: %v", body)
	}
}

func TestApplySupertrend(t *testing.T) {
	env := newTestEnv(t, Options{})

	code, body := env.do(t, http.MethodPost, "/apply_supertrend", "", map[string]any{
		"trading_symbol":    "SBIN-EQ",
		"symbol_token":      "3045",
		"exchange":          "nse",
		"quantity":          "5",
		"supertrend_length": 7,
		"supertrend_factor": "3",
	})
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", code, body)
	}
	if body["session_id"] != "sess-1" {
		t.Errorf("Expected session_id sess-1, got %v", body["session_id"])
	}

	if len(env.sessions.started) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(env.sessions.started))
	}
	job := env.sessions.started[0]
	if job.Qty != 5 || job.Length != 7 || job.Multiplier != 3 || job.Instrument.Exchange != "NSE" {
		t.Errorf("Unexpected job: %+v", job)
	}

	code, _ = env.do(t, http.MethodPost, "/apply_supertrend", "", map[string]any{
		"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE", "quantity": 5,
	})
	if code != http.StatusConflict {
		t.Errorf("Expected 409 for a running token, got %d", code)
	}
}

func TestApplySupertrendValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		body any
	}{
		{"missing exchange", map[string]any{"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "quantity": 1}},
		{"missing quantity", map[string]any{"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE"}},
		{"zero quantity", map[string]any{"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE", "quantity": 0}},
		{"bad quantity", map[string]any{"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE", "quantity": "five"}},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := env.do(t, http.MethodPost, "/apply_supertrend", "", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", code)
			}
		})
	}
	if len(env.sessions.started) != 0 {
		t.Errorf("Expected no session to start, got %d", len(env.sessions.started))
	}
}

func TestApplySupertrendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth failure", fmt.Errorf("login: %w", types.ErrAuthFailure), http.StatusBadGateway},
		{"network", fmt.Errorf("login: %w", types.ErrNetwork), http.StatusBadGateway},
		{"invalid job", fmt.Errorf("supertrend length must be at least 2, got 1"), http.StatusBadRequest},
		{"stopped while starting", engine.ErrSessionStopped, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.sessions.startErr = tt.err
			code, _ := env.do(t, http.MethodPost, "/apply_supertrend", "", map[string]any{
				"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE", "quantity": 1,
			})
			if code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestStop(t *testing.T) {
	env := newTestEnv(t, Options{})

	code, _ := env.do(t, http.MethodPost, "/stop", "", map[string]any{"symbol_token": "3045"})
	if code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown token, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/stop", "", map[string]any{})
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 without token, got %d", code)
	}

	env.do(t, http.MethodPost, "/apply_supertrend", "", map[string]any{
		"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE", "quantity": 1,
	})
	code, body := env.do(t, http.MethodPost, "/stop", "", map[string]any{"symbol_token": "3045"})
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	session, _ := body["session"].(map[string]any)
	if session["state"] != engine.StateStopped {
		t.Errorf("Expected state %s, got %v", engine.StateStopped, session["state"])
	}
	if _, ok := env.sessions.Status("3045"); ok {
		t.Error("Expected session to be gone")
	}
}

func TestSessions(t *testing.T) {
	env := newTestEnv(t, Options{})

	code, _ := env.do(t, http.MethodGet, "/sessions/3045", "", nil)
	if code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}

	env.do(t, http.MethodPost, "/apply_supertrend", "", map[string]any{
		"trading_symbol": "SBIN-EQ", "symbol_token": "3045", "exchange": "NSE", "quantity": 2,
	})

	code, body := env.do(t, http.MethodGet, "/sessions", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	list, _ := body["sessions"].([]any)
	if len(list) != 1 {
		t.Errorf("Expected 1 session, got %d", len(list))
	}

	code, body = env.do(t, http.MethodGet, "/sessions/3045", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["qty"] != float64(2) {
		t.Errorf("Expected qty 2, got %v", body["qty"])
	}
}

func TestTrades(t *testing.T) {
	env := newTestEnv(t, Options{})
	base := time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC)
	for i, pnl := range []float64{10, -4} {
		err := env.journal.RecordTrade(context.Background(), types.ClosedTrade{
			ID: fmt.Sprintf("t-%d", i), SymbolToken: "3045", Symbol: "SBIN-EQ", Side: types.SideLong,
			Qty: 1, PnL: pnl, Reason: "SIGNAL_FLIP", OpenedAt: base, ClosedAt: base.Add(time.Duration(i+1) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	code, body := env.do(t, http.MethodGet, "/sessions/3045/trades?limit=1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	trades, _ := body["trades"].([]any)
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if first, _ := trades[0].(map[string]any); first["id"] != "t-1" {
		t.Errorf("Expected newest trade t-1, got %v", first["id"])
	}

	code, body = env.do(t, http.MethodGet, "/sessions/9999/trades", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if trades, _ := body["trades"].([]any); len(trades) != 0 {
		t.Errorf("Expected empty list, got %v", body["trades"])
	}

	code, _ = env.do(t, http.MethodGet, "/sessions/3045/trades?limit=x", "", nil)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", code)
	}
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t, Options{})

	code, body := env.do(t, http.MethodPost, "/place_order", "", map[string]any{"tradingsymbol": "SBIN-EQ"})
	if code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", code)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "symboltoken") || !strings.Contains(msg, "quantity") {
		t.Errorf("Expected missing fields listed, got %q", msg)
	}

	code, body = env.do(t, http.MethodPost, "/place_order", "", map[string]any{
		"tradingsymbol": "SBIN-EQ", "symboltoken": "3045", "transactiontype": "buy", "quantity": "3",
	})
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("Expected success, got %d %v", code, body)
	}
	if len(env.broker.orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(env.broker.orders))
	}
	o := env.broker.orders[0]
	if o.Side != "BUY" || o.Qty != 3 || o.Exchange != "NSE" || o.Variety != "NORMAL" ||
		o.OrderType != "MARKET" || o.ProductType != "INTRADAY" || o.Duration != "DAY" {
		t.Errorf("Expected defaults applied, got %+v", o)
	}

	env.broker.err = &types.OrderRejectedError{Code: "AB4008", Message: "insufficient funds"}
	code, body = env.do(t, http.MethodPost, "/place_order", "", map[string]any{
		"tradingsymbol": "SBIN-EQ", "symboltoken": "3045", "transactiontype": "SELL", "quantity": 1,
	})
	if code != http.StatusBadRequest || body["success"] != false {
		t.Errorf("Expected rejection, got %d %v", code, body)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "AB4008") {
		t.Errorf("Expected error code in message, got %q", msg)
	}
}

func TestPlaceOrderRejectsUnknownSide(t *testing.T) {
	tests := []string{"BYU", "HOLD", " "}
	for _, side := range tests {
		t.Run(side, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			code, body := env.do(t, http.MethodPost, "/place_order", "", map[string]any{
				"tradingsymbol": "SBIN-EQ", "symboltoken": "3045", "transactiontype": side, "quantity": 1,
			})
			if code != http.StatusBadRequest || body["success"] != false {
				t.Errorf("Expected 400, got %d %v", code, body)
			}
			if len(env.broker.orders) != 0 {
				t.Errorf("Expected no order sent to the broker, got %d", len(env.broker.orders))
			}
		})
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, Options{JWTSecret: "test-secret"})

	if code, _ := env.do(t, http.MethodGet, "/health", "", nil); code != http.StatusOK {
		t.Errorf("Expected /health open, got %d", code)
	}
	code, body := env.do(t, http.MethodGet, "/sessions", "", nil)
	if code != http.StatusUnauthorized || body["code"] != "MISSING_TOKEN" {
		t.Errorf("Expected 401 MISSING_TOKEN, got %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodGet, "/sessions", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for garbage token, got %d", code)
	}

	wrong, err := MintToken("other-secret", "ops", time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if code, _ := env.do(t, http.MethodGet, "/sessions", wrong, nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a foreign signature, got %d", code)
	}

	expired, _ := MintToken("test-secret", "ops", -time.Minute)
	if code, _ := env.do(t, http.MethodGet, "/sessions", expired, nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for an expired token, got %d", code)
	}

	token, _ := MintToken("test-secret", "ops", time.Hour)
	if code, _ := env.do(t, http.MethodGet, "/sessions", token, nil); code != http.StatusOK {
		t.Errorf("Expected 200 with a valid token, got %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/sessions?token="+token, "", nil); code != http.StatusOK {
		t.Errorf("Expected 200 with a query token, got %d", code)
	}
}

func TestMintTokenRequiresSecret(t *testing.T) {
	if _, err := MintToken("", "ops", time.Hour); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RequestsPerSecond: 0.001, Burst: 2})

	var codes []int
	for i := 0; i < 3; i++ {
		code, _ := env.do(t, http.MethodGet, "/health", "", nil)
		codes = append(codes, code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 200 429], got %v", codes)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	env.server.Router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("Expected request id to be echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	env.server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a generated request id")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, Options{})
	w := httptest.NewRecorder()
	env.server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/place_order", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestWebsocketStreamsBusEvents(t *testing.T) {
	env := newTestEnv(t, Options{})
	srv := httptest.NewServer(env.server.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// The handler subscribes after the handshake, so keep publishing until
	// a message arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				env.bus.Publish(events.EventTrade, types.ClosedTrade{ID: "t-1", PnL: 5})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event   string            `json:"event"`
		Payload types.ClosedTrade `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Event != string(events.EventTrade) || msg.Payload.ID != "t-1" {
		t.Errorf("Unexpected message: %+v", msg)
	}
}
