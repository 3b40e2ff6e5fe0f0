// Package angelone is the Angel One SmartAPI REST broker: login, historical
// candles, live quotes and order placement.
package angelone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"supertrend-bot/internal/api"
	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/market"
	"supertrend-bot/internal/store"
	"supertrend-bot/internal/types"
)

const (
	pathLogin   = "/rest/auth/angelbroking/user/v1/loginByPassword"
	pathCandles = "/rest/secure/angelbroking/historical/v1/getCandleData"
	pathQuote   = "/rest/secure/angelbroking/market/v1/quote/"
	pathOrder   = "/rest/secure/angelbroking/order/v1/placeOrder"
)

// Error codes SmartAPI uses for an invalid or expired session.
var authErrorCodes = map[string]bool{
	"AB2001": true,
	"AG8001": true,
	"AG8002": true,
	"AB1010": true,
}

var errSessionExpired = errors.New("session expired")

// Credentials are the SmartAPI account secrets.
type Credentials struct {
	APIKey     string
	ClientCode string
	MPIN       string
	TOTPSecret string
}

// CredentialsFromEnv reads ANGELONE_API_KEY, ANGELONE_CLIENT_ID, ANGELONE_MPIN
// and ANGELONE_TOTP_SECRET.
func CredentialsFromEnv() Credentials {
	return Credentials{
		APIKey:     os.Getenv("ANGELONE_API_KEY"),
		ClientCode: os.Getenv("ANGELONE_CLIENT_ID"),
		MPIN:       os.Getenv("ANGELONE_MPIN"),
		TOTPSecret: os.Getenv("ANGELONE_TOTP_SECRET"),
	}
}

func (c Credentials) Validate() error {
	if c.APIKey == "" || c.ClientCode == "" || c.MPIN == "" || c.TOTPSecret == "" {
		return errors.New("ANGELONE_API_KEY, ANGELONE_CLIENT_ID, ANGELONE_MPIN and ANGELONE_TOTP_SECRET must be set")
	}
	return nil
}

type tokens struct {
	jwt     string
	refresh string
	feed    string
}

// Client talks to SmartAPI. It is safe for concurrent use by several sessions.
type Client struct {
	http   *api.Client
	creds  Credentials
	hours  market.Hours
	dryRun bool
	now    func() time.Time
	retry  *api.RetryConfig

	mu  sync.RWMutex
	tok tokens
}

var _ interfaces.Broker = (*Client)(nil)

type Option func(*Client)

// WithClock replaces time.Now for TOTP generation and quote timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRetry overrides the retry policy of idempotent market data calls.
func WithRetry(rc *api.RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// New builds a client from configuration. Orders are simulated unless
// cfg.Mode is LIVE.
func New(cfg *store.Config, creds Credentials, opts ...Option) (*Client, error) {
	hours, err := market.NewHours(cfg.Market.Open, cfg.Market.Close)
	if err != nil {
		return nil, err
	}
	c := &Client{
		http: api.NewClient(
			api.WithBaseURL(cfg.Broker.BaseURL),
			api.WithTimeout(time.Duration(cfg.Broker.TimeoutSeconds)*time.Second),
			api.WithHeaders(api.SmartAPIHeaders(creds.APIKey, cfg.Broker.ClientLocalIP, cfg.Broker.ClientPublicIP, cfg.Broker.MACAddress)),
			api.WithRateLimit(cfg.Broker.RequestsPerSecond, cfg.Broker.Burst),
			api.WithLogging(true),
		),
		creds:  creds,
		hours:  hours,
		dryRun: cfg.Mode != "LIVE",
		now:    time.Now,
		retry: &api.RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DryRun reports whether orders are simulated.
func (c *Client) DryRun() bool { return c.dryRun }

// envelope is the response wrapper of every SmartAPI endpoint.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

func (e envelope) authExpired() bool { return !e.Status && authErrorCodes[e.ErrorCode] }

// post sends an authenticated request. When SmartAPI reports an expired
// session it logs in again and retries once.
func (c *Client) post(ctx context.Context, path string, body any, retry bool) (envelope, error) {
	env, err := c.postOnce(ctx, path, body, retry)
	if !errors.Is(err, errSessionExpired) {
		return env, err
	}
	if err := c.Login(ctx); err != nil {
		return envelope{}, err
	}
	env, err = c.postOnce(ctx, path, body, retry)
	if errors.Is(err, errSessionExpired) {
		return envelope{}, fmt.Errorf("%w: session rejected after re-login", types.ErrAuthFailure)
	}
	return env, err
}

func (c *Client) postOnce(ctx context.Context, path string, body any, retry bool) (envelope, error) {
	c.mu.RLock()
	jwt := c.tok.jwt
	c.mu.RUnlock()
	if jwt == "" {
		return envelope{}, errSessionExpired
	}

	req := api.NewRequest(http.MethodPost, path).
		WithContext(ctx).
		WithBody(body).
		WithHeader("Authorization", "Bearer "+jwt)

	var resp *api.Response
	var err error
	if retry {
		resp, err = c.http.DoWithRetry(req, c.retry)
	} else {
		resp, err = c.http.Do(req)
	}
	if err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return envelope{}, errSessionExpired
		}
		return envelope{}, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}

	var env envelope
	if err := resp.ParseJSON(&env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	if env.authExpired() {
		return envelope{}, errSessionExpired
	}
	return env, nil
}
