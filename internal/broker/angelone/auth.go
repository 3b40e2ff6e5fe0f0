package angelone

import (
	"context"
	"errors"
	"fmt"

	"github.com/pquerna/otp/totp"

	"supertrend-bot/internal/api"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/types"
)

type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Login authenticates with client code, MPIN and a fresh TOTP, and stores the
// session tokens. Rejected credentials return ErrAuthFailure; transport
// failures return ErrNetwork.
func (c *Client) Login(ctx context.Context) error {
	if err := c.creds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrAuthFailure, err)
	}
	code, err := totp.GenerateCode(c.creds.TOTPSecret, c.now())
	if err != nil {
		return fmt.Errorf("%w: generate totp: %v", types.ErrAuthFailure, err)
	}

	resp, err := c.http.POST(ctx, pathLogin, loginRequest{
		ClientCode: c.creds.ClientCode,
		Password:   c.creds.MPIN,
		TOTP:       code,
	})
	if err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			return fmt.Errorf("%w: %v", types.ErrAuthFailure, err)
		}
		return fmt.Errorf("%w: login: %v", types.ErrNetwork, err)
	}

	var env envelope
	if err := resp.ParseJSON(&env); err != nil {
		return fmt.Errorf("%w: login: %v", types.ErrNetwork, err)
	}
	if !env.Status {
		return fmt.Errorf("%w: [%s] %s", types.ErrAuthFailure, env.ErrorCode, env.Message)
	}

	var data loginData
	if err := jsonUnmarshal(env.Data, &data); err != nil || data.JWTToken == "" {
		return fmt.Errorf("%w: login response has no jwt token", types.ErrAuthFailure)
	}

	c.mu.Lock()
	c.tok = tokens{jwt: data.JWTToken, refresh: data.RefreshToken, feed: data.FeedToken}
	c.mu.Unlock()

	logger.Info(ctx, "SmartAPI login successful", "client_code", c.creds.ClientCode, "dry_run", c.dryRun)
	return nil
}

// FeedToken returns the market feed token of the current session.
func (c *Client) FeedToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tok.feed
}
