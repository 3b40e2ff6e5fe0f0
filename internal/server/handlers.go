package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"supertrend-bot/internal/broker/angelone"
	"supertrend-bot/internal/engine"
	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/types"
)

// flexInt accepts 5 as well as "5"; the dashboard posts form values as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid integer %s", b)
	}
	*f = flexInt(n)
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*f = flexFloat(v)
	return nil
}

type applyRequest struct {
	TradingSymbol    string    `json:"trading_symbol"`
	SymbolToken      string    `json:"symbol_token"`
	Exchange         string    `json:"exchange"`
	Quantity         flexInt   `json:"quantity"`
	SupertrendLength flexInt   `json:"supertrend_length"`
	SupertrendFactor flexFloat `json:"supertrend_factor"`
}

func (s *Server) applySupertrend(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.TradingSymbol = strings.TrimSpace(req.TradingSymbol)
	req.SymbolToken = strings.TrimSpace(req.SymbolToken)
	req.Exchange = strings.ToUpper(strings.TrimSpace(req.Exchange))
	if req.TradingSymbol == "" || req.SymbolToken == "" || req.Exchange == "" || req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	job := engine.Job{
		Instrument: types.Instrument{
			TradingSymbol: req.TradingSymbol,
			SymbolToken:   req.SymbolToken,
			Exchange:      req.Exchange,
		},
		Qty:        int(req.Quantity),
		Length:     int(req.SupertrendLength),
		Multiplier: float64(req.SupertrendFactor),
	}

	ctx := c.Request.Context()
	status, err := s.Sessions.Start(ctx, job)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"error": "strategy already running for this symbol token"})
		return
	case errors.Is(err, engine.ErrSessionStopped):
		c.JSON(http.StatusConflict, gin.H{"error": "strategy was stopped while starting"})
		return
	case errors.Is(err, types.ErrAuthFailure), errors.Is(err, types.ErrNetwork):
		logger.ErrorWithErr(ctx, "Failed to start session", err, "symbol", job.Instrument.TradingSymbol)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "broker did not answer in time"})
		return
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Supertrend strategy applied successfully",
		"session_id": status.ID,
		"session":    status,
	})
}

func (s *Server) stop(c *gin.Context) {
	var req struct {
		SymbolToken string `json:"symbol_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SymbolToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol_token is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.StopTimeout)
	defer cancel()
	status, err := s.Sessions.Stop(ctx, strings.TrimSpace(req.SymbolToken))
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no strategy running for this symbol token"})
		return
	default:
		// The session keeps shutting down in the background.
		c.JSON(http.StatusAccepted, gin.H{"message": "stop requested", "session": status})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Supertrend strategy stopped", "session": status})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions.List()})
}

func (s *Server) getSession(c *gin.Context) {
	status, ok := s.Sessions.Status(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no strategy running for this symbol token"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) listTrades(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade journal disabled"})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	trades, err := s.Journal.ListTrades(c.Request.Context(), c.Param("token"), limit)
	if err != nil {
		logger.ErrorWithErr(c.Request.Context(), "Failed to list trades", err, "symbol_token", c.Param("token"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	if trades == nil {
		trades = []types.ClosedTrade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// orderRequest mirrors SmartAPI's placeOrder field names.
type orderRequest struct {
	TradingSymbol   string  `json:"tradingsymbol"`
	SymbolToken     string  `json:"symboltoken"`
	TransactionType string  `json:"transactiontype"`
	Quantity        flexInt `json:"quantity"`
	Exchange        string  `json:"exchange"`
	Variety         string  `json:"variety"`
	OrderType       string  `json:"ordertype"`
	ProductType     string  `json:"producttype"`
	Duration        string  `json:"duration"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request payload"})
		return
	}
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"tradingsymbol", req.TradingSymbol},
		{"symboltoken", req.SymbolToken},
		{"transactiontype", req.TransactionType},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if req.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	side := strings.ToUpper(strings.TrimSpace(req.TransactionType))
	if side != "BUY" && side != "SELL" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("Invalid transactiontype %q: must be BUY or SELL", req.TransactionType),
		})
		return
	}

	order := angelone.WithOrderDefaults(types.OrderReq{
		Instrument: types.Instrument{
			TradingSymbol: req.TradingSymbol,
			SymbolToken:   req.SymbolToken,
			Exchange:      strings.ToUpper(req.Exchange),
		},
		Side:        side,
		Qty:         int(req.Quantity),
		Tag:         "manual",
		Variety:     req.Variety,
		OrderType:   req.OrderType,
		ProductType: req.ProductType,
		Duration:    req.Duration,
	})

	ctx := c.Request.Context()
	resp, err := s.Broker.PlaceOrder(ctx, order)
	if err != nil {
		var rejected *types.OrderRejectedError
		if errors.As(err, &rejected) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": fmt.Sprintf("Failed to place order: %s (Code: %s)", rejected.Message, rejected.Code),
			})
			return
		}
		logger.ErrorWithErr(ctx, "Manual order failed", err, "symbol", order.TradingSymbol)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}

	logger.Trade(ctx, order.TradingSymbol, order.Side, order.Qty, 0, resp.OrderID, "reason", "MANUAL", "status", resp.Status)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order placed successfully",
		"data":    resp,
	})
}

