package angelone

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"supertrend-bot/internal/types"
)

type orderRequest struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Quantity        string `json:"quantity"`
	OrderTag        string `json:"ordertag,omitempty"`
}

type orderData struct {
	OrderID       string `json:"orderid"`
	UniqueOrderID string `json:"uniqueorderid"`
}

// WithOrderDefaults fills the fields SmartAPI requires with the values a
// plain intraday market order uses.
func WithOrderDefaults(req types.OrderReq) types.OrderReq {
	if req.Exchange == "" {
		req.Exchange = "NSE"
	}
	if req.Variety == "" {
		req.Variety = "NORMAL"
	}
	if req.OrderType == "" {
		req.OrderType = "MARKET"
	}
	if req.ProductType == "" {
		req.ProductType = "INTRADAY"
	}
	if req.Duration == "" {
		req.Duration = "DAY"
	}
	return req
}

// PlaceOrder submits a market order. In DRY_RUN mode nothing is sent and a
// simulated acknowledgement is returned. A refusal by SmartAPI returns
// *types.OrderRejectedError. Orders are never retried on transport errors.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	req = WithOrderDefaults(req)
	if req.Side != "BUY" && req.Side != "SELL" {
		return types.OrderResp{}, &types.OrderRejectedError{Message: fmt.Sprintf("invalid side %q", req.Side)}
	}
	if req.Qty <= 0 {
		return types.OrderResp{}, &types.OrderRejectedError{Message: fmt.Sprintf("invalid quantity %d", req.Qty)}
	}
	if req.TradingSymbol == "" || req.SymbolToken == "" {
		return types.OrderResp{}, &types.OrderRejectedError{Message: "trading symbol and symbol token are required"}
	}

	if c.dryRun {
		return types.OrderResp{
			OrderID: "SIM-" + uuid.NewString(),
			Status:  "SIMULATED",
			Message: "dry run, order not sent",
		}, nil
	}

	env, err := c.post(ctx, pathOrder, orderRequest{
		Variety:         req.Variety,
		TradingSymbol:   req.TradingSymbol,
		SymbolToken:     req.SymbolToken,
		TransactionType: req.Side,
		Exchange:        req.Exchange,
		OrderType:       req.OrderType,
		ProductType:     req.ProductType,
		Duration:        req.Duration,
		Quantity:        strconv.Itoa(req.Qty),
		OrderTag:        orderTag(req.Tag),
	}, false)
	if err != nil {
		return types.OrderResp{}, err
	}
	if !env.Status {
		return types.OrderResp{}, &types.OrderRejectedError{Code: env.ErrorCode, Message: env.Message}
	}

	var data orderData
	if err := jsonUnmarshal(env.Data, &data); err != nil || data.OrderID == "" {
		return types.OrderResp{}, &types.OrderRejectedError{Message: "acknowledgement has no order id"}
	}
	return types.OrderResp{OrderID: data.OrderID, Status: "PLACED", Message: env.Message}, nil
}

// orderTag trims a tag to the 20 characters SmartAPI accepts.
func orderTag(tag string) string {
	if len(tag) > 20 {
		return tag[:20]
	}
	return tag
}
