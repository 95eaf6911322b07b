package algolab

import (
	"context"
	"strconv"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// Gateway adapts domain orders to the AlgoLab order endpoints. It is the
// live-mode implementation of the coordinator's broker port; session tokens
// come in from the caller so the retry loop stays in charge of refreshing.
type Gateway struct {
	client     *Client
	subAccount string
}

// NewGateway wraps the REST client for order traffic.
func NewGateway(client *Client, subAccount string) *Gateway {
	return &Gateway{client: client, subAccount: subAccount}
}

// Place submits the order and returns the broker-assigned id.
func (g *Gateway) Place(ctx context.Context, token string, o *domain.Order) (string, error) {
	req := sendOrderRequest{
		Symbol:     o.Symbol,
		Direction:  string(o.Side),
		PriceType:  priceType(o.Type),
		Price:      priceField(o.Type, o.PriceMicros),
		Lot:        strconv.FormatInt(o.Quantity, 10),
		SubAccount: g.subAccount,
	}
	return g.client.SendOrder(ctx, token, req)
}

// Modify replaces price or quantity of a working order.
func (g *Gateway) Modify(ctx context.Context, token, externalID string, req domain.ModifyRequest) error {
	m := modifyOrderRequest{
		ID:         externalID,
		SubAccount: g.subAccount,
	}
	if req.PriceMicros > 0 {
		m.Price = req.PriceMicros.Decimal().String()
	}
	if req.Quantity > 0 {
		m.Lot = strconv.FormatInt(req.Quantity, 10)
	}
	return g.client.ModifyOrder(ctx, token, m)
}

// Cancel deletes a working order at the broker.
func (g *Gateway) Cancel(ctx context.Context, token, externalID string) error {
	return g.client.DeleteOrder(ctx, token, deleteOrderRequest{
		ID:         externalID,
		SubAccount: g.subAccount,
	})
}

// priceType maps the order type to the broker's price type field. The
// broker only distinguishes market from priced orders; stop handling is
// client-side.
func priceType(t domain.OrderType) string {
	if t == domain.TypeMarket {
		return "piyasa"
	}
	return "limit"
}

func priceField(t domain.OrderType, p quant.PriceMicros) string {
	if t == domain.TypeMarket || p == 0 {
		return ""
	}
	return p.Decimal().String()
}
