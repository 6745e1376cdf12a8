package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/order"
)

// PlaceOrder builds, signs and submits an order. Without exchange metadata
// it fetches the listing first, once.
func (c *Client) PlaceOrder(ctx context.Context, raw order.RawOrder) (*Response, error) {
	canonical, err := c.BuildOrder(ctx, raw)
	if err != nil {
		return nil, err
	}
	return c.Invoke(ctx, "placeOrder", canonical.Params())
}

// BuildOrder returns the canonical order PlaceOrder would send.
func (c *Client) BuildOrder(ctx context.Context, raw order.RawOrder) (*order.Canonical, error) {
	snap := c.Snapshot()
	if snap == nil {
		c.logger.Debug("listed_missing_fetching")
		if _, err := c.Invoke(ctx, "getListed", nil); err != nil {
			return nil, err
		}
		if snap = c.Snapshot(); snap == nil {
			return nil, market.ErrNoSnapshot
		}
	}

	b := &order.Builder{
		Snapshot:        snap,
		Signer:          c.orderSigner(),
		ContractAddress: c.contractAddress(),
		DefaultExpiry:   c.cfg.Orders.DefaultExpiry,
		Clock:           c.clock,
	}
	canonical, err := b.Build(raw)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("order_built",
		zap.String("market", canonical.Market),
		zap.String("buy_amount", canonical.BuyAmount),
		zap.String("sell_amount", canonical.SellAmount),
		zap.Bool("signed", canonical.Signature != ""))
	return canonical, nil
}

// orderSigner is the account key, else the delegate key.
func (c *Client) orderSigner() *crypto.Signer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account != nil {
		return c.account
	}
	return c.delegate
}

func (c *Client) contractAddress() string {
	if ec := c.ExchangeConfig(); ec != nil && ec.ContractAddress != "" {
		return ec.ContractAddress
	}
	return c.cfg.Orders.ContractAddress
}
