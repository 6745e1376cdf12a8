package devserver_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/client"
	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/devserver"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/order"
)

const accountKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func connect(t *testing.T, opts ...client.Option) (*client.Client, *devserver.Server) {
	t.Helper()
	cfg := params.Default()
	srv, err := devserver.New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())

	cfg.Client.Endpoint = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	cfg.Client.Account = accountKey
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		ts.Close()
		srv.Close()
	})
	return c, srv
}

func decimalOf(t *testing.T, v any) string {
	t.Helper()
	d, ok := v.(decimal.Decimal)
	require.True(t, ok, "expected a decimal, got %T", v)
	return d.String()
}

func TestOrderLifecycle(t *testing.T) {
	c, srv := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NotNil(t, c.Snapshot())
	require.NotNil(t, c.ExchangeConfig())
	assert.Equal(t, srv.ContractAddress(), c.ExchangeConfig().ContractAddress)

	updates := make(chan client.Event, 4)
	_, err := c.On("orderBookUpdate", func(ev client.Event) { updates <- ev })
	require.NoError(t, err)
	_, err = c.Subscribe(ctx, []string{"ENGETH"}, []string{"orderBookUpdate"})
	require.NoError(t, err)

	resp, err := c.PlaceOrder(ctx, order.RawOrder{Market: "ENGETH", Amount: 30, Rate: 0.004})
	require.NoError(t, err)
	require.Equal(t, "orderStatus", resp.Event)
	assert.Equal(t, "ENGETH", resp.Market)
	placed := resp.Parsed.(map[string]any)
	assert.Equal(t, json.Number("1"), placed["id"])
	assert.Equal(t, "open", placed["status"])
	assert.Equal(t, "3000000000", decimalOf(t, placed["buyAmount"]))
	assert.Equal(t, "120000000000000000", decimalOf(t, placed["sellAmount"]))

	select {
	case ev := <-updates:
		assert.Equal(t, "ENGETH", ev.Channel)
		level := ev.Parsed.([]any)[0].(map[string]any)
		assert.Equal(t, true, level["isBid"])
		assert.Equal(t, "0.004", decimalOf(t, level["rate"]))
		assert.Equal(t, "3000000000", decimalOf(t, level["amount"]))
	case <-time.After(2 * time.Second):
		t.Fatal("no book update")
	}

	resp, err = c.Invoke(ctx, "getOrderBookSnapshot", map[string]any{"market": "ENGETH"})
	require.NoError(t, err)
	book := resp.Parsed.(map[string]any)
	assert.Equal(t, "ENGETH", book["market"])
	require.Len(t, book["bids"], 1)
	assert.Empty(t, book["asks"])

	resp, err = c.Invoke(ctx, "getBalances", nil)
	require.NoError(t, err)
	eth := resp.Parsed.(map[string]any)["ETH"].(map[string]any)
	assert.Equal(t, "120000000000000000", decimalOf(t, eth["locked"]))

	resp, err = c.Invoke(ctx, "cancelOrder", map[string]any{"orderId": 1})
	require.NoError(t, err)
	assert.Equal(t, "orderCancelled", resp.Event)
	assert.Equal(t, json.Number("1"), resp.Parsed.(map[string]any)["id"])

	_, err = c.Invoke(ctx, "cancelOrder", map[string]any{"orderId": 1})
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "unknown order")

	resp, err = c.Invoke(ctx, "getOrders", nil)
	require.NoError(t, err)
	orders := resp.Parsed.([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, "cancelled", orders[0].(map[string]any)["status"])
}

func TestSellOrderByTokenPair(t *testing.T) {
	c, _ := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eng, _ := c.Snapshot().Token("ENG")
	eth, _ := c.Snapshot().Token("ETH")
	resp, err := c.PlaceOrder(ctx, order.RawOrder{
		SellToken:  "ENG",
		BuyToken:   "ETH",
		SellAmount: "500000000",
		BuyAmount:  "20000000000000000",
	})
	require.NoError(t, err)
	placed := resp.Parsed.(map[string]any)
	assert.Equal(t, "ENGETH", placed["market"])
	assert.Equal(t, eng.Contract, placed["sellToken"])
	assert.Equal(t, eth.Contract, placed["buyToken"])

	resp, err = c.Invoke(ctx, "getOrderBookSnapshot", map[string]any{"market": "ENGETH"})
	require.NoError(t, err)
	asks := resp.Parsed.(map[string]any)["asks"].([]any)
	require.Len(t, asks, 1)
	assert.Equal(t, "0.004", decimalOf(t, asks[0].(map[string]any)["rate"]))
}

func TestForeignSignatureRejected(t *testing.T) {
	c, srv := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	b := &order.Builder{
		Snapshot:        c.Snapshot(),
		Signer:          other,
		ContractAddress: srv.ContractAddress(),
	}
	canonical, err := b.Build(order.RawOrder{Market: "ENGETH", Amount: -1, Rate: 0.004})
	require.NoError(t, err)

	_, err = c.Invoke(ctx, "placeOrder", canonical.Params())
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "signer")

	// signed by the account but hashed for another settlement contract
	account, err := crypto.FromPrivateKeyHex(accountKey)
	require.NoError(t, err)
	b.Signer, b.ContractAddress = account, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	canonical, err = b.Build(order.RawOrder{Market: "ENGETH", Amount: -1, Rate: 0.004})
	require.NoError(t, err)
	_, err = c.Invoke(ctx, "placeOrder", canonical.Params())
	require.ErrorAs(t, err, &serr)
}

func TestUnknownMarketRejectedLocally(t *testing.T) {
	c, _ := connect(t)
	_, err := c.PlaceOrder(context.Background(), order.RawOrder{Market: "XYZETH", Amount: 1, Rate: 1})
	assert.ErrorIs(t, err, market.ErrUnknownMarket)
}

func TestCloseClearsState(t *testing.T) {
	closed := make(chan client.Event, 1)
	c, _ := connect(t, client.WithListener(client.EventWSClose, func(ev client.Event) { closed <- ev }))

	require.NoError(t, c.Close())
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("wsClose not emitted")
	}
	assert.Nil(t, c.Snapshot())
	_, err := c.Invoke(context.Background(), "getListed", nil)
	assert.Error(t, err)
}
