package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/order"
	"github.com/uhyunpark/dexws/pkg/schema"
	"github.com/uhyunpark/dexws/pkg/transport"
	"github.com/uhyunpark/dexws/pkg/wire"
)

const (
	testKey      = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testContract = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"

	listedJSON = `{"tokens":{"ETH":{"contract":"0x0000000000000000000000000000000000000000","decimals":18},` +
		`"ENG":{"contract":"0xf0ee6b27b759c9893ce4f094b49ad28fd15a23e4","decimals":8}},` +
		`"markets":{"ENGETH":{"traded":"ENG","quote":"ETH"}}}`
)

// fakeTransport hands frames to the test instead of a network.
type fakeTransport struct {
	in   chan []byte
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan []byte, 16),
		out:  make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case <-f.done:
		return transport.ErrClosed
	case f.out <- frame:
		return nil
	}
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case <-f.done:
		return nil, transport.ErrClosed
	case frame := <-f.in:
		return frame, nil
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeTransport) push(t *testing.T, frame string) {
	t.Helper()
	f.in <- []byte(frame)
}

// next returns the next request the client sent.
func (f *fakeTransport) next(t *testing.T) wire.Request {
	t.Helper()
	select {
	case frame := <-f.out:
		reqs, err := wire.DecodeRequests(frame)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		return reqs[0]
	case <-time.After(2 * time.Second):
		t.Fatal("client sent nothing")
		return nil
	}
}

func noAuthConfig() params.Config {
	cfg := params.Default()
	cfg.Client.NoAutoAuth = true
	return cfg
}

func newTestClient(t *testing.T, cfg params.Config, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c, err := New(context.Background(), ft, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, ft
}

func TestInvoke_CorrelatesByRequestID(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())
	ctx := context.Background()

	type answer struct {
		resp *Response
		err  error
	}
	first, second := make(chan answer, 1), make(chan answer, 1)
	go func() {
		r, err := c.Invoke(ctx, "getOrderBookSnapshot", map[string]any{"market": "ENGETH"})
		first <- answer{r, err}
	}()
	req1 := ft.next(t)
	go func() {
		r, err := c.Invoke(ctx, "getListed", nil)
		second <- answer{r, err}
	}()
	req2 := ft.next(t)

	assert.Equal(t, uint64(1), req1.RequestID())
	assert.Equal(t, uint64(2), req2.RequestID())
	assert.Equal(t, "getOrderBookSnapshot", req1.Method())

	// answer out of order
	ft.push(t, fmt.Sprintf(`[[0,2,%s,%d]]`, listedJSON, req2.RequestID()))
	ft.push(t, fmt.Sprintf(`[["ENGETH",4,{"bids":[["0.003","100000000",2]],"asks":[]},%d]]`, req1.RequestID()))

	a2 := <-second
	require.NoError(t, a2.err)
	assert.Equal(t, "listed", a2.resp.Event)

	a1 := <-first
	require.NoError(t, a1.err)
	assert.Equal(t, "orderBookSnapshot", a1.resp.Event)
	assert.Equal(t, "ENGETH", a1.resp.Market)
	book := a1.resp.Parsed.(map[string]any)
	assert.Equal(t, "ENGETH", book["market"])
	level := book["bids"].([]any)[0].(map[string]any)
	assert.Equal(t, "0.003", level["rate"].(interface{ String() string }).String())

	require.NotNil(t, c.Snapshot())
}

func TestInvoke_ValidatesBeforeSending(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())

	_, err := c.Invoke(context.Background(), "getOrderBookSnapshot", map[string]any{})
	assert.ErrorIs(t, err, schema.ErrMissingParameter)

	_, err = c.Invoke(context.Background(), "noSuchMethod", nil)
	assert.ErrorIs(t, err, schema.ErrUnknownMethod)

	select {
	case frame := <-ft.out:
		t.Fatalf("invalid call was sent: %s", frame)
	default:
	}
}

func TestInvoke_ServerAndDecodeErrors(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Invoke(ctx, "cancelOrder", map[string]any{"orderId": 9})
		errCh <- err
	}()
	req := ft.next(t)
	ft.push(t, fmt.Sprintf(`[[0,0,"unknown order: 9",%d]]`, req.RequestID()))

	err := <-errCh
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "unknown order: 9", serr.Message)

	go func() {
		_, err := c.Invoke(ctx, "getListed", nil)
		errCh <- err
	}()
	req = ft.next(t)
	ft.push(t, fmt.Sprintf(`[[0,2,{"tokens":{"ETH":{}},"markets":{}},%d]]`, req.RequestID()))
	assert.ErrorIs(t, <-errCh, schema.ErrInvalidFormat)
}

func TestInvoke_ContextAndClose(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, "getListed", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	ft.next(t)

	closed := make(chan Event, 1)
	_, err = c.On(EventWSClose, func(ev Event) { closed <- ev })
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Invoke(context.Background(), "getListed", nil)
		errCh <- err
	}()
	ft.next(t)
	require.NoError(t, c.Close())

	assert.ErrorIs(t, <-errCh, ErrClosed)
	<-c.Done()
	assert.ErrorIs(t, c.Err(), ErrClosed)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("wsClose not emitted")
	}
}

func TestInvokeBatch_SharesRequestID(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())

	done := make(chan *Response, 1)
	go func() {
		r, err := c.InvokeBatch(context.Background(),
			Call{Method: "subscribe", Params: map[string]any{"markets": []string{"ENGETH"}, "events": []string{"trades"}}},
			Call{Method: "getOrderBookSnapshot", Params: map[string]any{"market": "ENGETH"}},
		)
		assert.NoError(t, err)
		done <- r
	}()

	frame := <-ft.out
	reqs, err := wire.DecodeRequests(frame)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].RequestID(), reqs[1].RequestID())

	ft.push(t, fmt.Sprintf(`[[0,9,{"markets":["ENGETH"],"events":["trades"]},%d]]`, reqs[0].RequestID()))
	assert.Equal(t, "subscribed", (<-done).Event)
}

func TestListeners(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	record := func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.Name)
		mu.Unlock()
	}

	c, ft := newTestClient(t, noAuthConfig(),
		WithListener(EventWSOpen, record),
		WithListener("config", record),
	)

	_, err := c.On("notAnEvent", record)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	trades := make(chan Event, 2)
	id, err := c.On("trades", func(ev Event) { trades <- ev })
	require.NoError(t, err)
	packets := make(chan Event, 4)
	_, err = c.On(EventPacket, func(ev Event) { packets <- ev })
	require.NoError(t, err)

	ft.push(t, `[[0,1,{"contractAddress":"`+testContract+`","chainId":42}],["ENGETH",6,[[1,"ENGETH","0.003","100000000","buy",1556762725000]]]]`)

	ev := <-trades
	assert.Equal(t, "ENGETH", ev.Channel)
	trade := ev.Parsed.([]any)[0].(map[string]any)
	assert.Equal(t, "buy", trade["direction"])
	assert.Equal(t, "config", (<-packets).Name)
	assert.Equal(t, "trades", (<-packets).Name)

	require.Eventually(t, func() bool { return c.ExchangeConfig() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(42), c.ChainID())
	assert.Equal(t, testContract, c.ExchangeConfig().ContractAddress)

	require.NoError(t, c.Off("trades", id))
	ft.push(t, `[["ENGETH",6,[]]]`)
	assert.Equal(t, "trades", (<-packets).Name)
	select {
	case <-trades:
		t.Fatal("removed listener was called")
	default:
	}

	mu.Lock()
	assert.Equal(t, []string{EventWSOpen, "config"}, seen)
	mu.Unlock()
}

func TestPlaceOrder_FetchesListingOnce(t *testing.T) {
	cfg := noAuthConfig()
	cfg.Client.Account = testKey
	cfg.Orders.ContractAddress = testContract
	c, ft := newTestClient(t, cfg)

	done := make(chan error, 1)
	var resp *Response
	go func() {
		var err error
		resp, err = c.PlaceOrder(context.Background(), order.RawOrder{Market: "ENGETH", Amount: 30, Rate: 0.004})
		done <- err
	}()

	listReq := ft.next(t)
	require.Equal(t, "getListed", listReq.Method())
	ft.push(t, fmt.Sprintf(`[[0,2,%s,%d]]`, listedJSON, listReq.RequestID()))

	placeReq := ft.next(t)
	require.Equal(t, "placeOrder", placeReq.Method())
	p := placeReq.Params()
	assert.Equal(t, "ENGETH", p["market"])
	assert.Equal(t, "3000000000", p["buyAmount"])
	assert.Equal(t, "120000000000000000", p["sellAmount"])
	assert.Equal(t, order.SignatureFormat, p["signatureFormat"])
	assert.Equal(t, json.Number(fmt.Sprint(params.DefaultExpiry)), p["expiry"])
	for _, transient := range []string{"amount", "rate", "direction", "side", "contractAddress", "hash"} {
		assert.NotContains(t, p, transient)
	}

	// the signature covers the settlement hash under the configured contract
	nonce, err := p["nonce"].(json.Number).Int64()
	require.NoError(t, err)
	canonical := &order.Canonical{
		SellToken:  p["sellToken"].(string),
		SellAmount: p["sellAmount"].(string),
		BuyToken:   p["buyToken"].(string),
		BuyAmount:  p["buyAmount"].(string),
		Expiry:     params.DefaultExpiry,
		Nonce:      uint64(nonce),
	}
	hash, err := order.Hash(canonical, testContract)
	require.NoError(t, err)
	sig, err := crypto.DecodeSignature(p["signature"].(string))
	require.NoError(t, err)
	signer, err := crypto.RecoverPersonal(hash.Bytes(), sig)
	require.NoError(t, err)
	want, _ := crypto.FromPrivateKeyHex(testKey)
	assert.Equal(t, want.Address(), signer)

	ft.push(t, fmt.Sprintf(`[["ENGETH",7,[1,null,"ENGETH","0xf0ee6b27b759c9893ce4f094b49ad28fd15a23e4","0x0000000000000000000000000000000000000000","3000000000","120000000000000000","0","open",1556762725000],%d]]`, placeReq.RequestID()))
	require.NoError(t, <-done)
	assert.Equal(t, "orderStatus", resp.Event)
}

func TestPlaceOrder_ListingUnavailable(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())

	done := make(chan error, 1)
	go func() {
		_, err := c.PlaceOrder(context.Background(), order.RawOrder{Market: "ENGETH", Amount: 1, Rate: 1})
		done <- err
	}()
	req := ft.next(t)
	ft.push(t, fmt.Sprintf(`[[0,0,"maintenance",%d]]`, req.RequestID()))

	err := <-done
	var serr *ServerError
	assert.True(t, errors.As(err, &serr))
}

func TestPlaceOrder_ResolutionErrors(t *testing.T) {
	c, ft := newTestClient(t, noAuthConfig())
	ft.push(t, `[[0,2,`+listedJSON+`]]`)
	require.Eventually(t, func() bool { return c.Snapshot() != nil }, time.Second, 5*time.Millisecond)

	_, err := c.PlaceOrder(context.Background(), order.RawOrder{Market: "FOOBAR", Amount: 1, Rate: 1})
	assert.ErrorIs(t, err, market.ErrUnknownMarket)

	_, err = c.PlaceOrder(context.Background(), order.RawOrder{BuyToken: "FOO", SellToken: "ETH", Amount: 1, Rate: 1})
	assert.ErrorIs(t, err, market.ErrUnknownToken)

	_, err = c.PlaceOrder(context.Background(), order.RawOrder{Market: "ENGETH", Amount: -1, Direction: market.Buy, Rate: 1})
	assert.ErrorIs(t, err, order.ErrNegativeBuyAmount)
}

func TestNew_RejectsBadKeys(t *testing.T) {
	cfg := noAuthConfig()
	cfg.Client.Account = "0xzz"
	_, err := New(context.Background(), newFakeTransport(), cfg)
	assert.Error(t, err)

	_, err = New(context.Background(), newFakeTransport(), noAuthConfig(), WithListener("nope", func(Event) {}))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
