// Package client speaks the exchange protocol over a transport: it validates
// and tags outbound calls, correlates responses by request id, decodes
// server packets and dispatches them to listeners.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/schema"
	"github.com/uhyunpark/dexws/pkg/transport"
	"github.com/uhyunpark/dexws/pkg/util"
	"github.com/uhyunpark/dexws/pkg/wire"
)

type result struct {
	resp *Response
	err  error
}

// Client is one connection to the exchange. The exchange metadata it caches
// lives as long as the connection.
type Client struct {
	cfg       params.Config
	registry  *schema.Registry
	decoder   *schema.Decoder
	transport transport.Transport
	logger    *zap.Logger
	clock     util.Clock

	mu        sync.Mutex
	rid       uint64
	pending   map[uint64]chan result
	listeners map[string][]registered
	nextID    ListenerID
	account   *crypto.Signer
	delegate  *crypto.Signer
	snapshot  *market.Snapshot
	exchange  *ExchangeConfig

	done    chan struct{}
	doneErr error
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithRegistry(r *schema.Registry) Option {
	return func(c *Client) { c.registry = r }
}

func WithClock(clock util.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithListener registers a listener before the connection starts, so it
// also sees wsOpen and the packets pushed on connect.
func WithListener(event string, l Listener) Option {
	return func(c *Client) {
		c.nextID++
		c.listeners[event] = append(c.listeners[event], registered{id: c.nextID, fn: l})
	}
}

// Dial connects to cfg.Client.Endpoint and starts the client.
func Dial(ctx context.Context, cfg params.Config, opts ...Option) (*Client, error) {
	probe := &Client{logger: zap.NewNop(), listeners: map[string][]registered{}}
	for _, opt := range opts {
		opt(probe)
	}
	t, err := transport.Dial(ctx, cfg.Client.Endpoint, transport.WithLogger(probe.logger))
	if err != nil {
		return nil, err
	}
	c, err := New(ctx, t, cfg, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

// New starts a client over an open transport. With an account or delegate
// key configured and auto-auth enabled, it authenticates before returning.
func New(ctx context.Context, t transport.Transport, cfg params.Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		transport: t,
		logger:    zap.NewNop(),
		clock:     util.RealClock{},
		pending:   make(map[uint64]chan result),
		listeners: make(map[string][]registered),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		reg, err := schema.Default()
		if err != nil {
			return nil, err
		}
		c.registry = reg
	}
	for event := range c.listeners {
		if !c.knownEvent(event) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
		}
	}
	c.decoder = schema.NewDecoder(c.registry.Structs(), cfg.Schema.MaxDepth)

	var err error
	if cfg.Client.Account != "" {
		if c.account, err = crypto.FromPrivateKeyHex(cfg.Client.Account); err != nil {
			return nil, fmt.Errorf("account key: %w", err)
		}
	}
	if cfg.Client.Delegate != "" {
		if c.delegate, err = crypto.FromPrivateKeyHex(cfg.Client.Delegate); err != nil {
			return nil, fmt.Errorf("delegate key: %w", err)
		}
	}

	go c.readLoop()

	if !cfg.Client.NoAutoAuth {
		switch {
		case c.account != nil:
			_, err = c.authenticate(ctx, "authenticate", c.account)
		case c.delegate != nil:
			_, err = c.authenticate(ctx, "authenticateDelegate", c.delegate)
		}
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("auto authentication: %w", err)
		}
	}
	c.emit(EventWSOpen, Event{Name: EventWSOpen})
	return c, nil
}

// On registers l for an event name or one of the pseudo events.
func (c *Client) On(event string, l Listener) (ListenerID, error) {
	if !c.knownEvent(event) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners[event] = append(c.listeners[event], registered{id: c.nextID, fn: l})
	return c.nextID, nil
}

// Off removes a listener registered with On.
func (c *Client) Off(event string, id ListenerID) error {
	if !c.knownEvent(event) {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.listeners[event]
	for i, r := range list {
		if r.id == id {
			c.listeners[event] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *Client) knownEvent(event string) bool {
	for _, p := range pseudoEvents {
		if p == event {
			return true
		}
	}
	_, ok := c.registry.Event(event)
	return ok
}

func (c *Client) emit(event string, ev Event) {
	c.mu.Lock()
	list := append([]registered(nil), c.listeners[event]...)
	c.mu.Unlock()
	for _, r := range list {
		r.fn(ev)
	}
}

// Invoke validates params against the method schema, sends the call and
// waits for the packet answering it.
func (c *Client) Invoke(ctx context.Context, method string, params map[string]any) (*Response, error) {
	return c.InvokeBatch(ctx, Call{Method: method, Params: params})
}

// InvokeBatch sends several calls in one frame under a shared request id and
// returns the first packet answering it.
func (c *Client) InvokeBatch(ctx context.Context, calls ...Call) (*Response, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	for _, call := range calls {
		if err := c.registry.Validate(call.Method, call.Params); err != nil {
			return nil, err
		}
	}

	ch := make(chan result, 1)
	c.mu.Lock()
	c.rid++
	rid := c.rid
	c.pending[rid] = ch
	c.mu.Unlock()

	reqs := make([]wire.Request, len(calls))
	for i, call := range calls {
		reqs[i] = wire.NewRequest(call.Method, call.Params, rid)
	}
	if err := c.send(ctx, reqs...); err != nil {
		c.forget(rid)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		c.forget(rid)
		return nil, ctx.Err()
	case <-c.done:
		c.forget(rid)
		return nil, c.closedErr()
	}
}

func (c *Client) send(ctx context.Context, reqs ...wire.Request) error {
	frame, err := wire.EncodeRequests(reqs...)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		return err
	}
	c.logger.Debug("ws_send", zap.ByteString("frame", frame))
	c.emit(EventWSSend, Event{Name: EventWSSend, Frame: frame})
	return nil
}

func (c *Client) forget(rid uint64) {
	c.mu.Lock()
	delete(c.pending, rid)
	c.mu.Unlock()
}

// Authenticate signs the current millisecond timestamp with the account key
// and makes it the order signing key.
func (c *Client) Authenticate(ctx context.Context, privateKey string) (*Response, error) {
	signer, err := crypto.FromPrivateKeyHex(privateKey)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.account = signer
	c.mu.Unlock()
	return c.authenticate(ctx, "authenticate", signer)
}

// AuthenticateDelegate is Authenticate for a delegate key.
func (c *Client) AuthenticateDelegate(ctx context.Context, privateKey string) (*Response, error) {
	signer, err := crypto.FromPrivateKeyHex(privateKey)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.delegate = signer
	c.mu.Unlock()
	return c.authenticate(ctx, "authenticateDelegate", signer)
}

func (c *Client) authenticate(ctx context.Context, method string, signer *crypto.Signer) (*Response, error) {
	nonce := util.NowMillis(c.clock)
	message := strconv.FormatUint(nonce, 10)
	sig, err := signer.SignPersonalHex([]byte(message))
	if err != nil {
		return nil, err
	}
	return c.Invoke(ctx, method, map[string]any{
		"message":   message,
		"nonce":     nonce,
		"signature": sig,
	})
}

// Subscribe asks for market data events. Empty markets means all markets.
func (c *Client) Subscribe(ctx context.Context, markets, events []string) (*Response, error) {
	p := map[string]any{"events": events}
	if len(markets) > 0 {
		p["markets"] = markets
	}
	return c.Invoke(ctx, "subscribe", p)
}

// Snapshot returns the cached exchange metadata, or nil before the first
// listed packet.
func (c *Client) Snapshot() *market.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// ExchangeConfig returns the cached config packet, or nil before it arrived.
func (c *Client) ExchangeConfig() *ExchangeConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exchange == nil {
		return nil
	}
	cp := *c.exchange
	return &cp
}

// ChainID is the chain the exchange reported, else the configured one.
func (c *Client) ChainID() uint64 {
	if ec := c.ExchangeConfig(); ec != nil && ec.ChainID != 0 {
		return ec.ChainID
	}
	return c.cfg.Client.ResolvedChainID()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, once Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.closedErr()
	default:
		return nil
	}
}

// Close ends the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doneErr != nil {
		return c.doneErr
	}
	return ErrClosed
}

func (c *Client) readLoop() {
	var loopErr error
	for {
		frame, err := c.transport.Receive()
		if err != nil {
			loopErr = err
			break
		}
		c.handleFrame(frame)
	}

	if !transport.IsClosed(loopErr) {
		c.logger.Warn("ws_read_failed", zap.Error(loopErr))
		c.emit(EventWSError, Event{Name: EventWSError, Err: loopErr})
	}

	c.mu.Lock()
	if !transport.IsClosed(loopErr) {
		c.doneErr = fmt.Errorf("%w: %v", ErrClosed, loopErr)
	}
	pending := c.pending
	c.pending = make(map[uint64]chan result)
	c.snapshot = nil
	c.exchange = nil
	c.mu.Unlock()

	close(c.done)
	for _, ch := range pending {
		ch <- result{err: c.closedErr()}
	}
	c.emit(EventWSClose, Event{Name: EventWSClose, Err: loopErr})
}

func (c *Client) handleFrame(frame []byte) {
	c.emit(EventWSMessage, Event{Name: EventWSMessage, Frame: frame})

	packets, err := wire.DecodeFrame(frame)
	if err != nil {
		c.logger.Warn("frame_decode_failed", zap.Error(err))
		c.emit(EventWSError, Event{Name: EventWSError, Err: err, Frame: frame})
		return
	}
	for _, p := range packets {
		c.handlePacket(p)
	}
}

func (c *Client) handlePacket(p wire.Packet) {
	name, ok := c.registry.EventName(p.EventID)
	if !ok {
		err := fmt.Errorf("%w: id %d", ErrUnknownEvent, p.EventID)
		c.logger.Warn("packet_unknown_event", zap.Int("event_id", p.EventID))
		c.emit(EventWSError, Event{Name: EventWSError, Err: err})
		c.resolve(p.RequestID, result{err: err})
		return
	}
	ev, _ := c.registry.Event(name)

	parsed, err := c.decoder.Decode(ev.Node, p.Message)
	if err != nil {
		err = fmt.Errorf("decode %s: %w", name, err)
		c.logger.Warn("packet_decode_failed", zap.String("event", name), zap.Error(err))
		c.emit(EventWSError, Event{Name: EventWSError, Err: err})
		c.resolve(p.RequestID, result{err: err})
		return
	}

	switch name {
	case "config":
		c.cacheConfig(parsed)
	case "listed":
		c.cacheListed(parsed)
	}

	event := Event{
		Name:      name,
		Channel:   p.Channel,
		Message:   p.Message,
		Parsed:    parsed,
		RequestID: p.RequestID,
	}
	c.emit(name, event)

	if p.RequestID != 0 {
		if name == "error" {
			msg, _ := parsed.(string)
			c.resolve(p.RequestID, result{err: &ServerError{Channel: p.Channel, Message: msg}})
		} else {
			resp := &Response{Event: name, Channel: p.Channel, Message: p.Message, Parsed: parsed}
			if m, ok := p.Market(); ok {
				resp.Market = m
				if obj, isObj := parsed.(map[string]any); isObj {
					if _, taken := obj["market"]; !taken {
						obj["market"] = m
					}
				}
			}
			c.resolve(p.RequestID, result{resp: resp})
		}
	}

	c.emit(EventPacket, event)
}

func (c *Client) resolve(rid uint64, r result) {
	if rid == 0 {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[rid]
	delete(c.pending, rid)
	c.mu.Unlock()
	if ok {
		ch <- r
	}
}

func (c *Client) cacheConfig(parsed any) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return
	}
	ec := &ExchangeConfig{}
	ec.ContractAddress, _ = obj["contractAddress"].(string)
	ec.FeeCollector, _ = obj["feeCollector"].(string)
	if n, ok := obj["chainId"].(json.Number); ok {
		ec.ChainID, _ = strconv.ParseUint(n.String(), 10, 64)
	}

	c.mu.Lock()
	c.exchange = ec
	c.mu.Unlock()
	c.logger.Info("exchange_config", zap.String("contract", ec.ContractAddress), zap.Uint64("chain_id", ec.ChainID))
}

func (c *Client) cacheListed(parsed any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot != nil {
		return
	}
	snap, err := market.FromListed(parsed)
	if err != nil {
		c.logger.Warn("listed_invalid", zap.Error(err))
		return
	}
	c.snapshot = snap
	c.logger.Info("exchange_listed", zap.Int("markets", len(snap.Markets())))
}
