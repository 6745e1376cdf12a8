package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/order"
	"github.com/uhyunpark/dexws/pkg/util"
	"github.com/uhyunpark/dexws/pkg/wire"
)

var (
	errNotAuthenticated = errors.New("not authenticated")
	errUnknownOrder     = errors.New("unknown order")
	errSignerMismatch   = errors.New("order signer does not match the authenticated account")
)

type handlerFunc func(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error)

func (srv *Server) handler(method string) (handlerFunc, bool) {
	switch method {
	case "getListed":
		return srv.getListed, true
	case "authenticate", "authenticateDelegate":
		return func(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
			return srv.authenticate(sess, p, rid, method == "authenticateDelegate")
		}, true
	case "deauthenticate":
		return srv.deauthenticate, true
	case "subscribe", "unsubscribe":
		return func(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
			return srv.subscribe(sess, p, rid, method == "subscribe")
		}, true
	case "getOrderBookSnapshot":
		return srv.getOrderBookSnapshot, true
	case "placeOrder":
		return srv.placeOrder, true
	case "cancelOrder":
		return srv.cancelOrder, true
	case "cancelAllOrders":
		return srv.cancelAllOrders, true
	case "getOrders":
		return srv.getOrders, true
	case "getBalances":
		return srv.getBalances, true
	}
	return nil, false
}

// packet encodes value as the named event.
func (srv *Server) packet(event, channel string, value any, rid uint64) (wire.Packet, error) {
	ev, ok := srv.registry.Event(event)
	if !ok {
		return wire.Packet{}, fmt.Errorf("no schema for event %s", event)
	}
	msg, err := srv.encoder.Encode(ev.Node, value)
	if err != nil {
		return wire.Packet{}, fmt.Errorf("encode %s: %w", event, err)
	}
	if channel == "" {
		channel = wire.NoChannel
	}
	return wire.Packet{Channel: channel, EventID: ev.ID, Message: msg, RequestID: rid}, nil
}

func (srv *Server) reply(event, channel string, value any, rid uint64) ([]wire.Packet, error) {
	p, err := srv.packet(event, channel, value, rid)
	if err != nil {
		return nil, err
	}
	return []wire.Packet{p}, nil
}

func (srv *Server) errorPacket(err error, rid uint64) wire.Packet {
	return wire.Packet{Channel: wire.NoChannel, EventID: srv.errorEventID(), Message: err.Error(), RequestID: rid}
}

func (srv *Server) errorEventID() int {
	ev, _ := srv.registry.Event("error")
	return ev.ID
}

// welcome is pushed to every new session.
func (srv *Server) welcome() ([]wire.Packet, error) {
	config, err := srv.packet("config", "", map[string]any{
		"contractAddress": srv.contract,
		"chainId":         srv.chainID,
	}, 0)
	if err != nil {
		return nil, err
	}
	listed, err := srv.packet("listed", "", srv.listing.wireValue(), 0)
	if err != nil {
		return nil, err
	}
	return []wire.Packet{config, listed}, nil
}

func (srv *Server) handleFrame(sess *Session, frame []byte) {
	reqs, err := wire.DecodeRequests(frame)
	if err != nil {
		sess.queue(srv.errorPacket(err, 0))
		return
	}
	for _, req := range reqs {
		sess.queue(srv.handleRequest(sess, req)...)
	}
}

func (srv *Server) handleRequest(sess *Session, req wire.Request) []wire.Packet {
	method, rid, p := req.Method(), req.RequestID(), req.Params()

	if err := srv.registry.Validate(method, p); err != nil {
		srv.logger.Debug("request_rejected", zap.String("session", sess.id), zap.String("method", method), zap.Error(err))
		return []wire.Packet{srv.errorPacket(err, rid)}
	}
	h, ok := srv.handler(method)
	if !ok {
		return []wire.Packet{srv.errorPacket(fmt.Errorf("method %s is not supported", method), rid)}
	}

	packets, err := h(sess, p, rid)
	if err != nil {
		srv.logger.Debug("request_failed", zap.String("session", sess.id), zap.String("method", method), zap.Error(err))
		return []wire.Packet{srv.errorPacket(err, rid)}
	}
	return packets
}

func (srv *Server) getListed(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	return srv.reply("listed", "", srv.listing.wireValue(), rid)
}

func (srv *Server) authenticate(sess *Session, p map[string]any, rid uint64, delegate bool) ([]wire.Packet, error) {
	message, _ := p["message"].(string)
	if nonce := fmt.Sprint(p["nonce"]); nonce != message {
		return nil, fmt.Errorf("message %q does not match nonce %s", message, nonce)
	}
	sig, err := crypto.DecodeSignature(p["signature"].(string))
	if err != nil {
		return nil, err
	}
	addr, err := crypto.RecoverPersonal([]byte(message), sig)
	if err != nil {
		return nil, err
	}
	sess.setAccount(addr)
	srv.logger.Info("session_authenticated", zap.String("session", sess.id), zap.String("account", addr.Hex()), zap.Bool("delegate", delegate))

	auth := map[string]any{"account": addr.Hex()}
	if delegate {
		auth["delegate"] = addr.Hex()
	}
	return srv.reply("auth", "", auth, rid)
}

func (srv *Server) deauthenticate(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	sess.clearAccount()
	return srv.reply("deauthenticated", "", true, rid)
}

func (srv *Server) subscribe(sess *Session, p map[string]any, rid uint64, on bool) ([]wire.Packet, error) {
	markets := stringList(p["markets"])
	events := stringList(p["events"])
	for _, m := range markets {
		if _, ok := srv.snapshot.Market(m); !ok {
			return nil, &market.ResolutionError{Err: market.ErrUnknownMarket, Name: m}
		}
	}

	event := "subscribed"
	if on {
		sess.Subscribe(markets, events)
	} else {
		sess.Unsubscribe(markets, events)
		event = "unsubscribed"
	}
	ack := map[string]any{"events": p["events"]}
	if p["markets"] != nil {
		ack["markets"] = p["markets"]
	}
	return srv.reply(event, "", ack, rid)
}

func (srv *Server) getOrderBookSnapshot(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	key, _ := p["market"].(string)
	if _, ok := srv.snapshot.Market(key); !ok {
		return nil, &market.ResolutionError{Err: market.ErrUnknownMarket, Name: key}
	}
	return srv.reply("orderBookSnapshot", key, srv.bookSnapshot(key), rid)
}

// placeOrder recomputes the settlement hash and checks that the
// authenticated account signed it.
func (srv *Server) placeOrder(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	owner, ok := sess.Account()
	if !ok {
		return nil, errNotAuthenticated
	}

	c := &order.Canonical{
		SellToken:  fmt.Sprint(p["sellToken"]),
		SellAmount: fmt.Sprint(p["sellAmount"]),
		BuyToken:   fmt.Sprint(p["buyToken"]),
		BuyAmount:  fmt.Sprint(p["buyAmount"]),
	}
	c.Market, _ = p["market"].(string)
	c.Signature, _ = p["signature"].(string)
	if c.Signature == "" {
		return nil, errors.New("missing signature")
	}
	var err error
	if c.Expiry, err = uintParam[uint32](p["expiry"]); err != nil {
		return nil, fmt.Errorf("expiry: %w", err)
	}
	if c.Nonce, err = uintParam[uint64](p["nonce"]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	res, err := market.Resolve(srv.snapshot, market.Query{Market: c.Market, BuyToken: c.BuyToken, SellToken: c.SellToken})
	if err != nil {
		return nil, err
	}
	direction, err := srv.direction(res, c)
	if err != nil {
		return nil, err
	}

	hash, err := order.Hash(c, srv.contract)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.DecodeSignature(c.Signature)
	if err != nil {
		return nil, err
	}
	signer, err := crypto.RecoverPersonal(hash.Bytes(), sig)
	if err != nil {
		return nil, err
	}
	if signer != owner {
		return nil, errSignerMismatch
	}

	srv.mu.Lock()
	srv.nextOrderID++
	rec := &orderRecord{
		id:        srv.nextOrderID,
		owner:     owner,
		market:    res.Market,
		direction: direction,
		order:     c,
		status:    statusOpen,
		timestamp: util.NowMillis(srv.clock),
	}
	srv.orders[rec.id] = rec
	srv.mu.Unlock()

	srv.logger.Info("order_placed",
		zap.Uint64("id", rec.id),
		zap.String("market", res.Market.Symbol),
		zap.String("direction", string(direction)),
		zap.String("hash", hash.Hex()))
	srv.broadcastBook(rec, false)
	return srv.reply("orderStatus", res.Market.Symbol, rec.wireValue(), rid)
}

// direction reads the side of a signed order from its token pair.
func (srv *Server) direction(res market.Resolution, c *order.Canonical) (market.Direction, error) {
	if res.Direction != "" {
		return res.Direction, nil
	}
	traded, err := srv.snapshot.Traded(res.Market)
	if err != nil {
		return "", err
	}
	quote, err := srv.snapshot.Quote(res.Market)
	if err != nil {
		return "", err
	}
	switch {
	case strings.EqualFold(c.BuyToken, traded.Contract) && strings.EqualFold(c.SellToken, quote.Contract):
		return market.Buy, nil
	case strings.EqualFold(c.BuyToken, quote.Contract) && strings.EqualFold(c.SellToken, traded.Contract):
		return market.Sell, nil
	}
	return "", fmt.Errorf("tokens do not belong to market %s", res.Market.Symbol)
}

func (srv *Server) cancelOrder(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	owner, ok := sess.Account()
	if !ok {
		return nil, errNotAuthenticated
	}
	id, err := uintParam[uint64](p["orderId"])
	if err != nil {
		return nil, fmt.Errorf("orderId: %w", err)
	}

	srv.mu.Lock()
	rec, ok := srv.orders[id]
	if !ok || rec.owner != owner || rec.status != statusOpen {
		srv.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", errUnknownOrder, id)
	}
	rec.status = statusCancelled
	srv.mu.Unlock()

	srv.broadcastBook(rec, true)
	return srv.reply("orderCancelled", rec.market.Symbol, map[string]any{"id": id}, rid)
}

func (srv *Server) cancelAllOrders(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	owner, ok := sess.Account()
	if !ok {
		return nil, errNotAuthenticated
	}

	var cancelled []any
	for _, rec := range srv.ordersOf(owner) {
		srv.mu.Lock()
		open := rec.status == statusOpen
		rec.status = statusCancelled
		srv.mu.Unlock()
		if open {
			srv.broadcastBook(rec, true)
			cancelled = append(cancelled, rec.wireValue())
		}
	}
	if cancelled == nil {
		cancelled = []any{}
	}
	return srv.reply("orders", "", cancelled, rid)
}

func (srv *Server) getOrders(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	owner, ok := sess.Account()
	if !ok {
		return nil, errNotAuthenticated
	}
	list := []any{}
	for _, rec := range srv.ordersOf(owner) {
		list = append(list, rec.wireValue())
	}
	return srv.reply("orders", "", list, rid)
}

func (srv *Server) getBalances(sess *Session, p map[string]any, rid uint64) ([]wire.Packet, error) {
	owner, ok := sess.Account()
	if !ok {
		return nil, errNotAuthenticated
	}
	return srv.reply("balances", "", srv.balances(owner), rid)
}

// broadcastBook sends the order's book change to subscribers of its market.
func (srv *Server) broadcastBook(rec *orderRecord, removed bool) {
	p, err := srv.packet("orderBookUpdate", rec.market.Symbol, []any{rec.bookUpdate(srv.snapshot, removed)}, 0)
	if err != nil {
		srv.logger.Error("book_update_encode_failed", zap.Error(err))
		return
	}
	frame, err := wire.EncodeFrame(p)
	if err != nil {
		srv.logger.Error("frame_encode_failed", zap.Error(err))
		return
	}
	srv.hub.Broadcast(rec.market.Symbol, "orderBookUpdate", frame)
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// uintParam reads an optional unsigned request parameter; absent is zero.
func uintParam[T uint32 | uint64](v any) (T, error) {
	if v == nil {
		return 0, nil
	}
	var n json.Number
	switch x := v.(type) {
	case json.Number:
		n = x
	case string:
		n = json.Number(x)
	default:
		n = json.Number(fmt.Sprint(x))
	}
	u, err := n.Int64()
	if err != nil || u < 0 {
		return 0, fmt.Errorf("%v is not an unsigned integer", v)
	}
	out := T(u)
	if int64(out) != u {
		return 0, fmt.Errorf("%v overflows", v)
	}
	return out, nil
}
