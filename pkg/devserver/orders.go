package devserver

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/order"
)

const (
	statusOpen      = "open"
	statusCancelled = "cancelled"
)

type orderRecord struct {
	id        uint64
	owner     common.Address
	market    *market.Market
	direction market.Direction
	order     *order.Canonical
	status    string
	timestamp uint64
}

// wireValue is the order struct payload before encoding.
func (o *orderRecord) wireValue() map[string]any {
	return map[string]any{
		"id":         o.id,
		"market":     o.market.Symbol,
		"buyToken":   o.order.BuyToken,
		"sellToken":  o.order.SellToken,
		"buyAmount":  o.order.BuyAmount,
		"sellAmount": o.order.SellAmount,
		"filled":     "0",
		"status":     o.status,
		"timestamp":  o.timestamp,
	}
}

// tradedAndQuote splits the order amounts by the market's tokens.
func (o *orderRecord) tradedAndQuote() (traded, quote decimal.Decimal) {
	buy, _ := decimal.NewFromString(o.order.BuyAmount)
	sell, _ := decimal.NewFromString(o.order.SellAmount)
	if o.direction == market.Buy {
		return buy, sell
	}
	return sell, buy
}

// level is the order's book entry: the rate in whole quote tokens per whole
// traded token and the traded amount in base units.
func (o *orderRecord) level(s *market.Snapshot) (rate, amount decimal.Decimal) {
	traded, quote := o.tradedAndQuote()
	tt, err := s.Traded(o.market)
	if err != nil {
		return decimal.Zero, traded
	}
	qt, err := s.Quote(o.market)
	if err != nil || traded.IsZero() {
		return decimal.Zero, traded
	}
	return quote.Shift(-qt.Decimals).Div(traded.Shift(-tt.Decimals)), traded
}

func (o *orderRecord) bookUpdate(s *market.Snapshot, removed bool) map[string]any {
	rate, amount := o.level(s)
	if removed {
		amount = decimal.Zero
	}
	return map[string]any{
		"isBid":  o.direction == market.Buy,
		"rate":   rate.String(),
		"amount": amount.String(),
	}
}

// bookSnapshot lists open orders of a market, one level per order, bids
// best first and asks best first.
func (srv *Server) bookSnapshot(marketKey string) map[string]any {
	srv.mu.Lock()
	var open []*orderRecord
	for _, o := range srv.orders {
		if o.status == statusOpen && o.market.Symbol == marketKey {
			open = append(open, o)
		}
	}
	srv.mu.Unlock()

	type entry struct {
		rate, amount decimal.Decimal
	}
	var bids, asks []entry
	for _, o := range open {
		rate, amount := o.level(srv.snapshot)
		if o.direction == market.Buy {
			bids = append(bids, entry{rate, amount})
		} else {
			asks = append(asks, entry{rate, amount})
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].rate.GreaterThan(bids[j].rate) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].rate.LessThan(asks[j].rate) })

	render := func(entries []entry) []any {
		out := make([]any, len(entries))
		for i, e := range entries {
			out[i] = map[string]any{"rate": e.rate.String(), "amount": e.amount.String(), "orders": 1}
		}
		return out
	}
	return map[string]any{"bids": render(bids), "asks": render(asks)}
}

// ordersOf returns the orders of owner by id.
func (srv *Server) ordersOf(owner common.Address) []*orderRecord {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var out []*orderRecord
	for _, o := range srv.orders {
		if o.owner == owner {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// balances reports zero available funds and the amounts locked in open
// orders for every listed token.
func (srv *Server) balances(owner common.Address) map[string]any {
	locked := make(map[string]decimal.Decimal)
	for _, o := range srv.ordersOf(owner) {
		if o.status != statusOpen {
			continue
		}
		sell, _ := decimal.NewFromString(o.order.SellAmount)
		if t, ok := srv.snapshot.TokenByContract(o.order.SellToken); ok {
			locked[t.Symbol] = locked[t.Symbol].Add(sell)
		}
	}

	out := make(map[string]any, len(srv.listing.Tokens))
	for symbol := range srv.listing.Tokens {
		out[symbol] = map[string]any{"available": "0", "locked": locked[symbol].String()}
	}
	return out
}
