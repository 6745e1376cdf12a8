package market

// Direction is the side of an order relative to its market's traded token.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Valid reports whether d is buy or sell.
func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// Query names the market of an order, either directly or by its token pair.
// Tokens may be given as contract addresses or symbols.
type Query struct {
	Market    string
	BuyToken  string
	SellToken string
}

// Resolution is the outcome of Resolve. BuyToken, SellToken and Direction
// are only set when the market was derived from a token pair.
type Resolution struct {
	Market    *Market
	BuyToken  *Token
	SellToken *Token
	Direction Direction
}

// Resolve finds the market of q in s. A token pair matches the market
// buy+sell (a buy) before sell+buy (a sell).
func Resolve(s *Snapshot, q Query) (Resolution, error) {
	if s == nil {
		return Resolution{}, ErrNoSnapshot
	}

	if q.Market != "" {
		m, ok := s.Market(q.Market)
		if !ok {
			return Resolution{}, &ResolutionError{Err: ErrUnknownMarket, Name: q.Market}
		}
		return Resolution{Market: m}, nil
	}

	if q.BuyToken == "" || q.SellToken == "" {
		return Resolution{}, &ResolutionError{Err: ErrMissingMarketOrTokens}
	}

	buy, ok := s.LookupToken(q.BuyToken)
	if !ok {
		return Resolution{}, &ResolutionError{Err: ErrUnknownToken, Name: q.BuyToken}
	}
	sell, ok := s.LookupToken(q.SellToken)
	if !ok {
		return Resolution{}, &ResolutionError{Err: ErrUnknownToken, Name: q.SellToken}
	}

	if m, ok := s.Market(buy.Symbol + sell.Symbol); ok {
		return Resolution{Market: m, BuyToken: buy, SellToken: sell, Direction: Buy}, nil
	}
	if m, ok := s.Market(sell.Symbol + buy.Symbol); ok {
		return Resolution{Market: m, BuyToken: buy, SellToken: sell, Direction: Sell}, nil
	}
	return Resolution{}, &ResolutionError{Err: ErrUnknownMarket, Name: buy.Symbol + "/" + sell.Symbol}
}
