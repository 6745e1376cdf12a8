package order

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/dexws/pkg/market"
)

// Normalize turns raw into a working order for the market found by
// market.Resolve. Amounts derived from a rate are truncated toward zero.
func Normalize(s *market.Snapshot, raw RawOrder, res market.Resolution) (*Working, error) {
	if s == nil {
		return nil, market.ErrNoSnapshot
	}
	if res.Market == nil {
		return nil, &market.ResolutionError{Err: market.ErrUnknownMarket, Name: raw.Market}
	}
	traded, err := s.Traded(res.Market)
	if err != nil {
		return nil, err
	}
	quote, err := s.Quote(res.Market)
	if err != nil {
		return nil, err
	}

	amount, hasAmount, err := parseQuantity(raw.Amount)
	if err != nil {
		return nil, constructionErr(ErrInvalidAmount, "amount: %v", err)
	}
	if hasAmount && amount.human {
		amount.value = amount.value.Shift(traded.Decimals)
	}

	direction, err := resolveDirection(raw, res, amount.value, hasAmount)
	if err != nil {
		return nil, err
	}
	amount.value = amount.value.Abs()

	w := &Working{
		Market:          res.Market.Symbol,
		Direction:       direction,
		Nonce:           raw.Nonce,
		Expiry:          raw.Expiry,
		Signature:       raw.Signature,
		ContractAddress: raw.ContractAddress,
	}

	w.setTokens(s, raw, res, traded, quote)
	if err := w.setAmounts(raw, amount.value, hasAmount, traded, quote); err != nil {
		return nil, err
	}
	return w, nil
}

// resolveDirection picks the order side. A token pair fixes the direction;
// otherwise Direction, then Side, then the sign of the amount decide. Only a
// negative amount on an order forced to buy is rejected: Side is the
// lenient alias and its amount sign is dropped.
func resolveDirection(raw RawOrder, res market.Resolution, amount decimal.Decimal, hasAmount bool) (market.Direction, error) {
	forced := raw.Direction
	if res.Direction != "" {
		if forced != "" && forced != res.Direction {
			return "", constructionErr(ErrConflictingDirection, "%s requested, token pair trades as %s", forced, res.Direction)
		}
		forced = res.Direction
	}

	direction := forced
	if direction == "" {
		direction = raw.Side
	}
	if direction == "" && hasAmount {
		direction = market.Sell
		if amount.IsPositive() {
			direction = market.Buy
		}
	}
	if !direction.Valid() {
		return "", constructionErr(ErrUnknownDirection, "%q", direction)
	}
	if forced == market.Buy && hasAmount && amount.IsNegative() {
		return "", &ConstructionError{Err: ErrNegativeBuyAmount}
	}
	return direction, nil
}

func (w *Working) setTokens(s *market.Snapshot, raw RawOrder, res market.Resolution, traded, quote *market.Token) {
	switch {
	case res.BuyToken != nil && res.SellToken != nil:
		w.BuyToken, w.SellToken = res.BuyToken.Contract, res.SellToken.Contract
		return
	case raw.BuyToken != "" && raw.SellToken != "":
		w.BuyToken = contractOf(s, raw.BuyToken)
		w.SellToken = contractOf(s, raw.SellToken)
		return
	}

	if w.Direction == market.Buy {
		w.BuyToken, w.SellToken = traded.Contract, quote.Contract
	} else {
		w.BuyToken, w.SellToken = quote.Contract, traded.Contract
	}
}

// contractOf maps a listed symbol to its contract. Anything else is taken
// to be a contract address already.
func contractOf(s *market.Snapshot, ref string) string {
	if t, ok := s.LookupToken(ref); ok {
		return t.Contract
	}
	return ref
}

func (w *Working) setAmounts(raw RawOrder, amount decimal.Decimal, hasAmount bool, traded, quote *market.Token) error {
	buy, hasBuy, err := baseUnits("buyAmount", raw.BuyAmount)
	if err != nil {
		return err
	}
	sell, hasSell, err := baseUnits("sellAmount", raw.SellAmount)
	if err != nil {
		return err
	}
	if hasBuy && hasSell {
		w.BuyAmount, w.SellAmount = buy, sell
		return nil
	}

	rate, hasRate, err := parseQuantity(raw.Rate)
	if err != nil {
		return constructionErr(ErrInvalidAmount, "rate: %v", err)
	}
	if !hasAmount || !hasRate {
		return &ConstructionError{Err: ErrMissingAmountRate}
	}
	if rate.value.IsNegative() {
		return constructionErr(ErrInvalidAmount, "rate %s is negative", rate.value)
	}

	base := amount.Truncate(0)
	counter := amount.Shift(-traded.Decimals).Mul(rate.value).Shift(quote.Decimals).Truncate(0)
	if w.Direction == market.Buy {
		w.BuyAmount, w.SellAmount = base, counter
	} else {
		w.SellAmount, w.BuyAmount = base, counter
	}
	return nil
}
