package order

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/dexws/pkg/market"
)

// SignatureFormat tags signatures produced over the personal-message hash.
const SignatureFormat = "sign"

// RawOrder is what a caller hands to placeOrder. It names the market either
// directly or by token pair, and the size either as Amount+Rate or as
// explicit BuyAmount and SellAmount.
//
// Amount and Rate given as Go numbers, strings or json.Number are in whole
// tokens; Amount is scaled by the traded token's decimals. decimal.Decimal
// and *big.Int amounts are already in the smallest unit. BuyAmount and
// SellAmount are always in the smallest unit.
type RawOrder struct {
	Market    string
	BuyToken  string
	SellToken string

	Amount     any
	Rate       any
	BuyAmount  any
	SellAmount any

	// Direction wins over Side, which wins over the sign of Amount. With a
	// token pair the pair fixes the direction, and a different explicit
	// Direction is rejected with ErrConflictingDirection rather than
	// overwritten.
	Direction market.Direction
	Side      market.Direction

	Nonce           uint64
	Expiry          uint32
	Signature       string
	ContractAddress string
}

// Working is a normalized order that may still need signing.
type Working struct {
	Market     string
	Direction  market.Direction
	BuyToken   string
	SellToken  string
	BuyAmount  decimal.Decimal
	SellAmount decimal.Decimal

	Nonce           uint64
	Expiry          uint32
	Signature       string
	ContractAddress string
}

// Canonical is the order as it goes on the wire.
type Canonical struct {
	SellToken       string `json:"sellToken"`
	SellAmount      string `json:"sellAmount"`
	BuyToken        string `json:"buyToken"`
	BuyAmount       string `json:"buyAmount"`
	Expiry          uint32 `json:"expiry,omitempty"`
	Nonce           uint64 `json:"nonce,omitempty"`
	Signature       string `json:"signature,omitempty"`
	SignatureFormat string `json:"signatureFormat,omitempty"`
	Market          string `json:"market"`
}

// Params returns the order as placeOrder parameters, leaving out unset
// optional fields.
func (c *Canonical) Params() map[string]any {
	p := map[string]any{
		"sellToken":  c.SellToken,
		"sellAmount": c.SellAmount,
		"buyToken":   c.BuyToken,
		"buyAmount":  c.BuyAmount,
		"market":     c.Market,
	}
	if c.Expiry != 0 {
		p["expiry"] = c.Expiry
	}
	if c.Nonce != 0 {
		p["nonce"] = c.Nonce
	}
	if c.Signature != "" {
		p["signature"] = c.Signature
	}
	if c.SignatureFormat != "" {
		p["signatureFormat"] = c.SignatureFormat
	}
	return p
}

func (w *Working) canonical() *Canonical {
	return &Canonical{
		SellToken:  w.SellToken,
		SellAmount: w.SellAmount.String(),
		BuyToken:   w.BuyToken,
		BuyAmount:  w.BuyAmount.String(),
		Expiry:     w.Expiry,
		Nonce:      w.Nonce,
		Signature:  w.Signature,
		Market:     w.Market,
	}
}
