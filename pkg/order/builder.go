package order

import (
	"fmt"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/util"
)

// Builder assembles placeOrder parameters: resolve the market, normalize
// the amounts and sign the result when a key is available.
type Builder struct {
	Snapshot *market.Snapshot

	// Signer signs orders that arrive without a signature. Nil leaves them
	// unsigned.
	Signer *crypto.Signer

	// ContractAddress is used when the order does not carry one.
	ContractAddress string
	DefaultExpiry   uint32
	Clock           util.Clock
}

// Build runs resolve, normalize and sign for one order.
func (b *Builder) Build(raw RawOrder) (*Canonical, error) {
	res, err := market.Resolve(b.Snapshot, market.Query{
		Market:    raw.Market,
		BuyToken:  raw.BuyToken,
		SellToken: raw.SellToken,
	})
	if err != nil {
		return nil, err
	}

	w, err := Normalize(b.Snapshot, raw, res)
	if err != nil {
		return nil, err
	}

	c := w.canonical()
	if w.Signature == "" && b.Signer != nil {
		if err := b.sign(w, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (b *Builder) sign(w *Working, c *Canonical) error {
	if c.Nonce == 0 {
		clock := b.Clock
		if clock == nil {
			clock = util.RealClock{}
		}
		c.Nonce = util.NowMillis(clock)
	}
	if c.Expiry == 0 {
		c.Expiry = b.DefaultExpiry
		if c.Expiry == 0 {
			c.Expiry = params.DefaultExpiry
		}
	}

	contract := w.ContractAddress
	if contract == "" {
		contract = b.ContractAddress
	}
	hash, err := Hash(c, contract)
	if err != nil {
		return err
	}

	sig, err := b.Signer.SignPersonalHex(hash.Bytes())
	if err != nil {
		return fmt.Errorf("sign order: %w", err)
	}
	c.Signature = sig
	c.SignatureFormat = SignatureFormat
	return nil
}
