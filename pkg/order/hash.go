package order

import (
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexws/pkg/crypto"
)

// PreimageLength is the size of the packed order tuple:
// address, uint128, address, uint128, uint32, uint64, address.
const PreimageLength = 20 + 16 + 20 + 16 + 4 + 8 + 20

// Preimage holds the fields the settlement contract hashes, in contract order.
type Preimage struct {
	SellToken       string
	SellAmount      *big.Int
	BuyToken        string
	BuyAmount       *big.Int
	Expiry          uint32
	Nonce           uint64
	ContractAddress string
}

// NewPreimage extracts the hashed fields of c. Addresses are lower-cased.
func NewPreimage(c *Canonical, contract string) (Preimage, error) {
	sellAmount, ok := new(big.Int).SetString(c.SellAmount, 10)
	if !ok {
		return Preimage{}, constructionErr(ErrInvalidAmount, "sellAmount %q", c.SellAmount)
	}
	buyAmount, ok := new(big.Int).SetString(c.BuyAmount, 10)
	if !ok {
		return Preimage{}, constructionErr(ErrInvalidAmount, "buyAmount %q", c.BuyAmount)
	}
	if contract == "" {
		return Preimage{}, &ConstructionError{Err: ErrNoContractAddress}
	}
	return Preimage{
		SellToken:       strings.ToLower(c.SellToken),
		SellAmount:      sellAmount,
		BuyToken:        strings.ToLower(c.BuyToken),
		BuyAmount:       buyAmount,
		Expiry:          c.Expiry,
		Nonce:           c.Nonce,
		ContractAddress: strings.ToLower(contract),
	}, nil
}

// Bytes returns the Solidity tightly packed encoding of p.
func (p Preimage) Bytes() ([]byte, error) {
	out := make([]byte, 0, PreimageLength)

	var err error
	if out, err = appendAddress(out, "sellToken", p.SellToken); err != nil {
		return nil, err
	}
	if out, err = appendUint128(out, "sellAmount", p.SellAmount); err != nil {
		return nil, err
	}
	if out, err = appendAddress(out, "buyToken", p.BuyToken); err != nil {
		return nil, err
	}
	if out, err = appendUint128(out, "buyAmount", p.BuyAmount); err != nil {
		return nil, err
	}
	out = binary.BigEndian.AppendUint32(out, p.Expiry)
	out = binary.BigEndian.AppendUint64(out, p.Nonce)
	if out, err = appendAddress(out, "contractAddress", p.ContractAddress); err != nil {
		return nil, err
	}
	return out, nil
}

// Hash is Keccak-256 over the packed preimage.
func (p Preimage) Hash() (common.Hash, error) {
	b, err := p.Bytes()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256(b), nil
}

// Hash computes the settlement hash of a canonical order.
func Hash(c *Canonical, contract string) (common.Hash, error) {
	p, err := NewPreimage(c, contract)
	if err != nil {
		return common.Hash{}, err
	}
	return p.Hash()
}

func appendAddress(out []byte, field, s string) ([]byte, error) {
	addr, err := crypto.ParseAddress(s)
	if err != nil {
		return nil, constructionErr(ErrInvalidAddress, "%s: %v", field, err)
	}
	return append(out, addr[:]...), nil
}

func appendUint128(out []byte, field string, v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
		return nil, constructionErr(ErrInvalidAmount, "%s %v does not fit uint128", field, v)
	}
	var word [16]byte
	v.FillBytes(word[:])
	return append(out, word[:]...), nil
}
