package devserver

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/schema"
)

var listingJSON = jsoniter.Config{UseNumber: true}.Froze()

// DefaultContractAddress is the settlement contract the simulator reports
// when none is configured.
const DefaultContractAddress = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"

// Listing is the token and market table the simulator serves.
type Listing struct {
	Tokens  map[string]market.Token
	Markets map[string]market.Market
}

// DefaultListing mirrors a small mainnet listing.
func DefaultListing() Listing {
	return Listing{
		Tokens: map[string]market.Token{
			"ETH":  {Contract: "0x0000000000000000000000000000000000000000", Decimals: 18, Name: "Ether"},
			"ENG":  {Contract: "0xf0ee6b27b759c9893ce4f094b49ad28fd15a23e4", Decimals: 8, Name: "Enigma"},
			"DAI":  {Contract: "0x89d24a6b4ccb1b6faa2625fe562bdd9a23260359", Decimals: 18, Name: "Dai Stablecoin"},
			"WBTC": {Contract: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Decimals: 8, Name: "Wrapped BTC"},
		},
		Markets: map[string]market.Market{
			"ENGETH":  {Traded: "ENG", Quote: "ETH"},
			"ETHDAI":  {Traded: "ETH", Quote: "DAI"},
			"WBTCDAI": {Traded: "WBTC", Quote: "DAI"},
		},
	}
}

// Snapshot indexes the listing the way clients see it.
func (l Listing) Snapshot() *market.Snapshot {
	return market.NewSnapshot(l.Tokens, l.Markets)
}

// wireValue is the listed packet payload before encoding.
func (l Listing) wireValue() map[string]any {
	tokens := make(map[string]any, len(l.Tokens))
	for symbol, t := range l.Tokens {
		desc := map[string]any{"contract": t.Contract, "decimals": int(t.Decimals)}
		if t.Name != "" {
			desc["name"] = t.Name
		}
		tokens[symbol] = desc
	}
	markets := make(map[string]any, len(l.Markets))
	for key, m := range l.Markets {
		markets[key] = map[string]any{"traded": m.Traded, "quote": m.Quote}
	}
	return map[string]any{"tokens": tokens, "markets": markets}
}

// LoadListing reads a listing file in the listed packet format.
func LoadListing(path string) (Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Listing{}, err
	}
	l, err := ParseListing(data)
	if err != nil {
		return Listing{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// ParseListing checks data against the listed event schema and requires every
// market to reference listed tokens.
func ParseListing(data []byte) (Listing, error) {
	var raw any
	if err := listingJSON.Unmarshal(data, &raw); err != nil {
		return Listing{}, err
	}
	reg, err := schema.Default()
	if err != nil {
		return Listing{}, err
	}
	ev, _ := reg.Event("listed")
	decoded, err := schema.NewDecoder(reg.Structs(), 0).Decode(ev.Node, raw)
	if err != nil {
		return Listing{}, err
	}
	snap, err := market.FromListed(decoded)
	if err != nil {
		return Listing{}, err
	}

	l := Listing{Tokens: map[string]market.Token{}, Markets: map[string]market.Market{}}
	tokens, _ := decoded.(map[string]any)["tokens"].(map[string]any)
	for symbol := range tokens {
		t, _ := snap.Token(symbol)
		l.Tokens[symbol] = *t
	}
	for _, key := range snap.Markets() {
		m, _ := snap.Market(key)
		if _, err := snap.Traded(m); err != nil {
			return Listing{}, err
		}
		if _, err := snap.Quote(m); err != nil {
			return Listing{}, err
		}
		l.Markets[key] = *m
	}
	return l, nil
}
