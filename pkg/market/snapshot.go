package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/dexws/pkg/crypto"
)

// Token describes a listed token.
type Token struct {
	Symbol   string
	Contract string
	Decimals int32
	Name     string
}

// ChecksumContract returns the EIP-55 form of the token contract.
func (t *Token) ChecksumContract() string {
	sum, err := crypto.ChecksumAddress(t.Contract)
	if err != nil {
		return t.Contract
	}
	return sum
}

// Market is a trading pair keyed by the concatenated traded and quote symbols.
type Market struct {
	Symbol string
	Traded string
	Quote  string
}

// Snapshot is the exchange metadata of one connection: built once from the
// first listed packet and read-only afterwards.
type Snapshot struct {
	tokens           map[string]*Token
	tokensByContract map[string]*Token // lower-cased contract
	markets          map[string]*Market
}

// NewSnapshot indexes tokens by symbol and contract and markets by key.
// A market's Symbol defaults to its map key.
func NewSnapshot(tokens map[string]Token, markets map[string]Market) *Snapshot {
	s := &Snapshot{
		tokens:           make(map[string]*Token, len(tokens)),
		tokensByContract: make(map[string]*Token, len(tokens)),
		markets:          make(map[string]*Market, len(markets)),
	}
	for symbol, tok := range tokens {
		tok := tok
		tok.Symbol = symbol
		s.tokens[symbol] = &tok
		s.tokensByContract[strings.ToLower(tok.Contract)] = &tok
	}
	for key, m := range markets {
		m := m
		m.Symbol = key
		s.markets[key] = &m
	}
	return s
}

// FromListed builds a snapshot from a decoded listed packet
// ({"tokens": {symbol: {contract, decimals?}}, "markets": {key: {traded, quote}}}).
func FromListed(decoded any) (*Snapshot, error) {
	listed, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("listed packet: expected object, got %T", decoded)
	}
	rawTokens, _ := listed["tokens"].(map[string]any)
	rawMarkets, _ := listed["markets"].(map[string]any)

	tokens := make(map[string]Token, len(rawTokens))
	for symbol, raw := range rawTokens {
		desc, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("listed packet: token %s: expected object, got %T", symbol, raw)
		}
		contract, _ := desc["contract"].(string)
		if contract == "" {
			return nil, fmt.Errorf("listed packet: token %s: missing contract", symbol)
		}
		decimals, err := parseDecimals(desc["decimals"])
		if err != nil {
			return nil, fmt.Errorf("listed packet: token %s: %w", symbol, err)
		}
		name, _ := desc["name"].(string)
		tokens[symbol] = Token{Contract: contract, Decimals: decimals, Name: name}
	}

	markets := make(map[string]Market, len(rawMarkets))
	for key, raw := range rawMarkets {
		desc, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("listed packet: market %s: expected object, got %T", key, raw)
		}
		traded, _ := desc["traded"].(string)
		quote, _ := desc["quote"].(string)
		markets[key] = Market{Traded: traded, Quote: quote}
	}
	return NewSnapshot(tokens, markets), nil
}

// parseDecimals accepts the numeric forms a decoded uint may take. An absent
// value means zero decimals.
func parseDecimals(v any) (int32, error) {
	var n int64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		i, err := strconv.ParseInt(x.String(), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("decimals %q: %w", x, err)
		}
		n = i
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		n = int64(x)
	case decimal.Decimal:
		n = x.IntPart()
	default:
		return 0, fmt.Errorf("decimals: unexpected %T", v)
	}
	if n < 0 || n > 77 {
		return 0, fmt.Errorf("decimals %d out of range", n)
	}
	return int32(n), nil
}

func (s *Snapshot) Token(symbol string) (*Token, bool) {
	t, ok := s.tokens[symbol]
	return t, ok
}

func (s *Snapshot) TokenByContract(contract string) (*Token, bool) {
	t, ok := s.tokensByContract[strings.ToLower(contract)]
	return t, ok
}

// LookupToken resolves a contract address first, then a symbol.
func (s *Snapshot) LookupToken(ref string) (*Token, bool) {
	if t, ok := s.TokenByContract(ref); ok {
		return t, true
	}
	return s.Token(ref)
}

func (s *Snapshot) Market(key string) (*Market, bool) {
	m, ok := s.markets[key]
	return m, ok
}

// Markets returns every market key.
func (s *Snapshot) Markets() []string {
	keys := make([]string, 0, len(s.markets))
	for k := range s.markets {
		keys = append(keys, k)
	}
	return keys
}

// Traded returns the market's traded token.
func (s *Snapshot) Traded(m *Market) (*Token, error) {
	t, ok := s.tokens[m.Traded]
	if !ok {
		return nil, &ResolutionError{Err: ErrUnknownToken, Name: m.Traded}
	}
	return t, nil
}

// Quote returns the market's quote token.
func (s *Snapshot) Quote(m *Market) (*Token, error) {
	t, ok := s.tokens[m.Quote]
	if !ok {
		return nil, &ResolutionError{Err: ErrUnknownToken, Name: m.Quote}
	}
	return t, nil
}
