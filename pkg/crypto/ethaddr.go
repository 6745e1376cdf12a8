package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ParseAddress decodes a 0x-prefixed 20-byte hex address in any letter case.
func ParseAddress(s string) ([20]byte, error) {
	var out [20]byte
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(body) != 40 {
		return out, fmt.Errorf("address %q: expected 40 hex characters, got %d", s, len(body))
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return out, fmt.Errorf("address %q: %w", s, err)
	}
	copy(out[:], raw)
	return out, nil
}

// ChecksumAddress returns the EIP-55 form of a hex address.
func ChecksumAddress(s string) (string, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return EIP55(addr[:]), nil
}

// EIP55 computes the checksummed hex address string from 20-byte raw address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20) // lower
	// keccak of lowercase hex
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// each hex char maps to 4 bits; i>>1 picks the byte, parity picks the nibble
		nibble := hash[i>>1] & 0x0f
		if i%2 == 0 {
			nibble = hash[i>>1] >> 4
		}
		if nibble >= 8 {
			out[2+i] = c - 'a' + 'A'
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}
