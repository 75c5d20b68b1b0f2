// Package address validates and normalises 20-byte hex account addresses.
package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Zero is the all-zero address, never a valid account.
const Zero = "0x0000000000000000000000000000000000000000"

// Normalize validates a 0x-prefixed 40 hex digit address and returns its mixed-case
// checksum form. The zero address is rejected.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 42 || !(strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X")) {
		return "", fmt.Errorf("address %q: want 0x followed by 40 hex digits", raw)
	}
	body := strings.ToLower(trimmed[2:])
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("address %q: %w", raw, err)
	}
	if "0x"+body == Zero {
		return "", fmt.Errorf("address %q: zero address", raw)
	}
	return checksum(body), nil
}

// Valid reports whether raw is a non-zero address.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// Equal compares two addresses case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

func checksum(lowerHex string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lowerHex))
	digest := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lowerHex); i++ {
		c := lowerHex[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
