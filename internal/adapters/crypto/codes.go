package crypto

import (
	"crypto/rand"
	"fmt"
	"strings"

	domerr "github.com/viralforge/powerauth-server/internal/domain"
)

// base32Alphabet is RFC 4648's unpadded alphabet, normative per spec §9 open question (c).
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// GenerateActivationCode produces a v3 activation code: 5 groups of 5 Base32 characters,
// the first 24 characters random payload and the 25th a Luhn-mod-32 checksum digit, then
// formatted as "XXXXX-XXXXX-XXXXX-XXXXX-XXXXX", five dash-separated groups of 5.
func GenerateActivationCode() (string, error) {
	payload := make([]byte, 24)
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: read random bytes: %v", domerr.ErrCryptoFailure, err)
	}
	for i, b := range raw {
		payload[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}
	checksum := luhnMod32Checksum(payload)
	full := append(payload, checksum)
	return formatGroupsOf5(string(full)), nil
}

// GenerateShortActivationID produces a v2 short activation id: 2 groups of 5 Base32
// characters with no checksum, matching the legacy "activationIdShort" format (spec §3.1).
func GenerateShortActivationID() (string, error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: read random bytes: %v", domerr.ErrCryptoFailure, err)
	}
	chars := make([]byte, 10)
	for i, b := range raw {
		chars[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}
	return formatGroupsOf5(string(chars)), nil
}

func formatGroupsOf5(s string) string {
	var groups []string
	for i := 0; i < len(s); i += 5 {
		end := i + 5
		if end > len(s) {
			end = len(s)
		}
		groups = append(groups, s[i:end])
	}
	return strings.Join(groups, "-")
}

// ValidateActivationCodeChecksum strips formatting and verifies the trailing Luhn-mod-32
// checksum character against the leading 24 payload characters.
func ValidateActivationCodeChecksum(code string) bool {
	stripped := strings.ReplaceAll(code, "-", "")
	if len(stripped) != 25 {
		return false
	}
	payload, checksum := []byte(stripped[:24]), stripped[24]
	return luhnMod32Checksum(payload) == checksum
}

// luhnMod32Checksum computes a Luhn-style check character over a Base32 alphabet: digits
// are indices into base32Alphabet, alternating-position values are doubled (with digit-sum
// folding, generalized to base 32 rather than base 10), summed mod 32, and the check value
// is the complement needed to bring the total to a multiple of 32.
func luhnMod32Checksum(payload []byte) byte {
	const base = len(base32Alphabet)
	sum := 0
	double := true // rightmost payload digit is doubled first
	for i := len(payload) - 1; i >= 0; i-- {
		v := strings.IndexByte(base32Alphabet, payload[i])
		if double {
			v *= 2
			if v >= base {
				v = v - base + 1
			}
		}
		sum += v
		double = !double
	}
	check := (base - (sum % base)) % base
	return base32Alphabet[check]
}
