package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	domerr "github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// signatureDigits is the fixed width each factor's decimalized MAC is zero-padded to
// (spec §4.2 "decimalize modulo 10^8, zero-pad to 8 digits").
const signatureDigits = 8

// factorOrder fixes the order factors are combined in, per spec §4.2.
var factorOrder = []string{"POSSESSION", "KNOWLEDGE", "BIOMETRY"}

// Engine implements ports.SignatureEngine with the canonical PowerAuth MAC construction.
type Engine struct{}

// NewEngine constructs the stateless signature engine.
func NewEngine() *Engine { return &Engine{} }

// signatureBase builds "data & Base64(counterBytes) & Base64(applicationSecret)" (spec
// §4.2). v3 substitutes the 16-byte ctrData for the integer counter.
func signatureBase(data, applicationSecret []byte, counter uint64, ctrData [16]byte, version domerr.Version) []byte {
	var counterBytes []byte
	if version == domerr.VersionV3 {
		counterBytes = ctrData[:]
	} else {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], counter)
		counterBytes = b[:]
	}
	parts := []string{
		string(data),
		base64.StdEncoding.EncodeToString(counterBytes),
		base64.StdEncoding.EncodeToString(applicationSecret),
	}
	return []byte(strings.Join(parts, "&"))
}

func factorKeyFor(name string, keys ports.FactorKeys) []byte {
	switch name {
	case "POSSESSION":
		return keys.Possession
	case "KNOWLEDGE":
		return keys.Knowledge
	case "BIOMETRY":
		return keys.Biometry
	}
	return nil
}

// factorsForType maps a signatureType to the ordered list of factor names it combines.
// Rejection (empty slice) if the type is unrecognized (spec §4.2 "rejection otherwise").
func factorsForType(signatureType string) []string {
	switch signatureType {
	case "POSSESSION":
		return []string{"POSSESSION"}
	case "POSSESSION_KNOWLEDGE":
		return []string{"POSSESSION", "KNOWLEDGE"}
	case "POSSESSION_BIOMETRY":
		return []string{"POSSESSION", "BIOMETRY"}
	case "POSSESSION_KNOWLEDGE_BIOMETRY":
		return []string{"POSSESSION", "KNOWLEDGE", "BIOMETRY"}
	default:
		return nil
	}
}

// ComputeExpected implements ports.SignatureEngine.
func (e *Engine) ComputeExpected(data []byte, applicationSecret []byte, counter uint64, ctrData [16]byte, version domerr.Version, keys ports.FactorKeys, signatureType string) (string, error) {
	factors := factorsForType(signatureType)
	if len(factors) == 0 {
		return "", fmt.Errorf("%w: unrecognized signature type %q", domerr.ErrInvalidInput, signatureType)
	}
	base := signatureBase(data, applicationSecret, counter, ctrData, version)

	components := make([]string, 0, len(factors))
	for _, name := range factorOrder {
		present := false
		for _, f := range factors {
			if f == name {
				present = true
				break
			}
		}
		if !present {
			continue
		}
		key := factorKeyFor(name, keys)
		if key == nil {
			return "", fmt.Errorf("%w: missing factor key for %s", domerr.ErrCryptoFailure, name)
		}
		mac := HMACSHA256(key, base)
		low4 := mac[len(mac)-4:]
		value := binary.BigEndian.Uint32(low4) % 100000000
		components = append(components, fmt.Sprintf("%0*d", signatureDigits, value))
	}
	return strings.Join(components, "-"), nil
}

// AdvanceCtrData implements ports.SignatureEngine's v3 hash-chain advance:
// ctrData' = SHA-256(ctrData)[0..16] (spec §4.2).
func (e *Engine) AdvanceCtrData(ctrData [16]byte) [16]byte {
	sum := sha256.Sum256(ctrData[:])
	var next [16]byte
	copy(next[:], sum[:16])
	return next
}

var _ ports.SignatureEngine = (*Engine)(nil)
