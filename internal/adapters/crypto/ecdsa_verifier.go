package crypto

import "github.com/viralforge/powerauth-server/internal/ports"

// ECDSAVerifier implements ports.ECDSAVerifier for out-of-band operation approvals
// (spec §4.3): independent of the PowerAuth MAC signature, verifies a DER ECDSA signature
// over request data by the activation's devicePublicKey.
type ECDSAVerifier struct{}

func NewECDSAVerifier() *ECDSAVerifier { return &ECDSAVerifier{} }

func (v *ECDSAVerifier) Verify(devicePublicKey, data, signatureDER []byte) (bool, error) {
	return ECDSAVerifyP256(devicePublicKey, data, signatureDER)
}

var _ ports.ECDSAVerifier = (*ECDSAVerifier)(nil)
