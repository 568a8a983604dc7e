package crypto

import (
	"bytes"
	"testing"
)

// buildV2Envelope constructs a wire envelope matching v2ParseEnvelope's expected layout, as
// a v2 client would, so DecryptDeviceEnvelope can be exercised end to end.
func buildV2Envelope(t *testing.T, masterPub, applicationKey, applicationSecret, activationIDShort, devicePub []byte) []byte {
	t.Helper()
	ephPub, ephPriv, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("generate ephemeral pair: %v", err)
	}
	secret, err := ECDH(ephPriv, masterPub)
	if err != nil {
		t.Fatalf("ecdh: %v", err)
	}
	nonce := bytes.Repeat([]byte{0x5A}, v2NonceSize)
	aesKey := KDFX9_63(secret, nonce, 16)
	iv := bytes.Repeat([]byte{0x00}, v2IVSize)
	ciphertext, err := AESCBCEncrypt(aesKey, iv, devicePub)
	if err != nil {
		t.Fatalf("encrypt device pub: %v", err)
	}
	sig := HMACSHA256(applicationSecret, v2SignatureBase(activationIDShort, nonce, ciphertext, applicationKey))

	env := make([]byte, 0, 1+len(activationIDShort)+v2NonceSize+v2PubKeySize+v2IVSize+len(ciphertext)+v2SignatureSize)
	env = append(env, byte(len(activationIDShort)))
	env = append(env, activationIDShort...)
	env = append(env, nonce...)
	env = append(env, ephPub...)
	env = append(env, iv...)
	env = append(env, ciphertext...)
	env = append(env, sig...)
	return env
}

func TestV2DecryptDeviceEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()
	masterPub, masterPriv, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("generate master pair: %v", err)
	}
	applicationKey := bytes.Repeat([]byte{0x11}, 16)
	applicationSecret := bytes.Repeat([]byte{0x22}, 16)
	activationIDShort := []byte("ABCDE-FGHIJ")
	devicePub := bytes.Repeat([]byte{0xCD}, 65)

	env := buildV2Envelope(t, masterPub, applicationKey, applicationSecret, activationIDShort, devicePub)
	appKeyAndSecret := append(append([]byte{}, applicationKey...), applicationSecret...)

	v2 := NewV2()
	gotDevicePub, _, err := v2.DecryptDeviceEnvelope(masterPriv, env, appKeyAndSecret)
	if err != nil {
		t.Fatalf("decrypt device envelope: %v", err)
	}
	if !bytes.Equal(gotDevicePub, devicePub) {
		t.Fatalf("device public key mismatch: got %x want %x", gotDevicePub, devicePub)
	}
}

func TestV2DecryptDeviceEnvelopeRejectsTamperedSignature(t *testing.T) {
	t.Parallel()
	masterPub, masterPriv, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("generate master pair: %v", err)
	}
	applicationKey := bytes.Repeat([]byte{0x11}, 16)
	applicationSecret := bytes.Repeat([]byte{0x22}, 16)
	activationIDShort := []byte("ABCDE-FGHIJ")
	devicePub := bytes.Repeat([]byte{0xCD}, 65)

	env := buildV2Envelope(t, masterPub, applicationKey, applicationSecret, activationIDShort, devicePub)
	env[len(env)-1] ^= 0xFF // flip a byte of the trailing appSignature
	appKeyAndSecret := append(append([]byte{}, applicationKey...), applicationSecret...)

	v2 := NewV2()
	if _, _, err := v2.DecryptDeviceEnvelope(masterPriv, env, appKeyAndSecret); err == nil {
		t.Fatalf("expected error for tampered application signature")
	}
}

func TestV2EncryptServerResponseRoundTrip(t *testing.T) {
	t.Parallel()
	v2 := NewV2()
	responseKey := bytes.Repeat([]byte{0x42}, 32)
	serverPub := bytes.Repeat([]byte{0x99}, 65)

	ciphertext, err := v2.EncryptServerResponse(responseKey, serverPub)
	if err != nil {
		t.Fatalf("encrypt server response: %v", err)
	}
	key := KDFX9_63(responseKey, []byte("powerauth/v2/response"), 16)
	iv := make([]byte, 16)
	got, err := AESCBCDecrypt(key, iv, ciphertext)
	if err != nil {
		t.Fatalf("decrypt server response: %v", err)
	}
	if !bytes.Equal(got, serverPub) {
		t.Fatalf("server public key mismatch: got %x want %x", got, serverPub)
	}
}

func TestFallbackSignatureLength(t *testing.T) {
	t.Parallel()
	sig, err := FallbackSignature()
	if err != nil {
		t.Fatalf("fallback signature: %v", err)
	}
	if len(sig) != 71 {
		t.Fatalf("expected 71-byte fallback signature, got %d", len(sig))
	}
}
