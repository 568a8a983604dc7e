// Package crypto implements the PowerAuth cryptographic primitives: EC key agreement on
// P-256, KDF_X9.63 and KDF_INTERNAL, AES-128-CBC/PKCS7, HMAC-SHA-256, and ECDSA. These are
// leaf functions with no knowledge of the activation record or signature engine above them.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	domerr "github.com/viralforge/powerauth-server/internal/domain"
)

const (
	aesBlockSize  = 16
	factorKeySize = 16
)

// GenerateP256KeyPair produces a fresh ECDH P-256 keypair, returning the raw uncompressed
// SEC1 public point and the private scalar, matching spec §6's public-key wire format.
func GenerateP256KeyPair() (pub []byte, priv []byte, err error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: generate P-256 key: %v", domerr.ErrCryptoFailure, err)
	}
	return key.PublicKey().Bytes(), key.Bytes(), nil
}

// ECDH computes the shared secret S = ECDH(privBytes, pubBytes) over P-256, both encoded as
// uncompressed SEC1 points / raw scalars.
func ECDH(privBytes, pubBytes []byte) ([]byte, error) {
	priv, err := ecdh.P256().NewPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse ECDH private key: %v", domerr.ErrCryptoFailure, err)
	}
	pub, err := ecdh.P256().NewPublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse ECDH public key: %v", domerr.ErrCryptoFailure, err)
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH agreement: %v", domerr.ErrCryptoFailure, err)
	}
	return secret, nil
}

// KDFX9_63 implements ANSI X9.63 key derivation with SHA-256 as the hash function: derives
// outputLen bytes from sharedSecret, optionally salted with sharedInfo.
func KDFX9_63(sharedSecret, sharedInfo []byte, outputLen int) []byte {
	var out []byte
	var counter uint32 = 1
	for len(out) < outputLen {
		var counterBytes [4]byte
		binary.BigEndian.PutUint32(counterBytes[:], counter)
		h := sha256.New()
		h.Write(sharedSecret)
		h.Write(counterBytes[:])
		h.Write(sharedInfo)
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:outputLen]
}

// KDFInternal is the PowerAuth-specific KDF: the first 16 bytes of
// HMAC-SHA-256(key, be64(index)). It derives the family of factor/transport/vault subkeys
// from a master secret (spec §3.1, §6: "KDF_INTERNAL(K, i) = HMAC-SHA-256(K, be64(i))[0..16]").
func KDFInternal(key []byte, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	mac := hmac.New(sha256.New, key)
	mac.Write(idx[:])
	return mac.Sum(nil)[:factorKeySize]
}

// HMACSHA256 computes the HMAC-SHA-256 of data under key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// AESCBCEncrypt encrypts PKCS7-padded plaintext under AES-128-CBC with the given IV. Vault
// unlock (spec §4.4 "zero IV") and the v2 server response pass a zero IV; the other callers
// generate a random IV and transmit it alongside the ciphertext.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes cipher: %v", domerr.ErrCryptoFailure, err)
	}
	padded := pkcs7Pad(plaintext, aesBlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// AESCBCDecrypt decrypts and PKCS7-unpads ciphertext under AES-128-CBC.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aesBlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", domerr.ErrCryptoFailure)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes cipher: %v", domerr.ErrCryptoFailure, err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty padded data", domerr.ErrCryptoFailure)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > aesBlockSize || padLen > n {
		return nil, fmt.Errorf("%w: invalid PKCS7 padding", domerr.ErrCryptoFailure)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid PKCS7 padding", domerr.ErrCryptoFailure)
		}
	}
	return data[:n-padLen], nil
}

// ECDSASignP256 signs data with an ECDSA P-256 private key (raw scalar), returning a DER
// signature.
func ECDSASignP256(privScalar, data []byte) ([]byte, error) {
	priv, err := ecdsaPrivateFromScalar(privScalar)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: ecdsa sign: %v", domerr.ErrCryptoFailure, err)
	}
	return sig, nil
}

// ECDSAVerifyP256 verifies a DER ECDSA signature over data under an uncompressed SEC1
// P-256 public key.
func ECDSAVerifyP256(pubPoint, data, sigDER []byte) (bool, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), pubPoint)
	if x == nil {
		return false, fmt.Errorf("%w: invalid P-256 public key point", domerr.ErrCryptoFailure)
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], sigDER), nil
}

func ecdsaPrivateFromScalar(scalar []byte) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = new(big.Int).SetBytes(scalar)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(scalar)
	return priv, nil
}
