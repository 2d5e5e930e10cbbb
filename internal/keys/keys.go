// Package keys holds the ed25519 identity a relay signs federated payloads
// with. Keys travel as unpadded base64 of the 32-byte seed (private) or the
// 32-byte public key.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

var b64 = base64.RawStdEncoding

// KeyPair is a relay signing identity.
type KeyPair struct {
	priv ed25519.PrivateKey
}

// Generate draws a fresh key pair.
func Generate() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// Load rebuilds a key pair from the base64 seed produced by Private.
func Load(encoded string) (*KeyPair, error) {
	seed, err := b64.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keys: decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: private key is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Private returns the base64 seed.
func (k *KeyPair) Private() string {
	return b64.EncodeToString(k.priv.Seed())
}

// Public returns the base64 public key.
func (k *KeyPair) Public() string {
	return b64.EncodeToString(k.priv.Public().(ed25519.PublicKey))
}

// Sign returns the base64 signature of msg.
func (k *KeyPair) Sign(msg []byte) string {
	return b64.EncodeToString(ed25519.Sign(k.priv, msg))
}

// Verify checks a base64 signature against a base64 public key.
func Verify(publicKey string, msg []byte, signature string) (bool, error) {
	pub, err := b64.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("keys: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("keys: public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	sig, err := b64.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("keys: decode signature: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}
