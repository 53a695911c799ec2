package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// Signature scheme names accepted by NewSigner.
const (
	SchemeEd25519 = "ed25519"
	SchemeStub    = "stub"
)

// Signer is the pluggable signature backend. The production scheme and the
// deterministic test stub both implement it; the choice is fixed at
// construction from configuration.
type Signer interface {
	GenerateKey() (pub, priv []byte, err error)
	Sign(priv, message []byte) ([]byte, error)
	Verify(pub, message, signature []byte) bool
	Scheme() string
}

// NewSigner returns the signer for the configured scheme name.
func NewSigner(scheme string) (Signer, error) {
	switch scheme {
	case SchemeEd25519:
		return Ed25519Signer{}, nil
	case SchemeStub:
		return StubSigner{}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

// Ed25519Signer is the production signature backend.
type Ed25519Signer struct{}

func (Ed25519Signer) GenerateKey() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (Ed25519Signer) Sign(priv, message []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(priv))
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), message), nil
}

func (Ed25519Signer) Verify(pub, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature)
}

func (Ed25519Signer) Scheme() string { return SchemeEd25519 }

// StubSigner is a deterministic backend for tests: the public and private key
// are the same bytes and a signature is the digest of key plus message.
type StubSigner struct{}

func (StubSigner) GenerateKey() ([]byte, []byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, err
	}
	return key, key, nil
}

func (StubSigner) Sign(priv, message []byte) ([]byte, error) {
	return stubDigest(priv, message), nil
}

func (StubSigner) Verify(pub, message, signature []byte) bool {
	return bytes.Equal(stubDigest(pub, message), signature)
}

func (StubSigner) Scheme() string { return SchemeStub }

func stubDigest(key, message []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(message)
	return h.Sum(nil)
}
