package crypto_test

import (
	"bytes"
	"testing"

	"github.com/ancourn/kaldr1-sub003/crypto"
)

func TestSignerSchemes(t *testing.T) {
	for _, scheme := range []string{crypto.SchemeEd25519, crypto.SchemeStub} {
		signer, err := crypto.NewSigner(scheme)
		if err != nil {
			t.Fatalf("%s: %v", scheme, err)
		}

		pub, priv, err := signer.GenerateKey()
		if err != nil {
			t.Fatalf("%s: keygen failed: %v", scheme, err)
		}

		msg := []byte("payload under test")
		sig, err := signer.Sign(priv, msg)
		if err != nil {
			t.Fatalf("%s: sign failed: %v", scheme, err)
		}
		if !signer.Verify(pub, msg, sig) {
			t.Fatalf("%s: valid signature rejected", scheme)
		}
		if signer.Verify(pub, []byte("other payload"), sig) {
			t.Fatalf("%s: forged message accepted", scheme)
		}

		sig[0] ^= 0xff
		if signer.Verify(pub, msg, sig) {
			t.Fatalf("%s: corrupted signature accepted", scheme)
		}
	}
}

func TestNewSignerUnknownScheme(t *testing.T) {
	if _, err := crypto.NewSigner("rot13"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}

func TestPrimeHashDeterministic(t *testing.T) {
	payload := []byte("same payload")

	first := crypto.PrimeHash(payload, 104729)
	second := crypto.PrimeHash(payload, 104729)
	if !bytes.Equal(first, second) {
		t.Fatalf("prime hash not deterministic")
	}
	if len(first) != crypto.PrimeHashSize {
		t.Fatalf("expected %d bytes, got %d", crypto.PrimeHashSize, len(first))
	}

	if bytes.Equal(first, crypto.PrimeHash([]byte("different payload"), 104729)) {
		t.Fatalf("distinct payloads produced the same residue")
	}
	if bytes.Equal(first, crypto.PrimeHash(payload, 2147483647)) {
		t.Fatalf("distinct moduli produced the same residue")
	}
}
