package quantum_test

import (
	"errors"
	"testing"

	"github.com/ancourn/kaldr1-sub003/crypto"
	"github.com/ancourn/kaldr1-sub003/models"
	"github.com/ancourn/kaldr1-sub003/quantum"
)

const testPrime = 2147483647

func proofedTx(clock crypto.Clock, score int) *models.Transaction {
	tx := models.NewTransaction([]byte("sender"), []byte("receiver"), 42, 1, clock.NowSeconds(), nil)
	tx.QuantumProof = quantum.BuildProof(tx, testPrime, score, clock)
	return tx
}

func TestVerifyAcceptsValidProof(t *testing.T) {
	clock := crypto.NewManualClock(1_000_000)
	v := quantum.NewValidator(70, testPrime, 300, clock)

	tx := proofedTx(clock, 90)
	if err := v.Verify(tx); err != nil {
		t.Fatalf("expected valid proof, got %v", err)
	}
}

func TestVerifyRejectsMismatchedHash(t *testing.T) {
	clock := crypto.NewManualClock(1_000_000)
	v := quantum.NewValidator(70, testPrime, 300, clock)

	tx := proofedTx(clock, 90)
	// Tamper with the payload after proof generation.
	tx.Amount++

	err := v.Verify(tx)
	if !errors.Is(err, quantum.ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
}

func TestVerifyRejectsWeakResistance(t *testing.T) {
	clock := crypto.NewManualClock(1_000_000)
	v := quantum.NewValidator(70, testPrime, 300, clock)

	tx := proofedTx(clock, 50)
	err := v.Verify(tx)
	if !errors.Is(err, quantum.ErrWeakResistance) {
		t.Fatalf("expected ErrWeakResistance, got %v", err)
	}
}

func TestVerifyRejectsStaleProof(t *testing.T) {
	clock := crypto.NewManualClock(1_000_000)
	v := quantum.NewValidator(70, testPrime, 300, clock)

	tx := proofedTx(clock, 90)
	clock.Advance(301)

	err := v.Verify(tx)
	if !errors.Is(err, quantum.ErrStaleProof) {
		t.Fatalf("expected ErrStaleProof, got %v", err)
	}

	// A proof from the near future is equally stale.
	clock.Set(1_000_000)
	future := proofedTx(clock, 90)
	clock.Advance(-301)
	if err := v.Verify(future); !errors.Is(err, quantum.ErrStaleProof) {
		t.Fatalf("expected ErrStaleProof for future proof, got %v", err)
	}
}

func TestVerifyWithinSkewWindow(t *testing.T) {
	clock := crypto.NewManualClock(1_000_000)
	v := quantum.NewValidator(70, testPrime, 300, clock)

	tx := proofedTx(clock, 90)
	clock.Advance(300)
	if err := v.Verify(tx); err != nil {
		t.Fatalf("proof at the window edge should verify, got %v", err)
	}
}
