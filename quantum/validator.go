package quantum

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ancourn/kaldr1-sub003/crypto"
	"github.com/ancourn/kaldr1-sub003/models"
)

var (
	// ErrInvalidProof means the attached prime hash does not match the payload.
	ErrInvalidProof = errors.New("quantum: invalid proof")
	// ErrStaleProof means the proof timestamp is outside the accepted skew window.
	ErrStaleProof = errors.New("quantum: stale proof")
	// ErrWeakResistance means the resistance score is below the configured level.
	ErrWeakResistance = errors.New("quantum: weak resistance")
)

// DefaultMaxSkewSeconds is the accepted clock-skew window for proof timestamps.
const DefaultMaxSkewSeconds = 300

// Validator checks quantum-resistance proofs against the configured strength
// and freshness thresholds. It has no state beyond its configuration.
type Validator struct {
	resistanceLevel int
	primeModulus    uint64
	maxSkew         int64
	clock           crypto.Clock
}

// NewValidator builds a proof validator. A maxSkew of 0 selects the default
// window.
func NewValidator(resistanceLevel int, primeModulus uint64, maxSkew int64, clock crypto.Clock) *Validator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkewSeconds
	}
	return &Validator{
		resistanceLevel: resistanceLevel,
		primeModulus:    primeModulus,
		maxSkew:         maxSkew,
		clock:           clock,
	}
}

// Verify recomputes the expected prime hash for the transaction payload and
// checks the proof's strength and freshness. It is a pure function of the
// transaction and the current time.
func (v *Validator) Verify(tx *models.Transaction) error {
	expected := crypto.PrimeHash(tx.SigningPayload(), v.primeModulus)
	if !bytes.Equal(expected, tx.QuantumProof.PrimeHash) {
		return fmt.Errorf("%w: prime hash mismatch for %s", ErrInvalidProof, tx.ID)
	}

	if tx.QuantumProof.ResistanceScore < v.resistanceLevel {
		return fmt.Errorf("%w: score %d below required level %d",
			ErrWeakResistance, tx.QuantumProof.ResistanceScore, v.resistanceLevel)
	}

	skew := v.clock.NowSeconds() - tx.QuantumProof.ProofTimestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("%w: proof is %ds outside the %ds window", ErrStaleProof, skew, v.maxSkew)
	}

	return nil
}

// BuildProof generates a proof for the transaction payload using the shared
// prime modulus. Used by submitters and tests; validators only verify.
func BuildProof(tx *models.Transaction, primeModulus uint64, resistanceScore int, clock crypto.Clock) models.QuantumProof {
	return models.QuantumProof{
		PrimeHash:       crypto.PrimeHash(tx.SigningPayload(), primeModulus),
		ResistanceScore: resistanceScore,
		ProofTimestamp:  clock.NowSeconds(),
	}
}
