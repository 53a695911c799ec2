package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MaxParents is the default upper bound on parent references per transaction.
const MaxParents = 2

// IDSize is the byte length of a TransactionID.
const IDSize = sha256.Size

// TransactionID is a fixed-size, content-derived transaction identifier.
type TransactionID [IDSize]byte

// String returns the hex representation of the id.
func (id TransactionID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is the all-zero value.
func (id TransactionID) IsZero() bool {
	return id == TransactionID{}
}

// MarshalText implements encoding.TextMarshaler so ids serialize as hex in JSON.
func (id TransactionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TransactionID) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(decoded) != IDSize {
		return fmt.Errorf("transaction id must be %d bytes, got %d", IDSize, len(decoded))
	}
	copy(id[:], decoded)
	return nil
}

// ParseTransactionID decodes a hex string into a TransactionID.
func ParseTransactionID(s string) (TransactionID, error) {
	var id TransactionID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

// QuantumProof is the quantum-resistance proof attached to every transaction.
type QuantumProof struct {
	PrimeHash       []byte `json:"prime_hash"`       // payload digest folded by the configured prime modulus
	ResistanceScore int    `json:"resistance_score"` // estimated strength, 0-100
	ProofTimestamp  int64  `json:"proof_timestamp"`  // unix seconds at proof generation
}

// Transaction is the ledger's unit of data. Once accepted it is immutable.
type Transaction struct {
	ID           TransactionID   `json:"id"`
	Sender       []byte          `json:"sender"`   // sender public key
	Receiver     []byte          `json:"receiver"` // receiver public key
	Amount       uint64          `json:"amount"`
	Nonce        uint64          `json:"nonce"`
	Timestamp    int64           `json:"timestamp"` // unix seconds
	Parents      []TransactionID `json:"parents"`   // empty only for the genesis transaction
	Signature    []byte          `json:"signature"`
	QuantumProof QuantumProof    `json:"quantum_proof"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// NewTransaction builds an unsigned transaction and assigns its content-derived id.
func NewTransaction(sender, receiver []byte, amount, nonce uint64, timestamp int64, parents []TransactionID) *Transaction {
	tx := &Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Nonce:     nonce,
		Timestamp: timestamp,
		Parents:   parents,
	}
	tx.ID = tx.ComputeID()
	return tx
}

// SigningPayload returns the canonical byte encoding covered by the signature,
// the quantum proof and the transaction id. Signature, proof and metadata are
// excluded so the encoding is stable before signing.
func (t *Transaction) SigningPayload() []byte {
	buf := make([]byte, 0, 8*4+len(t.Sender)+len(t.Receiver)+len(t.Parents)*IDSize)
	buf = appendBytes(buf, t.Sender)
	buf = appendBytes(buf, t.Receiver)
	buf = binary.BigEndian.AppendUint64(buf, t.Amount)
	buf = binary.BigEndian.AppendUint64(buf, t.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Timestamp))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(t.Parents)))
	for _, p := range t.Parents {
		buf = append(buf, p[:]...)
	}
	return buf
}

// ComputeID derives the transaction id from the signing payload.
func (t *Transaction) ComputeID() TransactionID {
	return sha256.Sum256(t.SigningPayload())
}

// IsGenesis reports whether the transaction has no parent references.
func (t *Transaction) IsGenesis() bool {
	return len(t.Parents) == 0
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(b)))
	return append(buf, b...)
}
