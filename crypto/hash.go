package crypto

import (
	"crypto/sha256"
	"math/big"
)

// PrimeHashSize is the byte length of a prime hash.
const PrimeHashSize = 8

// PrimeHash digests the payload and folds it by the configured prime modulus.
// The result is a fixed-width big-endian residue, reproducible by every
// validator that shares the modulus.
func PrimeHash(payload []byte, modulus uint64) []byte {
	digest := sha256.Sum256(payload)
	n := new(big.Int).SetBytes(digest[:])
	n.Mod(n, new(big.Int).SetUint64(modulus))
	return n.FillBytes(make([]byte, PrimeHashSize))
}
