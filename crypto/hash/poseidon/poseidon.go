// Package poseidon implements the circuit friendly hash used by the witness
// builder on top of the iden3 Poseidon implementation over BN254, the same
// parameters used by circomlib.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/crypto/hash"
)

// MaxInputs is the maximum number of inputs supported by a single Poseidon
// call (state width 17).
const MaxInputs = 16

// Hasher is the Poseidon implementation of hash.FieldHasher.
type Hasher struct{}

var _ hash.FieldHasher = Hasher{}

// New returns a Poseidon hasher.
func New() Hasher {
	return Hasher{}
}

// Hash computes the Poseidon hash of 1 to MaxInputs field elements.
func (Hasher) Hash(inputs ...*big.Int) (*big.Int, error) {
	return Hash(inputs...)
}

// Hash computes the Poseidon hash of 1 to MaxInputs field elements.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) > MaxInputs {
		return nil, fmt.Errorf("too many inputs: %d > %d", len(inputs), MaxInputs)
	}
	if err := field.CheckAll(inputs...); err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return poseidon.Hash(inputs)
}

// Permute applies the Poseidon permutation to the full state and returns the
// resulting state. The first element is the capacity (initial state) and the
// rest are the rate elements, the layout circomlib's poseidonPerm expects.
func Permute(state []*big.Int) ([]*big.Int, error) {
	if len(state) < 2 || len(state) > MaxInputs+1 {
		return nil, fmt.Errorf("invalid poseidon state width %d", len(state))
	}
	if err := field.CheckAll(state...); err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return poseidon.HashWithStateEx(state[1:], state[0], len(state))
}
