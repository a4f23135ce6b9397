// Package hash defines the two hash capabilities used to build a witness.
//
// FieldHasher is the circuit friendly hash: it compresses tree nodes, derives
// commitments and drives the command encryption. Digester is a general
// purpose hash over the byte serialization of field elements, used for the
// public input hash verified on-chain. The circuit checks both, each with its
// own primitive, so they are kept as separate interfaces with different
// method names and must never be used interchangeably.
package hash

import "math/big"

// FieldHasher hashes a list of field elements into a single field element.
type FieldHasher interface {
	Hash(inputs ...*big.Int) (*big.Int, error)
}

// Digester hashes the fixed-width serialization of a list of field elements
// and returns the result reduced into the field.
type Digester interface {
	Digest(inputs ...*big.Int) (*big.Int, error)
}

// FieldHasherFunc adapts a function to the FieldHasher interface.
type FieldHasherFunc func(inputs ...*big.Int) (*big.Int, error)

// Hash calls f(inputs...).
func (f FieldHasherFunc) Hash(inputs ...*big.Int) (*big.Int, error) {
	return f(inputs...)
}
