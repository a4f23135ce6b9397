// Package field provides the helpers to represent values as elements of the
// BN254 scalar field, the field used by the circuits that consume the
// generated witnesses.
package field

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// SerializedFieldSize is the size in bytes of a serialized field element.
const SerializedFieldSize = 32

// ErrValueOutOfField is returned when a value is negative or not lower than
// the field modulus.
var ErrValueOutOfField = errors.New("value out of field")

var modulus = fr.Modulus()

// Modulus returns a copy of the field modulus.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

// IsInField returns true if x is a canonical field element, that is, it is
// not nil, not negative and lower than the modulus.
func IsInField(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(modulus) < 0
}

// Check returns an error wrapping ErrValueOutOfField if x is not a canonical
// field element.
func Check(x *big.Int) error {
	if x == nil {
		return fmt.Errorf("%w: nil value", ErrValueOutOfField)
	}
	if !IsInField(x) {
		return fmt.Errorf("%w: %s", ErrValueOutOfField, x.String())
	}
	return nil
}

// CheckAll runs Check over every value provided.
func CheckAll(xs ...*big.Int) error {
	for i, x := range xs {
		if err := Check(x); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// Reduce returns the field representation of x, using the Euclidean modulus
// so negative values are mapped into the field too. x is never modified.
func Reduce(x *big.Int) *big.Int {
	if IsInField(x) {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Mod(x, modulus)
}

// Bytes32 returns the big-endian representation of x, left padded with
// zeros up to SerializedFieldSize bytes. If x does not fit, only the last
// SerializedFieldSize bytes are returned.
func Bytes32(x *big.Int) []byte {
	b := x.Bytes()
	if len(b) > SerializedFieldSize {
		return b[len(b)-SerializedFieldSize:]
	}
	out := make([]byte, SerializedFieldSize)
	copy(out[SerializedFieldSize-len(b):], b)
	return out
}

// Element converts x into a gnark-crypto field element, reducing it first.
func Element(x *big.Int) fr.Element {
	var e fr.Element
	e.SetBigInt(x)
	return e
}

// FromElement converts a gnark-crypto field element into a big.Int.
func FromElement(e *fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// FromUint64 returns x as a big.Int.
func FromUint64(x uint64) *big.Int {
	return new(big.Int).SetUint64(x)
}

// Add returns (a + b) mod p.
func Add(a, b *big.Int) *big.Int {
	ea, eb := Element(a), Element(b)
	ea.Add(&ea, &eb)
	return FromElement(&ea)
}

// Sub returns (a - b) mod p.
func Sub(a, b *big.Int) *big.Int {
	ea, eb := Element(a), Element(b)
	ea.Sub(&ea, &eb)
	return FromElement(&ea)
}
