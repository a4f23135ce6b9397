// Package bjj implements the BabyJubJub key pairs and the ECDH key agreement
// used to encrypt vote commands, wrapping the iden3 implementation. Private
// keys are field elements; the scalar used on the curve is derived from them
// the same way EdDSA BabyJubJub keys are (blake512, pruned and shifted).
package bjj

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/vocdoni/amaci-witness/crypto/field"
)

var (
	// ErrInvalidSeed is returned when a private key seed is zero, negative
	// or out of the field.
	ErrInvalidSeed = errors.New("invalid private key seed")
	// ErrInvalidPoint is returned when a public key is not a point of the
	// BabyJubJub prime order subgroup.
	ErrInvalidPoint = errors.New("invalid babyjubjub point")
)

// KeyPair holds a private key, its formatted curve scalar and the public key.
type KeyPair struct {
	// PrivateKey is the raw private key (the seed).
	PrivateKey *big.Int
	// FormattedPrivateKey is the scalar multiplied by the base point, the
	// value the circuit receives as private key.
	FormattedPrivateKey *big.Int
	// PublicKey holds the affine coordinates of the public point.
	PublicKey [2]*big.Int
}

// NewKeyPair derives a key pair from the provided seed. The seed is encoded
// as a 32 bytes big-endian BabyJubJub private key.
func NewKeyPair(seed *big.Int) (*KeyPair, error) {
	if seed == nil || seed.Sign() <= 0 || !field.IsInField(seed) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, seed)
	}
	var sk babyjub.PrivateKey
	copy(sk[:], field.Bytes32(seed))
	pub := sk.Public().Point()
	return &KeyPair{
		PrivateKey:          new(big.Int).Set(seed),
		FormattedPrivateKey: babyjub.SkToBigInt(&sk),
		PublicKey:           [2]*big.Int{new(big.Int).Set(pub.X), new(big.Int).Set(pub.Y)},
	}, nil
}

// SharedKey returns the ECDH shared key between the key pair and the peer
// public key: peer * FormattedPrivateKey. Both parties obtain the same point.
func (kp *KeyPair) SharedKey(peer [2]*big.Int) ([2]*big.Int, error) {
	if kp == nil || kp.FormattedPrivateKey == nil {
		return [2]*big.Int{}, fmt.Errorf("%w: empty key pair", ErrInvalidSeed)
	}
	p, err := PointFromCoords(peer)
	if err != nil {
		return [2]*big.Int{}, err
	}
	shared := babyjub.NewPoint().Mul(kp.FormattedPrivateKey, p)
	return [2]*big.Int{shared.X, shared.Y}, nil
}

// PointFromCoords builds a BabyJubJub point from its affine coordinates,
// checking that it belongs to the prime order subgroup.
func PointFromCoords(coords [2]*big.Int) (*babyjub.Point, error) {
	if coords[0] == nil || coords[1] == nil {
		return nil, fmt.Errorf("%w: missing coordinates", ErrInvalidPoint)
	}
	if !field.IsInField(coords[0]) || !field.IsInField(coords[1]) {
		return nil, fmt.Errorf("%w: coordinates out of field", ErrInvalidPoint)
	}
	p := &babyjub.Point{
		X: new(big.Int).Set(coords[0]),
		Y: new(big.Int).Set(coords[1]),
	}
	if !p.InCurve() {
		return nil, fmt.Errorf("%w: not in curve", ErrInvalidPoint)
	}
	if !p.InSubGroup() {
		return nil, fmt.Errorf("%w: not in subgroup", ErrInvalidPoint)
	}
	return p, nil
}

// KeyAgreement is the BabyJubJub implementation of the key derivation and
// ECDH collaborator used by the witness assembler.
type KeyAgreement struct{}

// DeriveKeyPair calls NewKeyPair.
func (KeyAgreement) DeriveKeyPair(seed *big.Int) (*KeyPair, error) {
	return NewKeyPair(seed)
}

// SharedKey calls kp.SharedKey.
func (KeyAgreement) SharedKey(kp *KeyPair, peer [2]*big.Int) ([2]*big.Int, error) {
	return kp.SharedKey(peer)
}
