// Package digest implements the non-circuit hash of the public inputs: the
// SHA-256 of the Solidity ABI encoding of a uint256 array, which is what
// sha256(abi.encodePacked(uint256, ...)) returns on-chain, reduced into the
// BN254 scalar field so it can be used as a single public circuit input.
package digest

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/crypto/hash"
)

// SolidityPackedSHA256 is the hash.Digester used for the public input hash.
type SolidityPackedSHA256 struct {
	uint256Type abi.Type
}

var _ hash.Digester = (*SolidityPackedSHA256)(nil)

// New returns a new SolidityPackedSHA256 digester.
func New() (*SolidityPackedSHA256, error) {
	t, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, fmt.Errorf("create uint256 abi type: %w", err)
	}
	return &SolidityPackedSHA256{uint256Type: t}, nil
}

// Encode returns the ABI encoding of the inputs as uint256 words. Every
// input is encoded as a 32 bytes big-endian word, so the result matches
// abi.encodePacked for uint256 values.
func (d *SolidityPackedSHA256) Encode(inputs ...*big.Int) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if err := field.CheckAll(inputs...); err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	args := make(abi.Arguments, len(inputs))
	values := make([]any, len(inputs))
	for i, in := range inputs {
		args[i] = abi.Argument{Type: d.uint256Type}
		values[i] = in
	}
	return args.Pack(values...)
}

// Digest returns sha256(Encode(inputs...)) mod p.
func (d *SolidityPackedSHA256) Digest(inputs ...*big.Int) (*big.Int, error) {
	packed, err := d.Encode(inputs...)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(packed)
	return field.Reduce(new(big.Int).SetBytes(sum[:])), nil
}
