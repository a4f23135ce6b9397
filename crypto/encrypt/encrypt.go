// Package encrypt implements the symmetric encryption of vote commands: a
// Poseidon duplex sponge keyed with an ECDH shared key (circomlib's
// poseidonEncrypt). A message of n field elements is padded to a multiple of
// three and produces a ciphertext of CiphertextLength(n) elements, the last
// one being an authentication tag.
package encrypt

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/crypto/hash/poseidon"
)

const (
	// rate is the number of message elements absorbed per permutation.
	rate = 3
	// nonceBits is the bit width of the nonce, the message length is
	// placed right above it in the domain element.
	nonceBits = 128
)

var (
	// ErrInvalidNonce is returned when the nonce is negative or does not fit
	// in 128 bits.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrDecryption is returned when a ciphertext does not authenticate
	// under the key and nonce provided.
	ErrDecryption = errors.New("decryption failed")
)

// CiphertextLength returns the number of elements of the ciphertext of a
// message of n elements.
func CiphertextLength(n int) int {
	return paddedLength(n) + 1
}

func paddedLength(n int) int {
	return (n + rate - 1) / rate * rate
}

// Encrypt encrypts the message under the shared key and nonce.
func Encrypt(msg []*big.Int, key [2]*big.Int, nonce *big.Int) ([]*big.Int, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	if err := field.CheckAll(msg...); err != nil {
		return nil, fmt.Errorf("message: %w", err)
	}
	state, err := initialState(key, nonce, len(msg))
	if err != nil {
		return nil, err
	}
	padded := make([]*big.Int, paddedLength(len(msg)))
	for i := range padded {
		if i < len(msg) {
			padded[i] = msg[i]
		} else {
			padded[i] = big.NewInt(0)
		}
	}

	ciphertext := make([]*big.Int, 0, CiphertextLength(len(msg)))
	for i := 0; i < len(padded); i += rate {
		if state, err = poseidon.Permute(state); err != nil {
			return nil, fmt.Errorf("permute: %w", err)
		}
		for j := range rate {
			state[j+1] = field.Add(state[j+1], padded[i+j])
			ciphertext = append(ciphertext, new(big.Int).Set(state[j+1]))
		}
	}
	if state, err = poseidon.Permute(state); err != nil {
		return nil, fmt.Errorf("permute: %w", err)
	}
	return append(ciphertext, state[1]), nil
}

// Decrypt recovers a message of length elements from the ciphertext. It
// fails with ErrDecryption if the authentication tag or the padding do not
// match.
func Decrypt(ciphertext []*big.Int, key [2]*big.Int, nonce *big.Int, length int) ([]*big.Int, error) {
	if length <= 0 {
		return nil, fmt.Errorf("invalid message length %d", length)
	}
	if len(ciphertext) != CiphertextLength(length) {
		return nil, fmt.Errorf("%w: ciphertext has %d elements, expected %d",
			ErrDecryption, len(ciphertext), CiphertextLength(length))
	}
	if err := field.CheckAll(ciphertext...); err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}
	state, err := initialState(key, nonce, length)
	if err != nil {
		return nil, err
	}

	padded := make([]*big.Int, 0, paddedLength(length))
	for i := 0; i < paddedLength(length); i += rate {
		if state, err = poseidon.Permute(state); err != nil {
			return nil, fmt.Errorf("permute: %w", err)
		}
		for j := range rate {
			padded = append(padded, field.Sub(ciphertext[i+j], state[j+1]))
			state[j+1] = new(big.Int).Set(ciphertext[i+j])
		}
	}
	if state, err = poseidon.Permute(state); err != nil {
		return nil, fmt.Errorf("permute: %w", err)
	}
	if state[1].Cmp(ciphertext[len(ciphertext)-1]) != 0 {
		return nil, fmt.Errorf("%w: invalid authentication tag", ErrDecryption)
	}
	for _, p := range padded[length:] {
		if p.Sign() != 0 {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return padded[:length], nil
}

// initialState returns [0, key[0], key[1], nonce + length * 2^128].
func initialState(key [2]*big.Int, nonce *big.Int, length int) ([]*big.Int, error) {
	if nonce == nil || nonce.Sign() < 0 || nonce.BitLen() > nonceBits {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNonce, nonce)
	}
	if err := field.CheckAll(key[0], key[1]); err != nil {
		return nil, fmt.Errorf("shared key: %w", err)
	}
	domain := new(big.Int).Lsh(big.NewInt(int64(length)), nonceBits)
	domain.Add(domain, nonce)
	return []*big.Int{
		big.NewInt(0),
		new(big.Int).Set(key[0]),
		new(big.Int).Set(key[1]),
		domain,
	}, nil
}

// PoseidonCipher is the Poseidon duplex implementation of the symmetric
// encryption collaborator used by the witness assembler.
type PoseidonCipher struct{}

// Encrypt calls Encrypt.
func (PoseidonCipher) Encrypt(msg []*big.Int, key [2]*big.Int, nonce *big.Int) ([]*big.Int, error) {
	return Encrypt(msg, key, nonce)
}

// Decrypt calls Decrypt.
func (PoseidonCipher) Decrypt(ciphertext []*big.Int, key [2]*big.Int, nonce *big.Int, length int) ([]*big.Int, error) {
	return Decrypt(ciphertext, key, nonce, length)
}
