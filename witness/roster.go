package witness

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/amaci-witness/config"
	"github.com/vocdoni/amaci-witness/crypto/ecc/bjj"
	"github.com/vocdoni/amaci-witness/crypto/hash"
	"github.com/vocdoni/amaci-witness/types"
)

// UserCommitment returns H(privateKey, salt), the leaf of a voter in the
// user tree.
func UserCommitment(hasher hash.FieldHasher, privateKey, salt *big.Int) (*big.Int, error) {
	if privateKey == nil || salt == nil {
		return nil, fmt.Errorf("missing private key or salt")
	}
	return hasher.Hash(privateKey, salt)
}

// FindUserIndex returns the position of the first leaf equal to commitment.
// The second value is false if no leaf matches.
func FindUserIndex(leaves []*big.Int, commitment *big.Int) (int, bool) {
	if commitment == nil {
		return 0, false
	}
	for i, leaf := range leaves {
		if leaf != nil && leaf.Cmp(commitment) == 0 {
			return i, true
		}
	}
	return 0, false
}

// DecryptCommand recovers the plaintext command of a witness with the
// coordinator key pair: packed vote info, vote option root and active
// marker.
func (a *Assembler) DecryptCommand(w *Witness, coordinator *bjj.KeyPair) ([]*big.Int, error) {
	if w == nil {
		return nil, fmt.Errorf("nil witness")
	}
	sharedKey, err := a.keys.SharedKey(coordinator, [2]*big.Int{
		w.EncPubKey[0].MathBigInt(),
		w.EncPubKey[1].MathBigInt(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: shared key: %w", ErrEncryptionFailure, err)
	}
	command, err := a.cipher.Decrypt(types.MathBigInts(w.Message), sharedKey, config.CommandNonceBig(), config.CommandLength)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt command: %w", ErrEncryptionFailure, err)
	}
	return command, nil
}
