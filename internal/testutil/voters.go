// Package testutil provides deterministic voters and ballots shared by the
// tests of several packages.
package testutil

import (
	"math/big"
	"math/rand/v2"

	"github.com/vocdoni/amaci-witness/crypto/hash/poseidon"
	"github.com/vocdoni/amaci-witness/vote"
)

// Voter holds the secrets of a registered test voter and its commitment.
type Voter struct {
	PrivateKey *big.Int
	Salt       *big.Int
	Commitment *big.Int
}

// DeterministicVoter returns the n-th test voter: private key n+1 and salt
// n+1, so voter 0 and 1 match the users of the reference run.
func DeterministicVoter(n uint64) Voter {
	sk := new(big.Int).SetUint64(n + 1)
	salt := new(big.Int).SetUint64(n + 1)
	commitment, err := poseidon.Hash(sk, salt)
	if err != nil {
		panic(err)
	}
	return Voter{PrivateKey: sk, Salt: salt, Commitment: commitment}
}

// DeterministicVoters returns the first n test voters and their commitments
// in roster order.
func DeterministicVoters(n int) ([]Voter, []*big.Int) {
	voters := make([]Voter, n)
	leaves := make([]*big.Int, n)
	for i := range voters {
		voters[i] = DeterministicVoter(uint64(i))
		leaves[i] = voters[i].Commitment
	}
	return voters, leaves
}

// RandomVotes returns n entries with options lower than 5^depth (and 256)
// and values of up to 16 bits, generated from seed.
func RandomVotes(seed uint64, n, depth int) []vote.Entry {
	options := uint64(1)
	for range depth {
		options *= 5
	}
	options = min(options, 256)
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	entries := make([]vote.Entry, n)
	for i := range entries {
		entries[i] = vote.Entry{
			Option: rng.Uint64N(options),
			Value:  rng.Uint64N(1 << 16),
		}
	}
	return entries
}
