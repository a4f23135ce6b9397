package witness

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/amaci-witness/config"
	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/merkletree"
	"github.com/vocdoni/amaci-witness/types"
	"github.com/vocdoni/amaci-witness/vote"
)

// Config holds the public parameters of an election shared by every voter.
type Config struct {
	UserTreeDepth       int
	VoteOptionTreeDepth int
	VoiceCreditPerUser  uint64
	MaxVoteOptions      uint64
	// UserTreeLeaves are the commitments of the registered voters, in the
	// order they are placed in the user tree.
	UserTreeLeaves []*big.Int
	// CoordinatorPubKey is the public key the commands are encrypted for.
	CoordinatorPubKey [2]*big.Int
}

// DefaultConfig returns a Config with the default tree depths and limits and
// no roster nor coordinator key.
func DefaultConfig() Config {
	return Config{
		UserTreeDepth:       config.DefaultUserTreeDepth,
		VoteOptionTreeDepth: config.DefaultVoteOptionTreeDepth,
		VoiceCreditPerUser:  config.DefaultVoiceCreditPerUser,
		MaxVoteOptions:      config.DefaultMaxVoteOptions,
	}
}

// Validate checks the shape of the trees and that the roster fits in the
// user tree. The coordinator key is only checked for presence, its validity
// as a curve point is up to the key agreement.
func (c *Config) Validate() error {
	capacity, err := merkletree.Capacity(config.TreeArity, c.UserTreeDepth)
	if err != nil {
		return fmt.Errorf("user tree depth %d: %w", c.UserTreeDepth, err)
	}
	if _, err := merkletree.Capacity(config.TreeArity, c.VoteOptionTreeDepth); err != nil {
		return fmt.Errorf("vote option tree depth %d: %w", c.VoteOptionTreeDepth, err)
	}
	if c.VoteOptionTreeDepth > config.MaxVoteOptionTreeDepth {
		return fmt.Errorf("%w: vote option tree depth %d > %d",
			merkletree.ErrInvalidParameter, c.VoteOptionTreeDepth, config.MaxVoteOptionTreeDepth)
	}
	if uint64(len(c.UserTreeLeaves)) > capacity {
		return fmt.Errorf("%w: %d users do not fit in a tree of %d leaves",
			merkletree.ErrIndexOutOfRange, len(c.UserTreeLeaves), capacity)
	}
	if err := field.CheckAll(c.UserTreeLeaves...); err != nil {
		return fmt.Errorf("user tree leaves: %w", err)
	}
	if c.CoordinatorPubKey[0] == nil || c.CoordinatorPubKey[1] == nil {
		return fmt.Errorf("missing coordinator public key")
	}
	return nil
}

// clone returns a copy of c that shares no big.Int with it.
func (c *Config) clone() Config {
	out := *c
	out.UserTreeLeaves = make([]*big.Int, len(c.UserTreeLeaves))
	for i, leaf := range c.UserTreeLeaves {
		out.UserTreeLeaves[i] = new(big.Int).Set(leaf)
	}
	for i, coord := range c.CoordinatorPubKey {
		out.CoordinatorPubKey[i] = new(big.Int).Set(coord)
	}
	return out
}

// Credentials are the private inputs of a single voter.
type Credentials struct {
	PrivateKey *big.Int
	Salt       *big.Int
	Votes      []vote.Entry
	// EncryptionSeed derives the ephemeral key pair used to encrypt the
	// command for the coordinator.
	EncryptionSeed *big.Int
}

// Witness is the input of the vote circuit. Its JSON encoding is the circom
// input file, every number encoded as a decimal string.
type Witness struct {
	InputHash          *types.BigInt     `json:"inputHash"`
	VoiceCreditPerUser *types.BigInt     `json:"voiceCreditPerUser"`
	MaxVoteOptions     *types.BigInt     `json:"maxVoteOptions"`
	UserRoot           *types.BigInt     `json:"userRoot"`
	UserIndex          *types.BigInt     `json:"userIndex"`
	UserPathElements   [][]*types.BigInt `json:"userPathElements"`
	UserPrivKey        *types.BigInt     `json:"userPrivKey"`
	UserSalt           *types.BigInt     `json:"userSalt"`
	Votes              []*types.BigInt   `json:"votes"`
	CoordPubKey        [2]*types.BigInt  `json:"coordPubKey"`
	Message            []*types.BigInt   `json:"message"`
	EncPrivKey         *types.BigInt     `json:"encPrivKey"`
	EncPubKey          [2]*types.BigInt  `json:"encPubKey"`
}
