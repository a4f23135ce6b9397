// Package config provides the protocol constants shared by the witness
// producer and the circuit that consumes it. Any change here must be mirrored
// in the circuit, otherwise the generated witnesses will not satisfy it.
package config

import "math/big"

const (
	// FieldModulusDecimal is the BN254 scalar field modulus, the field every
	// hash output, tree node and public digest lives in.
	FieldModulusDecimal = "21888242871839275222246405745257275088548364400416034343698204186575808495617"

	// TreeArity is the branching factor of the user and vote option trees.
	TreeArity = 5

	// InactiveSentinel is hashed together with the voter private key to
	// mark a command as active. Padding commands use a different value.
	InactiveSentinel uint64 = 5282231170384877125

	// CommandNonce is the public nonce used to encrypt every command.
	CommandNonce uint64 = 0

	// CommandLength is the number of field elements of a plaintext command:
	// packed vote info, vote option root and the active marker.
	CommandLength = 3
	// MessageLength is the number of field elements of an encrypted command.
	MessageLength = 4

	// VoteOptionBits and VoteValueBits are the widths of each packed vote
	// entry. A packed entry takes VoteEntryBits bits of the packed info.
	VoteOptionBits = 8
	VoteValueBits  = 16
	VoteEntryBits  = VoteOptionBits + VoteValueBits

	// MaxVoteOptionTreeDepth bounds the vote option tree, whose dense
	// vector of 5^depth weights is allocated in full when packing votes.
	// Options are 8 bits wide, so deeper trees only add unreachable leaves.
	MaxVoteOptionTreeDepth = 8

	// InputHashElements is the number of field elements folded into the
	// public input hash: params, the message and the ephemeral public key.
	InputHashElements = 1 + MessageLength + 2
)

// Defaults of the amaci reference test run.
const (
	DefaultUserTreeDepth       = 5
	DefaultVoteOptionTreeDepth = 3
	DefaultVoiceCreditPerUser  = 1000
	DefaultMaxVoteOptions      = 4
	DefaultCoordinatorSeed     = 10000
	DefaultEncryptionSeed      = 1234
)

// FieldModulus returns a copy of the BN254 scalar field modulus.
func FieldModulus() *big.Int {
	p, _ := new(big.Int).SetString(FieldModulusDecimal, 10)
	return p
}

// InactiveSentinelBig returns InactiveSentinel as a big.Int.
func InactiveSentinelBig() *big.Int {
	return new(big.Int).SetUint64(InactiveSentinel)
}

// CommandNonceBig returns CommandNonce as a big.Int.
func CommandNonceBig() *big.Int {
	return new(big.Int).SetUint64(CommandNonce)
}
