// Package witness assembles the private and public inputs of the anonymous
// vote circuit for a voter: the membership proof in the user tree, the
// packed votes, the command encrypted for the coordinator and the public
// input hash binding them.
package witness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/vocdoni/amaci-witness/config"
	"github.com/vocdoni/amaci-witness/crypto/ecc/bjj"
	"github.com/vocdoni/amaci-witness/crypto/encrypt"
	"github.com/vocdoni/amaci-witness/crypto/hash"
	"github.com/vocdoni/amaci-witness/crypto/hash/digest"
	"github.com/vocdoni/amaci-witness/crypto/hash/poseidon"
	"github.com/vocdoni/amaci-witness/log"
	"github.com/vocdoni/amaci-witness/merkletree"
	"github.com/vocdoni/amaci-witness/types"
	"github.com/vocdoni/amaci-witness/vote"
)

var (
	// ErrEncryptionFailure wraps any failure of the external collaborators
	// (key agreement, cipher, hasher and digester) while building a witness.
	// Vote packing and user tree errors are returned unwrapped.
	ErrEncryptionFailure = errors.New("encryption failure")
	// ErrUserNotFound is returned when the commitment of the voter is not
	// part of the roster and no fallback index was configured.
	ErrUserNotFound = errors.New("user not found in roster")
)

// KeyAgreement derives key pairs from seeds and the ECDH shared key between
// a key pair and a peer public key.
type KeyAgreement interface {
	DeriveKeyPair(seed *big.Int) (*bjj.KeyPair, error)
	SharedKey(kp *bjj.KeyPair, peer [2]*big.Int) ([2]*big.Int, error)
}

// Cipher encrypts and decrypts field element messages under a shared key.
type Cipher interface {
	Encrypt(msg []*big.Int, key [2]*big.Int, nonce *big.Int) ([]*big.Int, error)
	Decrypt(ciphertext []*big.Int, key [2]*big.Int, nonce *big.Int, length int) ([]*big.Int, error)
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithHasher replaces the Poseidon hasher used for trees, commitments and the
// command encryption inputs.
func WithHasher(h hash.FieldHasher) Option {
	return func(a *Assembler) { a.hasher = h }
}

// WithDigester replaces the digester used for the public input hash.
func WithDigester(d hash.Digester) Option {
	return func(a *Assembler) { a.digester = d }
}

// WithKeyAgreement replaces the BabyJubJub key agreement.
func WithKeyAgreement(k KeyAgreement) Option {
	return func(a *Assembler) { a.keys = k }
}

// WithCipher replaces the Poseidon cipher used to encrypt the command.
func WithCipher(c Cipher) Option {
	return func(a *Assembler) { a.cipher = c }
}

// WithFallbackIndex makes Assemble use index instead of failing with
// ErrUserNotFound when the voter commitment is not in the roster. The
// resulting witness does not satisfy the circuit.
func WithFallbackIndex(index uint64) Option {
	return func(a *Assembler) { a.fallback = &index }
}

// Assembler builds witnesses for the voters of a single election. The user
// tree is built once on creation and only read afterwards, so an Assembler
// is safe for concurrent use.
type Assembler struct {
	cfg      Config
	hasher   hash.FieldHasher
	digester hash.Digester
	keys     KeyAgreement
	cipher   Cipher
	fallback *uint64
	userTree *merkletree.Tree
}

// New validates the configuration, applies the options and builds the user
// tree with the roster. The Assembler keeps its own copy of cfg, later
// changes to the caller's roster or coordinator key do not affect it.
func New(cfg Config, opts ...Option) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &Assembler{
		cfg:    cfg.clone(),
		keys:   bjj.KeyAgreement{},
		cipher: encrypt.PoseidonCipher{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.hasher == nil {
		cached, err := hash.NewCachedHasher(poseidon.New(), hash.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		a.hasher = cached
	}
	if a.digester == nil {
		d, err := digest.New()
		if err != nil {
			return nil, err
		}
		a.digester = d
	}

	tree, err := merkletree.New(a.hasher, config.TreeArity, cfg.UserTreeDepth, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("create user tree: %w", err)
	}
	if err := tree.UpdateLeaves(0, a.cfg.UserTreeLeaves); err != nil {
		return nil, fmt.Errorf("add users: %w", err)
	}
	a.userTree = tree
	log.Debugw("user tree built",
		"users", len(cfg.UserTreeLeaves),
		"depth", cfg.UserTreeDepth,
		"root", tree.Root().String())
	return a, nil
}

// UserRoot returns the root of the user tree.
func (a *Assembler) UserRoot() *big.Int {
	return a.userTree.Root()
}

// Assemble builds the witness of the voter with the provided credentials.
// It is a pure function of the configuration and the credentials.
func (a *Assembler) Assemble(creds Credentials) (*Witness, error) {
	commitment, err := UserCommitment(a.hasher, creds.PrivateKey, creds.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: user commitment: %w", ErrEncryptionFailure, err)
	}
	index, err := a.userIndex(commitment)
	if err != nil {
		return nil, err
	}
	path, err := a.userTree.PathElementOf(index)
	if err != nil {
		return nil, fmt.Errorf("user path: %w", err)
	}
	userRoot := a.userTree.Root()

	encKey, err := a.keys.DeriveKeyPair(creds.EncryptionSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: derive encryption key: %w", ErrEncryptionFailure, err)
	}
	sharedKey, err := a.keys.SharedKey(encKey, a.cfg.CoordinatorPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: shared key: %w", ErrEncryptionFailure, err)
	}

	params, err := a.hasher.Hash(
		userRoot,
		a.cfg.CoordinatorPubKey[0],
		a.cfg.CoordinatorPubKey[1],
		new(big.Int).SetUint64(a.cfg.VoiceCreditPerUser),
		new(big.Int).SetUint64(a.cfg.MaxVoteOptions),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: params hash: %w", ErrEncryptionFailure, err)
	}

	packed, err := vote.Pack(a.hasher, creds.Votes, a.cfg.VoteOptionTreeDepth)
	if err != nil {
		return nil, fmt.Errorf("pack votes: %w", err)
	}
	active, err := a.hasher.Hash(creds.PrivateKey, config.InactiveSentinelBig())
	if err != nil {
		return nil, fmt.Errorf("%w: active marker: %w", ErrEncryptionFailure, err)
	}
	command := []*big.Int{packed.Info, packed.Root, active}
	message, err := a.cipher.Encrypt(command, sharedKey, config.CommandNonceBig())
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt command: %w", ErrEncryptionFailure, err)
	}
	if len(message) != config.MessageLength {
		return nil, fmt.Errorf("%w: ciphertext has %d elements, expected %d",
			ErrEncryptionFailure, len(message), config.MessageLength)
	}

	inputs := make([]*big.Int, 0, config.InputHashElements)
	inputs = append(inputs, params)
	inputs = append(inputs, message...)
	inputs = append(inputs, encKey.PublicKey[0], encKey.PublicKey[1])
	inputHash, err := a.digester.Digest(inputs...)
	if err != nil {
		return nil, fmt.Errorf("%w: input hash: %w", ErrEncryptionFailure, err)
	}

	userPath := make([][]*types.BigInt, len(path))
	for i, siblings := range path {
		userPath[i] = types.BigInts(siblings)
	}
	w := &Witness{
		InputHash:          types.NewBigInt(inputHash),
		VoiceCreditPerUser: types.NewBigInt(new(big.Int).SetUint64(a.cfg.VoiceCreditPerUser)),
		MaxVoteOptions:     types.NewBigInt(new(big.Int).SetUint64(a.cfg.MaxVoteOptions)),
		UserRoot:           types.NewBigInt(userRoot),
		UserIndex:          types.NewBigInt(new(big.Int).SetUint64(index)),
		UserPathElements:   userPath,
		UserPrivKey:        types.NewBigInt(creds.PrivateKey),
		UserSalt:           types.NewBigInt(creds.Salt),
		Votes:              types.BigInts(packed.Votes),
		CoordPubKey: [2]*types.BigInt{
			types.NewBigInt(a.cfg.CoordinatorPubKey[0]),
			types.NewBigInt(a.cfg.CoordinatorPubKey[1]),
		},
		Message:    types.BigInts(message),
		EncPrivKey: types.NewBigInt(encKey.FormattedPrivateKey),
		EncPubKey: [2]*types.BigInt{
			types.NewBigInt(encKey.PublicKey[0]),
			types.NewBigInt(encKey.PublicKey[1]),
		},
	}
	log.Debugw("witness assembled",
		"userIndex", index,
		"votes", len(creds.Votes),
		"inputHash", inputHash.String())
	return w, nil
}

// AssembleBatch builds the witnesses of several voters in parallel, bounded
// by GOMAXPROCS. The witnesses are returned in the order of creds. The first
// failure cancels the remaining jobs and is returned.
func (a *Assembler) AssembleBatch(ctx context.Context, creds []Credentials) ([]*Witness, error) {
	witnesses := make([]*Witness, len(creds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range creds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w, err := a.Assemble(creds[i])
			if err != nil {
				return fmt.Errorf("voter %d: %w", i, err)
			}
			witnesses[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Infow("witness batch assembled", "count", len(witnesses))
	return witnesses, nil
}

// Assemble builds the user tree for cfg and the witness of a single voter.
func Assemble(cfg Config, creds Credentials, opts ...Option) (*Witness, error) {
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return a.Assemble(creds)
}

func (a *Assembler) userIndex(commitment *big.Int) (uint64, error) {
	if index, ok := FindUserIndex(a.cfg.UserTreeLeaves, commitment); ok {
		log.Debugw("user found in roster", "index", index)
		return uint64(index), nil
	}
	if a.fallback == nil {
		return 0, fmt.Errorf("%w: commitment %s", ErrUserNotFound, commitment.String())
	}
	log.Warnw("user not found in roster, using fallback index",
		"commitment", commitment.String(),
		"index", *a.fallback)
	return *a.fallback, nil
}
