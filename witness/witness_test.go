package witness

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/amaci-witness/config"
	"github.com/vocdoni/amaci-witness/crypto/ecc/bjj"
	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/crypto/hash"
	"github.com/vocdoni/amaci-witness/crypto/hash/digest"
	"github.com/vocdoni/amaci-witness/crypto/hash/poseidon"
	"github.com/vocdoni/amaci-witness/internal/testutil"
	"github.com/vocdoni/amaci-witness/merkletree"
	"github.com/vocdoni/amaci-witness/types"
	"github.com/vocdoni/amaci-witness/vote"
)

var testVotes = []vote.Entry{
	{Option: 0, Value: 11},
	{Option: 1, Value: 113},
	{Option: 3, Value: 7},
}

func testCoordinator(c *qt.C) *bjj.KeyPair {
	kp, err := bjj.NewKeyPair(big.NewInt(config.DefaultCoordinatorSeed))
	c.Assert(err, qt.IsNil)
	return kp
}

func testConfig(c *qt.C) Config {
	h := poseidon.New()
	cfg := DefaultConfig()
	for i := int64(1); i <= 2; i++ {
		leaf, err := UserCommitment(h, big.NewInt(i), big.NewInt(i))
		c.Assert(err, qt.IsNil)
		cfg.UserTreeLeaves = append(cfg.UserTreeLeaves, leaf)
	}
	cfg.CoordinatorPubKey = testCoordinator(c).PublicKey
	return cfg
}

func testCredentials(user int64) Credentials {
	return Credentials{
		PrivateKey:     big.NewInt(user),
		Salt:           big.NewInt(user),
		Votes:          testVotes,
		EncryptionSeed: big.NewInt(config.DefaultEncryptionSeed),
	}
}

func TestAssemble(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)

	w, err := Assemble(cfg, testCredentials(1))
	c.Assert(err, qt.IsNil)

	c.Assert(w.UserIndex.MathBigInt().Int64(), qt.Equals, int64(0))
	c.Assert(w.VoiceCreditPerUser.MathBigInt().Int64(), qt.Equals, int64(1000))
	c.Assert(w.MaxVoteOptions.MathBigInt().Int64(), qt.Equals, int64(4))
	c.Assert(w.UserPrivKey.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(w.UserSalt.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(w.InputHash.IsInField(field.Modulus()), qt.IsTrue)
	c.Assert(w.Message, qt.HasLen, config.MessageLength)

	c.Assert(w.Votes, qt.HasLen, 125)
	expected := map[int]int64{0: 11, 1: 113, 2: 0, 3: 7}
	for i, v := range w.Votes {
		c.Assert(v.MathBigInt().Int64(), qt.Equals, expected[i], qt.Commentf("vote %d", i))
	}

	// the path proves the voter commitment under the user root
	c.Assert(w.UserPathElements, qt.HasLen, cfg.UserTreeDepth)
	path := make([][]*big.Int, len(w.UserPathElements))
	for i, siblings := range w.UserPathElements {
		c.Assert(siblings, qt.HasLen, config.TreeArity-1)
		path[i] = types.MathBigInts(siblings)
	}
	ok, err := merkletree.Verify(poseidon.New(), config.TreeArity, 0, cfg.UserTreeLeaves[0], path, w.UserRoot.MathBigInt())
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	// the ephemeral key pair comes from the encryption seed
	encKey, err := bjj.NewKeyPair(big.NewInt(config.DefaultEncryptionSeed))
	c.Assert(err, qt.IsNil)
	c.Assert(w.EncPrivKey.MathBigInt().Cmp(encKey.FormattedPrivateKey), qt.Equals, 0)
	c.Assert(w.EncPubKey[0].MathBigInt().Cmp(encKey.PublicKey[0]), qt.Equals, 0)
	c.Assert(w.EncPubKey[1].MathBigInt().Cmp(encKey.PublicKey[1]), qt.Equals, 0)
	c.Assert(w.CoordPubKey[0].MathBigInt().Cmp(cfg.CoordinatorPubKey[0]), qt.Equals, 0)

	// the input hash binds the params, the message and the ephemeral key
	params, err := poseidon.Hash(
		w.UserRoot.MathBigInt(),
		cfg.CoordinatorPubKey[0],
		cfg.CoordinatorPubKey[1],
		big.NewInt(1000),
		big.NewInt(4),
	)
	c.Assert(err, qt.IsNil)
	d, err := digest.New()
	c.Assert(err, qt.IsNil)
	inputs := append([]*big.Int{params}, types.MathBigInts(w.Message)...)
	inputs = append(inputs, encKey.PublicKey[0], encKey.PublicKey[1])
	c.Assert(inputs, qt.HasLen, config.InputHashElements)
	inputHash, err := d.Digest(inputs...)
	c.Assert(err, qt.IsNil)
	c.Assert(w.InputHash.MathBigInt().Cmp(inputHash), qt.Equals, 0)
}

func TestAssembleSecondUser(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)
	w, err := Assemble(cfg, testCredentials(2))
	c.Assert(err, qt.IsNil)
	c.Assert(w.UserIndex.MathBigInt().Int64(), qt.Equals, int64(1))

	first, err := Assemble(cfg, testCredentials(1))
	c.Assert(err, qt.IsNil)
	c.Assert(w.UserRoot.Equal(first.UserRoot), qt.IsTrue)
	c.Assert(w.InputHash.Equal(first.InputHash), qt.IsFalse)
}

func TestAssembleDeterministic(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)
	w1, err := Assemble(cfg, testCredentials(1))
	c.Assert(err, qt.IsNil)
	w2, err := Assemble(cfg, testCredentials(1))
	c.Assert(err, qt.IsNil)
	c.Assert(w1, qt.DeepEquals, w2)

	creds := testCredentials(1)
	creds.EncryptionSeed = big.NewInt(4321)
	w3, err := Assemble(cfg, creds)
	c.Assert(err, qt.IsNil)
	c.Assert(w3.InputHash.Equal(w1.InputHash), qt.IsFalse)
	c.Assert(w3.Message[0].Equal(w1.Message[0]), qt.IsFalse)
}

func TestDecryptCommand(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)
	a, err := New(cfg)
	c.Assert(err, qt.IsNil)
	w, err := a.Assemble(testCredentials(1))
	c.Assert(err, qt.IsNil)

	command, err := a.DecryptCommand(w, testCoordinator(c))
	c.Assert(err, qt.IsNil)
	c.Assert(command, qt.HasLen, config.CommandLength)

	packed, err := vote.Pack(poseidon.New(), testVotes, cfg.VoteOptionTreeDepth)
	c.Assert(err, qt.IsNil)
	active, err := poseidon.Hash(big.NewInt(1), config.InactiveSentinelBig())
	c.Assert(err, qt.IsNil)
	c.Assert(command[0].Cmp(packed.Info), qt.Equals, 0)
	c.Assert(command[1].Cmp(packed.Root), qt.Equals, 0)
	c.Assert(command[2].Cmp(active), qt.Equals, 0)

	entries, err := vote.Unpack(command[0], len(testVotes))
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.DeepEquals, testVotes)

	// another key pair cannot read the command
	other, err := bjj.NewKeyPair(big.NewInt(10001))
	c.Assert(err, qt.IsNil)
	_, err = a.DecryptCommand(w, other)
	c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
}

func TestAssembleUserNotFound(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)
	stranger := testCredentials(3)

	_, err := Assemble(cfg, stranger)
	c.Assert(err, qt.ErrorIs, ErrUserNotFound)

	w, err := Assemble(cfg, stranger, WithFallbackIndex(0))
	c.Assert(err, qt.IsNil)
	c.Assert(w.UserIndex.MathBigInt().Int64(), qt.Equals, int64(0))

	_, err = Assemble(cfg, stranger, WithFallbackIndex(5*5*5*5*5))
	c.Assert(err, qt.ErrorIs, merkletree.ErrIndexOutOfRange)
}

func TestAssemblerOwnsConfig(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)
	a, err := New(cfg)
	c.Assert(err, qt.IsNil)
	root := a.UserRoot()
	coordX := new(big.Int).Set(cfg.CoordinatorPubKey[0])

	// reorder and overwrite the caller's roster and key after New
	cfg.UserTreeLeaves[0], cfg.UserTreeLeaves[1] = cfg.UserTreeLeaves[1], cfg.UserTreeLeaves[0]
	cfg.UserTreeLeaves[1].SetInt64(99)
	cfg.CoordinatorPubKey[0].SetInt64(1)

	w, err := a.Assemble(testCredentials(1))
	c.Assert(err, qt.IsNil)
	c.Assert(w.UserIndex.MathBigInt().Int64(), qt.Equals, int64(0))
	c.Assert(w.UserRoot.MathBigInt().Cmp(root), qt.Equals, 0)
	c.Assert(w.CoordPubKey[0].MathBigInt().Cmp(coordX), qt.Equals, 0)

	leaf, err := UserCommitment(poseidon.New(), big.NewInt(1), big.NewInt(1))
	c.Assert(err, qt.IsNil)
	path := make([][]*big.Int, len(w.UserPathElements))
	for i, siblings := range w.UserPathElements {
		path[i] = types.MathBigInts(siblings)
	}
	ok, err := merkletree.Verify(poseidon.New(), config.TreeArity, 0, leaf, path, w.UserRoot.MathBigInt())
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	_, err = a.DecryptCommand(w, testCoordinator(c))
	c.Assert(err, qt.IsNil)
}

func TestFindUserIndex(t *testing.T) {
	c := qt.New(t)
	leaves := []*big.Int{big.NewInt(5), nil, big.NewInt(7), big.NewInt(7)}

	index, ok := FindUserIndex(leaves, big.NewInt(7))
	c.Assert(ok, qt.IsTrue)
	c.Assert(index, qt.Equals, 2)

	_, ok = FindUserIndex(leaves, big.NewInt(6))
	c.Assert(ok, qt.IsFalse)
	_, ok = FindUserIndex(leaves, nil)
	c.Assert(ok, qt.IsFalse)
	_, ok = FindUserIndex(nil, big.NewInt(5))
	c.Assert(ok, qt.IsFalse)
}

func TestAssembleEncryptionFailures(t *testing.T) {
	c := qt.New(t)

	c.Run("coordinator key off curve", func(c *qt.C) {
		cfg := testConfig(c)
		cfg.CoordinatorPubKey = [2]*big.Int{big.NewInt(1), big.NewInt(2)}
		_, err := Assemble(cfg, testCredentials(1))
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
		c.Assert(err, qt.ErrorIs, bjj.ErrInvalidPoint)
	})

	c.Run("invalid encryption seed", func(c *qt.C) {
		creds := testCredentials(1)
		creds.EncryptionSeed = big.NewInt(0)
		_, err := Assemble(testConfig(c), creds)
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
		c.Assert(err, qt.ErrorIs, bjj.ErrInvalidSeed)
	})

	c.Run("cipher error", func(c *qt.C) {
		_, err := Assemble(testConfig(c), testCredentials(1), WithCipher(stubCipher{err: fmt.Errorf("boom")}))
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
	})

	c.Run("ciphertext length", func(c *qt.C) {
		_, err := Assemble(testConfig(c), testCredentials(1), WithCipher(stubCipher{length: 3}))
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
	})
}

func TestAssembleHashFailures(t *testing.T) {
	c := qt.New(t)
	errHash := fmt.Errorf("hash unavailable")

	c.Run("active marker", func(c *qt.C) {
		h := hash.FieldHasherFunc(func(inputs ...*big.Int) (*big.Int, error) {
			if len(inputs) == 2 && inputs[1].Cmp(config.InactiveSentinelBig()) == 0 {
				return nil, errHash
			}
			return poseidon.Hash(inputs...)
		})
		_, err := Assemble(testConfig(c), testCredentials(1), WithHasher(h))
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
		c.Assert(err, qt.ErrorIs, errHash)
	})

	c.Run("params", func(c *qt.C) {
		cfg := testConfig(c)
		h := hash.FieldHasherFunc(func(inputs ...*big.Int) (*big.Int, error) {
			if len(inputs) == 5 && inputs[1].Cmp(cfg.CoordinatorPubKey[0]) == 0 {
				return nil, errHash
			}
			return poseidon.Hash(inputs...)
		})
		_, err := Assemble(cfg, testCredentials(1), WithHasher(h))
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
		c.Assert(err, qt.ErrorIs, errHash)
	})

	c.Run("digester", func(c *qt.C) {
		_, err := Assemble(testConfig(c), testCredentials(1), WithDigester(&recordingDigester{err: errHash}))
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
		c.Assert(err, qt.ErrorIs, errHash)
	})

	c.Run("private key out of field", func(c *qt.C) {
		creds := testCredentials(1)
		creds.PrivateKey = field.Modulus()
		_, err := Assemble(testConfig(c), creds)
		c.Assert(err, qt.ErrorIs, ErrEncryptionFailure)
		c.Assert(err, qt.ErrorIs, field.ErrValueOutOfField)
	})
}

func TestAssemblePropagatesPackerErrors(t *testing.T) {
	c := qt.New(t)
	creds := testCredentials(1)
	creds.Votes = []vote.Entry{{Option: 125, Value: 1}}
	_, err := Assemble(testConfig(c), creds)
	c.Assert(err, qt.ErrorIs, merkletree.ErrIndexOutOfRange)
	c.Assert(err, qt.Not(qt.ErrorIs), ErrEncryptionFailure)

	creds.Votes = []vote.Entry{{Option: 1, Value: 1 << 16}}
	_, err = Assemble(testConfig(c), creds)
	c.Assert(err, qt.ErrorIs, vote.ErrValueOutOfRange)
}

func TestCollaboratorInjection(t *testing.T) {
	c := qt.New(t)
	d := &recordingDigester{}
	cipher := stubCipher{length: config.MessageLength}
	w, err := Assemble(testConfig(c), testCredentials(1), WithDigester(d), WithCipher(cipher),
		WithKeyAgreement(bjj.KeyAgreement{}), WithHasher(poseidon.New()))
	c.Assert(err, qt.IsNil)
	c.Assert(d.inputs, qt.HasLen, config.InputHashElements)
	c.Assert(w.InputHash.MathBigInt().Int64(), qt.Equals, int64(42))
	for _, m := range w.Message {
		c.Assert(m.MathBigInt().Int64(), qt.Equals, int64(9))
	}
}

func TestConfigValidate(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig(c)
	c.Assert(cfg.Validate(), qt.IsNil)

	cfg.UserTreeDepth = 1
	cfg.UserTreeLeaves = make([]*big.Int, 6)
	for i := range cfg.UserTreeLeaves {
		cfg.UserTreeLeaves[i] = big.NewInt(int64(i))
	}
	c.Assert(cfg.Validate(), qt.ErrorIs, merkletree.ErrIndexOutOfRange)

	cfg = testConfig(c)
	cfg.UserTreeLeaves = append(cfg.UserTreeLeaves, field.Modulus())
	c.Assert(cfg.Validate(), qt.ErrorIs, field.ErrValueOutOfField)

	cfg = testConfig(c)
	cfg.VoteOptionTreeDepth = -1
	c.Assert(cfg.Validate(), qt.ErrorIs, merkletree.ErrInvalidParameter)

	cfg = testConfig(c)
	cfg.VoteOptionTreeDepth = 20
	c.Assert(cfg.Validate(), qt.ErrorIs, merkletree.ErrInvalidParameter)
	cfg.VoteOptionTreeDepth = config.MaxVoteOptionTreeDepth
	c.Assert(cfg.Validate(), qt.IsNil)

	cfg = testConfig(c)
	cfg.CoordinatorPubKey = [2]*big.Int{}
	c.Assert(cfg.Validate(), qt.IsNotNil)
	_, err := New(cfg)
	c.Assert(err, qt.IsNotNil)
}

func TestAssembleBatch(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(c)
	a, err := New(cfg)
	c.Assert(err, qt.IsNil)

	creds := []Credentials{testCredentials(2), testCredentials(1), testCredentials(2)}
	witnesses, err := a.AssembleBatch(context.Background(), creds)
	c.Assert(err, qt.IsNil)
	c.Assert(witnesses, qt.HasLen, len(creds))
	for i, cr := range creds {
		single, err := a.Assemble(cr)
		c.Assert(err, qt.IsNil)
		c.Assert(witnesses[i], qt.DeepEquals, single)
	}

	_, err = a.AssembleBatch(context.Background(), append(creds, testCredentials(3)))
	c.Assert(err, qt.ErrorIs, ErrUserNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.AssembleBatch(ctx, creds)
	c.Assert(err, qt.ErrorIs, context.Canceled)
}

func TestAssembleBatchRoster(t *testing.T) {
	c := qt.New(t)
	voters, leaves := testutil.DeterministicVoters(40)
	cfg := DefaultConfig()
	cfg.UserTreeDepth = 3
	cfg.UserTreeLeaves = leaves
	cfg.CoordinatorPubKey = testCoordinator(c).PublicKey
	a, err := New(cfg)
	c.Assert(err, qt.IsNil)

	creds := make([]Credentials, len(voters))
	for i, v := range voters {
		creds[i] = Credentials{
			PrivateKey:     v.PrivateKey,
			Salt:           v.Salt,
			Votes:          testutil.RandomVotes(uint64(i), 5, cfg.VoteOptionTreeDepth),
			EncryptionSeed: big.NewInt(int64(1000 + i)),
		}
	}
	witnesses, err := a.AssembleBatch(context.Background(), creds)
	c.Assert(err, qt.IsNil)
	for i, w := range witnesses {
		c.Assert(w.UserIndex.MathBigInt().Int64(), qt.Equals, int64(i))
		c.Assert(w.UserRoot.MathBigInt().Cmp(a.UserRoot()), qt.Equals, 0)

		command, err := a.DecryptCommand(w, testCoordinator(c))
		c.Assert(err, qt.IsNil)
		entries, err := vote.Unpack(command[0], len(creds[i].Votes))
		c.Assert(err, qt.IsNil)
		c.Assert(entries, qt.DeepEquals, creds[i].Votes)
	}
}

func TestWitnessJSON(t *testing.T) {
	c := qt.New(t)
	w, err := Assemble(testConfig(c), testCredentials(1))
	c.Assert(err, qt.IsNil)

	data, err := json.Marshal(w)
	c.Assert(err, qt.IsNil)
	var raw map[string]any
	c.Assert(json.Unmarshal(data, &raw), qt.IsNil)
	for _, key := range []string{
		"inputHash", "voiceCreditPerUser", "maxVoteOptions", "userRoot",
		"userIndex", "userPathElements", "userPrivKey", "userSalt", "votes",
		"coordPubKey", "message", "encPrivKey", "encPubKey",
	} {
		c.Assert(raw[key], qt.IsNotNil, qt.Commentf("missing %s", key))
	}
	c.Assert(raw, qt.HasLen, 13)
	c.Assert(raw["userIndex"], qt.Equals, "0")
	c.Assert(raw["voiceCreditPerUser"], qt.Equals, "1000")

	var decoded Witness
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(&decoded, qt.DeepEquals, w)
}

type stubCipher struct {
	err    error
	length int
}

func (s stubCipher) Encrypt(_ []*big.Int, _ [2]*big.Int, _ *big.Int) ([]*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*big.Int, s.length)
	for i := range out {
		out[i] = big.NewInt(9)
	}
	return out, nil
}

func (s stubCipher) Decrypt(_ []*big.Int, _ [2]*big.Int, _ *big.Int, _ int) ([]*big.Int, error) {
	return nil, s.err
}

type recordingDigester struct {
	inputs []*big.Int
	err    error
}

func (d *recordingDigester) Digest(inputs ...*big.Int) (*big.Int, error) {
	d.inputs = inputs
	if d.err != nil {
		return nil, d.err
	}
	return big.NewInt(42), nil
}
