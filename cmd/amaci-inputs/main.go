// Command amaci-inputs builds the input file of the anonymous vote circuit
// for a single voter.
package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/amaci-witness/crypto/ecc/bjj"
	"github.com/vocdoni/amaci-witness/crypto/hash/poseidon"
	"github.com/vocdoni/amaci-witness/log"
	"github.com/vocdoni/amaci-witness/storage"
	"github.com/vocdoni/amaci-witness/types"
	"github.com/vocdoni/amaci-witness/vote"
	"github.com/vocdoni/amaci-witness/witness"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := validateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	errOut, closeErrOut, err := errorOutput(cfg.Log.ErrorOutput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log error output: %v\n", err)
		os.Exit(1)
	}
	defer closeErrOut()
	log.Init(cfg.Log.Level, cfg.Log.Output, errOut)
	log.Infow("starting amaci-inputs", "version", Version)

	if err := run(cfg); err != nil {
		log.Fatalf("Failed to build witness: %v", err)
	}
}

// errorOutput returns the writer that receives a copy of warnings and
// errors: nothing when path is empty, stderr, or the file at path opened
// for appending. The returned func closes the file, if any.
func errorOutput(path string) (io.Writer, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log error output: %v\n", err)
		}
	}, nil
}

// run builds the witness described by cfg and writes it to the configured
// output.
func run(cfg *Config) error {
	wcfg, err := electionConfig(cfg.Election)
	if err != nil {
		return err
	}
	creds, err := voterCredentials(cfg.Voter)
	if err != nil {
		return err
	}
	w, err := witness.Assemble(wcfg, creds)
	if err != nil {
		return err
	}
	encoding, err := storage.ParseEncoding(cfg.Output.Format)
	if err != nil {
		return err
	}

	if cfg.Output.Path == "-" {
		data, err := storage.EncodeArtifact(w, encoding)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write witness: %w", err)
		}
		return nil
	}
	if err := storage.WriteArtifact(cfg.Output.Path, w, encoding); err != nil {
		return err
	}
	log.Infow("witness written",
		"path", cfg.Output.Path,
		"format", encoding.String(),
		"userIndex", w.UserIndex.String(),
		"inputHash", w.InputHash.String())
	return nil
}

// electionConfig builds the witness configuration: the coordinator key
// comes from explicit coordinates or from its seed, the roster from a file
// of commitments or from privkey:salt pairs.
func electionConfig(ec ElectionConfig) (witness.Config, error) {
	cfg := witness.Config{
		UserTreeDepth:       ec.UserTreeDepth,
		VoteOptionTreeDepth: ec.VoteOptionTreeDepth,
		VoiceCreditPerUser:  ec.VoiceCredits,
		MaxVoteOptions:      ec.MaxVoteOptions,
	}

	if len(ec.CoordPubKey) == 2 {
		for i, coord := range ec.CoordPubKey {
			x, err := parseBigInt(coord)
			if err != nil {
				return cfg, fmt.Errorf("coordinator public key: %w", err)
			}
			cfg.CoordinatorPubKey[i] = x
		}
	} else {
		seed, err := parseBigInt(ec.CoordSeed)
		if err != nil {
			return cfg, fmt.Errorf("coordinator seed: %w", err)
		}
		kp, err := bjj.NewKeyPair(seed)
		if err != nil {
			return cfg, fmt.Errorf("coordinator key: %w", err)
		}
		cfg.CoordinatorPubKey = kp.PublicKey
	}

	if ec.Roster != "" {
		var roster []*types.BigInt
		if err := storage.ReadArtifact(ec.Roster, &roster, storage.ArtifactEncodingJSON); err != nil {
			return cfg, fmt.Errorf("roster: %w", err)
		}
		cfg.UserTreeLeaves = types.MathBigInts(roster)
		log.Debugw("roster loaded", "path", ec.Roster, "users", len(roster))
		return cfg, nil
	}
	leaves, err := userCommitments(ec.Users)
	if err != nil {
		return cfg, err
	}
	cfg.UserTreeLeaves = leaves
	return cfg, nil
}

// userCommitments parses a list of privkey:salt pairs and returns the
// commitment of each user.
func userCommitments(users string) ([]*big.Int, error) {
	h := poseidon.New()
	var leaves []*big.Int
	for _, pair := range strings.Split(users, ",") {
		sk, salt, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("invalid user %q, expected privkey:salt", pair)
		}
		privKey, err := parseBigInt(sk)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", pair, err)
		}
		s, err := parseBigInt(salt)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", pair, err)
		}
		leaf, err := witness.UserCommitment(h, privKey, s)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", pair, err)
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

func voterCredentials(vc VoterConfig) (witness.Credentials, error) {
	var creds witness.Credentials
	var err error
	if creds.PrivateKey, err = parseBigInt(vc.PrivKey); err != nil {
		return creds, fmt.Errorf("voter private key: %w", err)
	}
	if creds.Salt, err = parseBigInt(vc.Salt); err != nil {
		return creds, fmt.Errorf("voter salt: %w", err)
	}
	if creds.EncryptionSeed, err = parseBigInt(vc.EncSeed); err != nil {
		return creds, fmt.Errorf("encryption seed: %w", err)
	}
	if creds.Votes, err = vote.ParseEntries(vc.Votes); err != nil {
		return creds, fmt.Errorf("votes: %w", err)
	}
	return creds, nil
}
