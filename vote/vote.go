// Package vote packs the choices of a voter into the values carried by an
// encrypted command: the dense vector of weights per option, the root of a
// tree over that vector and a single integer holding every (option, value)
// pair in the order they were cast.
package vote

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/vocdoni/amaci-witness/config"
	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/crypto/hash"
	"github.com/vocdoni/amaci-witness/merkletree"
)

// ErrValueOutOfRange is returned when an option or a value does not fit in
// its packed bit width.
var ErrValueOutOfRange = errors.New("value out of range")

const (
	maxOption = 1<<config.VoteOptionBits - 1
	maxValue  = 1<<config.VoteValueBits - 1
)

// Entry is a single weighted choice.
type Entry struct {
	Option uint64 `json:"option"`
	Value  uint64 `json:"value"`
}

// String returns the entry in the "option:value" form accepted by
// ParseEntries.
func (e Entry) String() string {
	return fmt.Sprintf("%d:%d", e.Option, e.Value)
}

// PackedVoteInfo is the result of packing a list of entries.
type PackedVoteInfo struct {
	// Votes is the dense weight vector, one element per vote option leaf.
	Votes []*big.Int
	// Root is the root of the vote option tree built over Votes.
	Root *big.Int
	// Info holds every entry, 24 bits each, the first one in the most
	// significant position.
	Info *big.Int
}

// Pack builds the dense vector, the vote option tree of the given depth and
// the packed info for the entries. Entries are applied in order: a repeated
// option overwrites the previous value in the vector and the tree, while
// info keeps a term for every entry.
func Pack(hasher hash.FieldHasher, entries []Entry, depth int) (*PackedVoteInfo, error) {
	if depth > config.MaxVoteOptionTreeDepth {
		return nil, fmt.Errorf("%w: vote option tree depth %d > %d",
			merkletree.ErrInvalidParameter, depth, config.MaxVoteOptionTreeDepth)
	}
	tree, err := merkletree.New(hasher, config.TreeArity, depth, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("create vote option tree: %w", err)
	}
	votes := make([]*big.Int, tree.Capacity())
	for i := range votes {
		votes[i] = big.NewInt(0)
	}
	info := new(big.Int)
	for i, e := range entries {
		if err := e.check(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if e.Option >= tree.Capacity() {
			return nil, fmt.Errorf("entry %d: option %d: %w", i, e.Option, merkletree.ErrIndexOutOfRange)
		}
		value := new(big.Int).SetUint64(e.Value)
		votes[e.Option] = value
		if err := tree.UpdateLeaf(e.Option, value); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		info.Lsh(info, config.VoteEntryBits)
		info.Add(info, packEntry(e))
	}
	if err := field.Check(info); err != nil {
		return nil, fmt.Errorf("packed info of %d entries: %w", len(entries), err)
	}
	return &PackedVoteInfo{
		Votes: votes,
		Root:  tree.Root(),
		Info:  info,
	}, nil
}

// Unpack returns the n entries packed into info, in the order they were
// packed. It fails if info holds more than n entries.
func Unpack(info *big.Int, n int) ([]Entry, error) {
	if info == nil || info.Sign() < 0 || n < 0 {
		return nil, fmt.Errorf("%w: invalid packed info", ErrValueOutOfRange)
	}
	if info.BitLen() > n*config.VoteEntryBits {
		return nil, fmt.Errorf("%w: packed info holds more than %d entries", ErrValueOutOfRange, n)
	}
	mask := new(big.Int).SetUint64(1<<config.VoteEntryBits - 1)
	rest := new(big.Int).Set(info)
	entries := make([]Entry, n)
	for i := n - 1; i >= 0; i-- {
		term := new(big.Int).And(rest, mask).Uint64()
		entries[i] = Entry{
			Option: term & maxOption,
			Value:  term >> config.VoteOptionBits,
		}
		rest.Rsh(rest, config.VoteEntryBits)
	}
	return entries, nil
}

// ParseEntries parses a comma separated list of "option:value" pairs.
func ParseEntries(s string) ([]Entry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var entries []Entry
	for _, pair := range strings.Split(s, ",") {
		opt, val, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("invalid vote entry %q, expected option:value", pair)
		}
		option, err := strconv.ParseUint(strings.TrimSpace(opt), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid option in %q: %w", pair, err)
		}
		value, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", pair, err)
		}
		e := Entry{Option: option, Value: value}
		if err := e.check(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (e Entry) check() error {
	if e.Option > maxOption {
		return fmt.Errorf("%w: option %d exceeds %d bits", ErrValueOutOfRange, e.Option, config.VoteOptionBits)
	}
	if e.Value > maxValue {
		return fmt.Errorf("%w: value %d exceeds %d bits", ErrValueOutOfRange, e.Value, config.VoteValueBits)
	}
	return nil
}

// packEntry returns value<<8 + option.
func packEntry(e Entry) *big.Int {
	return new(big.Int).SetUint64(e.Value<<config.VoteOptionBits | e.Option)
}
