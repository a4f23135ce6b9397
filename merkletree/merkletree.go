// Package merkletree implements a fixed arity, fixed depth Merkle tree over
// field elements. Every internal node is the hash of its ordered children.
// The tree is sparse: only the nodes that differ from the default (zero)
// subtree of their level are stored, so deep trees cost memory proportional
// to the number of leaves set.
package merkletree

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"sync"

	"github.com/vocdoni/amaci-witness/crypto/field"
	"github.com/vocdoni/amaci-witness/crypto/hash"
)

var (
	// ErrInvalidParameter is returned when the shape of the tree is invalid.
	ErrInvalidParameter = errors.New("invalid tree parameter")
	// ErrIndexOutOfRange is returned when a leaf index is not lower than
	// the number of leaves of the tree.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Tree is a Merkle tree with a fixed arity and depth. It is safe for
// concurrent use: reads run in parallel while updates take exclusive access
// for the whole update and recompute sequence.
type Tree struct {
	mu       sync.RWMutex
	hasher   hash.FieldHasher
	arity    int
	depth    int
	capacity uint64
	// zeros[l] is the value of a default node at level l (0 = leaves)
	zeros []*big.Int
	// nodes[l] holds the non default nodes of level l by position
	nodes []map[uint64]*big.Int
}

// New creates a tree of arity^depth leaves, all of them set to zero.
func New(hasher hash.FieldHasher, arity, depth int, zero *big.Int) (*Tree, error) {
	if hasher == nil {
		return nil, fmt.Errorf("%w: nil hasher", ErrInvalidParameter)
	}
	if arity < 2 {
		return nil, fmt.Errorf("%w: arity %d < 2", ErrInvalidParameter, arity)
	}
	if depth < 0 {
		return nil, fmt.Errorf("%w: depth %d < 0", ErrInvalidParameter, depth)
	}
	capacity, err := Capacity(arity, depth)
	if err != nil {
		return nil, err
	}
	if err := field.Check(zero); err != nil {
		return nil, fmt.Errorf("zero value: %w", err)
	}
	t := &Tree{
		hasher:   hasher,
		arity:    arity,
		depth:    depth,
		capacity: capacity,
		zeros:    make([]*big.Int, depth+1),
		nodes:    make([]map[uint64]*big.Int, depth+1),
	}
	t.zeros[0] = new(big.Int).Set(zero)
	for l := 1; l <= depth; l++ {
		children := make([]*big.Int, arity)
		for i := range children {
			children[i] = t.zeros[l-1]
		}
		if t.zeros[l], err = hasher.Hash(children...); err != nil {
			return nil, fmt.Errorf("hash zero node at level %d: %w", l, err)
		}
	}
	for l := range t.nodes {
		t.nodes[l] = make(map[uint64]*big.Int)
	}
	return t, nil
}

// Capacity returns arity^depth, the number of leaves of a tree with the
// provided shape, or ErrInvalidParameter if it does not fit in an uint64.
func Capacity(arity, depth int) (uint64, error) {
	if arity < 2 || depth < 0 {
		return 0, fmt.Errorf("%w: arity %d, depth %d", ErrInvalidParameter, arity, depth)
	}
	capacity := uint64(1)
	for range depth {
		if capacity > math.MaxUint64/uint64(arity) {
			return 0, fmt.Errorf("%w: %d^%d leaves overflow", ErrInvalidParameter, arity, depth)
		}
		capacity *= uint64(arity)
	}
	return capacity, nil
}

// Arity returns the branching factor of the tree.
func (t *Tree) Arity() int { return t.arity }

// Depth returns the number of levels above the leaves.
func (t *Tree) Depth() int { return t.depth }

// Capacity returns the number of leaves of the tree.
func (t *Tree) Capacity() uint64 { return t.capacity }

// Root returns the current root of the tree.
func (t *Tree) Root() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.node(t.depth, 0))
}

// Leaf returns the current value of the leaf at index.
func (t *Tree) Leaf(index uint64) (*big.Int, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.node(0, index)), nil
}

// UpdateLeaf sets the leaf at index to value and recomputes its ancestors.
func (t *Tree) UpdateLeaf(index uint64, value *big.Int) error {
	return t.UpdateLeaves(index, []*big.Int{value})
}

// UpdateLeaves sets len(values) consecutive leaves starting at start and
// recomputes every ancestor once. Nothing is written if any index or value
// is invalid.
func (t *Tree) UpdateLeaves(start uint64, values []*big.Int) error {
	if len(values) == 0 {
		return nil
	}
	if err := t.checkIndex(start); err != nil {
		return err
	}
	if uint64(len(values)) > t.capacity-start {
		return fmt.Errorf("%w: %d leaves from %d exceed %d", ErrIndexOutOfRange, len(values), start, t.capacity)
	}
	if err := field.CheckAll(values...); err != nil {
		return fmt.Errorf("leaf value: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// new node values are staged and only committed once every hash of
	// the update succeeded
	staged := make([]map[uint64]*big.Int, t.depth+1)
	staged[0] = make(map[uint64]*big.Int, len(values))
	dirty := make([]uint64, 0, len(values))
	for i, v := range values {
		pos := start + uint64(i)
		staged[0][pos] = v
		dirty = append(dirty, pos)
	}
	for l := 1; l <= t.depth; l++ {
		staged[l] = make(map[uint64]*big.Int)
		parents := make([]uint64, 0, len(dirty))
		for _, pos := range dirty {
			parent := pos / uint64(t.arity)
			if len(parents) == 0 || parents[len(parents)-1] != parent {
				parents = append(parents, parent)
			}
		}
		for _, parent := range parents {
			first := parent * uint64(t.arity)
			children := make([]*big.Int, t.arity)
			for k := range children {
				pos := first + uint64(k)
				if v, ok := staged[l-1][pos]; ok {
					children[k] = v
				} else {
					children[k] = t.node(l-1, pos)
				}
			}
			value, err := t.hasher.Hash(children...)
			if err != nil {
				return fmt.Errorf("hash node %d at level %d: %w", parent, l, err)
			}
			staged[l][parent] = value
		}
		dirty = parents
	}
	for l, level := range staged {
		for pos, v := range level {
			t.setNode(l, pos, v)
		}
	}
	return nil
}

// PathElementOf returns the authentication path of the leaf at index: one
// group per level, starting at the leaves, each holding the arity-1 sibling
// values of the path node in position order.
func (t *Tree) PathElementOf(index uint64) ([][]*big.Int, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	path := make([][]*big.Int, t.depth)
	pos := index
	for l := range t.depth {
		offset := pos % uint64(t.arity)
		first := pos - offset
		siblings := make([]*big.Int, 0, t.arity-1)
		for k := range uint64(t.arity) {
			if k == offset {
				continue
			}
			siblings = append(siblings, new(big.Int).Set(t.node(l, first+k)))
		}
		path[l] = siblings
		pos /= uint64(t.arity)
	}
	return path, nil
}

// PathIndexOf returns, for each level starting at the leaves, the position
// of the path node of the leaf at index within its group of siblings.
func (t *Tree) PathIndexOf(index uint64) ([]int, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	return pathIndices(index, t.arity, t.depth), nil
}

// Verify recomputes the root from a leaf value, its index and authentication
// path, and reports whether it matches root.
func Verify(hasher hash.FieldHasher, arity int, index uint64, leaf *big.Int, path [][]*big.Int, root *big.Int) (bool, error) {
	if hasher == nil || arity < 2 {
		return false, fmt.Errorf("%w: arity %d", ErrInvalidParameter, arity)
	}
	capacity, err := Capacity(arity, len(path))
	if err != nil {
		return false, err
	}
	if index >= capacity {
		return false, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, capacity)
	}
	current := leaf
	for l, offset := range pathIndices(index, arity, len(path)) {
		if len(path[l]) != arity-1 {
			return false, fmt.Errorf("%w: level %d has %d siblings", ErrInvalidParameter, l, len(path[l]))
		}
		children := slices.Insert(slices.Clone(path[l]), offset, current)
		if current, err = hasher.Hash(children...); err != nil {
			return false, fmt.Errorf("hash level %d: %w", l, err)
		}
	}
	return current.Cmp(root) == 0, nil
}

func pathIndices(index uint64, arity, depth int) []int {
	indices := make([]int, depth)
	for l := range depth {
		indices[l] = int(index % uint64(arity))
		index /= uint64(arity)
	}
	return indices
}

func (t *Tree) checkIndex(index uint64) error {
	if index >= t.capacity {
		return fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, t.capacity)
	}
	return nil
}

// node returns the value at level and position. The caller must hold the lock.
func (t *Tree) node(level int, pos uint64) *big.Int {
	if v, ok := t.nodes[level][pos]; ok {
		return v
	}
	return t.zeros[level]
}

func (t *Tree) setNode(level int, pos uint64, value *big.Int) {
	if value.Cmp(t.zeros[level]) == 0 {
		delete(t.nodes[level], pos)
		return
	}
	t.nodes[level][pos] = new(big.Int).Set(value)
}
