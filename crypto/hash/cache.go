package hash

import (
	"fmt"
	"math/big"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of hash results kept by a cached hasher
// when no size is provided.
const DefaultCacheSize = 4096

// CachedHasher memoizes the results of a FieldHasher in an LRU cache. The
// witnesses of a single election share most of their hashes (zero subtrees,
// roster nodes, the public parameters), so repeated computations are served
// from memory. It is safe for concurrent use.
type CachedHasher struct {
	inner FieldHasher
	cache *lru.Cache[string, *big.Int]
}

var _ FieldHasher = (*CachedHasher)(nil)

// NewCachedHasher wraps inner with an LRU cache of the given size. A size
// lower or equal than zero uses DefaultCacheSize.
func NewCachedHasher(inner FieldHasher, size int) (*CachedHasher, error) {
	if inner == nil {
		return nil, fmt.Errorf("nil hasher")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *big.Int](size)
	if err != nil {
		return nil, fmt.Errorf("create hash cache: %w", err)
	}
	return &CachedHasher{inner: inner, cache: cache}, nil
}

// Hash returns the cached result for the inputs or computes and stores it.
// The returned value is a copy, callers can modify it freely.
func (h *CachedHasher) Hash(inputs ...*big.Int) (*big.Int, error) {
	key := cacheKey(inputs)
	if res, ok := h.cache.Get(key); ok {
		return new(big.Int).Set(res), nil
	}
	res, err := h.inner.Hash(inputs...)
	if err != nil {
		return nil, err
	}
	h.cache.Add(key, new(big.Int).Set(res))
	return res, nil
}

// Len returns the number of cached results.
func (h *CachedHasher) Len() int {
	return h.cache.Len()
}

func cacheKey(inputs []*big.Int) string {
	var sb strings.Builder
	for i, in := range inputs {
		if i > 0 {
			sb.WriteByte(',')
		}
		if in == nil {
			sb.WriteString("nil")
			continue
		}
		sb.WriteString(in.Text(16))
	}
	return sb.String()
}
