package filter

import (
	"hash/fnv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPlanCacheSize bounds the plan cache when no size is given.
const DefaultPlanCacheSize = 256

// PlanCache memoizes optimizer output keyed by a stable hash of the
// canonical AST string plus the projected columns. The underlying LRU is
// safe for concurrent use.
type PlanCache struct {
	lru *lru.Cache[uint64, *Plan]
}

// NewPlanCache creates a bounded plan cache. Sizes below 1 fall back to
// DefaultPlanCacheSize.
func NewPlanCache(size int) *PlanCache {
	if size < 1 {
		size = DefaultPlanCacheSize
	}
	cache, err := lru.New[uint64, *Plan](size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which are filtered above.
		panic(err)
	}
	return &PlanCache{lru: cache}
}

// Get returns the cached plan for the filter and columns, optimizing and
// caching on miss.
func (c *PlanCache) Get(node Node, columns []string) *Plan {
	key := planKey(node, columns)
	if plan, ok := c.lru.Get(key); ok {
		return plan
	}
	plan := Optimize(node)
	c.lru.Add(key, plan)
	return plan
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int { return c.lru.Len() }

// Purge drops all cached plans.
func (c *PlanCache) Purge() { c.lru.Purge() }

func planKey(node Node, columns []string) uint64 {
	h := fnv.New64a()
	if node != nil {
		h.Write([]byte(node.String()))
	}
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(columns, ",")))
	return h.Sum64()
}
