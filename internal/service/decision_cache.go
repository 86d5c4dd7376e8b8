package service

import (
	"container/list"
	"maps"
	"sync"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

// DefaultDecisionCacheSize bounds the resolver memo cache.
const DefaultDecisionCacheSize = 1000

type cacheEntry struct {
	key      uint64
	decision resolution.Decision
}

// DecisionCache is a bounded LRU of resolver decisions keyed by alert
// fingerprint. Safe for concurrent use; both Get and Put mutate LRU order.
type DecisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List // front is most recently used
	maxSize int
}

// NewDecisionCache creates a cache holding at most maxSize decisions. A
// non-positive size selects DefaultDecisionCacheSize.
func NewDecisionCache(maxSize int) *DecisionCache {
	if maxSize <= 0 {
		maxSize = DefaultDecisionCacheSize
	}
	return &DecisionCache{
		entries: make(map[uint64]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get returns a copy of the cached decision and promotes it.
func (c *DecisionCache) Get(key uint64) (resolution.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return resolution.Decision{}, false
	}
	c.order.MoveToFront(el)
	return cloneDecision(el.Value.(*cacheEntry).decision), true
}

// Put stores a copy of the decision, evicting the least recently used entry
// at capacity.
func (c *DecisionCache) Put(key uint64, d resolution.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).decision = cloneDecision(d)
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			delete(c.entries, oldest.Value.(*cacheEntry).key)
			c.order.Remove(oldest)
		}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, decision: cloneDecision(d)})
}

// Len returns the number of cached decisions.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// cloneDecision copies the action slice and each action's top-level params
// so callers cannot alter the cached entry.
func cloneDecision(d resolution.Decision) resolution.Decision {
	actions := make([]resolution.ResolutionAction, len(d.Actions))
	for i, a := range d.Actions {
		a.Params = maps.Clone(a.Params)
		actions[i] = a
	}
	return resolution.Decision{Category: d.Category, Actions: actions}
}
