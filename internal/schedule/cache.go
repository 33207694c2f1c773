package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Fingerprint produces the content address of the network: a hash over
// the program ID, every activity's scheduling-relevant fields, and every
// edge. Two networks with the same fingerprint produce byte-identical
// CPM output.
func (n *Network) Fingerprint() string {
	var b strings.Builder
	b.WriteString(n.ProgramID.String())
	for _, id := range n.ids {
		a := n.Activities[id]
		constraintDate := ""
		if a.ConstraintDate != nil {
			constraintDate = a.ConstraintDate.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "|a:%s:%d:%s:%s", id, a.Duration, a.Constraint, constraintDate)
	}
	for _, id := range n.ids {
		for _, e := range n.forward[id] {
			fmt.Fprintf(&b, "|d:%s:%s:%s:%d", e.PredecessorID, e.SuccessorID, e.Type, e.Lag)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	result     *CPMResult
	computedAt time.Time
}

// Cache memoizes CPM results by network fingerprint. Concurrent misses
// for the same fingerprint converge on a single computation through the
// singleflight group; waiters receive the broadcast result.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// Get returns the cached result for the fingerprint, if present.
func (c *Cache) Get(fingerprint string) (*CPMResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		log.Debug().Str("fingerprint", fingerprint[:12]).Msg("Schedule cache miss")
		return nil, false
	}
	log.Debug().Str("fingerprint", fingerprint[:12]).Msg("Schedule cache hit")
	return entry.result, true
}

// Compute returns the cached result for the fingerprint or runs compute
// exactly once for all concurrent callers, storing the result on success.
// force skips the read but still stores.
func (c *Cache) Compute(fingerprint string, force bool, compute func() (*CPMResult, error)) (*CPMResult, error) {
	if !force {
		if res, ok := c.Get(fingerprint); ok {
			return res, nil
		}
	}

	v, err, shared := c.group.Do(fingerprint, func() (any, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[fingerprint] = &cacheEntry{result: res, computedAt: time.Now()}
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("fingerprint", fingerprint[:12]).Msg("Schedule computation shared with concurrent caller")
	}
	return v.(*CPMResult), nil
}

// Invalidate drops the entry for a fingerprint. Used when a write to the
// network makes the memoized result stale.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Len reports the number of memoized results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
