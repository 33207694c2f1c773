package simulation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Hash is the content address of a config: identical configs over the
// same program always produce the same key. The caller seed is part of
// the key since it changes the output.
func (c Config) Hash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d", c.ProgramID, c.Mode, c.Iterations)
	if c.Seed != nil {
		fmt.Fprintf(&b, "|seed:%d", *c.Seed)
	}

	ids := make([]uuid.UUID, 0, len(c.Distributions))
	for id := range c.Distributions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		d := c.Distributions[id]
		fmt.Fprintf(&b, "|d:%s:%s:%v:%v:%v:%v:%v", id, d.Kind, d.Min, d.Mode, d.Max, d.Mean, d.StdDev)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Fingerprint is the content address of the network snapshot: every
// activity's sampling-relevant fields plus every edge, order independent.
func (in *Input) Fingerprint() string {
	acts := make([]string, 0, len(in.Activities))
	for _, a := range in.Activities {
		acts = append(acts, fmt.Sprintf("a:%s:%d:%t", a.ID, a.Duration, a.Milestone))
	}
	sort.Strings(acts)

	deps := make([]string, 0, len(in.Dependencies))
	for _, d := range in.Dependencies {
		deps = append(deps, fmt.Sprintf("d:%s:%s:%s:%d", d.PredecessorID, d.SuccessorID, d.Type, d.Lag))
	}
	sort.Strings(deps)

	var b strings.Builder
	b.WriteString(in.ProgramID.String())
	for _, s := range acts {
		b.WriteString("|")
		b.WriteString(s)
	}
	for _, s := range deps {
		b.WriteString("|")
		b.WriteString(s)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CacheKey binds the config hash to the network snapshot the run would
// operate on: a cached result is only served while both are unchanged.
func (c Config) CacheKey(in *Input) string {
	sum := sha256.Sum256([]byte(c.Hash() + "|" + in.Fingerprint()))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	result     *Result
	computedAt time.Time
}

// Cache memoizes simulation results by config hash, with the same
// compute-or-wait semantics as the schedule cache: concurrent misses for
// one key converge on a single run.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// Get returns the memoized result for the key, if present.
func (c *Cache) Get(key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	log.Debug().Str("key", key[:12]).Msg("Simulation cache hit")
	return entry.result, true
}

// Compute returns the cached result or runs compute exactly once for
// all concurrent callers. bypass skips the read but still stores.
func (c *Cache) Compute(key string, bypass bool, compute func() (*Result, error)) (*Result, error) {
	if !bypass {
		if res, ok := c.Get(key); ok {
			return res, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = &cacheEntry{result: res, computedAt: time.Now()}
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Invalidate drops one memoized result.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
