package resolver

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// rrsetEntry is a cached RRset paired with the trust level it was inserted
// at and its absolute expiry (arrival time + original TTL), per spec.md
// §3 "RRset cache entry".
type rrsetEntry struct {
	rrset  []dns.RR
	trust  TrustLevel
	expiry time.Time
}

// RRSetCache is the fixed-capacity, per-(name,type) LRU described in
// spec.md §4.1. The backing store is hashicorp/golang-lru/v2; the extra
// mutex around it makes get-then-evict and get-then-replace atomic, which
// a bare LRU.Get/Add pair would not guarantee under concurrent callers.
type RRSetCache struct {
	mu  sync.Mutex
	lru *lru.Cache[rrsetKey, *rrsetEntry]
	clk clock.Clock
}

// NewRRSetCache returns an RRSetCache with the given capacity. Per
// spec.md §4.1/§6, capacity is typically 2x the message cache capacity.
func NewRRSetCache(capacity int, clk clock.Clock) *RRSetCache {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[rrsetKey, *rrsetEntry](capacity)
	if err != nil {
		// Only possible if capacity <= 0, guarded above.
		panic(err)
	}
	if clk == nil {
		clk = clock.Default()
	}
	return &RRSetCache{lru: c, clk: clk}
}

// Get returns the RRset for (name, type) with its TTL decremented by
// elapsed time since insertion, or (nil, false) if absent or expired. An
// expired entry is evicted as a side effect, per spec.md §4.1.
func (c *RRSetCache) Get(name string, t uint16) ([]dns.RR, bool) {
	key := rrsetKeyOf(name, t)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	now := c.clk.Now()
	if !now.Before(e.expiry) {
		c.lru.Remove(key)
		return nil, false
	}
	remaining := uint32(e.expiry.Sub(now) / time.Second)
	return withTTL(e.rrset, remaining), true
}

// Add inserts rrset at the given trust level, replacing any cached copy
// only if the incoming trust level is >= the cached one, or the cached
// entry has expired, per spec.md §4.1.
func (c *RRSetCache) Add(name string, t uint16, rrset []dns.RR, trust TrustLevel, ttl time.Duration) {
	if len(rrset) == 0 {
		return
	}
	key := rrsetKeyOf(name, t)
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lru.Get(key); ok {
		if c.clk.Now().Before(existing.expiry) && !trust.supersedes(existing.trust) {
			return
		}
	}
	c.lru.Add(key, &rrsetEntry{rrset: cloneRRSet(rrset), trust: trust, expiry: c.clk.Now().Add(ttl)})
}

func cloneRRSet(in []dns.RR) []dns.RR {
	out := make([]dns.RR, len(in))
	for i, r := range in {
		out[i] = dns.Copy(r)
	}
	return out
}

// withTTL returns a deep copy of rrset with every header TTL set to ttl.
func withTTL(rrset []dns.RR, ttl uint32) []dns.RR {
	out := make([]dns.RR, len(rrset))
	for i, r := range rrset {
		cp := dns.Copy(r)
		cp.Header().Ttl = ttl
		out[i] = cp
	}
	return out
}
