package resolver

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// msgEntry is a message cache entry: the reply's rcode, section counts,
// and ordered references into the RRset cache, per spec.md §3 "Message
// cache entry". Rebuilding a response re-fetches every referenced RRset.
type msgEntry struct {
	rcode      int
	answer     []rrsetKey
	authority  []rrsetKey
	additional []rrsetKey
	expiry     time.Time
}

// MessageCache is the two-tier (positive/negative) LRU of §4.2. It never
// stores raw records itself; every reference resolves through the shared
// RRSetCache, so a superseded or expired RRset is only ever stored once.
type MessageCache struct {
	mu       sync.Mutex
	positive *lru.Cache[rrsetKey, *msgEntry]
	negative *lru.Cache[rrsetKey, *msgEntry]
	rrsets   *RRSetCache
	clk      clock.Clock
}

// NewMessageCache returns a MessageCache of the given envelope capacity
// backed by rrsets for its constituent records.
func NewMessageCache(capacity int, rrsets *RRSetCache, clk clock.Clock) *MessageCache {
	if capacity <= 0 {
		capacity = 1
	}
	pos, err := lru.New[rrsetKey, *msgEntry](capacity)
	if err != nil {
		panic(err)
	}
	neg, err := lru.New[rrsetKey, *msgEntry](capacity)
	if err != nil {
		panic(err)
	}
	if clk == nil {
		clk = clock.Default()
	}
	return &MessageCache{positive: pos, negative: neg, rrsets: rrsets, clk: clk}
}

// GenResponse implements §4.2 gen_response: look up by question, rebuild
// by fetching every referenced RRset, evict-and-miss if any is absent.
func (mc *MessageCache) GenResponse(q Question) (*Answer, Category, bool) {
	if a, cat, ok := mc.genFrom(mc.positive, q, false); ok {
		return a, cat, true
	}
	if a, cat, ok := mc.genFrom(mc.negative, q, true); ok {
		return a, cat, true
	}
	return nil, 0, false
}

func (mc *MessageCache) genFrom(store *lru.Cache[rrsetKey, *msgEntry], q Question, negative bool) (*Answer, Category, bool) {
	key := rrsetKeyOf(q.Name, q.Type)
	mc.mu.Lock()
	entry, ok := store.Get(key)
	mc.mu.Unlock()
	if !ok {
		return nil, 0, false
	}
	if !mc.clk.Now().Before(entry.expiry) {
		mc.mu.Lock()
		store.Remove(key)
		mc.mu.Unlock()
		return nil, 0, false
	}

	answer, ok := mc.resolveRefs(entry.answer)
	if !ok {
		mc.evict(store, key)
		return nil, 0, false
	}
	authority, ok := mc.resolveRefs(entry.authority)
	if !ok {
		mc.evict(store, key)
		return nil, 0, false
	}
	additional, ok := mc.resolveRefs(entry.additional)
	if !ok {
		mc.evict(store, key)
		return nil, 0, false
	}

	a := &Answer{Answer: answer, Authority: authority, Additional: additional, Rcode: entry.rcode}
	cat := CategoryAnswer
	switch {
	case negative && entry.rcode == dns.RcodeNameError:
		cat = CategoryNXDomain
	case negative:
		cat = CategoryNXRRset
	}
	return a, cat, true
}

func (mc *MessageCache) resolveRefs(refs []rrsetKey) ([]dns.RR, bool) {
	out := make([]dns.RR, 0, len(refs))
	for _, k := range refs {
		rrset, ok := mc.rrsets.Get(k.Name, k.Type)
		if !ok {
			return nil, false
		}
		out = append(out, rrset...)
	}
	return out, true
}

func (mc *MessageCache) evict(store *lru.Cache[rrsetKey, *msgEntry], key rrsetKey) {
	mc.mu.Lock()
	store.Remove(key)
	mc.mu.Unlock()
}

// GenCNAMEResponse implements §4.2 gen_cname_response: when the terminal
// name of the chain isn't cached, serve whatever CNAME rrset is cached
// directly at the question name so the iterator can restart from its
// target with a warm start, instead of re-querying upstream for that hop.
func (mc *MessageCache) GenCNAMEResponse(q Question) (*Answer, bool) {
	rrset, ok := mc.rrsets.Get(q.Name, dns.TypeCNAME)
	if !ok {
		return nil, false
	}
	return &Answer{Answer: rrset, Rcode: dns.RcodeSuccess}, true
}

// AddResponse implements §4.2 add_response: classify and store. Answer,
// NXDomain and NXRRset entries go into the appropriate envelope cache;
// Referral entries only populate the RRset cache (no envelope is stored).
func (mc *MessageCache) AddResponse(q Question, a *Answer, cat Category, aa bool) {
	switch cat {
	case CategoryReferral:
		mc.storeSection(a.Authority, SectionAuthority, aa, q)
		mc.storeSection(a.Additional, SectionAdditional, aa, q)
		return
	case CategoryCName:
		// Only the rrsets themselves are stored (for a later warm-start via
		// GenCNAMEResponse); no envelope, per spec.md §4.8 QueryTarget.
		mc.storeSection(a.Answer, SectionAnswer, aa, q)
		return
	case CategoryAnswer, CategoryNXDomain, CategoryNXRRset:
		// fall through to envelope storage below
	default:
		return
	}

	answerRefs := mc.storeSection(a.Answer, SectionAnswer, aa, q)
	authorityRefs := mc.storeSection(a.Authority, SectionAuthority, aa, q)
	additionalRefs := mc.storeSection(a.Additional, SectionAdditional, aa, q)

	ttl := minTTLOf(a.Answer, a.Authority, a.Additional)
	if ttl <= 0 {
		return
	}
	entry := &msgEntry{
		rcode:      a.Rcode,
		answer:     answerRefs,
		authority:  authorityRefs,
		additional: additionalRefs,
		expiry:     mc.clk.Now().Add(ttl),
	}

	key := rrsetKeyOf(q.Name, q.Type)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if cat == CategoryAnswer {
		mc.positive.Add(key, entry)
	} else {
		mc.negative.Add(key, entry)
	}
}

// storeSection groups rrset by (name,type), inserts each group into the
// RRset cache at the trust level the section/AA/name-match derive, and
// returns the ordered list of keys referenced (duplicates collapsed).
func (mc *MessageCache) storeSection(rrs []dns.RR, section Section, aa bool, q Question) []rrsetKey {
	if len(rrs) == 0 {
		return nil
	}
	groups := make(map[rrsetKey][]dns.RR)
	order := make([]rrsetKey, 0, len(rrs))
	for _, r := range rrs {
		k := rrsetKeyOf(r.Header().Name, r.Header().Rrtype)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	for _, k := range order {
		grp := groups[k]
		nameMatches := nameEqual(k.Name, q.Name)
		trust := deriveTrust(section, aa, nameMatches)
		ttl := minTTLOf(grp)
		if ttl <= 0 {
			ttl = time.Second
		}
		mc.rrsets.Add(k.Name, k.Type, grp, trust, ttl)
	}
	return order
}

// GetDeepestNS walks up from name toward the root and returns the
// longest-match cached NS rrset, for §4.2 get_deepest_ns.
func (mc *MessageCache) GetDeepestNS(name string) (zone string, ns []dns.RR, ok bool) {
	z := dns.Fqdn(name)
	for {
		if rrset, present := mc.rrsets.Get(z, dns.TypeNS); present {
			return z, rrset, true
		}
		if z == "." {
			return "", nil, false
		}
		_, rest := splitLabel(z)
		z = rest
	}
}

func splitLabel(name string) (label, rest string) {
	off, end := dns.NextLabel(name, 0)
	if end {
		return name, "."
	}
	return name[:off], name[off:]
}

func minTTLOf(sets ...[]dns.RR) time.Duration {
	var min *uint32
	for _, set := range sets {
		for _, r := range set {
			ttl := r.Header().Ttl
			if min == nil || ttl < *min {
				t := ttl
				min = &t
			}
		}
	}
	if min == nil {
		return 0
	}
	return time.Duration(*min) * time.Second
}
