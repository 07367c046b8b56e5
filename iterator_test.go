package resolver

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// fakeWorld is a single in-process authority standing in for every hop an
// iterative resolution might contact: it answers the root NS priming query
// and tracks a per-question call count so a handler can behave differently
// across successive hits to the same (name, type) pair (e.g. a referral on
// the first hit, an answer on the second), modeling a multi-hop walk
// without needing one listener per hop.
type fakeWorld struct {
	mu    sync.Mutex
	hits  map[Question]int
	reply func(hit int, q Question) *dns.Msg
}

func newFakeWorld(reply func(hit int, q Question) *dns.Msg) *fakeWorld {
	return &fakeWorld{hits: make(map[Question]int), reply: reply}
}

func (w *fakeWorld) handle(r *dns.Msg) *dns.Msg {
	q := Question{Name: r.Question[0].Name, Type: r.Question[0].Qtype}
	w.mu.Lock()
	w.hits[q]++
	hit := w.hits[q]
	w.mu.Unlock()

	m := w.reply(hit, q)
	rcode := m.Rcode
	authoritative := m.Authoritative
	answer, ns, extra := m.Answer, m.Ns, m.Extra
	m.SetReply(r) // resets Id/Opcode/Question/Rcode; restore what we built above
	m.Rcode = rcode
	m.Authoritative = authoritative
	m.Answer, m.Ns, m.Extra = answer, ns, extra
	return m
}

// setupIterator wires an Iterator whose root hints point at a single fake
// server on the loopback range, with dnsPort redirected to the server's
// listening port for the duration of the test.
func setupIterator(t *testing.T, world *fakeWorld) *Iterator {
	t.Helper()
	serverIP := "127.0.0.1"
	addr := startEchoServer(t, func(r *dns.Msg) *dns.Msg { return world.handle(r) })
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("bad test address %q: %v", addr, err)
	}
	oldPort := dnsPort
	dnsPort = port
	t.Cleanup(func() { dnsPort = oldPort })

	oldHints := rootHints
	rootHints = []rootHintRR{{name: "ns1.test.", ip4: serverIP}}
	t.Cleanup(func() { rootHints = oldHints })

	fc := clock.NewFake()
	rrsets := NewRRSetCache(100, fc)
	msgs := NewMessageCache(100, rrsets, fc)
	selector := NewHostSelector(fc)
	ns := NewNSClient(selector)
	ac := NewAggregateClient(ns)
	roots := NewRootHints(false)

	return NewIterator(rrsets, msgs, selector, ac, roots, WithClock(fc))
}

func rootPrimeAnswer(serverIP string) *dns.Msg {
	m := new(dns.Msg)
	m.Answer = []dns.RR{&dns.NS{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 3600000}, Ns: "ns1.test."}}
	m.Extra = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "ns1.test.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 3600000}, A: net.ParseIP(serverIP).To4()}}
	return m
}

func TestIterator_StraightAnswer(t *testing.T) {
	world := newFakeWorld(func(hit int, q Question) *dns.Msg {
		switch {
		case q.Name == "." && q.Type == dns.TypeNS:
			return rootPrimeAnswer("127.0.0.1")
		case q.Name == "www.example.com." && q.Type == dns.TypeA:
			m := new(dns.Msg)
			m.Authoritative = true
			m.Answer = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}, A: net.IPv4(93, 184, 216, 34)}}
			return m
		}
		m := new(dns.Msg)
		m.Rcode = dns.RcodeServerFailure
		return m
	})
	it := setupIterator(t, world)

	answer := it.Resolve(context.Background(), Question{Name: "www.example.com.", Type: dns.TypeA})
	if answer.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected RcodeSuccess, got %d", answer.Rcode)
	}
	if len(answer.Answer) != 1 || answer.Answer[0].(*dns.A).A.String() != "93.184.216.34" {
		t.Fatalf("unexpected answer: %#v", answer.Answer)
	}
}

func TestIterator_ReferralChain(t *testing.T) {
	world := newFakeWorld(func(hit int, q Question) *dns.Msg {
		switch {
		case q.Name == "." && q.Type == dns.TypeNS:
			return rootPrimeAnswer("127.0.0.1")
		case q.Name == "www.example.com." && q.Type == dns.TypeA && hit == 1:
			// First hit: referral down to example.com.'s own nameserver.
			m := new(dns.Msg)
			m.Ns = []dns.RR{&dns.NS{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 3600}, Ns: "ns1.example.com."}}
			m.Extra = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "ns1.example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 3600}, A: net.IPv4(127, 0, 0, 1)}}
			return m
		case q.Name == "www.example.com." && q.Type == dns.TypeA:
			// Second hit, now against the delegated nameserver: the answer.
			m := new(dns.Msg)
			m.Authoritative = true
			m.Answer = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}, A: net.IPv4(1, 2, 3, 4)}}
			return m
		}
		m := new(dns.Msg)
		m.Rcode = dns.RcodeServerFailure
		return m
	})
	it := setupIterator(t, world)

	answer := it.Resolve(context.Background(), Question{Name: "www.example.com.", Type: dns.TypeA})
	if answer.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected RcodeSuccess, got %d", answer.Rcode)
	}
	if len(answer.Answer) != 1 || answer.Answer[0].(*dns.A).A.String() != "1.2.3.4" {
		t.Fatalf("unexpected answer after referral: %#v", answer.Answer)
	}
}

func TestIterator_CNAMEChain(t *testing.T) {
	world := newFakeWorld(func(hit int, q Question) *dns.Msg {
		switch {
		case q.Name == "." && q.Type == dns.TypeNS:
			return rootPrimeAnswer("127.0.0.1")
		case q.Name == "alias.example.com." && q.Type == dns.TypeA:
			m := new(dns.Msg)
			m.Authoritative = true
			m.Answer = []dns.RR{&dns.CNAME{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 300}, Target: "target.example.com."}}
			return m
		case q.Name == "target.example.com." && q.Type == dns.TypeA:
			m := new(dns.Msg)
			m.Authoritative = true
			m.Answer = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}, A: net.IPv4(9, 9, 9, 9)}}
			return m
		}
		m := new(dns.Msg)
		m.Rcode = dns.RcodeServerFailure
		return m
	})
	it := setupIterator(t, world)

	answer := it.Resolve(context.Background(), Question{Name: "alias.example.com.", Type: dns.TypeA})
	if answer.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected RcodeSuccess, got %d", answer.Rcode)
	}
	if len(answer.Answer) != 2 {
		t.Fatalf("expected the CNAME followed by its terminal A record, got %#v", answer.Answer)
	}
	if _, ok := answer.Answer[0].(*dns.CNAME); !ok {
		t.Fatalf("expected the CNAME to be prepended first, got %#v", answer.Answer[0])
	}
	if a, ok := answer.Answer[1].(*dns.A); !ok || a.A.String() != "9.9.9.9" {
		t.Fatalf("expected the terminal A record last, got %#v", answer.Answer[1])
	}
}

func TestIterator_NXDomainIsCached(t *testing.T) {
	queries := 0
	world := newFakeWorld(func(hit int, q Question) *dns.Msg {
		switch {
		case q.Name == "." && q.Type == dns.TypeNS:
			return rootPrimeAnswer("127.0.0.1")
		case q.Name == "missing.example.com." && q.Type == dns.TypeA:
			queries++
			m := new(dns.Msg)
			m.Authoritative = true
			m.Rcode = dns.RcodeNameError
			m.Ns = []dns.RR{&dns.SOA{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 60}, Ns: "ns1.example.com.", Mbox: "hostmaster.example.com."}}
			return m
		}
		m := new(dns.Msg)
		m.Rcode = dns.RcodeServerFailure
		return m
	})
	it := setupIterator(t, world)

	q := Question{Name: "missing.example.com.", Type: dns.TypeA}
	first := it.Resolve(context.Background(), q)
	if first.Rcode != dns.RcodeNameError {
		t.Fatalf("expected RcodeNameError, got %d", first.Rcode)
	}

	second := it.Resolve(context.Background(), q)
	if second.Rcode != dns.RcodeNameError {
		t.Fatalf("expected RcodeNameError on the cached lookup, got %d", second.Rcode)
	}
	if queries != 1 {
		t.Fatalf("expected the second lookup to be served from the negative cache, got %d upstream queries", queries)
	}
}
