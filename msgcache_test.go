package resolver

import (
	"net"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

func newTestMessageCache() (*MessageCache, clock.FakeClock) {
	fc := clock.NewFake()
	rrsets := NewRRSetCache(100, fc)
	return NewMessageCache(100, rrsets, fc), fc
}

func TestMessageCache_AnswerRoundTrip(t *testing.T) {
	mc, _ := newTestMessageCache()
	q := Question{Name: "www.example.com.", Type: dns.TypeA}
	a := &Answer{
		Answer: []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Ttl: 300}, A: net.IP{1, 2, 3, 4}}},
		Rcode:  dns.RcodeSuccess,
	}
	mc.AddResponse(q, a, CategoryAnswer, true)

	got, cat, ok := mc.GenResponse(q)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if cat != CategoryAnswer {
		t.Fatalf("expected CategoryAnswer, got %s", cat)
	}
	if len(got.Answer) != 1 || got.Answer[0].(*dns.A).A.String() != "1.2.3.4" {
		t.Fatalf("unexpected answer: %#v", got.Answer)
	}
}

func TestMessageCache_NXDomainIsNegative(t *testing.T) {
	mc, _ := newTestMessageCache()
	q := Question{Name: "missing.example.com.", Type: dns.TypeA}
	soa := &dns.SOA{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeSOA, Ttl: 60}, Ns: "a.iana-servers.net.", Mbox: "hostmaster.example.com."}
	a := &Answer{Authority: []dns.RR{soa}, Rcode: dns.RcodeNameError}
	mc.AddResponse(q, a, CategoryNXDomain, true)

	_, cat, ok := mc.GenResponse(q)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if cat != CategoryNXDomain {
		t.Fatalf("expected CategoryNXDomain, got %s", cat)
	}
}

func TestMessageCache_ReferralStoresNoEnvelope(t *testing.T) {
	mc, _ := newTestMessageCache()
	q := Question{Name: "sub.example.com.", Type: dns.TypeA}
	ns := &dns.NS{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeNS, Ttl: 3600}, Ns: "ns1.example.com."}
	a := &Answer{Authority: []dns.RR{ns}}
	mc.AddResponse(q, a, CategoryReferral, false)

	if _, _, ok := mc.GenResponse(q); ok {
		t.Fatal("expected no envelope to be stored for a referral")
	}
	if rrset, ok := mc.rrsets.Get("example.com.", dns.TypeNS); !ok || len(rrset) != 1 {
		t.Fatalf("expected the NS rrset itself to be cached, got %#v ok=%v", rrset, ok)
	}
}

func TestMessageCache_CNameWarmStart(t *testing.T) {
	mc, _ := newTestMessageCache()
	q := Question{Name: "alias.example.com.", Type: dns.TypeA}
	cname := &dns.CNAME{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeCNAME, Ttl: 300}, Target: "target.example.com."}
	a := &Answer{Answer: []dns.RR{cname}}
	mc.AddResponse(q, a, CategoryCName, false)

	if _, _, ok := mc.GenResponse(q); ok {
		t.Fatal("expected no envelope to be stored for a bare CNAME hop")
	}
	got, ok := mc.GenCNAMEResponse(q)
	if !ok {
		t.Fatal("expected GenCNAMEResponse to find the cached CNAME")
	}
	if len(got.Answer) != 1 || got.Answer[0].(*dns.CNAME).Target != "target.example.com." {
		t.Fatalf("unexpected cname rrset: %#v", got.Answer)
	}
}

func TestMessageCache_ExpiryEvicts(t *testing.T) {
	mc, fc := newTestMessageCache()
	q := Question{Name: "www.example.com.", Type: dns.TypeA}
	a := &Answer{
		Answer: []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Ttl: 5}, A: net.IP{1, 2, 3, 4}}},
		Rcode:  dns.RcodeSuccess,
	}
	mc.AddResponse(q, a, CategoryAnswer, true)

	fc.Add(6 * time.Second)
	if _, _, ok := mc.GenResponse(q); ok {
		t.Fatal("expected the envelope to have expired")
	}
}

func TestMessageCache_GetDeepestNS(t *testing.T) {
	mc, _ := newTestMessageCache()
	ns := &dns.NS{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeNS, Ttl: 3600}, Ns: "ns1.example.com."}
	mc.rrsets.Add("example.com.", dns.TypeNS, []dns.RR{ns}, TrustAuthorityAA, time.Hour)

	zone, rrset, ok := mc.GetDeepestNS("www.sub.example.com.")
	if !ok {
		t.Fatal("expected to find a cached NS rrset walking up the tree")
	}
	if zone != "example.com." {
		t.Fatalf("expected zone example.com., got %q", zone)
	}
	if len(rrset) != 1 {
		t.Fatalf("unexpected rrset: %#v", rrset)
	}
}

func TestMessageCache_GetDeepestNSMiss(t *testing.T) {
	mc, _ := newTestMessageCache()
	if _, _, ok := mc.GetDeepestNS("www.nowhere.invalid."); ok {
		t.Fatal("expected no NS rrset to be found")
	}
}
