package resolver

import (
	"fmt"

	"github.com/miekg/dns"
)

// Question is a (name, type) pair under class IN, matching spec.md §3.
type Question struct {
	Name string
	Type uint16
}

func questionFromDNS(q dns.Question) Question {
	return Question{Name: dns.Fqdn(q.Name), Type: q.Qtype}
}

func (q Question) String() string {
	return fmt.Sprintf("%s IN %s", q.Name, dns.TypeToString[q.Type])
}

// rrsetKey identifies a cached RRset: owner name and type. Class is always
// IN and is not part of the key, per spec.md §3.
type rrsetKey struct {
	Name string
	Type uint16
}

func rrsetKeyOf(name string, t uint16) rrsetKey {
	return rrsetKey{Name: dns.Fqdn(name), Type: t}
}

func (k rrsetKey) String() string {
	return fmt.Sprintf("%s/%s", k.Name, dns.TypeToString[k.Type])
}

// Category classifies an upstream response after sanitization, per spec.md
// §3 and §4.7.
type Category int

const (
	CategoryAnswer Category = iota
	CategoryCName
	CategoryReferral
	CategoryNXDomain
	CategoryNXRRset
	CategoryServerFail
)

func (c Category) String() string {
	switch c {
	case CategoryAnswer:
		return "Answer"
	case CategoryCName:
		return "CName"
	case CategoryReferral:
		return "Referral"
	case CategoryNXDomain:
		return "NXDomain"
	case CategoryNXRRset:
		return "NXRRset"
	case CategoryServerFail:
		return "ServerFail"
	default:
		return "Unknown"
	}
}

// State is one of the iterator's event-driven states, per spec.md §3/§4.8.
type State int

const (
	StateInitQuery State = iota
	StateQueryTarget
	StateQueryResponse
	StatePrimeResponse
	StateTargetResponse
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInitQuery:
		return "InitQuery"
	case StateQueryTarget:
		return "QueryTarget"
	case StateQueryResponse:
		return "QueryResponse"
	case StatePrimeResponse:
		return "PrimeResponse"
	case StateTargetResponse:
		return "TargetResponse"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Answer is the composed result of an iterative resolution, shaped like
// the sections of a dns.Msg.
type Answer struct {
	Answer     []dns.RR
	Authority  []dns.RR
	Additional []dns.RR
	Rcode      int
}

func extractRRSet(in []dns.RR, name string, types ...uint16) []dns.RR {
	out := make([]dns.RR, 0, len(in))
	want := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	for _, r := range in {
		if _, ok := want[r.Header().Rrtype]; !ok {
			continue
		}
		if name != "" && !nameEqual(r.Header().Name, name) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func nameEqual(a, b string) bool {
	return dns.Fqdn(a) == dns.Fqdn(b) || equalFold(a, b)
}

func equalFold(a, b string) bool {
	return dns.CanonicalName(a) == dns.CanonicalName(b)
}

// isSubdomain reports whether name is equal to or a subdomain of zone, i.e.
// in-bailiwick per the GLOSSARY.
func isSubdomain(name, zone string) bool {
	return dns.IsSubDomain(dns.Fqdn(zone), dns.Fqdn(name))
}
