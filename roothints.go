package resolver

import (
	"net"

	"github.com/miekg/dns"
)

// rootHintRR is one static seed record for the root zone, per spec.md
// §4.10/§6 "Root hints: compiled-in; no file lookup required."
type rootHintRR struct {
	name string
	ip4  string
	ip6  string
}

// rootHints mirrors the public root server set. Addresses are the
// well-known IANA root server addresses; kept as a compact literal table
// the way the teacher extracts Nameserver{} values out of a parsed rrset
// in NewRecursiveResolver, except here the table itself is the source
// instead of parsed zone data (no file lookup, per spec.md §6).
var rootHints = []rootHintRR{
	{"a.root-servers.net.", "198.41.0.4", "2001:503:ba3e::2:30"},
	{"b.root-servers.net.", "170.247.170.2", "2801:1b8:10::b"},
	{"c.root-servers.net.", "192.33.4.12", "2001:500:2::c"},
	{"d.root-servers.net.", "199.7.91.13", "2001:500:2d::d"},
	{"e.root-servers.net.", "192.203.230.10", "2001:500:a8::e"},
	{"f.root-servers.net.", "192.5.5.241", "2001:500:2f::f"},
	{"g.root-servers.net.", "192.112.36.4", "2001:500:12::d0d"},
	{"h.root-servers.net.", "198.97.190.53", "2001:500:1::53"},
	{"i.root-servers.net.", "192.36.148.17", "2001:7fe::53"},
	{"j.root-servers.net.", "192.58.128.30", "2001:503:c27::2:30"},
	{"k.root-servers.net.", "193.0.14.129", "2001:7fd::1"},
	{"l.root-servers.net.", "199.7.83.42", "2001:500:9f::42"},
	{"m.root-servers.net.", "202.12.27.33", "2001:dc3::35"},
}

// RootHints exposes the compiled-in root delegation point.
type RootHints struct {
	useIPv6 bool
}

// NewRootHints returns a RootHints table. If useIPv6 is set, IPv6 root
// addresses are included as glue alongside IPv4.
func NewRootHints(useIPv6 bool) *RootHints {
	return &RootHints{useIPv6: useIPv6}
}

// DelegationPoint returns a fresh delegation point for the root zone,
// per spec.md §4.10 delegation_point().
func (rh *RootHints) DelegationPoint() *Delegation {
	d := newDelegation(".")
	for _, h := range rootHints {
		addrs := []string{h.ip4}
		if rh.useIPv6 && h.ip6 != "" {
			addrs = append(addrs, h.ip6)
		}
		d.Servers[dns.Fqdn(h.name)] = addrs
	}
	return d
}

// NSRRset returns the root NS rrset and its glue, suitable for seeding
// the message/RRset caches on first use, per spec.md §4.10.
func (rh *RootHints) NSRRset() (ns []dns.RR, glue []dns.RR) {
	for _, h := range rootHints {
		ns = append(ns, &dns.NS{
			Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 3600000},
			Ns:  dns.Fqdn(h.name),
		})
		glue = append(glue, &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(h.name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 3600000},
			A:   mustParseIP(h.ip4),
		})
		if rh.useIPv6 && h.ip6 != "" {
			glue = append(glue, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: dns.Fqdn(h.name), Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 3600000},
				AAAA: mustParseIP6(h.ip6),
			})
		}
	}
	return ns, glue
}

func mustParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("resolver: invalid compiled-in root hint address " + s)
	}
	return ip
}

func mustParseIP6(s string) net.IP {
	return mustParseIP(s)
}
