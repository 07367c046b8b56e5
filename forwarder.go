package resolver

import "github.com/miekg/dns"

// Forwarder is a suffix-indexed zone→upstream-IPs map, per spec.md §4.9.
// It is loaded once at startup from a flat list of bindings (§6) and
// answers longest-suffix lookups with a synthetic delegation point.
type Forwarder struct {
	bindings map[string][]string // zone suffix -> upstream IPs
}

// NewForwarder builds a Forwarder from a zone-suffix -> []upstream-IP map
// loaded once at startup, per spec.md §6.
func NewForwarder(bindings map[string][]string) *Forwarder {
	f := &Forwarder{bindings: make(map[string][]string, len(bindings))}
	for zone, ips := range bindings {
		f.bindings[dns.Fqdn(zone)] = append([]string(nil), ips...)
	}
	return f
}

// Lookup performs longest-suffix match against name and synthesizes a
// delegation point whose zone is the matched suffix and whose single
// pseudo-nameserver carries the configured upstream IPs directly: no NS
// records, no missing-glue logic, per spec.md §4.9.
func (f *Forwarder) Lookup(name string) (*Delegation, bool) {
	name = dns.Fqdn(name)
	bestZone := ""
	var bestIPs []string
	for zone, ips := range f.bindings {
		if !isSubdomain(name, zone) {
			continue
		}
		if len(zone) > len(bestZone) {
			bestZone, bestIPs = zone, ips
		}
	}
	if bestZone == "" {
		return nil, false
	}
	d := newDelegation(bestZone)
	d.Servers["forward-target."] = append([]string(nil), bestIPs...)
	return d, true
}
