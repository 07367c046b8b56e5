package resolver

import "github.com/miekg/dns"

// Delegation is the delegation point of spec.md §4.4: a zone, its
// nameservers' known addresses, a probed set and a lame set. Delegation
// objects are per-event and unshared (§5), so no internal locking.
type Delegation struct {
	Zone    string
	Servers map[string][]string // nameserver name -> known IPs
	Probed  map[string]bool     // nameserver names already probed for address
	Lame    map[string]bool     // IPs marked lame
}

func newDelegation(zone string) *Delegation {
	return &Delegation{
		Zone:    dns.Fqdn(zone),
		Servers: make(map[string][]string),
		Probed:  make(map[string]bool),
		Lame:    make(map[string]bool),
	}
}

// NewDelegationFromReferral builds a delegation point from a referral
// response's authority NS rrset and any in-bailiwick additional A/AAAA
// glue, per spec.md §4.4(a). It is also used for priming (§4.4(b)): a
// freshly resolved NS rrset plus its glue list is the same shape.
func NewDelegationFromReferral(ns []dns.RR, additional []dns.RR) *Delegation {
	zone := "."
	servers := make(map[string][]string)
	for _, r := range ns {
		nsRR, ok := r.(*dns.NS)
		if !ok {
			continue
		}
		zone = nsRR.Header().Name
		name := dns.Fqdn(nsRR.Ns)
		if _, ok := servers[name]; !ok {
			servers[name] = nil
		}
	}
	d := &Delegation{Zone: dns.Fqdn(zone), Servers: servers, Probed: make(map[string]bool), Lame: make(map[string]bool)}
	d.AddGlue(additional)
	return d
}

// NewDelegationFromCache builds a delegation point via §4.2 get_deepest_ns,
// implementing §4.4(c): if the deepest cached NS's glue names all fall
// within its own zone and none of them are cached, that dp would force
// resolution of its own nameservers through itself (a loop), so this
// recurses upward to the next ancestor NS instead.
func NewDelegationFromCache(mc *MessageCache, rrsets *RRSetCache, name string) (*Delegation, bool) {
	probe := dns.Fqdn(name)
	for {
		zone, nsRRset, ok := mc.GetDeepestNS(probe)
		if !ok {
			return nil, false
		}
		d := newDelegation(zone)
		for _, r := range nsRRset {
			nsRR, ok := r.(*dns.NS)
			if !ok {
				continue
			}
			d.Servers[dns.Fqdn(nsRR.Ns)] = nil
		}

		anyGlue := false
		allInBailiwick := true
		for ns := range d.Servers {
			if addrs, present := rrsets.Get(ns, dns.TypeA); present {
				d.Servers[ns] = append(d.Servers[ns], ipsOfA(addrs)...)
				anyGlue = true
			}
			if addrs, present := rrsets.Get(ns, dns.TypeAAAA); present {
				d.Servers[ns] = append(d.Servers[ns], ipsOfAAAA(addrs)...)
				anyGlue = true
			}
			if !isSubdomain(ns, zone) {
				allInBailiwick = false
			}
		}
		if anyGlue || !allInBailiwick {
			return d, true
		}
		if zone == "." {
			return nil, false
		}
		_, parent := splitLabel(zone)
		probe = parent
	}
}

func ipsOfA(rrset []dns.RR) []string {
	out := make([]string, 0, len(rrset))
	for _, r := range rrset {
		if a, ok := r.(*dns.A); ok {
			out = append(out, a.A.String())
		}
	}
	return out
}

func ipsOfAAAA(rrset []dns.RR) []string {
	out := make([]string, 0, len(rrset))
	for _, r := range rrset {
		if a, ok := r.(*dns.AAAA); ok {
			out = append(out, a.AAAA.String())
		}
	}
	return out
}

// AddGlue merges A/AAAA records whose owner matches a known nameserver
// name into that server's address list, per spec.md §4.4 add_glue.
func (d *Delegation) AddGlue(rrset []dns.RR) {
	for _, r := range rrset {
		var ip string
		switch rr := r.(type) {
		case *dns.A:
			ip = rr.A.String()
		case *dns.AAAA:
			ip = rr.AAAA.String()
		default:
			continue
		}
		name := dns.Fqdn(r.Header().Name)
		addrs, known := d.Servers[name]
		if !known {
			continue
		}
		if containsStr(addrs, ip) {
			continue
		}
		d.Servers[name] = append(addrs, ip)
	}
}

func containsStr(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Target flattens all non-lame glue IPs across all servers and hands them
// to the host selector, per spec.md §4.4 target.
func (d *Delegation) Target(selector *HostSelector) (string, bool) {
	var ips []string
	for _, addrs := range d.Servers {
		for _, ip := range addrs {
			if !d.Lame[ip] {
				ips = append(ips, ip)
			}
		}
	}
	if len(ips) == 0 {
		return "", false
	}
	return selector.Select(ips)
}

// MissingServer returns the first nameserver with no glue that is also
// out-of-bailiwick for the zone and not yet probed, per spec.md §4.4
// missing_server. In-bailiwick servers with no glue are excluded: resolving
// them would have to go back through this same delegation point (§4.9/§9).
// Map ranging gives an arbitrary pick among equally-eligible candidates,
// same trick the teacher's pickAuthority uses for "random" selection.
func (d *Delegation) MissingServer() (string, bool) {
	for ns, addrs := range d.Servers {
		if len(addrs) > 0 {
			continue
		}
		if isSubdomain(ns, d.Zone) {
			continue
		}
		if d.Probed[ns] {
			continue
		}
		return ns, true
	}
	return "", false
}

// MarkProbed records that a probe for ns's address was launched, win or
// lose, so it is never attempted twice within one resolution.
func (d *Delegation) MarkProbed(name string) {
	d.Probed[dns.Fqdn(name)] = true
}

// MarkLame excludes ip from subsequent Target selections.
func (d *Delegation) MarkLame(ip string) {
	d.Lame[ip] = true
}

// Usable reports whether at least one known IP across all servers isn't
// marked lame, per spec.md §4.4's invariant.
func (d *Delegation) Usable() bool {
	for _, addrs := range d.Servers {
		for _, ip := range addrs {
			if !d.Lame[ip] {
				return true
			}
		}
	}
	return false
}
