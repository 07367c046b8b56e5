package resolver

import "github.com/miekg/dns"

// Classify validates and sanitizes an upstream response in place against
// the zone it should be authoritative under and the original question,
// per spec.md §4.7. It returns the response's category, or an error if
// the response fails sanitization outright.
func Classify(zone string, q Question, msg *dns.Msg) (Category, error) {
	// 1. QR flag set; opcode Query; question present and matches.
	if !msg.Response || msg.Opcode != dns.OpcodeQuery {
		return CategoryServerFail, ErrMalformedResponse
	}
	if len(msg.Question) != 1 {
		return CategoryServerFail, ErrQuestionMismatch
	}
	if !nameEqual(msg.Question[0].Name, q.Name) || msg.Question[0].Qtype != q.Type {
		return CategoryServerFail, ErrQuestionMismatch
	}

	// 2. Baseline category from rcode.
	var cat Category
	switch msg.Rcode {
	case dns.RcodeSuccess:
		cat = CategoryNXRRset
	case dns.RcodeNameError:
		cat = CategoryNXDomain
	default:
		return CategoryServerFail, nil
	}

	aa := msg.Authoritative
	nxdomain := cat == CategoryNXDomain

	// 3. Answer section.
	if len(msg.Answer) > 0 {
		kept := dropOutOfBailiwick(msg.Answer, zone)
		if len(kept) > 0 {
			first := kept[0]
			if !nameEqual(first.Header().Name, q.Name) {
				return CategoryServerFail, ErrBadCNAMEChain
			}
			if first.Header().Rrtype != q.Type && first.Header().Rrtype != dns.TypeCNAME {
				return CategoryServerFail, ErrBadCNAMEChain
			}

			i := 0
			curName := first.Header().Name
			for i < len(kept) {
				r := kept[i]
				if r.Header().Rrtype != dns.TypeCNAME {
					break
				}
				if !nameEqual(r.Header().Name, curName) {
					return CategoryServerFail, ErrBadCNAMEChain
				}
				cname, ok := r.(*dns.CNAME)
				if !ok {
					return CategoryServerFail, ErrBadCNAMEChain
				}
				curName = cname.Target
				i++
			}

			if i < len(kept) {
				term := kept[i]
				if !nameEqual(term.Header().Name, curName) {
					return CategoryServerFail, ErrBadCNAMEChain
				}
				kept = kept[:i+1]
				if term.Header().Rrtype == q.Type {
					cat = CategoryAnswer
				} else {
					cat = CategoryCName
				}
			} else if q.Type == dns.TypeCNAME {
				cat = CategoryAnswer
			} else {
				cat = CategoryCName
			}
		}
		msg.Answer = kept
	}

	// 4. Authority section.
	authKept := dropOutOfBailiwick(msg.Ns, zone)
	groups := groupRRsets(authKept)
	if len(groups) > 1 {
		return CategoryServerFail, ErrMultipleAuthorities
	}
	msg.Ns = authKept
	var authRRset []dns.RR
	for _, g := range groups {
		authRRset = g
	}

	switch {
	case nxdomain:
		if len(authRRset) == 0 || authRRset[0].Header().Rrtype != dns.TypeSOA {
			return CategoryServerFail, ErrMissingSOA
		}
	case len(msg.Answer) > 0 && aa:
		if len(authRRset) > 0 && authRRset[0].Header().Rrtype != dns.TypeNS {
			return CategoryServerFail, ErrMissingNS
		}
	case len(msg.Answer) == 0:
		if len(authRRset) > 0 && authRRset[0].Header().Rrtype == dns.TypeNS {
			cat = CategoryReferral
		}
	}

	// 5. Additional section: drop out-of-bailiwick records, then keep only
	// A/AAAA glue (plus OPT, which carries no name to judge bailiwick on).
	kept := make([]dns.RR, 0, len(msg.Extra))
	for _, r := range msg.Extra {
		if r.Header().Rrtype == dns.TypeOPT {
			kept = append(kept, r)
			continue
		}
		if !isSubdomain(r.Header().Name, zone) {
			continue
		}
		if r.Header().Rrtype == dns.TypeA || r.Header().Rrtype == dns.TypeAAAA {
			kept = append(kept, r)
		}
	}
	msg.Extra = kept

	// 6. Header counts are derived from section lengths at pack time by
	// miekg/dns; nothing further to recompute here.
	return cat, nil
}

func dropOutOfBailiwick(rrs []dns.RR, zone string) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, r := range rrs {
		if isSubdomain(r.Header().Name, zone) {
			out = append(out, r)
		}
	}
	return out
}

func groupRRsets(rrs []dns.RR) map[rrsetKey][]dns.RR {
	groups := make(map[rrsetKey][]dns.RR)
	for _, r := range rrs {
		k := rrsetKeyOf(r.Header().Name, r.Header().Rrtype)
		groups[k] = append(groups[k], r)
	}
	return groups
}
