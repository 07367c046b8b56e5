package resolver

import (
	"context"

	"github.com/miekg/dns"
)

// Authority is the out-of-scope authoritative-zone collaborator (§1, §6).
// The enclosing resolver offers every incoming request to it first; if it
// returns a non-nil response, iteration is skipped entirely.
type Authority interface {
	// Resolve returns a built response (headers already matching request)
	// if the queried name falls within a zone this store serves, or nil if
	// it does not and the request should fall through to iteration.
	Resolve(request *dns.Msg) *dns.Msg
}

// Resolver is the front-end-facing entrypoint: offer the request to the
// Authority collaborator, and iterate only on a miss. The UDP/TCP framing,
// worker dispatch, and metrics that would call this are out of scope
// (§1); this is the seam they call through.
type Resolver struct {
	authority Authority
	iterator  *Iterator
}

// NewResolver wires an Authority collaborator (may be nil, meaning "serve
// nothing authoritatively") in front of an Iterator.
func NewResolver(authority Authority, iterator *Iterator) *Resolver {
	return &Resolver{authority: authority, iterator: iterator}
}

// Resolve answers a single-question request, trying the authority
// collaborator first and falling back to iteration, per spec.md §6.
func (r *Resolver) Resolve(ctx context.Context, request *dns.Msg) *dns.Msg {
	if r.authority != nil {
		if resp := r.authority.Resolve(request); resp != nil {
			return resp
		}
	}

	reply := new(dns.Msg)
	reply.SetReply(request)
	reply.RecursionAvailable = true

	if len(request.Question) != 1 {
		reply.Rcode = dns.RcodeFormatError
		return reply
	}

	q := questionFromDNS(request.Question[0])
	a := r.iterator.Resolve(ctx, q)

	reply.Rcode = a.Rcode
	reply.Answer = a.Answer
	reply.Ns = a.Authority
	reply.Extra = a.Additional
	reply.Authoritative = false
	return reply
}
