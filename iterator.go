package resolver

import (
	"context"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// Budgets from spec.md §4.8.
const (
	maxDependentDepth = 4
	maxCNAMERestarts  = 8
	maxReferralSteps  = 10
	maxConsecutiveErr = 5
	wallClockBudget   = 10 * time.Second
)

// Iterator is the event-driven resolver state machine of spec.md §4.8: it
// walks the DNS hierarchy one referral at a time from cached delegations
// or root hints, follows CNAME chains, primes missing nameserver
// addresses through dependent sub-events, and finalizes a response.
type Iterator struct {
	rrsets    *RRSetCache
	msgs      *MessageCache
	selector  *HostSelector
	aggregate *AggregateClient
	roots     *RootHints
	forwarder *Forwarder
	clk       clock.Clock
	log       Logger
}

// IteratorOption configures an Iterator at construction.
type IteratorOption func(*Iterator)

// WithForwarder installs a conditional-forward map consulted in InitQuery
// before falling back to cache/root priming, per spec.md §4.8/§4.9.
func WithForwarder(f *Forwarder) IteratorOption {
	return func(it *Iterator) { it.forwarder = f }
}

// WithLogger overrides the iterator's Logger; the default discards logs.
func WithLogger(l Logger) IteratorOption {
	return func(it *Iterator) { it.log = l }
}

// WithClock overrides the iterator's clock; the default is wall-clock
// real time. Tests inject a fake clock to make budgets deterministic.
func WithClock(clk clock.Clock) IteratorOption {
	return func(it *Iterator) { it.clk = clk }
}

// NewIterator wires the collaborators described in spec.md §2's dependency
// table into a single iterator.
func NewIterator(rrsets *RRSetCache, msgs *MessageCache, selector *HostSelector, aggregate *AggregateClient, roots *RootHints, opts ...IteratorOption) *Iterator {
	it := &Iterator{
		rrsets:    rrsets,
		msgs:      msgs,
		selector:  selector,
		aggregate: aggregate,
		roots:     roots,
		clk:       clock.Default(),
		log:       nopLogger{},
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Resolve iteratively resolves q, per spec.md §4.8, returning a response
// with response code ServFail rather than propagating an error — per
// spec.md §7, "no exceptions leak across the resolver boundary."
func (it *Iterator) Resolve(ctx context.Context, q Question) *Answer {
	root := &Event{
		Original:   q,
		Current:    q,
		State:      StateInitQuery,
		FinalState: StateFinished,
		Start:      it.clk.Now(),
	}
	stack := []*Event{root}

	for len(stack) > 0 {
		ev := stack[len(stack)-1]

		if it.clk.Now().Sub(root.Start) > wallClockBudget && ev.State != ev.FinalState {
			ev.Category = CategoryServerFail
			ev.State = ev.FinalState
		}

		it.log.Debug(map[string]any{"question": ev.Current.String(), "state": ev.State.String(), "depth": ev.Depth, "stack": len(stack)}, "state transition")

		switch ev.State {
		case StateInitQuery:
			it.stepInitQuery(ev, &stack)
		case StateQueryTarget:
			it.stepQueryTarget(ctx, ev, &stack)
		case StateQueryResponse:
			it.stepQueryResponse(ev)
		case StatePrimeResponse:
			it.stepPrimeResponse(ev, &stack)
		case StateTargetResponse:
			it.stepTargetResponse(ev, &stack)
		case StateFinished:
			it.stepFinished(ev, &stack)
		}
	}

	return root.Result
}

func (it *Iterator) stepInitQuery(ev *Event, stack *[]*Event) {
	if ev.Depth > maxDependentDepth {
		it.log.Warn(map[string]any{"question": ev.Current.String(), "depth": ev.Depth}, "dependent resolution too deep")
		ev.Category = CategoryServerFail
		ev.State = ev.FinalState
		return
	}
	if ev.RestartCount > maxCNAMERestarts {
		it.log.Warn(map[string]any{"question": ev.Current.String()}, "too many CNAME restarts")
		ev.Category = CategoryServerFail
		ev.State = ev.FinalState
		return
	}

	if a, cat, ok := it.msgs.GenResponse(ev.Current); ok {
		ev.Answer, ev.Category = a, cat
		ev.State = ev.FinalState
		return
	}

	if a, ok := it.msgs.GenCNAMEResponse(ev.Current); ok {
		ev.Answer, ev.Category = a, CategoryCName
		ev.State = StateQueryResponse
		return
	}

	if it.forwarder != nil {
		if d, ok := it.forwarder.Lookup(ev.Current.Name); ok {
			ev.DP = d
			ev.State = StateQueryTarget
			return
		}
	}

	if d, ok := NewDelegationFromCache(it.msgs, it.rrsets, ev.Current.Name); ok && d.Usable() {
		ev.DP = d
		ev.State = StateQueryTarget
		return
	}

	// Prime root: resolve the root NS rrset through a dependent sub-event.
	sub := &Event{
		Original:   Question{Name: ".", Type: dns.TypeNS},
		Current:    Question{Name: ".", Type: dns.TypeNS},
		DP:         it.roots.DelegationPoint(),
		State:      StateQueryTarget,
		FinalState: StatePrimeResponse,
		Parent:     ev,
		Depth:      ev.Depth + 1,
		Start:      it.clk.Now(),
	}
	*stack = append(*stack, sub)
}

func (it *Iterator) stepQueryTarget(ctx context.Context, ev *Event, stack *[]*Event) {
	if ev.ReferralCount > maxReferralSteps || ev.ErrorCount > maxConsecutiveErr {
		ev.Category = CategoryServerFail
		ev.State = ev.FinalState
		return
	}

	ip, ok := ev.DP.Target(it.selector)
	if !ok {
		name, ok2 := ev.DP.MissingServer()
		if !ok2 {
			ev.Category = CategoryServerFail
			ev.State = ev.FinalState
			return
		}
		sub := &Event{
			Original:   Question{Name: name, Type: dns.TypeA},
			Current:    Question{Name: name, Type: dns.TypeA},
			State:      StateInitQuery,
			FinalState: StateTargetResponse,
			Parent:     ev,
			Depth:      ev.Depth + 1,
			Start:      it.clk.Now(),
		}
		*stack = append(*stack, sub)
		return
	}

	msg, _, err := it.aggregate.Query(ctx, ev.Current, ip)
	if err != nil {
		ev.ErrorCount++
		it.log.Debug(map[string]any{"question": ev.Current.String(), "ns": ip, "error": err.Error()}, "upstream query failed")
		return // remain in QueryTarget; next iteration re-selects a host
	}

	cat, classErr := Classify(ev.DP.Zone, ev.Current, msg)
	if classErr != nil {
		ev.ErrorCount++
		ev.DP.MarkLame(ip)
		it.log.Debug(map[string]any{"question": ev.Current.String(), "ns": ip, "error": classErr.Error()}, "response failed sanitization")
		return
	}

	answer := extractAnswer(msg)
	switch cat {
	case CategoryServerFail:
		ev.DP.MarkLame(ip)
		return
	case CategoryAnswer, CategoryNXDomain, CategoryNXRRset, CategoryReferral, CategoryCName:
		it.msgs.AddResponse(ev.Current, answer, cat, msg.Authoritative)
		ev.Answer, ev.Category = answer, cat
		ev.State = StateQueryResponse
	}
}

func (it *Iterator) stepQueryResponse(ev *Event) {
	switch ev.Category {
	case CategoryAnswer, CategoryNXDomain, CategoryNXRRset:
		ev.State = ev.FinalState
	case CategoryReferral:
		ev.DP = NewDelegationFromReferral(ev.Answer.Authority, ev.Answer.Additional)
		ev.ReferralCount++
		ev.State = StateQueryTarget
	case CategoryCName:
		if len(ev.Answer.Answer) == 0 {
			ev.Category = CategoryServerFail
			ev.State = ev.FinalState
			return
		}
		last := ev.Answer.Answer[len(ev.Answer.Answer)-1]
		cname, ok := last.(*dns.CNAME)
		if !ok {
			ev.Category = CategoryServerFail
			ev.State = ev.FinalState
			return
		}
		ev.Prepend = append(ev.Prepend, ev.Answer.Answer...)
		ev.Current = Question{Name: dns.Fqdn(cname.Target), Type: ev.Current.Type}
		ev.RestartCount++
		ev.DP = nil
		ev.State = StateInitQuery
	default:
		ev.State = StateQueryTarget
	}
}

func (it *Iterator) stepPrimeResponse(ev *Event, stack *[]*Event) {
	parent := ev.Parent
	if ev.Category == CategoryAnswer && len(ev.Answer.Answer) > 0 {
		d := NewDelegationFromReferral(ev.Answer.Answer, ev.Answer.Additional)
		ttl := minTTLOf(ev.Answer.Answer)
		if ttl <= 0 {
			ttl = time.Hour
		}
		it.rrsets.Add(".", dns.TypeNS, ev.Answer.Answer, TrustPrimaryNonGlue, ttl)
		parent.DP = d
		parent.State = StateQueryTarget
	} else {
		parent.Category = CategoryServerFail
		parent.State = parent.FinalState
	}
	*stack = (*stack)[:len(*stack)-1]
}

func (it *Iterator) stepTargetResponse(ev *Event, stack *[]*Event) {
	parent := ev.Parent
	defer func() { *stack = (*stack)[:len(*stack)-1] }()

	if ev.Category != CategoryAnswer || ev.Answer == nil || len(ev.Answer.Answer) == 0 {
		parent.DP.MarkProbed(ev.Original.Name)
		parent.State = StateQueryTarget
		return
	}

	last := dns.Copy(ev.Answer.Answer[len(ev.Answer.Answer)-1])
	if !nameEqual(last.Header().Name, ev.Original.Name) {
		// Tolerate CNAME'd glue: some authorities alias the address record
		// for a nameserver. Rewrite the owner to the queried name so it
		// still matches a known server on the parent dp.
		it.log.Warn(map[string]any{"nameserver": ev.Original.Name, "rewritten_from": last.Header().Name}, "glue address owner differs from queried nameserver, tolerating")
		last.Header().Name = dns.Fqdn(ev.Original.Name)
	}

	a, ok := last.(*dns.A)
	if !ok {
		parent.DP.MarkProbed(ev.Original.Name)
		parent.State = StateQueryTarget
		return
	}
	if _, known := parent.DP.Servers[dns.Fqdn(ev.Original.Name)]; !known {
		parent.DP.MarkProbed(ev.Original.Name)
		parent.State = StateQueryTarget
		return
	}

	parent.DP.AddGlue([]dns.RR{a})
	it.rrsets.Add(dns.Fqdn(ev.Original.Name), dns.TypeA, []dns.RR{a}, TrustPrimaryGlue, time.Duration(a.Hdr.Ttl)*time.Second)
	parent.State = StateQueryTarget
}

func (it *Iterator) stepFinished(ev *Event, stack *[]*Event) {
	final := &Answer{Rcode: dns.RcodeServerFailure}

	switch ev.Category {
	case CategoryAnswer:
		final.Rcode = dns.RcodeSuccess
		if ev.Answer.Authority != nil {
			final.Authority = ev.Answer.Authority
		}
	case CategoryNXDomain:
		final.Rcode = dns.RcodeNameError
		final.Authority = ev.Answer.Authority
	case CategoryNXRRset:
		final.Rcode = dns.RcodeSuccess
		final.Authority = ev.Answer.Authority
	default:
		final.Rcode = dns.RcodeServerFailure
	}

	// The prepend list (the CNAME chain walked to get here) belongs in the
	// answer section regardless of terminal category, per spec.md §4.8 —
	// an NXDomain/NXRRset terminus still shows the CNAMEs that led to it.
	var answerRRs []dns.RR
	if ev.Answer != nil {
		answerRRs = ev.Answer.Answer
	}
	final.Answer = append(append([]dns.RR{}, ev.Prepend...), answerRRs...)

	if ev.Category != CategoryServerFail && ev.RestartCount > 0 && final.Rcode == dns.RcodeSuccess {
		it.msgs.AddResponse(ev.Original, final, CategoryAnswer, false)
	}

	it.log.Info(map[string]any{"question": ev.Original.String(), "rcode": dns.RcodeToString[final.Rcode], "category": ev.Category.String(), "restarts": ev.RestartCount, "referrals": ev.ReferralCount}, "resolution finished")

	ev.Result = final
	*stack = (*stack)[:len(*stack)-1]
}

func extractAnswer(m *dns.Msg) *Answer {
	return &Answer{
		Answer:     m.Answer,
		Authority:  m.Ns,
		Additional: m.Extra,
		Rcode:      m.Rcode,
	}
}
