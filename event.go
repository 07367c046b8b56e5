package resolver

import (
	"time"

	"github.com/miekg/dns"
)

// Event is the iterator's per-resolution state, per spec.md §3. Events
// form a stack by parent pointer (depth = stack height) rather than by
// unbounded goroutine recursion, per spec.md §9.
type Event struct {
	Original Question // the question this event exists to answer
	Current  Question // possibly rewritten under a CNAME restart

	Answer   *Answer
	Category Category

	State      State
	FinalState State

	Prepend []dns.RR // CNAME chain accumulator, in order

	DP *Delegation

	RestartCount  int
	ReferralCount int
	ErrorCount    int
	Depth         int

	Start time.Time

	Parent *Event

	Result    *Answer
	ResultErr error
}
