package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

// maxInFlightKeys is N in spec.md §4.6.
const maxInFlightKeys = 1000

// AggregateClient wraps an NSClient with single-flight de-duplication of
// concurrent identical queries, per spec.md §4.6. Queries are keyed by
// (name, type) only — not by target IP — so two callers resolving the
// same question against different candidate hosts still collapse into
// one wire transaction, with the first caller's chosen host winning.
type AggregateClient struct {
	ns    *NSClient
	group singleflight.Group

	mu   sync.Mutex
	refs map[string]int
}

// NewAggregateClient returns an AggregateClient issuing underlying
// queries through ns.
func NewAggregateClient(ns *NSClient) *AggregateClient {
	return &AggregateClient{ns: ns, refs: make(map[string]int)}
}

type aggregateResult struct {
	msg *dns.Msg
	rtt time.Duration
}

func aggregateKey(q Question) string {
	return fmt.Sprintf("%s|%d", q.Name, q.Type)
}

// Query issues q against ip, collapsing concurrent callers with the same
// (name, type) key into a single underlying exchange. Each caller gets an
// independent copy of the resulting message. Above maxInFlightKeys
// distinct outstanding keys, new keys fail with ErrTooManyInFlight; a
// second caller joining an existing key is always admitted.
func (ac *AggregateClient) Query(ctx context.Context, q Question, ip string) (*dns.Msg, time.Duration, error) {
	key := aggregateKey(q)

	ac.mu.Lock()
	if ac.refs[key] == 0 && len(ac.refs) >= maxInFlightKeys {
		ac.mu.Unlock()
		return nil, 0, ErrTooManyInFlight
	}
	ac.refs[key]++
	ac.mu.Unlock()

	defer func() {
		ac.mu.Lock()
		ac.refs[key]--
		if ac.refs[key] <= 0 {
			delete(ac.refs, key)
		}
		ac.mu.Unlock()
	}()

	v, err, _ := ac.group.Do(key, func() (interface{}, error) {
		msg, rtt, err := ac.ns.Query(ctx, q, ip)
		if err != nil {
			return nil, err
		}
		return aggregateResult{msg: msg, rtt: rtt}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	res := v.(aggregateResult)
	return res.msg.Copy(), res.rtt, nil
}
