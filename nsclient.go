package resolver

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	queryDeadline  = 3 * time.Second
	ednsBufferSize = 4096
)

// dnsPort is a var, not a const, so tests can redirect NSClient at an
// ephemeral loopback listener instead of the real port 53.
var dnsPort = "53"

// NSClient sends one DNS query to one upstream IP over UDP, per spec.md
// §4.5: ephemeral socket, randomized ID, fixed deadline, EDNS fallback on
// FormErr, RTT reporting to the host selector.
type NSClient struct {
	client   *dns.Client
	selector *HostSelector
}

// NewNSClient returns an NSClient reporting RTT/timeout observations to
// selector.
func NewNSClient(selector *HostSelector) *NSClient {
	return &NSClient{
		client:   &dns.Client{Net: "udp", Timeout: queryDeadline},
		selector: selector,
	}
}

// Query sends q to ip:53 and returns the parsed reply. On timeout or I/O
// error it reports a timeout to the host selector and returns the error.
// If the reply's rcode is FormErr, it retries once with EDNS stripped
// (§4.5 fallback) before giving up.
func (c *NSClient) Query(ctx context.Context, q Question, ip string) (*dns.Msg, time.Duration, error) {
	addr := net.JoinHostPort(ip, dnsPort)

	r, rtt, err := c.exchange(ctx, q, addr, true)
	if err != nil {
		c.selector.SetTimeout(ip, queryDeadline)
		return nil, 0, err
	}
	if r.Rcode == dns.RcodeFormatError {
		r, rtt, err = c.exchange(ctx, q, addr, false)
		if err != nil {
			c.selector.SetTimeout(ip, queryDeadline)
			return nil, 0, err
		}
	}
	c.selector.SetRTT(ip, rtt)
	return r, rtt, nil
}

func (c *NSClient) exchange(ctx context.Context, q Question, addr string, edns bool) (*dns.Msg, time.Duration, error) {
	m := new(dns.Msg)
	m.Id = uint16(rand.Intn(1 << 16))
	m.RecursionDesired = false
	m.Question = []dns.Question{{Name: dns.Fqdn(q.Name), Qtype: q.Type, Qclass: dns.ClassINET}}
	if edns {
		m.SetEdns0(ednsBufferSize, false)
	}
	start := time.Now()
	r, _, err := c.client.ExchangeContext(ctx, m, addr)
	return r, time.Since(start), err
}
