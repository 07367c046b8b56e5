package resolver

import (
	"sync"
	"time"

	"github.com/jmhodges/clock"
)

const (
	// maxConsecutiveTimeouts is N in spec.md §4.3.
	maxConsecutiveTimeouts = 3
	// hostCoolDown is the 60s window a host is excluded for once it hits
	// maxConsecutiveTimeouts.
	hostCoolDown = 60 * time.Second
)

type hostState struct {
	rtt       time.Duration
	timeouts  int
	wakeAt    time.Time
	hasWakeAt bool
}

// HostSelector tracks latency/timeout state per upstream IP and picks the
// lowest-RTT usable host, per spec.md §4.3.
type HostSelector struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	clk   clock.Clock
}

// NewHostSelector returns an empty HostSelector.
func NewHostSelector(clk clock.Clock) *HostSelector {
	if clk == nil {
		clk = clock.Default()
	}
	return &HostSelector{hosts: make(map[string]*hostState), clk: clk}
}

// SetRTT records a successful exchange. Per spec.md §4.3: resets the
// timeout count and any cool-down, then blends the sample into the
// smoothed RTT as new = (7*old + 3*sample)/10.
func (hs *HostSelector) SetRTT(ip string, sample time.Duration) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	st, ok := hs.hosts[ip]
	if !ok {
		st = &hostState{}
		hs.hosts[ip] = st
	}
	if st.timeouts > 0 {
		st.timeouts = 0
		st.hasWakeAt = false
	}
	st.rtt = blend(st.rtt, sample)
}

// SetTimeout records a failed exchange. Blends the timeout "penalty"
// value into the smoothed RTT the same way, up to maxConsecutiveTimeouts,
// at which point the host is marked unusable until now+hostCoolDown.
func (hs *HostSelector) SetTimeout(ip string, penalty time.Duration) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	st, ok := hs.hosts[ip]
	if !ok {
		st = &hostState{}
		hs.hosts[ip] = st
	}
	st.rtt = blend(st.rtt, penalty)
	if st.timeouts < maxConsecutiveTimeouts {
		st.timeouts++
	}
	if st.timeouts >= maxConsecutiveTimeouts {
		st.wakeAt = hs.clk.Now().Add(hostCoolDown)
		st.hasWakeAt = true
	}
}

func blend(old, sample time.Duration) time.Duration {
	return (7*old + 3*sample) / 10
}

func (hs *HostSelector) usable(ip string) bool {
	st, ok := hs.hosts[ip]
	if !ok {
		return true
	}
	if st.timeouts < maxConsecutiveTimeouts {
		return true
	}
	if st.hasWakeAt && !hs.clk.Now().Before(st.wakeAt) {
		return true
	}
	return !st.hasWakeAt
}

// Select returns the minimum-RTT host among those currently usable in
// hosts. Unknown hosts are treated as RTT zero. Returns ("", false) if the
// set is empty or every host is unusable.
func (hs *HostSelector) Select(hosts []string) (string, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	best := ""
	var bestRTT time.Duration
	found := false
	for _, ip := range hosts {
		if !hs.usable(ip) {
			continue
		}
		rtt := time.Duration(0)
		if st, ok := hs.hosts[ip]; ok {
			rtt = st.rtt
		}
		if !found || rtt < bestRTT {
			best, bestRTT, found = ip, rtt, true
		}
	}
	return best, found
}
