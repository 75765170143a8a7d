// Package connectivity reports whether the remote back-office API is
// reachable. The data layer only ever reads this state; transitions from
// offline to online are edge-triggered signals that a drain of the
// pending-operation log should run.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Oracle is the single synchronous read the repository and sync engine
// consume. Implementations must be safe for concurrent use.
type Oracle interface {
	IsOnline() bool
}

// Static is an Oracle with an explicitly set state. Used in tests and for
// forced-offline operation.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a Static oracle in the given state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// IsOnline reports the current state.
func (s *Static) IsOnline() bool { return s.online.Load() }

// SetOnline flips the state.
func (s *Static) SetOnline(v bool) { s.online.Store(v) }

// Probe is the production Oracle: it polls a health URL on a fixed
// interval and notifies subscribers whenever the state transitions from
// offline to online. The probe starts pessimistic (offline) until the
// first successful check.
type Probe struct {
	url      string
	interval time.Duration
	hc       *http.Client

	online atomic.Bool

	mu   sync.Mutex
	subs []chan struct{}
}

// NewProbe builds a probe against the given health URL. hc may be nil, in
// which case a client with a timeout shorter than the poll interval is used.
func NewProbe(url string, interval time.Duration, hc *http.Client) *Probe {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if hc == nil {
		timeout := interval / 2
		if timeout > 5*time.Second {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Probe{url: url, interval: interval, hc: hc}
}

// IsOnline reports the state observed by the most recent check.
func (p *Probe) IsOnline() bool { return p.online.Load() }

// Subscribe returns a channel that receives a signal on every
// offline→online transition. The channel is buffered; a slow consumer
// misses coalesced edges, never blocks the probe.
func (p *Probe) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Run polls until ctx is canceled. An immediate check runs before the
// first tick so startup state settles without waiting a full interval.
func (p *Probe) Run(ctx context.Context) {
	p.checkOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkOnce(ctx)
		}
	}
}

// checkOnce performs one health check and publishes the edge if the state
// went from offline to online.
func (p *Probe) checkOnce(ctx context.Context) {
	now := p.check(ctx)
	was := p.online.Swap(now)
	if now && !was {
		p.notify()
	}
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (p *Probe) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
