// Package poller runs one periodic task on behalf of a single owner.
//
// A Poller calls its function once when started and then on every tick
// until its context is cancelled or Stop is called. Stop waits for the
// running invocation to return, so the owner can tear down whatever the
// function touches as soon as Stop returns.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/getgetleads/connect/pkg/logging"
)

// DefaultInterval replaces a non-positive interval passed to New.
const DefaultInterval = time.Minute

// Func is the polled work. It receives the poller's context.
type Func func(ctx context.Context)

// Poller is a cancellable ticker-driven loop.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a poller named name that runs fn every interval. A zero or
// negative interval selects DefaultInterval.
func New(name string, interval time.Duration, fn Func) *Poller {
	if interval <= 0 {
		logging.Warn("Poller", "Invalid interval %s for %s, using %s", interval, name, DefaultInterval)
		interval = DefaultInterval
	}
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. Only the first call has an effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	logging.Debug("Poller", "Starting %s every %s", p.name, p.interval)
	p.fn(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Poller", "Stopped %s", p.name)
			return
		case <-ticker.C:
			// A tick and a cancellation can be ready together.
			if ctx.Err() != nil {
				continue
			}
			p.fn(ctx)
		}
	}
}

// Stop cancels the loop and waits for it to exit. It is safe to call more
// than once and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	started := p.started
	if !started {
		// Prevent a later Start from launching a loop nobody will stop.
		p.started = true
		close(p.done)
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-p.done
}
