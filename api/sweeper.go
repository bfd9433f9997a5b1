/*
sweeper.go - Background daily-cap enforcement sweep

PURPOSE:

	Periodically runs cap enforcement over the whole roster so sessions
	left open past their cap get their backdated cutoff even when nobody
	is looking at a dashboard.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Single-flight: a tick is skipped when the previous sweep is still
    running (never two concurrent sweeps)
  - Per-student failures are isolated inside Service.EnforceCaps; one
    bad record cannot stall the sweep
  - Safe alongside inline checks and operator actions: the enforcer's
    optimistic latest-event check resolves concurrent cutoffs

USAGE:

	sweeper := NewCapSweeper(handler)
	sweeper.Start()
	// ... later
	sweeper.Stop()

SEE ALSO:
  - attendance/cutoff.go: Enforcement semantics and the race guard
  - handlers.go: EnforceCaps endpoint (manual trigger)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// CapSweeper handles scheduled cap enforcement.
type CapSweeper struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	running sync.Mutex // held while one sweep is in flight
}

// NewCapSweeper creates a new sweeper.
func NewCapSweeper(handler *Handler) *CapSweeper {
	return &CapSweeper{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (cs *CapSweeper) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)

	go cs.run()

	log.Printf("[Sweeper] Started with check interval: %v", cs.CheckInterval)
}

// Stop stops the sweeper.
func (cs *CapSweeper) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (cs *CapSweeper) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.sweep()

	for {
		select {
		case <-cs.ticker.C:
			cs.sweep()
		case <-cs.stop:
			return
		}
	}
}

// sweep runs one enforcement pass. Single-flight: if a previous pass is
// still running, this tick is skipped rather than queued.
func (cs *CapSweeper) sweep() {
	if !cs.running.TryLock() {
		log.Println("[Sweeper] Previous sweep still running, skipping tick")
		return
	}
	defer cs.running.Unlock()

	ctx := context.Background()
	now := cs.Handler.now()

	actions, err := cs.Handler.Service.EnforceCaps(ctx, nil, now)
	if err != nil {
		log.Printf("[Sweeper] Sweep failed: %v", err)
		return
	}

	if len(actions) > 0 {
		log.Printf("[Sweeper] Injected %d cutoff(s)", len(actions))
		for _, a := range actions {
			log.Printf("[Sweeper] %s/%s cut off at %s (cap %ds)",
				a.StudentID, a.Period, a.CutoffAt.Format(time.RFC3339), a.CapSeconds)
		}
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (cs *CapSweeper) RunNow() {
	cs.sweep()
}
