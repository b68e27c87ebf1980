// Package readiness decides when the host environment is settled enough for
// the lifecycle engine to act. The host reports intermediate states during
// startup and after conversation switches (an identifier may exist before
// its message list finishes loading), and offers no single authoritative
// "fully loaded" event, so readiness is sampled: a conjunction of
// preconditions followed by a debounce-style stability check on the message
// count. Host events are only a hint to re-arm the sampler sooner.
package readiness

import (
	"context"
	"sync"
	"time"

	"plotloom/internal/host"
	"plotloom/internal/logging"
)

// Config tunes the detector.
type Config struct {
	// PollInterval and MaxAttempts bound the precondition wait. At most
	// PollInterval*MaxAttempts elapses before the detector gives up and
	// fires anyway in degraded mode; the wait is bounded, never unbounded.
	PollInterval time.Duration
	MaxAttempts  int

	// StabilityInterval and StableSamples drive the debounce: the message
	// count must be unchanged for StableSamples consecutive samples. An
	// empty list resets the counter; it is "still loading", never "stable
	// at zero".
	StabilityInterval time.Duration
	StableSamples     int

	// StabilityTimeout forces completion regardless, guaranteeing forward
	// progress.
	StabilityTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		MaxAttempts:       60,
		StabilityInterval: 300 * time.Millisecond,
		StableSamples:     3,
		StabilityTimeout:  10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.StabilityInterval <= 0 {
		c.StabilityInterval = d.StabilityInterval
	}
	if c.StableSamples <= 0 {
		c.StableSamples = d.StableSamples
	}
	if c.StabilityTimeout <= 0 {
		c.StabilityTimeout = d.StabilityTimeout
	}
}

// Detector fires a readiness callback exactly once per activation cycle and
// re-arms on every identity change.
type Detector struct {
	h   host.Host
	cfg Config

	mu    sync.Mutex
	cycle uint64 // advanced on every (re)arm; orphans the previous sampler
	fired bool
	wg    sync.WaitGroup
}

// NewDetector builds a detector around a host.
func NewDetector(h host.Host, cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{h: h, cfg: cfg}
}

// WaitUntilReady samples the host until it is stable, then invokes onReady
// exactly once for this activation cycle. Timing out still invokes the
// callback so dependent components initialize best-effort rather than never.
// Identity-change events from the host re-arm the detector, after which
// onReady can fire once more for the new cycle.
func (d *Detector) WaitUntilReady(ctx context.Context, onReady func()) {
	rearm := func() {
		d.mu.Lock()
		d.cycle++
		cycle := d.cycle
		d.fired = false
		d.mu.Unlock()
		logging.Readiness("Detector armed: cycle=%d", cycle)

		d.wg.Add(1)
		go d.run(ctx, cycle, onReady)
	}

	d.h.Subscribe(host.EventConversationChanged, rearm)
	d.h.Subscribe(host.EventCharacterChanged, rearm)
	rearm()
}

// Wait blocks until all outstanding sampler goroutines finish. Test helper.
func (d *Detector) Wait() {
	d.wg.Wait()
}

func (d *Detector) run(ctx context.Context, cycle uint64, onReady func()) {
	defer d.wg.Done()

	if !d.awaitPreconditions(ctx, cycle) {
		// Cancelled or superseded; the newer cycle owns the callback.
		if ctx.Err() != nil || d.stale(cycle) {
			return
		}
		// Bounded wait exhausted: proceed degraded.
		logging.Get(logging.CategoryReadiness).Warn("Preconditions not met after %d attempts; proceeding degraded", d.cfg.MaxAttempts)
		d.fire(cycle, onReady)
		return
	}

	if !d.awaitStability(ctx, cycle) {
		if ctx.Err() != nil || d.stale(cycle) {
			return
		}
		logging.Readiness("Stability window timed out; forcing completion")
	}
	d.fire(cycle, onReady)
}

// awaitPreconditions polls until the ready conjunction holds: an active
// identity exists, the message list is well-formed (possibly empty) and no
// host save/lock is in progress.
func (d *Detector) awaitPreconditions(ctx context.Context, cycle uint64) bool {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if d.stale(cycle) || ctx.Err() != nil {
			return false
		}
		if d.preconditionsMet() {
			return true
		}
		logging.ReadinessDebug("Preconditions not met: attempt=%d", attempt+1)
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return false
}

func (d *Detector) preconditionsMet() bool {
	id, ok := d.h.ActiveIdentity()
	if !ok {
		return false
	}
	if d.h.Busy() {
		return false
	}
	// A well-formed sequence distinguishes "empty" from "errored".
	_, err := d.h.RecentMessages(id.ConversationID, 0)
	return err == nil
}

// awaitStability requires the message count to be unchanged and non-zero for
// StableSamples consecutive samples; this absorbs bursty loading of
// historical messages. Returns false when the hard cap expired first.
func (d *Detector) awaitStability(ctx context.Context, cycle uint64) bool {
	ticker := time.NewTicker(d.cfg.StabilityInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(d.cfg.StabilityTimeout)
	defer deadline.Stop()

	lastCount := -1
	stable := 0
	for {
		if d.stale(cycle) || ctx.Err() != nil {
			return false
		}

		count := d.messageCount()
		if count > 0 && count == lastCount {
			stable++
			if stable >= d.cfg.StableSamples {
				logging.Readiness("Message list stable at %d messages", count)
				return true
			}
		} else {
			stable = 0
		}
		lastCount = count
		logging.ReadinessDebug("Stability sample: count=%d stable=%d/%d", count, stable, d.cfg.StableSamples)

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

func (d *Detector) messageCount() int {
	id, ok := d.h.ActiveIdentity()
	if !ok {
		return 0
	}
	msgs, err := d.h.RecentMessages(id.ConversationID, 0)
	if err != nil {
		return 0
	}
	return len(msgs)
}

func (d *Detector) stale(cycle uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cycle != d.cycle
}

// fire invokes the callback unless this cycle already fired or was
// superseded.
func (d *Detector) fire(cycle uint64, onReady func()) {
	d.mu.Lock()
	if cycle != d.cycle || d.fired {
		d.mu.Unlock()
		return
	}
	d.fired = true
	d.mu.Unlock()

	logging.Readiness("Host ready: cycle=%d", cycle)
	onReady()
}
