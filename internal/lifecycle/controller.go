// Package lifecycle owns the current/next plot slots and drives them through
// the pending/ready/paused/injected/restored state machine with an
// auto-commit countdown, a bounded history ring and epoch-based discarding of
// stale generation results.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"plotloom/internal/generation"
	"plotloom/internal/hook"
	"plotloom/internal/host"
	"plotloom/internal/logging"
	"plotloom/internal/persist"
)

// Config tunes the controller.
type Config struct {
	// AutoCommit is the countdown before an unattended ready artifact is
	// injected automatically.
	AutoCommit time.Duration

	// HistoryLimit caps the history ring.
	HistoryLimit int

	// MessageWindow is how many recent messages feed the prompt.
	MessageWindow int

	// DirectionLimit caps the recent steering-hint set.
	DirectionLimit int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AutoCommit:     5 * time.Second,
		HistoryLimit:   hook.DefaultHistoryLimit,
		MessageWindow:  5,
		DirectionLimit: hook.DefaultDirectionLimit,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.AutoCommit <= 0 {
		c.AutoCommit = d.AutoCommit
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.MessageWindow <= 0 {
		c.MessageWindow = d.MessageWindow
	}
	if c.DirectionLimit <= 0 {
		c.DirectionLimit = d.DirectionLimit
	}
}

// Controller is the lifecycle state machine for one host. All state is
// guarded by one mutex; transitions are serialized, and results of
// asynchronous generation calls are admitted only if their captured epoch is
// still current, so the slot always reflects the most recently initiated
// generation regardless of completion order.
type Controller struct {
	mu sync.Mutex

	h     host.Host
	gen   generation.Generator
	store *persist.Adapter // nil disables persistence
	cfg   Config

	identity  host.Identity
	status    hook.Status
	current   *hook.Artifact
	next      *hook.Artifact
	history   []hook.HistoryEntry
	direction []string
	lastErr   error

	// epoch advances on every requestGeneration/skip for the current slot;
	// nextEpoch does the same for the look-ahead slot.
	epoch     uint64
	nextEpoch uint64

	// timer drives auto-commit; timerGen invalidates fires that raced a
	// Stop.
	timer    *time.Timer
	timerGen uint64
	paused   bool

	// historyID is non-empty while the current slot holds a re-edited
	// history entry; edits then update that entry in place and approval
	// skips the duplicate append.
	historyID string

	onStatus   func(hook.Status)
	onArtifact func(*hook.Artifact)
	onHistory  func([]hook.HistoryEntry)

	wg     sync.WaitGroup
	closed bool
}

// New builds a controller. store may be nil for in-memory-only operation.
func New(h host.Host, gen generation.Generator, store *persist.Adapter, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		h:      h,
		gen:    gen,
		store:  store,
		cfg:    cfg,
		status: hook.StatusPending,
	}
}

// OnStatusChanged registers the status observer. Must be called before the
// first transition.
func (c *Controller) OnStatusChanged(fn func(hook.Status)) { c.onStatus = fn }

// OnArtifactChanged registers the current-artifact observer.
func (c *Controller) OnArtifactChanged(fn func(*hook.Artifact)) { c.onArtifact = fn }

// OnHistoryChanged registers the history observer.
func (c *Controller) OnHistoryChanged(fn func([]hook.HistoryEntry)) { c.onHistory = fn }

// Activate (re)binds the controller to the host's active identity and
// restores persisted state if a snapshot exists. Called once per readiness
// activation cycle; any state from a previous identity is discarded without
// being persisted.
func (c *Controller) Activate(ctx context.Context) {
	id, ok := c.h.ActiveIdentity()

	c.mu.Lock()
	c.cancelTimerLocked()
	c.identity = host.Identity{}
	c.current = nil
	c.next = nil
	c.history = nil
	c.direction = nil
	c.historyID = ""
	c.lastErr = nil
	c.paused = false
	c.epoch++ // orphan any in-flight generation from the previous identity
	c.nextEpoch++
	c.status = hook.StatusPending

	if !ok {
		c.mu.Unlock()
		logging.Lifecycle("Activated with no identity; in-memory only")
		c.notifyStatus(hook.StatusPending)
		c.notifyArtifact(nil)
		c.notifyHistory(nil)
		return
	}
	c.identity = id

	var snap *hook.Snapshot
	if c.store != nil {
		c.mu.Unlock()
		snap = c.store.Load(ctx, id)
		c.mu.Lock()
	}

	if snap == nil || snap.CurrentText == "" {
		c.history = nil
		if snap != nil {
			c.history = append(c.history, snap.History...)
			c.direction = append(c.direction, snap.RecentDirections...)
		}
		hist := c.historyCopyLocked()
		c.mu.Unlock()
		logging.Lifecycle("Activated identity %s/%s with no restorable artifact", id.CharacterID, id.ConversationID)
		c.notifyStatus(hook.StatusPending)
		c.notifyArtifact(nil)
		c.notifyHistory(hist)
		return
	}

	c.current = &hook.Artifact{
		Text:      snap.CurrentText,
		CreatedAt: time.UnixMilli(snap.Timestamp),
	}
	c.history = append([]hook.HistoryEntry(nil), snap.History...)
	c.direction = append([]string(nil), snap.RecentDirections...)
	if snap.AutoCommitMs > 0 {
		c.cfg.AutoCommit = time.Duration(snap.AutoCommitMs) * time.Millisecond
	}
	// Restored is ready in all but label; no countdown is armed for an
	// artifact the operator has not seen generated.
	c.status = hook.StatusRestored
	art := c.current
	hist := c.historyCopyLocked()
	c.mu.Unlock()

	logging.Lifecycle("Restored snapshot for %s/%s: %d history entries", id.CharacterID, id.ConversationID, len(hist))
	c.notifyStatus(hook.StatusRestored)
	c.notifyArtifact(art)
	c.notifyHistory(hist)
}

// Status returns the current lifecycle status.
func (c *Controller) Status() hook.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Current returns the current artifact, or nil.
func (c *Controller) Current() *hook.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Next returns the precomputed look-ahead artifact, or nil.
func (c *Controller) Next() *hook.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// History returns a copy of the history ring, newest first.
func (c *Controller) History() []hook.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyCopyLocked()
}

// Directions returns a copy of the steering hints, most recent first.
func (c *Controller) Directions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.direction...)
}

// LastError returns the most recent generation failure, cleared by the next
// successful generation.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close cancels the countdown and waits for outstanding background work
// (in-flight generations, pending saves). In-flight results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancelTimerLocked()
	c.epoch++
	c.nextEpoch++
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) historyCopyLocked() []hook.HistoryEntry {
	return append([]hook.HistoryEntry(nil), c.history...)
}

// snapshotLocked builds the persisted shape from current state.
func (c *Controller) snapshotLocked() *hook.Snapshot {
	snap := &hook.Snapshot{
		Status:           c.status,
		History:          c.historyCopyLocked(),
		RecentDirections: append([]string(nil), c.direction...),
		AutoCommitMs:     c.cfg.AutoCommit.Milliseconds(),
		Timestamp:        time.Now().UnixMilli(),
	}
	if c.current != nil {
		snap.CurrentText = c.current.Text
	}
	return snap
}

// saveLocked persists a snapshot in the background, best effort. Must be
// called with the mutex held.
func (c *Controller) saveLocked() {
	if c.store == nil || !c.identity.Defined() || c.closed {
		return
	}
	snap := c.snapshotLocked()
	id := c.identity
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.store.Save(ctx, id, snap)
	}()
}

// armTimerLocked starts the auto-commit countdown for the current artifact.
func (c *Controller) armTimerLocked() {
	c.cancelTimerLocked()
	if c.paused || c.current == nil || c.cfg.AutoCommit <= 0 {
		return
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.cfg.AutoCommit, func() {
		c.autoCommit(gen)
	})
	logging.LifecycleDebug("Auto-commit armed for %v", c.cfg.AutoCommit)
}

// cancelTimerLocked stops any outstanding countdown. The generation bump
// invalidates a fire that already left the timer but has not taken the lock.
func (c *Controller) cancelTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) notifyStatus(s hook.Status) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func (c *Controller) notifyArtifact(a *hook.Artifact) {
	if c.onArtifact != nil {
		c.onArtifact(a)
	}
}

func (c *Controller) notifyHistory(h []hook.HistoryEntry) {
	if c.onHistory != nil {
		c.onHistory(h)
	}
}
