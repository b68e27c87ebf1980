package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"plotloom/internal/generation"
	"plotloom/internal/hook"
	"plotloom/internal/host"
	"plotloom/internal/logging"
)

// RequestGeneration starts a new generation for the current slot. The slot
// enters pending immediately; the result lands asynchronously and is
// discarded if another generation (or skip) has advanced the epoch in the
// meantime. Returns an error only for preconditions that fail before any
// call is issued.
func (c *Controller) RequestGeneration() error {
	c.mu.Lock()
	err := c.requestGenerationLocked()
	c.mu.Unlock()
	if err == nil {
		c.notifyStatus(hook.StatusPending)
	}
	return err
}

func (c *Controller) requestGenerationLocked() error {
	id, ok := c.h.ActiveIdentity()
	if !ok {
		return generation.ErrNoCharacter
	}
	c.identity = id

	c.epoch++
	epoch := c.epoch
	c.cancelTimerLocked()
	c.historyID = ""
	c.setStatusLocked(hook.StatusPending)
	logging.Lifecycle("Generation requested: epoch=%d", epoch)

	c.wg.Add(1)
	go c.runGeneration(epoch, id)
	return nil
}

// runGeneration performs the host reads and the pipeline call off the lock,
// then applies the result under it.
func (c *Controller) runGeneration(epoch uint64, id host.Identity) {
	defer c.wg.Done()

	character, err := c.h.Character(id.CharacterID)
	var artifact *hook.Artifact
	if err == nil {
		var messages []host.Message
		messages, err = c.h.RecentMessages(id.ConversationID, c.cfg.MessageWindow)
		if err == nil {
			artifact, err = c.gen.Generate(context.Background(), character, messages, c.promptOptions())
		}
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		logging.Lifecycle("Discarding stale generation result: epoch=%d current=%d", epoch, c.epoch)
		return
	}

	if err != nil {
		c.lastErr = err
		// The failure is surfaced but any previously displayed artifact
		// stays untouched so the operator keeps a fallback. No countdown is
		// armed; an auto-commit of a hook the operator already saw fail to
		// refresh would be a surprise.
		status := hook.StatusPending
		if c.current != nil {
			status = hook.StatusReady
		}
		c.setStatusLocked(status)
		c.saveLocked()
		c.mu.Unlock()
		logging.Lifecycle("Generation failed: epoch=%d err=%v", epoch, err)
		c.notifyStatus(status)
		return
	}

	c.lastErr = nil
	c.current = artifact
	c.historyID = ""
	c.setStatusLocked(hook.StatusReady)
	c.armTimerLocked()
	c.saveLocked()
	c.mu.Unlock()

	logging.Lifecycle("Generation succeeded: epoch=%d chars=%d", epoch, len(artifact.Text))
	c.notifyStatus(hook.StatusReady)
	c.notifyArtifact(artifact)
}

// promptOptions assembles pipeline options from the latest direction and any
// optional context providers the host implements.
func (c *Controller) promptOptions() generation.PromptOptions {
	c.mu.Lock()
	opts := generation.PromptOptions{MessageWindow: c.cfg.MessageWindow}
	if len(c.direction) > 0 {
		opts.Direction = c.direction[0]
	}
	c.mu.Unlock()

	if wp, ok := c.h.(host.WorldContextProvider); ok {
		opts.WorldContext = wp.WorldContext()
	}
	if ap, ok := c.h.(host.ArcStatusProvider); ok {
		opts.ArcStatus = ap.ArcStatus()
	}
	return opts
}

// Skip discards the current artifact and immediately requests a fresh
// generation.
func (c *Controller) Skip() error {
	c.mu.Lock()
	c.current = nil
	c.historyID = ""
	logging.Lifecycle("Skip: discarding current artifact")
	err := c.requestGenerationLocked()
	c.mu.Unlock()
	if err == nil {
		c.notifyStatus(hook.StatusPending)
		c.notifyArtifact(nil)
	}
	return err
}

// Edit replaces the current artifact's text in place. When the artifact
// originated from a history entry, that entry is updated in place (same ID,
// refreshed timestamp) instead of a new entry being appended later, which
// keeps edit-and-resave cycles from polluting history.
func (c *Controller) Edit(newText string) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	edited := *c.current
	edited.Text = newText
	edited.CreatedAt = time.Now()
	c.current = &edited

	var hist []hook.HistoryEntry
	if c.historyID != "" {
		for i := range c.history {
			if c.history[i].ID == c.historyID {
				c.history[i].Text = newText
				c.history[i].Timestamp = time.Now().UnixMilli()
				hist = c.historyCopyLocked()
				break
			}
		}
	}

	c.setStatusLocked(hook.StatusReady)
	c.armTimerLocked()
	c.saveLocked()
	art := c.current
	c.mu.Unlock()

	logging.Lifecycle("Edit applied: %d chars", len(newText))
	c.notifyStatus(hook.StatusReady)
	c.notifyArtifact(art)
	if hist != nil {
		c.notifyHistory(hist)
	}
}

// TogglePause flips between ready and paused. Pausing cancels the countdown
// without discarding the artifact; resuming re-enters ready but does not
// restart a fresh countdown, so the operator must act explicitly.
func (c *Controller) TogglePause() {
	c.mu.Lock()
	var status hook.Status
	switch c.status {
	case hook.StatusReady, hook.StatusRestored:
		c.paused = true
		c.cancelTimerLocked()
		c.setStatusLocked(hook.StatusPaused)
		status = hook.StatusPaused
	case hook.StatusPaused:
		c.paused = false
		c.setStatusLocked(hook.StatusReady)
		status = hook.StatusReady
	default:
		c.mu.Unlock()
		return
	}
	c.saveLocked()
	c.mu.Unlock()

	logging.Lifecycle("Pause toggled: now %s", status)
	c.notifyStatus(status)
}

// ApproveAndInject commits the current artifact: it is appended to history
// (unless it is a re-edited history entry), handed to the host injector and
// the slot transitions to injected.
func (c *Controller) ApproveAndInject() {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	text, hist := c.commitLocked()
	c.mu.Unlock()

	if err := c.h.Inject(text); err != nil {
		// Delivery is delegated; a failed injection is the host's problem
		// and must not roll back the lifecycle.
		logging.Get(logging.CategoryLifecycle).Warn("Injection failed: %v", err)
	}
	c.notifyStatus(hook.StatusInjected)
	c.notifyHistory(hist)
}

// commitLocked performs the state mutation shared by operator approval and
// the auto-commit timer. Returns the injected text and the history copy.
func (c *Controller) commitLocked() (string, []hook.HistoryEntry) {
	c.cancelTimerLocked()
	text := c.current.Text

	if c.historyID == "" {
		entry := hook.HistoryEntry{
			ID:        uuid.NewString(),
			Text:      text,
			Timestamp: time.Now().UnixMilli(),
		}
		c.history = append([]hook.HistoryEntry{entry}, c.history...)
		if len(c.history) > c.cfg.HistoryLimit {
			c.history = c.history[:c.cfg.HistoryLimit]
		}
	}
	c.historyID = ""
	c.setStatusLocked(hook.StatusInjected)
	c.saveLocked()
	logging.Lifecycle("Artifact committed: %d chars, history=%d", len(text), len(c.history))
	return text, c.historyCopyLocked()
}

// autoCommit fires when the countdown reaches zero. gen invalidates fires
// that raced a cancellation.
func (c *Controller) autoCommit(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.paused || c.current == nil || c.status != hook.StatusReady {
		c.mu.Unlock()
		return
	}
	logging.Lifecycle("Auto-commit countdown reached zero")
	text, hist := c.commitLocked()
	c.mu.Unlock()

	if err := c.h.Inject(text); err != nil {
		logging.Get(logging.CategoryLifecycle).Warn("Injection failed: %v", err)
	}
	c.notifyStatus(hook.StatusInjected)
	c.notifyHistory(hist)
}

// RegenerateNext computes a look-ahead artifact into the next slot. It runs
// independently of the current slot's state and never auto-commits.
func (c *Controller) RegenerateNext() error {
	c.mu.Lock()
	id, ok := c.h.ActiveIdentity()
	if !ok {
		c.mu.Unlock()
		return generation.ErrNoCharacter
	}
	c.nextEpoch++
	epoch := c.nextEpoch
	c.mu.Unlock()

	logging.Lifecycle("Next-slot generation requested: epoch=%d", epoch)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		character, err := c.h.Character(id.CharacterID)
		var artifact *hook.Artifact
		if err == nil {
			var messages []host.Message
			messages, err = c.h.RecentMessages(id.ConversationID, c.cfg.MessageWindow)
			if err == nil {
				artifact, err = c.gen.Generate(context.Background(), character, messages, c.promptOptions())
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.nextEpoch {
			logging.Lifecycle("Discarding stale next-slot result: epoch=%d current=%d", epoch, c.nextEpoch)
			return
		}
		if err != nil {
			logging.Lifecycle("Next-slot generation failed: %v", err)
			return
		}
		c.next = artifact
	}()
	return nil
}

// PromoteNext moves a precomputed look-ahead artifact into the current slot.
// No-op when the next slot is empty.
func (c *Controller) PromoteNext() {
	c.mu.Lock()
	if c.next == nil {
		c.mu.Unlock()
		return
	}
	c.current = c.next
	c.next = nil
	c.historyID = ""
	c.lastErr = nil
	c.setStatusLocked(hook.StatusReady)
	c.armTimerLocked()
	c.saveLocked()
	art := c.current
	c.mu.Unlock()

	logging.Lifecycle("Promoted next-slot artifact")
	c.notifyStatus(hook.StatusReady)
	c.notifyArtifact(art)
}

// RestoreHistoryEntry loads a history entry into the current slot for
// re-editing. The slot is marked history-originated so Edit updates the
// entry in place and ApproveAndInject skips the duplicate append. No
// countdown is armed; re-surfacing an old hook should never auto-inject.
func (c *Controller) RestoreHistoryEntry(id string) bool {
	c.mu.Lock()
	var entry *hook.HistoryEntry
	for i := range c.history {
		if c.history[i].ID == id {
			entry = &c.history[i]
			break
		}
	}
	if entry == nil {
		c.mu.Unlock()
		return false
	}

	c.cancelTimerLocked()
	c.current = &hook.Artifact{
		Text:      entry.Text,
		CreatedAt: time.UnixMilli(entry.Timestamp),
	}
	c.historyID = entry.ID
	c.lastErr = nil
	c.setStatusLocked(hook.StatusReady)
	c.saveLocked()
	art := c.current
	c.mu.Unlock()

	logging.Lifecycle("Restored history entry %s into current slot", id)
	c.notifyStatus(hook.StatusReady)
	c.notifyArtifact(art)
	return true
}

// SetDirection records a steering hint. The set is deduplicated, most
// recent first, and capped.
func (c *Controller) SetDirection(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	filtered := make([]string, 0, len(c.direction)+1)
	filtered = append(filtered, text)
	for _, d := range c.direction {
		if d != text {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) > c.cfg.DirectionLimit {
		filtered = filtered[:c.cfg.DirectionLimit]
	}
	c.direction = filtered
	c.saveLocked()
	c.mu.Unlock()

	logging.LifecycleDebug("Direction recorded: %q", text)
}

func (c *Controller) setStatusLocked(s hook.Status) {
	c.status = s
}
