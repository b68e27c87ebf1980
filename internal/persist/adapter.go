// Package persist stores per-identity lifecycle snapshots. Writes fan out to
// every configured backend; reads walk the backends in priority order (shared
// store first, local cache as fallback). A backend being down is never a
// caller-visible error: losing a persisted preview is recoverable by
// regenerating, so persistence must not block the interactive flow.
package persist

import (
	"context"
	"fmt"

	"plotloom/internal/hook"
	"plotloom/internal/host"
	"plotloom/internal/logging"
)

// Backend is one snapshot store. Implementations must be safe for concurrent
// use.
type Backend interface {
	Name() string
	Save(ctx context.Context, key string, snap *hook.Snapshot) error
	Load(ctx context.Context, key string) (*hook.Snapshot, error)
	Close() error
}

// IdentityKey derives the storage key from an identity. ok is false when
// either component is missing, in which case persistence must degrade to
// in-memory-only operation.
func IdentityKey(id host.Identity) (string, bool) {
	if !id.Defined() {
		return "", false
	}
	return fmt.Sprintf("%s_%s", id.CharacterID, id.ConversationID), true
}

// Adapter fronts a priority-ordered list of backends.
type Adapter struct {
	backends []Backend
}

// NewAdapter builds an adapter. Backends are consulted for reads in the
// given order; earlier entries are preferred.
func NewAdapter(backends ...Backend) *Adapter {
	return &Adapter{backends: backends}
}

// Save writes the snapshot to every backend, best effort. Calls with an
// undefined identity are no-ops. Failures are logged, never returned.
func (a *Adapter) Save(ctx context.Context, id host.Identity, snap *hook.Snapshot) {
	key, ok := IdentityKey(id)
	if !ok {
		logging.PersistDebug("Save skipped: identity undefined")
		return
	}
	for _, b := range a.backends {
		if err := b.Save(ctx, key, snap); err != nil {
			logging.Get(logging.CategoryPersist).Warn("Save to %s failed for %s: %v", b.Name(), key, err)
			continue
		}
		logging.PersistDebug("Saved snapshot to %s: key=%s status=%s", b.Name(), key, snap.Status)
	}
}

// Load returns the first snapshot any backend produces, or nil when the
// identity is undefined or no backend has one. Backend errors are logged and
// treated as misses.
func (a *Adapter) Load(ctx context.Context, id host.Identity) *hook.Snapshot {
	key, ok := IdentityKey(id)
	if !ok {
		return nil
	}
	for _, b := range a.backends {
		snap, err := b.Load(ctx, key)
		if err != nil {
			logging.Get(logging.CategoryPersist).Warn("Load from %s failed for %s: %v", b.Name(), key, err)
			continue
		}
		if snap != nil {
			logging.Persist("Loaded snapshot from %s: key=%s status=%s", b.Name(), key, snap.Status)
			return snap
		}
	}
	return nil
}

// Close closes all backends.
func (a *Adapter) Close() {
	for _, b := range a.backends {
		if err := b.Close(); err != nil {
			logging.Get(logging.CategoryPersist).Warn("Close of %s failed: %v", b.Name(), err)
		}
	}
}
