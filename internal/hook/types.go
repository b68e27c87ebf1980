// Package hook defines the shared domain types of the plot lifecycle engine:
// the generated artifact, the lifecycle status, the bounded history ring and
// the persisted snapshot shape. All other packages depend on this one and it
// depends on nothing but the standard library.
package hook

import "time"

// Status is the lifecycle state of the current plot slot.
type Status string

const (
	// StatusPending means a generation is outstanding and no fresh artifact
	// is available yet.
	StatusPending Status = "pending"

	// StatusReady means an artifact is displayed and the auto-commit
	// countdown may be running.
	StatusReady Status = "ready"

	// StatusPaused means an artifact is displayed but the countdown is
	// cancelled until the operator acts.
	StatusPaused Status = "paused"

	// StatusInjected means the artifact has been handed to the host
	// conversation.
	StatusInjected Status = "injected"

	// StatusRestored means the artifact was loaded from a persisted
	// snapshot. Behaviorally identical to ready except that no countdown is
	// armed; any operator action transitions out of it like ready.
	StatusRestored Status = "restored"
)

// Artifact is one generated plot hook. Immutable once created; a new
// generation supersedes it rather than mutating it. Tone and Pacing are
// advisory and may be empty when the generator omitted them.
type Artifact struct {
	Text      string    `json:"text"`
	Tone      string    `json:"tone,omitempty"`
	Pacing    string    `json:"pacing,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one committed hook in the bounded, newest-first history
// ring. Entries are append-only except for in-place edits of the entry the
// operator is actively re-editing, which keep the ID and refresh the text
// and timestamp.
type HistoryEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot is the persisted per-identity state. It is a last-write-wins
// value; there is no merge semantics across writers.
type Snapshot struct {
	CurrentText      string         `json:"current_text"`
	Status           Status         `json:"status"`
	History          []HistoryEntry `json:"history"`
	RecentDirections []string       `json:"recent_directions"`
	AutoCommitMs     int64          `json:"auto_commit_ms"`
	Timestamp        int64          `json:"timestamp"`
}

// DefaultHistoryLimit caps the history ring.
const DefaultHistoryLimit = 5

// DefaultDirectionLimit caps the recent-direction set.
const DefaultDirectionLimit = 10
