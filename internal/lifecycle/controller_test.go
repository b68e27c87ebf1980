package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"plotloom/internal/generation"
	"plotloom/internal/hook"
	"plotloom/internal/host"
	"plotloom/internal/persist"
)

// fakeGen scripts generation results per call number.
type fakeGen struct {
	mu sync.Mutex
	n  int
	fn func(call int) (*hook.Artifact, error)
}

func (f *fakeGen) Generate(ctx context.Context, ch host.Character, msgs []host.Message, opts generation.PromptOptions) (*hook.Artifact, error) {
	f.mu.Lock()
	f.n++
	call := f.n
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeGen) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func artifactNamed(text string) *hook.Artifact {
	return &hook.Artifact{Text: text, CreatedAt: time.Now()}
}

func newTestHost() *host.ScriptedHost {
	return host.NewScriptedHost(host.Scenario{
		CharacterID:    "mira",
		ConversationID: "conv-1",
		Character:      host.ScenarioCharacter{Name: "Mira", Personality: "wry"},
		Messages: []host.ScenarioMessage{
			{Speaker: "Mira", Text: "The gate is sealed."},
			{Speaker: "You", Text: "Then we find another way.", Operator: true},
		},
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRequestGenerationSuccess(t *testing.T) {
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("a stranger arrives"), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatalf("RequestGeneration failed: %v", err)
	}
	waitFor(t, "ready status", func() bool { return c.Status() == hook.StatusReady })
	if got := c.Current().Text; got != "a stranger arrives" {
		t.Errorf("Current = %q", got)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGen{fn: func(call int) (*hook.Artifact, error) {
		if call == 1 {
			<-release
			return artifactNamed("first"), nil
		}
		return artifactNamed("second"), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatalf("first RequestGeneration failed: %v", err)
	}
	waitFor(t, "first call issued", func() bool { return gen.calls() == 1 })

	if err := c.RequestGeneration(); err != nil {
		t.Fatalf("second RequestGeneration failed: %v", err)
	}
	waitFor(t, "second result displayed", func() bool {
		a := c.Current()
		return a != nil && a.Text == "second"
	})

	// The first call resolves after the second; its result must be dropped.
	close(release)
	time.Sleep(50 * time.Millisecond)
	if got := c.Current().Text; got != "second" {
		t.Errorf("Stale result clobbered the slot: Current = %q", got)
	}
}

func TestAutoCommitInjectsAndRecordsHistory(t *testing.T) {
	h := newTestHost()
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("auto hook"), nil
	}}
	c := New(h, gen, nil, Config{AutoCommit: 30 * time.Millisecond})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatalf("RequestGeneration failed: %v", err)
	}
	waitFor(t, "injected status", func() bool { return c.Status() == hook.StatusInjected })

	injected := h.Injected()
	if len(injected) != 1 || injected[0] != "auto hook" {
		t.Fatalf("Injected = %v", injected)
	}
	history := c.History()
	if len(history) != 1 || history[0].Text != "auto hook" {
		t.Fatalf("History = %v", history)
	}
}

func TestTogglePauseIdempotent(t *testing.T) {
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("hook"), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready status", func() bool { return c.Status() == hook.StatusReady })

	c.TogglePause()
	if c.Status() != hook.StatusPaused {
		t.Fatalf("Status after pause = %s", c.Status())
	}
	c.TogglePause()
	if c.Status() != hook.StatusReady {
		t.Fatalf("Status after double toggle = %s", c.Status())
	}
}

func TestPauseCancelsCountdownAndResumeDoesNotRestart(t *testing.T) {
	h := newTestHost()
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("hook"), nil
	}}
	c := New(h, gen, nil, Config{AutoCommit: 40 * time.Millisecond})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready status", func() bool { return c.Status() == hook.StatusReady })
	c.TogglePause()

	time.Sleep(100 * time.Millisecond)
	if c.Status() != hook.StatusPaused {
		t.Fatalf("Countdown fired while paused: status = %s", c.Status())
	}

	// Resuming re-enters ready without a fresh countdown; the operator must
	// act explicitly.
	c.TogglePause()
	time.Sleep(100 * time.Millisecond)
	if c.Status() != hook.StatusReady {
		t.Fatalf("Resume restarted the countdown: status = %s", c.Status())
	}
	if len(h.Injected()) != 0 {
		t.Fatal("Artifact injected without operator action after resume")
	}
}

func TestHistoryCapNewestFirst(t *testing.T) {
	gen := &fakeGen{fn: func(call int) (*hook.Artifact, error) {
		return artifactNamed(fmt.Sprintf("hook-%d", call)), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour, HistoryLimit: 2})
	defer c.Close()

	for i := 1; i <= 3; i++ {
		if err := c.RequestGeneration(); err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("hook-%d", i)
		waitFor(t, "artifact "+want, func() bool {
			a := c.Current()
			return a != nil && a.Text == want && c.Status() == hook.StatusReady
		})
		c.ApproveAndInject()
	}

	history := c.History()
	if len(history) != 2 {
		t.Fatalf("History length = %d, want 2", len(history))
	}
	if history[0].Text != "hook-3" || history[1].Text != "hook-2" {
		t.Errorf("History not newest-first: %v", history)
	}
}

func TestHistoryEntryEditedInPlace(t *testing.T) {
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("original"), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready status", func() bool { return c.Status() == hook.StatusReady })
	c.ApproveAndInject()

	history := c.History()
	if len(history) != 1 {
		t.Fatalf("History length = %d", len(history))
	}
	id := history[0].ID

	if !c.RestoreHistoryEntry(id) {
		t.Fatal("RestoreHistoryEntry failed")
	}
	c.Edit("rewritten")

	history = c.History()
	if len(history) != 1 {
		t.Fatalf("Edit created a new entry: %v", history)
	}
	if history[0].ID != id {
		t.Error("Edit changed the entry ID")
	}
	if history[0].Text != "rewritten" {
		t.Errorf("Entry text = %q", history[0].Text)
	}

	// Approving a re-edited history entry must not append a duplicate.
	c.ApproveAndInject()
	if got := len(c.History()); got != 1 {
		t.Fatalf("Approve of history entry duplicated it: %d entries", got)
	}
}

func TestFailedGenerationKeepsPriorArtifact(t *testing.T) {
	gen := &fakeGen{fn: func(call int) (*hook.Artifact, error) {
		if call == 1 {
			return artifactNamed("good"), nil
		}
		return nil, generation.ErrParse
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first artifact", func() bool {
		a := c.Current()
		return a != nil && a.Text == "good"
	})

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failure surfaced", func() bool { return c.LastError() != nil })

	if c.Status() != hook.StatusReady {
		t.Errorf("Slot not retryable after failure: status = %s", c.Status())
	}
	if got := c.Current().Text; got != "good" {
		t.Errorf("Failure blanked the slot: Current = %q", got)
	}
}

func TestFailureWithoutPriorArtifactStaysPending(t *testing.T) {
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return nil, generation.ErrTimeout
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failure surfaced", func() bool { return c.LastError() != nil })

	if c.Status() != hook.StatusPending {
		t.Errorf("Status = %s, want pending", c.Status())
	}
	if c.Current() != nil {
		t.Error("Artifact set despite failure")
	}
}

func TestSkipRegenerates(t *testing.T) {
	gen := &fakeGen{fn: func(call int) (*hook.Artifact, error) {
		return artifactNamed(fmt.Sprintf("hook-%d", call)), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first artifact", func() bool {
		a := c.Current()
		return a != nil && a.Text == "hook-1"
	})

	if err := c.Skip(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "regenerated artifact", func() bool {
		a := c.Current()
		return a != nil && a.Text == "hook-2"
	})
}

func TestRegenerateNextAndPromote(t *testing.T) {
	h := newTestHost()
	gen := &fakeGen{fn: func(call int) (*hook.Artifact, error) {
		return artifactNamed(fmt.Sprintf("hook-%d", call)), nil
	}}
	c := New(h, gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	if err := c.RegenerateNext(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "next slot filled", func() bool { return c.Next() != nil })

	// The look-ahead never auto-commits and leaves the current slot alone.
	if c.Current() != nil || c.Status() != hook.StatusPending {
		t.Fatalf("Next-slot generation disturbed the current slot: status=%s", c.Status())
	}
	if len(h.Injected()) != 0 {
		t.Fatal("Next-slot artifact was injected")
	}

	c.PromoteNext()
	if got := c.Current().Text; got != "hook-1" {
		t.Errorf("Promoted artifact = %q", got)
	}
	if c.Next() != nil {
		t.Error("Next slot not cleared after promotion")
	}
	if c.Status() != hook.StatusReady {
		t.Errorf("Status after promotion = %s", c.Status())
	}
}

func TestSetDirectionDedupAndCap(t *testing.T) {
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("hook"), nil
	}}
	c := New(newTestHost(), gen, nil, Config{AutoCommit: time.Hour, DirectionLimit: 3})
	defer c.Close()

	c.SetDirection("a")
	c.SetDirection("b")
	c.SetDirection("a") // moves to front, no duplicate
	c.SetDirection("c")
	c.SetDirection("d") // evicts the oldest

	got := c.Directions()
	want := []string{"d", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("Directions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Directions = %v, want %v", got, want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := persist.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sqlite store: %v", err)
	}
	defer store.Close()
	adapter := persist.NewAdapter(store)

	h := newTestHost()
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("persisted hook"), nil
	}}

	c1 := New(h, gen, adapter, Config{AutoCommit: time.Hour})
	c1.Activate(context.Background())
	if err := c1.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready status", func() bool { return c1.Status() == hook.StatusReady })
	c1.Close() // waits for the pending save

	c2 := New(h, gen, adapter, Config{AutoCommit: time.Hour})
	defer c2.Close()
	c2.Activate(context.Background())

	if c2.Status() != hook.StatusRestored {
		t.Fatalf("Status after restore = %s", c2.Status())
	}
	a := c2.Current()
	if a == nil || a.Text != "persisted hook" {
		t.Fatalf("Restored artifact = %+v", a)
	}
}

func TestActivateWithoutIdentityStaysInMemory(t *testing.T) {
	h := host.NewScriptedHost(host.Scenario{}) // no identity
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("hook"), nil
	}}
	c := New(h, gen, nil, Config{AutoCommit: time.Hour})
	defer c.Close()

	c.Activate(context.Background())
	if c.Status() != hook.StatusPending {
		t.Errorf("Status = %s", c.Status())
	}
	if err := c.RequestGeneration(); err != generation.ErrNoCharacter {
		t.Errorf("Expected ErrNoCharacter, got %v", err)
	}
}

func TestRestoredTransitionsLikeReady(t *testing.T) {
	store, err := persist.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	adapter := persist.NewAdapter(store)

	h := newTestHost()
	gen := &fakeGen{fn: func(int) (*hook.Artifact, error) {
		return artifactNamed("hook"), nil
	}}

	c1 := New(h, gen, adapter, Config{AutoCommit: time.Hour})
	c1.Activate(context.Background())
	if err := c1.RequestGeneration(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready status", func() bool { return c1.Status() == hook.StatusReady })
	c1.Close()

	c2 := New(h, gen, adapter, Config{AutoCommit: time.Hour})
	defer c2.Close()
	c2.Activate(context.Background())
	if c2.Status() != hook.StatusRestored {
		t.Fatalf("Status = %s", c2.Status())
	}

	// Operator actions leave restored exactly like ready.
	c2.TogglePause()
	if c2.Status() != hook.StatusPaused {
		t.Errorf("Pause from restored: status = %s", c2.Status())
	}
}
