package host

import (
	"os"
	"path/filepath"
	"testing"
)

func testScenario() Scenario {
	return Scenario{
		CharacterID:    "mira",
		ConversationID: "conv-1",
		Character:      ScenarioCharacter{Name: "Mira", Personality: "wry"},
		Messages: []ScenarioMessage{
			{Speaker: "Mira", Text: "The gate is sealed."},
			{Speaker: "You", Text: "Then we find another way.", Operator: true},
			{Speaker: "Mira", Text: "There is a tunnel under the mill."},
		},
	}
}

func TestScriptedHostIdentity(t *testing.T) {
	h := NewScriptedHost(testScenario())
	id, ok := h.ActiveIdentity()
	if !ok {
		t.Fatal("Identity should be defined")
	}
	if id.CharacterID != "mira" || id.ConversationID != "conv-1" {
		t.Errorf("Identity = %+v", id)
	}

	empty := NewScriptedHost(Scenario{CharacterID: "mira"})
	if _, ok := empty.ActiveIdentity(); ok {
		t.Error("Identity with missing conversation reported as defined")
	}
}

func TestScriptedHostRecentMessagesLimit(t *testing.T) {
	h := NewScriptedHost(testScenario())

	msgs, err := h.RecentMessages("conv-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Got %d messages, want 2", len(msgs))
	}
	// The limit keeps the newest tail of the transcript.
	if msgs[1].Text != "There is a tunnel under the mill." {
		t.Errorf("Last message = %q", msgs[1].Text)
	}
	if !msgs[0].IsOperator {
		t.Error("Operator flag lost in conversion")
	}

	if _, err := h.RecentMessages("other", 0); err == nil {
		t.Error("Unknown conversation should error")
	}
}

func TestScriptedHostVisibilityAndEvents(t *testing.T) {
	h := NewScriptedHost(testScenario())

	var loads int
	h.Subscribe(EventMessagesLoaded, func() { loads++ })

	h.SetVisibleMessages(1)
	msgs, err := h.RecentMessages("conv-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Visible prefix = %d messages, want 1", len(msgs))
	}
	if loads != 1 {
		t.Errorf("EventMessagesLoaded fired %d times, want 1", loads)
	}
}

func TestScriptedHostSwitchConversation(t *testing.T) {
	h := NewScriptedHost(testScenario())

	var switches int
	h.Subscribe(EventConversationChanged, func() { switches++ })

	h.SwitchConversation("conv-2", []ScenarioMessage{{Speaker: "Mira", Text: "new thread"}})

	id, _ := h.ActiveIdentity()
	if id.ConversationID != "conv-2" {
		t.Errorf("ConversationID = %q", id.ConversationID)
	}
	if switches != 1 {
		t.Errorf("EventConversationChanged fired %d times, want 1", switches)
	}
	msgs, err := h.RecentMessages("conv-2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "new thread" {
		t.Errorf("Messages after switch = %+v", msgs)
	}
}

func TestScriptedHostInjectRecords(t *testing.T) {
	h := NewScriptedHost(testScenario())
	if err := h.Inject("a plot hook"); err != nil {
		t.Fatal(err)
	}
	if err := h.Inject("another"); err != nil {
		t.Fatal(err)
	}
	got := h.Injected()
	if len(got) != 2 || got[0] != "a plot hook" {
		t.Errorf("Injected = %v", got)
	}
}

func TestLoadScenarioYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	doc := `character_id: mira
conversation_id: conv-1
character:
  name: Mira
  personality: wry
messages:
  - speaker: Mira
    text: The gate is sealed.
  - speaker: You
    text: Then we find another way.
    operator: true
world_context: The city floats above a storm.
arc_status: Act two.
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	h, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	ch, err := h.Character("mira")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Name != "Mira" || ch.Personality != "wry" {
		t.Errorf("Character = %+v", ch)
	}
	if h.WorldContext() != "The city floats above a storm." {
		t.Errorf("WorldContext = %q", h.WorldContext())
	}
	if h.ArcStatus() != "Act two." {
		t.Errorf("ArcStatus = %q", h.ArcStatus())
	}

	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Missing scenario file should error")
	}
}
