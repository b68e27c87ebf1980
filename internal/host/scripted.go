package host

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"plotloom/internal/logging"
)

// Scenario is the YAML shape consumed by ScriptedHost. It lets the CLI (and
// tests) drive the engine without a live chat application.
type Scenario struct {
	CharacterID    string              `yaml:"character_id"`
	ConversationID string              `yaml:"conversation_id"`
	Character      ScenarioCharacter   `yaml:"character"`
	Messages       []ScenarioMessage   `yaml:"messages"`
	WorldContext   string              `yaml:"world_context"`
	ArcStatus      string              `yaml:"arc_status"`
}

// ScenarioCharacter mirrors Character with yaml tags.
type ScenarioCharacter struct {
	Name        string `yaml:"name"`
	Personality string `yaml:"personality"`
	Description string `yaml:"description"`
	Scenario    string `yaml:"scenario"`
}

// ScenarioMessage mirrors Message with yaml tags.
type ScenarioMessage struct {
	Speaker  string `yaml:"speaker"`
	Text     string `yaml:"text"`
	Operator bool   `yaml:"operator"`
}

// ScriptedHost implements Host from a static scenario. Messages can be
// revealed incrementally via SetVisibleMessages to exercise the readiness
// detector's stability sampler.
type ScriptedHost struct {
	mu        sync.RWMutex
	scenario  Scenario
	visible   int
	busy      bool
	handlers  map[string][]func()
	injected  []string
}

// LoadScenario reads a scenario YAML file and returns a host serving it with
// the full transcript visible.
func LoadScenario(path string) (*ScriptedHost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	logging.HostDebug("Loaded scenario: character=%s conversation=%s messages=%d",
		sc.CharacterID, sc.ConversationID, len(sc.Messages))
	return NewScriptedHost(sc), nil
}

// NewScriptedHost builds a host from an in-memory scenario.
func NewScriptedHost(sc Scenario) *ScriptedHost {
	return &ScriptedHost{
		scenario: sc,
		visible:  len(sc.Messages),
		handlers: make(map[string][]func()),
	}
}

// ActiveIdentity implements Host.
func (h *ScriptedHost) ActiveIdentity() (Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id := Identity{CharacterID: h.scenario.CharacterID, ConversationID: h.scenario.ConversationID}
	return id, id.Defined()
}

// Character implements Host.
func (h *ScriptedHost) Character(characterID string) (Character, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if characterID != h.scenario.CharacterID {
		return Character{}, fmt.Errorf("unknown character %q", characterID)
	}
	c := h.scenario.Character
	return Character{
		Name:        c.Name,
		Personality: c.Personality,
		Description: c.Description,
		Scenario:    c.Scenario,
	}, nil
}

// RecentMessages implements Host. Only the currently visible prefix of the
// transcript is returned.
func (h *ScriptedHost) RecentMessages(conversationID string, limit int) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conversationID != h.scenario.ConversationID {
		return nil, fmt.Errorf("unknown conversation %q", conversationID)
	}
	msgs := h.scenario.Messages[:h.visible]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, Message{Speaker: m.Speaker, Text: m.Text, IsOperator: m.Operator})
	}
	return out, nil
}

// Busy implements Host.
func (h *ScriptedHost) Busy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.busy
}

// SetBusy toggles the simulated save/lock flag.
func (h *ScriptedHost) SetBusy(busy bool) {
	h.mu.Lock()
	h.busy = busy
	h.mu.Unlock()
}

// SetVisibleMessages reveals the first n transcript messages and fires the
// messages-loaded event, simulating bursty history loading.
func (h *ScriptedHost) SetVisibleMessages(n int) {
	h.mu.Lock()
	if n < 0 {
		n = 0
	}
	if n > len(h.scenario.Messages) {
		n = len(h.scenario.Messages)
	}
	h.visible = n
	h.mu.Unlock()
	h.fire(EventMessagesLoaded)
}

// SwitchConversation rebinds the scenario to a new conversation ID with an
// empty transcript and fires the conversation-changed event.
func (h *ScriptedHost) SwitchConversation(conversationID string, messages []ScenarioMessage) {
	h.mu.Lock()
	h.scenario.ConversationID = conversationID
	h.scenario.Messages = messages
	h.visible = len(messages)
	h.mu.Unlock()
	h.fire(EventConversationChanged)
}

// Subscribe implements Host.
func (h *ScriptedHost) Subscribe(event string, handler func()) {
	h.mu.Lock()
	h.handlers[event] = append(h.handlers[event], handler)
	h.mu.Unlock()
}

// Inject implements Host by recording the text.
func (h *ScriptedHost) Inject(text string) error {
	h.mu.Lock()
	h.injected = append(h.injected, text)
	h.mu.Unlock()
	logging.Host("Injected %d chars into conversation %s", len(text), h.scenario.ConversationID)
	return nil
}

// Injected returns everything delivered via Inject, oldest first.
func (h *ScriptedHost) Injected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.injected))
	copy(out, h.injected)
	return out
}

// WorldContext implements WorldContextProvider.
func (h *ScriptedHost) WorldContext() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scenario.WorldContext
}

// ArcStatus implements ArcStatusProvider.
func (h *ScriptedHost) ArcStatus() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scenario.ArcStatus
}

func (h *ScriptedHost) fire(event string) {
	h.mu.RLock()
	handlers := append([]func(){}, h.handlers[event]...)
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn()
	}
}
