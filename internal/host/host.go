// Package host models the chat application the engine augments. Rather than
// reaching into ambient host state, every read the engine performs goes
// through the Host capability interface, so the lifecycle controller can be
// driven with a scripted or fake host in tests.
package host

// Identity scopes a lifecycle instance and its persisted state. Both fields
// must be non-empty for persistence to be attempted.
type Identity struct {
	CharacterID    string
	ConversationID string
}

// Defined reports whether both components of the identity are known.
func (id Identity) Defined() bool {
	return id.CharacterID != "" && id.ConversationID != ""
}

// Character is the subset of host character data the prompt builder uses.
type Character struct {
	Name        string
	Personality string
	Description string
	Scenario    string
}

// Message is one entry of the host conversation transcript.
type Message struct {
	Speaker    string
	Text       string
	IsOperator bool
}

// Host lifecycle event names. The readiness detector treats these as hints
// to re-arm its sampler, never as an authoritative "fully loaded" signal.
const (
	EventConversationChanged = "conversation_changed"
	EventCharacterChanged    = "character_changed"
	EventMessagesLoaded      = "messages_loaded"
)

// Host is the capability surface consumed from the chat application.
type Host interface {
	// ActiveIdentity returns the current (character, conversation) pair.
	// ok is false while no conversation or character is selected.
	ActiveIdentity() (id Identity, ok bool)

	// Character resolves character data by ID.
	Character(characterID string) (Character, error)

	// RecentMessages returns up to limit messages of the conversation,
	// oldest first. An empty conversation returns an empty, non-nil slice.
	RecentMessages(conversationID string, limit int) ([]Message, error)

	// Busy reports whether a host save/lock operation is in progress.
	// The readiness detector refuses to declare stability while true.
	Busy() bool

	// Subscribe registers a handler for a host lifecycle event. Handlers
	// may be invoked from any goroutine and must not block.
	Subscribe(event string, handler func())

	// Inject delivers text into the conversation. Fire-and-forget from the
	// engine's perspective; delivery guarantees are the host's problem.
	Inject(text string) error
}

// WorldContextProvider is optionally implemented by hosts that can supply a
// world-info summary for the prompt. Absence degrades silently.
type WorldContextProvider interface {
	WorldContext() string
}

// ArcStatusProvider is optionally implemented by hosts that track story-arc
// progress. Absence degrades silently.
type ArcStatusProvider interface {
	ArcStatus() string
}
