package generation

import (
	"fmt"
	"strings"

	"plotloom/internal/host"
)

// Placeholder substituted for missing character fields so the template schema
// stays stable regardless of how sparse the character card is.
const notSpecified = "Not specified"

// Text used in place of the transcript when the conversation is empty.
const noHistory = "No conversation history available."

// DefaultDirection is the steering hint used when the operator supplied none.
const DefaultDirection = "Introduce a development that moves the story forward naturally."

// PromptOptions carries the optional parts of the prompt.
type PromptOptions struct {
	// Direction is the operator's free-text steering hint.
	Direction string

	// WorldContext and ArcStatus are supplementary context blocks; empty
	// strings omit the corresponding section.
	WorldContext string
	ArcStatus    string

	// MessageWindow caps the transcript; <= 0 means the default of 5.
	MessageWindow int
}

// BuildPrompt renders the generation prompt from character data, the recent
// transcript and options. Pure function; no I/O.
func BuildPrompt(character host.Character, messages []host.Message, opts PromptOptions) string {
	direction := strings.TrimSpace(opts.Direction)
	if direction == "" {
		direction = DefaultDirection
	}
	window := opts.MessageWindow
	if window <= 0 {
		window = 5
	}

	var sb strings.Builder
	sb.WriteString("You are a narrative director for an ongoing roleplay conversation.\n")
	sb.WriteString("Craft a single short plot hook that fits the character and the scene.\n\n")

	sb.WriteString("## Character\n\n")
	fmt.Fprintf(&sb, "Name: %s\n", orPlaceholder(character.Name))
	fmt.Fprintf(&sb, "Personality: %s\n", orPlaceholder(character.Personality))
	fmt.Fprintf(&sb, "Description: %s\n", orPlaceholder(character.Description))
	fmt.Fprintf(&sb, "Scenario: %s\n\n", orPlaceholder(character.Scenario))

	sb.WriteString("## Recent Conversation\n\n")
	if len(messages) == 0 {
		sb.WriteString(noHistory)
		sb.WriteString("\n\n")
	} else {
		start := 0
		if len(messages) > window {
			start = len(messages) - window
		}
		for _, m := range messages[start:] {
			fmt.Fprintf(&sb, "%s: %s\n", m.Speaker, m.Text)
		}
		sb.WriteString("\n")
	}

	if opts.ArcStatus != "" {
		sb.WriteString("## Story Arc Progress\n\n")
		sb.WriteString(opts.ArcStatus)
		sb.WriteString("\n\n")
	}
	if opts.WorldContext != "" {
		sb.WriteString("## World Context\n\n")
		sb.WriteString(opts.WorldContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Direction\n\n")
	sb.WriteString(direction)
	sb.WriteString("\n\n")

	sb.WriteString("Respond with ONLY a JSON object of this shape:\n")
	sb.WriteString(`{"plot_hook": "<one or two sentences of plot hook text>", "tone_analysis": "<current emotional tone>", "pacing_guidance": "<how fast events should unfold>"}`)
	sb.WriteString("\n")

	return sb.String()
}

func orPlaceholder(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return notSpecified
	}
	return s
}
