package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plotloom/internal/hook"
	"plotloom/internal/logging"
)

// hookResponse is the JSON shape the generator is instructed to produce.
// Only plot_hook is mandatory; the advisory fields degrade to empty.
type hookResponse struct {
	PlotHook       string `json:"plot_hook"`
	ToneAnalysis   string `json:"tone_analysis"`
	PacingGuidance string `json:"pacing_guidance"`
}

// ParseArtifact turns a raw completion into an Artifact. Strict parsing is
// attempted first; on failure the first balanced JSON object in the text is
// extracted and parsed, which recovers payloads the generator wrapped in
// explanatory prose or markdown fences.
func ParseArtifact(raw string) (*hook.Artifact, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyResponse
	}

	var resp hookResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		jsonStr := extractJSON(raw)
		if jsonStr == "" {
			logging.GenerationDebug("No JSON object found in %d-char response", len(raw))
			return nil, fmt.Errorf("%w: no JSON object in response", ErrParse)
		}
		if err2 := json.Unmarshal([]byte(jsonStr), &resp); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err2)
		}
	}

	if strings.TrimSpace(resp.PlotHook) == "" {
		return nil, fmt.Errorf("%w: missing plot_hook field", ErrParse)
	}

	return &hook.Artifact{
		Text:      strings.TrimSpace(resp.PlotHook),
		Tone:      strings.TrimSpace(resp.ToneAnalysis),
		Pacing:    strings.TrimSpace(resp.PacingGuidance),
		CreatedAt: time.Now(),
	}, nil
}

// extractJSON extracts the first balanced JSON object from mixed-format text.
// Brace matching is string- and escape-aware so braces inside string values
// do not break the balance count.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	// Unbalanced braces: fall back to the outermost brace pair, which
	// recovers payloads truncated by trailing formatting noise.
	end := strings.LastIndex(text, "}")
	if end > start {
		return text[start : end+1]
	}
	return ""
}
