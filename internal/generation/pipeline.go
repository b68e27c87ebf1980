package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plotloom/internal/hook"
	"plotloom/internal/host"
	"plotloom/internal/logging"
)

// systemPrompt frames every generation call.
const systemPrompt = "You are a creative writing assistant that produces short, " +
	"actionable plot hooks for interactive fiction. You always answer with a " +
	"single JSON object and nothing else."

// Generator is the contract the lifecycle controller consumes. Pipeline is
// the production implementation; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, character host.Character, messages []host.Message, opts PromptOptions) (*hook.Artifact, error)
}

// Pipeline issues one generation call with a hard wall-clock timeout and
// parses the response into an Artifact. It performs no retries: a timeout or
// provider error propagates as a failure so worst-case latency stays bounded
// for an interactive preview feature.
type Pipeline struct {
	client  LLMClient
	timeout time.Duration
}

// NewPipeline builds a pipeline around an LLM client. A non-positive timeout
// falls back to 45 seconds.
func NewPipeline(client LLMClient, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Pipeline{client: client, timeout: timeout}
}

// Generate implements Generator.
func (p *Pipeline) Generate(ctx context.Context, character host.Character, messages []host.Message, opts PromptOptions) (*hook.Artifact, error) {
	if character.Name == "" {
		return nil, ErrNoCharacter
	}

	prompt := BuildPrompt(character, messages, opts)
	logging.GenerationDebug("Built prompt: %d chars, %d messages", len(prompt), len(messages))

	timer := logging.StartTimer(logging.CategoryAPI, "generation call")
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.client.CompleteWithSystem(callCtx, systemPrompt, prompt)
	timer.StopWithThreshold(p.timeout / 2)
	if err != nil {
		// The underlying call cannot be aborted mid-flight; the deadline
		// abandons it and the stale result, if any, is discarded upstream.
		if callCtx.Err() == context.DeadlineExceeded {
			logging.Get(logging.CategoryAPI).Warn("Generation exceeded %v deadline", p.timeout)
			return nil, fmt.Errorf("%w after %v", ErrTimeout, p.timeout)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, p.timeout)
		}
		return nil, fmt.Errorf("generation call failed: %w", err)
	}

	artifact, err := ParseArtifact(raw)
	if err != nil {
		logging.Generation("Parse failed: %v", err)
		return nil, err
	}
	logging.Generation("Generated hook: %d chars, tone=%q", len(artifact.Text), artifact.Tone)
	return artifact, nil
}
