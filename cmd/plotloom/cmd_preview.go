package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plotloom/internal/generation"
	"plotloom/internal/host"
)

var (
	previewScenario  string
	previewDirection string
)

// previewCmd runs one generation against a scenario file and prints the hook.
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Generate a single plot hook from a scenario file",
	Long: `Loads a YAML scenario (character, transcript, optional world/arc context),
issues one generation call and prints the parsed plot hook. No lifecycle, no
persistence; useful for prompt tuning and provider smoke tests.

Example:
  plotloom preview --scenario tavern.yaml --direction "raise the stakes"`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewScenario, "scenario", "s", "", "scenario YAML file (required)")
	previewCmd.Flags().StringVarP(&previewDirection, "direction", "d", "", "steering hint for the generator")
	_ = previewCmd.MarkFlagRequired("scenario")
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, err := host.LoadScenario(previewScenario)
	if err != nil {
		return err
	}
	id, ok := h.ActiveIdentity()
	if !ok {
		return fmt.Errorf("scenario must declare character_id and conversation_id")
	}

	client, err := generation.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	pipeline := generation.NewPipeline(client, cfg.GenerationTimeout())

	character, err := h.Character(id.CharacterID)
	if err != nil {
		return err
	}
	messages, err := h.RecentMessages(id.ConversationID, cfg.Lifecycle.MessageWindow)
	if err != nil {
		return err
	}

	logger.Info("Generating preview",
		zap.String("character", character.Name),
		zap.Int("messages", len(messages)))

	artifact, err := pipeline.Generate(cmd.Context(), character, messages, generation.PromptOptions{
		Direction:     previewDirection,
		WorldContext:  h.WorldContext(),
		ArcStatus:     h.ArcStatus(),
		MessageWindow: cfg.Lifecycle.MessageWindow,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	fmt.Printf("Hook:   %s\n", artifact.Text)
	if artifact.Tone != "" {
		fmt.Printf("Tone:   %s\n", artifact.Tone)
	}
	if artifact.Pacing != "" {
		fmt.Printf("Pacing: %s\n", artifact.Pacing)
	}
	return nil
}
