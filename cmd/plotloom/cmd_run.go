package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plotloom/internal/generation"
	"plotloom/internal/hook"
	"plotloom/internal/host"
	"plotloom/internal/lifecycle"
	"plotloom/internal/readiness"
)

var runScenario string

// runCmd drives the full lifecycle interactively against a scenario host.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lifecycle engine interactively against a scenario",
	Long: `Boots the readiness detector against a scenario host, restores any
persisted state for the scenario's identity, then drives the lifecycle from
stdin:

  g            request a new generation
  a            approve and inject the current hook
  s            skip (discard and regenerate)
  e <text>     edit the current hook in place
  d <text>     record a steering direction
  p            toggle pause (stops/starts the auto-commit countdown)
  n            precompute a look-ahead hook
  N            promote the look-ahead hook into the current slot
  h            list history
  r <id>       restore a history entry for re-editing
  q            quit`,
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().StringVarP(&runScenario, "scenario", "s", "", "scenario YAML file (required)")
	_ = runCmd.MarkFlagRequired("scenario")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, err := host.LoadScenario(runScenario)
	if err != nil {
		return err
	}
	client, err := generation.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	pipeline := generation.NewPipeline(client, cfg.GenerationTimeout())

	adapter := buildAdapter(cfg)
	if adapter != nil {
		defer adapter.Close()
	}

	ctrl := lifecycle.New(h, pipeline, adapter, lifecycle.Config{
		AutoCommit:     cfg.AutoCommitDuration(),
		HistoryLimit:   cfg.Lifecycle.HistoryLimit,
		MessageWindow:  cfg.Lifecycle.MessageWindow,
		DirectionLimit: cfg.Lifecycle.DirectionLimit,
	})
	defer ctrl.Close()

	ctrl.OnStatusChanged(func(s hook.Status) {
		fmt.Printf("\n[status] %s\n> ", s)
	})
	ctrl.OnArtifactChanged(func(a *hook.Artifact) {
		if a == nil {
			return
		}
		fmt.Printf("\n[hook] %s\n", a.Text)
		if a.Tone != "" {
			fmt.Printf("[tone] %s  [pacing] %s\n", a.Tone, a.Pacing)
		}
		fmt.Print("> ")
	})
	ctrl.OnHistoryChanged(func(entries []hook.HistoryEntry) {
		fmt.Printf("\n[history] %d entries\n> ", len(entries))
	})

	detector := readiness.NewDetector(h, readiness.Config{
		PollInterval:      cfg.ParsedPollInterval(),
		MaxAttempts:       cfg.Readiness.MaxAttempts,
		StabilityInterval: cfg.ParsedStabilityInterval(),
		StableSamples:     cfg.Readiness.StableSamples,
		StabilityTimeout:  cfg.ParsedStabilityTimeout(),
	})
	detector.WaitUntilReady(cmd.Context(), func() {
		logger.Info("Host ready, activating lifecycle")
		ctrl.Activate(cmd.Context())
		if ctrl.Current() == nil {
			if err := ctrl.RequestGeneration(); err != nil {
				logger.Warn("Initial generation not started", zap.Error(err))
			}
		}
	})

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		verb, rest, _ := strings.Cut(line, " ")
		switch verb {
		case "g":
			if err := ctrl.RequestGeneration(); err != nil {
				fmt.Printf("cannot generate: %v\n", err)
			}
		case "a":
			ctrl.ApproveAndInject()
		case "s":
			if err := ctrl.Skip(); err != nil {
				fmt.Printf("cannot skip: %v\n", err)
			}
		case "e":
			ctrl.Edit(rest)
		case "d":
			ctrl.SetDirection(rest)
			fmt.Println("direction recorded")
		case "p":
			ctrl.TogglePause()
		case "n":
			if err := ctrl.RegenerateNext(); err != nil {
				fmt.Printf("cannot precompute: %v\n", err)
			}
		case "N":
			ctrl.PromoteNext()
		case "h":
			for _, e := range ctrl.History() {
				fmt.Printf("%s  %s\n", e.ID, e.Text)
			}
		case "r":
			if !ctrl.RestoreHistoryEntry(rest) {
				fmt.Println("no such history entry")
			}
		case "q":
			return nil
		case "":
		default:
			fmt.Println("unknown command; see 'plotloom run --help'")
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
