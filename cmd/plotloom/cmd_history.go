package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"plotloom/internal/host"
)

var historyScenario string

// historyCmd prints the persisted history ring for a scenario's identity.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print persisted plot hook history for a scenario's identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		h, err := host.LoadScenario(historyScenario)
		if err != nil {
			return err
		}
		id, ok := h.ActiveIdentity()
		if !ok {
			return fmt.Errorf("scenario must declare character_id and conversation_id")
		}

		adapter := buildAdapter(cfg)
		if adapter == nil {
			return fmt.Errorf("no persistence backend available")
		}
		defer adapter.Close()

		snap := adapter.Load(cmd.Context(), id)
		if snap == nil {
			fmt.Println("no persisted state for this identity")
			return nil
		}
		fmt.Printf("status: %s  saved: %s\n", snap.Status, time.UnixMilli(snap.Timestamp).Format(time.RFC3339))
		if snap.CurrentText != "" {
			fmt.Printf("current: %s\n", snap.CurrentText)
		}
		for _, e := range snap.History {
			fmt.Printf("%s  %s  %s\n", e.ID, time.UnixMilli(e.Timestamp).Format(time.RFC3339), e.Text)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyScenario, "scenario", "s", "", "scenario YAML file (required)")
	_ = historyCmd.MarkFlagRequired("scenario")
}
