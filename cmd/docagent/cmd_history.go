package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docagent/internal/registry"
)

var (
	historySession string
	historyLimit   int
)

// historyCmd lists past queries from the local history store.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past queries and their answers",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "restrict to one workspace session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.history == nil {
		return fmt.Errorf("history is disabled in configuration")
	}

	entries, err := a.history.List(historySession, historyLimit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No queries recorded yet.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  [%s/%s]  %s\n", e.StartedAt.Local().Format("2006-01-02 15:04"), e.Mode, e.Status, e.Text)
		switch e.Status {
		case registry.StatusComplete:
			fmt.Printf("    %s\n", firstLine(strings.TrimSpace(e.Answer)))
		case registry.StatusError:
			fmt.Printf("    error: %s\n", e.Error)
		}
	}
	fmt.Printf("\nTotal: %d queries\n", len(entries))

	return nil
}
