package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docagent/internal/registry"
)

var (
	queryMode    string
	querySession string
)

// queryCmd submits one query and follows it to completion.
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask the agent a question about the document corpus",
	Long: `Submit a query against a workspace session and stream the agent's
progress until it answers.

Modes control agent effort: fast, med, deep.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "med", "query mode: fast, med, deep")
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "workspace session id (default: create a new session)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	mode, err := parseMode(queryMode)
	if err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if querySession != "" {
		if _, err := a.registry.SwitchSession(ctx, querySession); err != nil {
			return err
		}
	} else {
		info, err := a.registry.CreateSession(ctx, "")
		if err != nil {
			return err
		}
		fmt.Printf("Created workspace session %s\n", info.ID)
	}

	id, err := a.registry.Submit(args[0], mode)
	if err != nil {
		return err
	}
	a.registry.SetActive(id)
	logger.Info("query submitted", zap.String("query_id", id), zap.String("mode", string(mode)))

	return followQuery(ctx, a, id)
}

// followQuery polls the registry and prints progress until the query
// settles.
func followQuery(ctx context.Context, a *app, queryID string) error {
	var lastPreview, lastTool string

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.registry.Abort(queryID)
			return ctx.Err()
		case <-ticker.C:
		}

		v, ok := a.registry.Query(queryID)
		if !ok {
			return fmt.Errorf("query %s disappeared", queryID)
		}

		if v.CurrentTool != "" && v.CurrentTool != lastTool {
			lastTool = v.CurrentTool
			fmt.Printf("  [tool] %s\n", lastTool)
		}
		if v.Preview != "" && v.Preview != lastPreview {
			lastPreview = v.Preview
			fmt.Printf("  [thinking] %s\n", firstLine(lastPreview))
		}

		switch v.Status {
		case registry.StatusComplete:
			printAnswer(a, v)
			return nil
		case registry.StatusError:
			return fmt.Errorf("query failed: %s", v.ErrMsg)
		}
	}
}

func printAnswer(a *app, v registry.View) {
	fmt.Println()
	fmt.Println(v.Answer.Text)

	if c := v.Answer.Concept; c != nil {
		if len(c.Findings) > 0 {
			fmt.Println("\nFindings:")
			for _, f := range c.Findings {
				if f.PageName != "" {
					fmt.Printf("  - [%s] %s\n", f.PageName, f.Text)
				} else {
					fmt.Printf("  - %s\n", f.Text)
				}
			}
		}
		if len(c.CrossReferences) > 0 {
			fmt.Println("\nCross-references:")
			for _, x := range c.CrossReferences {
				fmt.Printf("  - [%s] %s\n", x.PageName, x.Description)
			}
		}
		if len(c.Gaps) > 0 {
			fmt.Println("\nGaps:")
			for _, g := range c.Gaps {
				fmt.Printf("  - %s\n", g)
			}
		}
	}

	if pages := a.registry.WorkspacePages(); len(pages) > 0 {
		fmt.Printf("\nWorkspace: %d pages\n", len(pages))
		for _, p := range pages {
			marker := " "
			if p.Pinned {
				marker = "*"
			}
			fmt.Printf("  %s %s (%d highlights)\n", marker, pageLabel(p.Name, p.ID), len(p.Highlights))
		}
	}
}

func parseMode(s string) (registry.Mode, error) {
	switch registry.Mode(strings.ToLower(s)) {
	case registry.ModeFast:
		return registry.ModeFast, nil
	case registry.ModeMed:
		return registry.ModeMed, nil
	case registry.ModeDeep:
		return registry.ModeDeep, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want fast, med or deep)", s)
	}
}

func pageLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
