// Package main implements workspace session CLI commands for docagent.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// sessionsCmd manages workspace sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage workspace sessions",
	Long: `List and manage workspace sessions on the Agent Service.

Subcommands:
  list    - List all sessions
  create  - Create a new session
  switch  - Activate a session
  close   - Close a session`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workspace sessions",
	RunE:  runSessionsList,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new workspace session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionsCreate,
}

var sessionsSwitchCmd = &cobra.Command{
	Use:   "switch <session-id>",
	Short: "Activate a workspace session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsSwitch,
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a workspace session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClose,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsSwitchCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.registry.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No workspace sessions found.")
		return nil
	}

	fmt.Println("Workspace Sessions")
	fmt.Println(strings.Repeat("-", 50))
	for _, s := range sessions {
		name := s.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %s  %s  %d pages\n", s.ID, name, len(s.State.PageIDs))
	}
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Total: %d sessions\n", len(sessions))

	return nil
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	info, err := a.registry.CreateSession(cmd.Context(), name)
	if err != nil {
		return err
	}
	fmt.Printf("Created workspace session %s\n", info.ID)
	return nil
}

func runSessionsSwitch(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.registry.SwitchSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Active workspace session: %s (%d pages)\n", info.ID, len(info.State.PageIDs))
	return nil
}

func runSessionsClose(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.registry.CloseSession(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Closed workspace session %s\n", args[0])
	return nil
}
