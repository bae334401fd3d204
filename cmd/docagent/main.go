// Package main implements the docagent CLI, a client for the document
// analysis Agent Service: it submits queries, follows their streams, and
// manages workspace sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"docagent/internal/agent"
	"docagent/internal/config"
	"docagent/internal/history"
	"docagent/internal/logging"
	"docagent/internal/registry"
	"docagent/internal/toast"
	"docagent/internal/workspace"
)

var (
	// Global flags
	verbose   bool
	agentURL  string
	apiKey    string
	workspaceDir string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docagent",
	Short: "docagent - concurrent query client for the document Agent Service",
	Long: `docagent submits questions about a document corpus to the Agent Service
and follows the agent's work as it streams back: reasoning, tool calls,
workspace updates and the final answer.

Up to three queries run concurrently against one shared workspace session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspaceDir
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired collaborators behind the CLI commands.
type app struct {
	cfg      *config.Config
	client   *agent.Client
	registry *registry.Registry
	tray     *toast.Tray
	history  *history.Store
}

// buildApp loads config and wires the client, registry and history store.
func buildApp() (*app, error) {
	ws := workspaceDir
	if ws == "" {
		ws, _ = os.Getwd()
	}

	cfg, err := config.Load(config.DefaultPath(ws))
	if err != nil {
		return nil, err
	}
	if agentURL != "" {
		cfg.Agent.BaseURL = agentURL
	}
	if apiKey != "" {
		cfg.Agent.APIKey = apiKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := agent.NewClientWithConfig(agent.Config{
		BaseURL: cfg.Agent.BaseURL,
		APIKey:  cfg.Agent.APIKey,
		Timeout: cfg.GetAgentTimeout(),
	})

	a := &app{
		cfg:    cfg,
		client: client,
		tray:   toast.NewTray(),
	}

	var sink registry.HistorySink
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DatabasePath)
		if err != nil {
			logger.Warn("history store unavailable", zap.Error(err))
		} else {
			a.history = store
			sink = store
		}
	}

	a.registry = registry.New(
		registry.Config{
			MaxConcurrent: cfg.Query.MaxConcurrent,
			QueryTimeout:  cfg.GetQueryTimeout(),
		},
		client, client, workspace.NewResolver(client), a.tray, sink,
	)
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent-url", "", "Agent Service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Agent Service API key (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "workspace directory (default: cwd)")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
