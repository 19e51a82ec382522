package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bridgefund/internal/config"
	"bridgefund/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bridgefund",
	Short: "bridgefund - Bridge Story pipeline for community campaigns",
	Long: `bridgefund turns a raw community concern into a Bridge Story: a short,
publishable narrative that both sides of a local dispute could accept.

Run "bridgefund serve" to start the API, then "bridgefund plan" to draft
against it from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if err := logging.Initialize(loggingOptions(cfg.Logging, verbose)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Get(logging.CategoryBoot).Zap()
		logger.Debug("config loaded", zap.String("path", configPath), zap.String("provider", cfg.LLM.Provider))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Bridge Story API server",
	Long: `Starts the HTTP API:
  POST /api/ai/plan            run one pipeline stage
  POST /api/research           look up sources for claims
  POST /api/projects/save-draft
  POST /api/projects/publish
  GET  /api/projects/{id}
  GET  /api/admin/projects     admin role required`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// planCmd drafts a Bridge Story against a running server
var planCmd = &cobra.Command{
	Use:   "plan [text]",
	Short: "Generate a Bridge Story from a concern",
	Long: `Sends the concern to a running server, autosaves the draft, and prints
the resulting Bridge Story.

Example:
  bridgefund plan --tone --sources "The night bus was cut and nobody asked us."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

// researchCmd looks up sources directly
var researchCmd = &cobra.Command{
	Use:   "research [claims...]",
	Short: "Look up sources for one or more claims",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResearch,
}

// showCmd prints a stored project
var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a stored project",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// grantRoleCmd sets a user's role
var grantRoleCmd = &cobra.Command{
	Use:   "grant-role [user] [role]",
	Short: "Set the role of a user (member or admin)",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrantRole,
}

// Plan flags
var (
	planServer   string
	planUser     string
	planProject  string
	planEmphasis string
	planImage    string
	planTone     bool
	planSources  bool
	planPublish  bool
	planStaged   bool
	planTimeout  time.Duration
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bridgefund.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	planCmd.Flags().StringVar(&planServer, "server", "http://localhost:8080", "Base URL of the bridgefund server")
	planCmd.Flags().StringVar(&planUser, "user", "", "User id sent in the identity header")
	planCmd.Flags().StringVar(&planProject, "project", "", "Save into an existing draft id (its stored bundle is not loaded)")
	planCmd.Flags().StringVar(&planEmphasis, "emphasis", "balanced", "Emphasis: efficiency, empathy or balanced")
	planCmd.Flags().StringVar(&planImage, "image", "", "Image URL to attach to the project")
	planCmd.Flags().BoolVar(&planTone, "tone", false, "Run the tone check after generating")
	planCmd.Flags().BoolVar(&planSources, "sources", false, "Look up sources for claims marked to verify")
	planCmd.Flags().BoolVar(&planPublish, "publish", false, "Publish the project when done")
	planCmd.Flags().BoolVar(&planStaged, "staged", false, "Fall back to the staged pipeline when one-shot output fails")
	planCmd.Flags().DurationVar(&planTimeout, "timeout", 5*time.Minute, "Overall timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(grantRoleCmd)
}

// loggingOptions resolves every known category against the config toggles.
func loggingOptions(lc config.LoggingConfig, verbose bool) logging.Options {
	opts := logging.Options{
		Level:      lc.Level,
		Format:     lc.Format,
		Categories: make(map[string]bool, len(logging.AllCategories)),
	}
	for _, cat := range logging.AllCategories {
		opts.Categories[string(cat)] = lc.IsCategoryEnabled(string(cat))
	}
	if verbose {
		opts.Level = "debug"
	}
	return opts
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}
