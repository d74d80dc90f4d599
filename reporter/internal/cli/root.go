package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/logging"
	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
	"github.com/obsidianstack/siteuptime/reporter/internal/store"
)

// env is the state shared by every subcommand once the config is loaded.
type env struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	registry *prometheus.Registry
}

// NewRootCmd returns the reporter command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "reporter",
		Short:         "SiteUptime failure history and trimmed uptime reports",
		Long:          `reporter reads the failure history of every monitored service from a SiteUptime account and reports per-service and trimmed fleet uptime for a date range.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return e.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&e.configPath, "config", "c", "", "Path to config.yaml (defaults apply when empty)")
	flags.StringVar(&e.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd(e))
	rootCmd.AddCommand(newReportCmd(e))
	rootCmd.AddCommand(newRunsCmd(e))
	rootCmd.AddCommand(newScheduleCmd(e))
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

// load reads the config, installs the logger and registers the run metrics.
func (e *env) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if e.configPath != "" {
		loaded, err := config.Load(e.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if e.logLevel != "" {
		cfg.Logging.Level = e.logLevel
	}
	e.cfg = cfg

	logger := logging.NewWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	e.registry = prometheus.NewRegistry()
	if err := metrics.Register(e.registry); err != nil {
		return fmt.Errorf("cli: register metrics: %w", err)
	}

	slog.Debug("cli: config loaded", "path", e.configPath, "level", cfg.Logging.Level)
	return nil
}

// openStore opens the run archive when storage is configured. The returned
// close function is always safe to call.
func openStore(cfg config.StorageConfig) (*store.Store, func(), error) {
	if !cfg.Enabled() {
		return nil, func() {}, nil
	}
	db, err := store.Open(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store.New(db), func() { _ = db.Close() }, nil
}

// requireStore is openStore for commands that cannot work without an archive.
func requireStore(cfg config.StorageConfig) (*store.Store, func(), error) {
	if !cfg.Enabled() {
		return nil, nil, fmt.Errorf("cli: no run archive configured (set reporter.storage.backend and path)")
	}
	return openStore(cfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
