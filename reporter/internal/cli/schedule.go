package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/logging"
	"github.com/obsidianstack/siteuptime/reporter/internal/pipeline"
	"github.com/obsidianstack/siteuptime/reporter/internal/scheduler"
	"github.com/obsidianstack/siteuptime/reporter/internal/scraper"
	"github.com/obsidianstack/siteuptime/reporter/internal/security"
	"github.com/obsidianstack/siteuptime/reporter/internal/shipper"
	"github.com/obsidianstack/siteuptime/reporter/internal/store"
)

type scheduleCmd struct {
	env        *env
	runAtStart bool

	mu  sync.Mutex
	cfg *config.Config
}

func (c *scheduleCmd) current() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *scheduleCmd) run(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	c.cfg = c.env.cfg

	if c.cfg.Reporter.Schedule == "" {
		return fmt.Errorf("cli: reporter.schedule is not set")
	}
	if c.cfg.Reporter.Site.Password() == "" {
		return fmt.Errorf("cli: scheduled runs need the password in the environment (site.password_env)")
	}

	// The archive is opened once; a storage change takes effect on restart.
	st, closeStore, err := openStore(c.cfg.Reporter.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	job := func(ctx context.Context) {
		if err := c.runOnce(ctx, cmd, st); err != nil {
			slog.Error("cli: scheduled run failed", "err", err)
		}
	}

	sched, err := scheduler.New(c.cfg.Reporter.Schedule, job)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	if c.env.configPath != "" {
		go func() {
			if err := config.Watch(ctx, c.env.configPath, func(cfg *config.Config) { c.reload(cmd, sched, cfg) }); err != nil {
				slog.Error("cli: config watch stopped", "err", err)
			}
		}()
	}

	if c.runAtStart {
		sched.RunNow()
	}

	<-ctx.Done()
	slog.Info("cli: shutting down scheduler")
	return nil
}

// reload swaps in a changed config and re-registers the schedule.
func (c *scheduleCmd) reload(cmd *cobra.Command, sched *scheduler.Scheduler, cfg *config.Config) {
	if cfg.Reporter.Schedule == "" {
		slog.Error("cli: reloaded config has no schedule, keeping previous config")
		return
	}
	if err := sched.Update(cfg.Reporter.Schedule); err != nil {
		slog.Error("cli: reloaded schedule rejected, keeping previous config", "err", err)
		return
	}

	prev := c.current()
	if prev.Reporter.Storage != cfg.Reporter.Storage {
		slog.Warn("cli: storage settings changed, restart to apply")
	}
	if c.env.logLevel == "" && prev.Logging != cfg.Logging {
		slog.SetDefault(logging.NewWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON))
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	slog.Info("cli: config applied", "schedule", cfg.Reporter.Schedule, "next", sched.Next())
}

// runOnce performs one scheduled run with the config current at its start.
func (c *scheduleCmd) runOnce(ctx context.Context, cmd *cobra.Command, st *store.Store) error {
	cfg := c.current()
	win, err := cfg.Reporter.Window.Resolve(time.Now())
	if err != nil {
		return err
	}

	security.Preflight(ctx, cfg.Reporter.Site)
	client, err := scraper.New(cfg.Reporter.Site, cfg.Reporter.Site.Password())
	if err != nil {
		return err
	}

	runner := pipeline.New(cmd.OutOrStdout(),
		pipeline.WithSource(client),
		pipeline.WithStore(st),
		pipeline.WithNotifier(shipper.New(cfg.Reporter.Webhooks)),
		pipeline.WithGatherer(c.env.registry),
	)
	slog.Info("cli: scheduled run starting", "window", win.String())
	_, err = runner.Run(ctx, pipeline.Options{
		Window:         win,
		TrimPercentage: cfg.Reporter.TrimPercentage,
		Format:         cfg.Reporter.Output.Format,
		Textfile:       cfg.Reporter.Output.Textfile,
		Retention:      cfg.Reporter.Storage.Retention,
	})
	return err
}

func newScheduleCmd(e *env) *cobra.Command {
	c := &scheduleCmd{env: e}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run reports on the configured cron schedule",
		Long: `Run the report on reporter.schedule (e.g. "@monthly" or "0 6 1 * *") until
interrupted. Edits to the config file are picked up without a restart; an
invalid edit is logged and the previous config stays in effect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&c.runAtStart, "now", false, "Also run once immediately")
	return cmd
}
