package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/pipeline"
	"github.com/obsidianstack/siteuptime/reporter/internal/shipper"
)

type reportCmd struct {
	env *env

	runID    string
	trim     float64
	format   string
	textfile string
	ship     bool
}

func (c *reportCmd) run(cmd *cobra.Command) error {
	cfg := c.env.cfg
	st, closeStore, err := requireStore(cfg.Reporter.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	format := cfg.Reporter.Output.Format
	if cmd.Flags().Changed("format") {
		format = c.format
	}
	if format != config.FormatText && format != config.FormatPrometheus {
		return fmt.Errorf("cli: unknown format %q (want text or prometheus)", format)
	}
	trim := 0.0
	if cmd.Flags().Changed("trim") {
		if c.trim <= 0 || c.trim > 50 {
			return fmt.Errorf("cli: --trim must be greater than 0 and at most 50, got %v", c.trim)
		}
		trim = c.trim
	}

	runner := pipeline.New(cmd.OutOrStdout(),
		pipeline.WithStore(st),
		pipeline.WithNotifier(shipper.New(cfg.Reporter.Webhooks)),
	)
	_, err = runner.Run(commandContext(cmd), pipeline.Options{
		RunID:          c.runID,
		TrimPercentage: trim,
		Format:         format,
		Textfile:       c.textfile,
		NoShip:         !c.ship,
	})
	return err
}

func newReportCmd(e *env) *cobra.Command {
	c := &reportCmd{env: e}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-report an archived run",
		Long: `Rebuild the uptime report from a run stored in the archive, optionally with a
different trim percentage. Nothing is fetched from the dashboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.runID, "run", pipeline.LatestRun, "Run ID to report, or \"latest\"")
	flags.Float64Var(&c.trim, "trim", 0, "Override the archived trim percentage (0 < trim <= 50); unset keeps the archived value")
	flags.StringVar(&c.format, "format", config.DefaultFormat, "Output format: text or prometheus")
	flags.StringVar(&c.textfile, "textfile", "", "Also write Prometheus metrics to this file")
	flags.BoolVar(&c.ship, "ship", false, "Send the webhook summary for this report")

	return cmd
}
