package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/siteuptime/pkg/types"
)

type runsCmd struct {
	env   *env
	limit int
}

func (c *runsCmd) run(cmd *cobra.Command, out io.Writer) error {
	st, closeStore, err := requireStore(c.env.cfg.Reporter.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := st.ListRuns(commandContext(cmd), c.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCollected\tStart\tEnd\tDays\tTrim\tServices\tFailures")
	fmt.Fprintln(w, "--\t---------\t-----\t---\t----\t----\t--------\t--------")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1f%%\t%d\t%d\n",
			r.ID,
			r.CollectedAt.Format("2006-01-02 15:04:05"),
			r.Window.Start.Format(types.DateLayout),
			r.Window.End.Format(types.DateLayout),
			r.Days,
			r.TrimPercentage,
			r.Services,
			r.Failures,
		)
	}
	return w.Flush()
}

func newRunsCmd(e *env) *cobra.Command {
	c := &runsCmd{env: e}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		Long:  `List the runs stored in the archive, newest first`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&c.limit, "limit", 20, "Number of runs to list")
	return cmd
}
