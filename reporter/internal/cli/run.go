package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/pipeline"
	"github.com/obsidianstack/siteuptime/reporter/internal/scraper"
	"github.com/obsidianstack/siteuptime/reporter/internal/security"
	"github.com/obsidianstack/siteuptime/reporter/internal/shipper"
)

type runCmd struct {
	env *env

	start    string
	end      string
	trim     float64
	format   string
	textfile string
	noStore  bool
	noShip   bool
}

func (c *runCmd) run(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	cfg := *c.env.cfg

	if err := c.apply(cmd, &cfg); err != nil {
		return err
	}
	win, err := cfg.Reporter.Window.Resolve(time.Now())
	if err != nil {
		return fmt.Errorf("cli: %w", err)
	}

	site := cfg.Reporter.Site
	password := site.Password()
	if site.Username == "" || password == "" {
		prompt := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		if site.Username == "" {
			if site.Username, err = prompt.ask("Username: "); err != nil {
				return err
			}
		}
		if password == "" {
			if password, err = prompt.askSecret("Password: "); err != nil {
				return err
			}
		}
	}

	security.Preflight(ctx, site)
	client, err := scraper.New(site, password)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg.Reporter.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := pipeline.New(cmd.OutOrStdout(),
		pipeline.WithSource(client),
		pipeline.WithStore(st),
		pipeline.WithNotifier(shipper.New(cfg.Reporter.Webhooks)),
		pipeline.WithGatherer(c.env.registry),
	)
	_, err = runner.Run(ctx, pipeline.Options{
		Window:         win,
		TrimPercentage: cfg.Reporter.TrimPercentage,
		Format:         cfg.Reporter.Output.Format,
		Textfile:       cfg.Reporter.Output.Textfile,
		Retention:      cfg.Reporter.Storage.Retention,
		NoStore:        c.noStore,
		NoShip:         c.noShip,
	})
	return err
}

// apply copies explicitly set flags over cfg and validates the result.
func (c *runCmd) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("start") || flags.Changed("end") {
		cfg.Reporter.Window = config.WindowConfig{Start: c.start, End: c.end}
	}
	if flags.Changed("trim") {
		cfg.Reporter.TrimPercentage = c.trim
	}
	if flags.Changed("format") {
		cfg.Reporter.Output.Format = c.format
	}
	if flags.Changed("textfile") {
		cfg.Reporter.Output.Textfile = c.textfile
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("cli: %w", err)
	}
	return nil
}

func newRunCmd(e *env) *cobra.Command {
	c := &runCmd{env: e}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect failure history and print the uptime report",
		Long: `Log in to the dashboard, read the failure history of every service for the
reporting window and print the ranked and trimmed uptime report.

The password is read from the environment variable named by site.password_env.
When it is empty the command prompts for it on stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.start, "start", "", "Window start date (YYYY-MM-DD or D/M/YYYY)")
	flags.StringVar(&c.end, "end", "", "Window end date (YYYY-MM-DD or D/M/YYYY)")
	flags.Float64Var(&c.trim, "trim", config.DefaultTrimPercentage, "Percentage of services trimmed from each end")
	flags.StringVar(&c.format, "format", config.DefaultFormat, "Output format: text or prometheus")
	flags.StringVar(&c.textfile, "textfile", "", "Also write Prometheus metrics to this file")
	flags.BoolVar(&c.noStore, "no-store", false, "Do not archive this run")
	flags.BoolVar(&c.noShip, "no-ship", false, "Do not send the webhook summary")

	return cmd
}

// prompter reads answers line by line from an interactive input.
type prompter struct {
	src io.Reader
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{src: in, in: bufio.NewReader(in), out: out}
}

// askSecret reads an answer without echo when the input is a terminal and
// falls back to ask for pipes and files.
func (p *prompter) askSecret(question string) (string, error) {
	f, ok := p.src.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.ask(question)
	}
	fmt.Fprint(p.out, question)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("cli: read %s: %w", strings.TrimSuffix(strings.ToLower(question), ": "), err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("cli: read %s: %w", strings.TrimSuffix(strings.ToLower(question), ": "), err)
	}
	return strings.TrimSpace(line), nil
}
