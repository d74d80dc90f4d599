package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/compute"
	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/report"
	"github.com/obsidianstack/siteuptime/reporter/internal/shipper"
	"github.com/obsidianstack/siteuptime/reporter/internal/store"
)

// LatestRun selects the most recent archived run in Options.RunID.
const LatestRun = "latest"

// Source produces the service and failure events for a window.
type Source interface {
	Collect(ctx context.Context, win types.Window, emit func(types.Event)) error
}

// Notifier delivers the run summary.
type Notifier interface {
	Enabled() bool
	Ship(ctx context.Context, msg shipper.Message) error
}

// Options selects what one run does.
type Options struct {
	// Window is the reporting range of a fresh collection. Ignored on replay.
	Window types.Window
	// TrimPercentage overrides the trim share. Zero keeps the archived value on
	// replay and is used as-is for a fresh run.
	TrimPercentage float64
	// Format is config.FormatText or config.FormatPrometheus.
	Format string
	// Textfile, when set, also writes the Prometheus exposition to this path.
	Textfile string
	// RunID replays an archived run instead of collecting. LatestRun picks the
	// newest one.
	RunID string
	// Retention deletes archived runs older than this after a save. Zero keeps
	// everything.
	Retention time.Duration
	// NoStore skips archiving.
	NoStore bool
	// NoShip skips webhook delivery.
	NoShip bool
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Window  types.Window
	Report  *compute.Report
	Dropped int
	Stored  bool
	Shipped bool
}

// Runner executes runs one at a time.
type Runner struct {
	mu       sync.Mutex
	out      io.Writer
	source   Source
	store    *store.Store
	notifier Notifier
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithSource sets the collection source. Without one only replays work.
func WithSource(src Source) Option { return func(r *Runner) { r.source = src } }

// WithStore enables archiving and replay.
func WithStore(st *store.Store) Option { return func(r *Runner) { r.store = st } }

// WithNotifier sets the summary delivery.
func WithNotifier(n Notifier) Option { return func(r *Runner) { r.notifier = n } }

// WithGatherer appends the run's own metrics to Prometheus output.
func WithGatherer(g prometheus.Gatherer) Option { return func(r *Runner) { r.gatherer = g } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New returns a Runner writing reports to out.
func New(out io.Writer, opts ...Option) *Runner {
	r := &Runner{out: out, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one run. A non-nil Result is returned whenever the report was
// written, even if archiving or shipping failed afterwards.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &Result{}
	fleet, trim, fresh, err := r.load(ctx, opts, res)
	if err != nil {
		return nil, err
	}

	engine, err := compute.NewEngine(compute.Settings{TrimPercentage: trim}, res.Window.Days())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	res.Report = engine.Run(fleet)

	if err := r.render(opts, res); err != nil {
		return nil, err
	}

	var errs []error
	if opts.Textfile != "" {
		if err := report.WriteTextfile(opts.Textfile, res.Window, res.Report, r.gatherers()...); err != nil {
			slog.Error("pipeline: textfile write failed", "path", opts.Textfile, "err", err)
			errs = append(errs, err)
		}
	}

	if fresh && r.store != nil && !opts.NoStore {
		if err := r.archive(ctx, opts, trim, fleet, res); err != nil {
			errs = append(errs, err)
		}
	}

	if r.notifier != nil && r.notifier.Enabled() && !opts.NoShip {
		if err := r.notifier.Ship(ctx, message(res)); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: ship: %w", err))
		} else {
			res.Shipped = true
		}
	}

	slog.Info("pipeline: run complete",
		"run_id", res.RunID,
		"window", res.Window.String(),
		"monitors", len(res.Report.Ranked),
		"average", res.Report.All.String(),
		"trimmed_average", res.Report.Trimmed.String(),
		"stored", res.Stored,
		"shipped", res.Shipped,
	)
	return res, errors.Join(errs...)
}

// load returns the fleet to report on and the trim share to use. fresh is
// true when the fleet was collected now rather than replayed.
func (r *Runner) load(ctx context.Context, opts Options, res *Result) (*compute.Fleet, float64, bool, error) {
	if opts.RunID != "" {
		if r.store == nil {
			return nil, 0, false, fmt.Errorf("pipeline: replay %q: no run archive configured", opts.RunID)
		}
		var (
			run *store.Run
			err error
		)
		if opts.RunID == LatestRun {
			run, err = r.store.LatestRun(ctx)
		} else {
			run, err = r.store.LoadRun(ctx, opts.RunID)
		}
		if err != nil {
			return nil, 0, false, fmt.Errorf("pipeline: replay %q: %w", opts.RunID, err)
		}
		trim := run.TrimPercentage
		if opts.TrimPercentage > 0 {
			trim = opts.TrimPercentage
		}
		res.RunID = run.ID
		res.Window = run.Window
		slog.Info("pipeline: replaying archived run", "run_id", run.ID, "collected_at", run.CollectedAt)
		return run.Fleet(), trim, false, nil
	}

	if r.source == nil {
		return nil, 0, false, errors.New("pipeline: no source configured")
	}
	if err := opts.Window.Validate(); err != nil {
		return nil, 0, false, fmt.Errorf("pipeline: %w", err)
	}

	col := compute.NewCollector()
	if err := r.source.Collect(ctx, opts.Window, col.Apply); err != nil {
		return nil, 0, false, fmt.Errorf("pipeline: collect: %w", err)
	}
	res.Window = opts.Window
	res.Dropped = col.Dropped()
	if res.Dropped > 0 {
		slog.Warn("pipeline: failures for unknown services were dropped", "count", res.Dropped)
	}
	return col.Fleet(), opts.TrimPercentage, true, nil
}

func (r *Runner) render(opts Options, res *Result) error {
	var err error
	switch opts.Format {
	case config.FormatText, "":
		err = report.WriteText(r.out, res.Window, res.Report)
	case config.FormatPrometheus:
		err = report.WritePrometheus(r.out, res.Window, res.Report, r.gatherers()...)
	default:
		return fmt.Errorf("pipeline: unknown format %q", opts.Format)
	}
	if err != nil {
		return fmt.Errorf("pipeline: render %s: %w", opts.Format, err)
	}
	return nil
}

func (r *Runner) archive(ctx context.Context, opts Options, trim float64, fleet *compute.Fleet, res *Result) error {
	now := r.now()
	run := store.NewRun(now, res.Window, trim, fleet)
	if err := r.store.SaveRun(ctx, run); err != nil {
		slog.Error("pipeline: archive failed", "err", err)
		return fmt.Errorf("pipeline: archive: %w", err)
	}
	res.RunID = run.ID
	res.Stored = true

	if opts.Retention > 0 {
		removed, err := r.store.DeleteOlderThan(ctx, now.Add(-opts.Retention))
		if err != nil {
			slog.Error("pipeline: retention cleanup failed", "err", err)
			return fmt.Errorf("pipeline: retention: %w", err)
		}
		if removed > 0 {
			slog.Info("pipeline: expired runs deleted", "count", removed, "retention", opts.Retention)
		}
	}
	return nil
}

func (r *Runner) gatherers() []prometheus.Gatherer {
	if r.gatherer == nil {
		return nil
	}
	return []prometheus.Gatherer{r.gatherer}
}

// message builds the webhook summary for a finished run.
func message(res *Result) shipper.Message {
	rep := res.Report
	fields := map[string]any{
		"window_start": res.Window.Start.Format(types.DateLayout),
		"window_end":   res.Window.End.Format(types.DateLayout),
		"days":         rep.Days,
		"monitors":     len(rep.Ranked),
		"trim_count":   rep.TrimCount,
	}
	if rep.All.Valid() {
		fields["average_percent"] = rep.All.Percent
	}
	if rep.Trimmed.Valid() {
		fields["trimmed_average_percent"] = rep.Trimmed.Percent
	}
	return shipper.Message{
		Title:  fmt.Sprintf("Uptime report %s", res.Window),
		Text:   report.Summary(res.Window, rep),
		RunID:  res.RunID,
		Fields: fields,
	}
}
