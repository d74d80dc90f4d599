// Package store archives collected runs in SQLite so a report can be
// rebuilt later without scraping the dashboard again.
//
// A run is the window, the trim percentage it was first reported with and
// every collected service with its failures, in discovery order. Replaying a
// run into a compute.Fleet gives back the same ranked output.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/compute"
)

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one archived collection.
type Run struct {
	ID             string
	CollectedAt    time.Time
	Window         types.Window
	TrimPercentage float64
	Services       []Service
}

// Service is one archived service and its failures in discovery order.
type Service struct {
	ID       int
	Name     string
	Failures []compute.FailureEvent
}

// RunInfo summarises a run for listings.
type RunInfo struct {
	ID             string
	CollectedAt    time.Time
	Window         types.Window
	Days           int
	TrimPercentage float64
	Services       int
	Failures       int
}

// NewRun captures fleet as a run with a fresh ID.
func NewRun(collectedAt time.Time, win types.Window, trimPercentage float64, fleet *compute.Fleet) *Run {
	run := &Run{
		ID:             uuid.NewString(),
		CollectedAt:    collectedAt.UTC().Truncate(time.Second),
		Window:         win,
		TrimPercentage: trimPercentage,
	}
	for _, r := range fleet.Records() {
		run.Services = append(run.Services, Service{ID: r.ID, Name: r.Name, Failures: r.Failures()})
	}
	return run
}

// Fleet rebuilds the working set in the original discovery order.
func (r *Run) Fleet() *compute.Fleet {
	f := compute.NewFleet()
	for _, s := range r.Services {
		rec := compute.NewServiceRecord(s.ID, s.Name)
		for _, ev := range s.Failures {
			rec.AddFailure(ev)
		}
		f.Add(rec)
	}
	return f
}

// Store reads and writes archived runs.
type Store struct {
	db *sql.DB
}

// New returns a Store over an opened and migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// SaveRun writes run in a single transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (id,collected_at,start_date,end_date,days,trim_percentage) VALUES (?,?,?,?,?,?)`,
		run.ID, run.CollectedAt.UTC(),
		run.Window.Start.Format(types.DateLayout), run.Window.End.Format(types.DateLayout),
		run.Window.Days(), run.TrimPercentage)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	svcStmt, err := tx.PrepareContext(ctx, `INSERT INTO services (run_id,service_id,name,seq) VALUES (?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("store: prepare services: %w", err)
	}
	defer svcStmt.Close()
	failStmt, err := tx.PrepareContext(ctx, `INSERT INTO failures (run_id,service_id,seq,date,error,response_time) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("store: prepare failures: %w", err)
	}
	defer failStmt.Close()

	for i, svc := range run.Services {
		if _, err := svcStmt.ExecContext(ctx, run.ID, svc.ID, svc.Name, i); err != nil {
			return fmt.Errorf("store: insert service %d: %w", svc.ID, err)
		}
		for j, f := range svc.Failures {
			if _, err := failStmt.ExecContext(ctx, run.ID, svc.ID, j, f.Date, f.Error, f.ResponseTime); err != nil {
				return fmt.Errorf("store: insert failure %d/%d: %w", svc.ID, j, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// LoadRun reads the run with the given ID.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	var start, end string
	err := s.db.QueryRowContext(ctx, `SELECT collected_at,start_date,end_date,trim_percentage FROM runs WHERE id = ?`, id).
		Scan(&run.CollectedAt, &start, &end, &run.TrimPercentage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load run: %w", err)
	}
	if run.Window, err = parseWindow(start, end); err != nil {
		return nil, fmt.Errorf("store: run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT service_id,name FROM services WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("store: load services: %w", err)
	}
	index := make(map[int]int)
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan service: %w", err)
		}
		index[svc.ID] = len(run.Services)
		run.Services = append(run.Services, svc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load services: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT service_id,date,error,response_time FROM failures WHERE run_id = ? ORDER BY service_id, seq`, id)
	if err != nil {
		return nil, fmt.Errorf("store: load failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var svcID int
		var f compute.FailureEvent
		if err := rows.Scan(&svcID, &f.Date, &f.Error, &f.ResponseTime); err != nil {
			return nil, fmt.Errorf("store: scan failure: %w", err)
		}
		i, ok := index[svcID]
		if !ok {
			continue
		}
		run.Services[i].Failures = append(run.Services[i].Failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load failures: %w", err)
	}
	return run, nil
}

// LatestRun reads the most recently collected run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY collected_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest run: %w", err)
	}
	return s.LoadRun(ctx, id)
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT r.id,r.collected_at,r.start_date,r.end_date,r.days,r.trim_percentage,
		(SELECT COUNT(*) FROM services s WHERE s.run_id = r.id),
		(SELECT COUNT(*) FROM failures f WHERE f.run_id = r.id)
		FROM runs r
		ORDER BY r.collected_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunInfo, 0, limit)
	for rows.Next() {
		var info RunInfo
		var start, end string
		if err := rows.Scan(&info.ID, &info.CollectedAt, &start, &end, &info.Days, &info.TrimPercentage, &info.Services, &info.Failures); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if info.Window, err = parseWindow(start, end); err != nil {
			return nil, fmt.Errorf("store: run %s: %w", info.ID, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes runs collected before cutoff and returns how many
// were deleted. Services and failures go with them.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE collected_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete old runs: %w", err)
	}
	_, _ = s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return n, nil
}

func parseWindow(start, end string) (types.Window, error) {
	s, err := time.Parse(types.DateLayout, start)
	if err != nil {
		return types.Window{}, err
	}
	e, err := time.Parse(types.DateLayout, end)
	if err != nil {
		return types.Window{}, err
	}
	return types.NewWindow(s, e), nil
}
