package scraper

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
)

// Collect logs in, lists the services and emits, per service, one
// ServiceDiscovered followed by its FailureObserved events.
//
// Login and listing failures abort the run. A service whose page cannot be
// fetched, or has no failure log, is skipped with a warning.
func (c *Client) Collect(ctx context.Context, win types.Window, emit func(types.Event)) error {
	if err := c.Login(ctx); err != nil {
		return err
	}

	ids, err := c.ServiceIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Info("scraper: getting name and failures", "service_id", id)
		page, err := c.Failures(ctx, id, win)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.IncSkipped()
			slog.Warn("scraper: skipping service", "service_id", id, "err", err)
			continue
		}
		if !page.Found {
			metrics.IncSkipped()
			slog.Warn("scraper: skipping service without failure log", "service_id", id)
			continue
		}

		emit(types.ServiceDiscovered{ID: id, Name: page.Name})
		for _, f := range page.Failures {
			emit(types.FailureObserved{ID: id, Date: f.Date, Error: f.Error, ResponseTime: f.ResponseTime})
		}
		slog.Debug("scraper: service collected", "service_id", id, "name", page.Name, "failures", len(page.Failures))
	}
	return nil
}
