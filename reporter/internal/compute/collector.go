package compute

import (
	"log/slog"

	"github.com/obsidianstack/siteuptime/pkg/types"
)

// Collector builds a Fleet from a data source's event stream.
type Collector struct {
	fleet   *Fleet
	dropped int
}

// NewCollector returns a Collector over an empty Fleet.
func NewCollector() *Collector {
	return &Collector{fleet: NewFleet()}
}

// Apply folds one event into the fleet.
//
// A repeated ServiceDiscovered for a known ID is ignored. A FailureObserved
// for an ID that was never discovered is dropped with a warning and counted
// in Dropped.
func (c *Collector) Apply(ev types.Event) {
	switch e := ev.(type) {
	case types.ServiceDiscovered:
		if !c.fleet.Add(NewServiceRecord(e.ID, e.Name)) {
			slog.Debug("compute: service already discovered", "service_id", e.ID, "name", e.Name)
		}
	case types.FailureObserved:
		r, ok := c.fleet.Get(e.ID)
		if !ok {
			c.dropped++
			slog.Warn("compute: failure for unknown service dropped", "service_id", e.ID, "date", e.Date)
			return
		}
		r.AddFailure(FailureEvent{Date: e.Date, Error: e.Error, ResponseTime: e.ResponseTime})
	default:
		slog.Warn("compute: unknown event type ignored", "service_id", ev.ServiceID())
	}
}

// Fleet returns the fleet built so far.
func (c *Collector) Fleet() *Fleet { return c.fleet }

// Dropped is the number of failures discarded for unknown services.
func (c *Collector) Dropped() int { return c.dropped }

// Collect applies every event in order and returns the resulting fleet.
func Collect(events []types.Event) *Fleet {
	c := NewCollector()
	for _, ev := range events {
		c.Apply(ev)
	}
	return c.Fleet()
}
