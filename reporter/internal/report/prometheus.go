package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/compute"
)

const namespace = "siteuptime"

// Fleet set labels.
const (
	SetAll     = "all"
	SetTrimmed = "trimmed"
)

// Registry builds a registry holding the report gauges.
func Registry(win types.Window, rep *compute.Report) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	serviceUptime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "service_uptime_ratio",
		Help:      "Share of monitoring slots without a recorded failure in the window. Can be negative.",
	}, []string{"service_id", "service"})
	serviceDowns := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "service_downs",
		Help:      "Failures recorded for the service in the window.",
	}, []string{"service_id", "service"})
	fleetUptime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fleet_uptime_percent",
		Help:      "Mean uptime percentage over the fleet, before and after trimming.",
	}, []string{"set"})
	fleetMonitors := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fleet_monitors",
		Help:      "Number of services the fleet average was taken over.",
	}, []string{"set"})
	windowDays := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_days",
		Help:      "Length of the reporting window in days.",
	})
	windowStart := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_start_timestamp_seconds",
		Help:      "Start of the reporting window as a Unix timestamp.",
	})
	trimCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trim_count",
		Help:      "floor(monitors * trim percentage / 100); each side removes trim_count + 1 services.",
	})

	for _, c := range []prometheus.Collector{serviceUptime, serviceDowns, fleetUptime, fleetMonitors, windowDays, windowStart, trimCount} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("report: register: %w", err)
		}
	}

	for _, e := range rep.Ranked {
		id := strconv.Itoa(e.ID)
		serviceUptime.WithLabelValues(id, e.Name).Set(e.Uptime)
		serviceDowns.WithLabelValues(id, e.Name).Set(float64(e.Downs))
	}
	for set, avg := range map[string]compute.Average{SetAll: rep.All, SetTrimmed: rep.Trimmed} {
		fleetMonitors.WithLabelValues(set).Set(float64(avg.Count))
		// An empty set has no average; leave the series out rather than export 0.
		if avg.Valid() {
			fleetUptime.WithLabelValues(set).Set(avg.Percent)
		}
	}
	windowDays.Set(float64(rep.Days))
	windowStart.Set(float64(win.Start.Unix()))
	trimCount.Set(float64(rep.TrimCount))

	return reg, nil
}

// WritePrometheus writes the report, plus anything the extra gatherers hold,
// in the Prometheus text exposition format.
func WritePrometheus(w io.Writer, win types.Window, rep *compute.Report, extra ...prometheus.Gatherer) error {
	mfs, err := gatherAll(win, rep, extra...)
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("report: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes the same exposition atomically to path, for the
// node_exporter textfile collector.
func WriteTextfile(path string, win types.Window, rep *compute.Report, extra ...prometheus.Gatherer) error {
	reg, err := Registry(win, rep)
	if err != nil {
		return err
	}
	gatherers := append(prometheus.Gatherers{reg}, extra...)
	if err := prometheus.WriteToTextfile(path, gatherers); err != nil {
		return fmt.Errorf("report: write textfile: %w", err)
	}
	return nil
}

func gatherAll(win types.Window, rep *compute.Report, extra ...prometheus.Gatherer) ([]*dto.MetricFamily, error) {
	reg, err := Registry(win, rep)
	if err != nil {
		return nil, err
	}
	gatherers := append(prometheus.Gatherers{reg}, extra...)
	mfs, err := gatherers.Gather()
	if err != nil {
		return nil, fmt.Errorf("report: gather: %w", err)
	}
	return mfs, nil
}
