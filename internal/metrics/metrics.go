// Package metrics exposes run counters to Prometheus, by scrape in serve mode
// or by Pushgateway push for one-shot runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder is what a run reports to.
type Recorder interface {
	RecordSource(source string, items int, err error, d time.Duration)
	RecordSelected(kind, stage string)
	RecordSnapshotFailure()
	RecordDelivery(result string)
	RecordPersistFailure()
	RecordRun(d time.Duration, ok bool)
}

// Delivery results.
const (
	DeliveryOK      = "ok"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

type Collector struct {
	sourceItems     *prometheus.CounterVec
	sourceFailures  *prometheus.CounterVec
	sourceLatency   *prometheus.HistogramVec
	selected        *prometheus.CounterVec
	snapshotFail    prometheus.Counter
	deliveries      *prometheus.CounterVec
	persistFail     prometheus.Counter
	runDuration     prometheus.Histogram
	lastSuccessTime prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sourceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpush_source_items_total",
			Help: "Raw items returned per source.",
		}, []string{"source"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpush_source_failures_total",
			Help: "Source fetches that failed and were degraded to an empty list.",
		}, []string{"source"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedpush_source_fetch_seconds",
			Help:    "Source fetch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		selected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpush_selected_total",
			Help: "Selected items by kind and the filter stage that admitted them.",
		}, []string{"kind", "stage"}),
		snapshotFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpush_snapshot_failures_total",
			Help: "Runs that selected against an empty state because the store read failed.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedpush_deliveries_total",
			Help: "Message deliveries by result.",
		}, []string{"result"}),
		persistFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedpush_persist_failures_total",
			Help: "Batches discarded because the store commit failed.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedpush_run_duration_seconds",
			Help:    "Duration of one full run.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		lastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedpush_last_success_timestamp_seconds",
			Help: "Unix time of the last run that delivered its message.",
		}),
	}

	reg.MustRegister(
		c.sourceItems,
		c.sourceFailures,
		c.sourceLatency,
		c.selected,
		c.snapshotFail,
		c.deliveries,
		c.persistFail,
		c.runDuration,
		c.lastSuccessTime,
	)
	return c
}

func (c *Collector) RecordSource(source string, items int, err error, d time.Duration) {
	c.sourceLatency.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		c.sourceFailures.WithLabelValues(source).Inc()
		return
	}
	c.sourceItems.WithLabelValues(source).Add(float64(items))
}

func (c *Collector) RecordSelected(kind, stage string) {
	c.selected.WithLabelValues(kind, stage).Inc()
}

func (c *Collector) RecordSnapshotFailure() { c.snapshotFail.Inc() }
func (c *Collector) RecordPersistFailure()  { c.persistFail.Inc() }

func (c *Collector) RecordDelivery(result string) {
	c.deliveries.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRun(d time.Duration, ok bool) {
	c.runDuration.Observe(d.Seconds())
	if ok {
		c.lastSuccessTime.SetToCurrentTime()
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSource(string, int, error, time.Duration) {}
func (Nop) RecordSelected(string, string)                  {}
func (Nop) RecordSnapshotFailure()                         {}
func (Nop) RecordDelivery(string)                          {}
func (Nop) RecordPersistFailure()                          {}
func (Nop) RecordRun(time.Duration, bool)                  {}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Push sends every metric of the gatherer to a Pushgateway, replacing the job's group.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
