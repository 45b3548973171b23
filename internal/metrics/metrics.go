// Package metrics exposes scheduling run metrics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

// Collector records the outcome of schedule generation runs.
type Collector struct {
	runs         prometheus.Counter
	failures     *prometheus.CounterVec
	entries      *prometheus.CounterVec
	dropped      prometheus.Counter
	reward       prometheus.Histogram
	lastReward   prometheus.Gauge
	runDuration  prometheus.Histogram
	sweepUsers   prometheus.Counter
	sweepSkipped prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector creates a Collector and registers it with reg. A nil reg uses a
// fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fika_schedule_runs_total",
			Help: "Total number of schedules generated and committed",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fika_schedule_failures_total",
			Help: "Total number of failed generation runs by stage",
		}, []string{"stage"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fika_schedule_entries_total",
			Help: "Total number of schedule entries produced by type",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fika_schedule_dropped_tasks_total",
			Help: "Total number of flexible tasks that did not fit their gap",
		}),
		reward: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fika_schedule_reward",
			Help:    "Whole-schedule reward of committed runs",
			Buckets: prometheus.LinearBuckets(-10, 5, 12),
		}),
		lastReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fika_schedule_last_reward",
			Help: "Reward of the most recent committed run",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fika_schedule_run_duration_seconds",
			Help:    "Wall time of a generation run",
			Buckets: prometheus.DefBuckets,
		}),
		sweepUsers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fika_sweep_users_total",
			Help: "Total number of users regenerated by the background sweep",
		}),
		sweepSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fika_sweep_skipped_total",
			Help: "Total number of sweep runs skipped because a run was in progress",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.runs,
		c.failures,
		c.entries,
		c.dropped,
		c.reward,
		c.lastReward,
		c.runDuration,
		c.sweepUsers,
		c.sweepSkipped,
	)
	return c
}

// ObserveRun records a committed run.
func (c *Collector) ObserveRun(counts map[domain.EntryType]int, dropped int, reward float64, elapsed time.Duration) {
	c.runs.Inc()
	for typ, n := range counts {
		c.entries.WithLabelValues(string(typ)).Add(float64(n))
	}
	c.dropped.Add(float64(dropped))
	c.reward.Observe(reward)
	c.lastReward.Set(reward)
	c.runDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records a run that aborted at stage.
func (c *Collector) ObserveFailure(stage string) {
	c.failures.WithLabelValues(stage).Inc()
}

// ObserveSweep records one background regeneration pass.
func (c *Collector) ObserveSweep(regenerated, skipped int) {
	c.sweepUsers.Add(float64(regenerated))
	c.sweepSkipped.Add(float64(skipped))
}

// Handler serves the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
