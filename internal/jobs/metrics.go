// Package jobmetrics instruments worker task runs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of a finished run.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// OtherJob labels runs of task types the worker was not built with, which
// keeps label cardinality bounded.
const OtherJob = "other"

// Metrics holds the collectors for a fixed set of task types.
type Metrics struct {
	known       map[string]bool
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	lastItems   *prometheus.GaugeVec
	now         func() time.Time
}

// NewMetrics builds the collectors and pre-creates the series of every job so
// dashboards show zeros before the first run. A nil registerer leaves the
// collectors unregistered.
func NewMetrics(registerer prometheus.Registerer, jobs ...string) *Metrics {
	m := &Metrics{
		known: make(map[string]bool, len(jobs)),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_job_runs_total",
			Help: "Worker task runs by task type and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_job_duration_seconds",
			Help:    "Worker task run time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backoffice_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of a task type.",
		}, []string{"job"}),
		lastItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backoffice_job_last_items",
			Help: "Rows handled by the last successful run of a task type.",
		}, []string{"job"}),
		now: time.Now,
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.lastItems)
	}
	for _, job := range jobs {
		m.known[job] = true
		m.runs.WithLabelValues(job, OutcomeOK)
		m.runs.WithLabelValues(job, OutcomeError)
	}
	return m
}

func (m *Metrics) label(job string) string {
	if m.known[job] {
		return job
	}
	return OtherJob
}

// Run measures one execution of a task.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
	items   int
	counted bool
}

// Start begins measuring a run of job. On a nil Metrics the run records
// nothing.
func (m *Metrics) Start(job string) *Run {
	if m == nil {
		return &Run{job: job}
	}
	return &Run{metrics: m, job: m.label(job), start: m.now()}
}

// Items notes how many rows the run handled.
func (r *Run) Items(n int) {
	r.items, r.counted = n, true
}

// Finish records the outcome and returns err unchanged.
func (r *Run) Finish(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	end := r.metrics.now()
	r.metrics.duration.WithLabelValues(r.job).Observe(end.Sub(r.start).Seconds())
	if err != nil {
		r.metrics.runs.WithLabelValues(r.job, OutcomeError).Inc()
		return err
	}
	r.metrics.runs.WithLabelValues(r.job, OutcomeOK).Inc()
	r.metrics.lastSuccess.WithLabelValues(r.job).Set(float64(end.Unix()))
	if r.counted {
		r.metrics.lastItems.WithLabelValues(r.job).Set(float64(r.items))
	}
	return nil
}
