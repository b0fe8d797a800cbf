// Package metrics keeps the per-run Prometheus counters and pushes them to a
// Pushgateway when the job finishes. A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "revstats"

// Recorder owns a private registry so a run pushes only its own series.
type Recorder struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiRetries  *prometheus.CounterVec
	boosts      prometheus.Counter
	rows        prometheus.Counter
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	succeeded   prometheus.Gauge
}

// New creates a Recorder with all series registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Revcontent API requests by endpoint and HTTP status code.",
		}, []string{"endpoint", "code"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Repeated requests caused by responses without data.",
		}, []string{"endpoint"}),
		boosts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_boosts_total",
			Help:      "Boosts processed into the report.",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_rows_total",
			Help:      "Data rows written to the report.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		succeeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
	}
	r.registry.MustRegister(r.apiRequests, r.apiRetries, r.boosts, r.rows, r.duration, r.lastSuccess, r.succeeded)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRequest counts one API response. code 0 means no response was received.
func (r *Recorder) ObserveRequest(endpoint string, code int) {
	if r == nil {
		return
	}
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	r.apiRequests.WithLabelValues(endpoint, label).Inc()
}

// ObserveRetries counts n repeated requests for endpoint.
func (r *Recorder) ObserveRetries(endpoint string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.apiRetries.WithLabelValues(endpoint).Add(float64(n))
}

// AddBoost counts one processed boost and the rows it produced.
func (r *Recorder) AddBoost(rows int) {
	if r == nil {
		return
	}
	r.boosts.Inc()
	r.rows.Add(float64(rows))
}

// ObserveRun records the run duration and outcome.
func (r *Recorder) ObserveRun(started, finished time.Time, success bool) {
	if r == nil {
		return
	}
	r.duration.Set(finished.Sub(started).Seconds())
	if success {
		r.succeeded.Set(1)
		r.lastSuccess.Set(float64(finished.Unix()))
		return
	}
	r.succeeded.Set(0)
}

// Push sends every series to the Pushgateway at url under job, replacing the
// previous group. client may be nil.
func (r *Recorder) Push(ctx context.Context, url, job string, client *http.Client) error {
	if r == nil || url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(r.registry)
	if client != nil {
		pusher = pusher.Client(client)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
