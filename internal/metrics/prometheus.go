package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	queueDepth       *prometheus.GaugeVec
	oldestPendingAge prometheus.Gauge
	results          *prometheus.CounterVec
	remoteAttempts   prometheus.Counter
	drainDuration    prometheus.Summary
}

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shipsync_queue_depth",
		Help: "Fulfillment requests by state",
	}, []string{"state"})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shipsync_oldest_pending_age_seconds",
		Help: "Age of the oldest pending fulfillment request",
	})
	results = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipsync_sync_results_total",
		Help: "Processed fulfillment requests by result",
	}, []string{"result"})
	remoteAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipsync_remote_attempts_total",
		Help: "HTTP attempts made against the platform",
	})
	drainDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "shipsync_drain_duration_seconds",
		Help: "Duration of drain batches",
	})
)

func NewPrometheusObserver() SyncObserver {
	return &prometheusObserver{
		queueDepth:       queueDepth,
		oldestPendingAge: oldestPendingAge,
		results:          results,
		remoteAttempts:   remoteAttempts,
		drainDuration:    drainDuration,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) ObserveQueueDepth(state string, n int64) {
	p.queueDepth.WithLabelValues(state).Set(float64(n))
}
func (p *prometheusObserver) ObserveOldestPendingAge(seconds float64) {
	p.oldestPendingAge.Set(seconds)
}
func (p *prometheusObserver) RecordResult(result string) {
	p.results.WithLabelValues(result).Inc()
}
func (p *prometheusObserver) RecordRemoteAttempts(n int) {
	p.remoteAttempts.Add(float64(n))
}
func (p *prometheusObserver) ObserveDrainDuration(seconds float64) {
	p.drainDuration.Observe(seconds)
}
