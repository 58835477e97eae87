// Package metrics holds the kiosk's prometheus collectors. A nil *Collector is
// valid and records nothing, so components can be built without metrics in
// tests and one-shot commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups the domain metrics of the scan workflow and offline cache.
type Collector struct {
	scans          *prometheus.CounterVec
	verifyDuration prometheus.Histogram
	workflowState  *prometheus.GaugeVec
	cacheRequests  *prometheus.CounterVec
	cacheInstalls  *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exitscan_scans_total",
			Help: "Scans presented, by outcome (success, failure, invalid).",
		}, []string{"outcome"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exitscan_verification_duration_seconds",
			Help:    "Latency of verification requests.",
			Buckets: prometheus.DefBuckets,
		}),
		workflowState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exitscan_workflow_state",
			Help: "1 for the workflow's current state, 0 otherwise.",
		}, []string{"state"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exitscan_cache_requests_total",
			Help: "Intercepted asset requests, by result (hit, miss).",
		}, []string{"result"}),
		cacheInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exitscan_cache_installs_total",
			Help: "Offline cache install attempts, by status (ok, failed).",
		}, []string{"status"}),
	}

	for _, col := range []prometheus.Collector{c.scans, c.verifyDuration, c.workflowState, c.cacheRequests, c.cacheInstalls} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordScan counts a presented scan result.
func (c *Collector) RecordScan(outcome string) {
	if c == nil {
		return
	}
	c.scans.WithLabelValues(outcome).Inc()
}

// ObserveVerification records the latency of one verification call.
func (c *Collector) ObserveVerification(d time.Duration) {
	if c == nil {
		return
	}
	c.verifyDuration.Observe(d.Seconds())
}

// SetState marks current as the active workflow state among all.
func (c *Collector) SetState(current string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		c.workflowState.WithLabelValues(s).Set(v)
	}
}

// RecordCacheRequest counts an intercepted request as a hit or a miss.
func (c *Collector) RecordCacheRequest(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheRequests.WithLabelValues(result).Inc()
}

// RecordInstall counts an install attempt.
func (c *Collector) RecordInstall(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	c.cacheInstalls.WithLabelValues(status).Inc()
}
