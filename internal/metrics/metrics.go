// Package metrics exposes Prometheus collectors and per-stage run
// summaries for the scraper pipelines. The Collector is an explicit
// dependency handed to each component at construction time; there is no
// process-wide singleton.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot captures one stage's counters for an end-of-run summary.
type Snapshot struct {
	Processed   int64     `json:"processed"`
	Succeeded   int64     `json:"succeeded"`
	Failed      int64     `json:"failed"`
	Retried     int64     `json:"retried"`
	RateLimited int64     `json:"rate_limited"`
	Started     time.Time `json:"started"`
}

// SuccessRate is the percentage of processed items that succeeded.
func (s Snapshot) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Processed) * 100
}

// PerHour is the processing rate in items per hour since the stage
// started.
func (s Snapshot) PerHour() float64 {
	elapsed := time.Since(s.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Processed) / elapsed * 3600
}

// Collector tracks per-stage outcome counters, both as Prometheus series
// and as in-process snapshots for printed summaries. Quota-triggered
// retries (rate_limited) are kept separate from failure retries
// (retried); the former are externally paced and uncapped.
type Collector struct {
	registry *prometheus.Registry

	processed     *prometheus.CounterVec
	succeeded     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	retried       *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	staleReleased prometheus.Counter

	mu        sync.Mutex
	snapshots map[string]*Snapshot
}

// New builds a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_processed_total",
			Help: "Work items picked up for processing, labeled by stage.",
		}, []string{"stage"}),
		succeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_succeeded_total",
			Help: "Work items committed successfully, labeled by stage.",
		}, []string{"stage"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_failed_total",
			Help: "Work items that ended in failure, labeled by stage.",
		}, []string{"stage"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_item_retries_total",
			Help: "Processing-failure retries, labeled by stage.",
		}, []string{"stage"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_rate_limit_hits_total",
			Help: "Quota-exhaustion events, labeled by stage.",
		}, []string{"stage"}),
		staleReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_stale_claims_released_total",
			Help: "Stale PROCESSING claims recovered by the claim step.",
		}),
		snapshots: make(map[string]*Snapshot),
	}
	reg.MustRegister(c.processed, c.succeeded, c.failed, c.retried, c.rateLimited, c.staleReleased)
	return c
}

func (c *Collector) snapshot(stage string) *Snapshot {
	s, ok := c.snapshots[stage]
	if !ok {
		s = &Snapshot{Started: time.Now()}
		c.snapshots[stage] = s
	}
	return s
}

// Processed records that an item was picked up by a stage.
func (c *Collector) Processed(stage string) {
	c.processed.WithLabelValues(stage).Inc()
	c.mu.Lock()
	c.snapshot(stage).Processed++
	c.mu.Unlock()
}

// Succeeded records a committed item.
func (c *Collector) Succeeded(stage string) {
	c.succeeded.WithLabelValues(stage).Inc()
	c.mu.Lock()
	c.snapshot(stage).Succeeded++
	c.mu.Unlock()
}

// Failed records a terminally failed item.
func (c *Collector) Failed(stage string) {
	c.failed.WithLabelValues(stage).Inc()
	c.mu.Lock()
	c.snapshot(stage).Failed++
	c.mu.Unlock()
}

// Retried records one processing-failure retry.
func (c *Collector) Retried(stage string) {
	c.retried.WithLabelValues(stage).Inc()
	c.mu.Lock()
	c.snapshot(stage).Retried++
	c.mu.Unlock()
}

// RateLimited records one quota-exhaustion event.
func (c *Collector) RateLimited(stage string) {
	c.rateLimited.WithLabelValues(stage).Inc()
	c.mu.Lock()
	c.snapshot(stage).RateLimited++
	c.mu.Unlock()
}

// SucceededN records n committed items at once (batch inserts).
func (c *Collector) SucceededN(stage string, n int64) {
	if n <= 0 {
		return
	}
	c.succeeded.WithLabelValues(stage).Add(float64(n))
	c.mu.Lock()
	c.snapshot(stage).Succeeded += n
	c.mu.Unlock()
}

// StaleReleased records recovered stale claims. Implements the store's
// StaleObserver.
func (c *Collector) StaleReleased(count int) {
	if count <= 0 {
		return
	}
	c.staleReleased.Add(float64(count))
}

// Snapshot returns a copy of the stage's counters.
func (c *Collector) Snapshot(stage string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.snapshot(stage)
}

// Snapshots returns copies of every tracked stage's counters.
func (c *Collector) Snapshots() map[string]Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Snapshot, len(c.snapshots))
	for stage, s := range c.snapshots {
		out[stage] = *s
	}
	return out
}

// Handler serves the collector's registry in Prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
