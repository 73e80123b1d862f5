// Package monitoring tracks the health of recent research runs and alerts
// when degradation or spend crosses configured thresholds.
package monitoring

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/sells-group/research-brief/internal/model"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal         int                     `json:"runs_total"`
	RunsDegraded      int                     `json:"runs_degraded"`
	DegradedRate      float64                 `json:"degraded_rate"`
	ComponentFailures map[model.Component]int `json:"component_failures"`
	RateLimitErrors   int                     `json:"rate_limit_errors"`
	BackgroundJobs    int                     `json:"background_jobs"`
	CostUSD           float64                 `json:"cost_usd"`
	AvgTokens         int                     `json:"avg_tokens"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

type runRecord struct {
	at          time.Time
	failed      []model.Component
	rateLimited int
	background  bool
	costUSD     float64
	tokens      int
}

// Collector keeps an in-memory window of finished runs.
type Collector struct {
	mu        sync.Mutex
	clock     clock.Clock
	retention time.Duration
	runs      []runRecord
}

// NewCollector creates a collector that forgets runs older than retention.
func NewCollector(clk clock.Clock, retention time.Duration) *Collector {
	if clk == nil {
		clk = clock.New()
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Collector{clock: clk, retention: retention}
}

// Record adds a finished run.
func (c *Collector) Record(resp *model.ResearchResponse) {
	if resp == nil {
		return
	}

	rec := runRecord{
		at:         resp.CompletedAt,
		background: resp.IsBackgroundJob,
		costUSD:    resp.EstimatedCostUSD,
		tokens:     resp.TokenUsage.Total.TotalTokens,
	}
	if rec.at.IsZero() {
		rec.at = c.clock.Now()
	}
	seen := make(map[model.Component]bool)
	for _, e := range resp.Errors {
		if e.Kind == model.ErrorKindRateLimit {
			rec.rateLimited++
		}
		if !seen[e.Component] {
			seen[e.Component] = true
			rec.failed = append(rec.failed, e.Component)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, rec)
	c.pruneLocked()
}

// Collect summarizes the runs recorded within the lookback window.
func (c *Collector) Collect(lookbackHours int) *MetricsSnapshot {
	now := c.clock.Now().UTC()
	snap := &MetricsSnapshot{
		ComponentFailures: make(map[model.Component]int),
		LookbackHours:     lookbackHours,
		CollectedAt:       now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()

	var totalTokens int
	for _, r := range c.runs {
		if r.at.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		if len(r.failed) > 0 {
			snap.RunsDegraded++
		}
		for _, comp := range r.failed {
			snap.ComponentFailures[comp]++
		}
		snap.RateLimitErrors += r.rateLimited
		if r.background {
			snap.BackgroundJobs++
		}
		snap.CostUSD += r.costUSD
		totalTokens += r.tokens
	}

	if snap.RunsTotal > 0 {
		snap.DegradedRate = float64(snap.RunsDegraded) / float64(snap.RunsTotal)
		snap.AvgTokens = totalTokens / snap.RunsTotal
	}
	return snap
}

// pruneLocked drops the expired prefix of runs. Records arrive roughly in
// completion order; Collect's cutoff filters any stragglers.
func (c *Collector) pruneLocked() {
	cutoff := c.clock.Now().Add(-c.retention)
	i := 0
	for i < len(c.runs) && c.runs[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.runs = append(c.runs[:0], c.runs[i:]...)
	}
}
