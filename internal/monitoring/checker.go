package monitoring

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	clock     clock.Clock
}

// NewChecker creates a background alert checker. A nil clock uses wall time.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, clk clock.Clock) *Checker {
	if clk == nil {
		clk = clock.New()
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		clock:     clk,
	}
}

// Interval returns the spacing between checks.
func (c *Checker) Interval() time.Duration {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return interval
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.Interval()

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap := c.collector.Collect(c.cfg.LookbackWindowHours)

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered", zap.Int("runs", snap.RunsTotal))
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
