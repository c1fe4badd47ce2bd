package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tramites-sync/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker watches the run history from a long-lived process and raises
// stale_sync and consecutive_failures alerts. An alert is sent when its
// condition starts, and again only after it has cleared in between.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	firing map[AlertType]bool
}

// NewChecker creates a Checker for the given monitoring settings.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		firing:    map[AlertType]bool{},
	}
}

// Run checks once right away, then on every interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: watching sync health", zap.Duration("interval", c.interval))

	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: health watch stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects run health once and returns every alert whose condition
// holds. Only the ones that were not already firing are sent.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect run health", zap.Error(err))
		return nil
	}

	alerts := c.alerter.EvaluateHealth(snap)
	fresh := c.transition(log, alerts)
	if len(fresh) > 0 {
		sent := c.alerter.SendAlerts(ctx, fresh)
		log.Info("monitoring: health alerts raised",
			zap.Int("alerts_triggered", len(fresh)),
			zap.Int("alerts_sent", sent),
			zap.Int("consecutive_failures", snap.ConsecutiveFailures),
		)
	}
	return alerts
}

// transition records which alert types now fire and returns the alerts
// that just started.
func (c *Checker) transition(log *zap.Logger, alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		current[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.firing {
		if !current[t] {
			log.Info("monitoring: health alert cleared", zap.String("type", string(t)))
		}
	}
	c.firing = current
	return fresh
}
