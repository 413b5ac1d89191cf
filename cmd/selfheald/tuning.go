package main

import (
	"errors"
	"time"

	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/healing/recovery"
	"github.com/yunusovt983/selfheal/monitoring"
	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

// The daemon tunes its own control-loop parameters. Durations are carried
// as integer milliseconds so the optimizer can treat them as bounded int
// genes.
const (
	paramMonitorInterval      = "monitor.interval_ms"
	paramErrorRateCritical    = "monitor.error_rate_critical"
	paramResponseTimeCritical = "monitor.response_time_critical_ms"
	paramRetryDelay           = "recovery.retry_delay_ms"
)

func tunableDefaults() map[string]adaptive.Value {
	return map[string]adaptive.Value{
		paramMonitorInterval:      adaptive.IntValue(30_000),
		paramErrorRateCritical:    adaptive.FloatValue(0.25),
		paramResponseTimeCritical: adaptive.IntValue(1_000),
		paramRetryDelay:           adaptive.IntValue(5_000),
	}
}

func tunableConstraints() map[string]adaptive.Constraint {
	return map[string]adaptive.Constraint{
		paramMonitorInterval:      adaptive.IntConstraint(1_000, 300_000),
		paramErrorRateCritical:    adaptive.FloatConstraint(0.05, 0.90),
		paramResponseTimeCritical: adaptive.IntConstraint(100, 30_000),
		paramRetryDelay:           adaptive.IntConstraint(500, 60_000),
	}
}

func tunableTemplate() []genetic.Gene {
	return []genetic.Gene{
		&genetic.IntGene{Key: paramMonitorInterval, Value: 30_000, Min: 1_000, Max: 300_000},
		&genetic.FloatGene{Key: paramErrorRateCritical, Value: 0.25, Min: 0.05, Max: 0.90},
		&genetic.IntGene{Key: paramResponseTimeCritical, Value: 1_000, Min: 100, Max: 30_000},
		&genetic.IntGene{Key: paramRetryDelay, Value: 5_000, Min: 500, Max: 60_000},
	}
}

// controlLoopFitness scores a candidate against the recent live samples.
// Healthy, high-throughput windows score high; error rate, latency and
// non-healthy classifications pull the score down. Candidates that poll
// slower get a small discount so the optimizer prefers responsiveness
// when the observed window is otherwise equal.
func controlLoopFitness(c *genetic.Chromosome, samples []genetic.Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no samples in window")
	}

	var score float64
	for _, s := range samples {
		score += s.Metrics.Throughput / (1 + s.Metrics.Throughput)
		score -= s.Metrics.ErrorRate
		score -= s.Metrics.ResponseTime.Seconds()

		switch s.Status.Level {
		case monitoring.StatusDegraded:
			score -= 0.5
		case monitoring.StatusCritical:
			score -= 2
		case monitoring.StatusFailed:
			score -= 5
		}
	}
	score /= float64(len(samples))

	for _, g := range c.Genes {
		if ig, ok := g.(*genetic.IntGene); ok && ig.Key == paramMonitorInterval {
			score -= float64(ig.Value) / 1_000_000
		}
	}

	if score < 0 {
		score = 0
	}
	return score, nil
}

// applyTunedParameters pushes committed configuration versions into the
// running components: monitor poll rate and critical thresholds, recovery
// retry delays. It applies the current version once up front and then on
// every commit.
func applyTunedParameters(store *adaptive.Store, monitor *monitoring.Monitor, recoveryMgr *recovery.Manager) {
	apply := func(config *adaptive.Config) {
		if v, ok := config.Get(paramMonitorInterval); ok && v.Kind == adaptive.KindInt {
			interval := time.Duration(v.Int) * time.Millisecond
			if err := monitor.Signal(monitoring.AdjustMonitorRate{Interval: interval}); err != nil {
				log.Debugf("monitor rate adjustment dropped: %v", err)
			}
		}

		thresholds := monitoring.DefaultThresholds()
		changed := false
		if v, ok := config.Get(paramErrorRateCritical); ok && v.Kind == adaptive.KindFloat {
			thresholds.ErrorRateCritical = v.Float
			changed = true
		}
		if v, ok := config.Get(paramResponseTimeCritical); ok && v.Kind == adaptive.KindInt {
			thresholds.ResponseTimeCritical = time.Duration(v.Int) * time.Millisecond
			changed = true
		}
		if changed {
			if err := monitor.Signal(monitoring.UpdateAlertThresholds{Thresholds: thresholds}); err != nil {
				log.Debugf("threshold update dropped: %v", err)
			}
		}

		if v, ok := config.Get(paramRetryDelay); ok && v.Kind == adaptive.KindInt {
			delay := time.Duration(v.Int) * time.Millisecond
			for _, plan := range recoveryMgr.Plans() {
				plan.RetryDelay = delay
				if err := recoveryMgr.SetPlan(plan); err != nil {
					log.Warnf("retry delay update for plan %q: %v", plan.FailureType, err)
				}
			}
		}
	}

	apply(store.Current())
	store.OnChange(func(event adaptive.ChangeEvent, config *adaptive.Config) error {
		apply(config)
		return nil
	})
}
