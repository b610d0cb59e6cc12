package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	commands       *prom.CounterVec
	callbacks      *prom.CounterVec
	saveDuration   prom.Histogram
	resetRuns      prom.Counter
	resetUsers     prom.Counter
	notifyFailures prom.Counter
	activations    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.commands = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "checklistbot",
			Name:      "commands_total",
			Help:      "Commands handled, by command name",
		}, []string{"command"})
		pr.callbacks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "checklistbot",
			Name:      "callbacks_total",
			Help:      "Callback tokens handled, by verb and outcome",
		}, []string{"verb", "outcome"})
		pr.saveDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "checklistbot",
			Name:      "store_save_duration_seconds",
			Help:      "Duration of atomic store snapshot writes",
			Buckets:   prom.DefBuckets,
		})
		pr.resetRuns = prom.NewCounter(prom.CounterOpts{
			Namespace: "checklistbot",
			Name:      "reset_runs_total",
			Help:      "Daily reset scheduler runs",
		})
		pr.resetUsers = prom.NewCounter(prom.CounterOpts{
			Namespace: "checklistbot",
			Name:      "reset_users_total",
			Help:      "Users whose checklists were reset",
		})
		pr.notifyFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: "checklistbot",
			Name:      "notify_failures_total",
			Help:      "Outbound notification failures (best effort, non fatal)",
		})
		pr.activations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "checklistbot",
			Name:      "premium_activations_total",
			Help:      "Premium activations by plan tier",
		}, []string{"plan"})
		reg.MustRegister(pr.commands, pr.callbacks, pr.saveDuration, pr.resetRuns, pr.resetUsers, pr.notifyFailures, pr.activations)
	})
	return pr
}

func (p *PrometheusRecorder) IncCommand(command string) {
	if p == nil || p.commands == nil {
		return
	}
	p.commands.WithLabelValues(command).Inc()
}

func (p *PrometheusRecorder) IncCallback(verb, outcome string) {
	if p == nil || p.callbacks == nil {
		return
	}
	p.callbacks.WithLabelValues(verb, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveSaveDuration(d time.Duration) {
	if p == nil || p.saveDuration == nil {
		return
	}
	p.saveDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncResetRun() {
	if p == nil || p.resetRuns == nil {
		return
	}
	p.resetRuns.Inc()
}

func (p *PrometheusRecorder) AddResetUsers(n int) {
	if p == nil || p.resetUsers == nil {
		return
	}
	p.resetUsers.Add(float64(n))
}

func (p *PrometheusRecorder) IncNotifyFailure() {
	if p == nil || p.notifyFailures == nil {
		return
	}
	p.notifyFailures.Inc()
}

func (p *PrometheusRecorder) IncActivation(plan string) {
	if p == nil || p.activations == nil {
		return
	}
	p.activations.WithLabelValues(plan).Inc()
}
