package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotifyMetrics counts notification sends per channel and event.
type NotifyMetrics struct {
	sendsTotal *prometheus.CounterVec
}

func NewNotifyMetrics(reg prometheus.Registerer) *NotifyMetrics {
	m := &NotifyMetrics{
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "notify",
			Name:      "sends_total",
			Help:      "Notification sends by channel, event and outcome",
		}, []string{"channel", "event", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sendsTotal)
	return m
}

// ObserveSend records one (channel, recipient) attempt. outcome is one of
// delivered, skipped, failed.
func (m *NotifyMetrics) ObserveSend(channel, event, outcome string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(channel, event, outcome).Inc()
}

// SchedulerMetrics exposes run and item counters for the background tasks.
type SchedulerMetrics struct {
	runsTotal   *prometheus.CounterVec
	itemsTotal  *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduler task runs by outcome",
		}, []string{"task", "outcome"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduler",
			Name:      "items_total",
			Help:      "Bookings acted on by scheduler tasks",
		}, []string{"task"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "therapy",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduler task runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.itemsTotal, m.runDuration)
	return m
}

// ObserveRun records a finished run. outcome is ok, error or skipped.
func (m *SchedulerMetrics) ObserveRun(task, outcome string, items int, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(task, outcome).Inc()
	if items > 0 {
		m.itemsTotal.WithLabelValues(task).Add(float64(items))
	}
	if outcome != "skipped" {
		m.runDuration.WithLabelValues(task).Observe(seconds)
	}
}
