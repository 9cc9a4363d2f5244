package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "platform_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	maintenanceTransitions *prometheus.CounterVec
	maintenanceToggles     *prometheus.CounterVec
	permissionDenials      *prometheus.CounterVec
	notifyDeliveries       *prometheus.CounterVec
	suppressedPoints       prometheus.Gauge
	suppressedSources      prometheus.Gauge
	runningEvents          prometheus.Gauge
)

// Init registers observability metrics.
func Init() {
	registerOnce.Do(func() {
		maintenanceTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "maintenance_transitions_total",
				Help: "Maintenance event state transitions by resulting state and cause",
			},
			[]string{"state", "cause"},
		)
		maintenanceToggles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "maintenance_toggles_total",
				Help: "Manual maintenance event toggles by result",
			},
			[]string{"result"},
		)
		permissionDenials = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "permission_denials_total",
				Help: "Denied operations by capability",
			},
			[]string{"capability"},
		)
		notifyDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "maintenance_notify_total",
				Help: "Change notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)
		suppressedPoints = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "suppressed_points",
				Help: "Data points currently under an active maintenance window",
			},
		)
		suppressedSources = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "suppressed_sources",
				Help: "Data sources currently under an active maintenance window",
			},
		)
		runningEvents = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "maintenance_runtimes",
				Help: "Loaded maintenance event runtime instances",
			},
		)

		prometheus.MustRegister(
			maintenanceTransitions,
			maintenanceToggles,
			permissionDenials,
			notifyDeliveries,
			suppressedPoints,
			suppressedSources,
			runningEvents,
		)
	})
}

// IncTransition records a state transition.
func IncTransition(active bool, cause string) {
	if maintenanceTransitions == nil {
		return
	}
	state := "inactive"
	if active {
		state = "active"
	}
	maintenanceTransitions.WithLabelValues(state, cause).Inc()
}

// IncToggle records a manual toggle.
func IncToggle(err error) {
	if maintenanceToggles == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	maintenanceToggles.WithLabelValues(result).Inc()
}

// IncPermissionDenial records a denied capability.
func IncPermissionDenial(capability string) {
	if permissionDenials == nil {
		return
	}
	permissionDenials.WithLabelValues(capability).Inc()
}

// IncNotify records a notification delivery attempt.
func IncNotify(channel string, err error) {
	if notifyDeliveries == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	notifyDeliveries.WithLabelValues(channel, result).Inc()
}

// SetSuppressedCounts updates the suppression gauges.
func SetSuppressedCounts(points, sources int) {
	if suppressedPoints == nil || suppressedSources == nil {
		return
	}
	suppressedPoints.Set(float64(points))
	suppressedSources.Set(float64(sources))
}

// SetRunningEvents updates the loaded runtime gauge.
func SetRunningEvents(count int) {
	if runningEvents == nil {
		return
	}
	runningEvents.Set(float64(count))
}
