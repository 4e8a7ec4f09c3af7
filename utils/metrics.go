package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CycleSample is the subset of one control cycle exported as metrics.
type CycleSample struct {
	Phase          string
	ActualAccel    float64
	JerkUpper      float64
	JerkLower      float64
	LateralCommand float64
	LateralEnabled bool
	Override       bool
	Degraded       bool
	Seconds        float64 // wall time spent computing the cycle
}

// Metrics holds the actuation loop collectors. Construct one per registry.
type Metrics struct {
	cycles         *prometheus.CounterVec
	degraded       prometheus.Counter
	overrides      prometheus.Counter
	canErrors      *prometheus.CounterVec
	accel          prometheus.Gauge
	jerk           *prometheus.GaugeVec
	lateral        prometheus.Gauge
	lateralEnabled prometheus.Gauge
	cycleSeconds   prometheus.Histogram

	overridePrev bool
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actuation",
			Name:      "cycles_total",
			Help:      "Control cycles computed, by longitudinal phase",
		}, []string{"phase"}),
		degraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "actuation",
			Name:      "degraded_cycles_total",
			Help:      "Cycles that held the last safe value because of invalid inputs",
		}),
		overrides: f.NewCounter(prometheus.CounterOpts{
			Namespace: "actuation",
			Subsystem: "lateral",
			Name:      "overrides_total",
			Help:      "Driver steering overrides detected",
		}),
		canErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actuation",
			Subsystem: "can",
			Name:      "errors_total",
			Help:      "CAN encode, decode and transport errors",
		}, []string{"direction"}),
		accel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "actuation",
			Subsystem: "longitudinal",
			Name:      "accel_mps2",
			Help:      "Last jerk-limited acceleration command",
		}),
		jerk: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "actuation",
			Subsystem: "longitudinal",
			Name:      "jerk_bound_mps3",
			Help:      "Last jerk bounds",
		}, []string{"bound"}),
		lateral: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "actuation",
			Subsystem: "lateral",
			Name:      "command",
			Help:      "Last rate-limited lateral command",
		}),
		lateralEnabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "actuation",
			Subsystem: "lateral",
			Name:      "enabled",
			Help:      "1 while lateral control is enabled",
		}),
		cycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "actuation",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent computing one control cycle",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
	}
}

// ObserveCycle records one cycle. Overrides are counted on their rising edge.
func (m *Metrics) ObserveCycle(s CycleSample) {
	m.cycles.WithLabelValues(s.Phase).Inc()
	if s.Degraded {
		m.degraded.Inc()
	}
	if s.Override && !m.overridePrev {
		m.overrides.Inc()
	}
	m.overridePrev = s.Override

	m.accel.Set(s.ActualAccel)
	m.jerk.WithLabelValues("upper").Set(s.JerkUpper)
	m.jerk.WithLabelValues("lower").Set(s.JerkLower)
	m.lateral.Set(s.LateralCommand)
	if s.LateralEnabled {
		m.lateralEnabled.Set(1)
	} else {
		m.lateralEnabled.Set(0)
	}
	if s.Seconds > 0 {
		m.cycleSeconds.Observe(s.Seconds)
	}
}

// CANError counts a failure on the "rx" or "tx" path.
func (m *Metrics) CANError(direction string) {
	m.canErrors.WithLabelValues(direction).Inc()
}
