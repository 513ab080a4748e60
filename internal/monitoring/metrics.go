// Package monitoring exposes batch metrics for the pipeline and summarizes
// the run log.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metrics provides observability for a pipeline invocation. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Units finished by kind (month, year, index, load) and status
	Units *prometheus.CounterVec

	// Unit wall time by kind
	UnitDuration *prometheus.HistogramVec

	// Records passing each stage: raw, expanded, merged, filtered
	Records *prometheus.CounterVec

	// Destinations with an index value, per year
	Destinations *prometheus.GaugeVec
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_units_total",
			Help: "Total pipeline units finished by kind and status",
		}, []string{"kind", "status"}),

		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reflex_unit_duration_seconds",
			Help:    "Duration of pipeline units by kind",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"kind"}),

		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_records_total",
			Help: "Records passing each pipeline stage",
		}, []string{"stage"}),

		Destinations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reflex_index_destinations",
			Help: "Destinations with an index value by year",
		}, []string{"year"}),
	}
	m.registry.MustRegister(m.Units, m.UnitDuration, m.Records, m.Destinations)
	return m
}

// Registry returns the registry holding the pipeline metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveUnit records a finished unit and its duration.
func (m *Metrics) ObserveUnit(kind, status string, d time.Duration) {
	if m != nil {
		m.Units.WithLabelValues(kind, status).Inc()
		m.UnitDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// AddRecords counts n records passing stage.
func (m *Metrics) AddRecords(stage string, n int) {
	if m != nil {
		m.Records.WithLabelValues(stage).Add(float64(n))
	}
}

// SetDestinations records how many destinations have a value in year.
func (m *Metrics) SetDestinations(year string, n int) {
	if m != nil {
		m.Destinations.WithLabelValues(year).Set(float64(n))
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
