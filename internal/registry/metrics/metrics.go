package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the asset registry and its event relay.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	AssetsRegistered  prometheus.Counter
	Transfers         prometheus.Counter

	RelayPublished *prometheus.CounterVec
	RelayFailures  *prometheus.CounterVec
	RelayLag       *prometheus.GaugeVec
	RelayCircuit   *prometheus.GaugeVec
}

// New registers the registry metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_operations_total",
			Help: "Registry operations by name and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		AssetsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_assets_registered_total",
			Help: "Total number of assets registered",
		}),
		Transfers: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_ownership_transfers_total",
			Help: "Total number of committed ownership transfers",
		}),
		RelayPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_relay_published_total",
			Help: "Events delivered to a subscriber sink",
		}, []string{"sink"}),
		RelayFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_relay_failures_total",
			Help: "Failed publish attempts per subscriber sink",
		}, []string{"sink"}),
		RelayLag: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "registry_relay_lag_events",
			Help: "Committed events not yet delivered to the sink",
		}, []string{"sink"}),
		RelayCircuit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "registry_relay_circuit_open",
			Help: "1 when the sink circuit breaker is open",
		}, []string{"sink"}),
	}
}

// ObserveOperation records the outcome and duration of a registry operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAssetsRegistered() {
	m.AssetsRegistered.Inc()
}

func (m *Metrics) IncrementTransfers() {
	m.Transfers.Inc()
}

func (m *Metrics) ObservePublished(sink string, n int) {
	m.RelayPublished.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) IncrementRelayFailure(sink string) {
	m.RelayFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetRelayLag(sink string, lag int64) {
	m.RelayLag.WithLabelValues(sink).Set(float64(lag))
}

func (m *Metrics) SetCircuitOpen(sink string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.RelayCircuit.WithLabelValues(sink).Set(v)
}
