package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connStates = []string{"DISCONNECTED", "CONNECTING", "OPEN", "CLOSING"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	framesTotal  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	connState    *prometheus.GaugeVec
	reconnects   prometheus.Counter
	alertsFired  *prometheus.CounterVec
	activeAlerts prometheus.Gauge
}

// New creates a Prometheus recorder registered on reg, normally the registry
// served at the metrics path.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		framesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_stream_frames_total",
				Help: "Inbound stream frames by decoded type",
			},
			[]string{"type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dashboard_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		connState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dashboard_stream_connection_state",
				Help: "1 for the current stream connection state, 0 otherwise",
			},
			[]string{"state"},
		),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_stream_reconnects_total",
			Help: "Scheduled reconnect attempts that fired",
		}),
		alertsFired: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_alerts_fired_total",
				Help: "Price alerts fired",
			},
			[]string{"symbol", "condition"},
		),
		activeAlerts: f.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_alerts_active",
			Help: "Registered alert rules still waiting to fire",
		}),
	}
}

func (r *Recorder) RecordFrame(kind string) {
	r.framesTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordConnState sets the gauge for state to 1 and every other state to 0.
func (r *Recorder) RecordConnState(state string) {
	for _, s := range connStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.connState.WithLabelValues(s).Set(v)
	}
}

func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}

func (r *Recorder) RecordAlertFired(symbol, condition string) {
	r.alertsFired.WithLabelValues(symbol, condition).Inc()
}

func (r *Recorder) SetActiveAlerts(n int) {
	r.activeAlerts.Set(float64(n))
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordFrame(string)              {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}
func (Nop) RecordConnState(string)          {}
func (Nop) RecordReconnect()                {}
func (Nop) RecordAlertFired(string, string) {}
func (Nop) SetActiveAlerts(int)             {}
