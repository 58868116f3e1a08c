package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderConnStateIsExclusive(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordConnState("CONNECTING")
	r.RecordConnState("OPEN")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.connState.WithLabelValues("OPEN")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.connState.WithLabelValues("CONNECTING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.connState.WithLabelValues("DISCONNECTED")))
}

func TestRecorderCounters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordFrame("MARKET_UPDATE")
	r.RecordFrame("MARKET_UPDATE")
	r.RecordAlertFired("GARAN", "ABOVE")
	r.RecordReconnect()
	r.SetActiveAlerts(3)
	r.RecordLastPrice("GARAN", 82.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.framesTotal.WithLabelValues("MARKET_UPDATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alertsFired.WithLabelValues("GARAN", "ABOVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconnects))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.activeAlerts))
	assert.Equal(t, 82.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("GARAN")))
}
