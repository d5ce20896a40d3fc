package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordConnect(nil)
	m.RecordPoolEvent("hit")
	m.RecordAuth("login", nil)
	m.RecordFrame("out", "UPLOAD")
	m.RecordBytes(10)
	m.RecordTransfer("single", nil, time.Second)
}

func TestMetricsRecordAndRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordConnect(nil)
	m.RecordConnect(errors.New("refused"))
	m.RecordPoolEvent("hit")
	m.RecordPoolEvent("hit")
	m.RecordAuth("session", nil)
	m.RecordFrame("in", "COMPLETE")
	m.RecordBytes(70000)
	m.RecordBytes(-1)
	m.RecordTransfer("chunked", nil, 250*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectsCounter().WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectsCounter().WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoolEventsCounter().WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthCounter().WithLabelValues("session", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesCounter().WithLabelValues("in", "COMPLETE")))
	assert.Equal(t, 70000.0, testutil.ToFloat64(m.BytesCounter()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersCounter().WithLabelValues("chunked", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
