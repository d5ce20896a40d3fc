package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records upload-engine activity. A nil *Metrics is a valid no-op.
type Metrics struct {
	connects         *prometheus.CounterVec
	poolEvents       *prometheus.CounterVec
	authAttempts     *prometheus.CounterVec
	frames           *prometheus.CounterVec
	transfers        *prometheus.CounterVec
	transferBytes    prometheus.Counter
	transferDuration *prometheus.HistogramVec
}

// NewMetrics creates collectors and registers them with reg. A nil reg
// leaves them unregistered, which is handy for tests that only read values.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clowdctl",
				Subsystem: "session",
				Name:      "connects_total",
				Help:      "TCP connect attempts by result.",
			},
			[]string{"result"},
		),
		poolEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clowdctl",
				Subsystem: "session",
				Name:      "pool_events_total",
				Help:      "Idle pool events (hit, miss, stale, park, evict, discard).",
			},
			[]string{"event"},
		),
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clowdctl",
				Subsystem: "session",
				Name:      "auth_total",
				Help:      "Authentication round trips by method and result.",
			},
			[]string{"method", "result"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clowdctl",
				Subsystem: "session",
				Name:      "frames_total",
				Help:      "Frames sent and received by command.",
			},
			[]string{"direction", "command"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clowdctl",
				Subsystem: "upload",
				Name:      "transfers_total",
				Help:      "Finished transfers by mode and result.",
			},
			[]string{"mode", "result"},
		),
		transferBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "clowdctl",
				Subsystem: "upload",
				Name:      "bytes_total",
				Help:      "Payload bytes written to the wire.",
			},
		),
		transferDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clowdctl",
				Subsystem: "upload",
				Name:      "duration_seconds",
				Help:      "Transfer duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.connects, m.poolEvents, m.authAttempts, m.frames, m.transfers, m.transferBytes, m.transferDuration)
	}
	return m
}

func (m *Metrics) RecordConnect(err error) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) RecordPoolEvent(event string) {
	if m == nil {
		return
	}
	m.poolEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordAuth(method string, err error) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(method, resultLabel(err)).Inc()
}

func (m *Metrics) RecordFrame(direction, command string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction, command).Inc()
}

func (m *Metrics) RecordBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transferBytes.Add(float64(n))
}

func (m *Metrics) RecordTransfer(mode string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(mode, resultLabel(err)).Inc()
	m.transferDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ConnectsCounter exposes the connect counter for inspection.
func (m *Metrics) ConnectsCounter() *prometheus.CounterVec { return m.connects }

func (m *Metrics) PoolEventsCounter() *prometheus.CounterVec { return m.poolEvents }

func (m *Metrics) AuthCounter() *prometheus.CounterVec { return m.authAttempts }

func (m *Metrics) FramesCounter() *prometheus.CounterVec { return m.frames }

func (m *Metrics) TransfersCounter() *prometheus.CounterVec { return m.transfers }

func (m *Metrics) BytesCounter() prometheus.Counter { return m.transferBytes }

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
