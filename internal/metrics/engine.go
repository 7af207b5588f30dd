// ABOUTME: Prometheus metrics for streams and pumps
// ABOUTME: Counts transferred frames, xruns and skipped periods per device
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Direction label values
const (
	DirectionRender  = "render"
	DirectionCapture = "capture"
)

// EngineMetrics contains Prometheus metrics for audio clients and their pumps.
// All methods are safe on a nil receiver.
type EngineMetrics struct {
	registry *prometheus.Registry

	framesTotal    *prometheus.CounterVec
	firingsTotal   *prometheus.CounterVec
	skipsTotal     *prometheus.CounterVec
	underrunsTotal *prometheus.CounterVec
	overflowsTotal *prometheus.CounterVec
	pumpDuration   *prometheus.HistogramVec
	paddingFrames  *prometheus.GaugeVec
	activeClients  prometheus.Gauge
	activeSessions prometheus.Gauge
}

// NewEngineMetrics creates and registers engine metrics
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_engine_frames_total",
			Help: "Frames moved between client rings and devices",
		},
		[]string{"device", "direction"},
	)

	m.firingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_engine_pump_firings_total",
			Help: "Periodic pump invocations",
		},
		[]string{"direction"},
	)

	m.skipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_engine_pump_skips_total",
			Help: "Periods skipped because the device could not be queried",
		},
		[]string{"device", "direction"},
	)

	m.underrunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_engine_underruns_total",
			Help: "Render device queue ran dry between firings",
		},
		[]string{"device"},
	)

	m.overflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_engine_overflows_total",
			Help: "Capture firings where the device held more than the ring could take",
		},
		[]string{"device"},
	)

	m.pumpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audio_engine_pump_duration_seconds",
			Help:    "Time spent in one pump firing",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10us to ~20ms
		},
		[]string{"direction"},
	)

	m.paddingFrames = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audio_engine_padding_frames",
			Help: "Frames held in a client ring",
		},
		[]string{"client"},
	)

	m.activeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audio_engine_active_clients",
		Help: "Open audio clients",
	})

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audio_engine_active_sessions",
		Help: "Live audio sessions",
	})
}

// RecordRender records one render pump firing
func (m *EngineMetrics) RecordRender(device string, written int, skipped, underrun bool, d time.Duration) {
	if m == nil {
		return
	}
	m.firingsTotal.WithLabelValues(DirectionRender).Inc()
	m.pumpDuration.WithLabelValues(DirectionRender).Observe(d.Seconds())
	if skipped {
		m.skipsTotal.WithLabelValues(device, DirectionRender).Inc()
		return
	}
	if written > 0 {
		m.framesTotal.WithLabelValues(device, DirectionRender).Add(float64(written))
	}
	if underrun {
		m.underrunsTotal.WithLabelValues(device).Inc()
	}
}

// RecordCapture records one capture pump firing
func (m *EngineMetrics) RecordCapture(device string, read int, skipped, overflow bool, d time.Duration) {
	if m == nil {
		return
	}
	m.firingsTotal.WithLabelValues(DirectionCapture).Inc()
	m.pumpDuration.WithLabelValues(DirectionCapture).Observe(d.Seconds())
	if skipped {
		m.skipsTotal.WithLabelValues(device, DirectionCapture).Inc()
		return
	}
	if read > 0 {
		m.framesTotal.WithLabelValues(device, DirectionCapture).Add(float64(read))
	}
	if overflow {
		m.overflowsTotal.WithLabelValues(device).Inc()
	}
}

// SetPadding publishes the held frames of a client
func (m *EngineMetrics) SetPadding(client string, frames int) {
	if m == nil {
		return
	}
	m.paddingFrames.WithLabelValues(client).Set(float64(frames))
}

// ForgetClient drops the per-client series
func (m *EngineMetrics) ForgetClient(client string) {
	if m == nil {
		return
	}
	m.paddingFrames.DeleteLabelValues(client)
}

// SetActiveClients publishes the open client count
func (m *EngineMetrics) SetActiveClients(n int) {
	if m == nil {
		return
	}
	m.activeClients.Set(float64(n))
}

// SetActiveSessions publishes the live session count
func (m *EngineMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Registry returns the registry the metrics are registered on
func (m *EngineMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Describe implements prometheus.Collector
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesTotal.Describe(ch)
	m.firingsTotal.Describe(ch)
	m.skipsTotal.Describe(ch)
	m.underrunsTotal.Describe(ch)
	m.overflowsTotal.Describe(ch)
	m.pumpDuration.Describe(ch)
	m.paddingFrames.Describe(ch)
	m.activeClients.Describe(ch)
	m.activeSessions.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.framesTotal.Collect(ch)
	m.firingsTotal.Collect(ch)
	m.skipsTotal.Collect(ch)
	m.underrunsTotal.Collect(ch)
	m.overflowsTotal.Collect(ch)
	m.pumpDuration.Collect(ch)
	m.paddingFrames.Collect(ch)
	m.activeClients.Collect(ch)
	m.activeSessions.Collect(ch)
}

// Underruns returns the underrun count recorded for device
func (m *EngineMetrics) Underruns(device string) int64 {
	if m == nil {
		return 0
	}
	return counterValue(m.underrunsTotal.WithLabelValues(device))
}

// Overflows returns the overflow count recorded for device
func (m *EngineMetrics) Overflows(device string) int64 {
	if m == nil {
		return 0
	}
	return counterValue(m.overflowsTotal.WithLabelValues(device))
}

func counterValue(c prometheus.Counter) int64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return int64(out.GetCounter().GetValue())
}
