package vkframe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one render context. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Frames    *prometheus.CounterVec
	Rebuilds  prometheus.Counter
	FenceWait prometheus.Histogram
	InFlight  prometheus.Gauge
}

// NewMetrics registers the frame loop collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps independent contexts apart.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkframe_frames_total",
				Help: "Frame loop ticks by result",
			},
			[]string{"result"},
		),
		Rebuilds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vkframe_swapchain_rebuilds_total",
				Help: "Completed swap chain rebuilds",
			},
		),
		FenceWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vkframe_fence_wait_seconds",
				Help:    "Time spent waiting on frame slot fences",
				Buckets: []float64{.0001, .0005, .001, .002, .004, .008, .016, .033, .066, .1, .5},
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vkframe_frames_in_flight",
				Help: "Frame slots submitted and not yet observed complete",
			},
		),
	}
}

func (m *Metrics) observeFrame(result FrameResult) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(result.String()).Inc()
}

func (m *Metrics) observeRebuild() {
	if m == nil {
		return
	}
	m.Rebuilds.Inc()
}

func (m *Metrics) observeFenceWait(d time.Duration) {
	if m == nil {
		return
	}
	m.FenceWait.Observe(d.Seconds())
}

func (m *Metrics) setInFlight(n int) {
	if m == nil {
		return
	}
	m.InFlight.Set(float64(n))
}
