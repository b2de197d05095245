package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// reasons a frame can be dropped
const (
	DropSizeMismatch      = "size_mismatch"
	DropInFlight          = "in_flight"
	DropSurfaceNotCurrent = "surface_not_current"
	DropMapFailed         = "map_failed"
	DropSourceOverrun     = "source_overrun"
)

var (
	FramesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvstream_frames_uploaded_total",
		Help: "Total number of frames copied into textures",
	}, []string{"variant"})
	FramesPresented = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvstream_frames_presented_total",
		Help: "Total number of frames drawn to the surface",
	}, []string{"variant"})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvstream_frames_dropped_total",
		Help: "Total number of frames dropped, by reason",
	}, []string{"reason"})
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yuvstream_upload_bytes_total",
		Help: "Total number of bytes written into staging buffers",
	})
	StagingWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yuvstream_staging_wait_seconds",
		Help:    "Time spent waiting for a staging buffer to leave the GPU",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	SourceFramesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvstream_source_frames_written_total",
		Help: "Total number of frames written by a frame source",
	}, []string{"name"})
	SourceFramesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvstream_source_frames_read_total",
		Help: "Total number of source frames actually taken by the GL thread",
	}, []string{"name"})
	SourceFramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvstream_source_frames_dropped_total",
		Help: "Total number of source frames dropped before reaching the GL thread",
	}, []string{"name"})
)

type SourceMetrics struct {
	FramesWritten prometheus.Counter
	FramesRead    prometheus.Counter
	FramesDropped prometheus.Counter
}

func NewSourceMetrics(name string) SourceMetrics {
	s := SourceMetrics{
		FramesWritten: SourceFramesWritten.WithLabelValues(name),
		FramesRead:    SourceFramesRead.WithLabelValues(name),
		FramesDropped: SourceFramesDropped.WithLabelValues(name),
	}
	s.FramesWritten.Add(0)
	s.FramesRead.Add(0)
	s.FramesDropped.Add(0)
	return s
}

// PipelineMetrics are the counters of one pipeline instance.
type PipelineMetrics struct {
	FramesUploaded  prometheus.Counter
	FramesPresented prometheus.Counter
}

func NewPipelineMetrics(variant string) PipelineMetrics {
	m := PipelineMetrics{
		FramesUploaded:  FramesUploaded.WithLabelValues(variant),
		FramesPresented: FramesPresented.WithLabelValues(variant),
	}
	m.FramesUploaded.Add(0)
	m.FramesPresented.Add(0)
	return m
}

func init() {
	for _, reason := range []string{DropSizeMismatch, DropInFlight, DropSurfaceNotCurrent, DropMapFailed, DropSourceOverrun} {
		FramesDropped.WithLabelValues(reason).Add(0)
	}
}

// Dropped counts a frame dropped for reason.
func Dropped(reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
}

// Handler should usually be mounted at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
