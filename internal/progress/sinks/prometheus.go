package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/resona/internal/progress"
)

// PrometheusSink exports notebook operation metrics via Prometheus.
type PrometheusSink struct {
	opsStarted   prometheus.Counter
	opsCompleted *prometheus.CounterVec
	opsRunning   prometheus.Gauge
	opRuntime    *prometheus.HistogramVec
	stepsTotal   *prometheus.CounterVec
	fileUploads  *prometheus.CounterVec
	uploadBytes  prometheus.Counter

	tracker *opTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		opsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resona_operations_started_total",
			Help: "Notebook operations that passed validation and started.",
		}),
		opsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resona_operations_completed_total",
			Help: "Notebook operations finished, partitioned by result.",
		}, []string{"result"}),
		opsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resona_operations_running",
			Help: "Notebook operations currently in flight.",
		}),
		opRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resona_operation_runtime_seconds",
			Help:    "Wall time per finished notebook operation.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"result"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resona_operation_steps_total",
			Help: "Progress steps recorded, partitioned by step name.",
		}, []string{"step"}),
		fileUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resona_audio_uploads_total",
			Help: "Audio files pushed to Drive, partitioned by result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resona_audio_upload_bytes_total",
			Help: "Bytes of audio uploaded to Drive.",
		}),
		tracker: newOpTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.opsStarted,
		s.opsCompleted,
		s.opsRunning,
		s.opRuntime,
		s.stepsTotal,
		s.fileUploads,
		s.uploadBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageOperationStart:
			s.opsStarted.Inc()
			if s.tracker.start(evt.OperationID) {
				s.opsRunning.Inc()
			}
		case progress.StageOperationDone:
			s.finish(evt, "success")
		case progress.StageOperationError:
			s.finish(evt, "error")
		case progress.StageStep:
			s.stepsTotal.WithLabelValues(evt.Step).Inc()
		case progress.StageFileUploaded:
			s.fileUploads.WithLabelValues("success").Inc()
			if evt.Bytes > 0 {
				s.uploadBytes.Add(float64(evt.Bytes))
			}
		case progress.StageFileFailed:
			s.fileUploads.WithLabelValues("error").Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.opsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.opRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.OperationID) {
		s.opsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type opTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newOpTracker() *opTracker {
	return &opTracker{running: make(map[string]struct{})}
}

func (t *opTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *opTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
