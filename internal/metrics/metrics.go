// Package metrics exposes Prometheus collectors for the assembly worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts finished pipeline runs.
	// Labels: kind (audio, video, video2, audio2), result (done, failed)
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semefo",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of finished pipeline runs by kind and result",
		},
		[]string{"kind", "result"},
	)

	// PipelineFailures counts failed runs by taxonomy label.
	// Labels: kind, error_kind
	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semefo",
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Total number of failed pipeline runs by kind and error kind",
		},
		[]string{"kind", "error_kind"},
	)

	// PipelineDuration tracks how long runs take.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "semefo",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind"},
	)

	// ArtifactBytes records the size of produced artifacts.
	ArtifactBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "semefo",
			Subsystem: "pipeline",
			Name:      "artifact_bytes",
			Help:      "Size of verified artifacts in bytes",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 10),
		},
		[]string{"kind"},
	)

	// QueueTasks reports the queue size per status.
	QueueTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "semefo",
			Subsystem: "queue",
			Name:      "tasks",
			Help:      "Number of queue tasks by status",
		},
		[]string{"status"},
	)

	// QueueRetries counts tasks rescheduled after a failure.
	// Labels: reason (retry, busy, reclaimed)
	QueueRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semefo",
			Subsystem: "queue",
			Name:      "reschedules_total",
			Help:      "Total number of tasks returned to pending",
		},
		[]string{"reason"},
	)

	// WorkersBusy indicates how many workers are running a task.
	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "semefo",
			Subsystem: "workflow",
			Name:      "workers_busy",
			Help:      "Number of workers currently running a pipeline",
		},
	)

	// LedgerHeartbeats counts worker heartbeats sent to the ledger.
	// Labels: result (success, error)
	LedgerHeartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semefo",
			Subsystem: "ledger",
			Name:      "heartbeats_total",
			Help:      "Total number of worker heartbeats sent to the ledger",
		},
		[]string{"result"},
	)
)

// RecordRun records the outcome of one pipeline run. errorKind is empty on success.
func RecordRun(kind string, errorKind string, elapsed time.Duration, artifactBytes int64) {
	if errorKind == "" {
		PipelineRuns.WithLabelValues(kind, "done").Inc()
		if artifactBytes > 0 {
			ArtifactBytes.WithLabelValues(kind).Observe(float64(artifactBytes))
		}
	} else {
		PipelineRuns.WithLabelValues(kind, "failed").Inc()
		PipelineFailures.WithLabelValues(kind, errorKind).Inc()
	}
	PipelineDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetQueueStats replaces the queue gauges. Statuses missing from counts are set to zero.
func SetQueueStats(statuses []string, counts map[string]int) {
	for _, status := range statuses {
		QueueTasks.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// RecordReschedule counts a task returned to pending.
func RecordReschedule(reason string) {
	QueueRetries.WithLabelValues(reason).Inc()
}

// RecordHeartbeat records the outcome of a ledger heartbeat.
func RecordHeartbeat(success bool) {
	if success {
		LedgerHeartbeats.WithLabelValues("success").Inc()
	} else {
		LedgerHeartbeats.WithLabelValues("error").Inc()
	}
}
