package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "voxgate"
)

var (
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "active_sessions",
		Help:      "Concurrent count of upgraded transcription sessions",
	})
	totalSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "total_sessions",
		Help:      "Total count of transcription sessions accepted since start",
	})
	sessionCloses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "session_closes_total",
		Help:      "Count of server-initiated session closes by reason",
	}, []string{"reason"})
	inflightTranscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "inflight_transcriptions",
		Help:      "Concurrent count of transcription tasks across all users",
	})
	processedWorkItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "processed_items_total",
		Help:      "Total count of work items that produced a reply",
	})
	droppedWorkItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "dropped_items_total",
		Help:      "Total count of work items discarded without a reply",
	})
)

func init() {
	prometheus.MustRegister(
		activeSessions,
		totalSessions,
		sessionCloses,
		inflightTranscriptions,
		processedWorkItems,
		droppedWorkItems,
	)
}

func incrementSessions() {
	totalSessions.Inc()
	activeSessions.Inc()
}

func decrementActiveSessions() {
	activeSessions.Dec()
}

func observeSessionClose(code ErrorCode) {
	sessionCloses.WithLabelValues(code.String()).Inc()
}

func incrementInflight() {
	inflightTranscriptions.Inc()
}

func decrementInflight() {
	inflightTranscriptions.Dec()
}

func observeProcessedWorkItem() {
	processedWorkItems.Inc()
}

func discardWorkItems(n int) {
	if n > 0 {
		droppedWorkItems.Add(float64(n))
	}
}
