package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "busspass_live_snapshots_received_total",
		Help: "Bus location snapshots delivered by the realtime tree",
	})
	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "busspass_live_reconcile_passes_total",
		Help: "Reconciliation passes by outcome",
	}, []string{"outcome"})
	MarkerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "busspass_live_marker_operations_total",
		Help: "Marker operations issued to the map provider",
	}, []string{"operation"})
	InvalidRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "busspass_live_invalid_records_total",
		Help: "Telemetry records skipped because of unparseable coordinates",
	})
	LiveMarkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "busspass_live_markers",
		Help: "Markers currently on the map",
	})
	FallbackMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "busspass_live_fallback",
		Help: "1 when the live map has fallen back to coordinate text",
	})
	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "busspass_live_reconcile_latency_seconds",
		Help:    "Time spent in one reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})

	ArchivedPositions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "busspass_archiver_positions_total",
		Help: "Bus positions written to the archive",
	})
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "busspass_notify_sent_total",
		Help: "Push notifications by result",
	}, []string{"result"})
)

func ObserveReconcileLatency(start time.Time) {
	ReconcileLatency.Observe(time.Since(start).Seconds())
}
