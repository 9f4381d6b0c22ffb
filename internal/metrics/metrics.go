package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every Prometheus metric the scanner family exposes.
type Registry struct {
	reg *prometheus.Registry

	// Hot path.
	ScanDuration *prometheus.HistogramVec
	RowsIngested prometheus.Counter
	RowsDropped  *prometheus.CounterVec
	RowsFiltered prometheus.Gauge
	RowsEmitted  prometheus.Gauge
	DeltaRecords *prometheus.CounterVec
	CategorySize *prometheus.GaugeVec

	// Ingestion.
	SnapshotFetches  *prometheus.CounterVec
	SnapshotRowCount prometheus.Gauge
	SnapshotAge      prometheus.Gauge

	// WebSocket.
	WSState      prometheus.Gauge
	WSReconnects prometheus.Counter
	WSMessages   *prometheus.CounterVec

	// Consumers.
	ConsumerBacklog *prometheus.GaugeVec
	BatchDuration   *prometheus.HistogramVec

	// Vendor HTTP.
	VendorRequests *prometheus.CounterVec

	// Maintenance.
	TaskDuration *prometheus.HistogramVec
	TaskOutcome  *prometheus.CounterVec

	// Cache.
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewRegistry builds the registry and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equityrun_scan_duration_seconds",
		Help:    "Duration of scan cycle stages in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"stage"})

	r.RowsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "equityrun_rows_ingested_total",
		Help: "Snapshot rows admitted to the pipeline",
	})

	r.RowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_rows_dropped_total",
		Help: "Snapshot rows dropped at ingestion by reason",
	}, []string{"reason"})

	r.RowsFiltered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "equityrun_rows_filtered",
		Help: "Rows surviving the active filter set this cycle",
	})

	r.RowsEmitted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "equityrun_rows_emitted",
		Help: "Rows emitted to rankings this cycle",
	})

	r.DeltaRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_delta_records_total",
		Help: "Delta records emitted by type",
	}, []string{"category", "type"})

	r.CategorySize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "equityrun_category_size",
		Help: "Current ranking size per category",
	}, []string{"category"})

	r.SnapshotFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_snapshot_fetches_total",
		Help: "Full-market snapshot fetch outcomes",
	}, []string{"result"})

	r.SnapshotRowCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "equityrun_snapshot_rows",
		Help: "Rows in the latest published snapshot",
	})

	r.SnapshotAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "equityrun_snapshot_age_seconds",
		Help: "Age of the latest snapshot at scan time",
	})

	r.WSState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "equityrun_ws_state",
		Help: "WebSocket ingestor state (ordinal of the state machine)",
	})

	r.WSReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "equityrun_ws_reconnects_total",
		Help: "WebSocket reconnect attempts",
	})

	r.WSMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_ws_messages_total",
		Help: "WebSocket messages demultiplexed by event type",
	}, []string{"ev"})

	r.ConsumerBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "equityrun_consumer_backlog",
		Help: "Pending stream entries per consumer group",
	}, []string{"group"})

	r.BatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equityrun_batch_duration_seconds",
		Help:    "Consumer batch processing time",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
	}, []string{"engine"})

	r.VendorRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_vendor_requests_total",
		Help: "Vendor HTTP request outcomes by endpoint",
	}, []string{"endpoint", "result"})

	r.TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equityrun_maintenance_task_seconds",
		Help:    "Maintenance task durations",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"task"})

	r.TaskOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_maintenance_task_outcomes_total",
		Help: "Maintenance task outcomes",
	}, []string{"task", "status"})

	r.CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_cache_hits_total",
		Help: "Cache hits by cache type",
	}, []string{"cache_type"})

	r.CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equityrun_cache_misses_total",
		Help: "Cache misses by cache type",
	}, []string{"cache_type"})

	r.reg.MustRegister(
		r.ScanDuration, r.RowsIngested, r.RowsDropped, r.RowsFiltered,
		r.RowsEmitted, r.DeltaRecords, r.CategorySize,
		r.SnapshotFetches, r.SnapshotRowCount, r.SnapshotAge,
		r.WSState, r.WSReconnects, r.WSMessages,
		r.ConsumerBacklog, r.BatchDuration,
		r.VendorRequests, r.TaskDuration, r.TaskOutcome,
		r.CacheHits, r.CacheMisses,
	)
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Prometheus exposes the underlying registry for the /metrics handler.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }
