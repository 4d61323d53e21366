package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the storage engine. Every
// major operation ticks a counter here; the engine behaves identically when
// the instruments are registered against a throwaway registry, so metrics
// are an observability side effect and never a correctness dependency.
type Metrics struct {
	CursorsCreated     *prometheus.CounterVec
	CursorErrors       prometheus.Counter
	FileOpensTotal     prometheus.Counter
	FileOpenWaits      prometheus.Counter
	FileOpenRejections prometheus.Counter
	FileClosesTotal    prometheus.Counter
	FilesOpen          prometheus.Gauge
	BloomAddsTotal     prometheus.Counter
	BloomChecksTotal   prometheus.Counter
	BloomNegatives     prometheus.Counter
	RecoveryPasses     prometheus.Counter
	RecoveryTables     prometheus.Gauge
	RecoveryLevels     prometheus.Gauge
	TableWritesTotal   prometheus.Counter
	TableReadsTotal    prometheus.Counter
}

// New creates metrics registered against reg. Passing a fresh private
// registry yields a legal no-op configuration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		CursorsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "cursor",
			Name:      "created_total",
			Help:      "Total number of cursors constructed, by kind",
		}, []string{"kind"}),
		CursorErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "cursor",
			Name:      "errors_total",
			Help:      "Total number of cursor operations that returned an error",
		}),
		FileOpensTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "filemanager",
			Name:      "opens_total",
			Help:      "Total number of underlying file descriptors opened",
		}),
		FileOpenWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "filemanager",
			Name:      "open_waits_total",
			Help:      "Total number of opens that blocked on a concurrent open of the same path",
		}),
		FileOpenRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "filemanager",
			Name:      "open_rejections_total",
			Help:      "Total number of opens rejected by the open-file budget",
		}),
		FileClosesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "filemanager",
			Name:      "closes_total",
			Help:      "Total number of underlying file descriptors closed",
		}),
		FilesOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "quarry",
			Subsystem: "filemanager",
			Name:      "open_files",
			Help:      "Current number of open file descriptors",
		}),
		BloomAddsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "bloom",
			Name:      "adds_total",
			Help:      "Total number of bloom filter insertions",
		}),
		BloomChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "bloom",
			Name:      "checks_total",
			Help:      "Total number of bloom filter membership checks",
		}),
		BloomNegatives: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "bloom",
			Name:      "negatives_total",
			Help:      "Total number of bloom checks that ruled a table out",
		}),
		RecoveryPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "recovery",
			Name:      "passes_total",
			Help:      "Total number of version recovery passes",
		}),
		RecoveryTables: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "quarry",
			Subsystem: "recovery",
			Name:      "tables",
			Help:      "Number of tables placed by the last recovery pass",
		}),
		RecoveryLevels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "quarry",
			Subsystem: "recovery",
			Name:      "levels",
			Help:      "Number of non-empty levels after the last recovery pass",
		}),
		TableWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "sstable",
			Name:      "writes_total",
			Help:      "Total number of sorted tables written",
		}),
		TableReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "sstable",
			Name:      "reads_total",
			Help:      "Total number of sorted tables opened for reading",
		}),
	}
}

// Nop returns metrics bound to a private registry, for use in tests and
// callers that run without an attached sink.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
