package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	indexDuration    prometheus.Histogram
	indexFilesTotal  prometheus.Counter
	indexChunksTotal prometheus.Counter

	searchDuration    prometheus.Histogram
	searchTotal       prometheus.Counter
	searchResultCount prometheus.Histogram

	embeddingCacheHits   prometheus.Counter
	embeddingCacheMisses prometheus.Counter

	memoryWriteTotal   *prometheus.CounterVec
	watcherEventsTotal *prometheus.CounterVec

	compactionRunsTotal  prometheus.Counter
	compactionFilesTotal prometheus.Counter

	syncDuration   prometheus.Histogram
	syncRunsTotal  prometheus.Counter
	syncFilesTotal prometheus.Counter

	indexFiles  prometheus.Gauge
	indexChunks prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			indexDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_index_duration_seconds",
					Help:    "File indexing duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			indexFilesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_index_files_total",
					Help: "Total files indexed.",
				},
			),
			indexChunksTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_index_chunks_total",
					Help: "Total chunks written by indexing.",
				},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Hybrid search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_search_total",
					Help: "Total search queries.",
				},
			),
			searchResultCount: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_results",
					Help:    "Result count per search.",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
				},
			),
			embeddingCacheHits: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_cache_hits_total",
					Help: "Embedding cache hits.",
				},
			),
			embeddingCacheMisses: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_cache_misses_total",
					Help: "Embedding cache misses.",
				},
			),
			memoryWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_write_total",
					Help: "Memory file writes by source.",
				},
				[]string{"source"},
			),
			watcherEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_watcher_events_total",
					Help: "Debounced watcher events by kind.",
				},
				[]string{"kind"},
			),
			compactionRunsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_compaction_runs_total",
					Help: "Total compaction passes.",
				},
			),
			compactionFilesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_compaction_files_total",
					Help: "Total daily files compacted.",
				},
			),
			syncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_sync_duration_seconds",
					Help:    "Sync pass duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			syncRunsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_sync_runs_total",
					Help: "Total sync passes.",
				},
			),
			syncFilesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_sync_files_total",
					Help: "Total files visited by sync passes.",
				},
			),
			indexFiles: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_index_files",
					Help: "Files currently in the index.",
				},
			),
			indexChunks: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_index_chunks",
					Help: "Chunks currently in the index.",
				},
			),
		}

		prometheus.MustRegister(
			m.indexDuration,
			m.indexFilesTotal,
			m.indexChunksTotal,
			m.searchDuration,
			m.searchTotal,
			m.searchResultCount,
			m.embeddingCacheHits,
			m.embeddingCacheMisses,
			m.memoryWriteTotal,
			m.watcherEventsTotal,
			m.compactionRunsTotal,
			m.compactionFilesTotal,
			m.syncDuration,
			m.syncRunsTotal,
			m.syncFilesTotal,
			m.indexFiles,
			m.indexChunks,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordIndex(duration time.Duration, chunks int) {
	m := getMetrics()
	m.indexDuration.Observe(duration.Seconds())
	m.indexFilesTotal.Inc()
	m.indexChunksTotal.Add(float64(chunks))
}

func RecordSearch(duration time.Duration, results int) {
	m := getMetrics()
	m.searchDuration.Observe(duration.Seconds())
	m.searchTotal.Inc()
	m.searchResultCount.Observe(float64(results))
}

func RecordEmbeddingCacheHit() {
	getMetrics().embeddingCacheHits.Inc()
}

func RecordEmbeddingCacheMiss() {
	getMetrics().embeddingCacheMisses.Inc()
}

func RecordMemoryWrite(source string) {
	getMetrics().memoryWriteTotal.WithLabelValues(source).Inc()
}

func RecordWatcherEvent(kind string) {
	getMetrics().watcherEventsTotal.WithLabelValues(kind).Inc()
}

func RecordCompaction(files int) {
	m := getMetrics()
	m.compactionRunsTotal.Inc()
	m.compactionFilesTotal.Add(float64(files))
}

func RecordSyncRun(duration time.Duration, filesSynced int) {
	m := getMetrics()
	m.syncDuration.Observe(duration.Seconds())
	m.syncRunsTotal.Inc()
	m.syncFilesTotal.Add(float64(filesSynced))
}

func SetIndexSize(files, chunks int) {
	m := getMetrics()
	m.indexFiles.Set(float64(files))
	m.indexChunks.Set(float64(chunks))
}
