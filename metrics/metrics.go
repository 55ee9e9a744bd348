// Package metrics exposes the optional build-time Prometheus counters
// and gauges described in SPEC_FULL.md's DOMAIN STACK: documents
// indexed, shards written, merge bytes, lexicon size. Registered via
// promauto the same way the teacher's metrics package registers its RPC
// counters; scraped only when the build command is given --metrics-addr.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var DocumentsIndexed = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "caption_index_documents_indexed_total",
		Help: "Documents successfully folded into a shard.",
	},
)

var DocumentsSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "caption_index_documents_skipped_total",
		Help: "Documents skipped due to a parse failure.",
	},
)

var UnknownTokens = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "caption_index_unknown_tokens_total",
		Help: "Tokens encountered during indexing that are absent from the lexicon.",
	},
)

var ShardsWritten = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "caption_index_shards_written_total",
		Help: "Shard files written by the build pipeline.",
	},
)

var LexiconSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "caption_index_lexicon_size",
		Help: "Number of distinct tokens in the current lexicon.",
	},
)

var MergeBytesWritten = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "caption_index_merge_bytes_written_total",
		Help: "Bytes written to the final index file by the merge phase.",
	},
)

var BuildDurationSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "caption_index_build_phase_duration_seconds",
		Help:    "Wall-clock duration of each build phase.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
	},
	[]string{"phase"},
)

var QueryLatencySeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "caption_index_query_latency_seconds",
		Help:    "Latency of index query operations.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 10, 8),
	},
	[]string{"operation"},
)
