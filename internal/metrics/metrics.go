package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RangesProcessed counts processed block ranges by outcome.
	RangesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castwatch_ranges_processed_total",
		Help: "Block ranges processed, labeled by watcher and status (ok/failed).",
	}, []string{"watcher", "status"})

	// EventsPersisted counts domain events written to storage.
	EventsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castwatch_events_persisted_total",
		Help: "Domain events persisted, labeled by event type.",
	}, []string{"event"})

	// DecodeFailures counts logs skipped because they would not decode.
	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castwatch_decode_failures_total",
		Help: "Logs skipped due to decode failures.",
	}, []string{"watcher"})

	// ChunkSize tracks the adaptive chunk width per watcher.
	ChunkSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "castwatch_chunk_size",
		Help: "Current adaptive fetch chunk size.",
	}, []string{"watcher"})

	// HeadBlock tracks the last known chain head per watcher.
	HeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "castwatch_head_block",
		Help: "Last known chain head block.",
	}, []string{"watcher"})

	// CursorBlock tracks the persisted watermark per watcher.
	CursorBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "castwatch_cursor_block",
		Help: "Last fully processed block.",
	}, []string{"watcher"})

	// RPCProxyRequests counts proxied JSON-RPC requests.
	RPCProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castwatch_rpc_proxy_requests_total",
		Help: "RPC proxy requests, labeled by network and status.",
	}, []string{"network", "status"})

	// MatchesSubmitted counts together transactions sent by the matcher.
	MatchesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castwatch_matches_submitted_total",
		Help: "Matched together pairs submitted on-chain, labeled by status.",
	}, []string{"status"})
)
