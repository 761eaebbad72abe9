// Package metrics holds the Prometheus collectors for the household core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CachePushes counts push deliveries applied by each live cache.
	CachePushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_cache_pushes_total",
		Help: "Push snapshots applied per live cache",
	}, []string{"cache"})

	// CacheDroppedDocuments counts documents dropped during hydration.
	CacheDroppedDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_cache_dropped_documents_total",
		Help: "Malformed documents dropped while hydrating a live cache",
	}, []string{"cache"})

	// ProtocolSteps counts protocol steps by protocol, step and result.
	ProtocolSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_protocol_steps_total",
		Help: "Consistency protocol steps by protocol, step and result",
	}, []string{"protocol", "step", "result"})

	// ProtocolDuration tracks end-to-end protocol latency.
	ProtocolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "larder_protocol_duration_seconds",
		Help:    "Consistency protocol duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"protocol"})

	// ItemsConsumed counts food items touched by committed allocations.
	ItemsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_items_consumed_total",
		Help: "Food items consumed by committed recipe sessions",
	}, []string{"outcome"})

	// PointsAwarded counts points credited by kind.
	PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_points_awarded_total",
		Help: "Rat and stinky points credited",
	}, []string{"kind"})

	// RPCRequests counts RPC calls by procedure and code.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_rpc_requests_total",
		Help: "RPC requests by procedure and result code",
	}, []string{"procedure", "code"})
)
