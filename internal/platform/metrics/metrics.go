package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数。
	// route 用路由模板（例如 /api/v1/owners/{owner}），不要用真实 path，否则 label 基数会无限增长。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// LookupsTotal：按结果分类的查询次数。
	// outcome：found / not_found / unavailable / aborted / disabled
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "existing_lookups_total",
			Help: "Bookmark existence lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// CacheOperations：op 取值 hit / miss / expired / store / skip / delete
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "existing_cache_operations_total",
			Help: "Resolution cache operations.",
		},
		[]string{"op"},
	)

	// RemoteRequestsTotal：op 为 by_url / candidates，result 为 ok / server_error / network_error / aborted
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "existing_remote_requests_total",
			Help: "Requests issued to the remote bookmark API.",
		},
		[]string{"op", "result"},
	)

	RemoteRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "existing_remote_request_duration_seconds",
			Help:    "Latency of remote bookmark API calls.",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	// InflightComputations：当前正在进行的远端解析（每个 key 最多一个）。
	InflightComputations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "existing_inflight_computations",
			Help: "Remote resolutions currently in flight.",
		},
	)

	// CoalescedWaitersTotal：加入已有计算、没有发起新请求的等待者数量。
	CoalescedWaitersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "existing_coalesced_waiters_total",
			Help: "Lookups that joined an in-flight resolution.",
		},
	)

	OwnerSupersessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "existing_owner_supersessions_total",
			Help: "Pending lookups cancelled by a newer lookup of the same owner.",
		},
	)

	// StatsDroppedTotal：统计通道满时被丢弃的事件数。
	StatsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "existing_stats_dropped_total",
			Help: "Lookup events dropped because the collector buffer was full.",
		},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			LookupsTotal,
			CacheOperations,
			RemoteRequestsTotal,
			RemoteRequestDurationSeconds,
			InflightComputations,
			CoalescedWaitersTotal,
			OwnerSupersessionsTotal,
			StatsDroppedTotal,
		)
	})
}
