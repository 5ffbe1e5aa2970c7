package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ctfex"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Placed orders by intent, time in force and final status.",
		},
		[]string{"intent", "tif", "status"},
	)

	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Fills by kind (trade/mint).",
		},
		[]string{"kind"},
	)

	FilledQtyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filled_qty_total",
			Help:      "Filled quantity in token base units by kind.",
		},
		[]string{"kind"},
	)

	RejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "Rejected commands by error kind.",
		},
		[]string{"kind"},
	)

	BookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_resting_orders",
			Help:      "Resting orders per market and side.",
		},
		[]string{"market", "side"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time to apply one command inside the market actor.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us ~ 0.3s
		},
		[]string{"type"},
	)

	WALFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wal_flush_duration_seconds",
			Help:      "Group commit fsync latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
	)

	MailboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mailbox_depth",
			Help:      "Queued commands per market actor.",
		},
		[]string{"market"},
	)

	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "method", "reason"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"service", "method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"service", "method", "state"}, // state: closed/open/half_open
	)

	FeedPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_publish_total",
			Help:      "Engine events relayed to the broker by result (ok/open/error).",
		},
		[]string{"result"},
	)

	LedgerCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_cache_total",
			Help:      "Balance cache lookups by result (hit/miss/error/stale).",
		},
		[]string{"result"},
	)

	WSConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_conns",
			Help:      "Open websocket stream connections.",
		},
	)

	WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket stream messages by result (sent/dropped).",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// MustRegister 注册到默认 registry, 多次调用只生效一次
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OrdersTotal, FillsTotal, FilledQtyTotal, RejectsTotal, BookDepth,
			CommandDuration, WALFlushDuration, MailboxDepth,
			RateLimitBlockTotal, CBRejectTotal, CBState, FeedPublishTotal, LedgerCacheTotal,
			WSConns, WSMessagesTotal, DBPool, RedisPool,
		)
	})
}
