package metrics

import "github.com/prometheus/client_golang/prometheus"

// 连接池状态, 由进程定时采样; wait 两项是累计值, 用 gauge 直接 Set
var (
	DBPool = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool",
			Help:      "Ledger DB connection pool stats (open/idle/in_use/wait_count/wait_seconds).",
		},
		[]string{"stat"},
	)

	RedisPool = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_pool",
			Help:      "Redis connection pool stats (total/idle/stale/hits/misses/timeouts).",
		},
		[]string{"stat"},
	)
)
