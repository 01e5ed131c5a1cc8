package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "block_cache",
		Name:      "lookups_total",
		Help:      "Count of block cache lookups by result.",
	}, []string{"result"})
	cacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "block_cache",
		Name:      "evictions_total",
		Help:      "Count of blocks removed from the cache by reason.",
	}, []string{"reason"})
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "block_cache",
		Name:      "entries",
		Help:      "Number of blocks held by the cache after the last sweep.",
	})
)

// ObserveCacheLookup 记录一次缓存查询，result 为 hit 或 miss
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheEviction 记录因 reason 被移除的区块数
func ObserveCacheEviction(reason string, count int) {
	if count <= 0 {
		return
	}
	cacheEvictionsTotal.WithLabelValues(reason).Add(float64(count))
}

// SetCacheEntries 记录当前缓存的区块数
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}
