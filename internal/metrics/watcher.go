package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	watcherPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "polls_total",
		Help:      "Count of watcher poll jobs by job and status.",
	}, []string{"job", "status"})
	watcherPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "poll_duration_seconds",
		Help:      "Duration of watcher poll jobs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job", "status"})
	watcherSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "skipped_total",
		Help:      "Count of poll ticks skipped because the previous run was still active.",
	}, []string{"job"})
	watcherBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "new_blocks_total",
		Help:      "Count of new blocks observed by the watcher.",
	})
	watcherReorgsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "reorgs_total",
		Help:      "Count of chain reorganizations detected by the watcher.",
	})
	watcherBlockTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "average_block_time_seconds",
		Help:      "Moving average of the block interval.",
	})
	feedPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "published_total",
		Help:      "Count of feed events published by sink and status.",
	}, []string{"sink", "status"})
)

// Watcher 轮询任务指标
type Watcher struct{}

// NewWatcher 创建轮询任务指标收集器
func NewWatcher() *Watcher {
	return &Watcher{}
}

// ObservePoll 记录一次轮询任务
func (Watcher) ObservePoll(job string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	watcherPollsTotal.WithLabelValues(job, status).Inc()
	watcherPollDuration.WithLabelValues(job, status).Observe(time.Since(started).Seconds())
}

// ObserveSkip 记录一次因上次执行未结束而跳过的轮询
func (Watcher) ObserveSkip(job string) {
	watcherSkippedTotal.WithLabelValues(job).Inc()
}

// ObserveNewBlocks 记录新发现的区块数
func (Watcher) ObserveNewBlocks(n int) {
	if n > 0 {
		watcherBlocksTotal.Add(float64(n))
	}
}

// ObserveReorg 记录一次链重组
func (Watcher) ObserveReorg() {
	watcherReorgsTotal.Inc()
}

// SetBlockTime 记录平均出块间隔
func (Watcher) SetBlockTime(seconds float64) {
	watcherBlockTime.Set(seconds)
}

// ObserveFeedPublish 记录一次事件推送
func ObserveFeedPublish(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	feedPublishedTotal.WithLabelValues(sink, status).Inc()
}
