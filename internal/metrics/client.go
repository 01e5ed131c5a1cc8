package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bbkexplorer"

var (
	clientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api_client",
		Name:      "requests_total",
		Help:      "Count of upstream explorer API requests.",
	}, []string{"operation", "status"})
	clientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api_client",
		Name:      "request_duration_seconds",
		Help:      "Duration of upstream explorer API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
	clientEndpointFailover = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api_client",
		Name:      "endpoint_failover_total",
		Help:      "Count of requests moved to a lower priority endpoint.",
	}, []string{"endpoint"})
	clientChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api_client",
		Name:      "chain_height",
		Help:      "Last chain height reported by the upstream API.",
	})
)

// Client 上游API调用指标
type Client struct{}

// NewClient 创建上游API调用指标收集器
func NewClient() *Client {
	return &Client{}
}

// Observe 记录一次上游调用的结果与耗时
func (Client) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	clientRequestsTotal.WithLabelValues(operation, status).Inc()
	clientRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

// ObserveFailover 记录一次端点切换
func (Client) ObserveFailover(endpoint string) {
	clientEndpointFailover.WithLabelValues(endpoint).Inc()
}

// SetChainHeight 记录最新链高度
func (Client) SetChainHeight(height int64) {
	clientChainHeight.Set(float64(height))
}
