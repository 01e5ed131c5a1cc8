package connection

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"bbkexplorer/internal/config"
	"bbkexplorer/internal/errors"
	"bbkexplorer/internal/metrics"
)

const (
	// DefaultFailureThreshold 连续失败多少次后暂停使用端点
	DefaultFailureThreshold = 3
	// DefaultCooldown 失败端点的暂停时长
	DefaultCooldown = 30 * time.Second
	// RateLimitCooldown 被上游限流后的暂停时长
	RateLimitCooldown = 5 * time.Minute
)

// Endpoint 单个上游API端点及其健康状态
type Endpoint struct {
	Name     string
	URL      string
	Priority int

	limiter ratelimit.Limiter

	mu               sync.Mutex
	failures         int
	disabledUntil    time.Time
	rateLimitedUntil time.Time
	lastError        string
	requests         int64
	errorCount       int64
}

// EndpointStats 端点统计
type EndpointStats struct {
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	Priority         int       `json:"priority"`
	Available        bool      `json:"available"`
	Failures         int       `json:"consecutive_failures"`
	DisabledUntil    time.Time `json:"disabled_until,omitempty"`
	RateLimitedUntil time.Time `json:"rate_limited_until,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	Requests         int64     `json:"requests"`
	Errors           int64     `json:"errors"`
}

// Take 按端点限速阻塞等待
func (e *Endpoint) Take() {
	if e.limiter != nil {
		e.limiter.Take()
	}
}

// URLFor 拼接请求路径
func (e *Endpoint) URLFor(path string) string {
	return strings.TrimRight(e.URL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (e *Endpoint) available(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.After(e.disabledUntil) && now.After(e.rateLimitedUntil)
}

// Pool 按优先级排列的端点池，请求失败时切换到下一个端点
type Pool struct {
	endpoints        []*Endpoint
	logger           *logrus.Logger
	metrics          *metrics.Client
	now              func() time.Time
	failureThreshold int
	cooldown         time.Duration
}

// NewPool 创建端点池
func NewPool(cfgs []*config.EndpointConfig, logger *logrus.Logger) (*Pool, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("没有可用的API端点")
	}

	endpoints := make([]*Endpoint, 0, len(cfgs))
	for _, c := range cfgs {
		ep := &Endpoint{Name: c.Name, URL: c.URL, Priority: c.Priority}
		if c.RateLimit > 0 {
			ep.limiter = ratelimit.New(c.RateLimit)
		}
		endpoints = append(endpoints, ep)
		logger.Infof("API端点 %s 已加入端点池 (优先级 %d)", c.Name, c.Priority)
	}
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Priority < endpoints[j].Priority
	})

	return &Pool{
		endpoints:        endpoints,
		logger:           logger,
		metrics:          metrics.NewClient(),
		now:              time.Now,
		failureThreshold: DefaultFailureThreshold,
		cooldown:         DefaultCooldown,
	}, nil
}

// SetClock 替换时间来源
func (p *Pool) SetClock(now func() time.Time) {
	p.now = now
}

// candidates 可用端点按优先级排列；全部不可用时退回全部端点
func (p *Pool) candidates() []*Endpoint {
	now := p.now()
	var out []*Endpoint
	for _, ep := range p.endpoints {
		if ep.available(now) {
			out = append(out, ep)
		}
	}
	if len(out) == 0 {
		p.logger.Warn("所有API端点均不可用，尝试全部端点")
		return p.endpoints
	}
	return out
}

// Do 依次在端点上执行 fn，直到成功或遇到不应切换端点的错误
func (p *Pool) Do(ctx context.Context, fn func(ep *Endpoint) error) error {
	var lastErr error
	for i, ep := range p.candidates() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			p.metrics.ObserveFailover(ep.Name)
			p.logger.Debugf("切换到API端点 %s", ep.Name)
		}

		ep.Take()
		err := fn(ep)
		if err == nil {
			p.markSuccess(ep)
			return nil
		}
		lastErr = err

		if !p.markFailure(ep, err) {
			return err
		}
	}
	return lastErr
}

func (p *Pool) markSuccess(ep *Endpoint) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.requests++
	if ep.failures > 0 {
		p.logger.Infof("API端点 %s 已恢复", ep.Name)
	}
	ep.failures = 0
	ep.lastError = ""
}

// markFailure 记录失败，返回是否应当尝试下一个端点
func (p *Pool) markFailure(ep *Endpoint, err error) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.requests++
	ep.errorCount++
	ep.lastError = err.Error()

	var ee *errors.ExplorerError
	if stderrors.As(err, &ee) {
		switch {
		case ee.Type == errors.ErrorTypeRateLimit:
			ep.rateLimitedUntil = p.now().Add(RateLimitCooldown)
			p.logger.Warnf("API端点 %s 被限流，暂停 %s", ep.Name, RateLimitCooldown)
			return true
		case !ee.Retryable:
			// 404、业务错误等换端点也不会有不同结果
			return false
		}
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}

	ep.failures++
	if ep.failures >= p.failureThreshold {
		ep.disabledUntil = p.now().Add(p.cooldown)
		p.logger.Warnf("API端点 %s 连续失败 %d 次，暂停 %s", ep.Name, ep.failures, p.cooldown)
	}
	return true
}

// StartHealthCheck 定期探测被暂停的端点，探测成功后立即恢复
func (p *Pool) StartHealthCheck(ctx context.Context, interval time.Duration, probe func(ctx context.Context, ep *Endpoint) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.checkDisabled(ctx, probe)
			}
		}
	}()
}

func (p *Pool) checkDisabled(ctx context.Context, probe func(ctx context.Context, ep *Endpoint) error) {
	now := p.now()
	for _, ep := range p.endpoints {
		ep.mu.Lock()
		disabled := now.Before(ep.disabledUntil)
		ep.mu.Unlock()
		if !disabled {
			continue
		}

		if err := probe(ctx, ep); err != nil {
			p.logger.Debugf("API端点 %s 健康检查失败: %v", ep.Name, err)
			continue
		}
		ep.mu.Lock()
		ep.disabledUntil = time.Time{}
		ep.failures = 0
		ep.mu.Unlock()
		p.logger.Infof("API端点 %s 健康检查通过，重新启用", ep.Name)
	}
}

// Primary 优先级最高的端点
func (p *Pool) Primary() *Endpoint {
	return p.endpoints[0]
}

// GetStats 获取端点池统计信息
func (p *Pool) GetStats() []EndpointStats {
	now := p.now()
	stats := make([]EndpointStats, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		available := ep.available(now)
		ep.mu.Lock()
		stats = append(stats, EndpointStats{
			Name:             ep.Name,
			URL:              ep.URL,
			Priority:         ep.Priority,
			Available:        available,
			Failures:         ep.failures,
			DisabledUntil:    ep.disabledUntil,
			RateLimitedUntil: ep.rateLimitedUntil,
			LastError:        ep.lastError,
			Requests:         ep.requests,
			Errors:           ep.errorCount,
		})
		ep.mu.Unlock()
	}
	return stats
}
