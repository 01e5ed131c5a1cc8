// Package client fetches explorer data from the upstream indexing API and
// returns it normalized into pkg/models.
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"bbkexplorer/internal/cache"
	"bbkexplorer/internal/config"
	"bbkexplorer/internal/connection"
	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/errors"
	"bbkexplorer/internal/logging"
	"bbkexplorer/internal/metrics"
	"bbkexplorer/internal/retry"
	"bbkexplorer/internal/validation"
)

const (
	// DefaultBatchConcurrency 批量取区块时每一波的并发请求数
	DefaultBatchConcurrency = 6
	// DefaultTimeout 单次请求超时
	DefaultTimeout = 10 * time.Second
	// maxResponseSize 响应体上限
	maxResponseSize = 16 << 20
)

// Client 上游索引API客户端
type Client struct {
	pool      *connection.Pool
	http      *http.Client
	cache     *cache.BlockCache
	retrier   *retry.Retrier
	validator *validation.Validator
	logger    *logrus.Logger
	apiLog    *logging.StructuredLogger
	metrics   *metrics.Client

	batchConcurrency int
	userAgent        string

	// 最近一次得到的链高度，-1表示未知
	lastHeight *atomic.Int64
	now        func() time.Time
}

// New 创建客户端。blockCache 可以为 nil，此时不做区块缓存
func New(cfg *config.APIConfig, blockCache *cache.BlockCache, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("缺少API配置")
	}
	pool, err := connection.NewPool(cfg.Endpoints, logger)
	if err != nil {
		return nil, err
	}

	retryCfg := *retry.DefaultRetryConfig
	if cfg.RetryLimit > 0 {
		retryCfg.MaxAttempts = cfg.RetryLimit
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	return &Client{
		pool:             pool,
		http:             &http.Client{Timeout: config.Duration(cfg.Timeout, DefaultTimeout)},
		cache:            blockCache,
		retrier:          retry.NewRetrier(&retryCfg, logger),
		validator:        validation.NewValidator(logger),
		logger:           logger,
		metrics:          metrics.NewClient(),
		batchConcurrency: concurrency,
		userAgent:        cfg.UserAgent,
		lastHeight:       atomic.NewInt64(-1),
		now:              time.Now,
	}, nil
}

// SetClock 替换时间来源
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// SetStructuredLogger 设置结构化日志，用于记录失败的上游请求
func (c *Client) SetStructuredLogger(sl *logging.StructuredLogger) {
	c.apiLog = sl
}

// Pool 端点池
func (c *Client) Pool() *connection.Pool {
	return c.pool
}

// EndpointStats 各端点的请求与故障统计
func (c *Client) EndpointStats() []connection.EndpointStats {
	return c.pool.GetStats()
}

// Cache 区块缓存，可能为nil
func (c *Client) Cache() *cache.BlockCache {
	return c.cache
}

// Tip 最近一次已知的链高度
func (c *Client) Tip() derive.ChainTip {
	h := c.lastHeight.Load()
	if h < 0 {
		return derive.ChainTip{}
	}
	return derive.KnownTip(h)
}

// observeHeight 只向前推进链高度
func (c *Client) observeHeight(h int64) {
	for {
		cur := c.lastHeight.Load()
		if h <= cur {
			return
		}
		if c.lastHeight.CAS(cur, h) {
			c.metrics.SetChainHeight(h)
			return
		}
	}
}

// get 带重试与端点切换的GET请求，返回解包后的payload
func (c *Client) get(ctx context.Context, op, path string, query url.Values) (interface{}, error) {
	return c.getWith(ctx, c.retrier, op, path, query)
}

func (c *Client) getWith(ctx context.Context, r *retry.Retrier, op, path string, query url.Values) (interface{}, error) {
	started := c.now()
	payload, err := retry.Do(ctx, r, op, func() (interface{}, error) {
		var out interface{}
		err := c.pool.Do(ctx, func(ep *connection.Endpoint) error {
			var ferr error
			out, ferr = c.fetch(ctx, ep, path, query)
			return ferr
		})
		return out, err
	})
	c.metrics.Observe(op, err, started)
	if err != nil && c.apiLog != nil {
		logging.NewAPILogger(c.apiLog, op, path).Warn("上游请求失败", "error", err.Error())
	}
	return payload, err
}

// fetch 在单个端点上执行一次请求
func (c *Client) fetch(ctx context.Context, ep *connection.Endpoint, path string, query url.Values) (interface{}, error) {
	target := ep.URLFor(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInvalidQuery, errors.SeverityLow,
			errors.ErrInvalidQuery.Code, "构造请求失败")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, ep, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(ctx, ep, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFound("resource", path).WithStatus(resp.StatusCode).WithComponent(ep.Name)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.NewExplorerError(errors.ErrorTypeRateLimit, errors.SeverityMedium,
			errors.ErrRateLimitExceeded.Code, "上游请求频率超限").
			WithStatus(resp.StatusCode).WithComponent(ep.Name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// 非2xx的响应体里可能带有信封错误信息
		msg := fmt.Sprintf("上游返回状态 %d", resp.StatusCode)
		if _, envErr := decodeEnvelope(body); envErr != nil {
			msg = envErr.Error()
		}
		return nil, errors.NewExplorerError(errors.ErrorTypeUpstream, errors.SeverityMedium,
			errors.ErrUpstreamStatus.Code, msg).
			WithStatus(resp.StatusCode).WithComponent(ep.Name).WithContext("path", path)
	}

	payload, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func transportError(ctx context.Context, ep *connection.Endpoint, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.WrapError(err, errors.ErrorTypeTimeout, errors.SeverityMedium,
			"REQUEST_TIMEOUT", "上游请求超时").WithComponent(ep.Name)
	}
	return errors.WrapError(err, errors.ErrorTypeNetwork, errors.SeverityMedium,
		errors.ErrNetwork.Code, errors.ErrNetwork.Message).WithComponent(ep.Name)
}

// decodeEnvelope 解析 {success, data, error} 信封。没有success字段时整个响应体即payload
func decodeEnvelope(body []byte) (interface{}, error) {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDecode, errors.SeverityMedium,
			errors.ErrDecode.Code, errors.ErrDecode.Message)
	}

	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload, nil
	}
	success, has := m["success"]
	if !has {
		return payload, nil
	}
	if ok, _ := success.(bool); ok {
		return m["data"], nil
	}
	return nil, envelopeError(m["error"])
}

// envelopeError 信封里的错误可能是字符串，也可能是 {message, code}
func envelopeError(v interface{}) error {
	message := "Unknown API error"
	code := ""
	switch e := v.(type) {
	case string:
		if e != "" {
			message = e
		}
	case map[string]interface{}:
		if s, ok := e["message"].(string); ok && s != "" {
			message = s
		}
		if s, ok := e["code"].(string); ok {
			code = s
		}
	}

	if code == errors.ErrNotFound.Code || strings.Contains(strings.ToLower(message), "not found") {
		return errors.NewExplorerError(errors.ErrorTypeNotFound, errors.SeverityLow,
			errors.ErrNotFound.Code, message)
	}
	if code == "" {
		code = errors.ErrEnvelope.Code
	}
	return errors.NewExplorerError(errors.ErrorTypeEnvelope, errors.SeverityMedium, code, message)
}

// pageQuery 分页参数
func pageQuery(page, pageSize int) url.Values {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("pageSize", fmt.Sprint(pageSize))
	return q
}

func limitQuery(limit int) url.Values {
	if limit < 1 {
		limit = 10
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	return q
}

func decodeError(op string, payload interface{}) error {
	return errors.NewExplorerError(errors.ErrorTypeDecode, errors.SeverityMedium,
		errors.ErrDecode.Code, fmt.Sprintf("%s: 响应结构无法识别 (%T)", op, payload))
}
