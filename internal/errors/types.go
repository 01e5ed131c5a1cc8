package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 上游索引API错误
	ErrorTypeUpstream
	ErrorTypeEnvelope
	ErrorTypeNotFound

	// 数据相关错误
	ErrorTypeDecode
	ErrorTypeValidation
	ErrorTypeInvalidQuery

	// 系统相关错误
	ErrorTypeCache
	ErrorTypeConfig
	ErrorTypeFeed
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ExplorerError 自定义错误类型
type ExplorerError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	Component  string                 `json:"component"`
	StatusCode int                    `json:"status_code,omitempty"`
}

// Error 实现error接口
func (e *ExplorerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *ExplorerError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，使预定义错误可以配合errors.Is使用
func (e *ExplorerError) Is(target error) bool {
	var t *ExplorerError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsRetryable 判断是否可重试
func (e *ExplorerError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *ExplorerError) WithContext(key string, value interface{}) *ExplorerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent 设置产生错误的组件
func (e *ExplorerError) WithComponent(component string) *ExplorerError {
	e.Component = component
	return e
}

// WithStatus 记录上游HTTP状态码
func (e *ExplorerError) WithStatus(status int) *ExplorerError {
	e.StatusCode = status
	if status == http.StatusTooManyRequests || status >= 500 {
		e.Retryable = true
	}
	return e
}

// NewExplorerError 创建新的错误
func NewExplorerError(errorType ErrorType, severity ErrorSeverity, code, message string) *ExplorerError {
	return &ExplorerError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *ExplorerError {
	return &ExplorerError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(errorType),
	}
}

// determineRetryable 根据错误类型判断是否可重试
func determineRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	default:
		// 上游明确返回的错误（含success=false）重试无意义
		return false
	}
}

// 预定义错误
var (
	ErrNetwork = NewExplorerError(
		ErrorTypeNetwork,
		SeverityMedium,
		"NETWORK_ERROR",
		"网络请求失败",
	)

	ErrRateLimitExceeded = NewExplorerError(
		ErrorTypeRateLimit,
		SeverityMedium,
		"RATE_LIMIT_EXCEEDED",
		"请求频率超限",
	)

	ErrAPIUnavailable = NewExplorerError(
		ErrorTypeUpstream,
		SeverityHigh,
		"API_UNAVAILABLE",
		"API is unavailable",
	)

	ErrUpstreamStatus = NewExplorerError(
		ErrorTypeUpstream,
		SeverityMedium,
		"UPSTREAM_STATUS",
		"上游返回非2xx状态",
	)

	ErrEnvelope = NewExplorerError(
		ErrorTypeEnvelope,
		SeverityMedium,
		"API_ERROR",
		"上游返回失败响应",
	)

	ErrNotFound = NewExplorerError(
		ErrorTypeNotFound,
		SeverityLow,
		"NOT_FOUND",
		"not found",
	)

	ErrDecode = NewExplorerError(
		ErrorTypeDecode,
		SeverityMedium,
		"DECODE_FAILED",
		"响应解析失败",
	)

	ErrInvalidQuery = NewExplorerError(
		ErrorTypeInvalidQuery,
		SeverityLow,
		"INVALID_QUERY",
		"无效的查询参数",
	)

	ErrDataValidation = NewExplorerError(
		ErrorTypeValidation,
		SeverityLow,
		"DATA_VALIDATION_FAILED",
		"数据验证失败",
	)

	ErrCacheStorage = NewExplorerError(
		ErrorTypeCache,
		SeverityLow,
		"CACHE_STORAGE",
		"缓存存储失败",
	)

	ErrConfigInvalid = NewExplorerError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)

	ErrFeedPublish = NewExplorerError(
		ErrorTypeFeed,
		SeverityHigh,
		"FEED_PUBLISH_FAILED",
		"区块推送失败",
	)
)

// NotFound 创建资源未找到错误
func NotFound(resource, id string) *ExplorerError {
	return NewExplorerError(ErrorTypeNotFound, SeverityLow, ErrNotFound.Code,
		fmt.Sprintf("%s %s not found", resource, id)).
		WithContext("resource", resource).
		WithContext("id", id)
}

// IsNotFound 判断错误链中是否包含未找到错误
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// HTTPStatus 将错误映射为视图层HTTP状态码
func HTTPStatus(err error) int {
	var ee *ExplorerError
	if !stderrors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	switch ee.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalidQuery, ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeUpstream, ErrorTypeEnvelope, ErrorTypeDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:      "Network",
	ErrorTypeTimeout:      "Timeout",
	ErrorTypeRateLimit:    "RateLimit",
	ErrorTypeUpstream:     "Upstream",
	ErrorTypeEnvelope:     "Envelope",
	ErrorTypeNotFound:     "NotFound",
	ErrorTypeDecode:       "Decode",
	ErrorTypeValidation:   "Validation",
	ErrorTypeInvalidQuery: "InvalidQuery",
	ErrorTypeCache:        "Cache",
	ErrorTypeConfig:       "Config",
	ErrorTypeFeed:         "Feed",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int              `json:"total_errors"`
	ErrorsByType      map[string]int   `json:"errors_by_type"`
	ErrorsBySeverity  map[string]int   `json:"errors_by_severity"`
	ErrorsByComponent map[string]int   `json:"errors_by_component"`
	RecentErrors      []*ExplorerError `json:"recent_errors"`
	LastError         *ExplorerError   `json:"last_error"`
	LastErrorTime     time.Time        `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[string]int),
		ErrorsBySeverity:  make(map[string]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*ExplorerError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *ExplorerError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type.String()]++
	es.ErrorsBySeverity[err.Severity.String()]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0
	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	hours := duration.Hours()
	if hours == 0 {
		return float64(recentCount)
	}
	return float64(recentCount) / hours
}
