package client

import (
	"context"
	"net/url"
	"strings"
	"time"

	"bbkexplorer/internal/connection"
	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/errors"
	"bbkexplorer/internal/normalize"
	"bbkexplorer/internal/retry"
	"bbkexplorer/pkg/models"
)

// HealthyMessage 上游正常时健康接口返回的说明
const HealthyMessage = "API is running"

// GetAddress 获取地址汇总及一页交易历史
func (c *Client) GetAddress(ctx context.Context, address string, page, limit int) (models.Address, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Address{}, errors.NewExplorerError(errors.ErrorTypeInvalidQuery, errors.SeverityLow,
			errors.ErrInvalidQuery.Code, "地址为空")
	}

	payload, err := c.get(ctx, "address", "/address/"+url.PathEscape(address), nil)
	if err != nil {
		return models.Address{}, err
	}
	raw, ok := payload.(map[string]interface{})
	if !ok {
		return models.Address{}, decodeError("address", payload)
	}
	a := normalize.Address(raw)
	if a.Address == "" {
		a.Address = address
	}

	// 汇总里已带第一页历史时不再单独请求
	if page <= 1 && len(a.Transactions) > 0 {
		if a.Pagination.Page == 0 {
			a.Pagination = models.Pagination{Page: 1, Limit: len(a.Transactions), Total: a.TransactionCount, TotalPages: 1}
		}
		c.applyAddressConfirmations(&a)
		return a, nil
	}

	history, err := c.GetAddressTransactions(ctx, address, page, limit)
	if err != nil {
		if errors.IsNotFound(err) {
			return a, nil
		}
		return models.Address{}, err
	}
	a.Transactions = history.Data
	a.Pagination = models.Pagination{
		Page:       history.Page,
		Limit:      history.PageSize,
		Total:      history.Total,
		TotalPages: totalPages(history.Total, history.PageSize),
	}
	c.applyAddressConfirmations(&a)
	return a, nil
}

// GetAddressTransactions 分页获取地址交易历史
func (c *Client) GetAddressTransactions(ctx context.Context, address string, page, pageSize int) (models.Page[models.AddressTransaction], error) {
	path := "/address/" + url.PathEscape(strings.TrimSpace(address)) + "/transactions"
	payload, err := c.get(ctx, "address_transactions", path, pageQuery(page, pageSize))
	if err != nil {
		return models.Page[models.AddressTransaction]{}, err
	}
	return decodePage(payload, page, pageSize, normalize.AddressTransaction)
}

func (c *Client) applyAddressConfirmations(a *models.Address) {
	tip := c.Tip()
	for i := range a.Transactions {
		t := &a.Transactions[i]
		if t.BlockHeight > 0 {
			t.Confirmations = derive.Confirmations(tip, t.BlockHeight, t.Confirmations)
		}
	}
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// GetMasternodes 获取主节点列表（活跃/非活跃）
func (c *Client) GetMasternodes(ctx context.Context) (models.MasternodeList, error) {
	payload, err := c.get(ctx, "masternodes", "/masternodes", nil)
	if err != nil {
		return models.MasternodeList{}, err
	}

	var list models.MasternodeList
	switch v := payload.(type) {
	case map[string]interface{}:
		list = normalize.MasternodeList(v, nil)
	case []interface{}:
		list = normalize.MasternodeList(nil, normalize.Objects(normalize.Raw{"list": v}, "list"))
	default:
		return models.MasternodeList{}, decodeError("masternodes", payload)
	}
	derive.AnnotateMasternodes(&list)
	return list, nil
}

// GetPeers 获取对等节点列表，附带网络类型与活跃标记
func (c *Client) GetPeers(ctx context.Context) (models.PeerList, error) {
	payload, err := c.get(ctx, "peers", "/peers", nil)
	if err != nil {
		return models.PeerList{}, err
	}

	var list models.PeerList
	switch v := payload.(type) {
	case map[string]interface{}:
		list = normalize.PeerList(v, nil)
	case []interface{}:
		list = normalize.PeerList(nil, normalize.Objects(normalize.Raw{"peers": v}, "peers"))
	default:
		return models.PeerList{}, decodeError("peers", payload)
	}
	derive.AnnotatePeers(&list, c.now())
	return list, nil
}

// GetNetworkStats 获取网络统计
func (c *Client) GetNetworkStats(ctx context.Context) (models.NetworkStats, error) {
	payload, err := c.get(ctx, "stats", "/stats", nil)
	if err != nil {
		return models.NetworkStats{}, err
	}
	raw, ok := payload.(map[string]interface{})
	if !ok {
		return models.NetworkStats{}, decodeError("stats", payload)
	}
	stats := normalize.NetworkStats(raw)
	if stats.BlockHeight > 0 {
		c.observeHeight(stats.BlockHeight)
	}
	return stats, nil
}

// Search 远端类型搜索。没有匹配时返回 nil, nil
func (c *Client) Search(ctx context.Context, query string) (*models.SearchResult, error) {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(query))
	payload, err := c.get(ctx, "search", "/search", q)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	raw, ok := payload.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	result, ok := normalize.SearchResult(raw)
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// GetHealth 检查上游健康状态。该方法不会失败，上游不可用时返回离线状态
func (c *Client) GetHealth(ctx context.Context) models.Health {
	now := c.now().UTC().Format(time.RFC3339)
	unavailable := models.Health{Online: false, Message: errors.ErrAPIUnavailable.Message, Timestamp: now}

	payload, err := c.getWith(ctx, retry.NewRetrier(retry.NoRetryConfig, c.logger), "health", "/health", nil)
	if err != nil {
		c.logger.WithError(err).Debug("上游健康检查失败")
		return unavailable
	}

	health := models.Health{Online: true, Message: HealthyMessage, Timestamp: now}
	if raw, ok := payload.(map[string]interface{}); ok {
		if msg := normalize.String(raw, "message", "status"); msg != "" {
			health.Message = msg
		}
		if ts := normalize.String(raw, "timestamp", "time"); ts != "" {
			health.Timestamp = ts
		}
	}
	health.Online = isOnlineMessage(health.Message)
	return health
}

// ProbeEndpoint 绕过故障转移直接探测单个端点
func (c *Client) ProbeEndpoint(ctx context.Context, ep *connection.Endpoint) error {
	payload, err := c.fetch(ctx, ep, "/health", nil)
	if err != nil {
		return err
	}
	if raw, ok := payload.(map[string]interface{}); ok {
		if msg := normalize.String(raw, "message", "status"); msg != "" && !isOnlineMessage(msg) {
			return errors.ErrAPIUnavailable
		}
	}
	return nil
}

// StartEndpointHealthCheck 定期探测被暂停的端点
func (c *Client) StartEndpointHealthCheck(ctx context.Context, interval time.Duration) {
	c.pool.StartHealthCheck(ctx, interval, c.ProbeEndpoint)
}

func isOnlineMessage(msg string) bool {
	if msg == errors.ErrAPIUnavailable.Message {
		return false
	}
	m := strings.ToLower(msg)
	return strings.Contains(m, "running") || m == "ok" || m == "healthy"
}
