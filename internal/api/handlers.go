package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"

	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/search"
	"bbkexplorer/pkg/models"
)

const (
	// HomeBlockCount 首页展示的区块数
	HomeBlockCount = 10
	// HomeTransactionCount 首页展示的交易数
	HomeTransactionCount = 10

	defaultPageSize = 20
	maxPageSize     = 100
	defaultQRSize   = 256
	maxQRSize       = 1024
)

// healthCheck 本服务存活检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
		"service":   "bbkexplorer",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// getStatus 上游健康状态，有轮询器时返回最近一次轮询结果
func (s *Server) getStatus(c *gin.Context) {
	if s.watcher != nil {
		status := s.watcher.Status()
		if status.HealthPolled {
			c.JSON(http.StatusOK, status)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"health": s.explorer.GetHealth(c.Request.Context())})
}

// getHome 首页：最新区块、最新交易和网络统计，各部分独立失败
func (s *Server) getHome(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.now()

	var (
		mu       sync.Mutex
		blocks   []models.Block
		txs      []models.Transaction
		stats    *models.NetworkStats
		failures = map[string]string{}
	)
	record := func(section string, err error) {
		mu.Lock()
		failures[section] = err.Error()
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.watcher != nil {
			if latest := s.watcher.LatestBlocks(); len(latest) > 0 {
				if len(latest) > HomeBlockCount {
					latest = latest[:HomeBlockCount]
				}
				blocks = latest
				return nil
			}
		}
		b, err := s.explorer.GetLatestBlocks(gctx, HomeBlockCount)
		if err != nil {
			record("blocks", err)
			return nil
		}
		blocks = b
		return nil
	})
	g.Go(func() error {
		t, err := s.explorer.GetLatestTransactions(gctx, HomeTransactionCount)
		if err != nil {
			record("transactions", err)
			return nil
		}
		txs = t
		return nil
	})
	g.Go(func() error {
		st, err := s.networkStats(gctx)
		if err != nil {
			record("stats", err)
			return nil
		}
		stats = &st
		return nil
	})
	_ = g.Wait()

	if len(failures) == 3 {
		s.logger.Warnf("首页数据全部获取失败: %v", failures)
		c.JSON(http.StatusBadGateway, gin.H{"error": "API is unavailable", "errors": failures})
		return
	}

	tip := s.explorer.Tip()
	body := gin.H{
		"blocks":       newBlockViews(blocks, tip, now),
		"transactions": newTransactionViews(txs, now),
		"stats":        stats,
	}
	if len(failures) > 0 {
		body["errors"] = failures
	}
	c.JSON(http.StatusOK, body)
}

// getBlocks 区块列表
func (s *Server) getBlocks(c *gin.Context) {
	page, size := pageParams(c, defaultPageSize, maxPageSize)
	result, err := s.explorer.GetBlocks(c.Request.Context(), page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      newBlockViews(result.Data, s.explorer.Tip(), s.now()),
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
		"has_more":  result.HasMore,
	})
}

// getBlock 区块详情，id 可以是高度、哈希或 latest
func (s *Server) getBlock(c *gin.Context) {
	block, err := s.explorer.GetBlock(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newBlockView(block, s.explorer.Tip(), s.now()))
}

// getBlockTransactions 区块内交易
func (s *Server) getBlockTransactions(c *gin.Context) {
	page, size := pageParams(c, defaultPageSize, maxPageSize)
	result, err := s.explorer.GetBlockTransactions(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      newTransactionViews(result.Data, s.now()),
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
		"has_more":  result.HasMore,
	})
}

// getBlockRewards 区块奖励汇总
func (s *Server) getBlockRewards(c *gin.Context) {
	rewards, err := s.explorer.GetBlockRewards(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rewards)
}

// getTransactions 最新交易
func (s *Server) getTransactions(c *gin.Context) {
	limit := intQuery(c, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	txs, err := s.explorer.GetLatestTransactions(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newTransactionViews(txs, s.now())})
}

// getTransaction 交易详情
func (s *Server) getTransaction(c *gin.Context) {
	tx, err := s.explorer.GetTransaction(c.Request.Context(), c.Param("txid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionView(tx, s.now()))
}

// getAddress 地址详情
func (s *Server) getAddress(c *gin.Context) {
	page, limit := pageParams(c, defaultPageSize, maxPageSize)
	addr, err := s.explorer.GetAddress(c.Request.Context(), c.Param("address"), page, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAddressView(addr))
}

// getAddressQR 地址二维码（PNG）
func (s *Server) getAddressQR(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if search.Classify(address) != search.KindAddress {
		s.badRequest(c, "无效的地址: "+address)
		return
	}
	size := intQuery(c, "size", defaultQRSize)
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(address, qrcode.Medium, size)
	if err != nil {
		s.logger.Errorf("生成地址二维码失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成二维码失败"})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, int64(len(png)), "image/png", bytes.NewReader(png), nil)
}

// getMasternodes 主节点列表，支持 list=active|inactive、network 和 q 过滤
func (s *Server) getMasternodes(c *gin.Context) {
	list, err := s.explorer.GetMasternodes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	filter := derive.MasternodeFilter{
		Inactive: c.Query("list") == "inactive",
		Network:  models.NetworkType(strings.ToLower(c.Query("network"))),
		Query:    c.Query("q"),
	}
	nodes := derive.FilterMasternodes(list, filter)
	c.JSON(http.StatusOK, gin.H{
		"masternodes": nodes,
		"count":       len(nodes),
		"total":       list.Total,
	})
}

// getPeers 对等节点，支持 status、network、q、sort 和 order
func (s *Server) getPeers(c *gin.Context) {
	list, err := s.explorer.GetPeers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	status := derive.StatusFilter(strings.ToLower(c.DefaultQuery("status", string(derive.StatusAll))))
	filter := derive.PeerFilter{
		Status:  status,
		Network: models.NetworkType(strings.ToLower(c.Query("network"))),
		Query:   c.Query("q"),
		SortBy:  c.DefaultQuery("sort", "id"),
		Desc:    strings.EqualFold(c.Query("order"), "desc"),
	}
	peers := derive.FilterPeers(list.Peers, filter)
	c.JSON(http.StatusOK, gin.H{
		"peers":  peers,
		"count":  len(peers),
		"total":  list.Total,
		"active": list.Active,
		"stored": list.Stored,
	})
}

// getMempool 内存池，第一页优先使用轮询快照
func (s *Server) getMempool(c *gin.Context) {
	page, size := pageParams(c, defaultPageSize, maxPageSize)
	if s.watcher != nil && page == 1 && size <= 50 {
		if snapshot, ok := s.watcher.Mempool(); ok {
			if len(snapshot.Data) > size {
				snapshot.Data = snapshot.Data[:size]
			}
			snapshot.PageSize = size
			c.JSON(http.StatusOK, snapshot)
			return
		}
	}
	result, err := s.explorer.GetMempool(c.Request.Context(), page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// getStats 网络统计
func (s *Server) getStats(c *gin.Context) {
	stats, err := s.networkStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// networkStats 优先使用轮询快照，平均出块时间缺失时用本地估计
func (s *Server) networkStats(ctx context.Context) (models.NetworkStats, error) {
	if s.watcher != nil {
		if stats, ok := s.watcher.NetworkStats(); ok {
			return stats, nil
		}
	}
	stats, err := s.explorer.GetNetworkStats(ctx)
	if err != nil {
		return stats, err
	}
	if stats.AvgBlockTime == 0 && s.watcher != nil {
		stats.AvgBlockTime = s.watcher.AverageBlockTime()
	}
	return stats, nil
}

// search 解析查询对应的路由
func (s *Server) search(c *gin.Context) {
	route, ok := s.resolver.Resolve(c.Request.Context(), c.Query("q"))
	if !ok {
		s.badRequest(c, "查询不能为空")
		return
	}
	c.JSON(http.StatusOK, route)
}

// searchRedirect 跳转到查询解析出的页面
func (s *Server) searchRedirect(c *gin.Context) {
	route, ok := s.resolver.Resolve(c.Request.Context(), c.Query("q"))
	if !ok {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if !route.Found {
		c.JSON(http.StatusOK, route)
		return
	}
	c.Redirect(http.StatusFound, route.Path)
}

// getCacheStats 区块缓存统计
func (s *Server) getCacheStats(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "stats": s.cache.Stats()})
}

// clearCache 清空区块缓存
func (s *Server) clearCache(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusOK, gin.H{"removed": 0})
		return
	}
	removed, err := s.cache.Clear()
	if err != nil {
		s.logger.Errorf("清空区块缓存失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清空缓存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "pageSize", 20)

	logs, total := s.logManager.GetLogs(level, page, pageSize)
	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}

// getErrorStats 视图层错误统计
func (s *Server) getErrorStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.errorHandler.GetStats())
}

// getNodes 上游端点状态
func (s *Server) getNodes(c *gin.Context) {
	reporter, ok := s.explorer.(endpointReporter)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"nodes": []interface{}{}, "total": 0})
		return
	}
	stats := reporter.EndpointStats()
	c.JSON(http.StatusOK, gin.H{"nodes": stats, "total": len(stats)})
}

// getConfig 当前生效的配置
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": s.config})
}
