package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/cache"
	"bbkexplorer/internal/config"
	"bbkexplorer/internal/connection"
	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/errors"
	"bbkexplorer/internal/search"
	"bbkexplorer/internal/watcher"
	"bbkexplorer/pkg/models"
)

// Explorer 视图层依赖的数据接口，*client.Client 实现该接口
type Explorer interface {
	GetBlock(ctx context.Context, id string) (models.Block, error)
	GetBlocks(ctx context.Context, page, pageSize int) (models.Page[models.Block], error)
	GetBlockTransactions(ctx context.Context, id string, page, pageSize int) (models.Page[models.Transaction], error)
	GetBlockRewards(ctx context.Context, id string) (models.BlockRewards, error)
	GetLatestBlocks(ctx context.Context, n int) ([]models.Block, error)
	GetTransaction(ctx context.Context, txid string) (models.Transaction, error)
	GetLatestTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
	GetAddress(ctx context.Context, address string, page, limit int) (models.Address, error)
	GetMasternodes(ctx context.Context) (models.MasternodeList, error)
	GetPeers(ctx context.Context) (models.PeerList, error)
	GetMempool(ctx context.Context, page, pageSize int) (models.Page[models.MempoolTransaction], error)
	GetNetworkStats(ctx context.Context) (models.NetworkStats, error)
	Search(ctx context.Context, query string) (*models.SearchResult, error)
	GetHealth(ctx context.Context) models.Health
	Tip() derive.ChainTip
}

// endpointReporter 可选，提供上游端点统计
type endpointReporter interface {
	EndpointStats() []connection.EndpointStats
}

// Options 可选组件，均可为 nil
type Options struct {
	Cache         *cache.BlockCache
	Watcher       *watcher.Watcher
	ConfigManager *ConfigManager
}

// Server 视图服务器
type Server struct {
	explorer      Explorer
	cache         *cache.BlockCache
	watcher       *watcher.Watcher
	configManager *ConfigManager
	resolver      *search.Resolver
	errorHandler  *errors.ErrorHandler
	config        *config.Config
	logger        *logrus.Logger
	logManager    *LogManager
	schema        *graphql.Schema
	server        *http.Server
	started       time.Time
	now           func() time.Time
	port          int
}

// NewServer 创建视图服务器
func NewServer(cfg *config.Config, explorer Explorer, opts Options, logger *logrus.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	serverCfg := cfg.Server
	if serverCfg == nil {
		serverCfg = config.GetDefaultConfig().Server
	}

	logManager := NewLogManager(serverCfg.LogBuffer)
	logger.AddHook(NewLogHook(logManager))

	s := &Server{
		explorer:      explorer,
		cache:         opts.Cache,
		watcher:       opts.Watcher,
		configManager: opts.ConfigManager,
		resolver:      search.NewResolver(explorer, logger),
		errorHandler:  errors.NewErrorHandler(logger),
		config:        cfg,
		logger:        logger,
		logManager:    logManager,
		started:       time.Now(),
		now:           time.Now,
		port:          serverCfg.Port,
	}

	if serverCfg.GraphQL {
		schema, err := newSchema(s)
		if err != nil {
			return nil, fmt.Errorf("创建GraphQL schema失败: %w", err)
		}
		s.schema = &schema
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(serverCfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// SetClock 替换时间来源
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Handler 构建带CORS的路由
func (s *Server) Handler(origins []string) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	s.setupRoutes(router)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}).Handler(router)
}

// Start 启动视图服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.logger.Infof("视图服务器启动在端口 %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止视图服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/search", s.searchRedirect)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.schema != nil {
		router.GET("/graphql", s.graphqlHandler)
		router.POST("/graphql", s.graphqlHandler)
	}

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.getStatus)
		api.GET("/home", s.getHome)

		// 区块
		api.GET("/blocks", s.getBlocks)
		api.GET("/block/:id", s.getBlock)
		api.GET("/block/:id/transactions", s.getBlockTransactions)
		api.GET("/block/:id/rewards", s.getBlockRewards)

		// 交易与地址
		api.GET("/transactions", s.getTransactions)
		api.GET("/tx/:txid", s.getTransaction)
		api.GET("/address/:address", s.getAddress)
		api.GET("/address/:address/qr", s.getAddressQR)

		// 网络
		api.GET("/masternodes", s.getMasternodes)
		api.GET("/peers", s.getPeers)
		api.GET("/mempool", s.getMempool)
		api.GET("/stats", s.getStats)
		api.GET("/search", s.search)

		// 运维
		api.GET("/cache", s.getCacheStats)
		api.DELETE("/cache", s.clearCache)
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
		api.GET("/errors", s.getErrorStats)
		api.GET("/nodes", s.getNodes)
		api.GET("/config", s.getConfig)
	}

	if s.configManager != nil {
		s.configManager.RegisterRoutes(api)
	}
}

// requestLogger 用 logrus 记录请求
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" {
			return
		}
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP请求")
	}
}

// fail 把错误映射为HTTP响应
func (s *Server) fail(c *gin.Context, err error) {
	_ = s.errorHandler.HandleError(c.Request.Context(), err)

	status := errors.HTTPStatus(err)
	if status == http.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ee := errors.Classify(err)
	c.JSON(status, gin.H{"error": ee.Message, "code": ee.Code})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	s.fail(c, errors.NewExplorerError(errors.ErrorTypeInvalidQuery, errors.SeverityLow,
		errors.ErrInvalidQuery.Code, msg))
}

// intQuery 读取正整数查询参数，缺失或无效时使用默认值
func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// pageParams 读取分页参数，同时接受 pageSize 和 limit
func pageParams(c *gin.Context, defaultSize, maxSize int) (int, int) {
	page := intQuery(c, "page", 1)
	size := intQuery(c, "pageSize", intQuery(c, "limit", defaultSize))
	if size > maxSize {
		size = maxSize
	}
	return page, size
}
