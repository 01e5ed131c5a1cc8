package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/config"
)

// ConfigManager 数据库配置源的管理接口，修改在下次启动时生效
type ConfigManager struct {
	dbConfig *config.DatabaseConfig
	logger   *logrus.Logger
}

// NewConfigManager 创建配置管理器
func NewConfigManager(dbConfig *config.DatabaseConfig, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{
		dbConfig: dbConfig,
		logger:   logger,
	}
}

// endpointRequest API端点请求体
type endpointRequest struct {
	Name      string `json:"name" binding:"required"`
	URL       string `json:"url" binding:"required"`
	RateLimit int    `json:"rate_limit"`
	Priority  int    `json:"priority"`
	IsActive  *bool  `json:"is_active"`
}

func (r endpointRequest) validate() error {
	ep := config.EndpointConfig{Name: r.Name, URL: r.URL, RateLimit: r.RateLimit, Priority: r.Priority}
	return ep.Validate()
}

// RegisterRoutes 注册配置管理路由
func (cm *ConfigManager) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/config/:section", cm.GetConfig)
	group.PUT("/config/:section", cm.UpdateConfig)

	group.GET("/endpoints", cm.GetEndpoints)
	group.POST("/endpoints", cm.AddEndpoint)
	group.PUT("/endpoints/:id", cm.UpdateEndpoint)
	group.DELETE("/endpoints/:id", cm.DeleteEndpoint)
}

// GetConfig 获取某个分区的配置项
func (cm *ConfigManager) GetConfig(c *gin.Context) {
	section := c.Param("section")

	configs, err := cm.dbConfig.ListConfigs(section)
	if err != nil {
		cm.logger.Errorf("读取配置分区 %s 失败: %v", section, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取配置失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"section": section,
		"configs": configs,
	})
}

// UpdateConfig 更新配置项
func (cm *ConfigManager) UpdateConfig(c *gin.Context) {
	section := c.Param("section")

	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	if err := cm.dbConfig.UpdateConfig(section, req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "更新配置失败",
			"message": err.Error(),
		})
		return
	}

	cm.logger.Infof("配置已更新: %s.%s", section, req.Key)
	c.JSON(http.StatusOK, gin.H{
		"message": "配置已更新，重启后生效",
		"section": section,
		"key":     req.Key,
		"value":   req.Value,
	})
}

// GetEndpoints 列出数据库中的API端点
func (cm *ConfigManager) GetEndpoints(c *gin.Context) {
	query := `SELECT id, name, url, rate_limit, priority, is_active FROM api_endpoints ORDER BY priority`
	rows, err := cm.dbConfig.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取端点失败",
			"message": err.Error(),
		})
		return
	}
	defer rows.Close()

	var endpoints []gin.H
	for rows.Next() {
		var (
			id                  int
			name, url           string
			rateLimit, priority int
			isActive            bool
		)
		if err := rows.Scan(&id, &name, &url, &rateLimit, &priority, &isActive); err != nil {
			cm.logger.Warnf("扫描端点记录失败: %v", err)
			continue
		}
		endpoints = append(endpoints, gin.H{
			"id":         id,
			"name":       name,
			"url":        url,
			"rate_limit": rateLimit,
			"priority":   priority,
			"is_active":  isActive,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"endpoints": endpoints,
		"total":     len(endpoints),
	})
}

// AddEndpoint 添加API端点
func (cm *ConfigManager) AddEndpoint(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "message": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "端点配置无效", "message": err.Error()})
		return
	}

	query := `INSERT INTO api_endpoints (name, url, rate_limit, priority, is_active) VALUES ($1, $2, $3, $4, true)`
	if _, err := cm.dbConfig.DB.Exec(query, req.Name, req.URL, req.RateLimit, req.Priority); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "添加端点失败", "message": err.Error()})
		return
	}

	cm.logger.Infof("已添加API端点 %s (%s)", req.Name, req.URL)
	c.JSON(http.StatusCreated, gin.H{"message": "端点已添加"})
}

// UpdateEndpoint 更新API端点
func (cm *ConfigManager) UpdateEndpoint(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的端点ID"})
		return
	}

	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "message": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "端点配置无效", "message": err.Error()})
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	query := `UPDATE api_endpoints SET name = $1, url = $2, rate_limit = $3, priority = $4, is_active = $5 WHERE id = $6`
	if _, err := cm.dbConfig.DB.Exec(query, req.Name, req.URL, req.RateLimit, req.Priority, active, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新端点失败", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "端点已更新"})
}

// DeleteEndpoint 删除API端点
func (cm *ConfigManager) DeleteEndpoint(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的端点ID"})
		return
	}

	if _, err := cm.dbConfig.DB.Exec(`DELETE FROM api_endpoints WHERE id = $1`, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除端点失败", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "端点已删除"})
}
