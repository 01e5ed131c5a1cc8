package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置，未出现的键保持默认值
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	endpoints, err := dc.loadEndpoints()
	if err != nil {
		return nil, fmt.Errorf("加载API端点失败: %w", err)
	}
	if len(endpoints) > 0 {
		config.API.Endpoints = endpoints
	}

	query := `SELECT section, config_key, config_value FROM explorer_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("加载配置项失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var section, key, value string
		if err := rows.Scan(&section, &key, &value); err != nil {
			return nil, err
		}
		if !applyValue(config, section, key, value) {
			dc.logger.Warnf("忽略未知配置项: %s.%s", section, key)
		}
	}
	return config, rows.Err()
}

// loadEndpoints 加载API端点
func (dc *DatabaseConfig) loadEndpoints() ([]*EndpointConfig, error) {
	query := `SELECT name, url, rate_limit, priority FROM api_endpoints WHERE is_active = true ORDER BY priority`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*EndpointConfig
	for rows.Next() {
		var ep EndpointConfig
		if err := rows.Scan(&ep.Name, &ep.URL, &ep.RateLimit, &ep.Priority); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, &ep)
	}
	return endpoints, rows.Err()
}

// applyValue 把单个键值写入配置，未知键返回false。数值解析失败时保持原值
func applyValue(config *Config, section, key, value string) bool {
	atoi := func(dst *int) {
		if v, err := strconv.Atoi(value); err == nil {
			*dst = v
		}
	}
	boolean := strings.ToLower(value) == "true"

	switch section + "." + key {
	case "api.timeout":
		config.API.Timeout = value
	case "api.retry_limit":
		atoi(&config.API.RetryLimit)
	case "api.batch_concurrency":
		atoi(&config.API.BatchConcurrency)
	case "api.user_agent":
		config.API.UserAgent = value
	case "cache.backend":
		config.Cache.Backend = value
	case "cache.path":
		config.Cache.Path = value
	case "cache.prefix":
		config.Cache.Prefix = value
	case "cache.max_age":
		config.Cache.MaxAge = value
	case "cache.max_entries":
		atoi(&config.Cache.MaxEntries)
	case "server.port":
		atoi(&config.Server.Port)
	case "server.graphql":
		config.Server.GraphQL = boolean
	case "server.cors_origins":
		config.Server.CORSOrigins = strings.Split(value, ",")
	case "watcher.block_interval":
		config.Watcher.BlockInterval = value
	case "watcher.health_interval":
		config.Watcher.HealthInterval = value
	case "watcher.latest_count":
		atoi(&config.Watcher.LatestCount)
	case "feed.format":
		config.Feed.Format = value
	case "feed.directory":
		config.Feed.Directory = value
	case "feed.kafka_brokers":
		var brokers []string
		if err := json.Unmarshal([]byte(value), &brokers); err == nil {
			config.Feed.Kafka.Brokers = brokers
		}
	case "feed.kafka_topics":
		var topics map[string]string
		if err := json.Unmarshal([]byte(value), &topics); err == nil {
			config.Feed.Kafka.Topics = topics
		}
	case "logging.level":
		config.Logging.Level = value
	case "logging.format":
		config.Logging.Format = value
	case "logging.output":
		config.Logging.Output = value
	default:
		return false
	}
	return true
}

// UpdateConfig 更新配置项
func (dc *DatabaseConfig) UpdateConfig(section, key, value string) error {
	if !applyValue(GetDefaultConfig(), section, key, value) {
		return fmt.Errorf("不支持的配置项: %s.%s", section, key)
	}

	query := `
		INSERT INTO explorer_config (section, config_key, config_value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (section, config_key)
		DO UPDATE SET config_value = $3, updated_at = CURRENT_TIMESTAMP
	`
	_, err := dc.DB.Exec(query, section, key, value)
	return err
}

// ListConfigs 列出某个分区的全部配置项
func (dc *DatabaseConfig) ListConfigs(section string) (map[string]string, error) {
	query := `SELECT config_key, config_value FROM explorer_config WHERE section = $1 AND is_active = true`
	rows, err := dc.DB.Query(query, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		configs[key] = value
	}
	return configs, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
