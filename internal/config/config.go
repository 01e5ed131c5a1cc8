package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"bbkexplorer/internal/logging"
)

// EnvPrefix 环境变量前缀，如 EXPLORER_API_TIMEOUT
const EnvPrefix = "EXPLORER"

// Config 主配置
type Config struct {
	API     *APIConfig         `mapstructure:"api"`
	Cache   *CacheConfig       `mapstructure:"cache"`
	Server  *ServerConfig      `mapstructure:"server"`
	Watcher *WatcherConfig     `mapstructure:"watcher"`
	Feed    *FeedConfig        `mapstructure:"feed"`
	Logging *logging.LogConfig `mapstructure:"logging"`
}

// EndpointConfig 上游索引API端点
type EndpointConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	RateLimit int    `mapstructure:"rate_limit"` // 每秒请求数，0表示不限
	Priority  int    `mapstructure:"priority"`   // 越小越优先
}

// APIConfig 上游API配置
type APIConfig struct {
	Endpoints        []*EndpointConfig `mapstructure:"endpoints"`
	Timeout          string            `mapstructure:"timeout"`
	RetryLimit       int               `mapstructure:"retry_limit"`
	BatchConcurrency int               `mapstructure:"batch_concurrency"`
	UserAgent        string            `mapstructure:"user_agent"`
}

// CacheConfig 区块缓存配置
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // bolt|memory
	Path          string `mapstructure:"path"`
	Prefix        string `mapstructure:"prefix"`
	MaxAge        string `mapstructure:"max_age"`
	MaxEntries    int    `mapstructure:"max_entries"`
	SweepInterval string `mapstructure:"sweep_interval"`
}

// ServerConfig 视图服务配置
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	GraphQL     bool     `mapstructure:"graphql"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	LogBuffer   int      `mapstructure:"log_buffer"`
}

// WatcherConfig 定时刷新配置
type WatcherConfig struct {
	BlockInterval   string `mapstructure:"block_interval"`
	HealthInterval  string `mapstructure:"health_interval"`
	NetworkInterval string `mapstructure:"network_interval"`
	MempoolInterval string `mapstructure:"mempool_interval"`
	LatestCount     int    `mapstructure:"latest_count"`
	StatePath       string `mapstructure:"state_path"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// FeedConfig 新区块推送配置
type FeedConfig struct {
	Format    string       `mapstructure:"format"` // none|json|kafka
	Directory string       `mapstructure:"directory"`
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 设置了数据库DSN时优先从数据库读取
	if dbDSN := os.Getenv(EnvPrefix + "_DB_DSN"); dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, config.Validate()
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从YAML文件加载配置，文件不存在时使用默认值。环境变量优先于文件
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	config := GetDefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 单端点可以直接用 EXPLORER_API_BASE_URL 指定
	if baseURL := v.GetString("api.base_url"); baseURL != "" {
		config.API.Endpoints = []*EndpointConfig{{Name: "primary", URL: baseURL, Priority: 1}}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults 标量键需要默认值，环境变量覆盖才会生效
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.retry_limit", d.API.RetryLimit)
	v.SetDefault("api.batch_concurrency", d.API.BatchConcurrency)
	v.SetDefault("api.user_agent", d.API.UserAgent)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.prefix", d.Cache.Prefix)
	v.SetDefault("cache.max_age", d.Cache.MaxAge)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.sweep_interval", d.Cache.SweepInterval)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.graphql", d.Server.GraphQL)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.log_buffer", d.Server.LogBuffer)
	v.SetDefault("watcher.block_interval", d.Watcher.BlockInterval)
	v.SetDefault("watcher.health_interval", d.Watcher.HealthInterval)
	v.SetDefault("watcher.network_interval", d.Watcher.NetworkInterval)
	v.SetDefault("watcher.mempool_interval", d.Watcher.MempoolInterval)
	v.SetDefault("watcher.latest_count", d.Watcher.LatestCount)
	v.SetDefault("watcher.state_path", d.Watcher.StatePath)
	v.SetDefault("feed.format", d.Feed.Format)
	v.SetDefault("feed.directory", d.Feed.Directory)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			Endpoints: []*EndpointConfig{
				{
					Name:      "primary",
					URL:       "http://localhost:3001/api",
					RateLimit: 20,
					Priority:  1,
				},
			},
			Timeout:          "10s",
			RetryLimit:       3,
			BatchConcurrency: 6,
			UserAgent:        "bbkexplorer/1.0",
		},
		Cache: &CacheConfig{
			Backend:       "bolt",
			Path:          "./data/cache.db",
			Prefix:        "bbkexplorer_block_",
			MaxAge:        "168h",
			MaxEntries:    1000,
			SweepInterval: "1m",
		},
		Server: &ServerConfig{
			Port:        8080,
			GraphQL:     true,
			CORSOrigins: []string{"*"},
			LogBuffer:   1000,
		},
		Watcher: &WatcherConfig{
			BlockInterval:   "15s",
			HealthInterval:  "60s",
			NetworkInterval: "60s",
			MempoolInterval: "10s",
			LatestCount:     20,
			StatePath:       "./data/watcher.db",
		},
		Feed: &FeedConfig{
			Format:    "none",
			Directory: "./outputs",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"blocks":              "bbk_blocks",
					"reorg_notifications": "bbk_reorg_notifications",
				},
			},
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.API == nil || len(c.API.Endpoints) == 0 {
		return fmt.Errorf("至少需要配置一个API端点")
	}
	for i, ep := range c.API.Endpoints {
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("API端点[%d]: %w", i, err)
		}
	}
	if c.API.BatchConcurrency <= 0 {
		return fmt.Errorf("batch_concurrency必须大于0")
	}
	if c.API.RetryLimit < 0 {
		return fmt.Errorf("retry_limit不能为负数")
	}

	durations := map[string]string{
		"api.timeout": c.API.Timeout,
	}
	if c.Cache != nil {
		durations["cache.max_age"] = c.Cache.MaxAge
		durations["cache.sweep_interval"] = c.Cache.SweepInterval
		switch c.Cache.Backend {
		case "bolt", "memory":
		default:
			return fmt.Errorf("不支持的缓存后端: %s", c.Cache.Backend)
		}
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache.max_entries必须大于0")
		}
	}
	if c.Watcher != nil {
		durations["watcher.block_interval"] = c.Watcher.BlockInterval
		durations["watcher.health_interval"] = c.Watcher.HealthInterval
		durations["watcher.network_interval"] = c.Watcher.NetworkInterval
		durations["watcher.mempool_interval"] = c.Watcher.MempoolInterval
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s 不是有效的时间间隔: %s", key, value)
		}
	}

	if c.Feed != nil {
		switch c.Feed.Format {
		case "none", "", "json":
		case "kafka", "kafka_async":
			if c.Feed.Kafka == nil || len(c.Feed.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka推送需要配置brokers")
			}
		default:
			return fmt.Errorf("不支持的推送格式: %s", c.Feed.Format)
		}
	}
	return nil
}

// Validate 校验端点配置
func (e *EndpointConfig) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("端点名称不能为空")
	}
	if e.URL == "" {
		return fmt.Errorf("端点 %s 的URL不能为空", e.Name)
	}
	if !strings.HasPrefix(e.URL, "http://") && !strings.HasPrefix(e.URL, "https://") {
		return fmt.Errorf("端点 %s 的URL必须是http(s): %s", e.Name, e.URL)
	}
	if e.RateLimit < 0 {
		return fmt.Errorf("端点 %s 的rate_limit不能为负数", e.Name)
	}
	return nil
}

// Duration 解析时间间隔，空值或无效值返回fallback
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
