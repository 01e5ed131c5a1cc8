package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	assert.NotNil(t, config)
	assert.NotNil(t, config.API)
	assert.NotNil(t, config.Cache)
	assert.NotNil(t, config.Server)
	assert.NotNil(t, config.Watcher)
	assert.NotNil(t, config.Feed)
	assert.NotNil(t, config.Logging)

	// API配置
	require.Len(t, config.API.Endpoints, 1)
	assert.Equal(t, "primary", config.API.Endpoints[0].Name)
	assert.Equal(t, 6, config.API.BatchConcurrency)
	assert.Equal(t, 3, config.API.RetryLimit)

	// 缓存配置
	assert.Equal(t, "bolt", config.Cache.Backend)
	assert.Equal(t, "bbkexplorer_block_", config.Cache.Prefix)
	assert.Equal(t, "168h", config.Cache.MaxAge)
	assert.Equal(t, 1000, config.Cache.MaxEntries)

	// 定时刷新
	assert.Equal(t, "15s", config.Watcher.BlockInterval)
	assert.Equal(t, "60s", config.Watcher.HealthInterval)

	assert.Equal(t, "none", config.Feed.Format)
	assert.Equal(t, "info", config.Logging.Level)

	assert.NoError(t, config.Validate())
}

func TestEndpointConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint *EndpointConfig
		valid    bool
	}{
		{
			name:     "valid endpoint",
			endpoint: &EndpointConfig{Name: "primary", URL: "https://api.example.org/api", RateLimit: 10, Priority: 1},
			valid:    true,
		},
		{
			name:     "empty name",
			endpoint: &EndpointConfig{URL: "https://api.example.org/api"},
			valid:    false,
		},
		{
			name:     "empty URL",
			endpoint: &EndpointConfig{Name: "primary"},
			valid:    false,
		},
		{
			name:     "non http URL",
			endpoint: &EndpointConfig{Name: "primary", URL: "ftp://api.example.org"},
			valid:    false,
		},
		{
			name:     "negative rate limit",
			endpoint: &EndpointConfig{Name: "primary", URL: "http://localhost:3001", RateLimit: -1},
			valid:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.endpoint.Validate()
			assert.Equal(t, tt.valid, err == nil, err)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"no endpoints", func(c *Config) { c.API.Endpoints = nil }, false},
		{"zero batch concurrency", func(c *Config) { c.API.BatchConcurrency = 0 }, false},
		{"bad timeout", func(c *Config) { c.API.Timeout = "soon" }, false},
		{"bad cache age", func(c *Config) { c.Cache.MaxAge = "7 days" }, false},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }, false},
		{"zero cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }, false},
		{"bad watcher interval", func(c *Config) { c.Watcher.BlockInterval = "fast" }, false},
		{"kafka without brokers", func(c *Config) {
			c.Feed.Format = "kafka"
			c.Feed.Kafka.Brokers = nil
		}, false},
		{"unknown feed format", func(c *Config) { c.Feed.Format = "csv" }, false},
		{"json feed", func(c *Config) { c.Feed.Format = "json" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := GetDefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			assert.Equal(t, tt.valid, err == nil, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  endpoints:
    - name: main
      url: https://explorer.example.org/api
      rate_limit: 5
      priority: 1
    - name: backup
      url: https://backup.example.org/api
      priority: 2
  timeout: 5s
cache:
  backend: memory
  max_entries: 50
watcher:
  latest_count: 10
feed:
  format: json
  directory: /tmp/feed
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	require.Len(t, config.API.Endpoints, 2)
	assert.Equal(t, "backup", config.API.Endpoints[1].Name)
	assert.Equal(t, "5s", config.API.Timeout)
	assert.Equal(t, 6, config.API.BatchConcurrency) // 未配置的键保持默认值
	assert.Equal(t, "memory", config.Cache.Backend)
	assert.Equal(t, 50, config.Cache.MaxEntries)
	assert.Equal(t, "168h", config.Cache.MaxAge)
	assert.Equal(t, 10, config.Watcher.LatestCount)
	assert.Equal(t, "json", config.Feed.Format)
}

func TestLoadConfigFromFile_EnvOverride(t *testing.T) {
	t.Setenv("EXPLORER_API_BASE_URL", "https://env.example.org/api")
	t.Setenv("EXPLORER_CACHE_MAX_ENTRIES", "25")
	t.Setenv("EXPLORER_LOGGING_LEVEL", "debug")

	config, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Len(t, config.API.Endpoints, 1)
	assert.Equal(t, "https://env.example.org/api", config.API.Endpoints[0].URL)
	assert.Equal(t, 25, config.Cache.MaxEntries)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfigFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  batch_concurrency: 0\n"), 0644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestApplyValue(t *testing.T) {
	config := GetDefaultConfig()

	assert.True(t, applyValue(config, "api", "retry_limit", "5"))
	assert.Equal(t, 5, config.API.RetryLimit)

	assert.True(t, applyValue(config, "api", "retry_limit", "many"))
	assert.Equal(t, 5, config.API.RetryLimit)

	assert.True(t, applyValue(config, "server", "graphql", "FALSE"))
	assert.False(t, config.Server.GraphQL)

	assert.True(t, applyValue(config, "feed", "kafka_brokers", `["k1:9092","k2:9092"]`))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, config.Feed.Kafka.Brokers)

	assert.True(t, applyValue(config, "server", "cors_origins", "https://a.org,https://b.org"))
	assert.Len(t, config.Server.CORSOrigins, 2)

	assert.False(t, applyValue(config, "collector", "workers", "10"))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 15*time.Second, Duration("15s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("bogus", time.Minute))
	assert.Equal(t, time.Minute, Duration("-5s", time.Minute))
}
