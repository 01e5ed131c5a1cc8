package cache

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/config"
)

const (
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// OptionsFromConfig 把配置转为缓存选项，无效的时长回退到默认值
func OptionsFromConfig(cfg *config.CacheConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.Prefix != "" {
		opts.Prefix = cfg.Prefix
	}
	if cfg.MaxEntries > 0 {
		opts.MaxEntries = cfg.MaxEntries
	}
	opts.MaxAge = config.Duration(cfg.MaxAge, DefaultMaxAge)
	opts.SweepInterval = config.Duration(cfg.SweepInterval, DefaultSweepInterval)
	return opts
}

// Open 按配置创建区块缓存
func Open(cfg *config.CacheConfig, logger *logrus.Logger) (*BlockCache, error) {
	backend := BackendBolt
	path := DefaultDBPath
	if cfg != nil {
		if cfg.Backend != "" {
			backend = strings.ToLower(cfg.Backend)
		}
		if cfg.Path != "" {
			path = cfg.Path
		}
	}

	var storage Storage
	switch backend {
	case BackendBolt:
		bs, err := NewBoltStorage(path, logger)
		if err != nil {
			return nil, err
		}
		storage = bs
	case BackendMemory:
		storage = NewMemoryStorage(0)
	default:
		return nil, fmt.Errorf("不支持的缓存后端: %s", backend)
	}

	logger.Debugf("区块缓存后端: %s", backend)
	return New(storage, OptionsFromConfig(cfg), logger), nil
}
