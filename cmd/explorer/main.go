package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bbkexplorer/internal/cache"
	"bbkexplorer/internal/client"
	"bbkexplorer/internal/config"
	"bbkexplorer/internal/logging"
)

var (
	configFile string
	verbose    bool
	noCache    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "explorer",
		Short:         "BBK区块浏览器后端",
		Long:          `Bitcoin Black 区块浏览器：上游索引API客户端、区块缓存、搜索解析、视图服务和新区块推送`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "不使用区块缓存")

	rootCmd.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newSearchCmd(),
		newBlockCmd(),
		newTxCmd(),
		newAddressCmd(),
		newLatestCmd(),
		newCacheCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// env 命令共享的运行环境
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	slog   *logging.StructuredLogger
	cache  *cache.BlockCache
	client *client.Client
}

// setup 加载配置并创建日志器、缓存和API客户端
func setup() (*env, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if cfg.Logging == nil {
		cfg.Logging = logging.DefaultLogConfig()
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("创建日志器失败: %w", err)
	}
	slogger, err := logging.NewStructuredLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("创建结构化日志器失败: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, slog: slogger}
	if !noCache {
		e.cache, err = cache.Open(cfg.Cache, logger)
		if err != nil {
			// 缓存不可用时直接访问上游
			logger.Warnf("打开区块缓存失败，不使用缓存: %v", err)
			e.cache = nil
		}
	}

	e.client, err = client.New(cfg.API, e.cache, logger)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("创建API客户端失败: %w", err)
	}
	e.client.SetStructuredLogger(slogger)
	return e, nil
}

func (e *env) close() {
	if e.cache == nil {
		return
	}
	if err := e.cache.Close(); err != nil {
		e.logger.Warnf("关闭区块缓存失败: %v", err)
	}
}

// printJSON 把结果以缩进JSON写到标准输出
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
