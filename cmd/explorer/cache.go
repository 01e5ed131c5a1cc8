package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bbkexplorer/internal/cache"
	"bbkexplorer/internal/config"
	"bbkexplorer/internal/logging"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "管理本地区块缓存",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "查看缓存统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(c *cache.BlockCache) error {
				return printJSON(c.Stats())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "清空缓存中的全部区块",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(c *cache.BlockCache) error {
				removed, err := c.Clear()
				if err != nil {
					return fmt.Errorf("清空缓存失败: %w", err)
				}
				fmt.Printf("已删除 %d 个缓存键\n", removed)
				return nil
			})
		},
	})
	return cmd
}

// withCache 只打开缓存，不需要上游端点
func withCache(fn func(c *cache.BlockCache) error) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logging.DefaultLogConfig()
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("创建日志器失败: %w", err)
	}

	c, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("打开区块缓存失败: %w", err)
	}
	defer c.Close()
	return fn(c)
}
