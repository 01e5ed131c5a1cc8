package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bbkexplorer/internal/api"
	"bbkexplorer/internal/config"
	"bbkexplorer/internal/feed"
	"bbkexplorer/internal/progress"
	"bbkexplorer/internal/shutdown"
	"bbkexplorer/internal/watcher"
)

const endpointCheckInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port      int
		noWatcher bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动视图服务器和区块轮询器",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, !noWatcher)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "视图服务端口，0表示使用配置")
	cmd.Flags().BoolVar(&noWatcher, "no-watcher", false, "不启动区块轮询器")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var resetProgress bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "轮询新区块并推送到feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(resetProgress)
		},
	}
	cmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "清空已记录的链顶重新开始")
	return cmd
}

// pipeline 轮询器及其依赖
type pipeline struct {
	output      feed.Output
	checkpoints *progress.Manager
	watcher     *watcher.Watcher
}

func newPipeline(e *env) (*pipeline, error) {
	output, err := feed.NewOutput(e.cfg.Feed, e.logger)
	if err != nil {
		return nil, fmt.Errorf("创建feed输出失败: %w", err)
	}

	statePath := progress.DefaultDBPath
	if e.cfg.Watcher != nil && e.cfg.Watcher.StatePath != "" {
		statePath = e.cfg.Watcher.StatePath
	}
	checkpoints, err := progress.NewManager(statePath, e.logger)
	if err != nil {
		output.Close()
		return nil, fmt.Errorf("打开轮询状态失败: %w", err)
	}

	var invalidator watcher.Invalidator
	if e.cache != nil {
		invalidator = e.cache
	}
	w := watcher.New(e.client, checkpoints, invalidator, output, e.cfg.Watcher, e.logger)
	w.SetStructuredLogger(e.slog)

	return &pipeline{output: output, checkpoints: checkpoints, watcher: w}, nil
}

// register 按 停轮询器 → 刷新feed → 保存状态 的顺序注册停机钩子
func (p *pipeline) register(gs *shutdown.GracefulShutdown) {
	gs.Register("watcher", shutdown.OrderStopWatcher, p.watcher.Stop)
	gs.Register("feed", shutdown.OrderFlushFeed, func(context.Context) error {
		return p.output.Close()
	})
	gs.Register("checkpoint", shutdown.OrderSaveCheckpoint, func(context.Context) error {
		return p.checkpoints.Close()
	})
}

func registerCache(gs *shutdown.GracefulShutdown, e *env) {
	if e.cache == nil {
		return
	}
	gs.Register("cache", shutdown.OrderCloseCache, func(context.Context) error {
		return e.cache.Close()
	})
}

func runServe(port int, withWatcher bool) error {
	e, err := setup()
	if err != nil {
		return err
	}
	if port > 0 {
		e.cfg.Server.Port = port
	}

	gs := shutdown.NewGracefulShutdown(shutdown.DefaultTimeout, e.logger)
	ctx := gs.Context()

	opts := api.Options{Cache: e.cache}
	if withWatcher {
		p, err := newPipeline(e)
		if err != nil {
			e.close()
			return err
		}
		p.register(gs)
		opts.Watcher = p.watcher
		if err := p.watcher.Start(ctx); err != nil {
			registerCache(gs, e)
			gs.Shutdown()
			return fmt.Errorf("启动轮询器失败: %w", err)
		}
	}

	if dsn := os.Getenv(config.EnvPrefix + "_DB_DSN"); dsn != "" {
		dbConfig, err := config.NewDatabaseConfig(dsn, e.logger)
		if err != nil {
			e.logger.Warnf("连接配置数据库失败，不启用配置管理接口: %v", err)
		} else {
			opts.ConfigManager = api.NewConfigManager(dbConfig, e.logger)
			gs.Register("config-db", shutdown.OrderCloseCache, func(context.Context) error {
				return dbConfig.Close()
			})
		}
	}

	registerCache(gs, e)
	server, err := api.NewServer(e.cfg, e.client, opts, e.logger)
	if err != nil {
		gs.Shutdown()
		return fmt.Errorf("创建视图服务器失败: %w", err)
	}
	gs.Register("server", shutdown.OrderStopServer, server.Stop)

	e.client.StartEndpointHealthCheck(ctx, endpointCheckInterval)
	gs.Listen()

	go func() {
		if err := server.Start(); err != nil {
			e.logger.Errorf("视图服务器异常退出: %v", err)
			gs.Shutdown()
		}
	}()

	<-gs.Done()
	return shutdownErr(gs)
}

func runWatch(resetProgress bool) error {
	e, err := setup()
	if err != nil {
		return err
	}

	p, err := newPipeline(e)
	if err != nil {
		e.close()
		return err
	}
	if resetProgress {
		e.logger.Info("重置轮询状态...")
		if err := p.checkpoints.Reset(); err != nil {
			e.logger.Warnf("重置轮询状态失败: %v", err)
		}
	}

	gs := shutdown.NewGracefulShutdown(shutdown.DefaultTimeout, e.logger)
	p.register(gs)
	registerCache(gs, e)

	tip, hash := p.checkpoints.Tip()
	e.logger.Infof("从链顶 %d (%s) 开始轮询", tip, hash)
	if err := p.watcher.Start(gs.Context()); err != nil {
		gs.Shutdown()
		return fmt.Errorf("启动轮询器失败: %w", err)
	}

	gs.Listen()
	<-gs.Done()
	return shutdownErr(gs)
}

func shutdownErr(gs *shutdown.GracefulShutdown) error {
	errs := gs.Wait()
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("停机时有 %d 个步骤失败: %v", len(errs), errs[0])
}
