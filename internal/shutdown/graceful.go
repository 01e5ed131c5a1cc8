package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout 默认停机超时
const DefaultTimeout = 30 * time.Second

// 停机顺序，数字越小越早执行
const (
	OrderStopServer     = 10 // 停止视图服务，不再接受请求
	OrderStopWatcher    = 20 // 停止定时轮询
	OrderFlushFeed      = 30 // 刷新推送缓冲区
	OrderSaveCheckpoint = 40 // 保存轮询进度
	OrderCloseCache     = 50 // 关闭区块缓存
)

// Hook 停机处理函数
type Hook struct {
	Name  string
	Order int
	Func  func(ctx context.Context) error
}

// GracefulShutdown 按顺序执行停机处理的管理器
type GracefulShutdown struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu       sync.Mutex
	hooks    []Hook
	started  bool
	signals  chan os.Signal
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	failures []error
}

// NewGracefulShutdown 创建优雅停机管理器
func NewGracefulShutdown(timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		signals: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, Hook{Name: name, Order: order, Func: fn})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Listen 开始监听 SIGINT/SIGTERM，收到信号后执行停机
func (gs *GracefulShutdown) Listen() {
	gs.mu.Lock()
	if gs.started {
		gs.mu.Unlock()
		return
	}
	gs.started = true
	gs.mu.Unlock()

	signal.Notify(gs.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-gs.signals:
			gs.logger.Infof("收到停机信号: %v", sig)
			gs.Shutdown()
		case <-gs.done:
		}
	}()
}

// Context 停机开始时取消的上下文，长任务应以它为根
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Done 停机完成后关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// Wait 阻塞直到停机完成，返回各处理函数的错误
func (gs *GracefulShutdown) Wait() []error {
	<-gs.done
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.failures
}

// Shutdown 触发停机，重复调用只执行一次
func (gs *GracefulShutdown) Shutdown() {
	gs.once.Do(gs.run)
}

func (gs *GracefulShutdown) run() {
	defer close(gs.done)
	defer signal.Stop(gs.signals)

	gs.logger.Info("开始优雅停机流程...")
	// 先通知所有长任务停止
	gs.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.mu.Lock()
	hooks := make([]Hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()
	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Order < hooks[j].Order })

	var failures []error
	for _, h := range hooks {
		if ctx.Err() != nil {
			gs.logger.Warnf("停机超时，跳过 '%s'", h.Name)
			failures = append(failures, fmt.Errorf("%s: %w", h.Name, ctx.Err()))
			continue
		}
		start := time.Now()
		if err := h.Func(ctx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", h.Name, time.Since(start), err)
			failures = append(failures, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		gs.logger.Infof("停机处理 '%s' 完成 (耗时: %v)", h.Name, time.Since(start))
	}

	gs.mu.Lock()
	gs.failures = failures
	gs.mu.Unlock()

	if len(failures) > 0 {
		gs.logger.Errorf("停机过程中发生 %d 个错误", len(failures))
	}
	gs.logger.Info("优雅停机流程完成")
}

// IsShuttingDown 是否已开始停机
func (gs *GracefulShutdown) IsShuttingDown() bool {
	return gs.ctx.Err() != nil
}

// Hooks 已注册的处理函数名，按执行顺序
func (gs *GracefulShutdown) Hooks() []string {
	gs.mu.Lock()
	hooks := make([]Hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Order < hooks[j].Order })
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = h.Name
	}
	return names
}
