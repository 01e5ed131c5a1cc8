// Package watcher polls the upstream indexer on a schedule: it follows the
// chain tip, publishes newly seen blocks to the feed, detects reorganizations
// and keeps the last known health, network and mempool snapshots for the
// view server.
package watcher

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"bbkexplorer/internal/config"
	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/feed"
	"bbkexplorer/internal/logging"
	"bbkexplorer/internal/metrics"
	"bbkexplorer/pkg/models"
)

// 任务名称
const (
	JobBlocks  = "blocks"
	JobHealth  = "health"
	JobNetwork = "network"
	JobMempool = "mempool"
)

const (
	// DefaultLatestCount 每次轮询拉取的最新区块数
	DefaultLatestCount = 20
	// MaxBackfill 链顶跳跃过大时最多补拉的区块数
	MaxBackfill = 100
	// MempoolPageSize 内存池快照大小
	MempoolPageSize = 50
)

// Source 上游数据来源，*client.Client 实现该接口
type Source interface {
	GetLatestBlocks(ctx context.Context, n int) ([]models.Block, error)
	GetBlock(ctx context.Context, id string) (models.Block, error)
	GetHealth(ctx context.Context) models.Health
	GetNetworkStats(ctx context.Context) (models.NetworkStats, error)
	GetMempool(ctx context.Context, page, pageSize int) (models.Page[models.MempoolTransaction], error)
}

// Checkpoints 已观察区块的持久化记录，*progress.Manager 实现该接口
type Checkpoints interface {
	Tip() (int64, string)
	HashAt(height int64) (string, bool)
	RecordBlock(height int64, hash string) error
	Rollback(height int64) error
}

// Invalidator 重组时删除缓存中的旧区块
type Invalidator interface {
	Invalidate(identifier string)
}

// Intervals 各任务的轮询间隔，0 表示不调度该任务
type Intervals struct {
	Blocks  time.Duration
	Health  time.Duration
	Network time.Duration
	Mempool time.Duration
}

// IntervalsFromConfig 解析配置中的轮询间隔
func IntervalsFromConfig(cfg *config.WatcherConfig) Intervals {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Watcher
	}
	return Intervals{
		Blocks:  config.Duration(cfg.BlockInterval, 15*time.Second),
		Health:  config.Duration(cfg.HealthInterval, 60*time.Second),
		Network: config.Duration(cfg.NetworkInterval, 60*time.Second),
		Mempool: config.Duration(cfg.MempoolInterval, 10*time.Second),
	}
}

// Status 最近一次轮询的汇总状态
type Status struct {
	Health       models.Health `json:"health"`
	HealthPolled bool          `json:"health_polled"`
	TipHeight    int64         `json:"tip_height"`
	TipHash      string        `json:"tip_hash"`
	AvgBlockTime float64       `json:"avg_block_time"`
	LastPoll     string        `json:"last_poll,omitempty"`
	BlocksSeen   int64         `json:"blocks_seen"`
	Reorgs       int64         `json:"reorgs"`
}

// Watcher 定时轮询器
type Watcher struct {
	source      Source
	checkpoints Checkpoints
	cache       Invalidator
	output      feed.Output
	logger      *logrus.Logger
	blockLog    *logging.StructuredLogger
	metrics     *metrics.Watcher
	tracker     *derive.BlockTimeTracker
	intervals   Intervals
	latestCount int
	now         func() time.Time

	running map[string]*atomic.Bool
	jobMu   sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc

	blocksSeen *atomic.Int64
	reorgs     *atomic.Int64

	mu           sync.RWMutex
	health       models.Health
	healthPolled bool
	network      *models.NetworkStats
	mempool      *models.Page[models.MempoolTransaction]
	latest       []models.Block
	lastPoll     time.Time
}

// New 创建轮询器。cache 和 output 可以为 nil
func New(source Source, checkpoints Checkpoints, cache Invalidator, output feed.Output, cfg *config.WatcherConfig, logger *logrus.Logger) *Watcher {
	if output == nil {
		output = feed.NopOutput{}
	}
	latest := DefaultLatestCount
	if cfg != nil && cfg.LatestCount > 0 {
		latest = cfg.LatestCount
	}

	w := &Watcher{
		source:      source,
		checkpoints: checkpoints,
		cache:       cache,
		output:      output,
		logger:      logger,
		metrics:     metrics.NewWatcher(),
		tracker:     derive.NewBlockTimeTracker(),
		intervals:   IntervalsFromConfig(cfg),
		latestCount: latest,
		now:         time.Now,
		running:     make(map[string]*atomic.Bool),
		blocksSeen:  atomic.NewInt64(0),
		reorgs:      atomic.NewInt64(0),
	}
	for _, job := range []string{JobBlocks, JobHealth, JobNetwork, JobMempool} {
		w.running[job] = atomic.NewBool(false)
	}
	return w
}

// SetClock 替换时间来源
func (w *Watcher) SetClock(now func() time.Time) {
	w.now = now
}

// SetStructuredLogger 为新区块事件启用结构化日志
func (w *Watcher) SetStructuredLogger(sl *logging.StructuredLogger) {
	w.blockLog = sl
}

// Start 启动定时任务，区块与健康检查立即执行一次
func (w *Watcher) Start(parent context.Context) error {
	if w.cron != nil {
		return fmt.Errorf("轮询器已启动")
	}
	w.ctx, w.cancel = context.WithCancel(parent)

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) error
	}{
		{JobBlocks, w.intervals.Blocks, w.PollBlocks},
		{JobHealth, w.intervals.Health, w.PollHealth},
		{JobNetwork, w.intervals.Network, w.PollNetwork},
		{JobMempool, w.intervals.Mempool, w.PollMempool},
	}

	c := cron.New()
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		name, run := job.name, job.run
		spec := "@every " + job.interval.String()
		if err := c.AddFunc(spec, func() { w.runJob(name, run) }); err != nil {
			w.cancel()
			return fmt.Errorf("注册任务 %s 失败: %w", name, err)
		}
		w.logger.Infof("轮询任务 %s 间隔 %s", name, job.interval)
	}
	w.cron = c
	c.Start()

	for _, job := range jobs[:2] {
		go w.runJob(job.name, job.run)
	}
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	w.cron.Stop()
	w.jobMu.Lock()
	w.stopped = true
	w.jobMu.Unlock()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info("轮询器已停止")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待轮询任务结束超时: %w", ctx.Err())
	}
}

// runJob 上一次执行未结束时跳过本次
func (w *Watcher) runJob(name string, run func(ctx context.Context) error) {
	w.jobMu.Lock()
	if w.stopped {
		w.jobMu.Unlock()
		return
	}
	w.wg.Add(1)
	w.jobMu.Unlock()
	defer w.wg.Done()

	flag := w.running[name]
	if !flag.CAS(false, true) {
		w.metrics.ObserveSkip(name)
		w.logger.Debugf("任务 %s 仍在执行，跳过本次", name)
		return
	}
	defer flag.Store(false)

	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	err := run(ctx)
	w.metrics.ObservePoll(name, err, started)
	if err != nil {
		w.logger.Warnf("轮询任务 %s 失败: %v", name, err)
	}
}

// PollBlocks 拉取最新区块，检测重组并推送新区块
func (w *Watcher) PollBlocks(ctx context.Context) error {
	blocks, err := w.fetchLatest(ctx)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}

	reorged, err := w.detectReorg(ctx, blocks)
	if err != nil {
		return err
	}
	if reorged {
		// 缓存中的旧区块已删除，重新拉取替换后的区块
		if blocks, err = w.fetchLatest(ctx); err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}
	}

	storedTip, _ := w.checkpoints.Tip()
	fresh := make([]models.Block, 0, len(blocks))

	// 链顶跳跃超过一批时补拉中间的区块
	if storedTip >= 0 && blocks[0].Height > storedTip+1 {
		from := storedTip + 1
		if blocks[0].Height-from > MaxBackfill {
			w.logger.Warnf("链顶跳跃 %d 个区块，只补拉最近 %d 个", blocks[0].Height-from, MaxBackfill)
			from = blocks[0].Height - MaxBackfill
		}
		for h := from; h < blocks[0].Height; h++ {
			b, err := w.source.GetBlock(ctx, strconv.FormatInt(h, 10))
			if err != nil {
				w.logger.Warnf("补拉区块 %d 失败: %v", h, err)
				continue
			}
			fresh = append(fresh, b)
		}
	}
	for _, b := range blocks {
		if b.Height > storedTip {
			fresh = append(fresh, b)
		}
	}

	for _, b := range fresh {
		if err := w.checkpoints.RecordBlock(b.Height, b.Hash); err != nil {
			return fmt.Errorf("记录区块 %d 失败: %w", b.Height, err)
		}
		w.tracker.Observe(b)
		w.blocksSeen.Inc()
		w.publishBlock(b)
	}

	w.metrics.ObserveNewBlocks(len(fresh))
	if avg := w.tracker.Average(); avg > 0 {
		w.metrics.SetBlockTime(avg)
	}
	return nil
}

// fetchLatest 返回按高度升序的最新区块
func (w *Watcher) fetchLatest(ctx context.Context) ([]models.Block, error) {
	blocks, err := w.source.GetLatestBlocks(ctx, w.latestCount)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块失败: %w", err)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Height < blocks[j].Height })

	w.mu.Lock()
	w.latest = descending(blocks)
	w.lastPoll = w.now()
	w.mu.Unlock()
	return blocks, nil
}

func (w *Watcher) publishBlock(b models.Block) {
	if w.blockLog != nil {
		logging.NewBlockLogger(w.blockLog, b.Height, b.Hash).Info("new block", "tx_count", b.TxCount)
	} else {
		w.logger.Infof("新区块 %d %s (%d 笔交易)", b.Height, b.Hash, b.TxCount)
	}
	if err := w.output.WriteBlock(&b); err != nil {
		w.logger.Errorf("推送区块 %d 失败: %v", b.Height, err)
	}
}

// detectReorg 比较已记录的哈希和前块哈希，找到分叉点后回滚进度并通知
func (w *Watcher) detectReorg(ctx context.Context, ascending []models.Block) (bool, error) {
	storedTip, storedHash := w.checkpoints.Tip()
	if storedTip < 0 {
		return false, nil
	}

	// 已记录的链顶不在本批范围内时单独核对
	if storedTip < ascending[0].Height-1 && storedHash != "" {
		b, err := w.source.GetBlock(ctx, strconv.FormatInt(storedTip, 10))
		if err != nil {
			return false, nil
		}
		if b.Hash == storedHash {
			return false, nil
		}
		return true, w.handleReorg(storedTip, storedTip-1, storedHash, b.Hash)
	}

	for _, b := range ascending {
		if b.Height <= storedTip {
			if recorded, ok := w.checkpoints.HashAt(b.Height); ok && recorded != b.Hash {
				return true, w.handleReorg(storedTip, b.Height-1, recorded, b.Hash)
			}
		}
		if b.Height-1 <= storedTip && b.PreviousBlockHash != "" {
			if recorded, ok := w.checkpoints.HashAt(b.Height - 1); ok && recorded != b.PreviousBlockHash {
				return true, w.handleReorg(storedTip, b.Height-2, recorded, b.PreviousBlockHash)
			}
		}
	}
	return false, nil
}

func (w *Watcher) handleReorg(storedTip, rollbackTo int64, oldHash, newHash string) error {
	if w.cache != nil {
		for h := rollbackTo + 1; h <= storedTip; h++ {
			if recorded, ok := w.checkpoints.HashAt(h); ok {
				w.cache.Invalidate(recorded)
			}
			w.cache.Invalidate(strconv.FormatInt(h, 10))
		}
	}
	if err := w.checkpoints.Rollback(rollbackTo); err != nil {
		return err
	}

	reorg := models.NewReorgNotification(storedTip, rollbackTo, oldHash, newHash, w.now())
	w.reorgs.Inc()
	w.metrics.ObserveReorg()
	w.logger.Warnf("检测到链重组: 高度 %d 的区块 %s 被 %s 替换，影响 %d 个区块 (%s)",
		rollbackTo+1, oldHash, newHash, reorg.AffectedBlocks, reorg.Severity)

	if err := w.output.WriteReorgNotification(reorg); err != nil {
		w.logger.Errorf("推送重组通知失败: %v", err)
	}
	return nil
}

// PollHealth 检查上游健康状态
func (w *Watcher) PollHealth(ctx context.Context) error {
	health := w.source.GetHealth(ctx)

	w.mu.Lock()
	changed := !w.healthPolled || w.health.Online != health.Online
	w.health = health
	w.healthPolled = true
	w.mu.Unlock()

	if changed {
		if health.Online {
			w.logger.Infof("上游API在线: %s", health.Message)
		} else {
			w.logger.Warnf("上游API不可用: %s", health.Message)
		}
	}
	return nil
}

// PollNetwork 刷新网络统计快照
func (w *Watcher) PollNetwork(ctx context.Context) error {
	stats, err := w.source.GetNetworkStats(ctx)
	if err != nil {
		return fmt.Errorf("获取网络统计失败: %w", err)
	}
	if avg := w.tracker.Average(); avg > 0 && stats.AvgBlockTime == 0 {
		stats.AvgBlockTime = avg
	}

	w.mu.Lock()
	w.network = &stats
	w.mu.Unlock()
	return nil
}

// PollMempool 刷新内存池快照
func (w *Watcher) PollMempool(ctx context.Context) error {
	page, err := w.source.GetMempool(ctx, 1, MempoolPageSize)
	if err != nil {
		return fmt.Errorf("获取内存池失败: %w", err)
	}

	w.mu.Lock()
	w.mempool = &page
	w.mu.Unlock()
	return nil
}

// Status 返回最近一次轮询的状态
func (w *Watcher) Status() Status {
	tipHeight, tipHash := w.checkpoints.Tip()

	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		Health:       w.health,
		HealthPolled: w.healthPolled,
		TipHeight:    tipHeight,
		TipHash:      tipHash,
		AvgBlockTime: w.tracker.Average(),
		BlocksSeen:   w.blocksSeen.Load(),
		Reorgs:       w.reorgs.Load(),
	}
	if !w.lastPoll.IsZero() {
		s.LastPoll = w.lastPoll.UTC().Format(time.RFC3339)
	}
	return s
}

// Health 最近一次健康检查结果，尚未检查时 ok 为 false
func (w *Watcher) Health() (models.Health, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.health, w.healthPolled
}

// NetworkStats 最近的网络统计快照
func (w *Watcher) NetworkStats() (models.NetworkStats, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.network == nil {
		return models.NetworkStats{}, false
	}
	return *w.network, true
}

// Mempool 最近的内存池快照
func (w *Watcher) Mempool() (models.Page[models.MempoolTransaction], bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.mempool == nil {
		return models.Page[models.MempoolTransaction]{}, false
	}
	return *w.mempool, true
}

// LatestBlocks 最近一次轮询得到的区块，按高度降序
func (w *Watcher) LatestBlocks() []models.Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.Block, len(w.latest))
	copy(out, w.latest)
	return out
}

// AverageBlockTime 平均出块间隔（秒）
func (w *Watcher) AverageBlockTime() float64 {
	return w.tracker.Average()
}

func descending(ascending []models.Block) []models.Block {
	out := make([]models.Block, len(ascending))
	for i, b := range ascending {
		out[len(ascending)-1-i] = b
	}
	return out
}
