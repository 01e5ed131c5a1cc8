// Package cache keeps confirmed blocks in a versioned, time-bounded key-value
// store so that repeated lookups by height or hash skip the upstream API.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/metrics"
	"bbkexplorer/pkg/models"
)

const (
	// DefaultPrefix 缓存键命名空间
	DefaultPrefix = "bbkexplorer_block_"
	// Version 条目格式版本，变化后旧条目全部失效
	Version = "1"

	DefaultMaxAge        = 7 * 24 * time.Hour
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = time.Minute
)

// Options 区块缓存配置
type Options struct {
	Prefix        string        `mapstructure:"prefix"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	MaxEntries    int           `mapstructure:"max_entries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Version       string        `mapstructure:"-"`
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		Prefix:        DefaultPrefix,
		MaxAge:        DefaultMaxAge,
		MaxEntries:    DefaultMaxEntries,
		SweepInterval: DefaultSweepInterval,
		Version:       Version,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Prefix == "" {
		o.Prefix = d.Prefix
	}
	if o.MaxAge <= 0 {
		o.MaxAge = d.MaxAge
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = d.MaxEntries
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.Version == "" {
		o.Version = d.Version
	}
	return o
}

// entry 存储格式
type entry struct {
	Block    models.Block `json:"block"`
	CachedAt int64        `json:"cachedAt"` // 毫秒
	Version  string       `json:"version"`
}

// Stats 缓存统计
type Stats struct {
	Blocks     int    `json:"blocks"`
	Keys       int    `json:"keys"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	MaxEntries int    `json:"max_entries"`
	MaxAge     string `json:"max_age"`
}

// BlockCache 已确认区块缓存。每个区块同时以高度和哈希为键存储，容量按区块计。
// 存储层的错误只记录日志，不向调用方传播
type BlockCache struct {
	storage Storage
	opts    Options
	logger  *logrus.Logger
	now     func() time.Time

	mu        sync.Mutex
	lastSweep time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New 创建区块缓存
func New(storage Storage, opts Options, logger *logrus.Logger) *BlockCache {
	return &BlockCache{
		storage: storage,
		opts:    opts.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock 替换时间来源
func (c *BlockCache) SetClock(now func() time.Time) {
	c.now = now
}

// 高度和哈希各占一个子命名空间
const (
	heightNamespace = "h:"
	hashNamespace   = "x:"
)

// key 64位十六进制串按哈希处理，其余纯数字按高度处理（去掉前导零）
func (c *BlockCache) key(identifier string) string {
	id := strings.TrimSpace(identifier)
	if isBlockHash(id) {
		return c.hashKey(id)
	}
	if h, err := strconv.ParseInt(id, 10, 64); err == nil && h >= 0 {
		return c.heightKey(h)
	}
	return c.hashKey(id)
}

func isBlockHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (c *BlockCache) heightKey(height int64) string {
	return c.opts.Prefix + heightNamespace + strconv.FormatInt(height, 10)
}

func (c *BlockCache) hashKey(hash string) string {
	return c.opts.Prefix + hashNamespace + strings.ToLower(hash)
}

func (c *BlockCache) blockKeys(b models.Block) []string {
	keys := []string{c.heightKey(b.Height)}
	if b.Hash != "" {
		keys = append(keys, c.hashKey(b.Hash))
	}
	return keys
}

// matches 条目中的区块必须与请求的键一致
func (c *BlockCache) matches(b models.Block, key string) bool {
	for _, k := range c.blockKeys(b) {
		if k == key {
			return true
		}
	}
	return false
}

// Get 按高度或哈希读取区块。版本不符、过期或损坏的条目视为未命中并被删除
func (c *BlockCache) Get(identifier string) (models.Block, bool) {
	key := c.key(identifier)
	e, ok := c.read(key)
	if !ok {
		c.miss()
		return models.Block{}, false
	}
	if !c.matches(e.Block, key) {
		c.logger.Debugf("缓存条目与键不符，删除: %s", key)
		c.remove(key)
		c.miss()
		return models.Block{}, false
	}

	if c.expired(e) {
		c.remove(append(c.blockKeys(e.Block), key)...)
		metrics.ObserveCacheEviction("expired", 1)
		c.miss()
		return models.Block{}, false
	}

	c.hits.Inc()
	metrics.ObserveCacheLookup(true)
	return e.Block, true
}

func (c *BlockCache) miss() {
	c.misses.Inc()
	metrics.ObserveCacheLookup(false)
}

// read 读取并校验单个条目，无法使用的条目会被删除
func (c *BlockCache) read(key string) (entry, bool) {
	data, ok, err := c.storage.Get(key)
	if err != nil {
		c.logger.WithError(err).Debugf("读取缓存失败: %s", key)
		return entry{}, false
	}
	if !ok {
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Debugf("缓存条目已损坏，删除: %s", key)
		c.remove(key)
		return entry{}, false
	}
	if e.Version != c.opts.Version {
		c.logger.Debugf("缓存条目版本不符(%s != %s)，删除: %s", e.Version, c.opts.Version, key)
		c.remove(key)
		return entry{}, false
	}
	return e, true
}

func (c *BlockCache) expired(e entry) bool {
	age := c.now().Sub(time.UnixMilli(e.CachedAt))
	return age > c.opts.MaxAge
}

func (c *BlockCache) remove(keys ...string) {
	if err := c.storage.Delete(keys...); err != nil {
		c.logger.WithError(err).Debug("删除缓存条目失败")
	}
}

// Put 写入区块，只缓存已确认的区块。返回是否写入
func (c *BlockCache) Put(b models.Block, tip derive.ChainTip) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := c.write(b, tip)
	if stored {
		c.sweep(false)
	}
	return stored
}

// PutMany 批量写入，最后统一执行一次淘汰。返回写入数量
func (c *BlockCache) PutMany(blocks []models.Block, tip derive.ChainTip) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := 0
	for _, b := range blocks {
		if c.write(b, tip) {
			stored++
		}
	}
	if stored > 0 {
		c.sweep(false)
	}
	return stored
}

func (c *BlockCache) write(b models.Block, tip derive.ChainTip) bool {
	if b.Hash == "" || !derive.IsBlockConfirmed(b, tip) {
		return false
	}

	data, err := json.Marshal(entry{Block: b, CachedAt: c.now().UnixMilli(), Version: c.opts.Version})
	if err != nil {
		c.logger.WithError(err).Debugf("序列化区块 %d 失败", b.Height)
		return false
	}
	keys := c.blockKeys(b)
	for i, key := range keys {
		if err := c.storage.Set(key, data); err != nil {
			c.logger.WithError(err).Debugf("写入缓存失败: %s", key)
			// 不留下只写了一半的区块
			if i > 0 {
				c.remove(keys[:i]...)
			}
			return false
		}
	}
	return true
}

// Invalidate 删除指定高度或哈希的区块，两个键一并删除
func (c *BlockCache) Invalidate(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.key(identifier)
	keys := []string{key}
	if e, ok := c.read(key); ok {
		keys = append(keys, c.blockKeys(e.Block)...)
	}
	c.remove(keys...)
}

// Evict 立即执行一次完整淘汰
func (c *BlockCache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(true)
}

// Clear 删除本命名空间下的全部键，返回删除的键数
func (c *BlockCache) Clear() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.storage.Keys(c.opts.Prefix)
	if err != nil {
		return 0, err
	}
	if err := c.storage.Delete(keys...); err != nil {
		return 0, err
	}
	metrics.SetCacheEntries(0)
	c.logger.Infof("已清空区块缓存，共 %d 个键", len(keys))
	return len(keys), nil
}

// Stats 返回缓存统计
func (c *BlockCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		MaxEntries: c.opts.MaxEntries,
		MaxAge:     c.opts.MaxAge.String(),
	}
	groups, keys := c.scan()
	stats.Blocks = len(groups)
	stats.Keys = keys
	return stats
}

// group 同一区块的全部键
type group struct {
	keys     []string
	cachedAt int64
	height   int64
}

// scan 遍历命名空间，删除无效和过期条目，按区块哈希分组
func (c *BlockCache) scan() (map[string]*group, int) {
	keys, err := c.storage.Keys(c.opts.Prefix)
	if err != nil {
		c.logger.WithError(err).Debug("枚举缓存键失败")
		return nil, 0
	}

	groups := make(map[string]*group)
	var expired []string
	live := 0
	for _, key := range keys {
		e, ok := c.read(key)
		if !ok {
			continue
		}
		if c.expired(e) {
			expired = append(expired, key)
			continue
		}
		live++
		id := strings.ToLower(e.Block.Hash)
		g, ok := groups[id]
		if !ok {
			g = &group{height: e.Block.Height}
			groups[id] = g
		}
		g.keys = append(g.keys, key)
		if e.CachedAt > g.cachedAt {
			g.cachedAt = e.CachedAt
		}
	}
	if len(expired) > 0 {
		c.remove(expired...)
		metrics.ObserveCacheEviction("expired", len(expired))
	}
	return groups, live
}

// sweep 先删除过期条目，区块数仍超过容量时按写入时间从旧到新删除。
// 非强制模式下，只在键数超过容量或距上次清理超过间隔时执行
func (c *BlockCache) sweep(force bool) {
	if !force {
		keys, err := c.storage.Keys(c.opts.Prefix)
		if err != nil {
			c.logger.WithError(err).Debug("枚举缓存键失败")
			return
		}
		if len(keys) <= 2*c.opts.MaxEntries && c.now().Sub(c.lastSweep) < c.opts.SweepInterval {
			return
		}
	}
	c.lastSweep = c.now()

	groups, _ := c.scan()
	overflow := len(groups) - c.opts.MaxEntries
	if overflow > 0 {
		ordered := make([]*group, 0, len(groups))
		for _, g := range groups {
			ordered = append(ordered, g)
		}
		// 同一时刻写入的区块，高度低的先淘汰
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].cachedAt != ordered[j].cachedAt {
				return ordered[i].cachedAt < ordered[j].cachedAt
			}
			return ordered[i].height < ordered[j].height
		})

		var victims []string
		for _, g := range ordered[:overflow] {
			victims = append(victims, g.keys...)
		}
		c.remove(victims...)
		metrics.ObserveCacheEviction("capacity", overflow)
		c.logger.Debugf("缓存超出容量，淘汰 %d 个区块", overflow)
	}

	remaining := len(groups)
	if overflow > 0 {
		remaining = c.opts.MaxEntries
	}
	metrics.SetCacheEntries(remaining)
}

// Close 关闭底层存储
func (c *BlockCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.Close()
}
