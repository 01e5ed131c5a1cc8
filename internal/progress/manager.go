package progress

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/watcher.db"

	// DefaultWindow 保留用于重组检测的最近区块数
	DefaultWindow = 100

	// 存储桶名称
	ProgressBucket = "progress"
	ChainBucket    = "chain"

	checkpointKey = "checkpoint"
)

// Checkpoint 轮询进度
type Checkpoint struct {
	TipHeight      int64     `json:"tip_height"`
	TipHash        string    `json:"tip_hash"`
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`
	BlocksSeen     uint64    `json:"blocks_seen"`
	Reorgs         uint64    `json:"reorgs"`
}

// Manager 进度管理器，记录已观察到的链顶和最近区块哈希
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	window int64
	now    func() time.Time

	mu    sync.RWMutex
	state Checkpoint
}

// NewManager 创建进度管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开进度数据库失败: %w", err)
	}

	m := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		window: DefaultWindow,
		now:    time.Now,
		state:  Checkpoint{TipHeight: -1},
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ProgressBucket, ChainBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	if err := m.load(); err != nil {
		logger.Warnf("加载轮询进度失败，从头开始: %v", err)
		m.state = Checkpoint{TipHeight: -1}
	}

	logger.Infof("进度管理器已初始化，数据库路径: %s，链顶: %d", dbPath, m.state.TipHeight)
	return m, nil
}

// SetClock 替换时间来源
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetWindow 设置保留的最近区块数
func (m *Manager) SetWindow(n int64) {
	if n > 0 {
		m.window = n
	}
}

func heightKey(height int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(height))
	return key
}

func (m *Manager) load() error {
	return m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(ProgressBucket)).Get([]byte(checkpointKey))
		if data == nil {
			return nil
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return err
		}
		m.state = cp
		return nil
	})
}

func saveCheckpoint(tx *bolt.Tx, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(ProgressBucket)).Put([]byte(checkpointKey), data)
}

// Tip 返回已记录的链顶，未记录时高度为 -1
func (m *Manager) Tip() (int64, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TipHeight, m.state.TipHash
}

// HashAt 返回记录的某高度区块哈希
func (m *Manager) HashAt(height int64) (string, bool) {
	if height < 0 {
		return "", false
	}
	var hash string
	_ = m.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(ChainBucket)).Get(heightKey(height)); v != nil {
			hash = string(v)
		}
		return nil
	})
	return hash, hash != ""
}

// RecordBlock 记录新观察到的区块，超出窗口的旧记录被清理
func (m *Manager) RecordBlock(height int64, hash string) error {
	if height < 0 || hash == "" {
		return fmt.Errorf("无效的区块记录: height=%d hash=%q", height, hash)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	next := m.state
	if next.StartTime.IsZero() {
		next.StartTime = now
	}
	next.LastUpdateTime = now
	next.BlocksSeen++
	if height >= next.TipHeight {
		next.TipHeight = height
		next.TipHash = hash
	}

	err := m.db.Update(func(tx *bolt.Tx) error {
		chain := tx.Bucket([]byte(ChainBucket))
		if err := chain.Put(heightKey(height), []byte(hash)); err != nil {
			return fmt.Errorf("保存区块哈希失败: %w", err)
		}

		floor := next.TipHeight - m.window
		if floor > 0 {
			c := chain.Cursor()
			limit := heightKey(floor)
			for k, _ := c.First(); k != nil && string(k) < string(limit); k, _ = c.First() {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return saveCheckpoint(tx, next)
	})
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

// Rollback 丢弃高于 height 的记录，链顶回到 height
func (m *Manager) Rollback(height int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state
	next.Reorgs++
	next.LastUpdateTime = m.now()

	err := m.db.Update(func(tx *bolt.Tx) error {
		chain := tx.Bucket([]byte(ChainBucket))
		c := chain.Cursor()
		for k, _ := c.Seek(heightKey(height + 1)); k != nil; k, _ = c.Seek(heightKey(height + 1)) {
			if err := c.Delete(); err != nil {
				return err
			}
		}

		next.TipHeight = height
		next.TipHash = ""
		if height >= 0 {
			if v := chain.Get(heightKey(height)); v != nil {
				next.TipHash = string(v)
			}
		}
		return saveCheckpoint(tx, next)
	})
	if err != nil {
		return fmt.Errorf("回滚轮询进度失败: %w", err)
	}

	m.logger.Warnf("轮询进度回滚到高度 %d", height)
	m.state = next
	return nil
}

// GetProgress 获取进度副本
func (m *Manager) GetProgress() Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Reset 清空进度
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ProgressBucket, ChainBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("重置轮询进度失败: %w", err)
	}
	m.state = Checkpoint{TipHeight: -1}
	return nil
}

// GetDBPath 获取数据库路径
func (m *Manager) GetDBPath() string {
	return m.dbPath
}

// GetStats 获取统计信息
func (m *Manager) GetStats() map[string]interface{} {
	cp := m.GetProgress()

	stats := map[string]interface{}{
		"tip_height":  cp.TipHeight,
		"tip_hash":    cp.TipHash,
		"blocks_seen": cp.BlocksSeen,
		"reorgs":      cp.Reorgs,
	}
	if !cp.StartTime.IsZero() {
		stats["start_time"] = cp.StartTime.UTC().Format(time.RFC3339)
		stats["last_update_time"] = cp.LastUpdateTime.UTC().Format(time.RFC3339)
		stats["running_duration"] = m.now().Sub(cp.StartTime).String()
	}
	return stats
}

// Close 关闭进度管理器
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Info("关闭进度管理器")
		return m.db.Close()
	}
	return nil
}
