package cache

import (
	"sort"
	"strings"
	"sync"

	"bbkexplorer/internal/errors"
)

// Storage 字符串键值存储，BlockCache 的持久化后端
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(keys ...string) error
	// Keys 返回以 prefix 开头的全部键
	Keys(prefix string) ([]string, error)
	Close() error
}

// MemoryStorage 进程内存储。quota大于0时限制值的总字节数，超出时写入失败
type MemoryStorage struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int
	used  int
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage(quota int) *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte), quota: quota}
}

func (m *MemoryStorage) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStorage) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used - len(m.data[key]) + len(value)
	if m.quota > 0 && used > m.quota {
		return errors.NewExplorerError(errors.ErrorTypeCache, errors.SeverityLow,
			errors.ErrCacheStorage.Code, "存储空间不足").
			WithContext("key", key).
			WithContext("quota", m.quota)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.used = used
	return nil
}

func (m *MemoryStorage) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.used -= len(m.data[key])
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStorage) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Len 当前键数量
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
