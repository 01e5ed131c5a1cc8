package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath 默认缓存数据库路径
	DefaultDBPath = "./data/cache.db"

	// BlocksBucket 区块缓存存储桶
	BlocksBucket = "blocks"
)

// BoltStorage 基于BoltDB的持久化存储，进程重启后缓存仍然有效
type BoltStorage struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
}

// NewBoltStorage 打开或创建缓存数据库
func NewBoltStorage(dbPath string, logger *logrus.Logger) (*BoltStorage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开缓存数据库失败: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BlocksBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("创建缓存存储桶失败: %w", err)
	}

	logger.Infof("区块缓存数据库已打开: %s", dbPath)
	return &BoltStorage{db: db, logger: logger, dbPath: dbPath}, nil
}

func (s *BoltStorage) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BlocksBucket)).Get([]byte(key))
		if data != nil {
			// 事务结束后data不再有效
			out = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *BoltStorage) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BlocksBucket)).Put([]byte(key), value)
	})
}

func (s *BoltStorage) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BlocksBucket))
		for _, key := range keys {
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("删除缓存键 %s 失败: %w", key, err)
			}
		}
		return nil
	})
}

func (s *BoltStorage) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(BlocksBucket)).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Path 数据库文件路径
func (s *BoltStorage) Path() string {
	return s.dbPath
}

func (s *BoltStorage) Close() error {
	if s.db != nil {
		s.logger.Info("关闭区块缓存数据库")
		return s.db.Close()
	}
	return nil
}
