package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLogBuffer 默认保留的日志条数
const DefaultLogBuffer = 1000

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogManager 环形缓冲区，保存最近的日志
type LogManager struct {
	mu    sync.RWMutex
	buf   []LogEntry
	next  int
	full  bool
	limit int
}

// NewLogManager 创建日志管理器
func NewLogManager(limit int) *LogManager {
	if limit <= 0 {
		limit = DefaultLogBuffer
	}
	return &LogManager{buf: make([]LogEntry, limit), limit: limit}
}

// AddLog 添加日志，缓冲区满时覆盖最旧的一条
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	var fields map[string]interface{}
	if len(entry.Data) > 0 {
		fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.buf[lm.next] = LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	}
	lm.next = (lm.next + 1) % lm.limit
	if lm.next == 0 {
		lm.full = true
	}
}

// snapshot 按时间顺序返回全部日志，调用方需持有读锁
func (lm *LogManager) snapshot() []LogEntry {
	if !lm.full {
		out := make([]LogEntry, lm.next)
		copy(out, lm.buf[:lm.next])
		return out
	}
	out := make([]LogEntry, 0, lm.limit)
	out = append(out, lm.buf[lm.next:]...)
	return append(out, lm.buf[:lm.next]...)
}

// GetLogs 分页获取日志，最新的在前。level 为空时不过滤
func (lm *LogManager) GetLogs(level string, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	all := lm.snapshot()
	lm.mu.RUnlock()

	filtered := make([]LogEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if level == "" || all[i].Level == level {
			filtered = append(filtered, all[i])
		}
	}

	total := len(filtered)
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []LogEntry{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.buf = make([]LogEntry, lm.limit)
	lm.next = 0
	lm.full = false
}

// LogHook 把日志同步写入 LogManager
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
