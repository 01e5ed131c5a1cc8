package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/metrics"
	"bbkexplorer/pkg/models"
)

// DefaultDirectory 默认输出目录
const DefaultDirectory = "./outputs"

// FileOutput JSON lines 文件输出，按UTC日期切换文件
type FileOutput struct {
	outputDir string
	logger    *logrus.Logger
	now       func() time.Time

	mu    sync.Mutex
	files map[string]*dailyFile
}

type dailyFile struct {
	day  string
	file *os.File
}

// NewFileOutput 创建文件输出器
func NewFileOutput(outputPath string, logger *logrus.Logger) (*FileOutput, error) {
	if outputPath == "" {
		outputPath = DefaultDirectory
	}
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	logger.Infof("区块推送写入目录 %s", outputPath)

	return &FileOutput{
		outputDir: outputPath,
		logger:    logger,
		now:       time.Now,
		files:     make(map[string]*dailyFile),
	}, nil
}

// SetClock 替换时间来源
func (o *FileOutput) SetClock(now func() time.Time) {
	o.now = now
}

// WriteBlock 写入区块数据
func (o *FileOutput) WriteBlock(block *models.Block) error {
	if block == nil {
		return nil
	}
	err := o.writeLine("blocks", block)
	metrics.ObserveFeedPublish(FormatJSON, err)
	return err
}

// WriteReorgNotification 写入重组通知
func (o *FileOutput) WriteReorgNotification(reorg *models.ReorgNotification) error {
	if reorg == nil {
		return nil
	}
	err := o.writeLine("reorg_notifications", reorg)
	metrics.ObserveFeedPublish(FormatJSON, err)
	return err
}

func (o *FileOutput) writeLine(kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化%s数据失败: %w", kind, err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := o.fileFor(kind)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("写入%s文件失败: %w", kind, err)
	}
	// 强制刷新到磁盘
	if err := f.Sync(); err != nil {
		return fmt.Errorf("刷新%s文件失败: %w", kind, err)
	}
	return nil
}

// fileFor 返回当天的文件，日期变化时关闭旧文件
func (o *FileOutput) fileFor(kind string) (*os.File, error) {
	day := o.now().UTC().Format("20060102")
	if cur, ok := o.files[kind]; ok {
		if cur.day == day {
			return cur.file, nil
		}
		if err := cur.file.Close(); err != nil {
			o.logger.Warnf("关闭文件 %s 失败: %v", cur.file.Name(), err)
		}
		delete(o.files, kind)
	}

	name := filepath.Join(o.outputDir, fmt.Sprintf("%s_%s.jsonl", kind, day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("创建文件 %s 失败: %w", name, err)
	}
	o.files[kind] = &dailyFile{day: day, file: f}
	return f, nil
}

// Close 关闭所有文件
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for kind, df := range o.files {
		if err := df.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(o.files, kind)
	}
	return firstErr
}
