// Package feed publishes newly observed blocks and reorg notifications to a
// sink: nothing, JSON lines files or Kafka.
package feed

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/config"
	"bbkexplorer/pkg/models"
)

const (
	FormatNone       = "none"
	FormatJSON       = "json"
	FormatKafka      = "kafka"
	FormatKafkaAsync = "kafka_async"

	// TopicBlocks 区块主题的配置键
	TopicBlocks = "blocks"
	// TopicReorgs 重组通知主题的配置键
	TopicReorgs = "reorg_notifications"
)

// 默认topic映射
var defaultTopics = map[string]string{
	TopicBlocks: "bbk_blocks",
	TopicReorgs: "bbk_reorg_notifications",
}

// Output 输出接口
type Output interface {
	WriteBlock(block *models.Block) error
	WriteReorgNotification(reorg *models.ReorgNotification) error
	Close() error
}

// NewOutput 按配置创建输出器
func NewOutput(cfg *config.FeedConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		return NopOutput{}, nil
	}

	switch strings.ToLower(cfg.Format) {
	case "", FormatNone:
		return NopOutput{}, nil

	case FormatJSON:
		return NewFileOutput(cfg.Directory, logger)

	case FormatKafka, FormatKafkaAsync:
		brokers := []string{"localhost:9092"}
		if env := os.Getenv("KAFKA_BROKERS"); env != "" {
			brokers = strings.Split(env, ",")
		}
		topics := make(map[string]string, len(defaultTopics))
		for k, v := range defaultTopics {
			topics[k] = v
		}
		if cfg.Kafka != nil {
			if len(cfg.Kafka.Brokers) > 0 {
				brokers = cfg.Kafka.Brokers
			}
			for k, v := range cfg.Kafka.Topics {
				topics[k] = v
			}
		}

		if strings.ToLower(cfg.Format) == FormatKafkaAsync {
			return NewAsyncKafkaOutput(brokers, topics, logger)
		}
		return NewKafkaOutput(brokers, topics, logger)

	default:
		return nil, fmt.Errorf("不支持的推送格式: %s", cfg.Format)
	}
}

// NopOutput 丢弃所有事件
type NopOutput struct{}

func (NopOutput) WriteBlock(*models.Block) error { return nil }
func (NopOutput) WriteReorgNotification(*models.ReorgNotification) error { return nil }
func (NopOutput) Close() error { return nil }

func topicFor(topics map[string]string, key string) string {
	if t, ok := topics[key]; ok && t != "" {
		return t
	}
	return defaultTopics[key]
}
