package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/metrics"
	"bbkexplorer/pkg/models"
)

// AsyncKafkaOutput 异步Kafka输出器，发送结果在后台统计
type AsyncKafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string
	producer sarama.AsyncProducer
	wg       sync.WaitGroup

	mu         sync.RWMutex
	sentCount  int64
	errorCount int64
}

// NewAsyncKafkaOutput 创建异步Kafka输出器
func NewAsyncKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*AsyncKafkaOutput, error) {
	logger.Infof("初始化异步Kafka输出器，brokers: %v", brokers)

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 3 * time.Second
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Compression = sarama.CompressionSnappy
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建异步Kafka生产者失败: %w", err)
	}

	logger.Info("异步Kafka生产者已创建")
	return newAsyncKafkaOutput(producer, topics, logger), nil
}

func newAsyncKafkaOutput(producer sarama.AsyncProducer, topics map[string]string, logger *logrus.Logger) *AsyncKafkaOutput {
	k := &AsyncKafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}

	// 两个通道都在生产者关闭后结束
	k.wg.Add(2)
	go func() {
		defer k.wg.Done()
		for msg := range producer.Successes() {
			k.mu.Lock()
			k.sentCount++
			k.mu.Unlock()
			metrics.ObserveFeedPublish(FormatKafkaAsync, nil)
			k.logger.Debugf("消息已发送到 topic %s, partition %d, offset %d", msg.Topic, msg.Partition, msg.Offset)
		}
	}()
	go func() {
		defer k.wg.Done()
		for perr := range producer.Errors() {
			k.mu.Lock()
			k.errorCount++
			k.mu.Unlock()
			metrics.ObserveFeedPublish(FormatKafkaAsync, perr.Err)
			k.logger.Errorf("Kafka发送失败: topic=%s, error=%v", perr.Msg.Topic, perr.Err)
		}
	}()
	return k
}

func (k *AsyncKafkaOutput) send(topic, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}
	k.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(jsonData),
	}
	return nil
}

// WriteBlock 写入区块数据
func (k *AsyncKafkaOutput) WriteBlock(block *models.Block) error {
	if block == nil {
		return nil
	}
	return k.send(topicFor(k.topics, TopicBlocks), strconv.FormatInt(block.Height, 10), block)
}

// WriteReorgNotification 写入重组通知
func (k *AsyncKafkaOutput) WriteReorgNotification(reorg *models.ReorgNotification) error {
	if reorg == nil {
		return nil
	}
	return k.send(topicFor(k.topics, TopicReorgs), strconv.FormatInt(reorg.DetectedHeight, 10), reorg.ToKafkaMessage())
}

// GetStats 已发送与失败的消息数
func (k *AsyncKafkaOutput) GetStats() (int64, int64) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.sentCount, k.errorCount
}

// Close 关闭生产者并等待缓冲的消息发送完成
func (k *AsyncKafkaOutput) Close() error {
	err := k.producer.Close()
	k.wg.Wait()

	sent, failed := k.GetStats()
	k.logger.Infof("异步Kafka生产者已关闭，总计发送: %d，错误: %d", sent, failed)
	if err != nil {
		return fmt.Errorf("关闭Kafka生产者失败: %w", err)
	}
	return nil
}
