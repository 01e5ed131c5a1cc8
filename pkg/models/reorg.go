package models

import (
	"fmt"
	"time"
)

// ReorgNotification 链重组通知
type ReorgNotification struct {
	Type             string    `json:"type"`               // 固定为 "reorg"
	DetectedHeight   int64     `json:"detected_height"`    // 检测时已记录的链顶高度
	RollbackToHeight int64     `json:"rollback_to_height"` // 仍一致的最高区块
	OldBlockHash     string    `json:"old_block_hash"`
	NewBlockHash     string    `json:"new_block_hash"`
	DetectionTime    time.Time `json:"detection_time"`
	AffectedBlocks   int64     `json:"affected_blocks"`
	Message          string    `json:"message"`
	Severity         string    `json:"severity"` // minor|major|critical
}

// NewReorgNotification 构造重组通知，新旧哈希取自分叉高度 rollbackTo+1
func NewReorgNotification(detected, rollbackTo int64, oldHash, newHash string, at time.Time) *ReorgNotification {
	r := &ReorgNotification{
		Type:             "reorg",
		DetectedHeight:   detected,
		RollbackToHeight: rollbackTo,
		OldBlockHash:     oldHash,
		NewBlockHash:     newHash,
		DetectionTime:    at.UTC(),
		AffectedBlocks:   detected - rollbackTo,
	}
	if r.AffectedBlocks < 1 {
		r.AffectedBlocks = 1
	}
	r.Message = fmt.Sprintf("block %d replaced, rolled back to %d", detected, rollbackTo)
	r.DetermineSeverity()
	return r
}

// ToKafkaMessage 转换为Kafka消息格式
func (r *ReorgNotification) ToKafkaMessage() map[string]interface{} {
	return map[string]interface{}{
		"type":               r.Type,
		"detected_height":    r.DetectedHeight,
		"rollback_to_height": r.RollbackToHeight,
		"old_block_hash":     r.OldBlockHash,
		"new_block_hash":     r.NewBlockHash,
		"detection_time":     r.DetectionTime.Unix(),
		"affected_blocks":    r.AffectedBlocks,
		"message":            r.Message,
		"severity":           r.Severity,
	}
}

// DetermineSeverity 根据影响范围确定严重程度
func (r *ReorgNotification) DetermineSeverity() {
	switch {
	case r.AffectedBlocks <= 1:
		r.Severity = "minor"
	case r.AffectedBlocks <= 5:
		r.Severity = "major"
	default:
		r.Severity = "critical"
	}
}
