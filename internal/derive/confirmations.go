// Package derive computes display-only fields from normalized records.
// Everything here is a pure function of its inputs; missing data degrades to
// zero values rather than errors.
package derive

import (
	"fmt"

	"bbkexplorer/pkg/models"
)

// ChainTip 当前链高度，Known为false时表示未知
type ChainTip struct {
	Height int64
	Known  bool
}

// KnownTip 构造已知链高度
func KnownTip(height int64) ChainTip {
	return ChainTip{Height: height, Known: true}
}

// Confirmations 已知链高度时按 max(0, 链高-高度+1) 计算，否则沿用API给出的值
func Confirmations(tip ChainTip, height int64, reported int64) int64 {
	if !tip.Known {
		if reported < 0 {
			return 0
		}
		return reported
	}
	c := tip.Height - height + 1
	if c < 0 {
		return 0
	}
	return c
}

// IsTransactionConfirmed 确认数不少于6才算已确认
func IsTransactionConfirmed(confirmations int64) bool {
	return confirmations >= models.ConfirmationThreshold
}

// ConfirmationLabel 未达阈值显示 n/6，否则显示 Confirmed
func ConfirmationLabel(confirmations int64) string {
	if IsTransactionConfirmed(confirmations) {
		return "Confirmed"
	}
	if confirmations < 0 {
		confirmations = 0
	}
	return fmt.Sprintf("%d/%d", confirmations, models.ConfirmationThreshold)
}

// ApplyBlockConfirmations 根据链高度刷新区块确认数
func ApplyBlockConfirmations(b *models.Block, tip ChainTip) {
	b.Confirmations = Confirmations(tip, b.Height, b.Confirmations)
}

// ApplyTransactionConfirmations 根据链高度刷新交易确认数，未打包交易确认数为0
func ApplyTransactionConfirmations(tx *models.Transaction, tip ChainTip) {
	height, ok := tx.Height()
	if !ok {
		if tx.BlockHash == "" {
			tx.Confirmations = 0
		}
		return
	}
	tx.Confirmations = Confirmations(tip, height, tx.Confirmations)
}

// IsBlockConfirmed 区块可以写入缓存的条件：确认数大于0，或已知链高度且区块低于链顶
func IsBlockConfirmed(b models.Block, tip ChainTip) bool {
	if b.Confirmations > 0 {
		return true
	}
	return tip.Known && b.Height < tip.Height
}
