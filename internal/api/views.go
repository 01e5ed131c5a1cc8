package api

import (
	"time"

	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/format"
	"bbkexplorer/pkg/models"
)

// BlockView 区块及展示字段
type BlockView struct {
	models.Block
	Age       string `json:"age"`
	Date      string `json:"date"`
	SizeLabel string `json:"size_label"`
	Confirmed bool   `json:"confirmed"`
}

// TransactionView 交易及展示字段
type TransactionView struct {
	models.Transaction
	Type        string `json:"type"` // coinbase|staking|regular
	Status      string `json:"status"`
	Age         string `json:"age,omitempty"`
	FeeBBK      string `json:"fee_bbk"`
	TotalOutBBK string `json:"total_output_bbk"`
}

// AddressView 地址及展示字段
type AddressView struct {
	models.Address
	BalanceBBK  string `json:"balance_bbk"`
	ReceivedBBK string `json:"received_bbk"`
	SentBBK     string `json:"sent_bbk"`
}

func newBlockView(b models.Block, tip derive.ChainTip, now time.Time) BlockView {
	v := BlockView{
		Block:     b,
		SizeLabel: format.FormatBytes(b.Size),
		Confirmed: derive.IsBlockConfirmed(b, tip),
	}
	if b.Timestamp > 0 {
		v.Age = format.FormatTimeAgo(b.Timestamp, now)
		v.Date = format.FormatDate(b.Timestamp)
	}
	return v
}

func newBlockViews(blocks []models.Block, tip derive.ChainTip, now time.Time) []BlockView {
	out := make([]BlockView, len(blocks))
	for i, b := range blocks {
		out[i] = newBlockView(b, tip, now)
	}
	return out
}

func transactionType(tx models.Transaction) string {
	switch {
	case tx.IsCoinbase:
		return "coinbase"
	case tx.IsStaking:
		return "staking"
	default:
		return "regular"
	}
}

func newTransactionView(tx models.Transaction, now time.Time) TransactionView {
	v := TransactionView{
		Transaction: tx,
		Type:        transactionType(tx),
		Status:      derive.ConfirmationLabel(tx.Confirmations),
		FeeBBK:      format.FormatBBK(tx.Fee),
		TotalOutBBK: format.FormatBBK(tx.TotalOutput),
	}
	if tx.Timestamp > 0 {
		v.Age = format.FormatTimeAgo(tx.Timestamp, now)
	}
	return v
}

func newTransactionViews(txs []models.Transaction, now time.Time) []TransactionView {
	out := make([]TransactionView, len(txs))
	for i, tx := range txs {
		out[i] = newTransactionView(tx, now)
	}
	return out
}

func newAddressView(a models.Address) AddressView {
	return AddressView{
		Address:     a,
		BalanceBBK:  format.FormatBBK(a.Balance),
		ReceivedBBK: format.FormatBBK(a.Received),
		SentBBK:     format.FormatBBK(a.Sent),
	}
}
