package models

// ConfirmationThreshold 交易被视为已确认所需的确认数
const ConfirmationThreshold = 6

// Transaction 交易数据模型
type Transaction struct {
	Txid          string     `json:"txid"`
	BlockHash     string     `json:"block_hash,omitempty"`
	BlockHeight   *int64     `json:"block_height,omitempty"`
	Timestamp     int64      `json:"timestamp"`
	Size          int64      `json:"size"`
	Fee           int64      `json:"fee"`
	FeeRate       float64    `json:"fee_rate"` // 基础单位/字节
	Confirmations int64      `json:"confirmations"`
	Inputs        []TxInput  `json:"inputs"`
	Outputs       []TxOutput `json:"outputs"`
	TotalInput    int64      `json:"total_input"`
	TotalOutput   int64      `json:"total_output"`
	IsCoinbase    bool       `json:"is_coinbase"`
	IsStaking     bool       `json:"is_staking"`
}

// Confirmed 确认数达到阈值才视为已确认，否则为待定
func (t *Transaction) Confirmed() bool {
	return t.Confirmations >= ConfirmationThreshold
}

// Height 返回所在区块高度，未打包时返回false
func (t *Transaction) Height() (int64, bool) {
	if t.BlockHeight == nil {
		return 0, false
	}
	return *t.BlockHeight, true
}

// TxInput 交易输入
type TxInput struct {
	Txid      string `json:"txid,omitempty"` // coinbase输入为空
	Vout      int64  `json:"vout"`
	Address   string `json:"address,omitempty"`
	Value     int64  `json:"value"`
	Coinbase  string `json:"coinbase,omitempty"`
	ScriptSig string `json:"script_sig,omitempty"`
	Sequence  int64  `json:"sequence"`
}

// IsCoinbase 是否为coinbase输入（无前序输出引用）
func (in TxInput) IsCoinbase() bool {
	return in.Coinbase != ""
}

// TxOutput 交易输出
type TxOutput struct {
	N                  int64  `json:"n"`
	Address            string `json:"address,omitempty"` // 纯数据输出没有地址
	Value              int64  `json:"value"`
	ScriptPubKey       string `json:"script_pub_key,omitempty"`
	Spent              bool   `json:"spent"`
	SpentBy            string `json:"spent_by,omitempty"`
	IsRewardOutput     bool   `json:"is_reward_output,omitempty"`
	IsMasternodeReward bool   `json:"is_masternode_reward,omitempty"`
	IsStakingReward    bool   `json:"is_staking_reward,omitempty"`
}

// MempoolTransaction 内存池交易
type MempoolTransaction struct {
	Txid      string  `json:"txid"`
	Size      int64   `json:"size"`
	Fee       int64   `json:"fee"`
	FeeRate   float64 `json:"fee_rate"`
	Timestamp int64   `json:"timestamp"`
}
