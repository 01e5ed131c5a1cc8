package models

import "time"

// Block 区块数据模型（展示用，非账本权威数据）
type Block struct {
	Hash              string   `json:"hash"`
	Height            int64    `json:"height"`
	Timestamp         int64    `json:"timestamp"` // 秒，UTC
	TxCount           int      `json:"tx_count"`
	Size              int64    `json:"size"`
	Version           int64    `json:"version"`
	MerkleRoot        string   `json:"merkle_root"`
	PreviousBlockHash string   `json:"previous_block_hash"`
	NextBlockHash     string   `json:"next_block_hash,omitempty"`
	Nonce             int64    `json:"nonce"`
	Bits              string   `json:"bits"`
	Difficulty        float64  `json:"difficulty"`
	Chainwork         string   `json:"chainwork,omitempty"`
	Confirmations     int64    `json:"confirmations"`
	Miner             string   `json:"miner,omitempty"`
	Reward            int64    `json:"reward,omitempty"`
	Transactions      []string `json:"transactions,omitempty"` // 区块内交易ID列表
}

// GenesisHeight 创世区块高度
const GenesisHeight = 0

// Time 返回区块时间
func (b *Block) Time() time.Time {
	return time.Unix(b.Timestamp, 0).UTC()
}

// IsGenesis 是否为创世区块
func (b *Block) IsGenesis() bool {
	return b.Height == GenesisHeight
}

// BlockRange 区块范围
type BlockRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Count 范围内区块数量
func (r BlockRange) Count() int64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// BlockReward 区块内按地址聚合的奖励
type BlockReward struct {
	Address          string `json:"address"`
	MasternodeReward int64  `json:"masternode_reward"`
	StakingReward    int64  `json:"staking_reward"`
	Total            int64  `json:"total"`
}

// BlockRewards 区块奖励汇总
type BlockRewards struct {
	BlockHeight int64         `json:"block_height"`
	BlockHash   string        `json:"block_hash"`
	Rewards     []BlockReward `json:"rewards"`
	Total       int64         `json:"total"`
}
