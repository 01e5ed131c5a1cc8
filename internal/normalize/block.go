package normalize

import (
	"github.com/spf13/cast"

	"bbkexplorer/pkg/models"
)

// Candidate field names, canonical first.
var (
	blockHashFields       = []string{"hash", "blockHash", "blockhash"}
	blockHeightFields     = []string{"height", "blockHeight", "blockheight"}
	blockTimeFields       = []string{"timestamp", "time", "blocktime"}
	blockTxCountFields    = []string{"txCount", "tx_count", "nTx", "txcount"}
	blockMerkleFields     = []string{"merkleRoot", "merkleroot", "merkle_root"}
	blockPrevFields       = []string{"previousBlockHash", "previousblockhash", "prevHash", "previous_block_hash"}
	blockNextFields       = []string{"nextBlockHash", "nextblockhash", "nextHash", "next_block_hash"}
	blockTxListFields     = []string{"transactions", "tx", "txs"}
	blockConfirmFields    = []string{"confirmations"}
	blockChainworkFields  = []string{"chainwork", "chainWork"}
	blockDifficultyFields = []string{"difficulty"}
)

// Block 归一化区块
func Block(raw Raw) models.Block {
	b := models.Block{
		Hash:              String(raw, blockHashFields...),
		Height:            Int64(raw, blockHeightFields...),
		Timestamp:         TimestampField(raw, blockTimeFields...),
		Size:              Int64(raw, "size"),
		Version:           Int64(raw, "version"),
		MerkleRoot:        String(raw, blockMerkleFields...),
		PreviousBlockHash: String(raw, blockPrevFields...),
		NextBlockHash:     String(raw, blockNextFields...),
		Nonce:             Int64(raw, "nonce"),
		Bits:              String(raw, "bits"),
		Difficulty:        Float64(raw, blockDifficultyFields...),
		Chainwork:         String(raw, blockChainworkFields...),
		Confirmations:     Int64(raw, blockConfirmFields...),
		Miner:             String(raw, "miner"),
		Reward:            Int64(raw, "reward"),
		Transactions:      txids(Array(raw, blockTxListFields...)),
	}

	if Has(raw, blockTxCountFields...) {
		b.TxCount = int(Int64(raw, blockTxCountFields...))
	} else {
		b.TxCount = len(b.Transactions)
	}
	return b
}

// Blocks 归一化区块列表
func Blocks(items []Raw) []models.Block {
	out := make([]models.Block, 0, len(items))
	for _, item := range items {
		out = append(out, Block(item))
	}
	return out
}

// txids 交易列表可能是ID字符串，也可能是完整交易对象
func txids(items []interface{}) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		default:
			if m, err := cast.ToStringMapE(v); err == nil {
				if id := String(m, txidFields...); id != "" {
					out = append(out, id)
				}
			}
		}
	}
	return out
}
