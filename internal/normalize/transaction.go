package normalize

import (
	"bbkexplorer/pkg/models"
)

// Candidate field names, canonical first.
var (
	txidFields          = []string{"txid", "hash", "id"}
	txBlockHashFields   = []string{"blockHash", "blockhash", "block_hash"}
	txBlockHeightFields = []string{"blockHeight", "blockheight", "height", "block_height"}
	txTimeFields        = []string{"timestamp", "time", "blocktime"}
	txFeeRateFields     = []string{"feeRate", "fee_rate", "feerate"}
	txInputFields       = []string{"inputs", "vin"}
	txOutputFields      = []string{"outputs", "vout"}

	// Amount candidates: explicit base-unit names first, then names subject to
	// unit normalization.
	valueBaseUnitFields = []string{"valueSat", "valueSats", "satoshis", "value_sat"}
	valueFields         = []string{"value", "amount"}

	inputVoutFields    = []string{"vout", "outputIndex", "n"}
	outputIndexFields  = []string{"n", "index", "vout"}
	addressFields      = []string{"address", "addr"}
	spentByFields      = []string{"spentBy", "spentTxId", "spent_by", "spenttxid"}
	sequenceFields     = []string{"sequence"}
	scriptSigFields    = []string{"scriptSig", "script_sig"}
	scriptPubKeyFields = []string{"scriptPubKey", "script_pub_key"}
)

// Transaction 归一化详细交易（含输入输出明细）。分类与奖励标记由derive包计算
func Transaction(raw Raw) models.Transaction {
	tx := models.Transaction{
		Txid:          String(raw, txidFields...),
		BlockHash:     String(raw, txBlockHashFields...),
		BlockHeight:   OptionalInt64(raw, txBlockHeightFields...),
		Timestamp:     TimestampField(raw, txTimeFields...),
		Size:          Int64(raw, "size", "vsize"),
		Confirmations: Int64(raw, "confirmations"),
		FeeRate:       Float64(raw, txFeeRateFields...),
	}
	if Has(raw, "fee") {
		tx.Fee = AmountField(raw, []string{"feeSat", "feeSats"}, "fee")
	}

	for _, in := range Objects(raw, txInputFields...) {
		tx.Inputs = append(tx.Inputs, Input(in))
	}
	for i, out := range Objects(raw, txOutputFields...) {
		o := Output(out)
		if !Has(out, outputIndexFields...) {
			o.N = int64(i)
		}
		tx.Outputs = append(tx.Outputs, o)
	}
	if tx.Inputs == nil {
		tx.Inputs = []models.TxInput{}
	}
	if tx.Outputs == nil {
		tx.Outputs = []models.TxOutput{}
	}
	return tx
}

// Input 归一化交易输入
func Input(raw Raw) models.TxInput {
	in := models.TxInput{
		Txid:      String(raw, "txid"),
		Vout:      Int64(raw, inputVoutFields...),
		Address:   inputAddress(raw),
		Value:     inputValue(raw),
		ScriptSig: scriptHex(raw, scriptSigFields...),
		Sequence:  Int64(raw, sequenceFields...),
	}

	// coinbase字段在不同索引器中可能是脚本十六进制串或布尔标记
	if v, ok := First(raw, "coinbase", "isCoinbase", "is_coinbase"); ok {
		switch c := v.(type) {
		case string:
			in.Coinbase = c
			if c == "" {
				in.Coinbase = "true"
			}
		case bool:
			if c {
				in.Coinbase = "true"
			}
		}
	}
	return in
}

// Output 归一化交易输出
func Output(raw Raw) models.TxOutput {
	return models.TxOutput{
		N:            Int64(raw, outputIndexFields...),
		Address:      outputAddress(raw),
		Value:        AmountField(raw, valueBaseUnitFields, valueFields...),
		ScriptPubKey: scriptHex(raw, scriptPubKeyFields...),
		Spent:        Bool(raw, "spent", "isSpent"),
		SpentBy:      String(raw, spentByFields...),
	}
}

// MempoolTransaction 归一化内存池交易
func MempoolTransaction(raw Raw) models.MempoolTransaction {
	return models.MempoolTransaction{
		Txid:      String(raw, txidFields...),
		Size:      Int64(raw, "size", "vsize"),
		Fee:       Int64(raw, "fee"),
		FeeRate:   Float64(raw, txFeeRateFields...),
		Timestamp: TimestampField(raw, txTimeFields...),
	}
}

// inputValue 输入金额缺失时取被花费输出(prevout)的金额
func inputValue(raw Raw) int64 {
	if Has(raw, valueBaseUnitFields...) || Has(raw, valueFields...) {
		return AmountField(raw, valueBaseUnitFields, valueFields...)
	}
	if prev := Object(raw, "prevout"); prev != nil {
		return AmountField(prev, valueBaseUnitFields, valueFields...)
	}
	return 0
}

func inputAddress(raw Raw) string {
	if addr := String(raw, addressFields...); addr != "" {
		return addr
	}
	if prev := Object(raw, "prevout"); prev != nil {
		return outputAddress(prev)
	}
	return ""
}

// outputAddress 地址可能直接给出，也可能在scriptPubKey里
func outputAddress(raw Raw) string {
	if addr := String(raw, addressFields...); addr != "" {
		return addr
	}
	if addrs := Array(raw, "addresses"); len(addrs) > 0 {
		if s, ok := addrs[0].(string); ok {
			return s
		}
	}
	script := Object(raw, scriptPubKeyFields...)
	if script == nil {
		return ""
	}
	if addr := String(script, "address"); addr != "" {
		return addr
	}
	if addrs := Array(script, "addresses"); len(addrs) > 0 {
		if s, ok := addrs[0].(string); ok {
			return s
		}
	}
	return ""
}

// scriptHex 脚本字段可能是十六进制串或带hex/asm的对象
func scriptHex(raw Raw, names ...string) string {
	v, ok := First(raw, names...)
	if !ok {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	if m, isMap := v.(map[string]interface{}); isMap {
		return String(m, "hex", "asm")
	}
	return ""
}
