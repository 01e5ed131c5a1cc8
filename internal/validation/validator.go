package validation

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"

	"bbkexplorer/internal/errors"
	"bbkexplorer/pkg/models"
)

// MaxBlockSize 区块大小上限，超过只给出警告
const MaxBlockSize = 32 * 1024 * 1024

// Validator 数据验证器。索引器数据是尽力而为的，问题只记录为警告
type Validator struct {
	logger       *logrus.Logger
	errorHandler *errors.ErrorHandler
	rules        map[string]ValidationRule
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	Validate(data interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Errors   []*errors.ExplorerError `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	DataType string                  `json:"data_type"`
}

func newResult(dataType string) *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		DataType: dataType,
		Errors:   make([]*errors.ExplorerError, 0),
		Warnings: make([]string, 0),
	}
}

func (r *ValidationResult) fail(code, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, errors.NewExplorerError(errors.ErrorTypeValidation,
		errors.SeverityLow, code, message))
}

// NewValidator 创建数据验证器
func NewValidator(logger *logrus.Logger) *Validator {
	v := &Validator{
		logger:       logger,
		errorHandler: errors.NewErrorHandler(logger),
		rules:        make(map[string]ValidationRule),
	}

	v.AddRule(NewBlockValidationRule())
	v.AddRule(NewTransactionValidationRule())
	v.AddRule(NewAddressValidationRule())
	v.AddRule(NewHashValidationRule())

	return v
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules[rule.Name()] = rule
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// ValidateBlock 验证区块数据
func (v *Validator) ValidateBlock(block *models.Block) *ValidationResult {
	result := newResult("block")
	if block == nil {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewExplorerError(errors.ErrorTypeValidation,
			errors.SeverityLow, errors.ErrDataValidation.Code, "区块为空"))
		return result
	}

	if !IsValidHash(block.Hash) {
		result.fail("INVALID_BLOCK_HASH", "区块哈希格式无效")
	}
	if block.Height < 0 {
		result.fail("INVALID_HEIGHT", "区块高度不能为负数")
	}
	// 创世区块没有前序区块
	if !block.IsGenesis() && block.PreviousBlockHash != "" && !IsValidHash(block.PreviousBlockHash) {
		result.fail("INVALID_PREVIOUS_HASH", "前序区块哈希格式无效")
	}

	if rule, ok := v.rules["block"]; ok {
		if err := rule.Validate(block); err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		}
	}

	if block.Timestamp == 0 {
		result.Warnings = append(result.Warnings, "区块缺少时间戳")
	}
	if len(block.Transactions) > 0 && block.TxCount != len(block.Transactions) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("交易数量不一致: tx_count=%d, 列表=%d", block.TxCount, len(block.Transactions)))
	}

	return result
}

// ValidateTransaction 验证交易数据
func (v *Validator) ValidateTransaction(tx *models.Transaction) *ValidationResult {
	result := newResult("transaction")
	if tx == nil {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewExplorerError(errors.ErrorTypeValidation,
			errors.SeverityLow, errors.ErrDataValidation.Code, "交易为空"))
		return result
	}

	if !IsValidHash(tx.Txid) {
		result.fail("INVALID_TXID", "交易ID格式无效")
	}
	if tx.BlockHash != "" && !IsValidHash(tx.BlockHash) {
		result.fail("INVALID_BLOCK_HASH", "所在区块哈希格式无效")
	}

	for i, in := range tx.Inputs {
		if in.Value < 0 {
			result.fail("NEGATIVE_VALUE", fmt.Sprintf("输入%d金额为负数", i))
		}
	}

	if rule, ok := v.rules["transaction"]; ok {
		if err := rule.Validate(tx); err != nil {
			result.Valid = false
			if ee, ok := err.(*errors.ExplorerError); ok {
				result.Errors = append(result.Errors, ee)
			} else {
				result.fail("TX_RULE_VALIDATION_FAILED", err.Error())
			}
		}
	}

	if len(tx.Outputs) == 0 {
		result.Warnings = append(result.Warnings, "交易没有输出")
	}
	for _, out := range tx.Outputs {
		if out.Address != "" && v.rules["address"].Validate(out.Address) != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("输出%d地址格式异常: %s", out.N, out.Address))
		}
	}

	return result
}

// Report 记录验证结果。验证失败不会拒绝数据，只以警告级别输出
func (v *Validator) Report(subject string, result *ValidationResult) {
	if result == nil {
		return
	}
	for _, e := range result.Errors {
		v.logger.WithFields(logrus.Fields{
			"subject": subject,
			"type":    result.DataType,
			"code":    e.Code,
		}).Warn(e.Message)
	}
	for _, w := range result.Warnings {
		v.logger.WithFields(logrus.Fields{
			"subject": subject,
			"type":    result.DataType,
		}).Debug(w)
	}
}

// IsValidHash 64位十六进制哈希
func IsValidHash(hash string) bool {
	if len(hash) != chainhash.MaxHashStringSize {
		return false
	}
	_, err := chainhash.NewHashFromStr(hash)
	return err == nil
}

// IsValidAddress base58地址，长度25~35
func IsValidAddress(addr string) bool {
	if len(addr) < 25 || len(addr) > 35 {
		return false
	}
	decoded := base58.Decode(addr)
	// 版本字节 + 20字节哈希 + 4字节校验
	return len(decoded) == 25
}

// BlockValidationRule 区块验证规则
type BlockValidationRule struct{}

func NewBlockValidationRule() *BlockValidationRule {
	return &BlockValidationRule{}
}

func (r *BlockValidationRule) Name() string {
	return "block"
}

func (r *BlockValidationRule) Description() string {
	return "区块数据验证规则"
}

func (r *BlockValidationRule) Validate(data interface{}) error {
	block, ok := data.(*models.Block)
	if !ok {
		return fmt.Errorf("数据类型不是区块")
	}

	if block.Size > MaxBlockSize {
		return errors.NewExplorerError(errors.ErrorTypeValidation, errors.SeverityLow,
			"BLOCK_TOO_LARGE", "区块大小异常")
	}
	if block.TxCount < 0 {
		return errors.NewExplorerError(errors.ErrorTypeValidation, errors.SeverityLow,
			"INVALID_TX_COUNT", "交易数量无效")
	}

	return nil
}

// TransactionValidationRule 交易验证规则
type TransactionValidationRule struct{}

func NewTransactionValidationRule() *TransactionValidationRule {
	return &TransactionValidationRule{}
}

func (r *TransactionValidationRule) Name() string {
	return "transaction"
}

func (r *TransactionValidationRule) Description() string {
	return "交易数据验证规则"
}

func (r *TransactionValidationRule) Validate(data interface{}) error {
	tx, ok := data.(*models.Transaction)
	if !ok {
		return fmt.Errorf("数据类型不是交易")
	}

	seen := make(map[int64]bool, len(tx.Outputs))
	for _, out := range tx.Outputs {
		if out.Value < 0 {
			return errors.NewExplorerError(errors.ErrorTypeValidation, errors.SeverityLow,
				"NEGATIVE_VALUE", fmt.Sprintf("输出%d金额为负数", out.N))
		}
		if seen[out.N] {
			return errors.NewExplorerError(errors.ErrorTypeValidation, errors.SeverityLow,
				"DUPLICATE_OUTPUT_INDEX", fmt.Sprintf("输出下标重复: %d", out.N))
		}
		seen[out.N] = true
	}

	return nil
}

// AddressValidationRule 地址验证规则
type AddressValidationRule struct{}

func NewAddressValidationRule() *AddressValidationRule {
	return &AddressValidationRule{}
}

func (r *AddressValidationRule) Name() string {
	return "address"
}

func (r *AddressValidationRule) Description() string {
	return "base58地址验证规则"
}

func (r *AddressValidationRule) Validate(data interface{}) error {
	addr, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if !IsValidAddress(strings.TrimSpace(addr)) {
		return errors.NewExplorerError(errors.ErrorTypeValidation, errors.SeverityLow,
			"INVALID_ADDRESS_FORMAT", "地址格式无效")
	}

	return nil
}

// HashValidationRule 哈希验证规则
type HashValidationRule struct{}

func NewHashValidationRule() *HashValidationRule {
	return &HashValidationRule{}
}

func (r *HashValidationRule) Name() string {
	return "hash"
}

func (r *HashValidationRule) Description() string {
	return "哈希值验证规则"
}

func (r *HashValidationRule) Validate(data interface{}) error {
	hash, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if !IsValidHash(hash) {
		return errors.NewExplorerError(errors.ErrorTypeValidation, errors.SeverityLow,
			"INVALID_HASH_FORMAT", "哈希格式无效")
	}

	return nil
}

// GetValidationStats 获取验证统计信息
func (v *Validator) GetValidationStats() map[string]interface{} {
	return map[string]interface{}{
		"registered_rules": len(v.rules),
		"error_stats":      v.errorHandler.GetStats(),
	}
}
