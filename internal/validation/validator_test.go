package validation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkexplorer/pkg/models"
)

const (
	validHash    = "00000000000000a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f6071829"
	validPrev    = "00000000000000f1e2d3c4b5a69788796a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d"
	validAddress = "BKxq7nZ3vYpR8mW2sT5uJ4hL9cA6dE1fGz"
)

func newTestValidator() *Validator {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewValidator(logger)
}

func TestNewValidator(t *testing.T) {
	v := newTestValidator()

	assert.NotNil(t, v)
	assert.Equal(t, 4, len(v.rules))
	stats := v.GetValidationStats()
	assert.Equal(t, 4, stats["registered_rules"])
}

func TestValidateBlock_ValidBlock(t *testing.T) {
	v := newTestValidator()

	block := &models.Block{
		Hash:              validHash,
		Height:            823456,
		Timestamp:         1700000000,
		TxCount:           2,
		Size:              1024,
		PreviousBlockHash: validPrev,
		Transactions:      []string{validHash, validPrev},
	}

	result := v.ValidateBlock(block)
	assert.True(t, result.Valid)
	assert.Equal(t, "block", result.DataType)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateBlock_InvalidHash(t *testing.T) {
	v := newTestValidator()

	result := v.ValidateBlock(&models.Block{Hash: "invalid_hash", Height: 10, Timestamp: 1})
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "INVALID_BLOCK_HASH", result.Errors[0].Code)
}

func TestValidateBlock_GenesisWithoutPrevious(t *testing.T) {
	v := newTestValidator()

	result := v.ValidateBlock(&models.Block{Hash: validHash, Height: 0, Timestamp: 1, PreviousBlockHash: "none"})
	assert.True(t, result.Valid)
}

func TestValidateBlock_Warnings(t *testing.T) {
	v := newTestValidator()

	result := v.ValidateBlock(&models.Block{
		Hash:         validHash,
		Height:       5,
		TxCount:      3,
		Size:         MaxBlockSize + 1,
		Transactions: []string{validHash},
	})
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 3)
}

func TestValidateBlock_Nil(t *testing.T) {
	v := newTestValidator()

	result := v.ValidateBlock(nil)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 1)
}

func TestValidateTransaction(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name     string
		tx       *models.Transaction
		valid    bool
		code     string
		warnings int
	}{
		{
			name: "valid",
			tx: &models.Transaction{
				Txid:    validHash,
				Inputs:  []models.TxInput{{Txid: validPrev, Value: 100}},
				Outputs: []models.TxOutput{{N: 0, Address: validAddress, Value: 90}},
			},
			valid: true,
		},
		{
			name:  "bad txid",
			tx:    &models.Transaction{Txid: "abc", Outputs: []models.TxOutput{{N: 0, Value: 1}}},
			valid: false,
			code:  "INVALID_TXID",
		},
		{
			name: "duplicate output index",
			tx: &models.Transaction{
				Txid:    validHash,
				Outputs: []models.TxOutput{{N: 0, Value: 1}, {N: 0, Value: 2}},
			},
			valid: false,
			code:  "DUPLICATE_OUTPUT_INDEX",
		},
		{
			name: "negative output",
			tx: &models.Transaction{
				Txid:    validHash,
				Outputs: []models.TxOutput{{N: 0, Value: -1}},
			},
			valid: false,
			code:  "NEGATIVE_VALUE",
		},
		{
			name:     "no outputs and odd address",
			tx:       &models.Transaction{Txid: validHash},
			valid:    true,
			warnings: 1,
		},
		{
			name: "malformed output address",
			tx: &models.Transaction{
				Txid:    validHash,
				Outputs: []models.TxOutput{{N: 0, Address: "0OIl", Value: 1}},
			},
			valid:    true,
			warnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateTransaction(tt.tx)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.code != "" {
				require.NotEmpty(t, result.Errors)
				assert.Equal(t, tt.code, result.Errors[0].Code)
			}
			assert.Len(t, result.Warnings, tt.warnings)
		})
	}
}

func TestIsValidHash(t *testing.T) {
	assert.True(t, IsValidHash(validHash))
	assert.True(t, IsValidHash(strings.ToUpper(validHash)))
	assert.False(t, IsValidHash("0x"+validHash[2:]))
	assert.False(t, IsValidHash(validHash[:63]))
	assert.False(t, IsValidHash(""))
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress(validAddress))
	assert.False(t, IsValidAddress("short"))
	assert.False(t, IsValidAddress(strings.Repeat("0", 34)))
}

func TestRules(t *testing.T) {
	assert.NoError(t, NewHashValidationRule().Validate(validHash))
	assert.Error(t, NewHashValidationRule().Validate(42))
	assert.NoError(t, NewAddressValidationRule().Validate(" "+validAddress+" "))
	assert.Error(t, NewBlockValidationRule().Validate("not a block"))
	assert.Error(t, NewTransactionValidationRule().Validate(&models.Block{}))
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	v := NewValidator(logger)

	v.Report("block 1", v.ValidateBlock(&models.Block{Hash: "bad"}))
	assert.Contains(t, buf.String(), "INVALID_BLOCK_HASH")

	v.Report("nil", nil)
}
