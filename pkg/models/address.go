package models

// Address 地址汇总及分页交易历史
type Address struct {
	Address          string               `json:"address"`
	Balance          int64                `json:"balance"`
	Received         int64                `json:"received"`
	Sent             int64                `json:"sent"`
	TransactionCount int64                `json:"transaction_count"`
	FirstSeen        int64                `json:"first_seen,omitempty"`
	LastSeen         int64                `json:"last_seen,omitempty"`
	Transactions     []AddressTransaction `json:"transactions"`
	Pagination       Pagination           `json:"pagination"`
}

// AddressTxType 地址视角下的交易方向
type AddressTxType string

const (
	AddressTxSent     AddressTxType = "sent"
	AddressTxReceived AddressTxType = "received"
	AddressTxBoth     AddressTxType = "both"
)

// AddressTransaction 地址交易历史条目
type AddressTransaction struct {
	Txid          string        `json:"txid"`
	BlockHeight   int64         `json:"block_height"`
	Time          int64         `json:"time"`
	Confirmations int64         `json:"confirmations"`
	Value         int64         `json:"value"`
	Type          AddressTxType `json:"type"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Page 通用分页结果
type Page[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	HasMore  bool  `json:"has_more"`
}
