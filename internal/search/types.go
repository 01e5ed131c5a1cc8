package search

import (
	"context"

	"bbkexplorer/pkg/models"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Prober 用于消歧的远端查询。Search 没有匹配时返回 nil, nil
	Prober interface {
		Search(ctx context.Context, query string) (*models.SearchResult, error)
		GetTransaction(ctx context.Context, txid string) (models.Transaction, error)
		GetBlock(ctx context.Context, id string) (models.Block, error)
	}
)

// Kind 不访问网络时对查询的粗略判断
type Kind string

const (
	KindBlockHeight     Kind = "block-height"
	KindBlockHash       Kind = "block-hash"
	KindTransactionHash Kind = "transaction-hash"
	KindAddress         Kind = "address"
	KindUnknown         Kind = "unknown"
)

// Route 查询解析结果。Found 为 false 时 Path 指向无结果搜索页
type Route struct {
	Path  string `json:"route"`
	Query string `json:"query"`
	Found bool   `json:"results"`
}
