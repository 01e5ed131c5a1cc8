// Package search routes a free-text explorer query to a block, transaction,
// address or masternode view, probing the indexer only when the text alone
// is ambiguous.
package search

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"bbkexplorer/pkg/models"
)

// MaxBlockHeight 视为区块高度的最大数字
const MaxBlockHeight = 100000000

var (
	digitsPattern  = regexp.MustCompile(`^\d+$`)
	addressPattern = regexp.MustCompile(`^[A-Za-z0-9]{25,35}$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	hash64Pattern  = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

func isBlockHeight(q string) bool {
	if !digitsPattern.MatchString(q) {
		return false
	}
	n, err := strconv.ParseInt(q, 10, 64)
	return err == nil && n <= MaxBlockHeight
}

func isAddress(q string) bool {
	return addressPattern.MatchString(q) && !hash64Pattern.MatchString(q)
}

// Classify 仅凭文本模式判断查询类型
func Classify(query string) Kind {
	q := strings.TrimSpace(query)
	switch {
	case q == "":
		return KindUnknown
	case isBlockHeight(q):
		return KindBlockHeight
	case isAddress(q):
		return KindAddress
	case hash64Pattern.MatchString(q):
		// 区块路由同时接受哈希
		return KindBlockHash
	case hexPattern.MatchString(q):
		return KindTransactionHash
	default:
		return KindUnknown
	}
}

// NoResultsPath 无结果搜索页，查询按URI组件编码
func NoResultsPath(query string) string {
	return "/search?q=" + strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
}

// PathForKind 离线判断对应的路由，unknown 返回无结果搜索页
func PathForKind(kind Kind, query string) (string, bool) {
	switch kind {
	case KindBlockHeight, KindBlockHash:
		return "/block/" + query, true
	case KindTransactionHash:
		return "/tx/" + query, true
	case KindAddress:
		return "/address/" + query, true
	default:
		return NoResultsPath(query), false
	}
}

// PathForResult 远端搜索结果对应的路由。主节点没有独立页面，统一指向列表页
func PathForResult(t models.SearchResultType, query string) (string, bool) {
	switch t {
	case models.SearchBlock:
		return "/block/" + query, true
	case models.SearchTransaction:
		return "/tx/" + query, true
	case models.SearchAddress:
		return "/address/" + query, true
	case models.SearchMasternode:
		return "/masternodes", true
	default:
		return "", false
	}
}
