package search

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolver 把查询解析为路由，必要时调用 Prober 消歧
type Resolver struct {
	prober Prober
	logger *logrus.Logger
}

// NewResolver 创建解析器。prober 为 nil 时只做离线判断
func NewResolver(prober Prober, logger *logrus.Logger) *Resolver {
	return &Resolver{prober: prober, logger: logger}
}

// Resolve 解析查询。空查询返回 false；其余情况总能得到一个路由，
// 找不到时路由到无结果搜索页
func (r *Resolver) Resolve(ctx context.Context, query string) (Route, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Route{}, false
	}

	kind := Classify(q)
	if r.prober == nil {
		path, found := PathForKind(kind, q)
		return Route{Path: path, Query: q, Found: found}, true
	}

	switch kind {
	case KindBlockHeight:
		return r.found("/block/"+q, q), true

	case KindAddress:
		if path, ok := r.remote(ctx, q); ok {
			return r.found(path, q), true
		}
		// 搜索索引可能缺失该地址，仍按地址处理
		return r.found("/address/"+q, q), true

	case KindBlockHash:
		if path, ok := r.remote(ctx, q); ok {
			return r.found(path, q), true
		}
		_, err := r.prober.GetTransaction(ctx, q)
		if err == nil {
			return r.found("/tx/"+q, q), true
		}
		r.logger.WithError(err).Debugf("按交易查询 %s 失败", q)

		_, err = r.prober.GetBlock(ctx, q)
		if err == nil {
			return r.found("/block/"+q, q), true
		}
		r.logger.WithError(err).Debugf("按区块查询 %s 失败", q)
		return r.notFound(q), true

	case KindTransactionHash:
		return r.found("/tx/"+q, q), true

	default:
		if path, ok := r.remote(ctx, q); ok {
			return r.found(path, q), true
		}
		return r.notFound(q), true
	}
}

// remote 调用远端类型搜索，失败或无匹配时返回 false
func (r *Resolver) remote(ctx context.Context, q string) (string, bool) {
	result, err := r.prober.Search(ctx, q)
	if err != nil {
		r.logger.WithError(err).Debugf("远端搜索 %s 失败", q)
		return "", false
	}
	if result == nil {
		return "", false
	}
	return PathForResult(result.Type, q)
}

func (r *Resolver) found(path, q string) Route {
	return Route{Path: path, Query: q, Found: true}
}

func (r *Resolver) notFound(q string) Route {
	return Route{Path: NoResultsPath(q), Query: q}
}
