package client

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/errors"
	"bbkexplorer/internal/normalize"
	"bbkexplorer/pkg/models"
)

// LatestBlockID 表示链顶区块的标识
const LatestBlockID = "latest"

// GetChainHeight 获取当前链高度
func (c *Client) GetChainHeight(ctx context.Context) (int64, error) {
	payload, err := c.get(ctx, "chain_height", "/blockchain/height", nil)
	if err != nil {
		return 0, err
	}
	height, ok := normalize.ChainHeight(payload)
	if !ok {
		return 0, decodeError("chain_height", payload)
	}
	c.observeHeight(height)
	return height, nil
}

// GetBlock 按高度、哈希或 "latest" 获取区块。已确认区块优先读缓存
func (c *Client) GetBlock(ctx context.Context, id string) (models.Block, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Block{}, errors.NewExplorerError(errors.ErrorTypeInvalidQuery, errors.SeverityLow,
			errors.ErrInvalidQuery.Code, "区块标识为空")
	}

	latest := strings.EqualFold(id, LatestBlockID)
	if !latest && c.cache != nil {
		if b, ok := c.cache.Get(id); ok {
			derive.ApplyBlockConfirmations(&b, c.Tip())
			return b, nil
		}
	}

	b, err := c.fetchBlock(ctx, id)
	if err != nil {
		return models.Block{}, err
	}
	if latest {
		c.observeHeight(b.Height)
	}

	tip := c.Tip()
	derive.ApplyBlockConfirmations(&b, tip)
	if !latest && c.cache != nil {
		c.cache.Put(b, tip)
	}
	return b, nil
}

// fetchBlock 只走网络，不读写缓存
func (c *Client) fetchBlock(ctx context.Context, id string) (models.Block, error) {
	payload, err := c.get(ctx, "block", "/block/"+url.PathEscape(id), nil)
	if err != nil {
		return models.Block{}, err
	}
	raw, ok := payload.(map[string]interface{})
	if !ok {
		return models.Block{}, decodeError("block", payload)
	}
	b := normalize.Block(raw)
	if b.Hash == "" {
		return models.Block{}, errors.NotFound("block", id)
	}
	c.validator.Report("block "+id, c.validator.ValidateBlock(&b))
	return b, nil
}

// GetBlocks 分页获取区块列表
func (c *Client) GetBlocks(ctx context.Context, page, pageSize int) (models.Page[models.Block], error) {
	payload, err := c.get(ctx, "blocks", "/blocks", pageQuery(page, pageSize))
	if err != nil {
		return models.Page[models.Block]{}, err
	}
	result, err := decodePage(payload, page, pageSize, normalize.Block)
	if err != nil {
		return result, err
	}
	tip := c.Tip()
	for i := range result.Data {
		derive.ApplyBlockConfirmations(&result.Data[i], tip)
	}
	return result, nil
}

// GetBlockTransactions 分页获取区块内交易
func (c *Client) GetBlockTransactions(ctx context.Context, id string, page, pageSize int) (models.Page[models.Transaction], error) {
	path := "/block/" + url.PathEscape(strings.TrimSpace(id)) + "/transactions"
	payload, err := c.get(ctx, "block_transactions", path, pageQuery(page, pageSize))
	if err != nil {
		return models.Page[models.Transaction]{}, err
	}
	result, err := decodePage(payload, page, pageSize, normalize.Transaction)
	if err != nil {
		return result, err
	}
	tip := c.Tip()
	for i := range result.Data {
		c.finishTransaction(&result.Data[i], tip)
	}
	return result, nil
}

// GetLatestBlocks 获取最新的n个区块。
//
// 先取一次链高度，再按固定并发数分波请求各高度；每个高度先查缓存，
// 每一波结束后把新确认的区块写回缓存。部分失败时返回成功的部分，全部失败才报错
func (c *Client) GetLatestBlocks(ctx context.Context, n int) ([]models.Block, error) {
	if n <= 0 {
		return []models.Block{}, nil
	}
	height, err := c.GetChainHeight(ctx)
	if err != nil {
		return nil, err
	}

	heights := make([]int64, 0, n)
	for h := height; h >= 0 && len(heights) < n; h-- {
		heights = append(heights, h)
	}

	blocks := make([]models.Block, 0, len(heights))
	var lastErr error
	tip := derive.KnownTip(height)

	for start := 0; start < len(heights); start += c.batchConcurrency {
		end := start + c.batchConcurrency
		if end > len(heights) {
			end = len(heights)
		}
		wave := heights[start:end]

		results := make([]models.Block, len(wave))
		errs := make([]error, len(wave))
		fetched := make([]bool, len(wave))

		g, gctx := errgroup.WithContext(ctx)
		for i, h := range wave {
			id := strconv.FormatInt(h, 10)
			if c.cache != nil {
				if b, ok := c.cache.Get(id); ok {
					results[i] = b
					continue
				}
			}
			i := i
			g.Go(func() error {
				b, err := c.fetchBlock(gctx, id)
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = b
				fetched[i] = true
				return nil
			})
		}
		_ = g.Wait()

		var fresh []models.Block
		for i := range wave {
			if errs[i] != nil {
				lastErr = errs[i]
				c.logger.WithError(errs[i]).Debugf("获取区块 %d 失败", wave[i])
				continue
			}
			derive.ApplyBlockConfirmations(&results[i], tip)
			blocks = append(blocks, results[i])
			if fetched[i] {
				fresh = append(fresh, results[i])
			}
		}
		if c.cache != nil && len(fresh) > 0 {
			c.cache.PutMany(fresh, tip)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if len(blocks) == 0 && lastErr != nil {
		return nil, fmt.Errorf("获取最新区块失败: %w", lastErr)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Height > blocks[j].Height })
	return blocks, nil
}

// GetBlockRewards 汇总区块内所有交易的奖励
func (c *Client) GetBlockRewards(ctx context.Context, id string) (models.BlockRewards, error) {
	block, err := c.GetBlock(ctx, id)
	if err != nil {
		return models.BlockRewards{}, err
	}

	var classifications []derive.Classification
	if len(block.Transactions) > 0 {
		for _, txid := range block.Transactions {
			tx, err := c.GetTransaction(ctx, txid)
			if err != nil {
				return models.BlockRewards{}, err
			}
			classifications = append(classifications, derive.ClassifyTransaction(tx))
		}
	} else {
		page, err := c.GetBlockTransactions(ctx, block.Hash, 1, 100)
		if err != nil {
			return models.BlockRewards{}, err
		}
		for _, tx := range page.Data {
			classifications = append(classifications, derive.ClassifyTransaction(tx))
		}
	}
	return derive.AggregateRewards(block, classifications), nil
}

// decodePage 分页响应可能是 {data,total,page,pageSize,hasMore}，也可能只是数组
func decodePage[T any](payload interface{}, page, pageSize int, conv func(normalize.Raw) T) (models.Page[T], error) {
	result := models.Page[T]{Data: []T{}, Page: page, PageSize: pageSize}

	var items []normalize.Raw
	switch v := payload.(type) {
	case []interface{}:
		items = normalize.Objects(normalize.Raw{"items": v}, "items")
		result.Total = int64(len(items))
	case map[string]interface{}:
		items = normalize.Objects(v, "data", "items", "results", "blocks", "transactions")
		result.Total = normalize.Int64(v, "total", "totalItems", "count")
		if normalize.Has(v, "page", "currentPage") {
			result.Page = int(normalize.Int64(v, "page", "currentPage"))
		}
		if normalize.Has(v, "pageSize", "page_size", "limit") {
			result.PageSize = int(normalize.Int64(v, "pageSize", "page_size", "limit"))
		}
		if normalize.Has(v, "hasMore", "has_more") {
			result.HasMore = normalize.Bool(v, "hasMore", "has_more")
		} else {
			result.HasMore = int64(result.Page*result.PageSize) < result.Total
		}
	default:
		return result, decodeError("page", payload)
	}

	for _, item := range items {
		result.Data = append(result.Data, conv(item))
	}
	if result.Total < int64(len(result.Data)) {
		result.Total = int64(len(result.Data))
	}
	return result, nil
}
