package client

import (
	"context"
	"net/url"
	"strings"

	"bbkexplorer/internal/derive"
	"bbkexplorer/internal/errors"
	"bbkexplorer/internal/normalize"
	"bbkexplorer/pkg/models"
)

// GetTransaction 获取交易详情，附带分类、奖励标记与确认数
func (c *Client) GetTransaction(ctx context.Context, txid string) (models.Transaction, error) {
	txid = strings.TrimSpace(txid)
	if txid == "" {
		return models.Transaction{}, errors.NewExplorerError(errors.ErrorTypeInvalidQuery, errors.SeverityLow,
			errors.ErrInvalidQuery.Code, "交易ID为空")
	}

	payload, err := c.get(ctx, "transaction", "/tx/"+url.PathEscape(txid), nil)
	if err != nil {
		return models.Transaction{}, err
	}
	raw, ok := payload.(map[string]interface{})
	if !ok {
		return models.Transaction{}, decodeError("transaction", payload)
	}

	tx := normalize.Transaction(raw)
	if tx.Txid == "" {
		return models.Transaction{}, errors.NotFound("transaction", txid)
	}
	c.finishTransaction(&tx, c.Tip())
	c.validator.Report("tx "+txid, c.validator.ValidateTransaction(&tx))
	return tx, nil
}

// GetLatestTransactions 获取最新交易
func (c *Client) GetLatestTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	payload, err := c.get(ctx, "latest_transactions", "/transactions", limitQuery(limit))
	if err != nil {
		return nil, err
	}
	page, err := decodePage(payload, 1, limit, normalize.Transaction)
	if err != nil {
		return nil, err
	}
	tip := c.Tip()
	for i := range page.Data {
		c.finishTransaction(&page.Data[i], tip)
	}
	return page.Data, nil
}

// GetMempool 分页获取内存池交易
func (c *Client) GetMempool(ctx context.Context, page, pageSize int) (models.Page[models.MempoolTransaction], error) {
	payload, err := c.get(ctx, "mempool", "/mempool", pageQuery(page, pageSize))
	if err != nil {
		return models.Page[models.MempoolTransaction]{}, err
	}
	// 部分索引器只返回交易ID数组
	if ids, ok := payload.([]interface{}); ok && len(ids) > 0 {
		if _, isString := ids[0].(string); isString {
			return mempoolFromIDs(ids, page, pageSize), nil
		}
	}
	return decodePage(payload, page, pageSize, normalize.MempoolTransaction)
}

func mempoolFromIDs(ids []interface{}, page, pageSize int) models.Page[models.MempoolTransaction] {
	result := models.Page[models.MempoolTransaction]{
		Data:     []models.MempoolTransaction{},
		Total:    int64(len(ids)),
		Page:     page,
		PageSize: pageSize,
	}
	for _, id := range ids {
		if s, ok := id.(string); ok && s != "" {
			result.Data = append(result.Data, models.MempoolTransaction{Txid: s})
		}
	}
	return result
}

// finishTransaction 分类交易并刷新确认数
func (c *Client) finishTransaction(tx *models.Transaction, tip derive.ChainTip) {
	reportedFee, reportedRate := tx.Fee, tx.FeeRate
	cls := derive.Annotate(tx)
	// 输入没有金额时无法计算手续费，沿用上游给出的值
	if cls.TotalInput == 0 && !cls.IsCoinbase && reportedFee > 0 {
		tx.Fee = reportedFee
		tx.FeeRate = reportedRate
	}
	derive.ApplyTransactionConfirmations(tx, tip)
}
