package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkexplorer/internal/cache"
	"bbkexplorer/internal/config"
	"bbkexplorer/internal/derive"
	explorerrors "bbkexplorer/internal/errors"
	"bbkexplorer/pkg/models"
)

const (
	testAddress = "BQ1xJ6aV3kT8mR2nP9sW4cY7eH5gL0dZf"
	testHash    = "00000a7c1d3e0f9b2c4d6e8f0a1b3c5d7e9f1a2b4c6d8e0f1a3b5c7d9e1f2a3b"
)

var _ Explorer = (*fakeExplorer)(nil)

// fakeExplorer 内存中的上游数据
type fakeExplorer struct {
	blocks    map[string]models.Block
	txs       map[string]models.Transaction
	peers     models.PeerList
	stats     models.NetworkStats
	blocksErr error
	txsErr    error
	statsErr  error
}

func newFakeExplorer() *fakeExplorer {
	f := &fakeExplorer{
		blocks: make(map[string]models.Block),
		txs:    make(map[string]models.Transaction),
	}
	for h := int64(95); h <= 100; h++ {
		b := models.Block{
			Hash:      fmt.Sprintf("%064x", h),
			Height:    h,
			Timestamp: 1700000000 - (100-h)*60,
			TxCount:   1,
			Size:      2048,
		}
		f.blocks[fmt.Sprint(h)] = b
		f.blocks[b.Hash] = b
	}
	f.blocks[testHash] = models.Block{Hash: testHash, Height: 42, Timestamp: 1699990000}
	f.txs["abcd"] = models.Transaction{
		Txid:          "abcd",
		Timestamp:     1699999000,
		Fee:           1000,
		Confirmations: 3,
		Outputs:       []models.TxOutput{{N: 0, Address: testAddress, Value: 500000000}},
		TotalOutput:   500000000,
	}
	f.peers = models.PeerList{
		Peers: []models.Peer{
			{ID: 1, Addr: "10.0.0.1:9999", Network: models.NetworkIPv4, Active: true},
			{ID: 2, Addr: "abc.onion:9999", Network: models.NetworkOnion, Active: false},
			{ID: 3, Addr: "10.0.0.3:9999", Network: models.NetworkIPv4, Active: true},
		},
		Total:  3,
		Active: 2,
	}
	f.stats = models.NetworkStats{BlockHeight: 100, AvgBlockTime: 60}
	return f
}

func (f *fakeExplorer) GetBlock(_ context.Context, id string) (models.Block, error) {
	b, ok := f.blocks[id]
	if !ok {
		return models.Block{}, explorerrors.NotFound("block", id)
	}
	return b, nil
}

func (f *fakeExplorer) GetBlocks(ctx context.Context, page, pageSize int) (models.Page[models.Block], error) {
	blocks, err := f.GetLatestBlocks(ctx, pageSize)
	if err != nil {
		return models.Page[models.Block]{}, err
	}
	return models.Page[models.Block]{Data: blocks, Total: 101, Page: page, PageSize: pageSize, HasMore: true}, nil
}

func (f *fakeExplorer) GetBlockTransactions(_ context.Context, id string, page, pageSize int) (models.Page[models.Transaction], error) {
	if _, ok := f.blocks[id]; !ok {
		return models.Page[models.Transaction]{}, explorerrors.NotFound("block", id)
	}
	return models.Page[models.Transaction]{Data: []models.Transaction{f.txs["abcd"]}, Total: 1, Page: page, PageSize: pageSize}, nil
}

func (f *fakeExplorer) GetBlockRewards(_ context.Context, id string) (models.BlockRewards, error) {
	return models.BlockRewards{}, nil
}

func (f *fakeExplorer) GetLatestBlocks(_ context.Context, n int) ([]models.Block, error) {
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	var out []models.Block
	for h := int64(100); h >= 95 && len(out) < n; h-- {
		out = append(out, f.blocks[fmt.Sprint(h)])
	}
	return out, nil
}

func (f *fakeExplorer) GetTransaction(_ context.Context, txid string) (models.Transaction, error) {
	tx, ok := f.txs[txid]
	if !ok {
		return models.Transaction{}, explorerrors.NotFound("transaction", txid)
	}
	return tx, nil
}

func (f *fakeExplorer) GetLatestTransactions(_ context.Context, limit int) ([]models.Transaction, error) {
	if f.txsErr != nil {
		return nil, f.txsErr
	}
	return []models.Transaction{f.txs["abcd"]}, nil
}

func (f *fakeExplorer) GetAddress(_ context.Context, address string, page, limit int) (models.Address, error) {
	if address != testAddress {
		return models.Address{}, explorerrors.NotFound("address", address)
	}
	return models.Address{Address: address, Balance: 150000000}, nil
}

func (f *fakeExplorer) GetMasternodes(context.Context) (models.MasternodeList, error) {
	return models.MasternodeList{}, nil
}

func (f *fakeExplorer) GetPeers(context.Context) (models.PeerList, error) {
	return f.peers, nil
}

func (f *fakeExplorer) GetMempool(_ context.Context, page, pageSize int) (models.Page[models.MempoolTransaction], error) {
	return models.Page[models.MempoolTransaction]{Page: page, PageSize: pageSize}, nil
}

func (f *fakeExplorer) GetNetworkStats(context.Context) (models.NetworkStats, error) {
	if f.statsErr != nil {
		return models.NetworkStats{}, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeExplorer) Search(context.Context, string) (*models.SearchResult, error) {
	return nil, nil
}

func (f *fakeExplorer) GetHealth(context.Context) models.Health {
	return models.Health{Online: true, Message: "API is online and available"}
}

func (f *fakeExplorer) Tip() derive.ChainTip {
	return derive.KnownTip(100)
}

func newTestServer(t *testing.T, explorer Explorer, opts Options) (*Server, http.Handler) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.GetDefaultConfig()
	cfg.Server.GraphQL = true

	s, err := NewServer(cfg, explorer, opts, logger)
	require.NoError(t, err)
	s.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	return s, s.Handler(nil)
}

func doRequest(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	w := doRequest(h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1700000000), body["timestamp"])
}

func TestGetBlock(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	w := doRequest(h, http.MethodGet, "/api/v1/block/98", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(98), body["height"])
	assert.Equal(t, "2.00 KB", body["size_label"])
	assert.Equal(t, "2m ago", body["age"])

	w = doRequest(h, http.MethodGet, "/api/v1/block/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestGetTransactionView(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	w := doRequest(h, http.MethodGet, "/api/v1/tx/abcd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "regular", body["type"])
	assert.Equal(t, "3/6", body["status"])
	assert.Equal(t, "5.00000000", body["total_output_bbk"])
}

func TestGetHomePartialFailure(t *testing.T) {
	explorer := newFakeExplorer()
	explorer.txsErr = explorerrors.ErrAPIUnavailable
	_, h := newTestServer(t, explorer, Options{})

	w := doRequest(h, http.MethodGet, "/api/v1/home", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["blocks"], 6)
	assert.Empty(t, body["transactions"])
	require.Contains(t, body, "errors")
	assert.Contains(t, body["errors"], "transactions")

	explorer.blocksErr = explorerrors.ErrAPIUnavailable
	explorer.statsErr = explorerrors.ErrAPIUnavailable
	w = doRequest(h, http.MethodGet, "/api/v1/home", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetPeersFilter(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	w := doRequest(h, http.MethodGet, "/api/v1/peers?status=active&order=desc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Peers []models.Peer `json:"peers"`
		Count int           `json:"count"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Peers, 2)
	assert.Equal(t, int64(3), body.Peers[0].ID)

	w = doRequest(h, http.MethodGet, "/api/v1/peers?network=onion", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestSearch(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	w := doRequest(h, http.MethodGet, "/api/v1/search?q=123", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"route":"/block/123","query":"123","results":true}`, w.Body.String())

	w = doRequest(h, http.MethodGet, "/api/v1/search?q=%20", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 64位哈希：交易查不到时回退到区块
	w = doRequest(h, http.MethodGet, "/search?q="+testHash, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/block/"+testHash, w.Header().Get("Location"))

	w = doRequest(h, http.MethodGet, "/search?q=hello%20world", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["results"])
	assert.Equal(t, "/search?q=hello%20world", body["route"])

	w = doRequest(h, http.MethodGet, "/search", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestAddressQR(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	w := doRequest(h, http.MethodGet, "/api/v1/address/"+testAddress+"/qr?size=128", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

	w = doRequest(h, http.MethodGet, "/api/v1/address/not-an-address/qr", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	blockCache := cache.New(cache.NewMemoryStorage(0), cache.DefaultOptions(), logger)
	require.True(t, blockCache.Put(models.Block{Hash: testHash, Height: 42}, derive.KnownTip(100)))

	_, h := newTestServer(t, newFakeExplorer(), Options{Cache: blockCache})

	w := doRequest(h, http.MethodGet, "/api/v1/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["enabled"])

	w = doRequest(h, http.MethodDelete, "/api/v1/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":2}`, w.Body.String())

	_, ok := blockCache.Get("42")
	assert.False(t, ok)
}

func TestLogsEndpoints(t *testing.T) {
	s, h := newTestServer(t, newFakeExplorer(), Options{})
	s.logger.SetLevel(logrus.InfoLevel)
	s.logger.Info("first")
	s.logger.WithField("height", 7).Warn("second")

	w := doRequest(h, http.MethodGet, "/api/v1/logs?level=warning", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])

	w = doRequest(h, http.MethodDelete, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	logs, total := s.logManager.GetLogs("", 1, 10)
	assert.Empty(t, logs)
	assert.Zero(t, total)
}

func TestGraphQL(t *testing.T) {
	_, h := newTestServer(t, newFakeExplorer(), Options{})

	query := `{"query":"{ block(id: \"99\") { hash height } transaction(txid: \"missing\") { txid } }"}`
	w := doRequest(h, http.MethodPost, "/graphql", strings.NewReader(query))
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Data struct {
			Block struct {
				Hash   string `json:"hash"`
				Height int64  `json:"height"`
			} `json:"block"`
			Transaction *struct {
				Txid string `json:"txid"`
			} `json:"transaction"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(99), result.Data.Block.Height)
	assert.Equal(t, fmt.Sprintf("%064x", 99), result.Data.Block.Hash)
	assert.Nil(t, result.Data.Transaction)

	w = doRequest(h, http.MethodGet, "/graphql?query="+url.QueryEscape("{ health { online } }"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"health":{"online":true}}}`, w.Body.String())
}

func TestLogManagerRingBuffer(t *testing.T) {
	lm := NewLogManager(3)
	for i := 0; i < 5; i++ {
		lm.AddLog(&logrus.Entry{Level: logrus.InfoLevel, Message: fmt.Sprint(i), Time: time.Unix(int64(i), 0)})
	}

	logs, total := lm.GetLogs("", 1, 10)
	require.Equal(t, 3, total)
	assert.Equal(t, "4", logs[0].Message)
	assert.Equal(t, "2", logs[2].Message)

	logs, total = lm.GetLogs("", 2, 2)
	assert.Equal(t, 3, total)
	require.Len(t, logs, 1)
	assert.Equal(t, "2", logs[0].Message)
}
