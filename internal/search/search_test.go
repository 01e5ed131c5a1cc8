package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"bbkexplorer/pkg/models"
)

const (
	testAddress = "BKxq7nZ3vYpR8mW2sT5uJ4hL9cA6dE1fGz"
	testHash    = "00000000000000000007a4b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1"
	testTxid40  = "a4b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  Kind
	}{
		{"823456", KindBlockHeight},
		{" 0 ", KindBlockHeight},
		{"100000000", KindBlockHeight},
		{testAddress, KindAddress},
		{testHash, KindBlockHash},
		{strings.ToUpper(testHash), KindBlockHash},
		{testTxid40, KindTransactionHash},
		{"100000001", KindTransactionHash},
		{"", KindUnknown},
		{"not a query!", KindUnknown},
		{"masternode-1", KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.query), tt.query)
	}
	assert.Len(t, testAddress, 34)
}

func TestNoResultsPath(t *testing.T) {
	assert.Equal(t, "/search?q=foo%20bar%26x", NoResultsPath("foo bar&x"))
}

func TestResolver_Resolve(t *testing.T) {
	type args struct {
		query string
	}
	tests := []struct {
		name    string
		prepare func(p *MockProber)
		args    args
		want    Route
	}{
		{
			name:    "block height routes without probing",
			prepare: func(p *MockProber) {},
			args:    args{query: "823456"},
			want:    Route{Path: "/block/823456", Query: "823456", Found: true},
		},
		{
			name: "address confirmed by remote search",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), testAddress).Return(&models.SearchResult{Type: models.SearchAddress}, nil)
			},
			args: args{query: testAddress},
			want: Route{Path: "/address/" + testAddress, Query: testAddress, Found: true},
		},
		{
			name: "address falls back when search fails",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), testAddress).Return(nil, errors.New("unavailable"))
			},
			args: args{query: testAddress},
			want: Route{Path: "/address/" + testAddress, Query: testAddress, Found: true},
		},
		{
			name: "address-length masternode result routes to list",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), testAddress).Return(&models.SearchResult{Type: models.SearchMasternode}, nil)
			},
			args: args{query: testAddress},
			want: Route{Path: "/masternodes", Query: testAddress, Found: true},
		},
		{
			name: "64 hex resolved by remote search",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), testHash).Return(&models.SearchResult{Type: models.SearchBlock}, nil)
			},
			args: args{query: testHash},
			want: Route{Path: "/block/" + testHash, Query: testHash, Found: true},
		},
		{
			name: "64 hex probes transaction first",
			prepare: func(p *MockProber) {
				gomock.InOrder(
					p.EXPECT().Search(gomock.Any(), testHash).Return(nil, nil),
					p.EXPECT().GetTransaction(gomock.Any(), testHash).Return(models.Transaction{Txid: testHash}, nil),
				)
			},
			args: args{query: testHash},
			want: Route{Path: "/tx/" + testHash, Query: testHash, Found: true},
		},
		{
			name: "64 hex falls back to block fetch",
			prepare: func(p *MockProber) {
				gomock.InOrder(
					p.EXPECT().Search(gomock.Any(), testHash).Return(nil, errors.New("search down")),
					p.EXPECT().GetTransaction(gomock.Any(), testHash).Return(models.Transaction{}, errors.New("not found")),
					p.EXPECT().GetBlock(gomock.Any(), testHash).Return(models.Block{Hash: testHash}, nil),
				)
			},
			args: args{query: testHash},
			want: Route{Path: "/block/" + testHash, Query: testHash, Found: true},
		},
		{
			name: "64 hex with no match routes to search page",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), testHash).Return(nil, nil)
				p.EXPECT().GetTransaction(gomock.Any(), testHash).Return(models.Transaction{}, errors.New("not found"))
				p.EXPECT().GetBlock(gomock.Any(), testHash).Return(models.Block{}, errors.New("not found"))
			},
			args: args{query: testHash},
			want: Route{Path: "/search?q=" + testHash, Query: testHash},
		},
		{
			name:    "other hex lengths are transactions",
			prepare: func(p *MockProber) {},
			args:    args{query: testTxid40},
			want:    Route{Path: "/tx/" + testTxid40, Query: testTxid40, Found: true},
		},
		{
			name: "free text uses remote search",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), "genesis").Return(&models.SearchResult{Type: models.SearchTransaction}, nil)
			},
			args: args{query: "  genesis "},
			want: Route{Path: "/tx/genesis", Query: "genesis", Found: true},
		},
		{
			name: "free text without match",
			prepare: func(p *MockProber) {
				p.EXPECT().Search(gomock.Any(), "hello world").Return(nil, nil)
			},
			args: args{query: "hello world"},
			want: Route{Path: "/search?q=hello%20world", Query: "hello world"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			prober := NewMockProber(ctrl)
			tt.prepare(prober)

			r := NewResolver(prober, quietLogger())
			got, ok := r.Resolve(context.Background(), tt.args.query)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_EmptyQuery(t *testing.T) {
	r := NewResolver(nil, quietLogger())
	_, ok := r.Resolve(context.Background(), "   ")
	assert.False(t, ok)
}

func TestResolver_Offline(t *testing.T) {
	r := NewResolver(nil, quietLogger())

	got, ok := r.Resolve(context.Background(), testHash)
	assert.True(t, ok)
	assert.Equal(t, "/block/"+testHash, got.Path)

	got, _ = r.Resolve(context.Background(), testAddress)
	assert.Equal(t, "/address/"+testAddress, got.Path)

	got, _ = r.Resolve(context.Background(), "???")
	assert.False(t, got.Found)
	assert.Equal(t, "/search?q=%3F%3F%3F", got.Path)
}
