package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkexplorer/pkg/models"
)

func TestConfirmations(t *testing.T) {
	tests := []struct {
		name     string
		tip      ChainTip
		height   int64
		reported int64
		expected int64
	}{
		{"链顶", KnownTip(100), 100, 0, 1},
		{"历史区块", KnownTip(100), 90, 0, 11},
		{"高于链顶", KnownTip(100), 105, 3, 0},
		{"未知链高沿用API值", ChainTip{}, 90, 7, 7},
		{"未知链高负值", ChainTip{}, 90, -1, 0},
		{"创世区块", KnownTip(0), 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Confirmations(tt.tip, tt.height, tt.reported))
		})
	}
}

func TestIsTransactionConfirmed(t *testing.T) {
	assert.False(t, IsTransactionConfirmed(0))
	assert.False(t, IsTransactionConfirmed(5))
	assert.True(t, IsTransactionConfirmed(6))
	assert.True(t, IsTransactionConfirmed(100))

	assert.Equal(t, "5/6", ConfirmationLabel(5))
	assert.Equal(t, "0/6", ConfirmationLabel(-2))
	assert.Equal(t, "Confirmed", ConfirmationLabel(6))
}

func TestApplyTransactionConfirmations(t *testing.T) {
	h := int64(95)
	tx := models.Transaction{BlockHeight: &h, Confirmations: 1}
	ApplyTransactionConfirmations(&tx, KnownTip(100))
	assert.Equal(t, int64(6), tx.Confirmations)
	assert.True(t, tx.Confirmed())

	mempool := models.Transaction{Confirmations: 3}
	ApplyTransactionConfirmations(&mempool, KnownTip(100))
	assert.Equal(t, int64(0), mempool.Confirmations)
}

func TestIsBlockConfirmed(t *testing.T) {
	assert.True(t, IsBlockConfirmed(models.Block{Height: 10, Confirmations: 2}, ChainTip{}))
	assert.False(t, IsBlockConfirmed(models.Block{Height: 10}, ChainTip{}))
	assert.True(t, IsBlockConfirmed(models.Block{Height: 10}, KnownTip(11)))
	assert.False(t, IsBlockConfirmed(models.Block{Height: 11}, KnownTip(11)), "链顶区块不缓存")
}

func TestClassifyTransaction_Coinbase(t *testing.T) {
	tx := models.Transaction{
		Inputs:  []models.TxInput{{Coinbase: "03abcd"}},
		Outputs: []models.TxOutput{{N: 0, Address: "addrA", Value: 500000000}},
	}

	c := ClassifyTransaction(tx)

	assert.True(t, c.IsCoinbase)
	assert.False(t, c.IsStaking)
	assert.Equal(t, int64(0), c.Fee)
	require.Len(t, c.Rewards, 1)
	assert.Equal(t, "addrA", c.Rewards[0].Address)
	assert.Equal(t, CategoryBlockReward, c.Rewards[0].Category)
	assert.Equal(t, int64(500000000), c.Rewards[0].StakingReward)
	assert.Equal(t, int64(0), c.Rewards[0].MasternodeReward)
}

func TestAnnotate_CoinbaseMarksEveryOutput(t *testing.T) {
	tx := models.Transaction{
		Inputs: []models.TxInput{{Coinbase: "03abcd"}},
		Outputs: []models.TxOutput{
			{N: 0, Value: 0, ScriptPubKey: "6a24aa21a9ed"},
			{N: 1, Address: "addrA", Value: 500000000},
		},
	}

	c := Annotate(&tx)

	assert.True(t, tx.Outputs[0].IsRewardOutput)
	assert.True(t, tx.Outputs[1].IsRewardOutput)
	require.Len(t, c.Rewards, 1)
	assert.Equal(t, "addrA", c.Rewards[0].Address)
}

func TestClassifyTransaction_Staking(t *testing.T) {
	tx := models.Transaction{
		Inputs: []models.TxInput{{Txid: "prev", Address: "addrS", Value: 1000000000}},
		Outputs: []models.TxOutput{
			{N: 0, Value: 0},
			{N: 1, Address: "addrS", Value: 1050000000},
			{N: 2, Address: "addrM", Value: 200000000},
		},
	}

	c := ClassifyTransaction(tx)

	assert.False(t, c.IsCoinbase)
	assert.True(t, c.IsStaking)
	assert.Equal(t, "addrS", c.StakerAddress)
	assert.Equal(t, int64(0), c.Fee)
	assert.Equal(t, int64(50000000), c.StakingReward())
	assert.Equal(t, int64(200000000), c.MasternodeReward())

	require.Len(t, c.Rewards, 2)
	assert.Equal(t, Reward{Address: "addrS", Category: CategoryStaking, OutputIndex: 1, StakingReward: 50000000}, c.Rewards[0])
	assert.Equal(t, Reward{Address: "addrM", Category: CategoryMasternode, OutputIndex: 2, MasternodeReward: 200000000}, c.Rewards[1])
}

func TestClassifyTransaction_StakingEdgeCases(t *testing.T) {
	t.Run("没有付给质押者的输出", func(t *testing.T) {
		c := ClassifyTransaction(models.Transaction{
			Inputs:  []models.TxInput{{Txid: "p", Address: "addrS", Value: 100}},
			Outputs: []models.TxOutput{{Address: "addrX", Value: 150}, {Address: "addrY", Value: 20}},
		})
		assert.True(t, c.IsStaking)
		assert.Equal(t, int64(0), c.StakingReward())
		require.Len(t, c.Rewards, 1)
		assert.Equal(t, "addrX", c.Rewards[0].Address)
	})

	t.Run("没有其他地址输出", func(t *testing.T) {
		c := ClassifyTransaction(models.Transaction{
			Inputs:  []models.TxInput{{Txid: "p", Address: "addrS", Value: 100}},
			Outputs: []models.TxOutput{{Address: "addrS", Value: 130}, {Value: 5}},
		})
		assert.Equal(t, int64(0), c.MasternodeReward())
		assert.Equal(t, int64(35), c.TotalOutput-c.TotalInput)
		assert.Equal(t, int64(30), c.StakingReward())
	})

	t.Run("并列最大输出取第一个", func(t *testing.T) {
		c := ClassifyTransaction(models.Transaction{
			Inputs: []models.TxInput{{Txid: "p", Address: "addrS", Value: 100}},
			Outputs: []models.TxOutput{
				{N: 0, Address: "addrS", Value: 110},
				{N: 1, Address: "addrM1", Value: 40},
				{N: 2, Address: "addrM2", Value: 40},
			},
		})
		assert.Equal(t, "addrM1", c.Rewards[len(c.Rewards)-1].Address)
	})

	t.Run("首个输入没有地址", func(t *testing.T) {
		tx := models.Transaction{
			Inputs: []models.TxInput{{Txid: "p", Value: 1000000000}},
			Outputs: []models.TxOutput{
				{N: 0, Address: "addrX", Value: 1050000000},
				{N: 1, Address: "addrM", Value: 200000000},
			},
		}
		c := Annotate(&tx)
		assert.True(t, c.IsStaking)
		assert.Empty(t, c.StakerAddress)
		assert.Empty(t, c.Rewards)
		for _, out := range tx.Outputs {
			assert.False(t, out.IsRewardOutput)
			assert.False(t, out.IsMasternodeReward)
		}
	})

	t.Run("质押者地址未知", func(t *testing.T) {
		c := ClassifyTransaction(models.Transaction{
			Inputs:  []models.TxInput{{Txid: "p", Value: 100}},
			Outputs: []models.TxOutput{{Value: 120}},
		})
		assert.True(t, c.IsStaking)
		assert.Empty(t, c.Rewards)
	})
}

func TestClassifyTransaction_Regular(t *testing.T) {
	c := ClassifyTransaction(models.Transaction{
		Inputs:  []models.TxInput{{Txid: "a", Address: "x", Value: 1000}, {Txid: "b", Address: "y", Value: 500}},
		Outputs: []models.TxOutput{{Address: "z", Value: 1400}},
	})

	assert.False(t, c.IsCoinbase)
	assert.False(t, c.IsStaking)
	assert.Equal(t, int64(100), c.Fee)
	assert.Equal(t, int64(1500), c.TotalInput)
	assert.Empty(t, c.Rewards)
}

func TestClassifyTransaction_EmptyTransaction(t *testing.T) {
	c := ClassifyTransaction(models.Transaction{})
	assert.False(t, c.IsCoinbase)
	assert.False(t, c.IsStaking)
	assert.Equal(t, int64(0), c.Fee)
	assert.NotNil(t, c.Rewards)
}

func TestAnnotate(t *testing.T) {
	tx := models.Transaction{
		Size:   250,
		Inputs: []models.TxInput{{Txid: "prev", Address: "addrS", Value: 1000000000}},
		Outputs: []models.TxOutput{
			{N: 0, Address: "addrS", Value: 1050000000},
			{N: 1, Address: "addrM", Value: 200000000},
			{N: 2, Address: "addrO", Value: 100},
		},
	}

	Annotate(&tx)

	assert.True(t, tx.IsStaking)
	assert.Equal(t, int64(1000000000), tx.TotalInput)
	assert.Equal(t, int64(1250000100), tx.TotalOutput)
	assert.True(t, tx.Outputs[0].IsStakingReward)
	assert.True(t, tx.Outputs[0].IsRewardOutput)
	assert.True(t, tx.Outputs[1].IsMasternodeReward)
	assert.False(t, tx.Outputs[2].IsRewardOutput)
	assert.Equal(t, 0.0, tx.FeeRate)

	regular := models.Transaction{
		Size:    200,
		Inputs:  []models.TxInput{{Txid: "a", Value: 1000}},
		Outputs: []models.TxOutput{{Address: "z", Value: 600}},
	}
	Annotate(&regular)
	assert.Equal(t, int64(400), regular.Fee)
	assert.Equal(t, 2.0, regular.FeeRate)
}

func TestAggregateRewards(t *testing.T) {
	block := models.Block{Height: 100, Hash: "bh"}
	cb := ClassifyTransaction(models.Transaction{
		Inputs:  []models.TxInput{{Coinbase: "00"}},
		Outputs: []models.TxOutput{{Address: "addrS", Value: 0}},
	})
	stake := ClassifyTransaction(models.Transaction{
		Inputs:  []models.TxInput{{Txid: "p", Address: "addrS", Value: 1000}},
		Outputs: []models.TxOutput{{Address: "addrS", Value: 1300}, {Address: "addrM", Value: 200}},
	})
	stake2 := ClassifyTransaction(models.Transaction{
		Inputs:  []models.TxInput{{Txid: "q", Address: "addrM", Value: 500}},
		Outputs: []models.TxOutput{{Address: "addrM", Value: 550}, {Address: "addrS", Value: 10}},
	})

	result := AggregateRewards(block, []Classification{cb, stake, stake2})

	assert.Equal(t, int64(100), result.BlockHeight)
	require.Len(t, result.Rewards, 2)
	assert.Equal(t, models.BlockReward{Address: "addrS", StakingReward: 300, MasternodeReward: 10, Total: 310}, result.Rewards[0])
	assert.Equal(t, models.BlockReward{Address: "addrM", StakingReward: 50, MasternodeReward: 200, Total: 250}, result.Rewards[1])
	assert.Equal(t, int64(560), result.Total)
}

func TestNetworkTypeOf(t *testing.T) {
	tests := []struct {
		addr     string
		expected models.NetworkType
	}{
		{"1.2.3.4:9333", models.NetworkIPv4},
		{"1.2.3.4", models.NetworkIPv4},
		{"[2001:db8::1]:8333", models.NetworkIPv6},
		{"2001:db8::1", models.NetworkIPv6},
		{"fe80::1:8333", models.NetworkIPv6},
		{"abcdefghijklmnop.onion:9333", models.NetworkOnion},
		{"example.com:9333", models.NetworkIPv4},
		{"", models.NetworkIPv4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NetworkTypeOf(tt.addr), tt.addr)
	}
}

func TestAnnotateAndFilterPeers(t *testing.T) {
	now := time.Unix(1700000000, 0)
	list := models.PeerList{Peers: []models.Peer{
		{ID: 1, Addr: "1.2.3.4:9333", LastSeen: now.Add(-time.Hour).Unix(), Version: 70015},
		{ID: 2, Addr: "[2001:db8::1]:9333", LastSeen: now.Add(-8 * 24 * time.Hour).Unix(), Version: 70014},
		{ID: 3, Addr: "5.6.7.8:9333", LastSeen: now.Add(-2 * time.Hour).Unix(), Version: 70016, BanScore: 10},
	}}

	AnnotatePeers(&list, now)

	assert.Equal(t, 2, list.Active)
	assert.Equal(t, models.NetworkIPv6, list.Peers[1].Network)
	assert.False(t, list.Peers[1].Active)

	active := FilterPeers(list.Peers, PeerFilter{Status: StatusActive, SortBy: "version", Desc: true})
	require.Len(t, active, 2)
	assert.Equal(t, int64(3), active[0].ID)

	inactive := FilterPeers(list.Peers, PeerFilter{Status: StatusInactive})
	require.Len(t, inactive, 1)
	assert.Equal(t, int64(2), inactive[0].ID)

	byQuery := FilterPeers(list.Peers, PeerFilter{Status: StatusAll, Query: "5.6", Network: models.NetworkIPv4})
	require.Len(t, byQuery, 1)
	assert.Equal(t, int64(3), byQuery[0].ID)

	unsorted := FilterPeers(list.Peers, PeerFilter{SortBy: "bogus"})
	assert.Equal(t, int64(1), unsorted[0].ID)
}

func TestFilterMasternodes(t *testing.T) {
	list := models.MasternodeList{
		Active: []models.Masternode{
			{Txhash: "aaa111", Addr: "1.2.3.4:9333"},
			{Txhash: "bbb222", Addr: "[2001:db8::1]:9333"},
		},
		Inactive: []models.Masternode{
			{Txhash: "ccc333", Addr: "xyz.onion:9333", Status: models.MasternodeExpired},
		},
	}
	AnnotateMasternodes(&list)

	assert.Len(t, FilterMasternodes(list, MasternodeFilter{}), 2)
	assert.Len(t, FilterMasternodes(list, MasternodeFilter{Network: models.NetworkIPv6}), 1)
	assert.Len(t, FilterMasternodes(list, MasternodeFilter{Query: "AAA"}), 1)

	inactive := FilterMasternodes(list, MasternodeFilter{Inactive: true, Network: models.NetworkOnion})
	require.Len(t, inactive, 1)
	assert.Equal(t, "ccc333", inactive[0].Txhash)
}

func TestMasternodeStatus(t *testing.T) {
	assert.True(t, models.MasternodeEnabled.IsHealthy())
	assert.False(t, models.MasternodeExpired.IsHealthy())
	assert.Equal(t, "success", models.MasternodeEnabled.Severity())
	assert.Equal(t, "warning", models.MasternodePosError.Severity())
	assert.Equal(t, "error", models.MasternodeVinSpent.Severity())
	assert.Equal(t, models.MasternodeVinSpent, models.ParseMasternodeStatus(" vin_spent "))
}

func TestBlockTimeTracker(t *testing.T) {
	blocks := []models.Block{
		{Height: 12, Timestamp: 1000 + 120},
		{Height: 10, Timestamp: 1000},
		{Height: 11, Timestamp: 1000 + 60},
		{Height: 14, Timestamp: 1000 + 240},
	}

	avg := AverageBlockTime(blocks)
	assert.InDelta(t, 60.0, avg, 0.0001)

	tracker := NewBlockTimeTracker()
	assert.Equal(t, 0.0, tracker.Average())
	tracker.Observe(models.Block{Height: 5, Timestamp: 100})
	tracker.Observe(models.Block{Height: 4, Timestamp: 50}) // 低于已见高度，忽略
	assert.Equal(t, 0, tracker.Samples())
	tracker.Observe(models.Block{Height: 6, Timestamp: 190})
	assert.Equal(t, 1, tracker.Samples())
	assert.InDelta(t, 90.0, tracker.Average(), 0.0001)
}
