package models

import "strings"

// MasternodeStatus 主节点状态
type MasternodeStatus string

const (
	MasternodeEnabled  MasternodeStatus = "ENABLED"
	MasternodeExpired  MasternodeStatus = "EXPIRED"
	MasternodeVinSpent MasternodeStatus = "VIN_SPENT"
	MasternodeRemove   MasternodeStatus = "REMOVE"
	MasternodePosError MasternodeStatus = "POS_ERROR"
	MasternodeUnknown  MasternodeStatus = "UNKNOWN"
)

// ParseMasternodeStatus 解析状态字符串，未知值返回MasternodeUnknown
func ParseMasternodeStatus(s string) MasternodeStatus {
	switch st := MasternodeStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case MasternodeEnabled, MasternodeExpired, MasternodeVinSpent, MasternodeRemove, MasternodePosError:
		return st
	default:
		return MasternodeUnknown
	}
}

// IsHealthy 只有ENABLED视为健康
func (s MasternodeStatus) IsHealthy() bool {
	return s == MasternodeEnabled
}

// Severity 状态展示级别: success|warning|error
func (s MasternodeStatus) Severity() string {
	switch s {
	case MasternodeEnabled:
		return "success"
	case MasternodeExpired, MasternodePosError:
		return "warning"
	default:
		return "error"
	}
}

// NetworkType 网络类型
type NetworkType string

const (
	NetworkIPv4  NetworkType = "ipv4"
	NetworkIPv6  NetworkType = "ipv6"
	NetworkOnion NetworkType = "onion"
)

// Masternode 主节点
type Masternode struct {
	Rank        *int64           `json:"rank"`
	Network     NetworkType      `json:"network"`
	Txhash      string           `json:"txhash"`
	Outidx      int64            `json:"outidx"`
	Status      MasternodeStatus `json:"status"`
	Addr        string           `json:"addr"`
	Version     int64            `json:"version"`
	LastSeen    int64            `json:"lastseen"`
	ActiveTime  int64            `json:"activetime"`
	LastPaid    *int64           `json:"lastpaid"`
	OfflineTime int64            `json:"offline_time"`
}

// MasternodeTotals 主节点数量汇总
type MasternodeTotals struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Total    int `json:"total"`
}

// MasternodeList 主节点列表（活跃/非活跃）
type MasternodeList struct {
	Active   []Masternode     `json:"active"`
	Inactive []Masternode     `json:"inactive"`
	Total    MasternodeTotals `json:"total"`
}

// MasternodeCount 网络统计中的主节点计数
type MasternodeCount struct {
	Total   int64 `json:"total"`
	Stable  int64 `json:"stable"`
	Enabled int64 `json:"enabled"`
	InQueue int64 `json:"inqueue"`
	IPv4    int64 `json:"ipv4"`
	IPv6    int64 `json:"ipv6"`
	Onion   int64 `json:"onion"`
}

// StakingStatus 质押状态
type StakingStatus struct {
	StakingEnabled bool    `json:"staking_enabled"`
	StakingActive  bool    `json:"staking_active"`
	StakingStatus  string  `json:"staking_status"`
	HashesPerSec   float64 `json:"hashes_per_sec,omitempty"`
	NetStakeWeight float64 `json:"net_stake_weight,omitempty"`
	ExpectedTime   int64   `json:"expected_time,omitempty"`
}

// NetworkStats 网络统计
type NetworkStats struct {
	BlockHeight       int64           `json:"block_height"`
	Difficulty        float64         `json:"difficulty"`
	HashRate          string          `json:"hash_rate"`
	MempoolSize       int64           `json:"mempool_size"`
	MempoolBytes      int64           `json:"mempool_bytes"`
	AvgBlockTime      float64         `json:"avg_block_time"`
	AvgFee            int64           `json:"avg_fee"`
	TotalTransactions int64           `json:"total_transactions"`
	Masternodes       MasternodeCount `json:"masternodes"`
	StakingStatus     *StakingStatus  `json:"staking_status,omitempty"`
	Connections       int64           `json:"connections,omitempty"`
	ProtocolVersion   int64           `json:"protocol_version,omitempty"`
}

// Peer 对等节点
type Peer struct {
	ID             int64       `json:"id"`
	Addr           string      `json:"addr"`
	Network        NetworkType `json:"network"`
	Services       string      `json:"services"`
	LastSend       int64       `json:"lastsend"`
	LastRecv       int64       `json:"lastrecv"`
	LastSeen       int64       `json:"lastseen"`
	ConnTime       int64       `json:"conntime"`
	Version        int64       `json:"version"`
	Subver         string      `json:"subver"`
	StartingHeight int64       `json:"startingheight"`
	BanScore       int64       `json:"banscore"`
	SyncedHeaders  int64       `json:"synced_headers"`
	SyncedBlocks   int64       `json:"synced_blocks"`
	Active         bool        `json:"active"`
}

// PeerList 对等节点列表
type PeerList struct {
	Peers  []Peer `json:"peers"`
	Total  int    `json:"total"`
	Active int    `json:"active"`
	Stored int    `json:"stored"`
}

// Health 上游API健康状态
type Health struct {
	Online    bool   `json:"online"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // ISO 8601
}

// SearchResultType 搜索结果类型
type SearchResultType string

const (
	SearchBlock       SearchResultType = "block"
	SearchTransaction SearchResultType = "transaction"
	SearchAddress     SearchResultType = "address"
	SearchMasternode  SearchResultType = "masternode"
)

// SearchResult 远端搜索结果
type SearchResult struct {
	Type SearchResultType `json:"type"`
	Data interface{}      `json:"data,omitempty"`
}
