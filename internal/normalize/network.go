package normalize

import (
	"strings"

	"github.com/spf13/cast"

	"bbkexplorer/pkg/models"
)

// Candidate field names, canonical first.
var (
	addrReceivedFields = []string{"received", "totalReceived", "total_received"}
	addrSentFields     = []string{"sent", "totalSent", "total_sent"}
	addrTxCountFields  = []string{"transactionCount", "txCount", "tx_count", "txApperances"}
	addrTxListFields   = []string{"transactions", "txs", "history"}
	paginationFields   = []string{"pagination", "paging"}
	pageSizeFields     = []string{"limit", "pageSize", "page_size"}
	totalPagesFields   = []string{"totalPages", "total_pages", "pages"}
	lastSeenFields     = []string{"lastseen", "lastSeen", "last_seen"}
	activeTimeFields   = []string{"activetime", "activeTime", "active_time"}
)

// Address 归一化地址详情
func Address(raw Raw) models.Address {
	a := models.Address{
		Address:          String(raw, "address", "addrStr"),
		Balance:          Int64(raw, "balance"),
		Received:         Int64(raw, addrReceivedFields...),
		Sent:             Int64(raw, addrSentFields...),
		TransactionCount: Int64(raw, addrTxCountFields...),
		FirstSeen:        TimestampField(raw, "firstSeen", "first_seen"),
		LastSeen:         TimestampField(raw, lastSeenFields...),
		Transactions:     []models.AddressTransaction{},
	}
	for _, item := range Objects(raw, addrTxListFields...) {
		a.Transactions = append(a.Transactions, AddressTransaction(item))
	}
	if p := Object(raw, paginationFields...); p != nil {
		a.Pagination = Pagination(p)
	}
	return a
}

// AddressTransaction 归一化地址交易条目
func AddressTransaction(raw Raw) models.AddressTransaction {
	t := models.AddressTransaction{
		Txid:          String(raw, txidFields...),
		BlockHeight:   Int64(raw, txBlockHeightFields...),
		Time:          TimestampField(raw, txTimeFields...),
		Confirmations: Int64(raw, "confirmations"),
		Value:         Int64(raw, "value", "amount"),
	}
	switch models.AddressTxType(strings.ToLower(String(raw, "type", "direction"))) {
	case models.AddressTxSent:
		t.Type = models.AddressTxSent
	case models.AddressTxBoth:
		t.Type = models.AddressTxBoth
	case models.AddressTxReceived:
		t.Type = models.AddressTxReceived
	default:
		if t.Value < 0 {
			t.Type = models.AddressTxSent
		} else {
			t.Type = models.AddressTxReceived
		}
	}
	return t
}

// Pagination 归一化分页信息
func Pagination(raw Raw) models.Pagination {
	return models.Pagination{
		Page:       int(Int64(raw, "page", "currentPage")),
		Limit:      int(Int64(raw, pageSizeFields...)),
		Total:      Int64(raw, "total", "totalItems", "count"),
		TotalPages: int(Int64(raw, totalPagesFields...)),
	}
}

// Masternode 归一化主节点
func Masternode(raw Raw) models.Masternode {
	mn := models.Masternode{
		Rank:        OptionalInt64(raw, "rank"),
		Txhash:      String(raw, "txhash", "txHash", "collateralHash"),
		Outidx:      Int64(raw, "outidx", "outputIndex", "vout"),
		Status:      models.ParseMasternodeStatus(String(raw, "status")),
		Addr:        String(raw, "addr", "address", "ip"),
		Version:     Int64(raw, "version", "protocol"),
		LastSeen:    TimestampField(raw, lastSeenFields...),
		ActiveTime:  Int64(raw, activeTimeFields...),
		LastPaid:    optionalTimestamp(raw, "lastpaid", "lastPaid", "last_paid"),
		OfflineTime: Int64(raw, "offlineTime", "offline_time"),
	}
	switch models.NetworkType(strings.ToLower(String(raw, "network"))) {
	case models.NetworkIPv4:
		mn.Network = models.NetworkIPv4
	case models.NetworkIPv6:
		mn.Network = models.NetworkIPv6
	case models.NetworkOnion:
		mn.Network = models.NetworkOnion
	}
	return mn
}

// MasternodeList 归一化主节点列表。上游可能只返回一个平铺数组，此时按状态拆分
func MasternodeList(raw Raw, flat []Raw) models.MasternodeList {
	list := models.MasternodeList{
		Active:   []models.Masternode{},
		Inactive: []models.Masternode{},
	}
	if raw != nil {
		for _, item := range Objects(raw, "active") {
			list.Active = append(list.Active, Masternode(item))
		}
		for _, item := range Objects(raw, "inactive") {
			list.Inactive = append(list.Inactive, Masternode(item))
		}
		flat = append(flat, Objects(raw, "masternodes", "list")...)
	}
	for _, item := range flat {
		mn := Masternode(item)
		if mn.Status.IsHealthy() {
			list.Active = append(list.Active, mn)
		} else {
			list.Inactive = append(list.Inactive, mn)
		}
	}
	list.Total = models.MasternodeTotals{
		Active:   len(list.Active),
		Inactive: len(list.Inactive),
		Total:    len(list.Active) + len(list.Inactive),
	}
	return list
}

// Peer 归一化对等节点。网络类型与活跃状态由derive包计算
func Peer(raw Raw) models.Peer {
	return models.Peer{
		ID:             Int64(raw, "id"),
		Addr:           String(raw, "addr", "address"),
		Services:       String(raw, "services"),
		LastSend:       TimestampField(raw, "lastsend", "lastSend"),
		LastRecv:       TimestampField(raw, "lastrecv", "lastRecv"),
		LastSeen:       TimestampField(raw, lastSeenFields...),
		ConnTime:       TimestampField(raw, "conntime", "connTime"),
		Version:        Int64(raw, "version"),
		Subver:         String(raw, "subver", "subVersion"),
		StartingHeight: Int64(raw, "startingheight", "startingHeight"),
		BanScore:       Int64(raw, "banscore", "banScore"),
		SyncedHeaders:  Int64(raw, "synced_headers", "syncedHeaders"),
		SyncedBlocks:   Int64(raw, "synced_blocks", "syncedBlocks"),
	}
}

// PeerList 归一化对等节点列表
func PeerList(raw Raw, flat []Raw) models.PeerList {
	list := models.PeerList{Peers: []models.Peer{}}
	if raw != nil {
		flat = append(flat, Objects(raw, "peers")...)
		list.Stored = int(Int64(raw, "stored"))
	}
	for _, item := range flat {
		list.Peers = append(list.Peers, Peer(item))
	}
	list.Total = len(list.Peers)
	return list
}

// NetworkStats 归一化网络统计
func NetworkStats(raw Raw) models.NetworkStats {
	stats := models.NetworkStats{
		BlockHeight:       Int64(raw, "blockHeight", "height", "blocks"),
		Difficulty:        Float64(raw, "difficulty"),
		HashRate:          String(raw, "hashRate", "hashrate", "networkhashps"),
		MempoolSize:       Int64(raw, "mempoolSize", "mempool_size"),
		MempoolBytes:      Int64(raw, "mempoolBytes", "mempool_bytes"),
		AvgBlockTime:      Float64(raw, "avgBlockTime", "avg_block_time"),
		AvgFee:            Int64(raw, "avgFee", "avg_fee"),
		TotalTransactions: Int64(raw, "totalTransactions", "total_transactions", "txcount"),
		Connections:       Int64(raw, "connections"),
		ProtocolVersion:   Int64(raw, "protocolVersion", "protocolversion"),
	}
	if mn := Object(raw, "masternodes", "masternodeCount"); mn != nil {
		stats.Masternodes = models.MasternodeCount{
			Total:   Int64(mn, "total"),
			Stable:  Int64(mn, "stable"),
			Enabled: Int64(mn, "enabled"),
			InQueue: Int64(mn, "inqueue", "inQueue"),
			IPv4:    Int64(mn, "ipv4"),
			IPv6:    Int64(mn, "ipv6"),
			Onion:   Int64(mn, "onion"),
		}
	}
	if st := Object(raw, "stakingStatus", "staking"); st != nil {
		stats.StakingStatus = &models.StakingStatus{
			StakingEnabled: Bool(st, "stakingEnabled", "enabled"),
			StakingActive:  Bool(st, "stakingActive", "staking"),
			StakingStatus:  String(st, "stakingStatus", "status"),
			HashesPerSec:   Float64(st, "hashesPerSec"),
			NetStakeWeight: Float64(st, "netStakeWeight", "netstakeweight"),
			ExpectedTime:   Int64(st, "expectedTime", "expectedtime"),
		}
	}
	return stats
}

// SearchResult 归一化远端搜索结果，类型未知时返回false
func SearchResult(raw Raw) (models.SearchResult, bool) {
	t := models.SearchResultType(strings.ToLower(String(raw, "type", "resultType")))
	switch t {
	case models.SearchBlock, models.SearchTransaction, models.SearchAddress, models.SearchMasternode:
		data, _ := First(raw, "data", "result")
		return models.SearchResult{Type: t, Data: data}, true
	case "tx":
		data, _ := First(raw, "data", "result")
		return models.SearchResult{Type: models.SearchTransaction, Data: data}, true
	default:
		return models.SearchResult{}, false
	}
}

// ChainHeight 链高度可能是裸数字，也可能包在对象里
func ChainHeight(v interface{}) (int64, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		if !Has(m, "height", "blockHeight", "blocks", "blockcount") {
			return 0, false
		}
		return Int64(m, "height", "blockHeight", "blocks", "blockcount"), true
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(f), true
}

func optionalTimestamp(raw Raw, names ...string) *int64 {
	if !Has(raw, names...) {
		return nil
	}
	ts := TimestampField(raw, names...)
	return &ts
}
