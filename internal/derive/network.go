package derive

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"bbkexplorer/pkg/models"
)

// PeerActiveWindow 最近一周内出现过的节点视为活跃
const PeerActiveWindow = 7 * 24 * time.Hour

var ipv4Pattern = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

// NetworkTypeOf 根据地址字符串推断网络类型，无法判断时默认ipv4
func NetworkTypeOf(addr string) models.NetworkType {
	ipPart := strings.TrimSpace(addr)
	switch {
	case strings.Contains(ipPart, "[") && strings.Contains(ipPart, "]"):
		start := strings.Index(ipPart, "[")
		end := strings.Index(ipPart, "]")
		if end > start {
			ipPart = ipPart[start+1 : end]
		}
	case strings.Contains(ipPart, ":"):
		ipPart = ipPart[:strings.LastIndex(ipPart, ":")]
	}

	if strings.HasSuffix(strings.ToLower(ipPart), ".onion") {
		return models.NetworkOnion
	}
	colons := strings.Count(ipPart, ":")
	if colons > 1 || strings.Contains(ipPart, "::") {
		return models.NetworkIPv6
	}
	if ipv4Pattern.MatchString(ipPart) {
		return models.NetworkIPv4
	}
	if colons >= 1 {
		return models.NetworkIPv6
	}
	return models.NetworkIPv4
}

// IsPeerActive lastseen（已归一为秒）在一周之内
func IsPeerActive(lastSeen int64, now time.Time) bool {
	cutoff := now.Add(-PeerActiveWindow).Unix()
	return lastSeen >= cutoff
}

// AnnotatePeers 填充网络类型与活跃标记，返回活跃数量
func AnnotatePeers(list *models.PeerList, now time.Time) {
	list.Active = 0
	for i := range list.Peers {
		p := &list.Peers[i]
		p.Network = NetworkTypeOf(p.Addr)
		p.Active = IsPeerActive(p.LastSeen, now)
		if p.Active {
			list.Active++
		}
	}
	list.Total = len(list.Peers)
}

// StatusFilter 活跃状态过滤
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusActive   StatusFilter = "active"
	StatusInactive StatusFilter = "inactive"
)

// PeerFilter 对等节点过滤与排序条件
type PeerFilter struct {
	Status  StatusFilter
	Network models.NetworkType // 空表示全部
	Query   string
	SortBy  string // id|addr|network|version|banscore|lastseen
	Desc    bool
}

// FilterPeers 过滤并排序对等节点，不修改输入
func FilterPeers(peers []models.Peer, f PeerFilter) []models.Peer {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Peer, 0, len(peers))
	for _, p := range peers {
		if f.Status == StatusActive && !p.Active || f.Status == StatusInactive && p.Active {
			continue
		}
		if f.Network != "" && p.Network != f.Network {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Addr), query) {
			continue
		}
		out = append(out, p)
	}

	less := peerLess(f.SortBy)
	if less == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func peerLess(column string) func(a, b models.Peer) bool {
	switch column {
	case "id":
		return func(a, b models.Peer) bool { return a.ID < b.ID }
	case "addr":
		return func(a, b models.Peer) bool { return strings.ToLower(a.Addr) < strings.ToLower(b.Addr) }
	case "network":
		return func(a, b models.Peer) bool { return a.Network < b.Network }
	case "version":
		return func(a, b models.Peer) bool { return a.Version < b.Version }
	case "banscore":
		return func(a, b models.Peer) bool { return a.BanScore < b.BanScore }
	case "lastseen":
		return func(a, b models.Peer) bool { return a.LastSeen < b.LastSeen }
	default:
		return nil
	}
}

// MasternodeFilter 主节点过滤条件
type MasternodeFilter struct {
	Inactive bool               // true时查看非活跃列表
	Network  models.NetworkType // 空表示全部
	Query    string             // 匹配addr或txhash
}

// FilterMasternodes 按列表、网络和关键字过滤主节点
func FilterMasternodes(list models.MasternodeList, f MasternodeFilter) []models.Masternode {
	source := list.Active
	if f.Inactive {
		source = list.Inactive
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]models.Masternode, 0, len(source))
	for _, mn := range source {
		if f.Network != "" && mn.Network != f.Network {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(mn.Addr), query) &&
			!strings.Contains(strings.ToLower(mn.Txhash), query) {
			continue
		}
		out = append(out, mn)
	}
	return out
}

// AnnotateMasternodes 上游未给出网络类型时按地址推断
func AnnotateMasternodes(list *models.MasternodeList) {
	for _, nodes := range [][]models.Masternode{list.Active, list.Inactive} {
		for i := range nodes {
			if nodes[i].Network == "" {
				nodes[i].Network = NetworkTypeOf(nodes[i].Addr)
			}
		}
	}
}
