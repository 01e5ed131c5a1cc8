package derive

import (
	"bbkexplorer/pkg/models"
)

// RewardCategory 奖励类别
type RewardCategory string

const (
	CategoryBlockReward RewardCategory = "block_reward"
	CategoryStaking     RewardCategory = "staking"
	CategoryMasternode  RewardCategory = "masternode"
)

// Reward 单条奖励归属记录。coinbase奖励计入StakingReward（展示为区块奖励）
type Reward struct {
	Address          string         `json:"address"`
	Category         RewardCategory `json:"category"`
	OutputIndex      int64          `json:"output_index"`
	MasternodeReward int64          `json:"masternode_reward"`
	StakingReward    int64          `json:"staking_reward"`
}

// Amount 该记录的奖励总额
func (r Reward) Amount() int64 {
	return r.MasternodeReward + r.StakingReward
}

// Classification 交易分类结果
type Classification struct {
	TotalInput    int64    `json:"total_input"`
	TotalOutput   int64    `json:"total_output"`
	IsCoinbase    bool     `json:"is_coinbase"`
	IsStaking     bool     `json:"is_staking"`
	Fee           int64    `json:"fee"`
	StakerAddress string   `json:"staker_address,omitempty"`
	Rewards       []Reward `json:"rewards"`

	// 输出下标到奖励标记
	stakingOutputs   map[int]bool
	masternodeOutput int
	coinbaseOutputs  map[int]bool
}

// ClassifyTransaction 对交易分类并归属新产生的价值。
//
// 质押交易中主节点奖励取“付给非质押者地址的最大单笔输出”，这是对链上结构的
// 近似判断，不是协议保证。
func ClassifyTransaction(tx models.Transaction) Classification {
	c := Classification{
		Rewards:          []Reward{},
		masternodeOutput: -1,
		stakingOutputs:   map[int]bool{},
		coinbaseOutputs:  map[int]bool{},
	}

	for _, in := range tx.Inputs {
		if in.IsCoinbase() {
			c.IsCoinbase = true
			continue
		}
		c.TotalInput += in.Value
	}
	for _, out := range tx.Outputs {
		c.TotalOutput += out.Value
	}

	c.IsStaking = !c.IsCoinbase && c.TotalInput > 0 && c.TotalOutput > c.TotalInput

	if c.TotalInput > 0 && c.TotalOutput > 0 && c.TotalInput > c.TotalOutput {
		c.Fee = c.TotalInput - c.TotalOutput
	}

	switch {
	case c.IsCoinbase:
		c.attributeCoinbase(tx.Outputs)
	case c.IsStaking:
		if len(tx.Inputs) > 0 {
			c.StakerAddress = tx.Inputs[0].Address
		}
		// 无法确定质押者时不归属任何奖励
		if c.StakerAddress != "" {
			c.attributeStaking(tx.Outputs)
		}
	}
	return c
}

func (c *Classification) attributeCoinbase(outputs []models.TxOutput) {
	for i, out := range outputs {
		c.coinbaseOutputs[i] = true
		if out.Value <= 0 || out.Address == "" {
			continue
		}
		c.Rewards = append(c.Rewards, Reward{
			Address:       out.Address,
			Category:      CategoryBlockReward,
			OutputIndex:   out.N,
			StakingReward: out.Value,
		})
	}
}

func (c *Classification) attributeStaking(outputs []models.TxOutput) {
	var paidToStaker int64
	stakerIdx := -1
	best := -1

	for i, out := range outputs {
		if out.Value <= 0 {
			continue
		}
		if out.Address == c.StakerAddress {
			paidToStaker += out.Value
			c.stakingOutputs[i] = true
			if stakerIdx < 0 {
				stakerIdx = i
			}
			continue
		}
		if out.Address == "" {
			continue
		}
		// 严格大于：并列时取第一个
		if best < 0 || out.Value > outputs[best].Value {
			best = i
		}
	}

	if stakingReward := paidToStaker - c.TotalInput; stakingReward > 0 && stakerIdx >= 0 {
		c.Rewards = append(c.Rewards, Reward{
			Address:       c.StakerAddress,
			Category:      CategoryStaking,
			OutputIndex:   outputs[stakerIdx].N,
			StakingReward: stakingReward,
		})
	} else {
		c.stakingOutputs = map[int]bool{}
	}

	if best >= 0 {
		c.masternodeOutput = best
		c.Rewards = append(c.Rewards, Reward{
			Address:          outputs[best].Address,
			Category:         CategoryMasternode,
			OutputIndex:      outputs[best].N,
			MasternodeReward: outputs[best].Value,
		})
	}
}

// StakingReward 质押奖励合计
func (c Classification) StakingReward() int64 {
	var total int64
	for _, r := range c.Rewards {
		total += r.StakingReward
	}
	return total
}

// MasternodeReward 主节点奖励合计
func (c Classification) MasternodeReward() int64 {
	var total int64
	for _, r := range c.Rewards {
		total += r.MasternodeReward
	}
	return total
}

// Annotate 将分类结果写回交易：合计、标记、手续费、输出奖励标记
func Annotate(tx *models.Transaction) Classification {
	c := ClassifyTransaction(*tx)

	tx.TotalInput = c.TotalInput
	tx.TotalOutput = c.TotalOutput
	tx.IsCoinbase = c.IsCoinbase
	tx.IsStaking = c.IsStaking
	tx.Fee = c.Fee
	if tx.Size > 0 && c.Fee > 0 {
		tx.FeeRate = float64(c.Fee) / float64(tx.Size)
	} else if c.Fee == 0 {
		tx.FeeRate = 0
	}

	for i := range tx.Outputs {
		out := &tx.Outputs[i]
		out.IsRewardOutput = false
		out.IsStakingReward = false
		out.IsMasternodeReward = false

		switch {
		case c.coinbaseOutputs[i]:
			out.IsRewardOutput = true
		case c.stakingOutputs[i]:
			out.IsRewardOutput = true
			out.IsStakingReward = true
		case i == c.masternodeOutput:
			out.IsRewardOutput = true
			out.IsMasternodeReward = true
		}
	}
	return c
}

// AggregateRewards 按地址汇总区块内所有交易的奖励，按首次出现顺序输出
func AggregateRewards(block models.Block, classifications []Classification) models.BlockRewards {
	result := models.BlockRewards{
		BlockHeight: block.Height,
		BlockHash:   block.Hash,
		Rewards:     []models.BlockReward{},
	}
	index := make(map[string]int)

	for _, c := range classifications {
		for _, r := range c.Rewards {
			i, ok := index[r.Address]
			if !ok {
				i = len(result.Rewards)
				index[r.Address] = i
				result.Rewards = append(result.Rewards, models.BlockReward{Address: r.Address})
			}
			entry := &result.Rewards[i]
			entry.MasternodeReward += r.MasternodeReward
			entry.StakingReward += r.StakingReward
			entry.Total += r.Amount()
			result.Total += r.Amount()
		}
	}
	return result
}
