package derive

import (
	"sort"
	"sync"

	"github.com/VividCortex/ewma"

	"bbkexplorer/pkg/models"
)

// BlockTimeTracker 用指数加权移动平均估计出块间隔（秒）
type BlockTimeTracker struct {
	mu         sync.Mutex
	avg        ewma.MovingAverage
	lastHeight int64
	lastTime   int64
	samples    int
}

// NewBlockTimeTracker 创建出块间隔跟踪器
func NewBlockTimeTracker() *BlockTimeTracker {
	return &BlockTimeTracker{avg: ewma.NewMovingAverage(), lastHeight: -1}
}

// Observe 记录新区块。只接受比上一个更高的区块，间隔按高度差均摊
func (t *BlockTimeTracker) Observe(b models.Block) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastHeight >= 0 && b.Height > t.lastHeight && b.Timestamp > 0 && t.lastTime > 0 {
		interval := float64(b.Timestamp-t.lastTime) / float64(b.Height-t.lastHeight)
		if interval > 0 {
			t.avg.Add(interval)
			t.samples++
		}
	}
	if b.Height > t.lastHeight {
		t.lastHeight = b.Height
		t.lastTime = b.Timestamp
	}
}

// Average 当前平均出块间隔，没有样本时返回0
func (t *BlockTimeTracker) Average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.samples == 0 {
		return 0
	}
	return t.avg.Value()
}

// Samples 已记录的间隔样本数
func (t *BlockTimeTracker) Samples() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

// AverageBlockTime 对一组区块按高度升序计算平均出块间隔
func AverageBlockTime(blocks []models.Block) float64 {
	sorted := make([]models.Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })

	tracker := NewBlockTimeTracker()
	for _, b := range sorted {
		tracker.Observe(b)
	}
	return tracker.Average()
}
