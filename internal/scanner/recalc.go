package scanner

import (
	"context"
	"sync"
)

// Generations 实现参数编辑触发的重算语义：每次 Begin 递增代号并
// 取消上一代的计算上下文，旧代号的结果一律作废。
type Generations struct {
	mu      sync.Mutex
	current uint64
	cancel  context.CancelFunc
}

// Begin 开启新一代计算：取消未完成的上一代，返回绑定本代的上下文与代号。
func (g *Generations) Begin(parent context.Context) (context.Context, uint64) {
	if parent == nil {
		parent = context.Background()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.current++
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	return ctx, g.current
}

// Accept 报告代号是否仍是最新；过期代号的结果必须丢弃。
func (g *Generations) Accept(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.current
}

// Current 返回最新代号，0 表示尚未开始过。
func (g *Generations) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
