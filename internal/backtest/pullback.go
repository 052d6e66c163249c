package backtest

// pullbackPhase 用标签状态表达回调检测器，杜绝布尔组合出现非法状态。
type pullbackPhase int

const (
	pullbackDormant pullbackPhase = iota // 未上膛
	pullbackArmed                        // 已收复基准线，等待跌破
	pullbackInEpisode                    // 回调进行中
)

// pullbackState 由回调检测器独占持有，加仓器与退出引擎只读。
type pullbackState struct {
	phase    pullbackPhase
	episode  int  // 当前 GC 周期内的回调序号，周期激活时归零
	eligible bool // 本次回调是否允许建仓，开始瞬间一次性判定
}

// pullbackDetector 在趋势周期内识别回调（收复基准线后跌破短/基准双线）。
//
// 序号统计所有满足跌破条件的回调，与是否 eligible 无关——长周期过滤
// 只决定能不能买，不影响计数。这是策略的刻意设计。
type pullbackDetector struct {
	short, base        int
	longFast, longSlow int

	requireLongOrder      bool
	requireCloseAboveLong bool

	state pullbackState
}

func newPullbackDetector(p StrategyParams) *pullbackDetector {
	return &pullbackDetector{
		short:                 p.PullbackShortMA,
		base:                  p.PullbackBaseMA,
		longFast:              p.LongFastMA,
		longSlow:              p.LongSlowMA,
		requireLongOrder:      p.RequireLongMAOrder,
		requireCloseAboveLong: p.RequireCloseAboveLongMA,
	}
}

// reset 在 GC 周期激活时调用，回调序号从零重数。
func (d *pullbackDetector) reset() {
	d.state = pullbackState{}
}

// disarm 在周期失效或持仓结算时调用；历史序号保留（下次激活才归零）。
func (d *pullbackDetector) disarm() {
	d.state.phase = pullbackDormant
	d.state.eligible = false
}

// step 推进一根 bar。仅当趋势周期激活时被调用，否则检测器休眠。
func (d *pullbackDetector) step(f *Frame, i int) {
	close := f.Bars[i].Close
	shortMA := f.MA(d.short, i)
	baseMA := f.MA(d.base, i)

	// 收复基准线即上膛；重复触发无副作用
	if d.state.phase != pullbackInEpisode && gt(close, baseMA) {
		d.state.phase = pullbackArmed
	}

	// 上膛后同时跌破短线与基准线，开启一次新回调
	if d.state.phase == pullbackArmed && lt(close, shortMA) && lt(close, baseMA) {
		d.state.phase = pullbackInEpisode
		d.state.episode++
		d.state.eligible = d.evalEligibility(f, i)
		return
	}

	// 收复任意一条均线即结束回调；若直接站上基准线则重新上膛
	if d.state.phase == pullbackInEpisode && (gt(close, shortMA) || gt(close, baseMA)) {
		if gt(close, baseMA) {
			d.state.phase = pullbackArmed
		} else {
			d.state.phase = pullbackDormant
		}
		d.state.eligible = false
	}
}

// evalEligibility 在回调开始瞬间判定长周期过滤，此后整个回调期固定不变。
func (d *pullbackDetector) evalEligibility(f *Frame, i int) bool {
	ok := true
	if d.requireLongOrder {
		ok = ok && gt(f.MA(d.longFast, i), f.MA(d.longSlow, i))
	}
	if d.requireCloseAboveLong {
		ok = ok && gt(f.Bars[i].Close, f.MA(d.longSlow, i))
	}
	return ok
}
