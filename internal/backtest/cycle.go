package backtest

import "time"

// cycleState 是趋势周期检测器的标签状态：要么未激活，要么带起始日期激活。
type cycleState struct {
	active bool
	start  time.Time
}

type cycleEvent int

const (
	cycleNone cycleEvent = iota
	cycleActivated
	cycleDeactivated
)

// cycleDetector 跟踪快线是否站上慢线（GC 周期）。
//
// 激活要求严格上穿：前一根 fast ≤ slow 且当前根 fast > slow。
// 失效只看当前根 fast < slow，无需下穿，与激活条件不对称。
type cycleDetector struct {
	fast, slow int
	state      cycleState
}

func newCycleDetector(p StrategyParams) *cycleDetector {
	return &cycleDetector{fast: p.GCFastMA, slow: p.GCSlowMA}
}

// step 在第 i 根上推进状态机，返回发生的迁移事件。
func (d *cycleDetector) step(f *Frame, i int) cycleEvent {
	prevFast := f.MA(d.fast, i-1)
	prevSlow := f.MA(d.slow, i-1)
	curFast := f.MA(d.fast, i)
	curSlow := f.MA(d.slow, i)

	if le(prevFast, prevSlow) && gt(curFast, curSlow) {
		d.state = cycleState{active: true, start: f.Bars[i].Date}
		return cycleActivated
	}
	if lt(curFast, curSlow) {
		d.state = cycleState{}
		return cycleDeactivated
	}
	return cycleNone
}
