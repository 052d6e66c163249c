package backtest

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"tfmr/internal/market"
)

// Frame 把 K 线序列与对齐的 SMA 派生列绑在一起。
// 第 i 位的值是截至第 i 根收盘的 window 期算术均值；
// 观测不足 window 根时为 NaN，所有比较按"条件不成立"处理。
type Frame struct {
	Bars market.Series
	ma   map[int][]float64
}

// ComputeMovingAverages 为每个窗口计算一列 SMA。纯函数，不修改输入。
func ComputeMovingAverages(bars market.Series, periods []int) *Frame {
	f := &Frame{Bars: bars, ma: make(map[int][]float64, len(periods))}
	closes := bars.Closes()
	for _, period := range periods {
		if period < 1 {
			continue
		}
		if _, ok := f.ma[period]; ok {
			continue
		}
		f.ma[period] = smaColumn(closes, period)
	}
	return f
}

func smaColumn(closes []float64, period int) []float64 {
	n := len(closes)
	if period == 1 {
		out := make([]float64, n)
		copy(out, closes)
		return out
	}
	if n < period {
		out := make([]float64, n)
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	out := talib.Sma(closes, period)
	// talib 对 warmup 段填 0，这里改成 NaN 以承载"未定义"语义
	for i := 0; i < period-1 && i < n; i++ {
		out[i] = math.NaN()
	}
	return out
}

// Len 返回 bar 数。
func (f *Frame) Len() int { return len(f.Bars) }

// MA 返回第 i 根上 period 窗口的均线值；越界或缺列时为 NaN。
func (f *Frame) MA(period, i int) float64 {
	col, ok := f.ma[period]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Periods 返回当前帧已计算的窗口（无序）。
func (f *Frame) Periods() []int {
	out := make([]int, 0, len(f.ma))
	for p := range f.ma {
		out = append(out, p)
	}
	return out
}

// NaN 参与的比较一律不成立，状态机因此在数据不足时保持原状。
func gt(a, b float64) bool { return !math.IsNaN(a) && !math.IsNaN(b) && a > b }
func lt(a, b float64) bool { return !math.IsNaN(a) && !math.IsNaN(b) && a < b }
func le(a, b float64) bool { return !math.IsNaN(a) && !math.IsNaN(b) && a <= b }
