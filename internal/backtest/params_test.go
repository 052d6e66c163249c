package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyParamsNormalize(t *testing.T) {
	def := DefaultStrategyParams()

	got := StrategyParams{}.Normalize()
	assert.Equal(t, def.GCFastMA, got.GCFastMA)
	assert.Equal(t, def.GCSlowMA, got.GCSlowMA)
	assert.Equal(t, def.TargetPullbackMax, got.TargetPullbackMax)
	assert.Equal(t, def.StepDropPct, got.StepDropPct)
	// 布尔过滤不回填，零值就是关闭
	assert.False(t, got.RequireLongMAOrder)

	p := def
	p.PullbackShortMA = -3
	p.StepDropPct = -1
	got = p.Normalize()
	assert.Equal(t, def.PullbackShortMA, got.PullbackShortMA)
	assert.Equal(t, def.StepDropPct, got.StepDropPct)

	p = def
	p.StepDropPct = 0 // 零是合法值：每轮无需额外跌幅
	assert.Equal(t, 0.0, p.Normalize().StepDropPct)
}

func TestSimParamsNormalize(t *testing.T) {
	def := DefaultSimParams()

	got := SimParams{}.Normalize()
	assert.Equal(t, def.InitialCapital, got.InitialCapital)
	assert.Equal(t, def.MaxRounds, got.MaxRounds)
	assert.Equal(t, def.Multiplier, got.Multiplier)
	assert.Equal(t, 0.0, got.BuyFeeRate, "零费率合法，不回填")
	assert.False(t, got.UseKRFeeModel)

	p := def
	p.BuyFeeRate = -0.1
	p.SellFeeRate = -0.1
	got = p.Normalize()
	assert.Equal(t, def.BuyFeeRate, got.BuyFeeRate)
	assert.Equal(t, def.SellFeeRate, got.SellFeeRate)
}

func TestRequiredPeriods(t *testing.T) {
	p := StrategyParams{
		GCFastMA:        20,
		GCSlowMA:        50,
		PullbackShortMA: 5,
		PullbackBaseMA:  20,
		LongFastMA:      150,
		LongSlowMA:      200,
	}
	assert.Equal(t, []int{5, 20, 50, 150, 200}, RequiredPeriods(p))
	assert.Equal(t, []int{5, 10, 20, 50, 150, 200}, RequiredPeriods(p, 10, 5, 0))
	assert.Equal(t, 200, p.MaxPeriod())
}
