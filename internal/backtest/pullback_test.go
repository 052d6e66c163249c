package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPullbackDetectorPhases(t *testing.T) {
	// 10,10,10 预热 → 12 收复上膛 → 9 跌破开启回调 → 11 收复基准重新上膛
	// → 9 第二次跌破 → 10 只收复短线回到未上膛
	closes := []float64{10, 10, 10, 12, 9, 11, 9, 10}
	f := frameOf(t, closes, []int{2, 3, 4})
	p := StrategyParams{PullbackShortMA: 2, PullbackBaseMA: 3, LongFastMA: 3, LongSlowMA: 4}
	d := newPullbackDetector(p)

	d.step(f, 1)
	d.step(f, 2)
	assert.Equal(t, pullbackDormant, d.state.phase)

	d.step(f, 3)
	assert.Equal(t, pullbackArmed, d.state.phase)
	assert.Equal(t, 0, d.state.episode)

	d.step(f, 4)
	assert.Equal(t, pullbackInEpisode, d.state.phase)
	assert.Equal(t, 1, d.state.episode)
	assert.True(t, d.state.eligible, "过滤关闭时默认可建仓")

	d.step(f, 5)
	assert.Equal(t, pullbackArmed, d.state.phase, "站回基准线直接重新上膛")
	assert.False(t, d.state.eligible)

	d.step(f, 6)
	assert.Equal(t, pullbackInEpisode, d.state.phase)
	assert.Equal(t, 2, d.state.episode)

	d.step(f, 7)
	assert.Equal(t, pullbackDormant, d.state.phase, "只收复短线不够重新上膛")
	assert.Equal(t, 2, d.state.episode, "序号保留到下个周期")
}

func TestPullbackDetectorEligibilityFixedAtStart(t *testing.T) {
	closes := []float64{10, 10, 10, 12, 9, 11, 9, 10}
	f := frameOf(t, closes, []int{2, 3, 4})
	p := StrategyParams{
		PullbackShortMA:         2,
		PullbackBaseMA:          3,
		LongFastMA:              3,
		LongSlowMA:              4,
		RequireCloseAboveLongMA: true,
	}
	d := newPullbackDetector(p)
	for i := 1; i < f.Len(); i++ {
		d.step(f, i)
		if d.state.phase == pullbackInEpisode {
			// 跌破当根 9 < MA4，长周期过滤不过；序号照常累加
			assert.False(t, d.state.eligible)
		}
	}
	assert.Equal(t, 2, d.state.episode)
}

func TestPullbackDetectorResetAndDisarm(t *testing.T) {
	closes := []float64{10, 10, 10, 12, 9}
	f := frameOf(t, closes, []int{2, 3, 4})
	p := StrategyParams{PullbackShortMA: 2, PullbackBaseMA: 3, LongFastMA: 3, LongSlowMA: 4}
	d := newPullbackDetector(p)
	for i := 1; i < f.Len(); i++ {
		d.step(f, i)
	}
	assert.Equal(t, pullbackInEpisode, d.state.phase)
	assert.Equal(t, 1, d.state.episode)

	d.disarm()
	assert.Equal(t, pullbackDormant, d.state.phase)
	assert.False(t, d.state.eligible)
	assert.Equal(t, 1, d.state.episode, "disarm 不重置序号")

	d.reset()
	assert.Equal(t, pullbackState{}, d.state, "周期激活才归零")
}
