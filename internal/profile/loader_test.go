package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfmr/internal/backtest"
)

func writeProfiles(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoaderMergesBuiltin(t *testing.T) {
	path := writeProfiles(t, `profiles:
  toss:
    display_name: Toss Securities
    buy_fee_rate: 0.001
    sell_fee_rate: 0.001
    use_kr_fee_model: true
  kis:
    display_name: KIS Overseas
    buy_fee_rate: 0.002
    sell_fee_rate: 0.002
`)
	l, err := NewLoader(path, false)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, []string{"custom", "kakaopay", "kis", "toss"}, snap.Names())

	// 文件条目覆盖内置同名档案
	kis, ok := snap.Resolve("KIS")
	assert.True(t, ok)
	assert.Equal(t, 0.002, kis.BuyFeeRate)
	assert.Equal(t, "KIS Overseas", kis.DisplayName)
	assert.False(t, kis.UseKRFeeModel)

	toss, ok := snap.Resolve("toss")
	assert.True(t, ok)
	assert.True(t, toss.UseKRFeeModel)
}

func TestSnapshotResolveFallsBackToDefault(t *testing.T) {
	snap := NewStatic().Snapshot()
	def, ok := snap.Resolve("no-such-broker")
	assert.False(t, ok)
	assert.Equal(t, "kakaopay", def.Name, "缺省回落到 default 档案")
}

func TestLoaderRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"负费率":  "profiles:\n  x:\n    buy_fee_rate: -0.1\n",
		"未知键":  "profiles:\n  x:\n    commission: 0.1\n",
		"缺顶层键": "brokers:\n  x: {}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLoader(writeProfiles(t, body), false)
			assert.Error(t, err)
		})
	}
}

func TestNormalizeDefinitionRestoresDefaultRates(t *testing.T) {
	def := normalizeDefinition(" Broker ", Definition{BuyFeeRate: -0.1, SellFeeRate: -1})
	assert.Equal(t, "broker", def.Name)
	assert.Equal(t, backtest.DefaultBuyFeeRate, def.BuyFeeRate)
	assert.Equal(t, backtest.DefaultSellFeeRate, def.SellFeeRate)

	// 合法的零费率保持不动
	def = normalizeDefinition("free", Definition{})
	assert.Equal(t, 0.0, def.BuyFeeRate)
	assert.Equal(t, 0.0, def.SellFeeRate)
}

func TestDefinitionApply(t *testing.T) {
	snap := NewStatic().Snapshot()
	kakao, _ := snap.Resolve("kakaopay")

	sim := kakao.Apply(backtestSimFixture())
	assert.Equal(t, 0.0007, sim.BuyFeeRate)
	assert.Equal(t, 0.000708, sim.SellFeeRate)
	assert.True(t, sim.UseKRFeeModel)
	assert.Equal(t, 5000.0, sim.InitialCapital, "资金口径不受档案影响")
}

func backtestSimFixture() backtest.SimParams {
	return backtest.SimParams{InitialCapital: 5000, MaxRounds: 3, Multiplier: 1.0}
}
