package backtest

import "sort"

// StrategyParams 描述 TFMR 策略的全部均线窗口与入场过滤条件。
// 一次回测期间不可变；边界层负责把外部输入规整到合法区间。
type StrategyParams struct {
	GCFastMA          int     `json:"gc_fast_ma" mapstructure:"gc_fast_ma"`
	GCSlowMA          int     `json:"gc_slow_ma" mapstructure:"gc_slow_ma"`
	PullbackShortMA   int     `json:"pullback_short_ma" mapstructure:"pullback_short_ma"`
	PullbackBaseMA    int     `json:"pullback_base_ma" mapstructure:"pullback_base_ma"`
	LongFastMA        int     `json:"long_fast_ma" mapstructure:"long_fast_ma"`
	LongSlowMA        int     `json:"long_slow_ma" mapstructure:"long_slow_ma"`
	TargetPullbackMax int     `json:"target_pullback_no" mapstructure:"target_pullback_no"`
	StepDropPct       float64 `json:"step_drop_pct" mapstructure:"step_drop_pct"` // 3 表示 3%

	RequireLongMAOrder      bool `json:"require_long_ma_order" mapstructure:"require_long_ma_order"`
	RequireCloseAboveLongMA bool `json:"require_close_above_long_ma" mapstructure:"require_close_above_long_ma"`
	RequireBearishEntry     bool `json:"require_bearish_entry" mapstructure:"require_bearish_entry"`
}

// DefaultStrategyParams 是 HTS 参考实现的缺省参数组。
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		GCFastMA:                20,
		GCSlowMA:                50,
		PullbackShortMA:         5,
		PullbackBaseMA:          20,
		LongFastMA:              150,
		LongSlowMA:              200,
		TargetPullbackMax:       1,
		StepDropPct:             3.0,
		RequireLongMAOrder:      true,
		RequireCloseAboveLongMA: true,
		RequireBearishEntry:     true,
	}
}

// Normalize 把越界数值回落为默认值。核心引擎假定输入已经过这里。
func (p StrategyParams) Normalize() StrategyParams {
	def := DefaultStrategyParams()
	fix := func(v, d int) int {
		if v < 1 {
			return d
		}
		return v
	}
	p.GCFastMA = fix(p.GCFastMA, def.GCFastMA)
	p.GCSlowMA = fix(p.GCSlowMA, def.GCSlowMA)
	p.PullbackShortMA = fix(p.PullbackShortMA, def.PullbackShortMA)
	p.PullbackBaseMA = fix(p.PullbackBaseMA, def.PullbackBaseMA)
	p.LongFastMA = fix(p.LongFastMA, def.LongFastMA)
	p.LongSlowMA = fix(p.LongSlowMA, def.LongSlowMA)
	p.TargetPullbackMax = fix(p.TargetPullbackMax, def.TargetPullbackMax)
	if p.StepDropPct < 0 {
		p.StepDropPct = def.StepDropPct
	}
	return p
}

// MAPeriods 返回策略引用的窗口集合（含重复，由调用方去重）。
func (p StrategyParams) MAPeriods() []int {
	return []int{p.GCFastMA, p.GCSlowMA, p.PullbackShortMA, p.PullbackBaseMA, p.LongFastMA, p.LongSlowMA}
}

// MaxPeriod 返回最长窗口；bar 数不超过它时回测直接空结果。
func (p StrategyParams) MaxPeriod() int {
	max := 0
	for _, v := range p.MAPeriods() {
		if v > max {
			max = v
		}
	}
	return max
}

// RequiredPeriods 返回策略窗口与额外展示窗口的去重升序并集。
func RequiredPeriods(p StrategyParams, extra ...int) []int {
	seen := make(map[int]struct{})
	var out []int
	add := func(v int) {
		if v < 1 {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range p.MAPeriods() {
		add(v)
	}
	for _, v := range extra {
		add(v)
	}
	sort.Ints(out)
	return out
}

// SimParams 描述一次模拟的资金与费率口径。
type SimParams struct {
	InitialCapital float64 `json:"initial_capital" mapstructure:"initial_capital"`
	MaxRounds      int     `json:"max_rounds" mapstructure:"max_rounds"`
	Multiplier     float64 `json:"multiplier" mapstructure:"multiplier"`
	BuyFeeRate     float64 `json:"buy_fee_rate" mapstructure:"buy_fee_rate"`
	SellFeeRate    float64 `json:"sell_fee_rate" mapstructure:"sell_fee_rate"`
	UseKRFeeModel  bool    `json:"use_kr_fee_model" mapstructure:"use_kr_fee_model"`
}

// DefaultSimParams 对应 KR 在线券商（美股）缺省费率。
func DefaultSimParams() SimParams {
	return SimParams{
		InitialCapital: 10000,
		MaxRounds:      5,
		Multiplier:     1.0,
		BuyFeeRate:     DefaultBuyFeeRate,
		SellFeeRate:    DefaultSellFeeRate,
		UseKRFeeModel:  true,
	}
}

// Normalize 同 StrategyParams.Normalize，非法值回落默认。
func (p SimParams) Normalize() SimParams {
	def := DefaultSimParams()
	if p.InitialCapital <= 0 {
		p.InitialCapital = def.InitialCapital
	}
	if p.MaxRounds < 1 {
		p.MaxRounds = def.MaxRounds
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.BuyFeeRate < 0 {
		p.BuyFeeRate = def.BuyFeeRate
	}
	if p.SellFeeRate < 0 {
		p.SellFeeRate = def.SellFeeRate
	}
	return p
}
