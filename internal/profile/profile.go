package profile

import (
	"sort"
	"strings"

	"tfmr/internal/backtest"
)

// Definition 描述一个券商费率档案。
type Definition struct {
	Name          string  `mapstructure:"-"`
	DisplayName   string  `mapstructure:"display_name"`
	BuyFeeRate    float64 `mapstructure:"buy_fee_rate"`
	SellFeeRate   float64 `mapstructure:"sell_fee_rate"`
	UseKRFeeModel bool    `mapstructure:"use_kr_fee_model"`
	Default       bool    `mapstructure:"default"`
}

// Apply 把档案费率写入模拟参数。
func (d Definition) Apply(p backtest.SimParams) backtest.SimParams {
	p.BuyFeeRate = d.BuyFeeRate
	p.SellFeeRate = d.SellFeeRate
	p.UseKRFeeModel = d.UseKRFeeModel
	return p
}

// Builtin 返回内置档案。文件里的同名条目覆盖内置值。
func Builtin() map[string]Definition {
	return map[string]Definition{
		"kakaopay": {
			Name:          "kakaopay",
			DisplayName:   "KakaoPay Securities",
			BuyFeeRate:    backtest.DefaultBuyFeeRate,
			SellFeeRate:   backtest.DefaultSellFeeRate,
			UseKRFeeModel: true,
			Default:       true,
		},
		"kis": {
			Name:          "kis",
			DisplayName:   "Korea Investment & Securities",
			BuyFeeRate:    0.0025,
			SellFeeRate:   0.002508,
			UseKRFeeModel: true,
		},
		"custom": {
			Name:        "custom",
			DisplayName: "Custom",
		},
	}
}

func normalizeDefinition(name string, def Definition) Definition {
	def.Name = strings.ToLower(strings.TrimSpace(name))
	if strings.TrimSpace(def.DisplayName) == "" {
		def.DisplayName = name
	}
	// 负费率视为配置写错，回退到缺省费率而不是 0（0 会让回测白送手续费）
	if def.BuyFeeRate < 0 {
		def.BuyFeeRate = backtest.DefaultBuyFeeRate
	}
	if def.SellFeeRate < 0 {
		def.SellFeeRate = backtest.DefaultSellFeeRate
	}
	return def
}

func sortedNames(defs map[string]Definition) []string {
	out := make([]string, 0, len(defs))
	for name := range defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
