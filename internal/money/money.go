// Package money 以整数美分做资金核算。
//
// 券商对账单是现金口径的，所有金额都落在美分精度上；用 int64 美分 +
// decimal 取整代替 float64，消除二进制浮点的累积误差。
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents 表示以美分计的金额。
type Cents int64

// FromDollars 把美元金额取整到美分（四舍五入，远离零）。
func FromDollars(v float64) Cents {
	return Cents(decimal.NewFromFloat(v).Shift(2).Round(0).IntPart())
}

// Amount 计算 price × qty 的成交金额并取整到美分。
func Amount(price float64, qty int64) Cents {
	d := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty))
	return Cents(d.Shift(2).Round(0).IntPart())
}

// MulRate 按比例费率计算金额（如佣金 = 成交额 × 费率），结果取整到美分。
func MulRate(c Cents, rate float64) Cents {
	d := decimal.NewFromInt(int64(c)).Mul(decimal.NewFromFloat(rate))
	return Cents(d.Round(0).IntPart())
}

// PerShare 计算按股计费的金额（qty × ratePerShare），取整到美分。
func PerShare(rate float64, qty int64) Cents {
	d := decimal.NewFromFloat(rate).Mul(decimal.NewFromInt(qty))
	return Cents(d.Shift(2).Round(0).IntPart())
}

// Dollars 返回美元浮点值，仅供展示层使用。
func (c Cents) Dollars() float64 {
	f, _ := decimal.NewFromInt(int64(c)).Shift(-2).Float64()
	return f
}

func (c Cents) String() string {
	neg := ""
	v := int64(c)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}

// Clamp 把 c 限制在 [lo, hi] 区间。
func Clamp(c, lo, hi Cents) Cents {
	if c < lo {
		return lo
	}
	if c > hi {
		return hi
	}
	return c
}

// Max 返回两者中较大的金额。
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}
