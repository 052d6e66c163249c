package backtest

import (
	"time"

	"tfmr/internal/money"
)

// KR 在线券商（美股通道）费率表。SEC 规费在 2025-05-13 起降为零，
// 此前按卖出金额计费；TAF 按股数计费并有上下限。
const (
	DefaultBuyFeeRate  = 0.0007   // 0.0700%
	DefaultSellFeeRate = 0.000708 // 0.0708%

	krSECFeeRate  = 0.0000278
	krTAFPerShare = 0.000166
)

const (
	krMinBrokerFee = money.Cents(1)   // $0.01
	krSECFeeMin    = money.Cents(1)   // $0.01
	krTAFFeeMin    = money.Cents(1)   // $0.01
	krTAFFeeMax    = money.Cents(830) // $8.30
)

var krSECFeeZeroFrom = time.Date(2025, time.May, 13, 0, 0, 0, 0, time.UTC)

// FeeModel 把成交额换算成各项费用。Special 为真时启用 KR 海外券商
// 费率表（最低佣金、SEC 规费、TAF），否则只收纯比例佣金。
type FeeModel struct {
	BuyRate  float64
	SellRate float64
	Special  bool
}

func newFeeModel(sim SimParams) FeeModel {
	return FeeModel{BuyRate: sim.BuyFeeRate, SellRate: sim.SellFeeRate, Special: sim.UseKRFeeModel}
}

func (m FeeModel) brokerFee(amount money.Cents, rate float64) money.Cents {
	fee := money.MulRate(amount, rate)
	if m.Special {
		fee = money.Max(fee, krMinBrokerFee)
	}
	return fee
}

// BuyFee 返回买入佣金。
func (m FeeModel) BuyFee(amount money.Cents) money.Cents {
	return m.brokerFee(amount, m.BuyRate)
}

// SellFee 返回卖出佣金。
func (m FeeModel) SellFee(amount money.Cents) money.Cents {
	return m.brokerFee(amount, m.SellRate)
}

// RegulatoryFee 返回 SEC 规费；仅在特殊费率表且卖出日早于免征日时收取。
func (m FeeModel) RegulatoryFee(exitDate time.Time, sellAmount money.Cents) money.Cents {
	if !m.Special {
		return 0
	}
	if !exitDate.Before(krSECFeeZeroFrom) {
		return 0
	}
	return money.Max(krSECFeeMin, money.MulRate(sellAmount, krSECFeeRate))
}

// VenueFee 返回 TAF（按股计费，夹在上下限之间）。
func (m FeeModel) VenueFee(quantity int64) money.Cents {
	if !m.Special || quantity <= 0 {
		return 0
	}
	return money.Clamp(money.PerShare(krTAFPerShare, quantity), krTAFFeeMin, krTAFFeeMax)
}
