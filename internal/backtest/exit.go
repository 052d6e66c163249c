package backtest

import (
	"fmt"

	"tfmr/internal/market"
	"tfmr/internal/money"
)

// taxRate 目前固定为 0（年度资本利得税不在回测口径内），
// 但按费率建模，便于后续扩展。
const taxRate = 0.0

// exitEngine 判定清仓并执行结算。
type exitEngine struct {
	fast, slow  int
	short, base int
	fees        FeeModel
}

func newExitEngine(p StrategyParams, fees FeeModel) *exitEngine {
	return &exitEngine{
		fast:  p.GCFastMA,
		slow:  p.GCSlowMA,
		short: p.PullbackShortMA,
		base:  p.PullbackBaseMA,
		fees:  fees,
	}
}

// check 返回当前 bar 是否触发清仓及展示用原因。
// 原因只影响标注，三种触发的结算算法完全一致。
func (e *exitEngine) check(f *Frame, i int) (bool, string) {
	close := f.Bars[i].Close
	signalBase := gt(close, f.MA(e.base, i))
	signalShort := gt(close, f.MA(e.short, i))
	trendBroken := lt(f.MA(e.fast, i), f.MA(e.slow, i))

	if !signalBase && !signalShort && !trendBroken {
		return false, ""
	}
	switch {
	case trendBroken && !signalBase && !signalShort:
		return true, fmt.Sprintf("Trend Broken (MA%d<MA%d)", e.fast, e.slow)
	case signalBase:
		return true, fmt.Sprintf("Signal (Close > MA%d)", e.base)
	default:
		return true, fmt.Sprintf("Signal (Close > MA%d)", e.short)
	}
}

// settle 按当前收盘价全额卖出并计提各项费用。
func (e *exitEngine) settle(pos *position, bar market.Bar, reason string) SellRecord {
	gross := money.Amount(bar.Close, pos.units)
	brokerFee := e.fees.SellFee(gross)
	secFee := e.fees.RegulatoryFee(bar.Date, gross)
	tafFee := e.fees.VenueFee(pos.units)
	totalFee := brokerFee + secFee + tafFee
	tax := money.MulRate(gross, taxRate)
	net := gross - totalFee - tax

	return SellRecord{
		Date:          bar.Date,
		Quantity:      pos.units,
		Price:         bar.Close,
		GrossAmount:   gross,
		BrokerFee:     brokerFee,
		RegulatoryFee: secFee,
		VenueFee:      tafFee,
		TotalFee:      totalFee,
		Tax:           tax,
		NetProceeds:   net,
		Profit:        net - pos.totalCost,
		Reason:        reason,
	}
}
