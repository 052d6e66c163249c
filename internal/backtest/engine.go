package backtest

import (
	"math"
	"time"

	"tfmr/internal/money"
)

// RunBacktest 在已算好均线的帧上逐 bar 推演 TFMR 策略，
// 返回按时间排列的完整交易记录。
//
// 纯同步计算：输入不被修改，两次相同输入产出逐字节一致的结果。
// bar 数不超过最长均线窗口时直接返回空（历史不足不是错误）。
func RunBacktest(f *Frame, ticker string, strat StrategyParams, sim SimParams) []TradeLogEntry {
	if f == nil || f.Len() <= strat.MaxPeriod() {
		return nil
	}

	fees := newFeeModel(sim)
	cycle := newCycleDetector(strat)
	pullback := newPullbackDetector(strat)
	acc := newAccumulator(strat, sim, fees)
	exit := newExitEngine(strat, fees)
	initialCapital := money.FromDollars(sim.InitialCapital)

	var (
		pos        position
		logs       []TradeLogEntry
		cycleStart time.Time // 最近一次激活日，周期失效后仍用于标注
	)
	for i := 1; i < f.Len(); i++ {
		bar := f.Bars[i]

		switch cycle.step(f, i) {
		case cycleActivated:
			cycleStart = cycle.state.start
			pullback.reset() // 序号归零，重新等待收复
		case cycleDeactivated:
			pullback.disarm()
		}
		if cycle.state.active {
			pullback.step(f, i)
			acc.tryBuy(&pos, pullback.state, bar)
		}

		if !pos.open() {
			continue
		}
		triggered, reason := exit.check(f, i)
		if !triggered {
			continue
		}
		sell := exit.settle(&pos, bar, reason)
		logs = append(logs, buildEntry(ticker, cycleStart, pullback.state.episode, &pos, sell, initialCapital))
		pos = position{}
		pullback.disarm() // 结算总是同时终结进行中的回调
	}
	return logs
}

// ScanCurrentSignal 判断最后一根 bar 是否处于可建仓状态：
// 回调进行中、eligible、序号在目标范围内，且入场 K 线条件成立。
func ScanCurrentSignal(f *Frame, strat StrategyParams) bool {
	_, ok := CurrentSignal(f, strat)
	return ok
}

// CurrentSignal 与 ScanCurrentSignal 判定一致，额外带出命中时的回调序号。
// 需要完整重放历史才能得到正确的序号。
func CurrentSignal(f *Frame, strat StrategyParams) (episode int, ok bool) {
	if f == nil || f.Len() <= strat.MaxPeriod() {
		return 0, false
	}
	cycle := newCycleDetector(strat)
	pullback := newPullbackDetector(strat)

	last := f.Len() - 1
	for i := 1; i <= last; i++ {
		switch cycle.step(f, i) {
		case cycleActivated:
			pullback.reset()
		case cycleDeactivated:
			pullback.disarm()
		}
		if cycle.state.active {
			pullback.step(f, i)
		}
	}
	if !cycle.state.active {
		return 0, false
	}
	st := pullback.state
	if st.phase != pullbackInEpisode || !st.eligible {
		return 0, false
	}
	if st.episode < 1 || st.episode > strat.TargetPullbackMax {
		return 0, false
	}
	if strat.RequireBearishEntry {
		bar := f.Bars[last]
		if bar.Close >= bar.Open {
			return 0, false
		}
	}
	return st.episode, true
}

func buildEntry(ticker string, cycleStart time.Time, episode int, pos *position, sell SellRecord, initialCapital money.Cents) TradeLogEntry {
	entryDate := pos.entryDate
	if entryDate.IsZero() {
		entryDate = sell.Date
	}
	weeks := int(sell.Date.Sub(entryDate).Hours() / 24 / 7)

	returnPct := 0.0
	if pos.totalCost > 0 {
		returnPct = round2(float64(sell.Profit) / float64(pos.totalCost) * 100.0)
	}
	roiPct := 0.0
	if initialCapital > 0 {
		roiPct = round2(float64(sell.Profit) / float64(initialCapital) * 100.0)
	}

	buys := make([]BuyRecord, len(pos.buys))
	copy(buys, pos.buys)

	return TradeLogEntry{
		Ticker:       ticker,
		CycleStart:   cycleStart,
		Episode:      episode,
		EntryDate:    entryDate,
		ExitDate:     sell.Date,
		HoldingWeeks: weeks,
		Rounds:       pos.rounds,
		Units:        pos.units,
		AveragePrice: round2(pos.avgPrice()),
		ReturnPct:    returnPct,
		Profit:       sell.Profit,
		Buys:         buys,
		Sell:         sell,
		Summary: TradeSummary{
			TotalCost:   pos.totalCost,
			NetProceeds: sell.NetProceeds,
			PnL:         sell.Profit,
			ROIPct:      roiPct,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
