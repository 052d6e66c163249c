package backtest

import (
	"tfmr/internal/market"
	"tfmr/internal/money"
)

// accumulator 在合格回调内执行分批买入。
//
// 资金按线性权重 1×M, 2×M, … 分配到各轮；每轮预算以初始资金剩余
// 额度封顶，股数取整后若连费用都放不下则逐股回退。
type accumulator struct {
	weights        []float64 // weight(r) = r × multiplier
	baseUnitCash   float64   // initialCapital / Σweights，美元
	initialCapital money.Cents
	maxRounds      int
	targetMax      int
	stepDrop       float64 // 小数形式，0.03 表示 3%
	requireBearish bool
	fees           FeeModel
}

func newAccumulator(strat StrategyParams, sim SimParams, fees FeeModel) *accumulator {
	weights := make([]float64, sim.MaxRounds)
	total := 0.0
	for r := 1; r <= sim.MaxRounds; r++ {
		w := float64(r) * sim.Multiplier
		weights[r-1] = w
		total += w
	}
	base := 0.0
	if total > 0 {
		base = sim.InitialCapital / total
	}
	return &accumulator{
		weights:        weights,
		baseUnitCash:   base,
		initialCapital: money.FromDollars(sim.InitialCapital),
		maxRounds:      sim.MaxRounds,
		targetMax:      strat.TargetPullbackMax,
		stepDrop:       strat.StepDropPct / 100.0,
		requireBearish: strat.RequireBearishEntry,
		fees:           fees,
	}
}

// tryBuy 在当前 bar 上评估一次分批买入；成单时更新持仓并返回 true。
// 股数不足一股或预算耗尽都按"本根无交易"处理，轮次不被消耗。
func (a *accumulator) tryBuy(pos *position, st pullbackState, bar market.Bar) bool {
	if st.phase != pullbackInEpisode || !st.eligible {
		return false
	}
	if st.episode < 1 || st.episode > a.targetMax {
		return false
	}
	if a.requireBearish && !(bar.Close < bar.Open) {
		return false
	}

	price := bar.Close
	switch {
	case pos.rounds == 0:
		// 首轮在回调内第一根合格 bar 上无条件成交
	case pos.rounds < a.maxRounds:
		if !(price <= pos.lastFillPrice*(1.0-a.stepDrop)) {
			return false
		}
	default:
		return false
	}
	nextRound := pos.rounds + 1

	remaining := a.initialCapital - pos.totalCost
	if remaining <= 0 {
		return false // 资金耗尽按无单处理，不视为错误
	}
	budget := a.baseUnitCash * a.weights[nextRound-1]
	if rd := remaining.Dollars(); budget > rd {
		budget = rd
	}
	if budget <= 0 || price <= 0 {
		return false
	}
	unitCost := price * (1.0 + a.fees.BuyRate)
	if unitCost <= 0 {
		return false
	}
	qty := int64(budget / unitCost)
	if qty < 1 {
		return false
	}

	gross := money.Amount(price, qty)
	fee := a.fees.BuyFee(gross)
	total := gross + fee
	// 取整到美分后可能比剩余额度多出零头，逐股回退直到放得下
	for qty > 0 && total > remaining {
		qty--
		gross = money.Amount(price, qty)
		fee = a.fees.BuyFee(gross)
		total = gross + fee
	}
	if qty < 1 {
		return false
	}

	dropPct := 0.0
	if nextRound > 1 && pos.lastFillPrice > 0 {
		dropPct = (price - pos.lastFillPrice) / pos.lastFillPrice * 100.0
	}

	if pos.units == 0 {
		pos.entryDate = bar.Date
	}
	pos.units += qty
	pos.totalCost += total
	pos.rounds = nextRound
	pos.lastFillPrice = price
	pos.buys = append(pos.buys, BuyRecord{
		Round:           nextRound,
		Date:            bar.Date,
		Quantity:        qty,
		CumulativeUnits: pos.units,
		Price:           price,
		Fee:             fee,
		GrossAmount:     gross,
		TotalAmount:     total,
		CumulativeCost:  pos.totalCost,
		AveragePrice:    pos.avgPrice(),
		DropPct:         dropPct,
	})
	return true
}
