package backtest

import (
	"time"

	"tfmr/internal/money"
)

// BuyRecord 记录一次分批买入，追加后不再修改。金额字段均为美分。
type BuyRecord struct {
	Round           int         `json:"round"` // 1 起
	Date            time.Time   `json:"date"`
	Quantity        int64       `json:"qty"`
	CumulativeUnits int64       `json:"holding_qty"`
	Price           float64     `json:"price"`
	Fee             money.Cents `json:"fee"`
	GrossAmount     money.Cents `json:"amount"`
	TotalAmount     money.Cents `json:"total_amount"` // 含佣金
	CumulativeCost  money.Cents `json:"cum_cost"`
	AveragePrice    float64     `json:"avg_price"`
	DropPct         float64     `json:"drop_pct"` // 相对上一轮成交价，首轮为 0
}

// SellRecord 记录一次清仓结算，每笔持仓恰好一条。
type SellRecord struct {
	Date          time.Time   `json:"date"`
	Quantity      int64       `json:"qty"`
	Price         float64     `json:"price"`
	GrossAmount   money.Cents `json:"amount"`
	BrokerFee     money.Cents `json:"broker_fee"`
	RegulatoryFee money.Cents `json:"sec_fee"`
	VenueFee      money.Cents `json:"taf_fee"`
	TotalFee      money.Cents `json:"fee"`
	Tax           money.Cents `json:"tax"`
	NetProceeds   money.Cents `json:"net"`
	Profit        money.Cents `json:"pnl"`
	Reason        string      `json:"reason"`
}

// TradeSummary 汇总一笔完整买卖的现金口径。
type TradeSummary struct {
	TotalCost   money.Cents `json:"total_cost"`
	NetProceeds money.Cents `json:"net_proceeds"`
	PnL         money.Cents `json:"pnl"`
	ROIPct      float64     `json:"roi_pct"` // 相对初始资金
}

// TradeLogEntry 是一笔完整"建仓→清仓"的不可变记录，回测的持久输出。
type TradeLogEntry struct {
	Ticker       string       `json:"ticker"`
	CycleStart   time.Time    `json:"cycle_start"`
	Episode      int          `json:"pullback_no"`
	EntryDate    time.Time    `json:"entry_date"`
	ExitDate     time.Time    `json:"exit_date"`
	HoldingWeeks int          `json:"weeks"`
	Rounds       int          `json:"rounds"` // 实际成交轮数
	Units        int64        `json:"units"`
	AveragePrice float64      `json:"avg_price"`
	ReturnPct    float64      `json:"return_pct"` // 相对本笔投入
	Profit       money.Cents  `json:"profit"`
	Buys         []BuyRecord  `json:"buys"`
	Sell         SellRecord   `json:"sell"`
	Summary      TradeSummary `json:"summary"`
}

// position 是一笔在建仓位。只存在于首轮买入与结算之间；
// 不变式：units == 0 ⇔ totalCost == 0 ⇔ entryDate 为零值。
type position struct {
	units         int64
	totalCost     money.Cents
	entryDate     time.Time
	rounds        int
	lastFillPrice float64
	buys          []BuyRecord
}

func (p *position) open() bool { return p.units > 0 }

// avgPrice 返回保本价（含费摊薄）。
func (p *position) avgPrice() float64 {
	if p.units == 0 {
		return 0
	}
	return p.totalCost.Dollars() / float64(p.units)
}
