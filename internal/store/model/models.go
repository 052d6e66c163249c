package model

import "gorm.io/datatypes"

// RunModel 是一次回测/扫描任务的落库形态。
type RunModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_id;uniqueIndex"`
	Kind          string         `gorm:"column:kind;index"`
	StrategyJSON  datatypes.JSON `gorm:"column:strategy_json"`
	SimJSON       datatypes.JSON `gorm:"column:sim_json"`
	TickerCount   int            `gorm:"column:ticker_count"`
	TradeCount    int            `gorm:"column:trade_count"`
	SignalCount   int            `gorm:"column:signal_count"`
	ProfileName   string         `gorm:"column:profile_name"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (RunModel) TableName() string { return "runs" }

// TradeModel 是单笔完整交易（建仓到清仓）的落库形态。
// 明细（分轮买入、卖出费用拆解）整包存 detail_json。
type TradeModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	RunID          string         `gorm:"column:run_id;index"`
	Ticker         string         `gorm:"column:ticker;index"`
	CycleStartUnix int64          `gorm:"column:cycle_start"`
	Episode        int            `gorm:"column:pullback_no"`
	EntryUnix      int64          `gorm:"column:entry_ts"`
	ExitUnix       int64          `gorm:"column:exit_ts;index"`
	HoldingWeeks   int            `gorm:"column:weeks"`
	Rounds         int            `gorm:"column:rounds"`
	Units          int64          `gorm:"column:units"`
	ReturnPct      float64        `gorm:"column:return_pct"`
	ProfitCents    int64          `gorm:"column:profit_cents"`
	ExitReason     string         `gorm:"column:exit_reason"`
	DetailJSON     datatypes.JSON `gorm:"column:detail_json"`
}

func (TradeModel) TableName() string { return "trades" }

// SignalModel 是扫描命中的落库形态。
type SignalModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	RunID         string  `gorm:"column:run_id;index"`
	Ticker        string  `gorm:"column:ticker;index"`
	Episode       int     `gorm:"column:pullback_no"`
	LastClose     float64 `gorm:"column:last_close"`
	BarUnix       int64   `gorm:"column:bar_ts"`
	CreatedAtUnix int64   `gorm:"column:created_at;index"`
}

func (SignalModel) TableName() string { return "signals" }
