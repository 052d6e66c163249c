package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tfmr/internal/backtest"
	"tfmr/internal/store/model"
)

// RunRecord 描述一次回测/扫描任务。
type RunRecord struct {
	RunID       string                  `json:"run_id"`
	Kind        string                  `json:"kind"` // "backtest" | "scan"
	Strategy    backtest.StrategyParams `json:"strategy"`
	Sim         backtest.SimParams      `json:"sim"`
	TickerCount int                     `json:"ticker_count"`
	TradeCount  int                     `json:"trade_count"`
	SignalCount int                     `json:"signal_count"`
	ProfileName string                  `json:"profile_name"`
	CreatedAt   time.Time               `json:"created_at"`
}

// SignalRecord 是一条扫描命中。
type SignalRecord struct {
	RunID     string    `json:"run_id"`
	Ticker    string    `json:"ticker"`
	Episode   int       `json:"pullback_no"`
	LastClose float64   `json:"last_close"`
	BarDate   time.Time `json:"bar_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 用 Gorm + SQLite 保存任务、成交与信号。
type Store struct {
	db *gorm.DB
}

// New 初始化存储并迁移表结构。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.RunModel{},
		&model.TradeModel{},
		&model.SignalModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL：HTTP 并发读保留一点余量，同时压低锁竞争
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB 暴露底层 *sql.DB，便于共享连接。
func (s *Store) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	return s.db.DB()
}

// SaveRun 写入或更新一次任务（按 run_id 去重，统计字段以新值为准）。
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	rec.RunID = strings.TrimSpace(rec.RunID)
	if rec.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	strategyJSON, err := json.Marshal(rec.Strategy)
	if err != nil {
		return err
	}
	simJSON, err := json.Marshal(rec.Sim)
	if err != nil {
		return err
	}
	m := model.RunModel{
		RunID:         rec.RunID,
		Kind:          strings.TrimSpace(rec.Kind),
		StrategyJSON:  datatypes.JSON(strategyJSON),
		SimJSON:       datatypes.JSON(simJSON),
		TickerCount:   rec.TickerCount,
		TradeCount:    rec.TradeCount,
		SignalCount:   rec.SignalCount,
		ProfileName:   strings.TrimSpace(rec.ProfileName),
		CreatedAtUnix: rec.CreatedAt.Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"ticker_count", "trade_count", "signal_count",
			}),
		}).
		Create(&m).Error
}

// GetRun 按 run_id 取任务。
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, bool, error) {
	if s == nil || s.db == nil {
		return RunRecord{}, false, fmt.Errorf("store not initialized")
	}
	var m model.RunModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", strings.TrimSpace(runID)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	rec, err := runModelToRecord(m)
	if err != nil {
		return RunRecord{}, false, err
	}
	return rec, true, nil
}

// ListRuns 按时间倒序返回最近任务。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []model.RunModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(models))
	for _, m := range models {
		rec, err := runModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendTrades 批量写入一次任务产出的完整交易。
func (s *Store) AppendTrades(ctx context.Context, runID string, entries []backtest.TradeLogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run_id is required")
	}
	if len(entries) == 0 {
		return nil
	}
	models := make([]model.TradeModel, 0, len(entries))
	for _, e := range entries {
		detail, err := json.Marshal(e)
		if err != nil {
			return err
		}
		models = append(models, model.TradeModel{
			RunID:          runID,
			Ticker:         strings.ToUpper(strings.TrimSpace(e.Ticker)),
			CycleStartUnix: e.CycleStart.Unix(),
			Episode:        e.Episode,
			EntryUnix:      e.EntryDate.Unix(),
			ExitUnix:       e.ExitDate.Unix(),
			HoldingWeeks:   e.HoldingWeeks,
			Rounds:         e.Rounds,
			Units:          e.Units,
			ReturnPct:      e.ReturnPct,
			ProfitCents:    int64(e.Profit),
			ExitReason:     e.Sell.Reason,
			DetailJSON:     datatypes.JSON(detail),
		})
	}
	return s.db.WithContext(ctx).Create(&models).Error
}

// ListTrades 按任务（可选按标的）返回交易明细，退出时间倒序。
func (s *Store) ListTrades(ctx context.Context, runID, ticker string, limit, offset int) ([]backtest.TradeLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Where("run_id = ?", strings.TrimSpace(runID))
	if sym := strings.ToUpper(strings.TrimSpace(ticker)); sym != "" {
		query = query.Where("ticker = ?", sym)
	}
	var models []model.TradeModel
	if err := query.
		Order("exit_ts DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.TradeLogEntry, 0, len(models))
	for _, m := range models {
		var entry backtest.TradeLogEntry
		if err := json.Unmarshal(m.DetailJSON, &entry); err != nil {
			return nil, fmt.Errorf("decode trade detail failed (id=%d): %w", m.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// SaveSignals 批量写入扫描命中。
func (s *Store) SaveSignals(ctx context.Context, signals []SignalRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if len(signals) == 0 {
		return nil
	}
	now := time.Now()
	models := make([]model.SignalModel, 0, len(signals))
	for _, sig := range signals {
		createdAt := sig.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		models = append(models, model.SignalModel{
			RunID:         strings.TrimSpace(sig.RunID),
			Ticker:        strings.ToUpper(strings.TrimSpace(sig.Ticker)),
			Episode:       sig.Episode,
			LastClose:     sig.LastClose,
			BarUnix:       sig.BarDate.Unix(),
			CreatedAtUnix: createdAt.Unix(),
		})
	}
	return s.db.WithContext(ctx).Create(&models).Error
}

// ListSignals 按任务返回扫描命中，标的升序。
func (s *Store) ListSignals(ctx context.Context, runID string) ([]SignalRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	var models []model.SignalModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", strings.TrimSpace(runID)).
		Order("ticker ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]SignalRecord, 0, len(models))
	for _, m := range models {
		out = append(out, SignalRecord{
			RunID:     m.RunID,
			Ticker:    m.Ticker,
			Episode:   m.Episode,
			LastClose: m.LastClose,
			BarDate:   time.Unix(m.BarUnix, 0).UTC(),
			CreatedAt: time.Unix(m.CreatedAtUnix, 0).UTC(),
		})
	}
	return out, nil
}

func runModelToRecord(m model.RunModel) (RunRecord, error) {
	rec := RunRecord{
		RunID:       m.RunID,
		Kind:        m.Kind,
		TickerCount: m.TickerCount,
		TradeCount:  m.TradeCount,
		SignalCount: m.SignalCount,
		ProfileName: m.ProfileName,
		CreatedAt:   time.Unix(m.CreatedAtUnix, 0).UTC(),
	}
	if len(m.StrategyJSON) > 0 {
		if err := json.Unmarshal(m.StrategyJSON, &rec.Strategy); err != nil {
			return rec, fmt.Errorf("decode run strategy failed (%s): %w", m.RunID, err)
		}
	}
	if len(m.SimJSON) > 0 {
		if err := json.Unmarshal(m.SimJSON, &rec.Sim); err != nil {
			return rec, fmt.Errorf("decode run sim failed (%s): %w", m.RunID, err)
		}
	}
	return rec, nil
}
