package feed

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tfmr/internal/market"
)

// BarCache 把周线序列落到 SQLite，按整段替换。
type BarCache struct {
	mu sync.Mutex
	db *sql.DB
}

// NewBarCache 初始化 SQLite 缓存。
func NewBarCache(path string) (*BarCache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("bar cache path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureBarSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &BarCache{db: db}, nil
}

func ensureBarSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weekly_bars (
			symbol TEXT NOT NULL,
			dt INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (symbol, dt)
		);`,
		`CREATE TABLE IF NOT EXISTS bar_fetches (
			symbol TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			bar_count INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure bar schema failed: %w", err)
		}
	}
	return nil
}

// Put 整段替换一个标的的周线，并记录抓取时间。
func (c *BarCache) Put(ctx context.Context, symbol, source string, bars market.Series) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(bars) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weekly_bars WHERE symbol = ?`, symbol); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO weekly_bars(symbol, dt, open, high, low, close) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, bar.Date.Unix(), bar.Open, bar.High, bar.Low, bar.Close); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bar_fetches(symbol, source, fetched_at, bar_count) VALUES(?,?,?,?)
		 ON CONFLICT(symbol) DO UPDATE SET source=excluded.source, fetched_at=excluded.fetched_at, bar_count=excluded.bar_count`,
		symbol, source, time.Now().Unix(), len(bars)); err != nil {
		return err
	}
	return tx.Commit()
}

// Get 返回缓存的周线与抓取时间；无记录时 bars 为空且 fetchedAt 为零值。
func (c *BarCache) Get(ctx context.Context, symbol string) (market.Series, time.Time, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, time.Time{}, fmt.Errorf("symbol cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var fetchedAt time.Time
	var ts int64
	err := c.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM bar_fetches WHERE symbol = ?`, symbol).Scan(&ts)
	switch {
	case err == sql.ErrNoRows:
		return nil, time.Time{}, nil
	case err != nil:
		return nil, time.Time{}, err
	}
	fetchedAt = time.Unix(ts, 0).UTC()

	rows, err := c.db.QueryContext(ctx,
		`SELECT dt, open, high, low, close FROM weekly_bars WHERE symbol = ? ORDER BY dt ASC`, symbol)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var out market.Series
	for rows.Next() {
		var dt int64
		var bar market.Bar
		if err := rows.Scan(&dt, &bar.Open, &bar.High, &bar.Low, &bar.Close); err != nil {
			return nil, time.Time{}, err
		}
		bar.Date = time.Unix(dt, 0).UTC()
		out = append(out, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return out, fetchedAt, nil
}

// Close 关闭底层 DB。
func (c *BarCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
