package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tfmr/internal/backtest"
	"tfmr/internal/feed"
	"tfmr/internal/logger"
	"tfmr/internal/market"
	"tfmr/internal/money"
)

// BarSource 是扫描器对行情层的唯一依赖。
type BarSource interface {
	WeeklyBars(ctx context.Context, symbol string) (market.Series, error)
}

// Options 控制扫描并发与数据门槛。
type Options struct {
	Concurrency int // 并发 worker 数，默认 8
	MinBars     int // 低于该 bar 数的标的直接跳过；<=0 时取最长均线窗口+5
	// Progress 在每个标的处理完后回调，可能来自任意 worker goroutine。
	Progress func(done, total int)
}

func (o Options) normalize() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.Concurrency > 64 {
		o.Concurrency = 64
	}
	if o.MinBars < 0 {
		o.MinBars = 0
	}
	return o
}

// TickerError 记录单个标的的失败，不中断整批任务。
type TickerError struct {
	Ticker string `json:"ticker"`
	Err    string `json:"error"`
}

// Stats 汇总一次全量回测的口径。
type Stats struct {
	Trades       int         `json:"trades"`
	Wins         int         `json:"wins"`
	Losses       int         `json:"losses"`
	WinRatePct   float64     `json:"win_rate_pct"`
	TotalProfit  money.Cents `json:"total_profit"`
	AvgReturnPct float64     `json:"avg_return_pct"`
}

// BacktestResult 是一次全量回测的产出。
type BacktestResult struct {
	RunID       string                   `json:"run_id"`
	TickerCount int                      `json:"ticker_count"`
	Trades      []backtest.TradeLogEntry `json:"trades"`
	Stats       Stats                    `json:"stats"`
	Skipped     []string                 `json:"skipped,omitempty"`
	Errors      []TickerError            `json:"errors,omitempty"`
	Elapsed     time.Duration            `json:"elapsed"`
}

// Signal 是扫描命中：最后一根周线处于可建仓状态。
type Signal struct {
	Ticker    string    `json:"ticker"`
	Episode   int       `json:"pullback_no"`
	LastClose float64   `json:"last_close"`
	BarDate   time.Time `json:"bar_date"`
}

// ScanResult 是一次信号扫描的产出。
type ScanResult struct {
	RunID       string        `json:"run_id"`
	TickerCount int           `json:"ticker_count"`
	Signals     []Signal      `json:"signals"`
	Skipped     []string      `json:"skipped,omitempty"`
	Errors      []TickerError `json:"errors,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Scanner 在一批标的上并发跑回测或信号扫描。
// 单标的失败只降级为记录，整批任务照常完成。
type Scanner struct {
	feed BarSource
	opts Options
}

func New(source BarSource, opts Options) *Scanner {
	return &Scanner{feed: source, opts: opts.normalize()}
}

// Backtest 对整个标的池逐一回测，聚合全部交易与统计。
func (s *Scanner) Backtest(ctx context.Context, tickers []string, strat backtest.StrategyParams, sim backtest.SimParams) (*BacktestResult, error) {
	strat = strat.Normalize()
	sim = sim.Normalize()
	start := time.Now()

	res := &BacktestResult{
		RunID:       uuid.NewString(),
		TickerCount: len(tickers),
	}
	var mu sync.Mutex
	err := s.forEach(ctx, tickers, strat, func(ticker string, f *backtest.Frame) {
		trades := backtest.RunBacktest(f, ticker, strat, sim)
		if len(trades) == 0 {
			return
		}
		mu.Lock()
		res.Trades = append(res.Trades, trades...)
		mu.Unlock()
	}, func(ticker string, skip bool, ferr error) {
		mu.Lock()
		defer mu.Unlock()
		if skip {
			res.Skipped = append(res.Skipped, ticker)
			return
		}
		res.Errors = append(res.Errors, TickerError{Ticker: ticker, Err: ferr.Error()})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res.Trades, func(i, j int) bool {
		a, b := res.Trades[i], res.Trades[j]
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.ExitDate.Before(b.ExitDate)
	})
	sort.Strings(res.Skipped)
	sortTickerErrors(res.Errors)
	res.Stats = summarize(res.Trades)
	res.Elapsed = time.Since(start)
	logger.Infof("全量回测完成 run=%s tickers=%d trades=%d skipped=%d errors=%d elapsed=%s",
		res.RunID, res.TickerCount, len(res.Trades), len(res.Skipped), len(res.Errors), res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// Scan 对整个标的池判定最后一根周线的建仓信号。
func (s *Scanner) Scan(ctx context.Context, tickers []string, strat backtest.StrategyParams) (*ScanResult, error) {
	strat = strat.Normalize()
	start := time.Now()

	res := &ScanResult{
		RunID:       uuid.NewString(),
		TickerCount: len(tickers),
	}
	var mu sync.Mutex
	err := s.forEach(ctx, tickers, strat, func(ticker string, f *backtest.Frame) {
		episode, ok := backtest.CurrentSignal(f, strat)
		if !ok {
			return
		}
		last := f.Bars[f.Len()-1]
		mu.Lock()
		res.Signals = append(res.Signals, Signal{
			Ticker:    ticker,
			Episode:   episode,
			LastClose: last.Close,
			BarDate:   last.Date,
		})
		mu.Unlock()
	}, func(ticker string, skip bool, ferr error) {
		mu.Lock()
		defer mu.Unlock()
		if skip {
			res.Skipped = append(res.Skipped, ticker)
			return
		}
		res.Errors = append(res.Errors, TickerError{Ticker: ticker, Err: ferr.Error()})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res.Signals, func(i, j int) bool { return res.Signals[i].Ticker < res.Signals[j].Ticker })
	sort.Strings(res.Skipped)
	sortTickerErrors(res.Errors)
	res.Elapsed = time.Since(start)
	logger.Infof("信号扫描完成 run=%s tickers=%d signals=%d skipped=%d errors=%d elapsed=%s",
		res.RunID, res.TickerCount, len(res.Signals), len(res.Skipped), len(res.Errors), res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// forEach 并发拉取行情、算好均线帧后交给 fn；
// 历史不足走 skip 分支，拉取失败走 error 分支，均不终止整批。
func (s *Scanner) forEach(ctx context.Context, tickers []string, strat backtest.StrategyParams,
	fn func(ticker string, f *backtest.Frame), fail func(ticker string, skip bool, err error)) error {

	periods := backtest.RequiredPeriods(strat)
	minBars := s.opts.MinBars
	if minBars <= 0 {
		// 留出窗口之外的余量，太短的历史没有统计意义
		minBars = strat.MaxPeriod() + 5
	}
	if need := strat.MaxPeriod() + 1; minBars < need {
		minBars = need
	}

	var done atomic.Int64
	total := len(tickers)
	step := func() {
		n := int(done.Add(1))
		if s.opts.Progress != nil {
			s.opts.Progress(n, total)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.opts.Concurrency)
	for _, t := range tickers {
		ticker := t
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			defer step()
			bars, err := s.feed.WeeklyBars(egCtx, ticker)
			switch {
			case errors.Is(err, feed.ErrUnknownSymbol):
				logger.Debugf("跳过未知标的 %s", ticker)
				fail(ticker, true, err)
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				logger.Warnf("拉取 %s 行情失败: %v", ticker, err)
				fail(ticker, false, err)
				return nil
			}
			if len(bars) < minBars {
				fail(ticker, true, errors.New("insufficient history"))
				return nil
			}
			fn(ticker, backtest.ComputeMovingAverages(bars, periods))
			return nil
		})
	}
	return eg.Wait()
}

func summarize(trades []backtest.TradeLogEntry) Stats {
	st := Stats{Trades: len(trades)}
	if len(trades) == 0 {
		return st
	}
	var retSum float64
	for _, tr := range trades {
		st.TotalProfit += tr.Profit
		retSum += tr.ReturnPct
		if tr.Profit > 0 {
			st.Wins++
		} else {
			st.Losses++
		}
	}
	st.WinRatePct = round2(float64(st.Wins) / float64(len(trades)) * 100)
	st.AvgReturnPct = round2(retSum / float64(len(trades)))
	return st
}

func round2(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func sortTickerErrors(errs []TickerError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Ticker < errs[j].Ticker })
}
