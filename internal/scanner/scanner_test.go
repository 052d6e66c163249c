package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfmr/internal/backtest"
	"tfmr/internal/feed"
	"tfmr/internal/market"
	"tfmr/internal/money"
)

// fakeSource 按标的返回固定序列或固定错误，并记录调用。
type fakeSource struct {
	mu     sync.Mutex
	series map[string]market.Series
	errs   map[string]error
	calls  []string
}

func (f *fakeSource) WeeklyBars(ctx context.Context, symbol string) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	if s, ok := f.series[symbol]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", feed.ErrUnknownSymbol, symbol)
}

func weekly(closes []float64) market.Series {
	start := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)
	out := make(market.Series, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		hi, lo := c, c
		if open > hi {
			hi = open
		}
		if open < lo {
			lo = open
		}
		out[i] = market.Bar{
			Date:  start.AddDate(0, 0, 7*i),
			Open:  open,
			High:  hi + 1,
			Low:   lo - 1,
			Close: c,
		}
	}
	return out
}

// trendBreakSeries 产生恰好一笔交易：一轮买入后趋势走坏离场。
func trendBreakSeries() market.Series {
	return weekly([]float64{10, 10, 10, 10, 10, 11, 12, 13, 14, 15, 13, 12})
}

func trendBreakParams() backtest.StrategyParams {
	return backtest.StrategyParams{
		GCFastMA:          2,
		GCSlowMA:          4,
		PullbackShortMA:   2,
		PullbackBaseMA:    3,
		LongFastMA:        3,
		LongSlowMA:        4,
		TargetPullbackMax: 1,
		StepDropPct:       3.0,
	}
}

// signalSeries 的最后一根 bar 正处于第 1 次回调的可建仓状态。
func signalSeries() market.Series {
	return weekly([]float64{10, 10, 10, 10, 10, 10, 13, 16, 19, 22, 25, 28, 31, 34, 27, 25})
}

func signalParams() backtest.StrategyParams {
	return backtest.StrategyParams{
		GCFastMA:          3,
		GCSlowMA:          6,
		PullbackShortMA:   2,
		PullbackBaseMA:    4,
		LongFastMA:        4,
		LongSlowMA:        6,
		TargetPullbackMax: 1,
		StepDropPct:       5.0,
	}
}

func flatSeries(n int) market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 10
	}
	return weekly(closes)
}

func TestScannerBacktestAggregates(t *testing.T) {
	src := &fakeSource{
		series: map[string]market.Series{
			"TRND": trendBreakSeries(),
			"FLAT": flatSeries(12),
			"TINY": flatSeries(3),
		},
		errs: map[string]error{
			"BAD": errors.New("feed exploded"),
		},
	}
	s := New(src, Options{Concurrency: 2})
	sim := backtest.SimParams{InitialCapital: 1000, MaxRounds: 2, Multiplier: 1.0, BuyFeeRate: 0.0007, SellFeeRate: 0.000708}

	res, err := s.Backtest(context.Background(), []string{"TRND", "FLAT", "TINY", "BAD"}, trendBreakParams(), sim)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.TickerCount)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, "TRND", tr.Ticker)
	assert.Equal(t, 1, tr.Rounds)
	assert.Equal(t, int64(25), tr.Units)
	assert.Equal(t, money.Cents(-2544), tr.Profit)
	assert.Equal(t, "Trend Broken (MA2<MA4)", tr.Sell.Reason)

	assert.Equal(t, []string{"TINY"}, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "BAD", res.Errors[0].Ticker)
	assert.Contains(t, res.Errors[0].Err, "feed exploded")

	assert.Equal(t, Stats{
		Trades:       1,
		Wins:         0,
		Losses:       1,
		WinRatePct:   0,
		TotalProfit:  money.Cents(-2544),
		AvgReturnPct: tr.ReturnPct,
	}, res.Stats)
}

func TestScannerBacktestStatsMixed(t *testing.T) {
	trades := []backtest.TradeLogEntry{
		{Profit: 100, ReturnPct: 10},
		{Profit: -40, ReturnPct: -4},
		{Profit: 60, ReturnPct: 6},
	}
	st := summarize(trades)
	assert.Equal(t, 3, st.Trades)
	assert.Equal(t, 2, st.Wins)
	assert.Equal(t, 1, st.Losses)
	assert.InDelta(t, 66.67, st.WinRatePct, 0.01)
	assert.Equal(t, money.Cents(120), st.TotalProfit)
	assert.InDelta(t, 4.0, st.AvgReturnPct, 0.01)
}

func TestScannerScanFindsSignals(t *testing.T) {
	src := &fakeSource{
		series: map[string]market.Series{
			"HITT": signalSeries(),
			"FLAT": flatSeries(16),
		},
	}
	s := New(src, Options{})

	res, err := s.Scan(context.Background(), []string{"HITT", "FLAT"}, signalParams())
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	sig := res.Signals[0]
	assert.Equal(t, "HITT", sig.Ticker)
	assert.Equal(t, 1, sig.Episode)
	assert.Equal(t, 25.0, sig.LastClose)
	assert.Equal(t, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*15), sig.BarDate)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Errors)
}

func TestScannerUnknownSymbolIsSkipped(t *testing.T) {
	src := &fakeSource{series: map[string]market.Series{}}
	s := New(src, Options{})

	res, err := s.Scan(context.Background(), []string{"NOPE"}, signalParams())
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Equal(t, []string{"NOPE"}, res.Skipped)
	assert.Empty(t, res.Errors)
}

func TestScannerMinBarsOption(t *testing.T) {
	src := &fakeSource{series: map[string]market.Series{
		"HITT": signalSeries(), // 16 根
	}}
	s := New(src, Options{MinBars: 20})

	res, err := s.Scan(context.Background(), []string{"HITT"}, signalParams())
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Equal(t, []string{"HITT"}, res.Skipped)
}

func TestScannerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{series: map[string]market.Series{"TRND": trendBreakSeries()}}
	s := New(src, Options{})

	_, err := s.Scan(ctx, []string{"TRND"}, signalParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScannerResultsDeterministicOrder(t *testing.T) {
	src := &fakeSource{series: map[string]market.Series{
		"BBBB": signalSeries(),
		"AAAA": signalSeries(),
		"CCCC": signalSeries(),
	}}
	s := New(src, Options{Concurrency: 3})

	res, err := s.Scan(context.Background(), []string{"CCCC", "AAAA", "BBBB"}, signalParams())
	require.NoError(t, err)
	require.Len(t, res.Signals, 3)
	assert.Equal(t, "AAAA", res.Signals[0].Ticker)
	assert.Equal(t, "BBBB", res.Signals[1].Ticker)
	assert.Equal(t, "CCCC", res.Signals[2].Ticker)
}

func TestDebouncer(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDebouncer(300 * time.Millisecond)
	d.now = func() time.Time { return now }

	assert.True(t, d.Allow())
	assert.False(t, d.Allow())
	now = now.Add(200 * time.Millisecond)
	assert.False(t, d.Allow())
	now = now.Add(150 * time.Millisecond)
	assert.True(t, d.Allow())

	var nilD *Debouncer
	assert.True(t, nilD.Allow())
	assert.True(t, NewDebouncer(0).Allow())
}
