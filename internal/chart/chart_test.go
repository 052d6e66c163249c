package chart

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfmr/internal/backtest"
	"tfmr/internal/market"
)

func chartFrame(t *testing.T) *backtest.Frame {
	t.Helper()
	closes := []float64{10, 10, 10, 10, 10, 10, 13, 16, 19, 22, 25, 28, 31, 34, 27, 25, 34}
	start := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := make(market.Series, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = market.Bar{Date: start.AddDate(0, 0, 7*i), Open: open, High: c + 1, Low: c - 1, Close: c}
	}
	return backtest.ComputeMovingAverages(bars, []int{2, 4, 6})
}

func chartTrades(f *backtest.Frame) []backtest.TradeLogEntry {
	return []backtest.TradeLogEntry{{
		Ticker:    "AAPL",
		EntryDate: f.Bars[14].Date,
		ExitDate:  f.Bars[16].Date,
		Rounds:    2,
		Profit:    323866,
		Buys: []backtest.BuyRecord{
			{Round: 1, Date: f.Bars[14].Date, Price: 27},
			{Round: 2, Date: f.Bars[15].Date, Price: 25},
		},
		Sell: backtest.SellRecord{Date: f.Bars[16].Date, Price: 34, Reason: "Signal (Close > MA4)"},
	}}
}

func TestRendererWritesHTML(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{OutputDir: dir})
	f := chartFrame(t)

	art, err := r.RenderTicker(context.Background(), "aapl", f, chartTrades(f))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", art.Ticker)
	assert.Equal(t, filepath.Join(dir, "aapl_tfmr.html"), art.HTMLPath)
	assert.Empty(t, art.PNGPath)

	html, err := os.ReadFile(art.HTMLPath)
	require.NoError(t, err)
	body := string(html)
	assert.Contains(t, body, "AAPL 1wk")
	assert.Contains(t, body, "MA2")
	assert.Contains(t, body, "MA4")
	assert.Contains(t, body, "MA6")
	assert.Contains(t, body, "Buy")
	assert.Contains(t, body, "Sell")
	assert.Contains(t, body, "last exit 2020-04-24")
}

func TestRendererNoTradesSubtitle(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{OutputDir: dir})
	f := chartFrame(t)

	art, err := r.RenderTicker(context.Background(), "MSFT", f, nil)
	require.NoError(t, err)

	html, err := os.ReadFile(art.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "no closed trades")
}

func TestRendererRejectsEmptyInput(t *testing.T) {
	r := New(Options{OutputDir: t.TempDir()})
	_, err := r.RenderTicker(context.Background(), "", chartFrame(t), nil)
	assert.Error(t, err)

	_, err = r.RenderTicker(context.Background(), "AAPL", nil, nil)
	assert.Error(t, err)
}

func TestTradeMarkersSkipUnmatchedDates(t *testing.T) {
	f := chartFrame(t)
	trades := []backtest.TradeLogEntry{{
		Buys: []backtest.BuyRecord{{Round: 1, Date: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), Price: 1}},
		Sell: backtest.SellRecord{Date: time.Date(1999, 1, 8, 0, 0, 0, 0, time.UTC), Price: 2},
	}}
	assert.Nil(t, buildTradeMarkers(f, trades))
	assert.Nil(t, buildTradeMarkers(f, nil))
}
