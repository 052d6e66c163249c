package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfmr/internal/market"
)

func chartBody(ts []int64, closes []any) string {
	quote := func(vals []any) string {
		out := "["
		for i, v := range vals {
			if i > 0 {
				out += ","
			}
			if v == nil {
				out += "null"
			} else {
				out += fmt.Sprintf("%v", v)
			}
		}
		return out + "]"
	}
	tsJSON := "["
	for i, t := range ts {
		if i > 0 {
			tsJSON += ","
		}
		tsJSON += fmt.Sprintf("%d", t)
	}
	tsJSON += "]"
	col := quote(closes)
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":%s,
		"indicators":{"quote":[{"open":%s,"high":%s,"low":%s,"close":%s}]}}],"error":null}}`,
		tsJSON, col, col, col, col)
}

func TestYahooSourceParsesChart(t *testing.T) {
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	ts := []int64{base.Unix(), base.AddDate(0, 0, 7).Unix(), base.AddDate(0, 0, 14).Unix()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1wk", r.URL.Query().Get("interval"))
		// 中间一根 close 为 null，整根应被丢弃
		w.Write([]byte(chartBody(ts, []any{180.5, nil, 182.25})))
	}))
	defer srv.Close()

	src := NewYahooSource(YahooOptions{BaseURL: srv.URL})
	bars, err := src.WeeklyBars(context.Background(), "aapl")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, base, bars[0].Date)
	assert.Equal(t, 180.5, bars[0].Close)
	assert.Equal(t, 182.25, bars[1].Close)
}

func TestYahooSourceUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewYahooSource(YahooOptions{BaseURL: srv.URL})
	_, err := src.WeeklyBars(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestYahooSourceChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid range"}}}`))
	}))
	defer srv.Close()

	src := NewYahooSource(YahooOptions{BaseURL: srv.URL})
	_, err := src.WeeklyBars(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid range")
}

func weeklyFixture(n int) market.Series {
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	out := make(market.Series, n)
	for i := range out {
		px := 100.0 + float64(i)
		out[i] = market.Bar{Date: start.AddDate(0, 0, 7*i), Open: px, High: px + 1, Low: px - 1, Close: px}
	}
	return out
}

func TestBarCacheRoundtrip(t *testing.T) {
	cache, err := NewBarCache(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	bars := weeklyFixture(5)
	require.NoError(t, cache.Put(ctx, "aapl", "yahoo", bars))

	got, fetchedAt, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, bars, got)
	assert.WithinDuration(t, time.Now(), fetchedAt, 5*time.Second)

	// 整段替换
	shorter := weeklyFixture(3)
	require.NoError(t, cache.Put(ctx, "AAPL", "yahoo", shorter))
	got, _, err = cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, shorter, got)

	// 未知标的：空结果、零时间、无错误
	got, fetchedAt, err = cache.Get(ctx, "MSFT")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, fetchedAt.IsZero())
}

type scriptedSource struct {
	fails int
	calls int
	bars  market.Series
	err   error
}

func (s *scriptedSource) Name() string { return "scripted" }
func (s *scriptedSource) WeeklyBars(context.Context, string) (market.Series, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.calls <= s.fails {
		return nil, errors.New("transient")
	}
	return s.bars, nil
}

func TestServiceRetriesTransientErrors(t *testing.T) {
	src := &scriptedSource{fails: 2, bars: weeklyFixture(4)}
	svc := NewService(src, nil, ServiceOptions{Retries: 2, Backoff: time.Millisecond})

	bars, err := svc.WeeklyBars(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, bars, 4)
	assert.Equal(t, 3, src.calls)
}

func TestServiceDoesNotRetryUnknownSymbol(t *testing.T) {
	src := &scriptedSource{err: fmt.Errorf("%w: NOPE", ErrUnknownSymbol)}
	svc := NewService(src, nil, ServiceOptions{Retries: 2, Backoff: time.Millisecond})

	_, err := svc.WeeklyBars(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Equal(t, 1, src.calls)
}

func TestServiceFallsBackToStaleCache(t *testing.T) {
	cache, err := NewBarCache(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	bars := weeklyFixture(4)
	require.NoError(t, cache.Put(ctx, "AAPL", "yahoo", bars))

	src := &scriptedSource{err: errors.New("offline")}
	// TTL 设负值强制缓存过期，走来源失败后的回落路径
	svc := NewService(src, cache, ServiceOptions{CacheTTL: time.Nanosecond, Retries: 1, Backoff: time.Millisecond})
	time.Sleep(2 * time.Millisecond)

	got, err := svc.WeeklyBars(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, bars, got)
	assert.Equal(t, 2, src.calls)
}

func TestServiceFreshCacheSkipsSource(t *testing.T) {
	cache, err := NewBarCache(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "AAPL", "yahoo", weeklyFixture(4)))

	src := &scriptedSource{bars: weeklyFixture(9)}
	svc := NewService(src, cache, ServiceOptions{CacheTTL: time.Hour})

	got, err := svc.WeeklyBars(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Zero(t, src.calls)
}
