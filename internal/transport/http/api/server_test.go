package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfmr/internal/backtest"
	"tfmr/internal/market"
	"tfmr/internal/profile"
	"tfmr/internal/scanner"
	"tfmr/internal/store"
	"tfmr/internal/universe"
)

type stubFeed struct {
	series map[string]market.Series
}

func (s *stubFeed) WeeklyBars(ctx context.Context, symbol string) (market.Series, error) {
	if bars, ok := s.series[symbol]; ok {
		return bars, nil
	}
	return nil, fmt.Errorf("unknown symbol: %s", symbol)
}

func weeklySeries(closes []float64) market.Series {
	start := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)
	out := make(market.Series, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = market.Bar{Date: start.AddDate(0, 0, 7*i), Open: open, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func testParams() backtest.StrategyParams {
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

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "tfmr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	feed := &stubFeed{series: map[string]market.Series{
		"TRND": weeklySeries([]float64{10, 10, 10, 10, 10, 11, 12, 13, 14, 15, 13, 12}),
	}}
	uni := universe.NewService(
		[]universe.Provider{universe.NewStaticProvider([]string{"TRND"})},
		filepath.Join(t.TempDir(), "universe.json"), time.Hour, 100)
	profiles := profile.NewStatic()

	svc, err := scanner.NewService(scanner.Deps{
		Feed:            feed,
		Universe:        uni,
		Store:           st,
		Profiles:        profiles,
		DefaultStrategy: testParams(),
		DefaultSim:      backtest.SimParams{InitialCapital: 1000, MaxRounds: 2, Multiplier: 1.0},
		ActiveProfile:   "kakaopay",
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Addr:     ":0",
		Svc:      svc,
		Results:  st,
		Profiles: profiles,
		Universe: uni,
	})
	require.NoError(t, err)
	return srv, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	out := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func waitJobDone(t *testing.T, h http.Handler, jobID string) scanner.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, h, http.MethodGet, "/api/jobs/"+jobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var job scanner.Job
		require.NoError(t, json.Unmarshal(decodeBody(t, rec)["job"], &job))
		if job.Status != scanner.JobRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s 超时未结束", jobID)
	return scanner.Job{}
}

func TestServerHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServerBacktestFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/backtest", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job scanner.Job
	require.NoError(t, json.Unmarshal(decodeBody(t, rec)["job"], &job))
	require.NotEmpty(t, job.ID)

	done := waitJobDone(t, h, job.ID)
	require.Equal(t, scanner.JobDone, done.Status)
	require.NotEmpty(t, done.RunID)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+done.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.RunRecord
	require.NoError(t, json.Unmarshal(decodeBody(t, rec)["run"], &run))
	assert.Equal(t, "backtest", run.Kind)
	assert.Equal(t, 1, run.TradeCount)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+done.RunID+"/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []backtest.TradeLogEntry
	require.NoError(t, json.Unmarshal(decodeBody(t, rec)["trades"], &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "TRND", trades[0].Ticker)
	assert.Equal(t, "Trend Broken (MA2<MA4)", trades[0].Sell.Reason)

	rec = doJSON(t, h, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerScanWithRequestBody(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/scan", scanner.Request{Tickers: []string{"TRND"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job scanner.Job
	require.NoError(t, json.Unmarshal(decodeBody(t, rec)["job"], &job))

	done := waitJobDone(t, h, job.ID)
	require.Equal(t, scanner.JobDone, done.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+done.RunID+"/signals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var signals []store.SignalRecord
	require.NoError(t, json.Unmarshal(decodeBody(t, rec)["signals"], &signals))
	assert.Empty(t, signals, "趋势走坏的序列不应有建仓信号")
}

func TestServerUniverseAndProfiles(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/universe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tickers []universe.Ticker
	require.NoError(t, json.Unmarshal(decodeBody(t, rec)["tickers"], &tickers))
	require.Len(t, tickers, 1)
	assert.Equal(t, "TRND", tickers[0].Symbol)

	rec = doJSON(t, h, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	profiles := map[string]profile.Definition{}
	require.NoError(t, json.Unmarshal(body["profiles"], &profiles))
	assert.Contains(t, profiles, "kakaopay")
	assert.Contains(t, profiles, "kis")
}

func TestServerJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/jobs/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/runs/no-such-run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerBadRequestBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerChartDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/charts/TRND", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
