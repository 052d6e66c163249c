package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tfmr/internal/backtest"
	"tfmr/internal/chart"
	"tfmr/internal/logger"
	"tfmr/internal/profile"
	"tfmr/internal/store"
	"tfmr/internal/universe"
)

// ErrDebounced 表示触发过于密集，本次请求被吸收。
var ErrDebounced = errors.New("request debounced")

// Request 是一次回测/扫描/画图请求的参数覆盖。
// Strategy/Sim 为 nil 时取配置缺省；Profile 为空时取激活的券商档案。
type Request struct {
	Tickers  []string                 `json:"tickers,omitempty"`
	Strategy *backtest.StrategyParams `json:"strategy,omitempty"`
	Sim      *backtest.SimParams      `json:"sim,omitempty"`
	Profile  string                   `json:"profile,omitempty"`
}

// Deps 是 Service 的全部依赖。Store/Charts 允许为 nil（降级为不落库/不画图）。
type Deps struct {
	Feed     BarSource
	Universe *universe.Service
	Store    *store.Store
	Profiles *profile.Loader
	Charts   *chart.Renderer

	DefaultStrategy backtest.StrategyParams
	DefaultSim      backtest.SimParams
	ActiveProfile   string

	Options     Options
	Debounce    time.Duration
	JobCapacity int
}

// Service 把标的池、行情、策略引擎与结果存储编排成完整任务：
// 提交即返回 job，计算在后台进行；参数编辑触发的新任务会取代旧任务。
type Service struct {
	deps     Deps
	gens     Generations
	jobs     *Tracker
	debounce *Debouncer

	rootCtx context.Context
}

func NewService(deps Deps) (*Service, error) {
	if deps.Feed == nil {
		return nil, errors.New("feed 不能为空")
	}
	if deps.Universe == nil {
		return nil, errors.New("universe 不能为空")
	}
	return &Service{
		deps:     deps,
		jobs:     NewTracker(deps.JobCapacity),
		debounce: NewDebouncer(deps.Debounce),
		rootCtx:  context.Background(),
	}, nil
}

// Start 绑定后台任务的根上下文；取消它会中断所有在途任务。
func (s *Service) Start(ctx context.Context) {
	if ctx != nil {
		s.rootCtx = ctx
	}
}

// Job 返回任务快照。
func (s *Service) Job(id string) (Job, bool) { return s.jobs.Snapshot(id) }

// Jobs 返回全部任务快照，最新在前。
func (s *Service) Jobs() []Job { return s.jobs.List() }

// SubmitBacktest 提交一次全量回测，立即返回任务快照。
func (s *Service) SubmitBacktest(req Request) (Job, error) {
	return s.submit("backtest", req)
}

// SubmitScan 提交一次信号扫描，立即返回任务快照。
func (s *Service) SubmitScan(req Request) (Job, error) {
	return s.submit("scan", req)
}

func (s *Service) submit(kind string, req Request) (Job, error) {
	if !s.debounce.Allow() {
		return Job{}, ErrDebounced
	}
	strat, sim, profileName := s.resolveParams(req)

	ctx, gen := s.gens.Begin(s.rootCtx)
	id := s.jobs.Start(kind, len(req.Tickers), gen)
	go s.run(ctx, gen, id, kind, req.Tickers, strat, sim, profileName)

	job, _ := s.jobs.Snapshot(id)
	return job, nil
}

func (s *Service) run(ctx context.Context, gen uint64, jobID, kind string,
	tickers []string, strat backtest.StrategyParams, sim backtest.SimParams, profileName string) {

	finish := func(runID string, err error) {
		superseded := !s.gens.Accept(gen)
		if superseded {
			logger.Infof("任务 %s 被新一代重算取代，结果丢弃", jobID)
			err = nil
			runID = ""
		} else if err != nil {
			logger.Warnf("任务 %s 失败: %v", jobID, err)
		}
		s.jobs.Finish(jobID, runID, superseded, err)
	}

	symbols, err := s.resolveTickers(ctx, tickers)
	if err != nil {
		finish("", err)
		return
	}
	s.jobs.Progress(jobID, 0, len(symbols))

	opts := s.deps.Options
	opts.Progress = func(done, total int) { s.jobs.Progress(jobID, done, total) }
	sc := New(s.deps.Feed, opts)

	switch kind {
	case "scan":
		res, err := sc.Scan(ctx, symbols, strat)
		if err != nil {
			finish("", err)
			return
		}
		if !s.gens.Accept(gen) {
			finish("", nil)
			return
		}
		finish(res.RunID, s.persistScan(res, strat, sim, profileName))
	default:
		res, err := sc.Backtest(ctx, symbols, strat, sim)
		if err != nil {
			finish("", err)
			return
		}
		if !s.gens.Accept(gen) {
			finish("", nil)
			return
		}
		finish(res.RunID, s.persistBacktest(res, strat, sim, profileName))
	}
}

func (s *Service) persistBacktest(res *BacktestResult, strat backtest.StrategyParams, sim backtest.SimParams, profileName string) error {
	if s.deps.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.deps.Store.SaveRun(ctx, store.RunRecord{
		RunID:       res.RunID,
		Kind:        "backtest",
		Strategy:    strat,
		Sim:         sim,
		TickerCount: res.TickerCount,
		TradeCount:  len(res.Trades),
		ProfileName: profileName,
	}); err != nil {
		return fmt.Errorf("保存回测 run 失败: %w", err)
	}
	if err := s.deps.Store.AppendTrades(ctx, res.RunID, res.Trades); err != nil {
		return fmt.Errorf("保存交易明细失败: %w", err)
	}
	return nil
}

func (s *Service) persistScan(res *ScanResult, strat backtest.StrategyParams, sim backtest.SimParams, profileName string) error {
	if s.deps.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.deps.Store.SaveRun(ctx, store.RunRecord{
		RunID:       res.RunID,
		Kind:        "scan",
		Strategy:    strat,
		Sim:         sim,
		TickerCount: res.TickerCount,
		SignalCount: len(res.Signals),
		ProfileName: profileName,
	}); err != nil {
		return fmt.Errorf("保存扫描 run 失败: %w", err)
	}
	records := make([]store.SignalRecord, 0, len(res.Signals))
	for _, sig := range res.Signals {
		records = append(records, store.SignalRecord{
			RunID:     res.RunID,
			Ticker:    sig.Ticker,
			Episode:   sig.Episode,
			LastClose: sig.LastClose,
			BarDate:   sig.BarDate,
		})
	}
	if err := s.deps.Store.SaveSignals(ctx, records); err != nil {
		return fmt.Errorf("保存扫描信号失败: %w", err)
	}
	return nil
}

// RenderChart 同步渲染单标的行情图：拉行情、按请求参数回测、落盘图文件。
func (s *Service) RenderChart(ctx context.Context, ticker string, req Request) (chart.Artifact, error) {
	if s.deps.Charts == nil {
		return chart.Artifact{}, errors.New("chart rendering disabled")
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return chart.Artifact{}, errors.New("ticker required")
	}
	strat, sim, _ := s.resolveParams(req)

	bars, err := s.deps.Feed.WeeklyBars(ctx, ticker)
	if err != nil {
		return chart.Artifact{}, fmt.Errorf("拉取 %s 行情失败: %w", ticker, err)
	}
	f := backtest.ComputeMovingAverages(bars, backtest.RequiredPeriods(strat))
	trades := backtest.RunBacktest(f, ticker, strat, sim)
	return s.deps.Charts.RenderTicker(ctx, ticker, f, trades)
}

// resolveParams 把请求覆盖与配置缺省、券商档案合成最终参数。
// 显式给了 Sim 又没点名档案时，尊重请求里的费率，不再套档案。
func (s *Service) resolveParams(req Request) (backtest.StrategyParams, backtest.SimParams, string) {
	strat := s.deps.DefaultStrategy
	if req.Strategy != nil {
		strat = *req.Strategy
	}
	strat = strat.Normalize()

	sim := s.deps.DefaultSim
	if req.Sim != nil {
		sim = *req.Sim
	}
	sim = sim.Normalize()

	profileName := strings.TrimSpace(req.Profile)
	applyProfile := profileName != "" || req.Sim == nil
	if profileName == "" {
		profileName = s.deps.ActiveProfile
	}
	if applyProfile && s.deps.Profiles != nil && profileName != "" {
		def, ok := s.deps.Profiles.Snapshot().Resolve(profileName)
		if ok {
			sim = def.Apply(sim)
			profileName = def.Name
		}
	}
	return strat, sim, profileName
}

// resolveTickers 请求未指定标的时取整个标的池。
func (s *Service) resolveTickers(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		out := make([]string, 0, len(requested))
		for _, t := range requested {
			if sym := strings.ToUpper(strings.TrimSpace(t)); sym != "" {
				out = append(out, sym)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("no valid tickers in request")
		}
		return out, nil
	}
	tickers, err := s.deps.Universe.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, t.Symbol)
	}
	return out, nil
}
