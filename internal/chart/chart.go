package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tfmr/internal/backtest"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorBuyMarker     = "#fbbf24"
	colorSellMarker    = "#22d3ee"
)

// 均线折线按窗口轮转取色。
var maPalette = []string{"#3b82f6", "#fbbf24", "#f472b6", "#a78bfa", "#fb7185", "#22d3ee"}

// Options 控制输出尺寸与 PNG 截图。
type Options struct {
	OutputDir     string
	Width         int
	Height        int
	RenderPNG     bool
	RenderTimeout time.Duration
}

func (o Options) normalize() Options {
	if o.OutputDir == "" {
		o.OutputDir = "data/charts"
	}
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = 30 * time.Second
	}
	return o
}

// Artifact 指向一次渲染落盘的文件。
type Artifact struct {
	Ticker   string `json:"ticker"`
	HTMLPath string `json:"html_path"`
	PNGPath  string `json:"png_path,omitempty"`
}

// Renderer 把回测结果画成周线叠加均线与买卖点的行情图。
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts.normalize()}
}

// RenderTicker 输出单标的行情图：HTML 必出，PNG 按配置经 headless 浏览器截图。
func (r *Renderer) RenderTicker(ctx context.Context, ticker string, f *backtest.Frame, trades []backtest.TradeLogEntry) (Artifact, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Artifact{}, fmt.Errorf("ticker required for chart render")
	}
	if f == nil || f.Len() == 0 {
		return Artifact{}, fmt.Errorf("no bars to render for %s", ticker)
	}

	html, err := r.buildHTML(ticker, f, trades)
	if err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return Artifact{}, err
	}

	base := strings.ToLower(ticker) + "_tfmr"
	art := Artifact{
		Ticker:   ticker,
		HTMLPath: filepath.Join(r.opts.OutputDir, base+".html"),
	}
	if err := os.WriteFile(art.HTMLPath, html, 0o644); err != nil {
		return Artifact{}, err
	}

	if r.opts.RenderPNG {
		if err := EnsureHeadlessAvailable(ctx); err != nil {
			return Artifact{}, fmt.Errorf("headless browser unavailable: %w", err)
		}
		png, err := r.renderHTMLToPNG(ctx, html)
		if err != nil {
			return Artifact{}, err
		}
		art.PNGPath = filepath.Join(r.opts.OutputDir, base+".png")
		if err := os.WriteFile(art.PNGPath, png, 0o644); err != nil {
			return Artifact{}, err
		}
	}
	return art, nil
}

func (r *Renderer) buildHTML(ticker string, f *backtest.Frame, trades []backtest.TradeLogEntry) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	minPrice, maxPrice := priceBounds(f)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", r.opts.Width),
			Height:          fmt.Sprintf("%dpx", r.opts.Height),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s 1wk", ticker),
			Subtitle:      tradeSubtitle(trades),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(f)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(f))

	maLine := buildMALines(f)
	maLine.SetXAxis(xAxis)
	kline.Overlap(maLine)

	if markers := buildTradeMarkers(f, trades); markers != nil {
		markers.SetXAxis(xAxis)
		kline.Overlap(markers)
	}

	page.AddCharts(kline)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tradeSubtitle(trades []backtest.TradeLogEntry) string {
	if len(trades) == 0 {
		return "no closed trades"
	}
	wins := 0
	for _, tr := range trades {
		if tr.Profit > 0 {
			wins++
		}
	}
	last := trades[len(trades)-1]
	return fmt.Sprintf("trades %d | wins %d | last exit %s (%s)",
		len(trades), wins, last.ExitDate.Format("2006-01-02"), last.Sell.Reason)
}

func buildXAxis(f *backtest.Frame) []string {
	x := make([]string, f.Len())
	for i, b := range f.Bars {
		x[i] = b.Date.UTC().Format("2006-01-02")
	}
	return x
}

func buildKlineSeries(f *backtest.Frame) []opts.KlineData {
	data := make([]opts.KlineData, 0, f.Len())
	for _, b := range f.Bars {
		data = append(data, opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}})
	}
	return data
}

func buildMALines(f *backtest.Frame) *charts.Line {
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	for idx, period := range f.Periods() {
		data := make([]opts.LineData, f.Len())
		for i := 0; i < f.Len(); i++ {
			v := f.MA(period, i)
			if math.IsNaN(v) {
				data[i] = opts.LineData{Value: nil}
			} else {
				data[i] = opts.LineData{Value: round(v, 4)}
			}
		}
		color := maPalette[idx%len(maPalette)]
		line.AddSeries(fmt.Sprintf("MA%d", period), data,
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
	}
	return line
}

// buildTradeMarkers 在成交 bar 上叠加散点：分轮买入标轮次，清仓标离场。
// 日期对不上任何 bar 的成交直接忽略。
func buildTradeMarkers(f *backtest.Frame, trades []backtest.TradeLogEntry) *charts.Scatter {
	if len(trades) == 0 {
		return nil
	}
	idxByDate := make(map[time.Time]int, f.Len())
	for i, b := range f.Bars {
		idxByDate[b.Date.UTC()] = i
	}

	buys := make([]opts.ScatterData, f.Len())
	sells := make([]opts.ScatterData, f.Len())
	hasBuy, hasSell := false, false
	for _, tr := range trades {
		for _, b := range tr.Buys {
			i, ok := idxByDate[b.Date.UTC()]
			if !ok {
				continue
			}
			buys[i] = opts.ScatterData{
				Value:      round(b.Price, 4),
				Symbol:     "triangle",
				SymbolSize: 14,
				Name:       fmt.Sprintf("B%d", b.Round),
			}
			hasBuy = true
		}
		if i, ok := idxByDate[tr.Sell.Date.UTC()]; ok {
			sells[i] = opts.ScatterData{
				Value:        round(tr.Sell.Price, 4),
				Symbol:       "triangle",
				SymbolSize:   14,
				SymbolRotate: 180,
				Name:         "S",
			}
			hasSell = true
		}
	}
	if !hasBuy && !hasSell {
		return nil
	}

	scatter := charts.NewScatter()
	if hasBuy {
		scatter.AddSeries("Buy", buys,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuyMarker}))
	}
	if hasSell {
		scatter.AddSeries("Sell", sells,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSellMarker}))
	}
	return scatter
}

func priceBounds(f *backtest.Frame) (minVal, maxVal float64) {
	if f.Len() == 0 {
		return 0, 0
	}
	minVal = f.Bars[0].Low
	maxVal = f.Bars[0].High
	for _, b := range f.Bars {
		if b.Low < minVal {
			minVal = b.Low
		}
		if b.High > maxVal {
			maxVal = b.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 探测本机 headless 浏览器，结果进程内缓存。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func (r *Renderer) renderHTMLToPNG(ctx context.Context, html []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, r.opts.RenderTimeout)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(r.opts.Width), int64(r.opts.Height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
