// Package controller 串起一次抽取：取页面 → 抽取 → 增强 → 保存最近记录 → 可选导出。
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/WSDX/internal/classify"
	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/enhance"
	"github.com/John-Robertt/WSDX/internal/export"
	"github.com/John-Robertt/WSDX/internal/extract"
	"github.com/John-Robertt/WSDX/internal/fetch"
	xlog "github.com/John-Robertt/WSDX/internal/log"
	"github.com/John-Robertt/WSDX/internal/metrics"
	"github.com/John-Robertt/WSDX/internal/store"
)

// 自动触发被跳过的原因。
const (
	SkipUnrecognizedSite = "unrecognized_site"
	SkipAutoExtractOff   = "auto_extract_off"
)

// ErrExportDisabled 表示请求了导出但没有配置导出目录。
var ErrExportDisabled = errors.New("未配置导出")

// Request 是一次触发的输入。
//
// HTML 非空时直接使用调用方提供的 DOM（例如浏览器端已渲染好的页面），不再抓取。
type Request struct {
	URL  string
	HTML []byte
	// Save 仅对按需触发生效：true 时写导出文件，失败会返回错误。
	Save bool
}

// Result 是一次成功抽取的结果。
type Result struct {
	Record domain.Record
	Export export.Result // 未导出时为零值
}

// Controller 是唯一的抽取编排者；按需、自动、定时三种触发共用它。
type Controller struct {
	Extractor *extract.Extractor
	Fetcher   fetch.Fetcher
	// Enhancer 为 nil 时不做增强（aiEnhanced=false）。
	Enhancer enhance.Enhancer
	Store    store.Store
	// Exporter 为 nil 时不支持导出。
	Exporter *export.Writer
	// Settle 是自动触发在抽取前的等待时间（给页面脚本留出渲染时间）。
	Settle   time.Duration
	Observer Observer
	Logger   zerolog.Logger
}

func (c *Controller) observer() Observer {
	if c.Observer == nil {
		return nopObserver{}
	}
	return c.Observer
}

// ExtractPage 对已加载的页面执行抽取、增强，并覆盖最近记录槽位。
func (c *Controller) ExtractPage(ctx context.Context, page fetch.Page) (domain.Record, error) {
	return c.extractPage(ctx, TriggerOnDemand, page)
}

func (c *Controller) extractPage(ctx context.Context, trig Trigger, page fetch.Page) (domain.Record, error) {
	start := time.Now()
	logger := xlog.WithContext(ctx, c.Logger).With().Str("trigger", string(trig)).Str("url", page.URL).Logger()

	settings, err := c.Store.LoadSettings(ctx)
	if err != nil {
		return domain.Record{}, fmt.Errorf("读取设置失败：%w", err)
	}

	rec, err := c.Extractor.ExtractHTML(page.HTML, page.URL, settings)
	if err != nil {
		return domain.Record{}, fmt.Errorf("解析页面失败：%w", err)
	}

	if c.Enhancer != nil {
		var eerr error
		rec, eerr = enhance.Apply(ctx, c.Enhancer, rec, logger)
		switch {
		case eerr == nil:
			metrics.EnhanceTotal.WithLabelValues("ok").Inc()
		case errors.Is(eerr, enhance.ErrNoAPIKey):
			metrics.EnhanceTotal.WithLabelValues("skipped").Inc()
		default:
			metrics.EnhanceTotal.WithLabelValues("failed").Inc()
		}
	} else {
		metrics.EnhanceTotal.WithLabelValues("skipped").Inc()
	}

	if err := c.Store.SaveLast(ctx, rec); err != nil {
		return domain.Record{}, fmt.Errorf("保存最近记录失败：%w", err)
	}

	dur := time.Since(start)
	metrics.ExtractionDuration.WithLabelValues(string(trig)).Observe(dur.Seconds())
	logger.Info().
		Str("platform", string(rec.Platform)).
		Str("page_type", string(rec.PageType)).
		Bool("ai_enhanced", rec.AIEnhanced).
		Dur("took", dur).
		Msg("抽取完成")
	return rec, nil
}

// OnDemand 是按需触发：取页面（或使用调用方 HTML）→ 抽取 → 按需导出。
func (c *Controller) OnDemand(ctx context.Context, req Request) (Result, error) {
	obs := c.observer()
	obs.OnAnalyzing(TriggerOnDemand, req.URL)

	res, err := c.run(ctx, TriggerOnDemand, req)
	if err != nil {
		c.fail(TriggerOnDemand, req.URL, err)
		return Result{}, err
	}

	if req.Save {
		out, err := c.export(res.Record)
		if err != nil {
			metrics.ExportsTotal.WithLabelValues("failed").Inc()
			obs.OnError(TriggerOnDemand, req.URL, err)
			return res, err
		}
		res.Export = out
		obs.OnSaved(TriggerOnDemand, out)
	}
	return res, nil
}

// CheckNavigation 判断一次页面加载完成事件是否应触发自动抽取。
// ok=false 时 reason 为跳过原因。
func (c *Controller) CheckNavigation(ctx context.Context, pageURL string) (ok bool, reason string, err error) {
	if !classify.IsRecognizedSite(pageURL) {
		return false, SkipUnrecognizedSite, nil
	}
	settings, err := c.Store.LoadSettings(ctx)
	if err != nil {
		return false, "", fmt.Errorf("读取设置失败：%w", err)
	}
	if !settings.AutoExtract {
		return false, SkipAutoExtractOff, nil
	}
	return true, "", nil
}

// OnNavigation 是自动触发：站点识别且 autoExtract 开启时，等待 Settle 后抽取；
// saveToFile 开启时静默导出（失败只记日志）。
//
// 返回 ok=false 表示被跳过（此时 err 为 nil）。
func (c *Controller) OnNavigation(ctx context.Context, req Request) (Result, bool, error) {
	ok, reason, err := c.CheckNavigation(ctx, req.URL)
	if err != nil {
		c.fail(TriggerNavigation, req.URL, err)
		return Result{}, false, err
	}
	if !ok {
		metrics.NavigationSkippedTotal.WithLabelValues(reason).Inc()
		c.Logger.Debug().Str("url", req.URL).Str("reason", reason).Msg("跳过自动抽取")
		return Result{}, false, nil
	}

	metrics.NavigationInflight.Inc()
	defer metrics.NavigationInflight.Dec()

	if err := sleepCtx(ctx, c.Settle); err != nil {
		return Result{}, false, err
	}

	obs := c.observer()
	obs.OnAnalyzing(TriggerNavigation, req.URL)
	res, err := c.run(ctx, TriggerNavigation, req)
	if err != nil {
		c.fail(TriggerNavigation, req.URL, err)
		return Result{}, true, err
	}

	// 设置在等待期间可能被修改：导出开关以抽取完成时为准。
	settings, err := c.Store.LoadSettings(ctx)
	if err == nil && settings.SaveToFile && c.Exporter != nil {
		out, err := c.export(res.Record)
		if err != nil {
			metrics.ExportsTotal.WithLabelValues("failed").Inc()
			c.Logger.Warn().Err(err).Str("url", req.URL).Msg("自动导出失败")
		} else {
			res.Export = out
			obs.OnSaved(TriggerNavigation, out)
		}
	}
	return res, true, nil
}

// RunWatch 是定时触发的单个地址：总是抽取，不检查 autoExtract；导出跟随 saveToFile。
func (c *Controller) RunWatch(ctx context.Context, pageURL string) (Result, error) {
	obs := c.observer()
	obs.OnAnalyzing(TriggerSchedule, pageURL)
	res, err := c.run(ctx, TriggerSchedule, Request{URL: pageURL})
	if err != nil {
		c.fail(TriggerSchedule, pageURL, err)
		return Result{}, err
	}
	settings, err := c.Store.LoadSettings(ctx)
	if err == nil && settings.SaveToFile && c.Exporter != nil {
		if out, err := c.export(res.Record); err != nil {
			metrics.ExportsTotal.WithLabelValues("failed").Inc()
			c.Logger.Warn().Err(err).Str("url", pageURL).Msg("定时导出失败")
		} else {
			res.Export = out
			obs.OnSaved(TriggerSchedule, out)
		}
	}
	return res, nil
}

// Last 返回最近一次抽取的记录；没有时 ok=false。
func (c *Controller) Last(ctx context.Context) (domain.Record, bool, error) {
	return c.Store.LoadLast(ctx)
}

// Settings 返回当前设置（槽位为空时为默认值）。
func (c *Controller) Settings(ctx context.Context) (domain.Settings, error) {
	return c.Store.LoadSettings(ctx)
}

// SaveSettings 覆盖设置槽位。
func (c *Controller) SaveSettings(ctx context.Context, s domain.Settings) error {
	return c.Store.SaveSettings(ctx, s)
}

func (c *Controller) run(ctx context.Context, trig Trigger, req Request) (Result, error) {
	start := time.Now()
	page, err := c.page(ctx, req)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues(string(trig), string(classify.PlatformOfURL(req.URL)), "fetch_failed").Inc()
		return Result{}, err
	}
	rec, err := c.extractPage(ctx, trig, page)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues(string(trig), string(classify.PlatformOfURL(page.URL)), "failed").Inc()
		return Result{}, err
	}
	// 平台标签只取自 URL：增强结果可以改写 rec.Platform。
	metrics.ExtractionsTotal.WithLabelValues(string(trig), string(classify.PlatformOfURL(page.URL)), "ok").Inc()
	c.observer().OnExtracted(trig, rec, time.Since(start))
	return Result{Record: rec}, nil
}

func (c *Controller) page(ctx context.Context, req Request) (fetch.Page, error) {
	u := strings.TrimSpace(req.URL)
	if u == "" {
		return fetch.Page{}, fmt.Errorf("%w：地址为空", fetch.ErrNoPage)
	}
	if len(req.HTML) > 0 {
		return fetch.Page{URL: u, HTML: req.HTML}, nil
	}
	if c.Fetcher == nil {
		return fetch.Page{}, fmt.Errorf("%w：未提供 HTML 且未配置抓取器", fetch.ErrNoPage)
	}
	p, err := c.Fetcher.Fetch(ctx, u)
	if err != nil {
		return fetch.Page{}, fmt.Errorf("抓取页面失败：%w", err)
	}
	return p, nil
}

func (c *Controller) export(rec domain.Record) (export.Result, error) {
	if c.Exporter == nil {
		return export.Result{}, ErrExportDisabled
	}
	out, err := c.Exporter.Write(rec)
	if err != nil {
		return out, err
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	c.Logger.Info().Str("path", out.JSONPath).Msg("已导出")
	return out, nil
}

func (c *Controller) fail(trig Trigger, pageURL string, err error) {
	c.Logger.Error().Err(err).Str("trigger", string(trig)).Str("url", pageURL).Msg("抽取失败")
	c.observer().OnError(trig, pageURL, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
