package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/WSDX/internal/app/controller"
	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/export"
)

var _ controller.Observer = (*statusPrinter)(nil)

// statusPrinter 把 controller 事件输出为一行一条的状态信息。
//
// 所有输出写到 stderr，不污染 stdout 的 JSON。serve 模式下事件来自多个 goroutine。
type statusPrinter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w, now: time.Now}
}

func (p *statusPrinter) printf(trig controller.Trigger, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := "[" + p.now().Format("15:04:05") + "]"
	if trig != "" && trig != controller.TriggerOnDemand {
		prefix += " (" + string(trig) + ")"
	}
	fmt.Fprintf(p.w, prefix+" "+format+"\n", args...)
}

func (p *statusPrinter) OnAnalyzing(trig controller.Trigger, pageURL string) {
	p.printf(trig, "正在分析页面… %s", truncate(pageURL, 120))
}

func (p *statusPrinter) OnExtracted(trig controller.Trigger, rec domain.Record, dur time.Duration) {
	name := rec.Title
	if name == "" {
		name = string(rec.Platform)
	}
	ai := ""
	if rec.AIEnhanced {
		ai = "（AI 增强）"
	}
	p.printf(trig, "抽取成功：%s%s platform=%s type=%s (%s)",
		truncate(name, 80), ai, rec.Platform, rec.PageType, formatShortDuration(dur))
}

func (p *statusPrinter) OnSaved(trig controller.Trigger, res export.Result) {
	if res.NFOPath != "" {
		p.printf(trig, "已保存：%s（nfo: %s）", displayPath(res.JSONPath), displayPath(res.NFOPath))
		return
	}
	p.printf(trig, "已保存：%s", displayPath(res.JSONPath))
}

func (p *statusPrinter) OnError(trig controller.Trigger, pageURL string, err error) {
	if pageURL == "" {
		p.printf(trig, "出错：%s", truncate(errString(err), 200))
		return
	}
	p.printf(trig, "出错：%s: %s", truncate(pageURL, 120), truncate(errString(err), 200))
}

// formatSummary 是终端下 extract/last 的可读输出。
func formatSummary(rec domain.Record) string {
	var b strings.Builder
	title := rec.Title
	if title == "" {
		title = "（无标题）"
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "  platform: %s  type: %s  ai: %s\n", rec.Platform, rec.PageType, onOff(rec.AIEnhanced))
	if rec.Rating != "" {
		fmt.Fprintf(&b, "  rating: %s\n", rec.Rating)
	}
	if len(rec.Genres) > 0 {
		fmt.Fprintf(&b, "  genres: %s\n", truncate(strings.Join(rec.Genres, ", "), 160))
	}
	if len(rec.Cast) > 0 {
		fmt.Fprintf(&b, "  cast: %s\n", truncate(strings.Join(rec.Cast, ", "), 160))
	}
	if rec.Description != "" {
		fmt.Fprintf(&b, "  description: %s\n", truncate(rec.Description, 160))
	}
	fmt.Fprintf(&b, "  episodes=%d images=%d metadata=%d\n", len(rec.Episodes), len(rec.Images), len(rec.Metadata))
	fmt.Fprintf(&b, "  url: %s\n", rec.URL)
	return b.String()
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
