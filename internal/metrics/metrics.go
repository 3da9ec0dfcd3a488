// Package metrics 暴露抽取流程的 Prometheus 指标。
//
// 标签只使用有限取值（触发方式、平台、结果），不放 URL。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionsTotal 按触发方式、平台、结果统计抽取次数。
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsdx_extractions_total",
		Help: "Total number of page extractions, by trigger, platform and result.",
	}, []string{"trigger", "platform", "result"})

	// ExtractionDuration 是一次抽取（抓取 + 解析 + 增强 + 保存）的耗时。
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wsdx_extraction_duration_seconds",
		Help:    "Duration of a full extraction, by trigger.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"trigger"})

	// EnhanceTotal 统计 AI 增强结果：ok / failed / skipped。
	EnhanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsdx_enhance_total",
		Help: "Total number of AI enhancement attempts, by result.",
	}, []string{"result"})

	// ExportsTotal 统计导出文件写入结果。
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsdx_exports_total",
		Help: "Total number of export file writes, by result.",
	}, []string{"result"})

	// NavigationSkippedTotal 统计被跳过的自动触发，按原因。
	NavigationSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsdx_navigation_skipped_total",
		Help: "Total number of navigation triggers that did not extract, by reason.",
	}, []string{"reason"})

	// NavigationInflight 是正在后台执行的自动触发数。
	NavigationInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wsdx_navigation_inflight",
		Help: "Number of navigation-triggered extractions currently running.",
	})

	// ScheduleRunsTotal 统计定时任务的运行结果：ok / failed / overlap。
	ScheduleRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsdx_schedule_runs_total",
		Help: "Total number of scheduled watch-list runs, by result.",
	}, []string{"result"})
)
