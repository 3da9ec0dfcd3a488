package controller

import (
	"time"

	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/export"
)

// Trigger 标记一次抽取的来源。
type Trigger string

const (
	TriggerOnDemand   Trigger = "on_demand"
	TriggerNavigation Trigger = "navigation"
	TriggerSchedule   Trigger = "schedule"
)

// Observer 接收状态事件（正在分析 / 成功 / 已保存 / 出错），由展示层决定如何输出。
//
// 约束：
// - controller 只发事件，不做任何输出
// - 实现必须并发安全：serve 模式下事件来自多个 goroutine
type Observer interface {
	OnAnalyzing(trig Trigger, pageURL string)
	OnExtracted(trig Trigger, rec domain.Record, dur time.Duration)
	OnSaved(trig Trigger, res export.Result)
	OnError(trig Trigger, pageURL string, err error)
}

type nopObserver struct{}

func (nopObserver) OnAnalyzing(Trigger, string)                       {}
func (nopObserver) OnExtracted(Trigger, domain.Record, time.Duration) {}
func (nopObserver) OnSaved(Trigger, export.Result)                    {}
func (nopObserver) OnError(Trigger, string, error)                    {}
