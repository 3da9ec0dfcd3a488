// Package schedule 按 cron 表达式定期抽取固定的一组地址（watch 列表）。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/John-Robertt/WSDX/internal/app/controller"
	"github.com/John-Robertt/WSDX/internal/metrics"
)

// Runner 执行单个地址的定时抽取（由 *controller.Controller 实现）。
type Runner interface {
	RunWatch(ctx context.Context, pageURL string) (controller.Result, error)
}

type Config struct {
	// Cron 为 5 段表达式或 @hourly / @every 1h 这类描述符。
	Cron      string
	WatchURLs []string
	// RatePerMinute 限制单轮内相邻两次抓取的速率。
	RatePerMinute int
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate 检查 cron 表达式是否可解析。
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron 表达式无效 %q：%w", expr, err)
	}
	return nil
}

type Scheduler struct {
	runner  Runner
	urls    []string
	limiter *rate.Limiter
	cron    *cron.Cron
	logger  zerolog.Logger

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(runner Runner, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner 不能为空")
	}
	if len(cfg.WatchURLs) == 0 {
		return nil, errors.New("watch 列表为空")
	}
	if err := Validate(cfg.Cron); err != nil {
		return nil, err
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 6
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:  runner,
		urls:    append([]string(nil), cfg.WatchURLs...),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	if _, err := s.cron.AddFunc(cfg.Cron, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("注册定时任务失败：%w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("urls", len(s.urls)).Msg("定时抽取已启动")
}

// Stop 停止调度并取消正在进行的一轮，等待其退出。
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info().Msg("定时抽取已停止")
}

// tick 是 cron 回调；上一轮未结束时跳过本轮。
func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		metrics.ScheduleRunsTotal.WithLabelValues("overlap").Inc()
		s.logger.Warn().Msg("上一轮尚未结束，跳过")
		return
	}
	s.wg.Add(1)
	defer func() {
		s.running.Store(false)
		s.wg.Done()
	}()
	_ = s.RunOnce(s.ctx)
}

// RunOnce 顺序抽取 watch 列表中的全部地址；单个失败不影响其余地址。
// 返回第一个失败（ctx 取消时立即返回）。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var first error
	for _, u := range s.urls {
		if err := s.limiter.Wait(ctx); err != nil {
			metrics.ScheduleRunsTotal.WithLabelValues("canceled").Inc()
			return err
		}
		if _, err := s.runner.RunWatch(ctx, u); err != nil {
			if ctx.Err() != nil {
				metrics.ScheduleRunsTotal.WithLabelValues("canceled").Inc()
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Str("url", u).Msg("定时抽取失败")
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		metrics.ScheduleRunsTotal.WithLabelValues("partial").Inc()
		return first
	}
	metrics.ScheduleRunsTotal.WithLabelValues("ok").Inc()
	return nil
}
