package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/WSDX/internal/app/controller"
	"github.com/John-Robertt/WSDX/internal/config"
	"github.com/John-Robertt/WSDX/internal/enhance"
	"github.com/John-Robertt/WSDX/internal/export"
	"github.com/John-Robertt/WSDX/internal/extract"
	"github.com/John-Robertt/WSDX/internal/fetch"
	"github.com/John-Robertt/WSDX/internal/infra/httpx"
	xlog "github.com/John-Robertt/WSDX/internal/log"
	"github.com/John-Robertt/WSDX/internal/store"
)

// globalFlags 是所有子命令共享的参数；只有显式指定的值才覆盖配置文件。
type globalFlags struct {
	config    string
	output    string
	state     string
	store     string
	renderer  string
	listen    string
	logLevel  string
	apiKeyEnv string
	nfo       bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "wsdx",
		Short:         "流媒体剧集/电影页面元数据抽取",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&gf.config, "config", "", "配置文件路径（默认读取当前目录的 "+config.FileName+"，可选）")
	pf.StringVar(&gf.output, "output", "", "导出目录")
	pf.StringVar(&gf.state, "state", "", "状态目录（file 存储使用）")
	pf.StringVar(&gf.store, "store", "", "存储后端：file|redis|memory")
	pf.StringVar(&gf.renderer, "renderer", "", "页面获取方式：http|chrome")
	pf.StringVar(&gf.listen, "listen", "", "serve 监听地址")
	pf.StringVar(&gf.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.StringVar(&gf.apiKeyEnv, "api-key-env", "", "读取 AI key 的环境变量名")
	pf.BoolVar(&gf.nfo, "nfo", false, "导出时同时写 .nfo")

	root.AddCommand(
		newExtractCmd(gf),
		newServeCmd(gf),
		newLastCmd(gf),
		newSettingsCmd(gf),
	)
	return root
}

func (gf *globalFlags) cliArgs(cmd *cobra.Command) config.CLIArgs {
	return config.CLIArgs{
		ConfigPath: gf.config,
		OutputDir:  gf.output,
		StateDir:   gf.state,
		Store:      gf.store,
		Renderer:   gf.renderer,
		Listen:     gf.listen,
		LogLevel:   gf.logLevel,
		APIKeyEnv:  gf.apiKeyEnv,
		NFO:        gf.nfo,
		NFOSet:     cmd.Flags().Changed("nfo"),
	}
}

// app 是一次命令执行所需的全部组件。
type app struct {
	eff    config.EffectiveConfig
	ctl    *controller.Controller
	store  store.Store
	logger zerolog.Logger
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// buildApp 读取配置并组装 controller；obs 为 nil 时不输出状态行。
// readOnly 只作用于 file 存储。
func buildApp(ctx context.Context, cmd *cobra.Command, gf *globalFlags, obs controller.Observer, readOnly bool) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("读取当前目录失败：%w", err)
	}
	eff, err := config.LoadEffective(cwd, gf.cliArgs(cmd))
	if err != nil {
		return nil, err
	}

	xlog.Configure(xlog.Config{
		Level:   eff.LogLevel,
		Output:  cmd.ErrOrStderr(),
		Console: isTTY(cmd.ErrOrStderr()),
	})
	logger := xlog.WithComponent("cli")
	if eff.ConfigFile != "" {
		logger.Debug().Str("path", eff.ConfigFile).Msg("已读取配置文件")
	}

	st, err := openStore(ctx, eff, readOnly)
	if err != nil {
		return nil, err
	}

	navSettle, renderSettle := splitSettle(eff.Fetch)
	fetcher, err := newFetcher(eff.Fetch, renderSettle)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ctl := &controller.Controller{
		Extractor: extract.New(),
		Fetcher:   fetcher,
		Store:     st,
		Exporter:  &export.Writer{Dir: eff.OutputDir, NFO: eff.NFO},
		Settle:    navSettle,
		Observer:  obs,
		Logger:    xlog.WithComponent("controller"),
	}

	enh, err := newEnhancer(eff.AI, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if enh != nil {
		ctl.Enhancer = enh
	}

	return &app{eff: eff, ctl: ctl, store: st, logger: logger}, nil
}

func openStore(ctx context.Context, eff config.EffectiveConfig, readOnly bool) (store.Store, error) {
	switch eff.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(ctx, store.RedisConfig{
			Addr:     eff.Store.RedisAddr,
			Password: eff.Store.RedisPassword(eff.AI.Dotenv),
			DB:       eff.Store.RedisDB,
			Prefix:   eff.Store.RedisPrefix,
		}, xlog.WithComponent("store"))
	case "file", "":
		return store.NewFile(eff.StateDir, readOnly), nil
	default:
		return nil, fmt.Errorf("未知存储后端：%q", eff.Store.Backend)
	}
}

// splitSettle 决定等待放在哪一层，保证一次自动触发只等待一次：
// chrome 渲染器在页面加载后自己等待；http 渲染器拿不到脚本渲染结果，由 controller 在抓取前等待。
func splitSettle(fc config.FetchConfig) (navigation, render time.Duration) {
	if fc.Renderer == "chrome" {
		return 0, fc.Settle
	}
	return fc.Settle, 0
}

func newFetcher(fc config.FetchConfig, settle time.Duration) (fetch.Fetcher, error) {
	switch fc.Renderer {
	case "chrome":
		return fetch.Chrome{
			Settle:    settle,
			Timeout:   fc.Timeout,
			UserAgent: httpx.RandomUserAgent(),
			Headful:   fc.Headful,
		}, nil
	case "http", "":
		client, err := httpx.NewPageClient(fc.ProxyURL, fc.Timeout)
		if err != nil {
			return nil, err
		}
		return fetch.HTTP{Client: client}, nil
	default:
		return nil, fmt.Errorf("未知 renderer：%q", fc.Renderer)
	}
}

// newEnhancer 只在拿到 key 时返回客户端；返回 nil 表示不做增强。
// 日志只记录 key 的来源，不记录值。
func newEnhancer(ac config.AIConfig, logger zerolog.Logger) (enhance.Enhancer, error) {
	key, source := ac.APIKey()
	if key == "" {
		if ac.Disabled {
			logger.Debug().Msg("AI 增强已关闭")
		} else {
			logger.Debug().Str("env", ac.APIKeyEnv).Msg("未找到 AI key，跳过增强")
		}
		return nil, nil
	}
	client, err := httpx.NewAPIClient(ac.Timeout)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("source", source).Str("model", ac.Model).Msg("AI 增强已启用")
	return &enhance.Client{
		HTTP:     client,
		Endpoint: ac.Endpoint,
		Model:    ac.Model,
		APIKey:   key,
	}, nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func exitCode(err error) int {
	var ce *config.Error
	if errors.As(err, &ce) {
		return 2
	}
	return 1
}

func displayPath(p string) string {
	if p == "" {
		return ""
	}
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return p
}
