package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/WSDX/internal/app/controller"
	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/export"
	xlog "github.com/John-Robertt/WSDX/internal/log"
	"github.com/John-Robertt/WSDX/internal/schedule"
	"github.com/John-Robertt/WSDX/internal/server"
)

func newExtractCmd(gf *globalFlags) *cobra.Command {
	var htmlFile string
	var save bool
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "抽取一个页面（按需触发）",
		Long: `抽取一个页面并保存为最近记录。

stdout 为终端时输出摘要；否则 stdout 只输出一条记录 JSON（状态行走 stderr）。
--html 指定本地 HTML 文件时不再抓取页面（URL 仍用于平台识别与相对地址解析）。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var html []byte
			if htmlFile != "" {
				b, err := os.ReadFile(htmlFile)
				if err != nil {
					return fmt.Errorf("读取 HTML 文件失败：%w", err)
				}
				html = b
			}

			status := newStatusPrinter(cmd.ErrOrStderr())
			a, err := buildApp(cmd.Context(), cmd, gf, status, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.ctl.OnDemand(cmd.Context(), controller.Request{URL: args[0], HTML: html, Save: save})
			if err != nil {
				return err
			}
			return emitRecord(cmd, res.Record)
		},
	}
	cmd.Flags().StringVar(&htmlFile, "html", "", "使用本地 HTML 文件代替抓取")
	cmd.Flags().BoolVar(&save, "save", false, "同时写导出文件")
	return cmd
}

func newServeCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务（自动触发、按需触发与定时抽取）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			status := newStatusPrinter(cmd.ErrOrStderr())
			a, err := buildApp(ctx, cmd, gf, status, false)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.ctl, server.Config{
				Listen:         a.eff.Server.Listen,
				RequestTimeout: a.eff.Server.RequestTimeout,
				RatePerMinute:  a.eff.Server.RatePerMinute,
				MaxInflight:    a.eff.Server.MaxInflight,
			}, xlog.WithComponent("server"))

			var sched *schedule.Scheduler
			if a.eff.Schedule.Cron != "" {
				sched, err = schedule.New(a.ctl, schedule.Config{
					Cron:          a.eff.Schedule.Cron,
					WatchURLs:     a.eff.Schedule.WatchURLs,
					RatePerMinute: a.eff.Schedule.RatePerMinute,
				}, xlog.WithComponent("schedule"))
				if err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			if sched != nil {
				sched.Start()
				g.Go(func() error {
					<-gctx.Done()
					sched.Stop()
					return nil
				})
			}
			return g.Wait()
		},
	}
}

func newLastCmd(gf *globalFlags) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "last",
		Short: "显示最近一次抽取的记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := newStatusPrinter(cmd.ErrOrStderr())
			a, err := buildApp(cmd.Context(), cmd, gf, status, true)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, ok, err := a.ctl.Last(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("暂无抽取记录")
			}
			if save {
				out, err := a.ctl.Exporter.Write(rec)
				if err != nil {
					return err
				}
				status.OnSaved(controller.TriggerOnDemand, out)
			}
			return emitRecord(cmd, rec)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "把最近记录写成导出文件")
	return cmd
}

func newSettingsCmd(gf *globalFlags) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看或修改开关",
		Long: `不带参数时输出当前开关；--set key=true|false 可重复指定。

可用开关：` + strings.Join(domain.SettingKeys(), ", "),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), cmd, gf, nil, false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.ctl.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if len(sets) > 0 {
				for _, kv := range sets {
					k, v, err := parseSetting(kv)
					if err != nil {
						return err
					}
					if err := st.Set(k, v); err != nil {
						return err
					}
				}
				if err := a.ctl.SaveSettings(cmd.Context(), st); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "修改开关，例如 --set autoExtract=true")
	return cmd
}

func parseSetting(s string) (string, bool, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", false, fmt.Errorf("--set 需要 key=true|false，实际是 %q", s)
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return "", false, fmt.Errorf("--set %s 的值只能是 true 或 false，实际是 %q", k, v)
	}
	return strings.TrimSpace(k), b, nil
}

// emitRecord：stdout 非终端时输出记录 JSON；终端时输出摘要。
func emitRecord(cmd *cobra.Command, rec domain.Record) error {
	w := cmd.OutOrStdout()
	if isTTY(w) {
		fmt.Fprint(w, formatSummary(rec))
		return nil
	}
	b, err := export.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
