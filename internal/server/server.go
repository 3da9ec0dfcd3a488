// Package server 提供自动触发与远程按需触发的 HTTP 入口。
//
// 浏览器端只需在页面加载完成时 POST /v1/navigation（可附带已渲染的 HTML），
// 其余逻辑全部在 controller 中完成。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/WSDX/internal/app/controller"
	"github.com/John-Robertt/WSDX/internal/fetch"
	xlog "github.com/John-Robertt/WSDX/internal/log"
	"github.com/John-Robertt/WSDX/internal/store"
)

const maxBodyBytes = 16 << 20

// Config 是 HTTP 服务的运行参数。
type Config struct {
	Listen string
	// RequestTimeout 同时约束同步请求与后台自动抽取（含 Settle 等待）。
	RequestTimeout time.Duration
	RatePerMinute  int
	// MaxInflight 是后台自动抽取的并发上限；满了返回 503。
	MaxInflight int
}

// HealthChecker 由需要探活的存储后端实现（例如 Redis）。
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Server struct {
	ctl    *controller.Controller
	cfg    Config
	logger zerolog.Logger
	health HealthChecker

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       *errgroup.Group
}

func New(ctl *controller.Controller, cfg Config, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 60
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 4
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	g := &errgroup.Group{}
	g.SetLimit(cfg.MaxInflight)

	s := &Server{ctl: ctl, cfg: cfg, logger: logger, bgCtx: bgCtx, bgCancel: cancel, bg: g}
	if hc, ok := ctl.Store.(HealthChecker); ok {
		s.health = hc
	}
	return s
}

// Handler 返回完整路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(accessLog(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RatePerMinute))
		r.Post("/extract", s.handleExtract)
		r.Post("/navigation", s.handleNavigation)
		r.Get("/last", s.handleLast)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})
	return r
}

// Run 监听直到 ctx 取消，然后优雅关闭：先停止接收请求，再取消并等待后台抽取。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.cfg.Listen).Msg("HTTP 服务已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.Close()
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	s.logger.Info().Msg("HTTP 服务已停止")
	return err
}

// Close 取消并等待所有后台自动抽取。
func (s *Server) Close() {
	s.bgCancel()
	_ = s.bg.Wait()
}

type extractRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
	Save bool   `json:"save"`
}

type navigationRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

type navigationResponse struct {
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.ctl.OnDemand(ctx, controller.Request{URL: req.URL, HTML: []byte(req.HTML), Save: req.Save})
	if err != nil {
		// 抽取成功但导出失败时记录已保存，这里仍按错误返回。
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	if res.Export.JSONPath != "" {
		w.Header().Set("X-Export-Path", res.Export.JSONPath)
	}
	writeJSON(w, http.StatusOK, res.Record)
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if !decode(w, r, &req) {
		return
	}
	ok, reason, err := s.ctl.CheckNavigation(r.Context(), req.URL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, navigationResponse{Accepted: false, Reason: reason})
		return
	}

	rid := xlog.RequestIDFromContext(r.Context())
	creq := controller.Request{URL: req.URL, HTML: []byte(req.HTML)}
	started := s.bg.TryGo(func() error {
		ctx, cancel := context.WithTimeout(xlog.ContextWithRequestID(s.bgCtx, rid), s.cfg.RequestTimeout)
		defer cancel()
		// 错误已由 controller 记录并通知 observer；这里不让单个失败影响其它任务。
		_, _, _ = s.ctl.OnNavigation(ctx, creq)
		return nil
	})
	if !started {
		writeJSON(w, http.StatusServiceUnavailable, navigationResponse{Accepted: false, Reason: "busy"})
		return
	}
	writeJSON(w, http.StatusAccepted, navigationResponse{Accepted: true, RequestID: rid})
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.ctl.Last(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "暂无抽取记录"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.Settings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings 在当前设置上应用请求体：未出现的字段保持不变。
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.Settings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if !decode(w, r, &st) {
		return
	}
	if err := s.ctl.SaveSettings(r.Context(), st); err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "请求体无效：" + err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	var se *fetch.HTTPStatusError
	switch {
	case errors.Is(err, fetch.ErrNoPage):
		return http.StatusBadRequest
	case errors.As(err, &se):
		return http.StatusBadGateway
	case errors.Is(err, controller.ErrExportDisabled):
		return http.StatusConflict
	case errors.Is(err, store.ErrReadOnly):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
