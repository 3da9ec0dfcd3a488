package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xlog "github.com/John-Robertt/WSDX/internal/log"
)

const HeaderRequestID = "X-Request-ID"

// requestID 沿用调用方的 X-Request-ID，没有时生成 UUID；同时写入 ctx 供日志使用。
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := xlog.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog 记录每个请求的状态码与耗时。
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			l := xlog.WithContext(r.Context(), logger)
			level := zerolog.InfoLevel
			if ww.Status() >= 500 {
				level = zerolog.WarnLevel
			}
			l.WithLevel(level).Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("http")
		})
	}
}

// rateLimit 按客户端 IP 限流（滑动窗口），超限返回 JSON 429。
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Minute.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limit_exceeded"})
		}),
	)
}
