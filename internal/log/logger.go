// Package log 提供结构化日志：一个全局 base logger，按组件派生子 logger。
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config 是全局 logger 的配置。
type Config struct {
	Level   string    // "debug"/"info"/...；为空时读 LOG_LEVEL，再为空则 info
	Output  io.Writer // 默认 os.Stderr
	Console bool      // true 时输出人类可读格式（终端使用）
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "wsdx").Logger()
)

// Configure 设置全局 logger；可重复调用，后一次覆盖前一次。
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	lv := cfg.Level
	if lv == "" {
		lv = os.Getenv("LOG_LEVEL")
	}
	if lv != "" {
		if parsed, err := zerolog.ParseLevel(lv); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", "wsdx").
		Logger()

	mu.Lock()
	base = l
	mu.Unlock()
}

// Base 返回当前的 base logger。
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent 返回带 component 字段的子 logger。
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
