// Package fetch 把页面地址变成可供抽取的 HTML。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Page 是一次抓取的结果：最终地址（跟随重定向后）与原始 HTML。
type Page struct {
	URL  string
	HTML []byte
}

// Fetcher 负责“拿到页面”；解析与抽取不在这里做。
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

// ErrNoPage 表示没有可处理的页面（地址为空，或 scheme 不是 http/https）。
var ErrNoPage = errors.New("没有可处理的页面")

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d url=%s", e.StatusCode, e.URL)
}

// checkURL 只接受 http/https 地址。
func checkURL(pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	lower := strings.ToLower(pageURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", fmt.Errorf("%w：%q", ErrNoPage, pageURL)
	}
	return pageURL, nil
}
