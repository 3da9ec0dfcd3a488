package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
)

const defaultMaxBytes = 8 << 20

// HTTP 用普通 GET 抓取页面，适用于服务端渲染的站点。
type HTTP struct {
	Client *http.Client
	// MaxBytes 限制读取的正文大小；<=0 时为 8MiB。
	MaxBytes int64
}

func (h HTTP) Fetch(ctx context.Context, pageURL string) (Page, error) {
	pageURL, err := checkURL(pageURL)
	if err != nil {
		return Page{}, err
	}
	if h.Client == nil {
		return Page{}, errors.New("http client 不能为空")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := h.Client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	final := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &HTTPStatusError{URL: final, StatusCode: resp.StatusCode}
	}

	max := h.MaxBytes
	if max <= 0 {
		max = defaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, max))
	if err != nil {
		return Page{}, err
	}
	return Page{URL: final, HTML: b}, nil
}
