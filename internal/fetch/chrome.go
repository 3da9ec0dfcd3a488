package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// Chrome 用无头浏览器渲染页面，等待 Settle 后再截取 DOM。
//
// 流媒体站点大多由脚本填充内容，直接 GET 拿到的是空壳；
// Settle 对应“页面加载完成后再等一会儿”的行为。
type Chrome struct {
	Settle    time.Duration
	Timeout   time.Duration
	UserAgent string
	// Headful 为 true 时显示浏览器窗口（调试用）。
	Headful bool
}

func (c Chrome) Fetch(ctx context.Context, pageURL string) (Page, error) {
	pageURL, err := checkURL(pageURL)
	if err != nil {
		return Page{}, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	var (
		html  string
		final string
	)
	tasks := chromedp.Tasks{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if c.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(c.Settle))
	}
	tasks = append(tasks,
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return Page{}, err
	}
	if final == "" {
		final = pageURL
	}
	return Page{URL: final, HTML: []byte(html)}, nil
}

func (c Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !c.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	return opts
}
