package extract

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/WSDX/internal/classify"
	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/platform"
)

// Extractor 把一个已加载的页面（DOM + 地址）转成 Record。
//
// 这是唯一的一份选择器逻辑：按需抽取、自动触发、定时任务都调用它。
// Extract 不做网络请求，也不会因为 DOM 缺失而失败。
type Extractor struct {
	Platforms platform.Registry
	// Now 允许测试固定 extractedAt；为空时使用 time.Now。
	Now func() time.Time
}

// New 返回使用内置平台抽取器的 Extractor。
func New() *Extractor {
	return &Extractor{Platforms: platform.Default()}
}

// Extract 对 doc 执行全部字段抽取；settings 中关闭的字段保持默认值。
func (e *Extractor) Extract(doc *goquery.Document, pageURL string, settings domain.Settings) domain.Record {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	rec := domain.NewRecord(strings.TrimSpace(pageURL), now())
	rec.Platform = classify.PlatformOfURL(pageURL)
	rec.PageType = classify.PageType(pageURL)
	if doc == nil {
		return rec
	}

	if settings.ExtractTitle {
		rec.Title = Title(doc, rec.Platform)
	}
	if settings.ExtractDescription {
		rec.Description = Description(doc)
	}
	if settings.ExtractRating {
		rec.Rating = Rating(doc)
	}
	if settings.ExtractGenres {
		rec.Genres = Genres(doc)
	}
	if settings.ExtractCast {
		rec.Cast = Cast(doc)
	}
	if settings.ExtractEpisodes {
		rec.Episodes = Episodes(doc)
	}
	if settings.ExtractImages {
		rec.Images = Images(doc, pageURL)
	}
	rec.Metadata = Metadata(doc, rec.Platform, e.Platforms)
	return rec
}

// ExtractHTML 解析 HTML 后调用 Extract。
func (e *Extractor) ExtractHTML(html []byte, pageURL string, settings domain.Settings) (domain.Record, error) {
	if len(html) == 0 {
		return domain.Record{}, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.Record{}, err
	}
	return e.Extract(doc, pageURL, settings), nil
}
