package platform

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/WSDX/internal/domain"
)

// Extractor 是平台专属的补充抽取器：把少量站点特有字段收进 metadata 的一个子对象。
//
// 约束：
// - Extract 必须是纯函数：相同 DOM => 相同输出
// - 元素缺失只是不输出对应 key，不是错误
type Extractor interface {
	Platform() domain.Platform
	// Key 是写入 Record.Metadata 的键名（例如 netflixData）。
	Key() string
	Extract(doc *goquery.Document) map[string]string
}

// Registry 是按平台索引的只读注册表。
type Registry struct {
	byPlatform map[domain.Platform]Extractor
}

func NewRegistry(extractors ...Extractor) (Registry, error) {
	byPlatform := make(map[domain.Platform]Extractor, len(extractors))
	for _, e := range extractors {
		if e == nil {
			return Registry{}, fmt.Errorf("extractor 不能为空")
		}
		p := e.Platform()
		if p == "" || p == domain.PlatformUnknown {
			return Registry{}, fmt.Errorf("extractor 必须绑定具体平台，实际是 %q", p)
		}
		if strings.TrimSpace(e.Key()) == "" {
			return Registry{}, fmt.Errorf("extractor.Key 不能为空：%q", p)
		}
		if _, ok := byPlatform[p]; ok {
			return Registry{}, fmt.Errorf("重复的平台 extractor：%q", p)
		}
		byPlatform[p] = e
	}
	return Registry{byPlatform: byPlatform}, nil
}

// Default 返回内置的三个平台抽取器（Netflix / IMDb / Common Sense Media）。
func Default() Registry {
	r, err := NewRegistry(Netflix{}, IMDb{}, CommonSenseMedia{})
	if err != nil {
		// 内置集合是静态的，出错只可能是编码错误。
		panic(err)
	}
	return r
}

func (r Registry) Get(p domain.Platform) (Extractor, bool) {
	if r.byPlatform == nil {
		return nil, false
	}
	e, ok := r.byPlatform[p]
	return e, ok
}

// Netflix 抽取分级与年份。
type Netflix struct{}

func (Netflix) Platform() domain.Platform { return domain.PlatformNetflix }
func (Netflix) Key() string               { return "netflixData" }

func (Netflix) Extract(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	put(out, "maturityRating", firstText(doc, ".maturity-rating"))
	put(out, "year", firstText(doc, ".year"))
	return out
}

// IMDb 抽取年份与时长（标题块后的元信息列表）。
type IMDb struct{}

func (IMDb) Platform() domain.Platform { return domain.PlatformIMDb }
func (IMDb) Key() string               { return "imdbData" }

func (IMDb) Extract(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	put(out, "year", firstText(doc, `[data-testid="hero-title-block__title"] + ul li`))
	put(out, "runtime", firstText(doc, `[data-testid="hero-title-block__metadata"] li`))
	return out
}

// CommonSenseMedia 抽取年龄分级与教育价值。
type CommonSenseMedia struct{}

func (CommonSenseMedia) Platform() domain.Platform { return domain.PlatformCommonSenseMedia }
func (CommonSenseMedia) Key() string               { return "csmData" }

func (CommonSenseMedia) Extract(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	put(out, "ageRating", firstText(doc, ".age-rating"))
	put(out, "educationalValue", firstText(doc, ".educational-value"))
	return out
}

// firstText 只看第一个命中节点；节点存在但文本为空时也算存在（输出空串）。
func firstText(doc *goquery.Document, sel string) *string {
	s := doc.Find(sel).First()
	if s.Length() == 0 {
		return nil
	}
	t := strings.TrimSpace(s.Text())
	return &t
}

func put(m map[string]string, k string, v *string) {
	if v == nil {
		return
	}
	m[k] = *v
}
