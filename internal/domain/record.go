package domain

import (
	"encoding/json"
	"time"
)

// Platform 是页面所属的媒体站点（闭集 + Unknown）。
type Platform string

const (
	PlatformNetflix          Platform = "Netflix"
	PlatformAmazonPrime      Platform = "Amazon Prime"
	PlatformHulu             Platform = "Hulu"
	PlatformDisneyPlus       Platform = "Disney+"
	PlatformHBOMax           Platform = "HBO Max"
	PlatformIMDb             Platform = "IMDb"
	PlatformRottenTomatoes   Platform = "Rotten Tomatoes"
	PlatformMetacritic       Platform = "Metacritic"
	PlatformTheTVDB          Platform = "TheTVDB"
	PlatformTrakt            Platform = "Trakt"
	PlatformCommonSenseMedia Platform = "Common Sense Media"
	PlatformLetterboxd       Platform = "Letterboxd"
	PlatformTMDb             Platform = "TMDb"
	PlatformUnknown          Platform = "Unknown"
)

// PageType 是 URL 的粗分类（闭集 + unknown）。
type PageType string

const (
	PageMovie   PageType = "movie"
	PageSeries  PageType = "series"
	PageEpisode PageType = "episode"
	PageSeason  PageType = "season"
	PageReviews PageType = "reviews"
	PageListing PageType = "listing"
	PagePerson  PageType = "person"
	PageTitle   PageType = "title"
	PageWatch   PageType = "watch"
	PageProduct PageType = "product"
	PageUnknown PageType = "unknown"
)

// Episode 是剧集列表中的一项；Title 与 Number 至少一个非空才会出现在 Record 中。
type Episode struct {
	Title       string `json:"title"`
	Number      string `json:"number"`
	Description string `json:"description"`
}

// Record 是一次页面抽取的完整结果（ExtractionRecord）。
//
// 约束：
// - 交给调用方之后不再修改；增强合并会返回新的 Record
// - 切片字段序列化时永远是 []，不输出 null
// - Extra 承载 AI 增强返回的未知字段（例如 additionalInfo），序列化时平铺到顶层
type Record struct {
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Rating      string         `json:"rating"`
	Genres      []string       `json:"genres"`
	Cast        []string       `json:"cast"`
	Episodes    []Episode      `json:"episodes"`
	Images      []string       `json:"images"`
	Metadata    map[string]any `json:"metadata"`
	ExtractedAt time.Time      `json:"extractedAt"`
	Platform    Platform       `json:"platform"`
	PageType    PageType       `json:"pageType"`
	AIEnhanced  bool           `json:"aiEnhanced"`

	Extra map[string]any `json:"-"`
}

// KnownKeys 是 Record 的固定 JSON 字段名（顺序与输出一致）。
var KnownKeys = []string{
	"url", "title", "description", "rating", "genres", "cast", "episodes",
	"images", "metadata", "extractedAt", "platform", "pageType", "aiEnhanced",
}

// IsKnownKey 判断 key 是否是 Record 的固定字段。
func IsKnownKey(k string) bool {
	for _, kk := range KnownKeys {
		if kk == k {
			return true
		}
	}
	return false
}

// NewRecord 返回所有字段都是默认值的 Record（切片/映射非 nil）。
func NewRecord(pageURL string, now time.Time) Record {
	return Record{
		URL:         pageURL,
		Genres:      []string{},
		Cast:        []string{},
		Episodes:    []Episode{},
		Images:      []string{},
		Metadata:    map[string]any{},
		ExtractedAt: now.UTC(),
		Platform:    PlatformUnknown,
		PageType:    PageUnknown,
	}
}

// Clone 返回深度足够的副本：切片与顶层映射都是新的，嵌套值共享（只读使用）。
func (r Record) Clone() Record {
	out := r
	out.Genres = append([]string{}, r.Genres...)
	out.Cast = append([]string{}, r.Cast...)
	out.Episodes = append([]Episode{}, r.Episodes...)
	out.Images = append([]string{}, r.Images...)
	out.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

type recordAlias Record

// MarshalJSON 保证切片不为 null，并把 Extra 平铺到顶层（固定字段优先）。
func (r Record) MarshalJSON() ([]byte, error) {
	a := recordAlias(r.normalized())
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return b, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if IsKnownKey(k) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// UnmarshalJSON 读回固定字段，未知顶层字段收进 Extra。
func (r *Record) UnmarshalJSON(b []byte) error {
	var a recordAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, raw := range m {
		if IsKnownKey(k) {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if a.Extra == nil {
			a.Extra = map[string]any{}
		}
		a.Extra[k] = v
	}
	*r = Record(a).normalized()
	return nil
}

func (r Record) normalized() Record {
	if r.Genres == nil {
		r.Genres = []string{}
	}
	if r.Cast == nil {
		r.Cast = []string{}
	}
	if r.Episodes == nil {
		r.Episodes = []Episode{}
	}
	if r.Images == nil {
		r.Images = []string{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	if r.Platform == "" {
		r.Platform = PlatformUnknown
	}
	if r.PageType == "" {
		r.PageType = PageUnknown
	}
	return r
}
