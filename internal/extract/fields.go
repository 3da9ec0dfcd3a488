package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/platform"
)

// Title 依次尝试平台候选（或通用候选），第一个命中节点的候选胜出，即使其文本为空；
// 没有任何候选命中时才回退 <title>。
func Title(doc *goquery.Document, p domain.Platform) string {
	for _, sel := range titleSelectors(p) {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		return nodeValue(s, sel)
	}
	return normSpace(doc.Find("title").First().Text())
}

// Description 第一个长度超过 20 个字符的候选胜出（meta 只要求 content 非空）。
func Description(doc *goquery.Document) string {
	for _, sel := range descriptionSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		v := nodeValue(s, sel)
		if isMeta(sel) {
			if v != "" {
				return v
			}
			continue
		}
		if utf8.RuneCountInString(v) > minDescriptionLen {
			return v
		}
	}
	return ""
}

var ratingRE = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Rating 取第一个数字子串，只接受 [0,10] 区间；否则回退到下一个候选。
func Rating(doc *goquery.Document) string {
	for _, sel := range ratingSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if v, ok := parseRating(s.Text()); ok {
			return v
		}
	}
	return ""
}

func parseRating(text string) (string, bool) {
	m := ratingRE.FindString(strings.TrimSpace(text))
	if m == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return "", false
	}
	if f < 0 || f > maxRating {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// Genres 收集所有候选的所有命中节点，保持首次出现顺序并精确去重。
func Genres(doc *goquery.Document) []string {
	return collectTexts(doc, genreSelectors, maxGenreLen)
}

// Cast 同 Genres，长度上限 100。
func Cast(doc *goquery.Document) []string {
	return collectTexts(doc, castSelectors, maxCastLen)
}

func collectTexts(doc *goquery.Document, selectors []string, maxLen int) []string {
	out := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v := normSpace(s.Text())
			if v == "" || utf8.RuneCountInString(v) >= maxLen {
				return
			}
			if _, ok := seen[v]; ok {
				return
			}
			seen[v] = struct{}{}
			out = append(out, v)
		})
	}
	return out
}

// Images 收集图片 src，按页面地址解析为绝对 URL，并按绝对 URL 去重。
func Images(doc *goquery.Document, pageURL string) []string {
	out := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	for _, sel := range imageSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			abs := resolveURL(pageURL, src)
			if abs == "" {
				return
			}
			if _, ok := seen[abs]; ok {
				return
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		})
	}
	return out
}

// Episodes 对每个容器节点取子字段；title 与 number 都为空的条目被丢弃。
// 不同候选命中同一节点时会重复出现（不做跨条目去重）。
func Episodes(doc *goquery.Document) []domain.Episode {
	out := make([]domain.Episode, 0, 8)
	for _, sel := range episodeSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			ep := domain.Episode{
				Title:       firstChildText(s, episodeTitleSelectors),
				Number:      firstChildText(s, episodeNumberSelectors),
				Description: firstChildText(s, episodeDescriptionSelectors),
			}
			if ep.Title == "" && ep.Number == "" {
				return
			}
			out = append(out, ep)
		})
	}
	return out
}

func firstChildText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if v := normSpace(s.Find(sel).First().Text()); v != "" {
			return v
		}
	}
	return ""
}

// Metadata 汇总 JSON-LD（仅保留识别的 @type）、全部 meta 标签，以及平台专属子对象。
func Metadata(doc *goquery.Document, p domain.Platform, reg platform.Registry) map[string]any {
	out := map[string]any{}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		obj, ok := data.(map[string]any)
		if !ok {
			return
		}
		t, _ := obj["@type"].(string)
		if _, ok := structuredDataTypes[t]; ok {
			out["structuredData"] = obj
		}
	})

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			name, _ = s.Attr("property")
		}
		content, _ := s.Attr("content")
		if name == "" || content == "" {
			return
		}
		out[name] = content
	})

	if e, ok := reg.Get(p); ok {
		out[e.Key()] = e.Extract(doc)
	}
	return out
}

func nodeValue(s *goquery.Selection, sel string) string {
	if isMeta(sel) {
		v, _ := s.Attr("content")
		return strings.TrimSpace(v)
	}
	return normSpace(s.Text())
}

func isMeta(sel string) bool { return strings.HasPrefix(sel, "meta") }

// resolveURL 以 base 为基准解析 href；href 为空或无法解析时返回空串。
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ru, err := url.Parse(href)
	if err != nil {
		return ""
	}
	bu, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !bu.IsAbs() {
		if ru.IsAbs() {
			return ru.String()
		}
		return ""
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
