package enhance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/WSDX/internal/domain"
)

// Merge 把补丁浅合并到 rec 上（补丁优先），返回新记录；rec 本身不被修改。
//
// 规则：
// - 固定字段按类型宽松解码：数字/布尔转为字符串，单个字符串可作为单元素列表
// - 类型无法解释的固定字段保持原值
// - 未知字段（例如 additionalInfo）进入 Extra，序列化时出现在顶层
// - aiEnhanced 总是置为 true
func Merge(rec domain.Record, patch map[string]any) domain.Record {
	out := rec.Clone()
	for k, v := range patch {
		switch k {
		case "url":
			if s, ok := asString(v); ok {
				out.URL = s
			}
		case "title":
			if s, ok := asString(v); ok {
				out.Title = s
			}
		case "description":
			if s, ok := asString(v); ok {
				out.Description = s
			}
		case "rating":
			if s, ok := asString(v); ok {
				out.Rating = s
			}
		case "genres":
			if ss, ok := asStrings(v); ok {
				out.Genres = ss
			}
		case "cast":
			if ss, ok := asStrings(v); ok {
				out.Cast = ss
			}
		case "images":
			if ss, ok := asStrings(v); ok {
				out.Images = ss
			}
		case "episodes":
			if eps, ok := asEpisodes(v); ok {
				out.Episodes = eps
			}
		case "metadata":
			if m, ok := v.(map[string]any); ok {
				out.Metadata = m
			}
		case "extractedAt":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					out.ExtractedAt = t.UTC()
				}
			}
		case "platform":
			if s, ok := v.(string); ok && s != "" {
				out.Platform = domain.Platform(s)
			}
		case "pageType":
			if s, ok := v.(string); ok && s != "" {
				out.PageType = domain.PageType(s)
			}
		case "aiEnhanced":
			// 由合并本身决定
		default:
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra[k] = v
		}
	}
	out.AIEnhanced = true
	return out
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// asStrings 接受字符串数组（元素宽松转换，空值丢弃，精确去重）或单个字符串。
func asStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case nil:
		return []string{}, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return []string{}, true
		}
		return []string{s}, true
	case []any:
		out := make([]string, 0, len(x))
		seen := make(map[string]struct{}, len(x))
		for _, it := range x {
			s, ok := asString(it)
			if !ok || s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func asEpisodes(v any) ([]domain.Episode, bool) {
	switch x := v.(type) {
	case nil:
		return []domain.Episode{}, true
	case []any:
		out := make([]domain.Episode, 0, len(x))
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			var ep domain.Episode
			ep.Title, _ = asString(m["title"])
			ep.Number, _ = asString(m["number"])
			ep.Description, _ = asString(m["description"])
			if ep.Title == "" && ep.Number == "" {
				continue
			}
			out = append(out, ep)
		}
		return out, true
	default:
		return nil, false
	}
}
