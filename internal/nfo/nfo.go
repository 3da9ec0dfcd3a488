package nfo

import (
	"encoding/xml"
	"strings"

	"github.com/John-Robertt/WSDX/internal/domain"
)

type document struct {
	XMLName xml.Name

	Title  string `xml:"title"`
	Plot   string `xml:"plot,omitempty"`
	Rating string `xml:"rating,omitempty"`
	Year   string `xml:"year,omitempty"`

	Studio string `xml:"studio,omitempty"`

	Thumbs []string `xml:"thumb,omitempty"`
	Fanart string   `xml:"fanart>thumb,omitempty"`

	Actors []actor   `xml:"actor,omitempty"`
	Genres []string  `xml:"genre,omitempty"`
	Guide  []episode `xml:"episode,omitempty"`

	Website string `xml:"website,omitempty"`
}

type actor struct {
	Name  string `xml:"name"`
	Order int    `xml:"order"`
}

type episode struct {
	Number string `xml:"number,omitempty"`
	Title  string `xml:"title,omitempty"`
	Plot   string `xml:"plot,omitempty"`
}

// RootElement 按页面类型选择 NFO 根元素：剧集类页面用 tvshow/episodedetails，其余用 movie。
func RootElement(t domain.PageType) string {
	switch t {
	case domain.PageSeries, domain.PageSeason:
		return "tvshow"
	case domain.PageEpisode:
		return "episodedetails"
	default:
		return "movie"
	}
}

// Encode 把 Record 转成 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
//
// 规则：
// - 字段缺失允许为空；列表去空白、去重、保持输入顺序
// - title 为空时回退到 url（避免生成空 title）
// - 第一张图作为 thumb，第二张作为 fanart
// - year 优先取 AI 补充的 additionalInfo.year，其次取 JSON-LD 的 startDate/datePublished
func Encode(rec domain.Record) ([]byte, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = strings.TrimSpace(rec.URL)
	}

	d := document{
		XMLName: xml.Name{Local: RootElement(rec.PageType)},
		Title:   title,
		Plot:    strings.TrimSpace(rec.Description),
		Rating:  strings.TrimSpace(rec.Rating),
		Year:    year(rec),
		Genres:  normList(rec.Genres),
		Website: strings.TrimSpace(rec.URL),
	}
	if rec.Platform != "" && rec.Platform != domain.PlatformUnknown {
		d.Studio = string(rec.Platform)
	}

	images := normList(rec.Images)
	if len(images) > 0 {
		d.Thumbs = images[:1]
	}
	if len(images) > 1 {
		d.Fanart = images[1]
	}

	for i, a := range normList(rec.Cast) {
		d.Actors = append(d.Actors, actor{Name: a, Order: i})
	}
	if d.XMLName.Local == "tvshow" {
		for _, ep := range rec.Episodes {
			d.Guide = append(d.Guide, episode{
				Number: strings.TrimSpace(ep.Number),
				Title:  strings.TrimSpace(ep.Title),
				Plot:   strings.TrimSpace(ep.Description),
			})
		}
	}

	b, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	// 约定：输出带 standalone="yes" 的 XML 头，便于与常见刮削器产物兼容。
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), b...), nil
}

func year(rec domain.Record) string {
	if info, ok := rec.Extra["additionalInfo"].(map[string]any); ok {
		if y, ok := info["year"].(string); ok && len(strings.TrimSpace(y)) >= 4 {
			return strings.TrimSpace(y)[:4]
		}
	}
	if sd, ok := rec.Metadata["structuredData"].(map[string]any); ok {
		for _, k := range []string{"startDate", "datePublished", "dateCreated"} {
			if s, ok := sd[k].(string); ok && len(s) >= 4 {
				return s[:4]
			}
		}
	}
	return ""
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
