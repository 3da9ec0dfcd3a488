package nfo

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/WSDX/internal/domain"
)

type docOut struct {
	XMLName xml.Name
	Title   string   `xml:"title"`
	Plot    string   `xml:"plot"`
	Rating  string   `xml:"rating"`
	Year    string   `xml:"year"`
	Studio  string   `xml:"studio"`
	Thumbs  []string `xml:"thumb"`
	Fanart  string   `xml:"fanart>thumb"`
	Genres  []string `xml:"genre"`
	Website string   `xml:"website"`
	Actors  []struct {
		Name  string `xml:"name"`
		Order int    `xml:"order"`
	} `xml:"actor"`
	Episodes []struct {
		Number string `xml:"number"`
		Title  string `xml:"title"`
	} `xml:"episode"`
}

func TestEncode_SeriesRoundTripAndDeterministicLists(t *testing.T) {
	rec := domain.NewRecord("https://www.netflix.com/title/80057281", time.Now())
	rec.Title = "Stranger Things"
	rec.Description = "A small town uncovers a mystery."
	rec.Rating = "8.7"
	rec.Genres = []string{"Horror", " ", "Horror", "Sci-Fi"}
	rec.Cast = []string{"Winona Ryder", "David Harbour", "Winona Ryder"}
	rec.Images = []string{"https://img/poster.jpg", "https://img/backdrop.jpg", "https://img/3.jpg"}
	rec.Episodes = []domain.Episode{{Title: "Chapter One", Number: "1"}}
	rec.Platform = domain.PlatformNetflix
	rec.PageType = domain.PageSeries
	rec.Metadata = map[string]any{"structuredData": map[string]any{"@type": "TVSeries", "startDate": "2016-07-15"}}

	b, err := Encode(rec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.HasPrefix(string(b), `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>`) {
		t.Fatalf("缺少 XML 头：%s", b)
	}

	var out docOut
	if err := xml.Unmarshal(b, &out); err != nil {
		t.Fatalf("xml.Unmarshal 失败：%v", err)
	}
	if out.XMLName.Local != "tvshow" {
		t.Fatalf("剧集页面应使用 tvshow，实际 %q", out.XMLName.Local)
	}
	if out.Title != "Stranger Things" || out.Plot != rec.Description || out.Rating != "8.7" {
		t.Fatalf("title/plot/rating 不一致：%+v", out)
	}
	if out.Year != "2016" || out.Studio != "Netflix" {
		t.Fatalf("year/studio 不一致：%q %q", out.Year, out.Studio)
	}
	if len(out.Genres) != 2 || out.Genres[0] != "Horror" || out.Genres[1] != "Sci-Fi" {
		t.Fatalf("genre 应去重去空白：%v", out.Genres)
	}
	if len(out.Actors) != 2 || out.Actors[1].Name != "David Harbour" || out.Actors[1].Order != 1 {
		t.Fatalf("actor 不一致：%+v", out.Actors)
	}
	if len(out.Thumbs) != 1 || out.Thumbs[0] != "https://img/poster.jpg" || out.Fanart != "https://img/backdrop.jpg" {
		t.Fatalf("thumb/fanart 不一致：%v %q", out.Thumbs, out.Fanart)
	}
	if len(out.Episodes) != 1 || out.Episodes[0].Title != "Chapter One" {
		t.Fatalf("episode 不一致：%+v", out.Episodes)
	}
}

func TestEncode_MovieFallbacks(t *testing.T) {
	rec := domain.NewRecord("https://www.imdb.com/title/tt0111161/", time.Now())
	rec.PageType = domain.PageTitle
	rec.Extra = map[string]any{"additionalInfo": map[string]any{"year": "1994"}}

	b, err := Encode(rec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var out docOut
	if err := xml.Unmarshal(b, &out); err != nil {
		t.Fatalf("xml.Unmarshal 失败：%v", err)
	}
	if out.XMLName.Local != "movie" {
		t.Fatalf("期望 movie，实际 %q", out.XMLName.Local)
	}
	if out.Title != rec.URL {
		t.Fatalf("title 为空时应回退到 url：%q", out.Title)
	}
	if out.Year != "1994" {
		t.Fatalf("year 应取 additionalInfo：%q", out.Year)
	}
	if out.Studio != "" || len(out.Thumbs) != 0 || out.Fanart != "" || len(out.Episodes) != 0 {
		t.Fatalf("空字段不应输出：%+v", out)
	}
}

func TestRootElement(t *testing.T) {
	cases := map[domain.PageType]string{
		domain.PageSeries:  "tvshow",
		domain.PageSeason:  "tvshow",
		domain.PageEpisode: "episodedetails",
		domain.PageMovie:   "movie",
		domain.PageUnknown: "movie",
	}
	for in, want := range cases {
		if got := RootElement(in); got != want {
			t.Fatalf("RootElement(%q)=%q，期望 %q", in, got, want)
		}
	}
}
