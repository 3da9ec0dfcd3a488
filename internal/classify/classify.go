package classify

import (
	"net/url"
	"strings"

	"github.com/John-Robertt/WSDX/internal/domain"
)

type platformRule struct {
	keywords []string
	platform domain.Platform
}

// 顺序即优先级：第一个命中的关键字决定平台。
var platformRules = []platformRule{
	{[]string{"netflix"}, domain.PlatformNetflix},
	{[]string{"amazon", "primevideo"}, domain.PlatformAmazonPrime},
	{[]string{"hulu"}, domain.PlatformHulu},
	{[]string{"disney"}, domain.PlatformDisneyPlus},
	{[]string{"hbo"}, domain.PlatformHBOMax},
	{[]string{"imdb"}, domain.PlatformIMDb},
	{[]string{"rottentomatoes"}, domain.PlatformRottenTomatoes},
	{[]string{"metacritic"}, domain.PlatformMetacritic},
	{[]string{"tvdb"}, domain.PlatformTheTVDB},
	{[]string{"trakt"}, domain.PlatformTrakt},
	{[]string{"commonsensemedia"}, domain.PlatformCommonSenseMedia},
	{[]string{"letterboxd"}, domain.PlatformLetterboxd},
	{[]string{"tmdb"}, domain.PlatformTMDb},
}

type pageRule struct {
	needles  []string
	pageType domain.PageType
}

var pathRules = []pageRule{
	{[]string{"/movie/", "/film/"}, domain.PageMovie},
	{[]string{"/tv/", "/series/", "/show/"}, domain.PageSeries},
	{[]string{"/episode/"}, domain.PageEpisode},
	{[]string{"/season/"}, domain.PageSeason},
	{[]string{"/reviews", "/review"}, domain.PageReviews},
	{[]string{"/search", "/browse"}, domain.PageListing},
	{[]string{"/cast/", "/actor/"}, domain.PagePerson},
}

var urlRules = []pageRule{
	{[]string{"imdb.com/title/"}, domain.PageTitle},
	{[]string{"netflix.com/watch/"}, domain.PageWatch},
	{[]string{"amazon.com/dp/"}, domain.PageProduct},
}

// RecognizedSites 是自动触发会处理的站点域名。
var RecognizedSites = []string{
	"netflix.com",
	"amazon.com",
	"primevideo.com",
	"hulu.com",
	"disneyplus.com",
	"hbomax.com",
	"imdb.com",
	"rottentomatoes.com",
	"metacritic.com",
	"thetvdb.com",
	"trakt.tv",
	"commonsensemedia.org",
}

// Platform 按主机名做大小写不敏感的子串匹配；未命中返回 Unknown。
func Platform(hostname string) domain.Platform {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if h == "" {
		return domain.PlatformUnknown
	}
	for _, r := range platformRules {
		for _, kw := range r.keywords {
			if strings.Contains(h, kw) {
				return r.platform
			}
		}
	}
	return domain.PlatformUnknown
}

// PlatformOfURL 先解析 URL 再按主机名分类；URL 非法时返回 Unknown。
func PlatformOfURL(rawURL string) domain.Platform {
	return Platform(Hostname(rawURL))
}

// PageType 先按路径、再按完整 URL 依次匹配；未命中返回 unknown。
func PageType(rawURL string) domain.PageType {
	full := strings.ToLower(strings.TrimSpace(rawURL))
	path := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		path = strings.ToLower(u.EscapedPath())
	}

	for _, r := range pathRules {
		for _, n := range r.needles {
			if strings.Contains(path, n) {
				return r.pageType
			}
		}
	}
	for _, r := range urlRules {
		for _, n := range r.needles {
			if strings.Contains(full, n) {
				return r.pageType
			}
		}
	}
	return domain.PageUnknown
}

// IsRecognizedSite 判断 URL 是否属于自动触发的站点集合。
func IsRecognizedSite(rawURL string) bool {
	h := Hostname(rawURL)
	if h == "" {
		return false
	}
	for _, s := range RecognizedSites {
		if strings.Contains(h, s) {
			return true
		}
	}
	return false
}

// Hostname 返回小写主机名；解析失败返回空串。
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
