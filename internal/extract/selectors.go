package extract

import "github.com/John-Robertt/WSDX/internal/domain"

// 选择器表：每个字段一组有序候选。站点改版时只需要改这里。
//
// 以 "meta" 开头的候选读取 content 属性，其余读取节点文本。

var platformTitleSelectors = map[domain.Platform][]string{
	domain.PlatformNetflix: {
		`[data-uia="title"]`,
		`.title`,
		`h1`,
		`[data-testid="title"]`,
	},
	domain.PlatformAmazonPrime: {
		`.title`,
		`h1`,
		`[data-automation-id="title"]`,
	},
	domain.PlatformIMDb: {
		`h1[data-testid="hero-title-block__title"]`,
		`.titleHeader__title`,
		`h1`,
	},
	domain.PlatformRottenTomatoes: {
		`.title`,
		`h1`,
		`.movie-title`,
	},
	domain.PlatformCommonSenseMedia: {
		`.title`,
		`h1`,
		`.page-title`,
		`.movie-title`,
	},
}

var genericTitleSelectors = []string{
	`h1`,
	`.title`,
	`.series-title`,
	`.show-title`,
	`.movie-title`,
	`[data-testid="title"]`,
	`meta[property="og:title"]`,
	`meta[name="title"]`,
}

var descriptionSelectors = []string{
	`.description`,
	`.synopsis`,
	`.summary`,
	`.plot`,
	`.overview`,
	`.movie-description`,
	`.series-description`,
	`[data-testid="description"]`,
	`meta[property="og:description"]`,
	`meta[name="description"]`,
	`.plot-summary`,
	`.content-description`,
}

var ratingSelectors = []string{
	`.rating`,
	`.score`,
	`.stars`,
	`.user-rating`,
	`.critic-rating`,
	`.audience-rating`,
	`.tomatometer`,
	`.audience-score`,
	`[data-testid="rating"]`,
	`.imdb-rating`,
	`.rating-value`,
	`.score-value`,
}

var genreSelectors = []string{
	`.genre`,
	`.genres`,
	`.category`,
	`.categories`,
	`[data-testid="genre"]`,
	`.tag`,
	`.genre-list`,
	`.movie-genres`,
	`.series-genres`,
}

var castSelectors = []string{
	`.cast`,
	`.actors`,
	`.cast-member`,
	`.actor`,
	`[data-testid="cast"]`,
	`.character`,
	`.cast-list`,
	`.actor-list`,
	`.movie-cast`,
	`.series-cast`,
}

var episodeSelectors = []string{
	`.episode`,
	`.episodes li`,
	`.episode-item`,
	`[data-testid="episode"]`,
	`.season-episode`,
	`.episode-list li`,
	`.episode-card`,
}

// 剧集容器内的子字段：两个候选，前者为空时回退后者。
var (
	episodeTitleSelectors       = []string{`.episode-title`, `.title`}
	episodeNumberSelectors      = []string{`.episode-number`, `.number`}
	episodeDescriptionSelectors = []string{`.episode-description`, `.description`}
)

var imageSelectors = []string{
	`img[src*="poster"]`,
	`img[src*="cover"]`,
	`img[src*="banner"]`,
	`img[src*="backdrop"]`,
	`.poster img`,
	`.cover img`,
	`.banner img`,
	`.hero-image img`,
	`.featured-image img`,
	`.movie-poster img`,
	`.series-poster img`,
}

// structuredDataTypes 是 JSON-LD 中会被保留的 @type。
var structuredDataTypes = map[string]struct{}{
	"TVSeries":     {},
	"Movie":        {},
	"CreativeWork": {},
}

const (
	minDescriptionLen = 20  // 文本必须严格长于该值（排除占位文案）
	maxGenreLen       = 50  // 类型必须严格短于该值
	maxCastLen        = 100 // 演员必须严格短于该值
	maxRating         = 10.0
)

func titleSelectors(p domain.Platform) []string {
	if s, ok := platformTitleSelectors[p]; ok {
		return s
	}
	return genericTitleSelectors
}
