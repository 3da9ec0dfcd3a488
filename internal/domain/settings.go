package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Settings 是持久化的用户开关（settings 槽位）。
//
// Extract* 开关真实参与抽取：关闭的字段保持默认值。
type Settings struct {
	ExtractTitle       bool `json:"extractTitle"`
	ExtractDescription bool `json:"extractDescription"`
	ExtractRating      bool `json:"extractRating"`
	ExtractGenres      bool `json:"extractGenres"`
	ExtractCast        bool `json:"extractCast"`
	ExtractEpisodes    bool `json:"extractEpisodes"`
	ExtractImages      bool `json:"extractImages"`
	AutoExtract        bool `json:"autoExtract"`
	SaveToFile         bool `json:"saveToFile"`
}

// DefaultSettings 与首次安装时写入的默认值一致。
func DefaultSettings() Settings {
	return Settings{
		ExtractTitle:       true,
		ExtractDescription: true,
		ExtractRating:      true,
		ExtractGenres:      true,
		ExtractCast:        true,
		ExtractEpisodes:    true,
		ExtractImages:      true,
		AutoExtract:        false,
		SaveToFile:         true,
	}
}

func (s *Settings) fields() map[string]*bool {
	return map[string]*bool{
		"extractTitle":       &s.ExtractTitle,
		"extractDescription": &s.ExtractDescription,
		"extractRating":      &s.ExtractRating,
		"extractGenres":      &s.ExtractGenres,
		"extractCast":        &s.ExtractCast,
		"extractEpisodes":    &s.ExtractEpisodes,
		"extractImages":      &s.ExtractImages,
		"autoExtract":        &s.AutoExtract,
		"saveToFile":         &s.SaveToFile,
	}
}

// SettingKeys 返回全部开关名（字典序）。
func SettingKeys() []string {
	var s Settings
	keys := make([]string, 0, 9)
	for k := range s.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set 按 JSON 字段名修改一个开关。
func (s *Settings) Set(key string, v bool) error {
	p, ok := s.fields()[strings.TrimSpace(key)]
	if !ok {
		return fmt.Errorf("未知开关：%q（可用：%s）", key, strings.Join(SettingKeys(), ", "))
	}
	*p = v
	return nil
}

// Get 按 JSON 字段名读取一个开关。
func (s Settings) Get(key string) (bool, bool) {
	p, ok := s.fields()[strings.TrimSpace(key)]
	if !ok {
		return false, false
	}
	return *p, true
}
