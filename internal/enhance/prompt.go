package enhance

import (
	"encoding/json"
	"strings"

	"github.com/John-Robertt/WSDX/internal/domain"
)

const promptHead = `Analyze this web series/movie data and provide enhanced, clean information:

Current Data:
`

const promptTail = `

Please provide:
1. Clean title (remove extra text, formatting)
2. Better description (if current is generic)
3. Proper rating (extract from text if needed)
4. Organized genres (remove duplicates, standardize names)
5. Clean cast list (remove duplicates, format names)
6. Episode information (if available)
7. Best quality image URLs
8. Additional metadata that might be useful

Return as JSON with these fields:
{
  "title": "clean title",
  "description": "better description",
  "rating": "numeric rating",
  "genres": ["genre1", "genre2"],
  "cast": ["actor1", "actor2"],
  "episodes": [{"title": "episode title", "number": "S01E01", "description": "episode description"}],
  "images": ["best image urls"],
  "additionalInfo": {"year": "2024", "runtime": "120 min", "director": "name"}
}`

// BuildPrompt 生成发给模型的指令：完整记录（2 空格缩进 JSON）+ 期望的 8 个输出字段。
func BuildPrompt(rec domain.Record) (string, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(len(promptHead) + len(b) + len(promptTail))
	sb.WriteString(promptHead)
	sb.Write(b)
	sb.WriteString(promptTail)
	return sb.String(), nil
}
