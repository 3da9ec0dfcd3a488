// Package enhance 调用生成式 AI 接口清洗抽取结果，并把回复合并回记录。
package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/John-Robertt/WSDX/internal/domain"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-pro"

	maxReplyBytes = 4 << 20
)

var (
	// ErrNoAPIKey 表示未配置 API key；增强被视为关闭。
	ErrNoAPIKey = errors.New("未配置 AI API key")
	// ErrNoJSON 表示回复文本中找不到 {...} 片段。
	ErrNoJSON = errors.New("AI 回复中没有 JSON 对象")
	// ErrEmptyReply 表示回复缺少 candidates[0].content.parts[0].text。
	ErrEmptyReply = errors.New("AI 回复为空")
)

// HTTPStatusError 表示 AI 接口返回了非 2xx 状态码。
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "AI API error"
	}
	if e.Body == "" {
		return fmt.Sprintf("AI API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("AI API error: %d %s", e.StatusCode, e.Body)
}

// Enhancer 返回 AI 建议的字段补丁（尚未合并）。
type Enhancer interface {
	Enhance(ctx context.Context, rec domain.Record) (map[string]any, error)
}

// Client 是 generateContent 协议的客户端。
//
// 约束：
// - 每条记录只发一次 POST，不重试
// - 超时由 HTTP client 与 ctx 共同决定
type Client struct {
	HTTP     *http.Client
	Endpoint string // 例如 https://generativelanguage.googleapis.com/v1beta
	Model    string
	APIKey   string
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) Enhance(ctx context.Context, rec domain.Record) (map[string]any, error) {
	if c == nil || strings.TrimSpace(c.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	hc := c.HTTP
	if hc == nil {
		return nil, errors.New("http client 不能为空")
	}

	prompt, err := BuildPrompt(rec)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("解析 AI 回复失败：%w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyReply
	}
	return ExtractJSON(gr.Candidates[0].Content.Parts[0].Text)
}

func (c *Client) url() string {
	endpoint := strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := strings.TrimSpace(c.Model)
	if model == "" {
		model = DefaultModel
	}
	return endpoint + "/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(c.APIKey)
}

// 贪婪匹配：从第一个 { 到最后一个 }。
var braceRE = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractJSON 从自由文本中取出 {...} 片段并解析为对象。
func ExtractJSON(text string) (map[string]any, error) {
	m := braceRE.FindString(text)
	if m == "" {
		return nil, ErrNoJSON
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(m), &out); err != nil {
		return nil, fmt.Errorf("AI 回复 JSON 无效：%w", err)
	}
	if out == nil {
		return nil, ErrNoJSON
	}
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
