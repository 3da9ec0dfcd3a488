package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/WSDX/internal/domain"
)

func sampleRecord() domain.Record {
	r := domain.NewRecord("https://www.netflix.com/title/80057281", time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC))
	r.Title = "Stranger Things | Netflix Official Site"
	r.Description = "When a young boy vanishes, a small town uncovers a mystery."
	r.Rating = "8.7"
	r.Genres = []string{"Sci-Fi", "Horror"}
	r.Cast = []string{"Winona Ryder"}
	r.Platform = domain.PlatformNetflix
	r.PageType = domain.PageUnknown
	return r
}

// geminiReply 按 generateContent 的回复格式包装文本。
func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Client{HTTP: srv.Client(), Endpoint: srv.URL + "/v1beta", Model: "gemini-pro", APIKey: "test-key"}
}

func TestApply_Non200KeepsOriginal(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	})
	rec := sampleRecord()

	got, err := Apply(context.Background(), c, rec, zerolog.Nop())
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("期望 HTTPStatusError(429)，实际 %v", err)
	}
	if got.AIEnhanced {
		t.Fatalf("失败时 aiEnhanced 必须为 false")
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Fatalf("失败时应返回原记录 (-want +got):\n%s", diff)
	}
}

func TestApply_ProseWrappedJSONMerges(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = io.WriteString(w, geminiReply(`Here is the result: {"title":"Clean Title"}`))
	})
	rec := sampleRecord()

	got, err := Apply(context.Background(), c, rec, zerolog.Nop())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if gotPath != "/v1beta/models/gemini-pro:generateContent" || gotKey != "test-key" {
		t.Fatalf("请求地址不匹配：path=%q key=%q", gotPath, gotKey)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 1 ||
		!strings.Contains(gotBody.Contents[0].Parts[0].Text, `"title": "Stranger Things | Netflix Official Site"`) {
		t.Fatalf("请求体应嵌入缩进后的记录：%+v", gotBody)
	}

	if got.Title != "Clean Title" || !got.AIEnhanced {
		t.Fatalf("合并结果不匹配：title=%q aiEnhanced=%v", got.Title, got.AIEnhanced)
	}
	want := rec
	want.Title = "Clean Title"
	want.AIEnhanced = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("其它字段应保持不变 (-want +got):\n%s", diff)
	}
	if rec.Title != "Stranger Things | Netflix Official Site" || rec.AIEnhanced {
		t.Fatalf("原记录被修改")
	}
}

func TestApply_FailureModes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{name: "无 JSON", body: geminiReply("sorry, I cannot help"), want: ErrNoJSON},
		{name: "无 candidates", body: `{"candidates":[]}`, want: ErrEmptyReply},
		{name: "JSON 无效", body: geminiReply(`{"title": }`)},
		{name: "外层不是 JSON", body: `<html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			})
			got, err := Apply(context.Background(), c, sampleRecord(), zerolog.Nop())
			if err == nil {
				t.Fatalf("期望错误，但得到 nil")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("期望 %v，实际 %v", tc.want, err)
			}
			if got.AIEnhanced || got.Title != sampleRecord().Title {
				t.Fatalf("失败时应返回原记录：%+v", got)
			}
		})
	}
}

func TestApply_TimeoutFallsBack(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got, err := Apply(ctx, c, sampleRecord(), zerolog.Nop())
	if err == nil || got.AIEnhanced {
		t.Fatalf("超时应降级：err=%v aiEnhanced=%v", err, got.AIEnhanced)
	}
}

func TestApply_NoKeyDoesNotCall(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	c.APIKey = ""

	got, err := Apply(context.Background(), c, sampleRecord(), zerolog.Nop())
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("期望 ErrNoAPIKey，实际 %v", err)
	}
	if got.AIEnhanced || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("无 key 时不应发请求")
	}

	if _, err := Apply(context.Background(), nil, sampleRecord(), zerolog.Nop()); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("nil enhancer 期望 ErrNoAPIKey，实际 %v", err)
	}
}

func TestExtractJSON_Greedy(t *testing.T) {
	got, err := ExtractJSON("prefix {\"a\":{\"b\":1}} suffix")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": map[string]any{"b": float64(1)}}, got); diff != "" {
		t.Fatalf("解析结果不匹配 (-want +got):\n%s", diff)
	}

	// 贪婪匹配会吞掉两个对象之间的文本，导致解析失败。
	if _, err := ExtractJSON(`{"a":1} and {"b":2}`); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestMerge_CoercionAndExtra(t *testing.T) {
	rec := sampleRecord()
	patch := map[string]any{
		"rating":   float64(9),
		"genres":   []any{"Drama", "Drama", "", float64(1983)},
		"cast":     "Millie Bobby Brown",
		"images":   map[string]any{"bad": "shape"},
		"episodes": []any{map[string]any{"title": "Chapter One", "number": "S01E01"}, map[string]any{"description": "x"}},
		"additionalInfo": map[string]any{
			"year": "2016",
		},
		"aiEnhanced": false,
	}

	got := Merge(rec, patch)

	if got.Rating != "9" {
		t.Fatalf("rating 应转为字符串：%q", got.Rating)
	}
	if diff := cmp.Diff([]string{"Drama", "1983"}, got.Genres); diff != "" {
		t.Fatalf("genres 不匹配 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Millie Bobby Brown"}, got.Cast); diff != "" {
		t.Fatalf("cast 不匹配 (-want +got):\n%s", diff)
	}
	if len(got.Images) != 0 {
		t.Fatalf("类型不符的 images 应保持原值：%v", got.Images)
	}
	if diff := cmp.Diff([]domain.Episode{{Title: "Chapter One", Number: "S01E01"}}, got.Episodes); diff != "" {
		t.Fatalf("episodes 不匹配 (-want +got):\n%s", diff)
	}
	if !got.AIEnhanced {
		t.Fatalf("aiEnhanced 必须为 true")
	}

	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("序列化失败：%v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	info, ok := m["additionalInfo"].(map[string]any)
	if !ok || info["year"] != "2016" {
		t.Fatalf("未知字段应平铺到顶层：%s", string(b))
	}

	if len(rec.Genres) != 2 || rec.Extra != nil {
		t.Fatalf("原记录被修改：%+v", rec)
	}
}

func TestBuildPrompt_ContainsFieldsAndRecord(t *testing.T) {
	p, err := BuildPrompt(sampleRecord())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for _, want := range []string{
		"Current Data:\n{\n  \"url\": \"https://www.netflix.com/title/80057281\"",
		"8. Additional metadata that might be useful",
		`"additionalInfo": {"year": "2024", "runtime": "120 min", "director": "name"}`,
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt 缺少 %q", want)
		}
	}
}
