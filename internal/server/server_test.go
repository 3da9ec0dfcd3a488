package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/WSDX/internal/app/controller"
	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/export"
	"github.com/John-Robertt/WSDX/internal/extract"
	"github.com/John-Robertt/WSDX/internal/fetch"
	"github.com/John-Robertt/WSDX/internal/store"
)

const netflixURL = "https://www.netflix.com/title/80057281"

const netflixHTML = `<html><head><title>Stranger Things | Netflix</title></head>
<body><h1 data-uia="title">Stranger Things</h1><span class="genre">Sci-Fi</span></body></html>`

type stubFetcher struct{ err error }

func (f stubFetcher) Fetch(_ context.Context, u string) (fetch.Page, error) {
	if f.err != nil {
		return fetch.Page{}, f.err
	}
	return fetch.Page{URL: u, HTML: []byte(netflixHTML)}, nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *controller.Controller) {
	t.Helper()
	ctl := &controller.Controller{
		Extractor: extract.New(),
		Fetcher:   stubFetcher{},
		Store:     store.NewMemory(),
		Exporter:  &export.Writer{Dir: t.TempDir()},
		Logger:    zerolog.Nop(),
	}
	s := New(ctl, cfg, zerolog.Nop())
	t.Cleanup(s.Close)
	return s, ctl
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestExtract_ReturnsRecordAndPersistsLast(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/v1/extract", `{"url":"`+netflixURL+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))

	var rec domain.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "Stranger Things", rec.Title)
	assert.Equal(t, domain.PlatformNetflix, rec.Platform)

	rr = do(t, h, http.MethodGet, "/v1/last", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"title":"Stranger Things"`)
}

func TestExtract_SaveSetsExportHeader(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(t, s.Handler(), http.MethodPost, "/v1/extract",
		`{"url":"`+netflixURL+`","html":"<h1 data-uia=\"title\">Given</h1>","save":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, strings.HasSuffix(rr.Header().Get("X-Export-Path"), ".json"))
	assert.Contains(t, rr.Body.String(), "Given")
}

func TestExtract_ErrorStatus(t *testing.T) {
	s, ctl := newTestServer(t, Config{})
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/v1/extract", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/extract", `{"url":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/extract", `{"url":"x","unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	ctl.Fetcher = stubFetcher{err: &fetch.HTTPStatusError{URL: netflixURL, StatusCode: 403}}
	rr = do(t, h, http.MethodPost, "/v1/extract", `{"url":"`+netflixURL+`"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	ctl.Fetcher = stubFetcher{}
	ctl.Exporter = nil
	rr = do(t, h, http.MethodPost, "/v1/extract", `{"url":"`+netflixURL+`","save":true}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/extract", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLast_EmptyIs404(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(t, s.Handler(), http.MethodGet, "/v1/last", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSettings_PartialUpdate(t *testing.T) {
	s, ctl := newTestServer(t, Config{})
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/v1/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.Settings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, domain.DefaultSettings(), got)

	rr = do(t, h, http.MethodPut, "/v1/settings", `{"autoExtract":true,"extractCast":false}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	st, err := ctl.Settings(context.Background())
	require.NoError(t, err)
	want := domain.DefaultSettings()
	want.AutoExtract = true
	want.ExtractCast = false
	assert.Equal(t, want, st)

	rr = do(t, h, http.MethodPut, "/v1/settings", `{"nope":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNavigation_SkipAndAccept(t *testing.T) {
	s, ctl := newTestServer(t, Config{})
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/v1/navigation", `{"url":"https://example.com/"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"accepted":false,"reason":"unrecognized_site"}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/v1/navigation", `{"url":"`+netflixURL+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"accepted":false,"reason":"auto_extract_off"}`, rr.Body.String())

	st := domain.DefaultSettings()
	st.AutoExtract = true
	st.SaveToFile = false
	require.NoError(t, ctl.SaveSettings(context.Background(), st))

	req := httptest.NewRequest(http.MethodPost, "/v1/navigation", strings.NewReader(`{"url":"`+netflixURL+`","html":"<h1 data-uia=\"title\">Rendered</h1>"}`))
	req.Header.Set(HeaderRequestID, "req-1")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"accepted":true,"requestId":"req-1"}`, rr.Body.String())

	require.Eventually(t, func() bool {
		rec, ok, err := ctl.Last(context.Background())
		return err == nil && ok && rec.Title == "Rendered"
	}, 2*time.Second, 10*time.Millisecond)
}

type blockingFetcher struct{ release chan struct{} }

func (f blockingFetcher) Fetch(ctx context.Context, u string) (fetch.Page, error) {
	select {
	case <-f.release:
		return fetch.Page{URL: u, HTML: []byte(netflixHTML)}, nil
	case <-ctx.Done():
		return fetch.Page{}, ctx.Err()
	}
}

func TestNavigation_BusyWhenInflightFull(t *testing.T) {
	s, ctl := newTestServer(t, Config{MaxInflight: 1})
	h := s.Handler()
	release := make(chan struct{})
	ctl.Fetcher = blockingFetcher{release: release}

	st := domain.DefaultSettings()
	st.AutoExtract = true
	require.NoError(t, ctl.SaveSettings(context.Background(), st))

	rr := do(t, h, http.MethodPost, "/v1/navigation", `{"url":"`+netflixURL+`"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/navigation", `{"url":"`+netflixURL+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"accepted":false,"reason":"busy"}`, rr.Body.String())

	close(release)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Config{RatePerMinute: 2})
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rr := do(t, h, http.MethodGet, "/v1/settings", "")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/v1/settings", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// 健康检查不受限流。
	rr = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthz_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := store.NewRedis(context.Background(), store.RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	ctl := &controller.Controller{Extractor: extract.New(), Store: rs, Logger: zerolog.Nop()}
	s := New(ctl, Config{}, zerolog.Nop())
	t.Cleanup(s.Close)
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	mr.Close()
	rr = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	h := s.Handler()
	_ = do(t, h, http.MethodPost, "/v1/extract", `{"url":"`+netflixURL+`"}`)

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "wsdx_extractions_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusConflict, statusFor(store.ErrReadOnly))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, Config{Listen: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run 未在取消后返回")
	}
}
