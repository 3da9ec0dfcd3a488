package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEffective_NoConfigUsesDefaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != "" {
		t.Fatalf("未读取配置文件时 ConfigFile 应为空：%q", eff.ConfigFile)
	}
	if eff.StateDir != filepath.Join(cwd, DefaultStateDir) || eff.OutputDir != cwd {
		t.Fatalf("目录默认值不一致：state=%q out=%q", eff.StateDir, eff.OutputDir)
	}
	if eff.Store.Backend != "file" || eff.Fetch.Renderer != "http" {
		t.Fatalf("后端默认值不一致：%+v %+v", eff.Store, eff.Fetch)
	}
	if eff.Fetch.Settle != DefaultSettle || eff.Fetch.Timeout != DefaultFetchTimeout {
		t.Fatalf("fetch 默认值不一致：%+v", eff.Fetch)
	}
	if eff.AI.APIKeyEnv != DefaultAPIKeyEnv || eff.AI.Dotenv != filepath.Join(cwd, ".env") || eff.AI.Timeout != DefaultAITimeout {
		t.Fatalf("ai 默认值不一致：%+v", eff.AI)
	}
	if eff.Server.Listen != DefaultListen || eff.Server.MaxInflight != DefaultMaxInflight {
		t.Fatalf("server 默认值不一致：%+v", eff.Server)
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.json"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_InvalidJSON(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_FileValuesAndRelativePaths(t *testing.T) {
	cwd := t.TempDir()
	cfgDir := filepath.Join(cwd, "conf")
	writeFile(t, filepath.Join(cfgDir, "custom.json"), []byte(`{
  "state_dir": "state",
  "output_dir": "/tmp/exports",
  "nfo": true,
  "fetch": {"renderer": "chrome", "timeout_seconds": 45, "settle_ms": 0, "proxy": {"url": "socks5://127.0.0.1:1080"}},
  "ai": {"endpoint": "https://ai.example/v1beta/", "model": "gemini-1.5-flash", "timeout_seconds": 10, "dotenv": "secrets.env"},
  "server": {"max_inflight": 100},
  "schedule": {"cron": "*/30 * * * *", "watch_urls": ["https://www.imdb.com/title/tt4574334/", " "]},
  "log": {"level": "DEBUG"}
}`))

	eff, err := LoadEffective(cwd, CLIArgs{ConfigPath: "conf/custom.json"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.StateDir != filepath.Join(cfgDir, "state") {
		t.Fatalf("相对路径应基于配置文件目录：%q", eff.StateDir)
	}
	if eff.OutputDir != "/tmp/exports" || !eff.NFO {
		t.Fatalf("output/nfo 不一致：%q %v", eff.OutputDir, eff.NFO)
	}
	if eff.Fetch.Renderer != "chrome" || eff.Fetch.Timeout != 45*time.Second || eff.Fetch.Settle != 0 {
		t.Fatalf("fetch 不一致：%+v", eff.Fetch)
	}
	if eff.Fetch.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Fatalf("proxy 不一致：%q", eff.Fetch.ProxyURL)
	}
	if eff.AI.Endpoint != "https://ai.example/v1beta" || eff.AI.Model != "gemini-1.5-flash" || eff.AI.Timeout != 10*time.Second {
		t.Fatalf("ai 不一致：%+v", eff.AI)
	}
	if eff.AI.Dotenv != filepath.Join(cfgDir, "secrets.env") {
		t.Fatalf("dotenv 应基于配置文件目录：%q", eff.AI.Dotenv)
	}
	if eff.Server.MaxInflight != 32 {
		t.Fatalf("max_inflight 应截断到 32：%d", eff.Server.MaxInflight)
	}
	if len(eff.Schedule.WatchURLs) != 1 || eff.Schedule.RatePerMinute != DefaultWatchPerMinute {
		t.Fatalf("schedule 不一致：%+v", eff.Schedule)
	}
	if eff.LogLevel != "debug" {
		t.Fatalf("log level 不一致：%q", eff.LogLevel)
	}
}

func TestLoadEffective_CLIOverrides(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"nfo":true,"output_dir":"a","store":{"backend":"memory"},"fetch":{"renderer":"chrome"}}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		NFO:       false,
		NFOSet:    true, // --nfo=false
		OutputDir: "b",
		Renderer:  "http",
		Listen:    ":9000",
		APIKeyEnv: "GEMINI_API_KEY",
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.NFO {
		t.Fatalf("--nfo=false 应覆盖配置文件")
	}
	if eff.OutputDir != filepath.Join(cwd, "b") {
		t.Fatalf("output_dir 应取 CLI：%q", eff.OutputDir)
	}
	if eff.Store.Backend != "memory" || eff.Fetch.Renderer != "http" || eff.Server.Listen != ":9000" {
		t.Fatalf("合并顺序不一致：%+v %+v %+v", eff.Store, eff.Fetch, eff.Server)
	}
	if eff.AI.APIKeyEnv != "GEMINI_API_KEY" {
		t.Fatalf("api key env 应取 CLI：%q", eff.AI.APIKeyEnv)
	}
}

func TestLoadEffective_InvalidFields(t *testing.T) {
	cases := map[string]string{
		"未知 store":          `{"store":{"backend":"s3"}}`,
		"redis 缺 addr":      `{"store":{"backend":"redis"}}`,
		"未知 renderer":       `{"fetch":{"renderer":"lynx"}}`,
		"负 settle":          `{"fetch":{"settle_ms":-1}}`,
		"代理地址无效":            `{"fetch":{"proxy":{"url":"127.0.0.1:8080"}}}`,
		"ai endpoint 无效":    `{"ai":{"endpoint":"ftp://x"}}`,
		"cron 无 watch_urls": `{"schedule":{"cron":"@hourly"}}`,
		"watch_urls 非 http": `{"schedule":{"cron":"@hourly","watch_urls":["chrome://newtab"]}}`,
		"cron 无法解析":         `{"schedule":{"cron":"every day","watch_urls":["https://trakt.tv/shows/x"]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, FileName), []byte(body))
			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
			}
		})
	}
}

func TestSecret_EnvThenDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	writeFile(t, dotenv, []byte("WSDX_TEST_KEY=from-dotenv\n"))

	t.Setenv("WSDX_TEST_KEY", "")
	if v, src := Secret("WSDX_TEST_KEY", dotenv); v != "from-dotenv" || src != "dotenv" {
		t.Fatalf("期望读取 dotenv，实际 %q %q", v, src)
	}

	t.Setenv("WSDX_TEST_KEY", "from-env")
	if v, src := Secret("WSDX_TEST_KEY", dotenv); v != "from-env" || src != "env" {
		t.Fatalf("环境变量应优先，实际 %q %q", v, src)
	}

	if v, _ := Secret("WSDX_TEST_MISSING", filepath.Join(dir, "nope.env")); v != "" {
		t.Fatalf("缺失时应返回空串：%q", v)
	}

	ai := AIConfig{APIKeyEnv: "WSDX_TEST_KEY", Dotenv: dotenv, Disabled: true}
	if v, _ := ai.APIKey(); v != "" {
		t.Fatalf("ai.disabled=true 时不应返回 key")
	}
	ai.Disabled = false
	if v, _ := ai.APIKey(); v != "from-env" {
		t.Fatalf("APIKey 不一致：%q", v)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll 失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("WriteFile 失败：%v", err)
	}
}
