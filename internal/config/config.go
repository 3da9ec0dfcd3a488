package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/WSDX/internal/schedule"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是在 cwd 下自动发现的配置文件名。
const FileName = "wsdx.json"

const (
	DefaultStateDir       = ".wsdx"
	DefaultStoreBackend   = "file"
	DefaultRenderer       = "http"
	DefaultFetchTimeout   = 20 * time.Second
	DefaultSettle         = 3 * time.Second
	DefaultAITimeout      = 30 * time.Second
	DefaultAPIKeyEnv      = "WSDX_AI_API_KEY"
	DefaultDotenv         = ".env"
	DefaultListen         = "127.0.0.1:8787"
	DefaultRequestTimeout = 90 * time.Second
	DefaultRatePerMinute  = 60
	DefaultMaxInflight    = 4
	DefaultWatchPerMinute = 6
)

// CLIArgs 是 CLI 可覆盖的字段，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --nfo=false 必须能覆盖 config.nfo=true。
type CLIArgs struct {
	// ConfigPath 非空时必须存在；为空时尝试 <cwd>/wsdx.json（可选）。
	ConfigPath string

	OutputDir string
	StateDir  string
	Store     string
	Renderer  string
	Listen    string
	LogLevel  string
	APIKeyEnv string

	NFO    bool
	NFOSet bool
}

// FileConfig 对应 wsdx.json 的解析结构。
//
// 密钥（AI key、Redis 密码）不允许写在这里：只写环境变量名。
type FileConfig struct {
	StateDir  string `json:"state_dir"`
	OutputDir string `json:"output_dir"`
	NFO       *bool  `json:"nfo"`

	Store    StoreFile    `json:"store"`
	Fetch    FetchFile    `json:"fetch"`
	AI       AIFile       `json:"ai"`
	Server   ServerFile   `json:"server"`
	Schedule ScheduleFile `json:"schedule"`
	Log      LogFile      `json:"log"`
}

type StoreFile struct {
	Backend string `json:"backend"` // file | redis | memory
	Redis   struct {
		Addr        string `json:"addr"`
		PasswordEnv string `json:"password_env"`
		DB          int    `json:"db"`
		Prefix      string `json:"prefix"`
	} `json:"redis"`
}

type FetchFile struct {
	Renderer       string       `json:"renderer"` // http | chrome
	Proxy          *ProxyConfig `json:"proxy"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	SettleMillis   *int         `json:"settle_ms"`
	Headful        bool         `json:"headful"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type AIFile struct {
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	APIKeyEnv      string `json:"api_key_env"`
	Dotenv         string `json:"dotenv"`
	Disabled       bool   `json:"disabled"`
}

type ServerFile struct {
	Listen                string `json:"listen"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	RatePerMinute         int    `json:"rate_per_minute"`
	MaxInflight           int    `json:"max_inflight"`
}

type ScheduleFile struct {
	Cron          string   `json:"cron"`
	WatchURLs     []string `json:"watch_urls"`
	RatePerMinute int      `json:"rate_per_minute"`
}

type LogFile struct {
	Level string `json:"level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取的配置文件；未读取时为空。
	ConfigFile string

	StateDir  string
	OutputDir string
	NFO       bool

	Store    StoreConfig
	Fetch    FetchConfig
	AI       AIConfig
	Server   ServerConfig
	Schedule ScheduleConfig
	LogLevel string
}

type StoreConfig struct {
	Backend     string
	RedisAddr   string
	PasswordEnv string
	RedisDB     int
	RedisPrefix string
}

type FetchConfig struct {
	Renderer string
	ProxyURL string
	Timeout  time.Duration
	Settle   time.Duration
	Headful  bool
}

type AIConfig struct {
	Endpoint  string
	Model     string
	Timeout   time.Duration
	APIKeyEnv string
	// Dotenv 为绝对路径；文件不存在不算错误。
	Dotenv   string
	Disabled bool
}

type ServerConfig struct {
	Listen         string
	RequestTimeout time.Duration
	RatePerMinute  int
	MaxInflight    int
}

type ScheduleConfig struct {
	Cron          string
	WatchURLs     []string
	RatePerMinute int
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/wsdx.json（可选）
//
// 覆盖优先级：CLI > 配置文件 > 内置默认。
// 相对路径以配置文件所在目录为基准（没有配置文件时以 cwd 为基准）。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	explicit := strings.TrimSpace(cli.ConfigPath) != ""
	if explicit {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && explicit {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	base := cwdAbs
	if exists {
		base = filepath.Dir(cfgPath)
	} else {
		cfgPath = ""
	}
	return merge(cwdAbs, base, cli, fc, cfgPath)
}

func merge(cwdAbs, base string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, a ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, a...)}
	}

	eff := EffectiveConfig{ConfigFile: cfgPath}

	// 目录：CLI 的相对路径基于 cwd；配置文件的相对路径基于配置文件目录。
	eff.StateDir = pickPath(cwdAbs, cli.StateDir, base, fc.StateDir, DefaultStateDir)
	eff.OutputDir = pickPath(cwdAbs, cli.OutputDir, base, fc.OutputDir, ".")

	switch {
	case cli.NFOSet:
		eff.NFO = cli.NFO
	case fc.NFO != nil:
		eff.NFO = *fc.NFO
	}

	// store
	eff.Store = StoreConfig{
		Backend:     strings.ToLower(pick(cli.Store, fc.Store.Backend, DefaultStoreBackend)),
		RedisAddr:   strings.TrimSpace(fc.Store.Redis.Addr),
		PasswordEnv: strings.TrimSpace(fc.Store.Redis.PasswordEnv),
		RedisDB:     fc.Store.Redis.DB,
		RedisPrefix: strings.TrimSpace(fc.Store.Redis.Prefix),
	}
	switch eff.Store.Backend {
	case "file", "memory":
	case "redis":
		if eff.Store.RedisAddr == "" {
			return EffectiveConfig{}, invalid("store.backend=redis 但 store.redis.addr 为空")
		}
		if eff.Store.RedisDB < 0 {
			return EffectiveConfig{}, invalid("store.redis.db 不能为负数：%d", eff.Store.RedisDB)
		}
	default:
		return EffectiveConfig{}, invalid("store.backend 只能是 file、redis 或 memory，实际是 %q", eff.Store.Backend)
	}

	// fetch
	eff.Fetch = FetchConfig{
		Renderer: strings.ToLower(pick(cli.Renderer, fc.Fetch.Renderer, DefaultRenderer)),
		Timeout:  seconds(fc.Fetch.TimeoutSeconds, DefaultFetchTimeout),
		Settle:   DefaultSettle,
		Headful:  fc.Fetch.Headful,
	}
	if eff.Fetch.Renderer != "http" && eff.Fetch.Renderer != "chrome" {
		return EffectiveConfig{}, invalid("fetch.renderer 只能是 http 或 chrome，实际是 %q", eff.Fetch.Renderer)
	}
	if fc.Fetch.SettleMillis != nil {
		if *fc.Fetch.SettleMillis < 0 {
			return EffectiveConfig{}, invalid("fetch.settle_ms 不能为负数：%d", *fc.Fetch.SettleMillis)
		}
		eff.Fetch.Settle = time.Duration(*fc.Fetch.SettleMillis) * time.Millisecond
	}
	if fc.Fetch.Proxy != nil {
		eff.Fetch.ProxyURL = strings.TrimSpace(fc.Fetch.Proxy.URL)
	}
	if eff.Fetch.ProxyURL != "" {
		if err := checkURL(eff.Fetch.ProxyURL, "http", "https", "socks5"); err != nil {
			return EffectiveConfig{}, invalid("fetch.proxy.url 无效：%w", err)
		}
	}

	// ai
	eff.AI = AIConfig{
		Endpoint:  strings.TrimRight(strings.TrimSpace(fc.AI.Endpoint), "/"),
		Model:     strings.TrimSpace(fc.AI.Model),
		Timeout:   seconds(fc.AI.TimeoutSeconds, DefaultAITimeout),
		APIKeyEnv: pick(cli.APIKeyEnv, fc.AI.APIKeyEnv, DefaultAPIKeyEnv),
		Dotenv:    absCleanFrom(base, pick("", fc.AI.Dotenv, DefaultDotenv)),
		Disabled:  fc.AI.Disabled,
	}
	if eff.AI.Endpoint != "" {
		if err := checkHTTPURL(eff.AI.Endpoint); err != nil {
			return EffectiveConfig{}, invalid("ai.endpoint 无效：%w", err)
		}
	}

	// server
	eff.Server = ServerConfig{
		Listen:         pick(cli.Listen, fc.Server.Listen, DefaultListen),
		RequestTimeout: seconds(fc.Server.RequestTimeoutSeconds, DefaultRequestTimeout),
		RatePerMinute:  positive(fc.Server.RatePerMinute, DefaultRatePerMinute),
		MaxInflight:    clamp(positive(fc.Server.MaxInflight, DefaultMaxInflight), 1, 32),
	}

	// schedule
	eff.Schedule = ScheduleConfig{
		Cron:          strings.TrimSpace(fc.Schedule.Cron),
		RatePerMinute: positive(fc.Schedule.RatePerMinute, DefaultWatchPerMinute),
	}
	for _, u := range fc.Schedule.WatchURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if err := checkHTTPURL(u); err != nil {
			return EffectiveConfig{}, invalid("schedule.watch_urls 包含无效地址 %q：%w", u, err)
		}
		eff.Schedule.WatchURLs = append(eff.Schedule.WatchURLs, u)
	}
	if eff.Schedule.Cron != "" {
		if len(eff.Schedule.WatchURLs) == 0 {
			return EffectiveConfig{}, invalid("schedule.cron 已设置但 schedule.watch_urls 为空")
		}
		if err := schedule.Validate(eff.Schedule.Cron); err != nil {
			return EffectiveConfig{}, invalid("schedule.cron：%w", err)
		}
	}

	eff.LogLevel = strings.ToLower(pick(cli.LogLevel, fc.Log.Level, ""))
	return eff, nil
}

func pick(cli, file, def string) string {
	if v := strings.TrimSpace(cli); v != "" {
		return v
	}
	if v := strings.TrimSpace(file); v != "" {
		return v
	}
	return def
}

func pickPath(cwdAbs, cli, base, file, def string) string {
	if strings.TrimSpace(cli) != "" {
		return absCleanFrom(cwdAbs, cli)
	}
	if strings.TrimSpace(file) != "" {
		return absCleanFrom(base, file)
	}
	return absCleanFrom(base, def)
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func positive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func checkHTTPURL(raw string) error {
	return checkURL(raw, "http", "https")
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	ok := false
	for _, s := range schemes {
		if u.Scheme == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("scheme 必须是 %s：%q", strings.Join(schemes, "/"), raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
