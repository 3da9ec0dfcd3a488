package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Secret 解析运行时凭据：先读环境变量，再读 dotenv 文件；都没有时返回空串。
//
// dotenv 只被读取，不写回进程环境。source 用于日志（"env"、"dotenv" 或 ""），不包含值本身。
func Secret(envName, dotenvPath string) (value, source string) {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return "", ""
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, "env"
	}
	if strings.TrimSpace(dotenvPath) == "" {
		return "", ""
	}
	m, err := godotenv.Read(dotenvPath)
	if err != nil {
		return "", ""
	}
	if v := strings.TrimSpace(m[envName]); v != "" {
		return v, "dotenv"
	}
	return "", ""
}

// APIKey 按 AI 配置解析 key；ai.disabled=true 时总是返回空串。
func (c AIConfig) APIKey() (value, source string) {
	if c.Disabled {
		return "", ""
	}
	return Secret(c.APIKeyEnv, c.Dotenv)
}

// RedisPassword 从 password_env 指定的变量读取 Redis 密码。
func (c StoreConfig) RedisPassword(dotenvPath string) string {
	v, _ := Secret(c.PasswordEnv, dotenvPath)
	return v
}
