package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig 是 Redis 连接配置。
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	// Prefix 加在槽位名前，便于多个实例共享一个库。默认 "wsdx:"。
	Prefix string
}

// Redis 把槽位保存在 Redis 字符串键中，适合多个 serve 实例共享状态。
type Redis struct {
	slots
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedis 建立连接并 Ping 一次；不可用时直接报错，不回退到文件。
func NewRedis(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis 连接失败：%w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("已连接 Redis 存储")
	return newRedis(client, cfg.Prefix, logger), nil
}

func newRedis(client *redis.Client, prefix string, logger zerolog.Logger) *Redis {
	if prefix == "" {
		prefix = "wsdx:"
	}
	r := &Redis{client: client, prefix: prefix, logger: logger}
	r.slots = slots{kv: r}
	return r
}

func (r *Redis) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("redis get 失败")
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) put(ctx context.Context, key string, b []byte) error {
	// 槽位没有过期时间：覆盖即更新。
	if err := r.client.Set(ctx, r.prefix+key, b, 0).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("redis set 失败")
		return err
	}
	return nil
}

// HealthCheck 用于 /healthz。
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
