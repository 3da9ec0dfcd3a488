// Package store 保存两个持久化槽位：最近一次抽取结果与用户设置。
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/John-Robertt/WSDX/internal/domain"
)

// 槽位名与浏览器扩展的存储键保持一致，便于迁移已有数据。
const (
	KeyLast     = "lastExtractedData"
	KeySettings = "settings"
)

var ErrReadOnly = errors.New("store: read-only")

// Store 是槽位存储。容量为 1：每次 SaveLast 覆盖上一条。
type Store interface {
	// LoadLast 返回最近一次的记录；不存在时 ok=false。
	LoadLast(ctx context.Context) (rec domain.Record, ok bool, err error)
	SaveLast(ctx context.Context, rec domain.Record) error
	// LoadSettings 在槽位为空时返回 domain.DefaultSettings()。
	LoadSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
	Close() error
}

// kv 是后端需要提供的最小读写能力；编解码统一在 slots 中完成。
type kv interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, b []byte) error
}

type slots struct{ kv kv }

func (s slots) LoadLast(ctx context.Context) (domain.Record, bool, error) {
	b, ok, err := s.kv.get(ctx, KeyLast)
	if err != nil || !ok {
		return domain.Record{}, false, err
	}
	var rec domain.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.Record{}, false, err
	}
	return rec, true, nil
}

func (s slots) SaveLast(ctx context.Context, rec domain.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.kv.put(ctx, KeyLast, b)
}

func (s slots) LoadSettings(ctx context.Context) (domain.Settings, error) {
	b, ok, err := s.kv.get(ctx, KeySettings)
	if err != nil {
		return domain.Settings{}, err
	}
	st := domain.DefaultSettings()
	if !ok {
		return st, nil
	}
	// 在默认值上解码：旧数据缺少的字段保持默认。
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.Settings{}, err
	}
	return st, nil
}

func (s slots) SaveSettings(ctx context.Context, st domain.Settings) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.kv.put(ctx, KeySettings, b)
}
