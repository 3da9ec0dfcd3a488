package enhance

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/WSDX/internal/domain"
)

// Apply 是增强的降级边界：任何失败都只记录日志，返回 aiEnhanced=false 的原记录。
//
// e 为 nil 或未配置 key 时直接返回原记录（不记 warn）。
func Apply(ctx context.Context, e Enhancer, rec domain.Record, logger zerolog.Logger) (domain.Record, error) {
	rec.AIEnhanced = false
	if e == nil {
		return rec, ErrNoAPIKey
	}

	start := time.Now()
	patch, err := e.Enhance(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrNoAPIKey) {
			logger.Debug().Msg("未配置 AI key，跳过增强")
		} else {
			logger.Warn().Err(err).Str("url", rec.URL).Dur("took", time.Since(start)).Msg("AI 增强失败，使用原始结果")
		}
		return rec, err
	}
	out := Merge(rec, patch)
	logger.Debug().Str("url", rec.URL).Int("keys", len(patch)).Dur("took", time.Since(start)).Msg("AI 增强完成")
	return out, nil
}
