// Package export 把记录保存为带时间戳的 JSON 文件（可选同名 .nfo）。
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/WSDX/internal/domain"
	"github.com/John-Robertt/WSDX/internal/infra/fsx"
	"github.com/John-Robertt/WSDX/internal/nfo"
)

const filePrefix = "web-series-data-"

// FileName 生成导出文件名：web-series-data-<UTC 毫秒时间戳，':' 与 '.' 替换为 '-'>.json。
func FileName(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return filePrefix + ts + ".json"
}

// Marshal 输出 2 空格缩进的 JSON，不转义 HTML 字符。
func Marshal(rec domain.Record) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, unescapeHTML(raw), "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Result 描述一次导出写出的文件。
type Result struct {
	JSONPath string
	NFOPath  string // 未启用 NFO 时为空
}

// Writer 把记录写入 Dir。
//
// 约束：
// - 写入原子且不覆盖：同名文件已存在时返回错误
// - NFO 失败不回滚 JSON（JSON 是主产物）
type Writer struct {
	Dir string
	NFO bool
	// Now 允许测试固定文件名；为空时使用 time.Now。
	Now func() time.Time
}

func (w Writer) Write(rec domain.Record) (Result, error) {
	dir := strings.TrimSpace(w.Dir)
	if dir == "" {
		dir = "."
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}

	b, err := Marshal(rec)
	if err != nil {
		return Result{}, err
	}
	name := FileName(now())
	if err := fsx.CreateExclusive(dir, name, b); err != nil {
		switch {
		case fsx.IsPathTypeConflict(err):
			return Result{}, fmt.Errorf("导出路径被占用：%w", err)
		case errors.Is(err, os.ErrExist):
			return Result{}, fmt.Errorf("导出文件已存在，未覆盖：%w", err)
		}
		return Result{}, fmt.Errorf("写入导出文件失败：%w", err)
	}
	res := Result{JSONPath: filepath.Join(dir, name)}

	if !w.NFO {
		return res, nil
	}
	x, err := nfo.Encode(rec)
	if err != nil {
		return res, err
	}
	nfoName := strings.TrimSuffix(name, ".json") + ".nfo"
	if err := fsx.CreateExclusive(dir, nfoName, x); err != nil {
		return res, fmt.Errorf("写入 NFO 失败：%w", err)
	}
	res.NFOPath = filepath.Join(dir, nfoName)
	return res, nil
}

// json.Marshal 会把 <>& 写成 \u003c 等转义；导出文件面向人阅读，还原它们。
// 逐字节扫描以区分 "\\u003c"（字面反斜杠）与真正的转义序列。
func unescapeHTML(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u00`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if b[i+1] == 'u' && i+6 <= len(b) {
			switch string(b[i+2 : i+6]) {
			case "003c":
				out = append(out, '<')
				i += 5
				continue
			case "003e":
				out = append(out, '>')
				i += 5
				continue
			case "0026":
				out = append(out, '&')
				i += 5
				continue
			}
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}
