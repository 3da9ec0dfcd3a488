package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/WSDX/internal/infra/fsx"
)

// File 把槽位保存为 <dir>/<key>.json。
//
// 约束：
// - 只读模式（例如 `wsdx last`）下任何写入返回 ErrReadOnly
// - 写入是原子的：进程中断不会留下半个 JSON
type File struct {
	slots
	Dir      string
	ReadOnly bool
}

func NewFile(dir string, readOnly bool) *File {
	f := &File{
		Dir:      filepath.Clean(strings.TrimSpace(dir)),
		ReadOnly: readOnly,
	}
	f.slots = slots{kv: f}
	return f
}

// Path 返回槽位文件的路径。
func (f *File) Path(key string) string {
	return filepath.Join(f.Dir, key+".json")
}

func (f *File) get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(f.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (f *File) put(ctx context.Context, key string, b []byte) error {
	if f.ReadOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fsx.ReplaceAtomic(f.Dir, key+".json", b)
}

func (f *File) Close() error { return nil }
