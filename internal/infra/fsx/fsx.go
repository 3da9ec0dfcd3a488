// Package fsx 提供两种落盘方式：状态槽位的原子覆盖写，以及导出文件的原子独占创建。
package fsx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// 测试替换点。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// PathTypeConflictError 表示目标路径已被非普通文件占用（例如同名目录）。
type PathTypeConflictError struct {
	Path string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径被占用：%q 是 %s，不是普通文件", e.Path, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CreateExclusive 原子地创建 dir/name：内容先完整写入同目录的临时文件，
// 再用硬链接发布到目标名。目标已存在时返回 os.ErrExist（同名目录等返回
// *PathTypeConflictError），已有内容保持不变。
//
// 发布与存在性检查是同一个系统调用，并发写同名文件时只有一个成功。
// 文件系统不支持硬链接时退化为 O_EXCL 直接写入（仍不覆盖，但不保证原子）。
func CreateExclusive(dir, name string, data []byte) error {
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)

	tmp, err := stage(dir, name, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	err = linkFunc(tmp, dst)
	switch {
	case err == nil:
		syncDir(dir)
		return nil
	case errors.Is(err, fs.ErrExist):
		return existsError(dst)
	}

	// 链接失败但目标不存在：多半是文件系统不支持硬链接。
	if _, statErr := os.Lstat(dst); statErr == nil {
		return existsError(dst)
	}
	return writeExcl(dst, data)
}

// ReplaceAtomic 原子地写入并覆盖 dir/name（状态槽位使用；Windows 上为 best-effort）。
func ReplaceAtomic(dir, name string, data []byte) error {
	dir = filepath.Clean(dir)
	tmp, err := stage(dir, name, data)
	if err != nil {
		return err
	}
	if err := renameFunc(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	syncDir(dir)
	return nil
}

// stage 在 dir 下写好一个已 fsync 的临时文件并返回其路径；失败时不留下临时文件。
func stage(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}
	path := f.Name()

	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Chmod(0o644)
	}
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return "", werr
	}
	return path, nil
}

func writeExcl(dst string, data []byte) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return existsError(dst)
		}
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// 写失败时不留下半个文件。
		_ = os.Remove(dst)
	}
	return err
}

func existsError(dst string) error {
	if fi, err := os.Lstat(dst); err == nil && !fi.Mode().IsRegular() {
		got := "dir"
		if !fi.IsDir() {
			got = fi.Mode().Type().String()
		}
		return &PathTypeConflictError{Path: dst, Got: got}
	}
	return fmt.Errorf("%q：%w", dst, os.ErrExist)
}

func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if f, err := os.Open(dir); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
}
