package fs

import (
	"fmt"
	"os"

	"github.com/otiai10/copy"
	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// BridgeFS will wrap the filesystem operations used by the bridge.
type BridgeFS interface {
	TempDir() string
	MkdirAll(path string) error
	DirExists(path string) (bool, error)
	FileExists(path string) (bool, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	// CopyTree recursively copies src into dst, preserving file modes and symlinks. dst must not exist.
	CopyTree(src, dst string) error
	// RemoveAll removes path and any children. A missing path is not an error.
	RemoveAll(path string) error
}

type fsImpl struct{}

// New creates a new BridgeFS.
func New() BridgeFS {
	return fsImpl{}
}

// TempDir returns the default directory to use for temporary files.
func (fsImpl) TempDir() string { return os.TempDir() }

// MkdirAll creates a directory and all its parents.
func (fsImpl) MkdirAll(path string) error { return os.MkdirAll(path, os.ModePerm) }

func (fsImpl) DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (fsImpl) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (fsImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile replaces the contents of name, keeping its mode when it already exists.
func (fsImpl) WriteFile(name string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(name); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(name, data, mode)
}

func (fsImpl) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (fsImpl) CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%q already exists", dst)
	}

	return copy.Copy(src, dst, copy.Options{
		OnSymlink:         func(string) copy.SymlinkAction { return copy.Shallow },
		PermissionControl: copy.PerservePermission,
		Skip:              skipSpecial,
	})
}

// skipSpecial skips sockets, devices and pipes, which have no place in a project template.
func skipSpecial(info os.FileInfo, _, _ string) (bool, error) {
	mode := info.Mode()
	return !mode.IsDir() && !mode.IsRegular() && mode&os.ModeSymlink == 0, nil
}
