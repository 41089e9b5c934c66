package platform

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"filetransfer/pkg/logger"
)

// BasePlatform forwards to the os package and wraps failures in
// PlatformError.
type BasePlatform struct {
	logger *logger.Logger
}

// NewBasePlatform creates a new base platform
func NewBasePlatform() *BasePlatform {
	return &BasePlatform{
		logger: logger.WithField("component", "platform"),
	}
}

func (bp *BasePlatform) MkdirAll(dir string, perm os.FileMode) error {
	bp.logger.Debug("ensuring directory", "dir", dir, "perm", perm)
	return NewPlatformError("mkdir", dir, os.MkdirAll(dir, perm))
}

func (bp *BasePlatform) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, NewPlatformError("openfile", name, err)
	}
	return f, nil
}

func (bp *BasePlatform) Open(name string) (*os.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, NewPlatformError("open", name, err)
	}
	return f, nil
}

func (bp *BasePlatform) Stat(name string) (os.FileInfo, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, NewPlatformError("stat", name, err)
	}
	return info, nil
}

func (bp *BasePlatform) Lstat(name string) (os.FileInfo, error) {
	info, err := os.Lstat(name)
	if err != nil {
		return nil, NewPlatformError("lstat", name, err)
	}
	return info, nil
}

func (bp *BasePlatform) EvalSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", NewPlatformError("evalsymlinks", path, err)
	}
	return resolved, nil
}

func (bp *BasePlatform) ReadDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewPlatformError("readdir", dir, err)
	}
	return entries, nil
}

func (bp *BasePlatform) Remove(path string) error {
	return NewPlatformError("remove", path, os.Remove(path))
}

// IsNotExist unwraps, unlike os.IsNotExist.
func (bp *BasePlatform) IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (bp *BasePlatform) UserHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", NewPlatformError("userhomedir", "", err)
	}
	return home, nil
}

func (bp *BasePlatform) GetInfo() *Info {
	return &Info{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		ZeroCopy:     runtime.GOOS == "linux",
	}
}

var _ Platform = (*BasePlatform)(nil)
