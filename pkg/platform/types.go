package platform

import "os"

// Platform abstracts the filesystem calls made by the storage and delivery
// layers so tests can inject failures. Errors are *PlatformError values
// wrapping the os error.
type Platform interface {
	MkdirAll(dir string, perm os.FileMode) error
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Open(name string) (*os.File, error)
	Stat(name string) (os.FileInfo, error)
	Lstat(name string) (os.FileInfo, error)
	EvalSymlinks(path string) (string, error)
	ReadDir(dir string) ([]os.DirEntry, error)
	Remove(path string) error
	IsNotExist(err error) bool
	UserHomeDir() (string, error)
	GetInfo() *Info
}

// Info describes the running platform.
type Info struct {
	OS           string
	Architecture string
	// ZeroCopy is true when file-to-socket delivery can use sendfile(2).
	ZeroCopy bool
}
