package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filetransfer/internal/transfer/domain"
	_errors "filetransfer/pkg/errors"
	"filetransfer/pkg/logger"
	"filetransfer/pkg/platform"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// Ensure Root can back the multipart controller
var _ domain.PartStore = (*Root)(nil)

// Root is the storage directory. Every name handed to it is resolved and
// checked for containment before the filesystem is touched.
type Root struct {
	dir      string
	platform platform.Platform
	logger   *logger.Logger
}

// NewRoot makes dir absolute and creates it if needed.
func NewRoot(dir string, p platform.Platform, log *logger.Logger) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty storage directory", _errors.ErrFilesystem)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", _errors.ErrFilesystem, dir, err)
	}
	if err := p.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", _errors.ErrFilesystem, abs, err)
	}
	info, err := p.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", _errors.ErrFilesystem, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", _errors.ErrFilesystem, abs)
	}
	// containment is checked against real paths, so the root must be one too
	resolved, err := p.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", _errors.ErrFilesystem, abs, err)
	}

	return &Root{
		dir:      resolved,
		platform: p,
		logger:   log.WithField("component", "storage"),
	}, nil
}

// OpenFirst tries each candidate directory in order and returns the first
// one that can be created.
func OpenFirst(candidates []string, p platform.Platform, log *logger.Logger) (*Root, error) {
	var errs []string
	for _, dir := range candidates {
		root, err := NewRoot(dir, p, log)
		if err == nil {
			return root, nil
		}
		log.Warn("storage directory unusable, trying next", "dir", dir, "error", err)
		errs = append(errs, err.Error())
	}
	return nil, fmt.Errorf("%w: no usable storage directory: %s", _errors.ErrFilesystem, strings.Join(errs, "; "))
}

// Dir returns the absolute storage directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve maps a relative name to an absolute path inside the root. The
// name is checked lexically first, then every symlink along the path is
// followed and the real path must still lie inside the root. The returned
// path contains no symlinks.
func (r *Root) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: invalid name %q", _errors.ErrPathTraversal, name)
	}

	full := filepath.Join(r.dir, filepath.FromSlash(name))
	if !r.contains(full) {
		return "", fmt.Errorf("%w: %q", _errors.ErrPathTraversal, name)
	}

	resolved, err := r.realPath(full)
	if err != nil {
		return "", err
	}
	if !r.contains(resolved) {
		return "", fmt.Errorf("%w: %q resolves outside the storage directory", _errors.ErrPathTraversal, name)
	}
	return resolved, nil
}

// contains reports whether path is strictly below the root.
func (r *Root) contains(path string) bool {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// realPath follows symlinks in full. Trailing elements that do not exist yet
// are appended to the real path of their deepest existing ancestor. A
// dangling symlink is refused: creating through it would write wherever it
// points.
func (r *Root) realPath(full string) (string, error) {
	rest := ""
	for p := full; ; {
		resolved, err := r.platform.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !r.platform.IsNotExist(err) {
			return "", fmt.Errorf("%w: resolve %s: %w", _errors.ErrFilesystem, p, err)
		}
		if _, lerr := r.platform.Lstat(p); lerr == nil {
			return "", fmt.Errorf("%w: dangling link %s", _errors.ErrPathTraversal, p)
		}

		rest = filepath.Join(filepath.Base(p), rest)
		parent := filepath.Dir(p)
		if parent == p {
			return full, nil
		}
		p = parent
	}
}

// Create opens a fresh file for writing, truncating an existing one.
func (r *Root) Create(name string) (domain.Destination, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := r.platform.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|openNoFollow, filePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", _errors.ErrFilesystem, name, err)
	}
	r.logger.Debug("destination opened", "path", path)
	return f, nil
}

// Open opens an existing regular file for reading.
func (r *Root) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := r.platform.OpenFile(path, os.O_RDONLY|openNoFollow, 0)
	if err != nil {
		if r.platform.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", _errors.ErrFileNotFound, name)
		}
		return nil, nil, fmt.Errorf("%w: open %s: %w", _errors.ErrFilesystem, name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: stat %s: %w", _errors.ErrFilesystem, name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is not a regular file", _errors.ErrFileNotFound, name)
	}
	return f, info, nil
}

// List returns the regular files directly under the root, sorted by name.
func (r *Root) List() ([]domain.FileInfo, error) {
	entries, err := r.platform.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", _errors.ErrFilesystem, r.dir, err)
	}

	files := make([]domain.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, domain.FileInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
