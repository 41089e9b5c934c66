package state

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	_errors "filetransfer/pkg/errors"
	"filetransfer/pkg/logger"
	"filetransfer/pkg/platform"
)

// DefaultContentType is served when probing fails.
const DefaultContentType = "application/octet-stream"

// sniffLen is how much content http.DetectContentType looks at.
const sniffLen = 512

// Prober determines the content type of a stored file.
type Prober interface {
	Probe(path string) (string, error)
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(path string) (string, error)

func (f ProbeFunc) Probe(path string) (string, error) {
	return f(path)
}

// NewFileProber returns the default prober: the extension table first, then
// content sniffing of the first 512 bytes.
func NewFileProber(p platform.Platform) Prober {
	return ProbeFunc(func(path string) (string, error) {
		if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
			return ct, nil
		}

		f, err := p.Open(path)
		if err != nil {
			return "", fmt.Errorf("%w: %w", _errors.ErrProbeFailure, err)
		}
		defer f.Close()

		head := make([]byte, sniffLen)
		n, err := io.ReadFull(f, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: %w", _errors.ErrProbeFailure, err)
		}
		return http.DetectContentType(head[:n]), nil
	})
}

// ContentTypeCache memoizes probe results per resolved path. Stored files
// are treated as immutable, so entries are never invalidated while the cache
// is open. Failed probes are not cached.
type ContentTypeCache struct {
	entries sync.Map // path -> string
	group   singleflight.Group
	prober  Prober
	size    atomic.Int64
	probes  atomic.Int64
	closed  atomic.Bool
	logger  *logger.Logger
}

// NewContentTypeCache creates an empty cache around prober.
func NewContentTypeCache(prober Prober, log *logger.Logger) *ContentTypeCache {
	c := &ContentTypeCache{
		prober: prober,
		logger: log.WithField("component", "content-type-cache"),
	}
	c.logger.Debug("content type cache initialized")
	return c
}

// Lookup returns the content type for path, probing at most once per path
// even under concurrent callers.
func (c *ContentTypeCache) Lookup(path string) string {
	if v, ok := c.entries.Load(path); ok {
		return v.(string)
	}
	if c.closed.Load() {
		return c.probeUncached(path)
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		if v, ok := c.entries.Load(path); ok {
			return v, nil
		}
		ct, err := c.probe(path)
		if err != nil {
			return nil, err
		}
		actual, loaded := c.entries.LoadOrStore(path, ct)
		if !loaded {
			c.size.Add(1)
		}
		return actual, nil
	})
	if err != nil {
		c.logger.Warn("content type probe failed, using default", "path", path, "error", err)
		return DefaultContentType
	}
	return v.(string)
}

func (c *ContentTypeCache) probe(path string) (string, error) {
	c.probes.Add(1)
	ct, err := c.prober.Probe(path)
	if err != nil {
		return "", err
	}
	if ct == "" {
		return "", fmt.Errorf("%w: empty result for %s", _errors.ErrProbeFailure, path)
	}
	return ct, nil
}

func (c *ContentTypeCache) probeUncached(path string) string {
	ct, err := c.probe(path)
	if err != nil {
		return DefaultContentType
	}
	return ct
}

// Len returns the number of cached entries.
func (c *ContentTypeCache) Len() int {
	return int(c.size.Load())
}

// Probes returns how many probes have run.
func (c *ContentTypeCache) Probes() int64 {
	return c.probes.Load()
}

// Close drops all entries. Lookups after Close still work but are not cached.
func (c *ContentTypeCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
	c.size.Store(0)
	c.logger.Debug("content type cache closed")
	return nil
}
