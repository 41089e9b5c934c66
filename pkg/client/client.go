package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_errors "filetransfer/pkg/errors"
	"filetransfer/pkg/logger"
)

// FileInfo is one entry of the server listing.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

type Listing struct {
	Files     []FileInfo `json:"files"`
	TotalSize int64      `json:"totalSize"`
}

// StoredFile describes a file the server accepted.
type StoredFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Digest   string `json:"blake3"`
	Complete bool   `json:"complete"`
}

type UploadResult struct {
	UploadID  string       `json:"uploadId"`
	Files     []StoredFile `json:"files"`
	Skipped   int          `json:"skipped"`
	BytesRead int64        `json:"bytesRead"`
	Duration  string       `json:"duration"`
}

// Source is one file to upload. Size is only used for progress reporting;
// use -1 when unknown.
type Source struct {
	Name   string
	Reader io.Reader
	Size   int64
}

// ProgressFunc is called from the upload goroutine after each write.
type ProgressFunc func(name string, sent, total int64)

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *logger.Logger
}

// New creates a client for the server at serverURL. A zero timeout means no
// overall deadline, which suits long transfers.
func New(serverURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", serverURL)
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.WithField("component", "client"),
	}, nil
}

// Upload streams sources as one multipart/form-data request. Nothing is
// buffered beyond the pipe between the encoder and the transport.
func (c *Client) Upload(ctx context.Context, sources []Source, progress ProgressFunc) (*UploadResult, error) {
	if len(sources) == 0 {
		return nil, errors.New("nothing to upload")
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, sources, progress))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	c.logger.Debug("upload finished", "uploadId", result.UploadID, "files", len(result.Files))
	return &result, nil
}

// UploadFiles opens paths and uploads them under their base names.
func (c *Client) UploadFiles(ctx context.Context, paths []string, progress ProgressFunc) (*UploadResult, error) {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		defer f.Close()

		size := int64(-1)
		if info, err := f.Stat(); err == nil {
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", p)
			}
			size = info.Size()
		}
		sources = append(sources, Source{Name: filepath.Base(p), Reader: f, Size: size})
	}
	return c.Upload(ctx, sources, progress)
}

func writeParts(mw *multipart.Writer, sources []Source, progress ProgressFunc) error {
	for _, src := range sources {
		part, err := mw.CreateFormFile("file", src.Name)
		if err != nil {
			return err
		}
		w := io.Writer(part)
		if progress != nil {
			w = &progressWriter{w: part, name: src.Name, total: src.Size, fn: progress}
		}
		if _, err := io.Copy(w, src.Reader); err != nil {
			return fmt.Errorf("failed to send %s: %w", src.Name, err)
		}
	}
	return mw.Close()
}

type progressWriter struct {
	w     io.Writer
	name  string
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.sent += int64(n)
	p.fn(p.name, p.sent, p.total)
	return n, err
}

// Download writes the named file to w and returns the number of bytes copied.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/files/"+url.PathEscape(name)), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, responseError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, c.transportError(ctx, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short download of %s: %d of %d bytes: %w", name, n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	return n, nil
}

// List returns the stored files in the server's order.
func (c *Client) List(ctx context.Context) (*Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/?format=json"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	return &listing, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", _errors.ErrStreamCancelled, ctx.Err())
	}
	return fmt.Errorf("request failed: %w", err)
}

// responseError turns a non-200 response into an error carrying the
// server's message. Well-known codes wrap the matching sentinel.
func responseError(resp *http.Response) error {
	msg := resp.Status
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", _errors.ErrFileNotFound, msg)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", _errors.ErrServerBusy, msg)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", _errors.ErrMalformedRequest, msg)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}
