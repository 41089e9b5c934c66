package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"filetransfer/internal/transfer/core/multipart"
	"filetransfer/internal/transfer/domain"
	_errors "filetransfer/pkg/errors"
)

// Listing is the JSON form of the index page.
type Listing struct {
	Files     []domain.FileInfo `json:"files"`
	TotalSize int64             `json:"totalSize"`
}

// UploadResponse is returned to JSON clients after a successful upload.
type UploadResponse struct {
	UploadID  string        `json:"uploadId"`
	Files     []domain.Part `json:"files"`
	Skipped   int           `json:"skipped"`
	BytesRead int64         `json:"bytesRead"`
	Duration  string        `json:"duration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type indexRow struct {
	Name     string
	Href     string
	Size     string
	Modified string
}

type indexPage struct {
	Files     []indexRow
	TotalSize string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Root.List()
	if err != nil {
		s.logger.Error("failed to list storage", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	// reverse name order
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })

	var total int64
	for _, f := range files {
		total += f.Size
	}

	if wantsJSON(r) {
		if files == nil {
			files = []domain.FileInfo{}
		}
		writeJSON(w, http.StatusOK, Listing{Files: files, TotalSize: total})
		return
	}

	page := indexPage{TotalSize: humanize.Bytes(uint64(total))}
	for _, f := range files {
		page.Files = append(page.Files, indexRow{
			Name:     f.Name,
			Href:     "/files/" + url.PathEscape(f.Name),
			Size:     humanize.Bytes(uint64(f.Size)),
			Modified: humanize.Time(f.ModTime),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		s.logger.Warn("failed to render index", "error", err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uploadID := uuid.NewString()
	log := s.logger.WithFields("operation", "upload", "uploadId", uploadID, "client", clientIP(r))

	if err := s.deps.Limiter.Acquire(r.Context()); err != nil {
		s.metrics.uploads.WithLabelValues("busy").Inc()
		log.Warn("upload refused", "error", err)
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	defer s.deps.Limiter.Release()

	token, err := multipart.ParseBoundary(r.Header.Get("Content-Type"))
	if err != nil {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		log.Warn("upload rejected", "error", err)
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var body io.Reader = r.Body
	if s.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	}

	ctrl, err := multipart.NewController(body, token, s.deps.Root, s.controllerOptions(uploadID)...)
	if err != nil {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		log.Warn("upload rejected", "error", err)
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	res, err := ctrl.Run(r.Context())
	files := res.Files()
	s.metrics.uploadedBytes.Add(float64(res.BytesRead))
	s.metrics.uploadedFiles.Add(float64(len(files)))
	s.metrics.windowPeak.Set(float64(res.PeakBuffered))
	s.metrics.duration.WithLabelValues("upload").Observe(time.Since(start).Seconds())

	if err != nil {
		status := uploadStatus(err)
		s.metrics.uploads.WithLabelValues(resultLabel(status)).Inc()
		log.Warn("upload failed", "status", status, "storedFiles", len(files), "error", err)
		s.writeError(w, r, status, err)
		return
	}

	s.metrics.uploads.WithLabelValues("ok").Inc()
	log.Info("upload completed",
		"files", len(files),
		"received", humanize.Bytes(uint64(res.BytesRead)),
		"duration", res.Duration)

	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if files == nil {
		files = []domain.Part{}
	}
	writeJSON(w, http.StatusOK, UploadResponse{
		UploadID:  res.UploadID,
		Files:     files,
		Skipped:   len(res.Parts) - len(files),
		BytesRead: res.BytesRead,
		Duration:  res.Duration.String(),
	})
}

func (s *Server) controllerOptions(uploadID string) []multipart.Option {
	opts := []multipart.Option{
		multipart.WithUploadID(uploadID),
		multipart.WithLogger(s.base.WithField("component", "multipart")),
		multipart.WithProgress(domain.ProgressFunc(s.progress)),
	}
	if s.opts.BufferSize > 0 {
		opts = append(opts, multipart.WithBufferSize(s.opts.BufferSize))
	}
	if s.opts.ProgressInterval > 0 {
		opts = append(opts, multipart.WithProgressInterval(s.opts.ProgressInterval))
	}
	if s.opts.Decoder != nil {
		opts = append(opts, multipart.WithDecoder(s.opts.Decoder))
	}
	return opts
}

func (s *Server) progress(sample domain.ProgressSample) {
	s.logger.Debug("upload progress",
		"uploadId", sample.UploadID,
		"file", sample.Filename,
		"transferred", humanize.Bytes(uint64(sample.Transferred)))
	if s.opts.Progress != nil {
		s.opts.Progress.Progress(sample)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.logger.WithFields("operation", "download", "client", clientIP(r))

	name, err := url.PathUnescape(mux.Vars(r)["name"])
	if err != nil {
		s.metrics.downloads.WithLabelValues("rejected").Inc()
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	log = log.WithField("file", name)

	if err := s.deps.Limiter.Acquire(r.Context()); err != nil {
		s.metrics.downloads.WithLabelValues("busy").Inc()
		log.Warn("download refused", "error", err)
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	defer s.deps.Limiter.Release()

	dl, err := s.deps.Deliverer.Open(name)
	if err != nil {
		status := downloadStatus(err)
		s.metrics.downloads.WithLabelValues(resultLabel(status)).Inc()
		log.Warn("download failed", "status", status, "error", err)
		s.writeError(w, r, status, err)
		return
	}
	defer dl.Close()

	h := w.Header()
	h.Set("Content-Type", dl.ContentType)
	h.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	h.Set("Content-Disposition", dl.ContentDisposition())
	h.Set("Last-Modified", dl.ModTime.UTC().Format(http.TimeFormat))
	h.Set("X-Content-Type-Options", "nosniff")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	n, err := dl.WriteTo(w)
	method := "copy"
	if dl.UsedSendfile() {
		method = "sendfile"
	}
	s.metrics.deliveredBytes.WithLabelValues(method).Add(float64(n))
	s.metrics.duration.WithLabelValues("download").Observe(time.Since(start).Seconds())

	if err != nil {
		// headers are gone; the client sees a short body
		s.metrics.downloads.WithLabelValues("aborted").Inc()
		return
	}
	s.metrics.downloads.WithLabelValues("ok").Inc()
	log.Info("file delivered",
		"size", humanize.Bytes(uint64(n)),
		"contentType", dl.ContentType,
		"duration", time.Since(start))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"inFlight":   s.deps.Limiter.InFlight(),
		"capacity":   s.deps.Limiter.Capacity(),
		"storageDir": s.deps.Root.Dir(),
	})
}

// uploadStatus maps an upload failure to a response code. Client faults,
// including a body that ends early, are 400.
func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case _errors.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, _errors.ErrServerBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// downloadStatus maps a delivery failure. Names escaping the root are
// reported as missing.
func downloadStatus(err error) int {
	switch {
	case _errors.IsNotFoundError(err), errors.Is(err, _errors.ErrPathTraversal):
		return http.StatusNotFound
	case errors.Is(err, _errors.ErrMalformedRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func resultLabel(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "busy"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= 500:
		return "server_error"
	default:
		return "rejected"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if wantsJSON(r) {
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	http.Error(w, http.StatusText(status)+": "+err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wantsJSON reports whether the client asked for JSON with ?format=json or
// an Accept header.
func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
