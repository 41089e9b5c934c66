package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filetransfer/internal/transfer/core/delivery"
	"filetransfer/internal/transfer/core/filename"
	"filetransfer/internal/transfer/core/storage"
	"filetransfer/internal/transfer/domain"
	"filetransfer/internal/transfer/state"
	"filetransfer/pkg/logger"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Dependencies are the components a Server routes requests to. They are
// owned by the caller, which closes the cache after the server has stopped.
type Dependencies struct {
	Root      *storage.Root
	Deliverer *delivery.Deliverer
	Cache     *state.ContentTypeCache
	Limiter   *Limiter
}

// Options tune request handling. Zero values select the controller defaults.
type Options struct {
	BufferSize       int
	ProgressInterval int64
	// MaxBodyBytes caps an upload body; 0 means unlimited.
	MaxBodyBytes int64
	Decoder      filename.Decoder
	// MetricsPath is where /metrics is served; empty disables it.
	MetricsPath string
	Progress    domain.ProgressSink
}

// Server is the HTTP front end of the upload engine and the delivery path.
type Server struct {
	deps     Dependencies
	opts     Options
	metrics  *Collector
	registry *prometheus.Registry
	base     *logger.Logger
	logger   *logger.Logger
}

func New(deps Dependencies, opts Options, log *logger.Logger) *Server {
	s := &Server{
		deps:     deps,
		opts:     opts,
		registry: prometheus.NewRegistry(),
		base:     log,
		logger:   log.WithField("component", "http-server"),
	}
	s.metrics = NewMetricsCollector(Gauges{
		InFlight:     deps.Limiter.InFlight,
		CacheEntries: deps.Cache.Len,
		CacheProbes:  deps.Cache.Probes,
	})
	s.registry.MustRegister(s.metrics, collectors.NewGoCollector())
	return s
}

// Handler returns the routed handler. File names in /files/ are matched on
// the escaped path and percent-decoded by the handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter().UseEncodedPath()

	r.Handle("/", gzhttp.GzipHandler(http.HandlerFunc(s.handleIndex))).
		Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/files/{name}", s.handleDownload).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	s.logger.Debug("routes registered", "metrics", s.opts.MetricsPath)
	return r
}

// Registry exposes the metrics registry, mainly for tests.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}
