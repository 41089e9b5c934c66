package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "filetransfer"

// Collector is a prometheus.Collector for upload and download activity.
type Collector struct {
	uploads         *prometheus.CounterVec
	uploadedBytes   prometheus.Counter
	uploadedFiles   prometheus.Counter
	downloads       *prometheus.CounterVec
	deliveredBytes  *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	windowPeak      prometheus.Gauge
	transfersActive prometheus.GaugeFunc
	cacheEntries    prometheus.GaugeFunc
	cacheProbes     prometheus.CounterFunc
}

// Gauges reads live values owned by other components.
type Gauges struct {
	InFlight     func() int64
	CacheEntries func() int
	CacheProbes  func() int64
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector(g Gauges) *Collector {
	return &Collector{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "uploads_total",
				Help:      "Multipart uploads by outcome.",
			}, []string{"result"},
		),
		uploadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upload_body_bytes_total",
				Help:      "Request body bytes read by the multipart controller.",
			},
		),
		uploadedFiles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "uploaded_files_total",
				Help:      "File parts written to storage.",
			},
		),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "downloads_total",
				Help:      "File deliveries by outcome.",
			}, []string{"result"},
		),
		deliveredBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "delivered_bytes_total",
				Help:      "File bytes delivered, by copy method.",
			}, []string{"method"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "transfer_duration_seconds",
				Help:      "Time spent on a single upload or download.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
			}, []string{"direction"},
		),
		windowPeak: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "upload_window_peak_bytes",
				Help:      "Peak occupancy of the upload window in the most recent upload.",
			},
		),
		transfersActive: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "transfers_in_flight",
				Help:      "Uploads and downloads currently holding a transfer slot.",
			}, func() float64 { return float64(g.InFlight()) },
		),
		cacheEntries: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "content_type_cache_entries",
				Help:      "Entries held by the content type cache.",
			}, func() float64 { return float64(g.CacheEntries()) },
		),
		cacheProbes: prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "content_type_probes_total",
				Help:      "Content type probes run against stored files.",
			}, func() float64 { return float64(g.CacheProbes()) },
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.uploads.Describe(ch)
	c.uploadedBytes.Describe(ch)
	c.uploadedFiles.Describe(ch)
	c.downloads.Describe(ch)
	c.deliveredBytes.Describe(ch)
	c.duration.Describe(ch)
	c.windowPeak.Describe(ch)
	c.transfersActive.Describe(ch)
	c.cacheEntries.Describe(ch)
	c.cacheProbes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.uploads.Collect(ch)
	c.uploadedBytes.Collect(ch)
	c.uploadedFiles.Collect(ch)
	c.downloads.Collect(ch)
	c.deliveredBytes.Collect(ch)
	c.duration.Collect(ch)
	c.windowPeak.Collect(ch)
	c.transfersActive.Collect(ch)
	c.cacheEntries.Collect(ch)
	c.cacheProbes.Collect(ch)
}
