package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Upload   UploadConfig   `yaml:"upload" json:"upload"`
	Delivery DeliveryConfig `yaml:"delivery" json:"delivery"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Client   ClientConfig   `yaml:"client" json:"client"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Address                string        `yaml:"address" json:"address"`
	Port                   int           `yaml:"port" json:"port"`
	ReadHeaderTimeout      time.Duration `yaml:"readHeaderTimeout" json:"readHeaderTimeout"`
	IdleTimeout            time.Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout        time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxConcurrentTransfers int64         `yaml:"maxConcurrentTransfers" json:"maxConcurrentTransfers"`
	// QueueTimeout bounds how long a transfer waits for a free slot.
	QueueTimeout           time.Duration `yaml:"queueTimeout" json:"queueTimeout"`
}

// StorageConfig holds the storage root. An empty Dir selects the first usable
// fallback: ~/.filetransfer/storage, then ./transfer_storage.
type StorageConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// UploadConfig holds multipart ingestion settings
type UploadConfig struct {
	BufferSize       int    `yaml:"bufferSize" json:"bufferSize"`
	ProgressInterval int64  `yaml:"progressInterval" json:"progressInterval"`
	MaxBodyBytes     int64  `yaml:"maxBodyBytes" json:"maxBodyBytes"`
	FilenameDecoding string `yaml:"filenameDecoding" json:"filenameDecoding"`
}

// DeliveryConfig holds download settings
type DeliveryConfig struct {
	ZeroCopy bool `yaml:"zeroCopy" json:"zeroCopy"`
}

// MetricsConfig holds prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// ClientConfig holds settings used by the CLI client commands
type ClientConfig struct {
	ServerURL string        `yaml:"serverUrl" json:"serverUrl"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

const (
	DefaultBufferSize       = 64 * 1024
	MinBufferSize           = 1024
	DefaultProgressInterval = 10 * 1024 * 1024
)

// DefaultConfig Default configuration values
var DefaultConfig = Config{
	Server: ServerConfig{
		Address:                "0.0.0.0",
		Port:                   8080,
		ReadHeaderTimeout:      10 * time.Second,
		IdleTimeout:            2 * time.Minute,
		ShutdownTimeout:        15 * time.Second,
		MaxConcurrentTransfers: 64,
		QueueTimeout:           30 * time.Second,
	},
	Upload: UploadConfig{
		BufferSize:       DefaultBufferSize,
		ProgressInterval: DefaultProgressInterval,
		MaxBodyBytes:     0, // unlimited
		FilenameDecoding: "heuristic",
	},
	Delivery: DeliveryConfig{
		ZeroCopy: true,
	},
	Metrics: MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	},
	Client: ClientConfig{
		ServerURL: "http://127.0.0.1:8080",
		Timeout:   0, // transfers may be long; no overall deadline
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stdout",
	},
}

// LoadConfig loads configuration from multiple sources in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file (explicit path first, then the search list)
// 3. Default values (lowest precedence)
func LoadConfig(explicitPath string) (*Config, string, error) {
	config := DefaultConfig

	path, err := loadFromFile(&config, explicitPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if e := loadFromEnv(&config); e != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", e)
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(config *Config, explicitPath string) (string, error) {
	if explicitPath != "" {
		if err := readInto(config, explicitPath); err != nil {
			return "", err
		}
		return explicitPath, nil
	}

	configPaths := []string{
		os.Getenv("FILETRANSFER_CONFIG_PATH"), // Custom path from environment
		"./config.yaml",                       // Current directory
		"./config/filetransfer.yaml",          // Config subdirectory
		"/etc/filetransfer/config.yaml",       // System-wide
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		if err := readInto(config, path); err != nil {
			return "", err
		}
		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

func readInto(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) error {
	// Server config
	if val := os.Getenv("FILETRANSFER_SERVER_ADDRESS"); val != "" {
		config.Server.Address = val
	}
	if val := os.Getenv("FILETRANSFER_SERVER_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("FILETRANSFER_SERVER_PORT: %w", err)
		}
		config.Server.Port = port
	}
	if val := os.Getenv("FILETRANSFER_SHUTDOWN_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			config.Server.ShutdownTimeout = timeout
		}
	}
	if val := os.Getenv("FILETRANSFER_MAX_CONCURRENT_TRANSFERS"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Server.MaxConcurrentTransfers = n
		}
	}

	if val := os.Getenv("FILETRANSFER_QUEUE_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			config.Server.QueueTimeout = timeout
		}
	}

	// Storage config
	if val := os.Getenv("FILETRANSFER_STORAGE_DIR"); val != "" {
		config.Storage.Dir = val
	}

	// Upload config
	if val := os.Getenv("FILETRANSFER_BUFFER_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.Upload.BufferSize = size
		}
	}
	if val := os.Getenv("FILETRANSFER_PROGRESS_INTERVAL"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Upload.ProgressInterval = n
		}
	}
	if val := os.Getenv("FILETRANSFER_MAX_BODY_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Upload.MaxBodyBytes = n
		}
	}
	if val := os.Getenv("FILETRANSFER_FILENAME_DECODING"); val != "" {
		config.Upload.FilenameDecoding = val
	}

	// Delivery config
	if val := os.Getenv("FILETRANSFER_ZERO_COPY"); val != "" {
		config.Delivery.ZeroCopy = val == "true" || val == "1"
	}

	// Metrics config
	if val := os.Getenv("FILETRANSFER_METRICS_ENABLED"); val != "" {
		config.Metrics.Enabled = val == "true" || val == "1"
	}

	// Client config
	if val := os.Getenv("FILETRANSFER_SERVER_URL"); val != "" {
		config.Client.ServerURL = val
	}

	// Logging config
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxConcurrentTransfers < 1 {
		return fmt.Errorf("invalid max concurrent transfers: %d", c.Server.MaxConcurrentTransfers)
	}

	if c.Server.QueueTimeout < 0 {
		return fmt.Errorf("invalid queue timeout: %s", c.Server.QueueTimeout)
	}

	if c.Upload.BufferSize < MinBufferSize {
		return fmt.Errorf("upload buffer size must be at least %d bytes: %d", MinBufferSize, c.Upload.BufferSize)
	}

	if c.Upload.ProgressInterval < 1 {
		return fmt.Errorf("invalid progress interval: %d", c.Upload.ProgressInterval)
	}

	if c.Upload.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid max body bytes: %d", c.Upload.MaxBodyBytes)
	}

	switch c.Upload.FilenameDecoding {
	case "heuristic", "strict":
	default:
		return fmt.Errorf("invalid filename decoding mode: %s", c.Upload.FilenameDecoding)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %s", c.Metrics.Path)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// StorageCandidates returns the storage directories to try in order. An
// empty home skips the per-user fallback.
func (c *Config) StorageCandidates(home string) []string {
	var candidates []string
	if c.Storage.Dir != "" {
		candidates = append(candidates, c.Storage.Dir)
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, ".filetransfer", "storage"))
	}
	return append(candidates, filepath.Join(".", "transfer_storage"))
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) SaveToFile(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GenerateDefaultConfig creates a default configuration file
func GenerateDefaultConfig(path string) error {
	config := DefaultConfig
	return config.SaveToFile(path)
}

// IsDevelopmentMode returns true if running in development mode
func (c *Config) IsDevelopmentMode() bool {
	return strings.EqualFold(c.Logging.Level, "DEBUG")
}
