package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the dataroom configuration.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// IndexConfig holds OpenSearch connection and index settings.
type IndexConfig struct {
	Addresses  []string `yaml:"addresses"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	IndexName  string   `yaml:"index_name"`
	Shards     int      `yaml:"shards"`
	TimeoutSec int      `yaml:"timeout_sec"`
}

// CatalogConfig holds the schema catalog database settings.
type CatalogConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EmbeddingConfig holds the embedding service settings.
type EmbeddingConfig struct {
	ImageURL          string  `yaml:"image_url"`
	TextURL           string  `yaml:"text_url"`
	HeaderKey         string  `yaml:"header_key"`
	HeaderValue       string  `yaml:"header_value"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	IntervalSec        int      `yaml:"interval_sec"`
	BatchSize          int      `yaml:"batch_size"`
	MetricsPort        int      `yaml:"metrics_port"`
	DuplicateThreshold float64  `yaml:"duplicate_threshold"`
	DuplicateNeighbors int      `yaml:"duplicate_neighbors"`
	ExcludedSources    []string `yaml:"excluded_sources"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Index.IndexName == "" {
		c.Index.IndexName = "images"
	}
	if c.Index.Shards <= 0 {
		c.Index.Shards = 48
	}
	if c.Index.TimeoutSec <= 0 {
		c.Index.TimeoutSec = 55
	}
	if c.Catalog.MaxConns <= 0 {
		c.Catalog.MaxConns = 10
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "dataroom"
	}
	if c.Worker.IntervalSec <= 0 {
		c.Worker.IntervalSec = 60
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 500
	}
	if c.Worker.MetricsPort <= 0 {
		c.Worker.MetricsPort = 9090
	}
	if c.Worker.DuplicateThreshold <= 0 {
		c.Worker.DuplicateThreshold = 0.98
	}
	if c.Worker.DuplicateNeighbors <= 0 {
		c.Worker.DuplicateNeighbors = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if len(c.Index.Addresses) == 0 {
		return fmt.Errorf("index.addresses is required")
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}
	if c.Worker.DuplicateThreshold >= 1 {
		return fmt.Errorf("worker.duplicate_threshold must be below 1, got %g", c.Worker.DuplicateThreshold)
	}
	if c.Worker.MetricsPort > 65535 {
		return fmt.Errorf("worker.metrics_port must be between 1 and 65535, got %d", c.Worker.MetricsPort)
	}
	if (c.Embedding.HeaderKey == "") != (c.Embedding.HeaderValue == "") {
		return fmt.Errorf("embedding.header_key and embedding.header_value must be set together")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
