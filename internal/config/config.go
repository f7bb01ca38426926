// Package config loads runtime configuration from TOML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:8080"
	DefaultDBFileName  = "sentiq.db"
	DefaultBlobDirName = "blobs"
	DefaultLogLevel    = "info"

	DefaultMaxUploadBytes     int64 = 16 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024
	DefaultWorkers                  = 4

	ClassifierModeLexicon = "lexicon"
	ClassifierModeRemote  = "remote"

	configPathEnvKey = "SENTIQ_CONFIG"
	apiURLEnvKey     = "SENTIQ_API_URL"
	dbPathEnvKey     = "SENTIQ_DB"
	blobRootEnvKey   = "SENTIQ_BLOB_ROOT"
	logLevelEnvKey   = "SENTIQ_LOG_LEVEL"
	endpointEnvKey   = "SENTIQ_CLASSIFIER_ENDPOINT"

	configFileName = "sentiq.toml"
)

// UploadConfig bounds the ingestion path.
type UploadConfig struct {
	MaxUploadBytes     int64 `toml:"max_upload_bytes"`
	MultipartMaxMemory int64 `toml:"multipart_max_memory"`
}

// ProcessingConfig tunes the pipeline and its workers.
type ProcessingConfig struct {
	Workers       int    `toml:"workers"`
	CommentColumn string `toml:"comment_column"`
	LabelColumn   string `toml:"label_column"`
}

// ClassifierConfig selects and configures the classifier backend.
type ClassifierConfig struct {
	Mode           string `toml:"mode"`
	LexiconPath    string `toml:"lexicon_path"`
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ThemeMapPath   string `toml:"theme_map_path"`
}

// Config defines runtime configuration for sentiq.
type Config struct {
	APIURL     string           `toml:"api_url"`
	DBPath     string           `toml:"db_path"`
	BlobRoot   string           `toml:"blob_root"`
	LogLevel   string           `toml:"log_level"`
	Upload     UploadConfig     `toml:"upload"`
	Processing ProcessingConfig `toml:"processing"`
	Classifier ClassifierConfig `toml:"classifier"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Upload: UploadConfig{
			MaxUploadBytes:     DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
		},
		Processing: ProcessingConfig{
			Workers: DefaultWorkers,
		},
		Classifier: ClassifierConfig{
			Mode: ClassifierModeLexicon,
		},
	}
}

// Load reads config from the config file (if present) and applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv(configPathEnvKey))
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(cwd, configFileName)
		}
	}
	if path != "" {
		if _, err := loadFileIfExists(path, &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if blobRoot := os.Getenv(blobRootEnvKey); blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}
	if level := os.Getenv(logLevelEnvKey); level != "" {
		cfg.LogLevel = level
	}
	if endpoint := os.Getenv(endpointEnvKey); endpoint != "" {
		cfg.Classifier.Endpoint = endpoint
	}

	if cfg.BlobRoot == "" {
		cfg.BlobRoot = filepath.Join(filepath.Dir(cfg.DBPath), DefaultBlobDirName)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Upload.MaxUploadBytes <= 0 {
		c.Upload.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Upload.MultipartMaxMemory <= 0 {
		c.Upload.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Processing.Workers <= 0 {
		c.Processing.Workers = DefaultWorkers
	}
	c.Classifier.Mode = strings.ToLower(strings.TrimSpace(c.Classifier.Mode))
	if c.Classifier.Mode == "" {
		c.Classifier.Mode = ClassifierModeLexicon
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Classifier.Mode {
	case ClassifierModeLexicon:
	case ClassifierModeRemote:
		if strings.TrimSpace(c.Classifier.Endpoint) == "" {
			return fmt.Errorf("classifier.endpoint is required when classifier.mode = %q", ClassifierModeRemote)
		}
	default:
		return fmt.Errorf("unknown classifier.mode %q (valid: %s, %s)", c.Classifier.Mode, ClassifierModeLexicon, ClassifierModeRemote)
	}
	if c.Classifier.TimeoutSeconds < 0 {
		return fmt.Errorf("classifier.timeout_seconds must be >= 0, got %d", c.Classifier.TimeoutSeconds)
	}
	return nil
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}
