package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/menta2k/wine-sommelier/internal/logger"
)

// Timeout ceilings for backend calls
const (
	AnalysisTimeout = 60 * time.Second
	ProbeTimeout    = 10 * time.Second
)

// Environment selects one of the compiled-in backend base URLs
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// baseURLs is fixed at build time; there is no runtime URL override
var baseURLs = map[Environment]string{
	Development: "http://localhost:5001",
	Production:  "https://api.winesommelier.app",
}

// BaseURL returns the backend base URL for an environment
func BaseURL(e Environment) (string, error) {
	u, ok := baseURLs[e]
	if !ok {
		return "", fmt.Errorf("unknown environment: %q", e)
	}
	return u, nil
}

// Config holds the application configuration
type Config struct {
	Environment Environment    `json:"environment"`
	LogLevel    string         `json:"log_level"`
	Capture     CaptureConfig  `json:"capture"`
	Analysis    AnalysisConfig `json:"analysis"`
	Vision      VisionConfig   `json:"vision"`
	Store       StoreConfig    `json:"store"`
}

// CaptureConfig holds configuration for the capture sources
type CaptureConfig struct {
	Quality      int    `json:"quality"`
	TransientDir string `json:"transient_dir"`
	MinImageSize int    `json:"min_image_size"`
	CropToAspect bool   `json:"crop_to_aspect"`
}

// AnalysisConfig holds configuration for the analysis client
type AnalysisConfig struct {
	// Profile is one of wine-image, image-file, inline-image, or vision
	Profile             string `json:"profile"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	ProbeTimeoutSeconds int    `json:"probe_timeout_seconds"`
	PersistLate         bool   `json:"persist_late"`
	InlineMaxDimension  int    `json:"inline_max_dimension"`
}

// VisionConfig holds configuration for talking to a vision model directly
type VisionConfig struct {
	Backend string `json:"backend"`
	URL     string `json:"url"`
	Model   string `json:"model"`
	Mode    string `json:"mode"`
	APIKey  string `json:"-"`
}

// StoreConfig holds configuration for result persistence
type StoreConfig struct {
	Backend      string `json:"backend"`
	Path         string `json:"path"`
	AzureAccount string `json:"azure_account,omitempty"`
	AzureKey     string `json:"-"`
	Container    string `json:"container,omitempty"`
}

// Overrides are read from the process environment after the file is loaded
type Overrides struct {
	ConfigPath   string `env:"SOMMELIER_CONFIG"`
	Environment  string `env:"SOMMELIER_ENVIRONMENT"`
	LogLevel     string `env:"LOG_LEVEL"`
	StoreBackend string `env:"SOMMELIER_STORE"`
	StorePath    string `env:"SOMMELIER_STORE_PATH"`
	AzureAccount string `env:"AZURE_STORAGE_ACCOUNT"`
	AzureKey     string `env:"AZURE_STORAGE_KEY"`
	VisionAPIKey string `env:"VISION_API_KEY"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Capture: CaptureConfig{
			Quality:      80,
			TransientDir: filepath.Join(os.TempDir(), "wine-sommelier"),
			MinImageSize: 64,
			CropToAspect: false,
		},
		Analysis: AnalysisConfig{
			Profile:             "wine-image",
			TimeoutSeconds:      int(AnalysisTimeout / time.Second),
			ProbeTimeoutSeconds: int(ProbeTimeout / time.Second),
			PersistLate:         false,
			InlineMaxDimension:  1536,
		},
		Vision: VisionConfig{
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   "llava",
			Mode:    "describe",
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    defaultStorePath(),
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the file named by SOMMELIER_CONFIG (or the default path when it
// exists) and applies environment overrides. A .env file in the working
// directory is merged into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Could not load .env file")
	}

	var ov Overrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	path := ov.ConfigPath
	if path == "" {
		path = GetConfigPath()
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if ov.ConfigPath != "" {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Apply(ov)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply copies non-empty overrides into the configuration
func (c *Config) Apply(ov Overrides) {
	if ov.Environment != "" {
		c.Environment = Environment(ov.Environment)
	}
	if ov.LogLevel != "" {
		c.LogLevel = ov.LogLevel
	}
	if ov.StoreBackend != "" {
		c.Store.Backend = ov.StoreBackend
	}
	if ov.StorePath != "" {
		c.Store.Path = ov.StorePath
	}
	if ov.AzureAccount != "" {
		c.Store.AzureAccount = ov.AzureAccount
	}
	if ov.AzureKey != "" {
		c.Store.AzureKey = ov.AzureKey
	}
	if ov.VisionAPIKey != "" {
		c.Vision.APIKey = ov.VisionAPIKey
	}
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := BaseURL(c.Environment); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality must be between 1 and 100")
	}

	if c.Capture.MinImageSize < 1 {
		return fmt.Errorf("capture.min_image_size must be positive")
	}

	if strings.TrimSpace(c.Capture.TransientDir) == "" {
		return fmt.Errorf("capture.transient_dir cannot be empty")
	}

	switch c.Analysis.Profile {
	case "wine-image", "image-file", "inline-image", "vision":
	default:
		return fmt.Errorf("analysis.profile %q is not supported", c.Analysis.Profile)
	}

	if c.Analysis.TimeoutSeconds < 1 || c.Analysis.ProbeTimeoutSeconds < 1 {
		return fmt.Errorf("analysis timeouts must be positive")
	}

	switch c.Vision.Mode {
	case "describe", "sommelier":
	default:
		return fmt.Errorf("vision.mode %q is not supported (use describe or sommelier)", c.Vision.Mode)
	}

	if c.Analysis.Profile == "vision" {
		switch c.Vision.Backend {
		case "ollama", "chat-completions":
		default:
			return fmt.Errorf("vision.backend %q is not supported", c.Vision.Backend)
		}
		if c.Vision.Model == "" {
			return fmt.Errorf("vision.model cannot be empty")
		}
	}

	switch c.Store.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path cannot be empty for the %s backend", c.Store.Backend)
		}
	case "azure":
		if c.Store.AzureAccount == "" || c.Store.Container == "" {
			return fmt.Errorf("store.azure_account and store.container are required for the azure backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}

	return nil
}

// BaseURL returns the backend base URL of the configured environment
func (c *Config) BaseURL() string {
	u, _ := BaseURL(c.Environment)
	return u
}

// AnalysisTimeout returns the analysis ceiling as a duration
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// ProbeTimeout returns the connectivity probe ceiling as a duration
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Analysis.ProbeTimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "wine-sommelier", "config.json")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "wine-sommelier")
}
