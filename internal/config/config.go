package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend types accepted in backend.type.
const (
	BackendRemote = "remote"
	BackendURL    = "url"
	BackendTinify = "tinify"
	BackendLocal  = "local"
)

// Config represents the main configuration structure
type Config struct {
	Backend                BackendConfig `mapstructure:"backend"`
	Output                 OutputConfig  `mapstructure:"output"`
	Session                SessionConfig `mapstructure:"session"`
	Batch                  BatchConfig   `mapstructure:"batch"`
	Marker                 MarkerConfig  `mapstructure:"marker"`
	ImageExtensions        []string      `mapstructure:"image_extensions"`
	CompressibleExtensions []string      `mapstructure:"compressible_extensions"`
	Logging                LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// BackendConfig selects and configures the compression backend
type BackendConfig struct {
	Type         string        `mapstructure:"type"`
	BaseURL      string        `mapstructure:"base_url"`
	CompressPath string        `mapstructure:"compress_path"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Quality      int           `mapstructure:"quality"`   // local only
	Threshold    float64       `mapstructure:"threshold"` // local only
}

// OutputConfig controls derived output file names
type OutputConfig struct {
	Suffix string `mapstructure:"suffix"`
	Prefix string `mapstructure:"prefix"`
}

// SessionConfig holds the scratch directory used when no destination applies
type SessionConfig struct {
	Root string `mapstructure:"root"`
}

// BatchConfig contains batch processing settings
type BatchConfig struct {
	ContinueOnError bool `mapstructure:"continue_on_error"`
	SkipMarked      bool `mapstructure:"skip_marked"`
}

// MarkerConfig controls the EXIF Software tag written to locally compressed JPEGs
type MarkerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Software string `mapstructure:"software"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Format     string `mapstructure:"format"` // text or json
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Type:         BackendRemote,
			CompressPath: "/api/tasks/images/compressions",
			Timeout:      60 * time.Second,
			Quality:      80,
			Threshold:    1.0,
		},
		Output: OutputConfig{
			Suffix: "_compressed",
		},
		Session: SessionConfig{
			Root: filepath.Join(os.TempDir(), "image-shrink"),
		},
		Marker: MarkerConfig{
			Enabled:  false,
			Software: "ImageShrink Compressed",
		},
		ImageExtensions:        []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg"},
		CompressibleExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
			Format:     "text",
		},
	}
}

// LoadConfig loads configuration from file, .env and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-shrink")
		v.AddConfigPath("/etc/image-shrink")
	}

	v.SetEnvPrefix("IMAGE_SHRINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.File = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers the keys that may come only from the environment, since
// AutomaticEnv alone does not feed Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"backend.type",
		"backend.base_url",
		"backend.compress_path",
		"backend.api_key",
		"backend.timeout",
		"session.root",
		"batch.continue_on_error",
		"logging.level",
		"logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !IsValidBackendType(c.Backend.Type) {
		return fmt.Errorf("invalid backend type: %s (valid: remote, url, tinify, local)", c.Backend.Type)
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")

	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Backend.Quality <= 0 || c.Backend.Quality > 100 {
		c.Backend.Quality = 80
	}
	if c.Backend.Threshold <= 0 {
		c.Backend.Threshold = 1.0
	}

	// the suffix alone keeps derived sibling names apart from their source
	if c.Output.Suffix == "" {
		return fmt.Errorf("output.suffix cannot be empty")
	}

	if c.Session.Root == "" {
		c.Session.Root = filepath.Join(os.TempDir(), "image-shrink")
	}

	c.ImageExtensions = normalizeExtensions(c.ImageExtensions)
	c.CompressibleExtensions = normalizeExtensions(c.CompressibleExtensions)

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}

// IsValidBackendType reports whether name is a known backend.type value
func IsValidBackendType(name string) bool {
	switch name {
	case BackendRemote, BackendURL, BackendTinify, BackendLocal:
		return true
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
