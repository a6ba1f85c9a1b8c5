package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIURL is where the RAG backend listens in a local setup
	DefaultAPIURL = "http://localhost:8000"

	DefaultChunkSize   = 400
	DefaultOverlapSize = 20
	DefaultSearchLimit = 5

	// MaxProjectNameLength bounds project names
	MaxProjectNameLength = 255
)

// Config is the application configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Processing ProcessingConfig `yaml:"processing"`
}

// APIConfig configures the backend client
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout of zero means requests never time out on their own
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig configures the local database holding the stores
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	File     string `yaml:"file"`
}

// ProcessingConfig holds the defaults used when indexing documents
type ProcessingConfig struct {
	ChunkSize   int  `yaml:"chunk_size"`
	OverlapSize int  `yaml:"overlap_size"`
	DoReset     bool `yaml:"do_reset"`
	AutoIndex   bool `yaml:"auto_index"`
	SearchLimit int  `yaml:"search_limit"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	dir := DataDir()
	return &Config{
		API: APIConfig{
			BaseURL: DefaultAPIURL,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dir, "docuchat.db"),
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
			File:     filepath.Join(dir, "docuchat.log"),
		},
		Processing: ProcessingConfig{
			ChunkSize:   DefaultChunkSize,
			OverlapSize: DefaultOverlapSize,
			SearchLimit: DefaultSearchLimit,
		},
	}
}

// DataDir is ~/.docuchat, or the working directory if home is unknown
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docuchat"
	}
	return filepath.Join(home, ".docuchat")
}

// Load builds the config from defaults, an optional YAML file, a .env file
// in the working directory and DOCUCHAT_* environment variables, in that
// order of precedence (later wins). An empty path skips the YAML file; a
// missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.API.BaseURL = getEnv("DOCUCHAT_API_URL", cfg.API.BaseURL)
	cfg.Storage.DBPath = getEnv("DOCUCHAT_DB_PATH", cfg.Storage.DBPath)
	cfg.Log.Level = getEnv("DOCUCHAT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("DOCUCHAT_LOG_FILE", cfg.Log.File)

	if v := os.Getenv("DOCUCHAT_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DOCUCHAT_API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}
	if v := os.Getenv("DOCUCHAT_AUTO_INDEX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DOCUCHAT_AUTO_INDEX: %w", err)
		}
		cfg.Processing.AutoIndex = b
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks the config for values the rest of the program cannot use
func (c *Config) Validate() error {
	return validation.Errors{
		"api":        c.API.Validate(),
		"storage":    validation.ValidateStruct(&c.Storage, validation.Field(&c.Storage.DBPath, validation.Required)),
		"log":        validation.ValidateStruct(&c.Log, validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error"))),
		"processing": c.Processing.Validate(),
	}.Filter()
}

// Validate checks the API section
func (a APIConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BaseURL, validation.Required),
		validation.Field(&a.Timeout, validation.Min(time.Duration(0))),
	)
}

// Validate checks the processing defaults
func (p ProcessingConfig) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&p.OverlapSize, validation.Min(0)),
		validation.Field(&p.SearchLimit, validation.Min(0)),
	)
	if err != nil {
		return err
	}
	if p.OverlapSize >= p.ChunkSize {
		return errors.New("overlap_size must be smaller than chunk_size")
	}
	return nil
}
