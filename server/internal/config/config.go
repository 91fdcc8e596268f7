package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shotspool/shotspool/pkg/logging"
)

// Default values for the collector configuration.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8000
	DefaultStorageDir     = "received_screenshots"
	DefaultMaxUploadBytes = 32 << 20
)

// Config holds the collector configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all collector settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// MaxUploadBytes caps the request body of POST /upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	Auth    AuthConfig     `yaml:"auth"`
	Storage StorageConfig  `yaml:"storage"`
	Logging logging.Config `yaml:"logging"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// StorageConfig selects where uploads are written.
type StorageConfig struct {
	// Backend is one of: fs | s3.
	Backend string `yaml:"backend"`

	// Dir is the root directory for the fs backend.
	Dir string `yaml:"dir"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures the s3 backend. Credentials come from the default AWS
// chain (environment, shared config, instance role).
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	// Endpoint overrides the service URL for S3-compatible stores.
	Endpoint string `yaml:"endpoint"`

	UsePathStyle bool `yaml:"use_path_style"`
}

// Load reads and parses the config file at path, returning the collector configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			MaxUploadBytes: DefaultMaxUploadBytes,
			Storage: StorageConfig{
				Backend: "fs",
				Dir:     DefaultStorageDir,
			},
			Logging: logging.Config{Level: "info"},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", s.Port)
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	switch s.Storage.Backend {
	case "fs":
		if s.Storage.Dir == "" {
			return fmt.Errorf("server.storage.dir is required for the fs backend")
		}
	case "s3":
		if s.Storage.S3.Bucket == "" {
			return fmt.Errorf("server.storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want fs|s3", s.Storage.Backend)
	}
	if err := s.Logging.Validate(); err != nil {
		return fmt.Errorf("server.logging: %w", err)
	}
	return nil
}
