package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shotspool/shotspool/pkg/logging"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCollectorURL   = "http://127.0.0.1:8000/upload"
	DefaultInterval       = 60 * time.Second
	DefaultTick           = 100 * time.Millisecond
	DefaultImageFormat    = "jpeg"
	DefaultJPEGQuality    = 85
	DefaultLocalCopyDir   = "local_screenshots"
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 5 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultSpoolDir       = "spool"
	DefaultMaxSpoolFiles  = 1000
	DefaultRetention      = 24 * time.Hour
	DefaultSweepInterval  = 60 * time.Second
	DefaultNotifyCooldown = 15 * time.Minute
)

// Schedule modes accepted by agent.schedule.
const (
	SchedulePrecise    = "precise"
	ScheduleBestEffort = "best_effort"
)

// Config is the top-level configuration file. Only the agent: section is read
// by shotspool-agent; the collector has its own file.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings. It is read once at startup and
// replaced only through the driver's reload command.
type AgentConfig struct {
	// CollectorURL is the upload endpoint (POST multipart).
	CollectorURL string `yaml:"collector_url"`

	// HealthURL is the collector health endpoint. Derived from CollectorURL
	// (path replaced with /health) when empty.
	HealthURL string `yaml:"health_url"`

	// SourceID identifies this machine to the collector. Defaults to the
	// sanitized hostname.
	SourceID string `yaml:"source_id"`

	// Interval is the capture period.
	Interval time.Duration `yaml:"interval"`

	// Schedule is one of: precise | best_effort.
	// precise fires at lastFire+Interval; best_effort waits Interval after
	// each cycle completes.
	Schedule string `yaml:"schedule"`

	// Tick is the loop's poll granularity. It bounds how long a stop request
	// can go unnoticed while idle.
	Tick time.Duration `yaml:"tick"`

	Image     ImageConfig     `yaml:"image"`
	LocalCopy LocalCopyConfig `yaml:"local_copy"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Spool     SpoolConfig     `yaml:"spool"`

	// Auth configures how the agent authenticates to the collector.
	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`

	Control ControlConfig  `yaml:"control"`
	Logging logging.Config `yaml:"logging"`
	Notify  NotifyConfig   `yaml:"notify"`
}

// ImageConfig selects the encoding handed to the capture encoder.
type ImageConfig struct {
	// Format is one of: jpeg | png.
	Format string `yaml:"format"`

	// Quality is the JPEG quality (1–100). Ignored for png.
	Quality int `yaml:"quality"`
}

// Ext returns the file extension, including the dot, for the image format.
func (i ImageConfig) Ext() string {
	if strings.EqualFold(i.Format, "png") {
		return ".png"
	}
	return ".jpg"
}

// LocalCopyConfig controls the optional local copy written every cycle.
type LocalCopyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DeliveryConfig bounds each upload.
type DeliveryConfig struct {
	// MaxRetries is the number of retries after the first attempt; a
	// permanently failing collector sees MaxRetries+1 attempts per item.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout applies to every probe and upload request.
	Timeout time.Duration `yaml:"timeout"`
}

// SpoolConfig configures the local holding area for undelivered captures.
type SpoolConfig struct {
	Dir           string        `yaml:"dir"`
	MaxFiles      int           `yaml:"max_files"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ControlConfig configures the local control API. Disabled when ListenAddr
// is empty.
type ControlConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// NotifyConfig lists webhook targets for spool eviction and I/O failure events.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// Cooldown suppresses repeat notifications of the same event kind.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// AuthConfig specifies how requests to the collector are authenticated.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header carrying the API key. Defaults to X-API-Key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns the API key header name, defaulting to X-API-Key.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "X-API-Key"
	}
	return a.Header
}

// TLSConfig holds TLS dial options for the collector connection.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// HealthEndpoint returns HealthURL, or CollectorURL with its path replaced by
// /health when HealthURL is unset.
func (a AgentConfig) HealthEndpoint() string {
	if a.HealthURL != "" {
		return a.HealthURL
	}
	u, err := url.Parse(a.CollectorURL)
	if err != nil {
		return ""
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String()
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	finalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the built-in defaults when
// the file is missing or unusable. The failure is logged at warn level.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err == nil {
		return cfg
	}
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: file not found, using defaults", "path", path)
	} else {
		slog.Warn("config: load failed, using defaults", "path", path, "err", err)
	}
	cfg = Defaults()
	finalize(cfg)
	return cfg
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			CollectorURL: DefaultCollectorURL,
			Interval:     DefaultInterval,
			Schedule:     SchedulePrecise,
			Tick:         DefaultTick,
			Image: ImageConfig{
				Format:  DefaultImageFormat,
				Quality: DefaultJPEGQuality,
			},
			LocalCopy: LocalCopyConfig{Dir: DefaultLocalCopyDir},
			Delivery: DeliveryConfig{
				MaxRetries: DefaultMaxRetries,
				RetryDelay: DefaultRetryDelay,
				Timeout:    DefaultTimeout,
			},
			Spool: SpoolConfig{
				Dir:           DefaultSpoolDir,
				MaxFiles:      DefaultMaxSpoolFiles,
				Retention:     DefaultRetention,
				SweepInterval: DefaultSweepInterval,
			},
			Logging: logging.Config{Level: "info"},
			Notify:  NotifyConfig{Cooldown: DefaultNotifyCooldown},
		},
	}
}

// finalize fills values that depend on the environment rather than constants.
func finalize(cfg *Config) {
	if cfg.Agent.SourceID == "" {
		cfg.Agent.SourceID = DefaultSourceID()
	} else {
		cfg.Agent.SourceID = SanitizeSource(cfg.Agent.SourceID)
	}
	cfg.Agent.Image.Format = strings.ToLower(cfg.Agent.Image.Format)
	if cfg.Agent.Image.Format == "jpg" {
		cfg.Agent.Image.Format = "jpeg"
	}
}

// DefaultSourceID returns the sanitized hostname, or unknown-<8 hex> when the
// hostname cannot be read.
func DefaultSourceID() string {
	if h, err := os.Hostname(); err == nil {
		if s := SanitizeSource(h); s != "" {
			return s
		}
	}
	return "unknown-" + uuid.NewString()[:8]
}

// SanitizeSource keeps ASCII letters, digits, '-' and '_'. The result is safe
// to embed in a spool or collector filename.
func SanitizeSource(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.CollectorURL == "" {
		return fmt.Errorf("agent.collector_url is required")
	}
	u, err := url.Parse(a.CollectorURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.collector_url %q must be an absolute http(s) URL", a.CollectorURL)
	}
	if a.Interval <= 0 {
		return fmt.Errorf("agent.interval must be positive")
	}
	if a.Tick <= 0 {
		return fmt.Errorf("agent.tick must be positive")
	}
	switch a.Schedule {
	case SchedulePrecise, ScheduleBestEffort:
	default:
		return fmt.Errorf("agent.schedule: unknown mode %q", a.Schedule)
	}
	switch a.Image.Format {
	case "jpeg", "png":
	default:
		return fmt.Errorf("agent.image.format: unknown format %q", a.Image.Format)
	}
	if a.Image.Format == "jpeg" && (a.Image.Quality < 1 || a.Image.Quality > 100) {
		return fmt.Errorf("agent.image.quality must be between 1 and 100")
	}
	if a.LocalCopy.Enabled && a.LocalCopy.Dir == "" {
		return fmt.Errorf("agent.local_copy.dir is required when local_copy is enabled")
	}
	if a.Delivery.MaxRetries < 0 {
		return fmt.Errorf("agent.delivery.max_retries must not be negative")
	}
	if a.Delivery.RetryDelay < 0 {
		return fmt.Errorf("agent.delivery.retry_delay must not be negative")
	}
	if a.Delivery.Timeout <= 0 {
		return fmt.Errorf("agent.delivery.timeout must be positive")
	}
	if a.Spool.Dir == "" {
		return fmt.Errorf("agent.spool.dir is required")
	}
	if a.Spool.MaxFiles <= 0 {
		return fmt.Errorf("agent.spool.max_files must be positive")
	}
	if a.Spool.Retention <= 0 {
		return fmt.Errorf("agent.spool.retention must be positive")
	}
	if a.Spool.SweepInterval <= 0 {
		return fmt.Errorf("agent.spool.sweep_interval must be positive")
	}
	switch a.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("agent.auth: unknown mode %q", a.Auth.Mode)
	}
	for i, wh := range a.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("agent.notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	if err := a.Logging.Validate(); err != nil {
		return fmt.Errorf("agent.logging: %w", err)
	}
	return nil
}
