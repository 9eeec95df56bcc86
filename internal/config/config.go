// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends accepted by the uploads and notebooks sections.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Drive     DriveConfig     `mapstructure:"drive"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Notebooks NotebooksConfig `mapstructure:"notebooks"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Events    EventsConfig    `mapstructure:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Client    ClientConfig    `mapstructure:"client"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	FrontendURL     string        `mapstructure:"frontend_url"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DriveConfig points notebook creation at a parent folder.
type DriveConfig struct {
	ParentFolderID string `mapstructure:"parent_folder_id"`
	// Endpoint overrides the Drive API base URL (emulators, tests).
	Endpoint string `mapstructure:"endpoint"`
	// MaxRPS caps Drive calls per access token. Zero or less disables the cap.
	MaxRPS float64 `mapstructure:"max_rps"`
	Burst  int     `mapstructure:"burst"`
}

// ProgressConfig tunes the in-memory operation store.
type ProgressConfig struct {
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// UploadsConfig selects and bounds audio file storage.
type UploadsConfig struct {
	Backend      string        `mapstructure:"backend"`
	Dir          string        `mapstructure:"dir"`
	GCSBucket    string        `mapstructure:"gcs_bucket"`
	GCSPrefix    string        `mapstructure:"gcs_prefix"`
	MaxFileBytes int64         `mapstructure:"max_file_bytes"`
	MaxFiles     int           `mapstructure:"max_files"`
	Retention    time.Duration `mapstructure:"retention"`
}

// NotebooksConfig selects the notebook repository.
type NotebooksConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications go to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// EventsConfig sizes the progress event hub.
type EventsConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig toggles OpenTelemetry span recording.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ClientConfig is read by the CLI commands that talk to a running server.
type ClientConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	// SettleDelay is the pause after completion before reporting. Negative
	// disables it.
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESONA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT and GOOGLE_DRIVE_FOLDER_ID are honored for existing deployments.
	if err := v.BindEnv("server.port", "RESONA_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}
	if err := v.BindEnv("drive.parent_folder_id", "RESONA_DRIVE_PARENT_FOLDER_ID", "GOOGLE_DRIVE_FOLDER_ID"); err != nil {
		return Config{}, fmt.Errorf("bind drive env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("progress.grace_period", 30*time.Second)
	v.SetDefault("progress.sweep_interval", 10*time.Second)
	v.SetDefault("drive.max_rps", 8.0)
	v.SetDefault("drive.burst", 4)
	v.SetDefault("uploads.backend", BackendLocal)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.gcs_prefix", "uploads")
	v.SetDefault("uploads.max_file_bytes", 100<<20)
	v.SetDefault("uploads.max_files", 50)
	v.SetDefault("uploads.retention", 0)
	v.SetDefault("notebooks.driver", BackendSQLite)
	v.SetDefault("notebooks.sqlite_path", "resona.db")
	v.SetDefault("notebooks.max_conns", 4)
	v.SetDefault("notebooks.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("events.max_batch_events", 32)
	v.SetDefault("events.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "resona")
	v.SetDefault("logging.development", true)
	v.SetDefault("client.base_url", "http://localhost:3001")
	v.SetDefault("client.poll_interval", 500*time.Millisecond)
	v.SetDefault("client.poll_timeout", 5*time.Minute)
	v.SetDefault("client.settle_delay", 1500*time.Millisecond)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Progress.GracePeriod <= 0 {
		return fmt.Errorf("progress.grace_period must be > 0")
	}
	if c.Progress.SweepInterval <= 0 {
		return fmt.Errorf("progress.sweep_interval must be > 0")
	}
	switch c.Uploads.Backend {
	case BackendLocal:
		if c.Uploads.Dir == "" {
			return fmt.Errorf("uploads.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Uploads.GCSBucket == "" {
			return fmt.Errorf("uploads.gcs_bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("uploads.backend must be one of local, gcs, memory: %q", c.Uploads.Backend)
	}
	if c.Uploads.MaxFileBytes <= 0 {
		return fmt.Errorf("uploads.max_file_bytes must be > 0")
	}
	if c.Uploads.MaxFiles <= 0 {
		return fmt.Errorf("uploads.max_files must be > 0")
	}
	if c.Uploads.Retention < 0 {
		return fmt.Errorf("uploads.retention must be >= 0")
	}
	switch c.Notebooks.Driver {
	case BackendSQLite:
		if c.Notebooks.SQLitePath == "" {
			return fmt.Errorf("notebooks.sqlite_path is required for the sqlite driver")
		}
	case BackendPostgres:
		if c.Notebooks.DSN == "" {
			return fmt.Errorf("notebooks.dsn is required for the postgres driver")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("notebooks.driver must be one of sqlite, postgres, memory: %q", c.Notebooks.Driver)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// Origins returns the CORS allow-list: the configured origins plus the
// frontend URL.
func (c ServerConfig) Origins() []string {
	out := make([]string, 0, len(c.AllowedOrigins)+1)
	seen := make(map[string]bool)
	for _, o := range append([]string{c.FrontendURL}, c.AllowedOrigins...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}
