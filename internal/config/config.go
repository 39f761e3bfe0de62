package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	RamDir   string `toml:"ram_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	IconFile string `toml:"icon_file"`
	FontFile string `toml:"font_file"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Car identifies the vehicle in captions and object keys.
type Car struct {
	Name string `toml:"name"`
}

// Archive contains configuration for the event archive pipeline.
type Archive struct {
	DashcamQuality    string `toml:"dashcam_quality"`
	SentryQuality     string `toml:"sentry_quality"`
	SentryCinematic   bool   `toml:"sentry_cinematic"`
	Preset            string `toml:"preset"`
	SignedExpiryHours int    `toml:"signed_expiry_hours"`
	CinematicFrames   int    `toml:"cinematic_frames"`
	CinematicDuration int    `toml:"cinematic_duration"`
}

// Stream contains configuration for the live stream pipeline.
type Stream struct {
	Quality string `toml:"quality"`
	Copy    bool   `toml:"copy"`
	Preset  string `toml:"preset"`
}

// Storage contains S3 or S3-compatible object store settings.
type Storage struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string   `toml:"ntfy_topic"`
	RequestTimeout int      `toml:"request_timeout"`
	Deliver        []string `toml:"deliver"`
}

// Kafka contains broker settings for the event publisher and job intake.
type Kafka struct {
	Brokers      []string `toml:"brokers"`
	EventsTopic  string   `toml:"events_topic"`
	ArchiveTopic string   `toml:"archive_topic"`
	StreamTopic  string   `toml:"stream_topic"`
	GroupID      string   `toml:"group_id"`
	Intake       bool     `toml:"intake"`
}

// Liveness contains configuration for the connectivity probe.
type Liveness struct {
	Target   string `toml:"target"`
	Interval int    `toml:"interval"`
	Timeout  int    `toml:"timeout"`
}

// Workflow contains retry tuning shared by both pipelines.
type Workflow struct {
	RetryDelay int `toml:"retry_delay"`
	MaxRetries int `toml:"max_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for TeslaBox.
//
// Configuration sections by subsystem:
//   - Paths: ram/state/log directories, overlay assets, API bind address
//   - Car: caption label and object key prefix
//   - Archive: quality tiers, condensed mode and scene sampling
//   - Stream: live clip quality and remote copy
//   - Storage: object store endpoint and credentials
//   - Notifications: ntfy push settings
//   - Kafka: event publishing and optional job intake
//   - Liveness: connectivity probe target and cadence
//   - Workflow: retry delay and limit
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Car           Car           `toml:"car"`
	Archive       Archive       `toml:"archive"`
	Stream        Stream        `toml:"stream"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Kafka         Kafka         `toml:"kafka"`
	Liveness      Liveness      `toml:"liveness"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/teslabox/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("teslabox.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RamDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding the job journal and result logs.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "teslabox.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "teslabox.lock")
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// RetryDelay returns the pipeline retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Workflow.RetryDelay) * time.Second
}

// SignedExpiry returns how long issued archive links stay valid.
func (c *Config) SignedExpiry() time.Duration {
	return time.Duration(c.Archive.SignedExpiryHours) * time.Hour
}

// StorageConfigured reports whether enough credentials exist to reach an object store.
func (c *Config) StorageConfigured() bool {
	s := c.Storage
	return s.AccessKey != "" && s.SecretKey != "" && s.Region != "" && s.Bucket != ""
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
