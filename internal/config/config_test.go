package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"teslabox/internal/config"
)

func clearStorageEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"S3_ENDPOINT", "AWS_DEFAULT_REGION", "AWS_REGION", "AWS_S3_BUCKET", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearStorageEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	ramDir := filepath.Join(t.TempDir(), "ram")
	t.Setenv("TESLABOX_RAM_DIR", ramDir)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "teslabox")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.RamDir != ramDir {
		t.Fatalf("expected ram dir from env, got %q", cfg.Paths.RamDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Car.Name != "TeslaBox" {
		t.Fatalf("unexpected car name: %q", cfg.Car.Name)
	}
	if cfg.Archive.Preset != "veryfast" || cfg.Stream.Preset != "veryfast" {
		t.Fatalf("unexpected presets: %q %q", cfg.Archive.Preset, cfg.Stream.Preset)
	}
	if cfg.SignedExpiry().Hours() != 168 {
		t.Fatalf("expected 7 day signed expiry, got %s", cfg.SignedExpiry())
	}
	if cfg.RetryDelay().Seconds() != 10 {
		t.Fatalf("expected 10s retry delay, got %s", cfg.RetryDelay())
	}
	if cfg.Workflow.MaxRetries != 0 {
		t.Fatalf("expected unbounded retries by default, got %d", cfg.Workflow.MaxRetries)
	}
	if cfg.Archive.SentryCinematic {
		t.Fatal("expected condensed sentry archives disabled by default")
	}
	if cfg.StorageConfigured() {
		t.Fatal("expected storage to be unconfigured without credentials")
	}
	if cfg.KafkaEnabled() {
		t.Fatal("expected kafka disabled without brokers")
	}
	if len(cfg.Notifications.Deliver) != 1 || cfg.Notifications.Deliver[0] != config.NotifyFullVideo {
		t.Fatalf("unexpected deliver list: %v", cfg.Notifications.Deliver)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "teslabox.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.RamDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearStorageEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "teslabox.toml")

	type payload struct {
		Car struct {
			Name string `toml:"name"`
		} `toml:"car"`
		Archive struct {
			SentryQuality   string `toml:"sentry_quality"`
			SentryCinematic bool   `toml:"sentry_cinematic"`
		} `toml:"archive"`
		Stream struct {
			Quality string `toml:"quality"`
			Copy    bool   `toml:"copy"`
		} `toml:"stream"`
		Workflow struct {
			RetryDelay int `toml:"retry_delay"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Car.Name = "Red Rocket"
	custom.Archive.SentryQuality = " HIGHEST "
	custom.Archive.SentryCinematic = true
	custom.Stream.Quality = "low"
	custom.Stream.Copy = true
	custom.Workflow.RetryDelay = 3
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Car.Name != "Red Rocket" {
		t.Fatalf("expected car name from file, got %q", cfg.Car.Name)
	}
	if cfg.Archive.SentryQuality != "highest" {
		t.Fatalf("expected normalized sentry quality, got %q", cfg.Archive.SentryQuality)
	}
	if cfg.Archive.DashcamQuality != "medium" {
		t.Fatalf("expected default dashcam quality, got %q", cfg.Archive.DashcamQuality)
	}
	if !cfg.Archive.SentryCinematic || !cfg.Stream.Copy {
		t.Fatal("expected boolean overrides to apply")
	}
	if cfg.Workflow.RetryDelay != 3 {
		t.Fatalf("expected retry delay 3, got %d", cfg.Workflow.RetryDelay)
	}
}

func TestStorageEnvFallbacks(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AWS_ACCESS_KEY_ID", "env-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")
	t.Setenv("AWS_S3_BUCKET", "env-bucket")
	t.Setenv("S3_ENDPOINT", "https://minio.local:9000")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.StorageConfigured() {
		t.Fatal("expected storage configured from env")
	}
	if cfg.Storage.Bucket != "env-bucket" || cfg.Storage.Region != "eu-west-1" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Storage.Endpoint != "https://minio.local:9000" {
		t.Fatalf("unexpected endpoint: %q", cfg.Storage.Endpoint)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[archive]") {
		t.Fatalf("sample config missing archive section: %s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Paths.RamDir != "/mnt/ram" {
		t.Fatalf("expected sample ram dir, got %q", cfg.Paths.RamDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown quality", func(c *config.Config) { c.Stream.Quality = "ultra" }},
		{"zero cinematic frames", func(c *config.Config) { c.Archive.CinematicFrames = 0 }},
		{"zero liveness interval", func(c *config.Config) { c.Liveness.Interval = 0 }},
		{"negative max retries", func(c *config.Config) { c.Workflow.MaxRetries = -1 }},
		{"partial storage", func(c *config.Config) { c.Storage.Bucket = "only-bucket" }},
		{"intake without brokers", func(c *config.Config) { c.Kafka.Intake = true }},
		{"missing liveness target", func(c *config.Config) { c.Liveness.Target = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
