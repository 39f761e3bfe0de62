package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"teslabox/internal/config"
	"teslabox/internal/deps"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The ram, state and log directories exist and the overlay icon and font are
// placeholder files.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RamDir = filepath.Join(base, "ram")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.IconFile = filepath.Join(base, "assets", "favicon.ico")
	cfgVal.Paths.FontFile = filepath.Join(base, "assets", "FreeSans.ttf")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Car.Name = "TestCar"
	cfgVal.Workflow.RetryDelay = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	WriteFile(t, cfgVal.Paths.IconFile, 16)
	WriteFile(t, cfgVal.Paths.FontFile, 16)

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCarName overrides the car label.
func WithCarName(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Car.Name = name
	}
}

// WithSentryCinematic turns condensed mode on for sentry events.
func WithSentryCinematic() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Archive.SentryCinematic = true
	}
}

// WithStreamCopy turns on uploading of stream clips.
func WithStreamCopy() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stream.Copy = true
	}
}

// WithStorage fills complete object store credentials.
func WithStorage() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage = config.Storage{
			Region:    "us-east-1",
			Bucket:    "teslabox-test",
			AccessKey: "test",
			SecretKey: "test",
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, stubScript(name), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// stubScript exits 0. The ffmpeg stub also answers `-filters` with every
// filter the pipelines need so dependency checks pass.
func stubScript(name string) []byte {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	if name == "ffmpeg" {
		b.WriteString("if [ \"$2\" = \"-filters\" ]; then\n")
		for _, filter := range deps.RequiredFilters {
			fmt.Fprintf(&b, "  echo \" ... %-17s V->V       stub\"\n", filter)
		}
		b.WriteString("fi\n")
	}
	b.WriteString("exit 0\n")
	return []byte(b.String())
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
