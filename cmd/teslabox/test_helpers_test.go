package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"teslabox/internal/archive"
	"teslabox/internal/config"
	"teslabox/internal/daemon"
	"teslabox/internal/queue"
	"teslabox/internal/stream"
	"teslabox/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	configPath string
}

type idleMonitor struct {
	*testsupport.StaticOracle
}

func (idleMonitor) Run(ctx context.Context) { <-ctx.Done() }

// setupCLITestEnv writes a config file for a fresh state directory. With
// withDaemon, a daemon backed by fake collaborators serves the API.
func setupCLITestEnv(t *testing.T, withDaemon bool) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml"),
	}

	if withDaemon {
		oracle := testsupport.NewStaticOracle(true)
		archives, err := archive.New(cfg, archive.Dependencies{
			Invoker: testsupport.NewFakeInvoker(),
			Store:   testsupport.NewFakeObjectStore(),
			Oracle:  oracle,
			Records: store,
			Journal: store,
		})
		if err != nil {
			t.Fatalf("archive.New: %v", err)
		}
		streams, err := stream.New(cfg, stream.Dependencies{
			Invoker:  testsupport.NewFakeInvoker(),
			Store:    testsupport.NewFakeObjectStore(),
			Oracle:   oracle,
			Registry: store,
			Journal:  store,
		})
		if err != nil {
			t.Fatalf("stream.New: %v", err)
		}
		d, err := daemon.New(cfg, daemon.Components{
			Archives: archives,
			Streams:  streams,
			Monitor:  idleMonitor{oracle},
		}, nil)
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("daemon start: %v", err)
		}
		t.Cleanup(d.Stop)
		env.daemon = d
		cfg.Paths.APIBind = d.Status().APIAddress
	}

	writeTestConfig(t, env.configPath, cfg)
	return env
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nram_dir = %q\nstate_dir = %q\nlog_dir = %q\nicon_file = %q\nfont_file = %q\napi_bind = %q\n\n[car]\nname = %q\n\n[liveness]\ntarget = \"127.0.0.1:1\"\n",
		cfg.Paths.RamDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.IconFile,
		cfg.Paths.FontFile,
		cfg.Paths.APIBind,
		cfg.Car.Name,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
