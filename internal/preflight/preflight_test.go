package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"teslabox/internal/config"
	"teslabox/internal/services"
	"teslabox/internal/testsupport"
)

type bucketStub struct {
	enabled bool
	err     error
	calls   int
}

func (b *bucketStub) Enabled() bool { return b.enabled }

func (b *bucketStub) EnsureBucket(context.Context) error {
	b.calls++
	return b.err
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "font.ttf")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckFileReadable("font", f); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckFileReadable("font", dir); result.Passed {
		t.Fatal("expected failure for directory")
	}
	if result := CheckFileReadable("font", filepath.Join(dir, "missing.ttf")); result.Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestCheckStorage(t *testing.T) {
	cases := []struct {
		name   string
		stub   *bucketStub
		passed bool
		calls  int
	}{
		{"disabled", &bucketStub{}, true, 0},
		{"reachable", &bucketStub{enabled: true}, true, 1},
		{"missing bucket", &bucketStub{enabled: true, err: services.Wrap(services.ErrNotFound, "storage", "bucket", "gone", nil)}, false, 1},
		{"other error", &bucketStub{enabled: true, err: errors.New("access denied")}, false, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := CheckStorage(context.Background(), tc.stub)
			if result.Passed != tc.passed {
				t.Fatalf("passed = %v, want %v (%s)", result.Passed, tc.passed, result.Detail)
			}
			if tc.stub.calls != tc.calls {
				t.Fatalf("EnsureBucket calls = %d, want %d", tc.stub.calls, tc.calls)
			}
		})
	}
}

func TestCheckConnectivity(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Liveness.Target = listener.Addr().String()
	if result := CheckConnectivity(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected reachable target, got: %s", result.Detail)
	}

	listener.Close()
	if result := CheckConnectivity(context.Background(), cfg); result.Passed {
		t.Fatal("expected closed target to fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_TestConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(context.Background(), cfg, &bucketStub{})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ReportsMissingAssets(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RamDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.IconFile = filepath.Join(t.TempDir(), "missing.ico")
	cfg.Paths.FontFile = filepath.Join(t.TempDir(), "missing.ttf")

	failed := Failed(RunAll(context.Background(), &cfg, nil))
	if len(failed) != 2 {
		t.Fatalf("expected icon and font failures, got %+v", failed)
	}
}
