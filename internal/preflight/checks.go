package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"teslabox/internal/config"
	"teslabox/internal/deps"
	"teslabox/internal/liveness"
	"teslabox/internal/services"
)

// BucketChecker is the part of storage.Client the object store check uses.
type BucketChecker interface {
	Enabled() bool
	EnsureBucket(ctx context.Context) error
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFileReadable verifies that an overlay asset exists and can be opened.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckStorage verifies that the configured bucket is reachable.
func CheckStorage(ctx context.Context, store BucketChecker) Result {
	const name = "Object store"

	if store == nil || !store.Enabled() {
		return Result{Name: name, Passed: true, Detail: "Disabled (uploads are skipped)"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := store.EnsureBucket(checkCtx)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: "Bucket reachable"}
	case errors.Is(err, services.ErrNotFound):
		return Result{Name: name, Detail: "bucket not found"}
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Name: name, Detail: "bucket check timed out"}
	default:
		return Result{Name: name, Detail: err.Error()}
	}
}

// CheckConnectivity probes the liveness target once.
func CheckConnectivity(ctx context.Context, cfg *config.Config) Result {
	const name = "Connectivity"

	monitor := liveness.NewMonitor(cfg, nil)
	if monitor.Check(ctx) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Liveness.Target)}
	}
	return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (uploads will wait)", cfg.Liveness.Target)}
}

// CheckSystemDeps evaluates the binaries the pipelines execute. Both the
// daemon and the CLI status command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{deps.FFmpegRequirement(cfg.FFmpegBinary())})
}
