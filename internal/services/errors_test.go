package services_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"

	"teslabox/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "archive", "concat", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"archive", "concat", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransientMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

type retryableErr struct{ retry bool }

func (e retryableErr) Error() string   { return "retryable" }
func (e retryableErr) Retryable() bool { return e.retry }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Classification
	}{
		{"no connection sentinel", services.ErrNoConnection, services.Transient},
		{"wrapped no connection", services.Wrap(services.ErrNoConnection, "archive", "publish", "offline", nil), services.Transient},
		{"transient marker", services.Wrap(services.ErrTransient, "storage", "put", "slow down", errors.New("503")), services.Transient},
		{"deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), services.Transient},
		{"connection reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, services.Transient},
		{"timed out", fmt.Errorf("dial: %w", syscall.ETIMEDOUT), services.Transient},
		{"no route", fmt.Errorf("dial: %w", syscall.EHOSTUNREACH), services.Transient},
		{"net timeout", timeoutErr{}, services.Transient},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", IsTemporary: true}, services.Transient},
		{"retryable", retryableErr{retry: true}, services.Transient},
		{"not retryable", retryableErr{retry: false}, services.Permanent},
		{"missing files", services.Wrap(services.ErrValidation, "archive", "render", "missing files", nil), services.Permanent},
		{"tool failure", services.Wrap(services.ErrExternalTool, "ffmpeg", "run", "exit status 1", errors.New("exit status 1")), services.Permanent},
		{"fs failure", &os.PathError{Op: "open", Path: "/mnt/ram/x", Err: syscall.ENOSPC}, services.Permanent},
		{"plain", errors.New("boom"), services.Permanent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsTransientNil(t *testing.T) {
	if services.IsTransient(nil) {
		t.Fatal("nil must not be transient")
	}
}
