package liveness_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"teslabox/internal/config"
	"teslabox/internal/liveness"
)

func monitorFor(target string) *liveness.Monitor {
	cfg := config.Default()
	cfg.Liveness.Target = target
	cfg.Liveness.Interval = 1
	cfg.Liveness.Timeout = 1
	return liveness.NewMonitor(&cfg, nil)
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	m := monitorFor(srv.URL)
	if m.IsAlive() {
		t.Fatal("expected down before first probe")
	}
	if !m.Check(context.Background()) || !m.IsAlive() {
		t.Fatal("expected alive after successful probe")
	}
}

func TestHTTPProbeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	if monitorFor(srv.URL).Check(context.Background()) {
		t.Fatal("expected 5xx to count as down")
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	m := monitorFor(addr)
	if !m.Check(context.Background()) {
		t.Fatal("expected open port to be alive")
	}
	ln.Close()
	if m.Check(context.Background()) {
		t.Fatal("expected closed port to be down")
	}
}

func TestRunUpdatesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)

	m := monitorFor(strings.TrimSuffix(srv.URL, "/"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(3 * time.Second)
	for !m.IsAlive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !m.IsAlive() {
		t.Fatal("expected Run to mark target alive")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestStatic(t *testing.T) {
	var oracle liveness.Oracle = liveness.Static(true)
	if !oracle.IsAlive() {
		t.Fatal("expected static true")
	}
	if liveness.Static(false).IsAlive() {
		t.Fatal("expected static false")
	}
}
