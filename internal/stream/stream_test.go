package stream_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"teslabox/internal/camera"
	"teslabox/internal/config"
	"teslabox/internal/fileutil"
	"teslabox/internal/queue"
	"teslabox/internal/services"
	"teslabox/internal/storage"
	"teslabox/internal/stream"
	"teslabox/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	invoker *testsupport.FakeInvoker
	objects *testsupport.FakeObjectStore
	oracle  *testsupport.StaticOracle
}

func start(t *testing.T, opts ...testsupport.ConfigOption) (*harness, *stream.Pipeline) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		invoker: testsupport.NewFakeInvoker(),
		objects: testsupport.NewFakeObjectStore(),
		oracle:  testsupport.NewStaticOracle(true),
	}
	p, err := stream.New(cfg, stream.Dependencies{
		Invoker:  h.invoker,
		Store:    h.objects,
		Oracle:   h.oracle,
		Registry: h.store,
		Journal:  h.store,
	}, stream.WithRetryDelay(5*time.Millisecond))
	if err != nil {
		t.Fatalf("stream.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)
	return h, p
}

func (h *harness) request(t *testing.T, id string, angle camera.Angle) stream.Request {
	t.Helper()
	tempFile := filepath.Join(h.cfg.Paths.RamDir, "incoming-"+id+".mp4")
	testsupport.WriteFile(t, tempFile, 32)
	return stream.Request{
		ID:        id,
		Angle:     angle,
		Folder:    "2023-11-14_22-13-20",
		HWVersion: 4,
		Timestamp: 1700000000,
		TempFile:  tempFile,
	}
}

func waitIdle(t *testing.T, p *stream.Pipeline) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(p.Pending()) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pipeline still busy: %+v", p.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOutKey(t *testing.T) {
	got := stream.OutKey("Car", "2023-11-14_22-13-20", camera.Back)
	if want := "Car/streams/2023-11-14/2023-11-14_22-13-20-back.mp4"; got != want {
		t.Fatalf("OutKey = %q, want %q", got, want)
	}
}

func TestPushRejectsInvalidRequests(t *testing.T) {
	h, p := start(t)
	base := h.request(t, "clip", camera.Front)
	cases := map[string]func(*stream.Request){
		"id":        func(r *stream.Request) { r.ID = "" },
		"angle":     func(r *stream.Request) { r.Angle = "roof" },
		"folder":    func(r *stream.Request) { r.Folder = "" },
		"timestamp": func(r *stream.Request) { r.Timestamp = 0 },
		"temp file": func(r *stream.Request) { r.TempFile = "" },
	}
	for name, mutate := range cases {
		req := base
		mutate(&req)
		if err := p.Push(context.Background(), req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestStreamMovesClipWithoutUpload(t *testing.T) {
	h, p := start(t)
	req := h.request(t, "live-1", camera.Left)

	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitIdle(t, p)

	outFile := filepath.Join(h.cfg.Paths.RamDir, "left.mp4")
	if !fileutil.Exists(outFile) {
		t.Fatalf("expected %s to exist", outFile)
	}
	if fileutil.Exists(req.TempFile) {
		t.Fatal("expected temp file removed")
	}
	if names := testsupport.ListFiles(t, h.cfg.Paths.RamDir); len(names) != 1 {
		t.Fatalf("expected only the published clip, got %v", names)
	}
	if puts := h.objects.Puts(); len(puts) != 0 {
		t.Fatalf("expected no uploads without copy mode, got %+v", puts)
	}
	if h.oracle.Polls() != 0 {
		t.Fatal("liveness should not be consulted without copy mode")
	}

	entries, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Angle != "left" || entries[0].Folder != req.Folder {
		t.Fatalf("unexpected registry: %+v", entries)
	}

	if got := h.invoker.CallsMatching("scale=742:480"); got != 1 {
		t.Fatalf("expected medium HW4 tier, calls: %v", h.invoker.Calls())
	}
	if got := h.invoker.CallsMatching("TeslaBox TestCar (Left)"); got != 1 {
		t.Fatal("expected angle caption")
	}
	if got := h.invoker.CallsMatching("-crf 26"); got != 1 {
		t.Fatal("expected medium stream crf")
	}
}

func TestStreamCopyUploadsAfterReconnect(t *testing.T) {
	h, p := start(t, testsupport.WithStreamCopy())
	h.oracle.Set(false)
	req := h.request(t, "live-2", camera.Front)

	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.oracle.Polls() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("upload step never polled liveness")
		}
		time.Sleep(5 * time.Millisecond)
	}
	entries, err := p.List(context.Background())
	if err != nil || len(entries) != 1 {
		t.Fatalf("registry should update before upload: %+v, %v", entries, err)
	}

	h.oracle.Set(true)
	waitIdle(t, p)

	puts := h.objects.Puts()
	wantKey := "TestCar/streams/2023-11-14/2023-11-14_22-13-20-front.mp4"
	if len(puts) != 1 || puts[0].Key != wantKey || puts[0].ContentType != storage.ContentTypeMP4 {
		t.Fatalf("unexpected uploads: %+v", puts)
	}
	if names := testsupport.ListFiles(t, h.cfg.Paths.RamDir); len(names) != 1 || names[0] != "front.mp4" {
		t.Fatalf("expected only the published clip, got %v", names)
	}
}

func TestEncodeFailureCleansUp(t *testing.T) {
	h, p := start(t)
	h.invoker.FailWhen("-filter_complex", services.Wrap(services.ErrExternalTool, "ffmpeg", "run", "bad input", nil), 0)
	req := h.request(t, "live-3", camera.Back)

	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitIdle(t, p)

	if _, err := os.Stat(req.TempFile); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, stat err = %v", err)
	}
	entries, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed clip must not reach the registry: %+v", entries)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestUnremovableClipIsLoggedAndStreamCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	var logs lockedBuffer
	p, err := stream.New(cfg, stream.Dependencies{
		Invoker:  testsupport.NewFakeInvoker(),
		Store:    testsupport.NewFakeObjectStore(),
		Oracle:   testsupport.NewStaticOracle(true),
		Registry: store,
		Journal:  store,
		Logger:   slog.New(slog.NewJSONHandler(&logs, nil)),
	}, stream.WithRetryDelay(5*time.Millisecond))
	if err != nil {
		t.Fatalf("stream.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)

	// A non-empty directory cannot be removed with os.Remove.
	stuck := filepath.Join(cfg.Paths.RamDir, "stuck")
	testsupport.WriteFile(t, filepath.Join(stuck, "keep"), 1)
	req := stream.Request{
		ID:        "live-stuck",
		Angle:     camera.Front,
		Folder:    "2023-11-14_22-13-20",
		HWVersion: 3,
		Timestamp: 1700000000,
		TempFile:  stuck,
	}
	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitIdle(t, p)

	out := logs.String()
	if !strings.Contains(out, `"msg":"recorded clip not removed"`) || !strings.Contains(out, `"event_type":"cleanup_failed"`) {
		t.Fatalf("expected cleanup warning, got %s", out)
	}
	if !fileutil.Exists(filepath.Join(cfg.Paths.RamDir, "front.mp4")) {
		t.Fatal("expected the clip to be published despite the cleanup failure")
	}
}
