package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"teslabox/internal/config"
	"teslabox/internal/storage"
)

func configured(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.Storage = config.Storage{
		Endpoint:  endpoint,
		Region:    "us-east-1",
		Bucket:    "teslabox",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	}
	return &cfg
}

func TestNewDisabledWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	client, err := storage.New(&cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected disabled client")
	}
	if err := client.PutObject(context.Background(), "k", []byte("x"), storage.ContentTypeMP4); err != nil {
		t.Fatalf("disabled put should succeed, got %v", err)
	}
	link, err := client.SignedURL(context.Background(), "k", time.Hour)
	if err != nil || link != "" {
		t.Fatalf("disabled sign should return empty link, got %q %v", link, err)
	}
	if err := client.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("disabled bucket check should pass, got %v", err)
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	if _, err := storage.New(configured("ftp://files.example.com"), nil); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestSignedURLUsesPathStyle(t *testing.T) {
	client, err := storage.New(configured("http://minio.local:9000"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	link, err := client.SignedURL(context.Background(), "Car/archives/2026-01-01/2026-01-01_10-00-00-sentry.mp4", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if !strings.HasPrefix(link, "http://minio.local:9000/teslabox/Car/archives/2026-01-01/") {
		t.Fatalf("unexpected link: %s", link)
	}
	if !strings.Contains(link, "X-Amz-Expires=604800") || !strings.Contains(link, "X-Amz-Signature=") {
		t.Fatalf("expected presigned query, got %s", link)
	}
}

func TestPutObjectUploadsBytes(t *testing.T) {
	var (
		mu          sync.Mutex
		gotPath     string
		gotBody     string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotBody = string(body)
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := storage.New(configured(srv.URL), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := client.PutObject(context.Background(), "Car/streams/2026-01-01/clip-front.mp4", []byte("video-bytes"), ""); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/teslabox/Car/streams/2026-01-01/clip-front.mp4" {
		t.Fatalf("unexpected object path %q", gotPath)
	}
	if !strings.Contains(gotBody, "video-bytes") {
		t.Fatalf("expected body to carry payload, got %q", gotBody)
	}
	if contentType != storage.ContentTypeMP4 {
		t.Fatalf("expected default content type, got %q", contentType)
	}
}
