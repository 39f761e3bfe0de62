package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"teslabox/internal/archive"
	"teslabox/internal/camera"
	"teslabox/internal/config"
	"teslabox/internal/fileutil"
	"teslabox/internal/notifications"
	"teslabox/internal/queue"
	"teslabox/internal/services"
	"teslabox/internal/storage"
	"teslabox/internal/testsupport"
)

const (
	clipStart int64 = 1700000000
	folder          = "2023-11-14_22-13-20"

	dashcam camera.EventType = "dashcam"
)

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []published
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, published{event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) Enabled() bool { return true }

func (n *recordingNotifier) messages() []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]published(nil), n.sent...)
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	invoker  *testsupport.FakeInvoker
	objects  *testsupport.FakeObjectStore
	oracle   *testsupport.StaticOracle
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		invoker:  testsupport.NewFakeInvoker(),
		objects:  testsupport.NewFakeObjectStore(),
		oracle:   testsupport.NewStaticOracle(true),
		notifier: &recordingNotifier{},
	}
}

func (h *harness) deps() archive.Dependencies {
	return archive.Dependencies{
		Invoker:  h.invoker,
		Store:    h.objects,
		Oracle:   h.oracle,
		Notifier: h.notifier,
		Records:  h.store,
		Journal:  h.store,
	}
}

func (h *harness) start(t *testing.T) *archive.Pipeline {
	t.Helper()
	p, err := archive.New(h.cfg, h.deps(), archive.WithRetryDelay(5*time.Millisecond))
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

// clips writes one 10 second clip per angle for each timestamp.
func (h *harness) clips(t *testing.T, timestamps ...int64) []archive.TempFile {
	t.Helper()
	var out []archive.TempFile
	for _, ts := range timestamps {
		for _, angle := range camera.Angles() {
			path := filepath.Join(h.cfg.Paths.RamDir, fmt.Sprintf("%d-%s.mp4", ts, angle))
			testsupport.WriteFile(t, path, 64)
			out = append(out, archive.TempFile{Timestamp: ts, Angle: angle, Start: 0, Duration: 10, File: path})
		}
	}
	return out
}

func request(id string, eventType camera.EventType, angle camera.Angle, eventTs int64, tempFiles []archive.TempFile) archive.Request {
	return archive.Request{
		ID:        id,
		Event:     archive.Event{Type: eventType, Timestamp: eventTs, Angle: angle, EstLat: 37.77, EstLon: -122.41},
		Folder:    folder,
		HWVersion: 3,
		TempFiles: tempFiles,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) records(t *testing.T) []queue.ArchiveRecord {
	t.Helper()
	recs, err := h.store.ListArchiveRecords(context.Background())
	if err != nil {
		t.Fatalf("ListArchiveRecords: %v", err)
	}
	return recs
}

func waitIdle(t *testing.T, p *archive.Pipeline) {
	t.Helper()
	waitFor(t, "pipeline to drain", func() bool { return len(p.Pending()) == 0 })
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := archive.New(cfg, archive.Dependencies{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
	if _, err := archive.New(nil, archive.Dependencies{}); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestPushValidatesRequest(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	tempFiles := h.clips(t, clipStart)

	cases := []struct {
		name   string
		mutate func(*archive.Request)
	}{
		{"missing id", func(r *archive.Request) { r.ID = " " }},
		{"missing folder", func(r *archive.Request) { r.Folder = "" }},
		{"missing event type", func(r *archive.Request) { r.Event.Type = "" }},
		{"missing event timestamp", func(r *archive.Request) { r.Event.Timestamp = 0 }},
		{"unknown event angle", func(r *archive.Request) { r.Event.Angle = "roof" }},
		{"no temp files", func(r *archive.Request) { r.TempFiles = nil }},
		{"unknown clip angle", func(r *archive.Request) { r.TempFiles[0].Angle = "roof" }},
		{"clip without path", func(r *archive.Request) { r.TempFiles[1].File = "" }},
		{"clip without duration", func(r *archive.Request) { r.TempFiles[2].Duration = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request("job-1", camera.Sentry, camera.Front, clipStart+3, append([]archive.TempFile(nil), tempFiles...))
			tc.mutate(&req)
			err := p.Push(context.Background(), req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if pending := p.Pending(); len(pending) != 0 {
		t.Fatalf("expected nothing queued, got %+v", pending)
	}
}

func TestQuadArchiveEndToEnd(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	second := clipStart + 60
	req := request("evt-1", camera.Sentry, camera.Left, clipStart+70, h.clips(t, second, clipStart))

	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	waitIdle(t, p)

	rec := h.records(t)[0]
	wantKey := "TestCar/archives/2023-11-14/2023-11-14_22-13-20-sentry.mp4"
	if rec.Type != "sentry" || rec.Created != (clipStart+70)*1000 || rec.Lat != 37.77 || rec.Lon != -122.41 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.HasPrefix(rec.URL, h.objects.BaseURL+wantKey) {
		t.Fatalf("record url = %q", rec.URL)
	}
	if rec.Processed <= 0 || rec.Taken < 0 {
		t.Fatalf("unexpected timings: %+v", rec)
	}

	puts := h.objects.Puts()
	if len(puts) != 1 || puts[0].Key != wantKey || puts[0].ContentType != storage.ContentTypeMP4 {
		t.Fatalf("unexpected uploads: %+v", puts)
	}

	calls := h.invoker.Calls()
	if len(calls) != 4 {
		t.Fatalf("expected 2 renders, concat and silence, got %d calls", len(calls))
	}
	if got := h.invoker.CallsMatching("TeslaBox TestCar Sentry (Left)"); got != 2 {
		t.Fatalf("expected 2 captioned renders, got %d", got)
	}
	if got := h.invoker.CallsMatching(fmt.Sprintf(`localtime\:%d}`, clipStart)); got != 1 {
		t.Fatalf("expected caption clock based on first timestamp, got %d", got)
	}
	if got := h.invoker.CallsMatching("-r 24 -crf 28"); got != 2 {
		t.Fatalf("expected medium tier renders at 24fps, got %d", got)
	}

	msgs := h.notifier.messages()
	if len(msgs) != 1 || msgs[0].event != notifications.EventArchiveReady {
		t.Fatalf("unexpected notifications: %+v", msgs)
	}
	if msgs[0].payload["videoUrl"] != rec.URL || msgs[0].payload["id"] != "evt-1 (fullVideo)" {
		t.Fatalf("unexpected payload: %+v", msgs[0].payload)
	}

	if leftovers := testsupport.ListFiles(t, h.cfg.Paths.RamDir); len(leftovers) != 0 {
		t.Fatalf("expected empty ram dir, found %v", leftovers)
	}
	jobs, err := h.store.ListJobs(context.Background(), archive.PipelineName)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected journal cleared, got %d jobs", len(jobs))
	}
}

func sceneLog(score float64) string {
	var b strings.Builder
	for second := 0; second < 10; second++ {
		fmt.Fprintf(&b, "frame:%d    pts:%d    pts_time:%d\nlavfi.scene_score=%f\n", second, second*12288, second, score)
	}
	return b.String()
}

func TestCondensedArchiveCutsToEventAngle(t *testing.T) {
	h := newHarness(t, testsupport.WithSentryCinematic())
	tempFiles := h.clips(t, clipStart)
	for _, tf := range tempFiles {
		score := 0.1
		if tf.Angle == camera.Front {
			score = 0.5
		}
		h.invoker.SetSceneLog(tf.File, sceneLog(score))
	}
	p := h.start(t)

	req := request("evt-cond", camera.Sentry, camera.Right, clipStart+5, tempFiles)
	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	waitIdle(t, p)

	if got := h.invoker.CallsMatching("metadata=print:file="); got != 4 {
		t.Fatalf("expected one scene scan per angle, got %d", got)
	}
	if got := h.invoker.CallsMatching("concat=n=3"); got != 1 {
		t.Fatalf("expected front, right, front scenes; calls: %v", h.invoker.Calls())
	}
	rightClip := filepath.Join(h.cfg.Paths.RamDir, fmt.Sprintf("%d-right.mp4", clipStart))
	if got := h.invoker.CallsMatching("-ss 5 -t 1 -i " + rightClip); got != 1 {
		t.Fatalf("expected the right camera cut at the event second")
	}
	if got := h.invoker.CallsMatching("TeslaBox TestCar Sentry %{pts"); got != 1 {
		t.Fatalf("condensed caption should carry the event type only")
	}
	if leftovers := testsupport.ListFiles(t, h.cfg.Paths.RamDir); len(leftovers) != 0 {
		t.Fatalf("expected empty ram dir, found %v", leftovers)
	}
}

func TestPermanentFailurePurgesEveryArtifact(t *testing.T) {
	h := newHarness(t)
	h.invoker.FailWhen("-f concat", services.Wrap(services.ErrExternalTool, "ffmpeg", "run", "corrupt segment", nil), 0)
	p := h.start(t)

	req := request("evt-bad", dashcam, "", clipStart+1, h.clips(t, clipStart, clipStart+60))
	if err := p.Push(context.Background(), req); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "concat attempt", func() bool { return h.invoker.CallsMatching("-f concat") == 1 })
	waitIdle(t, p)

	if leftovers := testsupport.ListFiles(t, h.cfg.Paths.RamDir); len(leftovers) != 0 {
		t.Fatalf("expected every artifact purged, found %v", leftovers)
	}
	if recs := h.records(t); len(recs) != 0 {
		t.Fatalf("expected no record, got %+v", recs)
	}
	if puts := h.objects.Puts(); len(puts) != 0 {
		t.Fatalf("expected no uploads, got %+v", puts)
	}
	if got := h.invoker.CallsMatching("-f concat"); got != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", got)
	}
}

func TestMissingAngleFailsPermanently(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	tempFiles := h.clips(t, clipStart)[:3]

	if err := p.Push(context.Background(), request("evt-short", dashcam, camera.Front, clipStart+1, tempFiles)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitIdle(t, p)
	if calls := h.invoker.Calls(); len(calls) != 0 {
		t.Fatalf("expected no render, got %d calls", len(calls))
	}
	for _, tf := range tempFiles {
		if fileutil.Exists(tf.File) {
			t.Fatalf("input %s should be purged", tf.File)
		}
	}
}

func TestOfflineUploadWaitsForConnectivity(t *testing.T) {
	h := newHarness(t)
	h.oracle.Set(false)
	p := h.start(t)

	if err := p.Push(context.Background(), request("evt-offline", dashcam, camera.Front, clipStart+1, h.clips(t, clipStart))); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "repeated liveness polls", func() bool { return h.oracle.Polls() >= 3 })
	if puts := h.objects.Puts(); len(puts) != 0 {
		t.Fatalf("uploaded while offline: %+v", puts)
	}
	pending := p.Pending()
	if len(pending) != 1 || pending[0].Step != 5 {
		t.Fatalf("expected job parked at upload, got %+v", pending)
	}
	if got := h.invoker.CallsMatching("-filter_complex"); got != 1 {
		t.Fatalf("retry must not re-render, got %d renders", got)
	}

	h.oracle.Set(true)
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	if puts := h.objects.Puts(); len(puts) != 1 {
		t.Fatalf("expected one upload, got %+v", puts)
	}
}

func TestTransientStoreErrorRetries(t *testing.T) {
	h := newHarness(t)
	h.objects.FailPuts(services.Wrap(services.ErrTransient, "storage", "put", "slow down", nil))
	h.objects.FailSigns(services.Wrap(services.ErrTransient, "storage", "sign", "slow down", nil))
	p := h.start(t)

	if err := p.Push(context.Background(), request("evt-flaky", dashcam, camera.Front, clipStart+1, h.clips(t, clipStart))); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	if puts := h.objects.Puts(); len(puts) != 1 {
		t.Fatalf("expected a single successful upload, got %+v", puts)
	}
	if h.records(t)[0].URL == "" {
		t.Fatal("expected a signed url after retry")
	}
}

// observingInvoker records whether watched files still exist whenever a call
// mentions trigger.
type observingInvoker struct {
	*testsupport.FakeInvoker
	trigger string
	watched []string

	mu        sync.Mutex
	leftovers []string
}

func (o *observingInvoker) Run(ctx context.Context, args []string) error {
	if strings.Contains(strings.Join(args, " "), o.trigger) {
		o.mu.Lock()
		for _, path := range o.watched {
			if fileutil.Exists(path) {
				o.leftovers = append(o.leftovers, path)
			}
		}
		o.mu.Unlock()
	}
	return o.FakeInvoker.Run(ctx, args)
}

func TestRetriedRenderSkipsCachedTimestamps(t *testing.T) {
	h := newHarness(t)
	second := clipStart + 60
	tempFiles := h.clips(t, clipStart, second)
	var first []string
	var firstFront, secondFront string
	for _, tf := range tempFiles {
		switch {
		case tf.Timestamp == clipStart:
			first = append(first, tf.File)
			if tf.Angle == camera.Front {
				firstFront = tf.File
			}
		case tf.Angle == camera.Front:
			secondFront = tf.File
		}
	}
	h.invoker.FailWhen(secondFront, services.Wrap(services.ErrTransient, "ffmpeg", "run", "device busy", nil), 1)
	invoker := &observingInvoker{FakeInvoker: h.invoker, trigger: secondFront, watched: first}

	deps := h.deps()
	deps.Invoker = invoker
	p, err := archive.New(h.cfg, deps, archive.WithRetryDelay(5*time.Millisecond))
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)

	if err := p.Push(context.Background(), request("evt-retry", dashcam, camera.Front, clipStart+5, tempFiles)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	waitIdle(t, p)

	if got := h.invoker.CallsMatching(firstFront); got != 1 {
		t.Fatalf("expected the first timestamp rendered once, got %d", got)
	}
	if got := h.invoker.CallsMatching(secondFront); got != 2 {
		t.Fatalf("expected the second timestamp rendered twice, got %d", got)
	}
	invoker.mu.Lock()
	leftovers := append([]string(nil), invoker.leftovers...)
	invoker.mu.Unlock()
	if len(leftovers) != 0 {
		t.Fatalf("first timestamp clips still present at later renders: %v", leftovers)
	}
	if puts := h.objects.Puts(); len(puts) != 1 {
		t.Fatalf("expected one upload, got %+v", puts)
	}
}

func TestResumeFromJournalSkipsCompletedSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := filepath.Join(h.cfg.Paths.RamDir, "resumed-out.mp4")
	testsupport.WriteFile(t, out, 128)
	job := archive.Job{
		Request:   request("evt-resume", dashcam, camera.Front, clipStart+1, h.clips(t, clipStart)),
		CarName:   h.cfg.Car.Name,
		OutFile:   out,
		OutKey:    archive.OutKey(h.cfg.Car.Name, folder, dashcam),
		Files:     map[string]string{},
		Caches:    map[int64]bool{clipStart: true},
		StartedAt: time.Now(),
		Step:      5,
	}
	state, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := h.store.SaveJob(ctx, queue.JobRecord{Pipeline: archive.PipelineName, ID: job.ID, Step: job.Step, State: state}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	h.start(t)
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	if calls := h.invoker.Calls(); len(calls) != 0 {
		t.Fatalf("resumed job should not re-render, got %d calls", len(calls))
	}
	if puts := h.objects.Puts(); len(puts) != 1 || puts[0].Size != 128 {
		t.Fatalf("unexpected uploads: %+v", puts)
	}
	if len(h.notifier.messages()) != 0 {
		t.Fatal("journaled job without notification recipients should not notify")
	}
}

func TestDisabledStoreYieldsEmptyLink(t *testing.T) {
	h := newHarness(t)
	disabled, err := storage.New(h.cfg, nil)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	deps := h.deps()
	deps.Store = disabled
	p, err := archive.New(h.cfg, deps, archive.WithRetryDelay(5*time.Millisecond))
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)

	if err := p.Push(context.Background(), request("evt-local", dashcam, camera.Front, clipStart+1, h.clips(t, clipStart))); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "archive record", func() bool { return len(h.records(t)) == 1 })
	if url := h.records(t)[0].URL; url != "" {
		t.Fatalf("expected empty url, got %q", url)
	}
	recs, err := p.List(context.Background())
	if err != nil || len(recs) != 1 {
		t.Fatalf("List = %v, %v", recs, err)
	}
}
