package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const metadataFilePrefix = "metadata=print:file="

// FakeInvoker stands in for ffmpeg. Each call is recorded; scene detection
// calls write the canned log registered for their input clip, and every other
// call creates its output file (the last argument).
type FakeInvoker struct {
	mu        sync.Mutex
	calls     [][]string
	sceneLogs map[string]string
	failures  []failure
}

type failure struct {
	match string
	err   error
	times int
}

// NewFakeInvoker returns an invoker with no canned logs or failures.
func NewFakeInvoker() *FakeInvoker {
	return &FakeInvoker{sceneLogs: make(map[string]string)}
}

// SetSceneLog registers the metadata log written when input is scene-scanned.
func (f *FakeInvoker) SetSceneLog(input, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sceneLogs[input] = content
}

// FailWhen makes the next times calls whose joined args contain match return
// err. times <= 0 fails indefinitely.
func (f *FakeInvoker) FailWhen(match string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{match: match, err: err, times: times})
}

// Run implements ffmpeg.Invoker.
func (f *FakeInvoker) Run(ctx context.Context, args []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(args))
	joined := strings.Join(args, " ")
	for i := range f.failures {
		fail := &f.failures[i]
		if fail.times == 0 && fail.err == nil {
			continue
		}
		if !strings.Contains(joined, fail.match) {
			continue
		}
		err := fail.err
		if fail.times > 0 {
			fail.times--
			if fail.times == 0 {
				fail.err = nil
			}
		}
		f.mu.Unlock()
		return err
	}
	logs := f.sceneLogs
	f.mu.Unlock()

	if logFile := metadataFile(args); logFile != "" {
		return writeFile(logFile, logs[inputFile(args)])
	}
	if len(args) == 0 {
		return nil
	}
	out := args[len(args)-1]
	if out == "-" {
		return nil
	}
	return writeFile(out, "rendered:"+filepath.Base(out))
}

// Calls returns a copy of every recorded argv.
func (f *FakeInvoker) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, call := range f.calls {
		out[i] = slices.Clone(call)
	}
	return out
}

// CallsMatching counts recorded calls whose joined args contain match.
func (f *FakeInvoker) CallsMatching(match string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if strings.Contains(strings.Join(call, " "), match) {
			count++
		}
	}
	return count
}

func metadataFile(args []string) string {
	for _, arg := range args {
		if idx := strings.Index(arg, metadataFilePrefix); idx >= 0 {
			rest := arg[idx+len(metadataFilePrefix):]
			if end := strings.IndexAny(rest, ", "); end >= 0 {
				rest = rest[:end]
			}
			return rest
		}
	}
	return ""
}

func inputFile(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			return args[i+1]
		}
	}
	return ""
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// PutCall records one FakeObjectStore upload.
type PutCall struct {
	Key         string
	Size        int
	ContentType string
}

// FakeObjectStore records uploads and issues deterministic links.
type FakeObjectStore struct {
	mu       sync.Mutex
	puts     []PutCall
	signs    []string
	putErrs  []error
	signErrs []error
	BaseURL  string
}

// NewFakeObjectStore returns a store whose links start with https://objects.test/.
func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{BaseURL: "https://objects.test/"}
}

// FailPuts queues errors returned by the next PutObject calls, in order.
func (s *FakeObjectStore) FailPuts(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErrs = append(s.putErrs, errs...)
}

// FailSigns queues errors returned by the next SignedURL calls, in order.
func (s *FakeObjectStore) FailSigns(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signErrs = append(s.signErrs, errs...)
}

// PutObject implements storage.ObjectStore.
func (s *FakeObjectStore) PutObject(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.putErrs) > 0 {
		err := s.putErrs[0]
		s.putErrs = s.putErrs[1:]
		return err
	}
	s.puts = append(s.puts, PutCall{Key: key, Size: len(data), ContentType: contentType})
	return nil
}

// SignedURL implements storage.ObjectStore.
func (s *FakeObjectStore) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.signErrs) > 0 {
		err := s.signErrs[0]
		s.signErrs = s.signErrs[1:]
		return "", err
	}
	s.signs = append(s.signs, key)
	return fmt.Sprintf("%s%s?expires=%d", s.BaseURL, key, int(expiry.Seconds())), nil
}

// Puts returns the successful uploads.
func (s *FakeObjectStore) Puts() []PutCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.puts)
}

// Signs returns the keys of successful link requests.
func (s *FakeObjectStore) Signs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.signs)
}

// StaticOracle is a switchable liveness answer that counts polls.
type StaticOracle struct {
	alive atomic.Bool
	polls atomic.Int64
}

// NewStaticOracle starts in the given state.
func NewStaticOracle(alive bool) *StaticOracle {
	o := &StaticOracle{}
	o.alive.Store(alive)
	return o
}

// Set changes the answer.
func (o *StaticOracle) Set(alive bool) { o.alive.Store(alive) }

// IsAlive implements liveness.Oracle.
func (o *StaticOracle) IsAlive() bool {
	o.polls.Add(1)
	return o.alive.Load()
}

// Polls reports how many times IsAlive was called.
func (o *StaticOracle) Polls() int64 { return o.polls.Load() }
