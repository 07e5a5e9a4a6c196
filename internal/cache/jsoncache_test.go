package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubGetter struct {
	body   []byte
	err    error
	calls  atomic.Int32
	header http.Header
	mu     sync.Mutex
}

func (s *stubGetter) Get(_ context.Context, _ string, header http.Header) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.header = header
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.body, nil
}

// writeAged writes content to path and backdates its mtime to at.
func writeAged(t *testing.T, path string, content string, at time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func firstID(t *testing.T, v any) string {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	data, ok := m["data"].([]any)
	if !ok || len(data) == 0 {
		t.Fatalf("expected non-empty data array, got %v", m["data"])
	}
	return data[0].(map[string]any)["id"].(string)
}

func TestJSONCache_FreshCacheSkipsNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	written := time.Now().Add(-time.Hour)
	window := 10 * time.Minute
	writeAged(t, path, `{"data":[{"id":"m1"}]}`, written)

	g := &stubGetter{err: errors.New("network must not be called")}
	c := &JSONCache{Getter: g, Now: func() time.Time { return written.Add(window / 2) }}
	v, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: window})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := firstID(t, v); got != "m1" {
		t.Fatalf("id=%q, want m1", got)
	}
	if n := g.calls.Load(); n != 0 {
		t.Fatalf("network calls = %d, want 0", n)
	}
}

func TestJSONCache_ExpiredCacheRefreshes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	written := time.Now().Add(-time.Hour)
	window := 10 * time.Minute
	writeAged(t, path, `{"data":[{"id":"m1"}]}`, written)

	g := &stubGetter{body: []byte(`{"data":[{"id":"m2"}]}`)}
	c := &JSONCache{Getter: g, Now: func() time.Time { return written.Add(2 * window) }}
	v, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: window})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := firstID(t, v); got != "m2" {
		t.Fatalf("id=%q, want m2", got)
	}
	if n := g.calls.Load(); n != 1 {
		t.Fatalf("network calls = %d, want 1", n)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if string(b) != `{"data":[{"id":"m2"}]}` {
		t.Fatalf("cache not overwritten: %s", b)
	}
}

func TestJSONCache_StaleFallbackOnNetworkError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	writeAged(t, path, `{"data":[{"id":"m1"}]}`, time.Now().Add(-48*time.Hour))

	g := &stubGetter{err: errors.New("connection refused")}
	c := &JSONCache{Getter: g}
	var doc struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	src, err := c.FetchInto(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour}, &doc)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if src != SourceStale {
		t.Fatalf("source=%q, want stale", src)
	}
	if len(doc.Data) != 1 || doc.Data[0].ID != "m1" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestJSONCache_DownloadFailedWithoutCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	cause := errors.New("no route to host")
	c := &JSONCache{Getter: &stubGetter{err: cause}}
	_, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour})
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	var dfe *DownloadFailedError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected *DownloadFailedError, got %T", err)
	}
	if dfe.Path != path {
		t.Fatalf("path=%q, want %q", dfe.Path, path)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("no cache file should be created on failure")
	}
}

func TestJSONCache_PersistsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	g := &stubGetter{body: []byte(`{"data":[{"id":"grok-3","owned_by":"xai"},{"id":"grok-3-mini"}]}`)}
	c := &JSONCache{Getter: g}
	req := Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour, Token: "secret"}
	v, err := c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	var onDisk any
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("cache is not JSON: %v", err)
	}
	if !reflect.DeepEqual(onDisk, v) {
		t.Fatalf("round trip mismatch: disk=%v returned=%v", onDisk, v)
	}
	if got := g.header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("Authorization=%q", got)
	}
	if got := g.header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type=%q", got)
	}
}

func TestJSONCache_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "models.json")
	c := &JSONCache{Getter: &stubGetter{body: []byte(`{"data":[]}`)}}
	if _, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file: %v", err)
	}
}

func TestJSONCache_InvalidDownloadFallsBackToStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	writeAged(t, path, `{"data":[{"id":"m1"}]}`, time.Now().Add(-48*time.Hour))
	c := &JSONCache{Getter: &stubGetter{body: []byte("<html>maintenance</html>")}}
	v, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := firstID(t, v); got != "m1" {
		t.Fatalf("id=%q, want m1", got)
	}
	b, _ := os.ReadFile(path)
	if string(b) != `{"data":[{"id":"m1"}]}` {
		t.Fatalf("invalid body must not be written: %s", b)
	}
}

func TestJSONCache_InvalidDownloadWithoutCacheFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	c := &JSONCache{Getter: &stubGetter{body: []byte("not json")}}
	_, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour})
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestJSONCache_CorruptCachePropagatesParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	writeAged(t, path, `{"data":`, time.Now())
	c := &JSONCache{Getter: &stubGetter{err: errors.New("unused")}}
	_, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path, MaxAge: time.Hour})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("parse error must not be reported as download failure")
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("corrupt cache must be left in place: %v", statErr)
	}
}

func TestJSONCache_ZeroWindowAlwaysRefreshes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	writeAged(t, path, `{"data":[{"id":"m1"}]}`, time.Now())
	g := &stubGetter{body: []byte(`{"data":[{"id":"m2"}]}`)}
	c := &JSONCache{Getter: g}
	v, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := firstID(t, v); got != "m2" {
		t.Fatalf("id=%q, want m2", got)
	}
}

func TestJSONCache_StrictPerms(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "llm")
	path := filepath.Join(dir, "models.json")
	c := &JSONCache{Getter: &stubGetter{body: []byte(`{"data":[]}`)}, StrictPerms: true}
	if _, err := c.Fetch(context.Background(), Request{URL: "https://api.example/v1/models", Path: path}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	finfo, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if got := finfo.Mode() & 0o777; got != 0o600 {
		t.Fatalf("file mode = %o, want 0600", got)
	}
}

func TestInvalidate_RemovesFileAndToleratesMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	writeAged(t, path, `{}`, time.Now())
	if err := Invalidate(path); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok := Age(path, time.Now()); ok {
		t.Fatalf("expected file removed")
	}
	if err := Invalidate(path); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if err := Invalidate("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestAge_ReportsModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	at := time.Now().Add(-90 * time.Minute).Truncate(time.Second)
	writeAged(t, path, `{}`, at)
	age, ok := Age(path, at.Add(90*time.Minute))
	if !ok {
		t.Fatalf("expected file")
	}
	if age != 90*time.Minute {
		t.Fatalf("age=%v, want 90m", age)
	}
}

// gateGetter blocks every Get until release is closed and answers with the
// bearer token it was sent.
type gateGetter struct {
	started chan string
	release chan struct{}
	calls   atomic.Int32
}

func newGateGetter() *gateGetter {
	return &gateGetter{started: make(chan string, 8), release: make(chan struct{})}
}

func (g *gateGetter) Get(ctx context.Context, _ string, header http.Header) ([]byte, error) {
	g.calls.Add(1)
	tok := header.Get("Authorization")
	g.started <- tok
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte(`{"data":[{"id":"` + tok + `"}]}`), nil
}

func waitStarted(t *testing.T, g *gateGetter) string {
	t.Helper()
	select {
	case tok := <-g.started:
		return tok
	case <-time.After(5 * time.Second):
		t.Fatalf("download did not start")
		return ""
	}
}

func TestJSONCache_CanceledCallerDoesNotFailOthers(t *testing.T) {
	g := newGateGetter()
	c := &JSONCache{Getter: g}
	req := Request{URL: "http://x/models", Path: filepath.Join(t.TempDir(), "m.json"), MaxAge: time.Hour, Token: "A"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctxA, req)
		errA <- err
	}()
	waitStarted(t, g)

	type result struct {
		v   any
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := c.Fetch(context.Background(), req)
		resB <- result{v, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, ErrDownloadFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller: expected DownloadFailed wrapping context.Canceled, got %v", err)
	}
	close(g.release)

	r := <-resB
	if r.err != nil {
		t.Fatalf("live caller failed: %v", r.err)
	}
	if got := firstID(t, r.v); got != "Bearer A" {
		t.Fatalf("id=%q, want Bearer A", got)
	}
	if n := g.calls.Load(); n != 1 {
		t.Fatalf("getter calls=%d, want 1 shared download", n)
	}
}

func TestJSONCache_DifferentTokensDoNotShareDownload(t *testing.T) {
	g := newGateGetter()
	c := &JSONCache{Getter: g}
	path := filepath.Join(t.TempDir(), "m.json")

	type result struct {
		v   any
		err error
	}
	fetch := func(tok string) chan result {
		ch := make(chan result, 1)
		go func() {
			v, err := c.Fetch(context.Background(), Request{URL: "http://x/models", Path: path, Token: tok})
			ch <- result{v, err}
		}()
		return ch
	}
	resA := fetch("A")
	resB := fetch("B")
	seen := map[string]bool{waitStarted(t, g): true, waitStarted(t, g): true}
	if !seen["Bearer A"] || !seen["Bearer B"] {
		t.Fatalf("expected one download per token, saw %v", seen)
	}
	close(g.release)

	for tok, ch := range map[string]chan result{"Bearer A": resA, "Bearer B": resB} {
		r := <-ch
		if r.err != nil {
			t.Fatalf("%s: %v", tok, r.err)
		}
		if got := firstID(t, r.v); got != tok {
			t.Fatalf("id=%q, want %q", got, tok)
		}
	}
}
