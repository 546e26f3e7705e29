package engine

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"threadsync/internal/cache"
	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

// mediaSocket answers GET_MEDIA_URL requests with a canned URL grant.
type mediaSocket struct {
	fakeSocket
	url string
}

func (m *mediaSocket) WaitForReply(ctx context.Context, match func(protocol.Envelope) bool, timeout time.Duration) (protocol.Envelope, error) {
	requests := m.sentOfType(protocol.TypeGetMediaURL)
	if len(requests) == 0 {
		return protocol.Envelope{}, context.DeadlineExceeded
	}
	last := requests[len(requests)-1]
	env, err := protocol.NewEnvelope(protocol.TypeMediaURL, "", protocol.MediaURLPayload{URL: m.url}, last.RequestID)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if !match(env) {
		return protocol.Envelope{}, context.DeadlineExceeded
	}
	return env, nil
}

// blobBackend streams a fixed blob, or writes endlessly when no blob is
// configured so a stalled consumer is observable.
type blobBackend struct {
	fakeBackend
	blob  []byte
	calls int
}

func (b *blobBackend) DownloadMedia(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	b.calls++
	if len(b.blob) > 0 {
		n, err := w.Write(b.blob)
		return int64(n), err
	}
	chunk := make([]byte, 1024)
	var total int64
	for {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

func newMediaEngine(t *testing.T, dir string, backend Backend) (*Engine, *cache.Cache) {
	t.Helper()
	c, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	eng := New(Options{
		Socket:  &mediaSocket{url: "https://media.example/grant"},
		Store:   threads.NewStore(logging.NewNop()),
		Ledger:  ledger.New(),
		Cache:   c,
		Backend: backend,
		Logger:  logging.NewNop(),
	})
	return eng, c
}

func TestFetchMediaDownloadsAndCaches(t *testing.T) {
	backend := &blobBackend{blob: []byte("pretend this is audio")}
	eng, c := newMediaEngine(t, t.TempDir(), backend)

	path, err := eng.FetchMedia(context.Background(), "t1", "f1")
	if err != nil {
		t.Fatalf("FetchMedia failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached blob: %v", err)
	}
	if !bytes.Equal(got, backend.blob) {
		t.Fatalf("cached blob = %q, want %q", got, backend.blob)
	}

	again, err := eng.FetchMedia(context.Background(), "t1", "f1")
	if err != nil {
		t.Fatalf("cached FetchMedia failed: %v", err)
	}
	if again != c.MediaPath("t1", "f1") {
		t.Fatalf("cached path = %q, want %q", again, c.MediaPath("t1", "f1"))
	}
	if backend.calls != 1 {
		t.Fatalf("download calls = %d, want 1 (second fetch should hit the cache)", backend.calls)
	}
}

func TestFetchMediaReturnsWhenSaveFails(t *testing.T) {
	dir := t.TempDir()
	backend := &blobBackend{}
	eng, _ := newMediaEngine(t, dir, backend)

	// A regular file where the per-thread media directory should go
	// makes the save side fail before it ever reads from the download.
	if err := os.WriteFile(filepath.Join(dir, "media", "t1"), []byte("in the way"), 0o644); err != nil {
		t.Fatalf("plant blocker: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := eng.FetchMedia(context.Background(), "t1", "f1")
		result <- err
	}()

	select {
	case err := <-result:
		if err == nil {
			t.Fatal("FetchMedia succeeded despite unusable media dir")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FetchMedia did not return after the save side failed")
	}
}
