package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/threads"
)

type fakeBackend struct {
	mu      sync.Mutex
	rows    []threads.IndexRow
	threads map[string]*threads.Thread
	fetched []string
	since   time.Time
}

func (f *fakeBackend) ThreadIndex(ctx context.Context, since time.Time) ([]threads.IndexRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.rows, nil
}

func (f *fakeBackend) Thread(ctx context.Context, threadID string) (*threads.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, threadID)
	return f.threads[threadID], nil
}

func (f *fakeBackend) DownloadMedia(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	return 0, nil
}

func TestSyncIndexDeltaPass(t *testing.T) {
	socket := &fakeSocket{}
	store := threads.NewStore(logging.NewNop())
	led := ledger.New()
	led.SetBalance(500)

	unchangedStamp := threads.Stamp{UpdatedAt: "u1", DraftUpdatedAt: "d1", Version: 3, DraftRev: 1}
	store.Upsert(&threads.Thread{ID: "unchanged", Server: unchangedStamp})
	store.Upsert(&threads.Thread{ID: "stale", Server: threads.Stamp{Version: 1}})
	store.Upsert(&threads.Thread{ID: "doomed", ChatItems: []*threads.ChatItem{{ChatItemID: "ci-1"}}})
	led.Reserve(ledger.ChatKey("doomed", "ci-1"), 40)

	backend := &fakeBackend{
		rows: []threads.IndexRow{
			{ID: "unchanged", Server: unchangedStamp},
			{ID: "stale", Server: threads.Stamp{Version: 2}},
			{ID: "doomed", Deleted: true},
			{ID: "brand-new", Server: threads.Stamp{Version: 1}},
		},
		threads: map[string]*threads.Thread{
			"stale":     {ID: "stale", Title: "refetched", Server: threads.Stamp{Version: 2}},
			"brand-new": {ID: "brand-new", Title: "fresh", Server: threads.Stamp{Version: 1}},
		},
	}

	eng := New(Options{Socket: socket, Store: store, Ledger: led, Backend: backend, Logger: logging.NewNop()})
	if err := eng.SyncIndex(context.Background()); err != nil {
		t.Fatalf("SyncIndex failed: %v", err)
	}

	// Only mismatched stamps trigger a full fetch.
	if len(backend.fetched) != 2 {
		t.Fatalf("fetched %v, want exactly the stale and new threads", backend.fetched)
	}
	for _, id := range backend.fetched {
		if id != "stale" && id != "brand-new" {
			t.Fatalf("unexpected fetch of %q", id)
		}
	}

	if _, ok := store.Thread("doomed"); ok {
		t.Fatal("soft-deleted thread survived")
	}
	if led.Held() != 0 {
		t.Fatalf("deleted thread kept holds: %v", led.Holds())
	}
	if got, _ := store.Thread("stale"); got.Title != "refetched" || got.Server.Version != 2 {
		t.Fatalf("stale thread not refreshed: %+v", got)
	}
	if _, ok := store.Thread("brand-new"); !ok {
		t.Fatal("new thread not adopted")
	}
	if store.LastSync().IsZero() {
		t.Fatal("last sync not recorded")
	}
}

func TestSyncIndexPassesSince(t *testing.T) {
	socket := &fakeSocket{}
	store := threads.NewStore(logging.NewNop())
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store.SetLastSync(at)
	backend := &fakeBackend{}

	eng := New(Options{Socket: socket, Store: store, Ledger: ledger.New(), Backend: backend, Logger: logging.NewNop()})
	if err := eng.SyncIndex(context.Background()); err != nil {
		t.Fatalf("SyncIndex failed: %v", err)
	}
	if !backend.since.Equal(at) {
		t.Fatalf("since = %v, want %v", backend.since, at)
	}
}
