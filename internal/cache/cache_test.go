package cache

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"threadsync/internal/threads"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := threads.State{
		Threads: []*threads.Thread{
			{
				ID:        "t1",
				Title:     "interview",
				CreatedAt: created,
				Server:    threads.Stamp{Version: 4, DraftRev: 2},
				ChatItems: []*threads.ChatItem{{ChatItemID: "ci-1", CreatedAt: created}},
			},
			{ID: threads.DefaultThreadID},
		},
		ActiveThreadID: "t1",
		LastSync:       created.Add(time.Hour),
	}
	if err := c.SaveState(ctx, "user:abc", state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	got, err := c.LoadState(ctx, "user:abc")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(got.Threads) != 2 {
		t.Fatalf("loaded %d threads, want 2", len(got.Threads))
	}
	if got.ActiveThreadID != "t1" {
		t.Fatalf("active = %q", got.ActiveThreadID)
	}
	if !got.LastSync.Equal(state.LastSync) {
		t.Fatalf("last sync = %v, want %v", got.LastSync, state.LastSync)
	}
	var loaded *threads.Thread
	for _, th := range got.Threads {
		if th.ID == "t1" {
			loaded = th
		}
	}
	if loaded == nil || loaded.Server.Version != 4 || len(loaded.ChatItems) != 1 {
		t.Fatalf("thread t1 did not round trip: %+v", loaded)
	}
}

func TestScopesAreIsolated(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.SaveState(ctx, "guest", threads.State{Threads: []*threads.Thread{{ID: "g1"}}}); err != nil {
		t.Fatalf("save guest: %v", err)
	}
	if err := c.SaveState(ctx, "user:abc", threads.State{Threads: []*threads.Thread{{ID: "u1"}, {ID: "u2"}}}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	guest, err := c.LoadState(ctx, "guest")
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}
	if len(guest.Threads) != 1 || guest.Threads[0].ID != "g1" {
		t.Fatalf("guest scope polluted: %+v", guest.Threads)
	}

	if err := c.DropScope(ctx, "user:abc"); err != nil {
		t.Fatalf("DropScope failed: %v", err)
	}
	user, err := c.LoadState(ctx, "user:abc")
	if err != nil {
		t.Fatalf("load user after drop: %v", err)
	}
	if len(user.Threads) != 0 {
		t.Fatalf("scope not dropped: %+v", user.Threads)
	}
}

func TestSaveStateReplacesPriorSnapshot(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.SaveState(ctx, "guest", threads.State{Threads: []*threads.Thread{{ID: "a"}, {ID: "b"}}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := c.SaveState(ctx, "guest", threads.State{Threads: []*threads.Thread{{ID: "b"}}}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := c.LoadState(ctx, "guest")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Threads) != 1 || got.Threads[0].ID != "b" {
		t.Fatalf("stale rows survived: %+v", got.Threads)
	}
}

func TestLoadUnknownScopeIsEmpty(t *testing.T) {
	c := openTestCache(t)
	got, err := c.LoadState(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(got.Threads) != 0 || got.ActiveThreadID != "" || !got.LastSync.IsZero() {
		t.Fatalf("expected empty state, got %+v", got)
	}
}

func TestMediaBlobCache(t *testing.T) {
	c := openTestCache(t)
	blob := bytes.Repeat([]byte{0xAB, 0xCD}, 512)

	if c.HasMedia("t1", "f1") {
		t.Fatal("blob should not exist yet")
	}
	path, err := c.SaveMedia("t1", "f1", bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}
	if path != c.MediaPath("t1", "f1") {
		t.Fatalf("path mismatch: %s", path)
	}
	if !c.HasMedia("t1", "f1") {
		t.Fatal("blob not visible after save")
	}

	f, err := c.OpenMedia("t1", "f1")
	if err != nil {
		t.Fatalf("OpenMedia failed: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatal("blob contents differ")
	}

	if err := c.RemoveMedia("t1"); err != nil {
		t.Fatalf("RemoveMedia failed: %v", err)
	}
	if c.HasMedia("t1", "f1") {
		t.Fatal("blob survived RemoveMedia")
	}
}

func TestSecondOpenOnSameDirFails(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	defer first.Close()

	if _, err := Open(dir); err == nil {
		t.Fatal("expected second Open to fail while lock is held")
	}
}
