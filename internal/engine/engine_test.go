package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

type fakeSocket struct {
	mu        sync.Mutex
	listeners []func(protocol.Envelope)
	sent      []protocol.Envelope
	bound     []string
}

func (f *fakeSocket) Send(msgType string, payload any, requestID string) bool {
	env, err := protocol.NewEnvelope(msgType, "", payload, requestID)
	if err != nil {
		return false
	}
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
	return true
}

func (f *fakeSocket) OnMessage(fn func(protocol.Envelope)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeSocket) WaitForReply(ctx context.Context, match func(protocol.Envelope) bool, timeout time.Duration) (protocol.Envelope, error) {
	return protocol.Envelope{}, context.DeadlineExceeded
}

func (f *fakeSocket) Bind(threadID string) {
	f.mu.Lock()
	f.bound = append(f.bound, threadID)
	f.mu.Unlock()
}

func (f *fakeSocket) deliver(t *testing.T, msgType, threadID string, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, threadID, payload, "")
	if err != nil {
		t.Fatalf("build %s: %v", msgType, err)
	}
	f.mu.Lock()
	fns := append([]func(protocol.Envelope){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

func (f *fakeSocket) sentOfType(msgType string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range f.sent {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeSocket, *threads.Store, *ledger.Ledger) {
	t.Helper()
	socket := &fakeSocket{}
	store := threads.NewStore(logging.NewNop())
	led := ledger.New()
	eng := New(Options{
		Socket: socket,
		Store:  store,
		Ledger: led,
		Logger: logging.NewNop(),
	})
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng, socket, store, led
}

func TestTokensUpdatedSupersedesHolds(t *testing.T) {
	_, socket, _, led := newTestEngine(t)
	led.SetBalance(500)
	led.Reserve("t1:chat:ci-1", 120)
	led.Reserve("t1:chat:ci-2", 80)

	socket.deliver(t, protocol.TypeTokensUpdated, "t1", protocol.TokensUpdatedPayload{Balance: 310})

	if led.Balance() != 310 {
		t.Fatalf("balance = %d, want 310", led.Balance())
	}
	if led.Held() != 0 {
		t.Fatalf("holds survived balance snapshot: %d", led.Held())
	}
	if led.Available() != 310 {
		t.Fatalf("available = %d, want 310", led.Available())
	}
}

func TestChatItemsCreatedPromotionFlow(t *testing.T) {
	_, socket, store, led := newTestEngine(t)
	led.SetBalance(1000)

	store.Upsert(&threads.Thread{
		ID: "t1",
		Draft: threads.Draft{Files: []threads.DraftFile{
			{ItemID: "item-1", Stage: threads.StageUploaded, Name: "a.mp3"},
			{ItemID: "item-2", Stage: threads.StageUploaded, Name: "b.mp3"},
		}},
	})
	base := ledger.ItemKey("t1", "item-1")
	led.Reserve(base, 90)
	led.Reserve(ledger.TranslateKey(base, "ES"), 30)

	socket.deliver(t, protocol.TypeChatItemsCreated, "t1", protocol.ChatItemsCreatedPayload{
		Items: []protocol.CreatedItem{
			{ItemID: "item-1", Item: &threads.ChatItem{ChatItemID: "ci-9", CreatedAt: time.Now()}},
		},
	})

	thread, ok := store.Thread("t1")
	if !ok {
		t.Fatal("thread missing")
	}
	if len(thread.Draft.Files) != 1 || thread.Draft.Files[0].ItemID != "item-2" {
		t.Fatalf("draft not pruned: %+v", thread.Draft.Files)
	}
	if len(thread.ChatItems) != 1 || thread.ChatItems[0].ChatItemID != "ci-9" {
		t.Fatalf("chat item not merged: %+v", thread.ChatItems)
	}

	newBase := ledger.ChatKey("t1", "ci-9")
	if led.Amount(newBase) != 90 {
		t.Fatalf("base hold not transferred: %v", led.Holds())
	}
	if led.Amount(ledger.TranslateKey(newBase, "es")) != 30 {
		t.Fatalf("translate hold not transferred: %v", led.Holds())
	}
	if led.Amount(base) != 0 {
		t.Fatalf("old hold survived: %v", led.Holds())
	}

	if len(socket.sentOfType(protocol.TypeGetThreadSnapshot)) != 1 {
		t.Fatal("promotion did not re-request a snapshot")
	}
}

func TestRunCompletedReleasesOnce(t *testing.T) {
	_, socket, store, led := newTestEngine(t)
	led.SetBalance(1000)
	store.Upsert(&threads.Thread{
		ID:        "t1",
		ChatItems: []*threads.ChatItem{{ChatItemID: "ci-1", Status: threads.ItemStatus{Transcribe: &threads.OpStatus{State: threads.OpRunning}}}},
	})
	led.Reserve(ledger.ChatKey("t1", "ci-1"), 150)

	result := protocol.RunResultPayload{ChatItemID: "ci-1", Op: OpTranscribe, Tokens: 142}
	socket.deliver(t, protocol.TypeRunCompleted, "t1", result)
	socket.deliver(t, protocol.TypeRunCompleted, "t1", result)

	if led.Held() != 0 {
		t.Fatalf("held = %d after completion", led.Held())
	}
	if led.Available() != 1000 {
		t.Fatalf("duplicate completion corrupted available: %d", led.Available())
	}

	item, ok := store.ChatItem("t1", "ci-1")
	if !ok {
		t.Fatal("chat item missing")
	}
	if item.Status.Transcribe == nil || item.Status.Transcribe.State != threads.OpDone {
		t.Fatalf("transcribe status = %+v", item.Status.Transcribe)
	}
	if item.Billing.TranscribeTokens != 142 {
		t.Fatalf("billing = %+v", item.Billing)
	}

	// Progress re-ordered behind its own completion is dropped.
	socket.deliver(t, protocol.TypeChatItemProgress, "t1", protocol.ChatItemProgressPayload{
		ChatItemID: "ci-1", Op: OpTranscribe, Percent: 40,
	})
	if live := store.Live("t1", "ci-1"); live != nil && live.Progress[OpTranscribe] != 0 {
		t.Fatalf("late progress recorded: %+v", live.Progress)
	}
}

func TestRunFailedMarksFailureAndReleases(t *testing.T) {
	_, socket, store, led := newTestEngine(t)
	led.SetBalance(1000)
	store.Upsert(&threads.Thread{
		ID:        "t1",
		ChatItems: []*threads.ChatItem{{ChatItemID: "ci-1"}},
	})
	base := ledger.ChatKey("t1", "ci-1")
	led.Reserve(ledger.TranslateKey(base, "fr"), 60)

	socket.deliver(t, protocol.TypeRunFailed, "t1", protocol.RunResultPayload{
		ChatItemID: "ci-1",
		Op:         OpTranslate,
		Lang:       "FR",
		Error:      "model overloaded",
		Code:       "MODEL_BUSY",
	})

	if led.Held() != 0 {
		t.Fatalf("failed run kept its hold: %v", led.Holds())
	}
	item, _ := store.ChatItem("t1", "ci-1")
	status := item.Status.Translate.ByLang["fr"]
	if status == nil || status.State != threads.OpFailed || status.Error != "model overloaded" {
		t.Fatalf("translate status = %+v", item.Status.Translate)
	}
}

func TestThreadSnapshotMergesAndKeepsBusyLocals(t *testing.T) {
	_, socket, store, _ := newTestEngine(t)
	store.Upsert(&threads.Thread{
		ID: "t1",
		Draft: threads.Draft{Files: []threads.DraftFile{
			{ItemID: "mid-flight", Stage: threads.StageUploading},
			{ItemID: "stale", Stage: threads.StageLinked},
		}},
	})

	socket.deliver(t, protocol.TypeThreadSnapshot, "t1", protocol.ThreadSnapshotPayload{
		Thread: threads.Thread{
			ID:     "t1",
			Server: threads.Stamp{Version: 5},
			Draft:  threads.Draft{Files: []threads.DraftFile{{ItemID: "server-file", Stage: threads.StageLinked}}},
		},
	})

	thread, _ := store.Thread("t1")
	ids := map[string]bool{}
	for _, f := range thread.Draft.Files {
		ids[f.ItemID] = true
	}
	if !ids["server-file"] || !ids["mid-flight"] || ids["stale"] {
		t.Fatalf("draft merge wrong: %v", ids)
	}
	if thread.Server.Version != 5 {
		t.Fatalf("stamp not adopted: %+v", thread.Server)
	}
}

func TestThreadInvalidatedRequestsSnapshot(t *testing.T) {
	_, socket, _, _ := newTestEngine(t)
	socket.deliver(t, protocol.TypeThreadInvalidated, "t1", protocol.ThreadInvalidatedPayload{Reason: "draft changed"})
	if len(socket.sentOfType(protocol.TypeGetThreadSnapshot)) != 1 {
		t.Fatal("invalidation did not request a snapshot")
	}
}

func TestHelloOKResetsSessionState(t *testing.T) {
	_, socket, store, led := newTestEngine(t)
	led.SetBalance(100)
	led.Reserve("t1:chat:ci-1", 50)
	store.Upsert(&threads.Thread{ID: "t1", ChatItems: []*threads.ChatItem{{ChatItemID: "ci-1"}}})
	store.ApplyStream("t1", "ci-1", OpTranscribe, "", "partial text")

	socket.deliver(t, protocol.TypeHelloOK, "", protocol.HelloOKPayload{Balance: 75})

	if led.Balance() != 75 || led.Held() != 0 {
		t.Fatalf("ledger not reset: balance=%d held=%d", led.Balance(), led.Held())
	}
	if live := store.Live("t1", "ci-1"); live != nil {
		t.Fatalf("live buffers survived reconnect: %+v", live)
	}
}
