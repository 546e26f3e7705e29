package threads

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"threadsync/internal/faults"
	"threadsync/internal/language"
)

// Store is the single mutable holder of thread state. Reads are
// synchronous and return defensive copies; every mutation happens under
// one mutex within a single call so concurrent event handlers never
// observe a partially merged slice. Subscribers are notified after the
// mutation completes, outside the lock.
type Store struct {
	mu       sync.Mutex
	threads  map[string]*Thread
	active   string
	lastSync time.Time
	live     map[string]*LiveRun
	subs     map[int]func()
	nextSub  int
	logger   *slog.Logger
}

// NewStore constructs an empty store containing only the local
// sentinel thread.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		threads: make(map[string]*Thread),
		live:    make(map[string]*LiveRun),
		subs:    make(map[int]func()),
		logger:  logger,
	}
	s.threads[DefaultThreadID] = &Thread{ID: DefaultThreadID, Title: "Drafts", CreatedAt: time.Now().UTC()}
	s.active = DefaultThreadID
	return s
}

// Subscribe registers a change listener and returns an unsubscribe
// function. Listeners run after each completed mutation.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Threads returns a sorted copy of all threads, most recent first.
func (s *Store) Threads() []*Thread {
	s.mu.Lock()
	list := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		list = append(list, cloneThread(t))
	}
	s.mu.Unlock()
	SortThreads(list)
	return list
}

// Thread returns a copy of one thread.
func (s *Store) Thread(id string) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, false
	}
	return cloneThread(t), true
}

// ActiveThreadID returns the currently selected thread id.
func (s *Store) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveThreadID selects a thread. Unknown ids are rejected.
func (s *Store) SetActiveThreadID(id string) error {
	s.mu.Lock()
	_, ok := s.threads[id]
	if ok {
		s.active = id
	}
	s.mu.Unlock()
	if !ok {
		return faults.Wrap(faults.ErrApplication, "store", "select", fmt.Sprintf("unknown thread %q", id), nil)
	}
	s.notify()
	return nil
}

// LastSync returns the timestamp of the last successful index sync.
func (s *Store) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// SetLastSync records a successful index sync.
func (s *Store) SetLastSync(at time.Time) {
	s.mu.Lock()
	s.lastSync = at
	s.mu.Unlock()
}

// Upsert inserts or replaces a locally created thread without merge
// rules. Server state goes through ApplySnapshot instead.
func (s *Store) Upsert(t *Thread) {
	if t == nil || t.ID == "" {
		return
	}
	s.mu.Lock()
	s.threads[t.ID] = cloneThread(t)
	s.mu.Unlock()
	s.notify()
}

// ApplySnapshot merges an authoritative server snapshot into the local
// copy using the draft and chat item merge rules. The sentinel thread
// is never synchronized.
func (s *Store) ApplySnapshot(snapshot *Thread) {
	if snapshot == nil || snapshot.ID == "" || snapshot.ID == DefaultThreadID {
		return
	}
	s.mu.Lock()
	s.threads[snapshot.ID] = MergeThread(s.threads[snapshot.ID], snapshot)
	s.mu.Unlock()
	s.notify()
}

// Remove drops a thread from the store, e.g. when the index marks it
// soft-deleted. The sentinel thread is never deletable.
func (s *Store) Remove(id string) bool {
	if id == DefaultThreadID {
		return false
	}
	s.mu.Lock()
	_, ok := s.threads[id]
	if ok {
		delete(s.threads, id)
		if s.active == id {
			s.active = DefaultThreadID
		}
		for key := range s.live {
			if threadOfLiveKey(key) == id {
				delete(s.live, key)
			}
		}
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Stale reports whether the local copy differs from an index row. A
// missing local thread is stale; equal stamps are not.
func (s *Store) Stale(row IndexRow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[row.ID]
	if !ok {
		return true
	}
	return !t.Server.Equal(row.Server)
}

// PatchChatItem deep-merges a chat item patch into a thread. Creates
// the item if it does not exist yet.
func (s *Store) PatchChatItem(threadID string, patch *ChatItem) {
	if patch == nil || patch.ChatItemID == "" {
		return
	}
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("dropping chat item patch for unknown thread",
			slog.String("thread_id", threadID), slog.String("chat_item_id", patch.ChatItemID))
		return
	}
	t.ChatItems = MergeChatItems(t.ChatItems, []*ChatItem{patch})
	touch(t, time.Now().UTC())
	s.mu.Unlock()
	s.notify()
}

// ChatItem returns a copy of one chat item.
func (s *Store) ChatItem(threadID, chatItemID string) (*ChatItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, false
	}
	for _, item := range t.ChatItems {
		if item.ChatItemID == chatItemID {
			return cloneChatItem(item), true
		}
	}
	return nil, false
}

// opTerminal reports whether the given operation on an item has already
// reached a terminal state, in which case late progress is dropped.
func opTerminal(item *ChatItem, op, lang string) bool {
	if item == nil {
		return false
	}
	switch op {
	case "transcribe":
		return item.Status.Transcribe != nil && item.Status.Transcribe.State.Terminal()
	case "summarize":
		return item.Status.Summarize != nil && item.Status.Summarize.State.Terminal()
	case "translate":
		if item.Status.Translate == nil {
			return false
		}
		st := item.Status.Translate.ByLang[language.Normalize(lang)]
		return st != nil && st.State.Terminal()
	}
	return false
}

// ApplyProgress records a streaming progress percentage. Progress for
// an operation already in a terminal state is dropped: the event was
// re-ordered behind its own completion.
func (s *Store) ApplyProgress(threadID, chatItemID, op, lang string, pct float64) {
	s.mu.Lock()
	if item := s.findItem(threadID, chatItemID); opTerminal(item, op, lang) {
		s.mu.Unlock()
		return
	}
	s.liveFor(threadID, chatItemID).Progress[OpKey(op, lang)] = pct
	s.mu.Unlock()
	s.notify()
}

// ApplyStream appends an incremental text chunk to the live buffer.
func (s *Store) ApplyStream(threadID, chatItemID, op, lang, chunk string) {
	if chunk == "" {
		return
	}
	s.mu.Lock()
	if item := s.findItem(threadID, chatItemID); opTerminal(item, op, lang) {
		s.mu.Unlock()
		return
	}
	live := s.liveFor(threadID, chatItemID)
	key := OpKey(op, lang)
	live.Text[key] += chunk
	s.mu.Unlock()
	s.notify()
}

// ApplySegments replaces the live segment array for an operation.
func (s *Store) ApplySegments(threadID, chatItemID, op, lang string, segments []Segment) {
	s.mu.Lock()
	if item := s.findItem(threadID, chatItemID); opTerminal(item, op, lang) {
		s.mu.Unlock()
		return
	}
	live := s.liveFor(threadID, chatItemID)
	live.Segments[OpKey(op, lang)] = append([]Segment(nil), segments...)
	s.mu.Unlock()
	s.notify()
}

// Live returns a copy of the streaming buffers for one chat item, or
// nil if none exist.
func (s *Store) Live(threadID, chatItemID string) *LiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[liveKey(threadID, chatItemID)].clone()
}

// ClearLive drops all streaming buffers, e.g. on reconnect.
func (s *Store) ClearLive() {
	s.mu.Lock()
	s.live = make(map[string]*LiveRun)
	s.mu.Unlock()
}

// SetDraftFiles replaces a thread's draft file list.
func (s *Store) SetDraftFiles(threadID string, files []DraftFile) {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if ok {
		t.Draft.Files = append([]DraftFile(nil), files...)
		t.Draft.UpdatedAt = time.Now().UTC()
		touch(t, t.Draft.UpdatedAt)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// UpsertDraftFile inserts or replaces one draft file by item id.
func (s *Store) UpsertDraftFile(threadID string, file DraftFile) {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if ok {
		replaced := false
		for i := range t.Draft.Files {
			if t.Draft.Files[i].ItemID == file.ItemID {
				t.Draft.Files[i] = file
				replaced = true
				break
			}
		}
		if !replaced {
			t.Draft.Files = append(t.Draft.Files, file)
		}
		t.Draft.UpdatedAt = time.Now().UTC()
		touch(t, t.Draft.UpdatedAt)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// RemoveDraftFile deletes one draft file by item id. Used both for
// explicit user deletion and for rolling back a failed upload.
func (s *Store) RemoveDraftFile(threadID, itemID string) bool {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	removed := false
	if ok {
		files := t.Draft.Files[:0]
		for _, f := range t.Draft.Files {
			if f.ItemID == itemID {
				removed = true
				continue
			}
			files = append(files, f)
		}
		t.Draft.Files = files
		if removed {
			t.Draft.UpdatedAt = time.Now().UTC()
			touch(t, t.Draft.UpdatedAt)
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify()
	}
	return removed
}

// Promotion maps a draft item to the chat item the server created from it.
type Promotion struct {
	ItemID string
	Item   *ChatItem
}

// Promote applies a CHAT_ITEMS_CREATED event: promoted entries leave
// the draft and the new chat items are merged in, all within one lock
// hold so no observer sees the draft entry and the chat item missing at
// the same time. Returns the promotions actually applied.
func (s *Store) Promote(threadID string, promotions []Promotion) []Promotion {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	applied := make([]Promotion, 0, len(promotions))
	for _, p := range promotions {
		if p.Item == nil || p.Item.ChatItemID == "" {
			continue
		}
		files := t.Draft.Files[:0]
		for _, f := range t.Draft.Files {
			if f.ItemID == p.ItemID {
				continue
			}
			files = append(files, f)
		}
		t.Draft.Files = files
		t.ChatItems = MergeChatItems(t.ChatItems, []*ChatItem{p.Item})
		applied = append(applied, p)
	}
	if len(applied) > 0 {
		touch(t, time.Now().UTC())
	}
	s.mu.Unlock()
	if len(applied) > 0 {
		s.notify()
	}
	return applied
}

// State is the persisted portion of the store.
type State struct {
	Threads        []*Thread `json:"threads"`
	ActiveThreadID string    `json:"activeThreadId"`
	LastSync       time.Time `json:"lastSync,omitzero"`
}

// Export captures the persistable state. Live buffers are excluded.
func (s *Store) Export() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		list = append(list, cloneThread(t))
	}
	SortThreads(list)
	return State{Threads: list, ActiveThreadID: s.active, LastSync: s.lastSync}
}

// Import restores persisted state, replacing current contents. The
// sentinel thread is recreated if the snapshot lacks it.
func (s *Store) Import(state State) {
	s.mu.Lock()
	s.threads = make(map[string]*Thread, len(state.Threads)+1)
	for _, t := range state.Threads {
		if t == nil || t.ID == "" {
			continue
		}
		s.threads[t.ID] = cloneThread(t)
	}
	if _, ok := s.threads[DefaultThreadID]; !ok {
		s.threads[DefaultThreadID] = &Thread{ID: DefaultThreadID, Title: "Drafts", CreatedAt: time.Now().UTC()}
	}
	s.active = state.ActiveThreadID
	if _, ok := s.threads[s.active]; !ok {
		s.active = DefaultThreadID
	}
	s.lastSync = state.LastSync
	s.live = make(map[string]*LiveRun)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) findItem(threadID, chatItemID string) *ChatItem {
	t, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	for _, item := range t.ChatItems {
		if item.ChatItemID == chatItemID {
			return item
		}
	}
	return nil
}

func (s *Store) liveFor(threadID, chatItemID string) *LiveRun {
	key := liveKey(threadID, chatItemID)
	l, ok := s.live[key]
	if !ok {
		l = newLiveRun()
		s.live[key] = l
	}
	return l
}

func liveKey(threadID, chatItemID string) string {
	return threadID + "\x00" + chatItemID
}

func threadOfLiveKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i]
		}
	}
	return key
}
