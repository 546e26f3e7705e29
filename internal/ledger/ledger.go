package ledger

import (
	"strings"
	"sync"

	"threadsync/internal/language"
)

// Ledger holds speculative token reservations keyed by composite
// thread/item/operation keys. Reserving an existing key replaces the
// prior hold; the total outstanding hold never exceeds the last known
// balance. All operations take effect atomically under one mutex.
type Ledger struct {
	mu      sync.Mutex
	balance int64
	holds   map[string]int64
}

// New constructs an empty ledger with a zero balance.
func New() *Ledger {
	return &Ledger{holds: make(map[string]int64)}
}

// ChatKey builds the reservation key for an operation on a confirmed
// chat item.
func ChatKey(threadID, chatItemID string) string {
	return threadID + ":chat:" + chatItemID
}

// ItemKey builds the reservation key for an operation on a draft item
// that has not yet been promoted to a chat item.
func ItemKey(threadID, itemID string) string {
	return threadID + ":item:" + itemID
}

// TranslateKey suffixes a base key for one target language.
func TranslateKey(base, lang string) string {
	return base + ":tr:" + language.Normalize(lang)
}

// SummarizeKey suffixes a base key for the summarize operation.
func SummarizeKey(base string) string {
	return base + ":sum"
}

// SetBalance records an authoritative balance. Callers handling a
// balance snapshot should follow with ClearAll: the confirmed number
// already accounts for every charge the holds were guessing at.
func (l *Ledger) SetBalance(balance int64) {
	l.mu.Lock()
	l.balance = balance
	l.mu.Unlock()
}

// Balance returns the last known authoritative balance.
func (l *Ledger) Balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Available returns the balance minus all outstanding holds, floored
// at zero.
func (l *Ledger) Available() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableLocked()
}

func (l *Ledger) availableLocked() int64 {
	available := l.balance - l.heldLocked()
	if available < 0 {
		return 0
	}
	return available
}

// Held returns the total outstanding hold.
func (l *Ledger) Held() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heldLocked()
}

func (l *Ledger) heldLocked() int64 {
	var total int64
	for _, amount := range l.holds {
		total += amount
	}
	return total
}

// Amount returns the outstanding hold at key, zero if none.
func (l *Ledger) Amount(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds[key]
}

// Reserve places a hold at key, replacing any prior hold there rather
// than adding to it. The effective amount is capped at the available
// balance; the capped value is returned. Non-positive requests just
// release the key.
func (l *Ledger) Reserve(key string, amount int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holds, key)
	if amount <= 0 {
		return 0
	}
	// Cap rather than reject: the estimate is advisory and the server
	// settles the real charge.
	if available := l.availableLocked(); amount > available {
		amount = available
	}
	if amount > 0 {
		l.holds[key] = amount
	}
	return amount
}

// Release drops the hold at key. Unknown keys are a no-op.
func (l *Ledger) Release(key string) {
	l.mu.Lock()
	delete(l.holds, key)
	l.mu.Unlock()
}

// ReleaseByPrefix drops every hold whose key starts with prefix. Used
// to clear all holds for a chat item or an entire thread.
func (l *Ledger) ReleaseByPrefix(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	released := 0
	for key := range l.holds {
		if strings.HasPrefix(key, prefix) {
			delete(l.holds, key)
			released++
		}
	}
	return released
}

// ClearAll drops every hold. Called when an authoritative balance
// snapshot arrives, since the confirmed number supersedes every
// speculative hold.
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	l.holds = make(map[string]int64)
	l.mu.Unlock()
}

// Transfer atomically moves the hold at oldKey to newKey, keeping the
// amount. There is no window where the amount looks unreserved. A
// missing oldKey is a no-op returning false.
func (l *Ledger) Transfer(oldKey, newKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, ok := l.holds[oldKey]
	if !ok {
		return false
	}
	delete(l.holds, oldKey)
	l.holds[newKey] = amount
	return true
}

// TransferPrefix moves every hold under oldPrefix to the corresponding
// key under newPrefix, preserving suffixes (per-language, summarize).
func (l *Ledger) TransferPrefix(oldPrefix, newPrefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	moved := 0
	for key, amount := range l.holds {
		if !strings.HasPrefix(key, oldPrefix) {
			continue
		}
		delete(l.holds, key)
		l.holds[newPrefix+key[len(oldPrefix):]] = amount
		moved++
	}
	return moved
}

// Holds returns a copy of all outstanding holds.
func (l *Ledger) Holds() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make(map[string]int64, len(l.holds))
	for k, v := range l.holds {
		cp[k] = v
	}
	return cp
}
