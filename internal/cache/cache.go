package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"threadsync/internal/threads"
)

// Cache is the on-disk store for synchronized thread state plus a blob
// directory for downloaded media. A file lock keeps concurrent client
// processes from writing the same cache.
type Cache struct {
	db       *sql.DB
	path     string
	lock     *flock.Flock
	mediaDir string
}

// Open initializes or connects to the cache under dir, acquiring the
// writer lock and applying migrations.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	mediaDir := filepath.Join(dir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure media dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "cache.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another threadsync instance owns the cache")
	}

	dbPath := filepath.Join(dir, "threads.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	cache := &Cache{db: db, path: dbPath, lock: lock, mediaDir: mediaDir}
	if err := cache.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return cache, nil
}

// Close releases the database and the writer lock.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.db != nil {
		dbErr = c.db.Close()
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	return dbErr
}

// SaveState replaces the persisted snapshot for one owner scope in a
// single transaction. The local sentinel thread is persisted too so a
// guest's drafts survive restarts.
func (c *Cache) SaveState(ctx context.Context, ownerScope string, state threads.State) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM threads WHERE owner_scope = ?", ownerScope); err != nil {
		return fmt.Errorf("clear scope: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, t := range state.Threads {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal thread %s: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO threads (owner_scope, thread_id, payload, updated_at) VALUES (?, ?, ?, ?)",
			ownerScope, t.ID, string(payload), now,
		); err != nil {
			return fmt.Errorf("insert thread %s: %w", t.ID, err)
		}
	}

	lastSync := ""
	if !state.LastSync.IsZero() {
		lastSync = state.LastSync.UTC().Format(time.RFC3339Nano)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_state (owner_scope, active_thread, last_sync) VALUES (?, ?, ?)
         ON CONFLICT(owner_scope) DO UPDATE SET active_thread = excluded.active_thread, last_sync = excluded.last_sync`,
		ownerScope, state.ActiveThreadID, lastSync,
	); err != nil {
		return fmt.Errorf("upsert sync state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// LoadState reads the persisted snapshot for one owner scope. A scope
// that has never been saved yields an empty state, not an error.
func (c *Cache) LoadState(ctx context.Context, ownerScope string) (threads.State, error) {
	var state threads.State

	rows, err := c.db.QueryContext(ctx, "SELECT payload FROM threads WHERE owner_scope = ?", ownerScope)
	if err != nil {
		return state, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return state, fmt.Errorf("scan thread payload: %w", err)
		}
		var t threads.Thread
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return state, fmt.Errorf("decode thread payload: %w", err)
		}
		state.Threads = append(state.Threads, &t)
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("iterate threads: %w", err)
	}

	var active, lastSync string
	row := c.db.QueryRowContext(ctx, "SELECT active_thread, last_sync FROM sync_state WHERE owner_scope = ?", ownerScope)
	switch err := row.Scan(&active, &lastSync); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return state, fmt.Errorf("scan sync state: %w", err)
	default:
		state.ActiveThreadID = active
		if lastSync != "" {
			if at, parseErr := time.Parse(time.RFC3339Nano, lastSync); parseErr == nil {
				state.LastSync = at
			}
		}
	}
	return state, nil
}

// DropScope removes all persisted threads for one owner scope, used on
// sign-out.
func (c *Cache) DropScope(ctx context.Context, ownerScope string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM threads WHERE owner_scope = ?", ownerScope); err != nil {
		return fmt.Errorf("drop scope threads: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM sync_state WHERE owner_scope = ?", ownerScope); err != nil {
		return fmt.Errorf("drop scope sync state: %w", err)
	}
	return nil
}

// MediaPath returns the blob location for one thread file. The path
// may not exist yet.
func (c *Cache) MediaPath(threadID, fileID string) string {
	return filepath.Join(c.mediaDir, sanitize(threadID), sanitize(fileID))
}

// SaveMedia streams a blob into the media cache, replacing any prior
// copy atomically via a temp file rename.
func (c *Cache) SaveMedia(threadID, fileID string, src io.Reader) (string, error) {
	dest := c.MediaPath(threadID, fileID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("ensure media thread dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create media temp: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write media blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close media temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize media blob: %w", err)
	}
	return dest, nil
}

// OpenMedia opens a cached blob for reading. Callers own the close.
func (c *Cache) OpenMedia(threadID, fileID string) (*os.File, error) {
	return os.Open(c.MediaPath(threadID, fileID))
}

// HasMedia reports whether a blob is cached locally.
func (c *Cache) HasMedia(threadID, fileID string) bool {
	info, err := os.Stat(c.MediaPath(threadID, fileID))
	return err == nil && !info.IsDir()
}

// RemoveMedia deletes all cached blobs for one thread.
func (c *Cache) RemoveMedia(threadID string) error {
	return os.RemoveAll(filepath.Join(c.mediaDir, sanitize(threadID)))
}

// sanitize keeps ids usable as path segments.
func sanitize(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	cleaned := replacer.Replace(id)
	if cleaned == "" {
		cleaned = "_"
	}
	return cleaned
}
