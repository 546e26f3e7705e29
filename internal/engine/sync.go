package engine

import (
	"context"
	"time"

	"threadsync/internal/faults"
	"threadsync/internal/logging"
)

// SyncIndex runs one delta pass against the HTTP index: fetch rows
// changed since the last sync, drop soft-deleted threads without a
// fetch, and re-fetch only the threads whose four-field stamp differs
// from the local copy.
func (e *Engine) SyncIndex(ctx context.Context) error {
	if e.backend == nil {
		return faults.Wrap(faults.ErrApplication, "engine", "sync", "no backend configured", nil)
	}

	since := e.store.LastSync()
	rows, err := e.backend.ThreadIndex(ctx, since)
	if err != nil {
		return err
	}

	fetched, removed := 0, 0
	for _, row := range rows {
		if row.Deleted {
			if e.store.Remove(row.ID) {
				removed++
				e.ledger.ReleaseByPrefix(row.ID + ":")
				if e.cache != nil {
					if err := e.cache.RemoveMedia(row.ID); err != nil {
						e.log.Warn("failed to drop media for deleted thread",
							logging.Args(logging.String("thread_id", row.ID), logging.Error(err))...)
					}
				}
			}
			continue
		}
		if !e.store.Stale(row) {
			continue
		}
		full, err := e.backend.Thread(ctx, row.ID)
		if err != nil {
			return err
		}
		e.store.ApplySnapshot(full)
		fetched++
	}

	e.store.SetLastSync(time.Now().UTC())
	e.persist()
	e.log.Info("index sync complete",
		logging.Args(
			logging.Int("rows", len(rows)),
			logging.Int("fetched", fetched),
			logging.Int("removed", removed))...)
	return nil
}
