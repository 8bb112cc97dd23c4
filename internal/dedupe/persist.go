// ABOUTME: Persistence bridge between the in-memory maps and the KV store.
// ABOUTME: TTL-filtered load on init, coalesced full-snapshot writes on mutation.

package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/2389/callguard/internal/callstate"
	"github.com/2389/callguard/internal/storage"
)

// persistTimeout bounds a single snapshot write.
const persistTimeout = 5 * time.Second

// requestSave asks the background writer for a snapshot write. The
// request channel is buffered with capacity one, so back-to-back
// mutations coalesce into a single write of the latest state.
func (e *Engine) requestSave() {
	e.mu.Lock()
	ch := e.saveCh
	started := e.started
	e.mu.Unlock()

	if !started || ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// persistLoop drains coalesced snapshot requests from mutating
// operations. Writes themselves are serialized by persistMu (ClearAll
// also writes), so whichever snapshot lands last reflects the most
// recent in-memory truth.
func (e *Engine) persistLoop(done <-chan struct{}, saveCh <-chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-saveCh:
			e.persistNow()
		case <-done:
			// Flush a pending request so a mutation issued just before
			// shutdown still reaches storage.
			select {
			case <-saveCh:
				e.persistNow()
			default:
			}
			return
		}
	}
}

// persistNow writes a snapshot with a bounded timeout, absorbing any
// failure. The in-memory maps are authoritative while the process is
// alive; a failed write only weakens restart recovery.
func (e *Engine) persistNow() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.persistSnapshot(ctx); err != nil {
		e.logger.Warn("persisting dedup state failed", "error", err)
	}
}

// persistSnapshot serializes the entire current state of both maps and
// writes them to storage. Always writing the full snapshot (never a
// delta) means a completed write can never leave storage in a partial
// state, and persistMu keeps the read-marshal-write sequence atomic:
// a write that acquires the mutex later also read later state, so the
// last write always reflects the newest in-memory truth.
func (e *Engine) persistSnapshot(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	processed := make([]callstate.ProcessedCall, 0, len(e.processed))
	for _, entry := range e.processed {
		processed = append(processed, *entry)
	}
	cancelled := make([]callstate.CancelledRoom, 0, len(e.cancelled))
	for _, entry := range e.cancelled {
		cancelled = append(cancelled, *entry)
	}
	e.mu.Unlock()

	processedData, err := json.Marshal(processed)
	if err != nil {
		return err
	}
	cancelledData, err := json.Marshal(cancelled)
	if err != nil {
		return err
	}

	if err := e.kv.Set(ctx, processedKey, processedData); err != nil {
		return err
	}
	return e.kv.Set(ctx, cancelledKey, cancelledData)
}

// loadLocked restores both maps from storage, discarding entries that
// are already past their TTL and skipping entries that fail to decode.
// A restart after a long dead period therefore behaves exactly like a
// cold start. Must be called with mu held.
func (e *Engine) loadLocked(ctx context.Context) {
	now := e.now()

	for _, raw := range e.loadEntries(ctx, processedKey) {
		var entry callstate.ProcessedCall
		if err := json.Unmarshal(raw, &entry); err != nil {
			e.logger.Warn("skipping undecodable processed-call entry", "error", err)
			continue
		}
		if entry.CallID == "" || !entry.Status.Valid() {
			e.logger.Warn("skipping malformed processed-call entry", "call_id", entry.CallID, "status", entry.Status)
			continue
		}
		if now.Sub(entry.ReceivedAt) >= e.opts.ProcessedTTL {
			continue
		}
		e.processed[entry.CallID] = &entry
	}

	for _, raw := range e.loadEntries(ctx, cancelledKey) {
		var entry callstate.CancelledRoom
		if err := json.Unmarshal(raw, &entry); err != nil {
			e.logger.Warn("skipping undecodable cancelled-room entry", "error", err)
			continue
		}
		if entry.RoomID == "" {
			e.logger.Warn("skipping malformed cancelled-room entry")
			continue
		}
		if now.Sub(entry.CancelledAt) >= e.opts.CancelledTTL {
			continue
		}
		e.cancelled[entry.RoomID] = &entry
	}

	e.logger.Info("dedup state loaded",
		"processed_calls", len(e.processed),
		"cancelled_rooms", len(e.cancelled),
	)
}

// loadEntries reads one persisted array and splits it into raw
// per-entry messages so a single corrupt entry cannot abort the load.
func (e *Engine) loadEntries(ctx context.Context, key string) []json.RawMessage {
	data, err := e.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		e.logger.Warn("reading persisted dedup state failed, starting empty", "key", key, "error", err)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		e.logger.Warn("persisted dedup state is not a JSON array, starting empty", "key", key, "error", err)
		return nil
	}
	return items
}
