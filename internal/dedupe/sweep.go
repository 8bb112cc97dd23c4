// ABOUTME: Background eviction sweep that removes expired entries from both maps.
// ABOUTME: Persists the shrunken state only when a sweep actually removed something.

package dedupe

import "time"

// sweepLoop runs the periodic eviction sweep until done is closed.
func (e *Engine) sweepLoop(done <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweep()
		case <-done:
			return
		}
	}
}

// sweep removes every entry past its TTL from both maps and requests a
// snapshot write when anything was removed. Lookups already ignore
// expired entries; the sweep exists to bound memory and storage growth.
func (e *Engine) sweep() {
	now := e.now()
	removed := 0

	e.mu.Lock()
	for callID, entry := range e.processed {
		if now.Sub(entry.ReceivedAt) >= e.opts.ProcessedTTL {
			delete(e.processed, callID)
			removed++
		}
	}
	for roomID, entry := range e.cancelled {
		if now.Sub(entry.CancelledAt) >= e.opts.CancelledTTL {
			delete(e.cancelled, roomID)
			removed++
		}
	}
	e.mu.Unlock()

	if removed > 0 {
		e.logger.Debug("evicted expired dedup entries", "count", removed)
		e.requestSave()
	}
}
