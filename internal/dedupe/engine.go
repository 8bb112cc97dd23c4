// ABOUTME: Core dedup engine: TTL-bounded processed-call and cancelled-room maps.
// ABOUTME: Gates incoming call signals and tracks per-call lifecycle transitions.

package dedupe

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/callguard/internal/callstate"
	"github.com/2389/callguard/internal/storage"
)

// Storage keys for the two persisted maps. Versioned so a future
// layout change can load old keys side by side during migration.
const (
	processedKey = "callguard:processed:v1"
	cancelledKey = "callguard:cancelled:v1"
)

// Default TTL and sweep settings.
const (
	DefaultProcessedTTL  = 5 * time.Minute
	DefaultCancelledTTL  = 2 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Options configures the engine's TTL windows and sweep cadence.
// Zero values fall back to the defaults.
type Options struct {
	ProcessedTTL  time.Duration
	CancelledTTL  time.Duration
	SweepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ProcessedTTL <= 0 {
		o.ProcessedTTL = DefaultProcessedTTL
	}
	if o.CancelledTTL <= 0 {
		o.CancelledTTL = DefaultCancelledTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	return o
}

// Engine is the single source of truth for "has this call signal
// already been handled, or was this room just cancelled?". All public
// operations are safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	processed map[string]*callstate.ProcessedCall // keyed by call ID
	cancelled map[string]*callstate.CancelledRoom // keyed by room ID

	kv     storage.KV
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	started bool
	done    chan struct{}
	saveCh  chan struct{} // buffered; coalesces pending snapshot requests
	wg      sync.WaitGroup

	// persistMu serializes snapshot writes. The background writer and
	// the synchronous ClearAll path both persist; without this, a
	// snapshot read before a clear could land after the clear's write
	// and resurrect cleared entries on the next restart.
	persistMu sync.Mutex
}

// New creates an engine backed by the given KV store. The store is only
// read during Initialize and written by the background persistence
// writer; the in-memory maps stay authoritative while the process runs.
func New(kv storage.KV, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		processed: make(map[string]*callstate.ProcessedCall),
		cancelled: make(map[string]*callstate.CancelledRoom),
		kv:        kv,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "dedupe"),
		now:       time.Now,
	}
}

// Initialize loads both maps from storage, discarding entries already
// past their TTL, and starts the background sweeper and persistence
// writer. Calling it again while running is a no-op; calling it after
// Cleanup restarts the background work. Storage read failures are
// absorbed: the engine starts empty rather than failing call handling.
func (e *Engine) Initialize(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.loadLocked(ctx)
	e.done = make(chan struct{})
	e.saveCh = make(chan struct{}, 1)
	e.started = true
	e.wg.Add(2)
	go e.persistLoop(e.done, e.saveCh)
	go e.sweepLoop(e.done)
	e.mu.Unlock()
}

// Cleanup stops the background sweeper and persistence writer. It does
// not clear any data. Safe to call multiple times.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	close(e.done)
	e.started = false
	e.mu.Unlock()
	e.wg.Wait()
}

// ShouldProcessCall reports whether an incoming call signal should be
// acted upon. It returns false when the call ID already has a live
// processed entry (duplicate delivery) or the room has a live
// cancellation (cancel arrived first). It has no side effects.
func (e *Engine) ShouldProcessCall(callID, roomID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.liveProcessedLocked(callID) != nil {
		e.logger.Debug("duplicate call signal blocked", "call_id", callID, "room_id", roomID)
		return false
	}
	if e.liveCancelledLocked(roomID) != nil {
		e.logger.Debug("call signal blocked by cancelled room", "call_id", callID, "room_id", roomID)
		return false
	}
	return true
}

// MarkCallReceived records a new ring attempt with status "received".
// The caller must have just received true from ShouldProcessCall; a
// live entry for the same call ID is never overwritten.
func (e *Engine) MarkCallReceived(callID, roomID string) {
	e.mu.Lock()
	if e.liveProcessedLocked(callID) != nil {
		e.mu.Unlock()
		e.logger.Warn("duplicate receive rejected", "call_id", callID, "room_id", roomID)
		return
	}
	e.processed[callID] = &callstate.ProcessedCall{
		CallID:     callID,
		RoomID:     roomID,
		ReceivedAt: e.now(),
		Status:     callstate.StatusReceived,
	}
	e.mu.Unlock()

	e.logger.Debug("call received", "call_id", callID, "room_id", roomID)
	e.requestSave()
}

// MarkCallShown records that the incoming-call UI was displayed.
func (e *Engine) MarkCallShown(callID string) {
	e.transition(callID, callstate.StatusShown)
}

// MarkCallAccepted records that the user answered the call.
func (e *Engine) MarkCallAccepted(callID string) {
	e.transition(callID, callstate.StatusAccepted)
}

// MarkCallDeclined records that the user declined the call.
func (e *Engine) MarkCallDeclined(callID string) {
	e.transition(callID, callstate.StatusDeclined)
}

// MarkCallTimeout records that the ring timed out unanswered.
func (e *Engine) MarkCallTimeout(callID string) {
	e.transition(callID, callstate.StatusTimeout)
}

// transition applies a validated lifecycle transition and re-stamps the
// entry's timestamp. A missing entry is a benign late callback, not an
// error; an illegal transition is rejected and logged.
func (e *Engine) transition(callID string, next callstate.Status) {
	e.mu.Lock()
	entry := e.liveProcessedLocked(callID)
	if entry == nil {
		e.mu.Unlock()
		e.logger.Debug("late lifecycle callback for unknown call", "call_id", callID, "status", next)
		return
	}
	if !entry.Status.CanTransitionTo(next) {
		from := entry.Status
		e.mu.Unlock()
		e.logger.Warn("rejected call status transition", "call_id", callID, "from", from, "to", next)
		return
	}
	entry.Status = next
	entry.ReceivedAt = e.now()
	e.mu.Unlock()

	e.logger.Debug("call status updated", "call_id", callID, "status", next)
	e.requestSave()
}

// MarkCallCancelled records a caller-side cancellation for a room.
// The room entry is always inserted or refreshed, blocking further ring
// attempts for the cancellation window. When callID is non-empty and a
// matching live non-terminal call exists, that call is also marked
// cancelled — this dual write neutralizes the out-of-order race
// regardless of whether the cancel arrived before or after the ring.
func (e *Engine) MarkCallCancelled(roomID, callID string) {
	e.mu.Lock()
	e.cancelled[roomID] = &callstate.CancelledRoom{
		RoomID:      roomID,
		CallID:      callID,
		CancelledAt: e.now(),
	}
	if callID != "" {
		if entry := e.liveProcessedLocked(callID); entry != nil && !entry.Status.Terminal() {
			entry.Status = callstate.StatusCancelled
			entry.ReceivedAt = e.now()
		}
	}
	e.mu.Unlock()

	e.logger.Debug("room cancelled", "room_id", roomID, "call_id", callID)
	e.requestSave()
}

// IsCallCancelled reports whether the room has a live cancellation.
func (e *Engine) IsCallCancelled(roomID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveCancelledLocked(roomID) != nil
}

// GetCallStatus returns the status of a live call entry. The second
// return is false when the entry is absent or expired.
func (e *Engine) GetCallStatus(callID string) (callstate.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.liveProcessedLocked(callID)
	if entry == nil {
		return "", false
	}
	return entry.Status, true
}

// GetActiveCalls returns copies of all live entries still ringing or on
// screen (status received or shown), ordered oldest first.
func (e *Engine) GetActiveCalls() []callstate.ProcessedCall {
	e.mu.Lock()
	active := make([]callstate.ProcessedCall, 0)
	for _, entry := range e.processed {
		if e.processedLiveLocked(entry) && entry.Status.Active() {
			active = append(active, *entry)
		}
	}
	e.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		if active[i].ReceivedAt.Equal(active[j].ReceivedAt) {
			return active[i].CallID < active[j].CallID
		}
		return active[i].ReceivedAt.Before(active[j].ReceivedAt)
	})
	return active
}

// ClearCall removes a call entry immediately, freeing the call ID for a
// potential re-ring without waiting for TTL eviction.
func (e *Engine) ClearCall(callID string) {
	e.mu.Lock()
	_, ok := e.processed[callID]
	delete(e.processed, callID)
	e.mu.Unlock()

	if ok {
		e.logger.Debug("call cleared", "call_id", callID)
		e.requestSave()
	}
}

// ClearAll drops both maps and synchronously persists the empty state.
// Unlike the call-signal operations this is an explicit administrative
// reset, so storage errors are returned to the caller.
func (e *Engine) ClearAll(ctx context.Context) error {
	e.mu.Lock()
	e.processed = make(map[string]*callstate.ProcessedCall)
	e.cancelled = make(map[string]*callstate.CancelledRoom)
	e.mu.Unlock()

	e.logger.Info("dedup state cleared")
	return e.persistSnapshot(ctx)
}

// liveProcessedLocked returns the entry for callID if present and not
// expired, nil otherwise. Expired entries are treated as absent without
// being removed; the sweeper owns physical removal. Must be called with
// mu held.
func (e *Engine) liveProcessedLocked(callID string) *callstate.ProcessedCall {
	entry, ok := e.processed[callID]
	if !ok || !e.processedLiveLocked(entry) {
		return nil
	}
	return entry
}

// liveCancelledLocked returns the cancellation for roomID if present
// and not expired. Must be called with mu held.
func (e *Engine) liveCancelledLocked(roomID string) *callstate.CancelledRoom {
	entry, ok := e.cancelled[roomID]
	if !ok || e.now().Sub(entry.CancelledAt) >= e.opts.CancelledTTL {
		return nil
	}
	return entry
}

func (e *Engine) processedLiveLocked(entry *callstate.ProcessedCall) bool {
	return e.now().Sub(entry.ReceivedAt) < e.opts.ProcessedTTL
}
