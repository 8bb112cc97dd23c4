// ABOUTME: Tests for the dedup gate and call lifecycle transitions.
// ABOUTME: Covers duplicate blocking, cancel races, TTL expiry, and benign late callbacks.

package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/callguard/internal/callstate"
	"github.com/2389/callguard/internal/storage"
)

// newTestEngine returns an engine on an in-memory store with a
// controllable clock. Background goroutines are not started; tests
// drive sweeps and snapshots directly.
func newTestEngine(t *testing.T) (*Engine, *storage.MemoryKV, *time.Time) {
	t.Helper()
	kv := storage.NewMemoryKV()
	e := New(kv, Options{}, nil)

	current := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	clock := &current
	e.now = func() time.Time { return *clock }
	return e, kv, clock
}

func TestShouldProcessCall_NewCall(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.True(t, e.ShouldProcessCall("c1", "r1"))
}

func TestShouldProcessCall_DuplicateBlocked(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.True(t, e.ShouldProcessCall("c1", "r1"))
	e.MarkCallReceived("c1", "r1")

	// Same callId is blocked regardless of roomId.
	assert.False(t, e.ShouldProcessCall("c1", "r1"))
	assert.False(t, e.ShouldProcessCall("c1", "r2"))

	// A different callId for the same room is an independent ring attempt.
	assert.True(t, e.ShouldProcessCall("c2", "r1"))
}

func TestShouldProcessCall_CancelBeforeReceive(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallCancelled("r1", "")

	// The call was never seen, but its room is blocked.
	assert.False(t, e.ShouldProcessCall("c9", "r1"))
	assert.True(t, e.ShouldProcessCall("c9", "r2"))
}

func TestMarkCallCancelled_AfterReceive(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	e.MarkCallShown("c1")
	e.MarkCallCancelled("r1", "c1")

	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusCancelled, status)
	assert.True(t, e.IsCallCancelled("r1"))
}

func TestMarkCallCancelled_LeavesTerminalCallAlone(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	e.MarkCallAccepted("c1")
	e.MarkCallCancelled("r1", "c1")

	// The call already completed; only the room block is recorded.
	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusAccepted, status)
	assert.True(t, e.IsCallCancelled("r1"))
}

func TestLifecycle_NormalFlow(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	e.MarkCallShown("c1")
	e.MarkCallAccepted("c1")

	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusAccepted, status)
}

func TestLifecycle_InvalidTransitionRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	e.MarkCallDeclined("c1")

	// A late accept after the decline must not overwrite the outcome.
	e.MarkCallAccepted("c1")

	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusDeclined, status)
}

func TestLifecycle_BenignLateCallback(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// Callbacks for an unknown (likely evicted) call are no-ops.
	e.MarkCallDeclined("unknown-id")
	e.MarkCallShown("unknown-id")
	e.MarkCallTimeout("unknown-id")

	_, ok := e.GetCallStatus("unknown-id")
	assert.False(t, ok)
	assert.Empty(t, e.GetActiveCalls())
}

func TestMarkCallReceived_DuplicatePreservesOriginal(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	e.MarkCallShown("c1")

	// A duplicate receive must not reset the lifecycle.
	e.MarkCallReceived("c1", "r1")

	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusShown, status)
}

func TestTTL_ProcessedCallExpires(t *testing.T) {
	e, _, clock := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	require.False(t, e.ShouldProcessCall("c1", "r1"))

	*clock = clock.Add(DefaultProcessedTTL + time.Second)

	// Lazy TTL: the entry is treated as absent even before a sweep.
	assert.True(t, e.ShouldProcessCall("c1", "r1"))
	_, ok := e.GetCallStatus("c1")
	assert.False(t, ok)
	assert.Empty(t, e.GetActiveCalls())

	// The sweep physically removes it.
	e.sweep()
	e.mu.Lock()
	assert.Empty(t, e.processed)
	e.mu.Unlock()
}

func TestTTL_CancelledRoomExpires(t *testing.T) {
	e, _, clock := newTestEngine(t)

	e.MarkCallCancelled("r1", "")
	require.True(t, e.IsCallCancelled("r1"))
	require.False(t, e.ShouldProcessCall("c1", "r1"))

	*clock = clock.Add(DefaultCancelledTTL + time.Second)

	// The room is usable again after the cancellation window.
	assert.False(t, e.IsCallCancelled("r1"))
	assert.True(t, e.ShouldProcessCall("c1", "r1"))
}

func TestTTL_TransitionRestampsClock(t *testing.T) {
	e, _, clock := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")

	*clock = clock.Add(4 * time.Minute)
	e.MarkCallShown("c1")

	// The shown transition re-stamped the entry, so it outlives the
	// original receive time's window.
	*clock = clock.Add(4 * time.Minute)
	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusShown, status)
}

func TestGetActiveCalls(t *testing.T) {
	e, _, clock := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	*clock = clock.Add(time.Second)
	e.MarkCallReceived("c2", "r2")
	e.MarkCallShown("c2")
	*clock = clock.Add(time.Second)
	e.MarkCallReceived("c3", "r3")
	e.MarkCallDeclined("c3")

	active := e.GetActiveCalls()
	require.Len(t, active, 2)

	// Oldest first; terminal calls excluded.
	assert.Equal(t, "c1", active[0].CallID)
	assert.Equal(t, callstate.StatusReceived, active[0].Status)
	assert.Equal(t, "c2", active[1].CallID)
	assert.Equal(t, callstate.StatusShown, active[1].Status)
}

func TestClearCall_FreesForReRing(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	require.False(t, e.ShouldProcessCall("c1", "r1"))

	e.ClearCall("c1")
	assert.True(t, e.ShouldProcessCall("c1", "r1"))
}

func TestClearAll_Resets(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")
	e.MarkCallCancelled("r2", "")
	require.False(t, e.ShouldProcessCall("c1", "r1"))
	require.False(t, e.ShouldProcessCall("c9", "r2"))

	require.NoError(t, e.ClearAll(context.Background()))

	assert.True(t, e.ShouldProcessCall("c1", "r1"))
	assert.True(t, e.ShouldProcessCall("c9", "r2"))
	assert.False(t, e.IsCallCancelled("r2"))
}

func TestSweep_OnlyPersistsWhenSomethingRemoved(t *testing.T) {
	e, kv, clock := newTestEngine(t)

	e.MarkCallReceived("c1", "r1")

	// Nothing expired yet: sweep must not request a write.
	e.sweep()
	before := kv.WriteCount()

	*clock = clock.Add(DefaultProcessedTTL + time.Second)
	e.sweep()

	// The engine is not initialized, so requestSave is a no-op either
	// way; assert on the map instead and that no direct write happened.
	assert.Equal(t, before, kv.WriteCount())
	e.mu.Lock()
	assert.Empty(t, e.processed)
	e.mu.Unlock()
}

func TestPersistFailure_DoesNotAffectDecisions(t *testing.T) {
	e, kv, _ := newTestEngine(t)
	kv.SetErr = assert.AnError

	e.MarkCallReceived("c1", "r1")

	// The in-memory map stays authoritative.
	assert.False(t, e.ShouldProcessCall("c1", "r1"))
	status, ok := e.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusReceived, status)

	// The explicit reset does surface the failure.
	assert.Error(t, e.ClearAll(context.Background()))
}
