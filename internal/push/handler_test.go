// ABOUTME: Tests for the push handler's gating and UI dismissal behavior.
// ABOUTME: Uses a recording fake CallUI to observe what reaches the native layer.

package push

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/callguard/internal/callstate"
	"github.com/2389/callguard/internal/dedupe"
	"github.com/2389/callguard/internal/storage"
)

// fakeUI records calls made to the native call UI bridge.
type fakeUI struct {
	mu        sync.Mutex
	shown     []string
	dismissed []string
	showErr   error
}

func (f *fakeUI) ShowIncomingCall(ctx context.Context, intent *CallIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = append(f.shown, intent.CallID)
	return nil
}

func (f *fakeUI) DismissIncomingCall(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, callID)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *dedupe.Engine, *fakeUI) {
	t.Helper()
	engine := dedupe.New(storage.NewMemoryKV(), dedupe.Options{}, nil)
	ui := &fakeUI{}
	return NewHandler(engine, ui, nil), engine, ui
}

func intent(callID, roomID string) *CallIntent {
	return &CallIntent{
		CallID:     callID,
		RoomID:     roomID,
		CallerID:   "caller-1",
		CallerName: "Alice",
		CallType:   CallTypeVoice,
	}
}

func TestHandleIncomingCall_ShowsOnce(t *testing.T) {
	h, engine, ui := newTestHandler(t)
	ctx := context.Background()

	assert.True(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))

	// Retried delivery of the same push is suppressed.
	assert.False(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))

	assert.Equal(t, []string{"c1"}, ui.shown)
	status, ok := engine.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusShown, status)
}

func TestHandleIncomingCall_CancelledRoomSuppressed(t *testing.T) {
	h, _, ui := newTestHandler(t)
	ctx := context.Background()

	h.HandleCancel(ctx, "r1", "")

	// A fresh callId for the cancelled room never reaches the UI.
	assert.False(t, h.HandleIncomingCall(ctx, intent("c9", "r1")))
	assert.Empty(t, ui.shown)
}

func TestHandleIncomingCall_UIFailureKeepsEntry(t *testing.T) {
	h, engine, ui := newTestHandler(t)
	ui.showErr = assert.AnError
	ctx := context.Background()

	assert.True(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))

	// The entry survives so a push retry is still deduplicated.
	status, ok := engine.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusReceived, status)
	assert.False(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))
}

func TestHandleCancel_DismissesActiveCall(t *testing.T) {
	h, engine, ui := newTestHandler(t)
	ctx := context.Background()

	require.True(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))
	h.HandleCancel(ctx, "r1", "c1")

	assert.Equal(t, []string{"c1"}, ui.dismissed)
	status, ok := engine.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusCancelled, status)
	assert.True(t, engine.IsCallCancelled("r1"))
}

func TestHandleCancel_UnknownCallID(t *testing.T) {
	h, engine, ui := newTestHandler(t)
	ctx := context.Background()

	// The caller-side cancel usually does not know the callee-generated
	// callId; the room block must still land.
	require.True(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))
	h.HandleCancel(ctx, "r1", "")

	assert.Equal(t, []string{"c1"}, ui.dismissed)
	assert.True(t, engine.IsCallCancelled("r1"))
}

func TestLifecycleCallbacks(t *testing.T) {
	h, engine, _ := newTestHandler(t)
	ctx := context.Background()

	require.True(t, h.HandleIncomingCall(ctx, intent("c1", "r1")))
	h.OnCallAccepted("c1")

	status, ok := engine.GetCallStatus("c1")
	require.True(t, ok)
	assert.Equal(t, callstate.StatusAccepted, status)
	assert.Empty(t, h.ActiveCalls())
}

func TestDecodeIntent(t *testing.T) {
	payload := []byte(`{"callId":"c1","roomId":"r1","callerId":"u1","callerName":"Alice","callType":"video"}`)

	decoded, err := DecodeIntent(payload)
	require.NoError(t, err)
	assert.Equal(t, "c1", decoded.CallID)
	assert.Equal(t, CallTypeVideo, decoded.CallType)
}

func TestDecodeIntent_Defaults(t *testing.T) {
	decoded, err := DecodeIntent([]byte(`{"callId":"c1","roomId":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, CallTypeVoice, decoded.CallType)
}

func TestDecodeIntent_Invalid(t *testing.T) {
	_, err := DecodeIntent([]byte(`{"roomId":"r1"}`))
	assert.ErrorIs(t, err, ErrMissingCallID)

	_, err = DecodeIntent([]byte(`{"callId":"c1"}`))
	assert.ErrorIs(t, err, ErrMissingRoomID)

	_, err = DecodeIntent([]byte(`{"callId":"c1","roomId":"r1","callType":"hologram"}`))
	assert.Error(t, err)

	_, err = DecodeIntent([]byte(`not json`))
	assert.Error(t, err)
}
