// ABOUTME: Handler gating incoming call signals through the dedup engine.
// ABOUTME: Only approved signals reach the native call UI; cancels dismiss it.

package push

import (
	"context"
	"log/slog"

	"github.com/2389/callguard/internal/callstate"
	"github.com/2389/callguard/internal/dedupe"
)

// CallUI defines what the handler needs from the native call UI bridge.
// Implementations render and dismiss the system-level incoming-call
// screen; they are external collaborators, not part of this subsystem.
type CallUI interface {
	ShowIncomingCall(ctx context.Context, intent *CallIntent) error
	DismissIncomingCall(ctx context.Context, callID string) error
}

// Handler connects the push transport to the dedup engine and call UI.
type Handler struct {
	engine *dedupe.Engine
	ui     CallUI
	logger *slog.Logger
}

// NewHandler creates a push handler.
func NewHandler(engine *dedupe.Engine, ui CallUI, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		ui:     ui,
		logger: logger.With("component", "push"),
	}
}

// HandleIncomingCall runs a decoded call intent through the dedup gate
// and, when approved, records the ring attempt and shows the native
// call UI. It returns true when the call was processed and false when
// it was suppressed as a ghost call.
//
// The entry is recorded before the UI is invoked. If showing the UI
// fails the entry is kept: a retry of the same push must still be
// recognized as a duplicate.
func (h *Handler) HandleIncomingCall(ctx context.Context, intent *CallIntent) bool {
	if !h.engine.ShouldProcessCall(intent.CallID, intent.RoomID) {
		h.logger.Info("ghost call suppressed",
			"call_id", intent.CallID,
			"room_id", intent.RoomID,
		)
		return false
	}

	h.engine.MarkCallReceived(intent.CallID, intent.RoomID)

	if err := h.ui.ShowIncomingCall(ctx, intent); err != nil {
		h.logger.Warn("showing incoming call failed",
			"call_id", intent.CallID,
			"error", err,
		)
		return true
	}

	h.engine.MarkCallShown(intent.CallID)
	h.logger.Info("incoming call shown",
		"call_id", intent.CallID,
		"room_id", intent.RoomID,
		"call_type", intent.CallType,
	)
	return true
}

// HandleCancel records a caller-side cancellation and dismisses any
// call still on screen for that room. The callID from the cancel signal
// may be empty; the engine's room-scoped block works either way.
func (h *Handler) HandleCancel(ctx context.Context, roomID, callID string) {
	// Find calls still on screen for this room before they get marked
	// cancelled, so the UI can be dismissed for each of them.
	var dismiss []string
	for _, call := range h.engine.GetActiveCalls() {
		if call.RoomID == roomID {
			dismiss = append(dismiss, call.CallID)
		}
	}

	h.engine.MarkCallCancelled(roomID, callID)

	for _, id := range dismiss {
		if err := h.ui.DismissIncomingCall(ctx, id); err != nil {
			h.logger.Warn("dismissing cancelled call failed", "call_id", id, "error", err)
		}
	}
	h.logger.Info("call cancelled", "room_id", roomID, "call_id", callID)
}

// OnCallShown is the UI callback for a rendered incoming-call screen.
func (h *Handler) OnCallShown(callID string) {
	h.engine.MarkCallShown(callID)
}

// OnCallAccepted is the UI callback for an answered call.
func (h *Handler) OnCallAccepted(callID string) {
	h.engine.MarkCallAccepted(callID)
}

// OnCallDeclined is the UI callback for a declined call.
func (h *Handler) OnCallDeclined(callID string) {
	h.engine.MarkCallDeclined(callID)
}

// OnCallTimeout is the UI callback for a ring that went unanswered.
func (h *Handler) OnCallTimeout(callID string) {
	h.engine.MarkCallTimeout(callID)
}

// ActiveCalls returns the calls currently ringing or on screen.
func (h *Handler) ActiveCalls() []callstate.ProcessedCall {
	return h.engine.GetActiveCalls()
}
