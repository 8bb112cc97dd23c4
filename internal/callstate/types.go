// ABOUTME: Entry types tracked by the dedup engine and their persisted JSON form.
// ABOUTME: Timestamps are encoded as Unix milliseconds to match the mobile-side format.

package callstate

import (
	"encoding/json"
	"time"
)

// ProcessedCall records one ring attempt that passed the dedup gate.
// ReceivedAt is re-stamped on every status transition and is used only
// for TTL accounting, never for ordering.
type ProcessedCall struct {
	CallID     string
	RoomID     string
	ReceivedAt time.Time
	Status     Status
}

// CancelledRoom records a caller-side cancellation for a room. CallID
// may be empty when the cancel signal arrives before any call was ever
// received for that room.
type CancelledRoom struct {
	RoomID      string
	CallID      string
	CancelledAt time.Time
}

type processedCallJSON struct {
	CallID    string `json:"callId"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
	Status    Status `json:"status"`
}

type cancelledRoomJSON struct {
	RoomID    string `json:"roomId"`
	CallID    string `json:"callId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalJSON encodes the entry in the persisted wire layout.
func (p ProcessedCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(processedCallJSON{
		CallID:    p.CallID,
		RoomID:    p.RoomID,
		Timestamp: p.ReceivedAt.UnixMilli(),
		Status:    p.Status,
	})
}

// UnmarshalJSON decodes the persisted wire layout.
func (p *ProcessedCall) UnmarshalJSON(data []byte) error {
	var w processedCallJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.CallID = w.CallID
	p.RoomID = w.RoomID
	p.ReceivedAt = time.UnixMilli(w.Timestamp)
	p.Status = w.Status
	return nil
}

// MarshalJSON encodes the entry in the persisted wire layout.
func (c CancelledRoom) MarshalJSON() ([]byte, error) {
	return json.Marshal(cancelledRoomJSON{
		RoomID:    c.RoomID,
		CallID:    c.CallID,
		Timestamp: c.CancelledAt.UnixMilli(),
	})
}

// UnmarshalJSON decodes the persisted wire layout.
func (c *CancelledRoom) UnmarshalJSON(data []byte) error {
	var w cancelledRoomJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.RoomID = w.RoomID
	c.CallID = w.CallID
	c.CancelledAt = time.UnixMilli(w.Timestamp)
	return nil
}
