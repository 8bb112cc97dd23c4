// ABOUTME: Decoded call intent type and payload validation.
// ABOUTME: The transport layer hands these to the Handler after decoding raw pushes.

package push

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CallType distinguishes voice from video ring attempts.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Intent validation errors.
var (
	ErrMissingCallID = errors.New("missing callId")
	ErrMissingRoomID = errors.New("missing roomId")
)

// CallIntent is a decoded incoming-call push. CallID identifies one
// ring attempt; RoomID identifies the call session and is stable across
// re-rings of the same call.
type CallIntent struct {
	CallID     string   `json:"callId"`
	RoomID     string   `json:"roomId"`
	CallerID   string   `json:"callerId"`
	CallerName string   `json:"callerName"`
	CallType   CallType `json:"callType"`
}

// DecodeIntent parses and validates a call intent payload. CallType
// defaults to voice when absent.
func DecodeIntent(data []byte) (*CallIntent, error) {
	var intent CallIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("decoding call intent: %w", err)
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Validate checks required fields and normalizes the call type.
func (i *CallIntent) Validate() error {
	if i.CallID == "" {
		return ErrMissingCallID
	}
	if i.RoomID == "" {
		return ErrMissingRoomID
	}
	switch i.CallType {
	case CallTypeVoice, CallTypeVideo:
	case "":
		i.CallType = CallTypeVoice
	default:
		return fmt.Errorf("unknown callType %q", i.CallType)
	}
	return nil
}
