package websocket

import (
	"encoding/json"

	"github.com/playrow/partyroom-backend/internal/entity"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RequestPayload struct {
	RoomID    string `json:"room_id,omitempty"`
	Game      string `json:"game,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Choice    string `json:"choice,omitempty"`
	Cell      *int   `json:"cell,omitempty"`
}

type ResponsePayload struct {
	SessionID string       `json:"session_id,omitempty"`
	Slot      int          `json:"slot,omitempty"`
	Die       int          `json:"die,omitempty"`
	Room      *entity.Room `json:"room,omitempty"`
	Error     *ErrorBody   `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
