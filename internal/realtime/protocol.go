package realtime

import (
	"encoding/json"
	"errors"
)

// Events on the wire. Every frame is a JSON Envelope.
const (
	EventMissed       = "missed"
	EventNotification = "notification"
	EventPresence     = "presence"
	EventError        = "error"

	EventAuth      = "auth"
	EventGetMissed = "getMissed"
	EventMarkRead  = "markRead"
)

// CloseAuthFailed is the close code sent when first-frame authentication fails.
const CloseAuthFailed = 4401

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Presence is broadcast when a connection comes online or goes offline.
type Presence struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

type errorData struct {
	Message string `json:"message"`
}

type authData struct {
	Token string `json:"token"`
}

// Encode builds a frame for event with data marshalled as JSON.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func errorFrame(msg string) []byte {
	b, _ := Encode(EventError, errorData{Message: msg})
	return b
}

var errBadMarkRead = errors.New("markRead expects {\"ids\": [...]} or an array of ids")

// parseMarkRead accepts either {"ids": [...]} or a bare array.
func parseMarkRead(data json.RawMessage) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		return ids, nil
	}
	var obj struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errBadMarkRead
	}
	return obj.IDs, nil
}
