// Package sse streams state changes of a client session as Server-Sent Events.
package sse

import (
	"time"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is the first event of every stream.
	EventConnected EventType = "connected"
	// EventSocialState carries the full social state of the session.
	EventSocialState EventType = "social.state"
	// EventMatchState carries the full match state of the session.
	EventMatchState EventType = "match.state"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// SessionID limits delivery to the streams of one client session and
	// ClientID to a single stream. Empty means no restriction.
	SessionID string `json:"-"`
	ClientID  string `json:"-"`
}

// ConnectedEventData is the data payload of the connected event.
type ConnectedEventData struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewSocialStateEvent creates a social state event for one session.
func NewSocialStateEvent(sessionID string, state any) Event {
	return Event{
		Type:      EventSocialState,
		SessionID: sessionID,
		Data:      state,
		Timestamp: time.Now(),
	}
}

// NewMatchStateEvent creates a match state event for one session.
func NewMatchStateEvent(sessionID string, state any) Event {
	return Event{
		Type:      EventMatchState,
		SessionID: sessionID,
		Data:      state,
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
