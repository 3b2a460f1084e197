// Package queue publishes domain events to RabbitMQ for downstream
// consumers: the session provider fleet and the realtime fanout layer.
package queue

import "github.com/roomshare/roomd/internal/model"

// Queue names. Stop requests are durable because a lost one leaks a
// running session until its lock lapses; chat lines are ephemeral.
const (
	StopQueue = "vbrowser.stop"
	ChatQueue = "room.chat"
)

// Stop reasons carried on VBrowserStopEvent.
const (
	StopReasonTimeout = "timeout"
	StopReasonEmpty   = "empty"
)

// VBrowserStopEvent asks the session provider to tear down one vBrowser.
type VBrowserStopEvent struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	Large     bool   `json:"large"`
	Reason    string `json:"reason"`
	StoppedAt string `json:"stopped_at"`
}

// ChatEvent carries a system chat line to the realtime layer, which fans
// it out to everyone connected to the room.
type ChatEvent struct {
	RoomID  string            `json:"room_id"`
	Message model.ChatMessage `json:"message"`
}
