package model

import "time"

// System chat commands emitted by the lifecycle scheduler. Clients render
// these as localized notices rather than plain text.
const (
	CmdVBrowserTimeout       = "vBrowserTimeout"
	CmdVBrowserAlmostTimeout = "vBrowserAlmostTimeout"
)

// chatBufferCap bounds the in-memory chat history per room. The oldest
// message is dropped once the cap is exceeded.
const chatBufferCap = 100

// ChatMessage is a single chat entry. System messages carry a Cmd
// discriminator and an empty sender id.
type ChatMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	VideoTS   float64   `json:"videoTS,omitempty"`
	System    bool      `json:"system,omitempty"`
	Cmd       string    `json:"cmd,omitempty"`
	Msg       string    `json:"msg"`
}

// ChatEmitter forwards a chat message to the realtime transport so
// connected clients see it. Implementations must be fire-and-forget; a
// failed emit never blocks or fails the room mutation that produced it.
type ChatEmitter interface {
	EmitChat(roomID string, msg ChatMessage)
}
