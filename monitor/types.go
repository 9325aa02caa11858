package monitor

import (
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/interview"
)

// Source is the live session the monitor reports on.
type Source interface {
	Status() interview.Status
	Log() *conversation.Log
}

// Message is pushed to websocket subscribers.
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}
