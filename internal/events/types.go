package events

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMasked is emitted after a masking call found secrets
	EventTypeMasked EventType = "secret_masked"
	// EventTypeRestored is emitted after placeholders were restored
	EventTypeRestored EventType = "text_restored"
	// EventTypePatternCreated is emitted when a custom rule is registered
	EventTypePatternCreated EventType = "pattern_created"
	// EventTypePatternUpdated is emitted when a custom rule changes
	EventTypePatternUpdated EventType = "pattern_updated"
	// EventTypePatternDeleted is emitted when a custom rule is removed
	EventTypePatternDeleted EventType = "pattern_deleted"
	// EventTypeSystemStatus carries periodic server health snapshots
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection reports dashboard clients joining and leaving
	EventTypeConnection EventType = "connection"
)

// Event is the envelope sent to connected clients. Payloads carry counts
// and rule metadata only; matched text and placeholders never enter the
// event stream.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// MaskedEvent summarizes one masking call.
type MaskedEvent struct {
	RequestID      string         `json:"request_id"`
	ClientIP       string         `json:"client_ip,omitempty"`
	TotalMatches   int            `json:"total_matches"`
	CategoryCounts map[string]int `json:"category_counts,omitempty"`
	CustomCounts   map[string]int `json:"custom_counts,omitempty"`
	Reversible     bool           `json:"reversible"`
	ProcessingMS   float64        `json:"processing_ms"`
}

// RestoredEvent summarizes one restore call.
type RestoredEvent struct {
	RequestID    string  `json:"request_id"`
	SessionID    string  `json:"session_id,omitempty"`
	Entries      int     `json:"entries"`
	ProcessingMS float64 `json:"processing_ms"`
}

// PatternEvent reports a custom rule mutation.
type PatternEvent struct {
	PatternID string `json:"pattern_id"`
	Name      string `json:"name"`
	Severity  string `json:"severity,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalMasked      int64  `json:"total_masked"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
	MemoryUsage      string `json:"memory_usage,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which events a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
