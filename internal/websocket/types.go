package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/rfranks/ai-chat-ehr/internal/engine"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeAnonymization reports a completed anonymization: counts only,
	// never field values.
	EventTypeAnonymization EventType = "anonymization"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// AnonymizationEvent carries the audit summary of one processed record. The
// summary is count-only by construction, so it is safe to push to monitoring
// clients.
type AnonymizationEvent struct {
	RequestID    string               `json:"request_id"`
	Source       string               `json:"source"` // "api" or "batch"
	Summary      *engine.AuditSummary `json:"summary"`
	Persisted    bool                 `json:"persisted"`
	ProcessingMS float64              `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRecords     int64  `json:"total_records"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows the event types a client receives.
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
}
