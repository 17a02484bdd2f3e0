package server

import (
	"time"

	"github.com/remask/remask/internal/masking"
	"github.com/remask/remask/internal/sessions"
	"github.com/remask/remask/internal/store"
)

// DetectRequest asks for matches without rewriting the text.
type DetectRequest struct {
	Text string `json:"text"`
	// Categories overrides the server's per-category toggles for this
	// call only.
	Categories map[string]bool `json:"categories,omitempty"`
	// Include activates built-ins that are off by default.
	Include []string `json:"include,omitempty"`
	// Exclude switches off individual built-ins by id.
	Exclude []string `json:"exclude,omitempty"`
}

// DetectResponse lists what was found. Matched text itself is never
// echoed back; offsets let the caller locate it.
type DetectResponse struct {
	Matches      []masking.Match `json:"matches"`
	Count        int             `json:"count"`
	ProcessingMS float64         `json:"processing_ms"`
}

// MaskRequest asks for text with base placeholders substituted in.
type MaskRequest struct {
	Text       string          `json:"text"`
	Categories map[string]bool `json:"categories,omitempty"`
	Include    []string        `json:"include,omitempty"`
	Exclude    []string        `json:"exclude,omitempty"`
}

// MaskResponse carries the masked text plus the engine's counters.
type MaskResponse struct {
	masking.MaskResult
	ProcessingMS float64 `json:"processing_ms"`
}

// RestorableRequest asks for numbered placeholders and a restore map.
type RestorableRequest struct {
	Text       string          `json:"text"`
	Categories map[string]bool `json:"categories,omitempty"`
	Include    []string        `json:"include,omitempty"`
	Exclude    []string        `json:"exclude,omitempty"`
	// Store keeps the restore map server-side and returns a session id
	// in its place. Requires session storage to be enabled.
	Store bool `json:"store,omitempty"`
}

// RestorableResponse carries either the restore map inline or the id of
// the stored session, never both.
type RestorableResponse struct {
	Masked         string                   `json:"masked"`
	Count          int                      `json:"count"`
	CategoryCounts map[masking.Category]int `json:"category_counts,omitempty"`
	CustomCounts   map[string]int           `json:"custom_counts,omitempty"`
	Matches        []masking.Match          `json:"matches,omitempty"`
	RestoreMap     masking.RestoreMap       `json:"restore_map,omitempty"`
	SessionID      string                   `json:"session_id,omitempty"`
	ExpiresAt      *time.Time               `json:"expires_at,omitempty"`
	ProcessingMS   float64                  `json:"processing_ms"`
}

// RestoreRequest replays a restore map over a text fragment. Exactly one
// of RestoreMap and SessionID must be set.
type RestoreRequest struct {
	Text       string             `json:"text"`
	RestoreMap masking.RestoreMap `json:"restore_map,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
	// Close deletes the stored session once restoration succeeds.
	Close bool `json:"close,omitempty"`
}

// RestoreResponse carries the restored text.
type RestoreResponse struct {
	Restored     string  `json:"restored"`
	Entries      int     `json:"entries"`
	ProcessingMS float64 `json:"processing_ms"`
}

// PatternListResponse lists the custom patterns in registration order.
type PatternListResponse struct {
	Patterns []masking.CustomPattern `json:"patterns"`
	Count    int                     `json:"count"`
}

// BuiltinPattern is the catalog summary of one built-in rule.
type BuiltinPattern struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category masking.Category `json:"category"`
	Severity masking.Severity `json:"severity"`
	Priority int              `json:"priority"`
	// Active reports whether the rule participates without an explicit
	// include.
	Active bool `json:"active"`
}

// BuiltinListResponse lists the built-in catalog.
type BuiltinListResponse struct {
	Patterns []BuiltinPattern `json:"patterns"`
	Count    int              `json:"count"`
}

// HealthResponse reports overall and per-component health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	UptimeSeconds     float64  `json:"uptime_seconds"`
	ActivePatterns    int      `json:"active_patterns"`
	CustomPatterns    int      `json:"custom_patterns"`
	EnabledCategories []string `json:"enabled_categories"`
	SessionsEnabled   bool     `json:"sessions_enabled"`
	ProxyEnabled      bool     `json:"proxy_enabled"`
}

// PatternStats summarizes the rule set.
type PatternStats struct {
	Builtin    int   `json:"builtin"`
	Custom     int   `json:"custom"`
	Enabled    int   `json:"enabled"`
	TotalUsage int64 `json:"total_usage"`
}

// EventStats summarizes the websocket hub.
type EventStats struct {
	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalBroadcasts   int64 `json:"total_broadcasts"`
}

// StatsResponse aggregates runtime statistics across components. Store
// and session sections are omitted when the backing service is disabled.
type StatsResponse struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	TotalRequests int64           `json:"total_requests"`
	TotalMasked   int64           `json:"total_masked"`
	Patterns      PatternStats    `json:"patterns"`
	Events        EventStats      `json:"events"`
	Store         *store.Stats    `json:"store,omitempty"`
	Sessions      *sessions.Stats `json:"sessions,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
