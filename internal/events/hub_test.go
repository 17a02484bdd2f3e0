package events

import (
	"net/http/httptest"
	"testing"

	"github.com/remask/remask/internal/logger"
)

func newTestHub(cfg *HubConfig) *Hub {
	return NewHub(cfg, logger.Nop())
}

func TestShouldBroadcastEvent(t *testing.T) {
	hub := newTestHub(&HubConfig{
		BroadcastMasking:     true,
		BroadcastPatterns:    false,
		BroadcastSystem:      true,
		BroadcastConnections: false,
	})

	tests := []struct {
		eventType EventType
		want      bool
	}{
		{EventTypeMasked, true},
		{EventTypeRestored, true},
		{EventTypePatternCreated, false},
		{EventTypePatternUpdated, false},
		{EventTypePatternDeleted, false},
		{EventTypeSystemStatus, true},
		{EventTypeConnection, false},
		{EventType("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := hub.shouldBroadcastEvent(tt.eventType); got != tt.want {
				t.Errorf("shouldBroadcastEvent(%s) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestShouldSendToClient(t *testing.T) {
	hub := newTestHub(&HubConfig{})

	t.Run("NoSubscriptionGetsEverything", func(t *testing.T) {
		client := &Client{}
		if !hub.shouldSendToClient(client, Event{Type: EventTypeMasked}) {
			t.Error("unfiltered client should receive all events")
		}
	})

	t.Run("SubscriptionFilters", func(t *testing.T) {
		client := &Client{Subscription: &SubscriptionRequest{
			Events: []EventType{EventTypePatternCreated, EventTypePatternDeleted},
		}}
		if !hub.shouldSendToClient(client, Event{Type: EventTypePatternDeleted}) {
			t.Error("subscribed event type should pass the filter")
		}
		if hub.shouldSendToClient(client, Event{Type: EventTypeMasked}) {
			t.Error("unsubscribed event type should be filtered out")
		}
	})
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"Wildcard", []string{"*"}, "https://evil.example.com", true},
		{"ExactMatch", []string{"https://dash.example.com"}, "https://dash.example.com", true},
		{"Mismatch", []string{"https://dash.example.com"}, "https://evil.example.com", false},
		{"NoOriginHeader", []string{"https://dash.example.com"}, "", true},
		{"EmptyList", nil, "https://dash.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(&HubConfig{AllowedOrigins: tt.allowed})
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin with origin %q allowed %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestBroadcastQueuesWithoutBlocking(t *testing.T) {
	hub := newTestHub(&HubConfig{BroadcastMasking: true})

	// Fill the buffered channel past capacity; Broadcast must not block.
	for i := 0; i < 300; i++ {
		hub.Broadcast(Event{Type: EventTypeMasked})
	}

	if queued := len(hub.broadcast); queued != 256 {
		t.Errorf("broadcast queue holds %d events, want full buffer of 256", queued)
	}
}
