package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Well-known event types. The set is open; unknown types are stored as-is.
const (
	EventWidgetViewed          = "widget_viewed"
	EventOpened                = "opened"
	EventFirstMessage          = "first_message"
	EventDataPointCaptured     = "data_point_captured"
	EventRecommendationShown   = "recommendation_shown"
	EventRecommendationClicked = "recommendation_clicked"
	EventAddToCart             = "add_to_cart"
	EventCheckoutStarted       = "checkout_started"
	EventOrderPlaced           = "order_placed"
)

// Event is an immutable behavioral fact about a session
type Event struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  string         `json:"tenant_id"`
	SessionID *uuid.UUID     `json:"session_id,omitempty"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ClickID   *string        `json:"click_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventCreate is the widget request that records an event
type EventCreate struct {
	TenantID  string         `json:"tenant_id" validate:"required,max=255"`
	SessionID *uuid.UUID     `json:"session_id,omitempty"`
	Type      string         `json:"type" validate:"required,max=64"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ClickID   *string        `json:"click_id,omitempty" validate:"omitempty,max=255"`
}

// EventRepository is the append-only event store
type EventRepository interface {
	Append(ctx context.Context, event *Event) error
	// ListBySession returns the session's events in ascending timestamp order
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Event, error)
	// ListRecentByTypes returns the newest events of the given types, newest first
	ListRecentByTypes(ctx context.Context, sessionID uuid.UUID, types []string, limit int) ([]Event, error)
	CountByVariantAndType(ctx context.Context, variantID uuid.UUID, eventType string) (int, error)
}
