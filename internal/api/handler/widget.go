package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Rrens/mattressai-engine/internal/api/response"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

// SessionAPI is the session lifecycle used by the widget
type SessionAPI interface {
	CreateOrGet(ctx context.Context, input domain.SessionStart) (*domain.SessionStartResult, error)
	UpdateActivity(ctx context.Context, sessionID uuid.UUID) error
	EndSession(ctx context.Context, opts domain.EndSessionOptions) (*domain.SessionEndResult, error)
	IntentScore(ctx context.Context, tenantID string, sessionID uuid.UUID) (int, error)
}

// EventAPI records widget events
type EventAPI interface {
	Track(ctx context.Context, input domain.EventCreate) (*domain.Event, error)
}

// WidgetHandler handles the storefront widget endpoints
type WidgetHandler struct {
	sessions SessionAPI
	events   EventAPI
}

// NewWidgetHandler creates a new widget handler
func NewWidgetHandler(sessions SessionAPI, events EventAPI) *WidgetHandler {
	return &WidgetHandler{sessions: sessions, events: events}
}

// StartSession opens a session or resumes the conversation's active one
func (h *WidgetHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var input domain.SessionStart
	if !decodeAndValidate(w, r, &input) {
		return
	}

	result, err := h.sessions.CreateOrGet(r.Context(), input)
	if err != nil {
		response.FromError(w, err)
		return
	}

	if result.Reused {
		response.OK(w, result)
		return
	}
	response.Created(w, result)
}

// Activity records a heartbeat for a session
func (h *WidgetHandler) Activity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	if err := h.sessions.UpdateActivity(r.Context(), sessionID); err != nil {
		response.FromError(w, err)
		return
	}
	response.NoContent(w)
}

// EndSession closes a session
func (h *WidgetHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	var opts domain.EndSessionOptions
	if !decodeAndValidate(w, r, &opts) {
		return
	}
	opts.SessionID = sessionID

	result, err := h.sessions.EndSession(r.Context(), opts)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, result)
}

// TrackEvent appends a behavioral event
func (h *WidgetHandler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var input domain.EventCreate
	if !decodeAndValidate(w, r, &input) {
		return
	}

	event, err := h.events.Track(r.Context(), input)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, event)
}
