package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Rrens/mattressai-engine/internal/api/response"
	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/scoring"
)

// IntentHandler scores sessions on demand
type IntentHandler struct {
	sessions SessionAPI
}

// NewIntentHandler creates a new intent handler
func NewIntentHandler(sessions SessionAPI) *IntentHandler {
	return &IntentHandler{sessions: sessions}
}

type intentScoreRequest struct {
	SessionID *uuid.UUID            `json:"session_id,omitempty"`
	Signals   *domain.IntentSignals `json:"signals,omitempty"`
}

// Score returns an intent score from explicit signals, or from a session's event history
func (h *IntentHandler) Score(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req intentScoreRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	switch {
	case req.Signals != nil:
		response.OK(w, map[string]int{"intent_score": scoring.FromSignals(*req.Signals)})
	case req.SessionID != nil:
		score, err := h.sessions.IntentScore(r.Context(), tenant, *req.SessionID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		response.OK(w, map[string]any{
			"session_id":   req.SessionID,
			"intent_score": score,
		})
	default:
		response.BadRequest(w, "session_id or signals is required")
	}
}
