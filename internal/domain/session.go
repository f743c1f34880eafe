package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EndReason describes why a chat session was closed
type EndReason string

const (
	EndReasonExplicitClose  EndReason = "explicit_close"
	EndReasonIdleTimeout    EndReason = "idle_timeout"
	EndReasonCompleted      EndReason = "completed"
	EndReasonConverted      EndReason = "converted"
	EndReasonPostConversion EndReason = "post_conversion"
)

// Valid reports whether r is one of the known end reasons
func (r EndReason) Valid() bool {
	switch r {
	case EndReasonExplicitClose, EndReasonIdleTimeout, EndReasonCompleted, EndReasonConverted, EndReasonPostConversion:
		return true
	}
	return false
}

// ChatSession is one shopper chat interaction for one tenant.
// A nil EndedAt means the session is still active.
type ChatSession struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       string     `json:"tenant_id"`
	ConversationID *string    `json:"conversation_id,omitempty"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      *EndReason `json:"end_reason,omitempty"`
	IntentScore    *int       `json:"intent_score,omitempty"`
	Summary        *string    `json:"summary,omitempty"`
	Consent        bool       `json:"consent"`
}

// Active reports whether the session has not been ended yet
func (s *ChatSession) Active() bool {
	return s.EndedAt == nil
}

// SessionEnd carries the terminal fields written when a session closes
type SessionEnd struct {
	EndedAt     time.Time
	EndReason   EndReason
	IntentScore int
	Summary     *string
	Consent     bool
}

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	// CreateOrGetActive inserts the session unless an active one already exists for the
	// same (tenant, conversation). It returns the stored row and whether it was inserted.
	CreateOrGetActive(ctx context.Context, session *ChatSession) (*ChatSession, bool, error)
	// ResumeActive bumps the active session of (tenant, conversation). ErrNotFound when there is none.
	ResumeActive(ctx context.Context, tenantID, conversationID string, at time.Time) (*ChatSession, error)
	Get(ctx context.Context, id uuid.UUID) (*ChatSession, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkEnded sets the terminal fields only if the session is still active.
	// It returns false when another caller already ended the session.
	MarkEnded(ctx context.Context, id uuid.UUID, end SessionEnd) (bool, error)
	ListIdle(ctx context.Context, before time.Time, limit int) ([]ChatSession, error)
	CountByVariant(ctx context.Context, variantID uuid.UUID) (int, error)
	Stats(ctx context.Context, tenantID string, since time.Time) (*SessionStats, error)
}

// SessionStats aggregates sessions for a tenant over a window
type SessionStats struct {
	TotalSessions  int     `json:"total_sessions"`
	EndedSessions  int     `json:"ended_sessions"`
	AvgIntentScore float64 `json:"avg_intent_score"`
}

// SessionStart is the widget request that opens or resumes a session
type SessionStart struct {
	TenantID       string  `json:"tenant_id" validate:"required,max=255"`
	ConversationID *string `json:"conversation_id,omitempty" validate:"omitempty,max=255"`
}

// SessionStartResult is returned by create-or-get
type SessionStartResult struct {
	SessionID         uuid.UUID          `json:"session_id"`
	Reused            bool               `json:"reused"`
	VariantAssignment *VariantAssignment `json:"variant_assignment,omitempty"`
}

// EndSessionOptions is the input of ending a session
type EndSessionOptions struct {
	SessionID      uuid.UUID      `json:"session_id"`
	TenantID       string         `json:"tenant_id" validate:"required,max=255"`
	ConversationID *string        `json:"conversation_id,omitempty"`
	EndReason      EndReason      `json:"end_reason" validate:"required,oneof=explicit_close idle_timeout completed converted post_conversion"`
	Consent        *bool          `json:"consent,omitempty"`
	Signals        *IntentSignals `json:"signals,omitempty"`
}

// IntentSignals is the explicit-signal input of intent scoring
type IntentSignals struct {
	CompletedAnswers int     `json:"completed_answers" validate:"min=0"`
	TotalQuestions   int     `json:"total_questions" validate:"min=0"`
	RecsViewed       bool    `json:"recs_viewed"`
	RecsClicked      int     `json:"recs_clicked" validate:"min=0"`
	AddedToCart      bool    `json:"added_to_cart"`
	CheckoutStarted  bool    `json:"checkout_started"`
	DwellMinutes     float64 `json:"dwell_minutes" validate:"min=0"`
}

// SessionEndResult reports the outcome of ending a session
type SessionEndResult struct {
	SessionID    uuid.UUID `json:"session_id"`
	AlreadyEnded bool      `json:"already_ended"`
	EndReason    EndReason `json:"end_reason"`
	IntentScore  int       `json:"intent_score"`
	Alerts       int       `json:"alerts_enqueued"`
}
