package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/metrics"
	"github.com/Rrens/mattressai-engine/internal/scoring"
)

const defaultReaperBatch = 100

// VariantResolver assigns and looks up experiment variants for sessions
type VariantResolver interface {
	AssignVariant(ctx context.Context, tenantID string) (*domain.VariantAssignment, error)
	ResolveVariant(ctx context.Context, variantID uuid.UUID) (*domain.VariantAssignment, error)
}

// Summarizer produces a conversation summary. A nil summary means none was generated.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID string, consent bool) (*string, error)
}

// AlertEnqueuer receives session-end outcomes
type AlertEnqueuer interface {
	EnqueueAlert(ctx context.Context, trigger domain.AlertTrigger) ([]domain.Alert, error)
}

// SessionService owns the chat session lifecycle
type SessionService struct {
	sessionRepo domain.SessionRepository
	eventRepo   domain.EventRepository
	variants    VariantResolver
	summarizer  Summarizer
	alerts      AlertEnqueuer
	metrics     *metrics.Metrics
	reaperBatch int
	now         func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(
	sessionRepo domain.SessionRepository,
	eventRepo domain.EventRepository,
	variants VariantResolver,
	summarizer Summarizer,
	alerts AlertEnqueuer,
	m *metrics.Metrics,
	reaperBatch int,
) *SessionService {
	if reaperBatch <= 0 {
		reaperBatch = defaultReaperBatch
	}
	return &SessionService{
		sessionRepo: sessionRepo,
		eventRepo:   eventRepo,
		variants:    variants,
		summarizer:  summarizer,
		alerts:      alerts,
		metrics:     m,
		reaperBatch: reaperBatch,
		now:         time.Now,
	}
}

// CreateOrGet returns the active session of a conversation, or opens a new one.
// New sessions get a fresh variant; resumed sessions report the variant they were assigned.
func (s *SessionService) CreateOrGet(ctx context.Context, input domain.SessionStart) (*domain.SessionStartResult, error) {
	now := s.now()

	if input.ConversationID != nil {
		existing, err := s.sessionRepo.ResumeActive(ctx, input.TenantID, *input.ConversationID, now)
		if err == nil {
			s.metrics.RecordSessionStart(true)
			return s.resumed(ctx, existing), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	var assignment *domain.VariantAssignment
	if s.variants != nil {
		a, err := s.variants.AssignVariant(ctx, input.TenantID)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", input.TenantID).Msg("variant assignment failed")
		} else {
			assignment = a
		}
	}

	session := &domain.ChatSession{
		ID:             uuid.New(),
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if assignment != nil {
		session.VariantID = &assignment.VariantID
	}

	stored, created, err := s.sessionRepo.CreateOrGetActive(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.metrics.RecordSessionStart(!created)

	if !created {
		// lost a race with a concurrent start for the same conversation
		return s.resumed(ctx, stored), nil
	}
	log.Debug().
		Str("tenant_id", stored.TenantID).
		Str("session_id", stored.ID.String()).
		Msg("session created")
	return &domain.SessionStartResult{SessionID: stored.ID, VariantAssignment: assignment}, nil
}

func (s *SessionService) resumed(ctx context.Context, stored *domain.ChatSession) *domain.SessionStartResult {
	result := &domain.SessionStartResult{SessionID: stored.ID, Reused: true}
	if stored.VariantID != nil && s.variants != nil {
		existing, err := s.variants.ResolveVariant(ctx, *stored.VariantID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", stored.ID.String()).Msg("failed to resolve session variant")
		} else {
			result.VariantAssignment = existing
		}
	}
	return result
}

// UpdateActivity bumps the session's last activity. Unknown sessions are ignored.
func (s *SessionService) UpdateActivity(ctx context.Context, sessionID uuid.UUID) error {
	err := s.sessionRepo.Touch(ctx, sessionID, s.now())
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug().Str("session_id", sessionID.String()).Msg("activity for unknown session ignored")
		return nil
	}
	return err
}

// EndSession closes a session once: it scores it, summarizes it and enqueues alerts.
// Ending an already-ended session is a no-op.
func (s *SessionService) EndSession(ctx context.Context, opts domain.EndSessionOptions) (*domain.SessionEndResult, error) {
	session, err := s.sessionRepo.Get(ctx, opts.SessionID)
	if err != nil {
		return nil, err
	}
	if session.TenantID != opts.TenantID {
		return nil, domain.ErrNotFound
	}
	if !session.Active() {
		return alreadyEnded(session), nil
	}

	consent := session.Consent
	if opts.Consent != nil {
		consent = *opts.Consent
	}

	score := s.intentScore(ctx, session.ID, opts.Signals)

	conversationID := session.ConversationID
	if opts.ConversationID != nil {
		conversationID = opts.ConversationID
	}
	var summary *string
	if conversationID != nil && s.summarizer != nil {
		summary, err = s.summarizer.Summarize(ctx, *conversationID, consent)
		if err != nil {
			log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("summary generation failed")
			summary = nil
		}
	}

	end := domain.SessionEnd{
		EndedAt:     s.now(),
		EndReason:   opts.EndReason,
		IntentScore: score,
		Summary:     summary,
		Consent:     consent,
	}
	won, err := s.sessionRepo.MarkEnded(ctx, session.ID, end)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another caller ended it first and owns alerting.
		ended, err := s.sessionRepo.Get(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		return alreadyEnded(ended), nil
	}
	s.metrics.RecordSessionEnd(string(opts.EndReason))

	result := &domain.SessionEndResult{
		SessionID:   session.ID,
		EndReason:   opts.EndReason,
		IntentScore: score,
	}

	if s.alerts != nil {
		alerts, err := s.alerts.EnqueueAlert(ctx, domain.AlertTrigger{
			TenantID:    session.TenantID,
			SessionID:   session.ID,
			EndReason:   opts.EndReason,
			IntentScore: score,
			Consent:     consent,
			EndedAt:     end.EndedAt,
		})
		if err != nil {
			log.Error().Err(err).
				Str("tenant_id", session.TenantID).
				Str("session_id", session.ID.String()).
				Msg("failed to enqueue alerts")
		}
		result.Alerts = len(alerts)
	}

	log.Info().
		Str("tenant_id", session.TenantID).
		Str("session_id", session.ID.String()).
		Str("end_reason", string(opts.EndReason)).
		Int("intent_score", score).
		Int("alerts", result.Alerts).
		Msg("session ended")

	return result, nil
}

// IntentScore computes a session's current score without ending it
func (s *SessionService) IntentScore(ctx context.Context, tenantID string, sessionID uuid.UUID) (int, error) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.TenantID != tenantID {
		return 0, domain.ErrNotFound
	}
	events, err := s.eventRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load events: %w", err)
	}
	return scoring.FromEvents(events), nil
}

// CheckIdleSessions ends every session inactive for longer than idleMinutes
func (s *SessionService) CheckIdleSessions(ctx context.Context, idleMinutes int) (int, error) {
	if idleMinutes <= 0 {
		idleMinutes = 15
	}
	cutoff := s.now().Add(-time.Duration(idleMinutes) * time.Minute)

	idle, err := s.sessionRepo.ListIdle(ctx, cutoff, s.reaperBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	ended := 0
	for _, session := range idle {
		if err := ctx.Err(); err != nil {
			return ended, err
		}
		consent := session.Consent
		result, err := s.EndSession(ctx, domain.EndSessionOptions{
			SessionID:      session.ID,
			TenantID:       session.TenantID,
			ConversationID: session.ConversationID,
			EndReason:      domain.EndReasonIdleTimeout,
			Consent:        &consent,
		})
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to end idle session")
			continue
		}
		if !result.AlreadyEnded {
			ended++
		}
	}

	if ended > 0 {
		log.Info().Int("ended", ended).Int("idle_minutes", idleMinutes).Msg("idle sessions ended")
	}
	return ended, nil
}

func (s *SessionService) intentScore(ctx context.Context, sessionID uuid.UUID, signals *domain.IntentSignals) int {
	if signals != nil {
		return scoring.FromSignals(*signals)
	}
	events, err := s.eventRepo.ListBySession(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to load events for scoring")
		return 0
	}
	return scoring.FromEvents(events)
}

func alreadyEnded(session *domain.ChatSession) *domain.SessionEndResult {
	result := &domain.SessionEndResult{SessionID: session.ID, AlreadyEnded: true}
	if session.EndReason != nil {
		result.EndReason = *session.EndReason
	}
	if session.IntentScore != nil {
		result.IntentScore = *session.IntentScore
	}
	return result
}
