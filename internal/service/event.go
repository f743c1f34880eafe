package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

// EventService records widget behavioral events
type EventService struct {
	eventRepo   domain.EventRepository
	sessionRepo domain.SessionRepository
	now         func() time.Time
}

// NewEventService creates a new event service
func NewEventService(eventRepo domain.EventRepository, sessionRepo domain.SessionRepository) *EventService {
	return &EventService{eventRepo: eventRepo, sessionRepo: sessionRepo, now: time.Now}
}

// Track appends an event. Events tied to a session also count as session activity.
func (s *EventService) Track(ctx context.Context, input domain.EventCreate) (*domain.Event, error) {
	if input.SessionID != nil {
		session, err := s.sessionRepo.Get(ctx, *input.SessionID)
		if err != nil {
			return nil, err
		}
		if session.TenantID != input.TenantID {
			return nil, domain.ErrNotFound
		}
	}

	event := &domain.Event{
		ID:        uuid.New(),
		TenantID:  input.TenantID,
		SessionID: input.SessionID,
		Type:      input.Type,
		Metadata:  input.Metadata,
		ClickID:   input.ClickID,
		Timestamp: s.now(),
	}
	if err := s.eventRepo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	if event.SessionID != nil {
		err := s.sessionRepo.Touch(ctx, *event.SessionID, event.Timestamp)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("session_id", event.SessionID.String()).Msg("failed to touch session")
		}
	}
	return event, nil
}

// ListBySession returns a session's events in ascending time order
func (s *EventService) ListBySession(ctx context.Context, tenantID string, sessionID uuid.UUID) ([]domain.Event, error) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return s.eventRepo.ListBySession(ctx, sessionID)
}
