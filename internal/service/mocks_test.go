package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Rrens/mattressai-engine/internal/channel"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) CreateOrGetActive(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, bool, error) {
	args := m.Called(ctx, session)
	if fn, ok := args.Get(0).(func(context.Context, *domain.ChatSession) *domain.ChatSession); ok {
		return fn(ctx, session), args.Bool(1), args.Error(2)
	}
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.ChatSession), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) ResumeActive(ctx context.Context, tenantID, conversationID string, at time.Time) (*domain.ChatSession, error) {
	args := m.Called(ctx, tenantID, conversationID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockSessionRepository) MarkEnded(ctx context.Context, id uuid.UUID, end domain.SessionEnd) (bool, error) {
	args := m.Called(ctx, id, end)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) ListIdle(ctx context.Context, before time.Time, limit int) ([]domain.ChatSession, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]domain.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) CountByVariant(ctx context.Context, variantID uuid.UUID) (int, error) {
	args := m.Called(ctx, variantID)
	return args.Int(0), args.Error(1)
}

func (m *MockSessionRepository) Stats(ctx context.Context, tenantID string, since time.Time) (*domain.SessionStats, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionStats), args.Error(1)
}

// MockEventRepository mocks the EventRepository interface
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Append(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) ListRecentByTypes(ctx context.Context, sessionID uuid.UUID, types []string, limit int) ([]domain.Event, error) {
	args := m.Called(ctx, sessionID, types, limit)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) CountByVariantAndType(ctx context.Context, variantID uuid.UUID, eventType string) (int, error) {
	args := m.Called(ctx, variantID, eventType)
	return args.Int(0), args.Error(1)
}

// MockAlertRepository mocks the AlertRepository interface
type MockAlertRepository struct {
	mock.Mock
}

func (m *MockAlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockAlertRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Alert), args.Error(1)
}

func (m *MockAlertRepository) UpdateOutcome(ctx context.Context, id uuid.UUID, outcome domain.AlertOutcome) error {
	args := m.Called(ctx, id, outcome)
	return args.Error(0)
}

func (m *MockAlertRepository) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockAlertRepository) CountBySessionAndStatus(ctx context.Context, sessionID uuid.UUID, statuses []domain.AlertStatus) (int, error) {
	args := m.Called(ctx, sessionID, statuses)
	return args.Int(0), args.Error(1)
}

func (m *MockAlertRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, maxAttempts, limit int) ([]domain.Alert, error) {
	args := m.Called(ctx, now, lease, maxAttempts, limit)
	return args.Get(0).([]domain.Alert), args.Error(1)
}

func (m *MockAlertRepository) FailExhausted(ctx context.Context, maxAttempts int, reason string) (int, error) {
	args := m.Called(ctx, maxAttempts, reason)
	return args.Int(0), args.Error(1)
}

func (m *MockAlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Alert), args.Error(1)
}

func (m *MockAlertRepository) CountByStatusSince(ctx context.Context, tenantID string, since time.Time) (map[domain.AlertStatus]int, error) {
	args := m.Called(ctx, tenantID, since)
	return args.Get(0).(map[domain.AlertStatus]int), args.Error(1)
}

func (m *MockAlertRepository) CountSkippedSince(ctx context.Context, tenantID, reason string, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, reason, since)
	return args.Int(0), args.Error(1)
}

// MockAlertSettingsRepository mocks the AlertSettingsRepository interface
type MockAlertSettingsRepository struct {
	mock.Mock
}

func (m *MockAlertSettingsRepository) Get(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AlertSettings), args.Error(1)
}

func (m *MockAlertSettingsRepository) InsertDefault(ctx context.Context, settings *domain.AlertSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockAlertSettingsRepository) Update(ctx context.Context, settings *domain.AlertSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockAlertSettingsRepository) ListDigestDue(ctx context.Context, sentBefore time.Time) ([]domain.AlertSettings, error) {
	args := m.Called(ctx, sentBefore)
	return args.Get(0).([]domain.AlertSettings), args.Error(1)
}

func (m *MockAlertSettingsRepository) MarkDigestSent(ctx context.Context, tenantID string, at time.Time) error {
	args := m.Called(ctx, tenantID, at)
	return args.Error(0)
}

// MockSettingsCache mocks the SettingsCache interface
type MockSettingsCache struct {
	mock.Mock
}

func (m *MockSettingsCache) Get(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AlertSettings), args.Error(1)
}

func (m *MockSettingsCache) Set(ctx context.Context, settings *domain.AlertSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockSettingsCache) Invalidate(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// MockQuotaProvider mocks the QuotaProvider interface
type MockQuotaProvider struct {
	mock.Mock
}

func (m *MockQuotaProvider) PlanQuota(ctx context.Context, tenantID string) (*domain.PlanQuota, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlanQuota), args.Error(1)
}

// MockLeadRepository mocks the LeadRepository interface
type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) LatestForSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*domain.Lead, error) {
	args := m.Called(ctx, tenantID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadRepository) CountByVariant(ctx context.Context, variantID uuid.UUID) (int, error) {
	args := m.Called(ctx, variantID)
	return args.Int(0), args.Error(1)
}

func (m *MockLeadRepository) CountSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, since)
	return args.Int(0), args.Error(1)
}

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockExperimentRepository mocks the ExperimentRepository interface
type MockExperimentRepository struct {
	mock.Mock
}

func (m *MockExperimentRepository) Create(ctx context.Context, experiment *domain.Experiment) error {
	args := m.Called(ctx, experiment)
	return args.Error(0)
}

func (m *MockExperimentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) GetActive(ctx context.Context, tenantID string, now time.Time) (*domain.Experiment, error) {
	args := m.Called(ctx, tenantID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) GetVariant(ctx context.Context, id uuid.UUID) (*domain.Variant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Variant), args.Error(1)
}

func (m *MockExperimentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExperimentStatus, endAt *time.Time) (*domain.Experiment, error) {
	args := m.Called(ctx, id, status, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) List(ctx context.Context, tenantID string, includeCompleted bool) ([]domain.Experiment, error) {
	args := m.Called(ctx, tenantID, includeCompleted)
	return args.Get(0).([]domain.Experiment), args.Error(1)
}

// MockChannelSender mocks the ChannelSender interface
type MockChannelSender struct {
	mock.Mock
}

func (m *MockChannelSender) Send(ctx context.Context, name string, msg channel.Message) error {
	args := m.Called(ctx, name, msg)
	return args.Error(0)
}

// MockAlertEnqueuer mocks the AlertEnqueuer interface
type MockAlertEnqueuer struct {
	mock.Mock
}

func (m *MockAlertEnqueuer) EnqueueAlert(ctx context.Context, trigger domain.AlertTrigger) ([]domain.Alert, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Alert), args.Error(1)
}

// MockSummarizer mocks the Summarizer interface
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, conversationID string, consent bool) (*string, error) {
	args := m.Called(ctx, conversationID, consent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

// MockVariantResolver mocks the VariantResolver interface
type MockVariantResolver struct {
	mock.Mock
}

func (m *MockVariantResolver) AssignVariant(ctx context.Context, tenantID string) (*domain.VariantAssignment, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VariantAssignment), args.Error(1)
}

func (m *MockVariantResolver) ResolveVariant(ctx context.Context, variantID uuid.UUID) (*domain.VariantAssignment, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VariantAssignment), args.Error(1)
}

var fixedNow = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func strPtr(s string) *string { return &s }
