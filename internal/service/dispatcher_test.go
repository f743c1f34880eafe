package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/mattressai-engine/internal/channel"
	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

// MockSettingsSource mocks the SettingsSource interface
type MockSettingsSource struct {
	mock.Mock
}

func (m *MockSettingsSource) Settings(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AlertSettings), args.Error(1)
}

func (m *MockSettingsSource) GetOrCreateSettings(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AlertSettings), args.Error(1)
}

type dispatcherFixture struct {
	alerts   *MockAlertRepository
	sessions *MockSessionRepository
	leads    *MockLeadRepository
	events   *MockEventRepository
	settings *MockSettingsSource
	sender   *MockChannelSender
	d        *Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		alerts:   new(MockAlertRepository),
		sessions: new(MockSessionRepository),
		leads:    new(MockLeadRepository),
		events:   new(MockEventRepository),
		settings: new(MockSettingsSource),
		sender:   new(MockChannelSender),
	}
	f.d = NewDispatcher(f.alerts, f.sessions, f.leads, f.events, f.settings, f.sender, config.AlertsConfig{}, nil)
	f.d.now = clock
	return f
}

// expectEnrichment stubs a session, its latest lead and no product events
func (f *dispatcherFixture) expectEnrichment(alert *domain.Alert, consent bool) {
	ctx := context.Background()
	f.sessions.On("Get", ctx, alert.SessionID).Return(&domain.ChatSession{
		ID:       alert.SessionID,
		TenantID: alert.TenantID,
		Consent:  consent,
		Summary:  strPtr("Shopper wants a cooling king mattress."),
	}, nil)
	f.leads.On("LatestForSession", ctx, alert.TenantID, alert.SessionID).Return(&domain.Lead{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Phone: "+15550100",
	}, nil)
	f.events.On("ListRecentByTypes", ctx, alert.SessionID, mock.Anything, enrichEventsWindow).Return([]domain.Event{}, nil)
}

func queuedAlert(t *testing.T, channelName string, attempts int) *domain.Alert {
	t.Helper()
	payload, err := json.Marshal(domain.AlertPayload{
		SessionID:   uuid.NewString(),
		IntentScore: 85,
		EndReason:   "idle_timeout",
		Timestamp:   fixedNow.Add(-time.Hour),
		Config:      json.RawMessage(`{"to":"owner@shop.test"}`),
	})
	require.NoError(t, err)
	return &domain.Alert{
		ID:        uuid.New(),
		TenantID:  tenant,
		SessionID: uuid.New(),
		Type:      domain.AlertHighIntent,
		Channel:   channelName,
		Payload:   payload,
		Status:    domain.AlertStatusQueued,
		Attempts:  attempts,
		CreatedAt: fixedNow.Add(-time.Hour),
	}
}

func outcomeWith(status domain.AlertStatus, attempts int) interface{} {
	return mock.MatchedBy(func(o domain.AlertOutcome) bool {
		return o.Status == status && o.Attempts == attempts
	})
}

func TestDispatcher_SendAlert(t *testing.T) {
	ctx := context.Background()

	t.Run("quiet hours skip without spending an attempt", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "email", 1)
		settings := domain.DefaultAlertSettings(tenant)
		settings.QuietHours = &domain.QuietHours{Start: "22:00", End: "07:00", Timezone: "UTC"}

		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(settings, nil)
		f.alerts.On("UpdateOutcome", ctx, alert.ID, mock.MatchedBy(func(o domain.AlertOutcome) bool {
			return o.Status == domain.AlertStatusSkipped &&
				o.Attempts == 1 &&
				o.Error != nil && *o.Error == "quiet_hours" &&
				o.SentAt == nil
		})).Return(nil)

		require.NoError(t, f.d.SendAlert(ctx, alert.ID))
		f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		f.alerts.AssertExpectations(t)
	})

	t.Run("sent with enrichment", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "email", 0)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, true)
		f.sender.On("Send", ctx, "email", mock.MatchedBy(func(msg channel.Message) bool {
			return msg.Consent &&
				msg.Config.String("to") == "owner@shop.test" &&
				msg.Payload.LeadName == "Jane Doe" &&
				msg.Payload.LeadEmail == "jane@example.com" &&
				msg.Payload.Summary == "Shopper wants a cooling king mattress." &&
				msg.Payload.IntentScore == 85
		})).Return(nil)
		f.alerts.On("UpdateOutcome", ctx, alert.ID, mock.MatchedBy(func(o domain.AlertOutcome) bool {
			return o.Status == domain.AlertStatusSent &&
				o.Attempts == 1 &&
				o.SentAt != nil && o.SentAt.Equal(fixedNow) &&
				o.Error == nil
		})).Return(nil)

		require.NoError(t, f.d.SendAlert(ctx, alert.ID))
		f.sender.AssertExpectations(t)
		f.alerts.AssertExpectations(t)
	})

	t.Run("no consent redacts contact data", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "slack", 0)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, false)
		f.sender.On("Send", ctx, "slack", mock.MatchedBy(func(msg channel.Message) bool {
			return !msg.Consent &&
				msg.Payload.LeadName == redacted &&
				msg.Payload.LeadEmail == redacted &&
				msg.Payload.LeadPhone == redacted &&
				msg.Payload.LeadZip == "" &&
				msg.Payload.Summary == ""
		})).Return(nil)
		f.alerts.On("UpdateOutcome", ctx, alert.ID, outcomeWith(domain.AlertStatusSent, 1)).Return(nil)

		require.NoError(t, f.d.SendAlert(ctx, alert.ID))
		f.sender.AssertExpectations(t)
	})

	t.Run("retryable failure schedules backoff", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "webhook", 1)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, true)
		f.sender.On("Send", ctx, "webhook", mock.Anything).Return(errors.New("connection reset"))
		f.alerts.On("UpdateOutcome", ctx, alert.ID, mock.MatchedBy(func(o domain.AlertOutcome) bool {
			return o.Status == domain.AlertStatusQueued &&
				o.Attempts == 2 &&
				o.Error != nil && *o.Error == "connection reset" &&
				o.NextAttemptAt != nil && o.NextAttemptAt.Equal(fixedNow.Add(2*time.Minute))
		})).Return(nil)

		err := f.d.SendAlert(ctx, alert.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		f.alerts.AssertExpectations(t)
	})

	t.Run("last attempt fails the alert", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "webhook", 2)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, true)
		f.sender.On("Send", ctx, "webhook", mock.Anything).Return(errors.New("503"))
		f.alerts.On("UpdateOutcome", ctx, alert.ID, mock.MatchedBy(func(o domain.AlertOutcome) bool {
			return o.Status == domain.AlertStatusFailed && o.Attempts == 3 && o.NextAttemptAt == nil
		})).Return(nil)

		require.Error(t, f.d.SendAlert(ctx, alert.ID))
		f.alerts.AssertExpectations(t)
	})

	t.Run("missing recipient is retried like any failure", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "email", 0)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, true)
		f.sender.On("Send", ctx, "email", mock.Anything).Return(domain.NewValidationError("email.to", "is required"))
		f.alerts.On("UpdateOutcome", ctx, alert.ID, mock.MatchedBy(func(o domain.AlertOutcome) bool {
			return o.Status == domain.AlertStatusQueued && o.Attempts == 1 && o.NextAttemptAt != nil
		})).Return(nil)

		err := f.d.SendAlert(ctx, alert.ID)
		require.Error(t, err)
		f.alerts.AssertExpectations(t)
	})

	t.Run("corrupt payload stays queued until attempts run out", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "email", 0)
		alert.Payload = json.RawMessage(`{"sessionId":`)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.alerts.On("UpdateOutcome", ctx, alert.ID, outcomeWith(domain.AlertStatusQueued, 1)).Return(nil)

		require.Error(t, f.d.SendAlert(ctx, alert.ID))
		f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		f.alerts.AssertExpectations(t)
	})

	t.Run("no consent for a crm channel is retried", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "podium", 1)
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, false)
		f.sender.On("Send", ctx, "podium", mock.Anything).Return(channel.ErrConsentRequired)
		f.alerts.On("UpdateOutcome", ctx, alert.ID, outcomeWith(domain.AlertStatusQueued, 2)).Return(nil)

		err := f.d.SendAlert(ctx, alert.ID)
		assert.ErrorIs(t, err, channel.ErrConsentRequired)
		f.alerts.AssertExpectations(t)
	})

	t.Run("terminal alerts are left alone", func(t *testing.T) {
		f := newDispatcherFixture()
		alert := queuedAlert(t, "email", 1)
		alert.Status = domain.AlertStatusSent
		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)

		require.NoError(t, f.d.SendAlert(ctx, alert.ID))
		f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		f.alerts.AssertNotCalled(t, "UpdateOutcome", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDispatcher_ProcessQueuedAlerts(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()

	failing := queuedAlert(t, "webhook", 0)
	working := queuedAlert(t, "email", 0)
	f.alerts.On("ClaimDue", ctx, fixedNow, 10*time.Minute, 3, 20).Return([]domain.Alert{*failing, *working}, nil)
	f.settings.On("Settings", ctx, tenant).Return(nil, nil)
	f.expectEnrichment(failing, true)
	f.expectEnrichment(working, true)
	f.sender.On("Send", ctx, "webhook", mock.Anything).Return(errors.New("timeout"))
	f.sender.On("Send", ctx, "email", mock.Anything).Return(nil)
	f.alerts.On("UpdateOutcome", ctx, failing.ID, outcomeWith(domain.AlertStatusQueued, 1)).Return(nil)
	f.alerts.On("UpdateOutcome", ctx, working.ID, outcomeWith(domain.AlertStatusSent, 1)).Return(nil)

	stats, err := f.d.ProcessQueuedAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchStats{Processed: 2, Sent: 1, Failed: 1}, stats)
	f.alerts.AssertExpectations(t)
}

func TestDispatcher_ProcessDLQ(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture()
	f.alerts.On("FailExhausted", ctx, 3, "Max retry attempts exceeded").Return(4, nil)

	n, err := f.d.ProcessDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDispatcher_SendTestAlert(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured channel", func(t *testing.T) {
		f := newDispatcherFixture()
		f.settings.On("GetOrCreateSettings", ctx, tenant).Return(domain.DefaultAlertSettings(tenant), nil)

		err := f.d.SendTestAlert(ctx, tenant, "slack")
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sends sample payload", func(t *testing.T) {
		f := newDispatcherFixture()
		settings := domain.DefaultAlertSettings(tenant)
		settings.Channels["slack"] = domain.ChannelConfig{"url": "https://hooks.slack.test/x"}
		f.settings.On("GetOrCreateSettings", ctx, tenant).Return(settings, nil)
		f.sender.On("Send", ctx, "slack", mock.MatchedBy(func(msg channel.Message) bool {
			return msg.Consent &&
				msg.Payload.SessionID == "test-session" &&
				msg.Payload.LeadName == "Test Customer" &&
				msg.Config.String("url") == "https://hooks.slack.test/x"
		})).Return(nil)

		require.NoError(t, f.d.SendTestAlert(ctx, tenant, "slack"))
		f.sender.AssertExpectations(t)
		f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(time.Minute, 0))
	assert.Equal(t, time.Minute, Backoff(time.Minute, 1))
	assert.Equal(t, 2*time.Minute, Backoff(time.Minute, 2))
	assert.Equal(t, 4*time.Minute, Backoff(time.Minute, 3))
	assert.Equal(t, Backoff(time.Second, 16), Backoff(time.Second, 40))
}

func TestRedact(t *testing.T) {
	p := domain.AlertPayload{
		LeadName:  "Jane",
		LeadPhone: "+1555",
		Summary:   "Likes firm mattresses",
	}
	Redact(&p)
	assert.Equal(t, redacted, p.LeadName)
	assert.Equal(t, redacted, p.LeadPhone)
	assert.Empty(t, p.LeadEmail)
	assert.Empty(t, p.Summary)
}

func TestProductsFromEvents(t *testing.T) {
	event := func(eventType string, meta map[string]any) domain.Event {
		return domain.Event{Type: eventType, Metadata: meta}
	}
	events := []domain.Event{
		event(domain.EventRecommendationShown, map[string]any{"productId": "p1", "productTitle": "CoolCloud Hybrid"}),
		event(domain.EventRecommendationClicked, map[string]any{"productId": "p1", "productTitle": "CoolCloud Hybrid"}),
		event(domain.EventRecommendationShown, map[string]any{"productId": float64(42)}),
		event(domain.EventRecommendationShown, map[string]any{}),
		event(domain.EventRecommendationShown, map[string]any{"productTitle": "Latex Dream", "imageUrl": "https://cdn.test/l.png"}),
		event(domain.EventRecommendationShown, map[string]any{"productId": "p9", "productTitle": "Fourth"}),
	}

	products := productsFromEvents(events)
	require.Len(t, products, 3)
	assert.Equal(t, domain.ProductRef{Title: "CoolCloud Hybrid", WasClicked: true}, products[0])
	assert.Equal(t, domain.ProductRef{Title: "Product 42"}, products[1])
	assert.Equal(t, domain.ProductRef{Title: "Latex Dream", ImageURL: "https://cdn.test/l.png"}, products[2])
}

func TestDispatcher_ConfigErrorsFollowRetryPolicy(t *testing.T) {
	ctx := context.Background()
	registry := channel.NewRegistry(time.Second)
	registry.Register(channel.NewWebhookSender("whsec"))

	for attempts, want := range map[int]domain.AlertStatus{
		0: domain.AlertStatusQueued,
		1: domain.AlertStatusQueued,
		2: domain.AlertStatusFailed,
	} {
		f := newDispatcherFixture()
		f.d.sender = registry

		alert := queuedAlert(t, "webhook", attempts)
		payload, err := json.Marshal(domain.AlertPayload{
			SessionID: alert.SessionID.String(),
			Config:    json.RawMessage(`{"endpoint":"x"}`),
		})
		require.NoError(t, err)
		alert.Payload = payload

		f.alerts.On("Get", ctx, alert.ID).Return(alert, nil)
		f.settings.On("Settings", ctx, tenant).Return(nil, nil)
		f.expectEnrichment(alert, true)
		f.alerts.On("UpdateOutcome", ctx, alert.ID, outcomeWith(want, attempts+1)).Return(nil)

		err = f.d.SendAlert(ctx, alert.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook.url")
		f.alerts.AssertExpectations(t)
	}
}
