package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/metrics"
)

// Intent thresholds used by alert classification and the low-quality filter
const (
	highIntentThreshold = 70
	abandonedThreshold  = 40
	minimumIntent       = 10
)

var knownChannels = map[string]bool{
	domain.ChannelEmail:   true,
	domain.ChannelSMS:     true,
	domain.ChannelSlack:   true,
	domain.ChannelWebhook: true,
	domain.ChannelPodium:  true,
	domain.ChannelBirdeye: true,
}

// AlertService owns alert settings and turns session-end outcomes into queued alerts
type AlertService struct {
	settingsRepo domain.AlertSettingsRepository
	cache        domain.SettingsCache
	alertRepo    domain.AlertRepository
	quotas       domain.QuotaProvider
	leadRepo     domain.LeadRepository
	cfg          config.AlertsConfig
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewAlertService creates a new alert service. cache may be nil.
func NewAlertService(
	settingsRepo domain.AlertSettingsRepository,
	cache domain.SettingsCache,
	alertRepo domain.AlertRepository,
	quotas domain.QuotaProvider,
	leadRepo domain.LeadRepository,
	cfg config.AlertsConfig,
	m *metrics.Metrics,
) *AlertService {
	return &AlertService{
		settingsRepo: settingsRepo,
		cache:        cache,
		alertRepo:    alertRepo,
		quotas:       quotas,
		leadRepo:     leadRepo,
		cfg:          cfg,
		metrics:      m,
		now:          time.Now,
	}
}

// ClassifyAlert picks the alert type of a session end. The first matching rule wins.
func ClassifyAlert(reason domain.EndReason, intentScore int) domain.AlertType {
	switch {
	case reason == domain.EndReasonConverted:
		return domain.AlertLeadCaptured
	case intentScore >= highIntentThreshold:
		return domain.AlertHighIntent
	case reason == domain.EndReasonIdleTimeout && intentScore >= abandonedThreshold:
		return domain.AlertAbandoned
	case reason == domain.EndReasonPostConversion:
		return domain.AlertPostConversion
	default:
		return domain.AlertChatEnd
	}
}

// Settings returns the tenant's settings, or nil when the tenant never configured alerts
func (s *AlertService) Settings(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, tenantID)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("settings cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	settings, err := s.settingsRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert settings: %w", err)
	}
	if settings != nil {
		s.cacheSettings(ctx, settings)
	}
	return settings, nil
}

// GetOrCreateSettings returns the tenant's settings, inserting defaults on first access
func (s *AlertService) GetOrCreateSettings(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	if err := s.settingsRepo.InsertDefault(ctx, domain.DefaultAlertSettings(tenantID)); err != nil {
		return nil, fmt.Errorf("failed to create alert settings: %w", err)
	}
	// Read back: a concurrent caller may have won the insert.
	settings, err = s.settingsRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert settings: %w", err)
	}
	if settings == nil {
		return nil, fmt.Errorf("alert settings for %s missing after insert", tenantID)
	}
	s.cacheSettings(ctx, settings)
	return settings, nil
}

// UpdateSettings merges a partial update into the tenant's settings
func (s *AlertService) UpdateSettings(ctx context.Context, tenantID string, update domain.AlertSettingsUpdate) (*domain.AlertSettings, error) {
	if err := validateSettingsUpdate(update); err != nil {
		return nil, err
	}

	settings, err := s.GetOrCreateSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	update.Apply(settings)
	settings.UpdatedAt = s.now()
	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update alert settings: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, tenantID); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("settings cache invalidation failed")
		}
	}

	log.Info().Str("tenant_id", tenantID).Strs("channels", settings.EnabledChannels()).Msg("alert settings updated")
	return settings, nil
}

// EnqueueAlert applies trigger, throttle and channel rules and persists one queued alert per channel
func (s *AlertService) EnqueueAlert(ctx context.Context, trigger domain.AlertTrigger) ([]domain.Alert, error) {
	logger := log.With().
		Str("tenant_id", trigger.TenantID).
		Str("session_id", trigger.SessionID.String()).
		Logger()

	settings, err := s.Settings(ctx, trigger.TenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, nil
	}

	alertType := ClassifyAlert(trigger.EndReason, trigger.IntentScore)
	if !settings.TriggerEnabled(alertType) {
		logger.Debug().Str("type", string(alertType)).Msg("alert trigger disabled")
		return nil, nil
	}

	if s.cfg.SkipLowQuality {
		skip, err := s.lowQuality(ctx, trigger, alertType)
		if err != nil {
			return nil, err
		}
		if skip {
			logger.Debug().Int("intent_score", trigger.IntentScore).Msg("low quality session, no alert")
			return nil, nil
		}
	}

	now := s.now()

	quota, err := s.quota(ctx, trigger.TenantID)
	if err != nil {
		return nil, err
	}
	perDay := settings.Throttles.PerDay
	if quota != nil {
		perDay = quota.AlertsPerDay
	}
	if perDay != domain.Unlimited {
		count, err := s.alertRepo.CountCreatedSince(ctx, trigger.TenantID, now.Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		if count >= perDay {
			marker, err := s.recordDailyLimit(ctx, trigger, alertType, now)
			if err != nil {
				return nil, err
			}
			logger.Info().Int("limit", perDay).Msg("daily alert limit reached")
			return []domain.Alert{*marker}, nil
		}
	}

	if settings.Throttles.PerSession != domain.Unlimited {
		count, err := s.alertRepo.CountBySessionAndStatus(ctx, trigger.SessionID,
			[]domain.AlertStatus{domain.AlertStatusQueued, domain.AlertStatusSent})
		if err != nil {
			return nil, err
		}
		if count >= settings.Throttles.PerSession {
			logger.Debug().Int("limit", settings.Throttles.PerSession).Msg("per-session alert limit reached")
			return nil, nil
		}
	}

	var created []domain.Alert
	for _, channel := range settings.EnabledChannels() {
		if channel == domain.ChannelSMS && quota != nil && !quota.SMSEnabled {
			logger.Debug().Str("plan", quota.Name).Msg("sms not included in plan")
			continue
		}

		cfg, err := json.Marshal(settings.Channels[channel])
		if err != nil {
			return created, fmt.Errorf("failed to marshal %s config: %w", channel, err)
		}
		payload, err := json.Marshal(domain.AlertPayload{
			SessionID:   trigger.SessionID.String(),
			IntentScore: trigger.IntentScore,
			EndReason:   string(trigger.EndReason),
			Timestamp:   trigger.EndedAt,
			Config:      cfg,
		})
		if err != nil {
			return created, fmt.Errorf("failed to marshal alert payload: %w", err)
		}

		alert := &domain.Alert{
			ID:        uuid.New(),
			TenantID:  trigger.TenantID,
			SessionID: trigger.SessionID,
			Type:      alertType,
			Channel:   channel,
			Payload:   payload,
			Status:    domain.AlertStatusQueued,
			CreatedAt: now,
		}
		if err := s.alertRepo.Create(ctx, alert); err != nil {
			return created, fmt.Errorf("failed to create %s alert: %w", channel, err)
		}
		s.metrics.RecordAlertEnqueued(channel, string(alert.Status))
		created = append(created, *alert)
	}

	if len(created) > 0 {
		logger.Info().Str("type", string(alertType)).Int("channels", len(created)).Msg("alerts enqueued")
	}
	return created, nil
}

// ListAlerts returns alert history, newest first
func (s *AlertService) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	alerts, err := s.alertRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (s *AlertService) recordDailyLimit(ctx context.Context, trigger domain.AlertTrigger, alertType domain.AlertType, now time.Time) (*domain.Alert, error) {
	payload, err := json.Marshal(domain.AlertPayload{
		SessionID:   trigger.SessionID.String(),
		IntentScore: trigger.IntentScore,
		EndReason:   string(trigger.EndReason),
		Timestamp:   trigger.EndedAt,
		Reason:      domain.SkipReasonDailyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	reason := domain.SkipReasonDailyLimit
	alert := &domain.Alert{
		ID:        uuid.New(),
		TenantID:  trigger.TenantID,
		SessionID: trigger.SessionID,
		Type:      alertType,
		Channel:   domain.ChannelThrottled,
		Payload:   payload,
		Status:    domain.AlertStatusSkipped,
		Error:     &reason,
		CreatedAt: now,
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to record daily limit: %w", err)
	}
	s.metrics.RecordAlertEnqueued(domain.ChannelThrottled, string(alert.Status))
	return alert, nil
}

func (s *AlertService) quota(ctx context.Context, tenantID string) (*domain.PlanQuota, error) {
	if s.quotas == nil {
		return nil, nil
	}
	quota, err := s.quotas.PlanQuota(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan quota: %w", err)
	}
	return quota, nil
}

func (s *AlertService) lowQuality(ctx context.Context, trigger domain.AlertTrigger, alertType domain.AlertType) (bool, error) {
	if trigger.IntentScore < minimumIntent {
		return true, nil
	}
	if s.leadRepo == nil {
		return false, nil
	}
	lead, err := s.leadRepo.LatestForSession(ctx, trigger.TenantID, trigger.SessionID)
	if err != nil {
		return false, fmt.Errorf("failed to get lead: %w", err)
	}
	usable := lead != nil && lead.HasContact()
	if usable {
		return false, nil
	}
	if alertType == domain.AlertLeadCaptured || alertType == domain.AlertPostConversion {
		return true, nil
	}
	return trigger.IntentScore < abandonedThreshold, nil
}

func (s *AlertService) cacheSettings(ctx context.Context, settings *domain.AlertSettings) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, settings); err != nil {
		log.Warn().Err(err).Str("tenant_id", settings.TenantID).Msg("settings cache write failed")
	}
}

func validateSettingsUpdate(update domain.AlertSettingsUpdate) error {
	for name := range update.Channels {
		if !knownChannels[name] {
			return domain.NewValidationError("channels."+name, "unknown channel")
		}
	}
	if update.QuietHours != nil {
		if _, err := parseClock(update.QuietHours.Start); err != nil {
			return domain.NewValidationError("quiet_hours.start", "must be HH:MM")
		}
		if _, err := parseClock(update.QuietHours.End); err != nil {
			return domain.NewValidationError("quiet_hours.end", "must be HH:MM")
		}
		if _, err := time.LoadLocation(update.QuietHours.Timezone); err != nil {
			return domain.NewValidationError("quiet_hours.tz", "unknown timezone")
		}
	}
	if update.Throttles != nil {
		if update.Throttles.PerDay < domain.Unlimited || update.Throttles.PerSession < domain.Unlimited {
			return domain.NewValidationError("throttles", "must be -1 or greater")
		}
	}
	return nil
}
