package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/channel"
	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/metrics"
)

const (
	redacted           = "[REDACTED]"
	maxEnrichProducts  = 3
	enrichEventsWindow = 20
	defaultClaimLease  = 10 * time.Minute
)

// ChannelSender delivers a message over a named channel
type ChannelSender interface {
	Send(ctx context.Context, name string, msg channel.Message) error
}

// SettingsSource reads tenant alert settings without creating them
type SettingsSource interface {
	Settings(ctx context.Context, tenantID string) (*domain.AlertSettings, error)
	GetOrCreateSettings(ctx context.Context, tenantID string) (*domain.AlertSettings, error)
}

// Dispatcher drains queued alerts into channel senders
type Dispatcher struct {
	alertRepo   domain.AlertRepository
	sessionRepo domain.SessionRepository
	leadRepo    domain.LeadRepository
	eventRepo   domain.EventRepository
	settings    SettingsSource
	sender      ChannelSender
	maxAttempts int
	baseDelay   time.Duration
	batchSize   int
	claimLease  time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewDispatcher creates a new alert dispatcher
func NewDispatcher(
	alertRepo domain.AlertRepository,
	sessionRepo domain.SessionRepository,
	leadRepo domain.LeadRepository,
	eventRepo domain.EventRepository,
	settings SettingsSource,
	sender ChannelSender,
	cfg config.AlertsConfig,
	m *metrics.Metrics,
) *Dispatcher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAlertAttempts
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	claimLease := cfg.ClaimLease
	if claimLease <= 0 {
		claimLease = defaultClaimLease
	}
	return &Dispatcher{
		alertRepo:   alertRepo,
		sessionRepo: sessionRepo,
		leadRepo:    leadRepo,
		eventRepo:   eventRepo,
		settings:    settings,
		sender:      sender,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		batchSize:   batchSize,
		claimLease:  claimLease,
		metrics:     m,
		now:         time.Now,
	}
}

// Backoff returns the delay before the next attempt after attempts failures
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		attempts = 16
	}
	return base * time.Duration(1<<(attempts-1))
}

// Redact strips shopper PII from a payload
func Redact(p *domain.AlertPayload) {
	for _, field := range []*string{&p.LeadEmail, &p.LeadName, &p.LeadPhone, &p.LeadZip} {
		if *field != "" {
			*field = redacted
		}
	}
	p.Summary = ""
}

// SendAlert delivers one alert. Alerts that are no longer queued are left alone.
// Delivery errors are returned after the retry bookkeeping is written.
func (d *Dispatcher) SendAlert(ctx context.Context, alertID uuid.UUID) error {
	alert, err := d.alertRepo.Get(ctx, alertID)
	if err != nil {
		return err
	}
	_, err = d.send(ctx, alert)
	return err
}

// ProcessQueuedAlerts sends every due alert, one batch per call
func (d *Dispatcher) ProcessQueuedAlerts(ctx context.Context) (domain.DispatchStats, error) {
	var stats domain.DispatchStats

	alerts, err := d.alertRepo.ClaimDue(ctx, d.now(), d.claimLease, d.maxAttempts, d.batchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to claim queued alerts: %w", err)
	}

	for i := range alerts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		alert := &alerts[i]
		status, err := d.send(ctx, alert)
		stats.Processed++
		switch {
		case err != nil:
			stats.Failed++
			log.Warn().Err(err).
				Str("alert_id", alert.ID.String()).
				Str("channel", alert.Channel).
				Msg("alert delivery failed")
		case status == domain.AlertStatusSent:
			stats.Sent++
		case status == domain.AlertStatusSkipped:
			stats.Skipped++
		}
	}

	if stats.Processed > 0 {
		log.Info().
			Int("processed", stats.Processed).
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Msg("alert queue drained")
	}
	return stats, nil
}

// ProcessDLQ fails queued alerts that already used up their attempts
func (d *Dispatcher) ProcessDLQ(ctx context.Context) (int, error) {
	n, err := d.alertRepo.FailExhausted(ctx, d.maxAttempts, domain.FailReasonMaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to process dead letters: %w", err)
	}
	if n > 0 {
		log.Warn().Int("count", n).Msg("alerts moved to dead letter")
	}
	return n, nil
}

// SendTestAlert sends a sample alert over one configured channel without persisting it
func (d *Dispatcher) SendTestAlert(ctx context.Context, tenantID, channelName string) error {
	settings, err := d.settings.GetOrCreateSettings(ctx, tenantID)
	if err != nil {
		return err
	}
	cfg := settings.Channels[channelName]
	if len(cfg) == 0 {
		return domain.NewValidationError("channel", channelName+" is not configured")
	}

	msg := channel.Message{
		TenantID: tenantID,
		Type:     domain.AlertHighIntent,
		Config:   cfg,
		Consent:  true,
		Payload: domain.AlertPayload{
			SessionID:   "test-session",
			IntentScore: 85,
			EndReason:   "test_alert",
			Summary:     "This is a test alert from MattressAI. Your alert channel is configured correctly.",
			LeadName:    "Test Customer",
			LeadEmail:   "test@example.com",
			LeadPhone:   "+15555550100",
			Products: []domain.ProductRef{
				{Title: "Sample Hybrid Mattress", WasClicked: true},
			},
			Timestamp: d.now(),
		},
	}

	start := time.Now()
	err = d.sender.Send(ctx, channelName, msg)
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	d.metrics.RecordAlertDelivery(channelName, outcome, time.Since(start))
	if err != nil {
		return fmt.Errorf("test alert over %s failed: %w", channelName, err)
	}
	log.Info().Str("tenant_id", tenantID).Str("channel", channelName).Msg("test alert sent")
	return nil
}

func (d *Dispatcher) send(ctx context.Context, alert *domain.Alert) (domain.AlertStatus, error) {
	if alert.Status != domain.AlertStatusQueued {
		return alert.Status, nil
	}
	logger := log.With().
		Str("tenant_id", alert.TenantID).
		Str("alert_id", alert.ID.String()).
		Str("channel", alert.Channel).
		Logger()

	now := d.now()

	settings, err := d.settings.Settings(ctx, alert.TenantID)
	if err != nil {
		return alert.Status, err
	}
	if settings != nil && InQuietHours(settings.QuietHours, now) {
		reason := domain.SkipReasonQuietHours
		if err := d.alertRepo.UpdateOutcome(ctx, alert.ID, domain.AlertOutcome{
			Status:   domain.AlertStatusSkipped,
			Attempts: alert.Attempts,
			Error:    &reason,
		}); err != nil {
			return alert.Status, err
		}
		d.metrics.RecordAlertDelivery(alert.Channel, "skipped", 0)
		logger.Info().Msg("alert skipped during quiet hours")
		return domain.AlertStatusSkipped, nil
	}

	var payload domain.AlertPayload
	if err := json.Unmarshal(alert.Payload, &payload); err != nil {
		return d.recordFailure(ctx, alert, fmt.Errorf("invalid alert payload: %w", err))
	}
	var cfg domain.ChannelConfig
	if len(payload.Config) > 0 {
		if err := json.Unmarshal(payload.Config, &cfg); err != nil {
			return d.recordFailure(ctx, alert, fmt.Errorf("invalid channel config: %w", err))
		}
	}

	consent := false
	session, err := d.sessionRepo.Get(ctx, alert.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("session lookup failed, treating as no consent")
	} else {
		consent = session.Consent
		if payload.Summary == "" && session.Summary != nil {
			payload.Summary = *session.Summary
		}
	}

	d.enrich(ctx, alert, &payload)
	if !consent {
		Redact(&payload)
	}

	start := time.Now()
	err = d.sender.Send(ctx, alert.Channel, channel.Message{
		TenantID: alert.TenantID,
		Type:     alert.Type,
		Config:   cfg,
		Payload:  payload,
		Consent:  consent,
	})
	elapsed := time.Since(start)
	if err != nil {
		d.metrics.RecordAlertDelivery(alert.Channel, "error", elapsed)
		return d.recordFailure(ctx, alert, err)
	}

	sentAt := d.now()
	if err := d.alertRepo.UpdateOutcome(ctx, alert.ID, domain.AlertOutcome{
		Status:   domain.AlertStatusSent,
		Attempts: alert.Attempts + 1,
		SentAt:   &sentAt,
	}); err != nil {
		return alert.Status, fmt.Errorf("alert sent but status update failed: %w", err)
	}
	d.metrics.RecordAlertDelivery(alert.Channel, "sent", elapsed)
	logger.Info().Dur("duration", elapsed).Msg("alert sent")
	return domain.AlertStatusSent, nil
}

// recordFailure writes retry bookkeeping and returns the delivery error
func (d *Dispatcher) recordFailure(ctx context.Context, alert *domain.Alert, sendErr error) (domain.AlertStatus, error) {
	attempts := alert.Attempts + 1
	message := sendErr.Error()
	outcome := domain.AlertOutcome{
		Status:   domain.AlertStatusQueued,
		Attempts: attempts,
		Error:    &message,
	}

	if attempts >= d.maxAttempts {
		outcome.Status = domain.AlertStatusFailed
	} else {
		next := d.now().Add(Backoff(d.baseDelay, attempts))
		outcome.NextAttemptAt = &next
	}

	if err := d.alertRepo.UpdateOutcome(ctx, alert.ID, outcome); err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID.String()).Msg("failed to record alert failure")
	}
	if outcome.Status == domain.AlertStatusFailed {
		d.metrics.RecordAlertDelivery(alert.Channel, "failed", 0)
	}
	return outcome.Status, fmt.Errorf("alert %s via %s (attempt %d): %w", alert.ID, alert.Channel, attempts, sendErr)
}

// enrich adds the session's latest lead and recently surfaced products. Failures are logged only.
func (d *Dispatcher) enrich(ctx context.Context, alert *domain.Alert, p *domain.AlertPayload) {
	if d.leadRepo != nil {
		lead, err := d.leadRepo.LatestForSession(ctx, alert.TenantID, alert.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("lead enrichment failed")
		} else if lead != nil {
			fillEmpty(&p.LeadName, lead.Name)
			fillEmpty(&p.LeadEmail, lead.Email)
			fillEmpty(&p.LeadPhone, lead.Phone)
			fillEmpty(&p.LeadZip, lead.Zip)
		}
	}

	if d.eventRepo != nil && len(p.Products) == 0 {
		events, err := d.eventRepo.ListRecentByTypes(ctx, alert.SessionID,
			[]string{domain.EventRecommendationShown, domain.EventRecommendationClicked}, enrichEventsWindow)
		if err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("product enrichment failed")
			return
		}
		p.Products = productsFromEvents(events)
	}
}

// productsFromEvents takes events newest first and returns up to three distinct products
func productsFromEvents(events []domain.Event) []domain.ProductRef {
	var products []domain.ProductRef
	index := make(map[string]int)
	for _, e := range events {
		title := metaString(e.Metadata, "productTitle")
		key := metaString(e.Metadata, "productId")
		if key == "" {
			key = title
		}
		if key == "" {
			continue
		}
		clicked := e.Type == domain.EventRecommendationClicked

		if i, ok := index[key]; ok {
			if clicked {
				products[i].WasClicked = true
			}
			continue
		}
		if len(products) == maxEnrichProducts {
			continue
		}
		if title == "" {
			title = "Product " + key
		}
		index[key] = len(products)
		products = append(products, domain.ProductRef{
			Title:      title,
			ImageURL:   metaString(e.Metadata, "imageUrl"),
			WasClicked: clicked,
		})
	}
	return products
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	switch v := meta[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func fillEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
