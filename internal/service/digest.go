package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

const (
	digestPeriod = 7 * 24 * time.Hour
	// digestSlack lets an early scheduler tick still count as a new week
	digestSlack = time.Hour
)

// DigestMailer sends plain text email
type DigestMailer interface {
	SendText(ctx context.Context, to, subject, body string) error
}

// DigestPoster posts plain text to a Slack webhook
type DigestPoster interface {
	PostText(ctx context.Context, url, text string) error
}

// DigestService builds and delivers the weekly digest
type DigestService struct {
	settingsRepo domain.AlertSettingsRepository
	sessionRepo  domain.SessionRepository
	leadRepo     domain.LeadRepository
	alertRepo    domain.AlertRepository
	mailer       DigestMailer
	poster       DigestPoster
	now          func() time.Time
}

// NewDigestService creates a new digest service
func NewDigestService(
	settingsRepo domain.AlertSettingsRepository,
	sessionRepo domain.SessionRepository,
	leadRepo domain.LeadRepository,
	alertRepo domain.AlertRepository,
	mailer DigestMailer,
	poster DigestPoster,
) *DigestService {
	return &DigestService{
		settingsRepo: settingsRepo,
		sessionRepo:  sessionRepo,
		leadRepo:     leadRepo,
		alertRepo:    alertRepo,
		mailer:       mailer,
		poster:       poster,
		now:          time.Now,
	}
}

// Build collects the last seven days of activity for a tenant
func (s *DigestService) Build(ctx context.Context, tenantID string) (*domain.Digest, error) {
	end := s.now()
	start := end.Add(-digestPeriod)

	stats, err := s.sessionRepo.Stats(ctx, tenantID, start)
	if err != nil {
		return nil, err
	}
	leads, err := s.leadRepo.CountSince(ctx, tenantID, start)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.alertRepo.CountByStatusSince(ctx, tenantID, start)
	if err != nil {
		return nil, err
	}
	quiet, err := s.alertRepo.CountSkippedSince(ctx, tenantID, domain.SkipReasonQuietHours, start)
	if err != nil {
		return nil, err
	}
	limited, err := s.alertRepo.CountSkippedSince(ctx, tenantID, domain.SkipReasonDailyLimit, start)
	if err != nil {
		return nil, err
	}

	return &domain.Digest{
		TenantID:          tenantID,
		WeekStart:         start,
		WeekEnd:           end,
		TotalSessions:     stats.TotalSessions,
		EndedSessions:     stats.EndedSessions,
		AvgIntentScore:    stats.AvgIntentScore,
		Leads:             leads,
		AlertsSent:        byStatus[domain.AlertStatusSent],
		AlertsFailed:      byStatus[domain.AlertStatusFailed],
		AlertsQuietHours:  quiet,
		AlertsDailyLimits: limited,
	}, nil
}

// FormatDigest renders a digest as plain text
func FormatDigest(d *domain.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your weekly MattressAI report (%s - %s)\n\n",
		d.WeekStart.Format("Jan 2"), d.WeekEnd.Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "Sessions: %d (%d ended)\n", d.TotalSessions, d.EndedSessions)
	fmt.Fprintf(&b, "Average intent score: %.0f/100\n", d.AvgIntentScore)
	fmt.Fprintf(&b, "Leads captured: %d\n", d.Leads)
	fmt.Fprintf(&b, "Alerts sent: %d, failed: %d\n", d.AlertsSent, d.AlertsFailed)
	if d.AlertsQuietHours > 0 {
		fmt.Fprintf(&b, "Alerts held during quiet hours: %d\n", d.AlertsQuietHours)
	}
	if d.AlertsDailyLimits > 0 {
		fmt.Fprintf(&b, "Alerts suppressed by the daily limit: %d\n", d.AlertsDailyLimits)
	}
	fmt.Fprintf(&b, "\nView analytics: https://%s/admin/apps/mattressai/analytics", d.TenantID)
	return b.String()
}

// Run sends the digest to every tenant that enabled it and has not received one this week
func (s *DigestService) Run(ctx context.Context) (domain.DigestStats, error) {
	var stats domain.DigestStats

	tenants, err := s.settingsRepo.ListDigestDue(ctx, s.now().Add(-digestPeriod+digestSlack))
	if err != nil {
		return stats, fmt.Errorf("failed to list digest tenants: %w", err)
	}

	for i := range tenants {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		if err := s.send(ctx, &tenants[i]); err != nil {
			stats.Failed++
			log.Error().Err(err).Str("tenant_id", tenants[i].TenantID).Msg("digest delivery failed")
			continue
		}
		stats.Sent++
		if err := s.settingsRepo.MarkDigestSent(ctx, tenants[i].TenantID, s.now()); err != nil {
			log.Error().Err(err).Str("tenant_id", tenants[i].TenantID).Msg("failed to record digest delivery")
		}
	}

	log.Info().Int("processed", stats.Processed).Int("sent", stats.Sent).Int("failed", stats.Failed).Msg("digest run completed")
	return stats, nil
}

func (s *DigestService) send(ctx context.Context, settings *domain.AlertSettings) error {
	emailCfg := settings.Channels[domain.ChannelEmail]
	email := emailCfg.String("to")
	if email == "" {
		email = emailCfg.String("email")
	}
	slackURL := settings.Channels[domain.ChannelSlack].String("url")
	if email == "" && slackURL == "" {
		return fmt.Errorf("no email or slack channel configured")
	}

	digest, err := s.Build(ctx, settings.TenantID)
	if err != nil {
		return err
	}
	text := FormatDigest(digest)

	if email != "" && s.mailer != nil {
		if err := s.mailer.SendText(ctx, email, "Your Weekly MattressAI Report", text); err != nil {
			return fmt.Errorf("email digest: %w", err)
		}
	}
	if slackURL != "" && s.poster != nil {
		if err := s.poster.PostText(ctx, slackURL, text); err != nil {
			return fmt.Errorf("slack digest: %w", err)
		}
	}
	return nil
}
