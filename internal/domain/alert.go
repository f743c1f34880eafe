package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AlertType classifies why an alert fired
type AlertType string

const (
	AlertLeadCaptured   AlertType = "lead_captured"
	AlertHighIntent     AlertType = "high_intent"
	AlertAbandoned      AlertType = "abandoned"
	AlertPostConversion AlertType = "post_conversion"
	AlertChatEnd        AlertType = "chat_end"
)

// AlertStatus is the delivery state of an alert. queued is the only non-terminal state.
type AlertStatus string

const (
	AlertStatusQueued  AlertStatus = "queued"
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
	AlertStatusSkipped AlertStatus = "skipped"
)

// Channel names. ChannelThrottled marks a daily-limit skip record, not a real channel.
const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelSlack     = "slack"
	ChannelWebhook   = "webhook"
	ChannelPodium    = "podium"
	ChannelBirdeye   = "birdeye"
	ChannelThrottled = "throttled"
)

// Reasons recorded on skipped alerts
const (
	SkipReasonQuietHours    = "quiet_hours"
	SkipReasonDailyLimit    = "daily_limit_reached"
	FailReasonMaxAttempts   = "Max retry attempts exceeded"
	DefaultMaxAlertAttempts = 3
)

// Alert is one delivery unit: one channel for one triggering session end
type Alert struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      string          `json:"tenant_id"`
	SessionID     uuid.UUID       `json:"session_id"`
	Type          AlertType       `json:"type"`
	Channel       string          `json:"channel"`
	Payload       json.RawMessage `json:"payload"`
	Status        AlertStatus     `json:"status"`
	Attempts      int             `json:"attempts"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
}

// AlertPayload is the serialized context carried by an alert
type AlertPayload struct {
	SessionID   string          `json:"sessionId"`
	IntentScore int             `json:"intentScore"`
	EndReason   string          `json:"endReason"`
	Summary     string          `json:"summary,omitempty"`
	LeadEmail   string          `json:"leadEmail,omitempty"`
	LeadName    string          `json:"leadName,omitempty"`
	LeadPhone   string          `json:"leadPhone,omitempty"`
	LeadZip     string          `json:"leadZip,omitempty"`
	Products    []ProductRef    `json:"products,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Reason      string          `json:"reason,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// ProductRef is a product surfaced to the shopper during the session
type ProductRef struct {
	Title      string `json:"title"`
	ImageURL   string `json:"imageUrl,omitempty"`
	WasClicked bool   `json:"wasClicked"`
}

// AlertOutcome records a delivery result for one alert
type AlertOutcome struct {
	Status        AlertStatus
	Attempts      int
	Error         *string
	SentAt        *time.Time
	NextAttemptAt *time.Time
}

// AlertFilter narrows alert history listings
type AlertFilter struct {
	TenantID string
	Status   AlertStatus
	Limit    int
	Offset   int
}

// AlertRepository defines the interface for alert storage
type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, id uuid.UUID) (*Alert, error)
	// UpdateOutcome writes the result only while the alert is still queued
	UpdateOutcome(ctx context.Context, id uuid.UUID, outcome AlertOutcome) error
	CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	CountBySessionAndStatus(ctx context.Context, sessionID uuid.UUID, statuses []AlertStatus) (int, error)
	// ClaimDue returns due queued alerts and leases them until now+lease
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, maxAttempts, limit int) ([]Alert, error)
	// FailExhausted moves queued alerts with attempts >= maxAttempts to failed
	FailExhausted(ctx context.Context, maxAttempts int, reason string) (int, error)
	List(ctx context.Context, filter AlertFilter) ([]Alert, error)
	CountByStatusSince(ctx context.Context, tenantID string, since time.Time) (map[AlertStatus]int, error)
	CountSkippedSince(ctx context.Context, tenantID, reason string, since time.Time) (int, error)
}

// DispatchStats summarizes one drain of the alert queue
type DispatchStats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// AlertTrigger is the session-end outcome handed to the rules engine
type AlertTrigger struct {
	TenantID    string
	SessionID   uuid.UUID
	EndReason   EndReason
	IntentScore int
	Consent     bool
	EndedAt     time.Time
}
