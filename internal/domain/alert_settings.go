package domain

import (
	"context"
	"sort"
	"time"
)

// TriggerAll enables every alert type when set
const TriggerAll = "all"

// ChannelConfig is the per-channel configuration object. An empty config disables the channel.
type ChannelConfig map[string]any

// String returns the string value stored under key, or "" when absent
func (c ChannelConfig) String(key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// QuietHours is a daily HH:MM window in a tenant timezone, possibly crossing midnight
type QuietHours struct {
	Start    string `json:"start" validate:"required,datetime=15:04"`
	End      string `json:"end" validate:"required,datetime=15:04"`
	Timezone string `json:"tz" validate:"required"`
}

// Throttles caps alert volume. -1 means unlimited.
type Throttles struct {
	PerDay     int `json:"perDay" validate:"min=-1"`
	PerSession int `json:"perSession" validate:"min=-1"`
}

// DigestSettings configures the weekly digest
type DigestSettings struct {
	Enabled bool `json:"enabled"`
}

// AlertSettings holds per-tenant alert configuration
type AlertSettings struct {
	TenantID   string                   `json:"tenant_id"`
	Triggers   map[string]bool          `json:"triggers"`
	Channels   map[string]ChannelConfig `json:"channels"`
	QuietHours *QuietHours              `json:"quiet_hours,omitempty"`
	Throttles  Throttles                `json:"throttles"`
	Digest     *DigestSettings          `json:"digest,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// DefaultAlertSettings returns the safe defaults used on first access
func DefaultAlertSettings(tenantID string) *AlertSettings {
	now := time.Now()
	return &AlertSettings{
		TenantID: tenantID,
		Triggers: map[string]bool{
			TriggerAll:                  false,
			string(AlertLeadCaptured):   true,
			string(AlertHighIntent):     false,
			string(AlertAbandoned):      false,
			string(AlertPostConversion): false,
			string(AlertChatEnd):        false,
		},
		Channels:  map[string]ChannelConfig{},
		Throttles: Throttles{PerDay: 2, PerSession: 2},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TriggerEnabled reports whether alertType may fire for this tenant
func (s *AlertSettings) TriggerEnabled(alertType AlertType) bool {
	return s.Triggers[TriggerAll] || s.Triggers[string(alertType)]
}

// EnabledChannels returns channel names with a non-empty config, sorted by name
func (s *AlertSettings) EnabledChannels() []string {
	names := make([]string, 0, len(s.Channels))
	for name, cfg := range s.Channels {
		if len(cfg) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AlertSettingsUpdate is a partial update. Maps are merged key by key; QuietHours and Digest replace.
type AlertSettingsUpdate struct {
	Triggers   map[string]bool          `json:"triggers,omitempty"`
	Channels   map[string]ChannelConfig `json:"channels,omitempty"`
	QuietHours *QuietHours              `json:"quiet_hours,omitempty" validate:"omitempty"`
	Throttles  *Throttles               `json:"throttles,omitempty" validate:"omitempty"`
	Digest     *DigestSettings          `json:"digest,omitempty"`
}

// Apply merges the update into s
func (u AlertSettingsUpdate) Apply(s *AlertSettings) {
	if s.Triggers == nil {
		s.Triggers = map[string]bool{}
	}
	for k, v := range u.Triggers {
		s.Triggers[k] = v
	}
	if s.Channels == nil {
		s.Channels = map[string]ChannelConfig{}
	}
	for k, v := range u.Channels {
		s.Channels[k] = v
	}
	if u.QuietHours != nil {
		s.QuietHours = u.QuietHours
	}
	if u.Throttles != nil {
		s.Throttles = *u.Throttles
	}
	if u.Digest != nil {
		s.Digest = u.Digest
	}
}

// AlertSettingsRepository defines the interface for alert settings storage
type AlertSettingsRepository interface {
	// Get returns nil, nil when the tenant never configured alerts
	Get(ctx context.Context, tenantID string) (*AlertSettings, error)
	// InsertDefault inserts settings unless a row already exists for the tenant
	InsertDefault(ctx context.Context, settings *AlertSettings) error
	Update(ctx context.Context, settings *AlertSettings) error
	// ListDigestDue returns digest-enabled tenants whose last digest went out before sentBefore
	ListDigestDue(ctx context.Context, sentBefore time.Time) ([]AlertSettings, error)
	MarkDigestSent(ctx context.Context, tenantID string, at time.Time) error
}

// SettingsCache caches alert settings by tenant
type SettingsCache interface {
	Get(ctx context.Context, tenantID string) (*AlertSettings, error)
	Set(ctx context.Context, settings *AlertSettings) error
	Invalidate(ctx context.Context, tenantID string) error
}
