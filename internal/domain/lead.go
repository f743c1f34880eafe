package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead is shopper contact data captured during a session by the chat layer
type Lead struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  string     `json:"tenant_id"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Zip       string     `json:"zip,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HasContact reports whether the lead can be reached
func (l *Lead) HasContact() bool {
	return l.Email != "" || l.Phone != ""
}

// Anonymous reports whether the lead carries no usable name
func (l *Lead) Anonymous() bool {
	name := strings.TrimSpace(l.Name)
	return name == "" || strings.EqualFold(name, "anonymous")
}

// LeadRepository reads leads
type LeadRepository interface {
	// LatestForSession returns nil, nil when the session has no lead
	LatestForSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*Lead, error)
	CountByVariant(ctx context.Context, variantID uuid.UUID) (int, error)
	CountSince(ctx context.Context, tenantID string, since time.Time) (int, error)
}
