package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExperimentStatus is the lifecycle state of an experiment
type ExperimentStatus string

const (
	ExperimentActive    ExperimentStatus = "active"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
)

// Experiment is a tenant-scoped A/B test
type Experiment struct {
	ID        uuid.UUID        `json:"id"`
	TenantID  string           `json:"tenant_id"`
	Name      string           `json:"name"`
	Status    ExperimentStatus `json:"status"`
	StartAt   time.Time        `json:"start_at"`
	EndAt     *time.Time       `json:"end_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Variants  []Variant        `json:"variants"`
}

// Variant is a weighted bucket of an experiment. Variants are immutable once created.
type Variant struct {
	ID                uuid.UUID       `json:"id"`
	ExperimentID      uuid.UUID       `json:"experiment_id"`
	Name              string          `json:"name"`
	SplitPercent      int             `json:"split_percent"`
	PromptVersionID   *string         `json:"prompt_version_id,omitempty"`
	RulesOverrideJSON json.RawMessage `json:"rules_override_json,omitempty"`
}

// VariantAssignment is what a session learns about its bucket
type VariantAssignment struct {
	VariantID       uuid.UUID       `json:"variant_id"`
	VariantName     string          `json:"variant_name"`
	ExperimentID    uuid.UUID       `json:"experiment_id"`
	PromptVersionID *string         `json:"prompt_version_id,omitempty"`
	RulesOverride   json.RawMessage `json:"rules_override,omitempty"`
}

// NewVariantAssignment builds the assignment view of a variant
func NewVariantAssignment(v Variant) *VariantAssignment {
	return &VariantAssignment{
		VariantID:       v.ID,
		VariantName:     v.Name,
		ExperimentID:    v.ExperimentID,
		PromptVersionID: v.PromptVersionID,
		RulesOverride:   v.RulesOverrideJSON,
	}
}

// ExperimentCreate is the input for creating an experiment
type ExperimentCreate struct {
	TenantID string           `json:"-"`
	Name     string           `json:"name" validate:"required,max=255"`
	Status   ExperimentStatus `json:"status" validate:"omitempty,oneof=active paused completed"`
	StartAt  *time.Time       `json:"start_at,omitempty"`
	EndAt    *time.Time       `json:"end_at,omitempty"`
	Variants []VariantCreate  `json:"variants" validate:"required,min=1,dive"`
}

// VariantCreate is one variant of an ExperimentCreate
type VariantCreate struct {
	Name              string          `json:"name" validate:"required,max=255"`
	SplitPercent      int             `json:"split_percent" validate:"min=0,max=100"`
	PromptVersionID   *string         `json:"prompt_version_id,omitempty"`
	RulesOverrideJSON json.RawMessage `json:"rules_override_json,omitempty"`
}

// VariantMetrics are per-variant funnel counts and rates (rates in percent)
type VariantMetrics struct {
	VariantID      uuid.UUID `json:"variant_id"`
	VariantName    string    `json:"variant_name"`
	SplitPercent   int       `json:"split_percent"`
	Sessions       int       `json:"sessions"`
	Leads          int       `json:"leads"`
	LeadRate       float64   `json:"lead_rate"`
	AddToCarts     int       `json:"add_to_carts"`
	AddToCartRate  float64   `json:"add_to_cart_rate"`
	Checkouts      int       `json:"checkouts"`
	CheckoutRate   float64   `json:"checkout_rate"`
	Orders         int       `json:"orders"`
	ConversionRate float64   `json:"conversion_rate"`
}

// ExperimentMetrics is the metrics view of an experiment
type ExperimentMetrics struct {
	Experiment *Experiment      `json:"experiment"`
	Metrics    []VariantMetrics `json:"metrics"`
}

// Proportion is a successes/trials pair for significance testing
type Proportion struct {
	Successes int `json:"successes" validate:"min=0"`
	Trials    int `json:"trials" validate:"min=0"`
}

// Significance is the result of a two-proportion z-test
type Significance struct {
	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// ExperimentRepository defines the interface for experiment storage
type ExperimentRepository interface {
	// Create persists the experiment and its variants in one transaction
	Create(ctx context.Context, experiment *Experiment) error
	Get(ctx context.Context, id uuid.UUID) (*Experiment, error)
	// GetActive returns the first live experiment for the tenant at now, or nil
	GetActive(ctx context.Context, tenantID string, now time.Time) (*Experiment, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ExperimentStatus, endAt *time.Time) (*Experiment, error)
	List(ctx context.Context, tenantID string, includeCompleted bool) ([]Experiment, error)
}
