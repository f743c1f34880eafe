package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

const significanceLevel = 0.05

// ExperimentService manages A/B experiments and assigns sessions to variants
type ExperimentService struct {
	experimentRepo domain.ExperimentRepository
	sessionRepo    domain.SessionRepository
	leadRepo       domain.LeadRepository
	eventRepo      domain.EventRepository
	draw           func() float64
	now            func() time.Time
}

// NewExperimentService creates a new experiment service
func NewExperimentService(
	experimentRepo domain.ExperimentRepository,
	sessionRepo domain.SessionRepository,
	leadRepo domain.LeadRepository,
	eventRepo domain.EventRepository,
) *ExperimentService {
	return &ExperimentService{
		experimentRepo: experimentRepo,
		sessionRepo:    sessionRepo,
		leadRepo:       leadRepo,
		eventRepo:      eventRepo,
		draw:           rand.Float64,
		now:            time.Now,
	}
}

// SelectVariant walks variants in stored order and returns the first whose cumulative
// split is at least draw (0 <= draw < 100). Falls back to the first variant.
func SelectVariant(variants []domain.Variant, draw float64) domain.Variant {
	cumulative := 0.0
	for _, v := range variants {
		cumulative += float64(v.SplitPercent)
		if cumulative >= draw {
			return v
		}
	}
	return variants[0]
}

// AssignVariant buckets a new session into the tenant's live experiment, or returns nil
func (s *ExperimentService) AssignVariant(ctx context.Context, tenantID string) (*domain.VariantAssignment, error) {
	experiment, err := s.experimentRepo.GetActive(ctx, tenantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get active experiment: %w", err)
	}
	if experiment == nil || len(experiment.Variants) == 0 {
		return nil, nil
	}

	variant := SelectVariant(experiment.Variants, s.draw()*100)
	return domain.NewVariantAssignment(variant), nil
}

// ResolveVariant returns the assignment for a stored variant id, or nil if it no longer exists
func (s *ExperimentService) ResolveVariant(ctx context.Context, variantID uuid.UUID) (*domain.VariantAssignment, error) {
	variant, err := s.experimentRepo.GetVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}
	return domain.NewVariantAssignment(*variant), nil
}

// Create validates the variant splits and persists the experiment
func (s *ExperimentService) Create(ctx context.Context, input domain.ExperimentCreate) (*domain.Experiment, error) {
	if len(input.Variants) == 0 {
		return nil, domain.NewValidationError("variants", "at least one variant is required")
	}
	total := 0
	for _, v := range input.Variants {
		if v.SplitPercent < 0 || v.SplitPercent > 100 {
			return nil, domain.NewValidationError("variants.split_percent", "must be between 0 and 100")
		}
		total += v.SplitPercent
	}
	if total != 100 {
		return nil, domain.NewValidationError("variants", fmt.Sprintf("split percentages must sum to 100, got %d", total))
	}

	status := input.Status
	if status == "" {
		status = domain.ExperimentActive
	}

	now := s.now()
	experiment := &domain.Experiment{
		ID:        uuid.New(),
		TenantID:  input.TenantID,
		Name:      input.Name,
		Status:    status,
		StartAt:   now,
		EndAt:     input.EndAt,
		CreatedAt: now,
	}
	if input.StartAt != nil {
		experiment.StartAt = *input.StartAt
	}
	if experiment.EndAt != nil && experiment.EndAt.Before(experiment.StartAt) {
		return nil, domain.NewValidationError("end_at", "must not be before start_at")
	}

	for _, v := range input.Variants {
		experiment.Variants = append(experiment.Variants, domain.Variant{
			ID:                uuid.New(),
			ExperimentID:      experiment.ID,
			Name:              v.Name,
			SplitPercent:      v.SplitPercent,
			PromptVersionID:   v.PromptVersionID,
			RulesOverrideJSON: v.RulesOverrideJSON,
		})
	}

	if err := s.experimentRepo.Create(ctx, experiment); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	log.Info().
		Str("tenant_id", experiment.TenantID).
		Str("experiment_id", experiment.ID.String()).
		Int("variants", len(experiment.Variants)).
		Msg("experiment created")
	return experiment, nil
}

// Get returns a tenant's experiment
func (s *ExperimentService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Experiment, error) {
	experiment, err := s.experimentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if experiment.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return experiment, nil
}

// UpdateStatus changes an experiment's status. Completing it stamps endAt.
func (s *ExperimentService) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status domain.ExperimentStatus) (*domain.Experiment, error) {
	switch status {
	case domain.ExperimentActive, domain.ExperimentPaused, domain.ExperimentCompleted:
	default:
		return nil, domain.NewValidationError("status", "must be active, paused or completed")
	}

	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}

	var endAt *time.Time
	if status == domain.ExperimentCompleted {
		now := s.now()
		endAt = &now
	}

	experiment, err := s.experimentRepo.UpdateStatus(ctx, id, status, endAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update experiment: %w", err)
	}
	log.Info().Str("experiment_id", id.String()).Str("status", string(status)).Msg("experiment status updated")
	return experiment, nil
}

// List returns the tenant's experiments, hiding completed ones unless asked
func (s *ExperimentService) List(ctx context.Context, tenantID string, includeCompleted bool) ([]domain.Experiment, error) {
	experiments, err := s.experimentRepo.List(ctx, tenantID, includeCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return experiments, nil
}

// GetMetrics computes funnel metrics per variant
func (s *ExperimentService) GetMetrics(ctx context.Context, tenantID string, id uuid.UUID) (*domain.ExperimentMetrics, error) {
	experiment, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	metrics := make([]domain.VariantMetrics, len(experiment.Variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range experiment.Variants {
		i, v := i, v
		g.Go(func() error {
			m, err := s.variantMetrics(gctx, v)
			if err != nil {
				return err
			}
			metrics[i] = *m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute experiment metrics: %w", err)
	}

	return &domain.ExperimentMetrics{Experiment: experiment, Metrics: metrics}, nil
}

func (s *ExperimentService) variantMetrics(ctx context.Context, v domain.Variant) (*domain.VariantMetrics, error) {
	m := &domain.VariantMetrics{
		VariantID:    v.ID,
		VariantName:  v.Name,
		SplitPercent: v.SplitPercent,
	}

	var err error
	if m.Sessions, err = s.sessionRepo.CountByVariant(ctx, v.ID); err != nil {
		return nil, err
	}
	if m.Leads, err = s.leadRepo.CountByVariant(ctx, v.ID); err != nil {
		return nil, err
	}
	if m.AddToCarts, err = s.eventRepo.CountByVariantAndType(ctx, v.ID, domain.EventAddToCart); err != nil {
		return nil, err
	}
	if m.Checkouts, err = s.eventRepo.CountByVariantAndType(ctx, v.ID, domain.EventCheckoutStarted); err != nil {
		return nil, err
	}
	if m.Orders, err = s.eventRepo.CountByVariantAndType(ctx, v.ID, domain.EventOrderPlaced); err != nil {
		return nil, err
	}

	m.LeadRate = rate(m.Leads, m.Sessions)
	m.AddToCartRate = rate(m.AddToCarts, m.Sessions)
	m.CheckoutRate = rate(m.Checkouts, m.Sessions)
	m.ConversionRate = rate(m.Orders, m.Sessions)
	return m, nil
}

// rate is a percentage rounded to two decimals
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// CalculateSignificance runs a two-tailed two-proportion z-test of a against b
func CalculateSignificance(a, b domain.Proportion) domain.Significance {
	none := domain.Significance{ZScore: 0, PValue: 1, Significant: false}
	if a.Trials == 0 || b.Trials == 0 {
		return none
	}

	p1 := float64(a.Successes) / float64(a.Trials)
	p2 := float64(b.Successes) / float64(b.Trials)
	pooled := float64(a.Successes+b.Successes) / float64(a.Trials+b.Trials)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.Trials) + 1/float64(b.Trials)))
	if se == 0 {
		return none
	}

	z := (p1 - p2) / se
	p := 2 * (1 - normalCDF(math.Abs(z)))
	return domain.Significance{ZScore: z, PValue: p, Significant: p < significanceLevel}
}

// normalCDF is the Abramowitz-Stegun 26.2.17 approximation of the standard normal CDF
func normalCDF(z float64) float64 {
	t := 1 / (1 + 0.2316419*math.Abs(z))
	d := 0.3989423 * math.Exp(-z*z/2)
	prob := d * t * (0.3193815 + t*(-0.3565638+t*(1.781478+t*(-1.821256+t*1.330274))))
	if z > 0 {
		return 1 - prob
	}
	return prob
}
