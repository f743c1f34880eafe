package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

type experimentFixture struct {
	experiments *MockExperimentRepository
	sessions    *MockSessionRepository
	leads       *MockLeadRepository
	events      *MockEventRepository
	svc         *ExperimentService
}

func newExperimentFixture() *experimentFixture {
	f := &experimentFixture{
		experiments: new(MockExperimentRepository),
		sessions:    new(MockSessionRepository),
		leads:       new(MockLeadRepository),
		events:      new(MockEventRepository),
	}
	f.svc = NewExperimentService(f.experiments, f.sessions, f.leads, f.events)
	f.svc.now = clock
	return f
}

func splitExperiment(splits ...int) *domain.Experiment {
	e := &domain.Experiment{
		ID:       uuid.New(),
		TenantID: tenant,
		Name:     "greeting copy",
		Status:   domain.ExperimentActive,
		StartAt:  fixedNow.Add(-24 * time.Hour),
	}
	names := []string{"control", "treatment", "third"}
	for i, split := range splits {
		e.Variants = append(e.Variants, domain.Variant{
			ID:           uuid.New(),
			ExperimentID: e.ID,
			Name:         names[i],
			SplitPercent: split,
		})
	}
	return e
}

func TestSelectVariant(t *testing.T) {
	variants := splitExperiment(70, 30).Variants

	assert.Equal(t, "control", SelectVariant(variants, 0).Name)
	assert.Equal(t, "control", SelectVariant(variants, 70).Name)
	assert.Equal(t, "treatment", SelectVariant(variants, 70.01).Name)
	assert.Equal(t, "treatment", SelectVariant(variants, 99.99).Name)

	// splits that do not reach the draw fall back to the first variant
	short := splitExperiment(10, 10).Variants
	assert.Equal(t, "control", SelectVariant(short, 50).Name)
}

func TestExperimentService_AssignVariant(t *testing.T) {
	ctx := context.Background()

	t.Run("weighted split", func(t *testing.T) {
		f := newExperimentFixture()
		experiment := splitExperiment(70, 30)
		f.experiments.On("GetActive", ctx, tenant, fixedNow).Return(experiment, nil)
		f.svc.draw = rand.New(rand.NewSource(7)).Float64

		const n = 10000
		counts := map[string]int{}
		for i := 0; i < n; i++ {
			a, err := f.svc.AssignVariant(ctx, tenant)
			require.NoError(t, err)
			require.NotNil(t, a)
			assert.Equal(t, experiment.ID, a.ExperimentID)
			counts[a.VariantName]++
		}

		assert.InDelta(t, 0.70, float64(counts["control"])/n, 0.03)
		assert.InDelta(t, 0.30, float64(counts["treatment"])/n, 0.03)
	})

	t.Run("no active experiment", func(t *testing.T) {
		f := newExperimentFixture()
		f.experiments.On("GetActive", ctx, tenant, fixedNow).Return(nil, nil)

		a, err := f.svc.AssignVariant(ctx, tenant)
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("resolve deleted variant", func(t *testing.T) {
		f := newExperimentFixture()
		id := uuid.New()
		f.experiments.On("GetVariant", ctx, id).Return(nil, domain.ErrNotFound)

		a, err := f.svc.ResolveVariant(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, a)
	})
}

func TestExperimentService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("splits must sum to 100", func(t *testing.T) {
		f := newExperimentFixture()
		_, err := f.svc.Create(ctx, domain.ExperimentCreate{
			TenantID: tenant,
			Name:     "three way",
			Status:   domain.ExperimentActive,
			Variants: []domain.VariantCreate{
				{Name: "a", SplitPercent: 40},
				{Name: "b", SplitPercent: 40},
				{Name: "c", SplitPercent: 40},
			},
		})
		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.Message, "got 120")
		f.experiments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("end before start", func(t *testing.T) {
		f := newExperimentFixture()
		end := fixedNow.Add(-time.Hour)
		_, err := f.svc.Create(ctx, domain.ExperimentCreate{
			TenantID: tenant,
			Name:     "backwards",
			EndAt:    &end,
			Variants: []domain.VariantCreate{{Name: "only", SplitPercent: 100}},
		})
		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "end_at", vErr.Field)
	})

	t.Run("persists variants", func(t *testing.T) {
		f := newExperimentFixture()
		f.experiments.On("Create", ctx, mock.AnythingOfType("*domain.Experiment")).Return(nil)

		got, err := f.svc.Create(ctx, domain.ExperimentCreate{
			TenantID: tenant,
			Name:     "greeting copy",
			Variants: []domain.VariantCreate{
				{Name: "control", SplitPercent: 50},
				{Name: "treatment", SplitPercent: 50},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ExperimentActive, got.Status)
		assert.Equal(t, fixedNow, got.StartAt)
		require.Len(t, got.Variants, 2)
		for _, v := range got.Variants {
			assert.Equal(t, got.ID, v.ExperimentID)
			assert.NotEqual(t, uuid.Nil, v.ID)
		}
	})
}

func TestExperimentService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("completing stamps end time", func(t *testing.T) {
		f := newExperimentFixture()
		experiment := splitExperiment(50, 50)
		f.experiments.On("Get", ctx, experiment.ID).Return(experiment, nil)
		f.experiments.On("UpdateStatus", ctx, experiment.ID, domain.ExperimentCompleted,
			mock.MatchedBy(func(end *time.Time) bool { return end != nil && end.Equal(fixedNow) }),
		).Return(experiment, nil)

		_, err := f.svc.UpdateStatus(ctx, tenant, experiment.ID, domain.ExperimentCompleted)
		require.NoError(t, err)
		f.experiments.AssertExpectations(t)
	})

	t.Run("pausing keeps end time", func(t *testing.T) {
		f := newExperimentFixture()
		experiment := splitExperiment(50, 50)
		f.experiments.On("Get", ctx, experiment.ID).Return(experiment, nil)
		f.experiments.On("UpdateStatus", ctx, experiment.ID, domain.ExperimentPaused, (*time.Time)(nil)).Return(experiment, nil)

		_, err := f.svc.UpdateStatus(ctx, tenant, experiment.ID, domain.ExperimentPaused)
		require.NoError(t, err)
	})

	t.Run("other tenant", func(t *testing.T) {
		f := newExperimentFixture()
		experiment := splitExperiment(50, 50)
		f.experiments.On("Get", ctx, experiment.ID).Return(experiment, nil)

		_, err := f.svc.UpdateStatus(ctx, "other.myshopify.com", experiment.ID, domain.ExperimentPaused)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newExperimentFixture()
		_, err := f.svc.UpdateStatus(ctx, tenant, uuid.New(), "archived")
		var vErr *domain.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})
}

func TestExperimentService_GetMetrics(t *testing.T) {
	ctx := context.Background()
	f := newExperimentFixture()
	experiment := splitExperiment(50, 50)
	control, treatment := experiment.Variants[0], experiment.Variants[1]

	f.experiments.On("Get", ctx, experiment.ID).Return(experiment, nil)
	f.sessions.On("CountByVariant", mock.Anything, control.ID).Return(300, nil)
	f.sessions.On("CountByVariant", mock.Anything, treatment.ID).Return(0, nil)
	f.leads.On("CountByVariant", mock.Anything, control.ID).Return(45, nil)
	f.leads.On("CountByVariant", mock.Anything, treatment.ID).Return(0, nil)
	f.events.On("CountByVariantAndType", mock.Anything, control.ID, domain.EventAddToCart).Return(30, nil)
	f.events.On("CountByVariantAndType", mock.Anything, control.ID, domain.EventCheckoutStarted).Return(20, nil)
	f.events.On("CountByVariantAndType", mock.Anything, control.ID, domain.EventOrderPlaced).Return(7, nil)
	f.events.On("CountByVariantAndType", mock.Anything, treatment.ID, mock.Anything).Return(0, nil)

	got, err := f.svc.GetMetrics(ctx, tenant, experiment.ID)
	require.NoError(t, err)
	require.Len(t, got.Metrics, 2)

	m := got.Metrics[0]
	assert.Equal(t, "control", m.VariantName)
	assert.Equal(t, 300, m.Sessions)
	assert.Equal(t, 15.0, m.LeadRate)
	assert.Equal(t, 10.0, m.AddToCartRate)
	assert.Equal(t, 6.67, m.CheckoutRate)
	assert.Equal(t, 2.33, m.ConversionRate)

	assert.Equal(t, "treatment", got.Metrics[1].VariantName)
	assert.Zero(t, got.Metrics[1].ConversionRate)
}

func TestCalculateSignificance(t *testing.T) {
	t.Run("clear difference", func(t *testing.T) {
		got := CalculateSignificance(domain.Proportion{Successes: 50, Trials: 100}, domain.Proportion{Successes: 30, Trials: 100})
		assert.InDelta(t, 2.8868, got.ZScore, 0.001)
		assert.Less(t, got.PValue, 0.05)
		assert.True(t, got.Significant)
	})

	t.Run("same rate", func(t *testing.T) {
		got := CalculateSignificance(domain.Proportion{Successes: 10, Trials: 100}, domain.Proportion{Successes: 10, Trials: 100})
		assert.Zero(t, got.ZScore)
		assert.InDelta(t, 1.0, got.PValue, 0.0001)
		assert.False(t, got.Significant)
	})

	t.Run("small difference", func(t *testing.T) {
		got := CalculateSignificance(domain.Proportion{Successes: 12, Trials: 100}, domain.Proportion{Successes: 10, Trials: 100})
		assert.Greater(t, got.PValue, 0.05)
		assert.False(t, got.Significant)
	})

	t.Run("degenerate inputs", func(t *testing.T) {
		none := domain.Significance{ZScore: 0, PValue: 1, Significant: false}
		assert.Equal(t, none, CalculateSignificance(domain.Proportion{}, domain.Proportion{Successes: 3, Trials: 10}))
		assert.Equal(t, none, CalculateSignificance(domain.Proportion{Successes: 10, Trials: 10}, domain.Proportion{Successes: 5, Trials: 5}))
	})
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normalCDF(0), 0.0001)
	assert.InDelta(t, 0.975, normalCDF(1.96), 0.0001)
	assert.InDelta(t, 0.025, normalCDF(-1.96), 0.0001)
	assert.InDelta(t, 0.8413, normalCDF(1), 0.0001)
}
