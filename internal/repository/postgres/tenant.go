package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantRepository implements domain.QuotaProvider from the tenants table
type TenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func (r *TenantRepository) PlanQuota(ctx context.Context, tenantID string) (*domain.PlanQuota, error) {
	var planName string
	err := r.pool.QueryRow(ctx, `SELECT plan_name FROM tenants WHERE id = $1`, tenantID).Scan(&planName)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant plan: %w", err)
	}

	plan, ok := domain.Plans[planName]
	if !ok {
		plan = domain.Plans["starter"]
	}
	return &plan, nil
}
