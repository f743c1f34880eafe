package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeadRepository implements domain.LeadRepository
type LeadRepository struct {
	pool *pgxpool.Pool
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

func (r *LeadRepository) LatestForSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*domain.Lead, error) {
	query := `
		SELECT id, tenant_id, session_id,
		       COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''), COALESCE(zip, ''),
		       created_at
		FROM leads
		WHERE tenant_id = $1 AND session_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var l domain.Lead
	err := r.pool.QueryRow(ctx, query, tenantID, sessionID).Scan(
		&l.ID,
		&l.TenantID,
		&l.SessionID,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.Zip,
		&l.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &l, nil
}

func (r *LeadRepository) CountByVariant(ctx context.Context, variantID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM leads l
		JOIN chat_sessions s ON s.id = l.session_id
		WHERE s.variant_id = $1
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, variantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return count, nil
}

func (r *LeadRepository) CountSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return count, nil
}
