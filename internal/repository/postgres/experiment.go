package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const experimentColumns = `id, tenant_id, name, status, start_at, end_at, created_at`

const variantColumns = `id, experiment_id, name, split_percent, prompt_version_id, rules_override_json`

// ExperimentRepository implements domain.ExperimentRepository
type ExperimentRepository struct {
	pool *pgxpool.Pool
}

// NewExperimentRepository creates a new experiment repository
func NewExperimentRepository(pool *pgxpool.Pool) *ExperimentRepository {
	return &ExperimentRepository{pool: pool}
}

func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO experiments (id, tenant_id, name, status, start_at, end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.TenantID, e.Name, string(e.Status), e.StartAt, e.EndAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	for i, v := range e.Variants {
		var rules []byte
		if len(v.RulesOverrideJSON) > 0 {
			rules = v.RulesOverrideJSON
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO variants (id, experiment_id, name, split_percent, prompt_version_id, rules_override_json, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, v.ID, e.ID, v.Name, v.SplitPercent, v.PromptVersionID, rules, i)
		if err != nil {
			return fmt.Errorf("failed to create variant %s: %w", v.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments WHERE id = $1`
	e, err := scanExperiment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	if e.Variants, err = r.variants(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExperimentRepository) GetActive(ctx context.Context, tenantID string, now time.Time) (*domain.Experiment, error) {
	query := `
		SELECT ` + experimentColumns + `
		FROM experiments
		WHERE tenant_id = $1
		  AND status = 'active'
		  AND start_at <= $2
		  AND (end_at IS NULL OR end_at >= $2)
		ORDER BY created_at ASC
		LIMIT 1
	`
	e, err := scanExperiment(r.pool.QueryRow(ctx, query, tenantID, now))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active experiment: %w", err)
	}
	if e.Variants, err = r.variants(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExperimentRepository) GetVariant(ctx context.Context, id uuid.UUID) (*domain.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE id = $1`
	v, err := scanVariant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}
	return v, nil
}

func (r *ExperimentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExperimentStatus, endAt *time.Time) (*domain.Experiment, error) {
	query := `
		UPDATE experiments
		SET status = $2, end_at = COALESCE($3, end_at)
		WHERE id = $1
		RETURNING ` + experimentColumns
	e, err := scanExperiment(r.pool.QueryRow(ctx, query, id, string(status), endAt))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update experiment status: %w", err)
	}
	if e.Variants, err = r.variants(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExperimentRepository) List(ctx context.Context, tenantID string, includeCompleted bool) ([]domain.Experiment, error) {
	query := `
		SELECT ` + experimentColumns + `
		FROM experiments
		WHERE tenant_id = $1 AND ($2 OR status <> 'completed')
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, tenantID, includeCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	var experiments []domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	for i := range experiments {
		if experiments[i].Variants, err = r.variants(ctx, experiments[i].ID); err != nil {
			return nil, err
		}
	}
	return experiments, nil
}

func (r *ExperimentRepository) variants(ctx context.Context, experimentID uuid.UUID) ([]domain.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE experiment_id = $1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, *v)
	}
	return variants, rows.Err()
}

func scanExperiment(row pgx.Row) (*domain.Experiment, error) {
	var e domain.Experiment
	var status string
	if err := row.Scan(&e.ID, &e.TenantID, &e.Name, &status, &e.StartAt, &e.EndAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = domain.ExperimentStatus(status)
	return &e, nil
}

func scanVariant(row pgx.Row) (*domain.Variant, error) {
	var v domain.Variant
	var rules []byte
	if err := row.Scan(&v.ID, &v.ExperimentID, &v.Name, &v.SplitPercent, &v.PromptVersionID, &rules); err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		v.RulesOverrideJSON = rules
	}
	return &v, nil
}
