package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const alertColumns = `id, tenant_id, session_id, type, channel, payload, status, attempts, error,
	created_at, sent_at, next_attempt_at`

const prefixedAlertColumns = `a.id, a.tenant_id, a.session_id, a.type, a.channel, a.payload, a.status, a.attempts, a.error,
	a.created_at, a.sent_at, a.next_attempt_at`

// AlertRepository implements domain.AlertRepository
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var a domain.Alert
	var alertType, status string
	var payload []byte
	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.SessionID,
		&alertType,
		&a.Channel,
		&payload,
		&status,
		&a.Attempts,
		&a.Error,
		&a.CreatedAt,
		&a.SentAt,
		&a.NextAttemptAt,
	); err != nil {
		return nil, err
	}
	a.Type = domain.AlertType(alertType)
	a.Status = domain.AlertStatus(status)
	a.Payload = payload
	return &a, nil
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	query := `
		INSERT INTO alerts (id, tenant_id, session_id, type, channel, payload, status, attempts, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	payload := []byte(alert.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.pool.Exec(ctx, query,
		alert.ID,
		alert.TenantID,
		alert.SessionID,
		string(alert.Type),
		alert.Channel,
		payload,
		string(alert.Status),
		alert.Attempts,
		alert.Error,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// UpdateOutcome is a no-op for alerts that already left the queued state
func (r *AlertRepository) UpdateOutcome(ctx context.Context, id uuid.UUID, outcome domain.AlertOutcome) error {
	query := `
		UPDATE alerts
		SET status = $2, attempts = $3, error = $4, sent_at = $5, next_attempt_at = $6
		WHERE id = $1 AND status = 'queued'
	`
	_, err := r.pool.Exec(ctx, query,
		id,
		string(outcome.Status),
		outcome.Attempts,
		outcome.Error,
		outcome.SentAt,
		outcome.NextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

func (r *AlertRepository) CountBySessionAndStatus(ctx context.Context, sessionID uuid.UUID, statuses []domain.AlertStatus) (int, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE session_id = $1 AND status = ANY($2)`,
		sessionID, values,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count session alerts: %w", err)
	}
	return count, nil
}

// ClaimDue picks queued alerts that still have attempts left and whose backoff has elapsed, oldest first,
// and pushes their next_attempt_at out by lease so a concurrent drain cannot pick them too.
func (r *AlertRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, maxAttempts, limit int) ([]domain.Alert, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM alerts
			WHERE status = 'queued'
			  AND attempts < $2
			  AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE alerts a
		SET next_attempt_at = $4
		FROM due
		WHERE a.id = due.id
		RETURNING ` + prefixedAlertColumns + `
	`
	rows, err := r.pool.Query(ctx, query, now, maxAttempts, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due alerts: %w", err)
	}
	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.Before(alerts[j].CreatedAt) })
	return alerts, nil
}

func (r *AlertRepository) FailExhausted(ctx context.Context, maxAttempts int, reason string) (int, error) {
	query := `
		UPDATE alerts
		SET status = 'failed', error = $2, next_attempt_at = NULL
		WHERE status = 'queued' AND attempts >= $1
	`
	tag, err := r.pool.Exec(ctx, query, maxAttempts, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to fail exhausted alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.TenantID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return collectAlerts(rows)
}

func (r *AlertRepository) CountByStatusSince(ctx context.Context, tenantID string, since time.Time) (map[domain.AlertStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM alerts
		WHERE tenant_id = $1 AND created_at >= $2 AND channel <> 'throttled'
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AlertStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[domain.AlertStatus(status)] = count
	}
	return counts, rows.Err()
}

func (r *AlertRepository) CountSkippedSince(ctx context.Context, tenantID, reason string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE tenant_id = $1 AND status = 'skipped' AND error = $2 AND created_at >= $3`,
		tenantID, reason, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count skipped alerts: %w", err)
	}
	return count, nil
}

func collectAlerts(rows pgx.Rows) ([]domain.Alert, error) {
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
