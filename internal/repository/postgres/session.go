package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, tenant_id, conversation_id, variant_id, started_at, last_activity_at,
	ended_at, end_reason, intent_score, summary, consent`

// createOrGetRetries bounds the insert/resume loop when a concurrent end races a resume
const createOrGetRetries = 3

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*domain.ChatSession, error) {
	var s domain.ChatSession
	var endReason *string
	if err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.ConversationID,
		&s.VariantID,
		&s.StartedAt,
		&s.LastActivityAt,
		&s.EndedAt,
		&endReason,
		&s.IntentScore,
		&s.Summary,
		&s.Consent,
	); err != nil {
		return nil, err
	}
	if endReason != nil {
		r := domain.EndReason(*endReason)
		s.EndReason = &r
	}
	return &s, nil
}

func (r *SessionRepository) CreateOrGetActive(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, bool, error) {
	if session.ConversationID == nil {
		created, err := r.insert(ctx, session, false)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	for i := 0; i < createOrGetRetries; i++ {
		created, err := r.insert(ctx, session, true)
		if err == nil {
			return created, true, nil
		}
		if !isNoRows(err) {
			return nil, false, err
		}

		// An active session already exists for this conversation; resume it.
		existing, err := r.ResumeActive(ctx, session.TenantID, *session.ConversationID, session.LastActivityAt)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		// Ended between our insert and update; try inserting again.
	}
	return nil, false, fmt.Errorf("failed to create or resume session for conversation %s", *session.ConversationID)
}

// ResumeActive bumps and returns the active session of a conversation, or ErrNotFound
func (r *SessionRepository) ResumeActive(ctx context.Context, tenantID, conversationID string, at time.Time) (*domain.ChatSession, error) {
	query := `
		UPDATE chat_sessions
		SET last_activity_at = $3
		WHERE tenant_id = $1 AND conversation_id = $2 AND ended_at IS NULL
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, query, tenantID, conversationID, at))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) insert(ctx context.Context, s *domain.ChatSession, onConflict bool) (*domain.ChatSession, error) {
	query := `
		INSERT INTO chat_sessions (id, tenant_id, conversation_id, variant_id, started_at, last_activity_at, consent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if onConflict {
		query += `
		ON CONFLICT (tenant_id, conversation_id) WHERE ended_at IS NULL AND conversation_id IS NOT NULL
		DO NOTHING`
	}
	query += `
		RETURNING ` + sessionColumns

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		s.ID,
		s.TenantID,
		s.ConversationID,
		s.VariantID,
		s.StartedAt,
		s.LastActivityAt,
		s.Consent,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE chat_sessions SET last_activity_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) MarkEnded(ctx context.Context, id uuid.UUID, end domain.SessionEnd) (bool, error) {
	query := `
		UPDATE chat_sessions
		SET ended_at = $2, end_reason = $3, intent_score = $4, summary = $5, consent = $6, last_activity_at = $2
		WHERE id = $1 AND ended_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query,
		id,
		end.EndedAt,
		string(end.EndReason),
		end.IntentScore,
		end.Summary,
		end.Consent,
	)
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepository) ListIdle(ctx context.Context, before time.Time, limit int) ([]domain.ChatSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE ended_at IS NULL AND last_activity_at < $1
		ORDER BY last_activity_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) CountByVariant(ctx context.Context, variantID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE variant_id = $1`, variantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (r *SessionRepository) Stats(ctx context.Context, tenantID string, since time.Time) (*domain.SessionStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(ended_at),
		       COALESCE(AVG(intent_score), 0)
		FROM chat_sessions
		WHERE tenant_id = $1 AND started_at >= $2
	`
	var stats domain.SessionStats
	if err := r.pool.QueryRow(ctx, query, tenantID, since).Scan(
		&stats.TotalSessions,
		&stats.EndedSessions,
		&stats.AvgIntentScore,
	); err != nil {
		return nil, fmt.Errorf("failed to compute session stats: %w", err)
	}
	return &stats, nil
}
