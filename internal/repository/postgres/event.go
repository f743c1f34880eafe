package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, tenant_id, session_id, type, metadata, click_id, timestamp`

// EventRepository implements domain.EventRepository
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new event repository
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append inserts an event. Events are never updated.
func (r *EventRepository) Append(ctx context.Context, event *domain.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	query := `
		INSERT INTO events (id, tenant_id, session_id, type, metadata, click_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		event.ID,
		event.TenantID,
		event.SessionID,
		event.Type,
		metadataJSON,
		event.ClickID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = $1 ORDER BY timestamp ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventRepository) ListRecentByTypes(ctx context.Context, sessionID uuid.UUID, types []string, limit int) ([]domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE session_id = $1 AND type = ANY($2)
		ORDER BY timestamp DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, sessionID, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventRepository) CountByVariantAndType(ctx context.Context, variantID uuid.UUID, eventType string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM events e
		JOIN chat_sessions s ON s.id = e.session_id
		WHERE s.variant_id = $1 AND e.type = $2
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, variantID, eventType).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var metadataJSON []byte
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.SessionID,
			&e.Type,
			&metadataJSON,
			&e.ClickID,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
