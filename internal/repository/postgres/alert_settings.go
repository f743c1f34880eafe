package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const alertSettingsColumns = `tenant_id, triggers, channels, quiet_hours, throttles, digest, created_at, updated_at`

// SecretBox seals channel credentials at rest
type SecretBox interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// AlertSettingsRepository implements domain.AlertSettingsRepository.
// Channel configs hold API credentials and are stored encrypted when a SecretBox is set.
type AlertSettingsRepository struct {
	pool *pgxpool.Pool
	box  SecretBox
}

// NewAlertSettingsRepository creates a new alert settings repository
func NewAlertSettingsRepository(pool *pgxpool.Pool, box SecretBox) *AlertSettingsRepository {
	return &AlertSettingsRepository{pool: pool, box: box}
}

func (r *AlertSettingsRepository) Get(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	query := `SELECT ` + alertSettingsColumns + ` FROM alert_settings WHERE tenant_id = $1`
	s, err := r.scan(r.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert settings: %w", err)
	}
	return s, nil
}

func (r *AlertSettingsRepository) InsertDefault(ctx context.Context, settings *domain.AlertSettings) error {
	args, err := r.args(settings)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO alert_settings (tenant_id, triggers, channels, quiet_hours, throttles, digest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert alert settings: %w", err)
	}
	return nil
}

func (r *AlertSettingsRepository) Update(ctx context.Context, settings *domain.AlertSettings) error {
	args, err := r.args(settings)
	if err != nil {
		return err
	}
	query := `
		UPDATE alert_settings
		SET triggers = $2, channels = $3, quiet_hours = $4, throttles = $5, digest = $6, updated_at = $7
		WHERE tenant_id = $1
	`
	// created_at is immutable
	tag, err := r.pool.Exec(ctx, query, append(args[:6:6], settings.UpdatedAt)...)
	if err != nil {
		return fmt.Errorf("failed to update alert settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AlertSettingsRepository) ListDigestDue(ctx context.Context, sentBefore time.Time) ([]domain.AlertSettings, error) {
	query := `
		SELECT ` + alertSettingsColumns + `
		FROM alert_settings
		WHERE (digest->>'enabled')::boolean IS TRUE
		  AND (digest_sent_at IS NULL OR digest_sent_at < $1)
		ORDER BY tenant_id
	`
	rows, err := r.pool.Query(ctx, query, sentBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest settings: %w", err)
	}
	defer rows.Close()

	var result []domain.AlertSettings
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert settings: %w", err)
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *AlertSettingsRepository) MarkDigestSent(ctx context.Context, tenantID string, at time.Time) error {
	query := `UPDATE alert_settings SET digest_sent_at = $2 WHERE tenant_id = $1`
	if _, err := r.pool.Exec(ctx, query, tenantID, at); err != nil {
		return fmt.Errorf("failed to mark digest sent: %w", err)
	}
	return nil
}

func (r *AlertSettingsRepository) args(s *domain.AlertSettings) ([]any, error) {
	triggers, err := json.Marshal(s.Triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal triggers: %w", err)
	}
	channels, err := r.sealChannels(s.Channels)
	if err != nil {
		return nil, err
	}
	var quietHours, digest []byte
	if s.QuietHours != nil {
		if quietHours, err = json.Marshal(s.QuietHours); err != nil {
			return nil, fmt.Errorf("failed to marshal quiet hours: %w", err)
		}
	}
	if s.Digest != nil {
		if digest, err = json.Marshal(s.Digest); err != nil {
			return nil, fmt.Errorf("failed to marshal digest: %w", err)
		}
	}
	throttles, err := json.Marshal(s.Throttles)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal throttles: %w", err)
	}
	return []any{s.TenantID, triggers, channels, quietHours, throttles, digest, s.CreatedAt, s.UpdatedAt}, nil
}

func (r *AlertSettingsRepository) scan(row pgx.Row) (*domain.AlertSettings, error) {
	var s domain.AlertSettings
	var triggers, quietHours, throttles, digest []byte
	var channels string
	if err := row.Scan(
		&s.TenantID,
		&triggers,
		&channels,
		&quietHours,
		&throttles,
		&digest,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggers, &s.Triggers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
	}
	if err := json.Unmarshal(throttles, &s.Throttles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal throttles: %w", err)
	}
	if len(quietHours) > 0 {
		if err := json.Unmarshal(quietHours, &s.QuietHours); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quiet hours: %w", err)
		}
	}
	if len(digest) > 0 {
		if err := json.Unmarshal(digest, &s.Digest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal digest: %w", err)
		}
	}
	opened, err := r.openChannels(s.TenantID, channels)
	if err != nil {
		return nil, err
	}
	s.Channels = opened
	return &s, nil
}

func (r *AlertSettingsRepository) sealChannels(channels map[string]domain.ChannelConfig) (string, error) {
	if channels == nil {
		channels = map[string]domain.ChannelConfig{}
	}
	raw, err := json.Marshal(channels)
	if err != nil {
		return "", fmt.Errorf("failed to marshal channels: %w", err)
	}
	if r.box == nil {
		return string(raw), nil
	}
	sealed, err := r.box.EncryptString(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt channels: %w", err)
	}
	return sealed, nil
}

func (r *AlertSettingsRepository) openChannels(tenantID, stored string) (map[string]domain.ChannelConfig, error) {
	channels := map[string]domain.ChannelConfig{}
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return channels, nil
	}

	plain := stored
	if !strings.HasPrefix(stored, "{") {
		if r.box == nil {
			return nil, fmt.Errorf("channels for tenant %s are encrypted but no key is configured", tenantID)
		}
		opened, err := r.box.DecryptString(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt channels: %w", err)
		}
		plain = opened
	} else if r.box != nil {
		log.Warn().Str("tenant_id", tenantID).Msg("Alert channels stored unencrypted; they will be sealed on next update")
	}

	if err := json.Unmarshal([]byte(plain), &channels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
	}
	return channels, nil
}
