package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/biosync/internal/models"
)

// PostgresRegistry stores device user mappings in the
// device_user_mappings table, keyed by (user_id, device_id).
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// Upsert associates a user with its device-local identity. Safe to
// repeat with identical or updated inputs: an existing row for the
// (user, device) pair is updated in place and forced active.
func (r *PostgresRegistry) Upsert(ctx context.Context, userID uuid.UUID, deviceID string, deviceUserID int) error {
	var existingID int64
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM device_user_mappings WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID,
	).Scan(&existingID)

	switch {
	case err == nil:
		_, err = r.pool.Exec(ctx,
			`UPDATE device_user_mappings
			 SET device_user_id = $1, is_active = TRUE, updated_at = NOW()
			 WHERE id = $2`,
			deviceUserID, existingID)
		if err != nil {
			return fmt.Errorf("update mapping: %w", err)
		}
	case err == pgx.ErrNoRows:
		_, err = r.pool.Exec(ctx,
			`INSERT INTO device_user_mappings (user_id, device_id, device_user_id, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, TRUE, NOW(), NOW())`,
			userID, deviceID, deviceUserID)
		if err != nil {
			return fmt.Errorf("insert mapping: %w", err)
		}
	default:
		return fmt.Errorf("lookup mapping: %w", err)
	}
	return nil
}

// Deactivate flips the mapping inactive after a full deletion so a
// later enrollment cannot collide with a stale device-local identity.
func (r *PostgresRegistry) Deactivate(ctx context.Context, userID uuid.UUID, deviceID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_user_mappings SET is_active = FALSE, updated_at = NOW()
		 WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID)
	if err != nil {
		return fmt.Errorf("deactivate mapping: %w", err)
	}
	return nil
}

// ListByDevice returns every active mapping for one physical device.
func (r *PostgresRegistry) ListByDevice(ctx context.Context, deviceID string) ([]models.DeviceUserMapping, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, device_id, device_user_id, is_active, created_at, updated_at
		 FROM device_user_mappings WHERE device_id = $1 AND is_active ORDER BY device_user_id`,
		deviceID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.DeviceUserMapping
	for rows.Next() {
		var m models.DeviceUserMapping
		if err := rows.Scan(&m.UserID, &m.DeviceID, &m.DeviceUserID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}
