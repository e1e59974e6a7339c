package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/biosync/internal/config"
	"github.com/your-org/biosync/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying connection pool for components that run
// their own queries against the same database.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// --- Fingerprint records ---

// SaveFingerprint stores a capture. A re-enrollment of the same finger
// supersedes the previous row rather than adding a second one.
func (s *PostgresStore) SaveFingerprint(ctx context.Context, rec *models.FingerprintRecord) (*models.FingerprintRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO fingerprint_records
		   (id, user_id, device_user_id, finger_index, finger_name,
		    template, primary_template, verification_template, backup_template, combined_template,
		    average_quality, capture_count, capture_time_ms, device_info, sdk_version, enrolled_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (user_id, finger_index) DO UPDATE SET
		   device_user_id = EXCLUDED.device_user_id,
		   finger_name = EXCLUDED.finger_name,
		   template = EXCLUDED.template,
		   primary_template = EXCLUDED.primary_template,
		   verification_template = EXCLUDED.verification_template,
		   backup_template = EXCLUDED.backup_template,
		   combined_template = EXCLUDED.combined_template,
		   average_quality = EXCLUDED.average_quality,
		   capture_count = EXCLUDED.capture_count,
		   capture_time_ms = EXCLUDED.capture_time_ms,
		   device_info = EXCLUDED.device_info,
		   sdk_version = EXCLUDED.sdk_version,
		   enrolled_at = EXCLUDED.enrolled_at,
		   updated_by = EXCLUDED.updated_by,
		   updated_at = NOW()
		 RETURNING id, created_at`,
		rec.ID, rec.UserID, rec.DeviceUserID, rec.FingerIndex, rec.FingerName,
		rec.Template, rec.PrimaryTemplate, rec.VerificationTemplate, rec.BackupTemplate, rec.CombinedTemplate,
		rec.AverageQuality, rec.CaptureCount, rec.CaptureTimeMs, rec.DeviceInfo, rec.SDKVersion, rec.EnrolledAt, rec.UpdatedBy,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save fingerprint: %w", err)
	}
	return rec, nil
}

// GetFingerprint returns one finger's record, or nil when none exists.
func (s *PostgresStore) GetFingerprint(ctx context.Context, userID uuid.UUID, fingerIndex int) (*models.FingerprintRecord, error) {
	rec := &models.FingerprintRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, device_user_id, finger_index, finger_name,
		        template, combined_template, average_quality, capture_count, capture_time_ms,
		        device_info, sdk_version, enrolled_at, created_at
		 FROM fingerprint_records WHERE user_id = $1 AND finger_index = $2`,
		userID, fingerIndex,
	).Scan(&rec.ID, &rec.UserID, &rec.DeviceUserID, &rec.FingerIndex, &rec.FingerName,
		&rec.Template, &rec.CombinedTemplate, &rec.AverageQuality, &rec.CaptureCount, &rec.CaptureTimeMs,
		&rec.DeviceInfo, &rec.SDKVersion, &rec.EnrolledAt, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	return rec, nil
}

// ListFingerprints returns a user's records without the template blobs.
func (s *PostgresStore) ListFingerprints(ctx context.Context, userID uuid.UUID) ([]models.FingerprintRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, device_user_id, finger_index, finger_name,
		        average_quality, capture_count, capture_time_ms, sdk_version, enrolled_at, created_at
		 FROM fingerprint_records WHERE user_id = $1 ORDER BY finger_index`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var records []models.FingerprintRecord
	for rows.Next() {
		var rec models.FingerprintRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DeviceUserID, &rec.FingerIndex, &rec.FingerName,
			&rec.AverageQuality, &rec.CaptureCount, &rec.CaptureTimeMs, &rec.SDKVersion, &rec.EnrolledAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteFingerprints removes one finger when fingerIndex is set, or
// the whole user's records when nil. Returns rows removed.
func (s *PostgresStore) DeleteFingerprints(ctx context.Context, userID uuid.UUID, fingerIndex *int) (int, error) {
	var tag pgconn.CommandTag
	var err error
	if fingerIndex != nil {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM fingerprint_records WHERE user_id = $1 AND finger_index = $2`,
			userID, *fingerIndex)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM fingerprint_records WHERE user_id = $1`, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("delete fingerprints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetDeviceIdentity resolves the user's hardware identity from the
// most recent enrollment, or nil when the user has none.
func (s *PostgresStore) GetDeviceIdentity(ctx context.Context, userID uuid.UUID) (*models.DeviceIdentity, error) {
	ident := &models.DeviceIdentity{}
	err := s.pool.QueryRow(ctx,
		`SELECT device_user_id, finger_index, finger_name
		 FROM fingerprint_records WHERE user_id = $1
		 ORDER BY enrolled_at DESC LIMIT 1`,
		userID,
	).Scan(&ident.DeviceUserID, &ident.FingerIndex, &ident.FingerName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get device identity: %w", err)
	}
	return ident, nil
}
