package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
	"github.com/jackc/pgx/v5"
)

// ScheduleRepository handles sync schedule persistence
type ScheduleRepository struct {
	db *PostgresDB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *PostgresDB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, user_id, account_id, frequency, preferred_time, preferred_weekday,
	enabled, last_run_at, created_at, updated_at`

func scanSchedule(row pgx.Row) (*models.SyncSchedule, error) {
	var s models.SyncSchedule
	var frequency string
	var weekday *int16
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.AccountID,
		&frequency,
		&s.PreferredTime,
		&weekday,
		&s.Enabled,
		&s.LastRunAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Frequency = types.Frequency(frequency)
	if weekday != nil {
		w := int(*weekday)
		s.PreferredWeekday = &w
	}
	return &s, nil
}

// Upsert creates or re-enables the schedule for (user, account)
func (r *ScheduleRepository) Upsert(ctx context.Context, s *models.SyncSchedule) error {
	query := `
		INSERT INTO sync_schedules (user_id, account_id, frequency, preferred_time, preferred_weekday, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, account_id) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			preferred_time = EXCLUDED.preferred_time,
			preferred_weekday = EXCLUDED.preferred_weekday,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	var weekday *int16
	if s.PreferredWeekday != nil {
		w := int16(*s.PreferredWeekday) // #nosec G115 - constrained to 0..6 by the table
		weekday = &w
	}
	err := r.db.Pool().QueryRow(ctx, query,
		s.UserID, s.AccountID, string(s.Frequency), s.PreferredTime, weekday, s.Enabled,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

// ListEnabled returns every enabled schedule
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]*models.SyncSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM sync_schedules WHERE enabled ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.SyncSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// GetByAccount returns the user's schedule for an account
func (r *ScheduleRepository) GetByAccount(ctx context.Context, userID, accountID string) (*models.SyncSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM sync_schedules WHERE user_id = $1 AND account_id = $2`

	s, err := scanSchedule(r.db.Pool().QueryRow(ctx, query, userID, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("schedule", accountID)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

// Disable turns a schedule off. Schedules are never deleted.
func (r *ScheduleRepository) Disable(ctx context.Context, userID, accountID string) error {
	query := `UPDATE sync_schedules SET enabled = FALSE, updated_at = NOW() WHERE user_id = $1 AND account_id = $2`
	result, err := r.db.Pool().Exec(ctx, query, userID, accountID)
	if err != nil {
		return fmt.Errorf("failed to disable schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("schedule", accountID)
	}
	return nil
}

// MarkRun sets last_run_at on the user's schedule for the account, if any
func (r *ScheduleRepository) MarkRun(ctx context.Context, userID, accountID string, at time.Time) error {
	query := `UPDATE sync_schedules SET last_run_at = $3 WHERE user_id = $1 AND account_id = $2`
	if _, err := r.db.Pool().Exec(ctx, query, userID, accountID, at); err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	return nil
}
