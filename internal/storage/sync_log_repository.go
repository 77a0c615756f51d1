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

// SyncLogRepository handles sync log persistence. A log is written once as
// running and finalized exactly once.
type SyncLogRepository struct {
	db *PostgresDB
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db *PostgresDB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

const syncLogColumns = `job_id::text, account_id, user_id, scope, tier, status,
	started_at, completed_at, counters, error`

func scanSyncLog(row pgx.Row) (*models.SyncLog, error) {
	var l models.SyncLog
	var scope, tier, status string
	var counters []byte
	if err := row.Scan(
		&l.JobID,
		&l.AccountID,
		&l.UserID,
		&scope,
		&tier,
		&status,
		&l.StartedAt,
		&l.CompletedAt,
		&counters,
		&l.Error,
	); err != nil {
		return nil, err
	}
	l.Scope = types.SyncScope(scope)
	l.Tier = types.Tier(tier)
	l.Status = types.JobStatus(status)
	if err := unmarshalJSONB(counters, &l.Counters); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a running sync log
func (r *SyncLogRepository) Create(ctx context.Context, l *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (job_id, account_id, user_id, scope, tier, status, started_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		l.JobID, l.AccountID, l.UserID, string(l.Scope), string(l.Tier), string(l.Status), l.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// Finalize writes the terminal status, counters and error of a running log
func (r *SyncLogRepository) Finalize(ctx context.Context, l *models.SyncLog) error {
	counters, err := marshalJSONB(l.Counters)
	if err != nil {
		return err
	}
	if counters == nil {
		counters = []byte("{}")
	}

	query := `
		UPDATE sync_logs
		SET status = $2, completed_at = $3, counters = $4, error = $5
		WHERE job_id = $1::uuid AND status = 'running'
	`
	result, err := r.db.Pool().Exec(ctx, query, l.JobID, string(l.Status), l.CompletedAt, counters, l.Error)
	if err != nil {
		return fmt.Errorf("failed to finalize sync log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("sync log %s is not running", l.JobID)
	}
	return nil
}

// GetByJobID returns one sync log
func (r *SyncLogRepository) GetByJobID(ctx context.Context, jobID string) (*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE job_id = $1::uuid`

	l, err := scanSyncLog(r.db.Pool().QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("sync log", jobID)
		}
		return nil, fmt.Errorf("failed to get sync log: %w", err)
	}
	return l, nil
}

// ListByAccount returns the most recent logs of an account, newest first
func (r *SyncLogRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + syncLogColumns + `
		FROM sync_logs
		WHERE account_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// LastCompletedAt returns the completion time of the account's latest
// successful job covering scope (or a full job), or nil if none exists
func (r *SyncLogRepository) LastCompletedAt(ctx context.Context, accountID string, scope types.SyncScope) (*time.Time, error) {
	query := `
		SELECT MAX(completed_at)
		FROM sync_logs
		WHERE account_id = $1 AND status = 'completed' AND scope IN ($2, 'full')
	`
	var at *time.Time
	if err := r.db.Pool().QueryRow(ctx, query, accountID, string(scope)).Scan(&at); err != nil {
		return nil, fmt.Errorf("failed to read sync watermark: %w", err)
	}
	return at, nil
}

// FailAbandoned finalizes logs left running by a previous process
func (r *SyncLogRepository) FailAbandoned(ctx context.Context, startedBefore time.Time) (int64, error) {
	query := `
		UPDATE sync_logs
		SET status = 'failed', completed_at = NOW(), error = 'abandoned: process restarted'
		WHERE status = 'running' AND started_at < $1
	`
	result, err := r.db.Pool().Exec(ctx, query, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to fail abandoned sync logs: %w", err)
	}
	return result.RowsAffected(), nil
}
