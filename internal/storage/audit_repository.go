package storage

import (
	"context"
	"fmt"

	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepository writes change and conflict records in batches
type AuditRepository struct {
	db *PostgresDB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *PostgresDB) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertChangeRecords writes all records in one transaction
func (r *AuditRepository) InsertChangeRecords(ctx context.Context, records []*models.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		previous, err := marshalJSONB(rec.PreviousData)
		if err != nil {
			return err
		}
		next, err := marshalJSONB(rec.NewData)
		if err != nil {
			return err
		}
		fields := rec.ChangedFields
		if fields == nil {
			fields = []string{}
		}
		batch.Queue(`
			INSERT INTO change_records (
				id, job_id, account_id, entity_type, entity_id, change_type,
				changed_fields, previous_data, new_data
			)
			VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at
		`, rec.ID, rec.JobID, rec.AccountID, string(rec.EntityType), rec.EntityID,
			string(rec.ChangeType), fields, previous, next,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&rec.CreatedAt)
		})
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert %d change records: %w", len(records), err)
		}
		return nil
	})
}

// InsertConflictRecords writes all records in one transaction
func (r *AuditRepository) InsertConflictRecords(ctx context.Context, records []*models.ConflictRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		local, err := marshalJSONB(rec.LocalValues)
		if err != nil {
			return err
		}
		remote, err := marshalJSONB(rec.RemoteValues)
		if err != nil {
			return err
		}
		fields := rec.Fields
		if fields == nil {
			fields = []string{}
		}
		batch.Queue(`
			INSERT INTO conflict_records (
				id, job_id, account_id, entity_type, entity_id, conflict_type,
				fields, local_values, remote_values, resolved
			)
			VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`, rec.ID, rec.JobID, rec.AccountID, string(rec.EntityType), rec.EntityID,
			string(rec.ConflictType), fields, local, remote, rec.Resolved,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&rec.CreatedAt)
		})
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert %d conflict records: %w", len(records), err)
		}
		return nil
	})
}

// ListConflicts returns an account's conflict records, newest first
func (r *AuditRepository) ListConflicts(ctx context.Context, accountID string, unresolvedOnly bool, limit int) ([]*models.ConflictRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id::text, job_id::text, account_id, entity_type, entity_id, conflict_type,
			fields, local_values, remote_values, resolved, created_at
		FROM conflict_records
		WHERE account_id = $1 AND (NOT $2 OR NOT resolved)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, accountID, unresolvedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var records []*models.ConflictRecord
	for rows.Next() {
		var rec models.ConflictRecord
		var entityType, conflictType string
		var local, remote []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.AccountID,
			&entityType,
			&rec.EntityID,
			&conflictType,
			&rec.Fields,
			&local,
			&remote,
			&rec.Resolved,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		rec.EntityType = types.EntityType(entityType)
		rec.ConflictType = types.ConflictType(conflictType)
		if err := unmarshalJSONB(local, &rec.LocalValues); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(remote, &rec.RemoteValues); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
