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

// AccountRepository handles ad account persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, profile_id, name, region, access_token,
	connection_status, first_synced_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.AdAccount, error) {
	var a models.AdAccount
	var status string
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.ProfileID,
		&a.Name,
		&a.Region,
		&a.AccessToken,
		&status,
		&a.FirstSyncedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.ConnectionStatus = types.ConnectionStatus(status)
	return &a, nil
}

// Upsert creates or updates an account by id
func (r *AccountRepository) Upsert(ctx context.Context, a *models.AdAccount) error {
	query := `
		INSERT INTO ad_accounts (id, user_id, profile_id, name, region, access_token, connection_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			profile_id = EXCLUDED.profile_id,
			name = EXCLUDED.name,
			region = EXCLUDED.region,
			access_token = EXCLUDED.access_token,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	status := a.ConnectionStatus
	if status == "" {
		status = types.ConnectionOK
	}
	err := r.db.Pool().QueryRow(ctx, query,
		a.ID, a.UserID, a.ProfileID, a.Name, a.Region, a.AccessToken, string(status),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	a.ConnectionStatus = status
	return nil
}

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.AdAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM ad_accounts WHERE id = $1`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListByUser returns a user's accounts
func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*models.AdAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM ad_accounts WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.AdAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SetConnectionStatus records whether the account's credentials still work
func (r *AccountRepository) SetConnectionStatus(ctx context.Context, id string, status types.ConnectionStatus) error {
	query := `
		UPDATE ad_accounts
		SET connection_status = $2, updated_at = NOW()
		WHERE id = $1 AND connection_status <> $2
	`
	if _, err := r.db.Pool().Exec(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("failed to set connection status: %w", err)
	}
	return nil
}

// MarkFirstSynced sets first_synced_at unless it is already set
func (r *AccountRepository) MarkFirstSynced(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE ad_accounts SET first_synced_at = $2 WHERE id = $1 AND first_synced_at IS NULL`
	if _, err := r.db.Pool().Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to mark first sync: %w", err)
	}
	return nil
}
