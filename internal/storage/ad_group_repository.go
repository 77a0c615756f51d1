package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// AdGroupRepository handles ad group persistence
type AdGroupRepository struct {
	db *PostgresDB
}

// NewAdGroupRepository creates a new ad group repository
func NewAdGroupRepository(db *PostgresDB) *AdGroupRepository {
	return &AdGroupRepository{db: db}
}

const adGroupColumns = `id, account_id, campaign_local_id, ad_group_id, campaign_id, name, state,
	default_bid::text, created_at, updated_at, last_synced_at`

func scanAdGroup(row pgx.Row) (*models.AdGroup, error) {
	var g models.AdGroup
	var bid string
	if err := row.Scan(
		&g.ID,
		&g.AccountID,
		&g.CampaignLocalID,
		&g.AdGroupID,
		&g.CampaignID,
		&g.Name,
		&g.State,
		&bid,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.LastSyncedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if g.DefaultBid, err = parseNumeric(bid); err != nil {
		return nil, err
	}
	return &g, nil
}

// Get returns the ad group under the given campaign, or nil when absent
func (r *AdGroupRepository) Get(ctx context.Context, accountID string, campaignLocalID int64, adGroupID string) (*models.AdGroup, error) {
	query := `SELECT ` + adGroupColumns + `
		FROM ad_groups
		WHERE account_id = $1 AND campaign_local_id = $2 AND ad_group_id = $3`

	g, err := scanAdGroup(r.db.Pool().QueryRow(ctx, query, accountID, campaignLocalID, adGroupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ad group: %w", err)
	}
	return g, nil
}

// GetByPlatformID returns the ad group with the given platform id regardless of parent
func (r *AdGroupRepository) GetByPlatformID(ctx context.Context, accountID, adGroupID string) (*models.AdGroup, error) {
	query := `SELECT ` + adGroupColumns + ` FROM ad_groups WHERE account_id = $1 AND ad_group_id = $2`

	g, err := scanAdGroup(r.db.Pool().QueryRow(ctx, query, accountID, adGroupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ad group: %w", err)
	}
	return g, nil
}

// Insert stores a new ad group
func (r *AdGroupRepository) Insert(ctx context.Context, g *models.AdGroup) error {
	query := `
		INSERT INTO ad_groups (
			account_id, campaign_local_id, ad_group_id, campaign_id, name, state, default_bid, last_synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
		ON CONFLICT (account_id, ad_group_id) DO UPDATE SET
			campaign_local_id = EXCLUDED.campaign_local_id,
			campaign_id = EXCLUDED.campaign_id,
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			default_bid = EXCLUDED.default_bid,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	err := r.db.Pool().QueryRow(ctx, query,
		g.AccountID,
		g.CampaignLocalID,
		g.AdGroupID,
		g.CampaignID,
		g.Name,
		g.State,
		g.DefaultBid.String(),
		now,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ad group %s: %w", g.AdGroupID, err)
	}
	g.LastSyncedAt = &now
	return nil
}

// Update writes the synced fields of an existing ad group
func (r *AdGroupRepository) Update(ctx context.Context, g *models.AdGroup) error {
	query := `
		UPDATE ad_groups
		SET name = $2, state = $3, default_bid = $4::numeric, last_synced_at = $5
		WHERE id = $1
	`

	now := time.Now().UTC()
	result, err := r.db.Pool().Exec(ctx, query, g.ID, g.Name, g.State, g.DefaultBid.String(), now)
	if err != nil {
		return fmt.Errorf("failed to update ad group %s: %w", g.AdGroupID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("ad group not found: %d", g.ID)
	}
	g.LastSyncedAt = &now
	return nil
}
