package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// CampaignRepository handles campaign persistence. Sync writes move
// last_synced_at and leave updated_at to local edits.
type CampaignRepository struct {
	db *PostgresDB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *PostgresDB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, account_id, campaign_id, campaign_type, name, state, targeting_type,
	daily_budget::text, start_date, end_date, placement_adjustments,
	impressions, clicks, spend::text, sales::text, orders, acos::text,
	created_at, updated_at, last_synced_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var budget, spend, sales string
	var acos *string
	var placements []byte

	if err := row.Scan(
		&c.ID,
		&c.AccountID,
		&c.CampaignID,
		&c.CampaignType,
		&c.Name,
		&c.State,
		&c.TargetingType,
		&budget,
		&c.StartDate,
		&c.EndDate,
		&placements,
		&c.Impressions,
		&c.Clicks,
		&spend,
		&sales,
		&c.Orders,
		&acos,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.LastSyncedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if c.DailyBudget, err = parseNumeric(budget); err != nil {
		return nil, err
	}
	if c.Spend, err = parseNumeric(spend); err != nil {
		return nil, err
	}
	if c.Sales, err = parseNumeric(sales); err != nil {
		return nil, err
	}
	if c.ACoS, err = parseNullableNumeric(acos); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(placements, &c.PlacementAdjustments); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns the campaign with the given platform id, or nil when absent
func (r *CampaignRepository) Get(ctx context.Context, accountID, campaignID string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE account_id = $1 AND campaign_id = $2`

	c, err := scanCampaign(r.db.Pool().QueryRow(ctx, query, accountID, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// FindByName returns every campaign of the account with the given name
func (r *CampaignRepository) FindByName(ctx context.Context, accountID, name string) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE account_id = $1 AND name = $2 ORDER BY id`
	return r.list(ctx, query, accountID, name)
}

// ListByAccount returns all campaigns of an account
func (r *CampaignRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE account_id = $1 ORDER BY id`
	return r.list(ctx, query, accountID)
}

func (r *CampaignRepository) list(ctx context.Context, query string, args ...any) ([]*models.Campaign, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// Insert stores a new campaign. A concurrent insert of the same natural key
// turns into an update of the synced fields.
func (r *CampaignRepository) Insert(ctx context.Context, c *models.Campaign) error {
	placements, err := marshalJSONB(placementsOrEmpty(c.PlacementAdjustments))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaigns (
			account_id, campaign_id, campaign_type, name, state, targeting_type,
			daily_budget, start_date, end_date, placement_adjustments, last_synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
		ON CONFLICT (account_id, campaign_id) DO UPDATE SET
			campaign_type = EXCLUDED.campaign_type,
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			targeting_type = EXCLUDED.targeting_type,
			daily_budget = EXCLUDED.daily_budget,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			placement_adjustments = EXCLUDED.placement_adjustments,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	err = r.db.Pool().QueryRow(ctx, query,
		c.AccountID,
		c.CampaignID,
		c.CampaignType,
		c.Name,
		c.State,
		c.TargetingType,
		c.DailyBudget.String(),
		c.StartDate,
		c.EndDate,
		placements,
		now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert campaign %s: %w", c.CampaignID, err)
	}
	c.LastSyncedAt = &now
	return nil
}

// Update writes the synced fields of an existing campaign
func (r *CampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	placements, err := marshalJSONB(placementsOrEmpty(c.PlacementAdjustments))
	if err != nil {
		return err
	}

	query := `
		UPDATE campaigns
		SET campaign_type = $2, name = $3, state = $4, targeting_type = $5,
			daily_budget = $6::numeric, start_date = $7, end_date = $8,
			placement_adjustments = $9, last_synced_at = $10
		WHERE id = $1
	`

	now := time.Now().UTC()
	result, err := r.db.Pool().Exec(ctx, query,
		c.ID,
		c.CampaignType,
		c.Name,
		c.State,
		c.TargetingType,
		c.DailyBudget.String(),
		c.StartDate,
		c.EndDate,
		placements,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign %s: %w", c.CampaignID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("campaign not found: %d", c.ID)
	}
	c.LastSyncedAt = &now
	return nil
}

// UpdateTotals writes the attribution-window roll-up onto a campaign
func (r *CampaignRepository) UpdateTotals(ctx context.Context, id int64, totals models.CampaignTotals) error {
	query := `
		UPDATE campaigns
		SET impressions = $2, clicks = $3, spend = $4::numeric, sales = $5::numeric,
			orders = $6, acos = $7::numeric, last_synced_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool().Exec(ctx, query,
		id,
		totals.Impressions,
		totals.Clicks,
		totals.Spend.String(),
		totals.Sales.String(),
		totals.Orders,
		nullableNumeric(totals.ACoS()),
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign totals: %w", err)
	}
	return nil
}

func placementsOrEmpty(p []models.PlacementAdjustment) []models.PlacementAdjustment {
	if p == nil {
		return []models.PlacementAdjustment{}
	}
	return p
}
