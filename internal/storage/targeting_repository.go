package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// KeywordRepository handles keyword persistence
type KeywordRepository struct {
	db *PostgresDB
}

// NewKeywordRepository creates a new keyword repository
func NewKeywordRepository(db *PostgresDB) *KeywordRepository {
	return &KeywordRepository{db: db}
}

const keywordColumns = `id, account_id, ad_group_local_id, keyword_id, ad_group_id, campaign_id,
	keyword_text, match_type, state, bid::text, created_at, updated_at, last_synced_at`

func scanKeyword(row pgx.Row) (*models.Keyword, error) {
	var k models.Keyword
	var bid string
	if err := row.Scan(
		&k.ID,
		&k.AccountID,
		&k.AdGroupLocalID,
		&k.KeywordID,
		&k.AdGroupID,
		&k.CampaignID,
		&k.KeywordText,
		&k.MatchType,
		&k.State,
		&bid,
		&k.CreatedAt,
		&k.UpdatedAt,
		&k.LastSyncedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if k.Bid, err = parseNumeric(bid); err != nil {
		return nil, err
	}
	return &k, nil
}

// Get returns the keyword under the given ad group, or nil when absent
func (r *KeywordRepository) Get(ctx context.Context, accountID string, adGroupLocalID int64, keywordID string) (*models.Keyword, error) {
	query := `SELECT ` + keywordColumns + `
		FROM keywords
		WHERE account_id = $1 AND ad_group_local_id = $2 AND keyword_id = $3`

	k, err := scanKeyword(r.db.Pool().QueryRow(ctx, query, accountID, adGroupLocalID, keywordID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get keyword: %w", err)
	}
	return k, nil
}

// Insert stores a new keyword
func (r *KeywordRepository) Insert(ctx context.Context, k *models.Keyword) error {
	query := `
		INSERT INTO keywords (
			account_id, ad_group_local_id, keyword_id, ad_group_id, campaign_id,
			keyword_text, match_type, state, bid, last_synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
		ON CONFLICT (account_id, keyword_id) DO UPDATE SET
			ad_group_local_id = EXCLUDED.ad_group_local_id,
			ad_group_id = EXCLUDED.ad_group_id,
			campaign_id = EXCLUDED.campaign_id,
			keyword_text = EXCLUDED.keyword_text,
			match_type = EXCLUDED.match_type,
			state = EXCLUDED.state,
			bid = EXCLUDED.bid,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	err := r.db.Pool().QueryRow(ctx, query,
		k.AccountID,
		k.AdGroupLocalID,
		k.KeywordID,
		k.AdGroupID,
		k.CampaignID,
		k.KeywordText,
		k.MatchType,
		k.State,
		k.Bid.String(),
		now,
	).Scan(&k.ID, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert keyword %s: %w", k.KeywordID, err)
	}
	k.LastSyncedAt = &now
	return nil
}

// Update writes the synced fields of an existing keyword
func (r *KeywordRepository) Update(ctx context.Context, k *models.Keyword) error {
	query := `
		UPDATE keywords
		SET keyword_text = $2, match_type = $3, state = $4, bid = $5::numeric, last_synced_at = $6
		WHERE id = $1
	`

	now := time.Now().UTC()
	result, err := r.db.Pool().Exec(ctx, query, k.ID, k.KeywordText, k.MatchType, k.State, k.Bid.String(), now)
	if err != nil {
		return fmt.Errorf("failed to update keyword %s: %w", k.KeywordID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("keyword not found: %d", k.ID)
	}
	k.LastSyncedAt = &now
	return nil
}

// ProductTargetRepository handles product target persistence
type ProductTargetRepository struct {
	db *PostgresDB
}

// NewProductTargetRepository creates a new product target repository
func NewProductTargetRepository(db *PostgresDB) *ProductTargetRepository {
	return &ProductTargetRepository{db: db}
}

const productTargetColumns = `id, account_id, ad_group_local_id, target_id, ad_group_id, campaign_id,
	expression_type, expression, state, bid::text, created_at, updated_at, last_synced_at`

func scanProductTarget(row pgx.Row) (*models.ProductTarget, error) {
	var t models.ProductTarget
	var bid string
	if err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.AdGroupLocalID,
		&t.TargetID,
		&t.AdGroupID,
		&t.CampaignID,
		&t.ExpressionType,
		&t.Expression,
		&t.State,
		&bid,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.LastSyncedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if t.Bid, err = parseNumeric(bid); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns the product target under the given ad group, or nil when absent
func (r *ProductTargetRepository) Get(ctx context.Context, accountID string, adGroupLocalID int64, targetID string) (*models.ProductTarget, error) {
	query := `SELECT ` + productTargetColumns + `
		FROM product_targets
		WHERE account_id = $1 AND ad_group_local_id = $2 AND target_id = $3`

	t, err := scanProductTarget(r.db.Pool().QueryRow(ctx, query, accountID, adGroupLocalID, targetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product target: %w", err)
	}
	return t, nil
}

// Insert stores a new product target
func (r *ProductTargetRepository) Insert(ctx context.Context, t *models.ProductTarget) error {
	query := `
		INSERT INTO product_targets (
			account_id, ad_group_local_id, target_id, ad_group_id, campaign_id,
			expression_type, expression, state, bid, last_synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
		ON CONFLICT (account_id, target_id) DO UPDATE SET
			ad_group_local_id = EXCLUDED.ad_group_local_id,
			ad_group_id = EXCLUDED.ad_group_id,
			campaign_id = EXCLUDED.campaign_id,
			expression_type = EXCLUDED.expression_type,
			expression = EXCLUDED.expression,
			state = EXCLUDED.state,
			bid = EXCLUDED.bid,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	err := r.db.Pool().QueryRow(ctx, query,
		t.AccountID,
		t.AdGroupLocalID,
		t.TargetID,
		t.AdGroupID,
		t.CampaignID,
		t.ExpressionType,
		t.Expression,
		t.State,
		t.Bid.String(),
		now,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product target %s: %w", t.TargetID, err)
	}
	t.LastSyncedAt = &now
	return nil
}

// Update writes the synced fields of an existing product target
func (r *ProductTargetRepository) Update(ctx context.Context, t *models.ProductTarget) error {
	query := `
		UPDATE product_targets
		SET expression_type = $2, expression = $3, state = $4, bid = $5::numeric, last_synced_at = $6
		WHERE id = $1
	`

	now := time.Now().UTC()
	result, err := r.db.Pool().Exec(ctx, query, t.ID, t.ExpressionType, t.Expression, t.State, t.Bid.String(), now)
	if err != nil {
		return fmt.Errorf("failed to update product target %s: %w", t.TargetID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("product target not found: %d", t.ID)
	}
	t.LastSyncedAt = &now
	return nil
}
