package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/shopspring/decimal"
)

// PerformanceRepository stores daily performance rows in ClickHouse.
// The table is a ReplacingMergeTree keyed by (account, campaign, ad group, date),
// so re-pulling an attribution window overwrites earlier rows.
type PerformanceRepository struct {
	db *ClickHouseDB
}

// NewPerformanceRepository creates a new performance repository
func NewPerformanceRepository(db *ClickHouseDB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// InsertDaily writes rows in one batch
func (r *PerformanceRepository) InsertDaily(ctx context.Context, rows []models.PerformanceDaily) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO performance_daily (
			account_id, campaign_id, ad_group_id, date, impressions, clicks,
			spend, sales, orders, is_synthetic, job_id, fetched_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(
			row.AccountID,
			row.CampaignID,
			row.AdGroupID,
			row.Date,
			row.Impressions,
			row.Clicks,
			row.Spend,
			row.Sales,
			row.Orders,
			row.Synthetic,
			row.JobID,
			row.FetchedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send performance batch: %w", err)
	}
	return nil
}

// Daily returns an account's rows in [from, to], deduplicated
func (r *PerformanceRepository) Daily(ctx context.Context, accountID string, from, to time.Time) ([]models.PerformanceDaily, error) {
	query := `
		SELECT account_id, campaign_id, ad_group_id, date, impressions, clicks,
			spend, sales, orders, is_synthetic, job_id, fetched_at
		FROM performance_daily FINAL
		WHERE account_id = ? AND date BETWEEN ? AND ?
		ORDER BY campaign_id, ad_group_id, date
	`

	rows, err := r.db.Conn().Query(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance: %w", err)
	}
	defer rows.Close()

	var result []models.PerformanceDaily
	for rows.Next() {
		var row models.PerformanceDaily
		if err := rows.Scan(
			&row.AccountID,
			&row.CampaignID,
			&row.AdGroupID,
			&row.Date,
			&row.Impressions,
			&row.Clicks,
			&row.Spend,
			&row.Sales,
			&row.Orders,
			&row.Synthetic,
			&row.JobID,
			&row.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CampaignTotals sums an account's campaign-level rows in [from, to]
func (r *PerformanceRepository) CampaignTotals(ctx context.Context, accountID string, from, to time.Time) (map[string]models.CampaignTotals, error) {
	return r.totals(ctx, accountID, from, to, true)
}

// ReportedTotals is CampaignTotals without synthetic rows. It is what the
// campaign roll-up is written from.
func (r *PerformanceRepository) ReportedTotals(ctx context.Context, accountID string, from, to time.Time) (map[string]models.CampaignTotals, error) {
	return r.totals(ctx, accountID, from, to, false)
}

func (r *PerformanceRepository) totals(ctx context.Context, accountID string, from, to time.Time, includeSynthetic bool) (map[string]models.CampaignTotals, error) {
	query := `
		SELECT campaign_id, sum(impressions), sum(clicks), sum(spend), sum(sales), sum(orders)
		FROM performance_daily FINAL
		WHERE account_id = ? AND ad_group_id = '' AND date BETWEEN ? AND ?
			AND (? OR is_synthetic = 0)
		GROUP BY campaign_id
	`

	rows, err := r.db.Conn().Query(ctx, query, accountID, from, to, includeSynthetic)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]models.CampaignTotals)
	for rows.Next() {
		var campaignID string
		var impressions, clicks, orders uint64
		var spend, sales decimal.Decimal
		if err := rows.Scan(&campaignID, &impressions, &clicks, &spend, &sales, &orders); err != nil {
			return nil, fmt.Errorf("failed to scan campaign totals: %w", err)
		}
		totals[campaignID] = models.CampaignTotals{
			Impressions: int64(impressions), // #nosec G115 - daily counters stay far below 2^63
			Clicks:      int64(clicks),      // #nosec G115
			Spend:       spend,
			Sales:       sales,
			Orders:      int64(orders), // #nosec G115
		}
	}
	return totals, rows.Err()
}
