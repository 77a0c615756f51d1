package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `-- header comment
CREATE TABLE a (
    x UInt8
) ENGINE = MergeTree ORDER BY x;

-- second
ALTER TABLE a ADD COLUMN y String;
SELECT 1`

	statements := splitSQLStatements(content)
	require.Len(t, statements, 3)
	assert.True(t, strings.HasPrefix(statements[0], "CREATE TABLE a ("))
	assert.NotContains(t, statements[0], ";")
	assert.Equal(t, "ALTER TABLE a ADD COLUMN y String", statements[1])
	assert.Equal(t, "SELECT 1", statements[2])
}

func TestSplitSQLStatements_OnlyComments(t *testing.T) {
	assert.Empty(t, splitSQLStatements("-- nothing\n\n   -- here\n"))
}

func TestPerformanceRepository_ReplacesRepulledDays(t *testing.T) {
	db := openTestClickHouse(t)
	repo := NewPerformanceRepository(db)
	ctx := testContext(t)

	accountID := "test-" + uuid.NewString()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := models.PerformanceDaily{
		AccountID:   accountID,
		CampaignID:  "c1",
		Date:        day,
		Impressions: 100,
		Clicks:      5,
		Spend:       decimal.RequireFromString("4.50"),
		Sales:       decimal.RequireFromString("30"),
		Orders:      2,
		JobID:       uuid.NewString(),
		FetchedAt:   time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, repo.InsertDaily(ctx, []models.PerformanceDaily{first}))

	revised := first
	revised.Sales = decimal.RequireFromString("45")
	revised.Orders = 3
	revised.FetchedAt = time.Now().UTC()
	require.NoError(t, repo.InsertDaily(ctx, []models.PerformanceDaily{revised}))

	rows, err := repo.Daily(ctx, accountID, day, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(3), rows[0].Orders)

	totals, err := repo.CampaignTotals(ctx, accountID, day, day)
	require.NoError(t, err)
	assert.True(t, totals["c1"].Sales.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, int64(100), totals["c1"].Impressions)
}

func TestPerformanceRepository_ReportedTotalsSkipSyntheticRows(t *testing.T) {
	db := openTestClickHouse(t)
	repo := NewPerformanceRepository(db)
	ctx := testContext(t)

	accountID := "test-" + uuid.NewString()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	row := func(date time.Time, impressions uint64, synthetic bool) models.PerformanceDaily {
		return models.PerformanceDaily{
			AccountID:   accountID,
			CampaignID:  "c1",
			Date:        date,
			Impressions: impressions,
			Spend:       decimal.NewFromInt(1),
			Sales:       decimal.NewFromInt(2),
			Synthetic:   synthetic,
			JobID:       uuid.NewString(),
			FetchedAt:   time.Now().UTC(),
		}
	}
	require.NoError(t, repo.InsertDaily(ctx, []models.PerformanceDaily{
		row(day, 100, false),
		row(day.AddDate(0, 0, 1), 900, true),
	}))

	all, err := repo.CampaignTotals(ctx, accountID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), all["c1"].Impressions)

	reported, err := repo.ReportedTotals(ctx, accountID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(100), reported["c1"].Impressions)
}
