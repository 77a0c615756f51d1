// Package reconcile matches remote platform records against the local store,
// deciding create, update or skip per record and auditing every change.
package reconcile

import (
	"context"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/report"
)

// CampaignStore persists campaigns. Get returns nil, nil when absent.
type CampaignStore interface {
	Get(ctx context.Context, accountID, campaignID string) (*models.Campaign, error)
	FindByName(ctx context.Context, accountID, name string) ([]*models.Campaign, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Campaign, error)
	Insert(ctx context.Context, c *models.Campaign) error
	Update(ctx context.Context, c *models.Campaign) error
	UpdateTotals(ctx context.Context, id int64, totals models.CampaignTotals) error
}

// AdGroupStore persists ad groups. Lookups return nil, nil when absent.
type AdGroupStore interface {
	Get(ctx context.Context, accountID string, campaignLocalID int64, adGroupID string) (*models.AdGroup, error)
	GetByPlatformID(ctx context.Context, accountID, adGroupID string) (*models.AdGroup, error)
	Insert(ctx context.Context, g *models.AdGroup) error
	Update(ctx context.Context, g *models.AdGroup) error
}

// KeywordStore persists keywords. Get returns nil, nil when absent.
type KeywordStore interface {
	Get(ctx context.Context, accountID string, adGroupLocalID int64, keywordID string) (*models.Keyword, error)
	Insert(ctx context.Context, k *models.Keyword) error
	Update(ctx context.Context, k *models.Keyword) error
}

// ProductTargetStore persists product targets. Get returns nil, nil when absent.
type ProductTargetStore interface {
	Get(ctx context.Context, accountID string, adGroupLocalID int64, targetID string) (*models.ProductTarget, error)
	Insert(ctx context.Context, t *models.ProductTarget) error
	Update(ctx context.Context, t *models.ProductTarget) error
}

// AuditStore writes change and conflict records in batches
type AuditStore interface {
	InsertChangeRecords(ctx context.Context, records []*models.ChangeRecord) error
	InsertConflictRecords(ctx context.Context, records []*models.ConflictRecord) error
}

// PerformanceStore writes daily performance rows. ReportedTotals sums the
// stored campaign-level rows in [from, to], leaving synthetic rows out.
type PerformanceStore interface {
	InsertDaily(ctx context.Context, rows []models.PerformanceDaily) error
	ReportedTotals(ctx context.Context, accountID string, from, to time.Time) (map[string]models.CampaignTotals, error)
}

// Options scope one reconciliation pass
type Options struct {
	AccountID string
	// JobID enables change and conflict records. Empty disables auditing.
	JobID string
	// LastSyncTime is the watermark: local rows modified at or after it are left alone.
	LastSyncTime *time.Time
	// TotalsWindow is the range campaign totals are recomputed over after a
	// performance pass. A zero window leaves totals untouched.
	TotalsWindow report.DateRange
}

// Result is the outcome of one entity type's pass. Err carries a listing or
// audit failure; counters still reflect what was processed.
type Result struct {
	models.EntityCounters
	Err error
}
