package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceDaily is one day of campaign metrics stored in ClickHouse.
// Rows for the same (account, campaign, ad group, date) replace each other.
type PerformanceDaily struct {
	AccountID   string          `json:"accountId" ch:"account_id"`
	CampaignID  string          `json:"campaignId" ch:"campaign_id"`
	AdGroupID   string          `json:"adGroupId,omitempty" ch:"ad_group_id"`
	Date        time.Time       `json:"date" ch:"date"`
	Impressions uint64          `json:"impressions" ch:"impressions"`
	Clicks      uint64          `json:"clicks" ch:"clicks"`
	Spend       decimal.Decimal `json:"spend" ch:"spend"`
	Sales       decimal.Decimal `json:"sales" ch:"sales"`
	Orders      uint64          `json:"orders" ch:"orders"`
	Synthetic   bool            `json:"synthetic" ch:"is_synthetic"`
	JobID       string          `json:"jobId" ch:"job_id"`
	FetchedAt   time.Time       `json:"fetchedAt" ch:"fetched_at"`
}

// CampaignTotals is the windowed roll-up written onto a campaign row
type CampaignTotals struct {
	Impressions int64
	Clicks      int64
	Spend       decimal.Decimal
	Sales       decimal.Decimal
	Orders      int64
}

// ACoS returns spend / sales as a percentage, or nil when there are no sales
func (t CampaignTotals) ACoS() *decimal.Decimal {
	if t.Sales.IsZero() {
		return nil
	}
	v := t.Spend.Div(t.Sales).Mul(decimal.NewFromInt(100)).Round(2)
	return &v
}
