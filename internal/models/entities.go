package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PlacementAdjustment is a bid multiplier applied to a campaign placement
type PlacementAdjustment struct {
	Placement  string `json:"placement"`
	Percentage int    `json:"percentage"`
}

// Campaign represents a campaign mirrored from the platform.
// UpdatedAt moves only on local mutations; sync writes move LastSyncedAt.
type Campaign struct {
	ID                   int64                 `json:"id" db:"id"`
	AccountID            string                `json:"accountId" db:"account_id"`
	CampaignID           string                `json:"campaignId" db:"campaign_id"`
	CampaignType         string                `json:"campaignType" db:"campaign_type"`
	Name                 string                `json:"name" db:"name"`
	State                string                `json:"state" db:"state"`
	TargetingType        string                `json:"targetingType" db:"targeting_type"`
	DailyBudget          decimal.Decimal       `json:"dailyBudget" db:"daily_budget"`
	StartDate            string                `json:"startDate,omitempty" db:"start_date"`
	EndDate              string                `json:"endDate,omitempty" db:"end_date"`
	PlacementAdjustments []PlacementAdjustment `json:"placementAdjustments,omitempty" db:"placement_adjustments"`
	Impressions          int64                 `json:"impressions" db:"impressions"`
	Clicks               int64                 `json:"clicks" db:"clicks"`
	Spend                decimal.Decimal       `json:"spend" db:"spend"`
	Sales                decimal.Decimal       `json:"sales" db:"sales"`
	Orders               int64                 `json:"orders" db:"orders"`
	ACoS                 *decimal.Decimal      `json:"acos,omitempty" db:"acos"`
	CreatedAt            time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time             `json:"updatedAt" db:"updated_at"`
	LastSyncedAt         *time.Time            `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
}

// Snapshot returns the reconciled fields keyed by their wire names
func (c *Campaign) Snapshot() map[string]any {
	return map[string]any{
		"campaignType":         c.CampaignType,
		"name":                 c.Name,
		"state":                c.State,
		"targetingType":        c.TargetingType,
		"dailyBudget":          c.DailyBudget.String(),
		"startDate":            c.StartDate,
		"endDate":              c.EndDate,
		"placementAdjustments": placementsString(c.PlacementAdjustments),
	}
}

// AdGroup represents an ad group, scoped to its parent campaign's local id
type AdGroup struct {
	ID              int64           `json:"id" db:"id"`
	AccountID       string          `json:"accountId" db:"account_id"`
	CampaignLocalID int64           `json:"campaignLocalId" db:"campaign_local_id"`
	AdGroupID       string          `json:"adGroupId" db:"ad_group_id"`
	CampaignID      string          `json:"campaignId" db:"campaign_id"`
	Name            string          `json:"name" db:"name"`
	State           string          `json:"state" db:"state"`
	DefaultBid      decimal.Decimal `json:"defaultBid" db:"default_bid"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
	LastSyncedAt    *time.Time      `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
}

// Snapshot returns the reconciled fields keyed by their wire names
func (g *AdGroup) Snapshot() map[string]any {
	return map[string]any{
		"name":       g.Name,
		"state":      g.State,
		"defaultBid": g.DefaultBid.String(),
	}
}

// Keyword represents a keyword, scoped to its parent ad group's local id
type Keyword struct {
	ID             int64           `json:"id" db:"id"`
	AccountID      string          `json:"accountId" db:"account_id"`
	AdGroupLocalID int64           `json:"adGroupLocalId" db:"ad_group_local_id"`
	KeywordID      string          `json:"keywordId" db:"keyword_id"`
	AdGroupID      string          `json:"adGroupId" db:"ad_group_id"`
	CampaignID     string          `json:"campaignId" db:"campaign_id"`
	KeywordText    string          `json:"keywordText" db:"keyword_text"`
	MatchType      string          `json:"matchType" db:"match_type"`
	State          string          `json:"state" db:"state"`
	Bid            decimal.Decimal `json:"bid" db:"bid"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
	LastSyncedAt   *time.Time      `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
}

// Snapshot returns the reconciled fields keyed by their wire names
func (k *Keyword) Snapshot() map[string]any {
	return map[string]any{
		"keywordText": k.KeywordText,
		"matchType":   k.MatchType,
		"state":       k.State,
		"bid":         k.Bid.String(),
	}
}

// ProductTarget represents a product/category target, scoped to its parent ad group
type ProductTarget struct {
	ID             int64           `json:"id" db:"id"`
	AccountID      string          `json:"accountId" db:"account_id"`
	AdGroupLocalID int64           `json:"adGroupLocalId" db:"ad_group_local_id"`
	TargetID       string          `json:"targetId" db:"target_id"`
	AdGroupID      string          `json:"adGroupId" db:"ad_group_id"`
	CampaignID     string          `json:"campaignId" db:"campaign_id"`
	ExpressionType string          `json:"expressionType" db:"expression_type"`
	Expression     string          `json:"expression" db:"expression"`
	State          string          `json:"state" db:"state"`
	Bid            decimal.Decimal `json:"bid" db:"bid"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
	LastSyncedAt   *time.Time      `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
}

// Snapshot returns the reconciled fields keyed by their wire names
func (t *ProductTarget) Snapshot() map[string]any {
	return map[string]any{
		"expressionType": t.ExpressionType,
		"expression":     t.Expression,
		"state":          t.State,
		"bid":            t.Bid.String(),
	}
}

func placementsString(p []PlacementAdjustment) string {
	if len(p) == 0 {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}
