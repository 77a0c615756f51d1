package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/ads-sync/internal/adapter"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
	"github.com/shopspring/decimal"
)

// NormalizeState folds a platform state ("ENABLED", " Paused ") to its canonical lowercase form
func NormalizeState(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDate coerces YYYYMMDD or YYYY-MM-DD to YYYY-MM-DD. Empty stays empty.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// money rounds a remote amount to the cents the store keeps
func money(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// NormalizeCampaign flattens a remote campaign into the local model
func NormalizeCampaign(accountID string, r adapter.RemoteCampaign) (*models.Campaign, error) {
	id := r.CampaignID.String()
	if id == "" {
		return nil, apperrors.NewDataError(string(types.EntityCampaign), "", "missing campaignId")
	}

	start, err := NormalizeDate(r.StartDate)
	if err != nil {
		return nil, apperrors.NewDataError(string(types.EntityCampaign), id, err.Error())
	}
	end, err := NormalizeDate(r.EndDate)
	if err != nil {
		return nil, apperrors.NewDataError(string(types.EntityCampaign), id, err.Error())
	}

	budget := r.Budget.Amount
	if budget == nil {
		budget = r.DailyBudget
	}

	campaignType := strings.ToLower(strings.TrimSpace(r.CampaignType))
	if campaignType == "" {
		campaignType = string(types.CampaignSponsoredProducts)
	}

	c := &models.Campaign{
		AccountID:     accountID,
		CampaignID:    id,
		CampaignType:  campaignType,
		Name:          strings.TrimSpace(r.Name),
		State:         NormalizeState(r.State),
		TargetingType: strings.ToLower(strings.TrimSpace(r.TargetingType)),
		DailyBudget:   money(budget),
		StartDate:     start,
		EndDate:       end,
	}
	if r.DynamicBidding != nil {
		for _, p := range r.DynamicBidding.PlacementBidding {
			c.PlacementAdjustments = append(c.PlacementAdjustments, models.PlacementAdjustment{
				Placement:  strings.ToUpper(strings.TrimSpace(p.Placement)),
				Percentage: p.Percentage,
			})
		}
	}
	return c, nil
}

// NormalizeAdGroup flattens a remote ad group. The parent's local id is set by the caller.
func NormalizeAdGroup(accountID string, r adapter.RemoteAdGroup) (*models.AdGroup, error) {
	id := r.AdGroupID.String()
	if id == "" {
		return nil, apperrors.NewDataError(string(types.EntityAdGroup), "", "missing adGroupId")
	}
	if r.CampaignID == "" {
		return nil, apperrors.NewDataError(string(types.EntityAdGroup), id, "missing campaignId")
	}
	return &models.AdGroup{
		AccountID:  accountID,
		AdGroupID:  id,
		CampaignID: r.CampaignID.String(),
		Name:       strings.TrimSpace(r.Name),
		State:      NormalizeState(r.State),
		DefaultBid: money(r.DefaultBid),
	}, nil
}

// NormalizeKeyword flattens a remote keyword. The parent's local id is set by the caller.
func NormalizeKeyword(accountID string, r adapter.RemoteKeyword) (*models.Keyword, error) {
	id := r.KeywordID.String()
	if id == "" {
		return nil, apperrors.NewDataError(string(types.EntityKeyword), "", "missing keywordId")
	}
	if r.AdGroupID == "" {
		return nil, apperrors.NewDataError(string(types.EntityKeyword), id, "missing adGroupId")
	}
	return &models.Keyword{
		AccountID:   accountID,
		KeywordID:   id,
		AdGroupID:   r.AdGroupID.String(),
		CampaignID:  r.CampaignID.String(),
		KeywordText: strings.TrimSpace(r.KeywordText),
		MatchType:   strings.ToLower(strings.TrimSpace(r.MatchType)),
		State:       NormalizeState(r.State),
		Bid:         money(r.Bid),
	}, nil
}

// NormalizeProductTarget flattens a remote product target. The expression
// predicates are rendered as "type=value" pairs joined by "; ".
func NormalizeProductTarget(accountID string, r adapter.RemoteProductTarget) (*models.ProductTarget, error) {
	id := r.TargetID.String()
	if id == "" {
		return nil, apperrors.NewDataError(string(types.EntityProductTarget), "", "missing targetId")
	}
	if r.AdGroupID == "" {
		return nil, apperrors.NewDataError(string(types.EntityProductTarget), id, "missing adGroupId")
	}
	return &models.ProductTarget{
		AccountID:      accountID,
		TargetID:       id,
		AdGroupID:      r.AdGroupID.String(),
		CampaignID:     r.CampaignID.String(),
		ExpressionType: strings.ToLower(strings.TrimSpace(r.ExpressionType)),
		Expression:     expressionString(r.Expression),
		State:          NormalizeState(r.State),
		Bid:            money(r.Bid),
	}, nil
}

func expressionString(exprs []adapter.TargetExpression) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		t := strings.TrimSpace(e.Type)
		if v := strings.TrimSpace(e.Value); v != "" {
			parts = append(parts, t+"="+v)
		} else {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; ")
}

// NormalizeReportRow converts a report row for a resolved campaign id
func NormalizeReportRow(accountID, campaignID, jobID string, r adapter.ReportRow, fetchedAt time.Time) (models.PerformanceDaily, error) {
	date, err := NormalizeDate(r.Date)
	if err != nil || date == "" {
		return models.PerformanceDaily{}, apperrors.NewDataError(string(types.EntityPerformance), r.CampaignID.String(), "invalid report date")
	}
	day, _ := time.Parse("2006-01-02", date)

	if r.Impressions < 0 || r.Clicks < 0 || r.Orders < 0 {
		return models.PerformanceDaily{}, apperrors.NewDataError(string(types.EntityPerformance), r.CampaignID.String(), "negative counter")
	}

	return models.PerformanceDaily{
		AccountID:   accountID,
		CampaignID:  campaignID,
		AdGroupID:   r.AdGroupID.String(),
		Date:        day,
		Impressions: uint64(r.Impressions),
		Clicks:      uint64(r.Clicks),
		Spend:       r.Cost.Round(4),
		Sales:       r.Sales.Round(4),
		Orders:      uint64(r.Orders),
		Synthetic:   r.Synthetic,
		JobID:       jobID,
		FetchedAt:   fetchedAt,
	}, nil
}
