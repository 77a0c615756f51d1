package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
)

// PerformanceReconciler stores report rows against local campaigns and
// rolls the stored totals window up onto each campaign
type PerformanceReconciler struct {
	campaigns   CampaignStore
	performance PerformanceStore
	audit       AuditStore
	now         func() time.Time
}

// NewPerformanceReconciler creates a performance reconciler
func NewPerformanceReconciler(campaigns CampaignStore, performance PerformanceStore, audit AuditStore) *PerformanceReconciler {
	return &PerformanceReconciler{
		campaigns:   campaigns,
		performance: performance,
		audit:       audit,
		now:         time.Now,
	}
}

// campaignMatch is the memoized resolution of one report campaign
type campaignMatch struct {
	campaign *models.Campaign
	reason   string
}

// Apply resolves each row's campaign, stores the daily rows and recomputes
// the campaign totals. Rows whose campaign id is unknown fall back to a unique
// name match, which is logged and recorded as an identity_mismatch conflict.
func (r *PerformanceReconciler) Apply(ctx context.Context, rows []adapter.ReportRow, opts Options) Result {
	p := newPass(ctx, types.EntityPerformance, opts, nil)
	matches := make(map[string]*campaignMatch)
	fetchedAt := r.now().UTC()

	var daily []models.PerformanceDaily
	for _, row := range rows {
		key := row.CampaignID.String() + "\x00" + row.CampaignName
		match, ok := matches[key]
		if !ok {
			match = r.resolve(ctx, p, row, opts)
			matches[key] = match
		}
		if match.campaign == nil {
			p.skip(row.CampaignID.String(), match.reason, nil)
			continue
		}

		perf, err := NormalizeReportRow(opts.AccountID, match.campaign.CampaignID, opts.JobID, row, fetchedAt)
		if err != nil {
			p.skip(row.CampaignID.String(), "invalid report row", err)
			continue
		}
		daily = append(daily, perf)
	}

	if err := r.performance.InsertDaily(ctx, daily); err != nil {
		p.counters.Skipped += len(daily)
		result := p.finish(ctx, r.audit)
		result.Err = fmt.Errorf("store performance rows: %w", err)
		return result
	}
	// Re-pulled days replace stored ones, so rows only count as synced
	p.counters.Synced += len(daily)

	var rollupErr error
	if !opts.TotalsWindow.End.IsZero() {
		rollupErr = r.rollUp(ctx, p, opts)
	}

	result := p.finish(ctx, r.audit)
	if result.Err == nil && rollupErr != nil {
		result.Err = rollupErr
	}
	return result
}

// rollUp rewrites every campaign's totals from the stored rows in the totals
// window. Days missing from this fetch keep their stored values, and only
// campaigns whose totals moved are written.
func (r *PerformanceReconciler) rollUp(ctx context.Context, p *pass, opts Options) error {
	window := opts.TotalsWindow
	reported, err := r.performance.ReportedTotals(ctx, opts.AccountID, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("read campaign totals: %w", err)
	}
	campaigns, err := r.campaigns.ListByAccount(ctx, opts.AccountID)
	if err != nil {
		return fmt.Errorf("list campaigns for totals: %w", err)
	}

	for _, c := range campaigns {
		totals := reported[c.CampaignID]
		if sameTotals(c, totals) {
			continue
		}
		if err := r.campaigns.UpdateTotals(ctx, c.ID, totals); err != nil {
			p.logger.WithError(err).WithField("campaign_id", c.CampaignID).Warn("Failed to update campaign totals")
			continue
		}
		p.counters.Updated++
	}
	return nil
}

func sameTotals(c *models.Campaign, t models.CampaignTotals) bool {
	return c.Impressions == t.Impressions &&
		c.Clicks == t.Clicks &&
		c.Orders == t.Orders &&
		c.Spend.Equal(t.Spend) &&
		c.Sales.Equal(t.Sales)
}

func (r *PerformanceReconciler) resolve(ctx context.Context, p *pass, row adapter.ReportRow, opts Options) *campaignMatch {
	id := row.CampaignID.String()
	if id != "" {
		c, err := r.campaigns.Get(ctx, opts.AccountID, id)
		if err != nil {
			return &campaignMatch{reason: "campaign lookup failed: " + err.Error()}
		}
		if c != nil {
			return &campaignMatch{campaign: c}
		}
	}

	if row.CampaignName == "" {
		return &campaignMatch{reason: "campaign not found"}
	}

	candidates, err := r.campaigns.FindByName(ctx, opts.AccountID, row.CampaignName)
	if err != nil {
		return &campaignMatch{reason: "campaign name lookup failed: " + err.Error()}
	}

	switch len(candidates) {
	case 0:
		return &campaignMatch{reason: "campaign not found by id or name"}
	case 1:
		c := candidates[0]
		p.logger.WithFields(map[string]interface{}{
			"report_campaign_id": id,
			"local_campaign_id":  c.CampaignID,
			"campaign_name":      row.CampaignName,
		}).Warn("Report row matched by campaign name, not id")
		p.addConflict(&models.ConflictRecord{
			EntityID:     c.CampaignID,
			ConflictType: types.ConflictIdentityMismatch,
			Fields:       []string{"campaignId"},
			LocalValues:  map[string]any{"campaignId": c.CampaignID, "name": c.Name},
			RemoteValues: map[string]any{"campaignId": id, "name": row.CampaignName},
		})
		return &campaignMatch{campaign: c}
	default:
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.CampaignID)
		}
		p.addConflict(&models.ConflictRecord{
			EntityID:     id,
			ConflictType: types.ConflictAmbiguousName,
			Fields:       []string{"name"},
			LocalValues:  map[string]any{"name": row.CampaignName, "candidates": ids},
			RemoteValues: map[string]any{"campaignId": id, "name": row.CampaignName},
		})
		return &campaignMatch{reason: "campaign name is ambiguous"}
	}
}
