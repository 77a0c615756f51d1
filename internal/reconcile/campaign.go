package reconcile

import (
	"context"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/types"
)

// CampaignFields are the mutable campaign fields checked for conflicts
var CampaignFields = []string{"dailyBudget", "state", "endDate"}

// CampaignReconciler reconciles campaigns of every ad product
type CampaignReconciler struct {
	campaigns CampaignStore
	audit     AuditStore
}

// NewCampaignReconciler creates a campaign reconciler
func NewCampaignReconciler(campaigns CampaignStore, audit AuditStore) *CampaignReconciler {
	return &CampaignReconciler{campaigns: campaigns, audit: audit}
}

// Sync lists one ad product's campaigns and reconciles them
func (r *CampaignReconciler) Sync(ctx context.Context, client adapter.AdsClient, campaignType types.CampaignType, opts Options) Result {
	remote, err := client.ListCampaigns(ctx, campaignType)
	if err != nil {
		return listFailed(ctx, types.EntityCampaign, opts, err)
	}
	return r.Reconcile(ctx, remote, opts)
}

// Reconcile creates, updates or skips each remote campaign
func (r *CampaignReconciler) Reconcile(ctx context.Context, remote []adapter.RemoteCampaign, opts Options) Result {
	p := newPass(ctx, types.EntityCampaign, opts, CampaignFields)

	for _, rc := range remote {
		id := rc.CampaignID.String()
		if ctx.Err() != nil {
			p.skip(id, "context cancelled", ctx.Err())
			continue
		}

		local, err := r.campaigns.Get(ctx, opts.AccountID, id)
		if err != nil {
			p.skip(id, "lookup failed", err)
			continue
		}
		if local != nil && p.protected(local.UpdatedAt) {
			p.skip(id, "modified locally since last sync", nil)
			continue
		}

		next, err := NormalizeCampaign(opts.AccountID, rc)
		if err != nil {
			p.skip(id, "invalid remote record", err)
			continue
		}

		if local == nil {
			if err := r.campaigns.Insert(ctx, next); err != nil {
				p.skip(id, "insert failed", err)
				continue
			}
			p.created(id, next.Snapshot())
			continue
		}

		pending := p.diff(id, local.Snapshot(), next.Snapshot())
		if pending == nil {
			p.skip(id, "unchanged", nil)
			continue
		}

		local.CampaignType = next.CampaignType
		local.Name = next.Name
		local.State = next.State
		local.TargetingType = next.TargetingType
		local.DailyBudget = next.DailyBudget
		local.StartDate = next.StartDate
		local.EndDate = next.EndDate
		local.PlacementAdjustments = next.PlacementAdjustments
		if err := r.campaigns.Update(ctx, local); err != nil {
			p.skip(id, "update failed", err)
			continue
		}
		p.updated(pending)
	}

	return p.finish(ctx, r.audit)
}
