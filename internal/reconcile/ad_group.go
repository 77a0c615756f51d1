package reconcile

import (
	"context"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/types"
)

// AdGroupFields are the mutable ad group fields checked for conflicts
var AdGroupFields = []string{"defaultBid", "state"}

// parentIDs memoizes platform id -> local id lookups for one pass.
// A zero id marks a parent known to be missing.
type parentIDs map[string]int64

func (c parentIDs) resolve(platformID string, lookup func() (int64, error)) (int64, error) {
	if id, ok := c[platformID]; ok {
		return id, nil
	}
	id, err := lookup()
	if err != nil {
		return 0, err
	}
	c[platformID] = id
	return id, nil
}

// AdGroupReconciler reconciles ad groups under their local campaigns
type AdGroupReconciler struct {
	campaigns CampaignStore
	adGroups  AdGroupStore
	audit     AuditStore
}

// NewAdGroupReconciler creates an ad group reconciler
func NewAdGroupReconciler(campaigns CampaignStore, adGroups AdGroupStore, audit AuditStore) *AdGroupReconciler {
	return &AdGroupReconciler{campaigns: campaigns, adGroups: adGroups, audit: audit}
}

// Sync lists the account's ad groups and reconciles them
func (r *AdGroupReconciler) Sync(ctx context.Context, client adapter.AdsClient, opts Options) Result {
	remote, err := client.ListAdGroups(ctx)
	if err != nil {
		return listFailed(ctx, types.EntityAdGroup, opts, err)
	}
	return r.Reconcile(ctx, remote, opts)
}

// Reconcile creates, updates or skips each remote ad group. Ad groups whose
// campaign is not stored locally are skipped.
func (r *AdGroupReconciler) Reconcile(ctx context.Context, remote []adapter.RemoteAdGroup, opts Options) Result {
	p := newPass(ctx, types.EntityAdGroup, opts, AdGroupFields)
	parents := parentIDs{}

	for _, rg := range remote {
		id := rg.AdGroupID.String()
		if ctx.Err() != nil {
			p.skip(id, "context cancelled", ctx.Err())
			continue
		}

		campaignLocalID, err := parents.resolve(rg.CampaignID.String(), func() (int64, error) {
			c, err := r.campaigns.Get(ctx, opts.AccountID, rg.CampaignID.String())
			if err != nil || c == nil {
				return 0, err
			}
			return c.ID, nil
		})
		if err != nil {
			p.skip(id, "parent lookup failed", err)
			continue
		}
		if campaignLocalID == 0 {
			p.skip(id, "parent campaign not found", nil)
			continue
		}

		local, err := r.adGroups.Get(ctx, opts.AccountID, campaignLocalID, id)
		if err != nil {
			p.skip(id, "lookup failed", err)
			continue
		}
		if local != nil && p.protected(local.UpdatedAt) {
			p.skip(id, "modified locally since last sync", nil)
			continue
		}

		next, err := NormalizeAdGroup(opts.AccountID, rg)
		if err != nil {
			p.skip(id, "invalid remote record", err)
			continue
		}
		next.CampaignLocalID = campaignLocalID

		if local == nil {
			if err := r.adGroups.Insert(ctx, next); err != nil {
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

		local.Name = next.Name
		local.State = next.State
		local.DefaultBid = next.DefaultBid
		if err := r.adGroups.Update(ctx, local); err != nil {
			p.skip(id, "update failed", err)
			continue
		}
		p.updated(pending)
	}

	return p.finish(ctx, r.audit)
}
