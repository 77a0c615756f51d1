package reconcile

import (
	"context"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/types"
)

// KeywordFields are the mutable keyword fields checked for conflicts
var KeywordFields = []string{"bid", "state"}

// ProductTargetFields are the mutable product target fields checked for conflicts
var ProductTargetFields = []string{"bid", "state"}

func adGroupLocalID(ctx context.Context, adGroups AdGroupStore, parents parentIDs, accountID, adGroupID string) (int64, error) {
	return parents.resolve(adGroupID, func() (int64, error) {
		g, err := adGroups.GetByPlatformID(ctx, accountID, adGroupID)
		if err != nil || g == nil {
			return 0, err
		}
		return g.ID, nil
	})
}

// KeywordReconciler reconciles keywords under their local ad groups
type KeywordReconciler struct {
	adGroups AdGroupStore
	keywords KeywordStore
	audit    AuditStore
}

// NewKeywordReconciler creates a keyword reconciler
func NewKeywordReconciler(adGroups AdGroupStore, keywords KeywordStore, audit AuditStore) *KeywordReconciler {
	return &KeywordReconciler{adGroups: adGroups, keywords: keywords, audit: audit}
}

// Sync lists the account's keywords and reconciles them
func (r *KeywordReconciler) Sync(ctx context.Context, client adapter.AdsClient, opts Options) Result {
	remote, err := client.ListKeywords(ctx)
	if err != nil {
		return listFailed(ctx, types.EntityKeyword, opts, err)
	}
	return r.Reconcile(ctx, remote, opts)
}

// Reconcile creates, updates or skips each remote keyword
func (r *KeywordReconciler) Reconcile(ctx context.Context, remote []adapter.RemoteKeyword, opts Options) Result {
	p := newPass(ctx, types.EntityKeyword, opts, KeywordFields)
	parents := parentIDs{}

	for _, rk := range remote {
		id := rk.KeywordID.String()
		if ctx.Err() != nil {
			p.skip(id, "context cancelled", ctx.Err())
			continue
		}

		parentID, err := adGroupLocalID(ctx, r.adGroups, parents, opts.AccountID, rk.AdGroupID.String())
		if err != nil {
			p.skip(id, "parent lookup failed", err)
			continue
		}
		if parentID == 0 {
			p.skip(id, "parent ad group not found", nil)
			continue
		}

		local, err := r.keywords.Get(ctx, opts.AccountID, parentID, id)
		if err != nil {
			p.skip(id, "lookup failed", err)
			continue
		}
		if local != nil && p.protected(local.UpdatedAt) {
			p.skip(id, "modified locally since last sync", nil)
			continue
		}

		next, err := NormalizeKeyword(opts.AccountID, rk)
		if err != nil {
			p.skip(id, "invalid remote record", err)
			continue
		}
		next.AdGroupLocalID = parentID

		if local == nil {
			if err := r.keywords.Insert(ctx, next); err != nil {
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

		local.KeywordText = next.KeywordText
		local.MatchType = next.MatchType
		local.State = next.State
		local.Bid = next.Bid
		if err := r.keywords.Update(ctx, local); err != nil {
			p.skip(id, "update failed", err)
			continue
		}
		p.updated(pending)
	}

	return p.finish(ctx, r.audit)
}

// ProductTargetReconciler reconciles product targets under their local ad groups
type ProductTargetReconciler struct {
	adGroups AdGroupStore
	targets  ProductTargetStore
	audit    AuditStore
}

// NewProductTargetReconciler creates a product target reconciler
func NewProductTargetReconciler(adGroups AdGroupStore, targets ProductTargetStore, audit AuditStore) *ProductTargetReconciler {
	return &ProductTargetReconciler{adGroups: adGroups, targets: targets, audit: audit}
}

// Sync lists the account's product targets and reconciles them
func (r *ProductTargetReconciler) Sync(ctx context.Context, client adapter.AdsClient, opts Options) Result {
	remote, err := client.ListProductTargets(ctx)
	if err != nil {
		return listFailed(ctx, types.EntityProductTarget, opts, err)
	}
	return r.Reconcile(ctx, remote, opts)
}

// Reconcile creates, updates or skips each remote product target
func (r *ProductTargetReconciler) Reconcile(ctx context.Context, remote []adapter.RemoteProductTarget, opts Options) Result {
	p := newPass(ctx, types.EntityProductTarget, opts, ProductTargetFields)
	parents := parentIDs{}

	for _, rt := range remote {
		id := rt.TargetID.String()
		if ctx.Err() != nil {
			p.skip(id, "context cancelled", ctx.Err())
			continue
		}

		parentID, err := adGroupLocalID(ctx, r.adGroups, parents, opts.AccountID, rt.AdGroupID.String())
		if err != nil {
			p.skip(id, "parent lookup failed", err)
			continue
		}
		if parentID == 0 {
			p.skip(id, "parent ad group not found", nil)
			continue
		}

		local, err := r.targets.Get(ctx, opts.AccountID, parentID, id)
		if err != nil {
			p.skip(id, "lookup failed", err)
			continue
		}
		if local != nil && p.protected(local.UpdatedAt) {
			p.skip(id, "modified locally since last sync", nil)
			continue
		}

		next, err := NormalizeProductTarget(opts.AccountID, rt)
		if err != nil {
			p.skip(id, "invalid remote record", err)
			continue
		}
		next.AdGroupLocalID = parentID

		if local == nil {
			if err := r.targets.Insert(ctx, next); err != nil {
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

		local.ExpressionType = next.ExpressionType
		local.Expression = next.Expression
		local.State = next.State
		local.Bid = next.Bid
		if err := r.targets.Update(ctx, local); err != nil {
			p.skip(id, "update failed", err)
			continue
		}
		p.updated(pending)
	}

	return p.finish(ctx, r.audit)
}
