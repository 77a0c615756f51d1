package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/adapter/adaptertest"
	"github.com/ads-sync/internal/reconcile"
	"github.com/ads-sync/internal/reconcile/reconciletest"
	"github.com/ads-sync/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ reconcile.CampaignStore      = (*reconciletest.CampaignView)(nil)
	_ reconcile.AdGroupStore       = (*reconciletest.AdGroupView)(nil)
	_ reconcile.KeywordStore       = (*reconciletest.KeywordView)(nil)
	_ reconcile.ProductTargetStore = (*reconciletest.ProductTargetView)(nil)
	_ reconcile.AuditStore         = (*reconciletest.Store)(nil)
	_ reconcile.PerformanceStore   = (*reconciletest.Store)(nil)
)

const accountID = "acct-1"

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fixedStore(at time.Time) *reconciletest.Store {
	s := reconciletest.NewStore()
	s.Now = func() time.Time { return at }
	return s
}

func remoteCampaign(id, name, budget, state string) adapter.RemoteCampaign {
	return adapter.RemoteCampaign{
		CampaignID:   adapter.ID(id),
		Name:         name,
		State:        state,
		Budget:       adapter.Budget{Amount: dec(budget), BudgetType: "DAILY"},
		StartDate:    "20240101",
		CampaignType: "sp",
	}
}

func TestCampaignReconciler_CreateThenIdempotent(t *testing.T) {
	store := fixedStore(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	r := reconcile.NewCampaignReconciler(store.Campaigns(), store)
	ctx := context.Background()
	opts := reconcile.Options{AccountID: accountID, JobID: "job-1"}

	remote := []adapter.RemoteCampaign{
		remoteCampaign("111", "Brand", "10.00", "ENABLED"),
		remoteCampaign("222", "Generic", "25.5", "PAUSED"),
	}

	first := r.Reconcile(ctx, remote, opts)
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 2, first.Synced)
	assert.Len(t, store.Changes, 2)
	assert.Equal(t, types.ChangeCreated, store.Changes[0].ChangeType)

	stored, err := store.Campaigns().Get(ctx, accountID, "222")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "paused", stored.State)
	assert.Equal(t, "2024-01-01", stored.StartDate)
	assert.True(t, stored.DailyBudget.Equal(decimal.RequireFromString("25.50")))

	opts.JobID = "job-2"
	second := r.Reconcile(ctx, remote, opts)
	require.NoError(t, second.Err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, store.Changes, 2, "unchanged records write no change records")
	assert.Empty(t, store.Conflicts)
}

func TestCampaignReconciler_UpdateRecordsConflictAndApplies(t *testing.T) {
	store := fixedStore(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	r := reconcile.NewCampaignReconciler(store.Campaigns(), store)
	ctx := context.Background()

	require.NoError(t, r.Reconcile(ctx, []adapter.RemoteCampaign{
		remoteCampaign("111", "Brand", "10", "ENABLED"),
	}, reconcile.Options{AccountID: accountID}).Err)

	result := r.Reconcile(ctx, []adapter.RemoteCampaign{
		remoteCampaign("111", "Brand", "12", "ENABLED"),
	}, reconcile.Options{AccountID: accountID, JobID: "job-2"})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Conflicts)

	require.Len(t, store.Conflicts, 1)
	c := store.Conflicts[0]
	assert.Equal(t, types.ConflictFieldMismatch, c.ConflictType)
	assert.Equal(t, []string{"dailyBudget"}, c.Fields)
	assert.Equal(t, "10", c.LocalValues["dailyBudget"])
	assert.Equal(t, "12", c.RemoteValues["dailyBudget"])
	assert.Equal(t, "job-2", c.JobID)

	require.Len(t, store.Changes, 1)
	assert.Equal(t, types.ChangeUpdated, store.Changes[0].ChangeType)
	assert.Equal(t, []string{"dailyBudget"}, store.Changes[0].ChangedFields)

	stored, _ := store.Campaigns().Get(ctx, accountID, "111")
	assert.True(t, stored.DailyBudget.Equal(decimal.NewFromInt(12)), "remote value is applied despite the conflict")
}

func TestCampaignReconciler_EmptyLocalValueIsNotAConflict(t *testing.T) {
	store := fixedStore(time.Now())
	r := reconcile.NewCampaignReconciler(store.Campaigns(), store)
	ctx := context.Background()

	unbudgeted := remoteCampaign("111", "Brand", "0", "ENABLED")
	require.NoError(t, r.Reconcile(ctx, []adapter.RemoteCampaign{unbudgeted}, reconcile.Options{AccountID: accountID}).Err)

	result := r.Reconcile(ctx, []adapter.RemoteCampaign{
		remoteCampaign("111", "Brand", "15", "ENABLED"),
	}, reconcile.Options{AccountID: accountID, JobID: "job-2"})
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Conflicts)
	assert.Empty(t, store.Conflicts)
}

func TestCampaignReconciler_WatermarkProtectsLocalEdits(t *testing.T) {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := fixedStore(created)
	r := reconcile.NewCampaignReconciler(store.Campaigns(), store)
	ctx := context.Background()

	require.NoError(t, r.Reconcile(ctx, []adapter.RemoteCampaign{
		remoteCampaign("111", "Brand", "10", "ENABLED"),
	}, reconcile.Options{AccountID: accountID}).Err)

	lastSync := created.Add(time.Hour)
	store.SetCampaignUpdatedAt(accountID, "111", lastSync.Add(10*time.Minute))

	changed := []adapter.RemoteCampaign{remoteCampaign("111", "Brand", "99", "PAUSED")}
	result := r.Reconcile(ctx, changed, reconcile.Options{AccountID: accountID, JobID: "job-2", LastSyncTime: &lastSync})
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Updated)

	stored, _ := store.Campaigns().Get(ctx, accountID, "111")
	assert.Equal(t, "enabled", stored.State)
	assert.True(t, stored.DailyBudget.Equal(decimal.NewFromInt(10)))

	// A row last touched before the watermark is updated
	store.SetCampaignUpdatedAt(accountID, "111", lastSync.Add(-time.Minute))
	result = r.Reconcile(ctx, changed, reconcile.Options{AccountID: accountID, JobID: "job-3", LastSyncTime: &lastSync})
	assert.Equal(t, 1, result.Updated)
}

func TestCampaignReconciler_SyncListingError(t *testing.T) {
	store := reconciletest.NewStore()
	r := reconcile.NewCampaignReconciler(store.Campaigns(), store)
	client := adaptertest.NewFakeClient()
	client.ErrCampaigns = errors.New("boom")

	result := r.Sync(context.Background(), client, types.CampaignSponsoredBrands, reconcile.Options{AccountID: accountID})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "boom")
	assert.Zero(t, result.Synced)
}

func TestCampaignReconciler_SyncSetsCampaignType(t *testing.T) {
	store := reconciletest.NewStore()
	r := reconcile.NewCampaignReconciler(store.Campaigns(), store)
	client := adaptertest.NewFakeClient()
	c := remoteCampaign("333", "Display", "5", "ENABLED")
	c.CampaignType = ""
	client.Campaigns[types.CampaignSponsoredDisplay] = []adapter.RemoteCampaign{c}

	result := r.Sync(context.Background(), client, types.CampaignSponsoredDisplay, reconcile.Options{AccountID: accountID})
	require.NoError(t, result.Err)
	stored, _ := store.Campaigns().Get(context.Background(), accountID, "333")
	require.NotNil(t, stored)
	assert.Equal(t, "sd", stored.CampaignType)
}

func seedHierarchy(t *testing.T, store *reconciletest.Store) {
	t.Helper()
	ctx := context.Background()
	opts := reconcile.Options{AccountID: accountID}
	require.NoError(t, reconcile.NewCampaignReconciler(store.Campaigns(), store).
		Reconcile(ctx, []adapter.RemoteCampaign{remoteCampaign("111", "Brand", "10", "ENABLED")}, opts).Err)
	require.NoError(t, reconcile.NewAdGroupReconciler(store.Campaigns(), store.AdGroups(), store).
		Reconcile(ctx, []adapter.RemoteAdGroup{{AdGroupID: "g1", CampaignID: "111", Name: "Group", State: "ENABLED", DefaultBid: dec("0.75")}}, opts).Err)
}

func TestAdGroupReconciler_SkipsMissingParent(t *testing.T) {
	store := reconciletest.NewStore()
	seedHierarchy(t, store)
	r := reconcile.NewAdGroupReconciler(store.Campaigns(), store.AdGroups(), store)

	result := r.Reconcile(context.Background(), []adapter.RemoteAdGroup{
		{AdGroupID: "g2", CampaignID: "999", Name: "Orphan", State: "ENABLED"},
		{AdGroupID: "g3", CampaignID: "999", Name: "Orphan 2", State: "ENABLED"},
		{AdGroupID: "g4", CampaignID: "111", Name: "Child", State: "PAUSED", DefaultBid: dec("1.2")},
	}, reconcile.Options{AccountID: accountID, JobID: "job"})
	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Created)

	g, err := store.AdGroups().GetByPlatformID(context.Background(), accountID, "g4")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "paused", g.State)
	assert.True(t, g.DefaultBid.Equal(decimal.RequireFromString("1.20")))
}

func TestAdGroupReconciler_BidConflict(t *testing.T) {
	store := reconciletest.NewStore()
	seedHierarchy(t, store)
	r := reconcile.NewAdGroupReconciler(store.Campaigns(), store.AdGroups(), store)

	result := r.Reconcile(context.Background(), []adapter.RemoteAdGroup{
		{AdGroupID: "g1", CampaignID: "111", Name: "Group", State: "ENABLED", DefaultBid: dec("0.9")},
	}, reconcile.Options{AccountID: accountID, JobID: "job"})
	assert.Equal(t, 1, result.Updated)
	require.Len(t, store.Conflicts, 1)
	assert.Equal(t, types.EntityAdGroup, store.Conflicts[0].EntityType)
	assert.Equal(t, []string{"defaultBid"}, store.Conflicts[0].Fields)
}

func TestKeywordReconciler(t *testing.T) {
	store := reconciletest.NewStore()
	seedHierarchy(t, store)
	r := reconcile.NewKeywordReconciler(store.AdGroups(), store.Keywords(), store)
	ctx := context.Background()

	remote := []adapter.RemoteKeyword{
		{KeywordID: "k1", AdGroupID: "g1", CampaignID: "111", KeywordText: "running shoes", MatchType: "EXACT", State: "ENABLED", Bid: dec("0.5")},
		{KeywordID: "k2", AdGroupID: "missing", CampaignID: "111", KeywordText: "orphan", MatchType: "BROAD", State: "ENABLED"},
	}
	result := r.Reconcile(ctx, remote, reconcile.Options{AccountID: accountID, JobID: "job"})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)

	again := r.Reconcile(ctx, remote[:1], reconcile.Options{AccountID: accountID, JobID: "job-2"})
	assert.Equal(t, 1, again.Skipped)
	assert.Zero(t, again.Updated)

	_, _, keywords, _ := store.Count()
	assert.Equal(t, 1, keywords)
}

func TestKeywordReconciler_SyncListingError(t *testing.T) {
	store := reconciletest.NewStore()
	client := adaptertest.NewFakeClient()
	client.ErrKeywords = errors.New("throttled")

	result := reconcile.NewKeywordReconciler(store.AdGroups(), store.Keywords(), store).
		Sync(context.Background(), client, reconcile.Options{AccountID: accountID})
	assert.Error(t, result.Err)
}

func TestProductTargetReconciler(t *testing.T) {
	store := reconciletest.NewStore()
	seedHierarchy(t, store)
	r := reconcile.NewProductTargetReconciler(store.AdGroups(), store.ProductTargets(), store)
	ctx := context.Background()

	remote := []adapter.RemoteProductTarget{{
		TargetID:       "t1",
		AdGroupID:      "g1",
		CampaignID:     "111",
		ExpressionType: "MANUAL",
		Expression:     []adapter.TargetExpression{{Type: "asinSameAs", Value: "B000123"}},
		State:          "ENABLED",
		Bid:            dec("0.4"),
	}}
	result := r.Reconcile(ctx, remote, reconcile.Options{AccountID: accountID})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Created)

	remote[0].State = "PAUSED"
	result = r.Reconcile(ctx, remote, reconcile.Options{AccountID: accountID, JobID: "job"})
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Conflicts)
	require.Len(t, store.Conflicts, 1)
	assert.Equal(t, []string{"state"}, store.Conflicts[0].Fields)

	got, err := store.ProductTargets().Get(ctx, accountID, 2, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "asinSameAs=B000123", got.Expression)
	assert.Equal(t, "paused", got.State)
}

func TestReconcile_ConflictsCountedWithoutJob(t *testing.T) {
	store := reconciletest.NewStore()
	seedHierarchy(t, store)
	r := reconcile.NewAdGroupReconciler(store.Campaigns(), store.AdGroups(), store)

	result := r.Reconcile(context.Background(), []adapter.RemoteAdGroup{
		{AdGroupID: "g1", CampaignID: "111", Name: "Group", State: "PAUSED", DefaultBid: dec("0.75")},
	}, reconcile.Options{AccountID: accountID})
	assert.Equal(t, 1, result.Conflicts)
	assert.Empty(t, store.Conflicts)
	assert.Empty(t, store.Changes)
}
