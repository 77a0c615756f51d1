package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/adapter/adaptertest"
	"github.com/ads-sync/internal/config"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/ratelimit"
	"github.com/ads-sync/internal/reconcile/reconciletest"
	"github.com/ads-sync/internal/report"
	"github.com/ads-sync/internal/storage"
	"github.com/ads-sync/internal/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type harness struct {
	orch      *Orchestrator
	client    *adaptertest.FakeClient
	factory   *adaptertest.FakeFactory
	store     *reconciletest.Store
	accounts  *memAccounts
	logs      *memSyncLogs
	schedules *memSchedules
	locks     *storage.RedisCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &harness{
		client:    adaptertest.NewFakeClient(),
		store:     reconciletest.NewStore(),
		accounts:  newMemAccounts(&models.AdAccount{ID: "acct-1", UserID: "user-1", ProfileID: "p-1", AccessToken: "tok", ConnectionStatus: types.ConnectionOK}),
		logs:      &memSyncLogs{},
		schedules: &memSchedules{},
		locks:     storage.NewRedisCacheFromClient(rdb),
	}
	h.factory = &adaptertest.FakeFactory{Client: h.client}
	// Stored rows predate every job's watermark unless a test edits them
	h.store.Now = func() time.Time { return testNow.Add(-time.Hour) }

	fetcher := report.NewFetcher(report.Config{MaxDaysPerRequest: 31}, nil)
	fetcher.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	h.orch = NewOrchestrator(Dependencies{
		Clients:        h.factory,
		Accounts:       h.accounts,
		SyncLogs:       h.logs,
		Schedules:      h.schedules,
		Locker:         h.locks,
		Campaigns:      h.store.Campaigns(),
		AdGroups:       h.store.AdGroups(),
		Keywords:       h.store.Keywords(),
		ProductTargets: h.store.ProductTargets(),
		Audit:          h.store,
		Performance:    h.store,
		Fetcher:        fetcher,
		Report:         config.ReportConfig{RoutineDays: 14, FirstSyncDays: 90},
	})
	h.orch.now = func() time.Time { return testNow }
	return h
}

func budget(v int64) adapter.Budget {
	d := decimal.NewFromInt(v)
	return adapter.Budget{Amount: &d}
}

func (h *harness) seedRemote() {
	h.client.Campaigns[types.CampaignSponsoredProducts] = []adapter.RemoteCampaign{
		{CampaignID: "sp-1", Name: "SP One", State: "ENABLED", Budget: budget(10)},
		{CampaignID: "sp-2", Name: "SP Two", State: "PAUSED", Budget: budget(20)},
	}
	h.client.Campaigns[types.CampaignSponsoredBrands] = []adapter.RemoteCampaign{
		{CampaignID: "sb-1", Name: "SB One", State: "ENABLED", Budget: budget(5)},
	}
	h.client.AdGroups = []adapter.RemoteAdGroup{{AdGroupID: "g-1", CampaignID: "sp-1", Name: "G", State: "ENABLED"}}
	h.client.Keywords = []adapter.RemoteKeyword{{KeywordID: "k-1", AdGroupID: "g-1", CampaignID: "sp-1", KeywordText: "shoes", MatchType: "EXACT", State: "ENABLED"}}
	h.client.Targets = []adapter.RemoteProductTarget{{TargetID: "t-1", AdGroupID: "g-1", CampaignID: "sp-1", State: "ENABLED"}}
	h.client.ReportRows = func(req adaptertest.ReportRequest) ([]adapter.ReportRow, error) {
		return []adapter.ReportRow{{
			Date:        req.End.Format("2006-01-02"),
			CampaignID:  "sp-1",
			Impressions: 100,
			Clicks:      4,
			Cost:        decimal.NewFromInt(2),
			Sales:       decimal.NewFromInt(8),
			Orders:      1,
		}}, nil
	}
}

func TestSyncCampaignsOnly(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()

	result, err := h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, 2, result.SPCampaigns.Created)
	assert.Equal(t, 1, result.SBCampaigns.Created)
	assert.Equal(t, 0, result.SDCampaigns.Synced)
	assert.Equal(t, 3, result.Campaigns.Created)
	assert.Equal(t, 3, h.client.CallCount("ListCampaigns"))
	assert.Zero(t, h.client.CallCount("ListAdGroups"))

	log := h.logs.last()
	require.NotNil(t, log)
	assert.Equal(t, types.JobStatusCompleted, log.Status)
	assert.Equal(t, types.ScopeCampaigns, log.Scope)
	assert.Equal(t, types.TierManual, log.Tier)
	assert.Equal(t, 3, log.Counters[types.EntityCampaign].Created)
	assert.Nil(t, log.Error)
	assert.Empty(t, h.schedules.runs, "only full syncs advance the schedule")
}

func TestSyncAll_FirstSyncPullsLongWindow(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()

	result, err := h.orch.SyncAll(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Campaigns.Created)
	assert.Equal(t, 1, result.AdGroups.Created)
	assert.Equal(t, 1, result.Keywords.Created)
	assert.Equal(t, 1, result.Targets.Created)
	assert.Equal(t, 3, result.Performance.Synced, "one row per 31-day sub-range")
	assert.Equal(t, 1, result.Performance.Updated, "only sp-1 has rows in the totals window")

	require.Len(t, h.client.Requests, 3)
	assert.Equal(t, "2024-03-17", h.client.Requests[0].Start.Format("2006-01-02"))
	assert.Equal(t, "2024-06-14", h.client.Requests[2].End.Format("2006-01-02"))

	account := h.accounts.get("acct-1")
	require.NotNil(t, account.FirstSyncedAt)
	assert.Contains(t, h.schedules.runs, "user-1/acct-1")

	_, err = h.orch.SyncAll(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, h.client.Requests, 4, "routine window fits one request")
	assert.Equal(t, "2024-06-01", h.client.Requests[3].Start.Format("2006-01-02"))
}

func TestSyncAll_SecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()

	first, err := h.orch.SyncAll(context.Background(), "acct-1")
	require.NoError(t, err)
	changes := len(h.store.Changes)

	result, err := h.orch.SyncAll(context.Background(), "acct-1")
	require.NoError(t, err)
	for name, pair := range map[string][2]models.EntityCounters{
		"campaigns":   {first.Campaigns, result.Campaigns},
		"ad groups":   {first.AdGroups, result.AdGroups},
		"keywords":    {first.Keywords, result.Keywords},
		"targets":     {first.Targets, result.Targets},
		"performance": {first.Performance, result.Performance},
	} {
		assert.Zero(t, pair[1].Created, name)
		assert.Zero(t, pair[1].Updated, name)
		assert.Equal(t, pair[0].Created, pair[1].Skipped, name)
	}
	assert.Equal(t, 1, result.Performance.Synced, "the routine window is re-pulled")
	assert.Equal(t, changes, len(h.store.Changes))

	log := h.logs.last()
	require.NotNil(t, log)
	for entity, counters := range log.Counters {
		assert.Zero(t, counters.Updated, string(entity))
	}
	c, ag, kw, pt := h.store.Count()
	assert.Equal(t, []int{3, 1, 1, 1}, []int{c, ag, kw, pt})
}

func TestSyncPerformanceOnly_ExplicitDays(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()
	_, err := h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	require.NoError(t, err)

	result, err := h.orch.SyncPerformanceOnly(context.Background(), "acct-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Performance.Synced)
	assert.Equal(t, 1, result.Performance.Updated)
	require.Len(t, h.client.Requests, 1)
	assert.Equal(t, "2024-06-08", h.client.Requests[0].Start.Format("2006-01-02"))
	assert.Equal(t, 3, h.client.CallCount("ListCampaigns"), "performance-only sync lists nothing")
}

func TestSyncPerformanceOnly_FailedSubRangeKeepsTotals(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()
	ctx := context.Background()

	_, err := h.orch.SyncAll(ctx, "acct-1")
	require.NoError(t, err)
	before, _ := h.store.Campaigns().Get(ctx, "acct-1", "sp-1")
	require.Equal(t, int64(100), before.Impressions)

	// The newest sub-range, which holds the totals window, times out
	yesterday := report.Day(testNow).AddDate(0, 0, -1)
	healthy := h.client.ReportRows
	h.client.ReportRows = func(req adaptertest.ReportRequest) ([]adapter.ReportRow, error) {
		if req.End.Equal(yesterday) {
			return nil, errors.New("report timed out")
		}
		return healthy(req)
	}

	result, err := h.orch.SyncPerformanceOnly(ctx, "acct-1", 90)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Performance.Synced)
	assert.Zero(t, result.Performance.Updated)

	after, _ := h.store.Campaigns().Get(ctx, "acct-1", "sp-1")
	assert.Equal(t, int64(100), after.Impressions)
	assert.True(t, after.Spend.Equal(decimal.NewFromInt(2)))
}

func TestSync_AuthErrorMarksReauth(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()
	h.client.ErrCampaigns = apperrors.NewAuthError(401, "invalid_grant")

	_, err := h.orch.SyncAll(context.Background(), "acct-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Equal(t, 1, h.client.CallCount("ListCampaigns"), "auth failure stops the job")
	assert.Zero(t, h.client.CallCount("ListAdGroups"))

	assert.Equal(t, types.ConnectionNeedsReauth, h.accounts.get("acct-1").ConnectionStatus)
	log := h.logs.last()
	assert.Equal(t, types.JobStatusFailed, log.Status)
	require.NotNil(t, log.Error)
	assert.Empty(t, h.schedules.runs)

	h.client.ErrCampaigns = nil
	_, err = h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionOK, h.accounts.get("acct-1").ConnectionStatus)
}

func TestSync_MissingCredentials(t *testing.T) {
	h := newHarness(t)
	h.factory.Err = adapter.ErrMissingCredentials

	_, err := h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	assert.ErrorIs(t, err, adapter.ErrMissingCredentials)
	assert.Equal(t, types.ConnectionNeedsReauth, h.accounts.get("acct-1").ConnectionStatus)
	assert.Equal(t, types.JobStatusFailed, h.logs.last().Status)
}

func TestSync_PartialFailureCompletes(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()
	h.client.ErrKeywords = errors.New("keywords endpoint down")

	result, err := h.orch.SyncAdGroupsAndTargeting(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Zero(t, result.AdGroups.Created, "parents are not synced in this scope")
	assert.Equal(t, 1, result.AdGroups.Skipped)

	log := h.logs.last()
	assert.Equal(t, types.JobStatusCompleted, log.Status)
	require.NotNil(t, log.Error)
	assert.Contains(t, *log.Error, "keywords endpoint down")
}

func TestSync_EveryPassFailedFailsJob(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("down")
	h.client.ErrAdGroups, h.client.ErrKeywords, h.client.ErrTargets = boom, boom, boom

	_, err := h.orch.SyncAdGroupsAndTargeting(context.Background(), "acct-1")
	require.Error(t, err)
	assert.Equal(t, types.JobStatusFailed, h.logs.last().Status)
}

func TestSync_RateLimitFailsJobForRetry(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()
	h.client.ErrCampaigns = apperrors.NewRateLimitError(time.Second)

	err := h.orch.Run(context.Background(), Request{AccountID: "acct-1", Scope: types.ScopeCampaigns, Tier: types.TierHigh})
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimit(err))
	log := h.logs.last()
	assert.Equal(t, types.TierHigh, log.Tier)
	assert.Equal(t, types.JobStatusFailed, log.Status)
}

func TestSync_AccountLocked(t *testing.T) {
	h := newHarness(t)
	lock, err := h.locks.LockAccount(context.Background(), "acct-1", time.Minute)
	require.NoError(t, err)

	_, err = h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	assert.ErrorIs(t, err, storage.ErrAccountLocked)
	assert.Nil(t, h.logs.last(), "no job is recorded while another worker holds the account")

	require.NoError(t, h.locks.UnlockAccount(context.Background(), lock))
	_, err = h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	assert.NoError(t, err)

	_, err = h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	assert.NoError(t, err, "the lock is released after each job")
}

func TestRun_Dispatch(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()

	require.NoError(t, h.orch.Run(context.Background(), Request{AccountID: "acct-1", Scope: types.ScopeAdGroups, Tier: types.TierMedium}))
	assert.Equal(t, types.ScopeAdGroups, h.logs.last().Scope)

	require.NoError(t, h.orch.Run(context.Background(), Request{AccountID: "acct-1", Scope: types.ScopePerformance, Tier: types.TierLow, Days: 3}))
	assert.Equal(t, types.ScopePerformance, h.logs.last().Scope)

	// A scheduled full sync advances the requesting user's schedule
	require.NoError(t, h.orch.Run(context.Background(), Request{AccountID: "acct-1", UserID: "user-2", Scope: types.ScopeFull, Tier: types.TierFull}))
	assert.Equal(t, "user-2", h.logs.last().UserID)
	assert.Contains(t, h.schedules.runs, "user-2/acct-1")

	err := h.orch.Run(context.Background(), Request{AccountID: "acct-1", Scope: "everything"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryValidation, apperrors.Categorize(err).Category)

	err = h.orch.Run(context.Background(), Request{AccountID: "missing", Scope: types.ScopeFull})
	require.Error(t, err)
}

func TestSync_WatermarkFromLastCompletedJob(t *testing.T) {
	h := newHarness(t)
	h.seedRemote()
	_, err := h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	require.NoError(t, err)

	// A local edit after the last completed job is protected from the remote value
	h.store.SetCampaignUpdatedAt("acct-1", "sp-1", testNow.Add(time.Minute))
	h.client.Campaigns[types.CampaignSponsoredProducts][0].State = "ARCHIVED"

	h.client.Campaigns[types.CampaignSponsoredProducts][1].State = "ARCHIVED"

	result, err := h.orch.SyncCampaignsOnly(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SPCampaigns.Updated, "only the untouched campaign takes the remote value")
	stored, _ := h.store.Campaigns().Get(context.Background(), "acct-1", "sp-1")
	assert.Equal(t, "enabled", stored.State)
	other, _ := h.store.Campaigns().Get(context.Background(), "acct-1", "sp-2")
	assert.Equal(t, "archived", other.State)
}

func TestBudgetPriority(t *testing.T) {
	assert.Equal(t, ratelimit.PriorityHigh, budgetPriority(types.TierManual))
	for _, tier := range []types.Tier{types.TierHigh, types.TierMedium, types.TierLow, types.TierFull} {
		assert.Equal(t, ratelimit.PriorityLow, budgetPriority(tier), tier)
	}
}
