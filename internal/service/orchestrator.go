// Package service runs sync jobs: one orchestrator invocation per account and scope.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/config"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/logging"
	"github.com/ads-sync/internal/metrics"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/ratelimit"
	"github.com/ads-sync/internal/reconcile"
	"github.com/ads-sync/internal/report"
	"github.com/ads-sync/internal/storage"
	"github.com/ads-sync/internal/types"
	"github.com/google/uuid"
)

// AccountStore reads accounts and records their connection state
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.AdAccount, error)
	SetConnectionStatus(ctx context.Context, id string, status types.ConnectionStatus) error
	MarkFirstSynced(ctx context.Context, id string, at time.Time) error
}

// SyncLogStore persists the job lifecycle
type SyncLogStore interface {
	Create(ctx context.Context, l *models.SyncLog) error
	Finalize(ctx context.Context, l *models.SyncLog) error
	LastCompletedAt(ctx context.Context, accountID string, scope types.SyncScope) (*time.Time, error)
}

// ScheduleStore records full-sync runs
type ScheduleStore interface {
	MarkRun(ctx context.Context, userID, accountID string, at time.Time) error
}

// AccountLocker serializes jobs for one account across processes
type AccountLocker interface {
	LockAccount(ctx context.Context, accountID string, ttl time.Duration) (*storage.AccountLock, error)
	UnlockAccount(ctx context.Context, lock *storage.AccountLock) error
}

// Dependencies wires the orchestrator. Locker and Schedules may be nil.
type Dependencies struct {
	Clients        adapter.ClientFactory
	Accounts       AccountStore
	SyncLogs       SyncLogStore
	Schedules      ScheduleStore
	Locker         AccountLocker
	Campaigns      reconcile.CampaignStore
	AdGroups       reconcile.AdGroupStore
	Keywords       reconcile.KeywordStore
	ProductTargets reconcile.ProductTargetStore
	Audit          reconcile.AuditStore
	Performance    reconcile.PerformanceStore
	Fetcher        *report.Fetcher
	Report         config.ReportConfig
	// LockTTL bounds how long a crashed worker can hold an account
	LockTTL time.Duration
}

// Orchestrator runs sync jobs in dependency order: campaigns, ad groups,
// keywords and product targets, then performance
type Orchestrator struct {
	deps Dependencies
	now  func() time.Time

	campaigns   *reconcile.CampaignReconciler
	adGroups    *reconcile.AdGroupReconciler
	keywords    *reconcile.KeywordReconciler
	targets     *reconcile.ProductTargetReconciler
	performance *reconcile.PerformanceReconciler
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Minute
	}
	if deps.Report.RoutineDays <= 0 {
		deps.Report.RoutineDays = 14
	}
	if deps.Report.FirstSyncDays <= 0 {
		deps.Report.FirstSyncDays = 90
	}
	if deps.Fetcher == nil {
		deps.Fetcher = report.NewFetcher(report.ConfigFrom(deps.Report), nil)
	}
	return &Orchestrator{
		deps:        deps,
		now:         time.Now,
		campaigns:   reconcile.NewCampaignReconciler(deps.Campaigns, deps.Audit),
		adGroups:    reconcile.NewAdGroupReconciler(deps.Campaigns, deps.AdGroups, deps.Audit),
		keywords:    reconcile.NewKeywordReconciler(deps.AdGroups, deps.Keywords, deps.Audit),
		targets:     reconcile.NewProductTargetReconciler(deps.AdGroups, deps.ProductTargets, deps.Audit),
		performance: reconcile.NewPerformanceReconciler(deps.Campaigns, deps.Performance, deps.Audit),
	}
}

// CampaignsResult is the outcome of SyncCampaignsOnly
type CampaignsResult struct {
	JobID       string                `json:"jobId"`
	Campaigns   models.EntityCounters `json:"campaigns"`
	SPCampaigns models.EntityCounters `json:"spCampaigns"`
	SBCampaigns models.EntityCounters `json:"sbCampaigns"`
	SDCampaigns models.EntityCounters `json:"sdCampaigns"`
}

// TargetingResult is the outcome of SyncAdGroupsAndTargeting
type TargetingResult struct {
	JobID    string                `json:"jobId"`
	AdGroups models.EntityCounters `json:"adGroups"`
	Keywords models.EntityCounters `json:"keywords"`
	Targets  models.EntityCounters `json:"targets"`
}

// FullResult is the outcome of SyncAll
type FullResult struct {
	JobID       string                `json:"jobId"`
	Campaigns   models.EntityCounters `json:"campaigns"`
	AdGroups    models.EntityCounters `json:"adGroups"`
	Keywords    models.EntityCounters `json:"keywords"`
	Targets     models.EntityCounters `json:"targets"`
	Performance models.EntityCounters `json:"performance"`
}

// PerformanceResult is the outcome of SyncPerformanceOnly
type PerformanceResult struct {
	JobID       string                `json:"jobId"`
	Performance models.EntityCounters `json:"performance"`
	Synthetic   bool                  `json:"synthetic"`
}

// Request is one queued unit of work
type Request struct {
	AccountID string `json:"accountId"`
	// UserID is the schedule owner; empty means the account owner
	UserID string          `json:"userId,omitempty"`
	Scope  types.SyncScope `json:"scope"`
	Tier   types.Tier      `json:"tier"`
	// Days overrides the performance window; 0 uses the routine or first-sync window
	Days int `json:"days,omitempty"`
}

// SyncCampaignsOnly refreshes campaigns of every ad product
func (o *Orchestrator) SyncCampaignsOnly(ctx context.Context, accountID string) (*CampaignsResult, error) {
	return o.syncCampaigns(ctx, Request{AccountID: accountID, Tier: types.TierManual})
}

// SyncAdGroupsAndTargeting refreshes ad groups, keywords and product targets
func (o *Orchestrator) SyncAdGroupsAndTargeting(ctx context.Context, accountID string) (*TargetingResult, error) {
	return o.syncTargeting(ctx, Request{AccountID: accountID, Tier: types.TierManual})
}

// SyncAll runs every pass in dependency order
func (o *Orchestrator) SyncAll(ctx context.Context, accountID string) (*FullResult, error) {
	return o.syncAll(ctx, Request{AccountID: accountID, Tier: types.TierManual})
}

// SyncPerformanceOnly re-pulls the trailing performance window. days <= 0
// uses the routine window, or the first-sync window for a new account.
func (o *Orchestrator) SyncPerformanceOnly(ctx context.Context, accountID string, days int) (*PerformanceResult, error) {
	return o.syncPerformance(ctx, Request{AccountID: accountID, Tier: types.TierManual, Days: days})
}

// Run executes a queued request
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	if req.Tier == "" {
		req.Tier = types.TierManual
	}
	var err error
	switch req.Scope {
	case types.ScopeCampaigns:
		_, err = o.syncCampaigns(ctx, req)
	case types.ScopeAdGroups:
		_, err = o.syncTargeting(ctx, req)
	case types.ScopePerformance:
		_, err = o.syncPerformance(ctx, req)
	case types.ScopeFull, "":
		_, err = o.syncAll(ctx, req)
	default:
		err = apperrors.NewInvalidParameterError("scope", fmt.Sprintf("unknown sync scope %q", req.Scope))
	}
	return err
}

func (o *Orchestrator) syncCampaigns(ctx context.Context, req Request) (*CampaignsResult, error) {
	out := &CampaignsResult{}
	err := o.runJob(ctx, req, types.ScopeCampaigns, func(j *job) {
		for _, ct := range types.AllCampaignTypes {
			c := j.campaignPass(ct)
			switch ct {
			case types.CampaignSponsoredProducts:
				out.SPCampaigns = c
			case types.CampaignSponsoredBrands:
				out.SBCampaigns = c
			case types.CampaignSponsoredDisplay:
				out.SDCampaigns = c
			}
			out.Campaigns.Add(c)
		}
		out.JobID = j.log.JobID
	})
	return out, err
}

func (o *Orchestrator) syncTargeting(ctx context.Context, req Request) (*TargetingResult, error) {
	out := &TargetingResult{}
	err := o.runJob(ctx, req, types.ScopeAdGroups, func(j *job) {
		out.JobID = j.log.JobID
		out.AdGroups = j.adGroupPass()
		out.Keywords = j.keywordPass()
		out.Targets = j.targetPass()
	})
	return out, err
}

func (o *Orchestrator) syncAll(ctx context.Context, req Request) (*FullResult, error) {
	out := &FullResult{}
	err := o.runJob(ctx, req, types.ScopeFull, func(j *job) {
		out.JobID = j.log.JobID
		for _, ct := range types.AllCampaignTypes {
			out.Campaigns.Add(j.campaignPass(ct))
		}
		out.AdGroups = j.adGroupPass()
		out.Keywords = j.keywordPass()
		out.Targets = j.targetPass()
		out.Performance, _ = j.performancePass(0)
	})
	return out, err
}

func (o *Orchestrator) syncPerformance(ctx context.Context, req Request) (*PerformanceResult, error) {
	out := &PerformanceResult{}
	err := o.runJob(ctx, req, types.ScopePerformance, func(j *job) {
		out.JobID = j.log.JobID
		out.Performance, out.Synthetic = j.performancePass(req.Days)
	})
	return out, err
}

// job is the state of one running orchestrator invocation
type job struct {
	o       *Orchestrator
	ctx     context.Context
	account *models.AdAccount
	client  adapter.AdsClient
	log     *models.SyncLog
	opts    reconcile.Options
	logger  *logging.Logger

	passes   int
	failures []string
	fatal    error
}

// record folds a pass result into the log. Auth and rate-limit failures stop
// the job; the queue retries rate-limited jobs as a whole.
func (j *job) record(entity types.EntityType, label string, r reconcile.Result) models.EntityCounters {
	j.passes++
	j.log.CountersFor(entity).Add(r.EntityCounters)
	if r.Err != nil {
		j.failures = append(j.failures, fmt.Sprintf("%s: %v", label, r.Err))
		if (apperrors.IsAuth(r.Err) || apperrors.IsRateLimit(r.Err)) && j.fatal == nil {
			j.fatal = r.Err
		}
	}
	return r.EntityCounters
}

func (j *job) stopped() bool {
	return j.fatal != nil || j.ctx.Err() != nil
}

func (j *job) campaignPass(ct types.CampaignType) models.EntityCounters {
	if j.stopped() {
		return models.EntityCounters{}
	}
	r := j.o.campaigns.Sync(j.ctx, j.client, ct, j.opts)
	return j.record(types.EntityCampaign, string(ct)+" campaigns", r)
}

func (j *job) adGroupPass() models.EntityCounters {
	if j.stopped() {
		return models.EntityCounters{}
	}
	return j.record(types.EntityAdGroup, "ad groups", j.o.adGroups.Sync(j.ctx, j.client, j.opts))
}

func (j *job) keywordPass() models.EntityCounters {
	if j.stopped() {
		return models.EntityCounters{}
	}
	return j.record(types.EntityKeyword, "keywords", j.o.keywords.Sync(j.ctx, j.client, j.opts))
}

func (j *job) targetPass() models.EntityCounters {
	if j.stopped() {
		return models.EntityCounters{}
	}
	return j.record(types.EntityProductTarget, "product targets", j.o.targets.Sync(j.ctx, j.client, j.opts))
}

// performancePass fetches the attribution window and applies it
func (j *job) performancePass(days int) (models.EntityCounters, bool) {
	if j.stopped() {
		return models.EntityCounters{}, false
	}
	if days <= 0 {
		days = j.o.deps.Report.RoutineDays
		if j.account.NeverSynced() {
			days = j.o.deps.Report.FirstSyncDays
		}
	}

	window := report.Window(j.o.now(), days)
	j.logger.WithFields(map[string]interface{}{
		"window": window.String(),
		"days":   days,
	}).Info("Fetching performance window")

	fetched, err := j.o.deps.Fetcher.Fetch(j.ctx, j.client, j.account.ID, window)
	if err != nil {
		return j.record(types.EntityPerformance, "performance", reconcile.Result{Err: fmt.Errorf("fetch reports: %w", err)}), false
	}
	if len(fetched.Failed) > 0 {
		j.logger.WithFields(map[string]interface{}{
			"failed_ranges": len(fetched.Failed),
			"ranges":        len(fetched.Ranges),
		}).Warn("Some report sub-ranges were skipped")
	}

	opts := j.opts
	opts.TotalsWindow = report.Window(j.o.now(), j.o.deps.Report.RoutineDays)
	r := j.o.performance.Apply(j.ctx, fetched.Rows, opts)
	if len(fetched.Ranges) > 0 && len(fetched.Failed) == len(fetched.Ranges) && !fetched.Synthetic && r.Err == nil {
		r.Err = errors.New("every report sub-range failed")
	}
	return j.record(types.EntityPerformance, "performance", r), fetched.Synthetic
}

// budgetPriority lets manual syncs draw on the reserved request pool
func budgetPriority(tier types.Tier) ratelimit.Priority {
	if tier == types.TierManual {
		return ratelimit.PriorityHigh
	}
	return ratelimit.PriorityLow
}

// runJob wraps body in the job lifecycle: account lock, sync log, client,
// watermark, connection status and schedule bookkeeping
func (o *Orchestrator) runJob(ctx context.Context, req Request, scope types.SyncScope, body func(j *job)) error {
	accountID, tier := req.AccountID, req.Tier
	start := o.now()
	logger := logging.FromContext(ctx).ForAccount(accountID).WithField("scope", string(scope))
	ctx = ratelimit.WithPriority(ctx, budgetPriority(tier))

	account, err := o.deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", accountID, err)
	}

	if o.deps.Locker != nil {
		lock, err := o.deps.Locker.LockAccount(ctx, accountID, o.deps.LockTTL)
		if err != nil {
			if errors.Is(err, storage.ErrAccountLocked) {
				logger.Warn("Account is already being synced, skipping")
			}
			return err
		}
		defer func() {
			if err := o.deps.Locker.UnlockAccount(context.WithoutCancel(ctx), lock); err != nil {
				logger.WithError(err).Warn("Failed to release account lock")
			}
		}()
	}

	watermark, err := o.deps.SyncLogs.LastCompletedAt(ctx, accountID, scope)
	if err != nil {
		return err
	}

	userID := req.UserID
	if userID == "" {
		userID = account.UserID
	}

	j := &job{
		o:       o,
		account: account,
		log: &models.SyncLog{
			JobID:     uuid.New().String(),
			AccountID: accountID,
			UserID:    userID,
			Scope:     scope,
			Tier:      tier,
			Status:    types.JobStatusRunning,
			StartedAt: start.UTC(),
		},
	}
	j.opts = reconcile.Options{AccountID: accountID, JobID: j.log.JobID, LastSyncTime: watermark}
	j.logger = logger.ForJob(j.log.JobID, string(scope))
	j.ctx = logging.WithLogger(ctx, j.logger)

	if err := o.deps.SyncLogs.Create(ctx, j.log); err != nil {
		return err
	}
	j.logger.WithField("tier", string(tier)).Info("Sync job started")

	client, err := o.deps.Clients.ForAccount(ctx, account)
	if err != nil {
		if errors.Is(err, adapter.ErrMissingCredentials) {
			o.markReauth(ctx, j)
		}
		return o.finish(ctx, j, err)
	}
	j.client = client

	body(j)

	jobErr := j.fatal
	if jobErr == nil && ctx.Err() != nil {
		jobErr = ctx.Err()
	}
	if jobErr == nil && j.passes > 0 && len(j.failures) == j.passes {
		jobErr = fmt.Errorf("every pass failed: %s", strings.Join(j.failures, "; "))
	}
	if apperrors.IsAuth(jobErr) {
		o.markReauth(ctx, j)
	}
	return o.finish(ctx, j, jobErr)
}

func (o *Orchestrator) markReauth(ctx context.Context, j *job) {
	if err := o.deps.Accounts.SetConnectionStatus(ctx, j.account.ID, types.ConnectionNeedsReauth); err != nil {
		j.logger.WithError(err).Error("Failed to mark account for re-authorization")
		return
	}
	j.logger.Warn("Account marked needs_reauth")
}

// finish finalizes the sync log and the account bookkeeping
func (o *Orchestrator) finish(ctx context.Context, j *job, jobErr error) error {
	// Bookkeeping must land even when the job was cancelled
	ctx = context.WithoutCancel(ctx)
	completed := o.now().UTC()
	j.log.CompletedAt = &completed
	j.log.Status = types.JobStatusCompleted

	switch {
	case jobErr != nil:
		j.log.Status = types.JobStatusFailed
		msg := jobErr.Error()
		j.log.Error = &msg
	case len(j.failures) > 0:
		msg := "partial: " + strings.Join(j.failures, "; ")
		j.log.Error = &msg
	}

	if j.log.Status == types.JobStatusCompleted {
		if j.account.ConnectionStatus != types.ConnectionOK {
			if err := o.deps.Accounts.SetConnectionStatus(ctx, j.account.ID, types.ConnectionOK); err != nil {
				j.logger.WithError(err).Warn("Failed to reset connection status")
			}
		}
		if j.account.NeverSynced() && (j.log.Scope == types.ScopeFull || j.log.Scope == types.ScopePerformance) {
			if err := o.deps.Accounts.MarkFirstSynced(ctx, j.account.ID, completed); err != nil {
				j.logger.WithError(err).Warn("Failed to record first sync")
			}
		}
		if j.log.Scope == types.ScopeFull && o.deps.Schedules != nil {
			if err := o.deps.Schedules.MarkRun(ctx, j.log.UserID, j.account.ID, completed); err != nil {
				j.logger.WithError(err).Warn("Failed to update schedule last run")
			}
		}
	}

	if err := o.deps.SyncLogs.Finalize(ctx, j.log); err != nil {
		j.logger.WithError(err).Error("Failed to finalize sync log")
		if jobErr == nil {
			jobErr = err
		}
	}

	duration := completed.Sub(j.log.StartedAt)
	metrics.RecordSyncJob(string(j.log.Scope), string(j.log.Status), duration)

	entry := j.logger.WithFields(map[string]interface{}{
		"status":   string(j.log.Status),
		"duration": duration.String(),
		"failures": len(j.failures),
	})
	if jobErr != nil {
		entry.WithError(jobErr).Error("Sync job failed")
	} else {
		entry.Info("Sync job completed")
	}
	return jobErr
}
