package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ads-sync/internal/conflict"
	"github.com/ads-sync/internal/logging"
	"github.com/ads-sync/internal/metrics"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
)

// pass accumulates counters and audit records for one entity type
type pass struct {
	entity    types.EntityType
	opts      Options
	whitelist []string
	logger    *logging.Logger

	counters  models.EntityCounters
	changes   []*models.ChangeRecord
	conflicts []*models.ConflictRecord
}

// pendingUpdate holds the audit records of an update until its write succeeds
type pendingUpdate struct {
	change   *models.ChangeRecord
	conflict *models.ConflictRecord
}

func newPass(ctx context.Context, entity types.EntityType, opts Options, whitelist []string) *pass {
	return &pass{
		entity:    entity,
		opts:      opts,
		whitelist: whitelist,
		logger: logging.FromContext(ctx).WithFields(map[string]interface{}{
			"entity_type": string(entity),
			"account_id":  opts.AccountID,
		}),
	}
}

// protected reports whether a local row was modified at or after the watermark
func (p *pass) protected(updatedAt time.Time) bool {
	return p.opts.LastSyncTime != nil && !updatedAt.Before(*p.opts.LastSyncTime)
}

func (p *pass) skip(id string, reason string, err error) {
	p.counters.Skipped++
	l := p.logger.WithField("entity_id", id)
	if err != nil {
		l = l.WithError(err)
	}
	l.Debugf("Skipped: %s", reason)
}

// changedFields returns the snapshot keys whose values differ, sorted
func changedFields(before, after map[string]any) []string {
	var changed []string
	for k, av := range after {
		if fmt.Sprint(before[k]) != fmt.Sprint(av) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func subset(m map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

// diff compares before and after. It returns nil when nothing changed.
func (p *pass) diff(entityID string, before, after map[string]any) *pendingUpdate {
	changed := changedFields(before, after)
	if len(changed) == 0 {
		return nil
	}

	u := &pendingUpdate{
		change: &models.ChangeRecord{
			JobID:         p.opts.JobID,
			AccountID:     p.opts.AccountID,
			EntityType:    p.entity,
			EntityID:      entityID,
			ChangeType:    types.ChangeUpdated,
			ChangedFields: changed,
			PreviousData:  before,
			NewData:       after,
		},
	}
	if result := conflict.DetectConflict(before, after, p.whitelist); result.HasConflict {
		u.conflict = &models.ConflictRecord{
			JobID:        p.opts.JobID,
			AccountID:    p.opts.AccountID,
			EntityType:   p.entity,
			EntityID:     entityID,
			ConflictType: types.ConflictFieldMismatch,
			Fields:       result.ConflictFields,
			LocalValues:  subset(before, result.ConflictFields),
			RemoteValues: subset(after, result.ConflictFields),
		}
	}
	return u
}

// updated counts a written update and keeps its audit records
func (p *pass) updated(u *pendingUpdate) {
	p.counters.Updated++
	p.counters.Synced++
	if u.conflict != nil {
		p.addConflict(u.conflict)
	}
	if p.opts.JobID != "" {
		p.changes = append(p.changes, u.change)
	}
}

// created counts a written insert and keeps its change record
func (p *pass) created(entityID string, data map[string]any) {
	p.counters.Created++
	p.counters.Synced++
	if p.opts.JobID == "" {
		return
	}
	fields := make([]string, 0, len(data))
	for k := range data {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	p.changes = append(p.changes, &models.ChangeRecord{
		JobID:         p.opts.JobID,
		AccountID:     p.opts.AccountID,
		EntityType:    p.entity,
		EntityID:      entityID,
		ChangeType:    types.ChangeCreated,
		ChangedFields: fields,
		NewData:       data,
	})
}

// addConflict counts a conflict and keeps its record when auditing is on
func (p *pass) addConflict(rec *models.ConflictRecord) {
	p.counters.Conflicts++
	metrics.RecordConflict(string(p.entity), string(rec.ConflictType))
	if p.opts.JobID == "" {
		return
	}
	rec.JobID = p.opts.JobID
	rec.AccountID = p.opts.AccountID
	rec.EntityType = p.entity
	p.conflicts = append(p.conflicts, rec)
}

// finish writes the batched audit records and returns the pass result
func (p *pass) finish(ctx context.Context, audit AuditStore) Result {
	result := Result{EntityCounters: p.counters}

	if audit != nil {
		if err := audit.InsertConflictRecords(ctx, p.conflicts); err != nil {
			result.Err = fmt.Errorf("write %s conflict records: %w", p.entity, err)
		}
		if err := audit.InsertChangeRecords(ctx, p.changes); err != nil && result.Err == nil {
			result.Err = fmt.Errorf("write %s change records: %w", p.entity, err)
		}
	}

	metrics.RecordReconcile(string(p.entity), p.counters.Created, p.counters.Updated, p.counters.Skipped)
	p.logger.WithFields(map[string]interface{}{
		"synced":    p.counters.Synced,
		"created":   p.counters.Created,
		"updated":   p.counters.Updated,
		"skipped":   p.counters.Skipped,
		"conflicts": p.counters.Conflicts,
	}).Info("Reconciliation pass finished")
	return result
}

// listFailed is the result of a pass whose listing call failed
func listFailed(ctx context.Context, entity types.EntityType, opts Options, err error) Result {
	logging.FromContext(ctx).
		WithFields(map[string]interface{}{"entity_type": string(entity), "account_id": opts.AccountID}).
		WithError(err).
		Error("Listing failed, pass aborted")
	return Result{Err: fmt.Errorf("list %s: %w", entity, err)}
}
