package models

import (
	"time"

	"github.com/ads-sync/internal/types"
)

// EntityCounters holds the per-entity-type outcome of a reconciliation pass
type EntityCounters struct {
	Synced    int `json:"synced"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Deleted   int `json:"deleted"`
	Conflicts int `json:"conflicts"`
}

// Add accumulates other into c
func (c *EntityCounters) Add(other EntityCounters) {
	c.Synced += other.Synced
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Deleted += other.Deleted
	c.Conflicts += other.Conflicts
}

// SyncLog records one orchestrator invocation. It is immutable once finalized.
type SyncLog struct {
	JobID       string                               `json:"jobId" db:"job_id"`
	AccountID   string                               `json:"accountId" db:"account_id"`
	UserID      string                               `json:"userId" db:"user_id"`
	Scope       types.SyncScope                      `json:"scope" db:"scope"`
	Tier        types.Tier                           `json:"tier" db:"tier"`
	Status      types.JobStatus                      `json:"status" db:"status"`
	StartedAt   time.Time                            `json:"startedAt" db:"started_at"`
	CompletedAt *time.Time                           `json:"completedAt,omitempty" db:"completed_at"`
	Counters    map[types.EntityType]*EntityCounters `json:"counters" db:"counters"`
	Error       *string                              `json:"error,omitempty" db:"error"`
}

// CountersFor returns the counters for an entity type, creating them if needed
func (l *SyncLog) CountersFor(t types.EntityType) *EntityCounters {
	if l.Counters == nil {
		l.Counters = make(map[types.EntityType]*EntityCounters)
	}
	c, ok := l.Counters[t]
	if !ok {
		c = &EntityCounters{}
		l.Counters[t] = c
	}
	return c
}
