package models

import (
	"time"

	"github.com/ads-sync/internal/types"
)

// ChangeRecord is an audit row for one entity creation or update. Never mutated.
type ChangeRecord struct {
	ID            string           `json:"id" db:"id"`
	JobID         string           `json:"jobId" db:"job_id"`
	AccountID     string           `json:"accountId" db:"account_id"`
	EntityType    types.EntityType `json:"entityType" db:"entity_type"`
	EntityID      string           `json:"entityId" db:"entity_id"`
	ChangeType    types.ChangeType `json:"changeType" db:"change_type"`
	ChangedFields []string         `json:"changedFields" db:"changed_fields"`
	PreviousData  map[string]any   `json:"previousData,omitempty" db:"previous_data"`
	NewData       map[string]any   `json:"newData" db:"new_data"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
}

// ConflictRecord is a detected disagreement between local and remote state.
// Resolution happens out of band.
type ConflictRecord struct {
	ID           string             `json:"id" db:"id"`
	JobID        string             `json:"jobId" db:"job_id"`
	AccountID    string             `json:"accountId" db:"account_id"`
	EntityType   types.EntityType   `json:"entityType" db:"entity_type"`
	EntityID     string             `json:"entityId" db:"entity_id"`
	ConflictType types.ConflictType `json:"conflictType" db:"conflict_type"`
	Fields       []string           `json:"fields" db:"fields"`
	LocalValues  map[string]any     `json:"localValues" db:"local_values"`
	RemoteValues map[string]any     `json:"remoteValues" db:"remote_values"`
	Resolved     bool               `json:"resolved" db:"resolved"`
	CreatedAt    time.Time          `json:"createdAt" db:"created_at"`
}
