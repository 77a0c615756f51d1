// Package types provides common type definitions for the ad sync engine.
package types

import (
	"fmt"
	"strings"
)

// EntityType identifies a kind of synchronized advertising entity
type EntityType string

const (
	// EntityCampaign represents a campaign
	EntityCampaign EntityType = "campaign"
	// EntityAdGroup represents an ad group (child of a campaign)
	EntityAdGroup EntityType = "ad_group"
	// EntityKeyword represents a keyword (child of an ad group)
	EntityKeyword EntityType = "keyword"
	// EntityProductTarget represents a product target (child of an ad group)
	EntityProductTarget EntityType = "product_target"
	// EntityPerformance represents a daily performance row
	EntityPerformance EntityType = "performance"
)

// CampaignType is the ad product a campaign belongs to
type CampaignType string

const (
	// CampaignSponsoredProducts is the sponsored products ad type
	CampaignSponsoredProducts CampaignType = "sp"
	// CampaignSponsoredBrands is the sponsored brands ad type
	CampaignSponsoredBrands CampaignType = "sb"
	// CampaignSponsoredDisplay is the sponsored display ad type
	CampaignSponsoredDisplay CampaignType = "sd"
)

// AllCampaignTypes lists the campaign types in the order they are synced
var AllCampaignTypes = []CampaignType{
	CampaignSponsoredProducts,
	CampaignSponsoredBrands,
	CampaignSponsoredDisplay,
}

// SyncScope is the breadth of a single orchestrator invocation
type SyncScope string

const (
	// ScopeCampaigns pulls campaign status and budget only
	ScopeCampaigns SyncScope = "campaigns"
	// ScopeAdGroups pulls ad groups, keywords and product targets
	ScopeAdGroups SyncScope = "ad_groups"
	// ScopePerformance pulls performance reports only
	ScopePerformance SyncScope = "performance"
	// ScopeFull pulls everything in dependency order
	ScopeFull SyncScope = "full"
)

// ParseSyncScope parses a scope name
func ParseSyncScope(s string) (SyncScope, error) {
	switch SyncScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeCampaigns:
		return ScopeCampaigns, nil
	case ScopeAdGroups:
		return ScopeAdGroups, nil
	case ScopePerformance:
		return ScopePerformance, nil
	case ScopeFull, "":
		return ScopeFull, nil
	default:
		return "", fmt.Errorf("unknown sync scope: %q", s)
	}
}

// Tier is a scheduler frequency class
type Tier string

const (
	// TierHigh refreshes campaign status/budget
	TierHigh Tier = "high"
	// TierMedium refreshes ad groups and targeting
	TierMedium Tier = "medium"
	// TierLow refreshes the attribution window of performance data
	TierLow Tier = "low"
	// TierFull runs user-configured full syncs
	TierFull Tier = "full"
	// TierManual marks requests triggered through the API or CLI
	TierManual Tier = "manual"
)

// Scope returns the sync scope a tier runs
func (t Tier) Scope() SyncScope {
	switch t {
	case TierHigh:
		return ScopeCampaigns
	case TierMedium:
		return ScopeAdGroups
	case TierLow:
		return ScopePerformance
	default:
		return ScopeFull
	}
}

// Frequency is the user-configured cadence of a full sync schedule
type Frequency string

const (
	FrequencyHourly      Frequency = "hourly"
	FrequencyEvery6Hours Frequency = "every_6_hours"
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
)

// JobStatus represents the status of a sync job
type JobStatus string

const (
	// JobStatusRunning represents a job in progress
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted represents a successfully finalized job
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed represents a job that failed as a whole
	JobStatusFailed JobStatus = "failed"
)

// ChangeType classifies a ChangeRecord
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
)

// ConflictType classifies a ConflictRecord
type ConflictType string

const (
	// ConflictFieldMismatch means local and remote disagree on mutable fields
	ConflictFieldMismatch ConflictType = "field_mismatch"
	// ConflictIdentityMismatch means a report row was matched by name, not id
	ConflictIdentityMismatch ConflictType = "identity_mismatch"
	// ConflictAmbiguousName means a report row's name matched several local entities
	ConflictAmbiguousName ConflictType = "ambiguous_name"
)

// ConnectionStatus is the account-level connection state
type ConnectionStatus string

const (
	ConnectionOK          ConnectionStatus = "ok"
	ConnectionNeedsReauth ConnectionStatus = "needs_reauth"
)

// EntityState is the canonical (lowercase) delivery state of an entity
type EntityState string

const (
	StateEnabled  EntityState = "enabled"
	StatePaused   EntityState = "paused"
	StateArchived EntityState = "archived"
)

// ReportScope selects which entity level a performance report aggregates by
type ReportScope string

const (
	ReportScopeCampaign ReportScope = "campaign"
	ReportScopeAdGroup  ReportScope = "ad_group"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
