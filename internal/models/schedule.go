package models

import (
	"time"

	"github.com/ads-sync/internal/types"
)

// SyncSchedule is a user's full-sync schedule for one account.
// Schedules are disabled rather than deleted.
type SyncSchedule struct {
	ID               int64           `json:"id" db:"id"`
	UserID           string          `json:"userId" db:"user_id"`
	AccountID        string          `json:"accountId" db:"account_id"`
	Frequency        types.Frequency `json:"frequency" db:"frequency"`
	PreferredTime    *string         `json:"preferredTime,omitempty" db:"preferred_time"`       // HH:MM, UTC
	PreferredWeekday *int            `json:"preferredWeekday,omitempty" db:"preferred_weekday"` // 0 = Sunday
	Enabled          bool            `json:"enabled" db:"enabled"`
	LastRunAt        *time.Time      `json:"lastRunAt,omitempty" db:"last_run_at"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}
