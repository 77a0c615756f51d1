package models

import (
	"time"

	"github.com/ads-sync/internal/types"
)

// AdAccount represents a connected advertising account
type AdAccount struct {
	ID               string                 `json:"id" db:"id"`
	UserID           string                 `json:"userId" db:"user_id"`
	ProfileID        string                 `json:"profileId" db:"profile_id"`
	Name             string                 `json:"name" db:"name"`
	Region           string                 `json:"region" db:"region"`
	AccessToken      string                 `json:"-" db:"access_token"`
	ConnectionStatus types.ConnectionStatus `json:"connectionStatus" db:"connection_status"`
	FirstSyncedAt    *time.Time             `json:"firstSyncedAt,omitempty" db:"first_synced_at"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time              `json:"updatedAt" db:"updated_at"`
}

// NeverSynced reports whether the account has not completed a sync yet.
// The first sync pulls the long performance window.
func (a *AdAccount) NeverSynced() bool {
	return a.FirstSyncedAt == nil
}
