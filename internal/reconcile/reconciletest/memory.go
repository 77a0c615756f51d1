// Package reconciletest provides an in-memory implementation of the reconcile stores.
package reconciletest

import (
	"context"
	"sync"
	"time"

	"github.com/ads-sync/internal/models"
)

// Store keeps every entity in memory. Lookups return copies so callers only
// change stored state through Insert and Update.
type Store struct {
	mu     sync.Mutex
	nextID int64

	campaigns map[int64]*models.Campaign
	adGroups  map[int64]*models.AdGroup
	keywords  map[int64]*models.Keyword
	targets   map[int64]*models.ProductTarget

	Changes     []*models.ChangeRecord
	Conflicts   []*models.ConflictRecord
	Performance []models.PerformanceDaily
	Totals      map[int64]models.CampaignTotals

	// ErrInsertPerformance fails InsertDaily when set
	ErrInsertPerformance error
	// Now stamps created_at/updated_at on inserts
	Now func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		campaigns: make(map[int64]*models.Campaign),
		adGroups:  make(map[int64]*models.AdGroup),
		keywords:  make(map[int64]*models.Keyword),
		targets:   make(map[int64]*models.ProductTarget),
		Totals:    make(map[int64]models.CampaignTotals),
		Now:       time.Now,
	}
}

func (s *Store) stamp() (int64, time.Time) {
	s.nextID++
	return s.nextID, s.Now().UTC()
}

// Campaigns returns the campaign store view
func (s *Store) Campaigns() *CampaignView { return &CampaignView{s} }

// AdGroups returns the ad group store view
func (s *Store) AdGroups() *AdGroupView { return &AdGroupView{s} }

// Keywords returns the keyword store view
func (s *Store) Keywords() *KeywordView { return &KeywordView{s} }

// ProductTargets returns the product target store view
func (s *Store) ProductTargets() *ProductTargetView { return &ProductTargetView{s} }

// AllCampaigns returns copies of every stored campaign
func (s *Store) AllCampaigns() []models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	return out
}

// Count returns the number of stored entities per kind
func (s *Store) Count() (campaigns, adGroups, keywords, targets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.campaigns), len(s.adGroups), len(s.keywords), len(s.targets)
}

// SetCampaignUpdatedAt simulates a local edit
func (s *Store) SetCampaignUpdatedAt(accountID, campaignID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.AccountID == accountID && c.CampaignID == campaignID {
			c.UpdatedAt = at
		}
	}
}

// InsertChangeRecords implements reconcile.AuditStore
func (s *Store) InsertChangeRecords(ctx context.Context, records []*models.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Changes = append(s.Changes, records...)
	return nil
}

// InsertConflictRecords implements reconcile.AuditStore
func (s *Store) InsertConflictRecords(ctx context.Context, records []*models.ConflictRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Conflicts = append(s.Conflicts, records...)
	return nil
}

// InsertDaily implements reconcile.PerformanceStore
func (s *Store) InsertDaily(ctx context.Context, rows []models.PerformanceDaily) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrInsertPerformance != nil {
		return s.ErrInsertPerformance
	}
	s.Performance = append(s.Performance, rows...)
	return nil
}

// ReportedTotals implements reconcile.PerformanceStore. Later rows for the
// same campaign, ad group and day replace earlier ones.
func (s *Store) ReportedTotals(ctx context.Context, accountID string, from, to time.Time) (map[string]models.CampaignTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type dayKey struct {
		campaignID, adGroupID string
		date                  time.Time
	}
	latest := make(map[dayKey]models.PerformanceDaily)
	for _, row := range s.Performance {
		if row.AccountID != accountID {
			continue
		}
		latest[dayKey{row.CampaignID, row.AdGroupID, row.Date}] = row
	}

	out := make(map[string]models.CampaignTotals)
	for key, row := range latest {
		if key.adGroupID != "" || row.Synthetic || row.Date.Before(from) || row.Date.After(to) {
			continue
		}
		t := out[key.campaignID]
		t.Impressions += int64(row.Impressions) // #nosec G115
		t.Clicks += int64(row.Clicks)           // #nosec G115
		t.Orders += int64(row.Orders)           // #nosec G115
		t.Spend = t.Spend.Add(row.Spend)
		t.Sales = t.Sales.Add(row.Sales)
		out[key.campaignID] = t
	}
	return out, nil
}

// CampaignView implements reconcile.CampaignStore
type CampaignView struct{ s *Store }

// Get implements reconcile.CampaignStore
func (v *CampaignView) Get(ctx context.Context, accountID, campaignID string) (*models.Campaign, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, c := range v.s.campaigns {
		if c.AccountID == accountID && c.CampaignID == campaignID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

// FindByName implements reconcile.CampaignStore
func (v *CampaignView) FindByName(ctx context.Context, accountID, name string) ([]*models.Campaign, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*models.Campaign
	for _, c := range v.s.campaigns {
		if c.AccountID == accountID && c.Name == name {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListByAccount implements reconcile.CampaignStore
func (v *CampaignView) ListByAccount(ctx context.Context, accountID string) ([]*models.Campaign, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*models.Campaign
	for _, c := range v.s.campaigns {
		if c.AccountID == accountID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Insert implements reconcile.CampaignStore
func (v *CampaignView) Insert(ctx context.Context, c *models.Campaign) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, now := v.s.stamp()
	c.ID, c.CreatedAt, c.UpdatedAt, c.LastSyncedAt = id, now, now, &now
	cp := *c
	v.s.campaigns[id] = &cp
	return nil
}

// Update implements reconcile.CampaignStore. updated_at is left alone.
func (v *CampaignView) Update(ctx context.Context, c *models.Campaign) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.campaigns[c.ID]
	if !ok {
		return errNotFound
	}
	now := v.s.Now().UTC()
	cp := *c
	cp.UpdatedAt = stored.UpdatedAt
	cp.LastSyncedAt = &now
	v.s.campaigns[c.ID] = &cp
	return nil
}

// UpdateTotals implements reconcile.CampaignStore
func (v *CampaignView) UpdateTotals(ctx context.Context, id int64, totals models.CampaignTotals) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.campaigns[id]
	if !ok {
		return errNotFound
	}
	c.Impressions, c.Clicks, c.Orders = totals.Impressions, totals.Clicks, totals.Orders
	c.Spend, c.Sales, c.ACoS = totals.Spend, totals.Sales, totals.ACoS()
	v.s.Totals[id] = totals
	return nil
}

// AdGroupView implements reconcile.AdGroupStore
type AdGroupView struct{ s *Store }

// Get implements reconcile.AdGroupStore
func (v *AdGroupView) Get(ctx context.Context, accountID string, campaignLocalID int64, adGroupID string) (*models.AdGroup, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, g := range v.s.adGroups {
		if g.AccountID == accountID && g.CampaignLocalID == campaignLocalID && g.AdGroupID == adGroupID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByPlatformID implements reconcile.AdGroupStore
func (v *AdGroupView) GetByPlatformID(ctx context.Context, accountID, adGroupID string) (*models.AdGroup, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, g := range v.s.adGroups {
		if g.AccountID == accountID && g.AdGroupID == adGroupID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

// Insert implements reconcile.AdGroupStore
func (v *AdGroupView) Insert(ctx context.Context, g *models.AdGroup) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, now := v.s.stamp()
	g.ID, g.CreatedAt, g.UpdatedAt, g.LastSyncedAt = id, now, now, &now
	cp := *g
	v.s.adGroups[id] = &cp
	return nil
}

// Update implements reconcile.AdGroupStore
func (v *AdGroupView) Update(ctx context.Context, g *models.AdGroup) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.adGroups[g.ID]
	if !ok {
		return errNotFound
	}
	cp := *g
	cp.UpdatedAt = stored.UpdatedAt
	v.s.adGroups[g.ID] = &cp
	return nil
}

// KeywordView implements reconcile.KeywordStore
type KeywordView struct{ s *Store }

// Get implements reconcile.KeywordStore
func (v *KeywordView) Get(ctx context.Context, accountID string, adGroupLocalID int64, keywordID string) (*models.Keyword, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, k := range v.s.keywords {
		if k.AccountID == accountID && k.AdGroupLocalID == adGroupLocalID && k.KeywordID == keywordID {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

// Insert implements reconcile.KeywordStore
func (v *KeywordView) Insert(ctx context.Context, k *models.Keyword) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, now := v.s.stamp()
	k.ID, k.CreatedAt, k.UpdatedAt, k.LastSyncedAt = id, now, now, &now
	cp := *k
	v.s.keywords[id] = &cp
	return nil
}

// Update implements reconcile.KeywordStore
func (v *KeywordView) Update(ctx context.Context, k *models.Keyword) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.keywords[k.ID]
	if !ok {
		return errNotFound
	}
	cp := *k
	cp.UpdatedAt = stored.UpdatedAt
	v.s.keywords[k.ID] = &cp
	return nil
}

// ProductTargetView implements reconcile.ProductTargetStore
type ProductTargetView struct{ s *Store }

// Get implements reconcile.ProductTargetStore
func (v *ProductTargetView) Get(ctx context.Context, accountID string, adGroupLocalID int64, targetID string) (*models.ProductTarget, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.targets {
		if t.AccountID == accountID && t.AdGroupLocalID == adGroupLocalID && t.TargetID == targetID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

// Insert implements reconcile.ProductTargetStore
func (v *ProductTargetView) Insert(ctx context.Context, t *models.ProductTarget) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, now := v.s.stamp()
	t.ID, t.CreatedAt, t.UpdatedAt, t.LastSyncedAt = id, now, now, &now
	cp := *t
	v.s.targets[id] = &cp
	return nil
}

// Update implements reconcile.ProductTargetStore
func (v *ProductTargetView) Update(ctx context.Context, t *models.ProductTarget) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.targets[t.ID]
	if !ok {
		return errNotFound
	}
	cp := *t
	cp.UpdatedAt = stored.UpdatedAt
	v.s.targets[t.ID] = &cp
	return nil
}
