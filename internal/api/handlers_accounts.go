package api

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/report"
	"github.com/ads-sync/internal/service"
	"github.com/ads-sync/internal/types"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const (
	maxManualDays          = 365
	defaultSyncLogLimit    = 20
	maxSyncLogLimit        = 100
	defaultConflictLimit   = 50
	maxConflictLimit       = 500
	defaultPerformanceDays = 14
	maxPerformanceDays     = 366
	dateLayout             = "2006-01-02"
)

type triggerSyncRequest struct {
	Scope string `json:"scope"`
	Days  int    `json:"days"`
}

// handleTriggerSync handles POST /api/accounts/{accountId}/sync - enqueue a manual sync.
// Scope and days may come from the JSON body or the query string; the query wins.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	var req triggerSyncRequest
	if err := parseJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	query := r.URL.Query()
	if v := query.Get("scope"); v != "" {
		req.Scope = v
	}
	if v := query.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "days must be an integer", nil)
			return
		}
		req.Days = days
	}

	scope, err := types.ParseSyncScope(req.Scope)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), map[string]interface{}{
			"allowed": []types.SyncScope{types.ScopeCampaigns, types.ScopeAdGroups, types.ScopePerformance, types.ScopeFull},
		})
		return
	}
	if req.Days < 0 || req.Days > maxManualDays {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "days must be between 0 and 365", nil)
		return
	}
	if req.Days > 0 && scope != types.ScopePerformance && scope != types.ScopeFull {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "days only applies to performance or full syncs", nil)
		return
	}

	if _, err := s.deps.Accounts.GetByID(r.Context(), accountID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	item, added, err := s.deps.Queue.Enqueue(service.Request{
		AccountID: accountID,
		Scope:     scope,
		Tier:      types.TierManual,
		Days:      req.Days,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"item":      item,
		"duplicate": !added,
	})
}

// handleListSyncLogs handles GET /api/accounts/{accountId}/sync-logs
func (s *Server) handleListSyncLogs(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	limit, ok := parseLimit(w, r, defaultSyncLogLimit, maxSyncLogLimit)
	if !ok {
		return
	}

	logs, err := s.deps.SyncLogs.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*models.SyncLog{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"syncLogs":  logs,
	})
}

// handleListConflicts handles GET /api/accounts/{accountId}/conflicts.
// Only unresolved conflicts are returned unless unresolved=false.
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	limit, ok := parseLimit(w, r, defaultConflictLimit, maxConflictLimit)
	if !ok {
		return
	}

	unresolvedOnly := true
	if v := r.URL.Query().Get("unresolved"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "unresolved must be a boolean", nil)
			return
		}
		unresolvedOnly = parsed
	}

	conflicts, err := s.deps.Conflicts.ListConflicts(r.Context(), accountID, unresolvedOnly, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.ConflictRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"conflicts": conflicts,
	})
}

type campaignTotalsView struct {
	CampaignID  string           `json:"campaignId"`
	Impressions int64            `json:"impressions"`
	Clicks      int64            `json:"clicks"`
	Spend       decimal.Decimal  `json:"spend"`
	Sales       decimal.Decimal  `json:"sales"`
	Orders      int64            `json:"orders"`
	ACoS        *decimal.Decimal `json:"acos"`
}

// handleGetPerformance handles GET /api/accounts/{accountId}/performance?from=&to=.
// The default window is the trailing 14 days ending yesterday.
func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	window := report.Window(s.now(), defaultPerformanceDays)
	query := r.URL.Query()
	if v := query.Get("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be YYYY-MM-DD", nil)
			return
		}
		window.Start = from
	}
	if v := query.Get("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be YYYY-MM-DD", nil)
			return
		}
		window.End = to
	}
	if window.End.Before(window.Start) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must not be after to", nil)
		return
	}
	if window.Days() > maxPerformanceDays {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "date range is limited to 366 days", nil)
		return
	}

	daily, err := s.deps.Performance.Daily(r.Context(), accountID, window.Start, window.End)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	totals, err := s.deps.Performance.CampaignTotals(r.Context(), accountID, window.Start, window.End)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if daily == nil {
		daily = []models.PerformanceDaily{}
	}
	campaigns := make([]campaignTotalsView, 0, len(totals))
	for campaignID, t := range totals {
		campaigns = append(campaigns, campaignTotalsView{
			CampaignID:  campaignID,
			Impressions: t.Impressions,
			Clicks:      t.Clicks,
			Spend:       t.Spend,
			Sales:       t.Sales,
			Orders:      t.Orders,
			ACoS:        t.ACoS(),
		})
	}
	sort.Slice(campaigns, func(i, j int) bool { return campaigns[i].CampaignID < campaigns[j].CampaignID })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"from":      window.Start.Format(dateLayout),
		"to":        window.End.Format(dateLayout),
		"daily":     daily,
		"campaigns": campaigns,
	})
}

// parseLimit reads ?limit=, writing a 400 and returning false when it is invalid
func parseLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 || limit > max {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid limit", map[string]interface{}{
			"max": max,
		})
		return 0, false
	}
	return limit, true
}
