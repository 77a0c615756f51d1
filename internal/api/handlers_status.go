package api

import (
	"net/http"
	"sort"

	"github.com/ads-sync/internal/circuitbreaker"
	"github.com/ads-sync/internal/worker"
)

// handleSchedulerStatus handles GET /api/scheduler/status
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		respondJSON(w, http.StatusOK, worker.SchedulerStatus{Running: false, Tiers: []worker.TierStatus{}})
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Scheduler.Status())
}

// handleQueueStatus handles GET /api/queue/status
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Queue.Status())
}

// handleBreakers handles GET /api/breakers - per-profile circuit breaker state
func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	breakers := []*circuitbreaker.Stats{}
	if s.deps.Breakers != nil {
		for _, stats := range s.deps.Breakers.BreakerStats() {
			breakers = append(breakers, stats)
		}
	}
	sort.Slice(breakers, func(i, j int) bool { return breakers[i].Name < breakers[j].Name })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": breakers,
	})
}
