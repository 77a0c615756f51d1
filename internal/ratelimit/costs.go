package ratelimit

import "sync"

// Endpoint identifies a class of platform call for budgeting.
type Endpoint string

const (
	EndpointList           Endpoint = "list"
	EndpointReportRequest  Endpoint = "report_request"
	EndpointReportStatus   Endpoint = "report_status"
	EndpointReportDownload Endpoint = "report_download"
)

// DefaultCost applies to endpoints without an explicit cost.
const DefaultCost = 1

// CostTable maps platform endpoints to budget units. Report creation is
// throttled much harder by the platform than listing, so it costs more.
// It is safe for concurrent use.
type CostTable struct {
	mu    sync.RWMutex
	costs map[Endpoint]int
}

// NewCostTable returns the default costs with overrides applied.
// Non-positive overrides are ignored.
func NewCostTable(overrides map[Endpoint]int) *CostTable {
	costs := map[Endpoint]int{
		EndpointList:           1,
		EndpointReportRequest:  5,
		EndpointReportStatus:   1,
		EndpointReportDownload: 2,
	}
	for e, c := range overrides {
		if c > 0 {
			costs[e] = c
		}
	}
	return &CostTable{costs: costs}
}

// Cost returns the units charged for one call to e.
func (t *CostTable) Cost(e Endpoint) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.costs[e]; ok {
		return c
	}
	return DefaultCost
}

// SetCost updates the cost of an endpoint at runtime.
func (t *CostTable) SetCost(e Endpoint, cost int) {
	if cost <= 0 {
		return
	}
	t.mu.Lock()
	t.costs[e] = cost
	t.mu.Unlock()
}
