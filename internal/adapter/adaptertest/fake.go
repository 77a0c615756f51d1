// Package adaptertest provides an in-memory AdsClient for tests.
package adaptertest

import (
	"context"
	"sync"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
)

// ReportRequest records one RequestReport call
type ReportRequest struct {
	Scope types.ReportScope
	Start time.Time
	End   time.Time
}

// FakeClient serves canned platform data. Errors set on the Err* fields are
// returned by the matching method.
type FakeClient struct {
	mu sync.Mutex

	Campaigns map[types.CampaignType][]adapter.RemoteCampaign
	AdGroups  []adapter.RemoteAdGroup
	Keywords  []adapter.RemoteKeyword
	Targets   []adapter.RemoteProductTarget

	// ReportRows returns the rows for a requested range. Nil yields no rows.
	ReportRows func(req ReportRequest) ([]adapter.ReportRow, error)

	ErrCampaigns error
	ErrAdGroups  error
	ErrKeywords  error
	ErrTargets   error
	ErrRequest   error

	Requests []ReportRequest
	Calls    map[string]int
}

// NewFakeClient creates an empty fake
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Campaigns: make(map[types.CampaignType][]adapter.RemoteCampaign),
		Calls:     make(map[string]int),
	}
}

func (f *FakeClient) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[name]++
}

// CallCount returns how many times a method was called
func (f *FakeClient) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[name]
}

// ListCampaigns implements adapter.AdsClient
func (f *FakeClient) ListCampaigns(ctx context.Context, campaignType types.CampaignType) ([]adapter.RemoteCampaign, error) {
	f.record("ListCampaigns")
	if f.ErrCampaigns != nil {
		return nil, f.ErrCampaigns
	}
	out := make([]adapter.RemoteCampaign, 0, len(f.Campaigns[campaignType]))
	for _, c := range f.Campaigns[campaignType] {
		c.CampaignType = string(campaignType)
		out = append(out, c)
	}
	return out, nil
}

// ListAdGroups implements adapter.AdsClient
func (f *FakeClient) ListAdGroups(ctx context.Context) ([]adapter.RemoteAdGroup, error) {
	f.record("ListAdGroups")
	return f.AdGroups, f.ErrAdGroups
}

// ListKeywords implements adapter.AdsClient
func (f *FakeClient) ListKeywords(ctx context.Context) ([]adapter.RemoteKeyword, error) {
	f.record("ListKeywords")
	return f.Keywords, f.ErrKeywords
}

// ListProductTargets implements adapter.AdsClient
func (f *FakeClient) ListProductTargets(ctx context.Context) ([]adapter.RemoteProductTarget, error) {
	f.record("ListProductTargets")
	return f.Targets, f.ErrTargets
}

// RequestReport implements adapter.AdsClient. The report id encodes the
// request index.
func (f *FakeClient) RequestReport(ctx context.Context, scope types.ReportScope, start, end time.Time) (string, error) {
	f.record("RequestReport")
	if f.ErrRequest != nil {
		return "", f.ErrRequest
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, ReportRequest{Scope: scope, Start: start, End: end})
	return reportID(len(f.Requests) - 1), nil
}

// PollAndDownloadReport implements adapter.AdsClient
func (f *FakeClient) PollAndDownloadReport(ctx context.Context, id string, timeout time.Duration) ([]adapter.ReportRow, error) {
	f.record("PollAndDownloadReport")
	f.mu.Lock()
	var req ReportRequest
	idx := reportIndex(id)
	if idx >= 0 && idx < len(f.Requests) {
		req = f.Requests[idx]
	}
	rowsFn := f.ReportRows
	f.mu.Unlock()

	if rowsFn == nil {
		return nil, nil
	}
	return rowsFn(req)
}

// FakeFactory hands out the same client for every account
type FakeFactory struct {
	Client *FakeClient
	Err    error
}

// ForAccount implements adapter.ClientFactory
func (f *FakeFactory) ForAccount(ctx context.Context, account *models.AdAccount) (adapter.AdsClient, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Client, nil
}
