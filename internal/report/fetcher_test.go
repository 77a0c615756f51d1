package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/adapter/adaptertest"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type staticCampaigns []*models.Campaign

func (c staticCampaigns) ListByAccount(ctx context.Context, accountID string) ([]*models.Campaign, error) {
	return c, nil
}

func newTestFetcher(cfg Config, synthetic *SyntheticGenerator) (*Fetcher, *recordingSleep) {
	f := NewFetcher(cfg, synthetic)
	s := &recordingSleep{}
	f.SetSleep(s.sleep)
	return f, s
}

func rowFor(req adaptertest.ReportRequest) []adapter.ReportRow {
	return []adapter.ReportRow{{
		Date:        req.Start.Format(dayLayout),
		CampaignID:  "111",
		Impressions: 1,
		Cost:        decimal.NewFromInt(1),
	}}
}

func TestFetcher_RequestsEachSubRangeWithPause(t *testing.T) {
	client := adaptertest.NewFakeClient()
	client.ReportRows = func(req adaptertest.ReportRequest) ([]adapter.ReportRow, error) {
		return rowFor(req), nil
	}
	f, sleeper := newTestFetcher(Config{MaxDaysPerRequest: 31, RequestPause: 2 * time.Second}, nil)

	window := DateRange{Start: day("2024-01-01"), End: day("2024-03-30")}
	result, err := f.Fetch(context.Background(), client, "acct", window)
	require.NoError(t, err)

	require.Len(t, client.Requests, 3)
	assert.True(t, client.Requests[0].Start.Equal(day("2024-01-01")))
	assert.True(t, client.Requests[2].End.Equal(day("2024-03-30")))
	assert.Len(t, result.Rows, 3)
	assert.Empty(t, result.Failed)
	assert.False(t, result.Synthetic)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.delays, "pause between requests, not before the first")
}

func TestFetcher_SkipsFailedSubRange(t *testing.T) {
	client := adaptertest.NewFakeClient()
	client.ReportRows = func(req adaptertest.ReportRequest) ([]adapter.ReportRow, error) {
		if req.Start.Equal(day("2024-02-01")) {
			return nil, adapter.ErrReportTimeout
		}
		return rowFor(req), nil
	}
	f, _ := newTestFetcher(Config{MaxDaysPerRequest: 31}, nil)

	result, err := f.Fetch(context.Background(), client, "acct", DateRange{Start: day("2024-01-01"), End: day("2024-03-30")})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "2024-02-01..2024-03-02", result.Failed[0].String())
}

func TestFetcher_AuthErrorAborts(t *testing.T) {
	client := adaptertest.NewFakeClient()
	client.ErrRequest = apperrors.NewAuthError(401, "invalid_grant")
	f, _ := newTestFetcher(Config{MaxDaysPerRequest: 31}, nil)

	_, err := f.Fetch(context.Background(), client, "acct", Window(time.Now(), 90))
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Equal(t, 1, client.CallCount("RequestReport"))
}

func TestFetcher_ContextCancelled(t *testing.T) {
	client := adaptertest.NewFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client.ErrRequest = context.Canceled
	f, _ := newTestFetcher(Config{MaxDaysPerRequest: 31}, nil)

	_, err := f.Fetch(ctx, client, "acct", Window(time.Now(), 14))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_SyntheticFallback(t *testing.T) {
	campaigns := staticCampaigns{{CampaignID: "111", Name: "Brand"}, {CampaignID: "222", Name: "Generic"}}
	failing := func() *adaptertest.FakeClient {
		c := adaptertest.NewFakeClient()
		c.ReportRows = func(adaptertest.ReportRequest) ([]adapter.ReportRow, error) {
			return nil, errors.New("report failed")
		}
		return c
	}
	window := DateRange{Start: day("2024-06-01"), End: day("2024-06-14")}

	t.Run("disabled by default", func(t *testing.T) {
		f, _ := newTestFetcher(Config{}, NewSyntheticGenerator(campaigns))
		result, err := f.Fetch(context.Background(), failing(), "acct", window)
		require.NoError(t, err)
		assert.Empty(t, result.Rows)
		assert.False(t, result.Synthetic)
	})

	t.Run("enabled", func(t *testing.T) {
		f, _ := newTestFetcher(Config{SyntheticFallback: true}, NewSyntheticGenerator(campaigns))
		result, err := f.Fetch(context.Background(), failing(), "acct", window)
		require.NoError(t, err)
		assert.True(t, result.Synthetic)
		require.Len(t, result.Rows, 28)
		for _, r := range result.Rows {
			assert.True(t, r.Synthetic)
			assert.GreaterOrEqual(t, r.Clicks, r.Orders)
			assert.GreaterOrEqual(t, r.Impressions, r.Clicks)
		}
	})

	t.Run("not used when some ranges succeeded", func(t *testing.T) {
		client := adaptertest.NewFakeClient()
		client.ReportRows = func(req adaptertest.ReportRequest) ([]adapter.ReportRow, error) {
			if req.Start.Equal(day("2024-01-01")) {
				return nil, errors.New("report failed")
			}
			return rowFor(req), nil
		}
		f, _ := newTestFetcher(Config{SyntheticFallback: true}, NewSyntheticGenerator(campaigns))
		result, err := f.Fetch(context.Background(), client, "acct", DateRange{Start: day("2024-01-01"), End: day("2024-03-30")})
		require.NoError(t, err)
		assert.False(t, result.Synthetic)
		assert.Len(t, result.Rows, 2)
	})
}

func TestSyntheticRowsAreDeterministic(t *testing.T) {
	c := &models.Campaign{CampaignID: "111", Name: "Brand"}
	a := syntheticRow(c, "2024-06-01")
	b := syntheticRow(c, "2024-06-01")
	assert.Equal(t, a, b)
	assert.Equal(t, adapter.ID("111"), a.CampaignID)
}
