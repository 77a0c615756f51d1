package adapter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (AdsClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	factory := NewHTTPClientFactory(HTTPClientConfig{
		BaseURL:           server.URL,
		ClientID:          "client-1",
		RequestsPerSecond: 1000,
		PollInterval:      10 * time.Millisecond,
	})
	client, err := factory.ForAccount(context.Background(), &models.AdAccount{
		ID:          "acct-1",
		ProfileID:   "profile-9",
		AccessToken: "tok",
	})
	require.NoError(t, err)
	return client, server
}

func TestForAccount_MissingCredentials(t *testing.T) {
	factory := NewHTTPClientFactory(HTTPClientConfig{BaseURL: "http://localhost"})
	_, err := factory.ForAccount(context.Background(), &models.AdAccount{ID: "a", ProfileID: "p"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestListCampaigns_FollowsPagination(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v3/sp/campaigns", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "client-1", r.Header.Get("Amazon-Advertising-API-ClientId"))
		assert.Equal(t, "profile-9", r.Header.Get("Amazon-Advertising-API-Scope"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("nextToken") == "" {
			_, _ = w.Write([]byte(`{"campaigns":[{"campaignId":111,"name":"A","state":"ENABLED","budget":{"budget":12.5,"budgetType":"DAILY"}}],"nextToken":"p2"}`))
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("nextToken"))
		_, _ = w.Write([]byte(`{"campaigns":[{"campaignId":"222","name":"B","state":"paused","budget":7}]}`))
	}))

	campaigns, err := client.ListCampaigns(context.Background(), types.CampaignSponsoredProducts)
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	assert.Equal(t, ID("111"), campaigns[0].CampaignID)
	assert.True(t, campaigns[0].Budget.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "DAILY", campaigns[0].Budget.BudgetType)
	assert.Equal(t, "sp", campaigns[0].CampaignType)

	assert.Equal(t, ID("222"), campaigns[1].CampaignID)
	assert.True(t, campaigns[1].Budget.Amount.Equal(decimal.NewFromInt(7)))
}

func TestList_Unauthorized(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED"}`))
	}))

	_, err := client.ListAdGroups(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "auth errors are not retried")
}

func TestList_RateLimitedCarriesRetryAfter(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.ListKeywords(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimit(err))
	assert.Equal(t, 7*time.Second, apperrors.Categorize(err).RetryAfter())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "rate limits are left to the queue")
}

func TestList_HTMLBodyIsUpstreamProxy(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Bad Gateway</body></html>"))
	}))

	_, err := client.ListProductTargets(context.Background())
	require.Error(t, err)
	var catErr *apperrors.CategorizedError
	require.True(t, errors.As(err, &catErr))
	assert.Equal(t, apperrors.CategoryUpstreamProxy, catErr.Category)
}

func TestList_TransientErrorIsRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"targetingClauses":[{"targetId":5,"adGroupId":6,"campaignId":7,"expressionType":"MANUAL","expression":[{"type":"ASIN_SAME_AS","value":"B000"}],"state":"ENABLED","bid":0.75}]}`))
	}))

	targets, err := client.ListProductTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, ID("6"), targets[0].AdGroupID)
	assert.Equal(t, "B000", targets[0].Expression[0].Value)
}

func gzipJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReport_RequestPollDownload(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	var serverURL string

	mux.HandleFunc("/reporting/reports", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req reportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2024-01-01", req.StartDate)
		assert.Equal(t, "2024-01-31", req.EndDate)
		assert.Equal(t, "DAILY", req.Configuration.TimeUnit)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reportId":"r-1","status":"PENDING"}`))
	})
	mux.HandleFunc("/reporting/reports/r-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&polls, 1) < 3 {
			_, _ = w.Write([]byte(`{"reportId":"r-1","status":"PROCESSING"}`))
			return
		}
		_, _ = w.Write([]byte(`{"reportId":"r-1","status":"COMPLETED","url":"` + serverURL + `/download/r-1"}`))
	})
	mux.HandleFunc("/download/r-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "download urls are pre-signed")
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(gzipJSON(t, []map[string]any{
			{"date": "2024-01-02", "campaignId": 111, "campaignName": "A", "impressions": 100, "clicks": 4, "cost": 3.5, "sales14d": 20, "purchases14d": 1},
		}))
	})

	client, server := newTestClient(t, mux)
	serverURL = server.URL

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	id, err := client.RequestReport(context.Background(), types.ReportScopeCampaign, start, end)
	require.NoError(t, err)
	assert.Equal(t, "r-1", id)

	rows, err := client.PollAndDownloadReport(context.Background(), id, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ID("111"), rows[0].CampaignID)
	assert.Equal(t, int64(100), rows[0].Impressions)
	assert.True(t, rows[0].Cost.Equal(decimal.RequireFromString("3.5")))
	assert.True(t, rows[0].Sales.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int64(1), rows[0].Orders)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestReport_PollTimeout(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reportId":"r-2","status":"PENDING"}`))
	}))

	_, err := client.PollAndDownloadReport(context.Background(), "r-2", 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrReportTimeout)
}

func TestReport_Failed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reportId":"r-3","status":"FAILED","failureReason":"bad columns"}`))
	}))

	_, err := client.PollAndDownloadReport(context.Background(), "r-3", time.Second)
	assert.ErrorIs(t, err, ErrReportFailed)
}

func TestCountsAsOutage(t *testing.T) {
	assert.True(t, CountsAsOutage(apperrors.NewTransientError(503, "down", nil)))
	assert.True(t, CountsAsOutage(apperrors.NewUpstreamProxyError(200, "text/html", "<html>")))
	assert.False(t, CountsAsOutage(apperrors.NewAuthError(401, "expired")))
	assert.False(t, CountsAsOutage(apperrors.NewRateLimitError(time.Second)))
	assert.False(t, CountsAsOutage(apperrors.NewDataError("campaign", "1", "bad")))
}
