package adapter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ads-sync/internal/circuitbreaker"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/logging"
	"github.com/ads-sync/internal/metrics"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/ratelimit"
	"github.com/ads-sync/internal/retry"
	"github.com/ads-sync/internal/types"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 20

// HTTPClientConfig configures the platform HTTP client
type HTTPClientConfig struct {
	BaseURL           string
	ClientID          string
	Timeout           time.Duration
	RequestsPerSecond float64
	PollInterval      time.Duration
	// Waiter enforces the Redis-backed cross-process budget. Optional.
	Waiter *ratelimit.Waiter
	// Breakers isolates failing profiles. Optional.
	Breakers *circuitbreaker.Manager
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// HTTPClientFactory builds per-account clients sharing one limiter, budget and breaker set
type HTTPClientFactory struct {
	baseURL      string
	clientID     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	waiter       *ratelimit.Waiter
	breakers     *circuitbreaker.Manager
	pollInterval time.Duration
}

// NewHTTPClientFactory creates a factory
func NewHTTPClientFactory(cfg HTTPClientConfig) *HTTPClientFactory {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.Config{
			MaxConsecutiveFailures: 5,
			Cooldown:               time.Minute,
			IsFailure:              CountsAsOutage,
		})
	}

	return &HTTPClientFactory{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		waiter:       cfg.Waiter,
		breakers:     breakers,
		pollInterval: pollInterval,
	}
}

// ForAccount returns a client bound to the account's profile and token
func (f *HTTPClientFactory) ForAccount(ctx context.Context, account *models.AdAccount) (AdsClient, error) {
	if account.AccessToken == "" || account.ProfileID == "" {
		return nil, fmt.Errorf("account %s: %w", account.ID, ErrMissingCredentials)
	}
	return &httpClient{
		factory:   f,
		profileID: account.ProfileID,
		token:     account.AccessToken,
		breaker:   f.breakers.For(account.ProfileID),
	}, nil
}

// BreakerStats exposes per-profile breaker state for the status API
func (f *HTTPClientFactory) BreakerStats() map[string]*circuitbreaker.Stats {
	return f.breakers.AllStats()
}

// CountsAsOutage reports whether err should trip a profile's circuit breaker.
// Auth, throttling and validation errors are answers from a healthy platform.
func CountsAsOutage(err error) bool {
	catErr := apperrors.Categorize(err)
	switch catErr.Category {
	case apperrors.CategoryTransient, apperrors.CategoryUpstreamProxy, apperrors.CategoryInternal:
		return true
	default:
		return false
	}
}

type httpClient struct {
	factory   *HTTPClientFactory
	profileID string
	token     string
	breaker   *circuitbreaker.CircuitBreaker
}

// do sends one platform request and returns the body of a 2xx JSON response.
// Transient failures are retried briefly; rate limits are surfaced to the queue.
func (c *httpClient) do(ctx context.Context, endpoint ratelimit.Endpoint, method, rawURL string, payload any, authed bool) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = b
	}

	var body []byte
	err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
		if err := c.factory.limiter.Wait(ctx); err != nil {
			return err
		}
		if c.factory.waiter != nil {
			if err := c.factory.waiter.Wait(ctx, c.profileID, endpoint); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return apperrors.NewRateLimitError(0)
			}
		}
		return c.breaker.Execute(ctx, func() error {
			start := time.Now()
			b, err := c.send(ctx, method, rawURL, reqBody, authed)
			metrics.RecordPlatformRequest(string(endpoint), resultLabel(err), time.Since(start))
			body = b
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *httpClient) send(ctx context.Context, method, rawURL string, reqBody []byte, authed bool) ([]byte, error) {
	var reader io.Reader
	if reqBody != nil {
		reader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Amazon-Advertising-API-ClientId", c.factory.clientID)
		req.Header.Set("Amazon-Advertising-API-Scope", c.profileID)
	}

	resp, err := c.factory.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewTransientError(0, "platform request failed", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, apperrors.NewTransientError(resp.StatusCode, "failed to read platform response", err)
	}

	if catErr := classify(resp, body); catErr != nil {
		return nil, catErr
	}
	return body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, maxBodyBytes))
	}
	return raw, nil
}

// classify maps a response to a categorized error, or nil for a usable JSON body
func classify(resp *http.Response, body []byte) *apperrors.CategorizedError {
	status := resp.StatusCode
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return apperrors.FromHTTPStatus(status, resp.Header, body)
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		return apperrors.NewUpstreamProxyError(status, resp.Header.Get("Content-Type"), snippet(body))
	}
	return apperrors.FromHTTPStatus(status, resp.Header, body)
}

func looksLikeHTML(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] == '<' {
		return true
	}
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "octet-stream") && !strings.Contains(ct, "gzip") {
		return trimmed[0] != '{' && trimmed[0] != '['
	}
	return false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.Categorize(err).Category)
}

func (c *httpClient) url(path string, query url.Values) string {
	u := c.factory.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// listAll follows nextToken pagination, decoding each page's items under key
func listAll[T any](ctx context.Context, c *httpClient, path, key string) ([]T, error) {
	var all []T
	nextToken := ""
	for {
		query := url.Values{}
		if nextToken != "" {
			query.Set("nextToken", nextToken)
		}
		body, err := c.do(ctx, ratelimit.EndpointList, http.MethodGet, c.url(path, query), nil, true)
		if err != nil {
			return nil, err
		}

		var page map[string]json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, apperrors.NewDataError(key, path, fmt.Sprintf("undecodable page: %v", err))
		}
		var items []T
		if raw, ok := page[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, apperrors.NewDataError(key, path, fmt.Sprintf("undecodable items: %v", err))
			}
		}
		all = append(all, items...)

		nextToken = ""
		if raw, ok := page["nextToken"]; ok {
			_ = json.Unmarshal(raw, &nextToken)
		}
		if nextToken == "" {
			return all, nil
		}
	}
}

// ListCampaigns implements AdsClient
func (c *httpClient) ListCampaigns(ctx context.Context, campaignType types.CampaignType) ([]RemoteCampaign, error) {
	campaigns, err := listAll[RemoteCampaign](ctx, c, fmt.Sprintf("/v3/%s/campaigns", campaignType), "campaigns")
	if err != nil {
		return nil, fmt.Errorf("list %s campaigns: %w", campaignType, err)
	}
	for i := range campaigns {
		campaigns[i].CampaignType = string(campaignType)
	}
	return campaigns, nil
}

// ListAdGroups implements AdsClient
func (c *httpClient) ListAdGroups(ctx context.Context) ([]RemoteAdGroup, error) {
	groups, err := listAll[RemoteAdGroup](ctx, c, "/v3/sp/adGroups", "adGroups")
	if err != nil {
		return nil, fmt.Errorf("list ad groups: %w", err)
	}
	return groups, nil
}

// ListKeywords implements AdsClient
func (c *httpClient) ListKeywords(ctx context.Context) ([]RemoteKeyword, error) {
	keywords, err := listAll[RemoteKeyword](ctx, c, "/v3/sp/keywords", "keywords")
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	return keywords, nil
}

// ListProductTargets implements AdsClient
func (c *httpClient) ListProductTargets(ctx context.Context) ([]RemoteProductTarget, error) {
	targets, err := listAll[RemoteProductTarget](ctx, c, "/v3/sp/targets", "targetingClauses")
	if err != nil {
		return nil, fmt.Errorf("list product targets: %w", err)
	}
	return targets, nil
}

type reportRequest struct {
	Name          string              `json:"name"`
	StartDate     string              `json:"startDate"`
	EndDate       string              `json:"endDate"`
	Configuration reportConfiguration `json:"configuration"`
}

type reportConfiguration struct {
	AdProduct    string   `json:"adProduct"`
	GroupBy      []string `json:"groupBy"`
	Columns      []string `json:"columns"`
	ReportTypeID string   `json:"reportTypeId"`
	TimeUnit     string   `json:"timeUnit"`
	Format       string   `json:"format"`
}

type reportStatus struct {
	ReportID      string `json:"reportId"`
	Status        string `json:"status"`
	URL           string `json:"url"`
	FailureReason string `json:"failureReason"`
}

// RequestReport implements AdsClient
func (c *httpClient) RequestReport(ctx context.Context, scope types.ReportScope, start, end time.Time) (string, error) {
	columns := []string{"date", "campaignId", "campaignName", "impressions", "clicks", "cost", "sales14d", "purchases14d"}
	groupBy := []string{"campaign"}
	reportType := "spCampaigns"
	if scope == types.ReportScopeAdGroup {
		columns = append(columns, "adGroupId")
		groupBy = []string{"campaign", "adGroup"}
	}

	req := reportRequest{
		Name:      fmt.Sprintf("%s %s..%s", scope, start.Format("2006-01-02"), end.Format("2006-01-02")),
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
		Configuration: reportConfiguration{
			AdProduct:    "SPONSORED_PRODUCTS",
			GroupBy:      groupBy,
			Columns:      columns,
			ReportTypeID: reportType,
			TimeUnit:     "DAILY",
			Format:       "GZIP_JSON",
		},
	}

	body, err := c.do(ctx, ratelimit.EndpointReportRequest, http.MethodPost, c.url("/reporting/reports", nil), req, true)
	if err != nil {
		return "", fmt.Errorf("request report: %w", err)
	}

	var status reportStatus
	if err := json.Unmarshal(body, &status); err != nil || status.ReportID == "" {
		return "", apperrors.NewDataError("report", "", "response has no reportId")
	}
	return status.ReportID, nil
}

// PollAndDownloadReport implements AdsClient
func (c *httpClient) PollAndDownloadReport(ctx context.Context, reportID string, timeout time.Duration) ([]ReportRow, error) {
	logger := logging.FromContext(ctx).WithField("report_id", reportID)
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.factory.pollInterval)
	defer ticker.Stop()

	for {
		body, err := c.do(pollCtx, ratelimit.EndpointReportStatus, http.MethodGet, c.url("/reporting/reports/"+url.PathEscape(reportID), nil), nil, true)
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("report %s: %w", reportID, ErrReportTimeout)
			}
			return nil, fmt.Errorf("poll report %s: %w", reportID, err)
		}

		var status reportStatus
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, apperrors.NewDataError("report", reportID, "undecodable status")
		}

		switch strings.ToUpper(status.Status) {
		case "COMPLETED", "SUCCESS":
			return c.download(ctx, reportID, status.URL)
		case "FAILED", "FAILURE", "CANCELLED":
			return nil, fmt.Errorf("report %s: %s: %w", reportID, status.FailureReason, ErrReportFailed)
		}
		logger.Debugf("Report status %s, polling again", status.Status)

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("report %s: %w", reportID, ErrReportTimeout)
		case <-ticker.C:
		}
	}
}

func (c *httpClient) download(ctx context.Context, reportID, location string) ([]ReportRow, error) {
	if location == "" {
		return nil, apperrors.NewDataError("report", reportID, "completed report has no download url")
	}
	body, err := c.do(ctx, ratelimit.EndpointReportDownload, http.MethodGet, location, nil, false)
	if err != nil {
		return nil, fmt.Errorf("download report %s: %w", reportID, err)
	}

	var rows []ReportRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, apperrors.NewDataError("report", reportID, fmt.Sprintf("undecodable rows: %v", err))
	}
	return rows, nil
}
