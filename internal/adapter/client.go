// Package adapter defines the advertising platform contract and its HTTP implementation.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/types"
)

// AdsClient is the platform surface the sync engine consumes. One client is
// bound to one account (profile + credentials).
type AdsClient interface {
	// ListCampaigns returns every campaign of one ad product
	ListCampaigns(ctx context.Context, campaignType types.CampaignType) ([]RemoteCampaign, error)

	// ListAdGroups returns every ad group of the account
	ListAdGroups(ctx context.Context) ([]RemoteAdGroup, error)

	// ListKeywords returns every keyword of the account
	ListKeywords(ctx context.Context) ([]RemoteKeyword, error)

	// ListProductTargets returns every product/category target of the account
	ListProductTargets(ctx context.Context) ([]RemoteProductTarget, error)

	// RequestReport starts an asynchronous daily performance report for
	// [start, end] and returns its id
	RequestReport(ctx context.Context, scope types.ReportScope, start, end time.Time) (string, error)

	// PollAndDownloadReport waits up to timeout for the report and returns its rows
	PollAndDownloadReport(ctx context.Context, reportID string, timeout time.Duration) ([]ReportRow, error)
}

// ClientFactory builds an AdsClient for an account
type ClientFactory interface {
	ForAccount(ctx context.Context, account *models.AdAccount) (AdsClient, error)
}

var (
	// ErrReportTimeout is returned when a report is not ready within the poll timeout
	ErrReportTimeout = errors.New("report not ready before timeout")

	// ErrReportFailed is returned when the platform reports a failed report
	ErrReportFailed = errors.New("report generation failed")

	// ErrMissingCredentials is returned for accounts without a token or profile
	ErrMissingCredentials = errors.New("account has no platform credentials")
)
