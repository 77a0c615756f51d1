package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is a platform identifier. The platform sends ids as JSON numbers on
// some endpoints and strings on others.
type ID string

// UnmarshalJSON accepts a JSON string or number
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a string
func (id ID) String() string { return string(id) }

// Budget is a campaign budget. Sponsored Products nests it as
// {"budget": 10, "budgetType": "DAILY"}; the other products send a bare number.
type Budget struct {
	Amount     *decimal.Decimal
	BudgetType string
}

// UnmarshalJSON accepts a bare number, a numeric string, or the nested object
func (b *Budget) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var nested struct {
			Budget     *decimal.Decimal `json:"budget"`
			BudgetType string           `json:"budgetType"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return err
		}
		b.Amount = nested.Budget
		b.BudgetType = nested.BudgetType
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("invalid budget %s: %w", data, err)
	}
	b.Amount = &d
	return nil
}

// PlacementBid is one placement multiplier in a campaign's dynamic bidding
type PlacementBid struct {
	Placement  string `json:"placement"`
	Percentage int    `json:"percentage"`
}

// RemoteCampaign is a campaign as returned by the platform
type RemoteCampaign struct {
	CampaignID    ID     `json:"campaignId"`
	Name          string `json:"name"`
	State         string `json:"state"`
	TargetingType string `json:"targetingType"`
	Budget        Budget `json:"budget"`
	// DailyBudget is sent by legacy endpoints instead of Budget
	DailyBudget    *decimal.Decimal `json:"dailyBudget,omitempty"`
	StartDate      string           `json:"startDate"`
	EndDate        string           `json:"endDate"`
	DynamicBidding *struct {
		Strategy         string         `json:"strategy"`
		PlacementBidding []PlacementBid `json:"placementBidding"`
	} `json:"dynamicBidding,omitempty"`

	// CampaignType is set by the client from the endpoint that returned it
	CampaignType string `json:"-"`
}

// RemoteAdGroup is an ad group as returned by the platform
type RemoteAdGroup struct {
	AdGroupID  ID               `json:"adGroupId"`
	CampaignID ID               `json:"campaignId"`
	Name       string           `json:"name"`
	State      string           `json:"state"`
	DefaultBid *decimal.Decimal `json:"defaultBid"`
}

// RemoteKeyword is a keyword as returned by the platform
type RemoteKeyword struct {
	KeywordID   ID               `json:"keywordId"`
	AdGroupID   ID               `json:"adGroupId"`
	CampaignID  ID               `json:"campaignId"`
	KeywordText string           `json:"keywordText"`
	MatchType   string           `json:"matchType"`
	State       string           `json:"state"`
	Bid         *decimal.Decimal `json:"bid"`
}

// TargetExpression is one predicate of a product target
type TargetExpression struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// RemoteProductTarget is a product or category target as returned by the platform
type RemoteProductTarget struct {
	TargetID       ID                 `json:"targetId"`
	AdGroupID      ID                 `json:"adGroupId"`
	CampaignID     ID                 `json:"campaignId"`
	ExpressionType string             `json:"expressionType"`
	Expression     []TargetExpression `json:"expression"`
	State          string             `json:"state"`
	Bid            *decimal.Decimal   `json:"bid"`
}

// ReportRow is one day of metrics for one campaign (or ad group)
type ReportRow struct {
	Date         string          `json:"date"`
	CampaignID   ID              `json:"campaignId"`
	CampaignName string          `json:"campaignName"`
	AdGroupID    ID              `json:"adGroupId,omitempty"`
	Impressions  int64           `json:"impressions"`
	Clicks       int64           `json:"clicks"`
	Cost         decimal.Decimal `json:"cost"`
	Sales        decimal.Decimal `json:"sales14d"`
	Orders       int64           `json:"purchases14d"`

	// Synthetic marks rows generated locally when no report could be fetched
	Synthetic bool `json:"-"`
}
