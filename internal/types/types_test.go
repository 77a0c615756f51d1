package types

import (
	"testing"
)

func TestParseSyncScope(t *testing.T) {
	tests := []struct {
		in      string
		want    SyncScope
		wantErr bool
	}{
		{in: "campaigns", want: ScopeCampaigns},
		{in: "AD_GROUPS", want: ScopeAdGroups},
		{in: " performance ", want: ScopePerformance},
		{in: "full", want: ScopeFull},
		{in: "", want: ScopeFull},
		{in: "keywords", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSyncScope(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSyncScope(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSyncScope(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTierScope(t *testing.T) {
	tests := map[Tier]SyncScope{
		TierHigh:   ScopeCampaigns,
		TierMedium: ScopeAdGroups,
		TierLow:    ScopePerformance,
		TierFull:   ScopeFull,
		TierManual: ScopeFull,
	}
	for tier, want := range tests {
		if got := tier.Scope(); got != want {
			t.Errorf("%s.Scope() = %v, want %v", tier, got, want)
		}
	}
}
