package conflict

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestDetectConflict(t *testing.T) {
	fields := []string{"dailyBudget", "state", "endDate"}
	tests := []struct {
		name   string
		local  map[string]any
		remote map[string]any
		want   []string
	}{
		{
			name:   "identical",
			local:  map[string]any{"dailyBudget": "10.00", "state": "enabled"},
			remote: map[string]any{"dailyBudget": "10.00", "state": "enabled"},
		},
		{
			name:   "budget differs",
			local:  map[string]any{"dailyBudget": "10", "state": "enabled"},
			remote: map[string]any{"dailyBudget": "12.5", "state": "enabled"},
			want:   []string{"dailyBudget"},
		},
		{
			name:   "zero local budget is not authoritative",
			local:  map[string]any{"dailyBudget": "0.00", "state": "paused"},
			remote: map[string]any{"dailyBudget": "25", "state": "enabled"},
			want:   []string{"state"},
		},
		{
			name:   "missing remote field skipped",
			local:  map[string]any{"endDate": "2026-01-31"},
			remote: map[string]any{},
		},
		{
			name:   "whitespace ignored",
			local:  map[string]any{"state": " enabled "},
			remote: map[string]any{"state": "enabled"},
		},
		{
			name:   "fields outside whitelist ignored",
			local:  map[string]any{"name": "a"},
			remote: map[string]any{"name": "b"},
		},
		{
			name:   "decimal values",
			local:  map[string]any{"dailyBudget": decimal.RequireFromString("5")},
			remote: map[string]any{"dailyBudget": "6"},
			want:   []string{"dailyBudget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectConflict(tt.local, tt.remote, fields)
			if got.HasConflict != (len(tt.want) > 0) {
				t.Errorf("HasConflict = %v, want %v", got.HasConflict, len(tt.want) > 0)
			}
			if !reflect.DeepEqual(got.ConflictFields, tt.want) {
				t.Errorf("ConflictFields = %v, want %v", got.ConflictFields, tt.want)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	empty := []any{nil, "", "  ", "0", "0.00", "0.0", "-0", decimal.Zero}
	for _, v := range empty {
		if !IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = false, want true", v)
		}
	}
	nonEmpty := []any{"enabled", "0.01", "-1", 3, "20260101"}
	for _, v := range nonEmpty {
		if IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = true, want false", v)
		}
	}
}

func TestDetectConflictProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	fields := []string{"a", "b", "c"}

	properties.Property("a record never conflicts with itself", prop.ForAll(
		func(a, b, c string) bool {
			rec := map[string]any{"a": a, "b": b, "c": c}
			return !DetectConflict(rec, rec, fields).HasConflict
		},
		gen.AlphaString(), gen.AlphaString(), gen.NumString(),
	))

	properties.Property("empty local side never conflicts", prop.ForAll(
		func(a, b, c string) bool {
			local := map[string]any{"a": "", "b": nil, "c": "0.00"}
			remote := map[string]any{"a": a, "b": b, "c": c}
			return !DetectConflict(local, remote, fields).HasConflict
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("detection is symmetric", prop.ForAll(
		func(l, r string) bool {
			local := map[string]any{"a": l}
			remote := map[string]any{"a": r}
			return reflect.DeepEqual(
				DetectConflict(local, remote, fields),
				DetectConflict(remote, local, fields),
			)
		},
		gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("conflict fields are a subset of the whitelist", prop.ForAll(
		func(l, r string) bool {
			res := DetectConflict(map[string]any{"a": l, "z": l}, map[string]any{"a": r, "z": r + "x"}, fields)
			for _, f := range res.ConflictFields {
				if f == "z" {
					return false
				}
			}
			return res.HasConflict == (len(res.ConflictFields) > 0)
		},
		gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
