// Package conflict compares local and freshly fetched remote records.
package conflict

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Result is the outcome of DetectConflict
type Result struct {
	HasConflict    bool
	ConflictFields []string
}

// DetectConflict compares local and remote on fields. A field that is empty on
// either side is not authoritative and never conflicts. Other values are
// compared as trimmed strings. Fields are reported in the order given.
func DetectConflict(local, remote map[string]any, fields []string) Result {
	var conflicting []string
	for _, field := range fields {
		lv, rv := local[field], remote[field]
		if IsEmpty(lv) || IsEmpty(rv) {
			continue
		}
		if stringify(lv) != stringify(rv) {
			conflicting = append(conflicting, field)
		}
	}
	return Result{
		HasConflict:    len(conflicting) > 0,
		ConflictFields: conflicting,
	}
}

// IsEmpty reports whether v is nil, blank, or a zero-valued number
// ("0", "0.00", "-0").
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s := stringify(v)
	if s == "" {
		return true
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.IsZero()
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case *string:
		if t == nil {
			return ""
		}
		return strings.TrimSpace(*t)
	case decimal.Decimal:
		return t.String()
	case *decimal.Decimal:
		if t == nil {
			return ""
		}
		return t.String()
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
