package report

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSplitDateRange_NinetyDays(t *testing.T) {
	window := DateRange{Start: day("2024-01-01"), End: day("2024-03-30")}
	require.Equal(t, 90, window.Days())

	ranges := SplitDateRange(window, 31)
	require.Len(t, ranges, 3)
	assert.Equal(t, 31, ranges[0].Days())
	assert.Equal(t, 31, ranges[1].Days())
	assert.Equal(t, 28, ranges[2].Days())

	assert.Equal(t, "2024-01-01..2024-01-31", ranges[0].String())
	assert.Equal(t, "2024-02-01..2024-03-02", ranges[1].String())
	assert.Equal(t, "2024-03-03..2024-03-30", ranges[2].String())
}

func TestSplitDateRange_EdgeCases(t *testing.T) {
	single := DateRange{Start: day("2024-05-05"), End: day("2024-05-05")}
	assert.Equal(t, []DateRange{single}, SplitDateRange(single, 31))

	fourteen := Window(day("2024-05-15").Add(10*time.Hour), 14)
	ranges := SplitDateRange(fourteen, 31)
	require.Len(t, ranges, 1)
	assert.Equal(t, 14, ranges[0].Days())

	inverted := DateRange{Start: day("2024-05-05"), End: day("2024-05-01")}
	assert.Empty(t, SplitDateRange(inverted, 31))
	assert.Equal(t, 0, inverted.Days())

	assert.Len(t, SplitDateRange(fourteen, 0), 14, "a non-positive span splits per day")
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)
	w := Window(now, 14)
	assert.Equal(t, "2024-06-01..2024-06-14", w.String())
	assert.Equal(t, 14, w.Days())

	assert.Equal(t, 90, Window(now, 90).Days())
	assert.Equal(t, 1, Window(now, 0).Days())
}

func TestSplitDateRange_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := day("2020-01-01")

	properties.Property("sub-ranges are contiguous, bounded and cover the window", prop.ForAll(
		func(offset, length, maxDays int) bool {
			window := DateRange{Start: base.AddDate(0, 0, offset), End: base.AddDate(0, 0, offset+length-1)}
			ranges := SplitDateRange(window, maxDays)
			if len(ranges) == 0 || !ranges[0].Start.Equal(window.Start) || !ranges[len(ranges)-1].End.Equal(window.End) {
				return false
			}
			total := 0
			for i, r := range ranges {
				if r.Days() < 1 || r.Days() > maxDays {
					return false
				}
				if i > 0 && !r.Start.Equal(ranges[i-1].End.AddDate(0, 0, 1)) {
					return false
				}
				total += r.Days()
			}
			return total == window.Days()
		},
		gen.IntRange(0, 2000),
		gen.IntRange(1, 400),
		gen.IntRange(1, 62),
	))

	properties.Property("only the last sub-range may be short", prop.ForAll(
		func(length, maxDays int) bool {
			window := DateRange{Start: base, End: base.AddDate(0, 0, length-1)}
			ranges := SplitDateRange(window, maxDays)
			for _, r := range ranges[:len(ranges)-1] {
				if r.Days() != maxDays {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 400),
		gen.IntRange(1, 62),
	))

	properties.TestingRun(t)
}
