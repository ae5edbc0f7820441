package daterange

import (
	"strconv"
	"testing"
	"time"

	"CriteriaManager/util/query_error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 30, 0, 0, time.UTC)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOf(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
}

func TestResolveFixedKeywords(t *testing.T) {
	// Wednesday
	ref := at(2024, time.May, 15, 14)

	tests := []struct {
		keyword string
		start   time.Time
		end     time.Time
	}{
		{"today", date(2024, 5, 15), endOf(2024, 5, 15)},
		{"yesterday", date(2024, 5, 14), endOf(2024, 5, 14)},
		{"tomorrow", date(2024, 5, 16), endOf(2024, 5, 16)},
		{"next_day", date(2024, 5, 16), endOf(2024, 5, 16)},
		{"this_week", date(2024, 5, 13), endOf(2024, 5, 19)},
		{"last_week", date(2024, 5, 6), endOf(2024, 5, 12)},
		{"next_week", date(2024, 5, 20), endOf(2024, 5, 26)},
		{"this_month", date(2024, 5, 1), endOf(2024, 5, 31)},
		{"last_month", date(2024, 4, 1), endOf(2024, 4, 30)},
		{"next_month", date(2024, 6, 1), endOf(2024, 6, 30)},
		{"this_quarter", date(2024, 4, 1), endOf(2024, 6, 30)},
		{"last_quarter", date(2024, 1, 1), endOf(2024, 3, 31)},
		{"next_quarter", date(2024, 7, 1), endOf(2024, 9, 30)},
		{"this_year", date(2024, 1, 1), endOf(2024, 12, 31)},
		{"last_year", date(2023, 1, 1), endOf(2023, 12, 31)},
		{"next_year", date(2025, 1, 1), endOf(2025, 12, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			r, err := Resolve(tt.keyword, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}
}

func TestResolveYearBoundaries(t *testing.T) {
	jan := at(2025, time.January, 10, 9)

	r, err := Resolve("last_month", jan)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 12, 1), r.Start)
	assert.Equal(t, endOf(2024, 12, 31), r.End)

	r, err = Resolve("last_quarter", jan)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 10, 1), r.Start)
	assert.Equal(t, endOf(2024, 12, 31), r.End)

	dec := at(2024, time.December, 20, 9)
	r, err = Resolve("next_quarter", dec)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 1, 1), r.Start)
	assert.Equal(t, endOf(2025, 3, 31), r.End)

	r, err = Resolve("next_month", dec)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 1, 1), r.Start)
	assert.Equal(t, endOf(2025, 1, 31), r.End)

	// 跨年的周
	r, err = Resolve("this_week", at(2025, time.January, 1, 9))
	require.NoError(t, err)
	assert.Equal(t, date(2024, 12, 30), r.Start)
	assert.Equal(t, endOf(2025, 1, 5), r.End)
}

func TestResolveLeapYear(t *testing.T) {
	r, err := Resolve("this_month", at(2024, time.February, 10, 8))
	require.NoError(t, err)
	assert.Equal(t, endOf(2024, 2, 29), r.End)

	r, err = Resolve("last_month", at(2023, time.March, 31, 8))
	require.NoError(t, err)
	assert.Equal(t, date(2023, 2, 1), r.Start)
	assert.Equal(t, endOf(2023, 2, 28), r.End)

	r, err = Resolve("yesterday", at(2024, time.March, 1, 8))
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 29), r.Start)
}

func TestResolveRelativeDays(t *testing.T) {
	ref := at(2024, time.March, 3, 16)

	for _, n := range []int{0, 1, 7, 30, 365} {
		r, err := Resolve("last_"+strconv.Itoa(n)+"_days", ref)
		require.NoError(t, err)
		assert.Equal(t, n+1, r.Days())
		assert.Equal(t, endOf(2024, 3, 3), r.End)
	}

	r, err := Resolve("last_30_days", ref)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 2), r.Start)

	r, err = Resolve("next_7_days", ref)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 3), r.Start)
	assert.Equal(t, endOf(2024, 3, 10), r.End)
}

func TestResolveProperties(t *testing.T) {
	refs := []time.Time{
		at(2024, time.February, 29, 0),
		at(2024, time.December, 31, 23),
		at(2025, time.January, 1, 0),
		at(2023, time.June, 18, 12),
	}
	kws := append(Keywords(), "last_90_days", "next_3_days")

	for _, ref := range refs {
		for _, kw := range kws {
			first, err := Resolve(kw, ref)
			require.NoError(t, err, kw)
			second, err := Resolve(kw, ref)
			require.NoError(t, err, kw)

			assert.Equal(t, first, second, kw)
			assert.False(t, first.End.Before(first.Start), kw)
			assert.Equal(t, 23, first.End.Hour(), kw)
			assert.Equal(t, 999999999, first.End.Nanosecond(), kw)
		}

		week, err := Resolve("this_week", ref)
		require.NoError(t, err)
		assert.Equal(t, time.Monday, week.Start.Weekday())
		assert.Equal(t, 7, week.Days())
		assert.True(t, week.Contains(ref))
	}
}

func TestResolveConfiguredWeekStart(t *testing.T) {
	r := NewResolver(time.Sunday)
	week, err := r.Resolve("this_week", at(2024, time.May, 15, 10))
	require.NoError(t, err)
	assert.Equal(t, date(2024, 5, 12), week.Start)
	assert.Equal(t, endOf(2024, 5, 18), week.End)
	assert.Equal(t, 7, week.Days())
}

func TestResolveInvalidKeyword(t *testing.T) {
	for _, kw := range []string{"", "someday", "last_x_days", "last_days", "this_decade"} {
		_, err := Resolve(kw, time.Now())
		require.Error(t, err, kw)

		kind, ok := query_error.KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, query_error.InvalidDateRangeKeyword, kind)
		assert.False(t, IsKeyword(kw))
	}
	assert.True(t, IsKeyword("last_14_days"))
	assert.True(t, IsKeyword("this_quarter"))
}

func TestDayBounds(t *testing.T) {
	r := DayBounds(at(2024, time.July, 4, 18))
	assert.Equal(t, date(2024, 7, 4), r.Start)
	assert.Equal(t, endOf(2024, 7, 4), r.End)
}
