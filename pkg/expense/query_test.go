package expense

import (
	"errors"
	"testing"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2024, time.March, 15, 20, 30, 0, 0, jakarta)

	cases := []struct {
		period string
		from   time.Time
	}{
		{PeriodDay, time.Date(2024, time.March, 15, 0, 0, 0, 0, jakarta)},
		{PeriodWeek, now.Add(-7 * 24 * time.Hour)},
		{PeriodMonth, time.Date(2024, time.March, 1, 0, 0, 0, 0, jakarta)},
		{PeriodYear, time.Date(2024, time.January, 1, 0, 0, 0, 0, jakarta)},
		{"fortnight", time.Unix(0, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.period, func(t *testing.T) {
			from, to := PeriodWindow(tc.period, now, jakarta)
			assert.True(t, tc.from.Equal(from), "from %s", from)
			assert.True(t, now.Equal(to))
		})
	}
}

func TestPeriodDayUsesCallerZone(t *testing.T) {
	// 23:30 UTC on the 14th is already the 15th in Jakarta
	now := time.Date(2024, time.March, 14, 23, 30, 0, 0, time.UTC)
	from, _ := PeriodWindow(PeriodDay, now, jakarta)
	assert.True(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, jakarta).Equal(from))
}

func TestBuildFilterPeriodWinsOverDates(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	f, err := BuildFilter(3, Query{Period: "month", StartDate: "2020-01-01", Category: "Food"}, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, uint(3), f.ClientID)
	assert.Equal(t, models.CategoryFood, f.Category)
	require.NotNil(t, f.From)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), *f.From)
	assert.Equal(t, now, *f.To)
}

func TestBuildFilterExplicitRange(t *testing.T) {
	now := time.Now()
	f, err := BuildFilter(1, Query{StartDate: "2024-01-01", EndDate: "2024-01-31T23:59:59Z"}, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.From)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), *f.To)

	f, err = BuildFilter(1, Query{EndDate: "2024-02-01"}, now, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, f.From)
	assert.NotNil(t, f.To)

	f, err = BuildFilter(1, Query{}, now, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, f.From)
	assert.Nil(t, f.To)
	assert.Empty(t, f.Category)
}

func TestBuildFilterReportsEveryBadField(t *testing.T) {
	_, err := BuildFilter(1, Query{Category: "snacks", StartDate: "yesterday", EndDate: "31/01/2024"}, time.Now(), time.UTC)
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	var fields []string
	for _, f := range ve.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"category", "startDate", "endDate"}, fields)
}

func TestPaging(t *testing.T) {
	page, limit, err := Paging(Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultLimit, limit)

	page, limit, err = Paging(Query{Page: "3", Limit: "25"})
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, limit)

	// offsets near the int range are rejected instead of wrapping around
	_, _, err = Paging(Query{Page: "4611686018427387905", Limit: "2"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	for _, q := range []Query{{Page: "0"}, {Page: "x"}, {Limit: "0"}, {Limit: "101"}, {Page: "99999999999999999999"}} {
		_, _, err := Paging(q)
		assert.True(t, errors.Is(err, apperr.ErrValidation), "%+v", q)
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(1, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 3, TotalPages(25, 10))
}
