package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"plain month step", Day(2024, time.March, 15), 1, Day(2024, time.April, 15)},
		{"jan 31 clamps to feb 29 in leap year", Day(2024, time.January, 31), 1, Day(2024, time.February, 29)},
		{"jan 31 clamps to feb 28 in non-leap year", Day(2025, time.January, 31), 1, Day(2025, time.February, 28)},
		{"may 31 clamps to jun 30", Day(2024, time.May, 31), 1, Day(2024, time.June, 30)},
		{"december rolls into next year", Day(2024, time.December, 10), 1, Day(2025, time.January, 10)},
		{"multi-month year rollover", Day(2024, time.November, 30), 3, Day(2025, time.February, 28)},
		{"zero months is identity", Day(2024, time.July, 4), 0, Day(2024, time.July, 4)},
		{"twelve months", Day(2024, time.February, 29), 12, Day(2025, time.February, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.in, tt.n))
		})
	}
}

func TestAddMonthsDropsTimeOfDay(t *testing.T) {
	in := time.Date(2024, time.March, 15, 17, 30, 0, 0, time.FixedZone("X", 3600))
	got := AddMonths(in, 1)
	assert.Equal(t, Day(2024, time.April, 15), got)
}

func TestMonthsBetween(t *testing.T) {
	orig := Day(2024, time.January, 31)
	assert.Equal(t, 0, MonthsBetween(orig, orig))
	assert.Equal(t, 1, MonthsBetween(orig, AddMonths(orig, 1)))
	assert.Equal(t, 13, MonthsBetween(orig, AddMonths(orig, 13)))
	// Clamped results still count as whole months.
	assert.Equal(t, 1, MonthsBetween(orig, Day(2024, time.February, 29)))
}

func TestDaysBetween(t *testing.T) {
	a := Day(2024, time.February, 27)
	assert.Equal(t, 3, DaysBetween(a, Day(2024, time.March, 1)))
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, -2, DaysBetween(a, Day(2024, time.February, 25)))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, time.June, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, time.June, 1, 0, 1, 0, 0, time.UTC)
	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, b.AddDate(0, 0, 1)))
}
