package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/models"
)

func loanDue(due time.Time) *models.PawnLoan {
	return &models.PawnLoan{CurrentDueDate: due}
}

func TestDueAndForfeitDates(t *testing.T) {
	p := Default()

	created := dates.Day(2024, time.January, 1)
	due := p.DueDate(created)
	assert.Equal(t, dates.Day(2024, time.January, 31), due)

	// 3 months from original due date plus 14 days grace.
	forfeit := p.ForfeitDate(due)
	assert.Equal(t, dates.Day(2024, time.May, 14), forfeit)
}

func TestForfeitDateClampsMonthEnd(t *testing.T) {
	p := Default()
	// Nov 30 + 3 months clamps to Feb 28/29 before the 14-day grace.
	forfeit := p.ForfeitDate(dates.Day(2023, time.November, 30))
	assert.Equal(t, dates.Day(2024, time.February, 29).AddDate(0, 0, 14), forfeit)
}

func TestOverdueAndGrace(t *testing.T) {
	p := Default()
	due := dates.Day(2024, time.March, 10)
	loan := loanDue(due)

	tests := []struct {
		name        string
		asOf        time.Time
		overdue     bool
		daysOverdue int
		inGrace     bool
	}{
		{"before due date", due.AddDate(0, 0, -3), false, 0, true},
		{"on due date", due, false, 0, true},
		{"one day late", due.AddDate(0, 0, 1), true, 1, true},
		{"last grace day", due.AddDate(0, 0, 7), true, 7, true},
		{"past grace", due.AddDate(0, 0, 8), true, 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overdue, p.IsOverdue(loan, tt.asOf))
			assert.Equal(t, tt.daysOverdue, p.DaysOverdue(loan, tt.asOf))
			assert.Equal(t, tt.inGrace, p.WithinGracePeriod(loan, tt.asOf))
		})
	}
}

func TestLateFeeDue(t *testing.T) {
	p := Default()
	due := dates.Day(2024, time.March, 10)
	loan := loanDue(due)

	assert.True(t, p.LateFeeDue(loan, due).IsZero())
	assert.True(t, p.LateFeeDue(loan, due.AddDate(0, 0, 7)).IsZero())

	// Flat fee regardless of how overdue.
	fee := decimal.NewFromInt(10)
	assert.True(t, fee.Equal(p.LateFeeDue(loan, due.AddDate(0, 0, 8))))
	assert.True(t, fee.Equal(p.LateFeeDue(loan, due.AddDate(0, 0, 90))))
}
