// Package policy holds the store's loan policy constants and the pure
// overdue/grace/late-fee rules derived from them.
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/models"
)

const (
	defaultLoanTermDays     = 30
	defaultGraceDays        = 7
	defaultForfeitMonths    = 3
	defaultForfeitGraceDays = 14
)

// Policy is the store's loan policy. The late fee is the only value stores
// commonly adjust; the rest default to the standard terms.
type Policy struct {
	LoanTermDays     int             // initial term, due date = pawn date + term
	GraceDays        int             // days past due before the late fee applies
	ForfeitMonths    int             // months from original due date to forfeiture threshold
	ForfeitGraceDays int             // extra grace added to the forfeiture threshold
	LateFee          decimal.Decimal // flat fee, not prorated
}

// Default returns the standard store policy: 30-day term, 7-day grace,
// forfeiture at 3 months + 14 days, $10 flat late fee.
func Default() Policy {
	return Policy{
		LoanTermDays:     defaultLoanTermDays,
		GraceDays:        defaultGraceDays,
		ForfeitMonths:    defaultForfeitMonths,
		ForfeitGraceDays: defaultForfeitGraceDays,
		LateFee:          decimal.NewFromInt(10),
	}
}

// DueDate computes the initial due date for a loan created on the given day.
func (p Policy) DueDate(createdDate time.Time) time.Time {
	return dates.Truncate(createdDate).AddDate(0, 0, p.LoanTermDays)
}

// ForfeitDate computes the final forfeiture cutoff from the original due
// date. Fixed once at creation; never recalculated after renewals.
func (p Policy) ForfeitDate(originalDueDate time.Time) time.Time {
	return dates.AddMonths(originalDueDate, p.ForfeitMonths).AddDate(0, 0, p.ForfeitGraceDays)
}

// IsOverdue reports whether the loan is past its current due date.
func (p Policy) IsOverdue(loan *models.PawnLoan, asOf time.Time) bool {
	return dates.Truncate(asOf).After(dates.Truncate(loan.CurrentDueDate))
}

// DaysOverdue returns how many days past due the loan is, never negative.
func (p Policy) DaysOverdue(loan *models.PawnLoan, asOf time.Time) int {
	d := dates.DaysBetween(loan.CurrentDueDate, asOf)
	if d < 0 {
		return 0
	}
	return d
}

// WithinGracePeriod reports whether the loan is current or overdue by no
// more than the grace window.
func (p Policy) WithinGracePeriod(loan *models.PawnLoan, asOf time.Time) bool {
	return p.DaysOverdue(loan, asOf) <= p.GraceDays
}

// LateFeeDue returns the flat late fee if the loan is overdue beyond the
// grace period, zero otherwise.
func (p Policy) LateFeeDue(loan *models.PawnLoan, asOf time.Time) decimal.Decimal {
	if p.WithinGracePeriod(loan, asOf) {
		return decimal.Zero
	}
	return p.LateFee
}
