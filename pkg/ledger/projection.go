package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/models"
	"github.com/mcclellann/pawnLoan/pkg/policy"
)

// AmountOwedAsOf returns what the customer must pay on the given date to
// stay current: the outstanding balance, plus the next month's interest once
// the due date has arrived, plus any applicable late fee. Terminal loans owe
// nothing. Read-only.
func AmountOwedAsOf(loan *models.PawnLoan, asOf time.Time, pol policy.Policy) decimal.Decimal {
	if loan.Terminal() {
		return decimal.Zero
	}
	owed := loan.Balance
	if !dates.Truncate(asOf).Before(dates.Truncate(loan.CurrentDueDate)) {
		owed = owed.Add(loan.MonthlyInterestFee)
	}
	return owed.Add(pol.LateFeeDue(loan, asOf))
}

// StatusAsOf derives the display status of a loan from its balance and
// dates. Only the terminal states are authoritative; active/overdue/default
// are recomputed on every read.
func StatusAsOf(loan *models.PawnLoan, asOf time.Time, pol policy.Policy) models.LoanStatus {
	switch {
	case loan.Forfeited:
		return models.LoanStatusForfeited
	case loan.Redeemed():
		return models.LoanStatusRedeemed
	case !pol.IsOverdue(loan, asOf):
		return models.LoanStatusActive
	case pol.WithinGracePeriod(loan, asOf):
		return models.LoanStatusOverdue
	default:
		return models.LoanStatusDefault
	}
}

// DaysUntilDue returns the days from asOf to the current due date, negative
// once past due.
func DaysUntilDue(loan *models.PawnLoan, asOf time.Time) int {
	return dates.DaysBetween(asOf, loan.CurrentDueDate)
}

// IsForfeitEligible reports whether the loan may be converted to shop
// property: still carrying a balance, not already forfeited, and past the
// final forfeiture cutoff.
func IsForfeitEligible(loan *models.PawnLoan, asOf time.Time) bool {
	return !loan.Terminal() && dates.Truncate(asOf).After(dates.Truncate(loan.FinalForfeitDate))
}

// Scenario is a payment option preview produced by dry-running the
// allocation engine against a hypothetical amount.
type Scenario struct {
	Name             string          `json:"name"`
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	Allocation       *Allocation     `json:"allocation"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	NewDueDate       time.Time       `json:"new_due_date"`
	IsFullRedemption bool            `json:"is_full_redemption"`
}

// PaymentScenarios previews the standard payment options for a loan on a
// given date: interest-only renewal, interest plus half the principal, and
// full redemption. The loan is never mutated; each preview is a pure
// Allocate call.
func PaymentScenarios(loan *models.PawnLoan, asOf time.Time, pol policy.Policy) ([]Scenario, error) {
	base := pol.LateFeeDue(loan, asOf).Add(loan.MonthlyInterestFee)
	halfPrincipal := loan.Balance.Div(decimal.NewFromInt(2)).Round(2)

	options := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"interest_only", base},
		{"interest_plus_half_principal", base.Add(halfPrincipal)},
		{"full_redemption", base.Add(loan.Balance)},
	}

	scenarios := make([]Scenario, 0, len(options))
	for _, opt := range options {
		alloc, err := Allocate(loan, opt.amount, asOf, pol)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, Scenario{
			Name:             opt.name,
			PaymentAmount:    opt.amount,
			Allocation:       alloc,
			ResultingBalance: alloc.NewBalance,
			NewDueDate:       alloc.NewDueDate,
			IsFullRedemption: alloc.PaymentType == models.PaymentTypeFullRedemption,
		})
	}
	return scenarios, nil
}

// ScheduleEntry is one month of the three-month payment schedule printed on
// customer receipts.
type ScheduleEntry struct {
	Month              int             `json:"month"`
	DueDate            time.Time       `json:"due_date"`
	InterestFee        decimal.Decimal `json:"interest_fee"`
	PrincipalDue       decimal.Decimal `json:"principal_due"`
	TotalDue           decimal.Decimal `json:"total_due"`
	PaymentType        string          `json:"payment_type"`
	IsRedemptionOption bool            `json:"is_redemption_option"`
}

// PaymentSchedule lays out the next three months of the loan starting at
// the current due date. The final month shows the redemption option.
func PaymentSchedule(loan *models.PawnLoan, pol policy.Policy) []ScheduleEntry {
	entries := make([]ScheduleEntry, 0, 3)
	for month := 1; month <= 3; month++ {
		entry := ScheduleEntry{
			Month:        month,
			DueDate:      dates.AddMonths(loan.CurrentDueDate, month-1),
			InterestFee:  loan.MonthlyInterestFee,
			PrincipalDue: decimal.Zero,
			TotalDue:     loan.MonthlyInterestFee,
			PaymentType:  "Interest Only",
		}
		if month == 3 {
			entry.PrincipalDue = loan.Balance
			entry.TotalDue = loan.MonthlyInterestFee.Add(loan.Balance)
			entry.PaymentType = "Full Redemption"
			entry.IsRedemptionOption = true
		}
		entries = append(entries, entry)
	}
	return entries
}
