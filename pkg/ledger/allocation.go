package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/models"
	"github.com/mcclellann/pawnLoan/pkg/policy"
)

// Allocation is the breakdown of an accepted payment. The four portions plus
// the overpayment always sum to PaymentAmount exactly.
type Allocation struct {
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	LateFeePortion   decimal.Decimal `json:"late_fee_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion"`
	PrincipalPortion decimal.Decimal `json:"principal_portion"`
	Overpayment      decimal.Decimal `json:"overpayment"`

	PaymentType    models.PaymentType `json:"payment_type"`
	NewBalance     decimal.Decimal    `json:"new_balance"`
	MonthsExtended int                `json:"months_extended"`
	NewDueDate     time.Time          `json:"new_due_date"`
}

// RecordType maps the allocation outcome to the payment history entry type.
func (a *Allocation) RecordType() models.RecordType {
	switch {
	case a.PaymentType == models.PaymentTypeFullRedemption:
		return models.RecordTypeRedemption
	case a.PrincipalPortion.IsPositive():
		return models.RecordTypePartial
	default:
		return models.RecordTypeRenewal
	}
}

// Allocate splits a cash payment across late fee, interest and principal,
// in that order, and computes the resulting balance and due date. It is a
// pure function: the loan is not modified and nothing is persisted.
//
// The due date is anchored to the original due date: renewals always land on
// the original day of month (clamped at month end) and never drift, no
// matter how many renewals have happened or how late each payment was.
func Allocate(loan *models.PawnLoan, amount decimal.Decimal, paymentDate time.Time, pol policy.Policy) (*Allocation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, validationErrorf("payment amount must be positive, got $%s", amount.StringFixed(2))
	}
	if loan.Forfeited {
		return nil, errLoanTerminal(ViolationLoanForfeited)
	}
	if loan.Redeemed() {
		return nil, errLoanTerminal(ViolationLoanRedeemed)
	}

	day := dates.Truncate(paymentDate)
	if day.After(dates.Truncate(loan.FinalForfeitDate)) {
		return nil, errPastForfeitCutoff(loan.FinalForfeitDate)
	}

	alloc := &Allocation{
		PaymentAmount:    amount,
		LateFeePortion:   decimal.Zero,
		InterestPortion:  decimal.Zero,
		PrincipalPortion: decimal.Zero,
		Overpayment:      decimal.Zero,
		NewBalance:       loan.Balance,
		NewDueDate:       dates.Truncate(loan.CurrentDueDate),
	}
	remaining := amount

	// 1. Late fee comes off the top.
	lateFee := pol.LateFeeDue(loan, day)
	if lateFee.IsPositive() {
		alloc.LateFeePortion = decimal.Min(remaining, lateFee)
		remaining = remaining.Sub(alloc.LateFeePortion)
	}

	// 2. After the fee, the payment must cover at least one month's
	// interest or nothing is committed.
	if remaining.LessThan(loan.MonthlyInterestFee) {
		return nil, errPaymentBelowMinimum(lateFee.Add(loan.MonthlyInterestFee), amount)
	}

	// 3. Interest buys exactly one month's extension.
	alloc.InterestPortion = loan.MonthlyInterestFee
	remaining = remaining.Sub(loan.MonthlyInterestFee)
	alloc.MonthsExtended = 1

	// 4. Whatever is left goes to principal.
	switch {
	case remaining.GreaterThanOrEqual(loan.Balance):
		alloc.PrincipalPortion = loan.Balance
		alloc.Overpayment = remaining.Sub(loan.Balance)
		alloc.NewBalance = decimal.Zero
		alloc.PaymentType = models.PaymentTypeFullRedemption
	case remaining.IsPositive():
		alloc.PrincipalPortion = remaining
		alloc.NewBalance = loan.Balance.Sub(remaining)
		alloc.PaymentType = models.PaymentTypeRenewalWithPrincipal
	default:
		alloc.PaymentType = models.PaymentTypeInterestOnlyRenewal
	}

	// 5. New due date, anchored to the original due date.
	monthsSinceOriginal := dates.MonthsBetween(loan.OriginalDueDate, loan.CurrentDueDate)
	if monthsSinceOriginal < 1 {
		monthsSinceOriginal = 1
	}
	alloc.NewDueDate = dates.AddMonths(loan.OriginalDueDate, monthsSinceOriginal+alloc.MonthsExtended)

	return alloc, nil
}

// apply folds an allocation into the loan. The caller persists the result.
func apply(loan *models.PawnLoan, alloc *Allocation, paymentDate, now time.Time) {
	loan.Balance = alloc.NewBalance
	loan.CurrentDueDate = alloc.NewDueDate
	if alloc.MonthsExtended > 0 {
		loan.RenewalsCount++
	}
	day := dates.Truncate(paymentDate)
	loan.LastPaymentDate = &day
	loan.MonthsWithoutPayment = 0
	loan.UpdatedAt = now
}
