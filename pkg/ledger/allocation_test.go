package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/models"
	"github.com/mcclellann/pawnLoan/pkg/policy"
)

func dollars(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testLoan builds an open loan due 2024-02-15 with the default policy dates.
func testLoan(principal, monthlyFee string) *models.PawnLoan {
	pol := policy.Default()
	due := dates.Day(2024, 2, 15)
	return &models.PawnLoan{
		ID:                 uuid.New(),
		CustomerID:         uuid.New(),
		ItemID:             uuid.New(),
		Principal:          dollars(principal),
		MonthlyInterestFee: dollars(monthlyFee),
		Balance:            dollars(principal),
		OriginalDueDate:    due,
		CurrentDueDate:     due,
		FinalForfeitDate:   pol.ForfeitDate(due),
		Version:            1,
	}
}

func TestAllocateFullRedemptionBeforeDueDate(t *testing.T) {
	loan := testLoan("100", "15")
	pol := policy.Default()

	// Halfway through the term, no late fee applies.
	alloc, err := Allocate(loan, dollars("115"), dates.Day(2024, 2, 1), pol)
	require.NoError(t, err)

	assert.True(t, alloc.LateFeePortion.IsZero())
	assert.True(t, alloc.InterestPortion.Equal(dollars("15")))
	assert.True(t, alloc.PrincipalPortion.Equal(dollars("100")))
	assert.True(t, alloc.Overpayment.IsZero())
	assert.True(t, alloc.NewBalance.IsZero())
	assert.Equal(t, models.PaymentTypeFullRedemption, alloc.PaymentType)
	assert.Equal(t, models.RecordTypeRedemption, alloc.RecordType())
}

func TestAllocateInterestOnlyRenewalOnDueDate(t *testing.T) {
	loan := testLoan("500", "75")
	pol := policy.Default()

	alloc, err := Allocate(loan, dollars("75"), loan.CurrentDueDate, pol)
	require.NoError(t, err)

	assert.True(t, alloc.LateFeePortion.IsZero())
	assert.True(t, alloc.InterestPortion.Equal(dollars("75")))
	assert.True(t, alloc.PrincipalPortion.IsZero())
	assert.True(t, alloc.NewBalance.Equal(dollars("500")))
	assert.Equal(t, models.PaymentTypeInterestOnlyRenewal, alloc.PaymentType)
	assert.Equal(t, 1, alloc.MonthsExtended)

	// The first on-schedule renewal lands two months out from the original
	// due date: one month already elapsed plus the month just purchased.
	assert.Equal(t, dates.AddMonths(loan.OriginalDueDate, 2), alloc.NewDueDate)
}

func TestAllocateRenewalWithPrincipal(t *testing.T) {
	loan := testLoan("1000", "150")
	pol := policy.Default()

	alloc, err := Allocate(loan, dollars("500"), loan.CurrentDueDate, pol)
	require.NoError(t, err)

	assert.True(t, alloc.InterestPortion.Equal(dollars("150")))
	assert.True(t, alloc.PrincipalPortion.Equal(dollars("350")))
	assert.True(t, alloc.NewBalance.Equal(dollars("650")))
	assert.Equal(t, models.PaymentTypeRenewalWithPrincipal, alloc.PaymentType)
	assert.Equal(t, models.RecordTypePartial, alloc.RecordType())
}

func TestAllocateLateFeeComesOffTheTop(t *testing.T) {
	loan := testLoan("500", "75")
	pol := policy.Default()

	// Eight days past due, one past the grace window.
	late := loan.CurrentDueDate.AddDate(0, 0, 8)
	alloc, err := Allocate(loan, dollars("100"), late, pol)
	require.NoError(t, err)

	assert.True(t, alloc.LateFeePortion.Equal(dollars("10")))
	assert.True(t, alloc.InterestPortion.Equal(dollars("75")))
	assert.True(t, alloc.PrincipalPortion.Equal(dollars("15")))
	assert.True(t, alloc.NewBalance.Equal(dollars("485")))
}

func TestAllocateRejectsBelowMinimum(t *testing.T) {
	pol := policy.Default()

	t.Run("within grace", func(t *testing.T) {
		loan := testLoan("500", "75")
		_, err := Allocate(loan, dollars("74.99"), loan.CurrentDueDate, pol)

		var pv *PolicyViolation
		require.ErrorAs(t, err, &pv)
		assert.Equal(t, ViolationPaymentBelowMinimum, pv.Code)
		assert.True(t, pv.Minimum.Equal(dollars("75")))
	})

	t.Run("past grace the fee raises the floor", func(t *testing.T) {
		loan := testLoan("500", "75")
		late := loan.CurrentDueDate.AddDate(0, 0, 10)

		// $80 covers the $10 fee but leaves only $70 for interest.
		_, err := Allocate(loan, dollars("80"), late, pol)

		var pv *PolicyViolation
		require.ErrorAs(t, err, &pv)
		assert.Equal(t, ViolationPaymentBelowMinimum, pv.Code)
		assert.True(t, pv.Minimum.Equal(dollars("85")))
	})
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	loan := testLoan("500", "75")
	pol := policy.Default()

	for _, amount := range []string{"0", "-25"} {
		_, err := Allocate(loan, dollars(amount), loan.CurrentDueDate, pol)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "amount %s", amount)
	}
}

func TestAllocateRejectsTerminalLoans(t *testing.T) {
	pol := policy.Default()

	t.Run("forfeited", func(t *testing.T) {
		loan := testLoan("500", "75")
		loan.Forfeited = true
		_, err := Allocate(loan, dollars("75"), loan.CurrentDueDate, pol)

		var pv *PolicyViolation
		require.ErrorAs(t, err, &pv)
		assert.Equal(t, ViolationLoanForfeited, pv.Code)
	})

	t.Run("redeemed", func(t *testing.T) {
		loan := testLoan("500", "75")
		loan.Balance = decimal.Zero
		_, err := Allocate(loan, dollars("75"), loan.CurrentDueDate, pol)

		var pv *PolicyViolation
		require.ErrorAs(t, err, &pv)
		assert.Equal(t, ViolationLoanRedeemed, pv.Code)
	})
}

func TestAllocateRejectsPastForfeitCutoff(t *testing.T) {
	loan := testLoan("500", "75")
	pol := policy.Default()

	// On the cutoff itself the payment is still accepted.
	_, err := Allocate(loan, dollars("10000"), loan.FinalForfeitDate, pol)
	require.NoError(t, err)

	// One day later no amount of money helps.
	_, err = Allocate(loan, dollars("10000"), loan.FinalForfeitDate.AddDate(0, 0, 1), pol)
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, ViolationPastForfeitCutoff, pv.Code)
}

func TestAllocateOverpaymentTracked(t *testing.T) {
	loan := testLoan("100", "15")
	pol := policy.Default()

	alloc, err := Allocate(loan, dollars("150"), dates.Day(2024, 2, 1), pol)
	require.NoError(t, err)

	assert.True(t, alloc.PrincipalPortion.Equal(dollars("100")))
	assert.True(t, alloc.Overpayment.Equal(dollars("35")))
	assert.Equal(t, models.PaymentTypeFullRedemption, alloc.PaymentType)
}

func TestAllocateConservesEveryCent(t *testing.T) {
	pol := policy.Default()
	loan := testLoan("500", "75")
	late := loan.CurrentDueDate.AddDate(0, 0, 12)

	for _, amount := range []string{"85", "100.01", "333.33", "585", "600"} {
		alloc, err := Allocate(loan, dollars(amount), late, pol)
		require.NoError(t, err, "amount %s", amount)

		sum := alloc.LateFeePortion.
			Add(alloc.InterestPortion).
			Add(alloc.PrincipalPortion).
			Add(alloc.Overpayment)
		assert.True(t, sum.Equal(dollars(amount)),
			"amount %s split into %s", amount, sum)
	}
}

func TestAllocateDueDateAnchoredToOriginal(t *testing.T) {
	pol := policy.Default()

	// A loan due at the end of January. Clamping must not make later
	// renewals drift off the month-end anchor.
	loan := testLoan("500", "75")
	loan.OriginalDueDate = dates.Day(2024, 1, 31)
	loan.CurrentDueDate = loan.OriginalDueDate
	loan.FinalForfeitDate = pol.ForfeitDate(loan.OriginalDueDate)

	expected := []struct {
		y, m, d int
	}{
		{2024, 3, 31}, // first renewal: Jan 31 + 2 months
		{2024, 4, 30},
		{2024, 5, 31},
	}
	for i, want := range expected {
		alloc, err := Allocate(loan, dollars("75"), loan.CurrentDueDate, pol)
		require.NoError(t, err)
		assert.Equal(t, dates.Day(want.y, time.Month(want.m), want.d), alloc.NewDueDate,
			"renewal %d", i+1)
		apply(loan, alloc, loan.CurrentDueDate, loan.CurrentDueDate)
	}
	assert.Equal(t, 3, loan.RenewalsCount)
}

func TestAllocateLatePaymentSkipsToCurrentMonth(t *testing.T) {
	pol := policy.Default()
	loan := testLoan("500", "75")

	// Paid two and a half months late. The renewal extends from where the
	// schedule stands, not from the payment date.
	late := dates.AddMonths(loan.CurrentDueDate, 2).AddDate(0, 0, 15)
	alloc, err := Allocate(loan, dollars("85"), late, pol)
	require.NoError(t, err)

	assert.Equal(t, dates.AddMonths(loan.OriginalDueDate, 2), alloc.NewDueDate)
}

func TestApplyResetsInactivityAndStampsPaymentDate(t *testing.T) {
	pol := policy.Default()
	loan := testLoan("500", "75")
	loan.MonthsWithoutPayment = 2

	alloc, err := Allocate(loan, dollars("75"), loan.CurrentDueDate, pol)
	require.NoError(t, err)

	when := loan.CurrentDueDate
	apply(loan, alloc, when, when)

	assert.Equal(t, 0, loan.MonthsWithoutPayment)
	require.NotNil(t, loan.LastPaymentDate)
	assert.True(t, dates.SameDay(*loan.LastPaymentDate, when))
	assert.Equal(t, 1, loan.RenewalsCount)
	assert.Equal(t, alloc.NewDueDate, loan.CurrentDueDate)
}
