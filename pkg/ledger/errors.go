package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ViolationCode identifies which store policy a rejected request violated.
type ViolationCode string

const (
	ViolationPaymentBelowMinimum ViolationCode = "payment_below_minimum"
	ViolationPastForfeitCutoff   ViolationCode = "past_forfeit_cutoff"
	ViolationLoanRedeemed        ViolationCode = "loan_redeemed"
	ViolationLoanForfeited       ViolationCode = "loan_forfeited"
	ViolationNotForfeitEligible  ViolationCode = "not_forfeit_eligible"
	ViolationCustomerBlocked     ViolationCode = "customer_blocked"
	ViolationItemUnavailable     ViolationCode = "item_unavailable"
)

// ValidationError reports malformed input, rejected before any computation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PolicyViolation reports a request that is well-formed but forbidden by
// store policy. Minimum carries the violated threshold when the violation
// is a below-minimum payment, so callers can surface the exact amount.
type PolicyViolation struct {
	Code    ViolationCode
	Message string
	Minimum decimal.Decimal
}

func (e *PolicyViolation) Error() string {
	return e.Message
}

func errPaymentBelowMinimum(minimum, paid decimal.Decimal) *PolicyViolation {
	return &PolicyViolation{
		Code:    ViolationPaymentBelowMinimum,
		Message: fmt.Sprintf("minimum payment is $%s, paid $%s", minimum.StringFixed(2), paid.StringFixed(2)),
		Minimum: minimum,
	}
}

func errPastForfeitCutoff(cutoff time.Time) *PolicyViolation {
	return &PolicyViolation{
		Code:    ViolationPastForfeitCutoff,
		Message: fmt.Sprintf("payment date is beyond the forfeiture cutoff (%s)", cutoff.Format("2006-01-02")),
	}
}

func errLoanTerminal(code ViolationCode) *PolicyViolation {
	switch code {
	case ViolationLoanForfeited:
		return &PolicyViolation{Code: code, Message: "loan has been forfeited and accepts no further payments"}
	default:
		return &PolicyViolation{Code: ViolationLoanRedeemed, Message: "loan is already redeemed"}
	}
}
