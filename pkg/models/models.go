package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the display status of a loan. Only the terminal markers are
// authoritative; everything else is derived from balance and dates on read.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"    // current, not past due
	LoanStatusOverdue   LoanStatus = "overdue"   // past due but within the grace period
	LoanStatusDefault   LoanStatus = "default"   // past the grace period, late fee applies
	LoanStatusRedeemed  LoanStatus = "redeemed"  // terminal: principal fully repaid
	LoanStatusForfeited LoanStatus = "forfeited" // terminal: item became shop property
)

// PaymentType classifies how an accepted payment was allocated.
type PaymentType string

const (
	PaymentTypeInterestOnlyRenewal  PaymentType = "interest_only_renewal"
	PaymentTypeRenewalWithPrincipal PaymentType = "renewal_with_principal"
	PaymentTypeFullRedemption       PaymentType = "full_redemption"
)

// RecordType classifies entries in the payment history.
type RecordType string

const (
	RecordTypePawn       RecordType = "pawn" // disbursement at loan creation
	RecordTypeRenewal    RecordType = "renewal"
	RecordTypePartial    RecordType = "partial_payment"
	RecordTypeRedemption RecordType = "redemption"
	RecordTypeForfeit    RecordType = "forfeit"
)

// CustomerStatus gates whether a customer may open new loans.
type CustomerStatus string

const (
	CustomerStatusActive  CustomerStatus = "active"
	CustomerStatusBlocked CustomerStatus = "blocked"
)

// ItemStatus tracks the pledged item through the loan lifecycle.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusPawned    ItemStatus = "pawned"
	ItemStatusRedeemed  ItemStatus = "redeemed"
	ItemStatusForfeited ItemStatus = "forfeited"
)

// PawnLoan is the financial and temporal state of one pawn loan.
//
// Principal and MonthlyInterestFee are fixed at creation. Balance starts at
// Principal and only ever decreases; the monthly fee is a recurring charge
// and is never capitalized into the balance. OriginalDueDate anchors every
// renewal: CurrentDueDate is always OriginalDueDate plus a whole number of
// months, and FinalForfeitDate is computed once and never recalculated.
type PawnLoan struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	ItemID             uuid.UUID       `json:"item_id"`
	Principal          decimal.Decimal `json:"principal"`
	MonthlyInterestFee decimal.Decimal `json:"monthly_interest_fee"`
	Balance            decimal.Decimal `json:"balance"`

	OriginalDueDate  time.Time `json:"original_due_date"`
	CurrentDueDate   time.Time `json:"current_due_date"`
	FinalForfeitDate time.Time `json:"final_forfeit_date"`

	RenewalsCount        int        `json:"renewals_count"`
	LastPaymentDate      *time.Time `json:"last_payment_date,omitempty"`
	MonthsWithoutPayment int        `json:"months_without_payment"`
	Forfeited            bool       `json:"forfeited"`

	ReceiptNumber string `json:"receipt_number"`
	Notes         string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version guards read-allocate-write sequences against lost updates.
	Version int64 `json:"version"`
}

// Redeemed reports whether the loan has been fully paid off.
func (l *PawnLoan) Redeemed() bool {
	return l.Balance.IsZero()
}

// Terminal reports whether the loan accepts no further payments.
func (l *PawnLoan) Terminal() bool {
	return l.Forfeited || l.Redeemed()
}

// PaymentRecord is one entry in a loan's payment history, with the full
// allocation breakdown for accepted payments.
type PaymentRecord struct {
	ID     uuid.UUID  `json:"id"`
	LoanID uuid.UUID  `json:"loan_id"`
	Type   RecordType `json:"type"`

	Amount           decimal.Decimal `json:"amount"`
	LateFeePortion   decimal.Decimal `json:"late_fee_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion"`
	PrincipalPortion decimal.Decimal `json:"principal_portion"`
	Overpayment      decimal.Decimal `json:"overpayment"`

	PaymentDate   time.Time `json:"payment_date"`
	ReceiptNumber string    `json:"receipt_number"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Customer struct {
	ID        uuid.UUID      `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Phone     string         `json:"phone"`
	Status    CustomerStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// FullName is used on receipts and status views.
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// CanTransact reports whether the customer may open new loans.
func (c *Customer) CanTransact() bool {
	return c.Status == CustomerStatusActive
}

type Item struct {
	ID          uuid.UUID  `json:"id"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	Description string     `json:"description"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}
