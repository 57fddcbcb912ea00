package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/models"
	"github.com/mcclellann/pawnLoan/pkg/policy"
	"github.com/mcclellann/pawnLoan/pkg/store"
)

const (
	receiptSuffixChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	receiptSuffixLen   = 4

	// How many times a read-allocate-write sequence is retried when the
	// versioned update loses the race to another writer.
	maxUpdateRetries = 3
)

// Ledger handles the business logic for pawn loans and payments.
type Ledger struct {
	storage store.Storage
	pol     policy.Policy
	log     *zap.Logger
	randSrc rand.Source // Random source for receipt number suffixes
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, pol policy.Policy, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		storage: s,
		pol:     pol,
		log:     log,
		randSrc: rand.NewSource(time.Now().UnixNano()),
	}
}

// Policy returns the store policy the ledger operates under.
func (l *Ledger) Policy() policy.Policy {
	return l.pol
}

// generateReceiptNumber builds a receipt reference like PWN-20240131-7KQ2.
func (l *Ledger) generateReceiptNumber(day time.Time) string {
	r := rand.New(l.randSrc)
	suffix := make([]byte, receiptSuffixLen)
	for i := range suffix {
		suffix[i] = receiptSuffixChars[r.Intn(len(receiptSuffixChars))]
	}
	return fmt.Sprintf("PWN-%s-%s", day.Format("20060102"), suffix)
}

// CreateCustomer registers a new customer in active standing.
func (l *Ledger) CreateCustomer(firstName, lastName, phone string) (*models.Customer, error) {
	if firstName == "" || lastName == "" {
		return nil, validationErrorf("customer first and last name are required")
	}
	customer := &models.Customer{
		ID:        uuid.New(),
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
		Status:    models.CustomerStatusActive,
		CreatedAt: time.Now(),
	}
	if err := l.storage.CreateCustomer(customer); err != nil {
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}
	return customer, nil
}

// CreateItem registers an item a customer brought in, available for pawn.
func (l *Ledger) CreateItem(customerID uuid.UUID, description string) (*models.Item, error) {
	if description == "" {
		return nil, validationErrorf("item description is required")
	}
	if _, err := l.storage.GetCustomer(customerID); err != nil {
		return nil, err
	}
	item := &models.Item{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Description: description,
		Status:      models.ItemStatusAvailable,
		CreatedAt:   time.Now(),
	}
	if err := l.storage.CreateItem(item); err != nil {
		return nil, fmt.Errorf("failed to store item: %w", err)
	}
	return item, nil
}

// CreatePawnLoan opens a new loan against a pledged item. The due date is
// the creation date plus the initial term; the forfeiture cutoff is fixed
// here and never recalculated.
func (l *Ledger) CreatePawnLoan(customerID, itemID uuid.UUID, principal, monthlyFee decimal.Decimal, createdDate time.Time, notes string) (*models.PawnLoan, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return nil, validationErrorf("principal must be positive, got $%s", principal.StringFixed(2))
	}
	if monthlyFee.LessThanOrEqual(decimal.Zero) {
		return nil, validationErrorf("monthly interest fee must be positive, got $%s", monthlyFee.StringFixed(2))
	}

	customer, err := l.storage.GetCustomer(customerID)
	if err != nil {
		return nil, err
	}
	if !customer.CanTransact() {
		return nil, &PolicyViolation{
			Code:    ViolationCustomerBlocked,
			Message: fmt.Sprintf("customer cannot transact - status: %s", customer.Status),
		}
	}

	item, err := l.storage.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.ItemStatusAvailable {
		return nil, &PolicyViolation{
			Code:    ViolationItemUnavailable,
			Message: fmt.Sprintf("item is not available for pawn - status: %s", item.Status),
		}
	}

	now := time.Now()
	created := dates.Truncate(createdDate)
	dueDate := l.pol.DueDate(created)
	loan := &models.PawnLoan{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		ItemID:             itemID,
		Principal:          principal,
		MonthlyInterestFee: monthlyFee,
		Balance:            principal,
		OriginalDueDate:    dueDate,
		CurrentDueDate:     dueDate,
		FinalForfeitDate:   l.pol.ForfeitDate(dueDate),
		ReceiptNumber:      l.generateReceiptNumber(created),
		Notes:              notes,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	if err := l.storage.UpdateItemStatus(itemID, models.ItemStatusPawned); err != nil {
		return nil, fmt.Errorf("failed to mark item pawned: %w", err)
	}

	// Record disbursement
	record := &models.PaymentRecord{
		ID:               uuid.New(),
		LoanID:           loan.ID,
		Type:             models.RecordTypePawn,
		Amount:           principal,
		LateFeePortion:   decimal.Zero,
		InterestPortion:  decimal.Zero,
		PrincipalPortion: decimal.Zero,
		Overpayment:      decimal.Zero,
		PaymentDate:      created,
		ReceiptNumber:    loan.ReceiptNumber,
		CreatedAt:        now,
	}
	if err := l.storage.CreatePayment(record); err != nil {
		return nil, fmt.Errorf("failed to store disbursement record: %w", err)
	}

	l.log.Info("created pawn loan",
		zap.String("loan_id", loan.ID.String()),
		zap.String("customer", customer.FullName()),
		zap.String("principal", principal.StringFixed(2)),
		zap.Time("due_date", dueDate),
		zap.Time("forfeit_date", loan.FinalForfeitDate),
	)
	return loan, nil
}

// PaymentResult is what ProcessPayment returns to the caller.
type PaymentResult struct {
	Payment      *models.PaymentRecord `json:"payment"`
	Allocation   *Allocation           `json:"allocation"`
	Loan         *models.PawnLoan      `json:"loan"`
	StatusBefore models.LoanStatus     `json:"status_before"`
	StatusAfter  models.LoanStatus     `json:"status_after"`
	Message      string                `json:"message"`
}

// ProcessPayment runs the read-allocate-write sequence for a cash payment.
// The write is guarded by the loan version; on conflict the whole sequence
// is retried against a fresh read, so two tellers taking payments on the
// same loan can never both commit against a stale balance.
func (l *Ledger) ProcessPayment(loanID uuid.UUID, amount decimal.Decimal, paymentDate time.Time, notes string) (*PaymentResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		loan, err := l.storage.GetLoan(loanID)
		if err != nil {
			return nil, err
		}
		statusBefore := StatusAsOf(loan, paymentDate, l.pol)

		alloc, err := Allocate(loan, amount, paymentDate, l.pol)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		apply(loan, alloc, paymentDate, now)

		if err := l.storage.UpdateLoan(loan); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		record := &models.PaymentRecord{
			ID:               uuid.New(),
			LoanID:           loan.ID,
			Type:             alloc.RecordType(),
			Amount:           amount,
			LateFeePortion:   alloc.LateFeePortion,
			InterestPortion:  alloc.InterestPortion,
			PrincipalPortion: alloc.PrincipalPortion,
			Overpayment:      alloc.Overpayment,
			PaymentDate:      dates.Truncate(paymentDate),
			ReceiptNumber:    l.generateReceiptNumber(paymentDate),
			Notes:            notes,
			CreatedAt:        now,
		}
		if err := l.storage.CreatePayment(record); err != nil {
			return nil, fmt.Errorf("failed to store payment record: %w", err)
		}

		if alloc.PaymentType == models.PaymentTypeFullRedemption {
			if err := l.storage.UpdateItemStatus(loan.ItemID, models.ItemStatusRedeemed); err != nil {
				return nil, fmt.Errorf("failed to mark item redeemed: %w", err)
			}
		}

		statusAfter := StatusAsOf(loan, paymentDate, l.pol)
		l.log.Info("processed payment",
			zap.String("loan_id", loan.ID.String()),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("type", string(alloc.PaymentType)),
			zap.String("new_balance", loan.Balance.StringFixed(2)),
			zap.Time("new_due_date", loan.CurrentDueDate),
		)

		return &PaymentResult{
			Payment:      record,
			Allocation:   alloc,
			Loan:         loan,
			StatusBefore: statusBefore,
			StatusAfter:  statusAfter,
			Message:      paymentMessage(alloc),
		}, nil
	}
	return nil, fmt.Errorf("payment retries exhausted: %w", lastErr)
}

func paymentMessage(alloc *Allocation) string {
	var msg string
	switch alloc.PaymentType {
	case models.PaymentTypeFullRedemption:
		msg = "Loan paid in full - item ready for pickup."
	case models.PaymentTypeRenewalWithPrincipal:
		msg = fmt.Sprintf("Extended to %s with $%s applied to principal.",
			alloc.NewDueDate.Format("Jan 02, 2006"), alloc.PrincipalPortion.StringFixed(2))
	default:
		msg = fmt.Sprintf("Extended to %s.", alloc.NewDueDate.Format("Jan 02, 2006"))
	}
	if alloc.Overpayment.IsPositive() {
		msg += fmt.Sprintf(" Overpayment of $%s noted.", alloc.Overpayment.StringFixed(2))
	}
	return msg
}

// PreviewPayment dry-runs a payment without committing anything.
func (l *Ledger) PreviewPayment(loanID uuid.UUID, amount decimal.Decimal, paymentDate time.Time) (*Allocation, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	return Allocate(loan, amount, paymentDate, l.pol)
}

// Forfeit converts a loan past its forfeiture cutoff into shop property.
// One-way: the loan accepts no further payments afterward.
func (l *Ledger) Forfeit(loanID uuid.UUID, asOf time.Time) (*models.PawnLoan, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		loan, err := l.storage.GetLoan(loanID)
		if err != nil {
			return nil, err
		}
		if loan.Forfeited {
			return nil, errLoanTerminal(ViolationLoanForfeited)
		}
		if loan.Redeemed() {
			return nil, errLoanTerminal(ViolationLoanRedeemed)
		}
		if !IsForfeitEligible(loan, asOf) {
			return nil, &PolicyViolation{
				Code: ViolationNotForfeitEligible,
				Message: fmt.Sprintf("loan not eligible for forfeiture until after %s",
					loan.FinalForfeitDate.Format("2006-01-02")),
			}
		}

		now := time.Now()
		loan.Forfeited = true
		loan.UpdatedAt = now
		if err := l.storage.UpdateLoan(loan); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		day := dates.Truncate(asOf)
		record := &models.PaymentRecord{
			ID:               uuid.New(),
			LoanID:           loan.ID,
			Type:             models.RecordTypeForfeit,
			Amount:           decimal.Zero,
			LateFeePortion:   decimal.Zero,
			InterestPortion:  decimal.Zero,
			PrincipalPortion: decimal.Zero,
			Overpayment:      decimal.Zero,
			PaymentDate:      day,
			ReceiptNumber:    l.generateReceiptNumber(day),
			CreatedAt:        now,
		}
		if err := l.storage.CreatePayment(record); err != nil {
			return nil, fmt.Errorf("failed to store forfeit record: %w", err)
		}
		if err := l.storage.UpdateItemStatus(loan.ItemID, models.ItemStatusForfeited); err != nil {
			return nil, fmt.Errorf("failed to mark item forfeited: %w", err)
		}

		l.log.Info("forfeited loan",
			zap.String("loan_id", loan.ID.String()),
			zap.String("balance_written_off", loan.Balance.StringFixed(2)),
		)
		return loan, nil
	}
	return nil, fmt.Errorf("forfeit retries exhausted: %w", lastErr)
}

// StatusView is the comprehensive loan status projection for staff screens.
type StatusView struct {
	LoanID          uuid.UUID `json:"loan_id"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
	ItemDescription string    `json:"item_description"`

	Principal          decimal.Decimal `json:"principal"`
	Balance            decimal.Decimal `json:"balance"`
	MonthlyInterestFee decimal.Decimal `json:"monthly_interest_fee"`
	TotalOwed          decimal.Decimal `json:"total_owed"`

	OriginalDueDate  time.Time `json:"original_due_date"`
	CurrentDueDate   time.Time `json:"current_due_date"`
	FinalForfeitDate time.Time `json:"final_forfeit_date"`
	DaysUntilDue     int       `json:"days_until_due"`
	DaysOverdue      int       `json:"days_overdue"`

	Status            models.LoanStatus `json:"status"`
	RenewalsCount     int               `json:"renewals_count"`
	LastPaymentDate   *time.Time        `json:"last_payment_date,omitempty"`
	WithinGracePeriod bool              `json:"within_grace_period"`

	MinimumPayment  decimal.Decimal `json:"minimum_payment"`
	CanExtend       bool            `json:"can_extend"`
	CanRedeem       bool            `json:"can_redeem"`
	ForfeitEligible bool            `json:"forfeit_eligible"`
}

// LoanStatus builds the full status projection for a loan as of a date.
func (l *Ledger) LoanStatus(loanID uuid.UUID, asOf time.Time) (*StatusView, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	customer, err := l.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return nil, err
	}
	item, err := l.storage.GetItem(loan.ItemID)
	if err != nil {
		return nil, err
	}

	open := !loan.Terminal() && !dates.Truncate(asOf).After(dates.Truncate(loan.FinalForfeitDate))
	return &StatusView{
		LoanID:             loan.ID,
		CustomerName:       customer.FullName(),
		CustomerPhone:      customer.Phone,
		ItemDescription:    item.Description,
		Principal:          loan.Principal,
		Balance:            loan.Balance,
		MonthlyInterestFee: loan.MonthlyInterestFee,
		TotalOwed:          AmountOwedAsOf(loan, asOf, l.pol),
		OriginalDueDate:    loan.OriginalDueDate,
		CurrentDueDate:     loan.CurrentDueDate,
		FinalForfeitDate:   loan.FinalForfeitDate,
		DaysUntilDue:       DaysUntilDue(loan, asOf),
		DaysOverdue:        l.pol.DaysOverdue(loan, asOf),
		Status:             StatusAsOf(loan, asOf, l.pol),
		RenewalsCount:      loan.RenewalsCount,
		LastPaymentDate:    loan.LastPaymentDate,
		WithinGracePeriod:  l.pol.WithinGracePeriod(loan, asOf),
		MinimumPayment:     l.pol.LateFeeDue(loan, asOf).Add(loan.MonthlyInterestFee),
		CanExtend:          open,
		CanRedeem:          open,
		ForfeitEligible:    IsForfeitEligible(loan, asOf),
	}, nil
}

// ReceiptView is the customer-facing receipt with the 3-month schedule.
type ReceiptView struct {
	LoanID        uuid.UUID `json:"loan_id"`
	ReceiptNumber string    `json:"receipt_number"`

	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	ItemDescription string `json:"item_description"`

	Principal          decimal.Decimal `json:"principal"`
	Balance            decimal.Decimal `json:"balance"`
	MonthlyInterestFee decimal.Decimal `json:"monthly_interest_fee"`
	TotalInterestPaid  decimal.Decimal `json:"total_interest_paid"`

	CurrentDueDate   time.Time         `json:"current_due_date"`
	DaysUntilDue     int               `json:"days_until_due"`
	RenewalsCount    int               `json:"renewals_count"`
	Status           models.LoanStatus `json:"status"`
	FinalForfeitDate time.Time         `json:"final_forfeit_date"`

	PaymentSchedule []ScheduleEntry `json:"payment_schedule"`
	ReceiptNotes    []string        `json:"receipt_notes"`
}

// Receipt builds a printable receipt projection for a loan.
func (l *Ledger) Receipt(loanID uuid.UUID, asOf time.Time) (*ReceiptView, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	customer, err := l.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return nil, err
	}
	item, err := l.storage.GetItem(loan.ItemID)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		return nil, err
	}

	interestPaid := decimal.Zero
	for _, p := range payments {
		interestPaid = interestPaid.Add(p.InterestPortion)
	}

	return &ReceiptView{
		LoanID:             loan.ID,
		ReceiptNumber:      loan.ReceiptNumber,
		CustomerName:       customer.FullName(),
		CustomerPhone:      customer.Phone,
		ItemDescription:    item.Description,
		Principal:          loan.Principal,
		Balance:            loan.Balance,
		MonthlyInterestFee: loan.MonthlyInterestFee,
		TotalInterestPaid:  interestPaid,
		CurrentDueDate:     loan.CurrentDueDate,
		DaysUntilDue:       DaysUntilDue(loan, asOf),
		RenewalsCount:      loan.RenewalsCount,
		Status:             StatusAsOf(loan, asOf, l.pol),
		FinalForfeitDate:   loan.FinalForfeitDate,
		PaymentSchedule:    PaymentSchedule(loan, l.pol),
		ReceiptNotes: []string{
			"Minimum payment to extend: monthly interest fee",
			"Extensions calculated from original due date",
			fmt.Sprintf("Late fee applies after %d-day grace period", l.pol.GraceDays),
			fmt.Sprintf("Item forfeited after %d months + %d days grace", l.pol.ForfeitMonths, l.pol.ForfeitGraceDays),
			"Cash payments only",
		},
	}, nil
}

// DueSummary buckets the open loan book for the dashboard and the sweep.
type DueSummary struct {
	DueSoon         []*models.PawnLoan `json:"due_soon"`
	Overdue         []*models.PawnLoan `json:"overdue"`
	ForfeitEligible []*models.PawnLoan `json:"forfeit_eligible"`

	TotalOpenLoans  int             `json:"total_open_loans"`
	PrincipalAtRisk decimal.Decimal `json:"principal_at_risk"`
	InterestPastDue decimal.Decimal `json:"interest_past_due"`
}

// DueLoans buckets open loans into due-soon, overdue, and forfeit-eligible
// as of a date. A forfeit-eligible loan is not double-counted as overdue.
func (l *Ledger) DueLoans(asOf time.Time, withinDays int) (*DueSummary, error) {
	loans, err := l.storage.GetOpenLoans()
	if err != nil {
		return nil, err
	}

	summary := &DueSummary{
		TotalOpenLoans:  len(loans),
		PrincipalAtRisk: decimal.Zero,
		InterestPastDue: decimal.Zero,
	}
	for _, loan := range loans {
		switch {
		case IsForfeitEligible(loan, asOf):
			summary.ForfeitEligible = append(summary.ForfeitEligible, loan)
			summary.PrincipalAtRisk = summary.PrincipalAtRisk.Add(loan.Balance)
		case l.pol.IsOverdue(loan, asOf):
			summary.Overdue = append(summary.Overdue, loan)
			summary.PrincipalAtRisk = summary.PrincipalAtRisk.Add(loan.Balance)
			summary.InterestPastDue = summary.InterestPastDue.Add(loan.MonthlyInterestFee)
		default:
			if days := DaysUntilDue(loan, asOf); days <= withinDays {
				summary.DueSoon = append(summary.DueSoon, loan)
			}
		}
	}
	return summary, nil
}

// RefreshPaymentInactivity recomputes months-without-payment for every open
// loan. Informational only; forfeiture stays purely date-based. Loans that
// lose a version race are skipped and picked up on the next sweep.
func (l *Ledger) RefreshPaymentInactivity(asOf time.Time) {
	loans, err := l.storage.GetOpenLoans()
	if err != nil {
		l.log.Error("inactivity sweep: listing open loans failed", zap.Error(err))
		return
	}

	for _, loan := range loans {
		anchor := dates.Truncate(loan.CreatedAt)
		if loan.LastPaymentDate != nil {
			anchor = dates.Truncate(*loan.LastPaymentDate)
		}
		day := dates.Truncate(asOf)
		months := dates.MonthsBetween(anchor, day)
		// MonthsBetween only looks at year and month; back off one when the
		// last whole month has not fully elapsed.
		if months > 0 && day.Before(dates.AddMonths(anchor, months)) {
			months--
		}
		if months < 0 {
			months = 0
		}
		if months == loan.MonthsWithoutPayment {
			continue
		}
		loan.MonthsWithoutPayment = months
		loan.UpdatedAt = time.Now()
		if err := l.storage.UpdateLoan(loan); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			l.log.Error("inactivity sweep: update failed",
				zap.String("loan_id", loan.ID.String()), zap.Error(err))
		}
	}
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.PawnLoan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.PawnLoan, error) {
	return l.storage.GetAllLoans()
}

// GetCustomer retrieves a customer by ID.
func (l *Ledger) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	return l.storage.GetCustomer(id)
}

// GetItem retrieves an item by ID.
func (l *Ledger) GetItem(id uuid.UUID) (*models.Item, error) {
	return l.storage.GetItem(id)
}

// GetPaymentsForLoan retrieves the payment history for a loan.
func (l *Ledger) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.PaymentRecord, error) {
	return l.storage.GetPaymentsForLoan(loanID)
}
