package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mcclellann/pawnLoan/pkg/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by UpdateLoan when the loan was
	// modified since it was read. Callers should re-read and retry.
	ErrVersionConflict = errors.New("loan version conflict")
)

// Storage defines the persistence operations for loans, payments, customers
// and items.
type Storage interface {
	CreateCustomer(customer *models.Customer) error
	GetCustomer(id uuid.UUID) (*models.Customer, error)

	CreateItem(item *models.Item) error
	GetItem(id uuid.UUID) (*models.Item, error)
	UpdateItemStatus(id uuid.UUID, status models.ItemStatus) error

	CreateLoan(loan *models.PawnLoan) error
	GetLoan(id uuid.UUID) (*models.PawnLoan, error)
	// UpdateLoan writes the loan conditionally on the version it was read
	// at, bumping Version on success and returning ErrVersionConflict if
	// another writer got there first.
	UpdateLoan(loan *models.PawnLoan) error
	GetAllLoans() ([]*models.PawnLoan, error)
	GetOpenLoans() ([]*models.PawnLoan, error)

	CreatePayment(payment *models.PaymentRecord) error
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.PaymentRecord, error)

	Close() error
}
