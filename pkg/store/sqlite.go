package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/pawnLoan/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		monthly_interest_fee TEXT NOT NULL,
		balance TEXT NOT NULL,
		original_due_date DATETIME NOT NULL,
		current_due_date DATETIME NOT NULL,
		final_forfeit_date DATETIME NOT NULL,
		renewals_count INTEGER NOT NULL DEFAULT 0,
		last_payment_date DATETIME,
		months_without_payment INTEGER NOT NULL DEFAULT 0,
		forfeited INTEGER NOT NULL DEFAULT 0,
		receipt_number TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY(customer_id) REFERENCES customers(id),
		FOREIGN KEY(item_id) REFERENCES items(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		late_fee_portion TEXT NOT NULL DEFAULT '0',
		interest_portion TEXT NOT NULL DEFAULT '0',
		principal_portion TEXT NOT NULL DEFAULT '0',
		overpayment TEXT NOT NULL DEFAULT '0',
		payment_date DATETIME NOT NULL,
		receipt_number TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateCustomer inserts a new customer.
func (s *SQLiteStore) CreateCustomer(c *models.Customer) error {
	_, err := s.db.Exec(
		`INSERT INTO customers (id, first_name, last_name, phone, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.FirstName, c.LastName, c.Phone, c.Status, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *SQLiteStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	var idStr string
	row := s.db.QueryRow(`SELECT id, first_name, last_name, phone, status, created_at FROM customers WHERE id = ?`, id.String())
	if err := row.Scan(&idStr, &c.FirstName, &c.LastName, &c.Phone, &c.Status, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.ID = uuid.MustParse(idStr)
	return &c, nil
}

// CreateItem inserts a new item.
func (s *SQLiteStore) CreateItem(i *models.Item) error {
	_, err := s.db.Exec(
		`INSERT INTO items (id, customer_id, description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		i.ID.String(), i.CustomerID.String(), i.Description, i.Status, i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *SQLiteStore) GetItem(id uuid.UUID) (*models.Item, error) {
	var i models.Item
	var idStr, custStr string
	row := s.db.QueryRow(`SELECT id, customer_id, description, status, created_at FROM items WHERE id = ?`, id.String())
	if err := row.Scan(&idStr, &custStr, &i.Description, &i.Status, &i.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	i.ID = uuid.MustParse(idStr)
	i.CustomerID = uuid.MustParse(custStr)
	return &i, nil
}

// UpdateItemStatus sets the status of an item.
func (s *SQLiteStore) UpdateItemStatus(id uuid.UUID, status models.ItemStatus) error {
	result, err := s.db.Exec(`UPDATE items SET status = ? WHERE id = ?`, status, id.String())
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

const loanColumns = `id, customer_id, item_id, principal, monthly_interest_fee, balance,
	original_due_date, current_due_date, final_forfeit_date,
	renewals_count, last_payment_date, months_without_payment, forfeited,
	receipt_number, notes, created_at, updated_at, version`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.PawnLoan) error {
	if loan.Version == 0 {
		loan.Version = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID.String(), loan.ItemID.String(),
		loan.Principal, loan.MonthlyInterestFee, loan.Balance,
		loan.OriginalDueDate, loan.CurrentDueDate, loan.FinalForfeitDate,
		loan.RenewalsCount, loan.LastPaymentDate, loan.MonthsWithoutPayment, loan.Forfeited,
		loan.ReceiptNumber, loan.Notes, loan.CreatedAt, loan.UpdatedAt, loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.PawnLoan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan writes the loan guarded by the version it was read at. The
// in-memory Version is bumped to match the stored row on success.
func (s *SQLiteStore) UpdateLoan(loan *models.PawnLoan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET balance = ?, current_due_date = ?, renewals_count = ?,
			last_payment_date = ?, months_without_payment = ?, forfeited = ?,
			notes = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		loan.Balance, loan.CurrentDueDate, loan.RenewalsCount,
		loan.LastPaymentDate, loan.MonthsWithoutPayment, loan.Forfeited,
		loan.Notes, loan.UpdatedAt,
		loan.ID.String(), loan.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM loans WHERE id = ?`, loan.ID.String()).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check loan existence: %w", err)
		}
		return fmt.Errorf("loan %s: %w", loan.ID, ErrVersionConflict)
	}
	loan.Version++
	return nil
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.PawnLoan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// GetOpenLoans retrieves loans that are neither redeemed nor forfeited.
// Balance is a TEXT column with varying scale ("0" vs "0.00"), so the
// redeemed filter happens after scanning.
func (s *SQLiteStore) GetOpenLoans() ([]*models.PawnLoan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans WHERE forfeited = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}
	defer rows.Close()

	loans, err := scanLoans(rows)
	if err != nil {
		return nil, err
	}
	open := loans[:0]
	for _, loan := range loans {
		if !loan.Redeemed() {
			open = append(open, loan)
		}
	}
	return open, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*models.PawnLoan, error) {
	var loan models.PawnLoan
	var idStr, custStr, itemStr string
	var lastPayment sql.NullTime
	err := row.Scan(
		&idStr, &custStr, &itemStr,
		&loan.Principal, &loan.MonthlyInterestFee, &loan.Balance,
		&loan.OriginalDueDate, &loan.CurrentDueDate, &loan.FinalForfeitDate,
		&loan.RenewalsCount, &lastPayment, &loan.MonthsWithoutPayment, &loan.Forfeited,
		&loan.ReceiptNumber, &loan.Notes, &loan.CreatedAt, &loan.UpdatedAt, &loan.Version,
	)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.CustomerID = uuid.MustParse(custStr)
	loan.ItemID = uuid.MustParse(itemStr)
	if lastPayment.Valid {
		t := lastPayment.Time
		loan.LastPaymentDate = &t
	}
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.PawnLoan, error) {
	var loans []*models.PawnLoan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CreatePayment inserts a new payment record.
func (s *SQLiteStore) CreatePayment(p *models.PaymentRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (id, loan_id, type, amount, late_fee_portion, interest_portion, principal_portion, overpayment, payment_date, receipt_number, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.Type, p.Amount,
		p.LateFeePortion, p.InterestPortion, p.PrincipalPortion, p.Overpayment,
		p.PaymentDate, p.ReceiptNumber, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentsForLoan retrieves all payment records for a loan, oldest first.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.PaymentRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, type, amount, late_fee_portion, interest_portion, principal_portion, overpayment, payment_date, receipt_number, notes, created_at
		FROM payments WHERE loan_id = ? ORDER BY created_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.PaymentRecord
	for rows.Next() {
		var p models.PaymentRecord
		var idStr, loanStr string
		var paymentDate time.Time
		if err := rows.Scan(&idStr, &loanStr, &p.Type, &p.Amount, &p.LateFeePortion, &p.InterestPortion, &p.PrincipalPortion, &p.Overpayment, &paymentDate, &p.ReceiptNumber, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.LoanID = uuid.MustParse(loanStr)
		p.PaymentDate = paymentDate
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
