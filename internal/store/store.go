package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gomhangpro/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalid         = errors.New("invalid request")
	ErrShiftNotActive  = errors.New("shift is not active")
	ErrShiftEnded      = errors.New("shift already ended")
	ErrOrderNotPending = errors.New("order is not pending")

	ErrInsufficientFunds = errors.New("insufficient funds")
)

// FundsError reports a rejected order debit together with the shortfall
// amounts, so the caller can show both sides of the comparison.
type FundsError struct {
	Available int64
	Required  int64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("quỹ còn lại không đủ: còn %dđ, cần %dđ", e.Available, e.Required)
}

func (e *FundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Repository is the persistence surface shared by the postgres and memory
// stores. Operations that touch a shift's balances together with another
// row (order insert/delete, addition changes) are atomic in both
// implementations.
type Repository interface {
	// Shifts.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShiftByID(ctx context.Context, id string) (*domain.Shift, error)
	ListShifts(ctx context.Context, date string, staffID string) ([]domain.Shift, error)
	GetActiveShiftForStaff(ctx context.Context, staffID string, date string) (*domain.Shift, error)
	UpdateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)

	// Money additions. Every mutation re-derives the owning shift's float
	// from the full addition history in the same transaction.
	CreateMoneyAddition(ctx context.Context, addition domain.MoneyAddition) (*domain.MoneyAddition, error)
	UpdateMoneyAddition(ctx context.Context, shiftID string, additionID string, amount *int64, note *string) (*domain.MoneyAddition, error)
	DeleteMoneyAddition(ctx context.Context, shiftID string, additionID string) error
	ListMoneyAdditions(ctx context.Context, shiftID string) ([]domain.MoneyAddition, error)

	// Orders. Create/delete debit/credit the owning shift atomically;
	// an update that changes the goods cost adjusts the debit by the delta.
	CreateOrderWithDebit(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, shiftID string, date string) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order, goodsCostDelta int64) (*domain.Order, error)
	DeleteOrderWithCredit(ctx context.Context, orderID string) (*domain.Order, error)

	// Expiry sweep. Each expired shift is closed in its own transaction;
	// individual failures are logged and skipped, never aborting the batch.
	SweepExpiredShifts(ctx context.Context, today string, now time.Time) ([]domain.SweepRecord, error)
	ListSweepRecords(ctx context.Context, date string) ([]domain.SweepRecord, error)

	// Directory.
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	ListCounters(ctx context.Context) ([]domain.Counter, error)
	CreateCounter(ctx context.Context, counter domain.Counter) (*domain.Counter, error)
	GetCounterByID(ctx context.Context, id string) (*domain.Counter, error)
	FindCounterByName(ctx context.Context, name string) (*domain.Counter, error)
	UpdateCounter(ctx context.Context, counter domain.Counter) (*domain.Counter, error)

	// Staff.
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)

	// Reporting.
	GetShiftReport(ctx context.Context, date string) (domain.ShiftReport, error)
}
