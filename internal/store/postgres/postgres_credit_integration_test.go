package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"gomhangpro/backend/internal/domain"
)

func TestDeleteOrderCreditsShiftFund(t *testing.T) {
	databaseURL := os.Getenv("GOMHANG_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GOMHANG_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	staffID := fmt.Sprintf("user-credit-it-%d", stamp)
	customerID := fmt.Sprintf("cust-credit-it-%d", stamp)
	counterID := fmt.Sprintf("counter-credit-it-%d", stamp)
	shiftID := fmt.Sprintf("shift-credit-it-%d", stamp)
	date := time.Now().UTC().Format("2006-01-02")

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE shift_id = $1`, shiftID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, shiftID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM counters WHERE id = $1`, counterID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, staffID)
	})

	now := time.Now().UTC()
	if _, err := s.CreateUser(ctx, domain.UserAccount{
		ID:           staffID,
		Name:         "Nhân viên IT",
		Email:        fmt.Sprintf("credit-it-%d@gomhang.vn", stamp),
		Role:         domain.RoleWorker,
		Active:       true,
		PasswordHash: "x",
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateCustomer(ctx, domain.Customer{
		ID: customerID, Name: fmt.Sprintf("Khách IT %d", stamp), CreatedAt: now,
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := s.CreateCounter(ctx, domain.Counter{
		ID: counterID, Name: fmt.Sprintf("Sạp IT %d", stamp), Active: true, CreatedAt: now,
	}); err != nil {
		t.Fatalf("create counter: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{
		ID:           shiftID,
		StaffID:      staffID,
		CounterID:    counterID,
		Date:         date,
		InitialFloat: 1_000_000,
		Status:       domain.ShiftStatusActive,
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("create shift: %v", err)
	}

	order, err := s.CreateOrderWithDebit(ctx, domain.Order{
		ShiftID:    shiftID,
		CustomerID: customerID,
		CounterID:  counterID,
		StaffID:    staffID,
		GoodsCost:  300_000,
		ServiceFee: 20_000,
		Total:      320_000,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	sh, err := s.GetShiftByID(ctx, shiftID)
	if err != nil {
		t.Fatalf("get shift after debit: %v", err)
	}
	if sh.SpentTotal != 300_000 || sh.RemainingFund != 700_000 {
		t.Fatalf("expected spent 300000 / fund 700000 after debit, got %d / %d",
			sh.SpentTotal, sh.RemainingFund)
	}

	if _, err := s.DeleteOrderWithCredit(ctx, order.ID); err != nil {
		t.Fatalf("delete order: %v", err)
	}

	sh, err = s.GetShiftByID(ctx, shiftID)
	if err != nil {
		t.Fatalf("get shift after credit: %v", err)
	}
	if sh.SpentTotal != 0 || sh.RemainingFund != 1_000_000 {
		t.Fatalf("expected spent 0 / fund 1000000 after credit, got %d / %d",
			sh.SpentTotal, sh.RemainingFund)
	}

	if _, err := s.GetOrderByID(ctx, order.ID); err == nil {
		t.Fatal("expected deleted order to be gone")
	}
}
