package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/store"
	"gomhangpro/backend/internal/xid"
)

// Store is the in-memory repository used for tests and dev mode. All
// multi-row mutations happen under one lock, which gives the same
// atomicity the postgres store gets from SQL transactions.
type Store struct {
	mu               sync.RWMutex
	shiftsByID       map[string]domain.Shift
	additionsByShift map[string][]domain.MoneyAddition
	ordersByID       map[string]domain.Order
	customersByID    map[string]domain.Customer
	countersByID     map[string]domain.Counter
	usersByID        map[string]domain.UserAccount
	sweepRecords     []domain.SweepRecord
}

func New() *Store {
	return &Store{
		shiftsByID:       make(map[string]domain.Shift),
		additionsByShift: make(map[string][]domain.MoneyAddition),
		ordersByID:       make(map[string]domain.Order),
		customersByID:    make(map[string]domain.Customer),
		countersByID:     make(map[string]domain.Counter),
		usersByID:        make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial staff accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD / SEED_MANAGER_PASSWORD /
// SEED_WORKER_PASSWORD; hardcoded dev defaults are used if unset, with a
// warning. Production deployments run against PostgreSQL instead.
func seedUsers() map[string]domain.UserAccount {
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_WORKER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_*_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		name     string
		email    string
		password string
		role     string
	}{
		{"user-admin", "Chủ cửa hàng", "admin@gomhang.vn", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"user-manager", "Quản lý ca", "manager@gomhang.vn", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{"user-worker", "Nhân viên gom", "worker@gomhang.vn", envOr("SEED_WORKER_PASSWORD", "worker123"), domain.RoleWorker},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.id] = domain.UserAccount{
			ID:           u.id,
			Name:         u.name,
			Email:        u.email,
			Role:         u.role,
			Active:       true,
			PasswordHash: string(hash),
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.usersByID = seedUsers()

	now := time.Now().UTC()
	for _, c := range []domain.Counter{
		{ID: "counter-q5", Name: "Sạp 25 An Đông", Phone: "0903111222", Address: "Chợ An Đông, Quận 5", Active: true, CreatedAt: now},
		{ID: "counter-tb", Name: "Sạp 7 Tân Bình", Phone: "0903333444", Address: "Chợ Tân Bình", Active: true, CreatedAt: now},
	} {
		s.countersByID[c.ID] = c
	}
	for _, c := range []domain.Customer{
		{ID: "cust-lan", Name: "Chị Lan", Phone: "0912000111", Address: "Đà Lạt", CreatedAt: now},
		{ID: "cust-hung", Name: "Anh Hùng", Phone: "0912000222", CreatedAt: now},
	} {
		s.customersByID[c.ID] = c
	}
	return s
}

// --- shifts ---

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.shiftsByID {
		if existing.StaffID == shift.StaffID && existing.Date == shift.Date && existing.Status == domain.ShiftStatusActive {
			return nil, store.ErrConflict
		}
	}

	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.CreatedAt.IsZero() {
		shift.CreatedAt = time.Now().UTC()
	}
	shift.UpdatedAt = shift.CreatedAt
	s.shiftsByID[shift.ID] = shift

	created := shift
	return &created, nil
}

func (s *Store) GetShiftByID(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := shift
	return &found, nil
}

func (s *Store) ListShifts(_ context.Context, date string, staffID string) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shifts := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		if date != "" && shift.Date != date {
			continue
		}
		if staffID != "" && shift.StaffID != staffID {
			continue
		}
		shifts = append(shifts, shift)
	}
	sort.Slice(shifts, func(i, j int) bool {
		if shifts[i].Date == shifts[j].Date {
			return shifts[i].CreatedAt.After(shifts[j].CreatedAt)
		}
		return shifts[i].Date > shifts[j].Date
	})
	return shifts, nil
}

func (s *Store) GetActiveShiftForStaff(_ context.Context, staffID string, date string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, shift := range s.shiftsByID {
		if shift.StaffID == staffID && shift.Status == domain.ShiftStatusActive && (date == "" || shift.Date == date) {
			found := shift
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shiftsByID[shift.ID]; !ok {
		return nil, store.ErrNotFound
	}
	shift.UpdatedAt = time.Now().UTC()
	s.shiftsByID[shift.ID] = shift

	updated := shift
	return &updated, nil
}

// recomputeLocked re-derives the shift's float from the full addition
// history and refreshes the remaining fund. Caller holds the write lock.
func (s *Store) recomputeLocked(shiftID string) {
	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return
	}
	var sum int64
	for _, addition := range s.additionsByShift[shiftID] {
		sum += addition.Amount
	}
	shift.CurrentFloat = shift.InitialFloat + sum
	shift.RemainingFund = shift.CurrentFloat - shift.SpentTotal
	shift.UpdatedAt = time.Now().UTC()
	s.shiftsByID[shiftID] = shift
}

// --- money additions ---

func (s *Store) CreateMoneyAddition(_ context.Context, addition domain.MoneyAddition) (*domain.MoneyAddition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[addition.ShiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusActive {
		return nil, store.ErrShiftNotActive
	}
	if addition.Amount == 0 {
		return nil, store.ErrInvalid
	}

	if addition.ID == "" {
		addition.ID = xid.New("add")
	}
	if addition.CreatedAt.IsZero() {
		addition.CreatedAt = time.Now().UTC()
	}
	addition.UpdatedAt = addition.CreatedAt
	s.additionsByShift[addition.ShiftID] = append(s.additionsByShift[addition.ShiftID], addition)
	s.recomputeLocked(addition.ShiftID)

	created := addition
	return &created, nil
}

func (s *Store) UpdateMoneyAddition(_ context.Context, shiftID string, additionID string, amount *int64, note *string) (*domain.MoneyAddition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusActive {
		return nil, store.ErrShiftNotActive
	}

	additions := s.additionsByShift[shiftID]
	for i, addition := range additions {
		if addition.ID != additionID {
			continue
		}
		if amount != nil {
			if *amount <= 0 {
				return nil, store.ErrInvalid
			}
			addition.Amount = *amount
		}
		if note != nil {
			addition.Note = *note
		}
		addition.UpdatedAt = time.Now().UTC()
		additions[i] = addition
		s.recomputeLocked(shiftID)

		updated := addition
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteMoneyAddition(_ context.Context, shiftID string, additionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusActive {
		return store.ErrShiftNotActive
	}

	additions := s.additionsByShift[shiftID]
	for i, addition := range additions {
		if addition.ID == additionID {
			s.additionsByShift[shiftID] = append(additions[:i], additions[i+1:]...)
			s.recomputeLocked(shiftID)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListMoneyAdditions(_ context.Context, shiftID string) ([]domain.MoneyAddition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.shiftsByID[shiftID]; !ok {
		return nil, store.ErrNotFound
	}
	additions := make([]domain.MoneyAddition, len(s.additionsByShift[shiftID]))
	copy(additions, s.additionsByShift[shiftID])
	sort.Slice(additions, func(i, j int) bool {
		return additions[i].CreatedAt.Before(additions[j].CreatedAt)
	})
	return additions, nil
}

// --- orders ---

func (s *Store) CreateOrderWithDebit(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[order.ShiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusActive {
		return nil, store.ErrShiftNotActive
	}
	if shift.RemainingFund < order.GoodsCost {
		return nil, &store.FundsError{Available: shift.RemainingFund, Required: order.GoodsCost}
	}

	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	s.ordersByID[order.ID] = order

	shift.SpentTotal += order.GoodsCost
	shift.RemainingFund = shift.CurrentFloat - shift.SpentTotal
	shift.UpdatedAt = order.UpdatedAt
	s.shiftsByID[shift.ID] = shift

	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := order
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, shiftID string, date string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if shiftID != "" && order.ShiftID != shiftID {
			continue
		}
		if date != "" {
			shift, ok := s.shiftsByID[order.ShiftID]
			if !ok || shift.Date != date {
				continue
			}
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.Order, goodsCostDelta int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ordersByID[order.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if goodsCostDelta > 0 {
		if shift, ok := s.shiftsByID[order.ShiftID]; ok && shift.RemainingFund < goodsCostDelta {
			return nil, &store.FundsError{Available: shift.RemainingFund, Required: goodsCostDelta}
		}
	}
	order.UpdatedAt = time.Now().UTC()
	s.ordersByID[order.ID] = order

	if goodsCostDelta != 0 {
		if shift, ok := s.shiftsByID[order.ShiftID]; ok {
			shift.SpentTotal += goodsCostDelta
			shift.RemainingFund = shift.CurrentFloat - shift.SpentTotal
			shift.UpdatedAt = order.UpdatedAt
			s.shiftsByID[shift.ID] = shift
		}
	}

	updated := order
	return &updated, nil
}

func (s *Store) DeleteOrderWithCredit(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, store.ErrOrderNotPending
	}

	delete(s.ordersByID, orderID)

	if shift, ok := s.shiftsByID[order.ShiftID]; ok {
		shift.SpentTotal -= order.GoodsCost
		shift.RemainingFund = shift.CurrentFloat - shift.SpentTotal
		shift.UpdatedAt = time.Now().UTC()
		s.shiftsByID[shift.ID] = shift
	}

	deleted := order
	return &deleted, nil
}

// --- sweep ---

func (s *Store) SweepExpiredShifts(_ context.Context, today string, now time.Time) ([]domain.SweepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := make([]domain.SweepRecord, 0, 4)
	for id, shift := range s.shiftsByID {
		if shift.Status != domain.ShiftStatusActive || shift.Date >= today {
			continue
		}

		record := domain.SweepRecord{
			ID:           xid.New("sweep"),
			ShiftID:      id,
			Date:         shift.Date,
			ClearedFloat: shift.CurrentFloat,
			ClearedSpent: shift.SpentTotal,
			ClearedFund:  shift.RemainingFund,
			SweptAt:      now,
		}
		s.sweepRecords = append(s.sweepRecords, record)

		endTime := now
		shift.CurrentFloat = 0
		shift.SpentTotal = 0
		shift.RemainingFund = 0
		shift.Status = domain.ShiftStatusEnded
		shift.EndTime = &endTime
		shift.UpdatedAt = now
		s.shiftsByID[id] = shift

		swept = append(swept, record)
	}
	return swept, nil
}

func (s *Store) ListSweepRecords(_ context.Context, date string) ([]domain.SweepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.SweepRecord, 0, len(s.sweepRecords))
	for _, record := range s.sweepRecords {
		if date != "" && record.Date != date {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// --- customers ---

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalid
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) FindCustomerByName(_ context.Context, name string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, customer := range s.customersByID {
		if strings.EqualFold(customer.Name, name) {
			found := customer
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[customer.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.customersByID[customer.ID] = customer

	updated := customer
	return &updated, nil
}

// --- counters ---

func (s *Store) ListCounters(_ context.Context) ([]domain.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make([]domain.Counter, 0, len(s.countersByID))
	for _, c := range s.countersByID {
		counters = append(counters, c)
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].Name < counters[j].Name })
	return counters, nil
}

func (s *Store) CreateCounter(_ context.Context, counter domain.Counter) (*domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(counter.Name) == "" {
		return nil, store.ErrInvalid
	}
	if counter.ID == "" {
		counter.ID = xid.New("counter")
	}
	if counter.CreatedAt.IsZero() {
		counter.CreatedAt = time.Now().UTC()
	}
	s.countersByID[counter.ID] = counter

	created := counter
	return &created, nil
}

func (s *Store) GetCounterByID(_ context.Context, id string) (*domain.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counter, ok := s.countersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := counter
	return &found, nil
}

func (s *Store) FindCounterByName(_ context.Context, name string) (*domain.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, counter := range s.countersByID {
		if strings.EqualFold(counter.Name, name) {
			found := counter
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCounter(_ context.Context, counter domain.Counter) (*domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.countersByID[counter.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.countersByID[counter.ID] = counter

	updated := counter
	return &updated, nil
}

// --- staff ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.usersByID {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, store.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user

	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByID {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[user.ID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.usersByID {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return nil, store.ErrConflict
		}
	}
	s.usersByID[user.ID] = user

	updated := user
	return &updated, nil
}

// --- reporting ---

func (s *Store) GetShiftReport(_ context.Context, date string) (domain.ShiftReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.ShiftReport{Date: date, Rows: make([]domain.ShiftReportRow, 0, 8)}
	for id, shift := range s.shiftsByID {
		if shift.Date != date {
			continue
		}

		row := domain.ShiftReportRow{
			ShiftID:       id,
			Status:        shift.Status,
			InitialFloat:  shift.InitialFloat,
			CurrentFloat:  shift.CurrentFloat,
			SpentTotal:    shift.SpentTotal,
			RemainingFund: shift.RemainingFund,
		}
		if staff, ok := s.usersByID[shift.StaffID]; ok {
			row.StaffName = staff.Name
		}
		if counter, ok := s.countersByID[shift.CounterID]; ok {
			row.CounterName = counter.Name
		}
		for _, order := range s.ordersByID {
			if order.ShiftID == id {
				row.OrderCount++
			}
		}

		report.Rows = append(report.Rows, row)
		report.TotalFloat += shift.CurrentFloat
		report.TotalSpent += shift.SpentTotal
		report.TotalRemained += shift.RemainingFund
	}
	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].StaffName < report.Rows[j].StaffName })
	return report, nil
}
