package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/notify"
	"gomhangpro/backend/internal/store"
)

// ErrForbidden marks a role or ownership violation. Handlers map it to 403.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	notifier notify.Notifier

	// nowFn is swapped in tests to drive date-sensitive behavior.
	nowFn func() time.Time
}

func New(repo store.Repository, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Noop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) now() time.Time {
	return s.nowFn()
}

func (s *Service) today() string {
	return s.nowFn().Format("2006-01-02")
}

func requireRole(ctx context.Context, min string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: missing actor", ErrForbidden)
	}
	if !domain.RoleAtLeast(actor.Role, min) {
		return actor, fmt.Errorf("%w: requires %s role", ErrForbidden, min)
	}
	return actor, nil
}

// ---- shift ledger ----

func (s *Service) CreateShift(ctx context.Context, req domain.ShiftCreateRequest) (domain.Shift, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Shift{}, err
	}

	req.StaffID = strings.TrimSpace(req.StaffID)
	req.CounterID = strings.TrimSpace(req.CounterID)
	req.Date = strings.TrimSpace(req.Date)
	if req.StaffID == "" {
		return domain.Shift{}, fmt.Errorf("%w: staffId required", store.ErrInvalid)
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return domain.Shift{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalid)
	}
	if req.InitialFloat < 0 {
		return domain.Shift{}, fmt.Errorf("%w: tienGiaoCaBanDau must not be negative", store.ErrInvalid)
	}

	staff, err := s.repo.GetUserByID(ctx, req.StaffID)
	if err != nil {
		return domain.Shift{}, err
	}
	if !staff.Active {
		return domain.Shift{}, fmt.Errorf("%w: staff account is inactive", store.ErrInvalid)
	}
	if req.CounterID != "" {
		counter, err := s.repo.GetCounterByID(ctx, req.CounterID)
		if err != nil {
			return domain.Shift{}, err
		}
		if !counter.Active {
			return domain.Shift{}, fmt.Errorf("%w: counter is inactive", store.ErrInvalid)
		}
	}
	if _, err := s.repo.GetActiveShiftForStaff(ctx, req.StaffID, req.Date); err == nil {
		return domain.Shift{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Shift{}, err
	}

	now := s.now()
	shift := domain.Shift{
		StaffID:       req.StaffID,
		CounterID:     req.CounterID,
		Date:          req.Date,
		InitialFloat:  req.InitialFloat,
		CurrentFloat:  req.InitialFloat,
		SpentTotal:    0,
		RemainingFund: req.InitialFloat,
		Status:        domain.ShiftStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return domain.Shift{}, err
	}
	return *created, nil
}

func (s *Service) StartShift(ctx context.Context, shiftID string) (domain.Shift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Shift{}, fmt.Errorf("%w: missing actor", ErrForbidden)
	}

	shift, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if shift.StaffID != actor.ID {
		return domain.Shift{}, fmt.Errorf("%w: shift belongs to another staff", ErrForbidden)
	}
	if shift.Status == domain.ShiftStatusEnded {
		return domain.Shift{}, store.ErrShiftEnded
	}
	if shift.StartTime != nil {
		return *shift, nil
	}

	now := s.now()
	shift.StartTime = &now
	shift.UpdatedAt = now
	saved, err := s.repo.UpdateShift(ctx, *shift)
	if err != nil {
		return domain.Shift{}, err
	}
	return *saved, nil
}

func (s *Service) EndShift(ctx context.Context, shiftID string) (domain.Shift, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Shift{}, err
	}

	shift, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if shift.Status == domain.ShiftStatusEnded {
		return domain.Shift{}, store.ErrShiftEnded
	}

	now := s.now()
	shift.EndTime = &now
	shift.Status = domain.ShiftStatusEnded
	shift.UpdatedAt = now
	saved, err := s.repo.UpdateShift(ctx, *shift)
	if err != nil {
		return domain.Shift{}, err
	}

	staffName := saved.StaffID
	if staff, err := s.repo.GetUserByID(ctx, saved.StaffID); err == nil {
		staffName = staff.Name
	}
	s.notifier.ShiftEnded(ctx, *saved, staffName)
	return *saved, nil
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (domain.Shift, error) {
	shift, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

// ListShifts sweeps expired shifts first so readers never see a stale
// active shift from a previous day. Workers only see their own shifts.
func (s *Service) ListShifts(ctx context.Context, date string, staffID string) ([]domain.Shift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: missing actor", ErrForbidden)
	}
	s.sweepQuietly(ctx)

	if actor.Role == domain.RoleWorker {
		staffID = actor.ID
	}
	return s.repo.ListShifts(ctx, date, staffID)
}

// GetCurrentShift returns the caller's active shift for today.
func (s *Service) GetCurrentShift(ctx context.Context) (domain.Shift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Shift{}, fmt.Errorf("%w: missing actor", ErrForbidden)
	}
	s.sweepQuietly(ctx)

	shift, err := s.repo.GetActiveShiftForStaff(ctx, actor.ID, s.today())
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) AddMoney(ctx context.Context, shiftID string, req domain.AddMoneyRequest) (domain.MoneyAddition, error) {
	actor, err := requireRole(ctx, domain.RoleManager)
	if err != nil {
		return domain.MoneyAddition{}, err
	}
	if req.Amount <= 0 {
		return domain.MoneyAddition{}, fmt.Errorf("%w: soTien must be positive", store.ErrInvalid)
	}

	now := s.now()
	addition := domain.MoneyAddition{
		ShiftID:   shiftID,
		Amount:    req.Amount,
		Note:      strings.TrimSpace(req.Note),
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.CreateMoneyAddition(ctx, addition)
	if err != nil {
		return domain.MoneyAddition{}, err
	}
	return *created, nil
}

func (s *Service) ListMoneyAdditions(ctx context.Context, shiftID string) ([]domain.MoneyAddition, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetShiftByID(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.ListMoneyAdditions(ctx, shiftID)
}

func (s *Service) UpdateMoneyAddition(ctx context.Context, shiftID string, additionID string, req domain.MoneyAdditionUpdateRequest) (domain.MoneyAddition, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.MoneyAddition{}, err
	}
	if req.Amount == nil && req.Note == nil {
		return domain.MoneyAddition{}, fmt.Errorf("%w: nothing to update", store.ErrInvalid)
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return domain.MoneyAddition{}, fmt.Errorf("%w: soTien must be positive", store.ErrInvalid)
	}
	updated, err := s.repo.UpdateMoneyAddition(ctx, shiftID, additionID, req.Amount, req.Note)
	if err != nil {
		return domain.MoneyAddition{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteMoneyAddition(ctx context.Context, shiftID string, additionID string) error {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}
	return s.repo.DeleteMoneyAddition(ctx, shiftID, additionID)
}

// UpdateShiftMoneyDirect is the admin override for a shift's float. The
// override is recorded as an adjustment addition so the history still
// derives the float exactly.
func (s *Service) UpdateShiftMoneyDirect(ctx context.Context, shiftID string, req domain.DirectMoneyUpdateRequest) (domain.Shift, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.NewFloat < 0 {
		return domain.Shift{}, fmt.Errorf("%w: tienGiaoCa must not be negative", store.ErrInvalid)
	}

	shift, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if shift.Status != domain.ShiftStatusActive {
		return domain.Shift{}, store.ErrShiftNotActive
	}

	delta := req.NewFloat - shift.CurrentFloat
	if delta == 0 {
		return *shift, nil
	}

	now := s.now()
	_, err = s.repo.CreateMoneyAddition(ctx, domain.MoneyAddition{
		ShiftID:   shiftID,
		Amount:    delta,
		Note:      fmt.Sprintf("Điều chỉnh trực tiếp: %dđ -> %dđ", shift.CurrentFloat, req.NewFloat),
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Shift{}, err
	}

	saved, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	return *saved, nil
}

// SweepExpiredShifts closes every still-active shift from a past date,
// zeroing its balances behind an audit record. Safe to call repeatedly.
func (s *Service) SweepExpiredShifts(ctx context.Context) ([]domain.SweepRecord, error) {
	records, err := s.repo.SweepExpiredShifts(ctx, s.today(), s.now())
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		log.Printf("[service] swept %d expired shift(s)", len(records))
		s.notifier.SweepCompleted(ctx, records)
	}
	return records, nil
}

func (s *Service) ListSweepRecords(ctx context.Context, date string) ([]domain.SweepRecord, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.ListSweepRecords(ctx, date)
}

// sweepQuietly runs the expiry sweep before a read; failures are logged,
// never surfaced to the reader.
func (s *Service) sweepQuietly(ctx context.Context) {
	if _, err := s.SweepExpiredShifts(ctx); err != nil {
		log.Printf("[service] WARN: expiry sweep failed: %v", err)
	}
}

// ---- order ledger ----

func orderTotal(o domain.Order) int64 {
	return o.GoodsCost + o.ServiceFee + o.PackingFee + o.Commission + o.Extra
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: missing actor", ErrForbidden)
	}

	req.ShiftID = strings.TrimSpace(req.ShiftID)
	if req.ShiftID == "" {
		return domain.Order{}, fmt.Errorf("%w: shiftId required", store.ErrInvalid)
	}
	if req.GoodsCost < 0 || req.ServiceFee < 0 || req.PackingFee < 0 || req.Commission < 0 {
		return domain.Order{}, fmt.Errorf("%w: money fields must not be negative", store.ErrInvalid)
	}

	shift, err := s.repo.GetShiftByID(ctx, req.ShiftID)
	if err != nil {
		return domain.Order{}, err
	}
	if shift.Status != domain.ShiftStatusActive {
		return domain.Order{}, store.ErrShiftNotActive
	}
	if shift.StaffID != actor.ID {
		return domain.Order{}, fmt.Errorf("%w: shift belongs to another staff", ErrForbidden)
	}

	customer, err := s.resolveCustomer(ctx, req.CustomerID, req.CustomerName)
	if err != nil {
		return domain.Order{}, err
	}
	counter, err := s.resolveCounter(ctx, req.CounterID, req.CounterName)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ShiftID:    req.ShiftID,
		CustomerID: customer.ID,
		CounterID:  counter.ID,
		StaffID:    actor.ID,
		GoodsCost:  req.GoodsCost,
		ServiceFee: req.ServiceFee,
		PackingFee: req.PackingFee,
		Commission: req.Commission,
		Extra:      req.Extra,
		ExtraNote:  strings.TrimSpace(req.ExtraNote),
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	order.Total = orderTotal(order)

	created, err := s.repo.CreateOrderWithDebit(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, shiftID string, date string) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, shiftID, date)
}

func (s *Service) UpdateOrder(ctx context.Context, orderID string, req domain.OrderUpdateRequest) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: missing actor", ErrForbidden)
	}
	if req.HasMoneyChange() && actor.Role != domain.RoleAdmin {
		return domain.Order{}, fmt.Errorf("%w: money edits require admin role", ErrForbidden)
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	updated := *order
	if req.GoodsCost != nil {
		if *req.GoodsCost < 0 {
			return domain.Order{}, fmt.Errorf("%w: tienHang must not be negative", store.ErrInvalid)
		}
		updated.GoodsCost = *req.GoodsCost
	}
	if req.ServiceFee != nil {
		updated.ServiceFee = *req.ServiceFee
	}
	if req.PackingFee != nil {
		updated.PackingFee = *req.PackingFee
	}
	if req.Commission != nil {
		updated.Commission = *req.Commission
	}
	if req.Extra != nil {
		updated.Extra = *req.Extra
	}
	if req.ExtraNote != nil {
		updated.ExtraNote = strings.TrimSpace(*req.ExtraNote)
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		switch status {
		case domain.OrderStatusPending, domain.OrderStatusCompleted, domain.OrderStatusCancelled:
			updated.Status = status
		default:
			return domain.Order{}, fmt.Errorf("%w: unknown order status %q", store.ErrInvalid, status)
		}
	}
	updated.Total = orderTotal(updated)
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateOrder(ctx, updated, updated.GoodsCost-order.GoodsCost)
	if err != nil {
		return domain.Order{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Order{}, err
	}
	deleted, err := s.repo.DeleteOrderWithCredit(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *deleted, nil
}

func (s *Service) resolveCustomer(ctx context.Context, id string, name string) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id != "" {
		return s.repo.GetCustomerByID(ctx, id)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: customerId or customerName required", store.ErrInvalid)
	}
	customer, err := s.repo.FindCustomerByName(ctx, name)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{Name: name, CreatedAt: s.now()})
}

func (s *Service) resolveCounter(ctx context.Context, id string, name string) (*domain.Counter, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id != "" {
		return s.repo.GetCounterByID(ctx, id)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: counterId or counterName required", store.ErrInvalid)
	}
	counter, err := s.repo.FindCounterByName(ctx, name)
	if err == nil {
		return counter, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.repo.CreateCounter(ctx, domain.Counter{Name: name, Active: true, CreatedAt: s.now()})
}

// ---- directory ----

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name required", store.ErrInvalid)
	}
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	updated := *existing
	if name := strings.TrimSpace(req.Name); name != "" {
		updated.Name = name
	}
	updated.Phone = strings.TrimSpace(req.Phone)
	updated.Address = strings.TrimSpace(req.Address)
	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	return s.repo.ListCounters(ctx)
}

func (s *Service) CreateCounter(ctx context.Context, req domain.CounterRequest) (domain.Counter, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Counter{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Counter{}, fmt.Errorf("%w: name required", store.ErrInvalid)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	created, err := s.repo.CreateCounter(ctx, domain.Counter{
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Active:    active,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Counter{}, err
	}
	return *created, nil
}

func (s *Service) GetCounter(ctx context.Context, id string) (domain.Counter, error) {
	counter, err := s.repo.GetCounterByID(ctx, id)
	if err != nil {
		return domain.Counter{}, err
	}
	return *counter, nil
}

func (s *Service) UpdateCounter(ctx context.Context, id string, req domain.CounterRequest) (domain.Counter, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Counter{}, err
	}
	existing, err := s.repo.GetCounterByID(ctx, id)
	if err != nil {
		return domain.Counter{}, err
	}
	updated := *existing
	if name := strings.TrimSpace(req.Name); name != "" {
		updated.Name = name
	}
	updated.Phone = strings.TrimSpace(req.Phone)
	updated.Address = strings.TrimSpace(req.Address)
	if req.Active != nil {
		updated.Active = *req.Active
	}
	saved, err := s.repo.UpdateCounter(ctx, updated)
	if err != nil {
		return domain.Counter{}, err
	}
	return *saved, nil
}

// ---- reporting ----

func (s *Service) GetShiftReport(ctx context.Context, date string) (domain.ShiftReport, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.ShiftReport{}, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.today()
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.ShiftReport{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalid)
	}
	return s.repo.GetShiftReport(ctx, date)
}
