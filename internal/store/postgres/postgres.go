package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/store"
	"gomhangpro/backend/internal/xid"
)

// Store is the postgres-backed Repository. Shift balances are only ever
// mutated inside a transaction that row-locks the shift first.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS app_users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		address TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS counters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		address TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL REFERENCES app_users(id),
		counter_id TEXT REFERENCES counters(id),
		shift_date DATE NOT NULL,
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		initial_float BIGINT NOT NULL DEFAULT 0,
		current_float BIGINT NOT NULL DEFAULT 0,
		spent_total BIGINT NOT NULL DEFAULT 0,
		remaining_fund BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS shifts_active_staff_date
		ON shifts (staff_id, shift_date) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS shift_money_additions (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id) ON DELETE CASCADE,
		amount BIGINT NOT NULL,
		note TEXT,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		customer_id TEXT NOT NULL REFERENCES customers(id),
		counter_id TEXT NOT NULL REFERENCES counters(id),
		staff_id TEXT,
		goods_cost BIGINT NOT NULL,
		service_fee BIGINT NOT NULL DEFAULT 0,
		packing_fee BIGINT NOT NULL DEFAULT 0,
		commission BIGINT NOT NULL DEFAULT 0,
		extra BIGINT NOT NULL DEFAULT 0,
		extra_note TEXT,
		total BIGINT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_shift_idx ON orders (shift_id)`,
	`CREATE TABLE IF NOT EXISTS sweep_records (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL,
		shift_date DATE NOT NULL,
		cleared_float BIGINT NOT NULL,
		cleared_spent BIGINT NOT NULL,
		cleared_fund BIGINT NOT NULL,
		swept_at TIMESTAMPTZ NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migrate: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

// ---- shifts ----

const shiftColumns = `id, staff_id, COALESCE(counter_id, ''), to_char(shift_date, 'YYYY-MM-DD'),
	start_time, end_time, initial_float, current_float, spent_total, remaining_fund,
	status, created_at, updated_at`

func scanShift(row interface{ Scan(...any) error }) (*domain.Shift, error) {
	var sh domain.Shift
	var start, end sql.NullTime
	err := row.Scan(&sh.ID, &sh.StaffID, &sh.CounterID, &sh.Date,
		&start, &end, &sh.InitialFloat, &sh.CurrentFloat, &sh.SpentTotal,
		&sh.RemainingFund, &sh.Status, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time
		sh.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		sh.EndTime = &t
	}
	return &sh, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, staff_id, counter_id, shift_date, start_time,
			initial_float, current_float, spent_total, remaining_fund, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, 0, $6, $7, $8, $8)`,
		shift.ID, shift.StaffID, nullIfEmpty(shift.CounterID), shift.Date,
		nullTimePtr(shift.StartTime), shift.InitialFloat, shift.Status,
		shift.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert shift: %w", err)
	}
	return s.GetShiftByID(ctx, shift.ID)
}

func (s *Store) GetShiftByID(ctx context.Context, id string) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	sh, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return sh, nil
}

func (s *Store) ListShifts(ctx context.Context, date string, staffID string) ([]domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts`
	var conds []string
	var args []any
	if date != "" {
		args = append(args, date)
		conds = append(conds, fmt.Sprintf("shift_date = $%d", len(args)))
	}
	if staffID != "" {
		args = append(args, staffID)
		conds = append(conds, fmt.Sprintf("staff_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	shifts := []domain.Shift{}
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, *sh)
	}
	return shifts, rows.Err()
}

func (s *Store) GetActiveShiftForStaff(ctx context.Context, staffID string, date string) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE staff_id = $1 AND shift_date = $2 AND status = 'active'`,
		staffID, date)
	sh, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active shift: %w", err)
	}
	return sh, nil
}

func (s *Store) UpdateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts SET counter_id = $2, start_time = $3, end_time = $4,
			initial_float = $5, current_float = $6, spent_total = $7,
			remaining_fund = $8, status = $9, updated_at = $10
		WHERE id = $1`,
		shift.ID, nullIfEmpty(shift.CounterID), nullTimePtr(shift.StartTime),
		nullTimePtr(shift.EndTime), shift.InitialFloat, shift.CurrentFloat,
		shift.SpentTotal, shift.RemainingFund, shift.Status, shift.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update shift: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetShiftByID(ctx, shift.ID)
}

// ---- money additions ----

// recomputeShiftTx re-derives the float and remaining fund from the full
// addition history. Callers must hold the shift row lock.
func recomputeShiftTx(ctx context.Context, tx *sql.Tx, shiftID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		WITH adds AS (
			SELECT COALESCE(SUM(amount), 0) AS total
			FROM shift_money_additions WHERE shift_id = $1
		)
		UPDATE shifts SET
			current_float = initial_float + adds.total,
			remaining_fund = initial_float + adds.total - spent_total,
			updated_at = $2
		FROM adds WHERE id = $1`, shiftID, now)
	if err != nil {
		return fmt.Errorf("recompute shift %s: %w", shiftID, err)
	}
	return nil
}

func lockShiftTx(ctx context.Context, tx *sql.Tx, shiftID string) (*domain.Shift, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = $1 FOR UPDATE`, shiftID)
	sh, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock shift: %w", err)
	}
	return sh, nil
}

func (s *Store) CreateMoneyAddition(ctx context.Context, addition domain.MoneyAddition) (*domain.MoneyAddition, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin add money: %w", err)
	}
	defer tx.Rollback()

	sh, err := lockShiftTx(ctx, tx, addition.ShiftID)
	if err != nil {
		return nil, err
	}
	if sh.Status != domain.ShiftStatusActive {
		return nil, store.ErrShiftNotActive
	}

	if addition.ID == "" {
		addition.ID = xid.New("madd")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO shift_money_additions (id, shift_id, amount, note, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		addition.ID, addition.ShiftID, addition.Amount, nullIfEmpty(addition.Note),
		nullIfEmpty(addition.CreatedBy), addition.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert addition: %w", err)
	}
	if err := recomputeShiftTx(ctx, tx, addition.ShiftID, addition.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add money: %w", err)
	}
	addition.UpdatedAt = addition.CreatedAt
	return &addition, nil
}

func (s *Store) UpdateMoneyAddition(ctx context.Context, shiftID string, additionID string, amount *int64, note *string) (*domain.MoneyAddition, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin edit addition: %w", err)
	}
	defer tx.Rollback()

	sh, err := lockShiftTx(ctx, tx, shiftID)
	if err != nil {
		return nil, err
	}
	if sh.Status != domain.ShiftStatusActive {
		return nil, store.ErrShiftNotActive
	}

	now := time.Now().UTC()
	var out domain.MoneyAddition
	var noteDB, createdByDB sql.NullString
	err = tx.QueryRowContext(ctx, `
		UPDATE shift_money_additions SET
			amount = COALESCE($3, amount),
			note = COALESCE($4, note),
			updated_at = $5
		WHERE id = $1 AND shift_id = $2
		RETURNING id, shift_id, amount, note, created_by, created_at, updated_at`,
		additionID, shiftID, amount, note, now).
		Scan(&out.ID, &out.ShiftID, &out.Amount, &noteDB, &createdByDB,
			&out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update addition: %w", err)
	}
	out.Note = noteDB.String
	out.CreatedBy = createdByDB.String

	if err := recomputeShiftTx(ctx, tx, shiftID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit edit addition: %w", err)
	}
	return &out, nil
}

func (s *Store) DeleteMoneyAddition(ctx context.Context, shiftID string, additionID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin delete addition: %w", err)
	}
	defer tx.Rollback()

	sh, err := lockShiftTx(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	if sh.Status != domain.ShiftStatusActive {
		return store.ErrShiftNotActive
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM shift_money_additions WHERE id = $1 AND shift_id = $2`,
		additionID, shiftID)
	if err != nil {
		return fmt.Errorf("delete addition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if err := recomputeShiftTx(ctx, tx, shiftID, time.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete addition: %w", err)
	}
	return nil
}

func (s *Store) ListMoneyAdditions(ctx context.Context, shiftID string) ([]domain.MoneyAddition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, amount, note, created_by, created_at, updated_at
		FROM shift_money_additions WHERE shift_id = $1
		ORDER BY created_at ASC`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("list additions: %w", err)
	}
	defer rows.Close()

	additions := []domain.MoneyAddition{}
	for rows.Next() {
		var a domain.MoneyAddition
		var noteDB, createdByDB sql.NullString
		if err := rows.Scan(&a.ID, &a.ShiftID, &a.Amount, &noteDB, &createdByDB,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan addition: %w", err)
		}
		a.Note = noteDB.String
		a.CreatedBy = createdByDB.String
		additions = append(additions, a)
	}
	return additions, rows.Err()
}

// ---- orders ----

const orderColumns = `id, shift_id, customer_id, counter_id, COALESCE(staff_id, ''),
	goods_cost, service_fee, packing_fee, commission, extra, COALESCE(extra_note, ''),
	total, status, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.ShiftID, &o.CustomerID, &o.CounterID, &o.StaffID,
		&o.GoodsCost, &o.ServiceFee, &o.PackingFee, &o.Commission, &o.Extra,
		&o.ExtraNote, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) CreateOrderWithDebit(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback()

	sh, err := lockShiftTx(ctx, tx, order.ShiftID)
	if err != nil {
		return nil, err
	}
	if sh.Status != domain.ShiftStatusActive {
		return nil, store.ErrShiftNotActive
	}
	if sh.RemainingFund < order.GoodsCost {
		return nil, &store.FundsError{Available: sh.RemainingFund, Required: order.GoodsCost}
	}

	if order.ID == "" {
		order.ID = xid.New("order")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, shift_id, customer_id, counter_id, staff_id,
			goods_cost, service_fee, packing_fee, commission, extra, extra_note,
			total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		order.ID, order.ShiftID, order.CustomerID, order.CounterID,
		nullIfEmpty(order.StaffID), order.GoodsCost, order.ServiceFee,
		order.PackingFee, order.Commission, order.Extra, nullIfEmpty(order.ExtraNote),
		order.Total, order.Status, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE shifts SET spent_total = spent_total + $2,
			remaining_fund = remaining_fund - $2, updated_at = $3
		WHERE id = $1`, order.ShiftID, order.GoodsCost, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("debit shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create order: %w", err)
	}
	order.UpdatedAt = order.CreatedAt
	return &order, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, shiftID string, date string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var conds []string
	var args []any
	if shiftID != "" {
		args = append(args, shiftID)
		conds = append(conds, fmt.Sprintf("shift_id = $%d", len(args)))
	}
	if date != "" {
		args = append(args, date)
		conds = append(conds, fmt.Sprintf(
			"shift_id IN (SELECT id FROM shifts WHERE shift_date = $%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order, goodsCostDelta int64) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin update order: %w", err)
	}
	defer tx.Rollback()

	if goodsCostDelta != 0 {
		sh, err := lockShiftTx(ctx, tx, order.ShiftID)
		if err != nil {
			return nil, err
		}
		if goodsCostDelta > 0 && sh.RemainingFund < goodsCostDelta {
			return nil, &store.FundsError{Available: sh.RemainingFund, Required: goodsCostDelta}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE shifts SET spent_total = spent_total + $2,
				remaining_fund = remaining_fund - $2, updated_at = $3
			WHERE id = $1`, order.ShiftID, goodsCostDelta, order.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("adjust shift debit: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET goods_cost = $2, service_fee = $3, packing_fee = $4,
			commission = $5, extra = $6, extra_note = $7, total = $8,
			status = $9, updated_at = $10
		WHERE id = $1`,
		order.ID, order.GoodsCost, order.ServiceFee, order.PackingFee,
		order.Commission, order.Extra, nullIfEmpty(order.ExtraNote),
		order.Total, order.Status, order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update order: %w", err)
	}
	return &order, nil
}

func (s *Store) DeleteOrderWithCredit(ctx context.Context, orderID string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin delete order: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if o.Status != domain.OrderStatusPending {
		return nil, store.ErrOrderNotPending
	}

	if _, err := lockShiftTx(ctx, tx, o.ShiftID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return nil, fmt.Errorf("delete order: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE shifts SET spent_total = spent_total - $2,
			remaining_fund = remaining_fund + $2, updated_at = $3
		WHERE id = $1`, o.ShiftID, o.GoodsCost, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("credit shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete order: %w", err)
	}
	return o, nil
}

// ---- expiry sweep ----

func (s *Store) SweepExpiredShifts(ctx context.Context, today string, now time.Time) ([]domain.SweepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM shifts
		WHERE status = 'active' AND shift_date < $1
		ORDER BY shift_date ASC`, today)
	if err != nil {
		return nil, fmt.Errorf("find expired shifts: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired shift: %w", err)
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := []domain.SweepRecord{}
	for _, id := range expired {
		rec, err := s.sweepShift(ctx, id, now)
		if err != nil {
			log.Printf("[postgres] sweep shift %s failed: %v", id, err)
			continue
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (s *Store) sweepShift(ctx context.Context, shiftID string, now time.Time) (*domain.SweepRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sh, err := lockShiftTx(ctx, tx, shiftID)
	if err != nil {
		return nil, err
	}
	if sh.Status != domain.ShiftStatusActive {
		// Closed by a concurrent sweep or an explicit end.
		return nil, nil
	}

	rec := domain.SweepRecord{
		ID:           xid.New("sweep"),
		ShiftID:      sh.ID,
		Date:         sh.Date,
		ClearedFloat: sh.CurrentFloat,
		ClearedSpent: sh.SpentTotal,
		ClearedFund:  sh.RemainingFund,
		SweptAt:      now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweep_records (id, shift_id, shift_date, cleared_float,
			cleared_spent, cleared_fund, swept_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ShiftID, rec.Date, rec.ClearedFloat, rec.ClearedSpent,
		rec.ClearedFund, rec.SweptAt)
	if err != nil {
		return nil, fmt.Errorf("insert sweep record: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE shifts SET current_float = 0, spent_total = 0, remaining_fund = 0,
			status = 'ended', end_time = $2, updated_at = $2
		WHERE id = $1`, shiftID, now)
	if err != nil {
		return nil, fmt.Errorf("close expired shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListSweepRecords(ctx context.Context, date string) ([]domain.SweepRecord, error) {
	query := `SELECT id, shift_id, to_char(shift_date, 'YYYY-MM-DD'), cleared_float,
		cleared_spent, cleared_fund, swept_at FROM sweep_records`
	var args []any
	if date != "" {
		query += ` WHERE shift_date = $1`
		args = append(args, date)
	}
	query += ` ORDER BY swept_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sweep records: %w", err)
	}
	defer rows.Close()

	records := []domain.SweepRecord{}
	for rows.Next() {
		var r domain.SweepRecord
		if err := rows.Scan(&r.ID, &r.ShiftID, &r.Date, &r.ClearedFloat,
			&r.ClearedSpent, &r.ClearedFund, &r.SweptAt); err != nil {
			return nil, fmt.Errorf("scan sweep record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ---- customers ----

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), created_at
		FROM customers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := []domain.Customer{}
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		customer.ID, customer.Name, nullIfEmpty(customer.Phone),
		nullIfEmpty(customer.Address), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return &customer, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), created_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (s *Store) FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), created_at
		FROM customers WHERE lower(name) = lower($1)
		ORDER BY created_at ASC LIMIT 1`, name).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET name = $2, phone = $3, address = $4 WHERE id = $1`,
		customer.ID, customer.Name, nullIfEmpty(customer.Phone),
		nullIfEmpty(customer.Address))
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomerByID(ctx, customer.ID)
}

// ---- counters ----

func (s *Store) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), active, created_at
		FROM counters ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	counters := []domain.Counter{}
	for rows.Next() {
		var c domain.Counter
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

func (s *Store) CreateCounter(ctx context.Context, counter domain.Counter) (*domain.Counter, error) {
	if counter.ID == "" {
		counter.ID = xid.New("counter")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (id, name, phone, address, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		counter.ID, counter.Name, nullIfEmpty(counter.Phone),
		nullIfEmpty(counter.Address), counter.Active, counter.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert counter: %w", err)
	}
	return &counter, nil
}

func (s *Store) GetCounterByID(ctx context.Context, id string) (*domain.Counter, error) {
	var c domain.Counter
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), active, created_at
		FROM counters WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get counter: %w", err)
	}
	return &c, nil
}

func (s *Store) FindCounterByName(ctx context.Context, name string) (*domain.Counter, error) {
	var c domain.Counter
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), active, created_at
		FROM counters WHERE lower(name) = lower($1)
		ORDER BY created_at ASC LIMIT 1`, name).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find counter: %w", err)
	}
	return &c, nil
}

func (s *Store) UpdateCounter(ctx context.Context, counter domain.Counter) (*domain.Counter, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE counters SET name = $2, phone = $3, address = $4, active = $5
		WHERE id = $1`,
		counter.ID, counter.Name, nullIfEmpty(counter.Phone),
		nullIfEmpty(counter.Address), counter.Active)
	if err != nil {
		return nil, fmt.Errorf("update counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCounterByID(ctx, counter.ID)
}

// ---- staff ----

const userColumns = `id, name, email, COALESCE(phone, ''), role, active, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Active,
		&u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, name, email, phone, role, active, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Email, nullIfEmpty(user.Phone), user.Role,
		user.Active, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_users WHERE lower(email) = lower($1)`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM app_users ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.UserAccount{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET name = $2, phone = $3, role = $4, active = $5,
			password_hash = $6
		WHERE id = $1`,
		user.ID, user.Name, nullIfEmpty(user.Phone), user.Role, user.Active,
		user.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByID(ctx, user.ID)
}

// ---- reporting ----

func (s *Store) GetShiftReport(ctx context.Context, date string) (domain.ShiftReport, error) {
	report := domain.ShiftReport{Date: date, Rows: []domain.ShiftReportRow{}}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sh.id, u.name, COALESCE(c.name, ''), sh.status,
			sh.initial_float, sh.current_float, sh.spent_total, sh.remaining_fund,
			(SELECT COUNT(*) FROM orders o WHERE o.shift_id = sh.id)
		FROM shifts sh
		JOIN app_users u ON u.id = sh.staff_id
		LEFT JOIN counters c ON c.id = sh.counter_id
		WHERE sh.shift_date = $1
		ORDER BY sh.created_at ASC`, date)
	if err != nil {
		return report, fmt.Errorf("shift report: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.ShiftReportRow
		if err := rows.Scan(&r.ShiftID, &r.StaffName, &r.CounterName, &r.Status,
			&r.InitialFloat, &r.CurrentFloat, &r.SpentTotal, &r.RemainingFund,
			&r.OrderCount); err != nil {
			return report, fmt.Errorf("scan report row: %w", err)
		}
		report.Rows = append(report.Rows, r)
		report.TotalFloat += r.CurrentFloat
		report.TotalSpent += r.SpentTotal
		report.TotalRemained += r.RemainingFund
	}
	return report, rows.Err()
}

// ---- helpers ----

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
