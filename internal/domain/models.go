package domain

import "time"

// Money amounts are Vietnamese đồng stored as int64; VND has no minor unit.
// JSON field names follow the wire format the web client already speaks.

const (
	RoleWorker  = "worker"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// RoleAtLeast reports whether role sits at or above min in the
// worker < manager < admin hierarchy.
func RoleAtLeast(role string, min string) bool {
	return roleRank(role) >= roleRank(min)
}

func roleRank(role string) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleManager:
		return 2
	case RoleWorker:
		return 1
	default:
		return 0
	}
}

const (
	ShiftStatusActive = "active"
	ShiftStatusEnded  = "ended"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Shift is one staff member's working-day assignment with its cash float.
// RemainingFund must equal CurrentFloat - SpentTotal after every mutation.
type Shift struct {
	ID            string     `json:"id"`
	StaffID       string     `json:"staffId"`
	CounterID     string     `json:"counterId,omitempty"`
	Date          string     `json:"date"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	InitialFloat  int64      `json:"tienGiaoCaBanDau"`
	CurrentFloat  int64      `json:"tienGiaoCa"`
	SpentTotal    int64      `json:"tongTienHangDaTra"`
	RemainingFund int64      `json:"quyConLai"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type ShiftCreateRequest struct {
	StaffID      string `json:"staffId"`
	CounterID    string `json:"counterId,omitempty"`
	Date         string `json:"date"`
	InitialFloat int64  `json:"tienGiaoCaBanDau"`
}

// MoneyAddition is one audited manual top-up to a shift's float.
type MoneyAddition struct {
	ID        string    `json:"id"`
	ShiftID   string    `json:"shiftId"`
	Amount    int64     `json:"soTien"`
	Note      string    `json:"ghiChu,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AddMoneyRequest struct {
	Amount int64  `json:"soTien"`
	Note   string `json:"ghiChu,omitempty"`
}

type MoneyAdditionUpdateRequest struct {
	Amount *int64  `json:"soTien,omitempty"`
	Note   *string `json:"ghiChu,omitempty"`
}

// DirectMoneyUpdateRequest is the admin override for a shift's float.
type DirectMoneyUpdateRequest struct {
	NewFloat int64 `json:"tienGiaoCa"`
}

// Order is a single customer transaction recorded against a shift.
// Total is the customer-facing invoice amount and includes the commission.
type Order struct {
	ID         string    `json:"id"`
	ShiftID    string    `json:"shiftId"`
	CustomerID string    `json:"customerId"`
	CounterID  string    `json:"counterId"`
	StaffID    string    `json:"staffId,omitempty"`
	GoodsCost  int64     `json:"tienHang"`
	ServiceFee int64     `json:"tienCongGom"`
	PackingFee int64     `json:"phiDongHang"`
	Commission int64     `json:"tienHoaHong"`
	Extra      int64     `json:"tienThem"`
	ExtraNote  string    `json:"ghiChuTienThem,omitempty"`
	Total      int64     `json:"tongTienHoaDon"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// OrderCreateRequest accepts either an existing customer/counter id or a
// bare name; a name creates the directory entry inline.
type OrderCreateRequest struct {
	ShiftID      string `json:"shiftId"`
	CustomerID   string `json:"customerId,omitempty"`
	CustomerName string `json:"customerName,omitempty"`
	CounterID    string `json:"counterId,omitempty"`
	CounterName  string `json:"counterName,omitempty"`
	GoodsCost    int64  `json:"tienHang"`
	ServiceFee   int64  `json:"tienCongGom"`
	PackingFee   int64  `json:"phiDongHang"`
	Commission   int64  `json:"tienHoaHong"`
	Extra        int64  `json:"tienThem"`
	ExtraNote    string `json:"ghiChuTienThem,omitempty"`
}

type OrderUpdateRequest struct {
	GoodsCost  *int64  `json:"tienHang,omitempty"`
	ServiceFee *int64  `json:"tienCongGom,omitempty"`
	PackingFee *int64  `json:"phiDongHang,omitempty"`
	Commission *int64  `json:"tienHoaHong,omitempty"`
	Extra      *int64  `json:"tienThem,omitempty"`
	ExtraNote  *string `json:"ghiChuTienThem,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// HasMoneyChange reports whether the patch touches any money field.
func (r OrderUpdateRequest) HasMoneyChange() bool {
	return r.GoodsCost != nil || r.ServiceFee != nil || r.PackingFee != nil ||
		r.Commission != nil || r.Extra != nil
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type CustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Counter struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type CounterRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Active  *bool  `json:"isActive,omitempty"`
}

// UserAccount is a staff member. PasswordHash never leaves the server.
type UserAccount struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	Active       bool      `json:"isActive"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type StaffCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type StaffUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"isActive,omitempty"`
	Password *string `json:"password,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    string      `json:"expiresAt"`
	User         UserAccount `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Actor is the authenticated caller carried on the request context.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// SweepRecord preserves the balances a midnight expiry sweep zeroed out,
// so forced closures stay auditable.
type SweepRecord struct {
	ID           string    `json:"id"`
	ShiftID      string    `json:"shiftId"`
	Date         string    `json:"date"`
	ClearedFloat int64     `json:"tienGiaoCa"`
	ClearedSpent int64     `json:"tongTienHangDaTra"`
	ClearedFund  int64     `json:"quyConLai"`
	SweptAt      time.Time `json:"sweptAt"`
}

// ShiftReportRow is one shift's reconciliation line in the daily report.
type ShiftReportRow struct {
	ShiftID       string `json:"shiftId"`
	StaffName     string `json:"staffName"`
	CounterName   string `json:"counterName,omitempty"`
	Status        string `json:"status"`
	InitialFloat  int64  `json:"tienGiaoCaBanDau"`
	CurrentFloat  int64  `json:"tienGiaoCa"`
	SpentTotal    int64  `json:"tongTienHangDaTra"`
	RemainingFund int64  `json:"quyConLai"`
	OrderCount    int    `json:"orderCount"`
}

type ShiftReport struct {
	Date          string           `json:"date"`
	Rows          []ShiftReportRow `json:"rows"`
	TotalFloat    int64            `json:"tongTienGiaoCa"`
	TotalSpent    int64            `json:"tongTienHang"`
	TotalRemained int64            `json:"tongQuyConLai"`
}
