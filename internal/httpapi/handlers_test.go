package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/notify"
	"gomhangpro/backend/internal/service"
	"gomhangpro/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (http.Handler, *API) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, notify.Noop())
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", 15*time.Minute, 720*time.Hour, repo, nil)
	api := New(svc, auth, "http://localhost:3000")
	return api.Router(), api
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: response is not an envelope: %v\nbody: %s", method, path, err, rec.Body.String())
	}
	return rec, env
}

func loginAs(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	rec, env := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("login as %s failed: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestAPI(t)

	rec, env := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected healthy response, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	h, _ := newTestAPI(t)

	rec, env := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "admin@gomhang.vn",
		"password": "admin123",
		"extra":    "field",
	})
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("expected unknown field to be rejected, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestShiftAndOrderFlow(t *testing.T) {
	h, _ := newTestAPI(t)
	managerToken := loginAs(t, h, "manager@gomhang.vn", "manager123")
	workerToken := loginAs(t, h, "worker@gomhang.vn", "worker123")

	rec, env := doJSON(t, h, http.MethodPost, "/api/shifts/", managerToken, map[string]any{
		"staffId":          "user-worker",
		"counterId":        "counter-q5",
		"date":             today(),
		"tienGiaoCaBanDau": 1_000_000,
	})
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create shift: %d %s", rec.Code, rec.Body.String())
	}
	var shift domain.Shift
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}
	if shift.CurrentFloat != 1_000_000 || shift.RemainingFund != 1_000_000 {
		t.Fatalf("unexpected opening balances: %+v", shift)
	}

	rec, _ = doJSON(t, h, http.MethodPut, "/api/shifts/"+shift.ID+"/start", workerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start shift: %d %s", rec.Code, rec.Body.String())
	}

	rec, env = doJSON(t, h, http.MethodPost, "/api/orders/", workerToken, map[string]any{
		"shiftId":      shift.ID,
		"customerName": "Chị Lan",
		"counterId":    "counter-q5",
		"tienHang":     300_000,
		"tienCongGom":  30_000,
		"tienHoaHong":  10_000,
	})
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create order: %d %s", rec.Code, rec.Body.String())
	}
	var order domain.Order
	if err := json.Unmarshal(env.Data, &order); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if order.CustomerID != "cust-lan" {
		t.Fatalf("expected existing customer matched by name, got %q", order.CustomerID)
	}
	if order.Total != 340_000 {
		t.Fatalf("expected invoice total 340000, got %d", order.Total)
	}

	rec, env = doJSON(t, h, http.MethodGet, "/api/shifts/"+shift.ID, workerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get shift: %d %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}
	if shift.SpentTotal != 300_000 || shift.RemainingFund != 700_000 {
		t.Fatalf("expected 300000 spent / 700000 remaining, got %d / %d",
			shift.SpentTotal, shift.RemainingFund)
	}

	// Deleting the order restores the fund.
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/orders/"+order.ID, managerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete order: %d %s", rec.Code, rec.Body.String())
	}
	_, env = doJSON(t, h, http.MethodGet, "/api/shifts/"+shift.ID, workerToken, nil)
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}
	if shift.SpentTotal != 0 || shift.RemainingFund != 1_000_000 {
		t.Fatalf("expected fund restored after delete, got %d / %d",
			shift.SpentTotal, shift.RemainingFund)
	}
}

func TestInsufficientFundsReturnsBothAmounts(t *testing.T) {
	h, _ := newTestAPI(t)
	managerToken := loginAs(t, h, "manager@gomhang.vn", "manager123")
	workerToken := loginAs(t, h, "worker@gomhang.vn", "worker123")

	_, env := doJSON(t, h, http.MethodPost, "/api/shifts/", managerToken, map[string]any{
		"staffId":          "user-worker",
		"date":             today(),
		"tienGiaoCaBanDau": 200_000,
	})
	var shift domain.Shift
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}

	rec, env := doJSON(t, h, http.MethodPost, "/api/orders/", workerToken, map[string]any{
		"shiftId":    shift.ID,
		"customerId": "cust-hung",
		"counterId":  "counter-q5",
		"tienHang":   500_000,
	})
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("expected 400 on insufficient funds, got %d %s", rec.Code, rec.Body.String())
	}
	for _, want := range []string{"200000", "500000"} {
		if !bytes.Contains(rec.Body.Bytes(), []byte(want)) {
			t.Fatalf("expected error to carry %sđ, got %s", want, rec.Body.String())
		}
	}
}

func TestRoleGatesOnRouter(t *testing.T) {
	h, _ := newTestAPI(t)
	workerToken := loginAs(t, h, "worker@gomhang.vn", "worker123")
	managerToken := loginAs(t, h, "manager@gomhang.vn", "manager123")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
	}{
		{"worker cannot create shift", http.MethodPost, "/api/shifts/", workerToken,
			map[string]any{"staffId": "user-worker", "date": today(), "tienGiaoCaBanDau": 100_000}},
		{"worker cannot create staff", http.MethodPost, "/api/users/", workerToken,
			map[string]any{"name": "x", "email": "x@gomhang.vn", "password": "longenough", "role": "worker"}},
		{"manager cannot create staff", http.MethodPost, "/api/users/", managerToken,
			map[string]any{"name": "x", "email": "x@gomhang.vn", "password": "longenough", "role": "worker"}},
		{"worker cannot see reports", http.MethodGet, "/api/reports/shifts", workerToken, nil},
		{"worker cannot run sweeps", http.MethodGet, "/api/sweeps", workerToken, nil},
	}
	for _, tc := range cases {
		rec, env := doJSON(t, h, tc.method, tc.path, tc.token, tc.body)
		if rec.Code != http.StatusForbidden || env.Success {
			t.Fatalf("%s: expected 403, got %d %s", tc.name, rec.Code, rec.Body.String())
		}
	}
}

func TestFloatAdjustmentEndpoints(t *testing.T) {
	h, _ := newTestAPI(t)
	adminToken := loginAs(t, h, "admin@gomhang.vn", "admin123")
	managerToken := loginAs(t, h, "manager@gomhang.vn", "manager123")

	_, env := doJSON(t, h, http.MethodPost, "/api/shifts/", managerToken, map[string]any{
		"staffId":          "user-worker",
		"date":             today(),
		"tienGiaoCaBanDau": 1_000_000,
	})
	var shift domain.Shift
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}

	rec, env := doJSON(t, h, http.MethodPut, "/api/shifts/"+shift.ID+"/add-money", managerToken,
		map[string]any{"soTien": 200_000, "ghiChu": "bổ sung giữa ca"})
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("add money: %d %s", rec.Code, rec.Body.String())
	}

	_, env = doJSON(t, h, http.MethodGet, "/api/shifts/"+shift.ID, managerToken, nil)
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}
	if shift.CurrentFloat != 1_200_000 || shift.RemainingFund != 1_200_000 {
		t.Fatalf("expected 1200000 float after top-up, got %d / %d",
			shift.CurrentFloat, shift.RemainingFund)
	}

	// Direct override is admin-only and leaves an implicit adjustment entry.
	rec, _ = doJSON(t, h, http.MethodPut, "/api/shifts/"+shift.ID+"/update-money", managerToken,
		map[string]any{"tienGiaoCa": 900_000})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected manager override to be forbidden, got %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodPut, "/api/shifts/"+shift.ID+"/update-money", adminToken,
		map[string]any{"tienGiaoCa": 900_000})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin override: %d %s", rec.Code, rec.Body.String())
	}

	_, env = doJSON(t, h, http.MethodGet, "/api/shifts/"+shift.ID+"/money-additions", managerToken, nil)
	var additions []domain.MoneyAddition
	if err := json.Unmarshal(env.Data, &additions); err != nil {
		t.Fatalf("decode additions: %v", err)
	}
	if len(additions) != 2 {
		t.Fatalf("expected top-up plus implicit adjustment, got %d entries", len(additions))
	}
	var sum int64
	for _, add := range additions {
		sum += add.Amount
	}
	if got := shift.InitialFloat + sum; got != 900_000 {
		t.Fatalf("history no longer derives the float: %d", got)
	}
}

func TestOrderVisibleToItsShiftWorkerOnly(t *testing.T) {
	h, _ := newTestAPI(t)
	adminToken := loginAs(t, h, "admin@gomhang.vn", "admin123")
	managerToken := loginAs(t, h, "manager@gomhang.vn", "manager123")
	workerToken := loginAs(t, h, "worker@gomhang.vn", "worker123")

	_, env := doJSON(t, h, http.MethodPost, "/api/shifts/", managerToken, map[string]any{
		"staffId":          "user-manager",
		"date":             today(),
		"tienGiaoCaBanDau": 500_000,
	})
	var shift domain.Shift
	if err := json.Unmarshal(env.Data, &shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}

	// A worker cannot record orders against someone else's shift.
	rec, _ := doJSON(t, h, http.MethodPost, "/api/orders/", workerToken, map[string]any{
		"shiftId":    shift.ID,
		"customerId": "cust-lan",
		"counterId":  "counter-q5",
		"tienHang":   100_000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected foreign-shift order to be forbidden, got %d %s", rec.Code, rec.Body.String())
	}

	// Ending the shift is admin-only and zeroes nothing by itself.
	rec, _ = doJSON(t, h, http.MethodPut, "/api/shifts/"+shift.ID+"/end", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end shift: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/api/orders/", managerToken, map[string]any{
		"shiftId":    shift.ID,
		"customerId": "cust-lan",
		"counterId":  "counter-q5",
		"tienHang":   100_000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected order on ended shift to conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestStaffEndpointsHidePasswordHash(t *testing.T) {
	h, _ := newTestAPI(t)
	adminToken := loginAs(t, h, "admin@gomhang.vn", "admin123")

	rec, env := doJSON(t, h, http.MethodPost, "/api/users/", adminToken, map[string]any{
		"name":     "Nhân viên mới",
		"email":    "moi@gomhang.vn",
		"password": "matkhau123",
		"role":     "worker",
	})
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create staff: %d %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("$2a$")) ||
		bytes.Contains(rec.Body.Bytes(), []byte("passwordHash")) {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	rec, env = doJSON(t, h, http.MethodGet, "/api/users/", adminToken, nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("list staff: %d %s", rec.Code, rec.Body.String())
	}
	var users []domain.UserAccount
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 4 {
		t.Fatalf("expected 3 seeded + 1 created staff, got %d", len(users))
	}
}

func TestNotFoundMapsTo404(t *testing.T) {
	h, _ := newTestAPI(t)
	managerToken := loginAs(t, h, "manager@gomhang.vn", "manager123")

	for _, path := range []string{
		"/api/shifts/shift-missing",
		"/api/orders/order-missing",
		"/api/customers/cust-missing",
	} {
		rec, env := doJSON(t, h, http.MethodGet, path, managerToken, nil)
		if rec.Code != http.StatusNotFound || env.Success {
			t.Fatalf("%s: expected 404, got %d %s", path, rec.Code, rec.Body.String())
		}
		if env.Error == "" {
			t.Fatalf("%s: expected error message in envelope", path)
		}
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, errors.New("pq: connection refused"))

	if bytes.Contains(rec.Body.Bytes(), []byte("connection refused")) {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("có lỗi xảy ra")) {
		t.Fatalf("expected masked message, got %s", rec.Body.String())
	}
}
