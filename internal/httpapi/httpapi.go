package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/service"
	"gomhangpro/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(a.securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(requestLogger)
	r.Use(bodyLimit)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/refresh", a.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/auth/me", a.handleMe)

			r.Route("/shifts", func(r chi.Router) {
				r.Post("/", a.minRole(domain.RoleManager, a.handleShiftCreate))
				r.Get("/", a.handleShiftList)
				r.Get("/current", a.handleShiftCurrent)
				r.Get("/{id}", a.handleShiftGet)
				r.Put("/{id}/start", a.handleShiftStart)
				r.Put("/{id}/end", a.minRole(domain.RoleAdmin, a.handleShiftEnd))
				r.Put("/{id}/add-money", a.minRole(domain.RoleManager, a.handleAddMoney))
				r.Put("/{id}/update-money", a.minRole(domain.RoleAdmin, a.handleUpdateMoneyDirect))
				r.Get("/{id}/money-additions", a.minRole(domain.RoleManager, a.handleMoneyAdditionList))
				r.Put("/{id}/money-additions/{additionId}", a.minRole(domain.RoleManager, a.handleMoneyAdditionUpdate))
				r.Delete("/{id}/money-additions/{additionId}", a.minRole(domain.RoleManager, a.handleMoneyAdditionDelete))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", a.handleOrderCreate)
				r.Get("/", a.handleOrderList)
				r.Get("/{id}", a.handleOrderGet)
				r.Put("/{id}", a.handleOrderUpdate)
				r.Delete("/{id}", a.minRole(domain.RoleManager, a.handleOrderDelete))
				r.Get("/{id}/invoice", a.handleOrderInvoice)
				r.Get("/{id}/qr", a.handleOrderQR)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleCustomerList)
				r.Post("/", a.handleCustomerCreate)
				r.Get("/{id}", a.handleCustomerGet)
				r.Put("/{id}", a.handleCustomerUpdate)
			})

			r.Route("/counters", func(r chi.Router) {
				r.Get("/", a.handleCounterList)
				r.Post("/", a.minRole(domain.RoleManager, a.handleCounterCreate))
				r.Get("/{id}", a.handleCounterGet)
				r.Put("/{id}", a.minRole(domain.RoleManager, a.handleCounterUpdate))
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", a.minRole(domain.RoleManager, a.handleStaffList))
				r.Post("/", a.minRole(domain.RoleAdmin, a.handleStaffCreate))
				r.Get("/{id}", a.minRole(domain.RoleManager, a.handleStaffGet))
				r.Put("/{id}", a.minRole(domain.RoleAdmin, a.handleStaffUpdate))
			})

			r.Get("/reports/shifts", a.minRole(domain.RoleManager, a.handleShiftReport))
			r.Get("/sweeps", a.minRole(domain.RoleManager, a.handleSweepList))
		})
	})

	return r
}

// ---- middleware ----

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.VerifyAccess(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) minRole(min string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := service.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
			return
		}
		if !domain.RoleAtLeast(actor.Role, min) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		next(w, r)
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ---- auth handlers ----

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.CurrentUser(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ---- shift handlers ----

func (a *API) handleShiftCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shift, err := a.service.CreateShift(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

func (a *API) handleShiftList(w http.ResponseWriter, r *http.Request) {
	shifts, err := a.service.ListShifts(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("date")),
		strings.TrimSpace(r.URL.Query().Get("staffId")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shifts)
}

func (a *API) handleShiftCurrent(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.GetCurrentShift(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleShiftGet(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.GetShift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleShiftStart(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.StartShift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleShiftEnd(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.EndShift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleAddMoney(w http.ResponseWriter, r *http.Request) {
	var req domain.AddMoneyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addition, err := a.service.AddMoney(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addition)
}

func (a *API) handleUpdateMoneyDirect(w http.ResponseWriter, r *http.Request) {
	var req domain.DirectMoneyUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shift, err := a.service.UpdateShiftMoneyDirect(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleMoneyAdditionList(w http.ResponseWriter, r *http.Request) {
	additions, err := a.service.ListMoneyAdditions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, additions)
}

func (a *API) handleMoneyAdditionUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.MoneyAdditionUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addition, err := a.service.UpdateMoneyAddition(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "additionId"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addition)
}

func (a *API) handleMoneyAdditionDelete(w http.ResponseWriter, r *http.Request) {
	err := a.service.DeleteMoneyAddition(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "additionId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "đã xóa lần thêm tiền")
}

// ---- order handlers ----

func (a *API) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleOrderList(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListOrders(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("shiftId")),
		strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleOrderUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleOrderDelete(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.DeleteOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ---- directory handlers ----

func (a *API) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (a *API) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (a *API) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleCustomerUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleCounterList(w http.ResponseWriter, r *http.Request) {
	counters, err := a.service.ListCounters(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (a *API) handleCounterCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CounterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	counter, err := a.service.CreateCounter(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, counter)
}

func (a *API) handleCounterGet(w http.ResponseWriter, r *http.Request) {
	counter, err := a.service.GetCounter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

func (a *API) handleCounterUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.CounterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	counter, err := a.service.UpdateCounter(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

// ---- staff handlers ----

func (a *API) handleStaffList(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListStaff(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleStaffCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.service.CreateStaff(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleStaffGet(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.GetStaff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleStaffUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.service.UpdateStaff(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleSweepList(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListSweepRecords(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ---- response helpers ----

// All endpoints answer with the same envelope:
// {"success": bool, "data": ..., "error": ..., "message": ...}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": message,
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "có lỗi xảy ra, vui lòng thử lại"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}

// writeServiceError maps service and store sentinels onto HTTP statuses.
// The insufficient-funds message carries both amounts, so it stays a 400
// with the original text.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrInsufficientFunds):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrShiftNotActive),
		errors.Is(err, store.ErrShiftEnded),
		errors.Is(err, store.ErrOrderNotPending):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}
