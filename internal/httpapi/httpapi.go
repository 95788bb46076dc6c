package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/metrics"
	"kasirkas/backend/internal/service"
)

type Options struct {
	AllowedOrigin string
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           *zap.Logger
	metrics       *metrics.Metrics
	loginLimiter  *attemptLimiter
	orderLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		panic("httpapi: read csrf secret: " + err.Error())
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origin := opts.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: origin,
		log:           log.Named("http"),
		metrics:       opts.Metrics,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		orderLimiter:  newAttemptLimiter(20, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	supervisors := []string{domain.RoleOwner, domain.RoleManager}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("GET /api/v1/storefront/catalog", a.handleStorefrontCatalog)
	mux.HandleFunc("POST /api/v1/storefront/orders", a.handleStorefrontOrder)

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, supervisors...))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct))
	mux.HandleFunc("POST /api/v1/pricing/quote", a.requireAuth(a.handleQuote))
	mux.HandleFunc("POST /api/v1/checkout", a.requireAuth(a.handleCheckout))
	mux.HandleFunc("POST /api/v1/proformas", a.requireAuth(a.handleProforma))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale))
	mux.HandleFunc("DELETE /api/v1/sales/{id}", a.requireAuth(a.handleDeleteSale, supervisors...))
	mux.HandleFunc("POST /api/v1/sales/{id}/review", a.requireAuth(a.handleReviewSale, supervisors...))

	mux.HandleFunc("GET /api/v1/cash-counts/system-total", a.requireAuth(a.handleSystemCashTotal))
	mux.HandleFunc("GET /api/v1/cash-counts", a.requireAuth(a.handleListCashCounts))
	mux.HandleFunc("POST /api/v1/cash-counts", a.requireAuth(a.handleCreateCashCount))
	mux.HandleFunc("GET /api/v1/cash-counts/{id}", a.requireAuth(a.handleGetCashCount))
	mux.HandleFunc("POST /api/v1/cash-counts/{id}/second-sign", a.requireAuth(a.handleSecondSign))
	mux.HandleFunc("POST /api/v1/cash-counts/{id}/owner-review", a.requireAuth(a.handleOwnerReview, domain.RoleOwner))

	mux.HandleFunc("GET /api/v1/withdrawals", a.requireAuth(a.handleListWithdrawals))
	mux.HandleFunc("POST /api/v1/withdrawals", a.requireAuth(a.handleRequestWithdrawal))
	mux.HandleFunc("GET /api/v1/withdrawals/{id}", a.requireAuth(a.handleGetWithdrawal))
	mux.HandleFunc("POST /api/v1/withdrawals/{id}/{action}", a.requireAuth(a.handleWithdrawalAction))

	mux.HandleFunc("GET /api/v1/custom-payments", a.requireAuth(a.handleListCustomPayments))
	mux.HandleFunc("POST /api/v1/custom-payments", a.requireAuth(a.handleCreateCustomPayment))
	mux.HandleFunc("POST /api/v1/custom-payments/{id}/{action}", a.requireAuth(a.handleCustomPaymentAction))

	mux.HandleFunc("GET /api/v1/balances/{userID}", a.requireAuth(a.handleBalance))
	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, supervisors...))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleCreateUser, domain.RoleOwner))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleOwner))

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a token clients send as X-CSRF-Token on mutating
// requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.generateCSRFToken()})
}

func (a *API) handleStorefrontCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := a.service.StorefrontCatalog(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (a *API) handleStorefrontOrder(w http.ResponseWriter, r *http.Request) {
	if !a.orderLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many orders"))
		return
	}
	var req domain.StorefrontOrderRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	order, err := a.service.PlaceStorefrontOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req domain.QuoteRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	quote, err := a.service.Quote(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	sale, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleProforma(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	sale, err := a.service.CreateProforma(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sales, err := a.service.ListSales(r.Context(), domain.SalesFilter{
		Date:          strings.TrimSpace(q.Get("date")),
		Status:        strings.TrimSpace(q.Get("status")),
		PaymentMethod: strings.TrimSpace(q.Get("payment_method")),
		SellerID:      strings.TrimSpace(q.Get("seller_id")),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.DeleteSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleReviewSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleReviewRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	sale, err := a.service.ReviewSale(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleSystemCashTotal(w http.ResponseWriter, r *http.Request) {
	total, err := a.service.SystemCashTotal(r.Context(), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

func (a *API) handleListCashCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.service.ListCashCounts(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cash_counts": counts})
}

func (a *API) handleCreateCashCount(w http.ResponseWriter, r *http.Request) {
	var req domain.CashCountCreateRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	cc, err := a.service.CreateCashCount(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cash_count": cc})
}

func (a *API) handleGetCashCount(w http.ResponseWriter, r *http.Request) {
	cc, err := a.service.GetCashCount(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cash_count": cc})
}

func (a *API) handleSecondSign(w http.ResponseWriter, r *http.Request) {
	var req domain.TransitionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	cc, err := a.service.SecondSignCashCount(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cash_count": cc})
}

func (a *API) handleOwnerReview(w http.ResponseWriter, r *http.Request) {
	var req domain.CashCountReviewRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	cc, err := a.service.OwnerReviewCashCount(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cash_count": cc})
}

func (a *API) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	withdrawals, err := a.service.ListWithdrawals(r.Context(), domain.RecordFilter{
		Status: strings.TrimSpace(q.Get("status")),
		UserID: strings.TrimSpace(q.Get("user_id")),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": withdrawals})
}

func (a *API) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawalCreateRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	wd, err := a.service.RequestWithdrawal(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"withdrawal": wd})
}

func (a *API) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	wd, err := a.service.GetWithdrawal(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawal": wd})
}

func (a *API) handleWithdrawalAction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransitionRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	ctx, id := r.Context(), r.PathValue("id")
	var (
		wd  domain.Withdrawal
		err error
	)
	switch r.PathValue("action") {
	case "approve":
		wd, err = a.service.ApproveWithdrawal(ctx, id, req)
	case "reject":
		wd, err = a.service.RejectWithdrawal(ctx, id, req)
	case "pay":
		wd, err = a.service.MarkWithdrawalPaid(ctx, id, req)
	case "confirm":
		wd, err = a.service.ConfirmWithdrawal(ctx, id, req)
	default:
		writeError(w, http.StatusNotFound, "not_found", errors.New("unknown withdrawal action"))
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawal": wd})
}

func (a *API) handleListCustomPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payments, err := a.service.ListCustomPayments(r.Context(), domain.RecordFilter{
		Status: strings.TrimSpace(q.Get("status")),
		UserID: strings.TrimSpace(q.Get("payee_id")),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"custom_payments": payments})
}

func (a *API) handleCreateCustomPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomPaymentCreateRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	p, err := a.service.CreateCustomPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"custom_payment": p})
}

func (a *API) handleCustomPaymentAction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransitionRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	ctx, id := r.Context(), r.PathValue("id")
	var (
		p   domain.CustomPayment
		err error
	)
	switch r.PathValue("action") {
	case "accept":
		p, err = a.service.RespondCustomPayment(ctx, id, true, req)
	case "decline":
		p, err = a.service.RespondCustomPayment(ctx, id, false, req)
	case "pay":
		p, err = a.service.MarkCustomPaymentPaid(ctx, id, req)
	case "confirm":
		p, err = a.service.ConfirmCustomPayment(ctx, id, req)
	default:
		writeError(w, http.StatusNotFound, "not_found", errors.New("unknown custom payment action"))
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"custom_payment": p})
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.Balance(r.Context(), r.PathValue("userID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), strings.TrimSpace(q.Get("date")), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

// statusFor maps a service error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "invalid_input":
		return http.StatusBadRequest
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_state_transition", "stale_state", "insufficient_stock":
		return http.StatusConflict
	case "negative_total", "insufficient_cash", "insufficient_balance":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	code := service.ErrorCode(err)
	status := statusFor(code)
	if status >= 500 {
		a.log.Error("request failed", zap.Error(err))
	}
	writeError(w, status, code, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func decodeOrReject(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err)
		return false
	}
	return true
}

// decodeOptional accepts an empty body for transitions that carry no
// expectation or note.
func decodeOptional(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decodeOrReject(w, r, dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		limit = parsed
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError hides the detail of 5xx responses; 4xx messages are returned
// as-is.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
