package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/metrics"
	"kasirkas/backend/internal/service"
	"kasirkas/backend/internal/store/memory"
)

// newTestAPI builds a full API over the seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := service.New(repo, service.Options{Metrics: m, StaffMaxDiscountPercent: 10})
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, repo, nil)

	return New(svc, auth, Options{AllowedOrigin: "*", Metrics: m})
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newClient(t *testing.T, api *API, username, password string) *client {
	return &client{t: t, handler: api.Handler(), token: login(t, api, username, password), csrf: fetchCSRFToken(t, api)}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-CSRF-Token", c.csrf)
	res := httptest.NewRecorder()
	c.handler.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder, key string) T {
	t.Helper()
	var payload map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	var out T
	require.NoError(t, json.Unmarshal(payload[key], &out))
	return out
}

func errorCodeOf(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload.Error)
	return payload.Code
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, true, body["ok"])
}

func TestMetricsEndpointReportsRequests(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `kasirkas_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`)
}

func TestCheckoutListAndDeleteSale(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api, "staff", "staff123")
	owner := newClient(t, api, "owner", "owner123")

	res := staff.do(http.MethodPost, "/api/v1/checkout", domain.CheckoutRequest{
		Lines:             []domain.CartLineInput{{ProductID: "prd-kopi", Quantity: 10}},
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 25000,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sale := decode[domain.Sale](t, res, "sale")
	require.Equal(t, int64(24000), sale.TotalCents)
	require.Equal(t, int64(1000), sale.ChangeCents)
	require.Equal(t, "staff", sale.SellerID)

	res = staff.do(http.MethodGet, "/api/v1/sales?seller_id=staff", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, decode[[]domain.Sale](t, res, "sales"), 1)

	res = staff.do(http.MethodDelete, "/api/v1/sales/"+sale.ID, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = owner.do(http.MethodDelete, "/api/v1/sales/"+sale.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = owner.do(http.MethodGet, "/api/v1/sales/"+sale.ID, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "not_found", errorCodeOf(t, res))
}

func TestServiceErrorsMapToStatusAndCode(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api, "staff", "staff123")

	res := staff.do(http.MethodPost, "/api/v1/checkout", domain.CheckoutRequest{
		Lines:             []domain.CartLineInput{{ProductID: "prd-kopi", Quantity: 1}},
		CashReceivedCents: 100,
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "insufficient_cash", errorCodeOf(t, res))

	res = staff.do(http.MethodPost, "/api/v1/pricing/quote", domain.QuoteRequest{
		Lines: []domain.CartLineInput{{ProductID: "prd-kaos", VariantID: "prd-kaos-xl", Quantity: 1}},
	})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "insufficient_stock", errorCodeOf(t, res))

	res = staff.do(http.MethodPost, "/api/v1/pricing/quote", domain.QuoteRequest{
		Lines: []domain.CartLineInput{{ProductID: "prd-unknown", Quantity: 1}},
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid_input", errorCodeOf(t, res))

	res = staff.do(http.MethodPost, "/api/v1/withdrawals", domain.WithdrawalCreateRequest{AmountCents: 100})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "insufficient_balance", errorCodeOf(t, res))
}

func TestStorefrontIsPublic(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/storefront/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "cost_price_cents")
	require.NotContains(t, rec.Body.String(), "commission_percent")

	body := `{"lines":[{"product_id":"prd-mie","quantity":5}],"customer":{"name":"Siti"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/storefront/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[domain.Sale](t, rec, "order")
	require.Equal(t, domain.SaleStatusClientOrder, order.Status)
	require.Equal(t, int64(16500), order.TotalCents)

	manager := newClient(t, api, "manager", "manager123")
	res := manager.do(http.MethodPost, "/api/v1/sales/"+order.ID+"/review", domain.SaleReviewRequest{Decision: domain.SaleStatusRejected})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, domain.SaleStatusRejected, decode[domain.Sale](t, res, "sale").Status)
}

func TestCashCountOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api, "staff", "staff123")
	manager := newClient(t, api, "manager", "manager123")
	owner := newClient(t, api, "owner", "owner123")

	today := time.Now().UTC().Format(domain.DateLayout)
	res := staff.do(http.MethodPost, "/api/v1/cash-counts", domain.CashCountCreateRequest{Date: today, CountedTotalCents: 0})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	cc := decode[domain.CashCount](t, res, "cash_count")

	res = staff.do(http.MethodPost, "/api/v1/cash-counts/"+cc.ID+"/second-sign", nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "invalid_state_transition", errorCodeOf(t, res))

	signReq := domain.TransitionRequest{Expectation: domain.Expectation{ExpectedVersion: 1}}
	res = manager.do(http.MethodPost, "/api/v1/cash-counts/"+cc.ID+"/second-sign", signReq)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = owner.do(http.MethodPost, "/api/v1/cash-counts/"+cc.ID+"/second-sign", signReq)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "stale_state", errorCodeOf(t, res))

	res = manager.do(http.MethodPost, "/api/v1/cash-counts/"+cc.ID+"/owner-review", domain.CashCountReviewRequest{Decision: domain.CashCountAccepted})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = owner.do(http.MethodPost, "/api/v1/cash-counts/"+cc.ID+"/owner-review", domain.CashCountReviewRequest{Decision: domain.CashCountAccepted})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, domain.CashCountAccepted, decode[domain.CashCount](t, res, "cash_count").Status)

	res = staff.do(http.MethodGet, "/api/v1/cash-counts/system-total?date="+today, nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestUnknownWorkflowActionIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	owner := newClient(t, api, "owner", "owner123")

	res := owner.do(http.MethodPost, "/api/v1/withdrawals/wd-1/teleport", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestStatusForCodes(t *testing.T) {
	cases := map[string]int{
		"invalid_input":            http.StatusBadRequest,
		"forbidden":                http.StatusForbidden,
		"not_found":                http.StatusNotFound,
		"stale_state":              http.StatusConflict,
		"invalid_state_transition": http.StatusConflict,
		"insufficient_stock":       http.StatusConflict,
		"negative_total":           http.StatusUnprocessableEntity,
		"insufficient_cash":        http.StatusUnprocessableEntity,
		"insufficient_balance":     http.StatusUnprocessableEntity,
		"internal":                 http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, statusFor(code), code)
	}
}

