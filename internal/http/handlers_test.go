package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/coupon"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/metrics"
	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/fjod/plancart/internal/repository"
	"github.com/fjod/plancart/internal/service"
	"github.com/fjod/plancart/pkg/circuitbreaker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	m := metrics.New()
	store := catalog.NewSeededMemoryStore()
	validator := coupon.NewValidator(store, m, zerolog.Nop())
	calc := pricing.NewCalculator(store, validator, decimal.NewFromInt(10), "USD", m, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })

	svc := service.NewCartService(service.Dependencies{
		Repo:        repository.NewMemoryRepository(),
		Quoter:      calc,
		Coupons:     validator,
		CouponUsage: store,
		Orders:      orders.NewMemoryStore(),
		Metrics:     m,
		Logger:      zerolog.Nop(),
	}, service.Options{
		TaxPercent: decimal.NewFromInt(10),
		Currency:   "USD",
		Now:        func() time.Time { return testNow },
	})

	h := NewRouter(RouterConfig{
		Catalog:  NewCatalogHandler(store, calc, validator, 5*time.Second, zerolog.Nop()),
		Carts:    NewCartHandler(svc, 5*time.Second, zerolog.Nop()),
		Checkout: NewCheckoutHandler(svc, 5*time.Second, zerolog.Nop()),
		Metrics:  m,
	})
	return &testServer{handler: h, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	resp := decode[ErrorResponse](t, rr)
	assert.Equal(t, code, resp.Code)
	assert.Equal(t, http.StatusText(status), resp.Error)
}

func (s *testServer) newCart(t *testing.T) string {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/v1/carts", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	return decode[CartResponseDTO](t, rr).Cart.ID
}

func teamPlan(seats int) map[string]interface{} {
	return map[string]interface{}{
		"plan": map[string]interface{}{
			"plan_id":  "team",
			"interval": "monthly",
			"seats":    seats,
			"quantity": 1,
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestListPlans(t *testing.T) {
	s := newTestServer(t)

	t.Run("all plans, popular first", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/v1/plans", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		plans := decode[[]domain.Plan](t, rr)
		require.Len(t, plans, 3)
		assert.Equal(t, "team", plans[0].ID)
	})

	t.Run("by category", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/v1/plans?category=security", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		plans := decode[[]domain.Plan](t, rr)
		require.Len(t, plans, 1)
		assert.Equal(t, "vault", plans[0].ID)
	})

	t.Run("unknown category is empty, not null", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/v1/plans?category=nope", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("bad popular flag", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/v1/plans?popular=maybe", nil)
		assertError(t, rr, http.StatusBadRequest, "invalid_popular")
	})
}

func TestGetPlan(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/plans/team", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	plan := decode[domain.Plan](t, rr)
	assert.Equal(t, "Team", plan.Title)
	assert.Len(t, plan.AddOns, 2)

	rr = s.do(t, http.MethodGet, "/api/v1/plans/enterprise", nil)
	assertError(t, rr, http.StatusNotFound, "plan_not_found")
}

func TestListCategories(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/categories", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.Category](t, rr), 2)
}

func TestGetCoupon(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/coupons/save20", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[CouponResponseDTO](t, rr)
	assert.True(t, resp.Valid)
	assert.Equal(t, "SAVE20", resp.Coupon.Code)

	assertError(t, s.do(t, http.MethodGet, "/api/v1/coupons/NOPE", nil), http.StatusUnprocessableEntity, "coupon_not_found")
}

func TestCreateQuote(t *testing.T) {
	s := newTestServer(t)

	t.Run("worked example", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{
			"plan_id":     "team",
			"interval":    "monthly",
			"seats":       3,
			"quantity":    1,
			"coupon_code": "WELCOME10",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		q := decode[pricing.Quote](t, rr)
		assert.Equal(t, "1149", q.Breakdown.Subtotal.String())
		assert.Equal(t, "114.9", q.Breakdown.DiscountAmount.String())
		assert.Equal(t, "1137.51", q.Breakdown.Total.String())
		assert.Equal(t, "USD", q.Breakdown.Currency)
		assert.Empty(t, q.CouponError)
	})

	t.Run("bad coupon still prices", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{
			"plan_id":     "team",
			"seats":       3,
			"coupon_code": "NOPE",
		})
		require.Equal(t, http.StatusOK, rr.Code)
		q := decode[pricing.Quote](t, rr)
		assert.NotEmpty(t, q.CouponError)
		assert.True(t, q.Breakdown.DiscountAmount.IsZero())
		assert.Equal(t, "1263.9", q.Breakdown.Total.String())
	})

	t.Run("clamped values are reported", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{
			"plan_id":  "starter",
			"seats":    0,
			"quantity": -2,
		})
		require.Equal(t, http.StatusOK, rr.Code)
		q := decode[pricing.Quote](t, rr)
		assert.Len(t, q.Adjustments, 2)
		assert.Equal(t, 1, q.Config.Quantity)
	})

	t.Run("unknown plan", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{"plan_id": "gold"})
		assertError(t, rr, http.StatusNotFound, "plan_not_found")
	})

	t.Run("missing plan id", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{"seats": 2})
		assertError(t, rr, http.StatusBadRequest, "validation_failed")
	})

	t.Run("bad interval", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{"plan_id": "team", "interval": "weekly"})
		assertError(t, rr, http.StatusBadRequest, "validation_failed")
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/v1/quotes", "{not json")
		assertError(t, rr, http.StatusBadRequest, "invalid_request")
	})
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(t)
	cartID := s.newCart(t)

	rr := s.do(t, http.MethodGet, "/api/v1/carts/"+cartID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[CartResponseDTO](t, rr)
	assert.Equal(t, domain.StateEmpty, empty.State)
	assert.True(t, empty.Totals.Total.IsZero())

	rr = s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", map[string]interface{}{
		"item_id": "line-1",
		"plan": map[string]interface{}{
			"plan_id":  "team",
			"interval": "monthly",
			"seats":    3,
			"quantity": 1,
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	added := decode[CartResponseDTO](t, rr)
	assert.Equal(t, domain.StatePopulated, added.State)
	assert.Equal(t, "1149", added.Totals.Subtotal.String())
	require.NotNil(t, added.Quote)
	assert.Equal(t, added.Totals.Subtotal.String(), added.Quote.Breakdown.Subtotal.String())

	rr = s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/coupon", ApplyCouponRequestDTO{Code: "welcome10"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	withCoupon := decode[CartResponseDTO](t, rr)
	assert.Equal(t, domain.StateCouponApplied, withCoupon.State)
	assert.Equal(t, "1137.51", withCoupon.Totals.Total.String())

	rr = s.do(t, http.MethodGet, "/api/v1/carts/"+cartID+"/totals", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[domain.TotalsView](t, rr)
	assert.Equal(t, "1137.51", view.Total.String())
	assert.Equal(t, withCoupon.Cart.Version, view.Version)
	assert.False(t, view.Speculative)

	rr = s.do(t, http.MethodDelete, "/api/v1/carts/"+cartID+"/coupon", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.StatePopulated, decode[CartResponseDTO](t, rr).State)

	rr = s.do(t, http.MethodDelete, "/api/v1/carts/"+cartID+"/items/line-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.StateEmpty, decode[CartResponseDTO](t, rr).State)
}

func TestAddItem_PrebuiltItem(t *testing.T) {
	s := newTestServer(t)
	cartID := s.newCart(t)

	rr := s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", map[string]interface{}{
		"item": map[string]interface{}{
			"id":             "custom",
			"title":          "Onboarding",
			"base_price":     100,
			"price_per_unit": 0,
			"seats":          0,
			"quantity":       1,
		},
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[CartResponseDTO](t, rr)
	assert.Equal(t, "100", resp.Totals.Subtotal.String())
	require.Len(t, resp.Adjustments, 1)
	assert.Equal(t, "seats", resp.Adjustments[0].Field)
}

func TestAddItem_BadRequests(t *testing.T) {
	s := newTestServer(t)
	cartID := s.newCart(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"neither plan nor item", map[string]interface{}{"item_id": "x"}, http.StatusBadRequest, "invalid_request"},
		{"both plan and item", map[string]interface{}{
			"plan": map[string]interface{}{"plan_id": "team"},
			"item": map[string]interface{}{"id": "x", "title": "X"},
		}, http.StatusBadRequest, "invalid_request"},
		{"item without title", map[string]interface{}{
			"item": map[string]interface{}{"id": "x", "quantity": 1},
		}, http.StatusBadRequest, "invalid_argument"},
		{"unknown plan", map[string]interface{}{
			"plan": map[string]interface{}{"plan_id": "gold"},
		}, http.StatusNotFound, "plan_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", tt.body)
			assertError(t, rr, tt.status, tt.code)
		})
	}
}

func TestCouponErrors(t *testing.T) {
	s := newTestServer(t)
	cartID := s.newCart(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", teamPlan(1)).Code)

	assertError(t, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/coupon", ApplyCouponRequestDTO{Code: "NOPE"}),
		http.StatusUnprocessableEntity, "coupon_not_found")
	assertError(t, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/coupon", ApplyCouponRequestDTO{Code: "WINTER24"}),
		http.StatusUnprocessableEntity, "coupon_expired")
	assertError(t, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/coupon", ApplyCouponRequestDTO{Code: "FLAT50"}),
		http.StatusUnprocessableEntity, "coupon_not_applicable")
	assertError(t, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/coupon", map[string]string{}),
		http.StatusBadRequest, "validation_failed")

	rr := s.do(t, http.MethodGet, "/api/v1/carts/"+cartID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode[CartResponseDTO](t, rr).Cart.Coupon)
}

func TestUpdateAndPreview(t *testing.T) {
	s := newTestServer(t)
	cartID := s.newCart(t)
	rr := s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", map[string]interface{}{
		"item_id": "line-1",
		"plan":    teamPlan(3)["plan"],
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	before := decode[CartResponseDTO](t, rr)

	rr = s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items/line-1/preview", map[string]interface{}{"seats": 5})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	preview := decode[PreviewResponseDTO](t, rr)
	assert.True(t, preview.Totals.Speculative)
	assert.Equal(t, before.Cart.Version+1, preview.Totals.Version)
	assert.Equal(t, "1249", preview.Totals.Subtotal.String())

	// Preview commits nothing.
	rr = s.do(t, http.MethodGet, "/api/v1/carts/"+cartID+"/totals", nil)
	assert.Equal(t, before.Cart.Version, decode[domain.TotalsView](t, rr).Version)

	rr = s.do(t, http.MethodPatch, "/api/v1/carts/"+cartID+"/items/line-1", map[string]interface{}{
		"seats":   5,
		"add_ons": map[string]bool{"sso": true},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[CartResponseDTO](t, rr)
	assert.Equal(t, "1348", updated.Totals.Subtotal.String())
	assert.Equal(t, preview.Totals.Version, updated.Cart.Version)

	committed := domain.Supersede(preview.Totals, updated.Cart.View())
	assert.False(t, committed.Speculative)

	rr = s.do(t, http.MethodPatch, "/api/v1/carts/"+cartID+"/items/line-1", map[string]interface{}{"quantity": 0})
	require.Equal(t, http.StatusOK, rr.Code)
	clamped := decode[CartResponseDTO](t, rr)
	require.Len(t, clamped.Adjustments, 1)
	assert.Equal(t, "quantity", clamped.Adjustments[0].Field)

	assertError(t, s.do(t, http.MethodPatch, "/api/v1/carts/"+cartID+"/items/ghost", map[string]interface{}{"seats": 2}),
		http.StatusNotFound, "item_not_found")
	assertError(t, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items/ghost/preview", map[string]interface{}{"seats": 2}),
		http.StatusNotFound, "item_not_found")
	assertError(t, s.do(t, http.MethodDelete, "/api/v1/carts/"+cartID+"/items/ghost", nil),
		http.StatusNotFound, "item_not_found")
}

func TestCartNotFoundAndDelete(t *testing.T) {
	s := newTestServer(t)

	assertError(t, s.do(t, http.MethodGet, "/api/v1/carts/missing", nil), http.StatusNotFound, "cart_not_found")
	assertError(t, s.do(t, http.MethodGet, "/api/v1/carts/missing/totals", nil), http.StatusNotFound, "cart_not_found")

	cartID := s.newCart(t)
	rr := s.do(t, http.MethodDelete, "/api/v1/carts/"+cartID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assertError(t, s.do(t, http.MethodGet, "/api/v1/carts/"+cartID, nil), http.StatusNotFound, "cart_not_found")
}

func TestCheckout(t *testing.T) {
	s := newTestServer(t)
	cartID := s.newCart(t)

	assertError(t, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/checkout", nil, idempotencyKeyHeader, "empty-1"),
		http.StatusConflict, "empty_cart")

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", teamPlan(3)).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/coupon", ApplyCouponRequestDTO{Code: "SAVE20"}).Code)

	rr := s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/checkout", nil, idempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	order := decode[orders.Order](t, rr)
	assert.Equal(t, "1011.12", order.Totals.Total.String())
	assert.Equal(t, "SAVE20", order.CouponCode)
	assert.Equal(t, "/api/v1/orders/"+order.ID.String(), rr.Header().Get("Location"))

	rr = s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/checkout", nil, idempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "true", rr.Header().Get(replayedHeader))
	assert.Equal(t, order.ID, decode[orders.Order](t, rr).ID)

	rr = s.do(t, http.MethodGet, "/api/v1/carts/"+cartID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.StateCleared, decode[CartResponseDTO](t, rr).State)

	rr = s.do(t, http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, orders.StatusConfirmed, decode[orders.Order](t, rr).Status)

	assertError(t, s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil), http.StatusBadRequest, "invalid_argument")
	assertError(t, s.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil), http.StatusNotFound, "order_not_found")
}

func TestCheckout_KeyReusedOnAnotherCart(t *testing.T) {
	s := newTestServer(t)
	first, second := s.newCart(t), s.newCart(t)
	for _, id := range []string{first, second} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/carts/"+id+"/items", teamPlan(3)).Code)
	}

	rr := s.do(t, http.MethodPost, "/api/v1/carts/"+first+"/checkout", nil, idempotencyKeyHeader, "shared")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/api/v1/carts/"+second+"/checkout", nil, idempotencyKeyHeader, "shared")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Empty(t, rr.Header().Get(replayedHeader))
	assert.Equal(t, second, decode[orders.Order](t, rr).CartID)

	rr = s.do(t, http.MethodGet, "/api/v1/carts/"+second, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.StateCleared, decode[CartResponseDTO](t, rr).State)
}

func TestMetricsEndpointAndRouteLabels(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodGet, "/api/v1/plans/team", nil)
	s.do(t, http.MethodGet, "/api/v1/plans/nope", nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/plans/{planID}", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/plans/{planID}", "404")))

	rr := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "plancart_http_requests_total")
}

func TestHandleError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %w", service.ErrRetriesExhausted, repository.ErrVersionConflict), http.StatusConflict, "version_conflict"},
		{domain.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
		{circuitbreaker.ErrOpen, http.StatusServiceUnavailable, "service_unavailable"},
		{fmt.Errorf("create order: %w", orders.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
		{coupon.ErrCouponUsageLimitReached, http.StatusUnprocessableEntity, "coupon_usage_limit_reached"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			handleError(rr, req, zerolog.Nop(), tt.err)

			assertError(t, rr, tt.status, tt.code)
		})
	}
}
