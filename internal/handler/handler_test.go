package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/checkout"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/notify"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/payment"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/domain/tx"
	"github.com/xenking/order-engine/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	t      *testing.T
	store  *memory.Store
	router *gin.Engine
	sec    *Security
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	store.PutProduct(product.Product{ID: "A", Name: "Alpha", Price: decimal.NewFromInt(100), Stock: 2})
	store.PutProduct(product.Product{ID: "B", Name: "Beta", Price: decimal.NewFromInt(500), Stock: 5})

	limit := 100
	require.NoError(t, store.Coupons().Upsert(context.Background(), coupon.Coupon{
		ID:                "save10",
		Code:              "SAVE10",
		DiscountType:      coupon.DiscountPercentage,
		DiscountValue:     decimal.NewFromInt(10),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
		UsageLimit:        &limit,
		ValidFrom:         time.Now().Add(-time.Hour),
		Active:            true,
	}))

	stock := product.NewStock(store.Products())
	orders := order.NewService(store.Orders(), stock, store, notify.Discard{})
	ledger := coupon.NewLedger(store.Coupons())
	h := New(Services{
		Checkout: checkout.NewService(checkout.Deps{
			Tx:       store,
			Carts:    store.Carts(),
			Stock:    stock,
			Coupons:  ledger,
			Orders:   store.Orders(),
			Payments: payment.NewFormatAuthorizer(),
		}),
		Orders:        orders,
		Cancellations: cancellation.NewWorkflow(store, store.Orders(), store.Requests(), orders, nil),
		Coupons:       ledger,
		Carts:         cart.NewService(store.Carts(), store.Products(), store),
		Products:      store.Products(),
	}, nil)

	sec := NewSecurity([]byte("test-secret"))
	r := gin.New()
	h.Register(r, sec)
	return &testAPI{t: t, store: store, router: r, sec: sec}
}

func (a *testAPI) token(userID string, admin bool) string {
	a.t.Helper()
	tok, err := a.sec.Issue(userID, admin, time.Hour)
	require.NoError(a.t, err)
	return tok
}

type call struct {
	method, path string
	token        string
	session      string
	body         any
}

func (a *testAPI) do(c call) (int, map[string]any) {
	a.t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(a.t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" {
		req.Header.Set(HeaderSessionID, c.session)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (a *testAPI) addToCart(token, session, productID string, qty int) {
	a.t.Helper()
	code, body := a.do(call{
		method: http.MethodPut, path: "/api/cart/items", token: token, session: session,
		body: map[string]any{"productId": productID, "quantity": qty},
	})
	require.Equal(a.t, http.StatusOK, code, body)
}

func checkoutBody(coupon string) map[string]any {
	return map[string]any{
		"shippingAddress": map[string]any{
			"fullName":   "Ada Lovelace",
			"line1":      "12 Analytical St",
			"city":       "London",
			"postalCode": "N1 9GU",
			"country":    "GB",
			"phone":      "+44 20 7946 0958",
		},
		"payment": map[string]any{
			"cardHolder": "Ada Lovelace",
			"cardNumber": "4242424242424242",
			"expiry":     "12/99",
			"cvv":        "123",
		},
		"couponCode": coupon,
	}
}

func (a *testAPI) placeOrder(token string) string {
	a.t.Helper()
	a.addToCart(token, "", "A", 2)
	code, body := a.do(call{method: http.MethodPost, path: "/api/orders", token: token, body: checkoutBody("")})
	require.Equal(a.t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func TestCreateOrder(t *testing.T) {
	api := newTestAPI(t)
	user := api.token("user-1", false)

	// Anonymous cart, merged at login.
	api.addToCart("", "sess-1", "A", 2)
	code, body := api.do(call{method: http.MethodPost, path: "/api/cart/merge", token: user, session: "sess-1"})
	require.Equal(t, http.StatusOK, code, body)
	require.Len(t, body["items"], 1)

	code, body = api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: checkoutBody("")})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "200.00", body["total"])
	assert.Equal(t, "0.00", body["discount"])
	assert.Equal(t, "200.00", body["payable"])

	id := body["id"].(string)
	code, body = api.do(call{method: http.MethodGet, path: "/api/orders/" + id + "/history", token: user})
	require.Equal(t, http.StatusOK, code)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "PENDING", events[0].(map[string]any)["newStatus"])

	p, _ := api.store.Product("A")
	assert.Zero(t, p.Stock)

	code, body = api.do(call{method: http.MethodGet, path: "/api/cart", token: user})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])
}

func TestCreateOrder_SessionCart(t *testing.T) {
	api := newTestAPI(t)
	user := api.token("user-1", false)
	api.addToCart("", "sess-2", "A", 1)

	b := checkoutBody("")
	b["sessionId"] = "sess-2"
	code, body := api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: b})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "100.00", body["total"])

	code, body = api.do(call{method: http.MethodGet, path: "/api/cart", session: "sess-2"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	// Without sessionId the caller's own, empty cart is used.
	api.addToCart("", "sess-2", "A", 1)
	code, body = api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: checkoutBody("")})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "empty_cart", body["code"])
}

func TestCreateOrder_WithCoupon(t *testing.T) {
	api := newTestAPI(t)
	user := api.token("user-1", false)
	api.addToCart(user, "", "B", 2)

	code, body := api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: checkoutBody("save10")})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "1000.00", body["total"])
	assert.Equal(t, "50.00", body["discount"])
	assert.Equal(t, "950.00", body["payable"])
	assert.Equal(t, "SAVE10", body["couponCode"])

	// The same user cannot redeem twice.
	api.addToCart(user, "", "B", 1)
	code, body = api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: checkoutBody("SAVE10")})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "coupon_already_used", body["code"])
}

func TestCreateOrder_Errors(t *testing.T) {
	api := newTestAPI(t)
	user := api.token("user-1", false)

	t.Run("Anonymous", func(t *testing.T) {
		code, body := api.do(call{method: http.MethodPost, path: "/api/orders", body: checkoutBody("")})
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "unauthenticated", body["code"])
	})
	t.Run("ForgedToken", func(t *testing.T) {
		forged, err := NewSecurity([]byte("other")).Issue("user-1", true, time.Hour)
		require.NoError(t, err)
		code, _ := api.do(call{method: http.MethodPost, path: "/api/orders", token: forged, body: checkoutBody("")})
		assert.Equal(t, http.StatusUnauthorized, code)
	})
	t.Run("EmptyCart", func(t *testing.T) {
		code, body := api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: checkoutBody("")})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "empty_cart", body["code"])
	})
	t.Run("InvalidAddress", func(t *testing.T) {
		b := checkoutBody("")
		b["shippingAddress"].(map[string]any)["city"] = ""
		code, body := api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: b})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "validation_error", body["code"])
	})
	t.Run("InsufficientStock", func(t *testing.T) {
		api.addToCart(user, "", "A", 3)
		code, body := api.do(call{method: http.MethodPost, path: "/api/orders", token: user, body: checkoutBody("")})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "insufficient_stock", body["code"])
		details := body["details"].(map[string]any)
		assert.EqualValues(t, 2, details["available"])
		assert.EqualValues(t, 3, details["requested"])
	})
}

func TestGetOrder_Access(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token("user-1", false)
	id := api.placeOrder(owner)

	code, _ := api.do(call{method: http.MethodGet, path: "/api/orders/" + id, token: owner})
	assert.Equal(t, http.StatusOK, code)

	code, _ = api.do(call{method: http.MethodGet, path: "/api/orders/" + id, token: api.token("user-2", false)})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.do(call{method: http.MethodGet, path: "/api/orders/" + id, token: api.token("admin", true)})
	assert.Equal(t, http.StatusOK, code)

	code, body := api.do(call{method: http.MethodGet, path: "/api/orders/missing", token: owner})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "order_not_found", body["code"])
}

func TestUpdateOrderStatus(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token("user-1", false)
	admin := api.token("admin", true)
	id := api.placeOrder(owner)
	path := "/api/orders/" + id + "/status"

	code, _ := api.do(call{method: http.MethodPost, path: path, token: owner, body: map[string]any{"status": "CONFIRMED"}})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := api.do(call{method: http.MethodPost, path: path, token: admin, body: map[string]any{"status": "SHIPPED", "trackingNumber": "TRK1"}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", body["code"])

	code, body = api.do(call{method: http.MethodPost, path: path, token: admin, body: map[string]any{"status": "bogus"}})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = api.do(call{method: http.MethodPost, path: path, token: admin, body: map[string]any{"status": "confirmed"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CONFIRMED", body["status"])
	assert.NotEmpty(t, body["confirmedAt"])

	code, body = api.do(call{method: http.MethodPost, path: path, token: admin, body: map[string]any{"status": "SHIPPED"}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "tracking_number_required", body["code"])

	code, body = api.do(call{method: http.MethodPost, path: path, token: admin, body: map[string]any{"status": "SHIPPED", "trackingNumber": "TRK1"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "TRK1", body["trackingNumber"])

	_, body = api.do(call{method: http.MethodGet, path: "/api/orders/" + id + "/history", token: owner})
	assert.Len(t, body["events"], 3)
}

func TestCancelOrder(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token("user-1", false)
	id := api.placeOrder(owner)

	code, body := api.do(call{method: http.MethodPost, path: "/api/orders/" + id + "/cancel", token: owner})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CANCELLED", body["status"])

	p, _ := api.store.Product("A")
	assert.Equal(t, 2, p.Stock)

	_, body = api.do(call{method: http.MethodGet, path: "/api/orders/" + id + "/history", token: owner})
	events := body["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "order cancelled", events[1].(map[string]any)["note"])

	code, body = api.do(call{method: http.MethodPost, path: "/api/orders/" + id + "/cancel", token: owner})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_cancellable", body["code"])
}

func TestCancellationRequests(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token("user-1", false)
	admin := api.token("admin", true)
	id := api.placeOrder(owner)
	path := "/api/orders/" + id + "/cancellation-requests"

	code, body := api.do(call{method: http.MethodPost, path: path, token: owner, body: map[string]any{"reason": ""}})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = api.do(call{method: http.MethodPost, path: path, token: owner, body: map[string]any{"reason": "changed my mind"}})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "PENDING", body["status"])
	reqID := body["id"].(string)

	code, body = api.do(call{method: http.MethodPost, path: path, token: owner, body: map[string]any{"reason": "again"}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "cancellation_already_pending", body["code"])

	resolve := "/api/cancellation-requests/" + reqID + "/resolve"
	code, _ = api.do(call{method: http.MethodPost, path: resolve, token: owner, body: map[string]any{"decision": "APPROVE"}})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = api.do(call{method: http.MethodPost, path: resolve, token: admin, body: map[string]any{"decision": "approve", "note": "ok"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, "admin", body["adminId"])

	code, body = api.do(call{method: http.MethodPost, path: resolve, token: admin, body: map[string]any{"decision": "REJECT"}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "cancellation_not_pending", body["code"])

	code, body = api.do(call{method: http.MethodGet, path: path, token: owner})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["requests"], 1)

	code, body = api.do(call{method: http.MethodGet, path: "/api/orders/" + id, token: owner})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", body["status"])
}

func TestValidateCoupon(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(call{method: http.MethodPost, path: "/api/coupons/validate",
		body: map[string]any{"code": "save10", "subtotal": "1000"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "50.00", body["discount"])
	assert.Equal(t, "SAVE10", body["code"])

	code, body = api.do(call{method: http.MethodPost, path: "/api/coupons/validate",
		body: map[string]any{"code": "NOPE", "subtotal": "1000"}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "coupon_not_found", body["code"])

	code, _ = api.do(call{method: http.MethodPost, path: "/api/coupons/validate",
		body: map[string]any{"code": "SAVE10", "subtotal": "-1"}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCart(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(call{method: http.MethodGet, path: "/api/cart"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := api.do(call{method: http.MethodPut, path: "/api/cart/items", session: "s",
		body: map[string]any{"productId": "A", "quantity": 0}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_quantity", body["code"])

	code, body = api.do(call{method: http.MethodPut, path: "/api/cart/items", session: "s",
		body: map[string]any{"productId": "ghost", "quantity": 1}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "product_not_found", body["code"])

	api.addToCart("", "s", "B", 3)
	code, _ = api.do(call{method: http.MethodDelete, path: "/api/cart/items/B", session: "s"})
	assert.Equal(t, http.StatusNoContent, code)

	_, body = api.do(call{method: http.MethodGet, path: "/api/cart", session: "s"})
	assert.Empty(t, body["items"])

	code, _ = api.do(call{method: http.MethodPost, path: "/api/cart/merge", session: "s"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestGetProduct(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(call{method: http.MethodGet, path: "/api/products/A"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Alpha", body["name"])
	assert.Equal(t, "100.00", body["price"])
	assert.EqualValues(t, 2, body["stock"])
	assert.Equal(t, true, body["available"])

	code, body = api.do(call{method: http.MethodGet, path: "/api/products/ghost"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "product_not_found", body["code"])
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Retryable", errors.Wrap(tx.ErrRetryable, "lock products"), http.StatusServiceUnavailable, "retryable"},
		{"Declined", payment.ErrDeclined, http.StatusUnprocessableEntity, "payment_declined"},
		{"CardField", &payment.FieldError{Field: "cvv", Reason: "must be 3 or 4 digits"}, http.StatusBadRequest, "invalid_card"},
		{"CouponExpired", errors.Wrap(coupon.ErrExpired, "validate"), http.StatusUnprocessableEntity, "coupon_expired"},
		{"CouponLimit", coupon.ErrUsageLimitReached, http.StatusUnprocessableEntity, "coupon_usage_limit_reached"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.status == http.StatusServiceUnavailable, body.Retryable)
		})
	}
}

func TestSecurity_Parse(t *testing.T) {
	sec := NewSecurity([]byte("k"))

	tok, err := sec.Issue("admin-1", true, time.Minute)
	require.NoError(t, err)
	actor, err := sec.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", actor.ID)
	assert.True(t, actor.Admin)

	expired, err := sec.Issue("user-1", false, -time.Minute)
	require.NoError(t, err)
	_, err = sec.Parse(expired)
	assert.Error(t, err)
}
