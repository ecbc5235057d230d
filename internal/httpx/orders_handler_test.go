package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-store/internal/orders"
	"school-store/internal/redisx"
	"school-store/internal/users"
)

type fakeOrderSvc struct {
	got   *orders.PlaceRequest
	order *orders.Order
	err   error
}

func (f *fakeOrderSvc) PlaceOrder(_ context.Context, req orders.PlaceRequest) (*orders.Order, error) {
	f.got = &req
	return f.order, f.err
}

type fakeOrderStore struct {
	order  *orders.Order
	status orders.Status
	owner  string
	list   []orders.Order
	err    error
}

func (f *fakeOrderStore) GetForUser(_ context.Context, _, _ string) (*orders.Order, error) {
	return f.order, f.err
}

func (f *fakeOrderStore) GetStatus(_ context.Context, _ string) (orders.Status, string, error) {
	return f.status, f.owner, f.err
}

func (f *fakeOrderStore) List(_ context.Context, _ orders.ListFilter) ([]orders.Order, error) {
	return f.list, f.err
}

func (f *fakeOrderStore) AttachProof(_ context.Context, _, _, _ string) error {
	return f.err
}

type fakePublisher struct {
	keys   [][]byte
	values [][]byte
}

func (f *fakePublisher) Publish(key, value []byte, _ ...kafkago.Header) {
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
}

func injectUser(u *users.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func newOrdersRouter(h *OrdersHandler, u *users.User) *chi.Mux {
	r := chi.NewRouter()
	h.Register(r, injectUser(u), passthrough, passthrough)
	return r
}

var testCustomer = &users.User{ID: "u-1", Email: "ana@test.local", Role: users.RoleCustomer}

func placeBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"items":          []map[string]any{{"product_id": "p-1", "quantity": 2}},
		"payment_method": "cash",
		"notes":          "sin azucar",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func TestPlaceOrderCreated(t *testing.T) {
	placed := &orders.Order{
		ID:     "o-1",
		UserID: "u-1",
		Status: orders.StatusPlaced,
		Total:  decimal.RequireFromString("5000.00"),
		Lines: []orders.Line{
			{ProductID: "p-1", ProductName: "Empanada", Quantity: 2,
				UnitPrice: decimal.RequireFromString("2500.00"),
				Subtotal:  decimal.RequireFromString("5000.00")},
		},
	}
	svc := &fakeOrderSvc{order: placed}
	pub := &fakePublisher{}
	h := &OrdersHandler{Svc: svc, Producer: pub, Service: "store-api"}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", placeBody(t))
	newOrdersRouter(h, testCustomer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u-1", svc.got.UserID, "user id comes from the token, not the body")
	assert.Equal(t, "cash", svc.got.PaymentMethod)

	var resp orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "o-1", resp.ID)
	assert.Len(t, resp.Lines, 1)

	// one OrderPlaced event, keyed by order id
	require.Len(t, pub.values, 1)
	assert.Equal(t, []byte("o-1"), pub.keys[0])
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.values[0], &env))
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, "o-1", env.CorrelationID)
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"empty cart", orders.ErrEmptyCart, http.StatusBadRequest},
		{"bad payment method", orders.ErrInvalidPaymentMethod, http.StatusBadRequest},
		{"bad quantity", orders.ErrInvalidQuantity, http.StatusBadRequest},
		{"notes too long", orders.ErrNotesTooLong, http.StatusBadRequest},
		{"product missing", &orders.ProductNotFoundError{ProductID: "p-9"}, http.StatusNotFound},
		{"out of stock", &orders.InsufficientStockError{
			ProductID: "p-1", Name: "Empanada", Requested: 5, Available: 2}, http.StatusConflict},
		{"db down", &orders.PersistenceError{Err: context.DeadlineExceeded}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			h := &OrdersHandler{Svc: &fakeOrderSvc{err: tt.err}, Producer: pub, Service: "store-api"}

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/orders", placeBody(t))
			newOrdersRouter(h, testCustomer).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, pub.values, "no event on failed placement")
		})
	}
}

func TestPlaceOrderStockDetailBody(t *testing.T) {
	h := &OrdersHandler{Svc: &fakeOrderSvc{err: &orders.InsufficientStockError{
		ProductID: "p-1", Name: "Empanada", Requested: 5, Available: 2}}, Service: "store-api"}

	rec := httptest.NewRecorder()
	newOrdersRouter(h, testCustomer).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", placeBody(t)))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "p-1", body["product_id"])
	assert.Equal(t, "Empanada", body["product_name"])
	assert.Equal(t, float64(5), body["requested"])
	assert.Equal(t, float64(2), body["available"])
}

func TestPlaceOrderRetryableBody(t *testing.T) {
	h := &OrdersHandler{Svc: &fakeOrderSvc{err: &orders.PersistenceError{
		Err: context.DeadlineExceeded}}, Service: "store-api"}

	rec := httptest.NewRecorder()
	newOrdersRouter(h, testCustomer).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", placeBody(t)))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["retryable"])
}

func TestPlaceOrderInvalidJSON(t *testing.T) {
	h := &OrdersHandler{Svc: &fakeOrderSvc{}, Service: "store-api"}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{nope"))
	newOrdersRouter(h, testCustomer).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMine(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := &OrdersHandler{Repo: &fakeOrderStore{order: &orders.Order{ID: "o-1", UserID: "u-1"}}}
		rec := httptest.NewRecorder()
		newOrdersRouter(h, testCustomer).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("someone else's order looks missing", func(t *testing.T) {
		h := &OrdersHandler{Repo: &fakeOrderStore{err: orders.ErrNotFound}}
		rec := httptest.NewRecorder()
		newOrdersRouter(h, testCustomer).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-2", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("from database when cache is absent", func(t *testing.T) {
		h := &OrdersHandler{Repo: &fakeOrderStore{status: orders.StatusReady, owner: "u-1"}}
		rec := httptest.NewRecorder()
		newOrdersRouter(h, testCustomer).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
	})
	t.Run("unknown order", func(t *testing.T) {
		h := &OrdersHandler{Repo: &fakeOrderStore{err: orders.ErrNotFound}}
		rec := httptest.NewRecorder()
		newOrdersRouter(h, testCustomer).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-9/status", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("someone else's order looks missing", func(t *testing.T) {
		h := &OrdersHandler{Repo: &fakeOrderStore{status: orders.StatusReady, owner: "u-2"}}
		rec := httptest.NewRecorder()
		newOrdersRouter(h, testCustomer).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1/status", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("admin can read any order", func(t *testing.T) {
		h := &OrdersHandler{Repo: &fakeOrderStore{status: orders.StatusReady, owner: "u-2"}}
		rec := httptest.NewRecorder()
		newOrdersRouter(h, testAdmin).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1/status", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

// The cached fast path has to enforce the same ownership rule as the
// database path.
func TestGetStatusCachedStillChecksOwner(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, mr.Set(fmt.Sprintf(redisx.KeyOrderStatus, "o-1"),
		`{"status":"ready","user_id":"u-2"}`))

	// repo errors on purpose so a pass can only come from the cache
	h := &OrdersHandler{Repo: &fakeOrderStore{err: context.DeadlineExceeded}, Redis: rdb}

	rec := httptest.NewRecorder()
	newOrdersRouter(h, testCustomer).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "cache hit must not leak another user's order")

	rec = httptest.NewRecorder()
	newOrdersRouter(h, &users.User{ID: "u-2", Role: users.RoleCustomer}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestListMineEmptyIsArray(t *testing.T) {
	h := &OrdersHandler{Repo: &fakeOrderStore{}}
	rec := httptest.NewRecorder()
	newOrdersRouter(h, testCustomer).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}
