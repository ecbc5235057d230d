package orders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	got    *PlaceRequest
	order  *Order
	err    error
	called int
}

func (f *fakePlacer) Place(_ context.Context, req PlaceRequest) (*Order, error) {
	f.called++
	f.got = &req
	return f.order, f.err
}

func validRequest() PlaceRequest {
	return PlaceRequest{
		UserID:        "u-1",
		Items:         []CartItem{{ProductID: "p-1", Quantity: 2}},
		PaymentMethod: PaymentCash,
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlaceRequest)
		wantErr error
	}{
		{
			name:    "empty cart",
			mutate:  func(r *PlaceRequest) { r.Items = nil },
			wantErr: ErrEmptyCart,
		},
		{
			name:    "unknown payment method",
			mutate:  func(r *PlaceRequest) { r.PaymentMethod = "paypal" },
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name:    "blank payment method",
			mutate:  func(r *PlaceRequest) { r.PaymentMethod = "" },
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name:    "zero quantity",
			mutate:  func(r *PlaceRequest) { r.Items[0].Quantity = 0 },
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "negative quantity",
			mutate:  func(r *PlaceRequest) { r.Items[0].Quantity = -3 },
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "notes too long",
			mutate:  func(r *PlaceRequest) { r.Notes = strings.Repeat("a", MaxNotesLen+1) },
			wantErr: ErrNotesTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakePlacer{}
			svc := &Service{Repo: repo}

			req := validRequest()
			tt.mutate(&req)

			_, err := svc.PlaceOrder(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, repo.called, "repo must not be reached on validation failure")
		})
	}
}

func TestPlaceOrderBlankProductID(t *testing.T) {
	repo := &fakePlacer{}
	svc := &Service{Repo: repo}

	req := validRequest()
	req.Items[0].ProductID = "   "

	_, err := svc.PlaceOrder(context.Background(), req)

	var nf *ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, repo.called)
}

func TestPlaceOrderTrimsNotes(t *testing.T) {
	want := &Order{ID: "o-1", Total: decimal.NewFromInt(5000)}
	repo := &fakePlacer{order: want}
	svc := &Service{Repo: repo}

	req := validRequest()
	req.Notes = "  sin cebolla  "

	got, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, "sin cebolla", repo.got.Notes)
}

func TestPlaceOrderNotesAtLimit(t *testing.T) {
	repo := &fakePlacer{order: &Order{ID: "o-1"}}
	svc := &Service{Repo: repo}

	req := validRequest()
	req.Notes = strings.Repeat("a", MaxNotesLen)

	_, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.called)
}

func TestPlaceOrderPropagatesRepoError(t *testing.T) {
	wantErr := &InsufficientStockError{ProductID: "p-1", Name: "Empanada", Requested: 5, Available: 2}
	repo := &fakePlacer{err: wantErr}
	svc := &Service{Repo: repo}

	_, err := svc.PlaceOrder(context.Background(), validRequest())

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 5, stock.Requested)
	assert.Equal(t, 2, stock.Available)
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Err: cause}
	assert.ErrorIs(t, err, cause)
}
