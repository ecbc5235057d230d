package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "school-store/internal/kafka"
	"school-store/internal/orders"
	"school-store/internal/redisx"
	"school-store/internal/uploads"
	"school-store/internal/users"
)

// orderStatusEntry is what the status cache stores per order. The owner id
// travels with the status so cache hits can still enforce ownership.
type orderStatusEntry struct {
	Status orders.Status `json:"status"`
	UserID string        `json:"user_id"`
}

// OrderPlacer is the slice of orders.Service the handler needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req orders.PlaceRequest) (*orders.Order, error)
}

// OrderStore is the slice of orders.Repo the read/upload endpoints need.
type OrderStore interface {
	GetForUser(ctx context.Context, orderID, userID string) (*orders.Order, error)
	GetStatus(ctx context.Context, orderID string) (orders.Status, string, error)
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
	AttachProof(ctx context.Context, orderID, userID, path string) error
}

// Publisher is the slice of kafka.Producer the handler needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Svc      OrderPlacer
	Repo     OrderStore
	Uploads  *uploads.Store
	Producer Publisher
	Redis    *redis.Client
	Service  string
}

func (h *OrdersHandler) Register(r chi.Router, authed, customer, storeHours func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authed)
		r.With(customer, storeHours).Post("/orders", h.placeOrder)
		r.Get("/orders", h.listMine)
		r.Get("/orders/{id}", h.getMine)
		r.Get("/orders/{id}/status", h.getStatus)
		r.With(customer).Post("/orders/{id}/proof", h.uploadProof)
		r.Get("/uploads/proofs/{filename}", h.serveProof)
	})
}

type placeOrderReq struct {
	Items         []orders.CartItem `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Notes         string            `json:"notes"`
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	u := UserFrom(r.Context())
	o, err := h.Svc.PlaceOrder(r.Context(), orders.PlaceRequest{
		UserID:        u.ID,
		Items:         req.Items,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondPlaceError(w, err)
		return
	}

	h.cacheStatus(r.Context(), o.ID, o.Status, o.UserID)

	h.publishPlaced(o, r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) publishPlaced(o *orders.Order, traceID string) {
	if h.Producer == nil {
		return
	}
	lines := make([]orders.LineSummary, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orders.LineSummary{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Subtotal:    l.Subtotal,
		})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID:       o.ID,
			UserID:        o.UserID,
			Total:         o.Total,
			PaymentMethod: o.PaymentMethod,
			Lines:         lines,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// respondPlaceError translates the placement failure kinds into HTTP
// responses carrying enough detail for a user-facing message.
func respondPlaceError(w http.ResponseWriter, err error) {
	var notFound *orders.ProductNotFoundError
	var noStock *orders.InsufficientStockError
	var persistence *orders.PersistenceError

	switch {
	case errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrNotesTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":      notFound.Error(),
			"product_id": notFound.ProductID,
		})
	case errors.As(err, &noStock):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        noStock.Error(),
			"product_id":   noStock.ProductID,
			"product_name": noStock.Name,
			"requested":    noStock.Requested,
			"available":    noStock.Available,
		})
	case errors.As(err, &persistence):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "order could not be saved, try again",
			"retryable": true,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	u := UserFrom(r.Context())
	os, err := h.Repo.List(r.Context(), orders.ListFilter{
		UserID: u.ID,
		Status: orders.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list orders")
		return
	}
	if os == nil {
		os = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) getMine(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	o, err := h.Repo.GetForUser(r.Context(), chi.URLParam(r, "id"), u.ID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load order")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, st orders.Status, ownerID string) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(orderStatusEntry{Status: st, UserID: ownerID})
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err()
}

// getStatus is the hot path for order tracking: the Redis cache answers
// most polls, the database fills misses. Either way the order must belong
// to the caller; anyone else gets 404, not 403, same as getMine. Admins
// can read any order's status.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	if h.Redis != nil {
		cached, err := h.Redis.Get(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Result()
		if err == nil {
			var entry orderStatusEntry
			if json.Unmarshal([]byte(cached), &entry) == nil && entry.Status != "" {
				if entry.UserID != u.ID && u.Role != users.RoleAdmin {
					writeError(w, http.StatusNotFound, "order not found")
					return
				}
				writeJSON(w, http.StatusOK, map[string]orders.Status{"status": entry.Status})
				return
			}
		}
	}

	st, ownerID, err := h.Repo.GetStatus(r.Context(), orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load order status")
		return
	}
	if ownerID != u.ID && u.Role != users.RoleAdmin {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	h.cacheStatus(r.Context(), orderID, st, ownerID)
	writeJSON(w, http.StatusOK, map[string]orders.Status{"status": st})
}

func (h *OrdersHandler) uploadProof(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploads.PaymentProofs.MaxSize + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("proof")
	if err != nil {
		writeError(w, http.StatusBadRequest, "payment proof file required")
		return
	}
	defer file.Close()

	path, err := h.Uploads.Save(uploads.PaymentProofs, header.Filename, file, header.Size)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}

	u := UserFrom(r.Context())
	err = h.Repo.AttachProof(r.Context(), chi.URLParam(r, "id"), u.ID, path)
	if errors.Is(err, orders.ErrNotFound) {
		_ = h.Uploads.Remove(path)
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if errors.Is(err, orders.ErrProofNotAllowed) {
		_ = h.Uploads.Remove(path)
		writeError(w, http.StatusBadRequest, "payment proof only allowed on placed orders")
		return
	}
	if err != nil {
		_ = h.Uploads.Remove(path)
		writeError(w, http.StatusInternalServerError, "could not save payment proof")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "payment proof uploaded", "path": path})
}

func (h *OrdersHandler) serveProof(w http.ResponseWriter, r *http.Request) {
	f, err := h.Uploads.Open(uploads.PaymentProofs, chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not serve file")
		return
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}
