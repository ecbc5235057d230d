package httpx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	qrcode "github.com/skip2/go-qrcode"

	kafkax "school-store/internal/kafka"
	"school-store/internal/orders"
	"school-store/internal/redisx"
	"school-store/internal/reports"
	"school-store/internal/users"
)

// AdminOrderStore is the slice of orders.Repo the admin endpoints need.
type AdminOrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error)
}

// AdminUserStore is the slice of users.Repo the admin endpoints need.
type AdminUserStore interface {
	Create(ctx context.Context, name, email, password, role string) (*users.User, error)
	Get(ctx context.Context, id string) (*users.User, error)
	List(ctx context.Context, role string, limit, offset int) ([]users.User, error)
	Update(ctx context.Context, id, name, email, password, role string) (*users.User, error)
	Delete(ctx context.Context, id string) error
}

// Reporter is the slice of reports.Repo the admin endpoints need.
type Reporter interface {
	DailySales(ctx context.Context, date string) (*reports.DailySales, error)
	Profits(ctx context.Context, from, to string) (*reports.ProfitReport, error)
	LowStock(ctx context.Context, threshold int) ([]reports.LowStockProduct, error)
	DashboardStats(ctx context.Context, now time.Time) (*reports.Dashboard, error)
}

type AdminHandler struct {
	Orders        AdminOrderStore
	Users         AdminUserStore
	Reports       Reporter
	Producer      Publisher
	Redis         *redis.Client
	Service       string
	StorefrontURL string
}

func (h *AdminHandler) Register(r chi.Router, authed, admin func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authed, admin)
		r.Get("/admin/orders", h.listOrders)
		r.Get("/admin/orders/{id}", h.getOrder)
		r.Put("/admin/orders/{id}/status", h.updateStatus)

		r.Get("/admin/users", h.listUsers)
		r.Post("/admin/users", h.createUser)
		r.Get("/admin/users/{id}", h.getUser)
		r.Put("/admin/users/{id}", h.updateUser)
		r.Delete("/admin/users/{id}", h.deleteUser)

		r.Get("/admin/reports/daily-sales", h.dailySales)
		r.Get("/admin/reports/profits", h.profits)
		r.Get("/admin/reports/low-stock", h.lowStock)
		r.Get("/admin/dashboard", h.dashboard)
		r.Get("/admin/catalog-qr", h.catalogQR)
	})
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	os, err := h.Orders.List(r.Context(), orders.ListFilter{
		UserID: q.Get("user_id"),
		Status: orders.Status(q.Get("status")),
		From:   q.Get("from"),
		To:     q.Get("to"),
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

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
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

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !orders.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if errors.Is(err, orders.ErrInvalidTransition) {
		writeError(w, http.StatusBadRequest, "invalid status transition")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not update order status")
		return
	}

	if h.Redis != nil {
		if b, err := json.Marshal(orderStatusEntry{Status: o.Status, UserID: o.UserID}); err == nil {
			_ = h.Redis.Set(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, o.ID), b, redisx.TTLStatusCache).Err()
		}
	}
	h.publishStatusChanged(o, r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) publishStatusChanged(o *orders.Order, traceID string) {
	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderStatusChangedPayload{
			OrderID: o.ID,
			UserID:  o.UserID,
			Status:  o.Status,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

type userReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (r *userReq) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Role == "" {
		r.Role = users.RoleCustomer
	}
}

func (r *userReq) validate(requirePassword bool) string {
	switch {
	case !validName(r.Name):
		return "name must be 2-100 characters"
	case !validEmail(r.Email):
		return "invalid email"
	case requirePassword && len(r.Password) < 6:
		return "password must be at least 6 characters"
	case r.Password != "" && len(r.Password) < 6:
		return "password must be at least 6 characters"
	case !users.ValidRole(r.Role):
		return "invalid role"
	}
	return ""
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	us, err := h.Users.List(r.Context(), q.Get("role"), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list users")
		return
	}
	if us == nil {
		us = []users.User{}
	}
	writeJSON(w, http.StatusOK, us)
}

func (h *AdminHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.normalize()
	if msg := req.validate(true); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	u, err := h.Users.Create(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if errors.Is(err, users.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *AdminHandler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req userReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.normalize()
	if msg := req.validate(false); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	u, err := h.Users.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Email, req.Password, req.Role)
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if errors.Is(err, users.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not update user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if self := UserFrom(r.Context()); self != nil && self.ID == id {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	err := h.Users.Delete(r.Context(), id)
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *AdminHandler) dailySales(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rep, err := h.Reports.DailySales(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *AdminHandler) profits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, d := range []string{q.Get("from"), q.Get("to")} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
	}

	rep, err := h.Reports.Profits(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *AdminHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 10
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "threshold must be a non-negative integer")
			return
		}
		threshold = n
	}

	ps, err := h.Reports.LowStock(r.Context(), threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build report")
		return
	}
	if ps == nil {
		ps = []reports.LowStockProduct{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"products":  ps,
	})
}

func (h *AdminHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reports.DashboardStats(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// catalogQR renders the storefront URL as a QR code; the frontend shows it
// for customers to scan.
func (h *AdminHandler) catalogQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(h.StorefrontURL, qrcode.Medium, 300)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not generate QR code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":     h.StorefrontURL,
		"qr_code": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}
