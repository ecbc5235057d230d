package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"school-store/internal/auth"
	"school-store/internal/users"
)

// UserStore is the slice of users.Repo the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, name, email, password, role string) (*users.User, error)
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
	ChangePassword(ctx context.Context, id, current, next string) error
}

type AuthHandler struct {
	Users  UserStore
	Tokens *auth.Tokens
}

func (h *AuthHandler) Register(r chi.Router, authed func(http.Handler) http.Handler) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(authed)
		r.Get("/auth/profile", h.profile)
		r.Put("/auth/password", h.changePassword)
	})
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResp struct {
	User  *users.User `json:"user"`
	Token string      `json:"token"`
}

func validName(s string) bool  { l := len(strings.TrimSpace(s)); return l >= 2 && l <= 100 }
func validEmail(s string) bool { _, err := mail.ParseAddress(s); return err == nil }

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case !validName(req.Name):
		writeError(w, http.StatusBadRequest, "name must be 2-100 characters")
		return
	case !validEmail(req.Email):
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	case len(req.Password) < 6:
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	// self-registration always yields a customer; admins are created by admins
	u, err := h.Users.Create(r.Context(), req.Name, req.Email, req.Password, users.RoleCustomer)
	if errors.Is(err, users.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}

	token, err := h.Tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, authResp{User: u, Token: token})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	u, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, users.ErrBadCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := h.Tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, authResp{User: u, Token: token})
}

func (h *AuthHandler) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserFrom(r.Context()))
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CurrentPassword == "" {
		writeError(w, http.StatusBadRequest, "current password required")
		return
	}
	if len(req.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "new password must be at least 6 characters")
		return
	}

	u := UserFrom(r.Context())
	err := h.Users.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, users.ErrBadCredentials) {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not change password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
