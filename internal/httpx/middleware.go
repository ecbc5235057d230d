package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"school-store/internal/auth"
	"school-store/internal/users"
)

type ctxKey int

const userKey ctxKey = 0

// UserFrom returns the authenticated user stored by Authenticator, or nil.
func UserFrom(ctx context.Context) *users.User {
	u, _ := ctx.Value(userKey).(*users.User)
	return u
}

// UserGetter is the slice of users.Repo the middleware needs.
type UserGetter interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

// Authenticator verifies the bearer token and loads the user row, so a
// deleted account is rejected even with a valid token.
func Authenticator(tokens *auth.Tokens, repo UserGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "access token required")
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, http.StatusForbidden, "invalid token")
				return
			}
			u, err := repo.Get(r.Context(), claims.UserID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "user not found")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		if u == nil || u.Role != users.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		if u == nil || u.Role != users.RoleCustomer {
			writeError(w, http.StatusForbidden, "customer access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Store hours: 07:30-12:30 and 13:30-17:30, local time.
var storeWindows = [][2]int{
	{7*60 + 30, 12*60 + 30},
	{13*60 + 30, 17*60 + 30},
}

// StoreHours rejects requests outside opening hours. The clock is injected
// so tests can pin the time; pass time.Now in production.
func StoreHours(enabled bool, clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled && !withinStoreHours(clock()) {
				writeError(w, http.StatusForbidden,
					"store is closed; opening hours are 7:30-12:30 and 13:30-17:30")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withinStoreHours(t time.Time) bool {
	minutes := t.Hour()*60 + t.Minute()
	for _, win := range storeWindows {
		if minutes >= win[0] && minutes <= win[1] {
			return true
		}
	}
	return false
}
