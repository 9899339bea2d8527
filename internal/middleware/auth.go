// internal/middleware/auth.go
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
)

type contextKey string

const (
	UsernameContextKey        contextKey = "username"
	IsAuthenticatedContextKey contextKey = "isAuthenticated"
	RequestIDContextKey       contextKey = "requestID"
)

// Ключи в сессии.
const (
	SessionAuthenticatedKey = "authenticated"
	SessionUsernameKey      = "username"
	SessionRedirectKey      = "redirectAfterLogin"
	SessionFlashSuccessKey  = "flash_success"
	SessionFlashErrorKey    = "flash_error"
)

// RequireAuthentication пропускает только сессии с выполненным входом.
// API получает 401 в JSON, страницы - редирект на /login.
func RequireAuthentication(sessionManager *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessionManager.GetBool(r.Context(), SessionAuthenticatedKey) {
				slog.Warn("Доступ запрещен: вход не выполнен", "path", r.URL.Path, "request_id", RequestID(r.Context()))
				if strings.HasPrefix(r.URL.Path, "/api/") {
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusUnauthorized)
					json.NewEncoder(w).Encode(map[string]string{"error": "Требуется авторизация"})
					return
				}
				if r.Method == http.MethodGet {
					sessionManager.Put(r.Context(), SessionRedirectKey, r.URL.RequestURI())
					if r.URL.Path != "/" {
						sessionManager.Put(r.Context(), SessionFlashErrorKey, "Войдите, чтобы продолжить")
					}
				}
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), IsAuthenticatedContextKey, true)
			ctx = context.WithValue(ctx, UsernameContextKey, sessionManager.GetString(r.Context(), SessionUsernameKey))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Username(ctx context.Context) string {
	name, _ := ctx.Value(UsernameContextKey).(string)
	return name
}
