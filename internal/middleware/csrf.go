// internal/middleware/csrf.go
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/justinas/nosurf"
)

// NoSurfMiddleware обеспечивает CSRF-защиту для POST-форм и POST-запросов API.
// isProduction: true для production окружения (Secure cookie, сайт только по HTTPS).
// trustProxy: схема берется из X-Forwarded-Proto доверенного прокси.
func NoSurfMiddleware(next http.Handler, isProduction, trustProxy bool) http.Handler {
	csrfHandler := nosurf.New(next)

	// nosurf сверяет Origin со схемой запроса; по умолчанию он считает любой запрос HTTPS.
	csrfHandler.SetIsTLSFunc(func(r *http.Request) bool {
		return IsTLS(r, isProduction, trustProxy)
	})

	csrfHandler.SetBaseCookie(http.Cookie{
		HttpOnly: true,
		Path:     "/",
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})

	csrfHandler.SetFailureHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Warn("Неудачная проверка CSRF токена", "path", r.URL.Path, "method", r.Method, "reason", nosurf.Reason(r), "request_id", RequestID(r.Context()))
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "Неверный или отсутствующий CSRF токен"})
			return
		}
		http.Error(w, "Ошибка безопасности: Неверный или отсутствующий CSRF токен.", http.StatusForbidden)
	}))

	return csrfHandler
}

// IsTLS: прямое TLS-соединение, production за HTTPS-терминатором
// или X-Forwarded-Proto=https от доверенного прокси.
func IsTLS(r *http.Request, isProduction, trustProxy bool) bool {
	if r.TLS != nil || isProduction {
		return true
	}
	return trustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
