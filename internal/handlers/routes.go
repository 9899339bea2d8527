// internal/handlers/routes.go
package handlers

import (
	"net/http"

	"github.com/alexedwards/scs/v2"

	"statdash/internal/middleware"
)

type Server struct {
	App            *AppHandlers
	Auth           *AuthHandlers
	Stats          *StatsHandlers
	Health         http.HandlerFunc
	SessionManager *scs.SessionManager
	LoginLimiter   *middleware.RateLimiter
	StaticPath     string
	IsProduction   bool
	TrustProxy     bool
}

// Routes собирает маршруты и цепочку middleware:
// заголовки -> request id/метрики -> сессия -> CSRF -> маршрутизатор.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuthentication(s.SessionManager)

	fs := http.FileServer(http.Dir(s.StaticPath))
	mux.Handle("GET /static/", http.StripPrefix("/static/", fs))
	mux.HandleFunc("GET /healthz", s.Health)

	// Auth Routes
	mux.HandleFunc("GET /login", s.Auth.LoginPageHandler)
	mux.Handle("POST /login", s.LoginLimiter.Middleware(http.HandlerFunc(s.Auth.LoginHandler)))
	mux.Handle("POST /logout", requireAuth(http.HandlerFunc(s.Auth.LogoutHandler)))

	// Dashboard
	mux.Handle("GET /{$}", requireAuth(http.HandlerFunc(s.App.DashboardPageHandler)))

	// Stats API
	mux.Handle("GET /api/organizations", requireAuth(http.HandlerFunc(s.Stats.OrganizationsHandler)))
	mux.Handle("GET /api/data", requireAuth(http.HandlerFunc(s.Stats.DataHandler)))
	mux.Handle("GET /api/export", requireAuth(http.HandlerFunc(s.Stats.ExportHandler)))
	mux.Handle("POST /api/toggle-corp-filter", requireAuth(http.HandlerFunc(s.Stats.ToggleCorpFilterHandler)))

	var handler http.Handler = middleware.NoSurfMiddleware(mux, s.IsProduction, s.TrustProxy)
	handler = s.SessionManager.LoadAndSave(handler)
	handler = middleware.RequestContext(mux)(handler)
	handler = middleware.SecureHeaders(s.IsProduction)(handler)
	return handler
}
