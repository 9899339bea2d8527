// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"statdash/internal/auth"
	"statdash/internal/config"
	"statdash/internal/db"
	"statdash/internal/handlers"
	"statdash/internal/metrics"
	"statdash/internal/middleware"
	"statdash/internal/stats"
)

var version = "dev"

func main() {
	configPathFlag := flag.String("config", "configs/config.yaml", "path to YAML config (optional, environment overrides it)")
	metricsAddrFlag := flag.String("metrics-addr", "", "address for the prometheus metrics listener (empty disables it, or set METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Критическая ошибка: не удалось загрузить конфигурацию: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddrFlag != "" {
		cfg.MetricsAddr = *metricsAddrFlag
	}

	config.InitLogger(cfg.AppEnv, cfg.Debug)
	slog.Info("Запуск сервера статистики...", "app_env", cfg.AppEnv, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Критическая ошибка", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	conn, err := db.InitDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать базу данных: %w", err)
	}
	defer conn.Close()

	operator, err := auth.NewOperator(cfg.Auth.Username, cfg.Auth.Password, cfg.Auth.PasswordHash)
	if err != nil {
		return err
	}

	sessionManager := scs.New()
	sessionManager.Store = memstore.New()
	sessionManager.Lifetime = time.Duration(cfg.Auth.SessionLifetimeHours) * time.Hour
	sessionManager.Cookie.Name = "statdash_session"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.Persist = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = cfg.IsProduction()
	sessionManager.Cookie.Path = "/"
	slog.Info("Менеджер сессий инициализирован", "store", "memstore", "lifetime", sessionManager.Lifetime, "secure_cookie", sessionManager.Cookie.Secure)

	store := db.NewStatsStore(conn, cfg.Database.Driver)

	appHandlers, err := handlers.NewAppHandlers(cfg, sessionManager)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать обработчики страниц: %w", err)
	}

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRateLimit.RPS, cfg.LoginRateLimit.Burst, cfg.TrustProxy)
	loginLimiter.StartCleanup(ctx, 10*time.Minute)

	server := &handlers.Server{
		App:  appHandlers,
		Auth: handlers.NewAuthHandlers(sessionManager, operator, appHandlers),
		Stats: handlers.NewStatsHandlers(
			store,
			stats.NewOrganizationFilter(store, cfg.CorpFilter.Path),
			stats.NewFormatter(stats.Russian),
			sessionManager,
			cfg.CorpFilter.DefaultEnabled,
		),
		Health:         handlers.HealthHandler(store),
		SessionManager: sessionManager,
		LoginLimiter:   loginLimiter,
		StaticPath:     cfg.StaticPath,
		IsProduction:   cfg.IsProduction(),
		TrustProxy:     cfg.TrustProxy,
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Сервер запущен и слушает", "address", fmt.Sprintf("http://%s", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("не удалось запустить HTTP-сервер на %s: %w", httpServer.Addr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP-сервера: %w", err)
	}
	slog.Info("Сервер остановлен")
	return nil
}

func startMetricsServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	metrics.BuildInfo.WithLabelValues(version).Set(1)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("Не удалось запустить сервер метрик", "address", addr, "error", err)
		return nil
	}
	slog.Info("Сервер метрик prometheus слушает", "address", listener.Addr().String())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ошибка сервера метрик", "error", err)
		}
	}()
	return metricsServer
}
