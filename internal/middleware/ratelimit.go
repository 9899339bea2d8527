// internal/middleware/ratelimit.go
package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const clientIdleTTL = 15 * time.Minute

// ClientLimiter хранит информацию о лимитере для каждого IP
type ClientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter ограничивает количество запросов с одного IP.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*ClientLimiter
	rps        rate.Limit
	burst      int
	trustProxy bool
}

// NewRateLimiter: rps - разрешенных запросов в секунду, burst - размер "пачки".
// trustProxy: ключ лимитера берется из заголовков прокси, а не из RemoteAddr.
func NewRateLimiter(rps float64, burst int, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		clients:    make(map[string]*ClientLimiter),
		rps:        rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
	}
}

// StartCleanup периодически удаляет лимитеры неактивных IP до отмены ctx.
func (l *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.cleanup(time.Now())
			}
		}
	}()
}

func (l *RateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, client := range l.clients {
		if now.Sub(client.lastSeen) > clientIdleTTL {
			delete(l.clients, ip)
			slog.Debug("Удален лимитер для неактивного IP", "ip", ip)
		}
	}
}

func (l *RateLimiter) Allow(clientIP string) bool {
	l.mu.Lock()
	clientData, found := l.clients[clientIP]
	if !found {
		clientData = &ClientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[clientIP] = clientData
		slog.Debug("Создан новый лимитер", "ip", clientIP, "rps", float64(l.rps), "burst", l.burst)
	}
	clientData.lastSeen = time.Now()
	limiterInstance := clientData.limiter
	l.mu.Unlock()

	return limiterInstance.Allow()
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r, l.trustProxy)
		if !l.Allow(clientIP) {
			slog.Warn("Превышен лимит запросов (Rate Limit)", "ip", clientIP, "path", r.URL.Path)
			http.Error(w, "Слишком много запросов. Пожалуйста, попробуйте позже.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP возвращает адрес из RemoteAddr. Заголовки X-Forwarded-For и X-Real-IP
// учитываются только при trustProxy: иначе их может подставить сам клиент.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
