package broker

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/dshauth/internal/store"
)

type contextKey int

const (
	deviceKey contextKey = iota
	requestInfoKey
)

// requestInfo is filled in by inner middleware so Logging can report who
// made the request.
type requestInfo struct {
	caller string
}

func deviceFrom(ctx context.Context) *store.Device {
	d, _ := ctx.Value(deviceKey).(*store.Device)
	return d
}

func setCaller(ctx context.Context, caller string) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.caller = caller
	}
}

// DeviceAuth resolves the X-API-Key (or bearer) key to an active device.
func (a *App) DeviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
			return
		}

		device, err := store.Authenticate(a.DB, apiKey)
		if err != nil {
			a.Log.Error(err, "device lookup failed")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Device lookup failed")
			return
		}
		if device == nil || !device.Active {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
			return
		}

		setCaller(r.Context(), device.ClientID)
		ctx := context.WithValue(r.Context(), deviceKey, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth checks the X-Admin-Key header.
func (a *App) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.AdminAPIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Admin key required")
			return
		}
		setCaller(r.Context(), "admin")
		next.ServeHTTP(w, r)
	})
}

// RateLimiter implements per-device rate limiting
type RateLimiter struct {
	limiters map[int64]*rate.Limiter
	mu       sync.RWMutex
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[int64]*rate.Limiter)}
}

func (rl *RateLimiter) getLimiter(deviceID int64, limitPerMinute int) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[deviceID]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists = rl.limiters[deviceID]; !exists {
		limiter = rate.NewLimiter(rate.Limit(limitPerMinute)/60, limitPerMinute)
		rl.limiters[deviceID] = limiter
	}
	return limiter
}

// RateLimit enforces the per-minute limit of the authenticated device.
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device := deviceFrom(r.Context())
		if device == nil {
			next.ServeHTTP(w, r)
			return
		}
		limit := device.RateLimitPerMinute
		if limit <= 0 {
			limit = a.DefaultRateLimit
		}
		if !a.rateLimiter.getLimiter(device.ID, limit).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{caller: "unknown"}
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		a.Log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"caller", info.caller,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// CORS answers preflight requests and allows the configured origins. With
// no origins configured cross origin requests are not allowed.
func (a *App) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && a.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Admin-Key")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) originAllowed(origin string) bool {
	for _, o := range a.AllowedOrigins {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
