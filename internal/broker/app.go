// Package broker is the HTTP service that hands short-lived DSH tokens to
// registered devices while keeping the tenant API key to itself.
package broker

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/dshauth/internal/store"
	"github.com/example/dshauth/token"
)

// TokenSource is the part of token.APIClientTokenFetcher the broker uses.
type TokenSource interface {
	GetOrFetchRestToken(ctx context.Context, req token.RequestRestToken) (*token.RestToken, error)
	GetOrFetchDataAccessToken(ctx context.Context, req token.RequestDataAccessToken) (*token.DataAccessToken, error)
	ClearCache()
}

type App struct {
	DB               store.DB
	Tokens           TokenSource
	Tenant           string
	AdminAPIKey      string
	AllowedOrigins   []string
	DefaultRateLimit int
	Log              logr.Logger

	rateLimiter *RateLimiter
	newBackOff  func() backoff.BackOff
	issued      *prometheus.CounterVec
	gatherer    prometheus.Gatherer
}

// Options configures New. AllowedOrigins may call the broker from a
// browser and "*" allows any origin. RetryMaxElapsed bounds the retries of
// transient upstream failures, zero disables retrying. Registry receives the
// broker metrics and is served on /metrics.
type Options struct {
	DB               store.DB
	Tokens           TokenSource
	Tenant           string
	AdminAPIKey      string
	AllowedOrigins   []string
	DefaultRateLimit int
	RetryMaxElapsed  time.Duration
	Log              logr.Logger
	Registry         *prometheus.Registry
}

func New(o Options) *App {
	a := &App{
		DB:               o.DB,
		Tokens:           o.Tokens,
		Tenant:           o.Tenant,
		AdminAPIKey:      o.AdminAPIKey,
		AllowedOrigins:   o.AllowedOrigins,
		DefaultRateLimit: o.DefaultRateLimit,
		Log:              o.Log,
		rateLimiter:      NewRateLimiter(),
		newBackOff:       exponentialBackOff(o.RetryMaxElapsed),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsh",
			Subsystem: "broker",
			Name:      "tokens_issued_total",
			Help:      "Tokens handed out to devices by token kind",
		}, []string{"kind"}),
	}
	if o.RetryMaxElapsed <= 0 {
		a.newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	}
	if a.DefaultRateLimit <= 0 {
		a.DefaultRateLimit = 60
	}
	reg := o.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(a.issued)
	a.gatherer = reg
	return a
}

// Router wires all routes and middleware.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	tokens := r.PathPrefix("/api/v1/token").Subrouter()
	tokens.Use(a.DeviceAuth)
	tokens.Use(a.RateLimit)
	tokens.HandleFunc("/data-access", a.HandleDataAccessToken).Methods(http.MethodPost, http.MethodOptions)
	tokens.HandleFunc("/rest", a.HandleRestToken).Methods(http.MethodPost, http.MethodOptions)
	tokens.HandleFunc("/introspect", a.HandleTokenIntrospect).Methods(http.MethodPost, http.MethodOptions)

	admin := r.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(a.AdminAuth)
	admin.HandleFunc("/devices", a.HandleCreateDevice).Methods(http.MethodPost, http.MethodOptions)
	admin.HandleFunc("/devices", a.HandleListDevices).Methods(http.MethodGet, http.MethodOptions)
	admin.HandleFunc("/devices/{client_id}", a.HandleDeactivateDevice).Methods(http.MethodDelete, http.MethodOptions)
	admin.HandleFunc("/cache/clear", a.HandleClearCache).Methods(http.MethodPost, http.MethodOptions)
	return r
}

func (a *App) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if err := a.DB.Ping(); err != nil {
		a.Log.Error(err, "registry not ready")
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
