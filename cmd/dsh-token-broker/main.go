package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/example/dshauth/internal/broker"
	"github.com/example/dshauth/internal/config"
	"github.com/example/dshauth/internal/logging"
	"github.com/example/dshauth/internal/migrate"
	"github.com/example/dshauth/internal/store"
	"github.com/example/dshauth/token"
)

func main() {
	c, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, zl, err := logging.New(c.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zl.Sync()

	if err := run(c, log); err != nil {
		log.Error(err, "broker stopped")
		_ = zl.Sync()
		os.Exit(1)
	}
}

func openRegistry(c *config.Config, log logr.Logger) (store.DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(c.SQLiteFile), 0o755); err != nil {
			return nil, err
		}
		log.Info("using sqlite registry", "file", c.SQLiteFile)
		return store.NewSQLiteDB(c.SQLiteFile)
	case "postgres":
		log.Info("applying database migrations", "dir", c.MigrationsDir)
		if err := migrate.Apply(log, c.MigrationsDir, c.PostgresDSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return store.NewPostgresDB(c.PostgresDSN)
	case "memory":
		log.Info("using in-memory registry, devices are lost on restart")
		return store.NewMemoryDB(), nil
	}
	return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
}

func run(c *config.Config, log logr.Logger) error {
	db, err := openRegistry(c, log)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fetcher := token.NewAPIClientTokenFetcher(c.APIKey, c.Platform,
		token.WithAuthURL(c.RestTokenURL()),
		token.WithLogger(log.WithName("token")),
		token.WithMetrics(token.NewMetrics(reg)),
	)
	log.Info("token fetcher ready", "fetcher", fetcher.String(), "tenant", c.Tenant)

	app := broker.New(broker.Options{
		DB:               db,
		Tokens:           fetcher,
		Tenant:           c.Tenant,
		AdminAPIKey:      c.AdminAPIKey,
		AllowedOrigins:   c.CORSAllowedOrigins,
		DefaultRateLimit: c.DefaultRateLimit,
		RetryMaxElapsed:  c.UpstreamRetryMaxElapsed,
		Log:              log.WithName("broker"),
		Registry:         reg,
	})

	srv := &http.Server{
		Handler:      app.Router(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: c.UpstreamRetryMaxElapsed + 45*time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting broker", "port", c.Port, "platform", c.Platform.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("broker exited properly")
	return nil
}
