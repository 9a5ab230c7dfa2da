// Command inkauthd serves the inkauth HTTP API.
//
// Configuration comes from INKAUTH_* environment variables, optionally read
// from a .env file. Without INKAUTH_REDIS_ADDR the server runs against an
// embedded miniredis, and without INKAUTH_DATABASE_URL identities live in
// memory, which is enough for local development:
//
//	INKAUTH_ACCESS_SECRET=... INKAUTH_REFRESH_SECRET=... go run ./cmd/inkauthd
//
//	curl -i -c jar.txt -X POST localhost:8080/auth/register \
//	  -H 'Content-Type: application/json' \
//	  -d '{"email":"ada@example.com","password":"Secur3!pass","role":"reader","fullName":"Ada"}'
//
//	curl -i -b jar.txt localhost:8080/auth/me
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/inkauth"
	"github.com/MrEthical07/inkauth/httpapi"
	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/identity/memory"
	"github.com/MrEthical07/inkauth/identity/postgres"
	"github.com/MrEthical07/inkauth/ledger"
	"github.com/MrEthical07/inkauth/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

type serverEnv struct {
	HTTPAddr        string        `env:"INKAUTH_HTTP_ADDR" envDefault:":8080"`
	RedisAddr       string        `env:"INKAUTH_REDIS_ADDR"`
	RedisPassword   string        `env:"INKAUTH_REDIS_PASSWORD"`
	DatabaseURL     string        `env:"INKAUTH_DATABASE_URL"`
	Production      bool          `env:"INKAUTH_PRODUCTION" envDefault:"false"`
	ProxyHeader     string        `env:"INKAUTH_PROXY_HEADER"`
	LogLevel        string        `env:"INKAUTH_LOG_LEVEL" envDefault:"info"`
	ConnectAttempts uint64        `env:"INKAUTH_CONNECT_ATTEMPTS" envDefault:"5"`
	ShutdownTimeout time.Duration `env:"INKAUTH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AdminEmail      string        `env:"INKAUTH_ADMIN_EMAIL"`
	AdminPassword   string        `env:"INKAUTH_ADMIN_PASSWORD"`
}

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "inkauthd").Logger()

	var srv serverEnv
	if err := env.Parse(&srv); err != nil {
		log.Fatal().Err(err).Msg("parse server env")
	}
	if lvl, err := zerolog.ParseLevel(srv.LogLevel); err == nil {
		log = log.Level(lvl)
	}
	if !srv.Production {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	cfg, err := inkauth.LoadConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load auth config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, srv, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("inkauthd stopped")
	}
}

func run(ctx context.Context, srv serverEnv, cfg inkauth.Config, log zerolog.Logger) error {
	rdb, closeRedis, err := connectRedis(ctx, srv, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openIdentityStore(ctx, srv, log)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier := logNotifier{log: log.With().Str("component", "notifier").Logger(), revealTokens: !srv.Production}
	engine, err := inkauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithAuditSink(inkauth.NewZerologSink(log.With().Str("component", "audit").Logger())).
		WithResetNotifier(notifier).
		WithVerificationNotifier(notifier).
		WithLogger(log.With().Str("component", "engine").Logger()).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	for _, w := range report.Warnings {
		log.Warn().Str("check", "security").Msg(w)
	}
	log.Info().
		Bool("refresh_rotation", report.RefreshRotationEnabled).
		Int("max_sessions", report.MaxConcurrentSessions).
		Str("password_algorithm", report.Password.Algorithm).
		Dur("access_ttl", report.AccessTTL).
		Msg("security posture")

	if err := bootstrapAdmin(ctx, engine, srv, log); err != nil {
		return err
	}

	sweeper := ledger.NewSweeper(engine.Ledger(), cfg.Ledger.SweepInterval, log.With().Str("component", "sweeper").Logger())
	go sweeper.Run(ctx)

	api := httpapi.New(engine, httpapi.Options{
		Production:  srv.Production,
		ProxyHeader: srv.ProxyHeader,
		Logger:      log.With().Str("component", "http").Logger(),
	})

	mux := http.NewServeMux()
	mux.Handle("/auth/", api)
	mux.Handle("GET /metrics", prometheus.New(engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Ping(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:              srv.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.HTTPAddr).Bool("production", srv.Production).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// connectRedis dials the configured Redis, retrying with backoff. With no
// address it starts an embedded miniredis.
func connectRedis(ctx context.Context, srv serverEnv, log zerolog.Logger) (redis.UniversalClient, func(), error) {
	if srv.RedisAddr == "" {
		if srv.Production {
			return nil, nil, errors.New("INKAUTH_REDIS_ADDR is required in production")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		log.Warn().Str("addr", mr.Addr()).Msg("using embedded miniredis; state is lost on exit")
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return rdb, func() {
			_ = rdb.Close()
			mr.Close()
		}, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{srv.RedisAddr},
		Password: srv.RedisPassword,
	})
	err := withRetry(ctx, srv.ConnectAttempts, func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", srv.RedisAddr).Msg("redis not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

// openIdentityStore opens Postgres and applies migrations, or falls back to
// the in-memory store when no database is configured.
func openIdentityStore(ctx context.Context, srv serverEnv, log zerolog.Logger) (identity.Store, func(), error) {
	if srv.DatabaseURL == "" {
		if srv.Production {
			return nil, nil, errors.New("INKAUTH_DATABASE_URL is required in production")
		}
		log.Warn().Msg("using in-memory identity store; identities are lost on exit")
		return memory.New(), func() {}, nil
	}

	var store *postgres.Store
	var closeDB func()
	err := withRetry(ctx, srv.ConnectAttempts, func(ctx context.Context) error {
		db, s, err := postgres.Open(ctx, srv.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("database not ready")
			return retry.RetryableError(err)
		}
		store = s
		closeDB = func() { _ = db.Close() }
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return store, closeDB, nil
}

func withRetry(ctx context.Context, attempts uint64, fn retry.RetryFunc) error {
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, retry.WithCappedDuration(10*time.Second, backoff), fn)
}

// bootstrapAdmin provisions the configured admin once. An existing account
// with that email is left alone.
func bootstrapAdmin(ctx context.Context, engine *inkauth.Engine, srv serverEnv, log zerolog.Logger) error {
	if srv.AdminEmail == "" || srv.AdminPassword == "" {
		return nil
	}
	ident, err := engine.Provision(ctx, inkauth.RegisterRequest{
		Email:    srv.AdminEmail,
		Password: srv.AdminPassword,
		Role:     string(identity.RoleAdmin),
		FullName: "Administrator",
	})
	switch {
	case errors.Is(err, inkauth.ErrConflict):
		log.Debug().Str("email", srv.AdminEmail).Msg("admin already provisioned")
		return nil
	case err != nil:
		return err
	}
	log.Info().Str("identity_id", ident.ID).Msg("admin provisioned")
	return nil
}
