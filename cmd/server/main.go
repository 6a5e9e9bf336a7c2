package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmriding/talos/internal/adminapi"
	"github.com/dmriding/talos/internal/auth"
	"github.com/dmriding/talos/internal/clientapi"
	"github.com/dmriding/talos/internal/config"
	"github.com/dmriding/talos/internal/db"
	"github.com/dmriding/talos/internal/engine"
	"github.com/dmriding/talos/internal/eventstream"
	"github.com/dmriding/talos/internal/jobs"
	"github.com/dmriding/talos/internal/licensekey"
	"github.com/dmriding/talos/internal/middleware"
	"github.com/dmriding/talos/internal/model"
	"github.com/dmriding/talos/internal/ratelimit"
	"github.com/dmriding/talos/internal/repository"
	"github.com/dmriding/talos/internal/tiers"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		slog.Error("TALOS_JWT_SECRET must be set when auth is enabled")
		os.Exit(1)
	}

	conn, dialect, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	repo := repository.New(conn, dialect)

	tierCfgs := make(map[string]tiers.Config, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		tierCfgs[name] = tiers.Config{Features: t.Features, BandwidthGB: t.BandwidthGB}
	}
	tierRegistry := tiers.NewRegistry(tierCfgs)

	keyCfg := licensekey.Config{
		Prefix: cfg.License.Prefix, Segments: cfg.License.Segments, SegmentLength: cfg.License.SegmentLength,
	}

	hub := eventstream.NewHub()
	go hub.Run()

	eng := engine.New(repo, tierRegistry, keyCfg, slog.Default(), hub)

	if err := ensureBootstrapToken(context.Background(), repo, cfg.BootstrapToken); err != nil {
		slog.Error("bootstrap token setup", "err", err)
		os.Exit(1)
	}

	bearer := auth.NewBearerValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.AccessTokenTTL())
	authenticator := &auth.Authenticator{
		Bearer: bearer,
		LookupToken: func(ctx context.Context, hash string) ([]string, bool, error) {
			tok, err := repo.GetApiTokenByHash(ctx, hash)
			if err != nil {
				if err == repository.ErrNotFound {
					return nil, false, nil
				}
				return nil, false, err
			}
			if !tok.IsValid(time.Now().UTC()) {
				return nil, false, nil
			}
			return tok.Scopes, true, nil
		},
		RecordUsage: func(ctx context.Context, hash string, at time.Time) {
			repo.UpdateTokenLastUsed(ctx, hash, at)
		},
	}

	bindLimiter, err := ratelimit.New(cfg.RateLimit.BindRPM, time.Minute, 10_000)
	if err != nil {
		slog.Error("build bind rate limiter", "err", err)
		os.Exit(1)
	}
	validateLimiter, err := ratelimit.New(cfg.RateLimit.ValidateRPM, time.Minute, 10_000)
	if err != nil {
		slog.Error("build validate rate limiter", "err", err)
		os.Exit(1)
	}
	heartbeatLimiter, err := ratelimit.New(cfg.RateLimit.HeartbeatRPM, time.Minute, 10_000)
	if err != nil {
		slog.Error("build heartbeat rate limiter", "err", err)
		os.Exit(1)
	}

	scheduler := jobs.New(eng, cfg.Jobs, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	clientHandler := clientapi.New(eng)
	adminHandler := adminapi.New(eng)
	tokenHandler := adminapi.NewTokenHandler(repo)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Health probe — no auth; polled by orchestrators and load balancers.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"ok": true}) //nolint:errcheck
	})

	r.Route("/api/v1/client", func(r chi.Router) {
		r.With(bindLimiter.Middleware).Post("/bind", clientHandler.Bind)
		r.With(bindLimiter.Middleware).Post("/validate-or-bind", clientHandler.ValidateOrBind)
		r.With(validateLimiter.Middleware).Post("/validate", clientHandler.Validate)
		r.With(validateLimiter.Middleware).Post("/validate-feature", clientHandler.ValidateFeature)
		r.With(heartbeatLimiter.Middleware).Post("/heartbeat", clientHandler.Heartbeat)
		r.With(heartbeatLimiter.Middleware).Post("/release", clientHandler.Release)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(authenticator, cfg.Auth.Enabled))

		r.Route("/licenses", func(r chi.Router) {
			r.With(middleware.RequireScope("licenses:write")).Post("/", adminHandler.Create)
			r.With(middleware.RequireScope("licenses:write")).Post("/batch", adminHandler.CreateBatch)
			r.With(middleware.RequireScope("licenses:read")).Get("/", adminHandler.List)
			r.With(middleware.RequireScope("licenses:read")).Get("/{id}", adminHandler.Get)
			r.With(middleware.RequireScope("licenses:write")).Patch("/{id}", adminHandler.Update)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/revoke", adminHandler.Revoke)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/reinstate", adminHandler.Reinstate)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/suspend", adminHandler.Suspend)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/extend", adminHandler.Extend)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/release", adminHandler.Release)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/blacklist", adminHandler.Blacklist)
			r.With(middleware.RequireScope("licenses:write")).Post("/{id}/usage", adminHandler.Usage)
		})

		r.Route("/tokens", func(r chi.Router) {
			r.With(middleware.RequireScope("tokens:write")).Post("/", tokenHandler.Create)
			r.With(middleware.RequireScope("tokens:read")).Get("/", tokenHandler.List)
			r.With(middleware.RequireScope("tokens:read")).Get("/{id}", tokenHandler.Get)
			r.With(middleware.RequireScope("tokens:write")).Post("/{id}/revoke", tokenHandler.Revoke)
		})

		r.With(middleware.RequireScope("licenses:read")).Get("/events", hub.ServeWS)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// ensureBootstrapToken seeds a full-scope admin token from bootstrapToken on
// first startup, so a fresh deployment has at least one usable credential
// without a chicken-and-egg token-creation problem.
func ensureBootstrapToken(ctx context.Context, repo repository.Repository, bootstrapToken string) error {
	if bootstrapToken == "" {
		return nil
	}
	has, err := repo.HasAnyApiTokens(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return repo.CreateApiToken(ctx, &model.ApiToken{
		ID:        uuid.NewString(),
		Name:      "bootstrap",
		TokenHash: auth.HashToken(bootstrapToken),
		Scopes:    []string{"*"},
		CreatedAt: time.Now().UTC(),
	})
}
