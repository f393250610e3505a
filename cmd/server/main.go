// Package main is the entry point for the ytthumbs orchestrator.
//
// ytthumbs watches a single home-automation media-player entity and
// keeps a remote video platform's per-video rating in sync with
// whatever the user is currently listening to, resolving a playing
// track to a video id via a cached search when one isn't already
// known. The server initializes components in the following order:
//
//  1. Configuration: Koanf v2, layering built-in defaults, an optional
//     YAML file, and environment variables.
//  2. Logging: zerolog, via internal/logging.
//  3. Database: the embedded DuckDB store (internal/database).
//  4. Remote collaborators: the OAuth2 token source, the remote video
//     platform client, the quota reset calendar, the home-automation
//     client, and the search pipeline.
//  5. Core services: the Worker (single queue processor) and the
//     Playback Poller, both suture.Service.
//  6. Admin surface: the thin health/rating-intake HTTP server and the
//     Prometheus metrics server, both wrapped as suture.Service.
//  7. Supervisor tree: core services and API services are supervised
//     in separate groups so an HTTP panic never takes down the worker.
//  8. Signal handling: SIGINT/SIGTERM trigger a graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/ytthumbs/ytthumbs/internal/api"
	"github.com/ytthumbs/ytthumbs/internal/cache"
	"github.com/ytthumbs/ytthumbs/internal/config"
	"github.com/ytthumbs/ytthumbs/internal/cooldown"
	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/haclient"
	"github.com/ytthumbs/ytthumbs/internal/intake"
	"github.com/ytthumbs/ytthumbs/internal/logging"
	"github.com/ytthumbs/ytthumbs/internal/poller"
	"github.com/ytthumbs/ytthumbs/internal/quota"
	"github.com/ytthumbs/ytthumbs/internal/rating"
	"github.com/ytthumbs/ytthumbs/internal/search"
	"github.com/ytthumbs/ytthumbs/internal/supervisor"
	"github.com/ytthumbs/ytthumbs/internal/supervisor/services"
	"github.com/ytthumbs/ytthumbs/internal/worker"
	"github.com/ytthumbs/ytthumbs/internal/ytapi"
)

// googleOAuthEndpoint is the fixed OAuth2 endpoint for the remote video
// platform's rating scope; there's exactly one provider, so this is a
// constant rather than a configuration field.
var googleOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// inMemoryCooldownCapacity bounds the default in-memory cooldown cache;
// it holds one entry per recently-seen content hash, which is tiny
// relative to the channel's total catalog.
const inMemoryCooldownCapacity = 4096

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("ytthumbs exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("ytthumbs stopped gracefully")
}

func run(cfg *config.Config) error {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oauthClientSecret := cfg.RemotePlatform.OAuthClientSecret
	if cfg.Security.CredentialSecret != "" && oauthClientSecret != "" {
		enc, err := config.NewCredentialEncryptor(cfg.Security.CredentialSecret)
		if err != nil {
			return fmt.Errorf("building credential encryptor: %w", err)
		}
		if plain, decErr := enc.Decrypt(oauthClientSecret); decErr == nil {
			oauthClientSecret = plain
		}
		// A decrypt failure is tolerated: the secret may simply be stored
		// in plaintext (encryption is opt-in), so fall through and use it
		// as-is rather than failing startup over a config ambiguity.
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.RemotePlatform.OAuthClientID,
		ClientSecret: oauthClientSecret,
		RedirectURL:  cfg.RemotePlatform.OAuthRedirectURI,
		Endpoint:     googleOAuthEndpoint,
		Scopes:       []string{rating.Scope},
	}
	tokenSource, err := rating.NewFileTokenSource(ctx, oauthCfg, cfg.RemotePlatform.TokenPath)
	if err != nil {
		return fmt.Errorf("loading rating token source: %w", err)
	}

	quotaCalendar := quota.New(db)
	ytClient := ytapi.New(tokenSource, db, quotaCalendar)
	haClient := haclient.New(cfg.HomeAutomation.BaseURL, cfg.HomeAutomation.BearerToken, cfg.HomeAutomation.Timeout)
	searchPipeline := search.New(ytClient, db, cfg.Search.SearchCacheTTL)

	wkr := worker.New(db, quotaCalendar, ytClient, searchPipeline, worker.Config{
		PIDFilePath:        cfg.Worker.PIDFilePath,
		ItemFloor:          cfg.Worker.ItemFloor,
		IdlePoll:           cfg.Worker.IdlePoll,
		QuotaResetSlack:    cfg.Worker.QuotaResetSlack,
		DurationToleranceS: cfg.Search.DurationToleranceS,
	})

	cd, closeCooldown, err := buildCooldown(cfg)
	if err != nil {
		return fmt.Errorf("building playback cooldown: %w", err)
	}
	if closeCooldown != nil {
		defer closeCooldown() //nolint:errcheck
	}

	pllr := poller.New(haClient, db, cd, poller.Config{
		EntityID:           cfg.HomeAutomation.EntityID,
		RequiredAppName:    cfg.HomeAutomation.AppName,
		Interval:           cfg.Playback.Interval,
		NotFoundTTL:        cfg.Search.NotFoundTTL,
		DurationToleranceS: cfg.Search.DurationToleranceS,
		MaxBackoff:         cfg.Playback.MaxBackoff,
		MaxConsecutiveFail: cfg.Playback.MaxConsecutiveFail,
	})

	intk := intake.New(haClient, db, intake.Config{
		EntityID:           cfg.HomeAutomation.EntityID,
		RequiredAppName:    cfg.HomeAutomation.AppName,
		DurationToleranceS: cfg.Search.DurationToleranceS,
	})

	apiHandler := api.NewHandler(db, quotaCalendar, pllr, intk, api.Config{
		PIDFilePath:      cfg.Worker.PIDFilePath,
		PollerStaleAfter: 3 * cfg.Playback.Interval,
	})
	router := api.NewRouter(apiHandler)

	adminServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:      promhttp.Handler(),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}

	slogLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	tree := supervisor.New(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddCoreService(wkr)
	tree.AddCoreService(pllr)
	tree.AddAPIService(services.NewHTTPServerService(adminServer, 10*time.Second))
	tree.AddAPIService(services.NewHTTPServerService(metricsServer, 5*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("supervisor tree: %w", err)
		}
	case <-ctx.Done():
		<-errCh
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("some services did not stop within the shutdown timeout")
	}
	return nil
}

// buildCooldown constructs the playback poller's Cooldown backend per
// playback.persist_cooldown: a badger-backed store when the operator
// wants cooldown state to survive a restart, or a plain in-memory LRU
// otherwise. The returned close func is nil for the in-memory case.
func buildCooldown(cfg *config.Config) (poller.Cooldown, func() error, error) {
	if !cfg.Playback.PersistCooldown {
		return poller.NewInMemoryCooldown(cache.NewLRUCache(inMemoryCooldownCapacity, cfg.Playback.PlayCooldown)), nil, nil
	}
	store, err := cooldown.Open(cfg.Playback.CooldownStorePath, cfg.Playback.PlayCooldown)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
