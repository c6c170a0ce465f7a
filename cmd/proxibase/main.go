package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"proxibase/internal/admin"
	"proxibase/internal/config"
	"proxibase/internal/cookiejar"
	"proxibase/internal/proxyengine"
	"proxibase/internal/ratelimit"
	"proxibase/internal/router"
	"proxibase/internal/session"
	"proxibase/internal/siteconfig"
)

func main() {
	settingsPath := "./config/settings.yml"
	if v := os.Getenv("SETTINGS_PATH"); v != "" {
		settingsPath = v
	}

	cfg, err := config.LoadSettings(settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %s", err)
	}

	store, err := siteconfig.LoadYAMLStore(cfg.SitesDir)
	if err != nil {
		log.Fatalf("Failed to load site configs: %s", err)
	}
	resolver := siteconfig.New(store)

	var limiter *ratelimit.Limiter
	if cfg.EnableRateLimiting {
		limiter = ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)
		stop := limiter.RunEviction(5*time.Minute, 30*time.Minute)
		defer stop()
	}

	if cfg.SecretKey == "" {
		log.Fatal("SECRET_KEY must be set")
	}
	codec := session.New(cfg.SecretKey)
	jar := cookiejar.NewMemStore()

	var dialLimiter *rate.Limiter
	if cfg.Server.OutboundFetchesPerSec > 0 {
		burst := cfg.Server.OutboundFetchBurst
		if burst < 1 {
			burst = 1
		}
		dialLimiter = rate.NewLimiter(rate.Limit(cfg.Server.OutboundFetchesPerSec), burst)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	engine := proxyengine.New(resolver, limiter, codec, jar, dialLimiter, proxyengine.Config{
		MaxResponseBytes:    int64(cfg.MaxResponseSizeMB) * 1024 * 1024,
		RequestTimeout:      cfg.RequestTimeout,
		EnableRateLimiting:  cfg.EnableRateLimiting,
		TrustProxyHeaders:   cfg.RateLimitTrustProxyHeaders,
		SessionCookieSecure: cfg.SessionCookieSecure,
	}, logger)

	adminHandler := admin.New()
	root := router.New(cfg.AdminHost, adminHandler, engine)

	server := &http.Server{
		Addr:           cfg.Server.Listen,
		ReadTimeout:    cfg.Server.Timeouts.Read,
		WriteTimeout:   cfg.Server.Timeouts.Write,
		IdleTimeout:    cfg.Server.Timeouts.Idle,
		MaxHeaderBytes: cfg.Server.Limits.MaxHeaderBytes,
		Handler:        root,
	}

	log.Printf("Listening on %s\n", cfg.Server.Listen)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
