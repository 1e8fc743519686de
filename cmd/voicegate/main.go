package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dterzis/voicegate/internal/auth"
	"github.com/dterzis/voicegate/internal/config"
	"github.com/dterzis/voicegate/internal/conversation"
	"github.com/dterzis/voicegate/internal/httpapi"
	"github.com/dterzis/voicegate/internal/observability"
	"github.com/dterzis/voicegate/internal/rtc"
	"github.com/dterzis/voicegate/internal/session"
)

func main() {
	// Missing .env is fine; production injects real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.ValidateRealtime(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.AuthJWTSecret == "" {
		log.Fatalf("config error: AUTH_JWT_SECRET is required")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessionStore, err := session.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}
	defer sessionStore.Close()

	conversationStore, err := conversation.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("conversation store init failed: %v", err)
	}
	defer conversationStore.Close()

	registry := session.NewRegistry(sessionStore, cfg.SessionInactivityTimeout)
	registry.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Dec()
	})

	issuer := rtc.NewTokenIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL, cfg.TokenTTL)
	verifier := auth.NewVerifier(cfg.AuthJWTSecret)

	api := httpapi.New(cfg, verifier, registry, issuer, conversationStore, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
