package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobile-pairing/backend/internal/audit"
	auditrepo "mobile-pairing/backend/internal/audit/repository"
	"mobile-pairing/backend/internal/config"
	"mobile-pairing/backend/internal/db"
	devicehandler "mobile-pairing/backend/internal/device/handler"
	devicerepo "mobile-pairing/backend/internal/device/repository"
	deviceservice "mobile-pairing/backend/internal/device/service"
	healthhandler "mobile-pairing/backend/internal/health/handler"
	identityrepo "mobile-pairing/backend/internal/identity/repository"
	identityservice "mobile-pairing/backend/internal/identity/service"
	pairinghandler "mobile-pairing/backend/internal/pairing/handler"
	pairingservice "mobile-pairing/backend/internal/pairing/service"
	"mobile-pairing/backend/internal/pairing/store"
	"mobile-pairing/backend/internal/policy/engine"
	"mobile-pairing/backend/internal/security"
	"mobile-pairing/backend/internal/server"
	"mobile-pairing/backend/internal/server/middleware"
	telemetryotel "mobile-pairing/backend/internal/telemetry/otel"
	"mobile-pairing/backend/internal/twofactor"
)

const serviceName = "mobile-pairing"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	policyModule := ""
	if cfg.PairingPolicyFile != "" {
		raw, err := os.ReadFile(cfg.PairingPolicyFile)
		if err != nil {
			log.Fatalf("pairing policy: %v", err)
		}
		policyModule = string(raw)
	}
	evaluator := engine.NewOPAEvaluator(policyModule)
	if err := evaluator.HealthCheck(ctx); err != nil {
		log.Fatalf("pairing policy: %v", err)
	}

	accountRepo := identityrepo.NewPostgresRepository(database)
	deviceRepo := devicerepo.NewPostgresRepository(database)
	auditLog := telemetryotel.NewAuditEmitter(providers.LoggerProvider,
		audit.NewLogger(auditrepo.NewPostgresRepository(database), middleware.ClientIP))

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordVerifier := identityservice.NewPasswordVerifier(accountRepo, hasher)
	registry := deviceservice.NewRegistry(deviceRepo)

	challengeStore := store.NewMemoryStore()
	pairingSvc := pairingservice.NewService(
		challengeStore,
		accountRepo,
		passwordVerifier,
		twofactor.NewTOTPVerifier(),
		registry,
		evaluator,
		auditLog,
		pairingservice.Config{
			ChallengeTTL:   cfg.ChallengeTTL(),
			OTPTTL:         cfg.OTPTTL(),
			MaxOTPAttempts: cfg.PairingOTPMaxAttempts,
			ServerURL:      cfg.ServerURL,
		},
	)

	go store.NewSweeper(challengeStore, time.Minute).Run(ctx)

	router := server.NewRouter(server.Deps{
		Pairing:     pairinghandler.New(pairingSvc),
		Devices:     devicehandler.New(registry, auditLog),
		Health:      healthhandler.New(database, evaluator),
		Tokens:      tokens,
		ServiceName: serviceName,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
