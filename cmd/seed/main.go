// seed inserts a development account for local pairing tests. Idempotent:
// skips the insert if the dev account already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"mobile-pairing/backend/internal/config"
	"mobile-pairing/backend/internal/db"
	identitydomain "mobile-pairing/backend/internal/identity/domain"
	identityrepo "mobile-pairing/backend/internal/identity/repository"
	"mobile-pairing/backend/internal/security"
	"mobile-pairing/backend/internal/twofactor"
)

const (
	devUsername = "dev"
	devPassword = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	repo := identityrepo.NewPostgresRepository(conn)

	existing, err := repo.GetByUsername(ctx, devUsername)
	if err != nil {
		log.Fatalf("seed: lookup dev account: %v", err)
	}
	if existing != nil {
		log.Printf("seed: account %q already exists (%s); nothing to do", devUsername, existing.ID)
		printAccessToken(cfg, existing.ID)
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash password: %v", err)
	}

	secret, provisioningURL, err := twofactor.GenerateSecret(cfg.JWTIssuer, devUsername)
	if err != nil {
		log.Fatalf("seed: generate TOTP secret: %v", err)
	}

	acct := &identitydomain.Account{
		ID:           uuid.New().String(),
		Username:     devUsername,
		PasswordHash: passwordHash,
		TOTPSecret:   secret,
		Status:       identitydomain.AccountStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, acct); err != nil {
		log.Fatalf("seed: create account: %v", err)
	}

	log.Printf("seed: created account %q (%s)", devUsername, acct.ID)
	log.Printf("seed: password: %s", devPassword)
	log.Printf("seed: TOTP secret: %s", secret)
	log.Printf("seed: TOTP provisioning URL: %s", provisioningURL)
	printAccessToken(cfg, acct.ID)
}

// printAccessToken mints a short-lived access token for curl-style testing
// when JWT keys are configured.
func printAccessToken(cfg *config.Config, accountID string) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		return
	}
	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Printf("seed: jwt private key: %v", err)
		return
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Printf("seed: jwt public key: %v", err)
		return
	}
	provider := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	token, _, expiresAt, err := provider.IssueAccess(accountID)
	if err != nil {
		log.Printf("seed: issue access token: %v", err)
		return
	}
	log.Printf("seed: access token (expires %s): %s", expiresAt.Format(time.RFC3339), token)
}
