// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for accounts, devices, and audit logs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// ServerURL is the externally reachable base URL advertised in QR payloads
	// (e.g. https://media.example.com). Overridable per pairing attempt.
	ServerURL string `mapstructure:"SERVER_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; pairs with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "pairing-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "pairing-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// PairingTTL is the outer lifetime of a pairing challenge (e.g. "5m").
	PairingTTL string `mapstructure:"PAIRING_TTL"`
	// PairingOTPTTL is the one-time code window within a challenge (e.g. "60s").
	PairingOTPTTL string `mapstructure:"PAIRING_OTP_TTL"`
	// PairingOTPMaxAttempts is the OTP attempt ceiling per challenge; default 3.
	PairingOTPMaxAttempts int `mapstructure:"PAIRING_OTP_MAX_ATTEMPTS"`
	// PairingPolicyFile is an optional path to a Rego module overriding the
	// default pairing authorization policy.
	PairingPolicyFile string `mapstructure:"PAIRING_POLICY_FILE"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SERVER_URL", "http://localhost:8080")
	v.SetDefault("JWT_ISSUER", "pairing-auth")
	v.SetDefault("JWT_AUDIENCE", "pairing-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PAIRING_TTL", "5m")
	v.SetDefault("PAIRING_OTP_TTL", "60s")
	v.SetDefault("PAIRING_OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("PAIRING_POLICY_FILE", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("config: SERVER_URL must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.PairingOTPMaxAttempts <= 0 {
		return nil, errors.New("config: PAIRING_OTP_MAX_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// ChallengeTTL parses PairingTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.PairingTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// OTPTTL parses PairingOTPTTL as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	d, err := time.ParseDuration(c.PairingOTPTTL)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
