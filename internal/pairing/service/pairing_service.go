// Package service implements the pairing lifecycle: challenge creation, the
// one-time code check, the credential+TOTP gate, and the coarse status
// projection polled by the desktop.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mobile-pairing/backend/internal/audit"
	devicedomain "mobile-pairing/backend/internal/device/domain"
	identitydomain "mobile-pairing/backend/internal/identity/domain"
	identityservice "mobile-pairing/backend/internal/identity/service"
	"mobile-pairing/backend/internal/pairing"
	"mobile-pairing/backend/internal/pairing/domain"
	"mobile-pairing/backend/internal/pairing/store"
)

// Sentinel errors for the pairing service; handlers map them to HTTP codes.
var (
	ErrChallengeNotFound    = errors.New("pairing challenge not found")
	ErrChallengeExpired     = errors.New("pairing challenge expired")
	ErrChallengeNotReady    = errors.New("pairing challenge not ready for completion")
	ErrAlreadyVerified      = errors.New("pairing challenge already verified")
	ErrOTPAttemptsExhausted = errors.New("one-time code attempts exhausted")
	ErrCredentialInvalid    = errors.New("invalid credentials")
	ErrPairingNotAllowed    = errors.New("pairing not permitted for this account")
)

// OTPMismatchError reports a wrong one-time code with attempts left to retry.
type OTPMismatchError struct {
	AttemptsRemaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("one-time code mismatch (%d attempts remaining)", e.AttemptsRemaining)
}

// qrPayloadVersion is the protocol version embedded in the QR payload.
const qrPayloadVersion = 1

// qrPayload is the JSON the desktop renders as a QR code. It deliberately
// carries no secret: the person reading the OTP off the screen and the
// device scanning the code must be in the same room.
type qrPayload struct {
	Version     int    `json:"v"`
	ChallengeID string `json:"challenge_id"`
	ServerURL   string `json:"server_url"`
}

// Status is the coarse externally visible challenge state. The two terminal
// outcomes are collapsed into one value so a weakly authenticated poller
// cannot distinguish success from failure; the initiator disambiguates by
// re-listing devices.
type Status string

const (
	StatusWaitingOTP         Status = "waiting_otp"
	StatusOTPVerified        Status = "otp_verified"
	StatusCompletedOrExpired Status = "completed_or_expired"
)

// CreateResult holds the outcome of Create: what the desktop displays.
type CreateResult struct {
	ChallengeID         string
	QRPayload           string
	OTP                 string
	OTPExpiresInSeconds int
	ExpiresAt           time.Time
}

// CompleteResult holds the minted device and its token, revealed exactly once.
type CompleteResult struct {
	DeviceID    string
	DeviceToken string
}

// StatusResult is the poll response for a challenge.
type StatusResult struct {
	Status  Status
	Pending bool
}

// AccountRepo is the minimal account repository needed by the service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Account, error)
}

// CredentialVerifier checks a username/password pair (identity collaborator).
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, username, password string) (*identitydomain.Account, error)
}

// TOTPVerifier checks a time-based second-factor code (2FA collaborator).
type TOTPVerifier interface {
	Verify(ctx context.Context, secret, code string) bool
}

// DeviceRegistry mints and discards device records (device collaborator).
type DeviceRegistry interface {
	Create(ctx context.Context, accountID, name string) (*devicedomain.Device, string, error)
	Discard(ctx context.Context, deviceID string) error
}

// PolicyEvaluator decides whether an account may initiate pairing.
type PolicyEvaluator interface {
	AllowPairing(ctx context.Context, account *identitydomain.Account) (bool, error)
}

// Config holds pairing protocol parameters.
type Config struct {
	// ChallengeTTL bounds the whole flow.
	ChallengeTTL time.Duration
	// OTPTTL bounds the one-time code window, independent of ChallengeTTL.
	OTPTTL time.Duration
	// MaxOTPAttempts is the attempt ceiling per challenge.
	MaxOTPAttempts int
	// ServerURL is the advertised base URL placed in QR payloads when the
	// initiator supplies no override.
	ServerURL string
}

// Service orchestrates the pairing state machine. All challenge mutation
// goes through the store's compare-and-swap primitives.
type Service struct {
	store    store.Store
	accounts AccountRepo
	creds    CredentialVerifier
	totp     TOTPVerifier
	devices  DeviceRegistry
	policy   PolicyEvaluator
	auditLog audit.AuditLogger
	cfg      Config
	nowF     func() time.Time
}

// NewService returns a pairing Service with the given collaborators.
func NewService(
	st store.Store,
	accounts AccountRepo,
	creds CredentialVerifier,
	totp TOTPVerifier,
	devices DeviceRegistry,
	policy PolicyEvaluator,
	auditLog audit.AuditLogger,
	cfg Config,
) *Service {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 60 * time.Second
	}
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = 3
	}
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Service{
		store:    st,
		accounts: accounts,
		creds:    creds,
		totp:     totp,
		devices:  devices,
		policy:   policy,
		auditLog: auditLog,
		cfg:      cfg,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a new pairing challenge for the initiating account. Returns
// the QR payload for on-screen rendering and the one-time code for
// out-of-band display; the code is never part of the payload.
func (s *Service) Create(ctx context.Context, initiatorAccountID, serverURLOverride string) (*CreateResult, error) {
	acct, err := s.accounts.GetByID(ctx, initiatorAccountID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.policy.AllowPairing(ctx, acct)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrPairingNotAllowed
	}

	otp, err := pairing.GenerateOTP()
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	c := &domain.Challenge{
		ID:                   uuid.New().String(),
		InitiatorAccountID:   initiatorAccountID,
		OTPHash:              pairing.HashOTP(otp),
		OTPAttemptsRemaining: s.cfg.MaxOTPAttempts,
		OTPExpiresAt:         now.Add(s.cfg.OTPTTL),
		OverallExpiresAt:     now.Add(s.cfg.ChallengeTTL),
		State:                domain.StateWaitingOTP,
		ServerURLOverride:    serverURLOverride,
		CreatedAt:            now,
	}
	s.store.Put(ctx, c)

	serverURL := s.cfg.ServerURL
	if serverURLOverride != "" {
		serverURL = serverURLOverride
	}
	payload, err := json.Marshal(qrPayload{
		Version:     qrPayloadVersion,
		ChallengeID: c.ID,
		ServerURL:   serverURL,
	})
	if err != nil {
		return nil, err
	}

	s.auditLog.LogEvent(ctx, initiatorAccountID, audit.ActionPairingInitiated, "challenge",
		fmt.Sprintf(`{"challenge_id":%q}`, c.ID))

	return &CreateResult{
		ChallengeID:         c.ID,
		QRPayload:           string(payload),
		OTP:                 otp,
		OTPExpiresInSeconds: int(s.cfg.OTPTTL / time.Second),
		ExpiresAt:           c.OverallExpiresAt,
	}, nil
}

// VerifyOTP checks the submitted one-time code against the challenge.
// A mismatch consumes an attempt; expiry and already-resolved challenges do
// not. Exactly one of two racing correct submissions wins the transition to
// otp_verified; the loser observes ErrAlreadyVerified.
func (s *Service) VerifyOTP(ctx context.Context, challengeID, submittedOTP string) error {
	c := s.store.Get(ctx, challengeID)
	if c == nil {
		return ErrChallengeNotFound
	}
	switch c.State {
	case domain.StateWaitingOTP:
		// fall through to the code check
	case domain.StateOTPVerified, domain.StateCompleted:
		return ErrAlreadyVerified
	default:
		return ErrChallengeExpired
	}
	if c.OTPWindowClosedAt(s.nowF()) {
		return ErrChallengeExpired
	}

	if !pairing.OTPEqual(submittedOTP, c.OTPHash) {
		remaining, ok := s.store.ConsumeAttempt(ctx, challengeID)
		if !ok {
			// The challenge moved under us; report it like any losing racer.
			return ErrChallengeExpired
		}
		s.auditLog.LogEvent(ctx, "", audit.ActionOTPFailed, "challenge",
			fmt.Sprintf(`{"challenge_id":%q,"attempts_remaining":%d}`, challengeID, remaining))
		if remaining == 0 {
			return ErrOTPAttemptsExhausted
		}
		return &OTPMismatchError{AttemptsRemaining: remaining}
	}

	if !s.store.Transition(ctx, challengeID, domain.StateWaitingOTP, domain.StateOTPVerified) {
		return ErrAlreadyVerified
	}
	s.auditLog.LogEvent(ctx, "", audit.ActionOTPVerified, "challenge",
		fmt.Sprintf(`{"challenge_id":%q}`, challengeID))
	return nil
}

// Complete authenticates the mobile user with password and TOTP, mints a
// device, and finishes the challenge. Password and TOTP failures are
// deliberately indistinguishable to the caller. A completion that loses the
// race to another actor discards the freshly minted device.
func (s *Service) Complete(ctx context.Context, challengeID, username, password, totpCode, deviceName string) (*CompleteResult, error) {
	c := s.store.Get(ctx, challengeID)
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	switch c.State {
	case domain.StateOTPVerified:
		// fall through to the credential check
	case domain.StateWaitingOTP:
		return nil, ErrChallengeNotReady
	default:
		return nil, ErrChallengeExpired
	}

	acct, err := s.creds.VerifyPassword(ctx, username, password)
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidCredentials) {
			return nil, ErrCredentialInvalid
		}
		return nil, err
	}
	if !s.totp.Verify(ctx, acct.TOTPSecret, totpCode) {
		return nil, ErrCredentialInvalid
	}

	dev, rawToken, err := s.devices.Create(ctx, acct.ID, deviceName)
	if err != nil {
		return nil, err
	}
	if !s.store.Complete(ctx, challengeID, dev.ID) {
		// Lost the race or the clock crossed the TTL; no orphaned device
		// record survives.
		if derr := s.devices.Discard(ctx, dev.ID); derr != nil {
			return nil, derr
		}
		return nil, ErrChallengeExpired
	}

	s.auditLog.LogEvent(ctx, acct.ID, audit.ActionPairingCompleted, "challenge",
		fmt.Sprintf(`{"challenge_id":%q,"device_id":%q}`, challengeID, dev.ID))

	return &CompleteResult{DeviceID: dev.ID, DeviceToken: rawToken}, nil
}

// Abandon cancels a challenge on behalf of its initiator so a stale,
// still-unexpired code cannot later succeed. Idempotent for terminal
// challenges.
func (s *Service) Abandon(ctx context.Context, challengeID, accountID string) error {
	c := s.store.Get(ctx, challengeID)
	if c == nil {
		return ErrChallengeNotFound
	}
	if c.InitiatorAccountID != accountID {
		return ErrChallengeNotFound
	}
	if s.store.Expire(ctx, challengeID) {
		s.auditLog.LogEvent(ctx, accountID, audit.ActionPairingAbandoned, "challenge",
			fmt.Sprintf(`{"challenge_id":%q}`, challengeID))
	}
	return nil
}

// Status returns the coarse projection of the challenge state. Reads have
// no side effects beyond lazy expiry; polling is idempotent.
func (s *Service) Status(ctx context.Context, challengeID string) StatusResult {
	c := s.store.Get(ctx, challengeID)
	if c == nil {
		// Swept or never existed: indistinguishable from a finished flow.
		return StatusResult{Status: StatusCompletedOrExpired, Pending: false}
	}
	switch c.State {
	case domain.StateWaitingOTP:
		return StatusResult{Status: StatusWaitingOTP, Pending: true}
	case domain.StateOTPVerified:
		return StatusResult{Status: StatusOTPVerified, Pending: true}
	default:
		return StatusResult{Status: StatusCompletedOrExpired, Pending: false}
	}
}
