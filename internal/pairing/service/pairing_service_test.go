package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mobile-pairing/backend/internal/audit"
	devicedomain "mobile-pairing/backend/internal/device/domain"
	identitydomain "mobile-pairing/backend/internal/identity/domain"
	identityservice "mobile-pairing/backend/internal/identity/service"
	"mobile-pairing/backend/internal/pairing/store"
)

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*identitydomain.Account
}

func (r *memAccountRepo) GetByID(_ context.Context, id string) (*identitydomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

type fakeCredentialVerifier struct {
	username string
	password string
	account  *identitydomain.Account
}

func (f *fakeCredentialVerifier) VerifyPassword(_ context.Context, username, password string) (*identitydomain.Account, error) {
	if username != f.username || password != f.password {
		return nil, identityservice.ErrInvalidCredentials
	}
	cp := *f.account
	return &cp, nil
}

type fakeTOTPVerifier struct {
	code string
}

func (f *fakeTOTPVerifier) Verify(_ context.Context, _, code string) bool {
	return code == f.code
}

type memDeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]*devicedomain.Device
	// onCreate runs after a device is minted, before Create returns. Lets
	// tests interleave a store mutation between minting and binding.
	onCreate func()
}

func newMemDeviceRegistry() *memDeviceRegistry {
	return &memDeviceRegistry{devices: make(map[string]*devicedomain.Device)}
}

func (r *memDeviceRegistry) Create(_ context.Context, accountID, name string) (*devicedomain.Device, string, error) {
	d := &devicedomain.Device{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Name:      name,
		PairedAt:  time.Now().UTC(),
	}
	r.mu.Lock()
	r.devices[d.ID] = d
	r.mu.Unlock()
	if r.onCreate != nil {
		r.onCreate()
	}
	return d, "mpd_test-token-" + d.ID, nil
}

func (r *memDeviceRegistry) Discard(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, deviceID)
	return nil
}

func (r *memDeviceRegistry) has(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[deviceID]
	return ok
}

type allowAllPolicy struct{}

func (allowAllPolicy) AllowPairing(context.Context, *identitydomain.Account) (bool, error) {
	return true, nil
}

type denyAllPolicy struct{}

func (denyAllPolicy) AllowPairing(context.Context, *identitydomain.Account) (bool, error) {
	return false, nil
}

const (
	testAccountID = "acct-1"
	testUsername  = "alice"
	testPassword  = "hunter22"
	testTOTPCode  = "123456"
)

func newTestService(t *testing.T) (*Service, *memDeviceRegistry) {
	t.Helper()
	acct := &identitydomain.Account{
		ID:       testAccountID,
		Username: testUsername,
		Status:   identitydomain.AccountStatusActive,
	}
	accounts := &memAccountRepo{accounts: map[string]*identitydomain.Account{testAccountID: acct}}
	creds := &fakeCredentialVerifier{username: testUsername, password: testPassword, account: acct}
	devices := newMemDeviceRegistry()
	svc := NewService(
		store.NewMemoryStore(),
		accounts,
		creds,
		&fakeTOTPVerifier{code: testTOTPCode},
		devices,
		allowAllPolicy{},
		audit.Nop{},
		Config{
			ChallengeTTL:   5 * time.Minute,
			OTPTTL:         60 * time.Second,
			MaxOTPAttempts: 3,
			ServerURL:      "https://pairing.example.com",
		},
	)
	return svc, devices
}

func createChallenge(t *testing.T, svc *Service) *CreateResult {
	t.Helper()
	res, err := svc.Create(context.Background(), testAccountID, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res
}

func TestCreate_QRPayloadCarriesNoOTP(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)

	if len(res.OTP) != 6 {
		t.Errorf("OTP length = %d, want 6", len(res.OTP))
	}
	if strings.Contains(res.QRPayload, res.OTP) {
		t.Errorf("QR payload contains the one-time code: %s", res.QRPayload)
	}

	var payload struct {
		Version     int    `json:"v"`
		ChallengeID string `json:"challenge_id"`
		ServerURL   string `json:"server_url"`
	}
	if err := json.Unmarshal([]byte(res.QRPayload), &payload); err != nil {
		t.Fatalf("unmarshal QR payload: %v", err)
	}
	if payload.Version != 1 {
		t.Errorf("payload version = %d, want 1", payload.Version)
	}
	if payload.ChallengeID != res.ChallengeID {
		t.Errorf("payload challenge_id = %q, want %q", payload.ChallengeID, res.ChallengeID)
	}
	if payload.ServerURL != "https://pairing.example.com" {
		t.Errorf("payload server_url = %q, want configured URL", payload.ServerURL)
	}
}

func TestCreate_ServerURLOverride(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Create(context.Background(), testAccountID, "https://lan.local:9443")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.Contains(res.QRPayload, "https://lan.local:9443") {
		t.Errorf("QR payload should carry the override URL, got %s", res.QRPayload)
	}
}

func TestCreate_PolicyDenied(t *testing.T) {
	svc, _ := newTestService(t)
	svc.policy = denyAllPolicy{}
	if _, err := svc.Create(context.Background(), testAccountID, ""); err != ErrPairingNotAllowed {
		t.Errorf("want ErrPairingNotAllowed, got %v", err)
	}
}

func TestVerifyOTP_HappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)

	if st := svc.Status(context.Background(), res.ChallengeID); st.Status != StatusWaitingOTP || !st.Pending {
		t.Errorf("initial status = %+v, want waiting_otp/pending", st)
	}
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if st := svc.Status(context.Background(), res.ChallengeID); st.Status != StatusOTPVerified || !st.Pending {
		t.Errorf("status after verify = %+v, want otp_verified/pending", st)
	}
}

func TestVerifyOTP_Missing(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.VerifyOTP(context.Background(), "no-such-id", "000000"); err != ErrChallengeNotFound {
		t.Errorf("want ErrChallengeNotFound, got %v", err)
	}
}

func TestVerifyOTP_AttemptExhaustion(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)

	wrong := "000000"
	if wrong == res.OTP {
		wrong = "000001"
	}

	for i, wantRemaining := range []int{2, 1} {
		err := svc.VerifyOTP(context.Background(), res.ChallengeID, wrong)
		var mismatch *OTPMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("attempt %d: want OTPMismatchError, got %v", i+1, err)
		}
		if mismatch.AttemptsRemaining != wantRemaining {
			t.Errorf("attempt %d: remaining = %d, want %d", i+1, mismatch.AttemptsRemaining, wantRemaining)
		}
	}
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, wrong); err != ErrOTPAttemptsExhausted {
		t.Fatalf("third wrong attempt: want ErrOTPAttemptsExhausted, got %v", err)
	}

	// The correct code is dead after exhaustion.
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != ErrChallengeExpired {
		t.Errorf("correct code after exhaustion: want ErrChallengeExpired, got %v", err)
	}
	if st := svc.Status(context.Background(), res.ChallengeID); st.Status != StatusCompletedOrExpired || st.Pending {
		t.Errorf("status after exhaustion = %+v, want completed_or_expired/not pending", st)
	}
}

func TestVerifyOTP_WindowClosedConsumesNoAttempt(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)

	base := svc.nowF()
	svc.nowF = func() time.Time { return base.Add(2 * time.Minute) }
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != ErrChallengeExpired {
		t.Fatalf("past OTP window: want ErrChallengeExpired, got %v", err)
	}

	// No attempt was consumed by the expired submission.
	svc.nowF = func() time.Time { return base }
	wrong := "000000"
	if wrong == res.OTP {
		wrong = "000001"
	}
	err := svc.VerifyOTP(context.Background(), res.ChallengeID, wrong)
	var mismatch *OTPMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("want OTPMismatchError, got %v", err)
	}
	if mismatch.AttemptsRemaining != 2 {
		t.Errorf("remaining = %d, want 2", mismatch.AttemptsRemaining)
	}
}

func TestVerifyOTP_AlreadyVerified(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != ErrAlreadyVerified {
		t.Errorf("second verify: want ErrAlreadyVerified, got %v", err)
	}
}

func TestVerifyOTP_ConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)

	const racers = 16
	errs := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			errs <- svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP)
		}()
	}
	start.Done()

	wins := 0
	for i := 0; i < racers; i++ {
		err := <-errs
		switch err {
		case nil:
			wins++
		case ErrAlreadyVerified:
		default:
			t.Errorf("unexpected racer error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestComplete_BeforeVerify(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)
	_, err := svc.Complete(context.Background(), res.ChallengeID, testUsername, testPassword, testTOTPCode, "Pixel")
	if err != ErrChallengeNotReady {
		t.Errorf("want ErrChallengeNotReady, got %v", err)
	}
}

func TestComplete_CredentialFailuresIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	if _, err := svc.Complete(context.Background(), res.ChallengeID, testUsername, "wrong", testTOTPCode, "Pixel"); err != ErrCredentialInvalid {
		t.Errorf("wrong password: want ErrCredentialInvalid, got %v", err)
	}
	if _, err := svc.Complete(context.Background(), res.ChallengeID, testUsername, testPassword, "999999", "Pixel"); err != ErrCredentialInvalid {
		t.Errorf("wrong TOTP: want ErrCredentialInvalid, got %v", err)
	}

	// Failed credential attempts do not burn the challenge.
	if st := svc.Status(context.Background(), res.ChallengeID); st.Status != StatusOTPVerified {
		t.Errorf("status = %+v, want otp_verified", st)
	}
}

func TestComplete_HappyPath(t *testing.T) {
	svc, devices := newTestService(t)
	res := createChallenge(t, svc)
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	out, err := svc.Complete(context.Background(), res.ChallengeID, testUsername, testPassword, testTOTPCode, "Pixel 9")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.HasPrefix(out.DeviceToken, "mpd_") {
		t.Errorf("device token = %q, want mpd_ prefix", out.DeviceToken)
	}
	if !devices.has(out.DeviceID) {
		t.Errorf("device %s missing from registry", out.DeviceID)
	}
	if st := svc.Status(context.Background(), res.ChallengeID); st.Status != StatusCompletedOrExpired || st.Pending {
		t.Errorf("status after completion = %+v, want completed_or_expired/not pending", st)
	}

	// A second completion cannot mint a second device.
	if _, err := svc.Complete(context.Background(), res.ChallengeID, testUsername, testPassword, testTOTPCode, "Pixel 9"); err != ErrChallengeExpired {
		t.Errorf("second Complete: want ErrChallengeExpired, got %v", err)
	}
}

func TestComplete_LostRaceDiscardsDevice(t *testing.T) {
	svc, devices := newTestService(t)
	res := createChallenge(t, svc)
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	// Abandon the challenge between device minting and state binding.
	devices.onCreate = func() {
		svc.store.Expire(context.Background(), res.ChallengeID)
	}
	_, err := svc.Complete(context.Background(), res.ChallengeID, testUsername, testPassword, testTOTPCode, "Pixel")
	if err != ErrChallengeExpired {
		t.Fatalf("want ErrChallengeExpired, got %v", err)
	}
	devices.mu.Lock()
	n := len(devices.devices)
	devices.mu.Unlock()
	if n != 0 {
		t.Errorf("registry holds %d devices after lost race, want 0", n)
	}
}

func TestAbandon(t *testing.T) {
	svc, _ := newTestService(t)
	res := createChallenge(t, svc)

	if err := svc.Abandon(context.Background(), res.ChallengeID, "someone-else"); err != ErrChallengeNotFound {
		t.Errorf("non-initiator abandon: want ErrChallengeNotFound, got %v", err)
	}
	if err := svc.Abandon(context.Background(), res.ChallengeID, testAccountID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if err := svc.VerifyOTP(context.Background(), res.ChallengeID, res.OTP); err != ErrChallengeExpired {
		t.Errorf("verify after abandon: want ErrChallengeExpired, got %v", err)
	}
	// Abandoning a terminal challenge is a no-op, not an error.
	if err := svc.Abandon(context.Background(), res.ChallengeID, testAccountID); err != nil {
		t.Errorf("repeat Abandon: %v", err)
	}
}

func TestStatus_MissingCollapsesToTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	st := svc.Status(context.Background(), "no-such-id")
	if st.Status != StatusCompletedOrExpired || st.Pending {
		t.Errorf("status = %+v, want completed_or_expired/not pending", st)
	}
}
