// Package store provides the expiring in-memory challenge store. All state
// mutation goes through compare-and-swap style methods held under a single
// lock, so concurrent verifiers and completers cannot double-redeem a code
// or mint two devices for one challenge.
package store

import (
	"context"
	"sync"
	"time"

	"mobile-pairing/backend/internal/pairing/domain"
)

// Store holds pairing challenges keyed by challenge ID. Challenges are
// ephemeral; expiry is authoritative at the instant of any read or write,
// not only at sweep cadence.
type Store interface {
	// Put stores the challenge. The challenge must have ID set.
	Put(ctx context.Context, c *domain.Challenge)
	// Get returns a copy of the challenge, or nil if absent. A challenge past
	// its outer TTL is flipped to expired before being returned.
	Get(ctx context.Context, id string) *domain.Challenge
	// Transition atomically moves the challenge from → to. Returns false if
	// the challenge is absent, expired, or no longer in from; callers treat
	// false as "someone else already resolved this". Entering otp_verified
	// clears the stored OTP hash.
	Transition(ctx context.Context, id string, from, to domain.State) bool
	// Complete atomically moves otp_verified → completed and binds deviceID.
	Complete(ctx context.Context, id, deviceID string) bool
	// ConsumeAttempt decrements the OTP attempt counter while the challenge
	// is in waiting_otp. Reaching zero forces the failed state. Returns the
	// remaining count and false if the challenge is absent, expired, or not
	// awaiting a code.
	ConsumeAttempt(ctx context.Context, id string) (remaining int, ok bool)
	// Expire marks a non-terminal challenge expired (initiator abandon).
	// Returns false if absent or already terminal.
	Expire(ctx context.Context, id string) bool
	// Sweep reclaims challenges past their outer TTL and returns the count removed.
	Sweep(ctx context.Context) int
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]*domain.Challenge
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]*domain.Challenge),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores the challenge.
func (s *MemoryStore) Put(ctx context.Context, c *domain.Challenge) {
	cp := *c
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[c.ID] = &cp
}

// Get returns a copy of the challenge, or nil if absent.
func (s *MemoryStore) Get(ctx context.Context, id string) *domain.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return nil
	}
	s.expireLocked(c)
	cp := *c
	return &cp
}

// Transition atomically moves the challenge from → to.
func (s *MemoryStore) Transition(ctx context.Context, id string, from, to domain.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return false
	}
	s.expireLocked(c)
	if c.State != from || !domain.CanTransition(from, to) {
		return false
	}
	c.State = to
	if to == domain.StateOTPVerified {
		c.OTPHash = ""
	}
	return true
}

// Complete atomically moves otp_verified → completed and binds deviceID.
func (s *MemoryStore) Complete(ctx context.Context, id, deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return false
	}
	s.expireLocked(c)
	if c.State != domain.StateOTPVerified {
		return false
	}
	c.State = domain.StateCompleted
	c.BoundDeviceID = deviceID
	return true
}

// ConsumeAttempt decrements the OTP attempt counter; zero forces failed.
func (s *MemoryStore) ConsumeAttempt(ctx context.Context, id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return 0, false
	}
	s.expireLocked(c)
	if c.State != domain.StateWaitingOTP {
		return 0, false
	}
	if c.OTPAttemptsRemaining > 0 {
		c.OTPAttemptsRemaining--
	}
	if c.OTPAttemptsRemaining == 0 {
		c.State = domain.StateFailed
	}
	return c.OTPAttemptsRemaining, true
}

// Expire marks a non-terminal challenge expired.
func (s *MemoryStore) Expire(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return false
	}
	if c.State.Terminal() {
		return false
	}
	c.State = domain.StateExpired
	return true
}

// Sweep removes challenges past their outer TTL.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.m {
		if c.ExpiredAt(now) {
			delete(s.m, id)
			removed++
		}
	}
	return removed
}

// expireLocked flips a challenge past its outer TTL to expired. Caller holds s.mu.
func (s *MemoryStore) expireLocked(c *domain.Challenge) {
	if c.State.Terminal() {
		return
	}
	if c.ExpiredAt(s.nowF()) {
		c.State = domain.StateExpired
	}
}
