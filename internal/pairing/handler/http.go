// Package handler exposes the pairing flow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mobile-pairing/backend/internal/pairing/service"
	"mobile-pairing/backend/internal/server/middleware"
	"mobile-pairing/backend/internal/server/response"
)

// PairingService is the service surface the HTTP handlers need.
type PairingService interface {
	Create(ctx context.Context, initiatorAccountID, serverURLOverride string) (*service.CreateResult, error)
	VerifyOTP(ctx context.Context, challengeID, submittedOTP string) error
	Complete(ctx context.Context, challengeID, username, password, totpCode, deviceName string) (*service.CompleteResult, error)
	Abandon(ctx context.Context, challengeID, accountID string) error
	Status(ctx context.Context, challengeID string) service.StatusResult
}

// Handler serves the pairing endpoints.
type Handler struct {
	svc PairingService
}

// New returns a pairing Handler.
func New(svc PairingService) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	ServerURLOverride string `json:"server_url_override"`
}

type createResponse struct {
	ChallengeID         string    `json:"challenge_id"`
	QRPayload           string    `json:"qr_payload"`
	OTP                 string    `json:"otp"`
	OTPExpiresInSeconds int       `json:"otp_expires_in_seconds"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// HandleCreate starts a pairing challenge for the authenticated account.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid_request")
			return
		}
	}
	res, err := h.svc.Create(r.Context(), middleware.AccountID(r.Context()), req.ServerURLOverride)
	if err != nil {
		if errors.Is(err, service.ErrPairingNotAllowed) {
			response.Error(w, http.StatusForbidden, "pairing_not_allowed")
			return
		}
		response.Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	response.JSON(w, http.StatusCreated, createResponse{
		ChallengeID:         res.ChallengeID,
		QRPayload:           res.QRPayload,
		OTP:                 res.OTP,
		OTPExpiresInSeconds: res.OTPExpiresInSeconds,
		ExpiresAt:           res.ExpiresAt,
	})
}

// HandleStatus reports the coarse challenge state for polling desktops.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status(r.Context(), chi.URLParam(r, "challengeID"))
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  string(st.Status),
		"pending": st.Pending,
	})
}

// HandleAbandon cancels a pending challenge on the initiator's behalf.
func (h *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Abandon(r.Context(), chi.URLParam(r, "challengeID"), middleware.AccountID(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrChallengeNotFound) {
			response.Error(w, http.StatusNotFound, "challenge_not_found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyOTPRequest struct {
	OTP string `json:"otp"`
}

// HandleVerifyOTP checks a submitted one-time code. Error responses carry
// attempts_remaining when more tries are allowed.
func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OTP == "" {
		response.Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	err := h.svc.VerifyOTP(r.Context(), chi.URLParam(r, "challengeID"), req.OTP)
	if err == nil {
		response.JSON(w, http.StatusOK, map[string]interface{}{"ok": true})
		return
	}
	var mismatch *service.OTPMismatchError
	switch {
	case errors.As(err, &mismatch):
		response.ErrorWith(w, http.StatusBadRequest, "otp_mismatch",
			map[string]interface{}{"attempts_remaining": mismatch.AttemptsRemaining})
	case errors.Is(err, service.ErrOTPAttemptsExhausted):
		response.ErrorWith(w, http.StatusGone, "otp_attempts_exhausted",
			map[string]interface{}{"attempts_remaining": 0})
	case errors.Is(err, service.ErrChallengeNotFound):
		response.Error(w, http.StatusNotFound, "challenge_not_found")
	case errors.Is(err, service.ErrChallengeExpired):
		response.Error(w, http.StatusGone, "challenge_expired")
	case errors.Is(err, service.ErrAlreadyVerified):
		response.Error(w, http.StatusConflict, "already_verified")
	default:
		response.Error(w, http.StatusInternalServerError, "internal_error")
	}
}

type completeRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totp_code"`
	DeviceName string `json:"device_name"`
}

// HandleComplete runs the credential gate and finishes the pairing. The
// device token in the response is shown exactly once.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Username == "" || req.Password == "" || req.TOTPCode == "" {
		response.Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	res, err := h.svc.Complete(r.Context(), chi.URLParam(r, "challengeID"),
		req.Username, req.Password, req.TOTPCode, req.DeviceName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeNotFound):
			response.Error(w, http.StatusNotFound, "challenge_not_found")
		case errors.Is(err, service.ErrChallengeExpired):
			response.Error(w, http.StatusGone, "challenge_expired")
		case errors.Is(err, service.ErrChallengeNotReady):
			response.Error(w, http.StatusConflict, "challenge_not_ready")
		case errors.Is(err, service.ErrCredentialInvalid):
			response.Error(w, http.StatusUnauthorized, "credential_invalid")
		default:
			response.Error(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"device_id":    res.DeviceID,
		"device_token": res.DeviceToken,
	})
}
