// Package handler exposes the device registry over HTTP: listing and
// unpairing for the owner, and the device-token session check for mobiles.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mobile-pairing/backend/internal/audit"
	"mobile-pairing/backend/internal/device/domain"
	"mobile-pairing/backend/internal/device/service"
	"mobile-pairing/backend/internal/server/middleware"
	"mobile-pairing/backend/internal/server/response"
)

// Registry is the device service surface the handlers need.
type Registry interface {
	List(ctx context.Context, accountID string) ([]*domain.Device, error)
	Revoke(ctx context.Context, deviceID, requestingAccountID string) error
	Authenticate(ctx context.Context, rawToken string) (*domain.Device, error)
}

// Handler serves the device endpoints.
type Handler struct {
	registry Registry
	auditLog audit.AuditLogger
}

// New returns a device Handler.
func New(registry Registry, auditLog audit.AuditLogger) *Handler {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Handler{registry: registry, auditLog: auditLog}
}

// deviceView is the JSON projection of a device. Token hashes never leave
// the service layer.
type deviceView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	PairedAt   time.Time  `json:"paired_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// HandleList returns the authenticated account's devices.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	devices, err := h.registry.List(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			ID:         d.ID,
			Name:       d.Name,
			PairedAt:   d.PairedAt,
			LastUsedAt: d.LastUsedAt,
			Revoked:    d.Revoked(),
		})
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"devices": views})
}

// HandleUnpair revokes a device. The revocation is immediate: the next
// token check by the device fails.
func (h *Handler) HandleUnpair(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	accountID := middleware.AccountID(r.Context())
	if err := h.registry.Revoke(r.Context(), deviceID, accountID); err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			response.Error(w, http.StatusNotFound, "device_not_found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	h.auditLog.LogEvent(r.Context(), accountID, audit.ActionDeviceRevoked, "device",
		`{"device_id":"`+deviceID+`"}`)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession authenticates a device token and returns the device
// identity. Revoked tokens get 401 device_revoked.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	d, err := h.registry.Authenticate(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDeviceRevoked):
			response.Error(w, http.StatusUnauthorized, "device_revoked")
		case errors.Is(err, service.ErrInvalidToken):
			response.Error(w, http.StatusUnauthorized, "unauthorized")
		default:
			response.Error(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"device_id": d.ID,
		"name":      d.Name,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
