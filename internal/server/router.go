// Package server builds the HTTP router and middleware chain for the
// pairing service.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	devicehandler "mobile-pairing/backend/internal/device/handler"
	healthhandler "mobile-pairing/backend/internal/health/handler"
	pairinghandler "mobile-pairing/backend/internal/pairing/handler"
	"mobile-pairing/backend/internal/server/middleware"
)

// Deps carries everything the router needs.
type Deps struct {
	Pairing     *pairinghandler.Handler
	Devices     *devicehandler.Handler
	Health      *healthhandler.Handler
	Tokens      middleware.AccessValidator
	ServiceName string
}

// NewRouter assembles the full route tree. Desktop endpoints require a JWT
// access token; the mobile OTP and complete endpoints are public because the
// unguessable challenge ID is the capability; /mobile/session authenticates
// with the device token inside the handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Telemetry(d.ServiceName))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", d.Health.HandleLiveness)
	r.Get("/readyz", d.Health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// Desktop, JWT-authenticated.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAccount(d.Tokens))
			r.Post("/pairing", d.Pairing.HandleCreate)
			r.Get("/pairing/{challengeID}/status", d.Pairing.HandleStatus)
			r.Delete("/pairing/{challengeID}", d.Pairing.HandleAbandon)
			r.Get("/devices", d.Devices.HandleList)
			r.Delete("/devices/{deviceID}", d.Devices.HandleUnpair)
		})

		// Mobile, pre-pairing.
		r.Post("/pairing/{challengeID}/otp", d.Pairing.HandleVerifyOTP)
		r.Post("/pairing/{challengeID}/complete", d.Pairing.HandleComplete)

		// Mobile, post-pairing.
		r.Get("/mobile/session", d.Devices.HandleSession)
	})

	return r
}
