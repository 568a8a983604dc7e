package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralforge/powerauth-server/internal/application"
)

// NewRouter exposes the spec §6 core surface under /v3, plus a health check. Endpoints the
// spec's Non-goals exclude from this core (recovery, offline signatures, token exchange,
// protocol upgrade, activation listing/lookup, history, ECIES decryptor discovery) are
// stubbed 501 rather than omitted, so a client probing the full PowerAuth REST surface gets
// a well-formed error envelope instead of a 404.
func NewRouter(service *application.Service) http.Handler {
	handler := NewHandler(service)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusOK, "ready")
	})

	r.Route("/v3/activation", func(r chi.Router) {
		r.Post("/init", handler.InitActivation)
		r.Post("/prepare", handler.PrepareActivation)
		r.Post("/create", handler.CreateActivation)
		r.Post("/commit", handler.CommitActivation)
		r.Post("/status", handler.GetActivationStatus)
		r.Post("/remove", handler.RemoveActivation)
		r.Post("/block", handler.BlockActivation)
		r.Post("/unblock", handler.UnblockActivation)
		r.Post("/otp/update", handler.UpdateActivationOTP)

		// Out of core scope (spec.md Non-goals): activation listing/lookup/history.
		r.Post("/list", handler.notImplemented)
		r.Post("/lookup", handler.notImplemented)
		r.Post("/history", handler.notImplemented)
	})

	r.Route("/v3/signature", func(r chi.Router) {
		r.Post("/verify", handler.VerifySignature)
		r.Route("/ecdsa", func(r chi.Router) {
			r.Post("/verify", handler.VerifyECDSA)
		})
		// Out of core scope: offline (QR code) signature issuance/verification.
		r.Post("/offline/create", handler.notImplemented)
		r.Post("/offline/verify", handler.notImplemented)
		r.Post("/offline/personalized/create", handler.notImplemented)
		r.Post("/offline/non-personalized/create", handler.notImplemented)
	})

	r.Route("/v3/vault", func(r chi.Router) {
		r.Post("/unlock", handler.UnlockVault)
	})

	// Out of core scope: access token exchange, v2->v3 protocol upgrade, recovery codes,
	// and ECIES decryptor key discovery for non-activation contexts.
	r.Post("/v3/token/create", handler.notImplemented)
	r.Post("/v3/token/remove", handler.notImplemented)
	r.Post("/v3/token/validate", handler.notImplemented)
	r.Post("/v3/upgrade/start", handler.notImplemented)
	r.Post("/v3/upgrade/commit", handler.notImplemented)
	r.Post("/v3/recovery/confirm", handler.notImplemented)
	r.Post("/v3/recovery/create", handler.notImplemented)
	r.Post("/v3/recovery/lookup", handler.notImplemented)
	r.Post("/v3/recovery/revoke", handler.notImplemented)
	r.Post("/v3/recovery/config/detail", handler.notImplemented)
	r.Post("/v3/recovery/config/update", handler.notImplemented)
	r.Post("/v3/ecies/decryptor", handler.notImplemented)

	return r
}
