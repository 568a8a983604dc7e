package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/powerauth-server/internal/domain"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "ERR_INTERNAL", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// mapDomainError translates a domain sentinel into the HTTP status and PowerAuth-style
// ERR_* error code the §7 error kinds enumerate. CRYPTO_FAILURE deliberately maps to the
// same generic response as EXPIRED (spec §7 "avoid oracles"): key exchange already collapses
// its crypto failures into ErrExpired, while signature verification, vault unlock and ECDSA
// verification can return ErrCryptoFailure (bad key material, ECDH or MAC failure) directly.
func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "ERR_INVALID_INPUT", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "ERR_NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrExpired):
		return http.StatusOK, "ERR_ACTIVATION_EXPIRED", "activation expired"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "ERR_INVALID_ACTIVATION_STATE", err.Error()
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusOK, "ERR_SIGNATURE_INVALID", err.Error()
	case errors.Is(err, domain.ErrLimitExceeded):
		return http.StatusServiceUnavailable, "ERR_UNABLE_TO_GENERATE_ACTIVATION_ID", err.Error()
	case errors.Is(err, domain.ErrCryptoFailure):
		return http.StatusOK, "ERR_ACTIVATION_EXPIRED", "activation expired"
	case errors.Is(err, domain.ErrRecoveryPukAdvanced):
		return http.StatusOK, "ERR_RECOVERY", err.Error()
	case errors.Is(err, domain.ErrConfig):
		return http.StatusInternalServerError, "ERR_CONFIG", err.Error()
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented, "ERR_NOT_IMPLEMENTED", err.Error()
	default:
		return http.StatusInternalServerError, "ERR_INTERNAL", "internal server error"
	}
}
