package http

import (
	"encoding/base64"
	"net/http"

	"github.com/viralforge/powerauth-server/internal/application"
	"github.com/viralforge/powerauth-server/internal/domain"
)

// Handler wraps the application service for the core §4/§6 operations. Every method here
// decodes a requestObject envelope, calls exactly one Service method, and writes a
// responseObject envelope back.
type Handler struct {
	service *application.Service
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

type activationStatusResponse struct {
	ActivationID       string `json:"activationId"`
	ActivationStatus   string `json:"activationStatus"`
	BlockedReason      string `json:"blockedReason,omitempty"`
	FailedAttempts     uint32 `json:"failedAttempts"`
	MaxFailedAttempts  uint32 `json:"maxFailedAttempts"`
	Version            int    `json:"activationVersion"`
}

func recordToStatusResponse(rec *domain.Record) activationStatusResponse {
	return activationStatusResponse{
		ActivationID:      rec.ActivationID,
		ActivationStatus:  string(rec.Status),
		BlockedReason:     rec.BlockedReason,
		FailedAttempts:    rec.FailedAttempts,
		MaxFailedAttempts: rec.MaxFailedAttempts,
		Version:           int(rec.Version),
	}
}

type initActivationRequestBody struct {
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
	MaxFailures   uint32 `json:"maxFailureCount"`
	OTP           string `json:"activationOtp"`
	OTPValidation string `json:"activationOtpValidation"`
	Version       int    `json:"activationVersion"`
}

func (h *Handler) InitActivation(w http.ResponseWriter, r *http.Request) {
	const op = "init_activation"
	var body initActivationRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	result, err := h.service.InitActivation(r.Context(), application.InitActivationRequest{
		ApplicationID: body.ApplicationID,
		UserID:        body.UserID,
		MaxFailures:   body.MaxFailures,
		OTP:           body.OTP,
		OTPValidation: body.OTPValidation,
		Version:       body.Version,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"activationId":   result.ActivationID,
		"activationCode": result.ActivationCode,
	})
}

type prepareActivationRequestBody struct {
	ActivationCode    string `json:"activationCode"`
	ApplicationKey    string `json:"applicationKey"`
	ApplicationSecret string `json:"applicationSecret"`
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
	EncryptedData     string `json:"encryptedData"`
	Mac               string `json:"mac"`
	Version           int    `json:"activationVersion"`
	OTP               string `json:"activationOtp"`
}

func decodeEnvelope(ephemeralPublicKeyB64, encryptedDataB64, macB64 string) ([]byte, error) {
	ephemeral, err := base64.StdEncoding.DecodeString(ephemeralPublicKeyB64)
	if err != nil {
		return nil, domain.ErrInvalidInput
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedDataB64)
	if err != nil {
		return nil, domain.ErrInvalidInput
	}
	mac, err := base64.StdEncoding.DecodeString(macB64)
	if err != nil {
		return nil, domain.ErrInvalidInput
	}
	// ephemeralPublicKey(65) || iv(16) || mac(32) || ciphertext, the layout crypto.ParseEnvelope
	// reads (see internal/adapters/crypto/ecies.go). The request carries no IV field, so the
	// IV slot is filled with zero bytes.
	envelope := make([]byte, 0, len(ephemeral)+16+len(mac)+len(ciphertext))
	envelope = append(envelope, ephemeral...)
	envelope = append(envelope, make([]byte, 16)...)
	envelope = append(envelope, mac...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

func (h *Handler) PrepareActivation(w http.ResponseWriter, r *http.Request) {
	const op = "prepare_activation"
	var body prepareActivationRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appKey, err := base64.StdEncoding.DecodeString(body.ApplicationKey)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appSecret, err := base64.StdEncoding.DecodeString(body.ApplicationSecret)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	envelope, err := decodeEnvelope(body.EphemeralPublicKey, body.EncryptedData, body.Mac)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	result, err := h.service.PrepareActivation(r.Context(), application.PrepareActivationRequest{
		ActivationCode:    body.ActivationCode,
		ApplicationKey:    appKey,
		ApplicationSecret: appSecret,
		DeviceEnvelope:    envelope,
		Version:           body.Version,
		OTP:               body.OTP,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"activationId":   result.ActivationID,
		"encryptedData":  base64.StdEncoding.EncodeToString(result.ServerEnvelope),
		"activationOtp":  result.ActivationOTP,
	})
}

type createActivationRequestBody struct {
	ApplicationID      string `json:"applicationId"`
	UserID             string `json:"userId"`
	MaxFailures        uint32 `json:"maxFailureCount"`
	OTP                string `json:"activationOtp"`
	OTPValidation      string `json:"activationOtpValidation"`
	Version            int    `json:"activationVersion"`
	ApplicationKey     string `json:"applicationKey"`
	ApplicationSecret  string `json:"applicationSecret"`
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
	EncryptedData      string `json:"encryptedData"`
	Mac                string `json:"mac"`
}

func (h *Handler) CreateActivation(w http.ResponseWriter, r *http.Request) {
	const op = "create_activation"
	var body createActivationRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appKey, err := base64.StdEncoding.DecodeString(body.ApplicationKey)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appSecret, err := base64.StdEncoding.DecodeString(body.ApplicationSecret)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	envelope, err := decodeEnvelope(body.EphemeralPublicKey, body.EncryptedData, body.Mac)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	result, err := h.service.CreateActivation(r.Context(), application.CreateActivationRequest{
		ApplicationID:     body.ApplicationID,
		UserID:            body.UserID,
		MaxFailures:       body.MaxFailures,
		OTP:               body.OTP,
		OTPValidation:     body.OTPValidation,
		Version:           body.Version,
		ApplicationKey:    appKey,
		ApplicationSecret: appSecret,
		DeviceEnvelope:    envelope,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"activationId":  result.ActivationID,
		"encryptedData": base64.StdEncoding.EncodeToString(result.ServerEnvelope),
		"activationOtp": result.ActivationOTP,
	})
}

type commitActivationRequestBody struct {
	ActivationID   string `json:"activationId"`
	OTP            string `json:"activationOtp"`
	ExternalUserID string `json:"externalUserId"`
}

func (h *Handler) CommitActivation(w http.ResponseWriter, r *http.Request) {
	const op = "commit_activation"
	var body commitActivationRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	rec, err := h.service.CommitActivation(r.Context(), application.CommitActivationRequest{
		ActivationID:   body.ActivationID,
		OTP:            body.OTP,
		ExternalUserID: body.ExternalUserID,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, recordToStatusResponse(rec))
}

type activationIDRequestBody struct {
	ActivationID string `json:"activationId"`
}

func (h *Handler) GetActivationStatus(w http.ResponseWriter, r *http.Request) {
	const op = "get_activation_status"
	var body activationIDRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	rec, err := h.service.GetActivationStatus(r.Context(), body.ActivationID)
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, recordToStatusResponse(rec))
}

func (h *Handler) RemoveActivation(w http.ResponseWriter, r *http.Request) {
	const op = "remove_activation"
	var body activationIDRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	rec, err := h.service.RemoveActivation(r.Context(), application.RemoveActivationRequest{ActivationID: body.ActivationID})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, recordToStatusResponse(rec))
}

type blockActivationRequestBody struct {
	ActivationID string `json:"activationId"`
	Reason       string `json:"reason"`
}

func (h *Handler) BlockActivation(w http.ResponseWriter, r *http.Request) {
	const op = "block_activation"
	var body blockActivationRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	rec, err := h.service.BlockActivation(r.Context(), application.BlockActivationRequest{
		ActivationID: body.ActivationID,
		Reason:       body.Reason,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, recordToStatusResponse(rec))
}

func (h *Handler) UnblockActivation(w http.ResponseWriter, r *http.Request) {
	const op = "unblock_activation"
	var body activationIDRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	rec, err := h.service.UnblockActivation(r.Context(), application.UnblockActivationRequest{ActivationID: body.ActivationID})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, recordToStatusResponse(rec))
}

type updateActivationOTPRequestBody struct {
	ActivationID string `json:"activationId"`
	OTP          string `json:"activationOtp"`
}

func (h *Handler) UpdateActivationOTP(w http.ResponseWriter, r *http.Request) {
	const op = "update_activation_otp"
	var body updateActivationOTPRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	rec, err := h.service.UpdateActivationOTP(r.Context(), application.UpdateActivationOTPRequest{
		ActivationID: body.ActivationID,
		OTP:          body.OTP,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, recordToStatusResponse(rec))
}

type verifySignatureRequestBody struct {
	ActivationID           string `json:"activationId"`
	ApplicationKey         string `json:"applicationKey"`
	Data                   string `json:"data"`
	Signature              string `json:"signature"`
	SignatureType          string `json:"signatureType"`
	ForcedSignatureVersion int    `json:"forcedSignatureVersion"`
}

func (h *Handler) VerifySignature(w http.ResponseWriter, r *http.Request) {
	const op = "verify_signature"
	var body verifySignatureRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appKey, err := base64.StdEncoding.DecodeString(body.ApplicationKey)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	result, err := h.service.VerifySignature(r.Context(), application.SignatureVerifyRequest{
		ActivationID:           body.ActivationID,
		ApplicationKey:         appKey,
		Data:                   []byte(body.Data),
		Signature:              body.Signature,
		SignatureType:          body.SignatureType,
		ForcedSignatureVersion: body.ForcedSignatureVersion,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"activationId":   result.ActivationID,
		"signatureValid": result.Valid,
		"remainingAttemptsCount": result.RemainingTries,
		"blocked":        result.Blocked,
	})
}

type verifyECDSARequestBody struct {
	ActivationID string `json:"activationId"`
	Data         string `json:"data"`
	Signature    string `json:"signature"`
}

func (h *Handler) VerifyECDSA(w http.ResponseWriter, r *http.Request) {
	const op = "verify_ecdsa"
	var body verifyECDSARequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	sig, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	valid, err := h.service.VerifyECDSA(r.Context(), application.ECDSAVerifyRequest{
		ActivationID: body.ActivationID,
		Data:         []byte(body.Data),
		SignatureDER: sig,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"signatureValid": valid})
}

type unlockVaultRequestBody struct {
	ActivationID   string `json:"activationId"`
	ApplicationKey string `json:"applicationKey"`
	Data           string `json:"data"`
	Signature      string `json:"signature"`
	SignatureType  string `json:"signatureType"`
}

func (h *Handler) UnlockVault(w http.ResponseWriter, r *http.Request) {
	const op = "unlock_vault"
	var body unlockVaultRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appKey, err := base64.StdEncoding.DecodeString(body.ApplicationKey)
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	result, err := h.service.UnlockVault(r.Context(), application.VaultUnlockRequest{
		ActivationID:   body.ActivationID,
		ApplicationKey: appKey,
		Data:           []byte(body.Data),
		Signature:      body.Signature,
		SignatureType:  body.SignatureType,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	resp := map[string]any{
		"activationId":      body.ActivationID,
		"userId":            result.UserID,
		"activationStatus":  result.ActivationStatus,
		"signatureValid":    result.SignatureValid,
		"remainingAttempts": result.RemainingAttempts,
	}
	if result.SignatureValid {
		resp["encryptedVaultEncryptionKey"] = base64.StdEncoding.EncodeToString(result.EncryptedVaultEncryptionKey)
	}
	writeSuccess(w, http.StatusOK, resp)
}

// notImplemented stubs endpoints spec.md's Non-goals exclude from core scope (recovery,
// offline signatures, token exchange, protocol upgrade, activation listing/lookup).
func (h *Handler) notImplemented(w http.ResponseWriter, r *http.Request) {
	writeMappedError(r.Context(), w, "not_implemented", domain.ErrNotImplemented)
}
