package http

import (
	"encoding/json"
	"net/http"
)

// envelope matches spec §6's wire contract: {"status":"OK","responseObject":<T>} on success,
// {"status":"ERROR","responseObject":{"code":"...","message":"..."}} on failure.
type envelope struct {
	Status         string `json:"status"`
	ResponseObject any    `json:"responseObject,omitempty"`
}

type errorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Status: "OK", ResponseObject: data})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, envelope{Status: "OK", ResponseObject: map[string]string{"message": message}})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, envelope{
		Status:         "ERROR",
		ResponseObject: errorObject{Code: code, Message: message},
	})
}
